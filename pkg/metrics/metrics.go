package metrics

import (
	"context"
	"time"

	"github.com/newrelic/go-agent/v3/newrelic"
)

type contextKey struct{}

// NewContext returns a copy of ctx that reports metrics to app.
func NewContext(ctx context.Context, app *newrelic.Application) context.Context {
	return context.WithValue(ctx, contextKey{}, app)
}

// FromContext returns the New Relic application carried by ctx, if any.
func FromContext(ctx context.Context) (*newrelic.Application, bool) {
	app, ok := ctx.Value(contextKey{}).(*newrelic.Application)
	return app, ok && app != nil
}

// RecordCount records a count metric
func RecordCount(ctx context.Context, metricName string, count uint64) {
	if app, ok := FromContext(ctx); ok {
		app.RecordCustomMetric(metricName, float64(count))
	}
}

// RecordDuration records a duration metric, in milliseconds
func RecordDuration(ctx context.Context, metricName string, duration time.Duration) {
	if app, ok := FromContext(ctx); ok {
		app.RecordCustomMetric(metricName, float64(duration/time.Millisecond))
	}
}

// RecordEvent records a new event with a name and set of key-value pairs
func RecordEvent(ctx context.Context, eventName string, kvPairs map[string]interface{}) {
	if app, ok := FromContext(ctx); ok {
		app.RecordCustomEvent(eventName, kvPairs)
	}
}
