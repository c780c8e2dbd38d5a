package metrics

import (
	"context"
	"fmt"

	"github.com/newrelic/go-agent/v3/newrelic"
)

// TraceMethodCall starts a segment for a method call. When ctx carries no
// New Relic transaction but does carry an application, a background
// transaction is started for the call instead. A nil tracer is returned
// when there is nothing to report to, and is safe to use.
func TraceMethodCall(ctx context.Context, structOrPackageName, methodName string) *MethodTracer {
	name := fmt.Sprintf("%s %s", structOrPackageName, methodName)

	if txn := newrelic.FromContext(ctx); txn != nil {
		return &MethodTracer{txn: txn, seg: txn.StartSegment(name)}
	}

	if app, ok := FromContext(ctx); ok {
		txn := app.StartTransaction(name)
		return &MethodTracer{txn: txn, owned: true}
	}

	return nil
}

// MethodTracer collects analytics for a given method call.
type MethodTracer struct {
	txn   *newrelic.Transaction
	seg   *newrelic.Segment
	owned bool
}

// AddAttributes adds a set of key-value pair metadata to the method trace
func (t *MethodTracer) AddAttributes(attributes map[string]interface{}) {
	if t == nil {
		return
	}

	for key, value := range attributes {
		if t.seg != nil {
			t.seg.AddAttribute(key, value)
		} else {
			t.txn.AddAttribute(key, value)
		}
	}
}

// OnError observes an error within a method trace
func (t *MethodTracer) OnError(err error) {
	if t == nil || err == nil {
		return
	}

	t.txn.NoticeError(err)
}

// End completes the trace for the method call.
func (t *MethodTracer) End() {
	if t == nil {
		return
	}

	if t.seg != nil {
		t.seg.End()
	}
	if t.owned {
		t.txn.End()
	}
}
