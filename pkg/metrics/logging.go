package metrics

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/sirupsen/logrus"
)

// LogFormatter wraps a logrus.Formatter and forwards every formatted entry,
// fields included, to New Relic. The local output is enriched with the
// linking metadata of the entry's transaction, or of the application when
// the entry has none.
//
// Based off of: https://github.com/newrelic/go-agent/blob/f1942e10f0819e2c854d5d7289eb0dc1c52a00af/v3/integrations/logcontext-v2/nrlogrus/formatter.go
type LogFormatter struct {
	app       *newrelic.Application
	formatter logrus.Formatter
}

func NewLogFormatter(app *newrelic.Application, formatter logrus.Formatter) *LogFormatter {
	return &LogFormatter{
		app:       app,
		formatter: formatter,
	}
}

func (f *LogFormatter) Format(e *logrus.Entry) ([]byte, error) {
	local, err := f.formatter.Format(e)
	if err != nil {
		return nil, err
	}
	b := bytes.NewBuffer(bytes.TrimRight(local, "\n"))

	logData := newrelic.LogData{
		Severity: e.Level.String(),
		Message:  forwardedMessage(e),
	}

	var txn *newrelic.Transaction
	if e.Context != nil {
		txn = newrelic.FromContext(e.Context)
	}

	if txn != nil {
		txn.RecordLog(logData)
		err = newrelic.EnrichLog(b, newrelic.FromTxn(txn))
	} else {
		f.app.RecordLog(logData)
		err = newrelic.EnrichLog(b, newrelic.FromApp(f.app))
	}
	if err != nil {
		return nil, err
	}

	b.WriteString("\n")
	return b.Bytes(), nil
}

// forwardedMessage folds the entry's fields into the message, since the
// forwarder only carries a severity and a message.
func forwardedMessage(e *logrus.Entry) string {
	if len(e.Data) == 0 {
		return e.Message
	}

	errorString := "<nil>"
	fields := make(map[string]interface{}, len(e.Data))
	for k, v := range e.Data {
		if k == logrus.ErrorKey {
			if err, ok := v.(error); ok {
				errorString = fmt.Sprintf("%q", err.Error())
			}
			continue
		}
		fields[k] = v
	}

	encoded, err := json.Marshal(fields)
	if err != nil {
		return e.Message
	}
	return fmt.Sprintf("message=%q, error=%s, data=%s", e.Message, errorString, encoded)
}
