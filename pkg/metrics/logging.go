package metrics

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/sirupsen/logrus"
)

// LogFormatter wraps another logrus.Formatter and forwards every entry to
// New Relic, including the entry's fields. Entries carrying a context with a
// transaction are attached to that transaction.
type LogFormatter struct {
	app   *newrelic.Application
	inner logrus.Formatter
}

func NewLogFormatter(app *newrelic.Application, inner logrus.Formatter) *LogFormatter {
	return &LogFormatter{
		app:   app,
		inner: inner,
	}
}

func (f *LogFormatter) Format(e *logrus.Entry) ([]byte, error) {
	formatted, err := f.inner.Format(e)
	if err != nil {
		return nil, err
	}

	buf := bytes.NewBuffer(bytes.TrimRight(formatted, "\n"))

	var txn *newrelic.Transaction
	if e.Context != nil {
		txn = newrelic.FromContext(e.Context)
	}

	data := newrelic.LogData{
		Severity: e.Level.String(),
		Message:  nrMessage(e),
	}
	if txn != nil {
		txn.RecordLog(data)
		err = newrelic.EnrichLog(buf, newrelic.FromTxn(txn))
	} else {
		f.app.RecordLog(data)
		err = newrelic.EnrichLog(buf, newrelic.FromApp(f.app))
	}
	if err != nil {
		return nil, err
	}

	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

// nrMessage flattens the entry's fields into the message, since New Relic
// log records have no structured field support.
func nrMessage(e *logrus.Entry) string {
	if len(e.Data) == 0 {
		return e.Message
	}

	errText := "<nil>"
	fields := make(map[string]any, len(e.Data))
	for k, v := range e.Data {
		if k != logrus.ErrorKey {
			fields[k] = v
			continue
		}
		if err, ok := v.(error); ok {
			errText = fmt.Sprintf("%q", err.Error())
		}
	}

	encoded, err := json.Marshal(fields)
	if err != nil {
		return e.Message
	}
	return fmt.Sprintf("message=%q, error=%s, data=%s", e.Message, errText, encoded)
}
