package metrics

import (
	"context"

	"github.com/newrelic/go-agent/v3/newrelic"
)

// StartTransaction starts a New Relic transaction for a unit of work, such
// as a single CLI action, if metrics are enabled on the context. The returned
// func ends it.
func StartTransaction(ctx context.Context, name string) (context.Context, func()) {
	nr, ok := fromContext(ctx)
	if !ok {
		return ctx, func() {}
	}

	txn := nr.StartTransaction(name)
	return newrelic.NewContext(ctx, txn), txn.End
}

// Span is a segment of the transaction on a context. All methods are safe
// on a nil Span, which is what StartSpan returns outside a transaction.
type Span struct {
	txn *newrelic.Transaction
	seg *newrelic.Segment
}

// StartSpan opens a segment named "<component> <operation>".
func StartSpan(ctx context.Context, component, operation string) *Span {
	txn := newrelic.FromContext(ctx)
	if txn == nil {
		return nil
	}
	return &Span{
		txn: txn,
		seg: txn.StartSegment(component + " " + operation),
	}
}

// Set attaches attributes to the segment.
func (s *Span) Set(attributes map[string]any) {
	if s == nil {
		return
	}
	for k, v := range attributes {
		s.seg.AddAttribute(k, v)
	}
}

// Fail notices err on the transaction. A nil err is ignored.
func (s *Span) Fail(err error) {
	if s == nil || err == nil {
		return
	}
	s.txn.NoticeError(err)
}

func (s *Span) End() {
	if s != nil {
		s.seg.End()
	}
}
