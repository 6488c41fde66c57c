package airdrop

import (
	"encoding/json"

	"github.com/sirupsen/logrus"
)

// Action names the operation a Report describes.
type Action string

const (
	ActionAirdrop Action = "airdrop"
	ActionVerify  Action = "verify"
)

// Failure is a destination that did not end up with its expected balance.
// Actual is only known when a balance was read, and Error is empty when the
// destination was simply short.
type Failure struct {
	Destination *Destination `json:"destination"`
	Expected    uint64       `json:"expected"`
	Actual      *uint64      `json:"actual,omitempty"`
	Error       string       `json:"error,omitempty"`
}

// Report is the outcome of a run over a destination list. Failed is in input
// order.
type Report struct {
	Action    Action     `json:"action"`
	Total     int        `json:"total"`
	Succeeded int        `json:"succeeded"`
	Failed    []*Failure `json:"failed"`
}

// HasFailures reports whether any destination failed.
func (r *Report) HasFailures() bool {
	return len(r.Failed) > 0
}

// FailedDestinations returns the failed destinations in the shape of the
// input list, so they can be retried.
func (r *Report) FailedDestinations() []*Destination {
	destinations := make([]*Destination, len(r.Failed))
	for i, f := range r.Failed {
		destinations[i] = f.Destination
	}
	return destinations
}

// FailedJSON renders the failed list as indented JSON.
func (r *Report) FailedJSON() ([]byte, error) {
	failed := r.Failed
	if failed == nil {
		failed = []*Failure{}
	}
	return json.MarshalIndent(failed, "", "    ")
}

func logSummary(log *logrus.Entry, r *Report) {
	if r.HasFailures() {
		if data, err := r.FailedJSON(); err == nil {
			log.Warnf("Failed:\n%s", data)
		}
	}
	log.Infof("Complete: [%d / %d]", r.Succeeded, r.Total)
}

func (r *Report) add(res *result) {
	if res.failure == nil {
		r.Succeeded++
		return
	}
	r.Failed = append(r.Failed, res.failure)
}

// result is the outcome of a single destination within a run.
type result struct {
	failure *Failure
}

func succeeded() *result {
	return &result{}
}

func failed(d *Destination, actual *uint64, err error) *result {
	f := &Failure{
		Destination: d,
		Expected:    d.Count,
		Actual:      actual,
	}
	if err != nil {
		f.Error = err.Error()
	}
	return &result{failure: f}
}
