package pipeline

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type State int

const (
	Open State = iota
	Closed
	Failed
)

func (s State) String() string {
	switch s {
	case Open:
		return "open"
	case Closed:
		return "closed"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Report accounts for every record of one input so that no loss is silent.
type Report struct {
	ID     uuid.UUID
	Source string

	Started  time.Time
	Finished time.Time

	Decoded           int
	BadRunExcluded    int
	SelectionRejected int
	// Aggregated counts records that passed selection and were offered to
	// every aggregator.
	Aggregated int
	Written    int

	// OutOfRange and MissingWeight count aggregator-side skips, once per
	// aggregator that skipped the record.
	OutOfRange    int
	MissingWeight int

	State State
	// Incomplete is set when the input stopped on an error; counts and
	// aggregator contents reflect the records before it.
	Incomplete bool
	Err        error
}

func newReport(source string) Report {
	return Report{ID: uuid.New(), Source: source, Started: time.Now(), State: Open}
}

func (r *Report) fail(err error) {
	r.State = Failed
	r.Incomplete = true
	r.Err = err
	r.Finished = time.Now()
}

func (r *Report) close() {
	r.State = Closed
	r.Finished = time.Now()
}

// MarshalLogObject lets a report be logged with zap.Object.
func (r Report) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString("id", r.ID.String())
	enc.AddString("source", r.Source)
	enc.AddInt("decoded", r.Decoded)
	enc.AddInt("bad_run_excluded", r.BadRunExcluded)
	enc.AddInt("selection_rejected", r.SelectionRejected)
	enc.AddInt("aggregated", r.Aggregated)
	enc.AddInt("written", r.Written)
	if r.OutOfRange > 0 {
		enc.AddInt("out_of_range", r.OutOfRange)
	}
	if r.MissingWeight > 0 {
		enc.AddInt("missing_weight", r.MissingWeight)
	}
	enc.AddString("state", r.State.String())
	enc.AddBool("incomplete", r.Incomplete)
	if r.Err != nil {
		enc.AddString("error", r.Err.Error())
	}
	return nil
}

var _ zapcore.ObjectMarshaler = Report{}

func reportField(r Report) zap.Field { return zap.Object("report", r) }
