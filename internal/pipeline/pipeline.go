// Package pipeline drives one pass over record streams: decode, bad-run
// exclusion, weight filling, selection, then aggregation and re-encoding of
// the surviving records.
package pipeline

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/decibelcooper/uhepipe/internal/codec"
	"github.com/decibelcooper/uhepipe/internal/criteria"
	"github.com/decibelcooper/uhepipe/internal/event"
	"github.com/decibelcooper/uhepipe/internal/histogram"
)

// noView leaves each record in the view it was stored with.
const noView = -1

// Pipeline processes inputs strictly one record at a time. The aggregators
// and sink it is given belong to it for the duration of its runs.
type Pipeline struct {
	grid     event.EnergyGrid
	criteria *criteria.Criteria
	badRuns  *BadRunFilter
	fillers  []WeightFiller
	aggs     []*histogram.Aggregator
	sink     *codec.Encoder
	observe  func(r *event.Record, passed bool)
	log      *zap.Logger

	view atomic.Int32
}

type Option func(p *Pipeline) error

func WithGrid(g event.EnergyGrid) Option {
	return func(p *Pipeline) error {
		if err := g.Validate(); err != nil {
			return err
		}
		p.grid = g
		return nil
	}
}

func WithCriteria(c *criteria.Criteria) Option {
	return func(p *Pipeline) error {
		p.criteria = c
		return nil
	}
}

func WithBadRuns(f BadRunFilter) Option {
	return func(p *Pipeline) error {
		if err := f.Validate(); err != nil {
			return err
		}
		p.badRuns = &f
		return nil
	}
}

// WithFillers installs fillers run in order on every record that passes the
// bad-run filter.
func WithFillers(fs ...WeightFiller) Option {
	return func(p *Pipeline) error {
		p.fillers = append(p.fillers, fs...)
		return nil
	}
}

func WithAggregators(aggs ...*histogram.Aggregator) Option {
	return func(p *Pipeline) error {
		p.aggs = append(p.aggs, aggs...)
		return nil
	}
}

// WithSink re-encodes every surviving record. The pipeline flushes the
// encoder at the end of each run.
func WithSink(enc *codec.Encoder) Option {
	return func(p *Pipeline) error {
		p.sink = enc
		return nil
	}
}

func WithView(v event.View) Option {
	return func(p *Pipeline) error {
		p.SetView(v)
		return nil
	}
}

// WithObserver is called for every record that reached selection.
func WithObserver(fn func(r *event.Record, passed bool)) Option {
	return func(p *Pipeline) error {
		p.observe = fn
		return nil
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(p *Pipeline) error {
		p.log = l
		return nil
	}
}

func New(opts ...Option) (*Pipeline, error) {
	p := &Pipeline{grid: event.DefaultEnergyGrid, log: zap.NewNop()}
	p.view.Store(noView)
	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// SetView selects the view applied to records. It may be called while a run
// is in progress and takes effect from the next record.
func (p *Pipeline) SetView(v event.View) {
	p.view.Store(int32(v))
}

// View returns the view applied to records and whether one is set.
func (p *Pipeline) View() (event.View, bool) {
	v := p.view.Load()
	if v == noView {
		return 0, false
	}
	return event.View(v), true
}

func (p *Pipeline) Aggregators() []*histogram.Aggregator { return p.aggs }

// RunFile runs over the named file. The file is closed on every path.
func (p *Pipeline) RunFile(path string) (Report, error) {
	f, err := os.Open(path)
	if err != nil {
		rep := newReport(path)
		rep.fail(err)
		return rep, err
	}
	defer f.Close()
	return p.run(path, f)
}

// RunFiles drains each file completely before opening the next and stops at
// the first failing one.
func (p *Pipeline) RunFiles(paths ...string) ([]Report, error) {
	var reports []Report
	for _, path := range paths {
		rep, err := p.RunFile(path)
		reports = append(reports, rep)
		if err != nil {
			return reports, err
		}
	}
	return reports, nil
}

// Run processes src until it ends or fails. Aggregators keep what they
// accumulated before a failure; the report is then marked incomplete.
func (p *Pipeline) Run(src io.Reader) (Report, error) {
	return p.run("", src)
}

func (p *Pipeline) run(source string, src io.Reader) (Report, error) {
	rep := newReport(source)
	log := p.log.With(zap.String("source", source), zap.Stringer("run", rep.ID))
	log.Debug("Run started")

	dec := codec.NewDecoder(src, p.grid)
	for {
		r, err := dec.Decode()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return p.abort(log, &rep, fmt.Errorf("decode: %w", err))
		}
		rep.Decoded++

		if p.badRuns != nil && p.badRuns.Excluded(r.RunID) {
			rep.BadRunExcluded++
			log.Debug("Record excluded", zap.String("reason", "bad_run"), zap.Int64("run_id", r.RunID))
			continue
		}

		if v, ok := p.View(); ok {
			r.SetView(v)
		}
		for _, f := range p.fillers {
			if err := f.Fill(r); err != nil {
				return p.abort(log, &rep, fmt.Errorf("record %d: %w", rep.Decoded-1, err))
			}
		}

		passed, rule := p.criteria.Check(r)
		if p.observe != nil {
			p.observe(r, passed)
		}
		if !passed {
			rep.SelectionRejected++
			log.Debug("Record rejected", zap.String("reason", "selection"), zap.String("rule", rule), zap.Int64("run_id", r.RunID))
			continue
		}

		rep.Aggregated++
		p.accumulate(r, &rep)
		if p.sink != nil {
			if err := p.sink.Encode(r); err != nil {
				return p.abort(log, &rep, err)
			}
			rep.Written++
		}
	}

	if err := p.flush(); err != nil {
		return p.abort(log, &rep, err)
	}
	rep.close()
	log.Info("Run finished", reportField(rep))
	return rep, nil
}

// accumulate offers r to every aggregator and books the skips on rep.
func (p *Pipeline) accumulate(r *event.Record, rep *Report) {
	for _, a := range p.aggs {
		before := a.Stats()
		if a.Accumulate(r) {
			continue
		}
		after := a.Stats()
		rep.OutOfRange += after.OutOfRange - before.OutOfRange
		rep.MissingWeight += after.MissingWeight - before.MissingWeight
	}
}

func (p *Pipeline) flush() error {
	if p.sink == nil {
		return nil
	}
	if err := p.sink.Flush(); err != nil {
		return fmt.Errorf("flush output: %w", err)
	}
	return nil
}

func (p *Pipeline) abort(log *zap.Logger, rep *Report, err error) (Report, error) {
	if ferr := p.flush(); ferr != nil {
		err = errors.Join(err, ferr)
	}
	rep.fail(err)
	log.Error("Run failed", reportField(*rep), zap.Error(err))
	return *rep, err
}
