// Package criteria implements event selection. A Criteria is an immutable
// AND of independently optional rules; a rule that was never configured
// always passes.
package criteria

import (
	"math"

	"github.com/decibelcooper/uhepipe/internal/errs"
	"github.com/decibelcooper/uhepipe/internal/event"
)

const component = "criteria"

// sample holds the per-record quantities the rules read, computed once per
// evaluation with the Npe scaling applied.
type sample struct {
	rec       *event.Record
	logNpe    float64
	cosZenith float64
}

type rule struct {
	name string
	pass func(s *sample) bool
}

// Criteria is safe for concurrent use once built.
type Criteria struct {
	rules       []rule
	logNpeScale float64
}

// Option installs one complete rule. Applying the same option twice keeps the
// last setting.
type Option func(c *Criteria) error

// New builds a Criteria. Inconsistent parameters are reported as a
// *errs.ConfigError before any record is seen.
func New(opts ...Option) (*Criteria, error) {
	c := &Criteria{}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (c *Criteria) set(name string, pass func(s *sample) bool) {
	for i := range c.rules {
		if c.rules[i].name == name {
			c.rules[i].pass = pass
			return
		}
	}
	c.rules = append(c.rules, rule{name: name, pass: pass})
}

// Pass reports whether r satisfies every configured rule.
func (c *Criteria) Pass(r *event.Record) bool {
	ok, _ := c.Check(r)
	return ok
}

// Check is Pass that also names the first rule that rejected r.
func (c *Criteria) Check(r *event.Record) (bool, string) {
	if c == nil {
		return true, ""
	}
	s := sample{
		rec:       r,
		logNpe:    r.LogNpe() + c.logNpeScale,
		cosZenith: r.CosZenith(),
	}
	for _, ru := range c.rules {
		if !ru.pass(&s) {
			return false, ru.name
		}
	}
	return true, ""
}

// Rules lists the names of the configured rules in evaluation order.
func (c *Criteria) Rules() []string {
	names := make([]string, len(c.rules))
	for i, ru := range c.rules {
		names[i] = ru.name
	}
	return names
}

func finite(xs ...float64) bool {
	for _, x := range xs {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}

func WithMinLogNpe(x float64) Option {
	return func(c *Criteria) error {
		if !finite(x) {
			return errs.Config(component, "min_log_npe", "must be finite, got %v", x)
		}
		c.set("min_log_npe", func(s *sample) bool { return s.logNpe >= x })
		return nil
	}
}

func WithMinNDOMs(n int) Option {
	return func(c *Criteria) error {
		if n < 0 {
			return errs.Config(component, "min_ndoms", "must not be negative, got %d", n)
		}
		c.set("min_ndoms", func(s *sample) bool { return s.rec.NDOMs() >= n })
		return nil
	}
}

// WithCosZenithWindow requires logNpe >= floor for records whose cos(zenith)
// lies in [min, max]. Records outside the window are not restricted.
func WithCosZenithWindow(min, max, floor float64) Option {
	return func(c *Criteria) error {
		if !finite(min, max, floor) {
			return errs.Config(component, "cos_zenith_window", "parameters must be finite")
		}
		if min >= max {
			return errs.Config(component, "cos_zenith_window", "min %v must be below max %v", min, max)
		}
		c.set("cos_zenith_window", func(s *sample) bool {
			if s.cosZenith < min || s.cosZenith > max {
				return true
			}
			return s.logNpe >= floor
		})
		return nil
	}
}

// WithSimpleCosZenithCut keeps cos(zenith) <= cut when below is set and
// cos(zenith) >= cut otherwise.
func WithSimpleCosZenithCut(cut float64, below bool) Option {
	return func(c *Criteria) error {
		if !finite(cut) {
			return errs.Config(component, "cos_zenith_cut", "must be finite, got %v", cut)
		}
		c.set("cos_zenith_cut", func(s *sample) bool {
			if below {
				return s.cosZenith <= cut
			}
			return s.cosZenith >= cut
		})
		return nil
	}
}

// WithSimpleNpeCut keeps logNpe >= bound when atLeast is set and
// logNpe < bound otherwise.
func WithSimpleNpeCut(bound float64, atLeast bool) Option {
	return func(c *Criteria) error {
		if !finite(bound) {
			return errs.Config(component, "npe_cut", "must be finite, got %v", bound)
		}
		c.set("npe_cut", func(s *sample) bool {
			if atLeast {
				return s.logNpe >= bound
			}
			return s.logNpe < bound
		})
		return nil
	}
}

// WithMinimumBound installs a slanted edge in the logNpe/cos(zenith) plane.
// A record passes when
//
//	(logNpe-logNpe0)/logNpeSpan + (cosZenith-cosZenith0)/cosZenithSpan >= 1
func WithMinimumBound(logNpe0, logNpeSpan, cosZenith0, cosZenithSpan float64) Option {
	return func(c *Criteria) error {
		if !finite(logNpe0, logNpeSpan, cosZenith0, cosZenithSpan) {
			return errs.Config(component, "minimum_bound", "parameters must be finite")
		}
		if logNpeSpan == 0 || cosZenithSpan == 0 {
			return errs.Config(component, "minimum_bound", "spans must be non-zero")
		}
		c.set("minimum_bound", func(s *sample) bool {
			return (s.logNpe-logNpe0)/logNpeSpan+(s.cosZenith-cosZenith0)/cosZenithSpan >= 1
		})
		return nil
	}
}

// WithMaxDistance keeps records whose detector-local origin lies within d of
// the reference point.
func WithMaxDistance(d float64, ref event.Vec3) Option {
	return func(c *Criteria) error {
		if !finite(d) || d < 0 {
			return errs.Config(component, "max_distance", "must be a non-negative distance, got %v", d)
		}
		if !ref.Finite() {
			return errs.Config(component, "max_distance", "reference point must be finite")
		}
		c.set("max_distance", func(s *sample) bool {
			return s.rec.Origin().Sub(ref).Length() <= d
		})
		return nil
	}
}

func WithMinFirstGuessQuality(q float64) Option {
	return func(c *Criteria) error {
		if !finite(q) {
			return errs.Config(component, "min_fg_quality", "must be finite, got %v", q)
		}
		c.set("min_fg_quality", func(s *sample) bool {
			return s.rec.Observables().FirstGuessQuality >= q
		})
		return nil
	}
}

// Range is a closed interval.
type Range struct {
	Min float64 `yaml:"min"`
	Max float64 `yaml:"max"`
}

func (r Range) Contains(x float64) bool { return r.Min <= x && x <= r.Max }

func (r Range) validate(field string) error {
	if !finite(r.Min, r.Max) {
		return errs.Config(component, field, "bounds must be finite")
	}
	if r.Min >= r.Max {
		return errs.Config(component, field, "min %v must be below max %v", r.Min, r.Max)
	}
	return nil
}

// DefaultCOBZ is the depth window of the centre of brightness, in cm.
var DefaultCOBZ = Range{Min: -4e4, Max: 4e4}

// WithCOBZRange keeps records whose reconstructed vertex depth lies in
// [min, max]. It reads the Reco view whatever view is active.
func WithCOBZRange(min, max float64) Option {
	return func(c *Criteria) error {
		rg := Range{Min: min, Max: max}
		if err := rg.validate("cobz_range"); err != nil {
			return err
		}
		c.set("cobz_range", func(s *sample) bool { return rg.Contains(cobZ(s.rec)) })
		return nil
	}
}

func cobZ(r *event.Record) float64 {
	return r.In(event.Reco).Origin.Z
}

// WithNpeScaling multiplies every Npe by factor before the Npe rules read it.
func WithNpeScaling(factor float64) Option {
	return func(c *Criteria) error {
		if !finite(factor) || factor <= 0 {
			return errs.Config(component, "npe_scale", "must be positive, got %v", factor)
		}
		c.logNpeScale = math.Log10(factor)
		return nil
	}
}
