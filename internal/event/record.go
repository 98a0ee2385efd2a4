// Package event defines the in-memory event record: two parallel kinematics
// sets (MC truth and reconstruction) read through a view selector, detector
// observables, an optional energy profile and the named flux weights.
package event

import (
	"fmt"
	"math"
)

// View selects which kinematics set the generic accessors of a Record read.
type View uint8

const (
	Reco View = iota
	MCTruth
)

func (v View) String() string {
	switch v {
	case Reco:
		return "reco"
	case MCTruth:
		return "mc"
	default:
		return fmt.Sprintf("View(%d)", uint8(v))
	}
}

// ParseView accepts "mc"/"mctruth" and "reco".
func ParseView(s string) (View, error) {
	switch s {
	case "mc", "mctruth", "MCTruth", "truth":
		return MCTruth, nil
	case "reco", "Reco", "":
		return Reco, nil
	}
	return 0, fmt.Errorf("unknown view %q", s)
}

// Observables is the detector-level summary of an event.
type Observables struct {
	Npe     float64 // best charge estimate
	NpeATWD float64
	NpeFADC float64

	NDOMs     int // launched DOMs
	NDOMsFADC int

	FirstGuessQuality float64
}

func (o Observables) LogNpe() float64     { return log10(o.Npe) }
func (o Observables) LogNpeATWD() float64 { return log10(o.NpeATWD) }
func (o Observables) LogNpeFADC() float64 { return log10(o.NpeFADC) }

func log10(x float64) float64 {
	if x > 0 {
		return math.Log10(x)
	}
	return math.Inf(-1)
}

// Record is one detector event. The kinematics sets and observables are fixed
// at construction; weights, profile and the active view may change.
type Record struct {
	RunID int64

	mc, reco Kinematics
	obs      Observables
	view     View

	primary float64
	weights WeightTable
	profile *Profile
}

// New builds a record whose active view is Reco.
func New(runID int64, mc, reco Kinematics, obs Observables) *Record {
	return &Record{RunID: runID, mc: mc, reco: reco, obs: obs}
}

func (r *Record) MC() Kinematics   { return r.mc }
func (r *Record) Reco() Kinematics { return r.reco }

func (r *Record) View() View { return r.view }

// SetView switches the read view. The underlying data is untouched.
func (r *Record) SetView(v View) { r.view = v }

// Kinematics returns the set selected by the active view.
func (r *Record) Kinematics() Kinematics {
	if r.view == MCTruth {
		return r.mc
	}
	return r.reco
}

// In returns the kinematics set of view v, regardless of the active view.
func (r *Record) In(v View) Kinematics {
	if v == MCTruth {
		return r.mc
	}
	return r.reco
}

func (r *Record) LogEnergy() float64 { return r.Kinematics().LogEnergy }
func (r *Record) CosZenith() float64 { return r.Kinematics().CosZenith() }
func (r *Record) Origin() Vec3       { return r.Kinematics().Origin }

func (r *Record) Observables() Observables { return r.obs }
func (r *Record) LogNpe() float64          { return r.obs.LogNpe() }
func (r *Record) NDOMs() int               { return r.obs.NDOMs }

func (r *Record) Weights() *WeightTable { return &r.weights }

// PrimaryWeight is the MC primary spectrum dN/dlogE the event was generated
// with. Zero means unset.
func (r *Record) PrimaryWeight() float64 { return r.primary }

func (r *Record) SetPrimaryWeight(w float64) error {
	if math.IsNaN(w) || math.IsInf(w, 0) || w < 0 {
		return fmt.Errorf("primary weight: invalid value %v", w)
	}
	r.primary = w
	return nil
}

// Profile returns the energy profile, nil when the record carries none.
func (r *Record) Profile() *Profile { return r.profile }

func (r *Record) SetProfile(p *Profile) { r.profile = p }

// Equal reports field-for-field equality, including the active view.
func (r *Record) Equal(o *Record) bool {
	if r == nil || o == nil {
		return r == o
	}
	return r.RunID == o.RunID &&
		r.mc == o.mc &&
		r.reco == o.reco &&
		r.obs == o.obs &&
		r.view == o.view &&
		r.primary == o.primary &&
		r.weights.Equal(&o.weights) &&
		r.profile.Equal(o.profile)
}

func (r *Record) String() string {
	k := r.Kinematics()
	return fmt.Sprintf("run=%d view=%s %s logE=%.3f cosZ=%.3f logNpe=%.3f nDOMs=%d weights=%d",
		r.RunID, r.view, k.Species, k.LogEnergy, k.CosZenith(), r.LogNpe(), r.obs.NDOMs, r.weights.Len())
}
