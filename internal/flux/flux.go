// Package flux holds the weight models consulted by the fillers. A model is a
// pure function of the MC-truth log-energy and cos(zenith).
package flux

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"sync"
)

// Model returns the differential flux dF/dlogE at a given log10(E/GeV) and
// cos(zenith). Models must be pure and safe for concurrent use.
type Model interface {
	Flux(logE, cosZenith float64) float64
}

// Func adapts a plain function to Model.
type Func func(logE, cosZenith float64) float64

func (f Func) Flux(logE, cosZenith float64) float64 { return f(logE, cosZenith) }

// CosmicRay is the broken power-law UHE cosmic-ray spectrum, isotropic.
// Cutoff restricts the valid range to the GZK cutoff energy.
type CosmicRay struct {
	Cutoff bool
}

const (
	crLogEMin    = 5.0
	crLogECutoff = 10.8
	crLogEMax    = 15.0

	crIndexKnee  = 2.66894
	crIndexLow   = 3.0
	crIndexHigh  = 3.2
	crIndexAnkle = 2.75

	crLogFluxKnee = -17.1715
)

var (
	crLogEKnee     = math.Log10(4.0e6)
	crLogEBase     = math.Log10(4.0e8)
	crLogEAnkle    = math.Log10(6.3e9)
	crLogFluxBase  = math.Log10(6.26e-24)
	crLogFluxAnkle = math.Log10(9.23e-28)
)

// Valid reports whether logE lies where the spectrum is defined.
func (c CosmicRay) Valid(logE float64) bool {
	if logE < crLogEMin || logE > crLogEMax {
		return false
	}
	return !(c.Cutoff && logE > crLogECutoff)
}

// Flux returns dF/dlogE in /cm^2 s sr, zero outside the valid range.
func (c CosmicRay) Flux(logE, _ float64) float64 {
	if !c.Valid(logE) {
		return 0
	}
	var logFlux float64
	switch {
	case logE <= crLogEKnee:
		logFlux = crLogFluxKnee - crIndexKnee*(logE-crLogEKnee)
	case logE <= crLogEBase:
		logFlux = crLogFluxBase - crIndexLow*(logE-crLogEBase)
	case logE <= crLogEAnkle:
		logFlux = crLogFluxBase - crIndexHigh*(logE-crLogEBase)
	default:
		logFlux = crLogFluxAnkle - crIndexAnkle*(logE-crLogEAnkle)
	}
	return math.Pow(10, logFlux+logE) * math.Ln10
}

// PowerLaw is the normalised MC primary spectrum dN/dlogE of an E^-Index
// generation between 10^LogEMin and 10^LogEMax GeV.
type PowerLaw struct {
	Index   float64
	LogEMin float64
	LogEMax float64
}

// DefaultPrimary is the E^-1 generation spectrum of the simulation.
var DefaultPrimary = PowerLaw{Index: 1.0, LogEMin: 5.0, LogEMax: 11.0}

func (p PowerLaw) Validate() error {
	if math.IsNaN(p.Index) || math.IsInf(p.Index, 0) {
		return fmt.Errorf("power law: invalid index %v", p.Index)
	}
	if !(p.LogEMin < p.LogEMax) {
		return fmt.Errorf("power law: empty range [%v, %v]", p.LogEMin, p.LogEMax)
	}
	return nil
}

// Flux integrates to one over [LogEMin, LogEMax]. It is not cut at the
// range edges.
func (p PowerLaw) Flux(logE, _ float64) float64 {
	if p.Index == 1.0 {
		return 1.0 / (p.LogEMax - p.LogEMin)
	}
	g := 1.0 - p.Index
	minTerm := math.Pow(10, p.LogEMin*g)
	maxTerm := math.Pow(10, p.LogEMax*g)
	return -g * math.Pow(10, logE*g) / (minTerm - maxTerm) * math.Ln10
}

// ErrUnknownModel is returned by Lookup for an unregistered name.
var ErrUnknownModel = errors.New("unknown flux model")

var registry = struct {
	sync.RWMutex
	models map[string]Model
}{
	models: map[string]Model{
		"corsika":             CosmicRay{Cutoff: true},
		"cosmic-ray":          CosmicRay{Cutoff: true},
		"cosmic-ray-nocutoff": CosmicRay{},
		"primary-e1":          DefaultPrimary,
		"primary-e2":          PowerLaw{Index: 2.0, LogEMin: 5.0, LogEMax: 11.0},
	},
}

// Register makes m available to Lookup under name, replacing any previous
// model of that name.
func Register(name string, m Model) {
	registry.Lock()
	defer registry.Unlock()
	registry.models[name] = m
}

func Lookup(name string) (Model, error) {
	registry.RLock()
	defer registry.RUnlock()
	m, ok := registry.models[name]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownModel, name)
	}
	return m, nil
}

// Names lists the registered models in sorted order.
func Names() []string {
	registry.RLock()
	defer registry.RUnlock()
	names := make([]string, 0, len(registry.models))
	for n := range registry.models {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}
