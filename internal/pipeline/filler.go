package pipeline

import (
	"fmt"
	"math"

	"github.com/decibelcooper/uhepipe/internal/errs"
	"github.com/decibelcooper/uhepipe/internal/event"
	"github.com/decibelcooper/uhepipe/internal/flux"
)

// WeightFiller annotates a record before selection.
type WeightFiller interface {
	Fill(r *event.Record) error
}

// Filler stores the value of a flux model, evaluated at the MC-truth energy
// and direction, as the weight Name. Records with fewer than MinNDOMs
// launched DOMs get a zero weight.
type Filler struct {
	Name     string
	Model    flux.Model
	MinNDOMs int
}

// Fill drops any weight already stored under Name, then stores the new
// value, so refilling a processed file never stacks weights.
func (f Filler) Fill(r *event.Record) error {
	r.Weights().Remove(f.Name)
	var v float64
	if r.NDOMs() >= f.MinNDOMs {
		mc := r.MC()
		v = f.Model.Flux(mc.LogEnergy, mc.CosZenith())
	}
	if err := r.Weights().Fill(f.Name, v); err != nil {
		return fmt.Errorf("fill %s: %w", f.Name, err)
	}
	return nil
}

// PrimaryFiller stores the MC generation spectrum dN/dlogE at the MC-truth
// energy as the record primary weight.
type PrimaryFiller struct {
	Spectrum flux.Model
}

func (f PrimaryFiller) Fill(r *event.Record) error {
	mc := r.MC()
	if err := r.SetPrimaryWeight(f.Spectrum.Flux(mc.LogEnergy, mc.CosZenith())); err != nil {
		return fmt.Errorf("fill primary: %w", err)
	}
	return nil
}

// ProfileFiller attaches an energy profile taken from a propagation matrix
// m[in][out] on the pipeline grid: the column of the record's MC-truth
// log-energy. Records below MinNDOMs, or whose MC-truth energy is off the
// grid, are left without a profile.
type ProfileFiller struct {
	grid     event.EnergyGrid
	matrix   [][]float64
	minNDOMs int
}

// NewProfileFiller checks that m is a square grid.Bins matrix of finite,
// non-negative values. The matrix is used as is, not copied.
func NewProfileFiller(grid event.EnergyGrid, m [][]float64, minNDOMs int) (*ProfileFiller, error) {
	const component = "profile filler"
	if err := grid.Validate(); err != nil {
		return nil, err
	}
	if len(m) != grid.Bins {
		return nil, errs.Config(component, "matrix", "has %d rows, grid has %d bins", len(m), grid.Bins)
	}
	for i, row := range m {
		if len(row) != grid.Bins {
			return nil, errs.Config(component, "matrix", "row %d has %d columns, grid has %d bins", i, len(row), grid.Bins)
		}
		for j, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
				return nil, errs.Config(component, "matrix", "invalid value %v at [%d][%d]", v, i, j)
			}
		}
	}
	return &ProfileFiller{grid: grid, matrix: m, minNDOMs: minNDOMs}, nil
}

// Fill replaces any profile the record already carries.
func (f *ProfileFiller) Fill(r *event.Record) error {
	r.SetProfile(nil)
	if r.NDOMs() < f.minNDOMs {
		return nil
	}
	logE := r.MC().LogEnergy
	if _, ok := f.grid.Index(logE); !ok {
		return nil
	}
	p, err := event.NewProfile(f.grid)
	if err != nil {
		return err
	}
	if err := p.CopyColumn(logE, f.matrix); err != nil {
		return fmt.Errorf("fill profile: %w", err)
	}
	r.SetProfile(p)
	return nil
}
