package event

import (
	"fmt"
	"math"

	"github.com/decibelcooper/uhepipe/internal/errs"
)

// EnergyGrid is the fixed log-energy binning shared by the energy profile of
// every record in a pass. It is a plain value; components that need it take
// a copy at construction.
type EnergyGrid struct {
	BinWidth float64 `yaml:"bin_width"`
	LogEMin  float64 `yaml:"log_e_min"`
	Bins     int     `yaml:"bins"`
}

// DefaultEnergyGrid covers 10^5 to 10^12 GeV in 0.01 decade steps.
var DefaultEnergyGrid = EnergyGrid{BinWidth: 0.01, LogEMin: 5.0, Bins: 700}

// indexMargin is the round-off margin used when a log-energy is turned into a
// profile index.
const indexMargin = 0.01

func (g EnergyGrid) Validate() error {
	switch {
	case !(g.BinWidth > 0) || math.IsInf(g.BinWidth, 0):
		return errs.Config("energy grid", "bin_width", "must be positive, got %v", g.BinWidth)
	case math.IsNaN(g.LogEMin) || math.IsInf(g.LogEMin, 0):
		return errs.Config("energy grid", "log_e_min", "must be finite, got %v", g.LogEMin)
	case g.Bins <= 0:
		return errs.Config("energy grid", "bins", "must be positive, got %d", g.Bins)
	}
	return nil
}

func (g EnergyGrid) LogEMax() float64 {
	return g.LogEMin + g.BinWidth*float64(g.Bins)
}

// LogE returns the lower edge of bin i.
func (g EnergyGrid) LogE(i int) float64 {
	return g.LogEMin + g.BinWidth*float64(i)
}

// Index maps a log-energy to its profile index. ok is false outside [0, Bins).
func (g EnergyGrid) Index(logE float64) (i int, ok bool) {
	x := math.Floor((logE-g.LogEMin)/g.BinWidth + indexMargin)
	if math.IsNaN(x) || x < 0 || x >= float64(g.Bins) {
		return 0, false
	}
	return int(x), true
}

// Profile is a discretized energy-probability distribution over a grid. The
// sum of the values need not be one.
type Profile struct {
	grid   EnergyGrid
	values []float64
}

func NewProfile(g EnergyGrid) (*Profile, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return &Profile{grid: g, values: make([]float64, g.Bins)}, nil
}

func (p *Profile) Grid() EnergyGrid { return p.grid }

func (p *Profile) Len() int { return len(p.values) }

// At returns the value of bin i, or 0 for an index outside the grid.
func (p *Profile) At(i int) float64 {
	if i < 0 || i >= len(p.values) {
		return 0
	}
	return p.values[i]
}

// Set writes bin i. Indices outside [0, Len) are rejected.
func (p *Profile) Set(i int, v float64) error {
	if i < 0 || i >= len(p.values) {
		return fmt.Errorf("profile: index %d outside [0, %d)", i, len(p.values))
	}
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return fmt.Errorf("profile: invalid value %v at index %d", v, i)
	}
	p.values[i] = v
	return nil
}

// SetAt writes the bin containing logE.
func (p *Profile) SetAt(logE, v float64) error {
	i, ok := p.grid.Index(logE)
	if !ok {
		return fmt.Errorf("profile: log-energy %v outside [%v, %v)", logE, p.grid.LogEMin, p.grid.LogEMax())
	}
	return p.Set(i, v)
}

// CopyColumn fills the profile from a propagation matrix m[in][out] for the
// column of the given out log-energy: bin i receives m[i][j] for every i >= j,
// where j is the index of logEOut.
func (p *Profile) CopyColumn(logEOut float64, m [][]float64) error {
	j, ok := p.grid.Index(logEOut)
	if !ok {
		return fmt.Errorf("profile: log-energy %v outside grid", logEOut)
	}
	if len(m) < len(p.values) {
		return fmt.Errorf("profile: matrix has %d rows, want %d", len(m), len(p.values))
	}
	for i := j; i < len(p.values); i++ {
		if j >= len(m[i]) {
			return fmt.Errorf("profile: matrix row %d has %d columns", i, len(m[i]))
		}
		if err := p.Set(i, m[i][j]); err != nil {
			return err
		}
	}
	return nil
}

func (p *Profile) Sum() float64 {
	var s float64
	for _, v := range p.values {
		s += v
	}
	return s
}

// Values returns a copy of the bin values.
func (p *Profile) Values() []float64 {
	return append([]float64(nil), p.values...)
}

func (p *Profile) Equal(o *Profile) bool {
	if p == nil || o == nil {
		return p == o
	}
	if p.grid != o.grid || len(p.values) != len(o.values) {
		return false
	}
	for i := range p.values {
		if p.values[i] != o.values[i] {
			return false
		}
	}
	return true
}
