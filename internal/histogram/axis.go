package histogram

import (
	"fmt"
	"math"

	"github.com/decibelcooper/uhepipe/internal/errs"
	"github.com/decibelcooper/uhepipe/internal/event"
)

const component = "histogram"

// Variable names a per-record quantity an axis bins.
type Variable string

const (
	LogEnergy Variable = "logEnergy"
	LogNpe    Variable = "logNpe"
	CosZenith Variable = "cosZenith"
	NDOMs     Variable = "nDOMs"
	FGQuality Variable = "fgQuality"
	COBZ      Variable = "cobZ"
	COBR      Variable = "cobR"
)

var variables = map[Variable]struct {
	label string
	value func(r *event.Record) float64
}{
	LogEnergy: {"log10(E/GeV)", (*event.Record).LogEnergy},
	LogNpe:    {"log10(Npe)", (*event.Record).LogNpe},
	CosZenith: {"cos(zenith)", (*event.Record).CosZenith},
	NDOMs:     {"NDOMs", func(r *event.Record) float64 { return float64(r.NDOMs()) }},
	FGQuality: {"first-guess quality", func(r *event.Record) float64 { return r.Observables().FirstGuessQuality }},
	COBZ:      {"COB z [cm]", func(r *event.Record) float64 { return r.In(event.Reco).Origin.Z }},
	COBR: {"COB r [cm]", func(r *event.Record) float64 {
		o := r.In(event.Reco).Origin
		return math.Hypot(o.X, o.Y)
	}},
}

func (v Variable) Known() bool {
	_, ok := variables[v]
	return ok
}

func (v Variable) Label() string {
	if d, ok := variables[v]; ok {
		return d.label
	}
	return string(v)
}

// Value reads v from r through the active view. The vertex variables always
// read the reconstruction.
func (v Variable) Value(r *event.Record) (float64, error) {
	d, ok := variables[v]
	if !ok {
		return 0, fmt.Errorf("unknown variable %q", string(v))
	}
	return d.value(r), nil
}

// edgeEpsilon is the fraction of a bin width by which a value is allowed to
// fall short of a lower edge and still be binned above it, so that decimal
// edges like 3.3 land in the bin they open.
const edgeEpsilon = 1e-9

// Axis is a fixed-width binning of one variable over [Min, Max). When the
// range is not a whole number of widths the last bin is narrower.
//
// AutoMax marks an axis whose Max is taken from the data; such an axis must
// be passed through WithDataMax before it can bin anything.
type Axis struct {
	Variable Variable `yaml:"variable"`
	BinWidth float64  `yaml:"bin_width"`
	Min      float64  `yaml:"min"`
	Max      float64  `yaml:"max"`
	AutoMax  bool     `yaml:"auto_max,omitempty"`
}

func (a Axis) Validate() error {
	field := string(a.Variable)
	switch {
	case !a.Variable.Known():
		return errs.Config(component, "variable", "unknown variable %q", field)
	case !(a.BinWidth > 0) || math.IsInf(a.BinWidth, 0):
		return errs.Config(component, field+".bin_width", "must be positive, got %v", a.BinWidth)
	case math.IsNaN(a.Min) || math.IsInf(a.Min, 0) || math.IsNaN(a.Max) || math.IsInf(a.Max, 0):
		return errs.Config(component, field, "range must be finite")
	case a.AutoMax:
		return errs.Config(component, field, "max has not been sized from the data")
	case a.Min >= a.Max:
		return errs.Config(component, field, "min %v must be below max %v", a.Min, a.Max)
	}
	return nil
}

func (a Axis) Bins() int {
	return int(math.Ceil((a.Max-a.Min)/a.BinWidth - edgeEpsilon))
}

// Index returns the bin holding x. Values below Min, at or above Max, or NaN
// are out of range and never clamped.
func (a Axis) Index(x float64) (int, bool) {
	if !(x >= a.Min) || x >= a.Max {
		return 0, false
	}
	i := int(math.Floor((x-a.Min)/a.BinWidth + edgeEpsilon))
	if n := a.Bins(); i >= n {
		i = n - 1
	}
	return i, true
}

// Edges returns the Bins()+1 bin edges.
func (a Axis) Edges() []float64 {
	n := a.Bins()
	edges := make([]float64, n+1)
	for i := range n {
		edges[i] = a.Min + float64(i)*a.BinWidth
	}
	edges[n] = a.Max
	return edges
}

// WithDataMax returns a copy of a whose Max is the upper edge of the bin
// holding the observed maximum. The copy is no longer AutoMax.
func (a Axis) WithDataMax(observed float64) Axis {
	n := 1
	if observed >= a.Min {
		n = int(math.Floor((observed-a.Min)/a.BinWidth+edgeEpsilon)) + 1
	}
	a.Max = a.Min + float64(n)*a.BinWidth
	a.AutoMax = false
	return a
}
