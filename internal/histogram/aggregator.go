// Package histogram bins selected records into fixed-width N-dimensional
// histograms and exports them for plotting.
package histogram

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/decibelcooper/uhepipe/internal/errs"
	"github.com/decibelcooper/uhepipe/internal/event"
)

// Exposure converts a stored flux weight into an expected event count:
// weight / primary * Area * SolidAngle * LiveTime / Generated.
type Exposure struct {
	Area       float64 `yaml:"area"`        // cm^2
	SolidAngle float64 `yaml:"solid_angle"` // sr
	LiveTime   float64 `yaml:"live_time"`   // s
	Generated  int     `yaml:"generated"`
}

// DefaultExposure is the IC9 MC generation volume and live time. Generated
// must still be set to the number of thrown events.
var DefaultExposure = Exposure{
	Area:       880 * 880 * math.Pi * 1e4,
	SolidAngle: 4 * math.Pi,
	LiveTime:   1.0726387e7,
}

func (e Exposure) Validate() error {
	for _, f := range []struct {
		name string
		v    float64
	}{{"area", e.Area}, {"solid_angle", e.SolidAngle}, {"live_time", e.LiveTime}} {
		if !(f.v > 0) || math.IsInf(f.v, 0) {
			return errs.Config(component, "exposure."+f.name, "must be positive, got %v", f.v)
		}
	}
	if e.Generated <= 0 {
		return errs.Config(component, "exposure.generated", "must be positive, got %d", e.Generated)
	}
	return nil
}

func (e Exposure) Factor() float64 {
	return e.Area * e.SolidAngle * e.LiveTime / float64(e.Generated)
}

// Stats counts what happened to the records offered to an aggregator.
type Stats struct {
	Accepted      int `yaml:"accepted"`
	OutOfRange    int `yaml:"out_of_range"`
	MissingWeight int `yaml:"missing_weight"`
}

// Aggregator accumulates records into a dense N-dimensional histogram. It
// is owned by a single pipeline run and is not safe for concurrent use.
type Aggregator struct {
	name    string
	axes    []Axis
	strides []int
	values  []float64
	sumw2   []float64

	model     string
	exposure  *Exposure
	bootstrap *distuv.Poisson

	stats Stats
}

type Option func(a *Aggregator) error

// Weighted adds the weight stored under model instead of one per record.
// Records without that weight are skipped and counted.
func Weighted(model string) Option {
	return func(a *Aggregator) error {
		if model == "" {
			return errs.Config(component, "weight", "empty model name")
		}
		a.model = model
		return nil
	}
}

// WithExposure normalises weighted entries by the record primary weight and
// the exposure factor. It requires Weighted.
func WithExposure(e Exposure) Option {
	return func(a *Aggregator) error {
		if err := e.Validate(); err != nil {
			return err
		}
		a.exposure = &e
		return nil
	}
}

// WithBootstrap multiplies each entry by a Poisson(1) draw, producing one
// bootstrap replica of the histogram.
func WithBootstrap() Option {
	return func(a *Aggregator) error {
		a.bootstrap = &distuv.Poisson{Lambda: 1}
		return nil
	}
}

func New(name string, axes []Axis, opts ...Option) (*Aggregator, error) {
	if len(axes) == 0 {
		return nil, errs.Config(component, name, "at least one axis is required")
	}
	a := &Aggregator{name: name, axes: append([]Axis(nil), axes...)}
	for _, ax := range a.axes {
		if err := ax.Validate(); err != nil {
			return nil, err
		}
	}
	for _, opt := range opts {
		if err := opt(a); err != nil {
			return nil, err
		}
	}
	if a.exposure != nil && a.model == "" {
		return nil, errs.Config(component, name, "exposure normalisation needs a weight model")
	}

	a.strides = make([]int, len(a.axes))
	size := 1
	for i := len(a.axes) - 1; i >= 0; i-- {
		a.strides[i] = size
		size *= a.axes[i].Bins()
	}
	a.values = make([]float64, size)
	a.sumw2 = make([]float64, size)
	return a, nil
}

func (a *Aggregator) Name() string { return a.name }

func (a *Aggregator) Axes() []Axis { return append([]Axis(nil), a.axes...) }

func (a *Aggregator) Stats() Stats { return a.stats }

// Accumulate bins r and reports whether it was counted. A record outside the
// range of any axis, or missing the configured weight, is skipped.
func (a *Aggregator) Accumulate(r *event.Record) bool {
	flat := 0
	for i, ax := range a.axes {
		v, _ := ax.Variable.Value(r)
		j, ok := ax.Index(v)
		if !ok {
			a.stats.OutOfRange++
			return false
		}
		flat += j * a.strides[i]
	}

	w := 1.0
	if a.model != "" {
		v, err := r.Weights().Get(a.model)
		if err != nil {
			a.stats.MissingWeight++
			return false
		}
		w = v
		if a.exposure != nil {
			p := r.PrimaryWeight()
			if !(p > 0) {
				a.stats.MissingWeight++
				return false
			}
			w = w / p * a.exposure.Factor()
		}
	}
	if a.bootstrap != nil {
		w *= a.bootstrap.Rand()
	}

	a.values[flat] += w
	a.sumw2[flat] += w * w
	a.stats.Accepted++
	return true
}

func (a *Aggregator) flat(idx []int) (int, bool) {
	if len(idx) != len(a.axes) {
		return 0, false
	}
	flat := 0
	for i, j := range idx {
		if j < 0 || j >= a.axes[i].Bins() {
			return 0, false
		}
		flat += j * a.strides[i]
	}
	return flat, true
}

// Value returns the content of the bin at the given per-axis indices, or 0
// for an index outside the histogram.
func (a *Aggregator) Value(idx ...int) float64 {
	i, ok := a.flat(idx)
	if !ok {
		return 0
	}
	return a.values[i]
}

func (a *Aggregator) Integral() float64 {
	var s float64
	for _, v := range a.values {
		s += v
	}
	return s
}

// Edges returns the bin edges of axis i.
func (a *Aggregator) Edges(i int) []float64 {
	if i < 0 || i >= len(a.axes) {
		return nil
	}
	return a.axes[i].Edges()
}

// Snapshot copies the current state. Later accumulation does not affect it.
func (a *Aggregator) Snapshot() Snapshot {
	s := Snapshot{
		Name:   a.name,
		Weight: a.model,
		Values: append([]float64(nil), a.values...),
		SumW2:  append([]float64(nil), a.sumw2...),
		Stats:  a.stats,
	}
	for _, ax := range a.axes {
		s.Axes = append(s.Axes, AxisSnapshot{
			Variable: ax.Variable,
			Label:    ax.Variable.Label(),
			Edges:    ax.Edges(),
		})
	}
	return s
}
