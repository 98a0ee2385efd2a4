package histogram

import (
	"errors"
	"fmt"

	"go-hep.org/x/hep/hbook"
	"gonum.org/v1/gonum/stat/distuv"
)

type AxisSnapshot struct {
	Variable Variable  `yaml:"variable"`
	Label    string    `yaml:"label"`
	Edges    []float64 `yaml:"edges"`
}

func (a AxisSnapshot) Bins() int { return len(a.Edges) - 1 }

func (a AxisSnapshot) center(i int) float64 {
	return 0.5 * (a.Edges[i] + a.Edges[i+1])
}

// Snapshot is an immutable copy of an aggregator's bins. Values are stored
// row-major with the last axis varying fastest.
type Snapshot struct {
	Name   string         `yaml:"name"`
	Weight string         `yaml:"weight,omitempty"`
	Axes   []AxisSnapshot `yaml:"axes"`
	Values []float64      `yaml:"values"`
	SumW2  []float64      `yaml:"sumw2"`
	Stats  Stats          `yaml:"stats"`
}

func (s Snapshot) Integral() float64 {
	var sum float64
	for _, v := range s.Values {
		sum += v
	}
	return sum
}

// The methods below let a two-dimensional snapshot be drawn directly as a
// heat map (plotter.GridXYZ).

func (s Snapshot) Dims() (c, r int) {
	if len(s.Axes) != 2 {
		return 0, 0
	}
	return s.Axes[0].Bins(), s.Axes[1].Bins()
}

func (s Snapshot) Z(c, r int) float64 {
	return s.Values[c*s.Axes[1].Bins()+r]
}

func (s Snapshot) X(c int) float64 { return s.Axes[0].center(c) }

func (s Snapshot) Y(r int) float64 { return s.Axes[1].center(r) }

// H1D converts a one-dimensional snapshot to an hbook histogram.
func (s Snapshot) H1D() (*hbook.H1D, error) {
	if len(s.Axes) != 1 {
		return nil, fmt.Errorf("histogram %s: H1D needs 1 axis, have %d", s.Name, len(s.Axes))
	}
	h := hbook.NewH1DFromEdges(s.Axes[0].Edges)
	h.Annotation()["name"] = s.Name
	for i, v := range s.Values {
		if v != 0 {
			h.Fill(s.Axes[0].center(i), v)
		}
	}
	return h, nil
}

// H2D converts a two-dimensional snapshot to an hbook histogram.
func (s Snapshot) H2D() (*hbook.H2D, error) {
	if len(s.Axes) != 2 {
		return nil, fmt.Errorf("histogram %s: H2D needs 2 axes, have %d", s.Name, len(s.Axes))
	}
	h := hbook.NewH2DFromEdges(s.Axes[0].Edges, s.Axes[1].Edges)
	h.Annotation()["name"] = s.Name
	nx, ny := s.Dims()
	for i := range nx {
		for j := range ny {
			if v := s.Z(i, j); v != 0 {
				h.Fill(s.X(i), s.Y(j), v)
			}
		}
	}
	return h, nil
}

// Comparison is the outcome of a chi-square test between two histograms.
type Comparison struct {
	Chi2   float64 `yaml:"chi2"`
	NDF    int     `yaml:"ndf"`
	PValue float64 `yaml:"p_value"`
}

// Chi2 compares a and b over the flat bin range [first, last]. Bins where
// neither histogram has an uncertainty are skipped.
func Chi2(a, b Snapshot, first, last int) (Comparison, error) {
	if len(a.Values) != len(b.Values) {
		return Comparison{}, errors.New("chi2: histograms differ in size")
	}
	if first < 0 || last >= len(a.Values) || first > last {
		return Comparison{}, fmt.Errorf("chi2: bin range [%d, %d] outside [0, %d)", first, last, len(a.Values))
	}
	var c Comparison
	for i := first; i <= last; i++ {
		v := a.SumW2[i] + b.SumW2[i]
		if v == 0 {
			continue
		}
		d := a.Values[i] - b.Values[i]
		c.Chi2 += d * d / v
		c.NDF++
	}
	if c.NDF == 0 {
		return c, errors.New("chi2: no populated bins")
	}
	c.PValue = distuv.ChiSquared{K: float64(c.NDF)}.Survival(c.Chi2)
	return c, nil
}
