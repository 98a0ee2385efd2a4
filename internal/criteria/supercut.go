package criteria

import (
	"fmt"

	"github.com/decibelcooper/uhepipe/internal/errs"
)

// Category splits events by which digitizer saw more charge and whether the
// reconstructed vertex depth falls in one of the COB-Z windows.
type Category int

const (
	ATWDInside Category = iota
	ATWDOutside
	FADCInside
	FADCOutside

	numCategories
)

func (c Category) String() string {
	switch c {
	case ATWDInside:
		return "atwd-inside"
	case ATWDOutside:
		return "atwd-outside"
	case FADCInside:
		return "fadc-inside"
	case FADCOutside:
		return "fadc-outside"
	}
	return fmt.Sprintf("Category(%d)", int(c))
}

// Vertex is a point of a boundary in the logNpe/cos(zenith) plane.
type Vertex struct {
	LogNpe    float64 `yaml:"log_npe"`
	CosZenith float64 `yaml:"cos_zenith"`
}

// SuperCut applies a per-category piecewise-linear logNpe threshold that
// varies with cos(zenith). Records below MinNDOMs never pass.
type SuperCut struct {
	MinNDOMs   int                     `yaml:"min_ndoms"`
	COBZ       []Range                 `yaml:"cobz"`
	Boundaries [numCategories][]Vertex `yaml:"boundaries"`
}

// DefaultSuperCut returns the boundaries of the EHE analysis.
func DefaultSuperCut() SuperCut {
	poly := func(x, y [5]float64) []Vertex {
		v := make([]Vertex, len(x))
		for i := range x {
			v[i] = Vertex{LogNpe: x[i], CosZenith: y[i]}
		}
		return v
	}
	return SuperCut{
		MinNDOMs: 80,
		COBZ:     []Range{DefaultCOBZ, {Min: 4e6, Max: 5e6}},
		Boundaries: [numCategories][]Vertex{
			poly([5]float64{4.6, 4.6, 5.6, 6.2, 6.5}, [5]float64{-1, 0.1, 0.2, 0.4, 1}),
			poly([5]float64{5.2, 5.2, 5.4, 6.0, 6.0}, [5]float64{-1, 0, 0, 0.4, 1}),
			poly([5]float64{4.3, 4.3, 4.7, 5.45, 5.45}, [5]float64{-1, 0.1, 0.1, 0.5, 1}),
			poly([5]float64{4.1, 4.1, 4.7, 5.45, 5.45}, [5]float64{-1, -0.5, -0.5, 0.3, 1}),
		},
	}
}

func (sc SuperCut) validate() error {
	if sc.MinNDOMs < 0 {
		return errs.Config(component, "super_cut.min_ndoms", "must not be negative, got %d", sc.MinNDOMs)
	}
	if len(sc.COBZ) == 0 {
		return errs.Config(component, "super_cut.cobz", "at least one window is required")
	}
	for _, rg := range sc.COBZ {
		if err := rg.validate("super_cut.cobz"); err != nil {
			return err
		}
	}
	for c, vs := range sc.Boundaries {
		if len(vs) < 2 {
			return errs.Config(component, "super_cut.boundaries", "%s needs at least two vertices", Category(c))
		}
		for _, v := range vs {
			if !finite(v.LogNpe, v.CosZenith) {
				return errs.Config(component, "super_cut.boundaries", "%s has a non-finite vertex", Category(c))
			}
		}
	}
	return nil
}

func (sc SuperCut) clone() SuperCut {
	out := SuperCut{MinNDOMs: sc.MinNDOMs, COBZ: append([]Range(nil), sc.COBZ...)}
	for i, vs := range sc.Boundaries {
		out.Boundaries[i] = append([]Vertex(nil), vs...)
	}
	return out
}

func (sc SuperCut) category(s *sample) Category {
	obs := s.rec.Observables()
	inside := false
	z := cobZ(s.rec)
	for _, rg := range sc.COBZ {
		if rg.Contains(z) {
			inside = true
			break
		}
	}
	switch {
	case obs.NpeATWD >= obs.NpeFADC && inside:
		return ATWDInside
	case obs.NpeATWD >= obs.NpeFADC:
		return ATWDOutside
	case inside:
		return FADCInside
	default:
		return FADCOutside
	}
}

// pass walks the segments of the category boundary. Every segment whose
// cos(zenith) span strictly contains the record sets a logNpe threshold by
// linear interpolation; a record covered by no segment does not pass.
func (sc SuperCut) pass(s *sample) bool {
	if s.rec.NDOMs() < sc.MinNDOMs {
		return false
	}
	vs := sc.Boundaries[sc.category(s)]
	above := false
	for i := 1; i < len(vs); i++ {
		l, r := vs[i-1], vs[i]
		if l.CosZenith == r.CosZenith {
			continue
		}
		if (s.cosZenith-l.CosZenith)*(s.cosZenith-r.CosZenith) >= 0 {
			continue
		}
		slope := (r.LogNpe - l.LogNpe) / (r.CosZenith - l.CosZenith)
		if s.logNpe < l.LogNpe+slope*(s.cosZenith-l.CosZenith) {
			return false
		}
		above = true
	}
	return above
}

// WithSuperCut installs the category-dependent boundary cut.
func WithSuperCut(sc SuperCut) Option {
	return func(c *Criteria) error {
		if err := sc.validate(); err != nil {
			return err
		}
		sc = sc.clone()
		c.set("super_cut", sc.pass)
		return nil
	}
}
