// Package config loads the YAML analysis file shared by the tools and turns
// it into pipeline building blocks.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/decibelcooper/uhepipe/internal/criteria"
	"github.com/decibelcooper/uhepipe/internal/errs"
	"github.com/decibelcooper/uhepipe/internal/event"
	"github.com/decibelcooper/uhepipe/internal/histogram"
	"github.com/decibelcooper/uhepipe/internal/pipeline"
)

type Config struct {
	// View forces every record into one view; empty keeps the stored view.
	View    string `yaml:"view"`
	LogMode string `yaml:"log_mode"`
	// Ledger is the SQLite run ledger path; empty disables it.
	Ledger string `yaml:"ledger"`

	Grid       event.EnergyGrid `yaml:"grid"`
	BadRuns    BadRuns          `yaml:"bad_runs"`
	Criteria   Criteria         `yaml:"criteria"`
	Histograms []Histogram      `yaml:"histograms"`
}

// BadRuns lists runs as "N" or "N-M".
type BadRuns struct {
	Exclude []string `yaml:"exclude"`
	Valid   string   `yaml:"valid"`
}

// Criteria mirrors the criteria options. Nil entries install no rule.
type Criteria struct {
	MinLogNpe        *float64        `yaml:"min_log_npe"`
	MinNDOMs         *int            `yaml:"min_ndoms"`
	CosZenithWindow  *Window         `yaml:"cos_zenith_window"`
	CosZenithCut     *Cut            `yaml:"cos_zenith_cut"`
	NpeCut           *Cut            `yaml:"npe_cut"`
	MinimumBound     *MinimumBound   `yaml:"minimum_bound"`
	MaxDistance      *MaxDistance    `yaml:"max_distance"`
	MinFGQuality     *float64        `yaml:"min_fg_quality"`
	COBZ             *criteria.Range `yaml:"cobz"`
	NpeScaling       *float64        `yaml:"npe_scaling"`
	SuperCut         bool            `yaml:"super_cut"`
	SuperCutMinNDOMs *int            `yaml:"super_cut_min_ndoms"`
}

type Window struct {
	Min   float64 `yaml:"min"`
	Max   float64 `yaml:"max"`
	Floor float64 `yaml:"floor"`
}

// Cut is a one-sided bound. Below keeps values under the bound.
type Cut struct {
	Value float64 `yaml:"value"`
	Below bool    `yaml:"below"`
}

type MinimumBound struct {
	LogNpe0       float64 `yaml:"log_npe0"`
	LogNpeSpan    float64 `yaml:"log_npe_span"`
	CosZenith0    float64 `yaml:"cos_zenith0"`
	CosZenithSpan float64 `yaml:"cos_zenith_span"`
}

type MaxDistance struct {
	Distance  float64    `yaml:"distance"`
	Reference [3]float64 `yaml:"reference"`
}

// Histogram describes one aggregator. An axis with auto_max is sized from a
// scan of the input.
type Histogram struct {
	Name      string              `yaml:"name"`
	Axes      []histogram.Axis    `yaml:"axes"`
	Weight    string              `yaml:"weight"`
	Exposure  *histogram.Exposure `yaml:"exposure"`
	Bootstrap bool                `yaml:"bootstrap"`
}

type envOverrides struct {
	View    *string `env:"UHE_VIEW"`
	LogMode *string `env:"UHE_LOG_MODE"`
	Ledger  *string `env:"UHE_LEDGER"`
}

func Default() Config {
	bad := make([]string, len(pipeline.DefaultBadRuns))
	for i, r := range pipeline.DefaultBadRuns {
		bad[i] = r.String()
	}
	return Config{
		LogMode: "dev",
		Grid:    event.DefaultEnergyGrid,
		BadRuns: BadRuns{Exclude: bad},
	}
}

// Load reads the analysis file at path over the defaults and applies the
// environment overrides. A missing file leaves the defaults in place.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return cfg, fmt.Errorf("read config: %w", err)
		default:
			if err := cfg.decode(data); err != nil {
				return cfg, fmt.Errorf("%s: %w", path, err)
			}
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func (c *Config) decode(data []byte) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	var raw envOverrides
	if err := env.Parse(&raw); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	if raw.View != nil {
		c.View = *raw.View
	}
	if raw.LogMode != nil {
		c.LogMode = *raw.LogMode
	}
	if raw.Ledger != nil {
		c.Ledger = *raw.Ledger
	}
	return nil
}

// Validate builds every component once so configuration mistakes surface
// before any record is read.
func (c Config) Validate() error {
	if _, _, err := c.ActiveView(); err != nil {
		return err
	}
	if err := c.Grid.Validate(); err != nil {
		return err
	}
	if _, err := c.BadRunFilter(); err != nil {
		return err
	}
	if _, err := c.BuildCriteria(); err != nil {
		return err
	}
	seen := make(map[string]bool, len(c.Histograms))
	for i, h := range c.Histograms {
		if h.Name == "" {
			return errs.Config("config", fmt.Sprintf("histograms[%d].name", i), "is required")
		}
		if seen[h.Name] {
			return errs.Config("config", fmt.Sprintf("histograms[%d].name", i), "duplicate name %q", h.Name)
		}
		seen[h.Name] = true
		for j, ax := range h.Axes {
			if ax.AutoMax && ax.Max != 0 {
				return errs.Config("config", fmt.Sprintf("histograms[%d].axes[%d]", i, j), "max and auto_max are exclusive")
			}
		}
		if _, err := h.build(pipeline.Domain(nil).Fit(h.Axes)); err != nil {
			return err
		}
	}
	return nil
}

func (c Config) ActiveView() (event.View, bool, error) {
	if c.View == "" {
		return 0, false, nil
	}
	v, err := event.ParseView(c.View)
	if err != nil {
		return 0, false, errs.Config("config", "view", "%v", err)
	}
	return v, true, nil
}

func (c Config) BadRunFilter() (pipeline.BadRunFilter, error) {
	var f pipeline.BadRunFilter
	for _, s := range c.BadRuns.Exclude {
		r, err := pipeline.ParseRunRange(s)
		if err != nil {
			return f, errs.Config("config", "bad_runs.exclude", "%v", err)
		}
		f.Exclude = append(f.Exclude, r)
	}
	if c.BadRuns.Valid != "" {
		r, err := pipeline.ParseRunRange(c.BadRuns.Valid)
		if err != nil {
			return f, errs.Config("config", "bad_runs.valid", "%v", err)
		}
		f.Valid = &r
	}
	return f, f.Validate()
}

func (c Config) BuildCriteria() (*criteria.Criteria, error) {
	k := c.Criteria
	var opts []criteria.Option
	if k.MinLogNpe != nil {
		opts = append(opts, criteria.WithMinLogNpe(*k.MinLogNpe))
	}
	if k.MinNDOMs != nil {
		opts = append(opts, criteria.WithMinNDOMs(*k.MinNDOMs))
	}
	if w := k.CosZenithWindow; w != nil {
		opts = append(opts, criteria.WithCosZenithWindow(w.Min, w.Max, w.Floor))
	}
	if cut := k.CosZenithCut; cut != nil {
		opts = append(opts, criteria.WithSimpleCosZenithCut(cut.Value, cut.Below))
	}
	if cut := k.NpeCut; cut != nil {
		opts = append(opts, criteria.WithSimpleNpeCut(cut.Value, !cut.Below))
	}
	if b := k.MinimumBound; b != nil {
		opts = append(opts, criteria.WithMinimumBound(b.LogNpe0, b.LogNpeSpan, b.CosZenith0, b.CosZenithSpan))
	}
	if d := k.MaxDistance; d != nil {
		ref := event.Vec3{X: d.Reference[0], Y: d.Reference[1], Z: d.Reference[2]}
		opts = append(opts, criteria.WithMaxDistance(d.Distance, ref))
	}
	if k.MinFGQuality != nil {
		opts = append(opts, criteria.WithMinFirstGuessQuality(*k.MinFGQuality))
	}
	if r := k.COBZ; r != nil {
		opts = append(opts, criteria.WithCOBZRange(r.Min, r.Max))
	}
	if k.NpeScaling != nil {
		opts = append(opts, criteria.WithNpeScaling(*k.NpeScaling))
	}
	if k.SuperCut {
		sc := criteria.DefaultSuperCut()
		if k.SuperCutMinNDOMs != nil {
			sc.MinNDOMs = *k.SuperCutMinNDOMs
		}
		opts = append(opts, criteria.WithSuperCut(sc))
	}
	return criteria.New(opts...)
}

// ScanVariables lists the variables of auto_max axes, which need a domain
// scan before the aggregators can be built.
func (c Config) ScanVariables() []histogram.Variable {
	var vars []histogram.Variable
	seen := make(map[histogram.Variable]bool)
	for _, h := range c.Histograms {
		for _, ax := range h.Axes {
			if ax.AutoMax && !seen[ax.Variable] {
				seen[ax.Variable] = true
				vars = append(vars, ax.Variable)
			}
		}
	}
	return vars
}

// Aggregators builds one aggregator per histogram, sizing auto_max axes
// from dom.
func (c Config) Aggregators(dom pipeline.Domain) ([]*histogram.Aggregator, error) {
	aggs := make([]*histogram.Aggregator, 0, len(c.Histograms))
	for _, h := range c.Histograms {
		a, err := h.build(dom.Fit(h.Axes))
		if err != nil {
			return nil, err
		}
		aggs = append(aggs, a)
	}
	return aggs, nil
}

func (h Histogram) build(axes []histogram.Axis) (*histogram.Aggregator, error) {
	var opts []histogram.Option
	if h.Weight != "" {
		opts = append(opts, histogram.Weighted(h.Weight))
	}
	if h.Exposure != nil {
		opts = append(opts, histogram.WithExposure(*h.Exposure))
	}
	if h.Bootstrap {
		opts = append(opts, histogram.WithBootstrap())
	}
	return histogram.New(h.Name, axes, opts...)
}

// LoadMatrix reads a propagation matrix stored as a YAML list of rows,
// m[in][out] over the analysis energy grid.
func LoadMatrix(path string) ([][]float64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read matrix: %w", err)
	}
	var m [][]float64
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%s: parse matrix: %w", path, err)
	}
	if len(m) == 0 {
		return nil, errs.Config("config", "matrix", "%s holds no rows", path)
	}
	return m, nil
}
