package pipeline

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/decibelcooper/uhepipe/internal/codec"
	"github.com/decibelcooper/uhepipe/internal/histogram"
)

// Extent is the observed range of one variable.
type Extent struct {
	Min, Max float64
	N        int
}

func (e *Extent) add(x float64) {
	if e.N == 0 {
		e.Min, e.Max = x, x
	} else {
		e.Min = math.Min(e.Min, x)
		e.Max = math.Max(e.Max, x)
	}
	e.N++
}

type Domain map[histogram.Variable]Extent

// Fit sizes every AutoMax axis from the observed data. Axes whose variable
// was never observed keep a single bin. Other axes are returned unchanged.
func (d Domain) Fit(axes []histogram.Axis) []histogram.Axis {
	out := make([]histogram.Axis, len(axes))
	for i, ax := range axes {
		if ax.AutoMax && ax.BinWidth > 0 {
			ext := d[ax.Variable]
			if ext.N == 0 {
				ext.Max = ax.Min
			}
			ax = ax.WithDataMax(ext.Max)
		}
		out[i] = ax
	}
	return out
}

// Scan makes a first pass over src that records the extent of vars among the
// records surviving the bad-run filter and selection. Nothing is filled,
// aggregated or written.
func (p *Pipeline) Scan(src io.Reader, vars ...histogram.Variable) (Domain, error) {
	for _, v := range vars {
		if !v.Known() {
			return nil, fmt.Errorf("scan: unknown variable %q", string(v))
		}
	}
	dom := make(Domain, len(vars))
	dec := codec.NewDecoder(src, p.grid)
	for {
		r, err := dec.Decode()
		if errors.Is(err, io.EOF) {
			return dom, nil
		}
		if err != nil {
			return dom, fmt.Errorf("scan: %w", err)
		}
		if p.badRuns != nil && p.badRuns.Excluded(r.RunID) {
			continue
		}
		if v, ok := p.View(); ok {
			r.SetView(v)
		}
		if !p.criteria.Pass(r) {
			continue
		}
		for _, v := range vars {
			x, _ := v.Value(r)
			if math.IsNaN(x) || math.IsInf(x, 0) {
				continue
			}
			ext := dom[v]
			ext.add(x)
			dom[v] = ext
		}
	}
}

// ScanFiles scans each file in turn into one domain.
func (p *Pipeline) ScanFiles(paths []string, vars ...histogram.Variable) (Domain, error) {
	dom := make(Domain, len(vars))
	for _, path := range paths {
		d, err := p.scanFile(path, vars)
		if err != nil {
			return dom, err
		}
		for v, ext := range d {
			cur := dom[v]
			if ext.N > 0 {
				cur.add(ext.Min)
				cur.add(ext.Max)
				cur.N += ext.N - 2
			}
			dom[v] = cur
		}
	}
	return dom, nil
}

func (p *Pipeline) scanFile(path string, vars []histogram.Variable) (Domain, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	d, err := p.Scan(f, vars...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return d, nil
}
