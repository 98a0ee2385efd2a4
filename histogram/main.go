package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/decibelcooper/uhepipe"
	"github.com/decibelcooper/uhepipe/internal/codec"
	"github.com/decibelcooper/uhepipe/internal/histogram"
	"github.com/decibelcooper/uhepipe/internal/pipeline"
)

var (
	flags   uhepipe.CommonFlags
	prefix  string
	title   string
	format  string
	skim    string
	compare []string
)

var rootCmd = &cobra.Command{
	Use:   "histogram [options] <input-files>...",
	Short: "Select records and fill the histograms of an analysis file",
	Long: `Applies the bad-run filter and the selection of the analysis file to
every input and fills its histograms. Each one- or two-dimensional histogram
is drawn to <output><name>.<format>, and all bin contents are written to
<output>histograms.yaml together with the run reports.

Axes marked auto_max are sized by a first pass over the inputs.`,
	Args:         cobra.MinimumNArgs(1),
	SilenceUsage: true,
	RunE:         runHistogram,
}

func init() {
	flags.Register(rootCmd.Flags())
	fs := rootCmd.Flags()
	fs.StringVarP(&prefix, "output", "o", "", "output path prefix")
	fs.StringVar(&title, "title", "", "plot title")
	fs.StringVar(&format, "format", "png", "plot format: png, pdf or svg")
	fs.StringVar(&skim, "skim", "", "also write the selected records to this file")
	fs.StringSliceVar(&compare, "compare", nil, "two histogram names to compare with a chi2 test")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

type runSummary struct {
	Source            string `yaml:"source"`
	ID                string `yaml:"id"`
	Decoded           int    `yaml:"decoded"`
	BadRunExcluded    int    `yaml:"bad_run_excluded"`
	SelectionRejected int    `yaml:"selection_rejected"`
	Aggregated        int    `yaml:"aggregated"`
	OutOfRange        int    `yaml:"out_of_range"`
	MissingWeight     int    `yaml:"missing_weight"`
	State             string `yaml:"state"`
	Incomplete        bool   `yaml:"incomplete"`
}

type dump struct {
	Runs       []runSummary         `yaml:"runs"`
	Histograms []histogram.Snapshot `yaml:"histograms"`
}

func runHistogram(cmd *cobra.Command, args []string) error {
	if len(compare) != 0 && len(compare) != 2 {
		return fmt.Errorf("--compare takes exactly two histogram names")
	}
	s, err := flags.Start("histogram")
	if err != nil {
		return err
	}
	defer s.Close()

	if len(s.Config.Histograms) == 0 {
		s.Log.Warn("No histograms configured")
	}

	var dom pipeline.Domain
	if vars := s.Config.ScanVariables(); len(vars) > 0 {
		scan, err := s.Pipeline(true)
		if err != nil {
			return err
		}
		if dom, err = scan.ScanFiles(args, vars...); err != nil {
			return err
		}
		for v, ext := range dom {
			s.Log.Debug("Domain scanned", zap.String("variable", string(v)),
				zap.Float64("min", ext.Min), zap.Float64("max", ext.Max), zap.Int("n", ext.N))
		}
	}
	aggs, err := s.Config.Aggregators(dom)
	if err != nil {
		return err
	}

	opts := []pipeline.Option{pipeline.WithAggregators(aggs...)}
	var skimOut *os.File
	if skim != "" {
		if skimOut, err = os.Create(skim); err != nil {
			return err
		}
		defer skimOut.Close()
		opts = append(opts, pipeline.WithSink(codec.NewEncoder(skimOut)))
	}
	p, err := s.Pipeline(true, opts...)
	if err != nil {
		return err
	}

	reports, runErr := p.RunFiles(args...)
	if err := s.Record(cmd.Context(), reports...); err != nil {
		s.Log.Error("Recording runs", zap.Error(err))
	}
	if runErr != nil {
		// what was accumulated before the failure is still written out
		s.Log.Error("Input incomplete", zap.Error(runErr))
	}

	out := dump{}
	for _, rep := range reports {
		out.Runs = append(out.Runs, runSummary{
			Source:            rep.Source,
			ID:                rep.ID.String(),
			Decoded:           rep.Decoded,
			BadRunExcluded:    rep.BadRunExcluded,
			SelectionRejected: rep.SelectionRejected,
			Aggregated:        rep.Aggregated,
			OutOfRange:        rep.OutOfRange,
			MissingWeight:     rep.MissingWeight,
			State:             rep.State.String(),
			Incomplete:        rep.Incomplete,
		})
	}
	snaps := make(map[string]histogram.Snapshot, len(aggs))
	var g errgroup.Group
	g.SetLimit(4)
	for _, a := range aggs {
		snap := a.Snapshot()
		snaps[snap.Name] = snap
		out.Histograms = append(out.Histograms, snap)
		g.Go(func() error { return draw(snap) })
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if err := writeYAML(prefix+"histograms.yaml", out); err != nil {
		return err
	}

	if len(compare) == 2 {
		if err := compareSnapshots(s.Log, snaps, compare[0], compare[1]); err != nil {
			return err
		}
	}
	return runErr
}

func draw(snap histogram.Snapshot) error {
	path := prefix + snap.Name + "." + strings.TrimPrefix(format, ".")
	t := title
	if t == "" {
		t = snap.Name
	}
	switch len(snap.Axes) {
	case 1:
		return uhepipe.SaveH1D(path, t, snap)
	case 2:
		if format != "png" {
			return fmt.Errorf("%s: two-dimensional histograms are drawn as png only", snap.Name)
		}
		return uhepipe.SaveHeatMap(path, t, snap)
	}
	return nil
}

func compareSnapshots(log *zap.Logger, snaps map[string]histogram.Snapshot, a, b string) error {
	sa, ok := snaps[a]
	if !ok {
		return fmt.Errorf("no histogram %q", a)
	}
	sb, ok := snaps[b]
	if !ok {
		return fmt.Errorf("no histogram %q", b)
	}
	cmp, err := histogram.Chi2(sa, sb, 0, len(sa.Values)-1)
	if err != nil {
		return err
	}
	log.Info("Histograms compared",
		zap.String("a", a), zap.String("b", b),
		zap.Float64("chi2", cmp.Chi2), zap.Int("ndf", cmp.NDF), zap.Float64("p_value", cmp.PValue),
	)
	return nil
}

func writeYAML(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	enc := yaml.NewEncoder(f)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := enc.Close(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
