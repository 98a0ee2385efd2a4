package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/decibelcooper/uhepipe"
	"github.com/decibelcooper/uhepipe/internal/codec"
	"github.com/decibelcooper/uhepipe/internal/config"
	"github.com/decibelcooper/uhepipe/internal/flux"
	"github.com/decibelcooper/uhepipe/internal/pipeline"
)

var (
	flags      uhepipe.CommonFlags
	model      string
	name       string
	minNDOMs   int
	powerLaw   float64
	propMatrix string
	compress   bool
	listModels bool
)

var rootCmd = &cobra.Command{
	Use:   "fillweights [options] <input-file> <output-file>",
	Short: "Attach flux-model weights to every record",
	Long: `Evaluates a flux model at the MC-truth energy and direction of every
record and stores the value under a weight name, replacing any value already
stored under that name. Records below --min-ndoms get a zero weight.

With --prop-matrix, each record also gets the energy profile read from the
column of a propagation matrix at its MC-truth energy.`,
	SilenceUsage: true,
	Args: func(cmd *cobra.Command, args []string) error {
		if listModels {
			return nil
		}
		return cobra.ExactArgs(2)(cmd, args)
	},
	RunE: runFill,
}

func init() {
	flags.Register(rootCmd.Flags())
	fs := rootCmd.Flags()
	fs.StringVarP(&model, "model", "m", "corsika", "flux model ("+strings.Join(flux.Names(), ", ")+")")
	fs.StringVarP(&name, "name", "n", "", "weight name (default: the model name)")
	fs.IntVar(&minNDOMs, "min-ndoms", 32, "records with fewer launched DOMs get a zero weight")
	fs.Float64Var(&powerLaw, "primary-power-law", 0, "also fill the primary weight from an E^-index generation spectrum")
	fs.StringVar(&propMatrix, "prop-matrix", "", "YAML propagation matrix to fill energy profiles from")
	fs.BoolVar(&compress, "compress", false, "lz4-compress record payloads")
	fs.BoolVar(&listModels, "list-models", false, "print the known flux models and exit")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runFill(cmd *cobra.Command, args []string) error {
	if listModels {
		for _, n := range flux.Names() {
			fmt.Fprintln(cmd.OutOrStdout(), n)
		}
		return nil
	}

	m, err := flux.Lookup(model)
	if err != nil {
		return err
	}
	if name == "" {
		name = model
	}
	fillers := []pipeline.WeightFiller{pipeline.Filler{Name: name, Model: m, MinNDOMs: minNDOMs}}
	if cmd.Flags().Changed("primary-power-law") {
		spectrum := flux.PowerLaw{Index: powerLaw, LogEMin: flux.DefaultPrimary.LogEMin, LogEMax: flux.DefaultPrimary.LogEMax}
		if err := spectrum.Validate(); err != nil {
			return err
		}
		fillers = append(fillers, pipeline.PrimaryFiller{Spectrum: spectrum})
	}

	s, err := flags.Start("fillweights")
	if err != nil {
		return err
	}
	defer s.Close()

	if propMatrix != "" {
		m, err := config.LoadMatrix(propMatrix)
		if err != nil {
			return err
		}
		pf, err := pipeline.NewProfileFiller(s.Config.Grid, m, minNDOMs)
		if err != nil {
			return err
		}
		fillers = append(fillers, pf)
	}

	in, outPath := args[0], args[1]
	out, err := os.Create(outPath)
	if err != nil {
		return err
	}
	var opts []codec.EncoderOption
	if compress {
		opts = append(opts, codec.WithCompression())
	}
	enc := codec.NewEncoder(out, opts...)

	p, err := s.Pipeline(false, pipeline.WithFillers(fillers...), pipeline.WithSink(enc))
	if err != nil {
		out.Close()
		return err
	}
	rep, runErr := p.RunFile(in)
	if err := s.Record(cmd.Context(), rep); err != nil {
		s.Log.Error("Recording run", zap.Error(err))
	}
	if err := out.Close(); err != nil && runErr == nil {
		runErr = fmt.Errorf("close %s: %w", outPath, err)
	}
	if runErr != nil {
		return runErr
	}
	s.Log.Info("Weights filled",
		zap.String("model", model),
		zap.String("name", name),
		zap.Int("records", rep.Written),
	)
	return nil
}
