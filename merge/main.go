package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/decibelcooper/uhepipe"
	"github.com/decibelcooper/uhepipe/internal/codec"
	"github.com/decibelcooper/uhepipe/internal/pipeline"
)

var (
	flags    uhepipe.CommonFlags
	output   string
	compress bool
	selectOn bool
)

var rootCmd = &cobra.Command{
	Use:   "merge [options] <input-files>...",
	Short: "Concatenate record files into one",
	Long: `Reads every input to its end, in order, and writes all records to a
single output file. With --select the bad-run filter and the selection of
the analysis file are applied on the way.`,
	Args:         cobra.MinimumNArgs(1),
	SilenceUsage: true,
	RunE:         runMerge,
}

func init() {
	flags.Register(rootCmd.Flags())
	rootCmd.Flags().StringVarP(&output, "output", "o", "merged.uhe", "output file")
	rootCmd.Flags().BoolVar(&compress, "compress", false, "lz4-compress record payloads")
	rootCmd.Flags().BoolVar(&selectOn, "select", false, "apply bad-run exclusion and selection")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runMerge(cmd *cobra.Command, args []string) error {
	s, err := flags.Start("merge")
	if err != nil {
		return err
	}
	defer s.Close()

	out, err := os.Create(output)
	if err != nil {
		return err
	}
	var opts []codec.EncoderOption
	if compress {
		opts = append(opts, codec.WithCompression())
	}
	enc := codec.NewEncoder(out, opts...)

	p, err := s.Pipeline(selectOn, pipeline.WithSink(enc))
	if err != nil {
		out.Close()
		return err
	}
	reports, runErr := p.RunFiles(args...)
	if err := s.Record(cmd.Context(), reports...); err != nil {
		s.Log.Error("Recording runs", zap.Error(err))
	}
	if err := out.Close(); err != nil && runErr == nil {
		runErr = fmt.Errorf("close %s: %w", output, err)
	}
	if runErr != nil {
		return runErr
	}

	s.Log.Info("Merged",
		zap.Int("inputs", len(args)),
		zap.Int("written", enc.Count()),
		zap.String("output", output),
	)
	return nil
}
