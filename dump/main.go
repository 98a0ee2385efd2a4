package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/decibelcooper/uhepipe"
	"github.com/decibelcooper/uhepipe/internal/event"
	"github.com/decibelcooper/uhepipe/internal/ledger"
	"github.com/decibelcooper/uhepipe/internal/pipeline"
)

var (
	flags    uhepipe.CommonFlags
	limit    int
	selectOn bool
	weights  bool
	listRuns bool
)

var rootCmd = &cobra.Command{
	Use:          "dump [options] <input-files>...",
	Short:        "Print records one per line",
	SilenceUsage: true,
	Args: func(cmd *cobra.Command, args []string) error {
		if listRuns {
			return cobra.NoArgs(cmd, args)
		}
		return cobra.MinimumNArgs(1)(cmd, args)
	},
	RunE: runDump,
}

func init() {
	flags.Register(rootCmd.Flags())
	fs := rootCmd.Flags()
	fs.IntVarP(&limit, "limit", "n", 0, "print at most this many records (0 for all)")
	fs.BoolVar(&selectOn, "select", false, "mark records against the selection of the analysis file")
	fs.BoolVarP(&weights, "weights", "w", false, "print the weight table of each record")
	fs.BoolVar(&listRuns, "list-incomplete", false, "list the runs in the ledger that stopped on an error and exit")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runDump(cmd *cobra.Command, args []string) error {
	s, err := flags.Start("dump")
	if err != nil {
		return err
	}
	defer s.Close()

	w := cmd.OutOrStdout()
	if listRuns {
		entries, err := s.Runs(cmd.Context(), true)
		if err != nil {
			return err
		}
		for _, e := range entries {
			printEntry(w, e)
		}
		return nil
	}

	printed := 0
	printer := func(r *event.Record, passed bool) {
		if limit > 0 && printed >= limit {
			return
		}
		printed++
		printRecord(w, r, passed)
	}
	p, err := s.Pipeline(selectOn, pipeline.WithObserver(printer))
	if err != nil {
		return err
	}
	reports, runErr := p.RunFiles(args...)
	if err := s.Record(cmd.Context(), reports...); err != nil {
		s.Log.Error("Recording runs", zap.Error(err))
	}
	return runErr
}

func printEntry(w io.Writer, e ledger.Entry) {
	fmt.Fprintf(w, "%s %s %-12s %s decoded=%d aggregated=%d written=%d error=%q\n",
		e.Started.Format(time.RFC3339), e.ID, e.Tool, e.Source,
		e.Decoded, e.Aggregated, e.Written, e.Error)
}

func printRecord(w io.Writer, r *event.Record, passed bool) {
	mark := " "
	if selectOn && passed {
		mark = "*"
	}
	fmt.Fprintf(w, "%s %v\n", mark, r)
	if !weights {
		return
	}
	for name, v := range r.Weights().All() {
		fmt.Fprintf(w, "      %-20s %.6g\n", name, v)
	}
	if r.PrimaryWeight() != 0 {
		fmt.Fprintf(w, "      %-20s %.6g\n", "(primary)", r.PrimaryWeight())
	}
}
