package uhepipe

import (
	"context"
	"fmt"

	"github.com/pkg/profile"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/decibelcooper/uhepipe/internal/config"
	"github.com/decibelcooper/uhepipe/internal/ledger"
	"github.com/decibelcooper/uhepipe/internal/logging"
	"github.com/decibelcooper/uhepipe/internal/pipeline"
)

// CommonFlags are the flags every tool accepts. Flags given on the command
// line win over the analysis file and the environment.
type CommonFlags struct {
	ConfigPath string
	LogMode    string
	Verbose    bool
	Profile    string
	Ledger     string
	View       ViewFlag
	BadRuns    RunRangesFlag
}

func (f *CommonFlags) Register(fs *pflag.FlagSet) {
	fs.StringVarP(&f.ConfigPath, "config", "c", "", "analysis YAML file")
	fs.StringVar(&f.LogMode, "log-mode", "", "log format: dev or prod")
	fs.BoolVarP(&f.Verbose, "verbose", "v", false, "log every excluded record")
	fs.StringVar(&f.Profile, "profile", "", "write a CPU profile to this directory")
	fs.StringVar(&f.Ledger, "ledger", "", "SQLite run ledger")
	fs.Var(&f.View, "view", "force records into a view: reco or mc")
	fs.Var(&f.BadRuns, "exclude-runs", "runs to exclude, N or N-M (repeatable)")
}

// Session carries what a tool needs for one invocation.
type Session struct {
	Tool   string
	Config config.Config
	Log    *zap.Logger

	ledger *ledger.Ledger
	prof   interface{ Stop() }
}

// Start loads the configuration and opens the logger, the ledger and the
// profiler. The caller must Close the session.
func (f *CommonFlags) Start(tool string) (*Session, error) {
	cfg, err := config.Load(f.ConfigPath)
	if err != nil {
		return nil, err
	}
	if f.LogMode != "" {
		cfg.LogMode = f.LogMode
	}
	if f.Ledger != "" {
		cfg.Ledger = f.Ledger
	}
	if f.View.IsSet {
		cfg.View = f.View.String()
	}
	if f.BadRuns.Changed() {
		cfg.BadRuns.Exclude = nil
		for _, r := range f.BadRuns.Ranges {
			cfg.BadRuns.Exclude = append(cfg.BadRuns.Exclude, r.String())
		}
	}

	log, err := logging.New(cfg.LogMode, f.Verbose)
	if err != nil {
		return nil, err
	}
	s := &Session{Tool: tool, Config: cfg, Log: log.Named(tool)}
	if cfg.Ledger != "" {
		if s.ledger, err = ledger.Open(cfg.Ledger); err != nil {
			_ = log.Sync()
			return nil, err
		}
	}
	if f.Profile != "" {
		s.prof = profile.Start(profile.CPUProfile, profile.ProfilePath(f.Profile), profile.Quiet)
	}
	return s, nil
}

// Pipeline builds a pipeline from the session configuration plus opts. The
// bad-run filter and the selection are installed only when selecting is set.
func (s *Session) Pipeline(selecting bool, opts ...pipeline.Option) (*pipeline.Pipeline, error) {
	base := []pipeline.Option{
		pipeline.WithGrid(s.Config.Grid),
		pipeline.WithLogger(s.Log),
	}
	if selecting {
		badRuns, err := s.Config.BadRunFilter()
		if err != nil {
			return nil, err
		}
		c, err := s.Config.BuildCriteria()
		if err != nil {
			return nil, err
		}
		base = append(base, pipeline.WithBadRuns(badRuns), pipeline.WithCriteria(c))
	}
	if v, ok, err := s.Config.ActiveView(); err != nil {
		return nil, err
	} else if ok {
		base = append(base, pipeline.WithView(v))
	}
	return pipeline.New(append(base, opts...)...)
}

// Record writes reports to the ledger, if one is configured.
func (s *Session) Record(ctx context.Context, reports ...pipeline.Report) error {
	if s.ledger == nil {
		return nil
	}
	for _, rep := range reports {
		if err := s.ledger.Record(ctx, s.Tool, rep); err != nil {
			return fmt.Errorf("ledger: %w", err)
		}
	}
	return nil
}

// Runs lists the ledger entries, oldest first; with incompleteOnly only the
// runs that stopped on an error.
func (s *Session) Runs(ctx context.Context, incompleteOnly bool) ([]ledger.Entry, error) {
	if s.ledger == nil {
		return nil, fmt.Errorf("no run ledger configured (use --ledger or UHE_LEDGER)")
	}
	return s.ledger.Runs(ctx, incompleteOnly)
}

func (s *Session) Close() {
	if s.prof != nil {
		s.prof.Stop()
	}
	if s.ledger != nil {
		if err := s.ledger.Close(); err != nil {
			s.Log.Warn("Closing ledger", zap.Error(err))
		}
	}
	_ = s.Log.Sync()
}
