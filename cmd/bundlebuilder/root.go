package main

import (
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/conn-castle/bundlebuilder/internal/charmstore"
	"github.com/conn-castle/bundlebuilder/internal/config"
	"github.com/conn-castle/bundlebuilder/internal/coordinator"
	"github.com/conn-castle/bundlebuilder/internal/envfile"
	"github.com/conn-castle/bundlebuilder/internal/harness"
	"github.com/conn-castle/bundlebuilder/internal/lock"
	"github.com/conn-castle/bundlebuilder/internal/logging"
	"github.com/conn-castle/bundlebuilder/internal/messages"
	"github.com/conn-castle/bundlebuilder/internal/process"
	"github.com/conn-castle/bundlebuilder/internal/signature"
	"github.com/conn-castle/bundlebuilder/internal/source"
)

var getenv = os.Getenv

var newCloner = func(progress io.Writer) source.Cloner {
	return source.GitCloner{Progress: progress}
}

var newRepository = func(cfg *config.Config, runner process.Runner, echo io.Writer) coordinator.Repository {
	store := charmstore.New(cfg.Charm.Binary, runner)
	if cfg.Charm.DryRun {
		return store.WithEchoedMutations(echo)
	}
	return store
}

const (
	flagConfig    = "config"
	flagCIInfo    = "ci-info"
	flagSignature = "signature"
	flagDryRun    = "dry-run"
	flagLock      = "lock"
	flagVerbose   = "verbose"
)

// session is the state shared by subcommands once the root pre-run has resolved settings.
type session struct {
	configPath string
	ciInfo     string
	signature  string
	dryRun     bool
	lock       bool
	verbose    bool

	settings *config.Config
	logger   *zap.Logger
}

func newRootCmd() *cobra.Command {
	s := &session{}
	cmd := &cobra.Command{
		Use:           messages.RootUse,
		Short:         messages.RootShort,
		Long:          messages.RootLong,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return s.init(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if s.logger != nil {
				_ = s.logger.Sync()
			}
		},
	}
	flags := cmd.PersistentFlags()
	flags.StringVar(&s.configPath, flagConfig, "", messages.RootFlagConfig)
	flags.StringVar(&s.ciInfo, flagCIInfo, "", messages.RootFlagCIInfo)
	flags.StringVar(&s.signature, flagSignature, "", messages.RootFlagSignature)
	flags.BoolVar(&s.dryRun, flagDryRun, false, messages.RootFlagDryRun)
	flags.BoolVar(&s.lock, flagLock, false, messages.RootFlagLock)
	flags.BoolVarP(&s.verbose, flagVerbose, "v", false, messages.RootFlagVerbose)

	cmd.AddCommand(newCheckCmd(s), newBuildCmd(s), newJUnitCmd(s))
	return cmd
}

// init loads settings, applies flag overrides and builds the logger.
func (s *session) init(cmd *cobra.Command) error {
	cfg, err := config.Load(s.configPath)
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	if flags.Changed(flagSignature) {
		cfg.State.SignatureFile = s.signature
	}
	if flags.Changed(flagDryRun) {
		cfg.Run.DryRun = s.dryRun
	}
	if flags.Changed(flagLock) {
		cfg.Run.Lock = s.lock
	}
	cfg.Resolve(getenv)
	s.settings = cfg
	s.logger = logging.New(cmd.ErrOrStderr(), s.verbose)
	return nil
}

// newCoordinator wires the store and cloner described by the settings. The
// harness is only built when withHarness is set, so check never reads its settings.
func (s *session) newCoordinator(stderr io.Writer, withHarness bool) (*coordinator.Coordinator, error) {
	cfg := s.settings
	runner := process.ExecRunner{Out: stderr}
	var test coordinator.TestHarness
	if withHarness {
		var err error
		if test, err = s.harness(runner, stderr); err != nil {
			return nil, err
		}
	}
	var locker signature.Locker
	if cfg.Run.Lock {
		locker = lock.ForSignature(cfg.State.SignatureFile)
	}
	c, err := coordinator.New(coordinator.Deps{
		Repository: newRepository(cfg, runner, stderr),
		Cloner:     newCloner(stderr),
		Harness:    test,
		Logger:     s.logger,
	}, coordinator.Options{
		DryRun:         cfg.Run.DryRun,
		PolicyOverride: s.ciInfo,
		SignaturePath:  cfg.State.SignatureFile,
		Locker:         locker,
		WorkRoot:       cfg.State.WorkRoot,
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (s *session) harness(runner process.Runner, stderr io.Writer) (coordinator.TestHarness, error) {
	h := s.settings.Harness
	var r process.Runner = runner
	if h.DryRun {
		r = &process.RecordingRunner{Out: stderr}
	}
	archive := h.FakeOutput
	if archive == "" && h.Scenario != "" {
		archive = harness.ScenarioArchive(h.MockResultsDir, h.Scenario)
	}
	if archive != "" {
		s.logger.Info(messages.BuildFakeOutputInUse, zap.String("archive", archive))
		return harness.FakeOutput{Archive: archive, ArtifactsDir: h.ArtifactsDir, JobName: h.JobName, Runner: r}, nil
	}
	env, err := envfile.Load(h.EnvFile)
	if err != nil {
		return nil, err
	}
	return harness.CWR{Command: h.Command, JobName: h.JobName, Env: env, Runner: r}, nil
}
