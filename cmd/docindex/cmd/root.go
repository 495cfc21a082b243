// Package cmd provides the CLI commands for docindex.
package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/docindex/internal/app"
	"github.com/Aman-CERP/docindex/internal/config"
	"github.com/Aman-CERP/docindex/internal/logging"
	"github.com/Aman-CERP/docindex/internal/profiling"
	"github.com/Aman-CERP/docindex/pkg/version"
)

// logMode selects where a command logs.
type logMode int

const (
	// logOneShot logs warnings and errors to stderr only.
	logOneShot logMode = iota
	// logService logs at the configured level to the log file and stderr.
	logService
)

// globals holds the persistent flags and the resources one invocation
// opens. Each NewRootCmd gets its own, so tests can run commands back to
// back.
type globals struct {
	dir     string
	debug   bool
	logFile string
	profile profiling.Options

	profiler       *profiling.Profiler
	app            *app.App
	loggingCleanup func()
}

// NewRootCmd creates the root command for the docindex CLI.
func NewRootCmd() *cobra.Command {
	g := &globals{}

	cmd := &cobra.Command{
		Use:   "docindex",
		Short: "Asynchronous full-text indexing of person records",
		Long: `docindex keeps a full-text index of person records in step with a
record store. Writers queue index commands; a single worker drains the
queue into the index; queries run against the index at any time.

Run 'docindex serve' in a project directory to start the worker and the
HTTP query API together.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetVersionTemplate("docindex version {{.Version}}\n")

	cmd.PersistentFlags().StringVar(&g.dir, "dir", ".", "Project directory holding .docindex.yaml and the data directory")
	cmd.PersistentFlags().BoolVar(&g.debug, "debug", false, "Enable debug logging")
	cmd.PersistentFlags().StringVar(&g.logFile, "log-file", "", "Log file for serve and worker (default ~/.docindex/logs/docindex.log)")
	cmd.PersistentFlags().StringVar(&g.profile.CPU, "profile-cpu", "", "Write CPU profile to file")
	cmd.PersistentFlags().StringVar(&g.profile.Heap, "profile-mem", "", "Write heap profile to file on exit")
	cmd.PersistentFlags().StringVar(&g.profile.Trace, "profile-trace", "", "Write execution trace to file")

	cmd.PersistentPreRunE = func(_ *cobra.Command, _ []string) error {
		if !g.profile.Enabled() {
			return nil
		}
		p, err := profiling.Start(g.profile)
		if err != nil {
			return err
		}
		g.profiler = p
		return nil
	}
	cmd.PersistentPostRunE = func(_ *cobra.Command, _ []string) error {
		return g.shutdown()
	}

	cmd.AddCommand(newServeCmd(g))
	cmd.AddCommand(newWorkerCmd(g))
	cmd.AddCommand(newDrainCmd(g))
	cmd.AddCommand(newSearchCmd(g))
	cmd.AddCommand(newImportCmd(g))
	cmd.AddCommand(newReindexCmd(g))
	cmd.AddCommand(newPurgeCmd(g))
	cmd.AddCommand(newStatusCmd(g))
	cmd.AddCommand(newDeadLettersCmd(g))
	cmd.AddCommand(newLogsCmd(g))
	cmd.AddCommand(newDoctorCmd(g))
	cmd.AddCommand(newStopCmd(g))
	cmd.AddCommand(newConfigCmd(g))
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

// projectDir returns the absolute project directory.
func (g *globals) projectDir() (string, error) {
	dir, err := filepath.Abs(g.dir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve project directory: %w", err)
	}
	return dir, nil
}

// open loads configuration, sets up logging for mode and returns the App.
// Callers defer g.shutdown so resources are released even when the command
// fails.
func (g *globals) open(cmd *cobra.Command, mode logMode) (*app.App, error) {
	if g.app != nil {
		return g.app, nil
	}
	dir, err := g.projectDir()
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(dir)
	if err != nil {
		return nil, err
	}

	var lc logging.Config
	switch mode {
	case logService:
		lc = logging.DefaultConfig()
		lc.Level = cfg.Server.LogLevel
		if g.logFile != "" {
			lc.FilePath = g.logFile
		}
	default:
		lc = logging.StderrConfig("warn")
	}
	if g.debug {
		lc.Level = "debug"
	}
	lc.Stderr = cmd.ErrOrStderr()

	cleanup, err := logging.SetupDefault(lc)
	if err != nil {
		return nil, fmt.Errorf("failed to set up logging: %w", err)
	}
	g.loggingCleanup = cleanup
	if mode == logService {
		slog.Info("docindex_starting",
			slog.String("version", version.Version),
			slog.String("dir", dir),
			slog.String("queue_backend", cfg.Queue.Backend))
	}

	g.app = app.New(cfg)
	return g.app, nil
}

// shutdown closes the App, flushes logs and stops profiling. Safe to call
// more than once.
func (g *globals) shutdown() error {
	var errs []error
	if g.app != nil {
		errs = append(errs, g.app.Close())
		g.app = nil
	}
	if g.loggingCleanup != nil {
		g.loggingCleanup()
		g.loggingCleanup = nil
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))
	}
	if g.profiler != nil {
		errs = append(errs, g.profiler.Stop())
		g.profiler = nil
	}
	return errors.Join(errs...)
}
