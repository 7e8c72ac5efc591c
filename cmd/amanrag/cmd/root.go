// Package cmd provides the CLI commands for amanrag.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/amanrag/internal/config"
	amerrors "github.com/Aman-CERP/amanrag/internal/errors"
	"github.com/Aman-CERP/amanrag/internal/logging"
	"github.com/Aman-CERP/amanrag/internal/profiling"
	"github.com/Aman-CERP/amanrag/pkg/version"
)

// globalOptions are the persistent flags shared by every command.
type globalOptions struct {
	indexDir     string
	stateBackend string
	provider     string
	debug        bool

	profile  profiling.Options
	profiler *profiling.Session
}

// NewRootCmd creates the root command for the amanrag CLI.
func NewRootCmd() *cobra.Command {
	var opts globalOptions

	cmd := &cobra.Command{
		Use:   "amanrag",
		Short: "Hybrid clause retrieval over a contract corpus",
		Long: `amanrag answers clause searches over a contract corpus by fusing a
BM25 keyword ranking with a dense embedding ranking.

Build the index once with 'amanrag index', then query it from the CLI,
serve it to MCP clients over stdio, or expose it as an HTTP API.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetVersionTemplate("amanrag version {{.Version}}\n")

	cmd.PersistentFlags().StringVar(&opts.indexDir, "index-dir", "", "Index artifact directory (default from config, ./indices)")
	cmd.PersistentFlags().StringVar(&opts.stateBackend, "state-backend", "", "Saved query store: json, sqlite or badger")
	cmd.PersistentFlags().StringVar(&opts.provider, "provider", "", "Embedding provider: static, ollama, openai or auto")
	cmd.PersistentFlags().BoolVar(&opts.debug, "debug", false, "Enable debug logging to ~/.amanrag/logs/")
	cmd.PersistentFlags().StringVar(&opts.profile.CPU, "profile-cpu", "", "Write CPU profile to file")
	cmd.PersistentFlags().StringVar(&opts.profile.Heap, "profile-mem", "", "Write heap profile to file")
	cmd.PersistentFlags().StringVar(&opts.profile.Trace, "profile-trace", "", "Write execution trace to file")

	cmd.PersistentPreRunE = func(_ *cobra.Command, _ []string) error {
		if !opts.profile.Enabled() {
			return nil
		}
		s, err := profiling.Start(opts.profile)
		if err != nil {
			return err
		}
		opts.profiler = s
		return nil
	}
	cmd.PersistentPostRunE = func(_ *cobra.Command, _ []string) error {
		if opts.profiler == nil {
			return nil
		}
		err := opts.profiler.Stop()
		opts.profiler = nil
		return err
	}

	cmd.AddCommand(newSearchCmd(&opts))
	cmd.AddCommand(newStatsCmd(&opts))
	cmd.AddCommand(newQueriesCmd(&opts))
	cmd.AddCommand(newWatchlistsCmd(&opts))
	cmd.AddCommand(newIndexCmd(&opts))
	cmd.AddCommand(newServeCmd(&opts))
	cmd.AddCommand(newConfigCmd(&opts))
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the root command with Ctrl+C cancelling the context.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := NewRootCmd()
	err := root.ExecuteContext(ctx)
	if err != nil {
		_, _ = fmt.Fprint(root.ErrOrStderr(), amerrors.FormatForCLI(err))
	}
	return err
}

// loadConfig reads configuration for the working directory and applies
// flag overrides on top.
func loadConfig(opts *globalOptions) (*config.Config, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve working directory: %w", err)
	}
	cfg, err := config.Load(wd)
	if err != nil {
		return nil, err
	}
	if opts.indexDir != "" {
		cfg.Index.Dir = opts.indexDir
	}
	if opts.stateBackend != "" {
		cfg.State.Backend = opts.stateBackend
	}
	if opts.provider != "" {
		cfg.Embeddings.Provider = opts.provider
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// setupLogging opens the file logger, tee'd to stderr when requested. Logs
// never go to stdout. If the file cannot be opened logging falls back to
// warnings on stderr.
func setupLogging(opts *globalOptions, level string, stderr bool) (*slog.Logger, func()) {
	logCfg := logging.StdioConfig(level)
	logCfg.WriteToStderr = stderr
	if opts.debug {
		logCfg.Level = "debug"
	}
	logger, cleanup, err := logging.Setup(logCfg)
	if err != nil {
		return logging.NewStderrLogger("warn"), func() {}
	}
	if opts.debug {
		logger.Debug("debug_logging_enabled", slog.String("log_file", logCfg.FilePath))
	}
	return logger, cleanup
}
