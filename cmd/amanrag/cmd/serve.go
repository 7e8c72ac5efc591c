package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/amanrag/internal/api"
	"github.com/Aman-CERP/amanrag/internal/mcp"
	"github.com/Aman-CERP/amanrag/internal/watcher"
)

// serveOptions holds CLI flags for serve.
type serveOptions struct {
	transport string
	addr      string
	watch     bool
}

func newServeCmd(global *globalOptions) *cobra.Command {
	var opts serveOptions

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the retrieval service over MCP stdio or HTTP",
		Long: `Serve the retrieval service.

  --transport stdio   MCP server on stdin/stdout (logs go to the log file only)
  --transport http    JSON API under /retrieval plus /healthz and /metrics

With --watch the index directory is watched and a new build is picked up
without a restart.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, global, opts)
		},
	}

	cmd.Flags().StringVar(&opts.transport, "transport", "", "Transport: stdio or http (default from config, stdio)")
	cmd.Flags().StringVar(&opts.addr, "addr", "", "HTTP listen address (default from config)")
	cmd.Flags().BoolVar(&opts.watch, "watch", false, "Reload the index when a build completes")

	return cmd
}

func runServe(cmd *cobra.Command, global *globalOptions, opts serveOptions) error {
	cfg, err := loadConfig(global)
	if err != nil {
		return err
	}
	if opts.transport != "" {
		cfg.Server.Transport = opts.transport
	}
	if opts.addr != "" {
		cfg.Server.Addr = opts.addr
	}
	if cmd.Flags().Changed("watch") {
		cfg.Watch.Enabled = opts.watch
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	// stdout belongs to JSON-RPC in stdio mode.
	a, err := newAppWith(cmd.Context(), global, cfg, cfg.Server.Transport == "http")
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	// The server returning (stdin EOF, shutdown) stops the watcher too.
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)

	if cfg.Watch.Enabled {
		w, err := watcher.New(watcher.Options{DebounceWindow: cfg.WatchDebounceDuration()})
		if err != nil {
			return fmt.Errorf("failed to create watcher: %w", err)
		}
		reloader := watcher.NewReloader(w, a.service, a.logger)
		g.Go(func() error { return reloader.Run(ctx, cfg.Index.Dir) })
	}

	a.logger.Info("serve_starting",
		slog.String("transport", cfg.Server.Transport),
		slog.String("index_dir", cfg.Index.Dir),
		slog.Bool("watch", cfg.Watch.Enabled))

	switch cfg.Server.Transport {
	case "http":
		srv, err := api.NewServer(a.service, a.logger)
		if err != nil {
			return err
		}
		g.Go(func() error {
			defer cancel()
			return srv.ListenAndServe(ctx, cfg.Server.Addr)
		})
	default:
		srv, err := mcp.NewServer(a.service, a.logger)
		if err != nil {
			return err
		}
		g.Go(func() error {
			defer cancel()
			return srv.Serve(ctx)
		})
	}

	return g.Wait()
}
