package watcher

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Reloadable swaps in freshly built artifacts.
type Reloadable interface {
	Reload(ctx context.Context)
}

// Reloader reloads a target for every batch its watcher emits.
type Reloader struct {
	watcher *Watcher
	target  Reloadable
	logger  *slog.Logger
	onLoad  func()
}

// NewReloader creates a reloader. logger may be nil.
func NewReloader(w *Watcher, target Reloadable, logger *slog.Logger) *Reloader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reloader{watcher: w, target: target, logger: logger}
}

// OnReload registers fn to run after each reload.
func (r *Reloader) OnReload(fn func()) {
	r.onLoad = fn
}

// Run watches dir and reloads until ctx is done or the watcher stops. It
// returns nil on a clean shutdown.
func (r *Reloader) Run(ctx context.Context, dir string) error {
	startErr := make(chan error, 1)
	go func() { startErr <- r.watcher.Start(ctx, dir) }()

	r.logger.Info("watcher_started",
		slog.String("dir", dir),
		slog.String("type", r.watcher.Type()))

	errs := r.watcher.Errors()
	for {
		select {
		case <-ctx.Done():
			_ = r.watcher.Stop()
			return nil
		case err := <-startErr:
			if err == nil || errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			r.logger.Warn("watcher_error", slog.String("error", err.Error()))
		case batch, ok := <-r.watcher.Events():
			if !ok {
				return nil
			}
			r.reload(ctx, batch)
		}
	}
}

func (r *Reloader) reload(ctx context.Context, batch []FileEvent) {
	start := time.Now()
	names := make([]string, len(batch))
	for i, e := range batch {
		names[i] = e.Name + ":" + e.Operation.String()
	}

	r.target.Reload(ctx)

	r.logger.Info("index_reloaded",
		slog.Any("events", names),
		slog.Duration("elapsed", time.Since(start)))
	if r.onLoad != nil {
		r.onLoad()
	}
}
