package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher observes an index directory with fsnotify, or by polling when
// fsnotify cannot be used, and emits debounced batches of trigger events.
type Watcher struct {
	fsWatcher      *fsnotify.Watcher
	poller         *Poller
	debouncer      *Debouncer
	events         chan []FileEvent
	errors         chan error
	stopCh         chan struct{}
	dir            string
	opts           Options
	mu             sync.RWMutex
	stopped        bool
	droppedBatches atomic.Uint64
}

// New creates a watcher. fsnotify is tried first; polling is the fallback.
func New(opts Options) (*Watcher, error) {
	opts = opts.WithDefaults()

	w := &Watcher{
		debouncer: NewDebouncer(opts.DebounceWindow),
		events:    make(chan []FileEvent, opts.EventBufferSize),
		errors:    make(chan error, 10),
		stopCh:    make(chan struct{}),
		opts:      opts,
	}

	if !opts.ForcePolling {
		fsw, err := fsnotify.NewWatcher()
		if err == nil {
			w.fsWatcher = fsw
			return w, nil
		}
		slog.Warn("fsnotify unavailable, falling back to polling",
			slog.String("error", err.Error()))
	}
	w.poller = NewPoller(opts.PollInterval, opts.Triggers)
	return w, nil
}

// Start watches dir until Stop is called or ctx is done. The directory is
// created if it does not exist yet.
func (w *Watcher) Start(ctx context.Context, dir string) error {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("resolve absolute path: %w", err)
	}
	if err := os.MkdirAll(absDir, 0o755); err != nil {
		return fmt.Errorf("create watched directory: %w", err)
	}
	w.mu.Lock()
	w.dir = absDir
	w.mu.Unlock()

	go w.forwardDebounced(ctx)

	if w.fsWatcher != nil {
		return w.startFsnotify(ctx)
	}
	return w.startPolling(ctx)
}

func (w *Watcher) startFsnotify(ctx context.Context) error {
	if err := w.fsWatcher.Add(w.dir); err != nil {
		return fmt.Errorf("add directory to watcher: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			_ = w.Stop()
			return ctx.Err()
		case <-w.stopCh:
			return nil
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return nil
			}
			w.handleFsnotifyEvent(event)
		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return nil
			}
			w.emitError(err)
		}
	}
}

func (w *Watcher) startPolling(ctx context.Context) error {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-w.stopCh:
				return
			case event, ok := <-w.poller.Events():
				if !ok {
					return
				}
				w.debouncer.Add(event)
			}
		}
	}()

	err := w.poller.Start(ctx, w.dir)
	if ctx.Err() != nil {
		_ = w.Stop()
	}
	return err
}

// handleFsnotifyEvent converts and filters fsnotify events. Atomic writes
// surface as a create of the target name.
func (w *Watcher) handleFsnotifyEvent(event fsnotify.Event) {
	name := filepath.Base(event.Name)
	if !w.opts.isTrigger(name) {
		return
	}

	var op Operation
	switch {
	case event.Op&fsnotify.Create != 0:
		op = OpCreate
	case event.Op&fsnotify.Write != 0:
		op = OpModify
	case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		op = OpDelete
	default:
		return
	}

	w.debouncer.Add(FileEvent{Name: name, Operation: op, Timestamp: time.Now()})
}

func (w *Watcher) forwardDebounced(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case events, ok := <-w.debouncer.Output():
			if !ok {
				return
			}
			if len(events) > 0 {
				w.emitEvents(events)
			}
		}
	}
}

func (w *Watcher) emitEvents(events []FileEvent) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if w.stopped {
		return
	}

	select {
	case w.events <- events:
	default:
		count := w.droppedBatches.Add(1)
		slog.Warn("event buffer full, dropping batch",
			slog.Int("batch_size", len(events)),
			slog.Uint64("total_dropped_batches", count))
	}
}

// DroppedBatches returns the number of batches dropped due to buffer overflow.
func (w *Watcher) DroppedBatches() uint64 {
	return w.droppedBatches.Load()
}

func (w *Watcher) emitError(err error) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if w.stopped {
		return
	}

	select {
	case w.errors <- err:
	default:
	}
}

// Stop stops the watcher and releases resources. Safe to call multiple times.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped {
		return nil
	}
	w.stopped = true
	close(w.stopCh)

	w.debouncer.Stop()
	if w.fsWatcher != nil {
		_ = w.fsWatcher.Close()
	}
	if w.poller != nil {
		_ = w.poller.Stop()
	}

	close(w.events)
	close(w.errors)
	return nil
}

// Events returns the channel of debounced batches. It is closed on Stop.
func (w *Watcher) Events() <-chan []FileEvent {
	return w.events
}

// Errors returns non-fatal watcher errors. It is closed on Stop.
func (w *Watcher) Errors() <-chan error {
	return w.errors
}

// Type returns "fsnotify" or "polling".
func (w *Watcher) Type() string {
	if w.fsWatcher != nil {
		return "fsnotify"
	}
	return "polling"
}

// Dir returns the watched directory.
func (w *Watcher) Dir() string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.dir
}
