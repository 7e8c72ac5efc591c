package watcher

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Poller detects changes to a fixed set of files by comparing modification
// time and size on every tick.
type Poller struct {
	interval time.Duration
	names    []string
	state    map[string]fileSnapshot
	events   chan FileEvent
	stopCh   chan struct{}
	mu       sync.Mutex
	stopped  bool
	dir      string
}

type fileSnapshot struct {
	modTime time.Time
	size    int64
}

// NewPoller creates a poller for names inside the directory passed to Start.
func NewPoller(interval time.Duration, names []string) *Poller {
	return &Poller{
		interval: interval,
		names:    names,
		state:    make(map[string]fileSnapshot),
		events:   make(chan FileEvent, 16),
		stopCh:   make(chan struct{}),
	}
}

// Start polls dir until Stop is called or ctx is done.
func (p *Poller) Start(ctx context.Context, dir string) error {
	p.mu.Lock()
	p.dir = dir
	p.state = p.snapshot()
	p.mu.Unlock()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = p.Stop()
			return ctx.Err()
		case <-p.stopCh:
			return nil
		case <-ticker.C:
			p.detectChanges()
		}
	}
}

// snapshot must be called with mu held.
func (p *Poller) snapshot() map[string]fileSnapshot {
	out := make(map[string]fileSnapshot, len(p.names))
	for _, name := range p.names {
		info, err := os.Stat(filepath.Join(p.dir, name))
		if err != nil {
			continue
		}
		out[name] = fileSnapshot{modTime: info.ModTime(), size: info.Size()}
	}
	return out
}

func (p *Poller) detectChanges() {
	p.mu.Lock()
	defer p.mu.Unlock()

	current := p.snapshot()
	now := time.Now()
	for name, snap := range current {
		prev, existed := p.state[name]
		switch {
		case !existed:
			p.emit(FileEvent{Name: name, Operation: OpCreate, Timestamp: now})
		case prev != snap:
			p.emit(FileEvent{Name: name, Operation: OpModify, Timestamp: now})
		}
	}
	for name := range p.state {
		if _, ok := current[name]; !ok {
			p.emit(FileEvent{Name: name, Operation: OpDelete, Timestamp: now})
		}
	}
	p.state = current
}

// emit must be called with mu held.
func (p *Poller) emit(event FileEvent) {
	if p.stopped {
		return
	}
	select {
	case p.events <- event:
	default:
		slog.Warn("poller buffer full, dropping event",
			slog.String("name", event.Name),
			slog.String("op", event.Operation.String()))
	}
}

// Stop stops the poller. Safe to call multiple times.
func (p *Poller) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopped {
		return nil
	}
	p.stopped = true
	close(p.stopCh)
	close(p.events)
	return nil
}

// Events returns the channel of change events.
func (p *Poller) Events() <-chan FileEvent {
	return p.events
}
