package ui

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"
)

// PlainRenderer outputs plain text progress (for CI/pipes).
type PlainRenderer struct {
	mu     sync.Mutex
	out    io.Writer
	errors []ErrorEvent
}

// NewPlainRenderer creates a plain text renderer.
func NewPlainRenderer(cfg Config) *PlainRenderer {
	return &PlainRenderer{out: cfg.Output}
}

// Start implements Renderer.
func (r *PlainRenderer) Start(context.Context) error {
	return nil
}

// UpdateProgress implements Renderer.
func (r *PlainRenderer) UpdateProgress(event ProgressEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Format: [STAGE] current/total - message
	if event.Total > 0 {
		_, _ = fmt.Fprintf(r.out, "[%s] %d/%d - %s\n", event.Stage.Icon(), event.Current, event.Total, event.Message)
	} else if event.Message != "" {
		_, _ = fmt.Fprintf(r.out, "[%s] %s\n", event.Stage.Icon(), event.Message)
	}
}

// AddError implements Renderer.
func (r *PlainRenderer) AddError(event ErrorEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.errors = append(r.errors, event)

	prefix := "ERROR"
	if event.IsWarn {
		prefix = "WARN"
	}
	_, _ = fmt.Fprintf(r.out, "%s: %v\n", prefix, event.Err)
}

// Complete implements Renderer.
func (r *PlainRenderer) Complete(stats CompletionStats) {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, _ = fmt.Fprintf(r.out, "Complete: %d documents indexed in %s",
		stats.Docs, stats.Duration.Round(100*time.Millisecond))
	if stats.Warnings > 0 {
		_, _ = fmt.Fprintf(r.out, " (%d warnings)", stats.Warnings)
	}
	_, _ = fmt.Fprintln(r.out)

	if stats.Stages.Embed > 0 {
		_, _ = fmt.Fprintln(r.out)
		_, _ = fmt.Fprintln(r.out, "Stage Breakdown:")
		for _, line := range stageLines(stats) {
			_, _ = fmt.Fprintf(r.out, "  %s\n", line)
		}
	}

	if stats.Embedder.Model != "" {
		_, _ = fmt.Fprintln(r.out)
		_, _ = fmt.Fprintf(r.out, "Model: %s (%d dims)\n", stats.Embedder.Model, stats.Embedder.Dimensions)
	}

	for _, line := range metricLines(stats.Metrics) {
		_, _ = fmt.Fprintln(r.out, line)
	}
}

// Stop implements Renderer.
func (r *PlainRenderer) Stop() error {
	return nil
}

func stageLines(stats CompletionStats) []string {
	round := func(d time.Duration) time.Duration { return d.Round(100 * time.Millisecond) }
	lines := []string{
		fmt.Sprintf("Load:    %s (corpus read)", round(stats.Stages.Load)),
		fmt.Sprintf("Lexical: %s (BM25)", round(stats.Stages.Lexical)),
	}
	if stats.Docs > 0 && stats.Stages.Embed > 0 {
		perSec := float64(stats.Docs) / stats.Stages.Embed.Seconds()
		lines = append(lines, fmt.Sprintf("Embed:   %s (%d docs @ %.1f/sec)", round(stats.Stages.Embed), stats.Docs, perSec))
	}
	lines = append(lines, fmt.Sprintf("Write:   %s", round(stats.Stages.Write)))
	if stats.Stages.Eval > 0 {
		lines = append(lines, fmt.Sprintf("Eval:    %s", round(stats.Stages.Eval)))
	}
	return lines
}

func metricLines(metrics map[string]float64) []string {
	if len(metrics) == 0 {
		return nil
	}
	names := make([]string, 0, len(metrics))
	for name := range metrics {
		names = append(names, name)
	}
	sort.Strings(names)
	lines := make([]string, 0, len(names))
	for _, name := range names {
		lines = append(lines, fmt.Sprintf("%s: %.4f", name, metrics[name]))
	}
	return lines
}
