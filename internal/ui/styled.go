package ui

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

const barWidth = 30

// StyledRenderer draws an in-place progress bar per stage for interactive
// terminals.
type StyledRenderer struct {
	mu      sync.Mutex
	out     io.Writer
	styles  Styles
	stage   Stage
	started bool
	inline  bool
}

// NewStyledRenderer creates a styled renderer.
func NewStyledRenderer(cfg Config) *StyledRenderer {
	return &StyledRenderer{
		out:    cfg.Output,
		styles: GetStyles(cfg.NoColor),
	}
}

// Start implements Renderer.
func (r *StyledRenderer) Start(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.started {
		_, _ = fmt.Fprintln(r.out, r.styles.Header.Render("amanrag index"))
		r.started = true
	}
	return nil
}

// UpdateProgress implements Renderer.
func (r *StyledRenderer) UpdateProgress(event ProgressEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if event.Stage != r.stage {
		r.endLine()
		r.stage = event.Stage
	}

	label := r.styles.Stage.Render(fmt.Sprintf("%-10s", event.Stage.String()))
	if event.Total <= 0 {
		r.endLine()
		_, _ = fmt.Fprintf(r.out, "%s %s\n", label, event.Message)
		return
	}

	pct := float64(event.Current) / float64(event.Total) * 100
	bar := r.styles.Progress.Render(RenderProgressBar(event.Current, event.Total, barWidth))
	_, _ = fmt.Fprintf(r.out, "\r%s [%s] %3.0f%% %s", label, bar, pct, r.styles.Label.Render(event.Message))
	r.inline = true
	if event.Current >= event.Total {
		r.endLine()
	}
}

func (r *StyledRenderer) endLine() {
	if r.inline {
		_, _ = fmt.Fprintln(r.out)
		r.inline = false
	}
}

// AddError implements Renderer.
func (r *StyledRenderer) AddError(event ErrorEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.endLine()
	if event.IsWarn {
		_, _ = fmt.Fprintln(r.out, r.styles.Warning.Render("warning: "+event.Err.Error()))
		return
	}
	_, _ = fmt.Fprintln(r.out, r.styles.Error.Render("error: "+event.Err.Error()))
}

// Complete implements Renderer.
func (r *StyledRenderer) Complete(stats CompletionStats) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.endLine()
	lines := []string{
		r.styles.Success.Render(fmt.Sprintf("Indexed %d documents in %s",
			stats.Docs, stats.Duration.Round(100*time.Millisecond))),
	}
	if stats.Warnings > 0 {
		lines = append(lines, r.styles.Warning.Render(fmt.Sprintf("%d warnings", stats.Warnings)))
	}
	for _, l := range stageLines(stats) {
		lines = append(lines, r.styles.Label.Render(l))
	}
	if stats.Embedder.Model != "" {
		lines = append(lines, fmt.Sprintf("Model: %s (%d dims)", stats.Embedder.Model, stats.Embedder.Dimensions))
	}
	lines = append(lines, metricLines(stats.Metrics)...)
	_, _ = fmt.Fprintln(r.out, r.styles.Panel.Render(strings.Join(lines, "\n")))
}

// Stop implements Renderer.
func (r *StyledRenderer) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.endLine()
	return nil
}

// RenderProgressBar creates a text progress bar of the given width.
func RenderProgressBar(current, total, width int) string {
	if total <= 0 {
		return strings.Repeat("░", width)
	}

	filled := int(float64(current) / float64(total) * float64(width))
	filled = max(0, min(filled, width))

	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}
