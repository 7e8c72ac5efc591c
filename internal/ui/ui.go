// Package ui renders offline build progress for the terminal.
package ui

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/mattn/go-isatty"
)

// Stage is one step of an index build.
type Stage int

const (
	// StageLoading reads the corpus and its metadata.
	StageLoading Stage = iota
	// StageLexical builds the lexical index.
	StageLexical
	// StageEmbedding embeds every document for the dense index.
	StageEmbedding
	// StageWriting persists artifacts under the index directory.
	StageWriting
	// StageEvaluating scores the fresh index against the qrels.
	StageEvaluating
	// StageComplete indicates the build finished.
	StageComplete
)

// String returns the human-readable stage name.
func (s Stage) String() string {
	switch s {
	case StageLoading:
		return "Loading"
	case StageLexical:
		return "Lexical"
	case StageEmbedding:
		return "Embedding"
	case StageWriting:
		return "Writing"
	case StageEvaluating:
		return "Evaluating"
	case StageComplete:
		return "Complete"
	default:
		return "Unknown"
	}
}

// Icon returns the short stage tag for plain text output.
func (s Stage) Icon() string {
	switch s {
	case StageLoading:
		return "LOAD"
	case StageLexical:
		return "BM25"
	case StageEmbedding:
		return "EMBED"
	case StageWriting:
		return "WRITE"
	case StageEvaluating:
		return "EVAL"
	case StageComplete:
		return "DONE"
	default:
		return "???"
	}
}

// ProgressEvent is a progress update.
type ProgressEvent struct {
	Stage   Stage
	Current int
	Total   int
	Message string
}

// ErrorEvent is a problem reported during the build. Warnings do not stop it.
type ErrorEvent struct {
	Err    error
	IsWarn bool
}

// StageTimings tracks duration for each build stage.
type StageTimings struct {
	Load    time.Duration
	Lexical time.Duration
	Embed   time.Duration
	Write   time.Duration
	Eval    time.Duration
}

// EmbedderInfo describes the embedding backend used for the build.
type EmbedderInfo struct {
	Model      string
	Dimensions int
}

// CompletionStats is the final build summary.
type CompletionStats struct {
	Docs     int
	Duration time.Duration
	Warnings int
	Stages   StageTimings
	Embedder EmbedderInfo

	// Metrics holds evaluation results keyed by metric name, nil when the
	// build skipped evaluation.
	Metrics map[string]float64
}

// Renderer displays build progress.
type Renderer interface {
	Start(ctx context.Context) error
	UpdateProgress(event ProgressEvent)
	AddError(event ErrorEvent)
	Complete(stats CompletionStats)
	Stop() error
}

// Config configures the renderer.
type Config struct {
	Output     io.Writer
	ForcePlain bool
	NoColor    bool
}

// ConfigOption modifies Config.
type ConfigOption func(*Config)

// WithForcePlain forces plain text output.
func WithForcePlain(force bool) ConfigOption {
	return func(c *Config) {
		c.ForcePlain = force
	}
}

// WithNoColor disables color output.
func WithNoColor(noColor bool) ConfigOption {
	return func(c *Config) {
		c.NoColor = noColor
	}
}

// NewConfig creates a Config for output.
func NewConfig(output io.Writer, opts ...ConfigOption) Config {
	cfg := Config{Output: output}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// NewRenderer returns a styled renderer for interactive terminals and a
// plain renderer for CI, pipes, or when plain output is forced.
func NewRenderer(cfg Config) Renderer {
	if cfg.ForcePlain || !IsTTY(cfg.Output) || DetectCI() {
		return NewPlainRenderer(cfg)
	}
	if DetectNoColor() {
		cfg.NoColor = true
	}
	return NewStyledRenderer(cfg)
}

// IsTTY checks if output is a terminal.
func IsTTY(w io.Writer) bool {
	if w == nil {
		return false
	}
	if f, ok := w.(*os.File); ok {
		return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	return false
}

// DetectNoColor checks if NO_COLOR environment variable is set.
func DetectNoColor() bool {
	_, exists := os.LookupEnv("NO_COLOR")
	return exists
}

// DetectCI checks if running in a CI environment.
func DetectCI() bool {
	ciVars := []string{"CI", "GITHUB_ACTIONS", "GITLAB_CI", "JENKINS_URL", "TRAVIS"}
	for _, v := range ciVars {
		if _, exists := os.LookupEnv(v); exists {
			return true
		}
	}
	return false
}

// Discard is a Renderer that drops every event.
type Discard struct{}

func (Discard) Start(context.Context) error  { return nil }
func (Discard) UpdateProgress(ProgressEvent) {}
func (Discard) AddError(ErrorEvent)          {}
func (Discard) Complete(CompletionStats)     {}
func (Discard) Stop() error                  { return nil }
