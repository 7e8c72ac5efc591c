package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/Aman-CERP/amanrag/internal/config"
	"github.com/Aman-CERP/amanrag/internal/embed"
	amerrors "github.com/Aman-CERP/amanrag/internal/errors"
	"github.com/Aman-CERP/amanrag/internal/search"
	"github.com/Aman-CERP/amanrag/internal/state"
	"github.com/Aman-CERP/amanrag/internal/store"
	"github.com/Aman-CERP/amanrag/internal/ui"
)

// RunnerConfig configures a build.
type RunnerConfig struct {
	// IndexDir receives the artifacts.
	IndexDir string

	// CorpusDir holds corpus.jsonl, queries.jsonl and qrels/.
	CorpusDir string

	// LexicalBackend is "okapi" or "bleve".
	LexicalBackend string

	// Dense shapes the HNSW graph and the embedding pool.
	Dense store.DenseConfig

	// Eval scores the fresh index when queries.jsonl exists.
	Eval bool

	// EvalLimit caps the evaluated queries. 0 selects DefaultEvalLimit.
	EvalLimit int

	// Search configures the retriever used for evaluation. IndexDir and
	// LexicalBackend are taken from this config.
	Search search.Config
}

// ConfigFrom derives a RunnerConfig from the loaded configuration.
func ConfigFrom(cfg *config.Config) RunnerConfig {
	sc := search.ConfigFrom(cfg)
	return RunnerConfig{
		IndexDir:       cfg.Index.Dir,
		CorpusDir:      cfg.Index.CorpusDir,
		LexicalBackend: cfg.Index.LexicalBackend,
		Dense:          sc.Dense,
		Eval:           true,
		Search:         sc,
	}
}

// RunnerResult is the outcome of a build.
type RunnerResult struct {
	// Docs is the number of indexed documents.
	Docs int

	// Skipped is set when there was no corpus to index.
	Skipped bool

	// Metrics is nil when evaluation did not run.
	Metrics *Metrics

	Duration time.Duration
	Warnings int
}

// RunnerDependencies are the injected collaborators of a Runner.
type RunnerDependencies struct {
	// Embedder produces document and query vectors (required).
	Embedder embed.Embedder

	// Renderer displays progress. Defaults to ui.Discard.
	Renderer ui.Renderer

	// Logger defaults to slog.Default().
	Logger *slog.Logger

	// Now defaults to time.Now and stamps meta.json.
	Now func() time.Time
}

// Runner executes builds.
type Runner struct {
	embedder embed.Embedder
	renderer ui.Renderer
	logger   *slog.Logger
	now      func() time.Time
}

// NewRunner creates a Runner with injected dependencies.
func NewRunner(deps RunnerDependencies) (*Runner, error) {
	if deps.Embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	r := &Runner{
		embedder: deps.Embedder,
		renderer: deps.Renderer,
		logger:   deps.Logger,
		now:      deps.Now,
	}
	if r.renderer == nil {
		r.renderer = ui.Discard{}
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	if r.now == nil {
		r.now = time.Now
	}
	return r, nil
}

// ErrNoCorpus is reported as a warning when the corpus is missing or empty.
// Run then returns a skipped result rather than an error.
var ErrNoCorpus = errors.New("no corpus.jsonl found")

// Run builds every artifact under cfg.IndexDir. A build holds the build lock
// for its whole duration; a second concurrent build waits for it or for ctx.
// meta.json is written last.
func (r *Runner) Run(ctx context.Context, cfg RunnerConfig) (*RunnerResult, error) {
	start := time.Now()
	var timing ui.StageTimings
	warnings := 0

	if cfg.IndexDir == "" {
		cfg.IndexDir = config.DefaultIndexDir
	}
	if cfg.CorpusDir == "" {
		cfg.CorpusDir = config.DefaultCorpusDir
	}
	layout := store.NewLayout(cfg.IndexDir)

	if err := r.renderer.Start(ctx); err != nil {
		return nil, err
	}
	defer func() { _ = r.renderer.Stop() }()

	// Stage 1: load corpus
	loadStart := time.Now()
	r.renderer.UpdateProgress(ui.ProgressEvent{Stage: ui.StageLoading, Message: cfg.CorpusDir})
	corpus, err := LoadCorpus(cfg.CorpusDir)
	if err != nil {
		return nil, err
	}
	timing.Load = time.Since(loadStart)
	if len(corpus.Docs) == 0 {
		r.renderer.AddError(ui.ErrorEvent{
			Err:    fmt.Errorf("%w in %s; place a BEIR-style corpus there and rerun", ErrNoCorpus, cfg.CorpusDir),
			IsWarn: true,
		})
		r.logger.Warn("index_skipped",
			slog.String("corpus_dir", cfg.CorpusDir),
			slog.String("reason", "no corpus"))
		return &RunnerResult{Skipped: true, Duration: time.Since(start)}, nil
	}
	if corpus.Skipped > 0 {
		warnings++
		r.renderer.AddError(ui.ErrorEvent{
			Err:    fmt.Errorf("%d corpus lines without an id were skipped", corpus.Skipped),
			IsWarn: true,
		})
	}

	lock := store.NewFileLock(layout.BuildLock())
	if err := lock.Lock(ctx); err != nil {
		return nil, err
	}
	defer func() { _ = lock.Unlock() }()

	// Stage 2: lexical index
	lexStart := time.Now()
	r.renderer.UpdateProgress(ui.ProgressEvent{Stage: ui.StageLexical, Message: fmt.Sprintf("%d documents", len(corpus.Docs))})
	lexical, err := store.NewLexicalIndex(cfg.LexicalBackend)
	if err != nil {
		return nil, err
	}
	defer func() { _ = lexical.Close() }()
	if err := lexical.Build(ctx, corpus.Docs); err != nil {
		return nil, indexFailed("lexical build", err)
	}
	timing.Lexical = time.Since(lexStart)

	// Stage 3: dense index
	embedStart := time.Now()
	denseCfg := cfg.Dense
	denseCfg.Pool.Progress = func(done, total int) {
		r.renderer.UpdateProgress(ui.ProgressEvent{Stage: ui.StageEmbedding, Current: done, Total: total, Message: "documents"})
	}
	dense := store.NewHNSWDenseIndex(r.embedder, denseCfg)
	if err := dense.Build(ctx, corpus.Docs); err != nil {
		return nil, indexFailed("dense build", err)
	}
	timing.Embed = time.Since(embedStart)

	// Stage 4: persist everything but meta.json
	writeStart := time.Now()
	r.renderer.UpdateProgress(ui.ProgressEvent{Stage: ui.StageWriting, Message: cfg.IndexDir})
	if err := os.MkdirAll(cfg.IndexDir, 0o755); err != nil {
		return nil, indexFailed("create index dir", err)
	}
	if err := lexical.Save(cfg.IndexDir); err != nil {
		return nil, indexFailed("save lexical", err)
	}
	if err := dense.Save(cfg.IndexDir); err != nil {
		return nil, indexFailed("save dense", err)
	}
	if len(corpus.Meta) > 0 {
		if err := store.SaveMetadata(layout.DocsMeta(), corpus.Meta); err != nil {
			return nil, indexFailed("save docs_meta", err)
		}
	}
	timing.Write = time.Since(writeStart)

	// Stage 5: evaluation
	var metrics *Metrics
	if cfg.Eval {
		evalStart := time.Now()
		m, warn, err := r.evaluate(ctx, cfg, layout)
		if err != nil {
			return nil, err
		}
		if warn != "" {
			warnings++
			r.renderer.AddError(ui.ErrorEvent{Err: errors.New(warn), IsWarn: true})
		}
		metrics = m
		timing.Eval = time.Since(evalStart)
	}

	builtAt := r.now()
	if err := store.WriteBuildMeta(layout.BuildMeta(), store.NewBuildMeta(builtAt, len(corpus.Docs))); err != nil {
		return nil, indexFailed("write meta.json", err)
	}

	duration := time.Since(start)
	stats := ui.CompletionStats{
		Docs:     len(corpus.Docs),
		Duration: duration,
		Warnings: warnings,
		Stages:   timing,
		Embedder: ui.EmbedderInfo{Model: r.embedder.ModelName(), Dimensions: r.embedder.Dimensions()},
	}
	if metrics != nil {
		stats.Metrics = metrics.Map()
	}
	r.renderer.Complete(stats)

	attrs := []slog.Attr{
		slog.Int("docs", len(corpus.Docs)),
		slog.Int("docs_meta", len(corpus.Meta)),
		slog.String("lexical_backend", cfg.LexicalBackend),
		slog.String("embedder_model", r.embedder.ModelName()),
		slog.Int("embedder_dimensions", r.embedder.Dimensions()),
		slog.Int64("duration_total_ms", duration.Milliseconds()),
		slog.Int64("duration_lexical_ms", timing.Lexical.Milliseconds()),
		slog.Int64("duration_embed_ms", timing.Embed.Milliseconds()),
		slog.Int64("duration_eval_ms", timing.Eval.Milliseconds()),
		slog.String("dir", cfg.IndexDir),
	}
	if metrics != nil {
		attrs = append(attrs, slog.Float64("mrr_at_10", metrics.MRR), slog.Float64("ndcg_at_10", metrics.NDCG))
	}
	r.logger.LogAttrs(ctx, slog.LevelInfo, "index_complete", attrs...)

	return &RunnerResult{
		Docs:     len(corpus.Docs),
		Metrics:  metrics,
		Duration: duration,
		Warnings: warnings,
	}, nil
}

// evaluate scores the artifacts just written and persists last_results.json.
// It returns nil metrics and no error when there are no queries. Missing
// judgments are reported as a warning and score zero.
func (r *Runner) evaluate(ctx context.Context, cfg RunnerConfig, layout store.Layout) (*Metrics, string, error) {
	queries, err := LoadQueries(cfg.CorpusDir)
	if err != nil {
		return nil, "", err
	}
	if len(queries) == 0 {
		return nil, "", nil
	}
	qrels, err := LoadQrels(cfg.CorpusDir)
	if err != nil {
		return nil, "", err
	}
	var warn string
	if len(qrels) == 0 {
		warn = fmt.Sprintf("no qrels/*.tsv under %s; metrics will be zero", cfg.CorpusDir)
	}

	// In-memory state keeps evaluation from touching the saved store.
	st, err := state.NewSQLiteStore("", r.logger)
	if err != nil {
		return nil, "", err
	}
	defer func() { _ = st.Close() }()

	sc := cfg.Search
	sc.IndexDir = cfg.IndexDir
	sc.LexicalBackend = cfg.LexicalBackend
	sc.Dense = cfg.Dense
	svc := search.NewService(sc, r.embedder, search.WithLogger(r.logger), search.WithStateStore(st))
	defer func() { _ = svc.Close() }()

	limit := cfg.EvalLimit
	if limit <= 0 {
		limit = DefaultEvalLimit
	}
	m, err := Evaluate(ctx, svc, queries, qrels, limit, func(done, total int) {
		r.renderer.UpdateProgress(ui.ProgressEvent{Stage: ui.StageEvaluating, Current: done, Total: total, Message: "queries"})
	})
	if err != nil {
		return nil, "", err
	}
	if err := WriteResults(layout.LastResults(), m); err != nil {
		return nil, "", indexFailed("write last_results.json", err)
	}
	return &m, warn, nil
}

func indexFailed(step string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var ae *amerrors.AppError
	if errors.As(err, &ae) {
		return err
	}
	return amerrors.New(amerrors.ErrCodeIndexFailed, step+" failed", err)
}
