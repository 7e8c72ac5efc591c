package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/amanrag/internal/config"
	"github.com/Aman-CERP/amanrag/internal/embed"
	amerrors "github.com/Aman-CERP/amanrag/internal/errors"
	"github.com/Aman-CERP/amanrag/internal/metrics"
	"github.com/Aman-CERP/amanrag/internal/state"
	"github.com/Aman-CERP/amanrag/internal/store"
)

// DefaultEmbedTimeout bounds the query embedding call.
const DefaultEmbedTimeout = 5 * time.Second

// Config configures a Service.
type Config struct {
	IndexDir       string
	LexicalBackend string
	StateBackend   string
	Dense          store.DenseConfig

	DefaultK    int
	MaxK        int
	BM25Weight  float64
	FaissWeight float64
	RRFConstant int
	OverFetch   int

	EmbedTimeout  time.Duration
	DefaultSource string

	// ModelName is reported by Stats. Empty falls back to the model
	// recorded in the dense index.
	ModelName string
}

// ConfigFrom maps application configuration onto a service Config.
func ConfigFrom(cfg *config.Config) Config {
	return Config{
		IndexDir:       cfg.Index.Dir,
		LexicalBackend: cfg.Index.LexicalBackend,
		StateBackend:   cfg.State.Backend,
		Dense: store.DenseConfig{
			M:        cfg.Index.HNSWM,
			EfSearch: cfg.Index.HNSWEfSearch,
			Pool: embed.PoolOptions{
				BatchSize: cfg.Embeddings.BatchSize,
				Workers:   cfg.Embeddings.Workers,
			},
		},
		DefaultK:      cfg.Search.DefaultK,
		MaxK:          cfg.Search.MaxK,
		BM25Weight:    cfg.Search.BM25Weight,
		FaissWeight:   cfg.Search.FaissWeight,
		RRFConstant:   cfg.Search.RRFConstant,
		OverFetch:     cfg.Search.OverFetch,
		EmbedTimeout:  cfg.EmbedTimeoutDuration(),
		DefaultSource: cfg.Search.DefaultSource,
		ModelName:     cfg.Embeddings.Model,
	}
}

func (c Config) withDefaults() Config {
	if c.IndexDir == "" {
		c.IndexDir = config.DefaultIndexDir
	}
	if c.DefaultK <= 0 {
		c.DefaultK = DefaultK
	}
	if c.RRFConstant <= 0 {
		c.RRFConstant = DefaultRRFConstant
	}
	if c.OverFetch <= 0 {
		c.OverFetch = DefaultOverFetch
	}
	if c.EmbedTimeout <= 0 {
		c.EmbedTimeout = DefaultEmbedTimeout
	}
	if c.DefaultSource == "" {
		c.DefaultSource = DefaultSource
	}
	return c
}

// Service answers searches over the artifacts of one index directory.
// It is safe for concurrent use. Artifacts are loaded lazily, once, on
// the first call; Reload swaps in freshly built artifacts.
type Service struct {
	cfg      Config
	layout   store.Layout
	embedder embed.Embedder
	breaker  *amerrors.CircuitBreaker
	logger   *slog.Logger

	// loadMu is the load gate. loaded is set once a load has completed.
	loadMu sync.Mutex
	loaded atomic.Bool
	loads  atomic.Int64

	mu      sync.RWMutex
	lexical store.LexicalIndex
	dense   *store.HNSWDenseIndex
	meta    *store.MetadataStore
	build   *store.BuildMeta

	state     state.Store
	stateErr  error
	ownsState bool
}

var _ Retriever = (*Service)(nil)

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithStateStore supplies an already-open state store. The service does
// not close it.
func WithStateStore(st state.Store) Option {
	return func(s *Service) {
		s.state = st
	}
}

// WithCircuitBreaker replaces the breaker guarding query embedding.
func WithCircuitBreaker(cb *amerrors.CircuitBreaker) Option {
	return func(s *Service) {
		if cb != nil {
			s.breaker = cb
		}
	}
}

// NewService creates a service. Nothing is read from disk until first use.
func NewService(cfg Config, embedder embed.Embedder, opts ...Option) *Service {
	cfg = cfg.withDefaults()
	s := &Service{
		cfg:      cfg,
		layout:   store.NewLayout(cfg.IndexDir),
		embedder: embedder,
		breaker:  amerrors.NewCircuitBreaker("query_embedding"),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ensureLoaded runs the first load. Concurrent callers block until it
// completes; later callers return immediately.
func (s *Service) ensureLoaded(ctx context.Context) {
	if s.loaded.Load() {
		return
	}
	s.loadMu.Lock()
	defer s.loadMu.Unlock()
	if s.loaded.Load() {
		return
	}
	s.load(ctx)
	s.loaded.Store(true)
}

// Reload re-reads every artifact from the index directory and swaps the
// new handles in. Searches in flight finish against the old handles.
func (s *Service) Reload(ctx context.Context) {
	s.loadMu.Lock()
	defer s.loadMu.Unlock()
	s.load(ctx)
	s.loaded.Store(true)
}

// load must be called with loadMu held. Missing or unreadable artifacts
// leave an empty component in place; load never fails.
func (s *Service) load(ctx context.Context) {
	start := time.Now()
	dir := s.layout.Dir

	lexical, err := store.NewLexicalIndex(s.cfg.LexicalBackend)
	if err != nil {
		s.logger.Error("lexical_backend_invalid",
			slog.String("backend", s.cfg.LexicalBackend),
			slog.String("error", err.Error()))
		lexical = store.NewOkapiIndex()
	}
	if err := lexical.Load(dir); err != nil {
		s.logArtifactError(ctx, "lexical", err)
		_ = lexical.Close()
		lexical, _ = store.NewLexicalIndex(s.cfg.LexicalBackend)
		if lexical == nil {
			lexical = store.NewOkapiIndex()
		}
	}

	dense := store.NewHNSWDenseIndex(s.embedder, s.cfg.Dense)
	if err := dense.Load(dir); err != nil {
		s.logArtifactError(ctx, "dense", err)
		dense = store.NewHNSWDenseIndex(s.embedder, s.cfg.Dense)
	} else {
		s.checkEmbedder(dense)
	}

	meta, err := store.LoadMetadata(s.layout.DocsMeta())
	if err != nil {
		s.logArtifactError(ctx, "docs_meta", err)
	}

	var build *store.BuildMeta
	if bm, ok, err := store.ReadBuildMeta(s.layout.BuildMeta()); err != nil {
		s.logArtifactError(ctx, "build_meta", err)
	} else if ok {
		build = &bm
	}

	s.mu.Lock()
	oldLexical, oldDense := s.lexical, s.dense
	s.lexical, s.dense, s.meta, s.build = lexical, dense, meta, build
	if s.state == nil {
		st, err := state.Open(s.cfg.StateBackend, s.layout, s.logger)
		if err != nil {
			s.stateErr = err
			s.logger.LogAttrs(ctx, slog.LevelError, "state_open_failed", amerrors.LogAttrs(err)...)
		} else {
			s.state, s.stateErr, s.ownsState = st, nil, true
		}
	}
	s.mu.Unlock()

	if oldLexical != nil {
		_ = oldLexical.Close()
	}
	if oldDense != nil {
		_ = oldDense.Close()
	}

	s.loads.Add(1)
	metrics.IndexLoaded(lexical.Count(), dense.Count())
	s.logger.Info("index_loaded",
		slog.String("dir", dir),
		slog.Int("bm25_docs", lexical.Count()),
		slog.Int("faiss_docs", dense.Count()),
		slog.Int("docs_meta", meta.Len()),
		slog.Duration("elapsed", time.Since(start)))
}

func (s *Service) logArtifactError(ctx context.Context, artifact string, err error) {
	if store.IsNotFound(err) {
		s.logger.Debug("index_artifact_missing",
			slog.String("artifact", artifact),
			slog.String("dir", s.layout.Dir))
		return
	}
	attrs := append([]slog.Attr{slog.String("artifact", artifact)}, amerrors.LogAttrs(err)...)
	s.logger.LogAttrs(ctx, slog.LevelWarn, "index_artifact_unreadable", attrs...)
}

// checkEmbedder warns when the query embedder cannot match the loaded index.
func (s *Service) checkEmbedder(dense *store.HNSWDenseIndex) {
	if s.embedder == nil {
		return
	}
	if dims := s.embedder.Dimensions(); dims > 0 && dense.Dimensions() > 0 && dims != dense.Dimensions() {
		s.logger.Warn("embedder_dimension_mismatch",
			slog.Int("index_dims", dense.Dimensions()),
			slog.Int("embedder_dims", dims),
			slog.String("hint", "rebuild with amanrag index or change embeddings.provider"))
	}
	if model := dense.ModelName(); model != "" && model != s.embedder.ModelName() {
		s.logger.Warn("embedder_model_mismatch",
			slog.String("index_model", model),
			slog.String("embedder_model", s.embedder.ModelName()))
	}
}

// Search runs the hybrid search.
func (s *Service) Search(ctx context.Context, req Request) ([]Hit, error) {
	start := time.Now()
	if err := req.Validate(s.cfg.MaxK); err != nil {
		metrics.ObserveSearch("invalid", 0)
		return nil, err
	}

	k := req.K
	if k == 0 {
		k = s.cfg.DefaultK
	}
	bm25W, faissW := s.cfg.BM25Weight, s.cfg.FaissWeight
	if req.BM25Weight != nil {
		bm25W = *req.BM25Weight
	}
	if req.FaissWeight != nil {
		faissW = *req.FaissWeight
	}

	s.ensureLoaded(ctx)

	fetch := max(k, s.cfg.OverFetch)
	lexicalRes, denseRes, err := s.fanOut(ctx, req.Query, fetch)
	if err != nil {
		metrics.ObserveSearch("error", 0)
		return nil, err
	}

	combined := combine(Normalize(lexicalRes), Normalize(denseRes), bm25W, faissW)

	s.mu.RLock()
	meta := s.meta
	s.mu.RUnlock()

	filtered := make([]store.RankedEntry, 0, k)
	for _, e := range combined {
		if len(filtered) == k {
			break
		}
		if meta.PassesFilter(e.DocID, req.Filters) {
			filtered = append(filtered, e)
		}
	}

	fused := RRF([][]store.RankedEntry{lexicalRes, denseRes}, k, s.cfg.RRFConstant)
	final := rerankByRRF(filtered, rrfPositions(fused), k)

	hits := make([]Hit, len(final))
	for i, e := range final {
		hits[i] = s.hit(meta, e)
	}

	metrics.ObserveSearch("ok", time.Since(start))
	s.logger.Debug("search_complete",
		slog.String("query", req.Query),
		slog.Int("k", k),
		slog.Int("bm25_results", len(lexicalRes)),
		slog.Int("faiss_results", len(denseRes)),
		slog.Int("results", len(hits)),
		slog.String("filters", req.Filters.String()),
		slog.Duration("elapsed", time.Since(start)))
	return hits, nil
}

// fanOut queries both rankers concurrently. A ranker that fails yields an
// empty list and a degraded log entry; only cancellation of ctx, or both
// rankers failing, is an error.
func (s *Service) fanOut(ctx context.Context, query string, fetch int) (lexical, dense []store.RankedEntry, err error) {
	g, gctx := errgroup.WithContext(ctx)
	var lexErr, denseErr error

	g.Go(func() error {
		s.mu.RLock()
		defer s.mu.RUnlock()
		lexical, lexErr = s.lexical.Query(gctx, query, fetch)
		return nil
	})

	g.Go(func() error {
		dense, denseErr = s.queryDense(gctx, query, fetch)
		return nil
	})

	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	if lexErr != nil {
		s.degraded(ctx, "bm25", metrics.ReasonLexicalError, lexErr)
		lexical = nil
	}
	if denseErr != nil {
		s.degraded(ctx, "faiss", denseReason(denseErr), denseErr)
		dense = nil
	}
	if lexErr != nil && denseErr != nil {
		return nil, nil, amerrors.New(amerrors.ErrCodeSearchFailed, "both rankers failed",
			errors.Join(lexErr, denseErr))
	}
	return lexical, dense, nil
}

// queryDense embeds the query and searches the dense index. An unbuilt
// index returns no results without calling the embedder.
func (s *Service) queryDense(ctx context.Context, query string, fetch int) ([]store.RankedEntry, error) {
	s.mu.RLock()
	empty := s.dense.Count() == 0
	s.mu.RUnlock()
	if empty || s.embedder == nil {
		return nil, nil
	}

	vec, err := s.embedQuery(ctx, query)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dense.QueryVector(vec, fetch)
}

type embedResult struct {
	vec []float32
	err error
}

// embedQuery calls the embedder through the circuit breaker with a hard
// deadline. A backend that ignores cancellation is abandoned, not awaited.
func (s *Service) embedQuery(ctx context.Context, query string) ([]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.EmbedTimeout)
	defer cancel()

	vec, err := amerrors.CircuitExecuteWithResult(s.breaker, func() ([]float32, error) {
		done := make(chan embedResult, 1)
		go func() {
			v, err := s.embedder.Embed(ctx, query)
			done <- embedResult{v, err}
		}()
		select {
		case r := <-done:
			return r.vec, r.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})
	if err == nil {
		return vec, nil
	}

	switch {
	case errors.Is(err, amerrors.ErrCircuitOpen):
		return nil, amerrors.BackendError("query embedding circuit is open", err)
	case errors.Is(err, context.DeadlineExceeded):
		return nil, amerrors.New(amerrors.ErrCodeEmbeddingTimeout,
			fmt.Sprintf("query embedding exceeded %s", s.cfg.EmbedTimeout), err)
	case amerrors.GetCode(err) != "":
		return nil, err
	default:
		return nil, amerrors.Wrap(amerrors.ErrCodeEmbeddingFailed, err)
	}
}

func denseReason(err error) string {
	switch {
	case errors.Is(err, amerrors.ErrCircuitOpen):
		return metrics.ReasonCircuitOpen
	case amerrors.GetCode(err) == amerrors.ErrCodeEmbeddingTimeout:
		return metrics.ReasonEmbeddingTimeout
	default:
		return metrics.ReasonBackendError
	}
}

func (s *Service) degraded(ctx context.Context, ranker, reason string, err error) {
	metrics.SearchDegraded(reason)
	attrs := append([]slog.Attr{
		slog.String("ranker", ranker),
		slog.String("reason", reason),
	}, amerrors.LogAttrs(err)...)
	s.logger.LogAttrs(ctx, slog.LevelWarn, "search_degraded", attrs...)
}

func (s *Service) hit(meta *store.MetadataStore, e store.RankedEntry) Hit {
	h := Hit{DocID: e.DocID, Score: e.Score, Source: s.cfg.DefaultSource}
	if m, ok := meta.Get(e.DocID); ok {
		h.Title = optional(m.Title)
		h.Snippet = optional(m.Snippet)
		h.Path = optional(m.Path)
		if m.Source != "" {
			h.Source = m.Source
		}
	}
	return h
}

// Stats reports document counts and build information for the loaded index.
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	s.ensureLoaded(ctx)

	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Stats{
		BM25Docs:  s.lexical.Count(),
		FaissDocs: s.dense.Count(),
		ModelName: optional(s.cfg.ModelName),
	}
	if st.ModelName == nil {
		st.ModelName = optional(s.dense.ModelName())
	}
	if s.build != nil {
		st.LastBuild = optional(s.build.LastBuild)
	}
	return st, nil
}

func (s *Service) stateStore(ctx context.Context) (state.Store, error) {
	s.ensureLoaded(ctx)

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state == nil {
		if s.stateErr != nil {
			return nil, s.stateErr
		}
		return nil, amerrors.InternalError("state store is not open", nil)
	}
	return s.state, nil
}

// ListSavedQueries returns every saved query.
func (s *Service) ListSavedQueries(ctx context.Context) (map[string]state.Payload, error) {
	st, err := s.stateStore(ctx)
	if err != nil {
		return nil, err
	}
	return st.ListQueries(ctx)
}

// SaveQuery creates or overwrites the saved query name.
func (s *Service) SaveQuery(ctx context.Context, name string, payload state.Payload) error {
	if err := state.ValidateName(name); err != nil {
		return err
	}
	st, err := s.stateStore(ctx)
	if err != nil {
		return err
	}
	if payload == nil {
		payload = state.Payload{}
	}
	if err := st.SaveQuery(ctx, name, payload); err != nil {
		return err
	}
	s.logger.Debug("saved_query_written", slog.String("name", name))
	return nil
}

// DeleteQuery removes the saved query name. Missing names are a no-op.
func (s *Service) DeleteQuery(ctx context.Context, name string) error {
	if err := state.ValidateName(name); err != nil {
		return err
	}
	st, err := s.stateStore(ctx)
	if err != nil {
		return err
	}
	return st.DeleteQuery(ctx, name)
}

// ListWatchlists returns every watchlist.
func (s *Service) ListWatchlists(ctx context.Context) (map[string][]string, error) {
	st, err := s.stateStore(ctx)
	if err != nil {
		return nil, err
	}
	return st.ListWatchlists(ctx)
}

// SaveWatchlist creates or overwrites the watchlist name. Duplicate ids are
// collapsed keeping first-seen order.
func (s *Service) SaveWatchlist(ctx context.Context, name string, docIDs []string) error {
	if err := state.ValidateName(name); err != nil {
		return err
	}
	st, err := s.stateStore(ctx)
	if err != nil {
		return err
	}
	if err := st.SaveWatchlist(ctx, name, docIDs); err != nil {
		return err
	}
	s.logger.Debug("watchlist_written",
		slog.String("name", name),
		slog.Int("size", len(docIDs)))
	return nil
}

// DeleteWatchlist removes the watchlist name. Missing names are a no-op.
func (s *Service) DeleteWatchlist(ctx context.Context, name string) error {
	if err := state.ValidateName(name); err != nil {
		return err
	}
	st, err := s.stateStore(ctx)
	if err != nil {
		return err
	}
	return st.DeleteWatchlist(ctx, name)
}

// Close releases index handles and the state store if the service opened it.
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	if s.lexical != nil {
		errs = append(errs, s.lexical.Close())
	}
	if s.dense != nil {
		errs = append(errs, s.dense.Close())
	}
	if s.ownsState && s.state != nil {
		errs = append(errs, s.state.Close())
		s.state = nil
	}
	return errors.Join(errs...)
}
