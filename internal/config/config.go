// Package config loads amanrag configuration from defaults, YAML files,
// a .env file and the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the complete amanrag configuration.
type Config struct {
	Version    int              `yaml:"version" json:"version"`
	Index      IndexConfig      `yaml:"index" json:"index"`
	Search     SearchConfig     `yaml:"search" json:"search"`
	Embeddings EmbeddingsConfig `yaml:"embeddings" json:"embeddings"`
	State      StateConfig      `yaml:"state" json:"state"`
	Server     ServerConfig     `yaml:"server" json:"server"`
	Watch      WatchConfig      `yaml:"watch" json:"watch"`
}

// IndexConfig locates and shapes the index artifacts.
type IndexConfig struct {
	// Dir is the artifact directory (legacy env: INDEX_DIR).
	Dir string `yaml:"dir" json:"dir"`

	// CorpusDir holds corpus.jsonl, queries.jsonl and qrels/ for the build
	// job (legacy env: ACORD_DIR).
	CorpusDir string `yaml:"corpus_dir" json:"corpus_dir"`

	// LexicalBackend is "okapi" (default) or "bleve".
	LexicalBackend string `yaml:"lexical_backend" json:"lexical_backend"`

	// HNSWM is the max neighbors per graph node.
	HNSWM int `yaml:"hnsw_m" json:"hnsw_m"`

	// HNSWEfSearch is the graph search width. Values below 100 are raised
	// at build time to keep recall stable.
	HNSWEfSearch int `yaml:"hnsw_ef_search" json:"hnsw_ef_search"`
}

// SearchConfig configures hybrid search defaults.
type SearchConfig struct {
	DefaultK    int     `yaml:"default_k" json:"default_k"`
	MaxK        int     `yaml:"max_k" json:"max_k"`
	BM25Weight  float64 `yaml:"bm25_weight" json:"bm25_weight"`
	FaissWeight float64 `yaml:"faiss_weight" json:"faiss_weight"`

	// RRFConstant is the RRF smoothing parameter (k_rrf).
	RRFConstant int `yaml:"rrf_constant" json:"rrf_constant"`

	// OverFetch is the minimum number of candidates pulled from each index.
	OverFetch int `yaml:"over_fetch" json:"over_fetch"`

	// EmbedTimeout bounds the query embedding call (e.g. "5s").
	EmbedTimeout string `yaml:"embed_timeout" json:"embed_timeout"`

	// DefaultSource fills hit.source when metadata has none.
	DefaultSource string `yaml:"default_source" json:"default_source"`
}

// EmbeddingsConfig configures the embedding provider.
type EmbeddingsConfig struct {
	// Provider is static, ollama, openai or auto.
	Provider string `yaml:"provider" json:"provider"`

	// Model is reported by stats and passed to remote providers
	// (legacy env: MODEL_NAME).
	Model string `yaml:"model" json:"model"`

	// Dimensions of the static embedder; remote providers detect it.
	Dimensions int `yaml:"dimensions" json:"dimensions"`

	OllamaHost    string `yaml:"ollama_host" json:"ollama_host"`
	OpenAIBaseURL string `yaml:"openai_base_url" json:"openai_base_url"`

	BatchSize int `yaml:"batch_size" json:"batch_size"`
	Workers   int `yaml:"workers" json:"workers"`

	// CacheSize is the query embedding LRU size. 0 disables the cache.
	CacheSize int `yaml:"cache_size" json:"cache_size"`
}

// StateConfig selects the saved query / watchlist backend.
type StateConfig struct {
	// Backend is json (default), sqlite or badger.
	Backend string `yaml:"backend" json:"backend"`
}

// ServerConfig configures `amanrag serve`.
type ServerConfig struct {
	Transport string `yaml:"transport" json:"transport"`
	Addr      string `yaml:"addr" json:"addr"`
	LogLevel  string `yaml:"log_level" json:"log_level"`
}

// WatchConfig configures artifact hot reload.
type WatchConfig struct {
	Enabled  bool   `yaml:"enabled" json:"enabled"`
	Debounce string `yaml:"debounce" json:"debounce"`
}

// Default model identifier reported when nothing else is configured.
const DefaultModelName = "sentence-transformers/all-MiniLM-L6-v2"

// DefaultIndexDir is where the build job writes artifacts.
const DefaultIndexDir = "./indices"

// DefaultCorpusDir is where the build job reads the corpus.
const DefaultCorpusDir = "./data/acord"

// NewConfig creates a new Config with default values.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Index: IndexConfig{
			Dir:            DefaultIndexDir,
			CorpusDir:      DefaultCorpusDir,
			LexicalBackend: "okapi",
			HNSWM:          16,
			HNSWEfSearch:   100,
		},
		Search: SearchConfig{
			DefaultK:      10,
			MaxK:          100,
			BM25Weight:    0.5,
			FaissWeight:   0.5,
			RRFConstant:   60,
			OverFetch:     50,
			EmbedTimeout:  "5s",
			DefaultSource: "acord",
		},
		Embeddings: EmbeddingsConfig{
			Provider:   "static",
			Model:      DefaultModelName,
			Dimensions: 384,
			OllamaHost: "http://localhost:11434",
			BatchSize:  32,
			Workers:    min(runtime.NumCPU(), 4),
			CacheSize:  1000,
		},
		State: StateConfig{
			Backend: "json",
		},
		Server: ServerConfig{
			Transport: "stdio",
			Addr:      "127.0.0.1:8765",
			LogLevel:  "info",
		},
		Watch: WatchConfig{
			Enabled:  false,
			Debounce: "500ms",
		},
	}
}

// GetUserConfigPath returns the path to the user configuration file:
//   - $XDG_CONFIG_HOME/amanrag/config.yaml (if XDG_CONFIG_HOME is set)
//   - ~/.config/amanrag/config.yaml (default)
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "amanrag", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "amanrag", "config.yaml")
	}
	return filepath.Join(home, ".config", "amanrag", "config.yaml")
}

// Load loads configuration for the working directory dir.
// Precedence, lowest first:
//  1. Hardcoded defaults
//  2. User config (~/.config/amanrag/config.yaml)
//  3. Project config (.amanrag.yaml or .amanrag.yml in dir)
//  4. .env in dir (never overrides variables already set)
//  5. Environment variables (AMANRAG_*, INDEX_DIR, MODEL_NAME)
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if err := cfg.overlayYAML(GetUserConfigPath()); err != nil {
		return nil, fmt.Errorf("failed to load user config: %w", err)
	}

	for _, name := range []string{".amanrag.yaml", ".amanrag.yml"} {
		path := filepath.Join(dir, name)
		if !fileExists(path) {
			continue
		}
		if err := cfg.overlayYAML(path); err != nil {
			return nil, err
		}
		break
	}

	if err := loadDotEnv(filepath.Join(dir, ".env")); err != nil {
		return nil, err
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// overlayYAML decodes path on top of the current values, so keys absent
// from the file keep their value and explicit zeros are honored.
// A missing file is not an error.
func (c *Config) overlayYAML(path string) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func loadDotEnv(path string) error {
	if !fileExists(path) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// applyEnvOverrides applies environment variables. Legacy names are read
// first so the AMANRAG_ form wins when both are set.
func (c *Config) applyEnvOverrides() error {
	setString := func(target *string, names ...string) {
		for _, name := range names {
			if v := os.Getenv(name); v != "" {
				*target = v
			}
		}
	}

	setString(&c.Index.Dir, "INDEX_DIR", "AMANRAG_INDEX_DIR")
	setString(&c.Index.CorpusDir, "ACORD_DIR", "AMANRAG_CORPUS_DIR")
	setString(&c.Index.LexicalBackend, "AMANRAG_LEXICAL_BACKEND")
	setString(&c.Embeddings.Provider, "AMANRAG_EMBEDDINGS_PROVIDER")
	setString(&c.Embeddings.Model, "MODEL_NAME", "AMANRAG_EMBEDDINGS_MODEL")
	setString(&c.Embeddings.OllamaHost, "AMANRAG_OLLAMA_HOST")
	setString(&c.Embeddings.OpenAIBaseURL, "AMANRAG_OPENAI_BASE_URL")
	setString(&c.State.Backend, "AMANRAG_STATE_BACKEND")
	setString(&c.Server.Transport, "AMANRAG_TRANSPORT")
	setString(&c.Server.Addr, "AMANRAG_ADDR")
	setString(&c.Server.LogLevel, "AMANRAG_LOG_LEVEL")
	setString(&c.Search.EmbedTimeout, "AMANRAG_EMBED_TIMEOUT")

	floats := []struct {
		name   string
		target *float64
	}{
		{"AMANRAG_BM25_WEIGHT", &c.Search.BM25Weight},
		{"AMANRAG_FAISS_WEIGHT", &c.Search.FaissWeight},
	}
	for _, f := range floats {
		v := os.Getenv(f.name)
		if v == "" {
			continue
		}
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("%s: invalid number %q", f.name, v)
		}
		*f.target = parsed
	}

	ints := []struct {
		name   string
		target *int
	}{
		{"AMANRAG_RRF_CONSTANT", &c.Search.RRFConstant},
		{"AMANRAG_DEFAULT_K", &c.Search.DefaultK},
		{"AMANRAG_EMBEDDINGS_DIMENSIONS", &c.Embeddings.Dimensions},
	}
	for _, i := range ints {
		v := os.Getenv(i.name)
		if v == "" {
			continue
		}
		parsed, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: invalid integer %q", i.name, v)
		}
		*i.target = parsed
	}

	if v := os.Getenv("AMANRAG_WATCH"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("AMANRAG_WATCH: invalid boolean %q", v)
		}
		c.Watch.Enabled = enabled
	}

	return nil
}

// OpenAIAPIKey returns the API key for the openai provider. Secrets are
// only read from the environment, never from config files.
func OpenAIAPIKey() string {
	if v := os.Getenv("AMANRAG_OPENAI_API_KEY"); v != "" {
		return v
	}
	return os.Getenv("OPENAI_API_KEY")
}

// EmbedTimeoutDuration parses Search.EmbedTimeout, defaulting to 5s.
func (c *Config) EmbedTimeoutDuration() time.Duration {
	return parseDuration(c.Search.EmbedTimeout, 5*time.Second)
}

// WatchDebounceDuration parses Watch.Debounce, defaulting to 500ms.
func (c *Config) WatchDebounceDuration() time.Duration {
	return parseDuration(c.Watch.Debounce, 500*time.Millisecond)
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	if c.Index.Dir == "" {
		return fmt.Errorf("index.dir must not be empty")
	}
	if !oneOf(c.Index.LexicalBackend, "okapi", "bleve") {
		return fmt.Errorf("index.lexical_backend must be 'okapi' or 'bleve', got %s", c.Index.LexicalBackend)
	}
	if c.Index.HNSWM <= 0 {
		return fmt.Errorf("index.hnsw_m must be positive, got %d", c.Index.HNSWM)
	}

	if c.Search.BM25Weight < 0 {
		return fmt.Errorf("search.bm25_weight must be non-negative, got %f", c.Search.BM25Weight)
	}
	if c.Search.FaissWeight < 0 {
		return fmt.Errorf("search.faiss_weight must be non-negative, got %f", c.Search.FaissWeight)
	}
	if c.Search.DefaultK <= 0 {
		return fmt.Errorf("search.default_k must be positive, got %d", c.Search.DefaultK)
	}
	if c.Search.MaxK < c.Search.DefaultK {
		return fmt.Errorf("search.max_k (%d) must be at least search.default_k (%d)", c.Search.MaxK, c.Search.DefaultK)
	}
	if c.Search.RRFConstant <= 0 {
		return fmt.Errorf("search.rrf_constant must be positive, got %d", c.Search.RRFConstant)
	}
	if c.Search.OverFetch < 0 {
		return fmt.Errorf("search.over_fetch must be non-negative, got %d", c.Search.OverFetch)
	}

	if !oneOf(c.Embeddings.Provider, "static", "ollama", "openai", "auto") {
		return fmt.Errorf("embeddings.provider must be 'static', 'ollama', 'openai' or 'auto', got %s", c.Embeddings.Provider)
	}
	if c.Embeddings.Dimensions < 0 {
		return fmt.Errorf("embeddings.dimensions must be non-negative, got %d", c.Embeddings.Dimensions)
	}
	if c.Embeddings.BatchSize <= 0 {
		return fmt.Errorf("embeddings.batch_size must be positive, got %d", c.Embeddings.BatchSize)
	}

	if !oneOf(c.State.Backend, "json", "sqlite", "badger") {
		return fmt.Errorf("state.backend must be 'json', 'sqlite' or 'badger', got %s", c.State.Backend)
	}

	if !oneOf(c.Server.Transport, "stdio", "http") {
		return fmt.Errorf("server.transport must be 'stdio' or 'http', got %s", c.Server.Transport)
	}
	if !oneOf(c.Server.LogLevel, "debug", "info", "warn", "error") {
		return fmt.Errorf("server.log_level must be 'debug', 'info', 'warn', or 'error', got %s", c.Server.LogLevel)
	}

	return nil
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func oneOf(v string, options ...string) bool {
	v = strings.ToLower(v)
	for _, o := range options {
		if v == o {
			return true
		}
	}
	return false
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
