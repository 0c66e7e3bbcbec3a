// Package config loads recordindex settings from a YAML file and the
// environment. Environment variables override the file; missing values
// fall back to built-in defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dshills/recordindex/internal/embedder"
	"github.com/dshills/recordindex/internal/indexer"
	"github.com/dshills/recordindex/internal/logging"
	"github.com/dshills/recordindex/internal/reranker"
	"github.com/dshills/recordindex/internal/searcher"
	"github.com/dshills/recordindex/internal/storage"
)

// DefaultFile is looked up in the working directory when no path is given
const DefaultFile = "recordindex.yaml"

// Environment overrides
const (
	EnvDBDriver          = "RECORDINDEX_DB_DRIVER"
	EnvDBDSN             = "RECORDINDEX_DB_DSN"
	EnvEmbeddingProvider = embedder.EnvProvider
	EnvLogLevel          = "RECORDINDEX_LOG_LEVEL"
	EnvLanguage          = "RECORDINDEX_LANGUAGE"
)

// StorageConfig selects the index backend
type StorageConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
	// Language drives stemming and stop words in both backends
	Language string `yaml:"language"`
}

// EmbedderConfig selects and configures the embedding provider
type EmbedderConfig struct {
	Provider          string        `yaml:"provider"`
	Model             string        `yaml:"model"`
	BaseURL           string        `yaml:"base_url"`
	APIKeyEnv         string        `yaml:"api_key_env"`
	Dimension         int           `yaml:"dimension"`
	Timeout           time.Duration `yaml:"timeout"`
	MaxRetries        int           `yaml:"max_retries"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	CacheSize         int           `yaml:"cache_size"`
}

// SearchConfig tunes hybrid retrieval
type SearchConfig struct {
	DefaultK            int           `yaml:"default_k"`
	RerankCandidates    int           `yaml:"rerank_candidates"`
	RRFConstant         float64       `yaml:"rrf_constant"`
	MinQueryLength      int           `yaml:"min_query_length"`
	VectorMinSimilarity *float64      `yaml:"vector_min_similarity"`
	CacheSize           int           `yaml:"cache_size"`
	CacheTTL            time.Duration `yaml:"cache_ttl"`
	ConcurrentLegs      *bool         `yaml:"concurrent_legs"`
}

// RerankerConfig selects the optional relevance model
type RerankerConfig struct {
	Provider  string        `yaml:"provider"`
	Model     string        `yaml:"model"`
	BaseURL   string        `yaml:"base_url"`
	APIKeyEnv string        `yaml:"api_key_env"`
	Timeout   time.Duration `yaml:"timeout"`
}

// IndexerConfig tunes change sync and bulk runs
type IndexerConfig struct {
	Workers      int `yaml:"workers"`
	BatchSize    int `yaml:"batch_size"`
	MaxTextChars int `yaml:"max_text_chars"`
}

// Config is the root configuration
type Config struct {
	Storage  StorageConfig  `yaml:"storage"`
	Embedder EmbedderConfig `yaml:"embedder"`
	Search   SearchConfig   `yaml:"search"`
	Reranker RerankerConfig `yaml:"reranker"`
	Indexer  IndexerConfig  `yaml:"indexer"`
	Log      logging.Config `yaml:"log"`
}

// Default returns the configuration used when no file exists
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// Load reads path, or DefaultFile when path is empty, then applies
// environment overrides and defaults. A missing default file is not an
// error; a missing explicit path is.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		path = DefaultFile
	}

	cfg := &Config{}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	applyDefaults(cfg)
	return cfg, nil
}

// Save writes cfg to path, creating directories as needed
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func applyEnv(cfg *Config) error {
	if v := os.Getenv(EnvDBDriver); v != "" {
		cfg.Storage.Driver = v
	}
	if v := os.Getenv(EnvDBDSN); v != "" {
		cfg.Storage.DSN = v
	}
	if v := os.Getenv(EnvLanguage); v != "" {
		cfg.Storage.Language = v
	}
	if v := os.Getenv(EnvEmbeddingProvider); v != "" {
		cfg.Embedder.Provider = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("RECORDINDEX_SEARCH_CONCURRENT_LEGS"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("RECORDINDEX_SEARCH_CONCURRENT_LEGS: %w", err)
		}
		cfg.Search.ConcurrentLegs = &b
	}
	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = storage.DriverSQLite
	}
	if cfg.Storage.DSN == "" && cfg.Storage.Driver == storage.DriverSQLite {
		cfg.Storage.DSN = "recordindex.db"
	}
	if cfg.Storage.Language == "" {
		cfg.Storage.Language = storage.DefaultLanguage
	}

	if cfg.Embedder.Provider == "" {
		cfg.Embedder.Provider = embedder.DetectProvider()
	}
	if cfg.Embedder.Timeout <= 0 {
		cfg.Embedder.Timeout = embedder.DefaultTimeout
	}
	if cfg.Embedder.MaxRetries <= 0 {
		cfg.Embedder.MaxRetries = embedder.MaxRetries
	}
	if cfg.Embedder.CacheSize <= 0 {
		cfg.Embedder.CacheSize = embedder.DefaultCacheSize
	}

	d := searcher.DefaultConfig()
	if cfg.Search.DefaultK <= 0 {
		cfg.Search.DefaultK = d.DefaultK
	}
	if cfg.Search.RerankCandidates <= 0 {
		cfg.Search.RerankCandidates = d.RerankCandidates
	}
	if cfg.Search.RRFConstant <= 0 {
		cfg.Search.RRFConstant = d.RRFConstant
	}
	if cfg.Search.MinQueryLength <= 0 {
		cfg.Search.MinQueryLength = d.MinQueryLength
	}
	if cfg.Search.VectorMinSimilarity == nil {
		cfg.Search.VectorMinSimilarity = &d.VectorMinSimilarity
	}
	if cfg.Search.CacheSize <= 0 {
		cfg.Search.CacheSize = d.CacheSize
	}
	if cfg.Search.CacheTTL <= 0 {
		cfg.Search.CacheTTL = d.CacheTTL
	}
	if cfg.Search.ConcurrentLegs == nil {
		cfg.Search.ConcurrentLegs = &d.ConcurrentLegs
	}

	if cfg.Reranker.Provider == "" {
		cfg.Reranker.Provider = reranker.ProviderNone
	}
	if cfg.Reranker.Timeout <= 0 {
		cfg.Reranker.Timeout = reranker.DefaultTimeout
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = logging.FormatConsole
	}
}

// StorageOptions converts the storage section for storage.Open
func (c *Config) StorageOptions() storage.Config {
	return storage.Config{
		Driver:   c.Storage.Driver,
		DSN:      c.Storage.DSN,
		Language: c.Storage.Language,
	}
}

// EmbedderOptions converts the embedder section for embedder.New
func (c *Config) EmbedderOptions() embedder.Config {
	e := c.Embedder
	return embedder.Config{
		Provider:          e.Provider,
		Model:             e.Model,
		BaseURL:           e.BaseURL,
		APIKey:            envOr(e.APIKeyEnv),
		Dimension:         e.Dimension,
		Timeout:           e.Timeout,
		MaxRetries:        e.MaxRetries,
		RequestsPerSecond: e.RequestsPerSecond,
		CacheSize:         e.CacheSize,
	}
}

// SearchOptions converts the search section for searcher.NewSearcher
func (c *Config) SearchOptions() searcher.Config {
	s := c.Search
	cfg := searcher.Config{
		DefaultK:         s.DefaultK,
		RerankCandidates: s.RerankCandidates,
		RRFConstant:      s.RRFConstant,
		MinQueryLength:   s.MinQueryLength,
		CacheSize:        s.CacheSize,
		CacheTTL:         s.CacheTTL,
	}
	if s.VectorMinSimilarity != nil {
		cfg.VectorMinSimilarity = *s.VectorMinSimilarity
	}
	if s.ConcurrentLegs != nil {
		cfg.ConcurrentLegs = *s.ConcurrentLegs
	}
	return cfg
}

// RerankerOptions converts the reranker section for reranker.New
func (c *Config) RerankerOptions() reranker.Config {
	r := c.Reranker
	return reranker.Config{
		Provider:   strings.ToLower(r.Provider),
		Model:      r.Model,
		BaseURL:    r.BaseURL,
		APIKeyEnv:  r.APIKeyEnv,
		Timeout:    r.Timeout,
		MaxRetries: c.Embedder.MaxRetries,
	}
}

// IndexerOptions converts the indexer section for indexer.New
func (c *Config) IndexerOptions() indexer.Config {
	return indexer.Config{
		Workers:      c.Indexer.Workers,
		BatchSize:    c.Indexer.BatchSize,
		MaxTextChars: c.Indexer.MaxTextChars,
	}
}

// envOr reads the named variable; an empty name yields "" so the
// provider falls back to its standard key variable
func envOr(name string) string {
	if name == "" {
		return ""
	}
	return os.Getenv(name)
}
