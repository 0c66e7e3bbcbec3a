package embedder

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// EnvProvider selects the provider when set
const EnvProvider = "RECORDINDEX_EMBEDDING_PROVIDER"

// Config holds embedder configuration
type Config struct {
	Provider          string
	Model             string
	BaseURL           string
	APIKey            string
	Dimension         int
	Timeout           time.Duration
	MaxRetries        int
	RequestsPerSecond float64
	CacheSize         int
}

// New creates an embedder with explicit configuration. An empty provider
// is resolved with DetectProvider.
func New(cfg Config) (Embedder, error) {
	var cache *Cache
	if cfg.CacheSize > 0 {
		cache = NewCache(cfg.CacheSize)
	}

	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))
	if provider == "" {
		provider = DetectProvider()
	}

	retry := DefaultRetryConfig()
	if cfg.MaxRetries > 0 {
		retry.MaxRetries = cfg.MaxRetries
	}

	opts := Options{
		APIKey:            cfg.APIKey,
		BaseURL:           cfg.BaseURL,
		Model:             cfg.Model,
		Dimension:         cfg.Dimension,
		Timeout:           cfg.Timeout,
		Retry:             retry,
		RequestsPerSecond: cfg.RequestsPerSecond,
		Cache:             cache,
	}

	switch provider {
	case ProviderJina:
		if opts.APIKey == "" {
			opts.APIKey = os.Getenv(EnvJinaAPIKey)
		}
		return NewJinaProvider(opts)
	case ProviderOpenAI:
		if opts.APIKey == "" {
			opts.APIKey = os.Getenv(EnvOpenAIAPIKey)
		}
		return NewOpenAIProvider(opts)
	case ProviderLocal:
		return NewLocalProvider(cfg.Dimension, cache)
	default:
		return nil, fmt.Errorf("%w: unknown provider %s", ErrUnsupportedModel, cfg.Provider)
	}
}

// NewFromEnv creates an embedder using only environment variables
func NewFromEnv() (Embedder, error) {
	return New(Config{CacheSize: DefaultCacheSize})
}

// DetectProvider returns the provider that would be used based on current environment.
// Priority: RECORDINDEX_EMBEDDING_PROVIDER, then JINA_API_KEY, then OPENAI_API_KEY,
// then the offline local provider.
func DetectProvider() string {
	provider := os.Getenv(EnvProvider)
	if provider != "" {
		return strings.ToLower(provider)
	}

	if os.Getenv(EnvJinaAPIKey) != "" {
		return ProviderJina
	}
	if os.Getenv(EnvOpenAIAPIKey) != "" {
		return ProviderOpenAI
	}

	return ProviderLocal
}
