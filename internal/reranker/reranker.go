package reranker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/dshills/recordindex/internal/embedder"
)

const (
	ProviderNone = "none"
	ProviderJina = "jina"

	DefaultJinaBaseURL = "https://api.jina.ai"
	DefaultJinaModel   = "jina-reranker-v2-base-multilingual"
	DefaultTimeout     = 10 * time.Second
)

var (
	// ErrUnavailable is returned when no relevance model is configured
	ErrUnavailable = errors.New("reranker unavailable")
	// ErrBadResponse is returned when the model answers with indexes outside the input
	ErrBadResponse = errors.New("invalid reranker response")
	// ErrUnknownProvider is returned by New for an unsupported provider name
	ErrUnknownProvider = errors.New("unknown reranker provider")
)

// Passage is one candidate handed to the relevance model
type Passage struct {
	ID   string
	Text string
}

// Scored is a passage with its relevance to the query, highest first
type Scored struct {
	ID    string
	Index int // position in the input slice
	Score float64
}

// Reranker scores (query, passage) pairs jointly and reorders the passages.
// Rerank returns at most topN results; topN <= 0 means all of them.
type Reranker interface {
	Rerank(ctx context.Context, query string, passages []Passage, topN int) ([]Scored, error)
	Name() string
}

// Config selects and configures a reranker
type Config struct {
	Provider          string
	Model             string
	BaseURL           string
	APIKey            string
	APIKeyEnv         string
	Timeout           time.Duration
	MaxRetries        int
	RequestsPerSecond float64
}

// New builds the configured reranker. An empty provider or "none" yields Noop.
func New(cfg Config) (Reranker, error) {
	switch cfg.Provider {
	case "", ProviderNone:
		return Noop{}, nil
	case ProviderJina:
		key := cfg.APIKey
		if key == "" {
			env := cfg.APIKeyEnv
			if env == "" {
				env = embedder.EnvJinaAPIKey
			}
			key = os.Getenv(env)
		}
		retry := embedder.DefaultRetryConfig()
		if cfg.MaxRetries > 0 {
			retry.MaxRetries = cfg.MaxRetries
		}
		return NewJinaReranker(JinaOptions{
			APIKey:            key,
			BaseURL:           cfg.BaseURL,
			Model:             cfg.Model,
			Timeout:           cfg.Timeout,
			Retry:             retry,
			RequestsPerSecond: cfg.RequestsPerSecond,
		})
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, cfg.Provider)
	}
}

// Noop is the disabled reranker. It always reports ErrUnavailable so callers
// keep their own ordering.
type Noop struct{}

func (Noop) Rerank(context.Context, string, []Passage, int) ([]Scored, error) {
	return nil, ErrUnavailable
}

func (Noop) Name() string { return ProviderNone }
