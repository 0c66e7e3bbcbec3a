package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Provider configuration
const (
	ProviderJina   = "jina"
	ProviderOpenAI = "openai"
	ProviderLocal  = "local"

	EnvJinaAPIKey   = "JINA_API_KEY"
	EnvOpenAIAPIKey = "OPENAI_API_KEY"

	// Default endpoints
	DefaultJinaBaseURL   = "https://api.jina.ai"
	DefaultOpenAIBaseURL = "https://api.openai.com"

	// Default models
	DefaultJinaModel   = "jina-embeddings-v3"
	DefaultOpenAIModel = "text-embedding-3-small"
	DefaultLocalModel  = "local-hashing-v1"

	// Dimensions
	JinaDimension   = 1024
	OpenAIDimension = 1536
	LocalDimension  = 384

	// Batch limits
	DefaultBatchSize = 50
	MaxBatchSize     = 100

	DefaultCacheSize = 10000
	DefaultTimeout   = 30 * time.Second

	// Retry configuration
	MaxRetries        = 3
	InitialBackoffMs  = 100
	MaxBackoffMs      = 5000
	BackoffMultiplier = 2.0
)

// Options configures a remote provider
type Options struct {
	APIKey  string
	BaseURL string
	Model   string

	// Dimension is sent to the API as "dimensions" when set, and every
	// returned vector is checked against it.
	Dimension int

	Timeout           time.Duration
	Retry             RetryConfig
	RequestsPerSecond float64
	Cache             *Cache
}

// HTTPProvider calls an embeddings endpoint that speaks the
// {"input": [...], "model": ...} -> {"data": [{"index", "embedding"}]} format
// shared by Jina AI and OpenAI-compatible servers.
type HTTPProvider struct {
	name       string
	apiKey     string
	endpoint   string
	model      string
	dimension  int
	sendDims   bool
	timeout    time.Duration
	retry      RetryConfig
	limiter    *RateLimiter
	httpClient *http.Client
	cache      *Cache
}

// NewJinaProvider creates a Jina AI embedder
func NewJinaProvider(opts Options) (*HTTPProvider, error) {
	return newHTTPProvider(ProviderJina, DefaultJinaBaseURL, DefaultJinaModel, JinaDimension, EnvJinaAPIKey, opts)
}

// NewOpenAIProvider creates an embedder for OpenAI or any server exposing
// the same /v1/embeddings API
func NewOpenAIProvider(opts Options) (*HTTPProvider, error) {
	return newHTTPProvider(ProviderOpenAI, DefaultOpenAIBaseURL, DefaultOpenAIModel, OpenAIDimension, EnvOpenAIAPIKey, opts)
}

func newHTTPProvider(name, baseURL, model string, dimension int, keyEnv string, opts Options) (*HTTPProvider, error) {
	if opts.APIKey == "" {
		return nil, fmt.Errorf("%w: %s not set", ErrNoProviderEnabled, keyEnv)
	}

	p := &HTTPProvider{
		name:      name,
		apiKey:    opts.APIKey,
		model:     model,
		dimension: dimension,
		timeout:   opts.Timeout,
		retry:     opts.Retry,
		limiter:   NewRateLimiter(opts.RequestsPerSecond, 1),
		cache:     opts.Cache,
	}
	if opts.BaseURL != "" {
		baseURL = opts.BaseURL
	}
	p.endpoint = strings.TrimRight(baseURL, "/") + "/v1/embeddings"
	if opts.Model != "" {
		p.model = opts.Model
	}
	if opts.Dimension > 0 {
		p.dimension = opts.Dimension
		p.sendDims = true
	}
	if p.timeout <= 0 {
		p.timeout = DefaultTimeout
	}
	if p.retry.MaxRetries <= 0 {
		p.retry = DefaultRetryConfig()
	}
	p.httpClient = &http.Client{Timeout: p.timeout}

	return p, nil
}

func (p *HTTPProvider) GenerateEmbedding(ctx context.Context, req EmbeddingRequest) (*Embedding, error) {
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}

	resp, err := p.GenerateBatch(ctx, BatchEmbeddingRequest{
		Texts: []string{req.Text},
		Model: req.Model,
	})
	if err != nil {
		return nil, err
	}

	if len(resp.Embeddings) == 0 {
		return nil, fmt.Errorf("%w: no embeddings returned", ErrProviderFailed)
	}

	return resp.Embeddings[0], nil
}

func (p *HTTPProvider) GenerateBatch(ctx context.Context, req BatchEmbeddingRequest) (*BatchEmbeddingResponse, error) {
	if err := ValidateBatchRequest(req); err != nil {
		return nil, err
	}

	if len(req.Texts) > MaxBatchSize {
		return nil, fmt.Errorf("%w: max %d texts allowed", ErrBatchTooLarge, MaxBatchSize)
	}

	model := req.Model
	if model == "" {
		model = p.model
	}

	// Only texts missing from the cache go over the wire
	embeddings := make([]*Embedding, len(req.Texts))
	var missing []int
	for i, text := range req.Texts {
		if p.cache != nil {
			if emb, ok := p.cache.Get(ComputeHash(model, text)); ok {
				embeddings[i] = emb
				continue
			}
		}
		missing = append(missing, i)
	}

	if len(missing) > 0 {
		texts := make([]string, len(missing))
		for j, i := range missing {
			texts[j] = req.Texts[i]
		}

		fetched, err := RetryWithBackoff(ctx, p.retry, func() ([]*Embedding, error) {
			return p.callAPI(ctx, texts, model)
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrProviderFailed, err)
		}

		for j, i := range missing {
			emb := fetched[j]
			emb.Hash = ComputeHash(model, req.Texts[i])
			if p.cache != nil {
				p.cache.Set(emb.Hash, emb)
			}
			embeddings[i] = emb
		}
	}

	return &BatchEmbeddingResponse{
		Embeddings: embeddings,
		Provider:   p.name,
		Model:      model,
	}, nil
}

func (p *HTTPProvider) callAPI(ctx context.Context, texts []string, model string) ([]*Embedding, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	reqBody := map[string]any{
		"input": texts,
		"model": model,
	}
	if p.sendDims {
		reqBody["dimensions"] = p.dimension
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, Permanent(fmt.Errorf("marshal request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, Permanent(fmt.Errorf("create request: %w", err))
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("api call: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, p.statusError(resp)
	}

	var apiResp struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		} `json:"data"`
		Model string `json:"model"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	if len(apiResp.Data) != len(texts) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(apiResp.Data))
	}

	sort.SliceStable(apiResp.Data, func(a, b int) bool {
		return apiResp.Data[a].Index < apiResp.Data[b].Index
	})

	responseModel := apiResp.Model
	if responseModel == "" {
		responseModel = model
	}

	embeddings := make([]*Embedding, len(apiResp.Data))
	for i, data := range apiResp.Data {
		if err := ValidateDimension(data.Embedding, p.dimension); err != nil {
			return nil, Permanent(err)
		}
		embeddings[i] = &Embedding{
			Vector:    data.Embedding,
			Dimension: len(data.Embedding),
			Provider:  p.name,
			Model:     responseModel,
		}
	}

	return embeddings, nil
}

// statusError classifies a non-200 response. 429 and 5xx are retried.
func (p *HTTPProvider) statusError(resp *http.Response) error {
	bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	err := fmt.Errorf("api error %d: %s", resp.StatusCode, strings.TrimSpace(string(bodyBytes)))

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		p.limiter.RecordRateLimit(retryAfter(resp.Header.Get("Retry-After")))
		return err
	case resp.StatusCode >= 500:
		return err
	default:
		return Permanent(err)
	}
}

func retryAfter(v string) time.Duration {
	secs, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

func (p *HTTPProvider) Dimension() int {
	return p.dimension
}

func (p *HTTPProvider) Provider() string {
	return p.name
}

func (p *HTTPProvider) Model() string {
	return p.model
}

func (p *HTTPProvider) Close() error {
	p.httpClient.CloseIdleConnections()
	return nil
}
