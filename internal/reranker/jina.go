package reranker

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

	"github.com/dshills/recordindex/internal/embedder"
)

// JinaOptions configures a JinaReranker
type JinaOptions struct {
	APIKey            string
	BaseURL           string
	Model             string
	Timeout           time.Duration
	Retry             embedder.RetryConfig
	RequestsPerSecond float64
}

// JinaReranker calls a cross-encoder behind the Jina-compatible /v1/rerank API
type JinaReranker struct {
	apiKey     string
	endpoint   string
	model      string
	timeout    time.Duration
	retry      embedder.RetryConfig
	limiter    *embedder.RateLimiter
	httpClient *http.Client
}

// NewJinaReranker creates a reranker client. The API key is required.
func NewJinaReranker(opts JinaOptions) (*JinaReranker, error) {
	if opts.APIKey == "" {
		return nil, fmt.Errorf("%w: api key not set", ErrUnavailable)
	}

	r := &JinaReranker{
		apiKey:  opts.APIKey,
		model:   DefaultJinaModel,
		timeout: opts.Timeout,
		retry:   opts.Retry,
		limiter: embedder.NewRateLimiter(opts.RequestsPerSecond, 1),
	}
	baseURL := DefaultJinaBaseURL
	if opts.BaseURL != "" {
		baseURL = opts.BaseURL
	}
	r.endpoint = strings.TrimRight(baseURL, "/") + "/v1/rerank"
	if opts.Model != "" {
		r.model = opts.Model
	}
	if r.timeout <= 0 {
		r.timeout = DefaultTimeout
	}
	if r.retry.MaxRetries <= 0 {
		r.retry = embedder.DefaultRetryConfig()
	}
	r.httpClient = &http.Client{Timeout: r.timeout}

	return r, nil
}

func (r *JinaReranker) Name() string { return ProviderJina }

func (r *JinaReranker) Rerank(ctx context.Context, query string, passages []Passage, topN int) ([]Scored, error) {
	if len(passages) == 0 {
		return nil, nil
	}
	if topN <= 0 || topN > len(passages) {
		topN = len(passages)
	}

	documents := make([]string, len(passages))
	for i, p := range passages {
		documents[i] = p.Text
	}

	return embedder.RetryWithBackoff(ctx, r.retry, func() ([]Scored, error) {
		return r.call(ctx, query, documents, passages, topN)
	})
}

type rerankResponse struct {
	Results []struct {
		Index          int     `json:"index"`
		RelevanceScore float64 `json:"relevance_score"`
	} `json:"results"`
}

func (r *JinaReranker) call(ctx context.Context, query string, documents []string, passages []Passage, topN int) ([]Scored, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	body, err := json.Marshal(map[string]any{
		"model":     r.model,
		"query":     query,
		"documents": documents,
		"top_n":     topN,
	})
	if err != nil {
		return nil, embedder.Permanent(fmt.Errorf("marshal request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, embedder.Permanent(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+r.apiKey)

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rerank call: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, r.statusError(resp)
	}

	var out rerankResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	scored := make([]Scored, 0, len(out.Results))
	seen := make(map[int]bool, len(out.Results))
	for _, res := range out.Results {
		if res.Index < 0 || res.Index >= len(passages) || seen[res.Index] {
			return nil, embedder.Permanent(fmt.Errorf("%w: index %d", ErrBadResponse, res.Index))
		}
		seen[res.Index] = true
		scored = append(scored, Scored{
			ID:    passages[res.Index].ID,
			Index: res.Index,
			Score: res.RelevanceScore,
		})
	}

	sort.SliceStable(scored, func(a, b int) bool {
		return scored[a].Score > scored[b].Score
	})
	if len(scored) > topN {
		scored = scored[:topN]
	}

	return scored, nil
}

func (r *JinaReranker) statusError(resp *http.Response) error {
	bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	err := fmt.Errorf("rerank api error %d: %s", resp.StatusCode, strings.TrimSpace(string(bodyBytes)))

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		secs, _ := strconv.Atoi(strings.TrimSpace(resp.Header.Get("Retry-After")))
		r.limiter.RecordRateLimit(time.Duration(secs) * time.Second)
		return err
	case resp.StatusCode >= 500:
		return err
	default:
		return embedder.Permanent(err)
	}
}
