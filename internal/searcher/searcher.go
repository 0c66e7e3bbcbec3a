package searcher

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/recordindex/internal/embedder"
	"github.com/dshills/recordindex/internal/reranker"
	"github.com/dshills/recordindex/internal/storage"
	"github.com/dshills/recordindex/pkg/types"
)

// SearchMode defines how search is performed
type SearchMode string

const (
	SearchModeHybrid  SearchMode = "hybrid"  // Vector + lexical with RRF
	SearchModeVector  SearchMode = "vector"  // Vector similarity only
	SearchModeKeyword SearchMode = "keyword" // Full-text search only
)

var (
	// ErrInvalidMode is returned for an unknown SearchMode
	ErrInvalidMode = errors.New("unsupported search mode")
	// ErrBothLegsFailed is returned when neither the vector nor the lexical query succeeded
	ErrBothLegsFailed = errors.New("both searches failed")
)

// ParseMode converts a string into a SearchMode. Empty means hybrid.
func ParseMode(s string) (SearchMode, error) {
	switch m := SearchMode(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return SearchModeHybrid, nil
	case SearchModeHybrid, SearchModeVector, SearchModeKeyword:
		return m, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidMode, s)
	}
}

// Config tunes retrieval and fusion
type Config struct {
	DefaultK         int
	MaxK             int
	RerankCandidates int
	RRFConstant      float64
	MinQueryLength   int

	// VectorMinSimilarity drops vector hits whose cosine similarity is below
	// the floor. Zero keeps every neighbour.
	VectorMinSimilarity float64

	CacheSize      int
	CacheTTL       time.Duration
	ConcurrentLegs bool
}

// DefaultConfig returns the default search configuration
func DefaultConfig() Config {
	return Config{
		DefaultK:            5,
		MaxK:                100,
		RerankCandidates:    10,
		RRFConstant:         60,
		MinQueryLength:      2,
		VectorMinSimilarity: 0.25,
		CacheSize:           1000,
		CacheTTL:            time.Hour,
		ConcurrentLegs:      true,
	}
}

func (c *Config) applyDefaults() {
	d := DefaultConfig()
	if c.DefaultK <= 0 {
		c.DefaultK = d.DefaultK
	}
	if c.MaxK <= 0 {
		c.MaxK = d.MaxK
	}
	if c.RerankCandidates <= 0 {
		c.RerankCandidates = d.RerankCandidates
	}
	if c.RRFConstant <= 0 {
		c.RRFConstant = d.RRFConstant
	}
	if c.MinQueryLength <= 0 {
		c.MinQueryLength = d.MinQueryLength
	}
	if c.CacheSize <= 0 {
		c.CacheSize = d.CacheSize
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = d.CacheTTL
	}
}

// SearchRequest contains parameters for a search operation
type SearchRequest struct {
	Query       string
	K           int
	TenantID    string
	RecordTypes []types.RecordType
	Mode        SearchMode
	UseCache    bool // Whether to use the result cache
	NoRerank    bool // Skip the reranker and return fused order
}

// SearchResponse contains search results and metadata
type SearchResponse struct {
	Results       []types.SearchResult
	TotalResults  int
	SearchMode    SearchMode
	Duration      time.Duration
	CacheHit      bool
	Reranked      bool
	VectorResults int
	TextResults   int
}

// cacheStamp identifies the index state a response was computed from.
// revision comes from the store and also moves on writes by other
// processes; epoch and generation move on local invalidation.
type cacheStamp struct {
	revision   int64
	epoch      uint64
	generation uint64
}

// cacheEntry represents a cached search response with expiration time
type cacheEntry struct {
	tenant    string
	stamp     cacheStamp
	response  *SearchResponse
	expiresAt time.Time
}

// Searcher runs tenant-scoped hybrid queries against a Store
type Searcher struct {
	store    storage.Store
	embedder embedder.Embedder
	reranker reranker.Reranker
	cfg      Config
	logger   zerolog.Logger
	cache    *lru.Cache[[32]byte, *cacheEntry]
	cacheMu  sync.RWMutex

	// guarded by cacheMu
	epoch       uint64
	generations map[string]uint64
}

// NewSearcher creates a Searcher. A nil or Noop reranker disables the
// rerank pass. A nil embedder limits the searcher to keyword mode.
func NewSearcher(store storage.Store, emb embedder.Embedder, rr reranker.Reranker, cfg Config, logger zerolog.Logger) (*Searcher, error) {
	if store == nil {
		return nil, errors.New("store is required")
	}
	cfg.applyDefaults()

	cache, err := lru.New[[32]byte, *cacheEntry](cfg.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create LRU cache: %w", err)
	}

	if _, ok := rr.(reranker.Noop); ok {
		rr = nil
	}

	return &Searcher{
		store:    store,
		embedder: emb,
		reranker: rr,
		cfg:      cfg,
		logger:   logger.With().Str("component", "searcher").Logger(),
		cache:    cache,

		generations: make(map[string]uint64),
	}, nil
}

// Config returns the effective configuration
func (s *Searcher) Config() Config {
	return s.cfg
}

// Search performs a search based on the request parameters. A missing
// tenant is rejected before any store access.
func (s *Searcher) Search(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	startTime := time.Now()

	filter, err := storage.NewTenantFilter(req.TenantID, req.RecordTypes...)
	if err != nil {
		return nil, err
	}
	req.TenantID = filter.Tenant()

	if err := s.validateRequest(&req); err != nil {
		return nil, fmt.Errorf("invalid search request: %w", err)
	}

	if s.tooShort(req.Query) {
		return &SearchResponse{SearchMode: req.Mode, Duration: time.Since(startTime)}, nil
	}

	// The stamp is taken before retrieval so a write that lands mid-search
	// keeps the stale response out of the cache
	var stamp cacheStamp
	cacheable := req.UseCache
	if cacheable {
		stamp, err = s.currentStamp(ctx, filter)
		if err != nil {
			s.logger.Warn().Err(err).Msg("index revision unavailable, bypassing cache")
			cacheable = false
		} else if cached := s.checkCache(req, stamp); cached != nil {
			cached.CacheHit = true
			cached.Duration = time.Since(startTime)
			return cached, nil
		}
	}

	fused, stats, err := s.retrieve(ctx, req.Query, req.K, req.Mode, filter)
	if err != nil {
		return nil, err
	}

	rerank := !req.NoRerank
	ranked, reranked := s.finalize(ctx, req.Query, fused, req.K, rerank)
	if rerank && s.reranker != nil && len(fused) > 0 && !reranked {
		// fused order after a reranker failure is not worth keeping
		cacheable = false
	}

	response := &SearchResponse{
		Results:       ranked,
		TotalResults:  len(ranked),
		SearchMode:    req.Mode,
		Reranked:      reranked,
		VectorResults: stats.vector,
		TextResults:   stats.text,
	}

	if cacheable {
		s.storeInCache(req, response, stamp)
	}

	response.Duration = time.Since(startTime)
	return response, nil
}

// SearchManyRequest runs several queries for one tenant and merges the results
type SearchManyRequest struct {
	Queries     []string
	K           int
	TenantID    string
	RecordTypes []types.RecordType
	Mode        SearchMode
	NoRerank    bool
}

// SearchMany runs each query, merges hits by document ID keeping the best
// fused score, and reranks the merged set against the combined query.
// Queries shorter than the minimum length are skipped.
func (s *Searcher) SearchMany(ctx context.Context, req SearchManyRequest) (*SearchResponse, error) {
	startTime := time.Now()

	filter, err := storage.NewTenantFilter(req.TenantID, req.RecordTypes...)
	if err != nil {
		return nil, err
	}

	single := SearchRequest{K: req.K, Mode: req.Mode, Query: "-"}
	if err := s.validateRequest(&single); err != nil {
		return nil, fmt.Errorf("invalid search request: %w", err)
	}

	var (
		merged  []candidate
		index   = make(map[string]int)
		used    []string
		total   legStats
		lastErr error
	)
	for _, q := range req.Queries {
		q = strings.TrimSpace(q)
		if s.tooShort(q) {
			continue
		}

		fused, stats, err := s.retrieve(ctx, q, single.K, single.Mode, filter)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			s.logger.Warn().Err(err).Str("query", q).Msg("sub-query failed")
			lastErr = err
			continue
		}
		used = append(used, q)
		total.vector += stats.vector
		total.text += stats.text

		for _, c := range fused {
			if pos, ok := index[c.hit.ID]; ok {
				if c.score > merged[pos].score {
					merged[pos].score = c.score
				}
				continue
			}
			index[c.hit.ID] = len(merged)
			merged = append(merged, c)
		}
	}

	if len(used) == 0 && lastErr != nil {
		return nil, lastErr
	}

	sort.SliceStable(merged, func(a, b int) bool {
		return merged[a].score > merged[b].score
	})

	ranked, reranked := s.finalize(ctx, strings.Join(used, " "), merged, single.K, !req.NoRerank)

	return &SearchResponse{
		Results:       ranked,
		TotalResults:  len(ranked),
		SearchMode:    single.Mode,
		Duration:      time.Since(startTime),
		Reranked:      reranked,
		VectorResults: total.vector,
		TextResults:   total.text,
	}, nil
}

type legStats struct {
	vector int
	text   int
}

// retrieve runs the legs for mode with 2k candidates each and fuses them
func (s *Searcher) retrieve(ctx context.Context, query string, k int, mode SearchMode, filter storage.TenantFilter) ([]candidate, legStats, error) {
	candidates := 2 * k
	var stats legStats

	switch mode {
	case SearchModeVector:
		hits, err := s.vectorLeg(ctx, query, candidates, filter)
		if err != nil {
			return nil, stats, err
		}
		stats.vector = len(hits)
		return fuse(s.cfg.RRFConstant, hits), stats, nil

	case SearchModeKeyword:
		hits, err := s.store.LexicalQuery(ctx, query, candidates, filter)
		if err != nil {
			return nil, stats, fmt.Errorf("lexical query: %w", err)
		}
		stats.text = len(hits)
		return fuse(s.cfg.RRFConstant, hits), stats, nil
	}

	var (
		vecHits, textHits []storage.Hit
		vecErr, textErr   error
	)
	vectorLeg := func() {
		vecHits, vecErr = s.vectorLeg(ctx, query, candidates, filter)
	}
	textLeg := func() {
		textHits, textErr = s.store.LexicalQuery(ctx, query, candidates, filter)
	}

	if s.cfg.ConcurrentLegs {
		var g errgroup.Group
		g.Go(func() error { vectorLeg(); return nil })
		g.Go(func() error { textLeg(); return nil })
		_ = g.Wait()
	} else {
		vectorLeg()
		textLeg()
	}

	if vecErr != nil && textErr != nil {
		return nil, stats, fmt.Errorf("%w: vector=%w, text=%w", ErrBothLegsFailed, vecErr, textErr)
	}
	if vecErr != nil {
		s.logger.Warn().Err(vecErr).Msg("vector query failed, using lexical results only")
	}
	if textErr != nil {
		s.logger.Warn().Err(textErr).Msg("lexical query failed, using vector results only")
	}

	stats.vector = len(vecHits)
	stats.text = len(textHits)
	return fuse(s.cfg.RRFConstant, vecHits, textHits), stats, nil
}

// vectorLeg embeds the query once and returns neighbours above the similarity floor
func (s *Searcher) vectorLeg(ctx context.Context, query string, limit int, filter storage.TenantFilter) ([]storage.Hit, error) {
	if s.embedder == nil {
		return nil, errors.New("embedder not initialized")
	}

	embedding, err := s.embedder.GenerateEmbedding(ctx, embedder.EmbeddingRequest{Text: query})
	if err != nil {
		return nil, fmt.Errorf("failed to generate query embedding: %w", err)
	}

	hits, err := s.store.VectorQuery(ctx, embedding.Vector, limit, filter)
	if err != nil {
		return nil, fmt.Errorf("vector query: %w", err)
	}

	if s.cfg.VectorMinSimilarity > 0 {
		hits = slices.DeleteFunc(hits, func(h storage.Hit) bool {
			return h.Score < s.cfg.VectorMinSimilarity
		})
	}
	return hits, nil
}

// candidate is a fused document with its accumulated score
type candidate struct {
	hit   storage.Hit
	score float64
}

// fuse applies Reciprocal Rank Fusion: score(d) = sum of 1/(c + rank(d))
// over the lists containing d, with rank taken as 1-based list position.
// Equal scores keep the order in which IDs were first seen.
func fuse(c float64, lists ...[]storage.Hit) []candidate {
	index := make(map[string]int)
	var out []candidate

	for _, list := range lists {
		for i, h := range list {
			contribution := 1.0 / (c + float64(i+1))
			if pos, ok := index[h.ID]; ok {
				out[pos].score += contribution
				continue
			}
			index[h.ID] = len(out)
			out = append(out, candidate{hit: h, score: contribution})
		}
	}

	sort.SliceStable(out, func(a, b int) bool {
		return out[a].score > out[b].score
	})
	return out
}

// finalize reranks the fused list when possible and converts it to results
func (s *Searcher) finalize(ctx context.Context, query string, fused []candidate, k int, rerank bool) ([]types.SearchResult, bool) {
	if rerank && s.reranker != nil && len(fused) > 0 {
		if out, ok := s.rerank(ctx, query, fused, k); ok {
			return out, true
		}
	}

	if len(fused) > k {
		fused = fused[:k]
	}
	results := make([]types.SearchResult, len(fused))
	for i, c := range fused {
		results[i] = toResult(c.hit, i+1, c.score, false)
	}
	return results, false
}

// rerank sends the top candidates to the reranker. Any failure reports
// ok=false so the caller keeps the fused order.
func (s *Searcher) rerank(ctx context.Context, query string, fused []candidate, k int) ([]types.SearchResult, bool) {
	n := max(s.cfg.RerankCandidates, k)

	passages := make([]reranker.Passage, 0, min(n, len(fused)))
	byID := make(map[string]storage.Hit, cap(passages))
	for _, c := range fused {
		if len(passages) == n {
			break
		}
		if _, dup := byID[c.hit.ID]; dup {
			continue
		}
		byID[c.hit.ID] = c.hit
		passages = append(passages, reranker.Passage{ID: c.hit.ID, Text: c.hit.Text})
	}

	scored, err := s.reranker.Rerank(ctx, query, passages, k)
	if err == nil && len(scored) == 0 {
		err = errors.New("empty rerank result")
	}
	if err != nil {
		s.logger.Warn().Err(err).Str("reranker", s.reranker.Name()).Msg("rerank failed, using fused order")
		return nil, false
	}

	if len(scored) > k {
		scored = scored[:k]
	}
	results := make([]types.SearchResult, 0, len(scored))
	for _, sc := range scored {
		hit, ok := byID[sc.ID]
		if !ok {
			continue
		}
		delete(byID, sc.ID)
		results = append(results, toResult(hit, len(results)+1, sc.Score, true))
	}
	return results, true
}

func toResult(h storage.Hit, rank int, score float64, reranked bool) types.SearchResult {
	return types.SearchResult{
		ID:         h.ID,
		Rank:       rank,
		Score:      score,
		Reranked:   reranked,
		TenantID:   h.TenantID,
		RecordType: h.RecordType,
		Title:      h.Title,
		Text:       h.Text,
	}
}

func (s *Searcher) tooShort(query string) bool {
	return utf8.RuneCountInString(strings.TrimSpace(query)) < s.cfg.MinQueryLength
}

// validateRequest ensures search request is valid
func (s *Searcher) validateRequest(req *SearchRequest) error {
	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		return fmt.Errorf("query cannot be empty")
	}

	if req.K <= 0 {
		req.K = s.cfg.DefaultK
	}

	if req.K > s.cfg.MaxK {
		req.K = s.cfg.MaxK
	}

	mode, err := ParseMode(string(req.Mode))
	if err != nil {
		return err
	}
	req.Mode = mode

	if mode != SearchModeKeyword && s.embedder == nil {
		return fmt.Errorf("%s search needs an embedder", mode)
	}

	return nil
}

// currentStamp reads the tenant's store revision and local invalidation counters
func (s *Searcher) currentStamp(ctx context.Context, filter storage.TenantFilter) (cacheStamp, error) {
	rev, err := s.store.Revision(ctx, filter)
	if err != nil {
		return cacheStamp{}, err
	}

	s.cacheMu.RLock()
	defer s.cacheMu.RUnlock()
	return cacheStamp{revision: rev, epoch: s.epoch, generation: s.generations[filter.Tenant()]}, nil
}

// checkCache returns a copy of a live cached response built at stamp, or nil
func (s *Searcher) checkCache(req SearchRequest, stamp cacheStamp) *SearchResponse {
	hash := computeQueryHash(req)
	now := time.Now()

	s.cacheMu.RLock()
	entry, found := s.cache.Get(hash)
	if !found {
		s.cacheMu.RUnlock()
		return nil
	}

	if now.After(entry.expiresAt) || entry.stamp != stamp {
		s.cacheMu.RUnlock()

		s.cacheMu.Lock()
		s.cache.Remove(hash)
		s.cacheMu.Unlock()
		return nil
	}

	response := copySearchResponse(entry.response)
	s.cacheMu.RUnlock()

	return response
}

// storeInCache saves search results to cache unless the tenant was
// invalidated after stamp was taken
func (s *Searcher) storeInCache(req SearchRequest, response *SearchResponse, stamp cacheStamp) {
	entry := &cacheEntry{
		tenant:    req.TenantID,
		stamp:     stamp,
		response:  copySearchResponse(response),
		expiresAt: time.Now().Add(s.cfg.CacheTTL),
	}

	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	if s.epoch != stamp.epoch || s.generations[req.TenantID] != stamp.generation {
		return
	}
	s.cache.Add(computeQueryHash(req), entry)
}

// copySearchResponse creates a copy that shares no slices with src
func copySearchResponse(src *SearchResponse) *SearchResponse {
	if src == nil {
		return nil
	}

	dst := *src
	dst.Results = slices.Clone(src.Results)
	return &dst
}

// computeQueryHash computes a unique hash for a search request
func computeQueryHash(req SearchRequest) [32]byte {
	recordTypes := make([]string, len(req.RecordTypes))
	for i, t := range req.RecordTypes {
		recordTypes[i] = string(t)
	}
	sort.Strings(recordTypes)

	var data strings.Builder
	data.WriteString(req.TenantID)
	data.WriteString("|")
	data.WriteString(req.Query)
	data.WriteString("|")
	data.WriteString(string(req.Mode))
	data.WriteString("|")
	data.WriteString(strconv.Itoa(req.K))
	data.WriteString("|")
	data.WriteString(strings.Join(recordTypes, ","))
	data.WriteString("|")
	data.WriteString(strconv.FormatBool(req.NoRerank))

	return sha256.Sum256([]byte(data.String()))
}

// InvalidateTenant drops every cached response for tenant, including
// responses still being computed
func (s *Searcher) InvalidateTenant(tenant string) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()

	s.generations[tenant]++

	for _, key := range s.cache.Keys() {
		if entry, ok := s.cache.Peek(key); ok && entry.tenant == tenant {
			s.cache.Remove(key)
		}
	}
}

// InvalidateCache drops all cached responses
func (s *Searcher) InvalidateCache() {
	s.cacheMu.Lock()
	s.epoch++
	s.cache.Purge()
	s.cacheMu.Unlock()
}

// CacheLen reports the number of cached responses
func (s *Searcher) CacheLen() int {
	s.cacheMu.RLock()
	defer s.cacheMu.RUnlock()
	return s.cache.Len()
}
