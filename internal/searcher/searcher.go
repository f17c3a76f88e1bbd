// Package searcher fuses vector-similarity and keyword search over
// indexed semantic units into one ranked, explainable result list.
package searcher

import (
	"context"
	"crypto/sha256"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"codelens/internal/embedder"
	"codelens/internal/storage"
	"codelens/pkg/types"
)

// Mode defines how search is performed
type Mode string

const (
	ModeHybrid   Mode = "hybrid"   // Weighted fusion of both signals
	ModeSemantic Mode = "semantic" // Vector similarity only
	ModeKeyword  Mode = "keyword"  // BM25 text search only
)

// Default fusion weights favor the semantic signal
const (
	DefaultSemanticWeight = 0.6
	DefaultKeywordWeight  = 0.4
)

const (
	defaultLimit    = 10
	maxLimit        = 100
	defaultCacheTTL = 1 * time.Hour
	cacheSize       = 1000
)

// QueryEmbedder is the slice of the embedding layer needed for queries
type QueryEmbedder interface {
	Generate(ctx context.Context, text string) (*embedder.Embedding, error)
}

// Request contains parameters for a search operation
type Request struct {
	Query          string
	Mode           Mode // Default: hybrid
	Limit          int  // Default 10, capped at 100
	Filters        *storage.SearchFilters
	SemanticWeight float64 // Hybrid only; defaults to 0.6
	KeywordWeight  float64 // Hybrid only; defaults to 0.4
	UseCache       bool
	CacheTTL       time.Duration
}

// Response contains ranked results and search diagnostics
type Response struct {
	Results            []types.SearchResult
	TotalResults       int
	Mode               Mode
	Duration           time.Duration
	CacheHit           bool
	SemanticCandidates int
	KeywordCandidates  int
}

type cacheEntry struct {
	response  *Response
	expiresAt time.Time
}

// Searcher coordinates search for one project
type Searcher struct {
	store     storage.Store
	embedder  QueryEmbedder
	projectID int64

	cacheMu sync.RWMutex
	cache   *lru.Cache[[32]byte, *cacheEntry]
}

// New creates a Searcher. embedder may be nil, which disables the
// semantic and hybrid modes.
func New(store storage.Store, emb QueryEmbedder, projectID int64) *Searcher {
	cache, err := lru.New[[32]byte, *cacheEntry](cacheSize)
	if err != nil {
		panic(fmt.Sprintf("failed to create LRU cache: %v", err))
	}
	return &Searcher{
		store:     store,
		embedder:  emb,
		projectID: projectID,
		cache:     cache,
	}
}

// Search executes the request and returns ranked results
func (s *Searcher) Search(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()

	if err := s.validateRequest(&req); err != nil {
		return nil, err
	}

	if req.UseCache {
		if cached := s.checkCache(req); cached != nil {
			cached.CacheHit = true
			cached.Duration = time.Since(start)
			return cached, nil
		}
	}

	var response *Response
	var err error
	switch req.Mode {
	case ModeSemantic:
		response, err = s.semanticSearch(ctx, req)
	case ModeKeyword:
		response, err = s.keywordSearch(ctx, req)
	case ModeHybrid:
		response, err = s.hybridSearch(ctx, req)
	default:
		return nil, fmt.Errorf("%w: unsupported search mode %q", types.ErrInvalidQuery, req.Mode)
	}
	if err != nil {
		return nil, err
	}

	response.Mode = req.Mode
	response.Duration = time.Since(start)

	if req.UseCache && len(response.Results) > 0 {
		s.storeInCache(req, response)
	}
	return response, nil
}

func (s *Searcher) validateRequest(req *Request) error {
	if strings.TrimSpace(req.Query) == "" {
		return fmt.Errorf("%w: query cannot be empty", types.ErrInvalidQuery)
	}
	if req.Limit < 0 {
		return fmt.Errorf("%w: limit must not be negative", types.ErrInvalidQuery)
	}
	if req.Limit == 0 {
		req.Limit = defaultLimit
	}
	if req.Limit > maxLimit {
		req.Limit = maxLimit
	}
	if req.Mode == "" {
		req.Mode = ModeHybrid
	}
	if req.SemanticWeight < 0 || req.KeywordWeight < 0 {
		return fmt.Errorf("%w: fusion weights must not be negative", types.ErrInvalidQuery)
	}
	if req.SemanticWeight == 0 && req.KeywordWeight == 0 {
		req.SemanticWeight = DefaultSemanticWeight
		req.KeywordWeight = DefaultKeywordWeight
	}
	if sum := req.SemanticWeight + req.KeywordWeight; math.Abs(sum-1) > 1e-9 {
		return fmt.Errorf("%w: fusion weights must sum to 1, got %.3f", types.ErrInvalidQuery, sum)
	}
	if (req.Mode == ModeSemantic || req.Mode == ModeHybrid) && s.embedder == nil {
		return fmt.Errorf("%w: %s mode requires an embedding provider", types.ErrInvalidQuery, req.Mode)
	}
	if req.CacheTTL == 0 {
		req.CacheTTL = defaultCacheTTL
	}
	return nil
}

// scored is a candidate with its per-signal normalized scores
type scored struct {
	unitID   string
	semantic float64
	keyword  float64
	final    float64
}

func (s *Searcher) semanticSearch(ctx context.Context, req Request) (*Response, error) {
	vectorResults, err := s.runVector(ctx, req, req.Limit)
	if err != nil {
		return nil, err
	}

	candidates := make([]scored, len(vectorResults))
	for i, vr := range vectorResults {
		candidates[i] = scored{unitID: vr.UnitID, semantic: vr.Score, final: vr.Score}
	}
	results, err := s.buildResults(ctx, candidates, req, nil)
	if err != nil {
		return nil, err
	}
	return &Response{
		Results:            results,
		TotalResults:       len(results),
		SemanticCandidates: len(vectorResults),
	}, nil
}

func (s *Searcher) keywordSearch(ctx context.Context, req Request) (*Response, error) {
	textResults, err := s.store.SearchText(ctx, s.projectID, req.Query, req.Limit, req.Filters)
	if err != nil {
		return nil, err
	}

	keywords := queryTerms(req.Query)
	candidates := make([]scored, len(textResults))
	for i, tr := range textResults {
		candidates[i] = scored{unitID: tr.UnitID, keyword: tr.Score, final: tr.Score}
	}
	results, err := s.buildResults(ctx, candidates, req, keywords)
	if err != nil {
		return nil, err
	}
	return &Response{
		Results:           results,
		TotalResults:      len(results),
		KeywordCandidates: len(textResults),
	}, nil
}

// subResult carries one sub-search's outcome across its goroutine
type subResult struct {
	vector []storage.VectorResult
	text   []storage.TextResult
	err    error
}

func (s *Searcher) runVector(ctx context.Context, req Request, limit int) ([]storage.VectorResult, error) {
	queryEmb, err := s.embedder.Generate(ctx, req.Query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	return s.store.SearchVector(ctx, s.projectID, queryEmb.Vector, limit, req.Filters)
}

// hybridSearch runs both sub-searches concurrently and fuses their
// normalized scores with the configured weights. A unit found by only
// one sub-search still qualifies; the missing signal contributes zero.
func (s *Searcher) hybridSearch(ctx context.Context, req Request) (*Response, error) {
	vectorChan := make(chan subResult, 1)
	textChan := make(chan subResult, 1)

	// Oversample both sides so fusion has candidates to promote
	go func() {
		var res subResult
		res.vector, res.err = s.runVector(ctx, req, req.Limit*2)
		select {
		case vectorChan <- res:
		case <-ctx.Done():
		}
	}()
	go func() {
		var res subResult
		res.text, res.err = s.store.SearchText(ctx, s.projectID, req.Query, req.Limit*2, req.Filters)
		select {
		case textChan <- res:
		case <-ctx.Done():
		}
	}()

	var vectorRes, textRes subResult
	var vectorDone, textDone bool
	for !vectorDone || !textDone {
		select {
		case vectorRes = <-vectorChan:
			vectorDone = true
		case textRes = <-textChan:
			textDone = true
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	// One sub-search may fail; the other still produces results
	if vectorRes.err != nil && textRes.err != nil {
		return nil, fmt.Errorf("both searches failed: vector=%w, text=%v", vectorRes.err, textRes.err)
	}

	candidates := fuse(vectorRes.vector, textRes.text, req.SemanticWeight, req.KeywordWeight)
	results, err := s.buildResults(ctx, candidates, req, queryTerms(req.Query))
	if err != nil {
		return nil, err
	}
	return &Response{
		Results:            results,
		TotalResults:       len(results),
		SemanticCandidates: len(vectorRes.vector),
		KeywordCandidates:  len(textRes.text),
	}, nil
}

// fuse min-max normalizes each signal within its own candidate list,
// then combines them as a weighted sum. Ordering is deterministic:
// score descending, then unit id ascending.
func fuse(vector []storage.VectorResult, text []storage.TextResult, semWeight, keyWeight float64) []scored {
	semScores := make(map[string]float64, len(vector))
	for _, vr := range vector {
		semScores[vr.UnitID] = vr.Score
	}
	keyScores := make(map[string]float64, len(text))
	for _, tr := range text {
		keyScores[tr.UnitID] = tr.Score
	}
	normalize(semScores)
	normalize(keyScores)

	merged := make(map[string]*scored, len(semScores)+len(keyScores))
	for id, score := range semScores {
		merged[id] = &scored{unitID: id, semantic: score}
	}
	for id, score := range keyScores {
		if c, ok := merged[id]; ok {
			c.keyword = score
		} else {
			merged[id] = &scored{unitID: id, keyword: score}
		}
	}

	candidates := make([]scored, 0, len(merged))
	for _, c := range merged {
		c.final = semWeight*c.semantic + keyWeight*c.keyword
		candidates = append(candidates, *c)
	}
	sortCandidates(candidates)
	return candidates
}

// normalize rescales scores to [0,1] in place via min-max. A single
// candidate, or all-equal scores, normalizes to 1.
func normalize(scores map[string]float64) {
	if len(scores) == 0 {
		return
	}
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, s := range scores {
		lo = math.Min(lo, s)
		hi = math.Max(hi, s)
	}
	if hi == lo {
		for id := range scores {
			scores[id] = 1.0
		}
		return
	}
	for id, s := range scores {
		scores[id] = (s - lo) / (hi - lo)
	}
}

func sortCandidates(candidates []scored) {
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].final != candidates[j].final {
			return candidates[i].final > candidates[j].final
		}
		return candidates[i].unitID < candidates[j].unitID
	})
}

// buildResults loads unit metadata for the top candidates and attaches
// scoring diagnostics
func (s *Searcher) buildResults(ctx context.Context, candidates []scored, req Request, keywords []string) ([]types.SearchResult, error) {
	limit := req.Limit
	if limit > len(candidates) {
		limit = len(candidates)
	}

	results := make([]types.SearchResult, 0, limit)
	for i := 0; i < len(candidates) && len(results) < limit; i++ {
		c := candidates[i]
		unit, err := s.store.GetUnit(ctx, c.unitID)
		if err != nil {
			continue // Unit deleted between search and fetch
		}
		score := clampScore(c.final)
		result := types.SearchResult{
			UnitID:        c.unitID,
			Rank:          len(results) + 1,
			Score:         score,
			SemanticScore: c.semantic,
			KeywordScore:  c.keyword,
			Confidence:    types.ConfidenceForScore(score),
			Unit:          &unit.SemanticUnit,
		}
		if keywords != nil {
			result.MatchedKeywords = matchedKeywords(&unit.SemanticUnit, keywords)
		}
		results = append(results, result)
	}
	return results, nil
}

func clampScore(score float64) float64 {
	return math.Max(0, math.Min(1, score))
}

// queryTerms tokenizes a query into lowercase terms for match reporting
func queryTerms(query string) []string {
	fields := strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9' || r == '_')
	})
	seen := make(map[string]bool, len(fields))
	var terms []string
	for _, f := range fields {
		if !seen[f] {
			seen[f] = true
			terms = append(terms, f)
		}
	}
	return terms
}

// matchedKeywords reports which query terms appear in the unit's name,
// qualified name, signature, or content
func matchedKeywords(unit *types.SemanticUnit, terms []string) []string {
	haystack := strings.ToLower(unit.Name + " " + unit.QualifiedName + " " + unit.Signature + " " + unit.Content)
	var matched []string
	for _, term := range terms {
		if strings.Contains(haystack, term) {
			matched = append(matched, term)
		}
	}
	return matched
}

func (s *Searcher) checkCache(req Request) *Response {
	hash := computeQueryHash(req, s.projectID)
	now := time.Now()

	s.cacheMu.RLock()
	entry, found := s.cache.Get(hash)
	if !found {
		s.cacheMu.RUnlock()
		return nil
	}
	if now.After(entry.expiresAt) {
		s.cacheMu.RUnlock()
		s.cacheMu.Lock()
		s.cache.Remove(hash)
		s.cacheMu.Unlock()
		return nil
	}
	response := copyResponse(entry.response)
	s.cacheMu.RUnlock()
	return response
}

func (s *Searcher) storeInCache(req Request, response *Response) {
	entry := &cacheEntry{
		response:  copyResponse(response),
		expiresAt: time.Now().Add(req.CacheTTL),
	}
	s.cacheMu.Lock()
	s.cache.Add(computeQueryHash(req, s.projectID), entry)
	s.cacheMu.Unlock()
}

// InvalidateProject drops all cached results. Invalidation happens on
// reindexing, so purging the whole cache is acceptable.
func (s *Searcher) InvalidateProject() {
	s.cacheMu.Lock()
	s.cache.Purge()
	s.cacheMu.Unlock()
}

// CacheLen reports the number of cached queries
func (s *Searcher) CacheLen() int {
	s.cacheMu.RLock()
	defer s.cacheMu.RUnlock()
	return s.cache.Len()
}

func copyResponse(src *Response) *Response {
	if src == nil {
		return nil
	}
	dst := &Response{
		TotalResults:       src.TotalResults,
		Mode:               src.Mode,
		Duration:           src.Duration,
		CacheHit:           src.CacheHit,
		SemanticCandidates: src.SemanticCandidates,
		KeywordCandidates:  src.KeywordCandidates,
		Results:            make([]types.SearchResult, len(src.Results)),
	}
	for i, result := range src.Results {
		dst.Results[i] = result
		if result.Unit != nil {
			unitCopy := *result.Unit
			dst.Results[i].Unit = &unitCopy
		}
		if result.MatchedKeywords != nil {
			dst.Results[i].MatchedKeywords = append([]string(nil), result.MatchedKeywords...)
		}
	}
	return dst
}

// computeQueryHash builds a deterministic cache key for a request
func computeQueryHash(req Request, projectID int64) [32]byte {
	var data strings.Builder
	data.WriteString(req.Query)
	data.WriteString("|")
	data.WriteString(string(req.Mode))
	fmt.Fprintf(&data, "|%d|%d|%.3f|%.3f", projectID, req.Limit, req.SemanticWeight, req.KeywordWeight)
	if req.Filters != nil {
		data.WriteString("|filters:")
		data.WriteString(strings.Join(req.Filters.Languages, ","))
		data.WriteString("|")
		data.WriteString(strings.Join(req.Filters.Kinds, ","))
		data.WriteString("|")
		data.WriteString(req.Filters.PathPattern)
	}
	return sha256.Sum256([]byte(data.String()))
}
