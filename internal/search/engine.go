// Package search implements the Query Engine: multi-strategy matching
// (exact, expanded, semantic, fuzzy) fused into one ranked, deduplicated
// result list with provenance for every hit.
package search

import (
	"context"
	"slices"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/dmehra/cairn/internal/semantic"
	"github.com/dmehra/cairn/internal/storage"
	"github.com/dmehra/cairn/pkg/types"
)

// Match type constants, in fusion precedence order: when strategies overlap
// on the same record, the first-seen (highest-precedence) type survives as
// provenance.
const (
	MatchExact    = "exact"
	MatchExpanded = "expanded"
	MatchSemantic = "semantic"
	MatchFuzzy    = "fuzzy"
)

// Config holds the Query Engine tunables. Zero values fall back to the
// defaults below; nothing here is a hard-coded absolute.
type Config struct {
	// FuzzyFloor triggers the fuzzy pass when exact+expanded+semantic
	// produce fewer results than this. Default: 3.
	FuzzyFloor int

	// FuzzyMaxDistance caps the edit distance for fuzzy token matches.
	// Default: 2.
	FuzzyMaxDistance int

	// RecentWindow and RecentBoost: items touched within the window get
	// this decay multiplier. Defaults: 24h, 5.0.
	RecentWindow time.Duration
	RecentBoost  float64

	// MediumWindow and MediumBoost: the next decay band. Defaults: 7d, 3.0.
	MediumWindow time.Duration
	MediumBoost  float64

	// SemanticK is how many candidates to request from the similarity
	// backend. Default: 20.
	SemanticK int

	// MaxSuggestions caps the did-you-mean list on empty results. Default: 5.
	MaxSuggestions int
}

func (c *Config) normalize() {
	if c.FuzzyFloor <= 0 {
		c.FuzzyFloor = 3
	}
	if c.FuzzyMaxDistance <= 0 {
		c.FuzzyMaxDistance = 2
	}
	if c.RecentWindow <= 0 {
		c.RecentWindow = 24 * time.Hour
	}
	if c.RecentBoost <= 0 {
		c.RecentBoost = 5.0
	}
	if c.MediumWindow <= 0 {
		c.MediumWindow = 7 * 24 * time.Hour
	}
	if c.MediumBoost <= 0 {
		c.MediumBoost = 3.0
	}
	if c.SemanticK <= 0 {
		c.SemanticK = 20
	}
	if c.MaxSuggestions <= 0 {
		c.MaxSuggestions = 5
	}
}

// Result is one ranked hit with provenance of why it matched.
type Result struct {
	Memory *types.Memory `json:"memory"`

	// MatchType records the winning strategy (see Match* constants).
	MatchType string `json:"match_type"`

	// MatchDetail carries the originating expansion term for expanded hits
	// and the fuzzy mode (exact-ish, typo, loose) for fuzzy hits.
	MatchDetail string `json:"match_detail,omitempty"`

	// Score is the composite ranking value: field relevance times time
	// decay.
	Score float64 `json:"score"`

	// Reason is a human-readable explanation of the match.
	Reason string `json:"reason"`
}

// Response bundles ranked results with did-you-mean suggestions. The
// suggestions are only populated when there are no results at all; whether
// to persist an unmatched query as a new memory is the caller's decision.
type Response struct {
	Results     []Result `json:"results"`
	Suggestions []string `json:"suggestions,omitempty"`
	Intent      string   `json:"intent"`
}

// Engine fuses the four match strategies over the memory corpus.
type Engine struct {
	memories storage.MemoryStore
	semantic *semantic.Client
	cfg      Config

	// analysisCache memoizes query analysis (intent + expansion terms).
	// Pure-function memoization only: nothing cached here reflects record
	// state, so the cache can never diverge from the files.
	analysisCache *lru.Cache[string, queryAnalysis]
}

// New creates a Query Engine. sem may be nil (semantic pass disabled).
func New(memories storage.MemoryStore, sem *semantic.Client, cfg Config) *Engine {
	cfg.normalize()
	cache, _ := lru.New[string, queryAnalysis](256)
	return &Engine{
		memories:      memories,
		semantic:      sem,
		cfg:           cfg,
		analysisCache: cache,
	}
}

// Search runs all applicable strategies and fuses their results. It never
// fails for "no results"; the only error cases are an empty query and
// storage failures.
func (e *Engine) Search(ctx context.Context, rawQuery string, opts storage.ListOptions) (*Response, error) {
	query := strings.TrimSpace(rawQuery)
	if query == "" {
		return nil, &types.ValidationError{
			Field:      "query",
			Message:    "search query is required",
			Suggestion: "provide a non-empty search string",
		}
	}

	// Walk every page so no record escapes the scan; 500 is the store's
	// page size, not a corpus cap.
	var corpus []types.Memory
	for page := 1; ; page++ {
		res, err := e.memories.List(ctx, storage.ListOptions{
			Project: opts.Project,
			Page:    page,
			Limit:   500,
		})
		if err != nil {
			return nil, err
		}
		corpus = append(corpus, res.Items...)
		if !res.HasMore {
			break
		}
	}
	if len(corpus) == 0 {
		return &Response{Results: []Result{}}, nil
	}

	analysis := e.analyze(query)
	queryLower := strings.ToLower(query)
	tokens := Tokenize(query)

	// Fusion state: first-seen match type wins, in precedence order.
	byID := map[string]*Result{}
	order := []string{}
	admit := func(m *types.Memory, matchType, detail string) {
		if _, seen := byID[m.ID]; seen {
			return
		}
		byID[m.ID] = &Result{Memory: m, MatchType: matchType, MatchDetail: detail}
		order = append(order, m.ID)
	}

	// 1. Exact: case-insensitive substring over content, tags, category.
	for i := range corpus {
		m := &corpus[i]
		if memoryFieldsContain(m, queryLower) {
			admit(m, MatchExact, "")
		}
	}

	// 2. Expanded: re-run the substring pass per expansion term. Terms are
	// visited in sorted order so provenance details are stable across runs.
	expansionTerms := make([]string, 0, len(analysis.Terms))
	for term := range analysis.Terms {
		expansionTerms = append(expansionTerms, term)
	}
	slices.Sort(expansionTerms)
	for _, term := range expansionTerms {
		origin := analysis.Terms[term]
		termLower := strings.ToLower(term)
		for i := range corpus {
			m := &corpus[i]
			if memoryFieldsContain(m, termLower) {
				admit(m, MatchExpanded, term+"<="+origin)
			}
		}
	}

	// 3. Semantic: best-effort external contribution; failures are silent.
	if e.semantic.Enabled() {
		for _, hit := range e.semantic.BestEffort(ctx, query, semantic.CorpusMemories, e.cfg.SemanticK) {
			for i := range corpus {
				if corpus[i].ID == hit.ID {
					admit(&corpus[i], MatchSemantic, "")
					break
				}
			}
		}
	}

	// 4. Fuzzy: only when the combined result count is under the floor or
	// the query looks misspelled.
	if len(order) < e.cfg.FuzzyFloor || likelyTypo(tokens, e.cfg.FuzzyMaxDistance) {
		for i := range corpus {
			m := &corpus[i]
			if mode := e.fuzzyMatch(m, tokens); mode != "" {
				admit(m, MatchFuzzy, mode)
			}
		}
	}

	// Score and rank. Ordering is deterministic for an unchanged corpus:
	// score desc, then recency desc, then id.
	now := time.Now()
	results := make([]Result, 0, len(order))
	for _, id := range order {
		r := byID[id]
		r.Score = e.relevance(r.Memory, queryLower, tokens) * e.timeDecay(r.Memory, now)
		r.Reason = e.buildReason(r)
		results = append(results, *r)
	}
	slices.SortFunc(results, func(a, b Result) int {
		if a.Score != b.Score {
			if a.Score > b.Score {
				return -1
			}
			return 1
		}
		at, bt := touchedAt(a.Memory), touchedAt(b.Memory)
		if !at.Equal(bt) {
			if at.After(bt) {
				return -1
			}
			return 1
		}
		return strings.Compare(a.Memory.ID, b.Memory.ID)
	})

	resp := &Response{Results: results, Intent: analysis.Intent}
	if len(results) == 0 {
		resp.Suggestions = closestTerms(query, e.cfg.MaxSuggestions)
	}
	return resp, nil
}

// analyze returns the cached query analysis, computing it on first use.
func (e *Engine) analyze(query string) queryAnalysis {
	key := strings.ToLower(strings.TrimSpace(query))
	if cached, ok := e.analysisCache.Get(key); ok {
		return cached
	}
	analysis := analyzeQuery(query)
	e.analysisCache.Add(key, analysis)
	return analysis
}

// fuzzyMatch compares query tokens against a memory's tokens and returns
// the strongest fuzzy mode found, or "" for no match.
func (e *Engine) fuzzyMatch(m *types.Memory, queryTokens []string) string {
	if len(queryTokens) == 0 {
		return ""
	}
	corpusTokens := Tokenize(m.Content)
	corpusTokens = append(corpusTokens, Tokenize(strings.Join(m.Tags, " "))...)
	corpusTokens = append(corpusTokens, Tokenize(m.Category)...)

	best := -1
	for _, qt := range queryTokens {
		for _, ct := range corpusTokens {
			// Length pre-filter keeps the distance matrix off hopeless pairs.
			if abs(len(qt)-len(ct)) > e.cfg.FuzzyMaxDistance {
				continue
			}
			d := editDistance(qt, ct)
			if best < 0 || d < best {
				best = d
			}
			if best == 0 {
				return FuzzyExactish
			}
		}
	}
	if best < 0 {
		return ""
	}
	return fuzzyMode(best, e.cfg.FuzzyMaxDistance)
}

// relevance weights field hits: tag > category > content, with a frequency
// bonus for repeated content hits.
func (e *Engine) relevance(m *types.Memory, queryLower string, tokens []string) float64 {
	score := 0.0
	for _, tag := range m.Tags {
		if strings.Contains(strings.ToLower(tag), queryLower) {
			score += 3.0
			break
		}
	}
	if strings.Contains(strings.ToLower(m.Category), queryLower) {
		score += 2.0
	}
	contentLower := strings.ToLower(m.Content)
	if n := strings.Count(contentLower, queryLower); n > 0 {
		score += 1.0
		// Frequency bonus, capped so a pathological note cannot dominate.
		extra := float64(n-1) * 0.1
		if extra > 0.5 {
			extra = 0.5
		}
		score += extra
	} else {
		// Partial word coverage for multi-token queries.
		matched := 0
		for _, tok := range tokens {
			if strings.Contains(contentLower, tok) {
				matched++
			}
		}
		if len(tokens) > 0 {
			score += float64(matched) / float64(len(tokens))
		}
	}
	if score == 0 {
		// Fuzzy/semantic-only hits still need a floor to rank by decay.
		score = 0.3
	}
	return score
}

// timeDecay boosts recently touched records in the configured bands.
func (e *Engine) timeDecay(m *types.Memory, now time.Time) float64 {
	age := now.Sub(touchedAt(m))
	switch {
	case age <= e.cfg.RecentWindow:
		return e.cfg.RecentBoost
	case age <= e.cfg.MediumWindow:
		return e.cfg.MediumBoost
	default:
		return 1.0
	}
}

// touchedAt prefers last_accessed and falls back to creation time.
func touchedAt(m *types.Memory) time.Time {
	if m.LastAccessed != nil && !m.LastAccessed.IsZero() {
		return *m.LastAccessed
	}
	return m.CreatedAt
}

// buildReason constructs the human-readable match explanation.
func (e *Engine) buildReason(r *Result) string {
	switch r.MatchType {
	case MatchExact:
		return "exact match"
	case MatchExpanded:
		parts := strings.SplitN(r.MatchDetail, "<=", 2)
		if len(parts) == 2 {
			return "matched expansion term '" + parts[0] + "' (from '" + parts[1] + "')"
		}
		return "matched expansion term"
	case MatchSemantic:
		return "semantically similar"
	case MatchFuzzy:
		return "fuzzy match (" + r.MatchDetail + ")"
	default:
		return "matched"
	}
}

// memoryFieldsContain reports a substring hit across content, tags, and
// category.
func memoryFieldsContain(m *types.Memory, needleLower string) bool {
	if strings.Contains(strings.ToLower(m.Content), needleLower) {
		return true
	}
	if strings.Contains(strings.ToLower(m.Category), needleLower) {
		return true
	}
	for _, tag := range m.Tags {
		if strings.Contains(strings.ToLower(tag), needleLower) {
			return true
		}
	}
	return false
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
