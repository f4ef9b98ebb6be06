package search

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/dmehra/cairn/internal/semantic"
	"github.com/dmehra/cairn/internal/storage"
	"github.com/dmehra/cairn/internal/storage/filestore"
	"github.com/dmehra/cairn/pkg/types"
)

func newCorpus(t *testing.T) storage.MemoryStore {
	t.Helper()
	store, err := filestore.New(t.TempDir())
	if err != nil {
		t.Fatalf("filestore.New: %v", err)
	}
	return store.Memories()
}

func seed(t *testing.T, ms storage.MemoryStore, m *types.Memory) string {
	t.Helper()
	id, err := ms.Save(context.Background(), m)
	if err != nil {
		t.Fatalf("seed memory: %v", err)
	}
	return id
}

func resultFor(resp *Response, id string) *Result {
	for i := range resp.Results {
		if resp.Results[i].Memory.ID == id {
			return &resp.Results[i]
		}
	}
	return nil
}

func TestSearchRejectsEmptyQuery(t *testing.T) {
	e := New(newCorpus(t), nil, Config{})
	if _, err := e.Search(context.Background(), "   ", storage.ListOptions{}); !errors.Is(err, types.ErrValidation) {
		t.Errorf("empty query = %v, want validation error", err)
	}
}

func TestSearchExactMatch(t *testing.T) {
	ms := newCorpus(t)
	id := seed(t, ms, &types.Memory{Content: "the postgres connection pool is capped at 20"})
	seed(t, ms, &types.Memory{Content: "meeting notes from sprint review yesterday"})

	e := New(ms, nil, Config{})
	resp, err := e.Search(context.Background(), "postgres", storage.ListOptions{})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	hit := resultFor(resp, id)
	if hit == nil {
		t.Fatal("exact hit missing from results")
	}
	if hit.MatchType != MatchExact {
		t.Errorf("MatchType = %q, want exact", hit.MatchType)
	}
	if hit.Score <= 0 {
		t.Errorf("Score = %v, want positive", hit.Score)
	}
}

func TestSearchExpandedMatch(t *testing.T) {
	ms := newCorpus(t)
	// Contains the expansion term "session" but not the query "login".
	id := seed(t, ms, &types.Memory{Content: "session cookies expire after an hour"})

	e := New(ms, nil, Config{})
	resp, err := e.Search(context.Background(), "login", storage.ListOptions{})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	hit := resultFor(resp, id)
	if hit == nil {
		t.Fatal("expanded hit missing from results")
	}
	if hit.MatchType != MatchExpanded {
		t.Errorf("MatchType = %q, want expanded", hit.MatchType)
	}
	if hit.MatchDetail != "session<=login" {
		t.Errorf("MatchDetail = %q, want session<=login", hit.MatchDetail)
	}
}

func TestSearchExactOutranksExpanded(t *testing.T) {
	ms := newCorpus(t)
	// Matches both the raw query and an expansion term; exact is seen first
	// and must win the provenance.
	id := seed(t, ms, &types.Memory{Content: "login sessions are stored server side"})

	e := New(ms, nil, Config{})
	resp, err := e.Search(context.Background(), "login", storage.ListOptions{})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	hit := resultFor(resp, id)
	if hit == nil || hit.MatchType != MatchExact {
		t.Errorf("hit = %+v, want exact provenance", hit)
	}
}

func TestSearchFuzzyTypo(t *testing.T) {
	ms := newCorpus(t)
	id := seed(t, ms, &types.Memory{Content: "postgres connection pooling notes"})

	e := New(ms, nil, Config{})
	resp, err := e.Search(context.Background(), "postgers", storage.ListOptions{})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	hit := resultFor(resp, id)
	if hit == nil {
		t.Fatal("fuzzy hit missing from results")
	}
	if hit.MatchType != MatchFuzzy {
		t.Errorf("MatchType = %q, want fuzzy", hit.MatchType)
	}
}

func TestSearchSemanticContribution(t *testing.T) {
	ms := newCorpus(t)
	id := seed(t, ms, &types.Memory{Content: "postgres connection pooling notes"})

	sem := semantic.NewClient(stubSimilarity{hits: []semantic.Hit{{ID: id, Score: 0.9}}}, semantic.ClientConfig{})
	e := New(ms, sem, Config{})
	resp, err := e.Search(context.Background(), "zzz unmatchable", storage.ListOptions{})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	hit := resultFor(resp, id)
	if hit == nil {
		t.Fatal("semantic hit missing from results")
	}
	if hit.MatchType != MatchSemantic {
		t.Errorf("MatchType = %q, want semantic", hit.MatchType)
	}
}

type stubSimilarity struct {
	hits []semantic.Hit
}

func (s stubSimilarity) TopKSimilar(ctx context.Context, query, corpusKind string, k int) ([]semantic.Hit, error) {
	return s.hits, nil
}

func TestSearchRecencyRanking(t *testing.T) {
	ms := newCorpus(t)
	old := time.Now().Add(-30 * 24 * time.Hour)
	oldID := seed(t, ms, &types.Memory{
		ID:        "mem-20260725T000000-old1",
		Content:   "caching strategy for the product pages",
		Timestamp: old,
		CreatedAt: old,
	})
	recentID := seed(t, ms, &types.Memory{Content: "caching strategy for the landing pages"})

	e := New(ms, nil, Config{})
	resp, err := e.Search(context.Background(), "caching strategy", storage.ListOptions{})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(resp.Results) < 2 {
		t.Fatalf("results = %d, want both memories", len(resp.Results))
	}
	if resp.Results[0].Memory.ID != recentID {
		t.Errorf("top result = %s, want recent %s over stale %s",
			resp.Results[0].Memory.ID, recentID, oldID)
	}
	recent, stale := resultFor(resp, recentID), resultFor(resp, oldID)
	if recent.Score <= stale.Score {
		t.Errorf("recent score %v should exceed stale score %v", recent.Score, stale.Score)
	}
}

func TestSearchScansBeyondOnePage(t *testing.T) {
	ms := newCorpus(t)
	ctx := context.Background()

	// The needle goes in first, so newest-first ordering pushes it past the
	// store's 500-record page boundary.
	needleID := seed(t, ms, &types.Memory{Content: "the zqneedle incident postmortem", Project: "acme"})
	for i := 0; i < 500; i++ {
		seed(t, ms, &types.Memory{Content: fmt.Sprintf("filler record %d", i), Project: "acme"})
	}

	e := New(ms, nil, Config{})
	resp, err := e.Search(ctx, "zqneedle", storage.ListOptions{Project: "acme"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	hit := resultFor(resp, needleID)
	if hit == nil {
		t.Fatal("verbatim term beyond the first page was not found")
	}
	if hit.MatchType != MatchExact {
		t.Errorf("MatchType = %q, want exact", hit.MatchType)
	}
}

func TestSearchOrderingIsIdempotent(t *testing.T) {
	ms := newCorpus(t)
	for i := 0; i < 6; i++ {
		seed(t, ms, &types.Memory{Content: fmt.Sprintf("postgres tuning note %d", i)})
	}

	e := New(ms, nil, Config{})
	first, err := e.Search(context.Background(), "postgres tuning", storage.ListOptions{})
	if err != nil {
		t.Fatalf("first Search: %v", err)
	}
	second, err := e.Search(context.Background(), "postgres tuning", storage.ListOptions{})
	if err != nil {
		t.Fatalf("second Search: %v", err)
	}
	if len(first.Results) != len(second.Results) || len(first.Results) == 0 {
		t.Fatalf("result counts differ: %d vs %d", len(first.Results), len(second.Results))
	}
	for i := range first.Results {
		if first.Results[i].Memory.ID != second.Results[i].Memory.ID {
			t.Errorf("position %d: %s vs %s", i,
				first.Results[i].Memory.ID, second.Results[i].Memory.ID)
		}
		if first.Results[i].Score != second.Results[i].Score {
			t.Errorf("position %d score drifted: %v vs %v", i,
				first.Results[i].Score, second.Results[i].Score)
		}
	}
}

func TestSearchSkipsFuzzyAboveFloor(t *testing.T) {
	ms := newCorpus(t)
	for i := 0; i < 3; i++ {
		seed(t, ms, &types.Memory{Content: fmt.Sprintf("postgres maintenance runbook %d", i)})
	}
	// Would match fuzzily but never exactly; with the floor already met it
	// must stay out of the results.
	nearMissID := seed(t, ms, &types.Memory{Content: "postgrez failover checklist"})

	e := New(ms, nil, Config{FuzzyFloor: 3})
	resp, err := e.Search(context.Background(), "postgres", storage.ListOptions{})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if hit := resultFor(resp, nearMissID); hit != nil {
		t.Errorf("fuzzy hit admitted above the floor: %+v", hit)
	}
	for _, r := range resp.Results {
		if r.MatchType == MatchFuzzy {
			t.Errorf("unexpected fuzzy provenance: %+v", r)
		}
	}
	if len(resp.Results) != 3 {
		t.Errorf("results = %d, want the 3 exact hits only", len(resp.Results))
	}
}

func TestSearchSuggestionsOnEmptyResults(t *testing.T) {
	ms := newCorpus(t)
	seed(t, ms, &types.Memory{Content: "meeting notes from sprint review yesterday"})

	e := New(ms, nil, Config{})
	resp, err := e.Search(context.Background(), "databse", storage.ListOptions{})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(resp.Results) != 0 {
		t.Fatalf("results = %d, want none for a miss", len(resp.Results))
	}
	if len(resp.Suggestions) == 0 {
		t.Fatal("expected did-you-mean suggestions")
	}
	if resp.Suggestions[0] != "database" {
		t.Errorf("top suggestion = %q, want database", resp.Suggestions[0])
	}
}

func TestSearchIntentClassification(t *testing.T) {
	ms := newCorpus(t)
	seed(t, ms, &types.Memory{Content: "placeholder note so the corpus is not empty"})
	e := New(ms, nil, Config{})

	tests := []struct {
		query string
		want  string
	}{
		{"why does the build fail", IntentHowWhy},
		{"error in the payment handler", IntentDebugging},
		{"postgres pooling", IntentLookup},
	}
	for _, tt := range tests {
		resp, err := e.Search(context.Background(), tt.query, storage.ListOptions{})
		if err != nil {
			t.Fatalf("Search(%q): %v", tt.query, err)
		}
		if resp.Intent != tt.want {
			t.Errorf("Intent(%q) = %q, want %q", tt.query, resp.Intent, tt.want)
		}
	}
}

func TestEditDistance(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"abc", "abc", 0},
		{"abc", "", 3},
		{"kitten", "sitting", 3},
		{"postgers", "postgres", 2},
		{"databse", "database", 1},
	}
	for _, tt := range tests {
		if got := editDistance(tt.a, tt.b); got != tt.want {
			t.Errorf("editDistance(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestFuzzyMode(t *testing.T) {
	if got := fuzzyMode(0, 2); got != FuzzyExactish {
		t.Errorf("fuzzyMode(0) = %q", got)
	}
	if got := fuzzyMode(1, 2); got != FuzzyTypo {
		t.Errorf("fuzzyMode(1) = %q", got)
	}
	if got := fuzzyMode(2, 2); got != FuzzyLoose {
		t.Errorf("fuzzyMode(2) = %q", got)
	}
	if got := fuzzyMode(3, 2); got != "" {
		t.Errorf("fuzzyMode(3) = %q, want rejection", got)
	}
}

func TestTokenize(t *testing.T) {
	got := Tokenize("Why does the DB fail?!")
	want := []string{"why", "does", "the", "db", "fail"}
	if len(got) != len(want) {
		t.Fatalf("Tokenize = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("token[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestAnalyzeQueryExpansion(t *testing.T) {
	analysis := analyzeQuery("auth problems")
	if analysis.Terms["authentication"] != "auth" {
		t.Errorf("expansion provenance = %v, want authentication<=auth", analysis.Terms)
	}
	if _, ok := analysis.Terms["auth"]; ok {
		t.Error("query token must not expand to itself")
	}
}
