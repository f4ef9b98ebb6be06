package patterns

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dmehra/cairn/pkg/types"
)

func openTestLog(t *testing.T) *Log {
	t.Helper()
	l, err := OpenLog(filepath.Join(t.TempDir(), "actions.db"))
	if err != nil {
		t.Fatalf("OpenLog: %v", err)
	}
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func record(t *testing.T, l *Log, a Action) {
	t.Helper()
	if err := l.Record(context.Background(), a); err != nil {
		t.Fatalf("Record: %v", err)
	}
}

func TestLogRoundTrip(t *testing.T) {
	l := openTestLog(t)
	ctx := context.Background()

	base := time.Now().Add(-time.Hour).Truncate(time.Second)
	record(t, l, Action{Session: "s1", Kind: ActionToolCall, Target: "search", OccurredAt: base})
	record(t, l, Action{Session: "s1", Kind: ActionFileEdit, Target: "main.go", OccurredAt: base.Add(time.Minute)})
	record(t, l, Action{Session: "s2", Kind: ActionNote, Detail: "other session", OccurredAt: base})

	actions, err := l.SessionActions(ctx, "s1")
	if err != nil {
		t.Fatalf("SessionActions: %v", err)
	}
	if len(actions) != 2 {
		t.Fatalf("expected 2 actions for s1, got %d", len(actions))
	}
	if actions[0].Target != "search" || actions[1].Target != "main.go" {
		t.Errorf("actions out of order: %+v", actions)
	}

	if err := l.Record(ctx, Action{Kind: ActionNote}); err == nil {
		t.Error("action without session should be rejected")
	}
}

func TestLogPrune(t *testing.T) {
	l := openTestLog(t)
	ctx := context.Background()

	old := time.Now().Add(-48 * time.Hour)
	record(t, l, Action{Session: "s1", Kind: ActionNote, OccurredAt: old})
	record(t, l, Action{Session: "s1", Kind: ActionNote, OccurredAt: time.Now()})

	removed, err := l.Prune(ctx, time.Now().Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if removed != 1 {
		t.Errorf("pruned %d rows, want 1", removed)
	}
}

func TestDetectorSplitsByGap(t *testing.T) {
	l := openTestLog(t)
	d := NewDetector(l, 10*time.Minute, 2)
	ctx := context.Background()

	base := time.Now().Add(-3 * time.Hour).Truncate(time.Second)
	// First burst: three edits one minute apart.
	for i := 0; i < 3; i++ {
		record(t, l, Action{
			Session: "s1", Kind: ActionFileEdit,
			Target:     "pkg/parser.go",
			OccurredAt: base.Add(time.Duration(i) * time.Minute),
		})
	}
	// Second burst after a 30 minute gap: searches.
	burst2 := base.Add(35 * time.Minute)
	for i := 0; i < 3; i++ {
		record(t, l, Action{
			Session: "s1", Kind: ActionSearch,
			Target:     "yaml anchors reference",
			OccurredAt: burst2.Add(time.Duration(i) * time.Minute),
		})
	}

	episodes, err := d.DetectSession(ctx, "s1")
	if err != nil {
		t.Fatalf("DetectSession: %v", err)
	}
	if len(episodes) != 2 {
		t.Fatalf("expected 2 episodes, got %d", len(episodes))
	}
	if episodes[0].Kind != EpisodeImplementation {
		t.Errorf("first episode kind = %q, want implementation", episodes[0].Kind)
	}
	if episodes[1].Kind != EpisodeResearch {
		t.Errorf("second episode kind = %q, want research", episodes[1].Kind)
	}
}

func TestDetectorClassifiesDebugging(t *testing.T) {
	l := openTestLog(t)
	d := NewDetector(l, 10*time.Minute, 2)
	ctx := context.Background()

	base := time.Now().Add(-time.Hour).Truncate(time.Second)
	record(t, l, Action{Session: "s1", Kind: ActionSearch, Target: "panic in decoder stack trace", OccurredAt: base})
	record(t, l, Action{Session: "s1", Kind: ActionFileEdit, Target: "decoder.go", Detail: "fix nil check", OccurredAt: base.Add(time.Minute)})
	record(t, l, Action{Session: "s1", Kind: ActionToolCall, Target: "test", Detail: "run failing test", OccurredAt: base.Add(2 * time.Minute)})

	episodes, err := d.DetectSession(ctx, "s1")
	if err != nil {
		t.Fatalf("DetectSession: %v", err)
	}
	if len(episodes) != 1 {
		t.Fatalf("expected 1 episode, got %d", len(episodes))
	}
	if episodes[0].Kind != EpisodeDebugging {
		t.Errorf("kind = %q, want debugging (evidence: %s)", episodes[0].Kind, episodes[0].Evidence)
	}
}

func TestDetectorIgnoresTrivialBursts(t *testing.T) {
	l := openTestLog(t)
	d := NewDetector(l, 10*time.Minute, 3)
	ctx := context.Background()

	record(t, l, Action{Session: "s1", Kind: ActionNote, OccurredAt: time.Now().Add(-time.Hour)})

	episodes, err := d.DetectSession(ctx, "s1")
	if err != nil {
		t.Fatalf("DetectSession: %v", err)
	}
	if len(episodes) != 0 {
		t.Errorf("single action should not form an episode, got %d", len(episodes))
	}
}

func TestCandidateMemory(t *testing.T) {
	base := time.Now().Add(-time.Hour)
	ep := Episode{
		Session: "s1",
		Project: "web-app",
		Kind:    EpisodeDebugging,
		Start:   base,
		End:     base.Add(20 * time.Minute),
		Actions: []Action{{}, {}, {}},
		Targets: []string{"decoder.go"},
	}

	mem := ep.CandidateMemory()
	if mem.Project != "web-app" {
		t.Errorf("project = %q", mem.Project)
	}
	if mem.Category != types.CategoryDebugging {
		t.Errorf("category = %q", mem.Category)
	}
	if !strings.Contains(mem.Content, "decoder.go") {
		t.Errorf("content missing targets:\n%s", mem.Content)
	}
	if err := mem.Validate(); err != nil {
		t.Errorf("candidate memory should validate: %v", err)
	}
}

type recordingSink struct{ episodes []Episode }

func (r *recordingSink) EpisodesDetected(_ context.Context, eps []Episode) {
	r.episodes = append(r.episodes, eps...)
}

func TestHousekeeperSweep(t *testing.T) {
	l := openTestLog(t)
	d := NewDetector(l, 10*time.Minute, 2)
	sink := &recordingSink{}
	h := NewHousekeeper(d, l, sink, time.Hour, nil)

	base := time.Now().Add(-2 * time.Hour).Truncate(time.Second)
	for i := 0; i < 3; i++ {
		record(t, l, Action{
			Session: "s1", Kind: ActionFileEdit, Target: "store.go",
			OccurredAt: base.Add(time.Duration(i) * time.Minute),
		})
	}
	// Still-warm action: inside the gap window, must not be swept yet.
	record(t, l, Action{Session: "s2", Kind: ActionFileEdit, Target: "live.go", OccurredAt: time.Now()})
	record(t, l, Action{Session: "s2", Kind: ActionFileEdit, Target: "live2.go", OccurredAt: time.Now()})

	h.lastSweep = base.Add(-time.Minute)
	if err := h.Sweep(context.Background()); err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if len(sink.episodes) != 1 {
		t.Fatalf("expected 1 closed episode, got %d", len(sink.episodes))
	}
	if sink.episodes[0].Session != "s1" {
		t.Errorf("swept wrong session: %s", sink.episodes[0].Session)
	}
}
