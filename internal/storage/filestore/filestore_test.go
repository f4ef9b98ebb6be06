package filestore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dmehra/cairn/internal/storage"
	"github.com/dmehra/cairn/pkg/types"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func saveMemory(t *testing.T, ms *MemoryStore, m *types.Memory) string {
	t.Helper()
	id, err := ms.Save(context.Background(), m)
	if err != nil {
		t.Fatalf("Save memory: %v", err)
	}
	return id
}

func saveTask(t *testing.T, ts *TaskStore, task *types.Task) string {
	t.Helper()
	id, err := ts.Save(context.Background(), task)
	if err != nil {
		t.Fatalf("Save task: %v", err)
	}
	return id
}

func TestNewRejectsEmptyRoot(t *testing.T) {
	if _, err := New("  "); !errors.Is(err, types.ErrValidation) {
		t.Errorf("New(blank) = %v, want validation error", err)
	}
}

func TestMemorySaveGetRoundTrip(t *testing.T) {
	s := newStore(t)
	ms := s.Memories()
	ctx := context.Background()

	id := saveMemory(t, ms, &types.Memory{
		Content:  "the deploy pipeline needs the staging flag",
		Project:  "Web App",
		Category: types.CategoryDecision,
		Tags:     []string{"deploy", "ci"},
		Priority: types.PriorityHigh,
	})

	got, err := ms.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Content != "the deploy pipeline needs the staging flag" {
		t.Errorf("Content = %q", got.Content)
	}
	if got.Project != "web-app" {
		t.Errorf("Project = %q, want sanitized web-app", got.Project)
	}
	if got.Category != types.CategoryDecision || got.Priority != types.PriorityHigh {
		t.Errorf("classification fields lost: %+v", got)
	}
	if got.Metadata.Size != len(got.Content) || got.Metadata.ContentType != types.ContentTypeText {
		t.Errorf("derived metadata = %+v", got.Metadata)
	}
	if got.Complexity < 2 {
		t.Errorf("Complexity = %d, want >= 2 for a categorized project memory", got.Complexity)
	}

	// The record file lives under the sanitized project directory.
	path := filepath.Join(s.Root(), "memories", "web-app", id+".md")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("record file missing: %v", err)
	}
	if !strings.HasPrefix(string(data), "---\n") {
		t.Error("record file does not start with a header fence")
	}
}

func TestMemoryGetUnknown(t *testing.T) {
	ms := newStore(t).Memories()
	_, err := ms.Get(context.Background(), "mem-20200101T000000-gone")
	if !errors.Is(err, types.ErrNotFound) {
		t.Errorf("Get(unknown) = %v, want not found", err)
	}
}

func TestMemoryTouch(t *testing.T) {
	ms := newStore(t).Memories()
	ctx := context.Background()
	id := saveMemory(t, ms, &types.Memory{Content: "touch target"})

	if err := ms.Touch(ctx, id); err != nil {
		t.Fatalf("Touch: %v", err)
	}
	if err := ms.Touch(ctx, id); err != nil {
		t.Fatalf("Touch: %v", err)
	}
	got, err := ms.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.AccessCount != 2 {
		t.Errorf("AccessCount = %d, want 2", got.AccessCount)
	}
	if got.LastAccessed == nil || got.LastAccessed.IsZero() {
		t.Error("LastAccessed not stamped")
	}
}

func TestMemoryListFiltersAndPaginates(t *testing.T) {
	ms := newStore(t).Memories()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		m := &types.Memory{Content: "note number " + string(rune('a'+i)), Project: "acme"}
		if i%2 == 0 {
			m.Category = types.CategoryDebugging
			m.Tags = []string{"incident"}
		}
		saveMemory(t, ms, m)
	}
	saveMemory(t, ms, &types.Memory{Content: "unrelated project note", Project: "other"})

	res, err := ms.List(ctx, storage.ListOptions{Project: "acme", Category: types.CategoryDebugging})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if res.Total != 3 {
		t.Errorf("Total = %d, want 3 debugging memories", res.Total)
	}
	for _, m := range res.Items {
		if m.Category != types.CategoryDebugging {
			t.Errorf("filter leak: %+v", m)
		}
	}

	page, err := ms.List(ctx, storage.ListOptions{Project: "acme", Limit: 2, Page: 2})
	if err != nil {
		t.Fatalf("List page 2: %v", err)
	}
	if len(page.Items) != 2 || page.Total != 5 || !page.HasMore {
		t.Errorf("page 2 = %d items, total %d, hasMore %v; want 2/5/true",
			len(page.Items), page.Total, page.HasMore)
	}
}

func TestMemoryDeleteIdempotent(t *testing.T) {
	ms := newStore(t).Memories()
	ctx := context.Background()
	id := saveMemory(t, ms, &types.Memory{Content: "delete me"})

	deleted, err := ms.Delete(ctx, id)
	if err != nil || !deleted {
		t.Fatalf("first Delete = (%v, %v), want (true, nil)", deleted, err)
	}
	deleted, err = ms.Delete(ctx, id)
	if err != nil || deleted {
		t.Errorf("second Delete = (%v, %v), want (false, nil)", deleted, err)
	}
}

func TestMemorySearchSubstring(t *testing.T) {
	ms := newStore(t).Memories()
	ctx := context.Background()
	saveMemory(t, ms, &types.Memory{Content: "Redis cache keys use the tenant prefix"})
	saveMemory(t, ms, &types.Memory{Content: "postgres connection pool sizing", Tags: []string{"redis-adjacent"}})
	saveMemory(t, ms, &types.Memory{Content: "meeting notes from sprint review"})

	hits, err := ms.Search(ctx, "REDIS", storage.ListOptions{})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 2 {
		t.Errorf("hits = %d, want 2 (content hit + tag hit)", len(hits))
	}

	if _, err := ms.Search(ctx, "   ", storage.ListOptions{}); !errors.Is(err, types.ErrValidation) {
		t.Errorf("empty query = %v, want validation error", err)
	}
}

func TestMemoryMovesBetweenProjects(t *testing.T) {
	s := newStore(t)
	ms := s.Memories()
	ctx := context.Background()

	id := saveMemory(t, ms, &types.Memory{Content: "migrating record", Project: "alpha"})
	got, err := ms.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	got.Project = "beta"
	if _, err := ms.Save(ctx, got); err != nil {
		t.Fatalf("Save to new project: %v", err)
	}

	oldPath := filepath.Join(s.Root(), "memories", "alpha", id+".md")
	if _, err := os.Stat(oldPath); !os.IsNotExist(err) {
		t.Error("old project file still present after move")
	}
	moved, err := ms.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get after move: %v", err)
	}
	if moved.Project != "beta" {
		t.Errorf("Project = %q, want beta", moved.Project)
	}
}

func TestTaskSerialAllocation(t *testing.T) {
	ts := newStore(t).Tasks()
	ctx := context.Background()

	var ids []string
	for i := 1; i <= 3; i++ {
		id := saveTask(t, ts, &types.Task{Title: "task", Project: "acme"})
		task, err := ts.Get(ctx, id)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		want := types.FormatSerial("acme", i)
		if task.Serial != want {
			t.Errorf("serial = %q, want %q", task.Serial, want)
		}
		ids = append(ids, id)
	}

	// Serials never regress after a delete: the next allocation continues
	// from the highest surviving serial.
	if _, err := ts.Delete(ctx, ids[1]); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	id := saveTask(t, ts, &types.Task{Title: "task", Project: "acme"})
	task, err := ts.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if task.Serial != types.FormatSerial("acme", 4) {
		t.Errorf("serial after delete = %q, want TASK-acme-4", task.Serial)
	}
}

func TestTaskParentSubtaskMaintenance(t *testing.T) {
	ts := newStore(t).Tasks()
	ctx := context.Background()

	parentID := saveTask(t, ts, &types.Task{Title: "parent", Project: "acme"})
	childID := saveTask(t, ts, &types.Task{Title: "child", Project: "acme", ParentTask: parentID})

	parent, err := ts.Get(ctx, parentID)
	if err != nil {
		t.Fatalf("Get parent: %v", err)
	}
	if !parent.HasSubtask(childID) {
		t.Error("parent subtask list not maintained on child save")
	}

	// Deleting the child detaches it from the parent.
	if _, err := ts.Delete(ctx, childID); err != nil {
		t.Fatalf("Delete child: %v", err)
	}
	parent, err = ts.Get(ctx, parentID)
	if err != nil {
		t.Fatalf("Get parent: %v", err)
	}
	if parent.HasSubtask(childID) {
		t.Error("deleted child still listed as subtask")
	}

	// Deleting the parent clears the children's parent pointer.
	childID = saveTask(t, ts, &types.Task{Title: "child2", Project: "acme", ParentTask: parentID})
	if _, err := ts.Delete(ctx, parentID); err != nil {
		t.Fatalf("Delete parent: %v", err)
	}
	child, err := ts.Get(ctx, childID)
	if err != nil {
		t.Fatalf("Get child: %v", err)
	}
	if child.ParentTask != "" {
		t.Errorf("ParentTask = %q after parent delete, want empty", child.ParentTask)
	}
}

func TestTaskContainerFraming(t *testing.T) {
	s := newStore(t)
	ts := s.Tasks()
	ctx := context.Background()

	saveTask(t, ts, &types.Task{Title: "first", Project: "acme", Description: "body one"})
	saveTask(t, ts, &types.Task{Title: "second", Project: "acme", Description: "body two"})

	data, err := os.ReadFile(filepath.Join(s.Root(), "tasks", "acme.md"))
	if err != nil {
		t.Fatalf("read container: %v", err)
	}
	if got := strings.Count(string(data), "\n===\n"); got != 1 {
		t.Errorf("separator count = %d, want 1 between 2 records", got)
	}

	// A description carrying the separator as a full line must not split
	// the container on reparse.
	id := saveTask(t, ts, &types.Task{
		Title:       "tricky",
		Project:     "acme",
		Description: "before\n===\nafter",
	})
	all, err := ts.List(ctx, storage.ListOptions{Project: "acme"})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if all.Total != 3 {
		t.Fatalf("Total = %d after tricky save, want 3", all.Total)
	}
	task, err := ts.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get tricky: %v", err)
	}
	if !strings.Contains(task.Description, "before") || !strings.Contains(task.Description, "after") {
		t.Errorf("tricky description mangled: %q", task.Description)
	}
}

func TestTaskDescriptionSeparatorOnBoundaryLines(t *testing.T) {
	ts := newStore(t).Tasks()
	ctx := context.Background()

	// The header fence above supplies the separator's leading newline and
	// the record framing supplies the trailing one, so first and last
	// description lines are as dangerous as interior ones.
	trailingID := saveTask(t, ts, &types.Task{
		Title:       "trailing",
		Project:     "acme",
		Description: "steps to reproduce\n===",
	})
	leadingID := saveTask(t, ts, &types.Task{
		Title:       "leading",
		Project:     "acme",
		Description: "===\nheader-style description",
	})
	bareID := saveTask(t, ts, &types.Task{
		Title:       "bare",
		Project:     "acme",
		Description: "===",
	})

	all, err := ts.List(ctx, storage.ListOptions{Project: "acme"})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if all.Total != 3 {
		t.Fatalf("Total = %d, want 3 intact records", all.Total)
	}

	trailing, err := ts.Get(ctx, trailingID)
	if err != nil {
		t.Fatalf("Get trailing: %v", err)
	}
	if !strings.Contains(trailing.Description, "steps to reproduce") ||
		!strings.Contains(trailing.Description, "===") {
		t.Errorf("trailing description lost data: %q", trailing.Description)
	}

	leading, err := ts.Get(ctx, leadingID)
	if err != nil {
		t.Fatalf("Get leading: %v", err)
	}
	if !strings.Contains(leading.Description, "header-style description") ||
		!strings.Contains(leading.Description, "===") {
		t.Errorf("leading description lost data: %q", leading.Description)
	}

	bare, err := ts.Get(ctx, bareID)
	if err != nil {
		t.Fatalf("Get bare: %v", err)
	}
	if !strings.Contains(bare.Description, "===") {
		t.Errorf("bare separator description lost data: %q", bare.Description)
	}
}

func TestWriteHookObservesWritesAndRemovals(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	var observed []string
	s.SetWriteHook(func(path string) { observed = append(observed, path) })

	memID := saveMemory(t, s.Memories(), &types.Memory{Content: "hook target", Project: "acme"})
	taskID := saveTask(t, s.Tasks(), &types.Task{Title: "hook task", Project: "acme"})

	memPath := filepath.Join(s.Root(), "memories", "acme", memID+".md")
	taskPath := filepath.Join(s.Root(), "tasks", "acme.md")
	if !containsPath(observed, memPath) {
		t.Errorf("hook missed memory write, saw %v", observed)
	}
	if !containsPath(observed, taskPath) {
		t.Errorf("hook missed task container write, saw %v", observed)
	}

	observed = nil
	if _, err := s.Memories().Delete(ctx, memID); err != nil {
		t.Fatalf("Delete memory: %v", err)
	}
	if _, err := s.Tasks().Delete(ctx, taskID); err != nil {
		t.Fatalf("Delete task: %v", err)
	}
	if !containsPath(observed, memPath) {
		t.Errorf("hook missed memory removal, saw %v", observed)
	}
	if !containsPath(observed, taskPath) {
		t.Errorf("hook missed task container removal, saw %v", observed)
	}
}

func containsPath(paths []string, want string) bool {
	for _, p := range paths {
		if p == want {
			return true
		}
	}
	return false
}

func TestLastWriteWinsOnSameRecord(t *testing.T) {
	ms := newStore(t).Memories()
	ctx := context.Background()

	id := saveMemory(t, ms, &types.Memory{Content: "original body", Project: "acme"})
	first, err := ms.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	second, err := ms.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}

	first.Content = "writer one's view of the record"
	second.Content = "writer two's view of the record"
	if _, err := ms.Save(ctx, first); err != nil {
		t.Fatalf("Save first: %v", err)
	}
	if _, err := ms.Save(ctx, second); err != nil {
		t.Fatalf("Save second: %v", err)
	}

	got, err := ms.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Content != "writer two's view of the record" {
		t.Errorf("content = %q, want the later write to win whole", got.Content)
	}
	if strings.Contains(got.Content, "writer one") {
		t.Error("records must not merge: the loser's write disappears entirely")
	}
}

func TestTaskConnectionsPersist(t *testing.T) {
	ts := newStore(t).Tasks()
	ctx := context.Background()

	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	id := saveTask(t, ts, &types.Task{
		Title:   "linked",
		Project: "acme",
		MemoryConnections: []types.Connection{{
			MemoryID:  "mem-20260101T000000-aaaa",
			Type:      types.ConnectionCreationTrigger,
			Relevance: 0.42,
			CreatedAt: created,
			Notes:     "origin note",
		}},
		ManualMemories: []string{"mem-20260101T000000-aaaa"},
	})

	got, err := ts.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(got.MemoryConnections) != 1 {
		t.Fatalf("connections = %d, want 1", len(got.MemoryConnections))
	}
	c := got.MemoryConnections[0]
	if c.MemoryID != "mem-20260101T000000-aaaa" || c.Type != types.ConnectionCreationTrigger {
		t.Errorf("connection identity lost: %+v", c)
	}
	if c.Relevance != 0.42 || c.Notes != "origin note" {
		t.Errorf("connection detail lost: %+v", c)
	}
	if !c.CreatedAt.Equal(created) {
		t.Errorf("connection CreatedAt = %v, want %v", c.CreatedAt, created)
	}
	if c.TaskID != id {
		t.Errorf("decoded connection TaskID = %q, want %q", c.TaskID, id)
	}
	if len(got.ManualMemories) != 1 {
		t.Errorf("ManualMemories = %v", got.ManualMemories)
	}
}

func TestTaskDeleteRemovesEmptyContainer(t *testing.T) {
	s := newStore(t)
	ts := s.Tasks()
	ctx := context.Background()

	id := saveTask(t, ts, &types.Task{Title: "only one", Project: "solo"})
	deleted, err := ts.Delete(ctx, id)
	if err != nil || !deleted {
		t.Fatalf("Delete = (%v, %v), want (true, nil)", deleted, err)
	}
	if _, err := os.Stat(filepath.Join(s.Root(), "tasks", "solo.md")); !os.IsNotExist(err) {
		t.Error("empty container file not removed")
	}

	deleted, err = ts.Delete(ctx, id)
	if err != nil || deleted {
		t.Errorf("second Delete = (%v, %v), want (false, nil)", deleted, err)
	}
}

func TestTaskSearch(t *testing.T) {
	ts := newStore(t).Tasks()
	ctx := context.Background()
	saveTask(t, ts, &types.Task{Title: "Fix login redirect", Project: "acme"})
	saveTask(t, ts, &types.Task{Title: "unrelated", Project: "acme", Description: "the login form times out"})
	saveTask(t, ts, &types.Task{Title: "write docs", Project: "acme"})

	hits, err := ts.Search(ctx, "login", storage.ListOptions{Project: "acme"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 2 {
		t.Errorf("hits = %d, want 2 (title + description)", len(hits))
	}
}
