package advisor

import (
	"context"
	"testing"
	"time"

	"github.com/dmehra/cairn/internal/storage/filestore"
	"github.com/dmehra/cairn/pkg/types"
)

func newAdvisor(t *testing.T, cfg Config) (*Advisor, *filestore.TaskStore) {
	t.Helper()
	store, err := filestore.New(t.TempDir())
	if err != nil {
		t.Fatalf("filestore.New: %v", err)
	}
	tasks := store.Tasks()
	return New(tasks, cfg), tasks
}

func mustSave(t *testing.T, tasks *filestore.TaskStore, task *types.Task) string {
	t.Helper()
	id, err := tasks.Save(context.Background(), task)
	if err != nil {
		t.Fatalf("save task: %v", err)
	}
	return id
}

func setStatus(t *testing.T, tasks *filestore.TaskStore, id, status string) {
	t.Helper()
	ctx := context.Background()
	task, err := tasks.Get(ctx, id)
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	task.Status = status
	if _, err := tasks.Save(ctx, task); err != nil {
		t.Fatalf("update task: %v", err)
	}
}

func TestSuggestDoneWhenSubtasksDone(t *testing.T) {
	a, tasks := newAdvisor(t, Config{AutomationEnabled: true})
	ctx := context.Background()

	parentID := mustSave(t, tasks, &types.Task{Title: "parent", Status: types.TaskStatusInProgress})
	c1 := mustSave(t, tasks, &types.Task{Title: "c1", ParentTask: parentID})
	c2 := mustSave(t, tasks, &types.Task{Title: "c2", ParentTask: parentID})

	s, err := a.Suggest(ctx, parentID)
	if err != nil {
		t.Fatalf("Suggest: %v", err)
	}
	if s != nil && s.Status == types.TaskStatusDone {
		t.Fatal("should not suggest done while subtasks are open")
	}

	setStatus(t, tasks, c1, types.TaskStatusDone)
	setStatus(t, tasks, c2, types.TaskStatusDone)

	s, err = a.Suggest(ctx, parentID)
	if err != nil {
		t.Fatalf("Suggest: %v", err)
	}
	if s == nil || s.Status != types.TaskStatusDone {
		t.Fatalf("expected done suggestion, got %+v", s)
	}
	if !s.Automatic {
		t.Errorf("confidence %.2f with automation enabled should auto-apply", s.Confidence)
	}
	if s.Reasoning == "" {
		t.Error("suggestion missing reasoning")
	}
}

func TestSuggestBlockedWhenSubtasksBlocked(t *testing.T) {
	a, tasks := newAdvisor(t, Config{})
	ctx := context.Background()

	parentID := mustSave(t, tasks, &types.Task{Title: "parent", Status: types.TaskStatusInProgress})
	c1 := mustSave(t, tasks, &types.Task{Title: "c1", ParentTask: parentID})
	setStatus(t, tasks, c1, types.TaskStatusBlocked)

	s, err := a.Suggest(ctx, parentID)
	if err != nil {
		t.Fatalf("Suggest: %v", err)
	}
	if s == nil || s.Status != types.TaskStatusBlocked {
		t.Fatalf("expected blocked suggestion, got %+v", s)
	}
	if s.Automatic {
		t.Error("automation disabled, suggestion must not be automatic")
	}
}

func TestSuggestStaleReview(t *testing.T) {
	a, tasks := newAdvisor(t, Config{AutomationEnabled: true, StaleAfter: 7 * 24 * time.Hour})
	ctx := context.Background()

	id := mustSave(t, tasks, &types.Task{Title: "lingering", Status: types.TaskStatusInProgress})
	a.now = func() time.Time { return time.Now().Add(10 * 24 * time.Hour) }

	s, err := a.Suggest(ctx, id)
	if err != nil {
		t.Fatalf("Suggest: %v", err)
	}
	if s == nil {
		t.Fatal("expected a stale-review advisory")
	}
	if s.Status != "" {
		t.Errorf("review advisory should not propose a status, got %q", s.Status)
	}
	if s.Automatic {
		t.Error("advisories never auto-apply")
	}
}

func TestSuggestNothingForHealthyTask(t *testing.T) {
	a, tasks := newAdvisor(t, Config{})
	id := mustSave(t, tasks, &types.Task{Title: "fresh"})

	s, err := a.Suggest(context.Background(), id)
	if err != nil {
		t.Fatalf("Suggest: %v", err)
	}
	if s != nil {
		t.Fatalf("expected no suggestion, got %+v", s)
	}
}
