// Package advisor inspects a task's surroundings (subtask states, staleness)
// and proposes status changes. Suggestions are advisory: nothing is applied
// unless the caller opts in to automation and the confidence clears the
// auto-apply threshold, and even then the change goes through the workflow
// validator like any other transition.
package advisor

import (
	"context"
	"fmt"
	"time"

	"github.com/dmehra/cairn/internal/storage"
	"github.com/dmehra/cairn/pkg/types"
)

// Suggestion is one proposed status change for a task.
type Suggestion struct {
	TaskID     string  `json:"task_id"`
	Status     string  `json:"status,omitempty"` // empty for pure advisories
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`

	// Automatic reports whether the suggestion qualifies for auto-apply:
	// confidence at or above the threshold and automation opted in.
	Automatic bool `json:"automatic"`
}

// Config tunes the advisor.
type Config struct {
	// AutoApplyThreshold is the minimum confidence for Automatic. Default 0.8.
	AutoApplyThreshold float64

	// StaleAfter is the in_progress idle duration that triggers a review
	// advisory. Default 14 days.
	StaleAfter time.Duration

	// AutomationEnabled is the global opt-in. When false no suggestion is
	// ever marked Automatic.
	AutomationEnabled bool
}

func (c *Config) normalize() {
	if c.AutoApplyThreshold <= 0 {
		c.AutoApplyThreshold = 0.8
	}
	if c.StaleAfter <= 0 {
		c.StaleAfter = 14 * 24 * time.Hour
	}
}

// Advisor derives status suggestions from task context.
type Advisor struct {
	tasks storage.TaskStore
	cfg   Config
	now   func() time.Time
}

// New builds an advisor over the task store.
func New(tasks storage.TaskStore, cfg Config) *Advisor {
	cfg.normalize()
	return &Advisor{tasks: tasks, cfg: cfg, now: time.Now}
}

// Suggest evaluates the triggers in priority order and returns the first
// suggestion that fires, or nil when the task needs no attention.
func (a *Advisor) Suggest(ctx context.Context, taskID string) (*Suggestion, error) {
	task, err := a.tasks.Get(ctx, taskID)
	if err != nil {
		return nil, err
	}

	subs, err := a.loadSubtasks(ctx, task)
	if err != nil {
		return nil, err
	}

	if s := a.suggestDone(task, subs); s != nil {
		return a.finalize(s), nil
	}
	if s := a.suggestBlocked(task, subs); s != nil {
		return a.finalize(s), nil
	}
	if s := a.suggestReview(task); s != nil {
		return a.finalize(s), nil
	}
	return nil, nil
}

func (a *Advisor) loadSubtasks(ctx context.Context, task *types.Task) ([]*types.Task, error) {
	var subs []*types.Task
	for _, id := range task.Subtasks {
		sub, err := a.tasks.Get(ctx, id)
		if err != nil {
			if _, ok := err.(*types.NotFoundError); ok {
				continue
			}
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, nil
}

// suggestDone fires when every subtask is done but the parent is not.
func (a *Advisor) suggestDone(task *types.Task, subs []*types.Task) *Suggestion {
	if len(subs) == 0 || task.Status == types.TaskStatusDone {
		return nil
	}
	for _, sub := range subs {
		if sub.Status != types.TaskStatusDone {
			return nil
		}
	}
	return &Suggestion{
		TaskID:     task.ID,
		Status:     types.TaskStatusDone,
		Confidence: 0.9,
		Reasoning:  fmt.Sprintf("all %d subtask(s) of %s are done", len(subs), task.Serial),
	}
}

// suggestBlocked fires when every subtask is blocked and the parent is
// still active.
func (a *Advisor) suggestBlocked(task *types.Task, subs []*types.Task) *Suggestion {
	if len(subs) == 0 || task.Status == types.TaskStatusBlocked || task.Status == types.TaskStatusDone {
		return nil
	}
	for _, sub := range subs {
		if sub.Status != types.TaskStatusBlocked {
			return nil
		}
	}
	return &Suggestion{
		TaskID:     task.ID,
		Status:     types.TaskStatusBlocked,
		Confidence: 0.85,
		Reasoning:  fmt.Sprintf("all %d subtask(s) of %s are blocked", len(subs), task.Serial),
	}
}

// suggestReview fires for stale in_progress tasks. No status change is
// proposed, so this advisory never auto-applies.
func (a *Advisor) suggestReview(task *types.Task) *Suggestion {
	if task.Status != types.TaskStatusInProgress {
		return nil
	}
	idle := a.now().Sub(task.UpdatedAt)
	if idle < a.cfg.StaleAfter {
		return nil
	}
	return &Suggestion{
		TaskID:     task.ID,
		Confidence: 0.5,
		Reasoning: fmt.Sprintf("%s has been in progress without updates for %d days; review whether it is stalled",
			task.Serial, int(idle.Hours()/24)),
	}
}

func (a *Advisor) finalize(s *Suggestion) *Suggestion {
	s.Automatic = a.cfg.AutomationEnabled &&
		s.Status != "" &&
		s.Confidence >= a.cfg.AutoApplyThreshold
	return s
}
