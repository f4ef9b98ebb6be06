package engine

import (
	"context"
	"fmt"

	"github.com/dmehra/cairn/internal/storage"
	"github.com/dmehra/cairn/internal/workflow"
	"github.com/dmehra/cairn/pkg/types"
)

// StatusUpdateResult reports the outcome of a status transition. A rejected
// transition is a normal result, not an error: Applied is false and
// Validation explains why.
type StatusUpdateResult struct {
	Task       *types.Task                `json:"task"`
	Applied    bool                       `json:"applied"`
	Validation *workflow.ValidationResult `json:"validation"`
}

// TaskContext is the assembled working context for one task: its position
// in the tree and the memories connected to it, newest connection first.
type TaskContext struct {
	Task     *types.Task   `json:"task"`
	Parent   *types.Task   `json:"parent,omitempty"`
	Subtasks []*types.Task `json:"subtasks,omitempty"`
	Memories []MemoryLink  `json:"memories,omitempty"`
	Advisory *TaskAdvisory `json:"advisory,omitempty"`
}

// MemoryLink pairs a connection record with the memory it points at. Memory
// is nil when the record has since been deleted.
type MemoryLink struct {
	Connection types.Connection `json:"connection"`
	Memory     *types.Memory    `json:"memory,omitempty"`
}

// TaskAdvisory carries the advisor's current suggestion inside a context
// response.
type TaskAdvisory struct {
	Status     string  `json:"status,omitempty"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

// CreateTask validates and persists a new task, then links it against the
// memory corpus. A caller-supplied id that already exists is a conflict.
func (e *Engine) CreateTask(ctx context.Context, task *types.Task) (*types.Task, error) {
	if task.ID != "" {
		if _, err := e.tasks.Get(ctx, task.ID); err == nil {
			return nil, &types.ConflictError{Kind: "task", ID: task.ID}
		} else if _, ok := err.(*types.NotFoundError); !ok {
			return nil, err
		}
	}
	if task.ParentTask != "" {
		if _, err := e.tasks.Get(ctx, task.ParentTask); err != nil {
			return nil, err
		}
	}

	id, err := e.tasks.Save(ctx, task)
	if err != nil {
		return nil, err
	}
	saved, err := e.tasks.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := e.linker.LinkTask(ctx, saved); err != nil {
		e.logger.Printf("engine: link new task %s: %v", id, err)
		return saved, nil
	}
	return e.tasks.Get(ctx, id)
}

// UpdateTaskStatus runs the proposed transition through the validator and
// applies it when allowed. A blocked transition records its reason as a
// memory linked with blocking_reason; completion evidence text becomes a
// completion_evidence link the same way.
func (e *Engine) UpdateTaskStatus(ctx context.Context, taskID, newStatus string, tc workflow.TransitionContext) (*StatusUpdateResult, error) {
	task, err := e.tasks.Get(ctx, taskID)
	if err != nil {
		return nil, err
	}

	validation, err := e.validator.Validate(ctx, task, newStatus, tc)
	if err != nil {
		return nil, err
	}
	if !validation.Valid {
		return &StatusUpdateResult{Task: task, Applied: false, Validation: validation}, nil
	}

	task.Status = newStatus
	if _, err := e.tasks.Save(ctx, task); err != nil {
		return nil, err
	}
	task, err = e.tasks.Get(ctx, taskID)
	if err != nil {
		return nil, err
	}

	switch newStatus {
	case types.TaskStatusBlocked:
		if err := e.recordTransitionNote(ctx, task, tc.Reason, types.ConnectionBlockingReason,
			fmt.Sprintf("%s blocked: %s", task.Serial, tc.Reason)); err != nil {
			e.logger.Printf("engine: record blocking reason for %s: %v", taskID, err)
		}
	case types.TaskStatusDone:
		if tc.Evidence != "" {
			if err := e.recordTransitionNote(ctx, task, tc.Evidence, types.ConnectionCompletionEvidence,
				fmt.Sprintf("%s completed: %s", task.Serial, tc.Evidence)); err != nil {
				e.logger.Printf("engine: record completion evidence for %s: %v", taskID, err)
			}
		}
	}

	task, err = e.tasks.Get(ctx, taskID)
	if err != nil {
		return nil, err
	}
	return &StatusUpdateResult{Task: task, Applied: true, Validation: validation}, nil
}

// recordTransitionNote persists the transition note as a memory and links
// it to the task with the given connection type.
func (e *Engine) recordTransitionNote(ctx context.Context, task *types.Task, note, connType, content string) error {
	if note == "" {
		return nil
	}
	mem := &types.Memory{
		Content: content,
		Project: task.Project,
		Tags:    []string{"workflow"},
	}
	id, err := e.memories.Save(ctx, mem)
	if err != nil {
		return err
	}
	_, err = e.linker.Link(ctx, id, task.ID, connType, note)
	return err
}

// ListTasks pages through the task corpus with the store's filters.
func (e *Engine) ListTasks(ctx context.Context, opts storage.ListOptions) (*storage.PaginatedResult[types.Task], error) {
	return e.tasks.List(ctx, opts)
}

// GetTaskContext assembles the task with its parent, subtasks, connected
// memories, and the advisor's current read.
func (e *Engine) GetTaskContext(ctx context.Context, taskID string) (*TaskContext, error) {
	task, err := e.tasks.Get(ctx, taskID)
	if err != nil {
		return nil, err
	}
	tcx := &TaskContext{Task: task}

	if task.ParentTask != "" {
		if parent, err := e.tasks.Get(ctx, task.ParentTask); err == nil {
			tcx.Parent = parent
		}
	}
	for _, subID := range task.Subtasks {
		if sub, err := e.tasks.Get(ctx, subID); err == nil {
			tcx.Subtasks = append(tcx.Subtasks, sub)
		}
	}

	// Newest connection first; dangling memory ids stay visible as history.
	for i := len(task.MemoryConnections) - 1; i >= 0; i-- {
		conn := task.MemoryConnections[i]
		link := MemoryLink{Connection: conn}
		if mem, err := e.memories.Get(ctx, conn.MemoryID); err == nil {
			link.Memory = mem
		}
		tcx.Memories = append(tcx.Memories, link)
	}

	if suggestion, err := e.advisor.Suggest(ctx, taskID); err == nil && suggestion != nil {
		tcx.Advisory = &TaskAdvisory{
			Status:     suggestion.Status,
			Confidence: suggestion.Confidence,
			Reasoning:  suggestion.Reasoning,
		}
	}
	return tcx, nil
}

// DeleteTask removes a task. The store detaches it from its parent and
// orphans its subtasks to top level.
func (e *Engine) DeleteTask(ctx context.Context, id string) (bool, error) {
	return e.tasks.Delete(ctx, id)
}
