package engine

import (
	"context"

	"github.com/dmehra/cairn/internal/advisor"
	"github.com/dmehra/cairn/internal/workflow"
	"github.com/dmehra/cairn/pkg/types"
)

// InferStatusFromText classifies free text against the status phrase tables.
// Below the confidence threshold the classification carries no status and
// nothing should be applied.
func (e *Engine) InferStatusFromText(text string) workflow.Classification {
	return e.classifier.InferStatus(text)
}

// UpdateTaskStatusFromText infers a status from the text and, when the
// classifier is confident, applies it through the normal transition path.
// The progress note itself is linked to the task either way.
func (e *Engine) UpdateTaskStatusFromText(ctx context.Context, taskID, text string) (*StatusUpdateResult, workflow.Classification, error) {
	cls := e.classifier.InferStatus(text)

	task, err := e.tasks.Get(ctx, taskID)
	if err != nil {
		return nil, cls, err
	}
	if err := e.recordTransitionNote(ctx, task, text, types.ConnectionProgressUpdate, text); err != nil {
		e.logger.Printf("engine: record progress note for %s: %v", taskID, err)
	}

	if cls.Status == "" || cls.Status == task.Status {
		task, err = e.tasks.Get(ctx, taskID)
		if err != nil {
			return nil, cls, err
		}
		return &StatusUpdateResult{Task: task, Applied: false}, cls, nil
	}

	tc := workflow.TransitionContext{}
	if cls.Status == types.TaskStatusBlocked {
		tc.Reason = text
	}
	if cls.Status == types.TaskStatusDone {
		tc.Evidence = text
	}
	result, err := e.UpdateTaskStatus(ctx, taskID, cls.Status, tc)
	return result, cls, err
}

// ValidateTransition dry-runs a status transition without applying it.
func (e *Engine) ValidateTransition(ctx context.Context, taskID, proposed string, tc workflow.TransitionContext) (*workflow.ValidationResult, error) {
	task, err := e.tasks.Get(ctx, taskID)
	if err != nil {
		return nil, err
	}
	return e.validator.Validate(ctx, task, proposed, tc)
}

// GetAutomationSuggestion asks the advisor about a task. When apply is set
// and the suggestion qualifies for automation, the transition is applied
// through the validator; the returned result reports what happened.
func (e *Engine) GetAutomationSuggestion(ctx context.Context, taskID string, apply bool) (*advisor.Suggestion, *StatusUpdateResult, error) {
	suggestion, err := e.advisor.Suggest(ctx, taskID)
	if err != nil {
		return nil, nil, err
	}
	if suggestion == nil || !apply || !suggestion.Automatic {
		return suggestion, nil, nil
	}

	tc := workflow.TransitionContext{}
	if suggestion.Status == types.TaskStatusBlocked {
		tc.Reason = suggestion.Reasoning
	}
	result, err := e.UpdateTaskStatus(ctx, taskID, suggestion.Status, tc)
	if err != nil {
		return suggestion, nil, err
	}
	if result.Applied {
		e.logger.Printf("engine: auto-applied %s on %s (%s)", suggestion.Status, taskID, suggestion.Reasoning)
	}
	return suggestion, result, nil
}

// LinkMemoryToTask records an explicit connection between a memory and a
// task. An empty connType defaults to manual.
func (e *Engine) LinkMemoryToTask(ctx context.Context, memoryID, taskID, connType, notes string) (*types.Connection, error) {
	return e.linker.Link(ctx, memoryID, taskID, connType, notes)
}

// CompactLinks collapses a task's accumulated connection history, keeping
// the newest record per memory and type. Returns how many records were
// dropped.
func (e *Engine) CompactLinks(ctx context.Context, taskID string) (int, error) {
	return e.linker.CompactLinks(ctx, taskID)
}
