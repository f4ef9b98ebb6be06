package workflow

import (
	"context"
	"fmt"

	"github.com/dmehra/cairn/internal/storage"
	"github.com/dmehra/cairn/pkg/types"
)

// TransitionContext carries the caller-supplied context for a proposed
// transition.
type TransitionContext struct {
	// Override permits transitions outside the default edges (back to
	// todo, out of done). Taking one is reported as a warning, never an
	// error.
	Override bool

	// Force skips the incomplete-subtask hard block on →done.
	Force bool

	// Reason is required for →blocked; it becomes the blocking_reason
	// memory the engine links automatically.
	Reason string

	// Evidence is optional free-text completion evidence for →done.
	Evidence string
}

// ValidationResult is the structured outcome of validateTransition. A
// disallowed transition is returned here, never thrown: the caller decides
// whether to retry with an override.
type ValidationResult struct {
	Valid          bool     `json:"valid"`
	BlockingIssues []string `json:"blocking_issues,omitempty"`
	Warnings       []string `json:"warnings,omitempty"`
	Suggestions    []string `json:"suggestions,omitempty"`
}

// Validator checks proposed task status transitions against the state
// machine and the task's current context (subtasks, evidence, WIP load).
type Validator struct {
	tasks storage.TaskStore

	// wipLimit is the in_progress count per project above which →in_progress
	// draws a coaching warning. Zero disables the check.
	wipLimit int
}

// NewValidator creates a transition validator. wipLimit <= 0 disables the
// work-in-progress warning.
func NewValidator(tasks storage.TaskStore, wipLimit int) *Validator {
	return &Validator{tasks: tasks, wipLimit: wipLimit}
}

// Validate checks the proposed transition. Storage errors surface as
// errors; everything about the transition itself lands in the result.
func (v *Validator) Validate(ctx context.Context, task *types.Task, proposed string, tc TransitionContext) (*ValidationResult, error) {
	res := &ValidationResult{Valid: true}

	if !types.IsValidTaskStatus(proposed) {
		res.Valid = false
		res.BlockingIssues = append(res.BlockingIssues,
			fmt.Sprintf("unknown status %q", proposed))
		res.Suggestions = append(res.Suggestions,
			"use one of: todo, in_progress, done, blocked")
		return res, nil
	}

	if task.Status == proposed {
		res.Warnings = append(res.Warnings, "task is already "+proposed)
		return res, nil
	}

	if !IsDefaultTransition(task.Status, proposed) {
		if !tc.Override {
			res.Valid = false
			res.BlockingIssues = append(res.BlockingIssues,
				fmt.Sprintf("transition %s -> %s is not allowed without override", task.Status, proposed))
			res.Suggestions = append(res.Suggestions, "retry with override=true if this is intentional")
			return res, nil
		}
		res.Warnings = append(res.Warnings, OverrideWarning(task.Status, proposed))
	}

	switch proposed {
	case types.TaskStatusDone:
		if err := v.checkDone(ctx, task, tc, res); err != nil {
			return nil, err
		}
	case types.TaskStatusBlocked:
		v.checkBlocked(task, tc, res)
	case types.TaskStatusInProgress:
		if err := v.checkInProgress(ctx, task, res); err != nil {
			return nil, err
		}
	}

	return res, nil
}

// checkDone hard-blocks on incomplete subtasks (unless force) and softly
// warns when no completion evidence is present.
func (v *Validator) checkDone(ctx context.Context, task *types.Task, tc TransitionContext, res *ValidationResult) error {
	var incomplete []string
	for _, subID := range task.Subtasks {
		sub, err := v.tasks.Get(ctx, subID)
		if err != nil {
			if _, ok := err.(*types.NotFoundError); ok {
				// A dangling subtask id never blocks completion.
				continue
			}
			return err
		}
		if sub.Status != types.TaskStatusDone {
			incomplete = append(incomplete, sub.Serial)
		}
	}
	if len(incomplete) > 0 {
		if !tc.Force {
			res.Valid = false
			res.BlockingIssues = append(res.BlockingIssues,
				fmt.Sprintf("%d subtask(s) not done: %v", len(incomplete), incomplete))
			res.Suggestions = append(res.Suggestions,
				"complete the subtasks first, or retry with force=true")
		} else {
			res.Warnings = append(res.Warnings,
				fmt.Sprintf("forcing done with %d incomplete subtask(s)", len(incomplete)))
		}
	}

	if tc.Evidence == "" && len(task.ConnectionsOfType(types.ConnectionCompletionEvidence)) == 0 {
		res.Warnings = append(res.Warnings, "no completion evidence recorded")
		res.Suggestions = append(res.Suggestions,
			"link a memory describing the outcome, or pass an evidence note")
	}
	return nil
}

// checkBlocked requires a non-empty blocking reason.
func (v *Validator) checkBlocked(task *types.Task, tc TransitionContext, res *ValidationResult) {
	if tc.Reason == "" {
		res.Valid = false
		res.BlockingIssues = append(res.BlockingIssues, "a blocking reason is required")
		res.Suggestions = append(res.Suggestions,
			"describe what is blocking "+task.Serial+" in the reason field")
	}
}

// checkInProgress warns when the project already carries too much WIP.
// A coaching signal, never an error.
func (v *Validator) checkInProgress(ctx context.Context, task *types.Task, res *ValidationResult) error {
	if v.wipLimit <= 0 {
		return nil
	}
	page, err := v.tasks.List(ctx, storage.ListOptions{
		Project: task.Project,
		Status:  types.TaskStatusInProgress,
		Limit:   v.wipLimit + 1,
	})
	if err != nil {
		return err
	}
	if page.Total >= v.wipLimit {
		res.Warnings = append(res.Warnings,
			fmt.Sprintf("project %q already has %d task(s) in progress", task.Project, page.Total))
		res.Suggestions = append(res.Suggestions, "consider finishing or blocking an active task first")
	}
	return nil
}
