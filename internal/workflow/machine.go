// Package workflow implements the task status state machine, the transition
// validator, and the natural-language status classifier.
package workflow

import (
	"github.com/dmehra/cairn/pkg/types"
)

// defaultEdges holds the transitions allowed without an override.
// There is no terminal state: done and blocked can both be reopened, but
// leaving done (and any return to todo) needs an explicit override.
var defaultEdges = map[string][]string{
	types.TaskStatusTodo:       {types.TaskStatusInProgress, types.TaskStatusBlocked},
	types.TaskStatusInProgress: {types.TaskStatusDone, types.TaskStatusBlocked},
	types.TaskStatusBlocked:    {types.TaskStatusInProgress},
	types.TaskStatusDone:       {},
}

// IsDefaultTransition reports whether from→to is allowed without override.
func IsDefaultTransition(from, to string) bool {
	for _, next := range defaultEdges[from] {
		if next == to {
			return true
		}
	}
	return false
}

// RequiresOverride reports whether from→to is only reachable with the
// override flag: any transition back to todo, or any transition out of done.
// Transitions that are neither default nor override-reachable do not exist
// (e.g. an unknown status).
func RequiresOverride(from, to string) bool {
	if IsDefaultTransition(from, to) {
		return false
	}
	if !types.IsValidTaskStatus(from) || !types.IsValidTaskStatus(to) {
		return false
	}
	return true
}

// OverrideWarning describes why an override-only transition is unusual.
// Returned as a non-fatal warning when the transition is taken.
func OverrideWarning(from, to string) string {
	switch {
	case to == types.TaskStatusTodo:
		return "reverting to todo discards progress tracking; prior status was " + from
	case from == types.TaskStatusDone:
		return "reopening a completed task; consider a follow-up task instead"
	default:
		return "transition " + from + " -> " + to + " is outside the default workflow"
	}
}
