// Package types defines the core data structures for the cairn knowledge
// backend: memories, tasks, the connections between them, and the controlled
// vocabularies their fields draw from.
package types

// Priority levels shared by memories and tasks. Tasks additionally allow
// PriorityUrgent; memories top out at PriorityHigh.
const (
	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
	PriorityUrgent = "urgent"
)

// ValidMemoryPriorities contains the priority values a memory may carry.
var ValidMemoryPriorities = []string{
	PriorityLow,
	PriorityMedium,
	PriorityHigh,
}

// ValidTaskPriorities contains the priority values a task may carry.
var ValidTaskPriorities = []string{
	PriorityLow,
	PriorityMedium,
	PriorityHigh,
	PriorityUrgent,
}

// Memory status constants. A memory is never deleted by status change;
// deletion is a separate, explicit operation.
const (
	MemoryStatusActive    = "active"    // In regular use
	MemoryStatusArchived  = "archived"  // Kept for history, excluded from default listings
	MemoryStatusReference = "reference" // Long-lived lookup material, exempt from staleness review
)

// ValidMemoryStatuses contains all valid memory status values.
var ValidMemoryStatuses = []string{
	MemoryStatusActive,
	MemoryStatusArchived,
	MemoryStatusReference,
}

// Memory category vocabulary. Category is stored as a free string but is
// semantically constrained to this set; the Query Engine uses it for
// did-you-mean suggestions.
const (
	CategoryArchitecture = "architecture"
	CategoryDebugging    = "debugging"
	CategoryDecision     = "decision"
	CategoryHowto        = "howto"
	CategoryMeeting      = "meeting"
	CategoryResearch     = "research"
	CategorySnippet      = "snippet"
	CategoryGeneral      = "general"
)

// ValidCategories contains the known category vocabulary.
var ValidCategories = []string{
	CategoryArchitecture,
	CategoryDebugging,
	CategoryDecision,
	CategoryHowto,
	CategoryMeeting,
	CategoryResearch,
	CategorySnippet,
	CategoryGeneral,
}

// Task status constants. There is no terminal state: done and blocked can
// both be reopened (with an override where the transition rules require one).
const (
	TaskStatusTodo       = "todo"
	TaskStatusInProgress = "in_progress"
	TaskStatusDone       = "done"
	TaskStatusBlocked    = "blocked"
)

// ValidTaskStatuses contains all valid task status values.
var ValidTaskStatuses = []string{
	TaskStatusTodo,
	TaskStatusInProgress,
	TaskStatusDone,
	TaskStatusBlocked,
}

// Connection type constants describe why a memory and a task are linked.
// The linker infers the type from the calling context; ConnectionManual is
// reserved for explicit caller-specified links.
const (
	ConnectionCreationTrigger    = "creation_trigger"    // Memory caused the task to be created
	ConnectionProgressUpdate     = "progress_update"     // Memory records progress on the task
	ConnectionCompletionEvidence = "completion_evidence" // Memory evidences task completion
	ConnectionBlockingReason     = "blocking_reason"     // Memory records why the task is blocked
	ConnectionManual             = "manual"              // Explicit caller-specified link
)

// ValidConnectionTypes contains all valid connection type values.
var ValidConnectionTypes = []string{
	ConnectionCreationTrigger,
	ConnectionProgressUpdate,
	ConnectionCompletionEvidence,
	ConnectionBlockingReason,
	ConnectionManual,
}

// Content type constants classify a memory body. The value is derived from
// the content on every save and never set by callers.
const (
	ContentTypeCode       = "code"
	ContentTypeStructured = "structured"
	ContentTypeText       = "text"
)

// IsValidMemoryPriority checks if the given priority is valid for a memory.
func IsValidMemoryPriority(priority string) bool {
	return contains(ValidMemoryPriorities, priority)
}

// IsValidTaskPriority checks if the given priority is valid for a task.
func IsValidTaskPriority(priority string) bool {
	return contains(ValidTaskPriorities, priority)
}

// IsValidMemoryStatus checks if the given status is a valid memory status.
func IsValidMemoryStatus(status string) bool {
	return contains(ValidMemoryStatuses, status)
}

// IsValidTaskStatus checks if the given status is a valid task status.
func IsValidTaskStatus(status string) bool {
	return contains(ValidTaskStatuses, status)
}

// IsValidConnectionType checks if the given connection type is valid.
func IsValidConnectionType(connType string) bool {
	return contains(ValidConnectionTypes, connType)
}

// IsKnownCategory checks if the given category belongs to the known
// vocabulary. Unknown categories are stored as-is but flagged by validation
// suggestions.
func IsKnownCategory(category string) bool {
	return contains(ValidCategories, category)
}

func contains(set []string, value string) bool {
	for _, v := range set {
		if v == value {
			return true
		}
	}
	return false
}
