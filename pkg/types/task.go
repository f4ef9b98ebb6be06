package types

import (
	"fmt"
	"strings"
	"time"
)

// Task represents a structured, status-tracked work item. Tasks form a tree
// via ParentTask/Subtasks (a task belongs under at most one parent) and carry
// an append-only history of memory connections.
type Task struct {
	ID          string `json:"id" yaml:"id"`
	Title       string `json:"title" yaml:"title"`
	Serial      string `json:"serial" yaml:"serial"` // Human-readable, unique per project
	Description string `json:"description,omitempty" yaml:"-"`

	Status   string `json:"status" yaml:"status"`     // todo|in_progress|done|blocked
	Priority string `json:"priority" yaml:"priority"` // low|medium|high|urgent
	Category string `json:"category,omitempty" yaml:"category"`
	Project  string `json:"project" yaml:"project"`

	ParentTask string   `json:"parent_task,omitempty" yaml:"parent_task"`
	Subtasks   []string `json:"subtasks,omitempty" yaml:"subtasks"`
	Tags       []string `json:"tags,omitempty" yaml:"tags"`

	// ManualMemories lists memory IDs attached explicitly by the caller,
	// as opposed to connections inferred by the linker.
	ManualMemories []string `json:"manual_memories,omitempty" yaml:"manual_memories"`

	// MemoryConnections is append-only: later analyses add new entries,
	// never mutate or delete prior ones.
	MemoryConnections []Connection `json:"memory_connections,omitempty" yaml:"memory_connections"`

	CreatedAt time.Time `json:"created" yaml:"created"`
	UpdatedAt time.Time `json:"updated" yaml:"updated"`
}

// Connection is a relevance-scored, typed association between a task and a
// memory. The same record appears on both sides of the link.
type Connection struct {
	MemoryID     string    `json:"memory_id" yaml:"memory_id"`
	MemorySerial string    `json:"memory_serial,omitempty" yaml:"memory_serial"`
	TaskID       string    `json:"task_id,omitempty" yaml:"task_id"`
	Type         string    `json:"connection_type" yaml:"connection_type"`
	Relevance    float64   `json:"relevance" yaml:"relevance"` // 0.0 to 1.0
	CreatedAt    time.Time `json:"created" yaml:"created"`
	Notes        string    `json:"notes,omitempty" yaml:"notes"`
}

// FormatSerial builds the human-readable serial for the n-th task of a
// project, e.g. "TASK-web-app-7".
func FormatSerial(project string, n int) string {
	return fmt.Sprintf("TASK-%s-%d", project, n)
}

// Normalize applies defaults to optional fields.
func (t *Task) Normalize() {
	if t.Project == "" {
		t.Project = DefaultProject
	}
	if t.Priority == "" {
		t.Priority = PriorityMedium
	}
	if t.Status == "" {
		t.Status = TaskStatusTodo
	}
}

// Validate checks caller-supplied task fields.
func (t *Task) Validate() error {
	if strings.TrimSpace(t.Title) == "" {
		return &ValidationError{
			Field:      "title",
			Message:    "task title is required",
			Suggestion: "provide a short title describing the work item",
		}
	}
	if t.Priority != "" && !IsValidTaskPriority(t.Priority) {
		return &ValidationError{
			Field:      "priority",
			Message:    "unknown task priority " + quote(t.Priority),
			Suggestion: "use one of: " + strings.Join(ValidTaskPriorities, ", "),
		}
	}
	if t.Status != "" && !IsValidTaskStatus(t.Status) {
		return &ValidationError{
			Field:      "status",
			Message:    "unknown task status " + quote(t.Status),
			Suggestion: "use one of: " + strings.Join(ValidTaskStatuses, ", "),
		}
	}
	if SanitizeProject(t.Project) == "" {
		return &ValidationError{
			Field:      "project",
			Message:    "project " + quote(t.Project) + " contains no usable characters",
			Suggestion: "use letters, digits, dots, underscores or hyphens",
		}
	}
	return nil
}

// HasSubtask reports whether id is already a child of the task.
func (t *Task) HasSubtask(id string) bool {
	return contains(t.Subtasks, id)
}

// AddConnection appends a connection record. Existing records are never
// touched.
func (t *Task) AddConnection(c Connection) {
	t.MemoryConnections = append(t.MemoryConnections, c)
}

// ConnectionsOfType returns the connection records of the given type,
// newest last (insertion order).
func (t *Task) ConnectionsOfType(connType string) []Connection {
	var out []Connection
	for _, c := range t.MemoryConnections {
		if c.Type == connType {
			out = append(out, c)
		}
	}
	return out
}
