package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/dmehra/cairn/internal/engine"
	"github.com/dmehra/cairn/internal/storage"
	"github.com/dmehra/cairn/internal/workflow"
	"github.com/dmehra/cairn/pkg/types"
)

// command binds a name, schema, and typed handler into a Command. The
// argument struct is decoded strictly so typos in field names surface as
// errors instead of silently ignored options.
type command[A any] struct {
	name        string
	description string
	schema      string
	run         func(ctx context.Context, args A) (any, error)
}

func (c *command[A]) Name() string                 { return c.name }
func (c *command[A]) Description() string          { return c.description }
func (c *command[A]) InputSchema() json.RawMessage { return json.RawMessage(c.schema) }

func (c *command[A]) Execute(ctx context.Context, raw json.RawMessage) (any, error) {
	var args A
	if len(raw) > 0 {
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&args); err != nil {
			return nil, &types.ValidationError{
				Message:    fmt.Sprintf("invalid arguments for %s: %v", c.name, err),
				Suggestion: "check the tool's input schema",
			}
		}
	}
	return c.run(ctx, args)
}

type memoryArgs struct {
	ID       string   `json:"id,omitempty"`
	Content  string   `json:"content"`
	Project  string   `json:"project,omitempty"`
	Category string   `json:"category,omitempty"`
	Tags     []string `json:"tags,omitempty"`
	Priority string   `json:"priority,omitempty"`
	Status   string   `json:"status,omitempty"`
}

type idArgs struct {
	ID string `json:"id"`
}

type taskIDArgs struct {
	TaskID string `json:"task_id"`
}

type listArgs struct {
	Project    string `json:"project,omitempty"`
	Category   string `json:"category,omitempty"`
	Status     string `json:"status,omitempty"`
	Priority   string `json:"priority,omitempty"`
	Tag        string `json:"tag,omitempty"`
	ParentTask string `json:"parent_task,omitempty"`
	Page       int    `json:"page,omitempty"`
	Limit      int    `json:"limit,omitempty"`
}

func (a listArgs) options() storage.ListOptions {
	return storage.ListOptions{
		Project:    a.Project,
		Category:   a.Category,
		Status:     a.Status,
		Priority:   a.Priority,
		Tag:        a.Tag,
		ParentTask: a.ParentTask,
		Page:       a.Page,
		Limit:      a.Limit,
	}
}

type searchArgs struct {
	Query string `json:"query"`
	listArgs
}

type taskArgs struct {
	ID          string   `json:"id,omitempty"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Project     string   `json:"project,omitempty"`
	Category    string   `json:"category,omitempty"`
	Priority    string   `json:"priority,omitempty"`
	Status      string   `json:"status,omitempty"`
	ParentTask  string   `json:"parent_task,omitempty"`
	Tags        []string `json:"tags,omitempty"`
}

type transitionArgs struct {
	TaskID   string `json:"task_id"`
	Status   string `json:"status,omitempty"`
	Text     string `json:"text,omitempty"`
	Override bool   `json:"override,omitempty"`
	Force    bool   `json:"force,omitempty"`
	Reason   string `json:"reason,omitempty"`
	Evidence string `json:"evidence,omitempty"`
}

func (a transitionArgs) context() workflow.TransitionContext {
	return workflow.TransitionContext{
		Override: a.Override,
		Force:    a.Force,
		Reason:   a.Reason,
		Evidence: a.Evidence,
	}
}

type textArgs struct {
	Text string `json:"text"`
}

type suggestArgs struct {
	TaskID string `json:"task_id"`
	Apply  bool   `json:"apply,omitempty"`
}

type linkArgs struct {
	MemoryID       string `json:"memory_id"`
	TaskID         string `json:"task_id"`
	ConnectionType string `json:"connection_type,omitempty"`
	Notes          string `json:"notes,omitempty"`
}

// Commands builds the full command set over the engine. The returned slice
// feeds NewRegistry at startup.
func Commands(e *engine.Engine) []Command {
	return []Command{
		&command[memoryArgs]{
			name:        "store_memory",
			description: "Store a new memory. Links it to related tasks automatically.",
			schema: `{"type":"object","properties":{
				"id":{"type":"string"},
				"content":{"type":"string","description":"The note text to remember"},
				"project":{"type":"string"},
				"category":{"type":"string"},
				"tags":{"type":"array","items":{"type":"string"}},
				"priority":{"type":"string","enum":["low","medium","high"]},
				"status":{"type":"string","enum":["active","archived","reference"]}
			},"required":["content"]}`,
			run: func(ctx context.Context, a memoryArgs) (any, error) {
				return e.CreateMemory(ctx, &types.Memory{
					ID:       a.ID,
					Content:  a.Content,
					Project:  a.Project,
					Category: a.Category,
					Tags:     a.Tags,
					Priority: a.Priority,
					Status:   a.Status,
				})
			},
		},
		&command[idArgs]{
			name:        "get_memory",
			description: "Fetch one memory by id, recording the access.",
			schema:      `{"type":"object","properties":{"id":{"type":"string"}},"required":["id"]}`,
			run: func(ctx context.Context, a idArgs) (any, error) {
				return e.GetMemory(ctx, a.ID)
			},
		},
		&command[listArgs]{
			name:        "list_memories",
			description: "List memories with optional project, category, status, and tag filters.",
			schema: `{"type":"object","properties":{
				"project":{"type":"string"},
				"category":{"type":"string"},
				"status":{"type":"string"},
				"tag":{"type":"string"},
				"page":{"type":"integer"},
				"limit":{"type":"integer"}
			}}`,
			run: func(ctx context.Context, a listArgs) (any, error) {
				return e.ListMemories(ctx, a.options())
			},
		},
		&command[idArgs]{
			name:        "delete_memory",
			description: "Delete a memory by id.",
			schema:      `{"type":"object","properties":{"id":{"type":"string"}},"required":["id"]}`,
			run: func(ctx context.Context, a idArgs) (any, error) {
				deleted, err := e.DeleteMemory(ctx, a.ID)
				if err != nil {
					return nil, err
				}
				return map[string]any{"deleted": deleted}, nil
			},
		},
		&command[searchArgs]{
			name:        "search_memories",
			description: "Search memories with exact, expanded, semantic, and fuzzy strategies.",
			schema: `{"type":"object","properties":{
				"query":{"type":"string"},
				"project":{"type":"string"},
				"category":{"type":"string"},
				"limit":{"type":"integer"},
				"page":{"type":"integer"}
			},"required":["query"]}`,
			run: func(ctx context.Context, a searchArgs) (any, error) {
				return e.SearchMemories(ctx, a.Query, a.options())
			},
		},
		&command[taskArgs]{
			name:        "create_task",
			description: "Create a task. Links it to related memories automatically.",
			schema: `{"type":"object","properties":{
				"id":{"type":"string"},
				"title":{"type":"string"},
				"description":{"type":"string"},
				"project":{"type":"string"},
				"category":{"type":"string"},
				"priority":{"type":"string","enum":["low","medium","high","urgent"]},
				"status":{"type":"string","enum":["todo","in_progress","done","blocked"]},
				"parent_task":{"type":"string"},
				"tags":{"type":"array","items":{"type":"string"}}
			},"required":["title"]}`,
			run: func(ctx context.Context, a taskArgs) (any, error) {
				return e.CreateTask(ctx, &types.Task{
					ID:          a.ID,
					Title:       a.Title,
					Description: a.Description,
					Project:     a.Project,
					Category:    a.Category,
					Priority:    a.Priority,
					Status:      a.Status,
					ParentTask:  a.ParentTask,
					Tags:        a.Tags,
				})
			},
		},
		&command[transitionArgs]{
			name:        "update_task_status",
			description: "Change a task's status through the workflow rules, or infer it from progress text.",
			schema: `{"type":"object","properties":{
				"task_id":{"type":"string"},
				"status":{"type":"string","enum":["todo","in_progress","done","blocked"]},
				"text":{"type":"string","description":"Progress text to infer the status from when no status is given"},
				"override":{"type":"boolean"},
				"force":{"type":"boolean"},
				"reason":{"type":"string","description":"Required when blocking"},
				"evidence":{"type":"string","description":"Completion evidence when finishing"}
			},"required":["task_id"]}`,
			run: func(ctx context.Context, a transitionArgs) (any, error) {
				if a.Status == "" && a.Text != "" {
					result, cls, err := e.UpdateTaskStatusFromText(ctx, a.TaskID, a.Text)
					if err != nil {
						return nil, err
					}
					return map[string]any{"result": result, "classification": cls}, nil
				}
				if a.Status == "" {
					return nil, &types.ValidationError{
						Field:      "status",
						Message:    "either status or text is required",
						Suggestion: "pass a target status, or progress text to infer one",
					}
				}
				return e.UpdateTaskStatus(ctx, a.TaskID, a.Status, a.context())
			},
		},
		&command[listArgs]{
			name:        "list_tasks",
			description: "List tasks with optional project, status, priority, and parent filters.",
			schema: `{"type":"object","properties":{
				"project":{"type":"string"},
				"status":{"type":"string"},
				"priority":{"type":"string"},
				"parent_task":{"type":"string"},
				"tag":{"type":"string"},
				"page":{"type":"integer"},
				"limit":{"type":"integer"}
			}}`,
			run: func(ctx context.Context, a listArgs) (any, error) {
				return e.ListTasks(ctx, a.options())
			},
		},
		&command[taskIDArgs]{
			name:        "get_task_context",
			description: "Fetch a task with its parent, subtasks, connected memories, and advisory.",
			schema:      `{"type":"object","properties":{"task_id":{"type":"string"}},"required":["task_id"]}`,
			run: func(ctx context.Context, a taskIDArgs) (any, error) {
				return e.GetTaskContext(ctx, a.TaskID)
			},
		},
		&command[taskIDArgs]{
			name:        "delete_task",
			description: "Delete a task by id.",
			schema:      `{"type":"object","properties":{"task_id":{"type":"string"}},"required":["task_id"]}`,
			run: func(ctx context.Context, a taskIDArgs) (any, error) {
				deleted, err := e.DeleteTask(ctx, a.TaskID)
				if err != nil {
					return nil, err
				}
				return map[string]any{"deleted": deleted}, nil
			},
		},
		&command[textArgs]{
			name:        "infer_task_status",
			description: "Classify free text into a task status with a confidence score.",
			schema:      `{"type":"object","properties":{"text":{"type":"string"}},"required":["text"]}`,
			run: func(ctx context.Context, a textArgs) (any, error) {
				return e.InferStatusFromText(a.Text), nil
			},
		},
		&command[transitionArgs]{
			name:        "validate_transition",
			description: "Dry-run a status transition without applying it.",
			schema: `{"type":"object","properties":{
				"task_id":{"type":"string"},
				"status":{"type":"string","enum":["todo","in_progress","done","blocked"]},
				"override":{"type":"boolean"},
				"force":{"type":"boolean"},
				"reason":{"type":"string"},
				"evidence":{"type":"string"}
			},"required":["task_id","status"]}`,
			run: func(ctx context.Context, a transitionArgs) (any, error) {
				return e.ValidateTransition(ctx, a.TaskID, a.Status, a.context())
			},
		},
		&command[suggestArgs]{
			name:        "suggest_automation",
			description: "Ask the advisor for a status suggestion; optionally auto-apply qualifying ones.",
			schema: `{"type":"object","properties":{
				"task_id":{"type":"string"},
				"apply":{"type":"boolean"}
			},"required":["task_id"]}`,
			run: func(ctx context.Context, a suggestArgs) (any, error) {
				suggestion, result, err := e.GetAutomationSuggestion(ctx, a.TaskID, a.Apply)
				if err != nil {
					return nil, err
				}
				return map[string]any{"suggestion": suggestion, "result": result}, nil
			},
		},
		&command[linkArgs]{
			name:        "link_memory_to_task",
			description: "Record an explicit connection between a memory and a task.",
			schema: `{"type":"object","properties":{
				"memory_id":{"type":"string"},
				"task_id":{"type":"string"},
				"connection_type":{"type":"string","enum":["creation_trigger","progress_update","completion_evidence","blocking_reason","manual"]},
				"notes":{"type":"string"}
			},"required":["memory_id","task_id"]}`,
			run: func(ctx context.Context, a linkArgs) (any, error) {
				return e.LinkMemoryToTask(ctx, a.MemoryID, a.TaskID, a.ConnectionType, a.Notes)
			},
		},
		&command[taskIDArgs]{
			name:        "compact_task_links",
			description: "Collapse a task's connection history to the newest record per memory and type.",
			schema:      `{"type":"object","properties":{"task_id":{"type":"string"}},"required":["task_id"]}`,
			run: func(ctx context.Context, a taskIDArgs) (any, error) {
				removed, err := e.CompactLinks(ctx, a.TaskID)
				if err != nil {
					return nil, err
				}
				return map[string]any{"removed": removed}, nil
			},
		},
	}
}
