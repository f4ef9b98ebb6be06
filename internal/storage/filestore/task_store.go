package filestore

import (
	"context"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dmehra/cairn/internal/storage"
	"github.com/dmehra/cairn/pkg/types"
)

// TaskStore implements storage.TaskStore over per-project container files.
// Each container holds one or more task records separated by a fence line.
type TaskStore struct {
	store *Store
}

// Save creates or updates a task and returns its id. New tasks are assigned
// a project-unique serial; the parent's subtask list is maintained alongside
// parent_task.
func (ts *TaskStore) Save(ctx context.Context, task *types.Task) (string, error) {
	task.Normalize()
	if err := task.Validate(); err != nil {
		return "", err
	}
	key, err := projectKey(task.Project)
	if err != nil {
		return "", err
	}
	task.Project = key

	ts.store.mu.Lock()
	defer ts.store.mu.Unlock()

	now := time.Now()
	if task.ID == "" {
		task.ID = types.NewTaskID(now)
		task.CreatedAt = now
	} else if task.CreatedAt.IsZero() {
		task.CreatedAt = now
	}
	task.UpdatedAt = now

	// The record separator is part of the container framing; a description
	// carrying it as a full line, anywhere including the first or last line,
	// would truncate the container on reparse.
	task.Description = escapeSeparator(task.Description)

	tasks, err := ts.loadProject(key)
	if err != nil {
		return "", err
	}

	if task.Serial == "" {
		task.Serial = types.FormatSerial(key, nextSerialNumber(key, tasks))
	}

	replaced := false
	for i := range tasks {
		if tasks[i].ID == task.ID {
			tasks[i] = *task
			replaced = true
			break
		}
	}
	if !replaced {
		tasks = append(tasks, *task)
	}

	// Maintain the parent's subtask list in the same pass. Parents live in
	// the same project container; a dangling parent id is left to the
	// workflow validator to report.
	if task.ParentTask != "" {
		for i := range tasks {
			if tasks[i].ID == task.ParentTask && !tasks[i].HasSubtask(task.ID) {
				tasks[i].Subtasks = append(tasks[i].Subtasks, task.ID)
			}
		}
	}

	if err := ts.writeProject(key, tasks); err != nil {
		return "", err
	}
	return task.ID, nil
}

// Get retrieves a task by id, scanning all project containers.
func (ts *TaskStore) Get(ctx context.Context, id string) (*types.Task, error) {
	if strings.TrimSpace(id) == "" {
		return nil, &types.ValidationError{Field: "id", Message: "task id is required"}
	}
	keys, err := ts.store.listProjectKeys(tasksDir)
	if err != nil {
		return nil, err
	}
	for _, key := range keys {
		tasks, err := ts.loadProject(key)
		if err != nil {
			continue
		}
		for i := range tasks {
			if tasks[i].ID == id {
				return &tasks[i], nil
			}
		}
	}
	return nil, &types.NotFoundError{Kind: "task", ID: id}
}

// List retrieves tasks with pagination and filtering, newest first.
func (ts *TaskStore) List(ctx context.Context, opts storage.ListOptions) (*storage.PaginatedResult[types.Task], error) {
	opts.Normalize()
	all, err := ts.load(opts.Project)
	if err != nil {
		return nil, err
	}

	var filtered []types.Task
	for _, t := range all {
		if opts.Category != "" && t.Category != opts.Category {
			continue
		}
		if opts.Status != "" && t.Status != opts.Status {
			continue
		}
		if opts.Priority != "" && t.Priority != opts.Priority {
			continue
		}
		if opts.Tag != "" && !hasTag(t.Tags, opts.Tag) {
			continue
		}
		if opts.ParentTask != "" && t.ParentTask != opts.ParentTask {
			continue
		}
		filtered = append(filtered, t)
	}

	sort.Slice(filtered, func(i, j int) bool {
		return filtered[i].CreatedAt.After(filtered[j].CreatedAt)
	})

	return paginate(filtered, opts), nil
}

// Delete hard-deletes a task record and detaches it from its parent and
// children. Empty containers are removed.
func (ts *TaskStore) Delete(ctx context.Context, id string) (bool, error) {
	ts.store.mu.Lock()
	defer ts.store.mu.Unlock()

	keys, err := ts.store.listProjectKeys(tasksDir)
	if err != nil {
		return false, err
	}
	for _, key := range keys {
		tasks, err := ts.loadProject(key)
		if err != nil {
			continue
		}
		idx := -1
		for i := range tasks {
			if tasks[i].ID == id {
				idx = i
				break
			}
		}
		if idx < 0 {
			continue
		}
		tasks = append(tasks[:idx], tasks[idx+1:]...)
		for i := range tasks {
			tasks[i].Subtasks = removeString(tasks[i].Subtasks, id)
			if tasks[i].ParentTask == id {
				tasks[i].ParentTask = ""
			}
		}
		if len(tasks) == 0 {
			path := ts.store.taskFile(key)
			if err := ts.store.removeFile(path); err != nil && !os.IsNotExist(err) {
				return false, &types.IOError{Op: "remove", Path: path, Err: err}
			}
			return true, nil
		}
		if err := ts.writeProject(key, tasks); err != nil {
			return false, err
		}
		return true, nil
	}
	return false, nil
}

// Search performs a case-insensitive substring match against title,
// description, tags, and category.
func (ts *TaskStore) Search(ctx context.Context, rawQuery string, opts storage.ListOptions) ([]types.Task, error) {
	query := strings.ToLower(strings.TrimSpace(rawQuery))
	if query == "" {
		return nil, &types.ValidationError{
			Field:      "query",
			Message:    "search query is required",
			Suggestion: "provide a non-empty search string",
		}
	}
	all, err := ts.load(opts.Project)
	if err != nil {
		return nil, err
	}
	var hits []types.Task
	for _, t := range all {
		if taskMatches(&t, query) {
			hits = append(hits, t)
		}
	}
	return hits, nil
}

// taskMatches reports a substring hit in title, description, tags, or
// category.
func taskMatches(t *types.Task, queryLower string) bool {
	if strings.Contains(strings.ToLower(t.Title), queryLower) {
		return true
	}
	if strings.Contains(strings.ToLower(t.Description), queryLower) {
		return true
	}
	if strings.Contains(strings.ToLower(t.Category), queryLower) {
		return true
	}
	for _, tag := range t.Tags {
		if strings.Contains(strings.ToLower(tag), queryLower) {
			return true
		}
	}
	return false
}

// nextSerialNumber derives the next serial from the highest allocated one,
// so deleted tasks never cause serial reuse within a surviving container.
func nextSerialNumber(projectKey string, tasks []types.Task) int {
	prefix := "TASK-" + projectKey + "-"
	max := 0
	for _, t := range tasks {
		if !strings.HasPrefix(t.Serial, prefix) {
			continue
		}
		if n, err := strconv.Atoi(strings.TrimPrefix(t.Serial, prefix)); err == nil && n > max {
			max = n
		}
	}
	return max + 1
}

// loadProject reads one project's container. A missing file means an empty
// project; records that fail to parse are skipped.
func (ts *TaskStore) loadProject(projectKey string) ([]types.Task, error) {
	path := ts.store.taskFile(projectKey)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, &types.IOError{Op: "read", Path: path, Err: err}
	}
	var tasks []types.Task
	for _, record := range splitContainer(string(data)) {
		t, err := decodeTask(record)
		if err != nil {
			continue
		}
		tasks = append(tasks, *t)
	}
	return tasks, nil
}

// writeProject rewrites one project's container file, oldest record first.
func (ts *TaskStore) writeProject(projectKey string, tasks []types.Task) error {
	sort.Slice(tasks, func(i, j int) bool {
		return tasks[i].CreatedAt.Before(tasks[j].CreatedAt)
	})
	records := make([][]byte, 0, len(tasks))
	for i := range tasks {
		data, err := encodeTask(&tasks[i])
		if err != nil {
			return err
		}
		records = append(records, data)
	}
	return ts.store.writeFile(ts.store.taskFile(projectKey), joinContainer(records))
}

// load reads every task of one project, or of all projects when empty.
func (ts *TaskStore) load(project string) ([]types.Task, error) {
	var keys []string
	if project != "" {
		key, err := projectKey(project)
		if err != nil {
			return nil, err
		}
		keys = []string{key}
	} else {
		var err error
		keys, err = ts.store.listProjectKeys(tasksDir)
		if err != nil {
			return nil, err
		}
	}
	var out []types.Task
	for _, key := range keys {
		tasks, err := ts.loadProject(key)
		if err != nil {
			continue
		}
		out = append(out, tasks...)
	}
	return out, nil
}

func removeString(s []string, v string) []string {
	out := s[:0]
	for _, x := range s {
		if x != v {
			out = append(out, x)
		}
	}
	return out
}
