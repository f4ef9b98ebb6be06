// Package storage provides the record store interfaces for the cairn
// backend.
//
// The storage layer is split into small, focused interfaces that can be
// implemented independently and composed as needed. The file-backed
// implementation lives in the filestore subpackage; the record files it
// writes are the sole source of truth; no index may diverge from them.
package storage

import (
	"context"

	"github.com/dmehra/cairn/pkg/types"
)

// MemoryStore provides CRUD, listing, and raw substring search over memory
// records. Ranking and multi-strategy matching live in the search package;
// Search here is deliberately substring-only.
type MemoryStore interface {
	// Save creates or updates a memory (upsert semantics) and returns its id.
	// Derived fields (complexity, content type) are recomputed before the
	// record is written.
	Save(ctx context.Context, memory *types.Memory) (string, error)

	// Get retrieves a memory by id. Returns a NotFoundError for unknown ids;
	// a missing file is treated as a genuinely absent record.
	Get(ctx context.Context, id string) (*types.Memory, error)

	// List retrieves memories with pagination and filtering. Without a
	// project filter it enumerates all projects.
	List(ctx context.Context, opts ListOptions) (*PaginatedResult[types.Memory], error)

	// Delete hard-deletes a memory. It reports whether a record was removed.
	Delete(ctx context.Context, id string) (bool, error)

	// Search performs a case-insensitive substring match against content,
	// tags, and category.
	Search(ctx context.Context, rawQuery string, opts ListOptions) ([]types.Memory, error)

	// Touch increments the access counter and stamps last_accessed.
	Touch(ctx context.Context, id string) error
}

// TaskStore provides CRUD, listing, and raw substring search over task
// records. Tasks are stored in per-project container files; Save allocates
// a project-unique serial for new tasks.
type TaskStore interface {
	// Save creates or updates a task (upsert semantics) and returns its id.
	Save(ctx context.Context, task *types.Task) (string, error)

	// Get retrieves a task by id.
	Get(ctx context.Context, id string) (*types.Task, error)

	// List retrieves tasks with pagination and filtering.
	List(ctx context.Context, opts ListOptions) (*PaginatedResult[types.Task], error)

	// Delete hard-deletes a task. It reports whether a record was removed.
	Delete(ctx context.Context, id string) (bool, error)

	// Search performs a case-insensitive substring match against title,
	// description, tags, and category.
	Search(ctx context.Context, rawQuery string, opts ListOptions) ([]types.Task, error)
}
