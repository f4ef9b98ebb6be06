package engine

import (
	"context"

	"github.com/dmehra/cairn/internal/search"
	"github.com/dmehra/cairn/internal/storage"
	"github.com/dmehra/cairn/pkg/types"
)

// CreateMemory validates and persists a new memory, then links it against
// the task corpus. A caller-supplied id that already exists is a conflict;
// updates go through SaveMemory.
func (e *Engine) CreateMemory(ctx context.Context, mem *types.Memory) (*types.Memory, error) {
	if mem.ID != "" {
		if _, err := e.memories.Get(ctx, mem.ID); err == nil {
			return nil, &types.ConflictError{Kind: "memory", ID: mem.ID}
		} else if _, ok := err.(*types.NotFoundError); !ok {
			return nil, err
		}
	}

	id, err := e.memories.Save(ctx, mem)
	if err != nil {
		return nil, err
	}
	saved, err := e.memories.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	links, err := e.linker.LinkMemory(ctx, saved)
	if err != nil {
		// The record is durable; a linking failure degrades, not fails.
		e.logger.Printf("engine: link new memory %s: %v", id, err)
	}
	saved.TaskConnections = links
	return saved, nil
}

// SaveMemory persists changes to an existing memory and refreshes its links.
func (e *Engine) SaveMemory(ctx context.Context, mem *types.Memory) (*types.Memory, error) {
	if mem.ID == "" {
		return e.CreateMemory(ctx, mem)
	}
	if _, err := e.memories.Get(ctx, mem.ID); err != nil {
		return nil, err
	}
	id, err := e.memories.Save(ctx, mem)
	if err != nil {
		return nil, err
	}
	saved, err := e.memories.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := e.linker.LinkMemory(ctx, saved); err != nil {
		e.logger.Printf("engine: relink memory %s: %v", id, err)
	}
	return e.withConnections(ctx, saved), nil
}

// GetMemory fetches a memory, records the access, and materializes its
// task-side connections.
func (e *Engine) GetMemory(ctx context.Context, id string) (*types.Memory, error) {
	mem, err := e.memories.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := e.memories.Touch(ctx, id); err != nil {
		e.logger.Printf("engine: touch memory %s: %v", id, err)
	} else {
		mem.AccessCount++
	}
	return e.withConnections(ctx, mem), nil
}

// ListMemories pages through the corpus with the store's filters.
func (e *Engine) ListMemories(ctx context.Context, opts storage.ListOptions) (*storage.PaginatedResult[types.Memory], error) {
	return e.memories.List(ctx, opts)
}

// DeleteMemory removes a memory. Existing connection records on tasks are
// left in place as history; they resolve to nothing afterwards.
func (e *Engine) DeleteMemory(ctx context.Context, id string) (bool, error) {
	return e.memories.Delete(ctx, id)
}

// SearchMemories runs the multi-strategy Query Engine.
func (e *Engine) SearchMemories(ctx context.Context, query string, opts storage.ListOptions) (*search.Response, error) {
	return e.search.Search(ctx, query, opts)
}

func (e *Engine) withConnections(ctx context.Context, mem *types.Memory) *types.Memory {
	conns, err := e.linker.ConnectionsForMemory(ctx, mem)
	if err != nil {
		e.logger.Printf("engine: load connections for %s: %v", mem.ID, err)
		return mem
	}
	mem.TaskConnections = conns
	return mem
}
