package filestore

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dmehra/cairn/internal/storage"
	"github.com/dmehra/cairn/pkg/types"
)

// MemoryStore implements storage.MemoryStore over one file per record.
type MemoryStore struct {
	store *Store
}

// Save creates or updates a memory and returns its id. Derived fields are
// recomputed on every save so they can never drift from the stored record.
func (ms *MemoryStore) Save(ctx context.Context, memory *types.Memory) (string, error) {
	memory.Normalize()
	if err := memory.Validate(); err != nil {
		return "", err
	}
	key, err := projectKey(memory.Project)
	if err != nil {
		return "", err
	}
	memory.Project = key

	ms.store.mu.Lock()
	defer ms.store.mu.Unlock()

	now := time.Now()
	if memory.ID == "" {
		memory.ID = types.NewMemoryID(now)
		memory.CreatedAt = now
		if memory.Timestamp.IsZero() {
			memory.Timestamp = now
		}
	} else if existing, _ := ms.locate(memory.ID); existing == "" {
		// Saving with an unknown explicit id is a create; keep the id but
		// stamp creation time.
		if memory.CreatedAt.IsZero() {
			memory.CreatedAt = now
		}
		if memory.Timestamp.IsZero() {
			memory.Timestamp = memory.CreatedAt
		}
	}

	memory.Recompute()

	data, err := encodeMemory(memory)
	if err != nil {
		return "", err
	}

	// An id that already lives under another project moves with the record:
	// the old file is removed after the new location is written.
	oldPath, _ := ms.locate(memory.ID)
	newPath := filepath.Join(ms.store.memoryDir(key), memory.ID+recordExt)
	if err := ms.store.writeFile(newPath, data); err != nil {
		return "", err
	}
	if oldPath != "" && oldPath != newPath {
		_ = ms.store.removeFile(oldPath)
	}
	return memory.ID, nil
}

// Get retrieves a memory by id, scanning all project directories.
func (ms *MemoryStore) Get(ctx context.Context, id string) (*types.Memory, error) {
	if strings.TrimSpace(id) == "" {
		return nil, &types.ValidationError{Field: "id", Message: "memory id is required"}
	}
	path, err := ms.locate(id)
	if err != nil {
		return nil, err
	}
	if path == "" {
		return nil, &types.NotFoundError{Kind: "memory", ID: id}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Raced with a deleter; the record is genuinely absent.
			return nil, &types.NotFoundError{Kind: "memory", ID: id}
		}
		return nil, &types.IOError{Op: "read", Path: path, Err: err}
	}
	return decodeMemory(data)
}

// List retrieves memories with pagination and filtering, newest first.
func (ms *MemoryStore) List(ctx context.Context, opts storage.ListOptions) (*storage.PaginatedResult[types.Memory], error) {
	opts.Normalize()
	all, err := ms.load(opts.Project)
	if err != nil {
		return nil, err
	}

	var filtered []types.Memory
	for _, m := range all {
		if opts.Category != "" && m.Category != opts.Category {
			continue
		}
		if opts.Status != "" && m.Status != opts.Status {
			continue
		}
		if opts.Priority != "" && m.Priority != opts.Priority {
			continue
		}
		if opts.Tag != "" && !hasTag(m.Tags, opts.Tag) {
			continue
		}
		filtered = append(filtered, m)
	}

	sort.Slice(filtered, func(i, j int) bool {
		return filtered[i].CreatedAt.After(filtered[j].CreatedAt)
	})

	return paginate(filtered, opts), nil
}

// Delete hard-deletes a memory file. There is no tombstone.
func (ms *MemoryStore) Delete(ctx context.Context, id string) (bool, error) {
	path, err := ms.locate(id)
	if err != nil {
		return false, err
	}
	if path == "" {
		return false, nil
	}
	if err := ms.store.removeFile(path); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, &types.IOError{Op: "remove", Path: path, Err: err}
	}
	return true, nil
}

// Search performs a case-insensitive substring match against content, tags,
// and category. Ranking lives in the search package.
func (ms *MemoryStore) Search(ctx context.Context, rawQuery string, opts storage.ListOptions) ([]types.Memory, error) {
	query := strings.ToLower(strings.TrimSpace(rawQuery))
	if query == "" {
		return nil, &types.ValidationError{
			Field:      "query",
			Message:    "search query is required",
			Suggestion: "provide a non-empty search string",
		}
	}
	all, err := ms.load(opts.Project)
	if err != nil {
		return nil, err
	}
	var hits []types.Memory
	for _, m := range all {
		if memoryMatches(&m, query) {
			hits = append(hits, m)
		}
	}
	return hits, nil
}

// Touch increments access_count and stamps last_accessed. The counter is
// monotonic; a lost update under concurrent writers is accepted.
func (ms *MemoryStore) Touch(ctx context.Context, id string) error {
	m, err := ms.Get(ctx, id)
	if err != nil {
		return err
	}
	m.AccessCount++
	now := time.Now()
	m.LastAccessed = &now
	_, err = ms.Save(ctx, m)
	return err
}

// memoryMatches reports a substring hit in content, tags, or category.
func memoryMatches(m *types.Memory, queryLower string) bool {
	if strings.Contains(strings.ToLower(m.Content), queryLower) {
		return true
	}
	if strings.Contains(strings.ToLower(m.Category), queryLower) {
		return true
	}
	for _, tag := range m.Tags {
		if strings.Contains(strings.ToLower(tag), queryLower) {
			return true
		}
	}
	return false
}

// locate finds the file holding the given id, or "" when absent.
func (ms *MemoryStore) locate(id string) (string, error) {
	keys, err := ms.store.listProjectKeys(memoriesDir)
	if err != nil {
		return "", err
	}
	for _, key := range keys {
		path := filepath.Join(ms.store.memoryDir(key), id+recordExt)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", nil
}

// load reads every memory of one project, or of all projects when project
// is empty. Unparseable files are skipped rather than failing the listing.
func (ms *MemoryStore) load(project string) ([]types.Memory, error) {
	var keys []string
	if project != "" {
		key, err := projectKey(project)
		if err != nil {
			return nil, err
		}
		keys = []string{key}
	} else {
		var err error
		keys, err = ms.store.listProjectKeys(memoriesDir)
		if err != nil {
			return nil, err
		}
	}

	var out []types.Memory
	for _, key := range keys {
		dir := ms.store.memoryDir(key)
		entries, err := os.ReadDir(dir)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, &types.IOError{Op: "readdir", Path: dir, Err: err}
		}
		for _, e := range entries {
			if e.IsDir() || !strings.HasSuffix(e.Name(), recordExt) {
				continue
			}
			data, err := os.ReadFile(filepath.Join(dir, e.Name()))
			if err != nil {
				continue
			}
			m, err := decodeMemory(data)
			if err != nil {
				continue
			}
			out = append(out, *m)
		}
	}
	return out, nil
}

func hasTag(tags []string, tag string) bool {
	for _, t := range tags {
		if strings.EqualFold(t, tag) {
			return true
		}
	}
	return false
}
