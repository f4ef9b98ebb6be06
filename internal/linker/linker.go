// Package linker maintains the associations between memories and tasks.
//
// Linking is automatic on every create and update: the counterpart corpus is
// scanned, candidates are scored by normalized token overlap plus a shared
// tag/category bonus, and matches above the relevance threshold become typed
// connection records on the task. Connection history is append-only; pruning
// happens only through the explicit CompactLinks operation.
//
// The task container file is the durable side of each link. The memory-side
// view (Memory.TaskConnections) is materialized on demand from the task
// corpus, so the memory header wire format stays untouched.
package linker

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dmehra/cairn/internal/search"
	"github.com/dmehra/cairn/internal/storage"
	"github.com/dmehra/cairn/pkg/types"
)

// Config tunes the linker.
type Config struct {
	// RelevanceThreshold is the minimum score for an automatic link.
	// Default 0.3.
	RelevanceThreshold float64

	// MaxCandidates caps how many counterpart records are scanned per
	// linking pass. Default 200.
	MaxCandidates int

	// TagBonus is added per shared tag, CategoryBonus once for a shared
	// category. Defaults 0.15 and 0.1.
	TagBonus      float64
	CategoryBonus float64
}

func (c *Config) normalize() {
	if c.RelevanceThreshold <= 0 {
		c.RelevanceThreshold = 0.3
	}
	if c.MaxCandidates <= 0 {
		c.MaxCandidates = 200
	}
	if c.TagBonus <= 0 {
		c.TagBonus = 0.15
	}
	if c.CategoryBonus <= 0 {
		c.CategoryBonus = 0.1
	}
}

// Linker scores and records memory/task associations.
type Linker struct {
	memories storage.MemoryStore
	tasks    storage.TaskStore
	cfg      Config
	now      func() time.Time
}

// New builds a linker over both stores.
func New(memories storage.MemoryStore, tasks storage.TaskStore, cfg Config) *Linker {
	cfg.normalize()
	return &Linker{memories: memories, tasks: tasks, cfg: cfg, now: time.Now}
}

// LinkMemory scans the task corpus for matches to a newly written memory and
// appends connection records to every task above the threshold. Returns the
// connections created.
func (l *Linker) LinkMemory(ctx context.Context, mem *types.Memory) ([]types.Connection, error) {
	page, err := l.tasks.List(ctx, storage.ListOptions{
		Project: mem.Project,
		Limit:   l.cfg.MaxCandidates,
	})
	if err != nil {
		return nil, fmt.Errorf("linker: list tasks: %w", err)
	}

	var created []types.Connection
	for i := range page.Items {
		task := &page.Items[i]
		score := l.score(mem, task)
		if score < l.cfg.RelevanceThreshold {
			continue
		}
		if hasLink(task, mem.ID, "") {
			continue
		}
		conn := types.Connection{
			MemoryID:  mem.ID,
			TaskID:    task.ID,
			Type:      inferType(mem, task),
			Relevance: round2(score),
			CreatedAt: l.now(),
		}
		task.AddConnection(conn)
		if _, err := l.tasks.Save(ctx, task); err != nil {
			return created, fmt.Errorf("linker: save task %s: %w", task.ID, err)
		}
		created = append(created, conn)
	}
	return created, nil
}

// LinkTask scans the memory corpus for matches to a newly written task and
// appends the resulting connections to it in one save.
func (l *Linker) LinkTask(ctx context.Context, task *types.Task) ([]types.Connection, error) {
	page, err := l.memories.List(ctx, storage.ListOptions{
		Project: task.Project,
		Limit:   l.cfg.MaxCandidates,
	})
	if err != nil {
		return nil, fmt.Errorf("linker: list memories: %w", err)
	}

	var created []types.Connection
	for i := range page.Items {
		mem := &page.Items[i]
		score := l.score(mem, task)
		if score < l.cfg.RelevanceThreshold {
			continue
		}
		if hasLink(task, mem.ID, "") {
			continue
		}
		conn := types.Connection{
			MemoryID:  mem.ID,
			TaskID:    task.ID,
			Type:      inferType(mem, task),
			Relevance: round2(score),
			CreatedAt: l.now(),
		}
		task.AddConnection(conn)
		created = append(created, conn)
	}
	if len(created) > 0 {
		if _, err := l.tasks.Save(ctx, task); err != nil {
			return nil, fmt.Errorf("linker: save task %s: %w", task.ID, err)
		}
	}
	return created, nil
}

// Link records an explicit association. connType defaults to manual;
// unknown types are rejected.
func (l *Linker) Link(ctx context.Context, memoryID, taskID, connType, notes string) (*types.Connection, error) {
	if connType == "" {
		connType = types.ConnectionManual
	}
	if !types.IsValidConnectionType(connType) {
		return nil, &types.ValidationError{
			Field:      "connection_type",
			Message:    "unknown connection type '" + connType + "'",
			Suggestion: "use one of: " + strings.Join(types.ValidConnectionTypes, ", "),
		}
	}
	mem, err := l.memories.Get(ctx, memoryID)
	if err != nil {
		return nil, err
	}
	task, err := l.tasks.Get(ctx, taskID)
	if err != nil {
		return nil, err
	}

	conn := types.Connection{
		MemoryID:  mem.ID,
		TaskID:    task.ID,
		Type:      connType,
		Relevance: 1.0, // explicit links carry full relevance
		CreatedAt: l.now(),
		Notes:     notes,
	}
	task.AddConnection(conn)
	if connType == types.ConnectionManual && !contains(task.ManualMemories, mem.ID) {
		task.ManualMemories = append(task.ManualMemories, mem.ID)
	}
	if _, err := l.tasks.Save(ctx, task); err != nil {
		return nil, fmt.Errorf("linker: save task %s: %w", task.ID, err)
	}
	return &conn, nil
}

// CompactLinks collapses the task's accumulated connection history, keeping
// only the newest record per (memory, type) pair. This is the sole operation
// allowed to drop link records. Returns how many records were removed.
func (l *Linker) CompactLinks(ctx context.Context, taskID string) (int, error) {
	task, err := l.tasks.Get(ctx, taskID)
	if err != nil {
		return 0, err
	}

	type key struct{ memoryID, connType string }
	newest := make(map[key]types.Connection)
	for _, c := range task.MemoryConnections {
		k := key{c.MemoryID, c.Type}
		if prev, ok := newest[k]; !ok || c.CreatedAt.After(prev.CreatedAt) {
			newest[k] = c
		}
	}
	if len(newest) == len(task.MemoryConnections) {
		return 0, nil
	}

	compacted := make([]types.Connection, 0, len(newest))
	for _, c := range newest {
		compacted = append(compacted, c)
	}
	sort.Slice(compacted, func(i, j int) bool {
		if !compacted[i].CreatedAt.Equal(compacted[j].CreatedAt) {
			return compacted[i].CreatedAt.Before(compacted[j].CreatedAt)
		}
		return compacted[i].MemoryID < compacted[j].MemoryID
	})

	removed := len(task.MemoryConnections) - len(compacted)
	task.MemoryConnections = compacted
	if _, err := l.tasks.Save(ctx, task); err != nil {
		return 0, fmt.Errorf("linker: save task %s: %w", task.ID, err)
	}
	return removed, nil
}

// ConnectionsForMemory materializes the memory-side view of the link graph
// by scanning the task corpus of the memory's project.
func (l *Linker) ConnectionsForMemory(ctx context.Context, mem *types.Memory) ([]types.Connection, error) {
	page, err := l.tasks.List(ctx, storage.ListOptions{
		Project: mem.Project,
		Limit:   l.cfg.MaxCandidates,
	})
	if err != nil {
		return nil, fmt.Errorf("linker: list tasks: %w", err)
	}
	var out []types.Connection
	for _, task := range page.Items {
		for _, c := range task.MemoryConnections {
			if c.MemoryID == mem.ID {
				out = append(out, c)
			}
		}
	}
	return out, nil
}

// score combines normalized token overlap between the memory content and the
// task's title/description with a bonus for shared tags and category.
func (l *Linker) score(mem *types.Memory, task *types.Task) float64 {
	memTokens := tokenSet(mem.Content)
	taskTokens := tokenSet(task.Title + " " + task.Description)
	score := jaccard(memTokens, taskTokens)

	for _, tag := range mem.Tags {
		if containsFold(task.Tags, tag) {
			score += l.cfg.TagBonus
		}
	}
	if mem.Category != "" && mem.Category == task.Category && mem.Category != types.CategoryGeneral {
		score += l.cfg.CategoryBonus
	}
	if score > 1.0 {
		score = 1.0
	}
	return score
}

// inferType picks a connection type from the task's current state and the
// memory's phrasing. Falls back to progress_update.
func inferType(mem *types.Memory, task *types.Task) string {
	lowered := strings.ToLower(mem.Content)
	switch {
	case task.Status == types.TaskStatusBlocked:
		return types.ConnectionBlockingReason
	case task.Status == types.TaskStatusDone,
		strings.Contains(lowered, "finished"),
		strings.Contains(lowered, "completed"),
		strings.Contains(lowered, "shipped"):
		return types.ConnectionCompletionEvidence
	case task.Status == types.TaskStatusTodo && mem.CreatedAt.Before(task.CreatedAt):
		return types.ConnectionCreationTrigger
	default:
		return types.ConnectionProgressUpdate
	}
}

// jaccard computes |a∩b| / |a∪b| over token sets.
func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	small, large := a, b
	if len(b) < len(a) {
		small, large = b, a
	}
	shared := 0
	for tok := range small {
		if _, ok := large[tok]; ok {
			shared++
		}
	}
	union := len(a) + len(b) - shared
	return float64(shared) / float64(union)
}

func tokenSet(text string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, tok := range search.Tokenize(text) {
		set[tok] = struct{}{}
	}
	return set
}

// hasLink reports whether the task already links the memory, optionally
// filtered by type (empty matches any).
func hasLink(task *types.Task, memoryID, connType string) bool {
	for _, c := range task.MemoryConnections {
		if c.MemoryID == memoryID && (connType == "" || c.Type == connType) {
			return true
		}
	}
	return false
}

func contains(s []string, v string) bool {
	for _, x := range s {
		if x == v {
			return true
		}
	}
	return false
}

func containsFold(s []string, v string) bool {
	for _, x := range s {
		if strings.EqualFold(x, v) {
			return true
		}
	}
	return false
}

func round2(f float64) float64 {
	return float64(int(f*100+0.5)) / 100
}
