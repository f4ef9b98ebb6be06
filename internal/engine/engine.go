// Package engine composes the stores and intelligence components into the
// operation surface the transport exposes. All cross-component rules live
// here: conflict checks on create, automatic linking after writes, the
// blocking-reason memory on blocked transitions, and auto-applied advisor
// suggestions.
package engine

import (
	"context"
	"log"
	"time"

	"github.com/dmehra/cairn/internal/advisor"
	"github.com/dmehra/cairn/internal/config"
	"github.com/dmehra/cairn/internal/linker"
	"github.com/dmehra/cairn/internal/notify"
	"github.com/dmehra/cairn/internal/patterns"
	"github.com/dmehra/cairn/internal/search"
	"github.com/dmehra/cairn/internal/semantic"
	"github.com/dmehra/cairn/internal/storage"
	"github.com/dmehra/cairn/internal/workflow"
	"github.com/dmehra/cairn/pkg/types"
)

// Engine wires the record stores and intelligence components together.
type Engine struct {
	memories storage.MemoryStore
	tasks    storage.TaskStore

	search     *search.Engine
	validator  *workflow.Validator
	classifier *workflow.Classifier
	advisor    *advisor.Advisor
	linker     *linker.Linker

	logger *log.Logger
}

// New assembles the engine from configuration. sem may be nil (semantic
// search disabled); logger defaults to the process logger.
func New(cfg *config.Config, memories storage.MemoryStore, tasks storage.TaskStore, sem *semantic.Client, logger *log.Logger) *Engine {
	if logger == nil {
		logger = log.Default()
	}
	return &Engine{
		memories: memories,
		tasks:    tasks,
		search: search.New(memories, sem, search.Config{
			FuzzyFloor:       cfg.Search.FuzzyFloor,
			FuzzyMaxDistance: cfg.Search.FuzzyMaxDistance,
			RecentWindow:     time.Duration(cfg.Search.RecentWindowHours) * time.Hour,
			RecentBoost:      cfg.Search.RecentBoost,
			MediumWindow:     time.Duration(cfg.Search.MediumWindowDays) * 24 * time.Hour,
			MediumBoost:      cfg.Search.MediumBoost,
			SemanticK:        cfg.Search.SemanticK,
			MaxSuggestions:   cfg.Search.MaxSuggestions,
		}),
		validator:  workflow.NewValidator(tasks, cfg.Workflow.WIPLimit),
		classifier: workflow.NewClassifier(),
		advisor: advisor.New(tasks, advisor.Config{
			AutomationEnabled:  cfg.Advisor.AutomationEnabled,
			AutoApplyThreshold: cfg.Advisor.AutoApplyThreshold,
			StaleAfter:         time.Duration(cfg.Advisor.StaleAfterDays) * 24 * time.Hour,
		}),
		linker: linker.New(memories, tasks, linker.Config{
			RelevanceThreshold: cfg.Linker.RelevanceThreshold,
			MaxCandidates:      cfg.Linker.MaxCandidates,
		}),
		logger: logger,
	}
}

// EpisodesDetected persists the work episodes the pattern housekeeper closed
// as memories. Implements patterns.EpisodeSink.
func (e *Engine) EpisodesDetected(ctx context.Context, episodes []patterns.Episode) {
	for _, ep := range episodes {
		mem, err := e.CreateMemory(ctx, ep.CandidateMemory())
		if err != nil {
			e.logger.Printf("engine: persist %s episode: %v", ep.Kind, err)
			continue
		}
		e.logger.Printf("engine: recorded %s episode as %s", ep.Kind, mem.ID)
	}
}

// HandleExternalChange re-runs linking for a record another writer touched.
// Wired to the notify watcher; failures are logged, never propagated.
func (e *Engine) HandleExternalChange(ctx context.Context, change notify.Change) {
	switch change.Kind {
	case notify.KindMemory:
		mem, err := e.memories.Get(ctx, change.ID)
		if err != nil {
			if _, ok := err.(*types.NotFoundError); !ok {
				e.logger.Printf("engine: reload edited memory %s: %v", change.ID, err)
			}
			return
		}
		if _, err := e.linker.LinkMemory(ctx, mem); err != nil {
			e.logger.Printf("engine: relink memory %s: %v", change.ID, err)
		}
	case notify.KindTask:
		page, err := e.tasks.List(ctx, storage.ListOptions{Project: change.Project, Limit: 500})
		if err != nil {
			e.logger.Printf("engine: reload edited tasks for %s: %v", change.Project, err)
			return
		}
		for i := range page.Items {
			if _, err := e.linker.LinkTask(ctx, &page.Items[i]); err != nil {
				e.logger.Printf("engine: relink task %s: %v", page.Items[i].ID, err)
			}
		}
	}
}
