// cmd/cairn-mcp is the entry point for the cairn MCP (Model Context
// Protocol) server.  It wires the text-file record store through the engine
// so that every memory and task operation flows through linking, workflow
// validation, and the advisor.
//
// Startup sequence:
//  1. Load configuration from environment variables.
//  2. Open the record store under the data directory.
//  3. Build the optional semantic similarity client.
//  4. Assemble the engine and the command registry.
//  5. Start the pattern housekeeper and the external-edit watcher.
//  6. Serve JSON-RPC 2.0 requests from stdin, writing responses to stdout.
//
// CRITICAL: ALL logging MUST go to stderr.  Any bytes written to stdout that
// are not valid JSON-RPC 2.0 response frames will corrupt the protocol.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dmehra/cairn/internal/api"
	"github.com/dmehra/cairn/internal/api/mcp"
	"github.com/dmehra/cairn/internal/config"
	"github.com/dmehra/cairn/internal/engine"
	"github.com/dmehra/cairn/internal/notify"
	"github.com/dmehra/cairn/internal/patterns"
	"github.com/dmehra/cairn/internal/semantic"
	"github.com/dmehra/cairn/internal/semantic/pgvector"
	"github.com/dmehra/cairn/internal/storage/filestore"
)

func main() {
	// Redirect the default logger to stderr so that any incidental log calls
	// (e.g. from imported packages) never pollute the stdout JSON-RPC stream.
	log.SetOutput(os.Stderr)
	log.SetPrefix("cairn-mcp: ")
	log.SetFlags(log.LstdFlags)

	cfg := config.Load()

	if err := os.MkdirAll(cfg.Storage.DataPath, 0o700); err != nil {
		log.Fatalf("failed to create data directory %q: %v", cfg.Storage.DataPath, err)
	}

	store, err := filestore.New(cfg.Storage.DataPath)
	if err != nil {
		log.Fatalf("failed to open record store at %q: %v", cfg.Storage.DataPath, err)
	}

	// Set up a root context that is cancelled on SIGINT / SIGTERM.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("received shutdown signal")
		cancel()
	}()

	sem := buildSemanticClient(cfg)

	eng := engine.New(cfg, store.Memories(), store.Tasks(), sem, log.Default())
	registry := api.NewRegistry(api.Commands(eng)...)

	if cfg.Patterns.Enabled {
		actionLog, err := patterns.OpenLog(cfg.Patterns.LogPath)
		if err != nil {
			log.Printf("warning: action log unavailable, pattern detection disabled: %v", err)
		} else {
			defer func() { _ = actionLog.Close() }()
			detector := patterns.NewDetector(actionLog,
				time.Duration(cfg.Patterns.EpisodeGapMinutes)*time.Minute, 0)
			housekeeper := patterns.NewHousekeeper(detector, actionLog, eng,
				time.Duration(cfg.Patterns.HousekeepingMinute)*time.Minute, log.Default())
			housekeeper.Start()
			defer housekeeper.Stop()
		}
	}

	if cfg.Watcher.Enabled {
		watcher := notify.NewRecordWatcher(cfg.Storage.DataPath, func(change notify.Change) {
			eng.HandleExternalChange(ctx, change)
		}, log.Default())
		if err := watcher.Start(); err != nil {
			log.Printf("warning: record watcher unavailable: %v", err)
		} else {
			// Our own saves must not loop back as external-edit events.
			store.SetWriteHook(watcher.Suppress)
			defer watcher.Stop()
		}
	}

	srv := mcp.NewServer(registry, nil)
	transport := mcp.NewStdioTransport(srv, os.Stdin, os.Stdout)

	log.Println("ready, serving JSON-RPC 2.0 on stdin/stdout")

	if err := transport.Serve(ctx); err != nil {
		// A non-nil error here is normal (context cancellation) or indicates a
		// fatal stdin/stdout problem.  Either way it is informational only.
		log.Printf("transport stopped: %v", err)
	}
}

// buildSemanticClient constructs the guarded similarity client. Without a
// configured backend the client is nil and the semantic pass contributes
// nothing.
func buildSemanticClient(cfg *config.Config) *semantic.Client {
	if cfg.Semantic.PostgresDSN == "" {
		return nil
	}
	embedder := pgvector.NewOllamaEmbedder(cfg.Semantic.OllamaURL, cfg.Semantic.EmbedModel)
	provider, err := pgvector.New(cfg.Semantic.PostgresDSN, embedder)
	if err != nil {
		log.Printf("warning: semantic backend unavailable: %v", err)
		return nil
	}
	log.Println("semantic similarity backend connected")
	return semantic.NewClient(provider, semantic.ClientConfig{
		Timeout:        cfg.Semantic.Timeout(),
		MaxFailures:    uint32(cfg.Semantic.MaxFailures),
		CooldownPeriod: cfg.Semantic.Cooldown(),
		CallsPerSecond: cfg.Semantic.CallsPerSecond,
	})
}
