// Package pgvector implements the semantic.Similarity interface against a
// PostgreSQL sidecar with the pgvector extension.
//
// Embedding generation stays external: the provider is handed an Embedder
// (typically backed by the caller's LLM tooling) and only runs the vector
// distance query. Callers that do not run the sidecar simply never construct
// this provider; the core works without it.
package pgvector

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq" // PostgreSQL driver
	pgv "github.com/pgvector/pgvector-go"

	"github.com/dmehra/cairn/internal/semantic"
)

// Embedder converts text into the vector space the sidecar indexes.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Provider queries an embeddings table of the form:
//
//	CREATE TABLE embeddings (
//	    record_id TEXT NOT NULL,
//	    corpus    TEXT NOT NULL,
//	    embedding VECTOR(n) NOT NULL,
//	    PRIMARY KEY (record_id, corpus)
//	);
type Provider struct {
	db       *sql.DB
	embedder Embedder
}

// New opens the sidecar connection and verifies it is reachable.
func New(dsn string, embedder Embedder) (*Provider, error) {
	if embedder == nil {
		return nil, fmt.Errorf("pgvector: embedder is required")
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("pgvector: open: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pgvector: ping: %w", err)
	}
	return &Provider{db: db, embedder: embedder}, nil
}

// TopKSimilar embeds the query and ranks records by cosine distance.
func (p *Provider) TopKSimilar(ctx context.Context, query, corpusKind string, k int) ([]semantic.Hit, error) {
	if k <= 0 {
		k = 10
	}
	vec, err := p.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("pgvector: embed query: %w", err)
	}

	const q = `
		SELECT record_id, 1 - (embedding <=> $1) AS score
		FROM embeddings
		WHERE corpus = $2
		ORDER BY embedding <=> $1
		LIMIT $3
	`
	rows, err := p.db.QueryContext(ctx, q, pgv.NewVector(vec), corpusKind, k)
	if err != nil {
		return nil, fmt.Errorf("pgvector: query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var hits []semantic.Hit
	for rows.Next() {
		var h semantic.Hit
		if err := rows.Scan(&h.ID, &h.Score); err != nil {
			return nil, fmt.Errorf("pgvector: scan: %w", err)
		}
		if h.Score < 0 {
			h.Score = 0
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

// Close releases the sidecar connection.
func (p *Provider) Close() error { return p.db.Close() }
