// Package semantic defines the external similarity collaborator interface
// and the guarded client the rest of the system calls it through.
//
// The backend (vector search) is the only collaborator permitted to be slow
// or unavailable. Every call goes through a per-call timeout, a rate
// limiter, and a circuit breaker; failure of any of them contributes zero
// results and never blocks a search.
package semantic

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// Corpus kinds accepted by TopKSimilar.
const (
	CorpusMemories = "memories"
	CorpusTasks    = "tasks"
)

// ErrCircuitOpen is returned when the breaker rejects a call outright.
var ErrCircuitOpen = errors.New("semantic backend circuit is open")

// Hit is one similarity result.
type Hit struct {
	ID    string
	Score float64 // 0.0 to 1.0, higher is more similar
}

// Similarity is the external semantic-similarity collaborator. It is
// fallible by contract: implementations may return errors freely, and the
// Client above them absorbs those errors into empty contributions.
type Similarity interface {
	// TopKSimilar returns up to k ids most similar to the query within the
	// given corpus, ordered by descending score.
	TopKSimilar(ctx context.Context, query string, corpusKind string, k int) ([]Hit, error)
}

// ClientConfig tunes the guard rails around the backend.
type ClientConfig struct {
	// Timeout is the per-call deadline. Default: 2s.
	Timeout time.Duration

	// MaxFailures is the number of consecutive failures that trips the
	// breaker. Default: 3.
	MaxFailures uint32

	// CooldownPeriod is how long the breaker stays open. Default: 30s.
	CooldownPeriod time.Duration

	// CallsPerSecond caps the request rate to the backend. Default: 5.
	CallsPerSecond float64
}

func (c *ClientConfig) normalize() {
	if c.Timeout <= 0 {
		c.Timeout = 2 * time.Second
	}
	if c.MaxFailures == 0 {
		c.MaxFailures = 3
	}
	if c.CooldownPeriod <= 0 {
		c.CooldownPeriod = 30 * time.Second
	}
	if c.CallsPerSecond <= 0 {
		c.CallsPerSecond = 5
	}
}

// Client wraps a Similarity backend with timeout, rate limiting, and a
// circuit breaker. A nil backend is valid and yields empty results, so
// callers never need to branch on configuration.
type Client struct {
	backend Similarity
	breaker *gobreaker.CircuitBreaker
	limiter *rate.Limiter
	timeout time.Duration
}

// NewClient builds a guarded client. backend may be nil (semantic search
// disabled).
func NewClient(backend Similarity, cfg ClientConfig) *Client {
	cfg.normalize()
	settings := gobreaker.Settings{
		Name:    "semantic-similarity",
		Timeout: cfg.CooldownPeriod,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.MaxFailures
		},
	}
	return &Client{
		backend: backend,
		breaker: gobreaker.NewCircuitBreaker(settings),
		limiter: rate.NewLimiter(rate.Limit(cfg.CallsPerSecond), 1),
		timeout: cfg.Timeout,
	}
}

// Enabled reports whether a backend is configured.
func (c *Client) Enabled() bool { return c != nil && c.backend != nil }

// TopKSimilar queries the backend under the configured guard rails.
// Unknown corpus kinds are rejected before touching the backend.
func (c *Client) TopKSimilar(ctx context.Context, query, corpusKind string, k int) ([]Hit, error) {
	if !c.Enabled() {
		return nil, nil
	}
	if corpusKind != CorpusMemories && corpusKind != CorpusTasks {
		return nil, errors.New("semantic: unknown corpus kind " + corpusKind)
	}
	if !c.limiter.Allow() {
		// Over budget: treat like an unavailable backend, not an error.
		return nil, nil
	}

	result, err := c.breaker.Execute(func() (interface{}, error) {
		callCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()
		return c.backend.TopKSimilar(callCtx, query, corpusKind, k)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, ErrCircuitOpen
		}
		return nil, err
	}
	hits, _ := result.([]Hit)
	return hits, nil
}

// BestEffort returns the backend's contribution, swallowing every error.
// This is the entry point the Query Engine uses: degradation is silent.
func (c *Client) BestEffort(ctx context.Context, query, corpusKind string, k int) []Hit {
	hits, err := c.TopKSimilar(ctx, query, corpusKind, k)
	if err != nil {
		return nil
	}
	return hits
}

// State exposes the breaker state for diagnostics ("closed", "open",
// "half-open").
func (c *Client) State() string {
	if c == nil || c.breaker == nil {
		return "disabled"
	}
	switch c.breaker.State() {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateOpen:
		return "open"
	case gobreaker.StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}
