package patterns

import (
	"context"
	"log"
	"sync"
	"time"
)

// EpisodeSink receives the episodes each housekeeping sweep closes. The
// engine's sink turns them into candidate memories; tests use a recording
// stub.
type EpisodeSink interface {
	EpisodesDetected(ctx context.Context, episodes []Episode)
}

// Housekeeper periodically sweeps the action log for closed episodes and
// hands them to the sink. Runs entirely in the background; failures are
// logged and the next tick retries.
type Housekeeper struct {
	detector *Detector
	actions  *Log
	sink     EpisodeSink
	interval time.Duration
	logger   *log.Logger

	// retention bounds how far back each sweep looks and when old actions
	// get pruned.
	retention time.Duration

	mu        sync.Mutex
	lastSweep time.Time
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewHousekeeper builds the sweeper. interval <= 0 defaults to 30 minutes,
// retention <= 0 to 7 days.
func NewHousekeeper(detector *Detector, actions *Log, sink EpisodeSink, interval time.Duration, logger *log.Logger) *Housekeeper {
	if interval <= 0 {
		interval = 30 * time.Minute
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Housekeeper{
		detector:  detector,
		actions:   actions,
		sink:      sink,
		interval:  interval,
		retention: 7 * 24 * time.Hour,
		logger:    logger,
	}
}

// Start launches the background loop. Stop with Stop.
func (h *Housekeeper) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	h.mu.Lock()
	h.cancel = cancel
	h.done = make(chan struct{})
	h.lastSweep = time.Now().Add(-h.interval)
	h.mu.Unlock()

	go func() {
		defer close(h.done)
		ticker := time.NewTicker(h.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := h.Sweep(ctx); err != nil {
					h.logger.Printf("patterns: housekeeping sweep failed: %v", err)
				}
			}
		}
	}()
}

// Stop cancels the loop and waits for it to exit.
func (h *Housekeeper) Stop() {
	h.mu.Lock()
	cancel, done := h.cancel, h.done
	h.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Sweep runs one housekeeping pass: detect episodes since the last sweep
// (closed ones only, so an in-flight burst is picked up next time), hand
// them to the sink, and prune aged-out actions.
func (h *Housekeeper) Sweep(ctx context.Context) error {
	h.mu.Lock()
	since := h.lastSweep
	h.mu.Unlock()
	if since.IsZero() {
		since = time.Now().Add(-h.retention)
	}

	episodes, err := h.detector.DetectSince(ctx, since)
	if err != nil {
		return err
	}

	// An episode still accumulating actions ends within one gap of now;
	// leave it for the next sweep.
	cutoff := time.Now().Add(-h.detector.gap)
	var closed []Episode
	var openUntil time.Time
	for _, ep := range episodes {
		if ep.End.Before(cutoff) {
			closed = append(closed, ep)
			continue
		}
		if openUntil.IsZero() || ep.Start.Before(openUntil) {
			openUntil = ep.Start
		}
	}

	if len(closed) > 0 && h.sink != nil {
		h.sink.EpisodesDetected(ctx, closed)
	}

	h.mu.Lock()
	if openUntil.IsZero() {
		h.lastSweep = time.Now()
	} else {
		// Re-scan the open episode from its start next time.
		h.lastSweep = openUntil
	}
	h.mu.Unlock()

	if _, err := h.actions.Prune(ctx, time.Now().Add(-h.retention)); err != nil {
		h.logger.Printf("patterns: prune failed: %v", err)
	}
	return nil
}
