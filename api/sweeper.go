/*
sweeper.go - Advance-queue sweep

PURPOSE:
  Periodically finds unprocessed advance requests whose date has left the
  six-month advance window and entered the normal booking window, and
  publishes an advance.due event for each. An external seniority-ordered
  process consumes those events, converts or discards the requests, and
  calls back to mark them processed. The sweeper itself NEVER converts a
  request and never flips Processed.

DESIGN:
  - Runs a background goroutine with a configurable check interval
  - Re-publishing an already-announced request is harmless: consumers key
    on the request ID, and the event stops once the request is processed

CONFIGURATION:
  - CheckInterval: How often to sweep (default: 1 hour)
  - Enabled: Whether the sweeper is active (default: true)

USAGE:
  sweeper := NewAdvanceSweeper(reconciler, publisher, log)
  sweeper.Start()
  // ... later
  sweeper.Stop()

SEE ALSO:
  - engine/advance.go: Due
  - notify/notify.go: advance.due event
*/
package api

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/warp/leave-scheduler/engine"
	"github.com/warp/leave-scheduler/notify"
)

// AdvanceSweeper announces due advance requests to the external process.
type AdvanceSweeper struct {
	Reconciler    *engine.Reconciler
	Publisher     notify.Publisher
	Log           zerolog.Logger
	CheckInterval time.Duration
	Enabled       bool

	// Now is the clock; overridable in tests.
	Now func() time.Time

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewAdvanceSweeper creates a sweeper with the default interval.
func NewAdvanceSweeper(rec *engine.Reconciler, pub notify.Publisher, log zerolog.Logger) *AdvanceSweeper {
	return &AdvanceSweeper{
		Reconciler:    rec,
		Publisher:     pub,
		Log:           log,
		CheckInterval: 1 * time.Hour,
		Enabled:       true,
		Now:           time.Now,
		stop:          make(chan struct{}),
	}
}

// Start begins the sweeper.
func (as *AdvanceSweeper) Start() {
	as.mu.Lock()
	defer as.mu.Unlock()

	if !as.Enabled {
		as.Log.Info().Msg("advance sweeper disabled, not starting")
		return
	}

	as.ticker = time.NewTicker(as.CheckInterval)
	as.wg.Add(1)

	go as.run()

	as.Log.Info().Dur("interval", as.CheckInterval).Msg("advance sweeper started")
}

// Stop stops the sweeper. Safe to call more than once.
func (as *AdvanceSweeper) Stop() {
	as.mu.Lock()
	defer as.mu.Unlock()

	if as.ticker != nil {
		as.ticker.Stop()
		as.ticker = nil
		close(as.stop)
		as.wg.Wait()
		as.Log.Info().Msg("advance sweeper stopped")
	}
}

func (as *AdvanceSweeper) run() {
	defer as.wg.Done()

	// Sweep immediately on start
	as.sweep()

	for {
		select {
		case <-as.ticker.C:
			as.sweep()
		case <-as.stop:
			return
		}
	}
}

func (as *AdvanceSweeper) sweep() {
	ctx := context.Background()
	today := engine.DayOf(as.Now())

	due, err := as.Reconciler.Due(ctx, today)
	if err != nil {
		as.Log.Error().Err(err).Msg("advance sweep failed")
		return
	}
	if len(due) == 0 {
		return
	}

	published := 0
	for _, ar := range due {
		ev := notify.FromAdvance(notify.AdvanceDue, ar, time.Now())
		if err := as.Publisher.Publish(ctx, ev); err != nil {
			as.Log.Warn().Err(err).
				Str("request", string(ar.ID)).
				Msg("failed to publish advance.due")
			continue
		}
		published++
	}

	as.Log.Info().
		Int("due", len(due)).
		Int("published", published).
		Msg("advance sweep completed")
}

// RunNow triggers an immediate sweep (for testing/admin).
func (as *AdvanceSweeper) RunNow() {
	as.sweep()
}
