// Package sync drives the polling half of inbox reconciliation: a fixed
// interval snapshot of the provider's message and call history, handed to
// the inbox store's merger. At most one snapshot is ever in flight.
package sync

import (
	"context"
	"sync"
	"time"

	"github.com/mzahid/dialdesk/internal/bus"
	"github.com/mzahid/dialdesk/internal/inbox"
	"go.uber.org/zap"
)

// DefaultInterval is the live-inbox polling cadence.
const DefaultInterval = 5 * time.Second

// SnapshotSource produces the provider's current per-counterparty view.
type SnapshotSource interface {
	BuildSnapshot(ctx context.Context) ([]inbox.Delta, error)
}

// Result is the bus payload for a completed sync run.
type Result struct {
	Deltas  int
	Changed int
}

// Poller periodically feeds provider snapshots to the inbox store. A
// scheduled run is skipped while a previous one is still in flight, and a
// manual trigger waits for the in-flight run instead of starting another.
type Poller struct {
	source   SnapshotSource
	store    *inbox.Store
	bus      *bus.Bus
	logger   *zap.Logger
	interval time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	running bool
	done    chan struct{}
	lastErr error
}

// NewPoller creates a poller. interval <= 0 selects DefaultInterval.
func NewPoller(source SnapshotSource, store *inbox.Store, b *bus.Bus, logger *zap.Logger, interval time.Duration) *Poller {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Poller{
		source:   source,
		store:    store,
		bus:      b,
		logger:   logger,
		interval: interval,
	}
}

// Start begins the polling loop.
func (p *Poller) Start(ctx context.Context) {
	p.ctx, p.cancel = context.WithCancel(ctx)
	go p.loop(p.ctx)
}

// Stop cancels the loop and any in-flight fetch. A fetch that completes
// after Stop does not touch the store.
func (p *Poller) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
}

func (p *Poller) loop(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if !p.begin() {
				continue
			}
			p.finish(p.runOnce(ctx))
		case <-ctx.Done():
			return
		}
	}
}

// SyncNow runs a sync immediately. If one is already in flight it waits
// for that run's result instead of starting a second one.
func (p *Poller) SyncNow(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		done := p.done
		p.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
		p.mu.Lock()
		defer p.mu.Unlock()
		return p.lastErr
	}
	p.running = true
	p.done = make(chan struct{})
	p.mu.Unlock()

	err := p.runOnce(ctx)
	p.finish(err)
	return err
}

func (p *Poller) begin() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return false
	}
	p.running = true
	p.done = make(chan struct{})
	return true
}

func (p *Poller) finish(err error) {
	p.mu.Lock()
	p.running = false
	p.lastErr = err
	close(p.done)
	p.mu.Unlock()
}

// runOnce fetches one snapshot and merges it. Failures are reported on the
// bus as transient, never surfaced as hard errors: the previous state
// stays displayed and the next cycle retries naturally.
func (p *Poller) runOnce(ctx context.Context) error {
	deltas, err := p.source.BuildSnapshot(ctx)
	if err != nil {
		p.logger.Warn("sync failed", zap.Error(err))
		if p.bus != nil {
			p.bus.Publish(bus.Event{Kind: "sync.failed", Timestamp: time.Now(), Payload: err.Error()})
		}
		return err
	}
	if ctx.Err() != nil {
		// Torn down while the fetch was in flight: drop the result.
		return ctx.Err()
	}

	changed := p.store.Merge(deltas)
	if p.bus != nil {
		p.bus.Publish(bus.Event{
			Kind:      "sync.completed",
			Timestamp: time.Now(),
			Payload:   Result{Deltas: len(deltas), Changed: changed},
		})
	}
	return nil
}
