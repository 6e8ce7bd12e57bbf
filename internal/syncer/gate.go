package syncer

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/brandpulse/insights-go/internal/models"
)

// StatusClient is the slice of the insights API the gate needs.
type StatusClient interface {
	SyncStatus(ctx context.Context) (*models.SyncStatus, error)
}

// Gate tracks the sync rate-limit state as reported by the insights
// API and keeps a once-per-second countdown running while a cooldown
// is active. The authoritative counts live upstream; the gate only
// reads and displays them.
type Gate struct {
	client StatusClient
	log    *slog.Logger
	tick   time.Duration
	now    func() time.Time

	root       context.Context
	cancelRoot context.CancelFunc

	mu        sync.Mutex
	status    *models.SyncStatus
	countdown int // seconds left on the displayed cooldown, -1 when idle
	cancel    context.CancelFunc
}

// GateSnapshot is what status handlers serve. Status is nil while the
// limiter is unreachable, which the dashboard treats as un-gated.
type GateSnapshot struct {
	Status           *models.SyncStatus `json:"status"`
	CountdownSeconds int                `json:"countdown_seconds"`
	CountdownActive  bool               `json:"countdown_active"`
}

func NewGate(client StatusClient, log *slog.Logger) *Gate {
	root, cancel := context.WithCancel(context.Background())
	return &Gate{
		client:     client,
		log:        log,
		tick:       time.Second,
		now:        time.Now,
		root:       root,
		cancelRoot: cancel,
		countdown:  -1,
	}
}

// Refresh re-reads the rate-limit state. Failures are absorbed: the
// gate logs, returns nil and leaves syncing un-gated rather than
// blocking the caller. A state with an active cooldown (re)starts the
// countdown loop; a free state stops it.
func (g *Gate) Refresh(ctx context.Context) *models.SyncStatus {
	st, err := g.client.SyncStatus(ctx)
	if err != nil {
		g.log.Warn("sync status refresh failed", slog.String("err", err.Error()))
		return nil
	}

	g.mu.Lock()
	g.status = st
	if g.cancel != nil {
		g.cancel()
		g.cancel = nil
	}
	g.countdown = -1
	if st != nil && !st.CanSync {
		if freeAt, ok := nextFreeInstant(st); ok {
			cdCtx, cancel := context.WithCancel(g.root)
			g.cancel = cancel
			g.countdown = st.CooldownSecondsRemaining
			go g.runCountdown(cdCtx, freeAt)
		}
	}
	g.mu.Unlock()
	return st
}

// runCountdown recomputes the displayed seconds once per tick. When
// the remaining time reaches zero it clears the display, issues a
// single refresh (the upstream limiter may have freed a slot) and
// exits; the refresh starts a new loop if a cooldown is still active.
func (g *Gate) runCountdown(ctx context.Context, freeAt time.Time) {
	tk := time.NewTicker(g.tick)
	defer tk.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tk.C:
			remaining := int(freeAt.Sub(g.now()).Seconds())
			if remaining <= 0 {
				g.mu.Lock()
				g.countdown = -1
				g.mu.Unlock()
				g.Refresh(g.root)
				return
			}
			g.mu.Lock()
			g.countdown = remaining
			g.mu.Unlock()
		}
	}
}

// Snapshot returns the last known state and the current countdown.
func (g *Gate) Snapshot() GateSnapshot {
	g.mu.Lock()
	defer g.mu.Unlock()
	snap := GateSnapshot{CountdownSeconds: 0, CountdownActive: g.countdown >= 0}
	if g.countdown > 0 {
		snap.CountdownSeconds = g.countdown
	}
	if g.status != nil {
		cp := *g.status
		snap.Status = &cp
	}
	return snap
}

// Close tears down any running countdown. No further ticks mutate the
// gate afterwards.
func (g *Gate) Close() {
	g.cancelRoot()
	g.mu.Lock()
	if g.cancel != nil {
		g.cancel()
		g.cancel = nil
	}
	g.countdown = -1
	g.mu.Unlock()
}

// nextFreeInstant parses the limiter's next_free_at. The upstream
// emits ISO-8601, with or without an explicit offset; bare timestamps
// are UTC.
func nextFreeInstant(st *models.SyncStatus) (time.Time, bool) {
	if st.NextFreeAt == nil || *st.NextFreeAt == "" {
		return time.Time{}, false
	}
	s := *st.NextFreeAt
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	for _, layout := range []string{"2006-01-02T15:04:05.999999999", "2006-01-02T15:04:05"} {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
