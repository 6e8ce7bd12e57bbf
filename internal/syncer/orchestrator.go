package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/brandpulse/insights-go/internal/ingest"
	"github.com/brandpulse/insights-go/internal/insights"
	"github.com/brandpulse/insights-go/internal/metrics"
	"github.com/brandpulse/insights-go/internal/models"
)

// InsightsClient is the consumer-side API surface a sync cycle drives.
type InsightsClient interface {
	StatusClient
	TriggerSync(ctx context.Context) error
	FetchAll(ctx context.Context) (models.Windows, error)
}

// Phase is the orchestrator's position in the
// idle → checking → triggering → polling → settling cycle.
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseChecking   Phase = "checking"
	PhaseTriggering Phase = "triggering"
	PhasePolling    Phase = "polling"
	PhaseSettling   Phase = "settling"
)

var (
	// ErrBusy rejects a sync request while a cycle is already in
	// flight. Cycles are single-flight; two interleaved poll loops
	// would fight over the view cache.
	ErrBusy = errors.New("sync already in progress")

	// ErrCoolingDown means the rate limit blocked the request, either
	// locally before the trigger or via an explicit 429 from upstream.
	ErrCoolingDown = errors.New("sync limit reached, cooling down")
)

const (
	defaultPollInterval  = 2 * time.Second
	defaultMaxPolls      = 15
	defaultSafetyTimeout = 32 * time.Second
)

// Orchestrator runs one sync cycle at a time: consult the gate,
// trigger the upstream refresh, poll the store so the view updates
// live, then settle. The poll loop is bounded twice over, by an
// iteration ceiling and by a wall-clock safety timer; either one ends
// the cycle.
type Orchestrator struct {
	client InsightsClient
	gate   *Gate
	views  *insights.ViewCache
	log    *slog.Logger
	met    *metrics.Metrics

	pollInterval  time.Duration
	maxPolls      int
	safetyTimeout time.Duration

	mu     sync.Mutex
	phase  Phase
	cancel context.CancelFunc
}

func NewOrchestrator(client InsightsClient, gate *Gate, views *insights.ViewCache, log *slog.Logger, met *metrics.Metrics) *Orchestrator {
	return &Orchestrator{
		client:        client,
		gate:          gate,
		views:         views,
		log:           log,
		met:           met,
		pollInterval:  defaultPollInterval,
		maxPolls:      defaultMaxPolls,
		safetyTimeout: defaultSafetyTimeout,
		phase:         PhaseIdle,
	}
}

func (o *Orchestrator) Phase() Phase {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.phase
}

func (o *Orchestrator) setPhase(p Phase) {
	o.mu.Lock()
	o.phase = p
	o.mu.Unlock()
}

// Start begins a sync cycle. The gate check and the upstream trigger
// run synchronously so the caller gets an immediate verdict; on
// success the poll loop continues in the background and Start returns
// nil.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	if o.phase != PhaseIdle {
		o.mu.Unlock()
		return ErrBusy
	}
	o.phase = PhaseChecking
	o.mu.Unlock()

	if st := o.gate.Refresh(ctx); st != nil && !st.CanSync {
		o.met.SyncCycles.WithLabelValues("blocked").Inc()
		o.setPhase(PhaseIdle)
		return ErrCoolingDown
	}

	o.setPhase(PhaseTriggering)
	if err := o.client.TriggerSync(ctx); err != nil {
		o.setPhase(PhaseIdle)
		var rl *ingest.RateLimitError
		if errors.As(err, &rl) {
			// The local check passed but the authoritative limiter
			// said no; re-read its state instead of retrying.
			o.gate.Refresh(ctx)
			o.met.SyncCycles.WithLabelValues("rate_limited").Inc()
			return ErrCoolingDown
		}
		o.met.SyncCycles.WithLabelValues("failed").Inc()
		return fmt.Errorf("trigger sync: %w", err)
	}

	// The poll loop outlives the triggering request.
	pollCtx, cancel := context.WithCancel(context.Background())
	o.mu.Lock()
	o.cancel = cancel
	o.phase = PhasePolling
	o.mu.Unlock()
	go o.poll(pollCtx)
	return nil
}

func (o *Orchestrator) poll(ctx context.Context) {
	ticker := time.NewTicker(o.pollInterval)
	safety := time.NewTimer(o.safetyTimeout)
	defer ticker.Stop()
	defer safety.Stop()

	polls := 0
	for polls < o.maxPolls {
		select {
		case <-ctx.Done():
			o.settle("cancelled")
			return
		case <-safety.C:
			o.log.Warn("sync poll safety timeout reached", slog.Int("polls", polls))
			o.settle("completed")
			return
		case <-ticker.C:
			polls++
			o.met.SyncPolls.Inc()
			w, err := o.client.FetchAll(ctx)
			if err != nil {
				o.log.Warn("sync poll fetch failed", slog.String("err", err.Error()))
				continue
			}
			o.views.Replace(w)
		}
	}
	o.settle("completed")
}

// settle ends the cycle: cancel the outstanding poll handle, re-read
// the limiter so its post-sync counters show up, and go idle. The
// result distinguishes cycles that ran their course from ones cut
// short by cancellation.
func (o *Orchestrator) settle(result string) {
	o.setPhase(PhaseSettling)
	o.mu.Lock()
	if o.cancel != nil {
		o.cancel()
		o.cancel = nil
	}
	o.mu.Unlock()
	o.gate.Refresh(context.Background())
	o.met.SyncCycles.WithLabelValues(result).Inc()
	o.setPhase(PhaseIdle)
	o.log.Info("sync cycle settled", slog.String("result", result))
}

// Stop cancels an in-flight poll loop, if any. The loop settles on its
// own way out.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	cancel := o.cancel
	o.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}
