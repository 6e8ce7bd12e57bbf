package syncer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/brandpulse/insights-go/internal/ingest"
	"github.com/brandpulse/insights-go/internal/insights"
	"github.com/brandpulse/insights-go/internal/metrics"
	"github.com/brandpulse/insights-go/internal/models"
)

type fakeInsightsClient struct {
	fakeStatusClient
	mu         sync.Mutex
	triggerErr error
	fetches    int
}

func (f *fakeInsightsClient) TriggerSync(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.triggerErr
}

func (f *fakeInsightsClient) FetchAll(ctx context.Context) (models.Windows, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches++
	return models.Windows{Last7: []models.RawRow{{Platform: "meta", CampaignID: "c1"}}}, nil
}

func (f *fakeInsightsClient) fetchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetches
}

func newTestOrchestrator(t *testing.T, fc *fakeInsightsClient) (*Orchestrator, *insights.ViewCache) {
	t.Helper()
	views := insights.NewViewCache()
	gate := NewGate(fc, discard())
	t.Cleanup(gate.Close)
	met := metrics.New(prometheus.NewRegistry())
	o := NewOrchestrator(fc, gate, views, discard(), met)
	o.pollInterval = time.Millisecond
	o.safetyTimeout = time.Hour
	return o, views
}

func waitForIdle(t *testing.T, o *Orchestrator) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if o.Phase() == PhaseIdle {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("orchestrator stuck in phase %s", o.Phase())
}

func TestOrchestratorBlockedByGate(t *testing.T) {
	fc := &fakeInsightsClient{}
	fc.seq = []*models.SyncStatus{blockedStatus(time.Now().Add(time.Hour))}
	o, _ := newTestOrchestrator(t, fc)

	err := o.Start(context.Background())
	if !errors.Is(err, ErrCoolingDown) {
		t.Fatalf("expected ErrCoolingDown, got %v", err)
	}
	if fc.fetchCount() != 0 {
		t.Fatalf("a blocked request must not poll, got %d fetches", fc.fetchCount())
	}
	if o.Phase() != PhaseIdle {
		t.Fatalf("machine must return to idle, got %s", o.Phase())
	}
}

func TestOrchestratorTriggerRateLimitStartsNoPolls(t *testing.T) {
	fc := &fakeInsightsClient{triggerErr: &ingest.RateLimitError{Detail: `{"detail":"limit"}`}}
	fc.seq = []*models.SyncStatus{freeStatus()}
	o, _ := newTestOrchestrator(t, fc)

	err := o.Start(context.Background())
	if !errors.Is(err, ErrCoolingDown) {
		t.Fatalf("expected ErrCoolingDown on a 429 trigger, got %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	if fc.fetchCount() != 0 {
		t.Fatalf("a 429 trigger must start zero poll cycles, got %d", fc.fetchCount())
	}
	// local check + post-429 reconciliation
	if got := fc.callCount(); got != 2 {
		t.Fatalf("expected gate reconciliation refresh (2 status calls), got %d", got)
	}
}

func TestOrchestratorTriggerTransportFailure(t *testing.T) {
	fc := &fakeInsightsClient{triggerErr: errors.New("upstream down")}
	o, _ := newTestOrchestrator(t, fc)

	err := o.Start(context.Background())
	if err == nil || errors.Is(err, ErrCoolingDown) || errors.Is(err, ErrBusy) {
		t.Fatalf("expected a transient failure, got %v", err)
	}
	if o.Phase() != PhaseIdle {
		t.Fatalf("machine must return to idle, got %s", o.Phase())
	}
	if fc.fetchCount() != 0 {
		t.Fatal("no polls after a failed trigger")
	}
}

func TestOrchestratorPollLoopStopsAtIterationCeiling(t *testing.T) {
	fc := &fakeInsightsClient{}
	o, views := newTestOrchestrator(t, fc)
	o.maxPolls = 5

	if err := o.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitForIdle(t, o)
	if got := fc.fetchCount(); got != 5 {
		t.Fatalf("expected exactly 5 polls, got %d", got)
	}
	if _, ok := views.Current(); !ok {
		t.Fatal("poll responses must land in the view cache")
	}
}

func TestOrchestratorSafetyTimeoutBoundsPolling(t *testing.T) {
	fc := &fakeInsightsClient{}
	o, _ := newTestOrchestrator(t, fc)
	o.maxPolls = 1 << 20
	o.safetyTimeout = 15 * time.Millisecond

	if err := o.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitForIdle(t, o)
	if got := fc.fetchCount(); got >= o.maxPolls {
		t.Fatalf("safety timeout did not bound the loop, %d polls", got)
	}
}

func TestOrchestratorSingleFlight(t *testing.T) {
	fc := &fakeInsightsClient{}
	o, _ := newTestOrchestrator(t, fc)
	o.pollInterval = time.Hour
	o.maxPolls = 1

	if err := o.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := o.Start(context.Background()); !errors.Is(err, ErrBusy) {
		t.Fatalf("expected ErrBusy while a cycle is in flight, got %v", err)
	}
	o.Stop()
	waitForIdle(t, o)
}

func TestOrchestratorStopRecordsCancelledCycle(t *testing.T) {
	fc := &fakeInsightsClient{}
	o, _ := newTestOrchestrator(t, fc)
	o.pollInterval = time.Hour
	o.maxPolls = 1

	if err := o.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	o.Stop()
	waitForIdle(t, o)

	if got := testutil.ToFloat64(o.met.SyncCycles.WithLabelValues("cancelled")); got != 1 {
		t.Fatalf("expected one cancelled cycle, got %v", got)
	}
	if got := testutil.ToFloat64(o.met.SyncCycles.WithLabelValues("completed")); got != 0 {
		t.Fatalf("a stopped cycle must not count as completed, got %v", got)
	}
}

func TestOrchestratorFullCycleRecordsCompleted(t *testing.T) {
	fc := &fakeInsightsClient{}
	o, _ := newTestOrchestrator(t, fc)
	o.maxPolls = 2

	if err := o.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitForIdle(t, o)

	if got := testutil.ToFloat64(o.met.SyncCycles.WithLabelValues("completed")); got != 1 {
		t.Fatalf("expected one completed cycle, got %v", got)
	}
}

func TestOrchestratorLateViewUpdateDoesNotResurrectBusy(t *testing.T) {
	fc := &fakeInsightsClient{}
	o, views := newTestOrchestrator(t, fc)
	o.maxPolls = 1

	if err := o.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitForIdle(t, o)

	// A response arriving after settle still updates the view without
	// flipping the machine out of idle.
	w, _ := fc.FetchAll(context.Background())
	views.Replace(w)
	if o.Phase() != PhaseIdle {
		t.Fatalf("late update must not change the phase, got %s", o.Phase())
	}
}
