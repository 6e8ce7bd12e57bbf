package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/brandpulse/insights-go/internal/ingest"
	"github.com/brandpulse/insights-go/internal/insights"
	"github.com/brandpulse/insights-go/internal/metrics"
	"github.com/brandpulse/insights-go/internal/models"
	"github.com/brandpulse/insights-go/internal/store"
	"github.com/brandpulse/insights-go/internal/syncer"
	"github.com/brandpulse/insights-go/internal/utils"
)

// SyncLimiter is the slice of the rate limiter the router serves.
// *tracker.Tracker satisfies it; tests substitute fixed states.
type SyncLimiter interface {
	Status(ctx context.Context) models.SyncStatus
	Reset(ctx context.Context) error
}

// Deps wires the two halves of the service into one router: the served
// insights API (store + tracker + refresher) and the dashboard surface
// built on the aggregation core and the sync orchestrator.
type Deps struct {
	Log       *slog.Logger
	Store     *store.MemoryStore
	Tracker   SyncLimiter
	Refresher *ingest.Refresher
	Client    *ingest.Client
	Views     *insights.ViewCache
	Gate      *syncer.Gate
	Orch      *syncer.Orchestrator
	Met       *metrics.Metrics
	Gatherer  prometheus.Gatherer
}

func NewRouter(d Deps) http.Handler {
	mux := chi.NewRouter()
	mux.Use(utils.RequestID)
	mux.Use(utils.Logger(d.Log))
	syncLimit := utils.NewIPRateLimit(d.Log, 1, 3)

	mux.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); w.Write([]byte("ok")) })
	mux.Get("/readyz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); w.Write([]byte("ready")) })
	mux.Get("/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "message": "insights service running"})
	})
	mux.Method(http.MethodGet, "/metrics", metrics.Handler(d.Gatherer))

	// Served insights API.
	mux.Get("/insights/all", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, d.Store.All())
	})
	mux.Get("/insights/sync-status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, d.Tracker.Status(r.Context()))
	})
	mux.With(syncLimit.Handler).Post("/insights/sync", d.handleInsightsSync)
	mux.Post("/insights/sync/reset", func(w http.ResponseWriter, r *http.Request) {
		if err := d.Tracker.Reset(r.Context()); err != nil {
			d.Log.Error("sync tracker reset failed", slog.String("err", err.Error()))
			writeJSON(w, http.StatusBadGateway, map[string]any{"detail": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "reset"})
	})

	// Dashboard surface.
	mux.Get("/dashboard/brands", d.handleBrands)
	mux.With(syncLimit.Handler).Post("/dashboard/sync", d.handleDashboardSync)
	mux.Get("/dashboard/sync/status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"phase":           d.Orch.Phase(),
			"busy":            d.Orch.Phase() != syncer.PhaseIdle,
			"gate":            d.Gate.Snapshot(),
			"view_updated_at": d.Views.UpdatedAt(),
		})
	})

	return mux
}

// handleInsightsSync enforces the quota, then refreshes the feed
// windows in the background. The 429 body carries the limiter state
// under "detail" so clients can render the cooldown.
func (d Deps) handleInsightsSync(w http.ResponseWriter, r *http.Request) {
	st := d.Tracker.Status(r.Context())
	if !st.CanSync {
		d.Met.RateLimitHits.WithLabelValues("/insights/sync").Inc()
		writeJSON(w, http.StatusTooManyRequests, map[string]any{
			"detail": map[string]any{
				"message":                    "Sync limit reached. Please wait for cooldown.",
				"syncs_remaining":            0,
				"next_free_at":               st.NextFreeAt,
				"cooldown_seconds_remaining": st.CooldownSecondsRemaining,
			},
		})
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		if err := d.Refresher.Run(ctx); err != nil {
			d.Log.Error("background sync failed", slog.String("err", err.Error()))
		}
	}()

	writeJSON(w, http.StatusAccepted, map[string]any{
		"status":          "started",
		"message":         "Syncing data in background...",
		"syncs_remaining": st.SyncsRemaining - 1,
	})
}

// handleBrands aggregates the freshest snapshot it can get. A failed
// fetch falls back to the cached windows; only a cold cache yields an
// empty list.
func (d Deps) handleBrands(w http.ResponseWriter, r *http.Request) {
	platform := r.URL.Query().Get("platform")
	if platform == "" {
		platform = "Meta Ads"
	}

	if wnd, err := d.Client.FetchAll(r.Context()); err == nil {
		d.Views.Replace(wnd)
	} else {
		d.Log.Warn("serving cached view", slog.String("err", err.Error()))
	}
	wnd, ok := d.Views.Current()
	if !ok {
		writeJSON(w, http.StatusOK, []struct{}{})
		return
	}

	start := time.Now()
	brands := insights.Aggregate(wnd, platform)
	d.Met.ObserveAggregate(time.Since(start))
	writeJSON(w, http.StatusOK, brands)
}

func (d Deps) handleDashboardSync(w http.ResponseWriter, r *http.Request) {
	err := d.Orch.Start(r.Context())
	switch {
	case errors.Is(err, syncer.ErrBusy):
		writeJSON(w, http.StatusConflict, map[string]any{"detail": "sync already in progress"})
	case errors.Is(err, syncer.ErrCoolingDown):
		writeJSON(w, http.StatusTooManyRequests, map[string]any{
			"detail": "sync limit reached",
			"gate":   d.Gate.Snapshot(),
		})
	case err != nil:
		writeJSON(w, http.StatusBadGateway, map[string]any{"detail": err.Error()})
	default:
		writeJSON(w, http.StatusAccepted, map[string]any{"status": "started"})
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	enc := json.NewEncoder(w)
	enc.SetIndent("", " ")
	enc.Encode(v)
}
