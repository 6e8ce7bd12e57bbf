package main

import (
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/brandpulse/insights-go/internal/config"
	"github.com/brandpulse/insights-go/internal/httpx"
	"github.com/brandpulse/insights-go/internal/ingest"
	"github.com/brandpulse/insights-go/internal/insights"
	"github.com/brandpulse/insights-go/internal/metrics"
	"github.com/brandpulse/insights-go/internal/store"
	"github.com/brandpulse/insights-go/internal/syncer"
	"github.com/brandpulse/insights-go/internal/tracker"
)

func main() {
	cfg := config.FromEnv()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	reg := prometheus.NewRegistry()
	met := metrics.New(reg)

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	trk := tracker.New(rdb, logger, cfg.MaxSyncs, cfg.Cooldown)

	st := store.NewMemoryStore()
	httpc := ingest.NewHTTPClient(cfg.HTTPTimeout)
	refresher := ingest.NewRefresher(httpc, st, trk, logger, met, cfg.FeedURL)

	// The dashboard half consumes the insights API over HTTP; with no
	// API_URL set it talks to the locally served one.
	apiURL := cfg.APIURL
	if apiURL == "" {
		apiURL = "http://127.0.0.1:" + cfg.Port
	}
	client := ingest.NewClient(apiURL, httpc, logger)
	views := insights.NewViewCache()
	gate := syncer.NewGate(client, logger)
	defer gate.Close()
	orch := syncer.NewOrchestrator(client, gate, views, logger, met)

	r := httpx.NewRouter(httpx.Deps{
		Log:       logger,
		Store:     st,
		Tracker:   trk,
		Refresher: refresher,
		Client:    client,
		Views:     views,
		Gate:      gate,
		Orch:      orch,
		Met:       met,
		Gatherer:  reg,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("starting server", slog.String("port", cfg.Port), slog.String("api_url", apiURL))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", slog.String("err", err.Error()))
		os.Exit(1)
	}
}
