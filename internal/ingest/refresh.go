package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/brandpulse/insights-go/internal/metrics"
	"github.com/brandpulse/insights-go/internal/models"
	"github.com/brandpulse/insights-go/internal/store"
	"github.com/brandpulse/insights-go/internal/tracker"
	"github.com/brandpulse/insights-go/internal/utils"
)

// windowDays are the trailing ranges a full sync refreshes.
var windowDays = []int{7, 30, 180}

// Refresher re-pulls the raw insight rows for every trailing range
// from the configured feed and replaces the store's windows. This is
// the work behind POST /insights/sync.
type Refresher struct {
	c       HTTPClient
	st      *store.MemoryStore
	trk     *tracker.Tracker
	log     *slog.Logger
	met     *metrics.Metrics
	feedURL string
	backoff utils.Backoff
}

func NewRefresher(c HTTPClient, st *store.MemoryStore, trk *tracker.Tracker, log *slog.Logger, met *metrics.Metrics, feedURL string) *Refresher {
	return &Refresher{
		c:       c,
		st:      st,
		trk:     trk,
		log:     log,
		met:     met,
		feedURL: feedURL,
		backoff: utils.NewBackoff(100*time.Millisecond, 2),
	}
}

// Run refreshes the three windows concurrently. A failed window is
// logged and skipped while the others still land; the sync slot is
// recorded only when at least one window made it, so a dead feed does
// not burn quota.
func (r *Refresher) Run(ctx context.Context) error {
	if r.feedURL == "" {
		return errors.New("feed url not configured")
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	synced := 0
	for _, days := range windowDays {
		wg.Add(1)
		go func(days int) {
			defer wg.Done()
			rows, err := r.fetchWindow(ctx, days)
			if err != nil {
				r.log.Warn("window refresh failed",
					slog.Int("range_days", days), slog.String("err", err.Error()))
				r.met.RecordFeedError(days)
				return
			}
			r.st.ReplaceWindow(days, rows)
			r.met.RecordWindow(days, len(rows))
			r.log.Info("window refreshed",
				slog.Int("range_days", days), slog.Int("rows", len(rows)))
			mu.Lock()
			synced++
			mu.Unlock()
		}(days)
	}
	wg.Wait()

	if synced == 0 {
		return errors.New("all window refreshes failed")
	}
	r.trk.Record(ctx)
	return nil
}

// fetchWindow pulls one range from the feed, retrying transient
// failures with exponential backoff.
func (r *Refresher) fetchWindow(ctx context.Context, days int) ([]models.RawRow, error) {
	url := fmt.Sprintf("%s?range_days=%d", r.feedURL, days)
	var rows []models.RawRow
	err := r.backoff.Do(func(int) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		resp, err := r.c.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
			return fmt.Errorf("non-2xx: %d body=%s", resp.StatusCode, string(b))
		}
		rows = rows[:0]
		return json.NewDecoder(resp.Body).Decode(&rows)
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}
