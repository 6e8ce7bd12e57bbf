package ingest

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/brandpulse/insights-go/internal/metrics"
	"github.com/brandpulse/insights-go/internal/store"
	"github.com/brandpulse/insights-go/internal/tracker"
	"github.com/brandpulse/insights-go/internal/utils"
)

func newFastBackoff() utils.Backoff { return utils.NewBackoff(time.Millisecond, 1) }

// offlineTracker returns a tracker whose Redis is unreachable; its
// writes fail fast and are absorbed, which is exactly the degraded
// mode the refresher has to survive.
func offlineTracker() *tracker.Tracker {
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 50 * time.Millisecond})
	return tracker.New(rdb, discard(), 3, 3*time.Hour)
}

func TestRefresherReplacesAllWindows(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		days := r.URL.Query().Get("range_days")
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `[{"platform":"meta","account_name":"Acme","campaign_id":"c%s","spend":"10.00"}]`, days)
	}))
	defer srv.Close()

	st := store.NewMemoryStore()
	ref := NewRefresher(NewHTTPClient(2*time.Second), st, offlineTracker(), discard(),
		metrics.New(prometheus.NewRegistry()), srv.URL)

	if err := ref.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	for _, days := range []int{7, 30, 180} {
		rows := st.Window(days)
		if len(rows) != 1 {
			t.Fatalf("window %d not replaced, got %d rows", days, len(rows))
		}
		if want := fmt.Sprintf("c%d", days); rows[0].CampaignID != want {
			t.Fatalf("window %d got row %q, want %q", days, rows[0].CampaignID, want)
		}
		if _, ok := st.LastSynced(days); !ok {
			t.Fatalf("window %d missing sync timestamp", days)
		}
	}
}

func TestRefresherSkipsFailedWindow(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("range_days") == "30" {
			http.Error(w, "upstream broken", http.StatusBadGateway)
			return
		}
		w.Write([]byte(`[{"platform":"meta","campaign_id":"c1","spend":"10.00"}]`))
	}))
	defer srv.Close()

	st := store.NewMemoryStore()
	ref := NewRefresher(NewHTTPClient(2*time.Second), st, offlineTracker(), discard(),
		metrics.New(prometheus.NewRegistry()), srv.URL)
	ref.backoff = newFastBackoff()

	if err := ref.Run(context.Background()); err != nil {
		t.Fatalf("a partial refresh still succeeds: %v", err)
	}
	if len(st.Window(7)) != 1 || len(st.Window(180)) != 1 {
		t.Fatal("healthy windows must still land")
	}
	if len(st.Window(30)) != 0 {
		t.Fatal("the failed window must stay empty")
	}
}

func TestRefresherAllWindowsFailing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	st := store.NewMemoryStore()
	ref := NewRefresher(NewHTTPClient(2*time.Second), st, offlineTracker(), discard(),
		metrics.New(prometheus.NewRegistry()), srv.URL)
	ref.backoff = newFastBackoff()

	if err := ref.Run(context.Background()); err == nil {
		t.Fatal("expected an error when every window fails")
	}
}

func TestRefresherRequiresFeedURL(t *testing.T) {
	ref := NewRefresher(NewHTTPClient(time.Second), store.NewMemoryStore(), offlineTracker(),
		discard(), metrics.New(prometheus.NewRegistry()), "")
	if err := ref.Run(context.Background()); err == nil {
		t.Fatal("expected an error without a feed url")
	}
}
