package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/brandpulse/insights-go/internal/models"
)

// HTTPClient is the transport seam; *http.Client satisfies it and
// tests swap in fakes.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

func NewHTTPClient(timeout time.Duration) HTTPClient {
	return &http.Client{Timeout: timeout}
}

// RateLimitError is the explicit 429 rejection from the sync trigger
// endpoint. Detail carries the response body verbatim.
type RateLimitError struct {
	Detail string
}

func (e *RateLimitError) Error() string {
	return "sync rate limited: " + e.Detail
}

// Client consumes the insights API: the cached multi-window payload,
// the sync trigger, and the rate-limit status.
type Client struct {
	base  string
	httpc HTTPClient
	log   *slog.Logger
}

func NewClient(base string, httpc HTTPClient, log *slog.Logger) *Client {
	return &Client{base: strings.TrimRight(base, "/"), httpc: httpc, log: log}
}

func (c *Client) getJSON(ctx context.Context, path string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("non-2xx: %d body=%s", resp.StatusCode, string(b))
	}
	return json.NewDecoder(resp.Body).Decode(v)
}

// FetchAll pulls the {7,30,180} window payload. Decode failures count
// as a failed cycle; the caller keeps whatever snapshot it already
// has.
func (c *Client) FetchAll(ctx context.Context) (models.Windows, error) {
	var w models.Windows
	if err := c.getJSON(ctx, "/insights/all", &w); err != nil {
		return models.Windows{}, fmt.Errorf("fetch insights: %w", err)
	}
	return w, nil
}

// TriggerSync asks the insights API to refresh its store. An explicit
// 429 comes back as *RateLimitError so callers can reconcile against
// the authoritative limiter instead of retrying.
func (c *Client) TriggerSync(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/insights/sync", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("trigger sync: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusTooManyRequests {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &RateLimitError{Detail: string(b)}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("trigger sync: non-2xx: %d body=%s", resp.StatusCode, string(b))
	}
	return nil
}

// SyncStatus reads the rate-limit state. A payload without a can_sync
// field means the limiter is unavailable, not broken: the caller gets
// (nil, nil) and treats syncing as un-gated.
func (c *Client) SyncStatus(ctx context.Context) (*models.SyncStatus, error) {
	var raw struct {
		models.SyncStatus
		CanSync *bool `json:"can_sync"`
	}
	if err := c.getJSON(ctx, "/insights/sync-status", &raw); err != nil {
		return nil, fmt.Errorf("sync status: %w", err)
	}
	if raw.CanSync == nil {
		c.log.Debug("sync status payload missing can_sync, treating as unavailable")
		return nil, nil
	}
	st := raw.SyncStatus
	st.CanSync = *raw.CanSync
	return &st, nil
}
