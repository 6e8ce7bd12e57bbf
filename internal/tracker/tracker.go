// Package tracker enforces the sync rate limit: a rolling window of
// sync timestamps where each entry older than the cooldown expires and
// frees a slot. The timestamps live in Redis so the limit survives
// restarts and is shared across replicas.
package tracker

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/brandpulse/insights-go/internal/models"
)

const (
	DefaultMaxSyncs = 3
	DefaultCooldown = 3 * time.Hour

	stampsKey = "insights:sync_stamps"
)

type Tracker struct {
	rdb      *redis.Client
	log      *slog.Logger
	maxSyncs int
	cooldown time.Duration
	now      func() time.Time
}

func New(rdb *redis.Client, log *slog.Logger, maxSyncs int, cooldown time.Duration) *Tracker {
	if maxSyncs <= 0 {
		maxSyncs = DefaultMaxSyncs
	}
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	return &Tracker{rdb: rdb, log: log, maxSyncs: maxSyncs, cooldown: cooldown, now: time.Now}
}

// Status reads the active timestamps and derives the limiter state.
// Storage failure degrades open: the status is computed from an empty
// set and syncing stays allowed, matching how the rest of the service
// treats a missing limiter.
func (t *Tracker) Status(ctx context.Context) models.SyncStatus {
	return statusFrom(t.now().UTC(), t.activeStamps(ctx), t.maxSyncs, t.cooldown)
}

// Record stores the current instant as a used sync slot. Called only
// after a sync actually succeeded.
func (t *Tracker) Record(ctx context.Context) {
	now := t.now().UTC()
	err := t.rdb.ZAdd(ctx, stampsKey, redis.Z{
		Score:  float64(now.UnixMilli()),
		Member: now.Format(time.RFC3339Nano),
	}).Err()
	if err != nil {
		t.log.Error("recording sync timestamp failed", slog.String("err", err.Error()))
		return
	}
	used := len(t.activeStamps(ctx))
	t.log.Info("sync recorded",
		slog.Int("syncs_used", used), slog.Int("max_syncs", t.maxSyncs))
}

// activeStamps prunes expired entries and returns the survivors.
func (t *Tracker) activeStamps(ctx context.Context) []time.Time {
	now := t.now().UTC()
	cutoff := now.Add(-t.cooldown).UnixMilli()
	if err := t.rdb.ZRemRangeByScore(ctx, stampsKey, "-inf", strconv.FormatInt(cutoff, 10)).Err(); err != nil {
		t.log.Warn("pruning sync timestamps failed", slog.String("err", err.Error()))
		return nil
	}
	raw, err := t.rdb.ZRangeWithScores(ctx, stampsKey, 0, -1).Result()
	if err != nil {
		t.log.Warn("reading sync timestamps failed", slog.String("err", err.Error()))
		return nil
	}
	stamps := make([]time.Time, 0, len(raw))
	for _, z := range raw {
		stamps = append(stamps, time.UnixMilli(int64(z.Score)).UTC())
	}
	return stamps
}

// statusFrom derives the limiter state from the active timestamps.
// next_free_at is the oldest active stamp plus the cooldown, set only
// while every slot is used.
func statusFrom(now time.Time, stamps []time.Time, maxSyncs int, cooldown time.Duration) models.SyncStatus {
	used := len(stamps)
	remaining := maxSyncs - used
	if remaining < 0 {
		remaining = 0
	}
	st := models.SyncStatus{
		SyncsUsed:      used,
		SyncsRemaining: remaining,
		MaxSyncs:       maxSyncs,
		CanSync:        remaining > 0,
		CooldownHours:  int(cooldown / time.Hour),
	}
	if !st.CanSync && used > 0 {
		oldest := stamps[0]
		for _, s := range stamps[1:] {
			if s.Before(oldest) {
				oldest = s
			}
		}
		freeAt := oldest.Add(cooldown)
		iso := freeAt.UTC().Format(time.RFC3339)
		st.NextFreeAt = &iso
		if secs := int(freeAt.Sub(now).Seconds()); secs > 0 {
			st.CooldownSecondsRemaining = secs
		}
	}
	return st
}

// Reset clears every recorded slot. Exposed for operational cleanup.
func (t *Tracker) Reset(ctx context.Context) error {
	if err := t.rdb.Del(ctx, stampsKey).Err(); err != nil {
		return fmt.Errorf("reset sync tracker: %w", err)
	}
	return nil
}
