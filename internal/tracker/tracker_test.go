package tracker

import (
	"testing"
	"time"
)

var base = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func TestStatusFromEmpty(t *testing.T) {
	st := statusFrom(base, nil, 3, 3*time.Hour)
	if !st.CanSync || st.SyncsRemaining != 3 || st.SyncsUsed != 0 {
		t.Fatalf("expected a fully free limiter, got %+v", st)
	}
	if st.NextFreeAt != nil || st.CooldownSecondsRemaining != 0 {
		t.Fatalf("no cooldown expected, got %+v", st)
	}
}

func TestStatusFromExhausted(t *testing.T) {
	stamps := []time.Time{
		base.Add(-2 * time.Hour),
		base.Add(-1 * time.Hour),
		base.Add(-30 * time.Minute),
	}
	st := statusFrom(base, stamps, 3, 3*time.Hour)
	if st.CanSync || st.SyncsRemaining != 0 || st.SyncsUsed != 3 {
		t.Fatalf("expected exhausted limiter, got %+v", st)
	}
	if st.NextFreeAt == nil {
		t.Fatal("next_free_at must be set while blocked")
	}
	// Oldest stamp was 2h ago; the slot frees after 3h.
	want := base.Add(time.Hour).Format(time.RFC3339)
	if *st.NextFreeAt != want {
		t.Fatalf("expected next_free_at %s, got %s", want, *st.NextFreeAt)
	}
	if st.CooldownSecondsRemaining != 3600 {
		t.Fatalf("expected 3600s remaining, got %d", st.CooldownSecondsRemaining)
	}
}

func TestStatusFromPartialUse(t *testing.T) {
	st := statusFrom(base, []time.Time{base.Add(-time.Minute)}, 3, 3*time.Hour)
	if !st.CanSync || st.SyncsRemaining != 2 {
		t.Fatalf("one used slot should leave two free, got %+v", st)
	}
	if st.NextFreeAt != nil {
		t.Fatal("next_free_at must be nil while syncing is allowed")
	}
}

func TestStatusFromCooldownHours(t *testing.T) {
	st := statusFrom(base, nil, 3, 3*time.Hour)
	if st.CooldownHours != 3 || st.MaxSyncs != 3 {
		t.Fatalf("unexpected static fields: %+v", st)
	}
}
