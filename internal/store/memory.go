package store

import (
	"sync"
	"time"

	"github.com/brandpulse/insights-go/internal/models"
)

// MemoryStore caches the latest raw insight rows per trailing range.
// A sync replaces a window wholesale; there is no row-level merge.
type MemoryStore struct {
	mu       sync.RWMutex
	windows  map[int][]models.RawRow
	syncedAt map[int]time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		windows:  make(map[int][]models.RawRow),
		syncedAt: make(map[int]time.Time),
	}
}

func (s *MemoryStore) ReplaceWindow(days int, rows []models.RawRow) {
	cp := make([]models.RawRow, len(rows))
	copy(cp, rows)
	s.mu.Lock()
	s.windows[days] = cp
	s.syncedAt[days] = time.Now()
	s.mu.Unlock()
}

func (s *MemoryStore) Window(days int) []models.RawRow {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows := s.windows[days]
	out := make([]models.RawRow, len(rows))
	copy(out, rows)
	return out
}

// All snapshots the three dashboard ranges. Unsynced windows come back
// as empty, non-nil slices so the JSON stays `[]` rather than `null`.
func (s *MemoryStore) All() models.Windows {
	return models.Windows{
		Last7:   s.Window(7),
		Last30:  s.Window(30),
		Last180: s.Window(180),
	}
}

func (s *MemoryStore) LastSynced(days int) (time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.syncedAt[days]
	return t, ok
}
