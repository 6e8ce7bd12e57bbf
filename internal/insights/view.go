package insights

import (
	"sync"
	"time"

	"github.com/brandpulse/insights-go/internal/models"
)

// ViewCache holds the latest window snapshot the dashboard aggregates
// over. The sync poll loop and the brands handler both replace it; a
// late poll response after a sync has settled still lands here without
// any other side effect.
type ViewCache struct {
	mu        sync.RWMutex
	windows   models.Windows
	updatedAt time.Time
	populated bool
}

func NewViewCache() *ViewCache { return &ViewCache{} }

func (v *ViewCache) Replace(w models.Windows) {
	v.mu.Lock()
	v.windows = w
	v.updatedAt = time.Now()
	v.populated = true
	v.mu.Unlock()
}

// Current returns the last snapshot and whether one has been stored.
func (v *ViewCache) Current() (models.Windows, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.windows, v.populated
}

func (v *ViewCache) UpdatedAt() time.Time {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.updatedAt
}
