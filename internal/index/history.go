package index

import (
	"sort"
	"sync"
	"time"

	"github.com/emoradar/emoradar/internal/domain"
)

// DefaultLimit is how many entries the recent list keeps.
const DefaultLimit = 10

// History keeps the most recent mood entries in memory for display.
// It serves reads while the backing store is slow or unavailable.
type History struct {
	mu       sync.RWMutex
	limit    int
	entries  []domain.MoodEntry // ascending by timestamp, at most limit
	lastSync time.Time
}

// NewHistory creates a history bounded to limit entries (DefaultLimit if <= 0).
func NewHistory(limit int) *History {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &History{limit: limit, entries: make([]domain.MoodEntry, 0, limit)}
}

// Add appends an entry, evicting the oldest past the limit.
func (h *History) Add(e domain.MoodEntry) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.entries = append(h.entries, e)
	// entries normally arrive in order; keep the list sorted if one doesn't
	if n := len(h.entries); n > 1 && h.entries[n-1].Timestamp.Before(h.entries[n-2].Timestamp) {
		sortEntries(h.entries)
	}
	h.trim()
}

// Replace rebuilds the list from entries, keeping the newest limit of them.
func (h *History) Replace(entries []domain.MoodEntry) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.entries = append(make([]domain.MoodEntry, 0, len(entries)), entries...)
	sortEntries(h.entries)
	h.trim()
	h.lastSync = time.Now()
}

// Recent returns a copy of the retained entries, oldest first.
func (h *History) Recent() []domain.MoodEntry {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]domain.MoodEntry, len(h.entries))
	copy(out, h.entries)
	return out
}

// Last returns the newest entry.
func (h *History) Last() (domain.MoodEntry, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if len(h.entries) == 0 {
		return domain.MoodEntry{}, false
	}
	return h.entries[len(h.entries)-1], true
}

// Len returns the number of retained entries.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.entries)
}

// Limit returns the capacity.
func (h *History) Limit() int { return h.limit }

// LastSync returns when Replace last ran.
func (h *History) LastSync() time.Time {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.lastSync
}

func (h *History) trim() {
	if over := len(h.entries) - h.limit; over > 0 {
		h.entries = append(h.entries[:0:0], h.entries[over:]...)
	}
}

func sortEntries(entries []domain.MoodEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Timestamp.Before(entries[j].Timestamp)
	})
}
