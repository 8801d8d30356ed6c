// Package moods records mood selections and derives dashboard statistics from them.
package moods

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/emoradar/emoradar/internal/domain"
)

// Store persists mood entries.
type Store interface {
	Save(ctx context.Context, e domain.MoodEntry) error
	// All returns every entry, oldest first.
	All(ctx context.Context) ([]domain.MoodEntry, error)
	// Prune deletes entries older than before and returns how many it removed.
	Prune(ctx context.Context, before time.Time) (int, error)
	Ping(ctx context.Context) error
}

// MemoryStore keeps entries in process.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[domain.EntryID]domain.MoodEntry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[domain.EntryID]domain.MoodEntry)}
}

// Save inserts or replaces the entry with the same id.
func (s *MemoryStore) Save(ctx context.Context, e domain.MoodEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[e.ID] = e
	return nil
}

func (s *MemoryStore) All(ctx context.Context) ([]domain.MoodEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	out := make([]domain.MoodEntry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e)
	}
	s.mu.RUnlock()

	SortEntries(out)
	return out, nil
}

func (s *MemoryStore) Prune(ctx context.Context, before time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for id, e := range s.entries {
		if e.Timestamp.Before(before) {
			delete(s.entries, id)
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) Ping(ctx context.Context) error { return ctx.Err() }

// SortEntries orders entries by timestamp, then id.
func SortEntries(entries []domain.MoodEntry) {
	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].Timestamp.Equal(entries[j].Timestamp) {
			return entries[i].Timestamp.Before(entries[j].Timestamp)
		}
		return entries[i].ID < entries[j].ID
	})
}

var _ Store = (*MemoryStore)(nil)
