package index

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/emoradar/emoradar/internal/domain"
)

var base = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func entry(i int, m domain.Mood) domain.MoodEntry {
	return domain.MoodEntry{
		ID:        domain.EntryID(fmt.Sprintf("e%d", i)),
		Mood:      m,
		Timestamp: base.Add(time.Duration(i) * time.Minute),
	}
}

func TestNewHistory(t *testing.T) {
	h := NewHistory(0)
	if h.Limit() != DefaultLimit {
		t.Errorf("Limit() = %d, want %d", h.Limit(), DefaultLimit)
	}
	if h.Len() != 0 {
		t.Errorf("new history should be empty, got %d", h.Len())
	}
	if _, ok := h.Last(); ok {
		t.Error("Last() on empty history should report false")
	}
}

func TestAddKeepsMostRecent(t *testing.T) {
	h := NewHistory(3)
	for i := 0; i < 5; i++ {
		h.Add(entry(i, domain.MoodAngry))
	}

	got := h.Recent()
	if len(got) != 3 {
		t.Fatalf("Recent() returned %d entries, want 3", len(got))
	}
	for i, want := range []domain.EntryID{"e2", "e3", "e4"} {
		if got[i].ID != want {
			t.Errorf("Recent()[%d].ID = %s, want %s", i, got[i].ID, want)
		}
	}
	last, ok := h.Last()
	if !ok || last.ID != "e4" {
		t.Errorf("Last() = %v, %v; want e4", last.ID, ok)
	}
}

func TestAddOutOfOrder(t *testing.T) {
	h := NewHistory(5)
	h.Add(entry(2, domain.MoodSad))
	h.Add(entry(1, domain.MoodHappy))

	got := h.Recent()
	if got[0].ID != "e1" || got[1].ID != "e2" {
		t.Errorf("Recent() not sorted by timestamp: %v", got)
	}
}

func TestReplaceOverwrites(t *testing.T) {
	h := NewHistory(2)
	h.Add(entry(0, domain.MoodAngry))

	h.Replace([]domain.MoodEntry{entry(7, domain.MoodFocused), entry(5, domain.MoodSad), entry(6, domain.MoodHappy)})

	got := h.Recent()
	if len(got) != 2 || got[0].ID != "e6" || got[1].ID != "e7" {
		t.Errorf("Replace() kept %v, want [e6 e7]", got)
	}
	if h.LastSync().IsZero() {
		t.Error("Replace() should record the sync time")
	}
}

func TestRecentReturnsCopy(t *testing.T) {
	h := NewHistory(3)
	h.Add(entry(0, domain.MoodAngry))

	got := h.Recent()
	got[0].Mood = domain.MoodHappy

	if h.Recent()[0].Mood != domain.MoodAngry {
		t.Error("mutating Recent() result changed the history")
	}
}

func TestConcurrentAccess(t *testing.T) {
	h := NewHistory(10)
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			h.Add(entry(i, domain.MoodAnxious))
		}(i)
		go func() {
			defer wg.Done()
			_ = h.Recent()
			_ = h.Len()
		}()
	}
	wg.Wait()

	if h.Len() != 10 {
		t.Errorf("Len() = %d after concurrent adds, want 10", h.Len())
	}
}
