package handlers

import (
	"net/http"

	"github.com/emoradar/emoradar/internal/domain"
	"github.com/emoradar/emoradar/internal/httpserver/deps"
	"github.com/emoradar/emoradar/internal/httpserver/respond"
)

// SubmitMood records a mood entry and forwards it to the session controller.
// Persistence failures do not fail the request.
func SubmitMood(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in domain.MoodEntry
		if err := respond.DecodeJSON(w, r, &in); err != nil {
			respond.Error(w, err, d.Logger)
			return
		}
		entry, err := d.Moods.Submit(r.Context(), in)
		if err != nil {
			respond.Error(w, err, d.Logger)
			return
		}
		respond.Created(w, entry, d.Logger)
	}
}

// AllMoods lists every stored entry, oldest first.
func AllMoods(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entries, err := d.Moods.List(r.Context())
		if err != nil {
			respond.Error(w, err, d.Logger)
			return
		}
		respond.OK(w, nonNil(entries), d.Logger)
	}
}

// RecentMoods returns the bounded recent list.
func RecentMoods(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		respond.OK(w, nonNil(d.Moods.Recent()), d.Logger)
	}
}

// MoodStats returns the dashboard counters.
func MoodStats(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := d.Moods.Stats(r.Context())
		if err != nil {
			respond.Error(w, err, d.Logger)
			return
		}
		respond.OK(w, stats, d.Logger)
	}
}

func nonNil(entries []domain.MoodEntry) []domain.MoodEntry {
	if entries == nil {
		return []domain.MoodEntry{}
	}
	return entries
}
