package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/emoradar/emoradar/internal/httpserver/deps"
	"github.com/emoradar/emoradar/internal/httpserver/handlers"
	"github.com/emoradar/emoradar/internal/httpserver/mw"
)

func init() { Register(registerMoods) }

func registerMoods(r chi.Router, d deps.Deps) {
	r.Route("/api/mood", func(r chi.Router) {
		r.With(mw.RateLimit(mw.RateLimitConfig{
			Burst:        d.SubmitRateBurst,
			RefillPerMin: d.SubmitRatePerMin,
			MaxEntries:   4096,
			TrustProxy:   d.TrustProxy,
			Now:          d.TimeNow,
		})).Post("/submit", handlers.SubmitMood(d))
		r.Get("/all", handlers.AllMoods(d))
		r.Get("/recent", handlers.RecentMoods(d))
		r.Get("/stats", handlers.MoodStats(d))
	})
}
