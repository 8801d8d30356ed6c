package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/emoradar/emoradar/internal/httpserver/deps"
)

func init() { RegisterStream(registerEvents) }

func registerEvents(r chi.Router, d deps.Deps) {
	if d.Events == nil {
		return
	}
	r.Get("/api/events", d.Events.Handler())
}
