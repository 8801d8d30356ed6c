package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/emoradar/emoradar/internal/httpserver/deps"
	"github.com/emoradar/emoradar/internal/httpserver/handlers"
)

func init() { Register(registerSession) }

func registerSession(r chi.Router, d deps.Deps) {
	r.Post("/api/extension/message", handlers.ExtensionMessage(d))
	r.Get("/api/session", handlers.Session(d))
	r.Get("/api/rules", handlers.Rules(d))
	r.Get("/api/rules/check", handlers.CheckRule(d))
}
