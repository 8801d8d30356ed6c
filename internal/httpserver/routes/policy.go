package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/emoradar/emoradar/internal/httpserver/deps"
	"github.com/emoradar/emoradar/internal/httpserver/handlers"
	"github.com/emoradar/emoradar/internal/httpserver/mw"
)

func init() { Register(registerPolicy) }

func registerPolicy(r chi.Router, d deps.Deps) {
	r.Route("/api/policy", func(r chi.Router) {
		r.Get("/", handlers.Policy(d))
		r.With(
			mw.AllowOnlyCIDRS(d.AllowedCIDRS, d.TrustProxy, d.Logger),
			mw.EnforceHost(d.AllowedHosts, d.Logger),
		).Post("/reload", handlers.ReloadPolicy(d))
		r.Get("/{mood}", handlers.MoodPolicy(d))
	})
}
