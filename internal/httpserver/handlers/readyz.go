package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/emoradar/emoradar/internal/httpserver/deps"
	"github.com/emoradar/emoradar/internal/httpserver/respond"
)

const probeTimeout = 2 * time.Second

type pinger interface {
	Ping(ctx context.Context) error
}

type readyzResponse struct {
	Ready  bool              `json:"ready"`
	Checks map[string]string `json:"checks"`
}

// Readyz reports ready when the mood store, the rule engine and the session
// controller all answer.
func Readyz(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), probeTimeout)
		defer cancel()

		checks := map[string]string{
			"store":   probe(ctx, d.Moods),
			"session": probeSession(ctx, d),
			"rules":   "ok",
		}
		if p, ok := d.Engine.(pinger); ok {
			checks["rules"] = probe(ctx, p)
		}

		ready := true
		for _, v := range checks {
			if v != "ok" {
				ready = false
			}
		}
		status := http.StatusOK
		if !ready {
			status = http.StatusServiceUnavailable
		}
		respond.JSON(w, status, readyzResponse{Ready: ready, Checks: checks}, d.Logger)
	}
}

func probe(ctx context.Context, p pinger) string {
	if err := p.Ping(ctx); err != nil {
		return err.Error()
	}
	return "ok"
}

func probeSession(ctx context.Context, d deps.Deps) string {
	if _, err := d.Session.Status(ctx); err != nil {
		return err.Error()
	}
	return "ok"
}
