package handlers

import (
	"net/http"

	"github.com/emoradar/emoradar/internal/domain"
	apperr "github.com/emoradar/emoradar/internal/errors"
	"github.com/emoradar/emoradar/internal/httpserver/deps"
	"github.com/emoradar/emoradar/internal/httpserver/respond"
)

type sessionResponse struct {
	domain.SessionState
	RemainingSeconds int `json:"remaining_seconds"`
	DurationSeconds  int `json:"duration_seconds"`
}

// Session reports the block session state.
func Session(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		state, err := d.Session.Status(r.Context())
		if err != nil {
			respond.Error(w, apperr.Unavailable("session controller unavailable").WithCause(err), d.Logger)
			return
		}
		respond.OK(w, sessionResponse{
			SessionState:     state,
			RemainingSeconds: int(state.Remaining(d.Now()).Seconds()),
			DurationSeconds:  int(d.Session.Duration().Seconds()),
		}, d.Logger)
	}
}
