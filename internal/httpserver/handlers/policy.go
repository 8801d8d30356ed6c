package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/emoradar/emoradar/internal/domain"
	apperr "github.com/emoradar/emoradar/internal/errors"
	"github.com/emoradar/emoradar/internal/httpserver/deps"
	"github.com/emoradar/emoradar/internal/httpserver/respond"
	"github.com/emoradar/emoradar/internal/logger"
	"github.com/emoradar/emoradar/internal/policy"
)

type moodPolicyResponse struct {
	Mood    domain.Mood        `json:"mood"`
	Version int                `json:"version"`
	Blocks  bool               `json:"blocks"`
	Domains []string           `json:"domains"`
	Rules   []domain.BlockRule `json:"rules"`
	Reason  string             `json:"reason,omitempty"`
	Color   string             `json:"color,omitempty"`
	Alert   *policy.Alert      `json:"alert,omitempty"`
}

// Policy returns the active mood table. The UI renders from this so what it
// shows matches what the controller enforces.
func Policy(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		respond.OK(w, d.Policy.Current(), d.Logger)
	}
}

// MoodPolicy resolves one mood to its domains and rules.
func MoodPolicy(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m := domain.ParseMood(chi.URLParam(r, "mood"))
		if !m.Valid() {
			respond.Error(w, apperr.NotFoundf("unknown mood %q", m), d.Logger)
			return
		}
		p := d.Policy.Current()
		mp := p.Moods[m]
		respond.OK(w, moodPolicyResponse{
			Mood:    m,
			Version: p.Version,
			Blocks:  p.Blocks(m),
			Domains: p.Resolve(m),
			Rules:   p.Rules(m),
			Reason:  mp.Reason,
			Color:   mp.Color,
			Alert:   mp.Alert,
		}, d.Logger)
	}
}

type reloadResponse struct {
	Status string `json:"status"`
}

// ReloadPolicy asks the policy reloader to re-read its file. A reload already
// queued answers 429.
func ReloadPolicy(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if d.ReloadTrigger == nil {
			respond.Error(w, apperr.NotImplemented("policy reload is not configured"), d.Logger)
			return
		}
		select {
		case d.ReloadTrigger <- struct{}{}:
			d.Logger.Info("manual policy reload triggered via endpoint",
				logger.String("remote_ip", r.RemoteAddr))
			respond.JSON(w, http.StatusAccepted, reloadResponse{Status: "reload triggered"}, d.Logger)
		default:
			d.Logger.Warn("policy reload already in progress",
				logger.String("remote_ip", r.RemoteAddr))
			w.Header().Set("Retry-After", "1")
			respond.JSON(w, http.StatusTooManyRequests, reloadResponse{Status: "reload already in progress"}, d.Logger)
		}
	}
}
