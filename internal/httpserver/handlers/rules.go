package handlers

import (
	"net/http"
	"strings"

	"github.com/emoradar/emoradar/internal/domain"
	apperr "github.com/emoradar/emoradar/internal/errors"
	"github.com/emoradar/emoradar/internal/httpserver/deps"
	"github.com/emoradar/emoradar/internal/httpserver/respond"
	"github.com/emoradar/emoradar/internal/rules"
)

// Rules lists the rules installed in the engine.
func Rules(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := d.Engine.Rules(r.Context())
		if err != nil {
			respond.Error(w, apperr.Unavailable("rule engine unavailable").WithCause(err), d.Logger)
			return
		}
		if list == nil {
			list = []domain.BlockRule{}
		}
		respond.OK(w, list, d.Logger)
	}
}

// CheckRule reports whether a host would be blocked. Only engines that
// evaluate rules in-process can answer.
func CheckRule(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m, ok := d.Engine.(rules.Matcher)
		if !ok {
			respond.Error(w, apperr.NotImplemented("rule check is not supported by the "+d.RulesBackend+" backend"), d.Logger)
			return
		}
		host := strings.TrimSpace(r.URL.Query().Get("host"))
		if host == "" {
			respond.Error(w, apperr.Validation("query parameter host is required"), d.Logger)
			return
		}
		respond.OK(w, m.Match(host), d.Logger)
	}
}
