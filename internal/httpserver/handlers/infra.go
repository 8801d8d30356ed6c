package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/emoradar/emoradar/internal/httpserver/deps"
	"github.com/emoradar/emoradar/internal/httpserver/respond"
)

type componentStatus struct {
	OK         bool   `json:"ok"`
	Mode       string `json:"mode,omitempty"`
	Count      *int   `json:"count,omitempty"`
	Version    int    `json:"version,omitempty"`
	LastReload string `json:"last_reload,omitempty"`
	State      string `json:"state,omitempty"`
	Impact     string `json:"impact,omitempty"`
	Error      string `json:"error,omitempty"`
}

type infraResponse struct {
	Mode       string                     `json:"mode"`
	Components map[string]componentStatus `json:"components"`
}

// Infra reports per-component status. Rule engine or session failures make
// the service critical; store or redis trouble only degrades it.
func Infra(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), probeTimeout)
		defer cancel()

		components := map[string]componentStatus{
			"policy":  policyStatus(d),
			"session": sessionStatus(ctx, d),
			"rules":   rulesStatus(ctx, d),
			"store":   storeStatus(ctx, d),
			"events":  eventsStatus(d),
		}
		if d.RedisClient != nil {
			components["redis"] = redisStatus(ctx, d)
		}

		respond.OK(w, infraResponse{
			Mode:       determineMode(components),
			Components: components,
		}, d.Logger)
	}
}

func determineMode(components map[string]componentStatus) string {
	for _, name := range []string{"rules", "session", "policy"} {
		if c, ok := components[name]; ok && !c.OK {
			return "critical"
		}
	}
	for _, c := range components {
		if !c.OK {
			return "degraded"
		}
	}
	return "optimal"
}

func policyStatus(d deps.Deps) componentStatus {
	p := d.Policy.Current()
	n := len(p.Moods)
	st := componentStatus{OK: true, Version: p.Version, Count: &n, LastReload: "never"}
	if d.Reloader != nil {
		last, err := d.Reloader.Status()
		if !last.IsZero() {
			st.LastReload = last.Format(time.RFC3339)
		}
		if err != nil {
			st.Impact = "previous-policy-kept"
			st.Error = err.Error()
		}
	}
	return st
}

func sessionStatus(ctx context.Context, d deps.Deps) componentStatus {
	state, err := d.Session.Status(ctx)
	if err != nil {
		return componentStatus{OK: false, Impact: "mood-changes-ignored", Error: err.Error()}
	}
	n := len(state.RuleIDs)
	st := componentStatus{OK: true, State: string(state.Phase), Count: &n}
	if state.LastError != "" {
		st.Impact = "last-rule-update-failed"
		st.Error = state.LastError
	}
	return st
}

func rulesStatus(ctx context.Context, d deps.Deps) componentStatus {
	list, err := d.Engine.Rules(ctx)
	if err != nil {
		return componentStatus{OK: false, Mode: d.RulesBackend, Impact: "blocking-unavailable", Error: err.Error()}
	}
	n := len(list)
	return componentStatus{OK: true, Mode: d.RulesBackend, Count: &n}
}

func storeStatus(ctx context.Context, d deps.Deps) componentStatus {
	n := len(d.Moods.Recent())
	if err := d.Moods.Ping(ctx); err != nil {
		return componentStatus{OK: false, Mode: d.StoreKind, Count: &n, Impact: "history-not-persisted", Error: err.Error()}
	}
	return componentStatus{OK: true, Mode: d.StoreKind, Count: &n}
}

func eventsStatus(d deps.Deps) componentStatus {
	if d.Events == nil {
		return componentStatus{OK: true, Mode: "disabled"}
	}
	n := d.Events.ClientCount()
	return componentStatus{OK: true, Mode: "sse", Count: &n}
}

func redisStatus(ctx context.Context, d deps.Deps) componentStatus {
	if err := d.RedisClient.Ping(ctx).Err(); err != nil {
		return componentStatus{OK: false, Mode: "degraded", Impact: "redis-backends-failing", Error: err.Error()}
	}
	return componentStatus{OK: true, Mode: "optimal"}
}
