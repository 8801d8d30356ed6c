package handlers

import (
	"errors"
	"net/http"

	"github.com/emoradar/emoradar/internal/httpserver/deps"
	"github.com/emoradar/emoradar/internal/httpserver/respond"
	"github.com/emoradar/emoradar/internal/logger"
	"github.com/emoradar/emoradar/internal/session"
)

// ExtensionMessage accepts the UI-to-extension message envelope and hands it
// to the session controller. The acknowledgement comes back before any rule
// change is applied.
func ExtensionMessage(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var msg session.Message
		if err := respond.DecodeJSON(w, r, &msg); err != nil {
			respond.JSON(w, http.StatusBadRequest, session.Response{Success: false, Error: err.Error()}, d.Logger)
			return
		}

		resp, err := d.Session.Send(r.Context(), msg)
		if err != nil {
			status := http.StatusServiceUnavailable
			if !errors.Is(err, session.ErrStopped) {
				d.Logger.Warn("extension message not accepted",
					logger.String("type", msg.Type),
					logger.Error(err))
			}
			respond.JSON(w, status, session.Response{Success: false, Error: "session controller unavailable"}, d.Logger)
			return
		}
		respond.OK(w, resp, d.Logger)
	}
}
