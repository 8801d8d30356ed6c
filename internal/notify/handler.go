package notify

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/emoradar/emoradar/internal/logger"
)

const writeDeadline = 60 * time.Second

// Handler streams hub events as text/event-stream.
func (h *Hub) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Context().Err() != nil {
			return
		}

		c, err := h.Connect()
		if err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		defer h.Disconnect(c.ID)

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no")

		rc := http.NewResponseController(w)
		if err := rc.Flush(); err != nil {
			h.log.Error("streaming not supported", logger.Error(err))
			http.Error(w, "streaming not supported", http.StatusInternalServerError)
			return
		}

		if err := writeEvent(w, rc, newEvent(EventConnected, map[string]string{"client_id": c.ID})); err != nil {
			return
		}

		for {
			select {
			case ev := <-c.Events:
				if err := writeEvent(w, rc, ev); err != nil {
					return
				}
			case <-c.Done:
				return
			case <-r.Context().Done():
				return
			}
		}
	}
}

func writeEvent(w http.ResponseWriter, rc *http.ResponseController, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data); err != nil {
		return err
	}
	if err := rc.Flush(); err != nil {
		return err
	}
	// not every ResponseWriter supports deadlines
	_ = rc.SetWriteDeadline(time.Now().Add(writeDeadline))
	return nil
}
