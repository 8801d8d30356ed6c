package notify

import (
	"time"

	"github.com/emoradar/emoradar/internal/domain"
)

// EventType names an SSE event.
type EventType string

const (
	EventConnected    EventType = "connected"
	EventHeartbeat    EventType = "heartbeat"
	EventSessionEnded EventType = "session_ended"
	EventSession      EventType = "session"
	EventMood         EventType = "mood"
	EventPolicy       EventType = "policy"
)

// Event is one message pushed to SSE clients.
type Event struct {
	Type      EventType `json:"type"`
	Data      any       `json:"data,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func newEvent(t EventType, data any) Event {
	return Event{Type: t, Data: data, Timestamp: time.Now().UTC()}
}

// SessionEndedEvent wraps the expiry notification.
func SessionEndedEvent(n domain.Notification) Event { return newEvent(EventSessionEnded, n) }

// SessionEvent wraps a session snapshot.
func SessionEvent(s domain.SessionState) Event { return newEvent(EventSession, s) }

// MoodEvent wraps a submitted mood entry.
func MoodEvent(e domain.MoodEntry) Event { return newEvent(EventMood, e) }

// PolicyEvent announces a newly installed policy version.
func PolicyEvent(version int) Event {
	return newEvent(EventPolicy, map[string]int{"version": version})
}

func heartbeatEvent() Event { return newEvent(EventHeartbeat, nil) }
