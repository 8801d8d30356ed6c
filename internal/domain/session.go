package domain

import "time"

// SessionPhase is the controller state.
type SessionPhase string

const (
	// SessionIdle means no rules are installed and no timer is armed.
	SessionIdle SessionPhase = "IDLE"
	// SessionActive means a rule generation is installed and the timer is armed.
	SessionActive SessionPhase = "ACTIVE"
)

// SessionState is a snapshot of a block session. It is a value: the controller
// hands out copies and never shares the backing slices.
type SessionState struct {
	Phase         SessionPhase `json:"state"`
	Mood          Mood         `json:"mood"`
	Generation    uint64       `json:"generation"`
	RuleIDs       []int        `json:"rule_ids"`
	Domains       []string     `json:"domains"`
	ArmedAt       time.Time    `json:"armed_at,omitzero"`
	Deadline      time.Time    `json:"deadline,omitzero"`
	PolicyVersion int          `json:"policy_version"`
	Sessions      uint64       `json:"sessions_completed"`
	LastError     string       `json:"last_error,omitempty"`
}

// Active reports whether a session is running.
func (s SessionState) Active() bool { return s.Phase == SessionActive }

// Remaining returns the time left until expiry, or zero when idle.
func (s SessionState) Remaining(now time.Time) time.Duration {
	if !s.Active() || s.Deadline.IsZero() {
		return 0
	}
	if d := s.Deadline.Sub(now); d > 0 {
		return d
	}
	return 0
}

// Clone returns a copy that does not alias s.
func (s SessionState) Clone() SessionState {
	out := s
	out.RuleIDs = append([]int(nil), s.RuleIDs...)
	out.Domains = append([]string(nil), s.Domains...)
	return out
}

// Notification is emitted to the user when a session ends on its own.
type Notification struct {
	Type     string    `json:"type"`
	Title    string    `json:"title"`
	Message  string    `json:"message"`
	Priority int       `json:"priority"`
	Mood     Mood      `json:"mood"`
	EndedAt  time.Time `json:"ended_at"`
}

// NotificationSessionEnded is the Type of the expiry notification.
const NotificationSessionEnded = "SESSION_ENDED"
