package session

import "github.com/emoradar/emoradar/internal/domain"

// TypeUpdateMood is the only message type the controller accepts.
const TypeUpdateMood = "UPDATE_MOOD"

// Message is the inbound request from the UI.
type Message struct {
	Type    string      `json:"type"`
	Payload domain.Mood `json:"payload"`
}

// Response acknowledges a Message. Success means the message was accepted, not that
// rule-engine work has finished.
type Response struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}
