package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// EntryID identifies a mood entry. The UI sends numeric ids (milliseconds since epoch)
// while stored entries may carry string ids, so both JSON forms are accepted.
type EntryID string

func (id *EntryID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = EntryID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("entry id must be a string or number: %w", err)
	}
	if _, err := strconv.ParseFloat(n.String(), 64); err != nil {
		return fmt.Errorf("entry id must be a string or number: %w", err)
	}
	*id = EntryID(n.String())
	return nil
}

// MoodEntry is one recorded mood selection.
type MoodEntry struct {
	ID        EntryID   `json:"id"`
	Mood      Mood      `json:"mood" validate:"required,oneof=angry sad anxious focused happy"`
	Timestamp time.Time `json:"timestamp"`
}

func (e MoodEntry) String() string {
	return fmt.Sprintf("%s@%s", e.Mood, e.Timestamp.Format(time.RFC3339))
}
