package domain

import "strings"

// Mood is the self-reported emotional state that drives rule selection.
// The zero value is the unset mood.
type Mood string

const (
	MoodUnset   Mood = ""
	MoodAngry   Mood = "angry"
	MoodSad     Mood = "sad"
	MoodAnxious Mood = "anxious"
	MoodFocused Mood = "focused"
	MoodHappy   Mood = "happy"
)

// Moods lists the selectable moods in the order the UI presents them.
var Moods = []Mood{MoodAngry, MoodSad, MoodAnxious, MoodHappy, MoodFocused}

// ParseMood normalizes raw input (case, surrounding whitespace).
// Unknown values are returned as-is; they resolve to no domains downstream.
func ParseMood(s string) Mood {
	return Mood(strings.ToLower(strings.TrimSpace(s)))
}

// Valid reports whether m is one of the five selectable moods.
func (m Mood) Valid() bool {
	switch m {
	case MoodAngry, MoodSad, MoodAnxious, MoodFocused, MoodHappy:
		return true
	default:
		return false
	}
}

// IsUnset reports whether no mood has been chosen.
func (m Mood) IsUnset() bool { return m == MoodUnset }

func (m Mood) String() string { return string(m) }
