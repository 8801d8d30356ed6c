package policy

import "github.com/emoradar/emoradar/internal/domain"

// DefaultVersion is the version of the built-in table.
const DefaultVersion = 1

// Default returns the built-in table. The block lists are the ones the browser
// extension enforces.
func Default() *Policy {
	return &Policy{
		Version: DefaultVersion,
		Moods: map[domain.Mood]MoodPolicy{
			domain.MoodAngry: {
				Block:  []string{"twitter.com", "facebook.com", "reddit.com"},
				Reason: "Avoiding inflammatory content that might increase anger",
				Color:  "red",
				Alert: &Alert{
					Title:       "Take a deep breath",
					Message:     "You're feeling angry. Let's avoid content that might fuel those feelings. Consider some calming activities instead.",
					Suggestions: []string{"Try deep breathing exercises", "Listen to calming music", "Go for a walk"},
				},
			},
			domain.MoodSad: {
				Block:  []string{"news.com", "twitter.com", "instagram.com"},
				Reason: "Blocking potentially depressing news and social comparison triggers",
				Color:  "blue",
				Alert: &Alert{
					Title:       "We're here for you",
					Message:     "You're feeling sad. We've blocked potentially triggering content to protect your emotional wellbeing.",
					Suggestions: []string{"Watch uplifting videos", "Call a friend", "Practice gratitude"},
				},
			},
			domain.MoodAnxious: {
				Block:  []string{"news.com", "twitter.com", "reddit.com", "facebook.com"},
				Reason: "Reducing anxiety-inducing content and information overload",
				Color:  "yellow",
				Alert: &Alert{
					Title:       "Let's find some calm",
					Message:     "You're feeling anxious. We've limited information overload to help reduce stress.",
					Suggestions: []string{"Try meditation", "Focus on your breathing", "Write in a journal"},
				},
			},
			domain.MoodFocused: {
				Block:  []string{"twitter.com", "facebook.com", "instagram.com", "youtube.com"},
				Reason: "Blocking distracting social media and entertainment sites",
				Color:  "purple",
				Alert: &Alert{
					Title:       "Stay in the zone",
					Message:     "Great! You're focused. We've blocked distracting sites to help maintain your productivity.",
					Suggestions: []string{"Set a work timer", "Eliminate other distractions", "Take regular breaks"},
				},
			},
			domain.MoodHappy: {
				Block:  []string{},
				Reason: "No restrictions - enjoy browsing freely!",
				Color:  "green",
			},
		},
		Allowed: []string{
			"google.com",
			"wikipedia.org",
			"stackoverflow.com",
			"github.com",
			"medium.com",
			"coursera.org",
			"udemy.com",
			"spotify.com",
		},
	}
}
