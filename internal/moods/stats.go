package moods

import (
	"math"

	"github.com/emoradar/emoradar/internal/domain"
	"github.com/emoradar/emoradar/internal/policy"
)

// Stats summarises a mood history.
type Stats struct {
	Total      int                 `json:"total"`
	Counts     map[domain.Mood]int `json:"counts"`
	Blocking   int                 `json:"blocking"`
	BlockRatio int                 `json:"block_ratio"` // percent of entries whose mood blocks sites
	LastMood   domain.Mood         `json:"last_mood"`
}

// ComputeStats derives Stats from entries ordered oldest first.
func ComputeStats(entries []domain.MoodEntry, resolver policy.Resolver) Stats {
	st := Stats{Counts: make(map[domain.Mood]int, len(domain.Moods))}
	for _, m := range domain.Moods {
		st.Counts[m] = 0
	}

	for _, e := range entries {
		st.Total++
		st.Counts[e.Mood]++
		if resolver != nil && len(resolver.Resolve(e.Mood)) > 0 {
			st.Blocking++
		}
	}
	if st.Total > 0 {
		st.BlockRatio = int(math.Round(float64(st.Blocking) / float64(st.Total) * 100))
		st.LastMood = entries[len(entries)-1].Mood
	}
	return st
}
