// Package policy holds the versioned mood table: which domains each mood blocks,
// plus the display data the UI shows alongside it. Both the UI and the session
// controller read the same Policy, so shown and enforced rules cannot drift.
package policy

import (
	"github.com/emoradar/emoradar/internal/domain"
)

// Resolver maps a mood to the ordered domain suffixes to block.
type Resolver interface {
	Resolve(m domain.Mood) []string
}

// Alert is the message shown when a blocking mood is selected.
type Alert struct {
	Title       string   `yaml:"title" json:"title"`
	Message     string   `yaml:"message" json:"message"`
	Suggestions []string `yaml:"suggestions" json:"suggestions"`
}

// MoodPolicy is the entry for one mood.
type MoodPolicy struct {
	Block  []string `yaml:"block" json:"block" validate:"dive,hostname_rfc1123"`
	Reason string   `yaml:"reason" json:"reason"`
	Color  string   `yaml:"color" json:"color"`
	Alert  *Alert   `yaml:"alert,omitempty" json:"alert,omitempty"`
}

// Policy is one version of the mood table.
type Policy struct {
	Version int                        `yaml:"version" json:"version" validate:"gte=1"`
	Moods   map[domain.Mood]MoodPolicy `yaml:"moods" json:"moods" validate:"required,dive,keys,oneof=angry sad anxious focused happy,endkeys"`
	Allowed []string                   `yaml:"allowed" json:"allowed" validate:"dive,hostname_rfc1123"`
}

// Resolve returns a copy of the block list for m. Happy, unset and unknown moods
// resolve to an empty list; this never fails.
func (p *Policy) Resolve(m domain.Mood) []string {
	if p == nil {
		return []string{}
	}
	mp, ok := p.Moods[m]
	if !ok || len(mp.Block) == 0 {
		return []string{}
	}
	out := make([]string, len(mp.Block))
	copy(out, mp.Block)
	return out
}

// Rules derives the block rules of m, ids counting up from domain.RuleIDBase.
func (p *Policy) Rules(m domain.Mood) []domain.BlockRule {
	return RulesFor(p.Resolve(m))
}

// Blocks reports whether m resolves to at least one domain.
func (p *Policy) Blocks(m domain.Mood) bool {
	if p == nil {
		return false
	}
	return len(p.Moods[m].Block) > 0
}

// Clone returns a deep copy.
func (p *Policy) Clone() *Policy {
	out := &Policy{
		Version: p.Version,
		Moods:   make(map[domain.Mood]MoodPolicy, len(p.Moods)),
		Allowed: append([]string(nil), p.Allowed...),
	}
	for m, mp := range p.Moods {
		c := mp
		c.Block = append([]string(nil), mp.Block...)
		if mp.Alert != nil {
			a := *mp.Alert
			a.Suggestions = append([]string(nil), mp.Alert.Suggestions...)
			c.Alert = &a
		}
		out.Moods[m] = c
	}
	return out
}

// RulesFor builds one rule generation from an ordered domain list.
func RulesFor(domains []string) []domain.BlockRule {
	rules := make([]domain.BlockRule, 0, len(domains))
	for i, d := range domains {
		rules = append(rules, domain.NewBlockRule(i, d))
	}
	return rules
}
