// Package rules is the network rule engine the session controller mutates.
// It mirrors a declarative content-blocking API: callers add rules with ids of
// their choosing and must name every id they want removed.
package rules

import (
	"context"
	"errors"
	"fmt"

	"github.com/emoradar/emoradar/internal/domain"
)

// ErrConflict is returned when an added rule id is already installed and not removed
// in the same update, or appears twice in one update.
var ErrConflict = errors.New("rule id conflict")

// Update removes RemoveIDs and installs AddRules as one atomic step.
// Removing an id that is not installed is not an error.
type Update struct {
	RemoveIDs []int              `json:"removeRuleIds"`
	AddRules  []domain.BlockRule `json:"addRules"`
}

// Empty reports whether the update changes nothing.
func (u Update) Empty() bool { return len(u.RemoveIDs) == 0 && len(u.AddRules) == 0 }

// Validate checks every added rule and rejects duplicate ids within the update.
func (u Update) Validate() error {
	seen := make(map[int]bool, len(u.AddRules))
	for _, r := range u.AddRules {
		if err := r.Validate(); err != nil {
			return err
		}
		if seen[r.ID] {
			return fmt.Errorf("%w: id %d added twice", ErrConflict, r.ID)
		}
		seen[r.ID] = true
	}
	return nil
}

// Engine is implemented by rule stores.
type Engine interface {
	UpdateRules(ctx context.Context, u Update) error
	Rules(ctx context.Context) ([]domain.BlockRule, error)
}

// Matcher answers whether a hostname is currently blocked.
type Matcher interface {
	Match(host string) Decision
}

// Decision is the outcome of matching a hostname against installed rules.
type Decision struct {
	Host        string `json:"host"`
	Blocked     bool   `json:"blocked"`
	RuleID      int    `json:"rule_id,omitempty"`
	MatchSuffix string `json:"match_suffix,omitempty"`
}
