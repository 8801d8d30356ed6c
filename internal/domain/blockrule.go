package domain

import (
	"encoding/json"
	"fmt"
	"strings"
)

const (
	// RuleIDBase is the id of the first rule in a generation. Rule i gets RuleIDBase+i.
	RuleIDBase = 1000

	// RulePriority is the priority of every block rule.
	RulePriority = 1
)

// Scope restricts which requests a rule applies to.
type Scope string

// ScopeMainFrame limits a rule to top-level document requests.
const ScopeMainFrame Scope = "main_frame"

// BlockRule blocks main-document requests whose hostname ends in MatchSuffix.
type BlockRule struct {
	ID          int
	Priority    int
	MatchSuffix string
	Scope       Scope
}

// NewBlockRule builds the rule at position i of a generation.
func NewBlockRule(i int, suffix string) BlockRule {
	return BlockRule{
		ID:          RuleIDBase + i,
		Priority:    RulePriority,
		MatchSuffix: CanonicalHost(suffix),
		Scope:       ScopeMainFrame,
	}
}

// Validate checks the fields every rule engine relies on.
func (r BlockRule) Validate() error {
	if r.ID <= 0 {
		return fmt.Errorf("rule id must be positive, got %d", r.ID)
	}
	if r.MatchSuffix == "" {
		return fmt.Errorf("rule %d: match suffix must not be empty", r.ID)
	}
	if r.Scope != ScopeMainFrame {
		return fmt.Errorf("rule %d: unsupported scope %q", r.ID, r.Scope)
	}
	return nil
}

// Matches reports whether host equals the suffix or is a subdomain of it.
func (r BlockRule) Matches(host string) bool {
	host = CanonicalHost(host)
	if host == r.MatchSuffix {
		return true
	}
	return strings.HasSuffix(host, "."+r.MatchSuffix)
}

// ruleJSON is the declarative network rule shape browser extensions consume directly.
type ruleJSON struct {
	ID       int `json:"id"`
	Priority int `json:"priority"`
	Action   struct {
		Type string `json:"type"`
	} `json:"action"`
	Condition struct {
		HostSuffix    string   `json:"hostSuffix"`
		ResourceTypes []string `json:"resourceTypes"`
	} `json:"condition"`
}

func (r BlockRule) MarshalJSON() ([]byte, error) {
	var out ruleJSON
	out.ID = r.ID
	out.Priority = r.Priority
	out.Action.Type = "block"
	out.Condition.HostSuffix = r.MatchSuffix
	out.Condition.ResourceTypes = []string{string(r.Scope)}
	return json.Marshal(out)
}

func (r *BlockRule) UnmarshalJSON(data []byte) error {
	var in ruleJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	if in.Action.Type != "" && in.Action.Type != "block" {
		return fmt.Errorf("unsupported rule action %q", in.Action.Type)
	}
	r.ID = in.ID
	r.Priority = in.Priority
	r.MatchSuffix = CanonicalHost(in.Condition.HostSuffix)
	r.Scope = ScopeMainFrame
	if len(in.Condition.ResourceTypes) > 0 {
		r.Scope = Scope(in.Condition.ResourceTypes[0])
	}
	return nil
}

// CanonicalHost lowercases, trims and drops trailing dots.
func CanonicalHost(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	for strings.HasSuffix(name, ".") {
		name = strings.TrimSuffix(name, ".")
	}
	return name
}

// RuleIDs returns the ids of a generation of n rules.
func RuleIDs(n int) []int {
	if n <= 0 {
		return nil
	}
	ids := make([]int, n)
	for i := range ids {
		ids[i] = RuleIDBase + i
	}
	return ids
}
