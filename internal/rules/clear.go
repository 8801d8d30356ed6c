package rules

import (
	"context"
	"fmt"

	"github.com/emoradar/emoradar/internal/domain"
)

// ClearSessionRules removes rules left in the session id range by a previous process.
// It returns the ids it removed.
func ClearSessionRules(ctx context.Context, e Engine) ([]int, error) {
	installed, err := e.Rules(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}

	var ids []int
	for _, r := range installed {
		if r.ID >= domain.RuleIDBase {
			ids = append(ids, r.ID)
		}
	}
	if len(ids) == 0 {
		return nil, nil
	}
	if err := e.UpdateRules(ctx, Update{RemoveIDs: ids}); err != nil {
		return nil, err
	}
	return ids, nil
}
