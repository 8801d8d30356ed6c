package rules

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emoradar/emoradar/internal/domain"
)

func rulesFor(domains ...string) []domain.BlockRule {
	out := make([]domain.BlockRule, len(domains))
	for i, d := range domains {
		out[i] = domain.NewBlockRule(i, d)
	}
	return out
}

func newEngine(t *testing.T) *MemoryEngine {
	t.Helper()
	e, err := NewMemoryEngine(16)
	require.NoError(t, err)
	return e
}

func TestMemoryEngine_AddAndList(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	require.NoError(t, e.UpdateRules(ctx, Update{AddRules: rulesFor("youtube.com", "reddit.com")}))

	got, err := e.Rules(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 1000, got[0].ID)
	assert.Equal(t, "youtube.com", got[0].MatchSuffix)
	assert.Equal(t, 1001, got[1].ID)
	assert.Equal(t, 2, e.Count())
}

func TestMemoryEngine_ReplaceGeneration(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	require.NoError(t, e.UpdateRules(ctx, Update{AddRules: rulesFor("a.com", "b.com", "c.com", "d.com")}))
	require.NoError(t, e.UpdateRules(ctx, Update{
		RemoveIDs: domain.RuleIDs(4),
		AddRules:  rulesFor("x.com"),
	}))

	got, err := e.Rules(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "x.com", got[0].MatchSuffix)
}

func TestMemoryEngine_ConflictLeavesStateUntouched(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	require.NoError(t, e.UpdateRules(ctx, Update{AddRules: rulesFor("a.com", "b.com")}))

	err := e.UpdateRules(ctx, Update{RemoveIDs: []int{1001}, AddRules: rulesFor("x.com", "y.com")})
	require.ErrorIs(t, err, ErrConflict)

	got, err := e.Rules(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "a.com", got[0].MatchSuffix)
	assert.Equal(t, "b.com", got[1].MatchSuffix)
}

func TestMemoryEngine_DuplicateInUpdate(t *testing.T) {
	e := newEngine(t)
	dup := []domain.BlockRule{domain.NewBlockRule(0, "a.com"), domain.NewBlockRule(0, "b.com")}

	err := e.UpdateRules(context.Background(), Update{AddRules: dup})
	require.ErrorIs(t, err, ErrConflict)
	assert.Equal(t, 0, e.Count())
}

func TestMemoryEngine_InvalidRule(t *testing.T) {
	e := newEngine(t)
	bad := domain.BlockRule{ID: 1000, Priority: 1, Scope: domain.ScopeMainFrame}

	require.Error(t, e.UpdateRules(context.Background(), Update{AddRules: []domain.BlockRule{bad}}))
	assert.Equal(t, 0, e.Count())
}

func TestMemoryEngine_RemoveUnknownIsNoop(t *testing.T) {
	e := newEngine(t)
	require.NoError(t, e.UpdateRules(context.Background(), Update{RemoveIDs: []int{1000, 1001}}))
	assert.Equal(t, 0, e.Count())
}

func TestMemoryEngine_CancelledContext(t *testing.T) {
	e := newEngine(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.ErrorIs(t, e.UpdateRules(ctx, Update{AddRules: rulesFor("a.com")}), context.Canceled)
}

func TestMemoryEngine_Match(t *testing.T) {
	e := newEngine(t)
	require.NoError(t, e.UpdateRules(context.Background(), Update{
		AddRules: rulesFor("youtube.com", "music.youtube.com", "reddit.com"),
	}))

	tests := []struct {
		host    string
		blocked bool
		suffix  string
	}{
		{"youtube.com", true, "youtube.com"},
		{"www.youtube.com", true, "youtube.com"},
		{"music.youtube.com", true, "music.youtube.com"},
		{"https://Old.Reddit.com:443/r/golang", true, "reddit.com"},
		{"notyoutube.com", false, ""},
		{"github.com", false, ""},
		{"youtube.com.", true, "youtube.com"},
	}

	for _, tt := range tests {
		t.Run(tt.host, func(t *testing.T) {
			d := e.Match(tt.host)
			assert.Equal(t, tt.blocked, d.Blocked)
			assert.Equal(t, tt.suffix, d.MatchSuffix)
		})
	}
}

func TestMemoryEngine_MatchCacheInvalidatedOnUpdate(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	require.NoError(t, e.UpdateRules(ctx, Update{AddRules: rulesFor("youtube.com")}))
	assert.True(t, e.Match("youtube.com").Blocked)
	assert.True(t, e.Match("youtube.com").Blocked)

	hits, misses := e.CacheStats()
	assert.Equal(t, uint64(1), hits)
	assert.Equal(t, uint64(1), misses)

	require.NoError(t, e.UpdateRules(ctx, Update{RemoveIDs: domain.RuleIDs(1)}))
	assert.False(t, e.Match("youtube.com").Blocked)
}

func TestMemoryEngine_NoCache(t *testing.T) {
	e, err := NewMemoryEngine(0)
	require.NoError(t, err)
	require.NoError(t, e.UpdateRules(context.Background(), Update{AddRules: rulesFor("a.com")}))

	assert.True(t, e.Match("sub.a.com").Blocked)
	hits, misses := e.CacheStats()
	assert.Zero(t, hits)
	assert.Zero(t, misses)
}

func TestClearSessionRules(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	keep := domain.BlockRule{ID: 7, Priority: 1, MatchSuffix: "ads.example", Scope: domain.ScopeMainFrame}

	require.NoError(t, e.UpdateRules(ctx, Update{AddRules: append(rulesFor("a.com", "b.com"), keep)}))

	removed, err := ClearSessionRules(ctx, e)
	require.NoError(t, err)
	assert.Equal(t, []int{1000, 1001}, removed)

	got, err := e.Rules(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 7, got[0].ID)
}
