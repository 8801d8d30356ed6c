package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emoradar/emoradar/internal/domain"
)

func TestResolve_BlockingMoodsAreStable(t *testing.T) {
	p := Default()
	for _, m := range []domain.Mood{domain.MoodAngry, domain.MoodSad, domain.MoodAnxious, domain.MoodFocused} {
		t.Run(string(m), func(t *testing.T) {
			first := p.Resolve(m)
			require.NotEmpty(t, first)
			for range 5 {
				assert.Equal(t, first, p.Resolve(m))
			}
		})
	}
}

func TestResolve_NonBlockingMoodsAreEmpty(t *testing.T) {
	p := Default()
	for _, m := range []domain.Mood{domain.MoodHappy, domain.MoodUnset, domain.Mood("bored")} {
		got := p.Resolve(m)
		assert.NotNil(t, got)
		assert.Empty(t, got, "mood %q", m)
	}

	var nilPolicy *Policy
	assert.Empty(t, nilPolicy.Resolve(domain.MoodAngry))
}

func TestResolve_Anxious(t *testing.T) {
	p := Default()
	assert.Equal(t, []string{"news.com", "twitter.com", "reddit.com", "facebook.com"}, p.Resolve(domain.MoodAnxious))

	rules := p.Rules(domain.MoodAnxious)
	require.Len(t, rules, 4)
	for i, r := range rules {
		assert.Equal(t, 1000+i, r.ID)
		assert.Equal(t, domain.RulePriority, r.Priority)
		assert.Equal(t, domain.ScopeMainFrame, r.Scope)
	}
	assert.Equal(t, "facebook.com", rules[3].MatchSuffix)
}

func TestResolve_ReturnsCopy(t *testing.T) {
	p := Default()
	got := p.Resolve(domain.MoodAngry)
	got[0] = "example.com"
	assert.Equal(t, "twitter.com", p.Resolve(domain.MoodAngry)[0])
}

func TestClone_IsDeep(t *testing.T) {
	p := Default()
	c := p.Clone()
	c.Moods[domain.MoodSad].Block[0] = "changed.com"
	c.Moods[domain.MoodSad].Alert.Suggestions[0] = "changed"

	assert.Equal(t, "news.com", p.Moods[domain.MoodSad].Block[0])
	assert.Equal(t, "Watch uplifting videos", p.Moods[domain.MoodSad].Alert.Suggestions[0])
}

func TestBlocks(t *testing.T) {
	p := Default()
	assert.True(t, p.Blocks(domain.MoodFocused))
	assert.False(t, p.Blocks(domain.MoodHappy))
	assert.False(t, p.Blocks(domain.MoodUnset))
}

func TestProvider_Swap(t *testing.T) {
	pr := NewProvider(nil)
	assert.Equal(t, DefaultVersion, pr.Version())

	next := Default()
	next.Version = 7
	next.Moods[domain.MoodHappy] = MoodPolicy{Block: []string{"example.com"}}

	prev := pr.Swap(next)
	assert.Equal(t, DefaultVersion, prev.Version)
	assert.Equal(t, 7, pr.Version())
	assert.Equal(t, []string{"example.com"}, pr.Resolve(domain.MoodHappy))
}
