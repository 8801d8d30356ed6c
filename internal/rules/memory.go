package rules

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/emoradar/emoradar/internal/domain"
)

// MemoryEngine keeps rules in process and answers Match from an LRU of decisions.
// The cache is purged on every update so decisions never outlive the rules.
type MemoryEngine struct {
	mu     sync.RWMutex
	rules  map[int]domain.BlockRule
	cache  *lru.Cache[string, Decision]
	hits   atomic.Uint64
	misses atomic.Uint64
}

// NewMemoryEngine creates an engine with a decision cache of cacheSize entries.
// cacheSize <= 0 disables caching.
func NewMemoryEngine(cacheSize int) (*MemoryEngine, error) {
	e := &MemoryEngine{rules: make(map[int]domain.BlockRule)}
	if cacheSize > 0 {
		c, err := lru.New[string, Decision](cacheSize)
		if err != nil {
			return nil, fmt.Errorf("failed to create decision cache: %w", err)
		}
		e.cache = c
	}
	return e, nil
}

// UpdateRules applies u atomically: either every change lands or none does.
func (e *MemoryEngine) UpdateRules(ctx context.Context, u Update) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := u.Validate(); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	removing := make(map[int]bool, len(u.RemoveIDs))
	for _, id := range u.RemoveIDs {
		removing[id] = true
	}
	for _, r := range u.AddRules {
		if _, exists := e.rules[r.ID]; exists && !removing[r.ID] {
			return fmt.Errorf("%w: id %d is already installed", ErrConflict, r.ID)
		}
	}

	for id := range removing {
		delete(e.rules, id)
	}
	for _, r := range u.AddRules {
		e.rules[r.ID] = r
	}
	if e.cache != nil {
		e.cache.Purge()
	}
	return nil
}

// Rules returns installed rules ordered by id.
func (e *MemoryEngine) Rules(ctx context.Context) ([]domain.BlockRule, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]domain.BlockRule, 0, len(e.rules))
	for _, r := range e.rules {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Count returns the number of installed rules.
func (e *MemoryEngine) Count() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.rules)
}

// Match reports whether host is blocked. Among matching rules the most specific
// suffix wins, then the higher priority, then the lower id.
func (e *MemoryEngine) Match(host string) Decision {
	host = normalizeHost(host)

	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.cache != nil {
		if d, ok := e.cache.Get(host); ok {
			e.hits.Add(1)
			return d
		}
		e.misses.Add(1)
	}

	d := Decision{Host: host}
	var best *domain.BlockRule
	for _, r := range e.rules {
		if !r.Matches(host) {
			continue
		}
		if best == nil || better(r, *best) {
			rr := r
			best = &rr
		}
	}
	if best != nil {
		d.Blocked = true
		d.RuleID = best.ID
		d.MatchSuffix = best.MatchSuffix
	}
	if e.cache != nil {
		e.cache.Add(host, d)
	}
	return d
}

// CacheStats returns cumulative decision cache hits and misses.
func (e *MemoryEngine) CacheStats() (hits, misses uint64) {
	return e.hits.Load(), e.misses.Load()
}

func better(a, b domain.BlockRule) bool {
	if len(a.MatchSuffix) != len(b.MatchSuffix) {
		return len(a.MatchSuffix) > len(b.MatchSuffix)
	}
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	return a.ID < b.ID
}

// normalizeHost accepts a bare host, host:port or a URL.
func normalizeHost(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.Index(s, "://"); i >= 0 {
		s = s[i+3:]
	}
	if i := strings.IndexAny(s, "/?#"); i >= 0 {
		s = s[:i]
	}
	if i := strings.LastIndexByte(s, '@'); i >= 0 {
		s = s[i+1:]
	}
	if i := strings.LastIndexByte(s, ':'); i >= 0 && !strings.Contains(s[i:], "]") {
		s = s[:i]
	}
	return domain.CanonicalHost(s)
}

var (
	_ Engine  = (*MemoryEngine)(nil)
	_ Matcher = (*MemoryEngine)(nil)
)
