package rules

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/emoradar/emoradar/internal/domain"
)

// KeyDynamicRules is the hash holding installed rules, field = rule id, value = rule JSON.
const KeyDynamicRules = "emoradar:rules:dynamic"

// maxTxRetries bounds optimistic-lock retries when another writer touches the hash.
const maxTxRetries = 5

// RedisEngine stores rules in a redis hash so other processes (an extension bridge,
// a second instance) see the same rule set.
type RedisEngine struct {
	client *redis.Client
	key    string
}

// NewRedisEngine creates an engine on the default hash key.
func NewRedisEngine(client *redis.Client) *RedisEngine {
	return &RedisEngine{client: client, key: KeyDynamicRules}
}

// UpdateRules applies u inside WATCH/MULTI/EXEC so conflict checks and writes are atomic.
func (e *RedisEngine) UpdateRules(ctx context.Context, u Update) error {
	if err := u.Validate(); err != nil {
		return err
	}
	if u.Empty() {
		return nil
	}

	removing := make(map[int]bool, len(u.RemoveIDs))
	removeFields := make([]string, 0, len(u.RemoveIDs))
	for _, id := range u.RemoveIDs {
		removing[id] = true
		removeFields = append(removeFields, strconv.Itoa(id))
	}

	values := make(map[string]interface{}, len(u.AddRules))
	for _, r := range u.AddRules {
		data, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("failed to marshal rule %d: %w", r.ID, err)
		}
		values[strconv.Itoa(r.ID)] = data
	}

	txf := func(tx *redis.Tx) error {
		fields, err := tx.HKeys(ctx, e.key).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return fmt.Errorf("failed to read installed rule ids: %w", err)
		}
		installed := make(map[string]bool, len(fields))
		for _, f := range fields {
			installed[f] = true
		}
		for _, r := range u.AddRules {
			if installed[strconv.Itoa(r.ID)] && !removing[r.ID] {
				return fmt.Errorf("%w: id %d is already installed", ErrConflict, r.ID)
			}
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if len(removeFields) > 0 {
				pipe.HDel(ctx, e.key, removeFields...)
			}
			if len(values) > 0 {
				pipe.HSet(ctx, e.key, values)
			}
			return nil
		})
		return err
	}

	for i := 0; i < maxTxRetries; i++ {
		err := e.client.Watch(ctx, txf, e.key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to update rules: %w", err)
		}
		return nil
	}
	return fmt.Errorf("failed to update rules: %w", redis.TxFailedErr)
}

// Rules returns installed rules ordered by id. Unreadable entries are skipped.
func (e *RedisEngine) Rules(ctx context.Context) ([]domain.BlockRule, error) {
	raw, err := e.client.HGetAll(ctx, e.key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get rules: %w", err)
	}

	out := make([]domain.BlockRule, 0, len(raw))
	for _, v := range raw {
		var r domain.BlockRule
		if err := json.Unmarshal([]byte(v), &r); err != nil {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Ping checks the redis connection.
func (e *RedisEngine) Ping(ctx context.Context) error {
	return e.client.Ping(ctx).Err()
}

var _ Engine = (*RedisEngine)(nil)
