package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/emoradar/emoradar/internal/domain"
	"github.com/emoradar/emoradar/internal/moods"
)

// Store keeps mood entries in Redis: one JSON value per entry plus a sorted
// set ordering ids by entry time.
type Store struct {
	client *redis.Client
}

// NewStore creates a new Redis store
func NewStore(client *redis.Client) *Store {
	return &Store{
		client: client,
	}
}

// Save stores an entry and indexes it by timestamp
func (s *Store) Save(ctx context.Context, e domain.MoodEntry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal mood entry: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, MoodKey(string(e.ID)), data, 0)
	pipe.ZAdd(ctx, AllMoodsKey(), redis.Z{Score: score(e.Timestamp), Member: string(e.ID)})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save mood entry: %w", err)
	}
	return nil
}

// SaveMany stores several entries in one round trip
func (s *Store) SaveMany(ctx context.Context, entries []domain.MoodEntry) error {
	if len(entries) == 0 {
		return nil
	}
	pipe := s.client.Pipeline()
	for _, e := range entries {
		data, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("failed to marshal mood entry %s: %w", e.ID, err)
		}
		pipe.Set(ctx, MoodKey(string(e.ID)), data, 0)
		pipe.ZAdd(ctx, AllMoodsKey(), redis.Z{Score: score(e.Timestamp), Member: string(e.ID)})
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save mood entries: %w", err)
	}
	return nil
}

// All returns every entry, oldest first. Ids whose value vanished are skipped.
func (s *Store) All(ctx context.Context) ([]domain.MoodEntry, error) {
	ids, err := s.client.ZRange(ctx, AllMoodsKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get mood ids: %w", err)
	}
	if len(ids) == 0 {
		return []domain.MoodEntry{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = MoodKey(id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get mood entries: %w", err)
	}

	entries := make([]domain.MoodEntry, 0, len(values))
	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var e domain.MoodEntry
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			continue
		}
		entries = append(entries, e)
	}
	moods.SortEntries(entries)
	return entries, nil
}

// Prune deletes entries older than before
func (s *Store) Prune(ctx context.Context, before time.Time) (int, error) {
	upper := "(" + strconv.FormatFloat(score(before), 'f', -1, 64)
	ids, err := s.client.ZRangeByScore(ctx, AllMoodsKey(), &redis.ZRangeBy{Min: "-inf", Max: upper}).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to find expired mood entries: %w", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	keys := make([]string, len(ids))
	members := make([]interface{}, len(ids))
	for i, id := range ids {
		keys[i] = MoodKey(id)
		members[i] = id
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, keys...)
	pipe.ZRem(ctx, AllMoodsKey(), members...)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("failed to delete expired mood entries: %w", err)
	}
	return len(ids), nil
}

// Count returns the number of indexed entries
func (s *Store) Count(ctx context.Context) (int64, error) {
	n, err := s.client.ZCard(ctx, AllMoodsKey()).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count mood entries: %w", err)
	}
	return n, nil
}

// Ping checks the redis connection
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func score(t time.Time) float64 {
	return float64(t.UnixMilli())
}

var _ moods.Store = (*Store)(nil)
