// Package bolt is a single-file mood history backend on bbolt.
package bolt

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	bbolt "go.etcd.io/bbolt"

	"github.com/emoradar/emoradar/internal/domain"
	"github.com/emoradar/emoradar/internal/moods"
)

var (
	bucketMoods = []byte("moods") // time key -> entry JSON
	bucketIDs   = []byte("ids")   // entry id -> time key
)

// Store implements moods.Store. Keys sort by entry time, so a cursor walk
// returns entries oldest first and pruning stops at the first newer key.
type Store struct {
	db *bbolt.DB
}

// Open opens (or creates) the database at path and ensures buckets exist.
func Open(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt db %s: %w", path, err)
	}
	if err := db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketMoods); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(bucketIDs)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create buckets: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Path returns the database file path.
func (s *Store) Path() string { return s.db.Path() }

// Save inserts e, replacing any earlier entry with the same id.
func (s *Store) Save(ctx context.Context, e domain.MoodEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal mood entry: %w", err)
	}
	key := entryKey(e)

	return s.db.Update(func(tx *bbolt.Tx) error {
		ids := tx.Bucket(bucketIDs)
		entries := tx.Bucket(bucketMoods)
		if old := ids.Get([]byte(e.ID)); old != nil && !bytes.Equal(old, key) {
			if err := entries.Delete(old); err != nil {
				return err
			}
		}
		if err := entries.Put(key, data); err != nil {
			return err
		}
		return ids.Put([]byte(e.ID), key)
	})
}

func (s *Store) All(ctx context.Context) ([]domain.MoodEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := []domain.MoodEntry{}
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketMoods).ForEach(func(_, v []byte) error {
			var e domain.MoodEntry
			if err := json.Unmarshal(v, &e); err != nil {
				return nil
			}
			out = append(out, e)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read mood entries: %w", err)
	}
	moods.SortEntries(out)
	return out, nil
}

// Prune deletes entries whose timestamp is before the cutoff.
func (s *Store) Prune(ctx context.Context, before time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	limit := timePrefix(before)
	n := 0
	err := s.db.Update(func(tx *bbolt.Tx) error {
		entries := tx.Bucket(bucketMoods)
		ids := tx.Bucket(bucketIDs)

		var expired [][]byte
		c := entries.Cursor()
		for k, v := c.First(); k != nil && bytes.Compare(k[:8], limit) < 0; k, v = c.Next() {
			kk := make([]byte, len(k))
			copy(kk, k)
			expired = append(expired, kk)

			var e domain.MoodEntry
			if json.Unmarshal(v, &e) == nil {
				if err := ids.Delete([]byte(e.ID)); err != nil {
					return err
				}
			}
		}
		for _, k := range expired {
			if err := entries.Delete(k); err != nil {
				return err
			}
		}
		n = len(expired)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to prune mood entries: %w", err)
	}
	return n, nil
}

// Count returns the number of stored entries.
func (s *Store) Count() int {
	n := 0
	_ = s.db.View(func(tx *bbolt.Tx) error {
		n = tx.Bucket(bucketMoods).Stats().KeyN
		return nil
	})
	return n
}

// Ping verifies the database is readable.
func (s *Store) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.View(func(tx *bbolt.Tx) error {
		if tx.Bucket(bucketMoods) == nil {
			return fmt.Errorf("bucket %s missing", bucketMoods)
		}
		return nil
	})
}

// entryKey is the 8-byte time prefix followed by the id.
func entryKey(e domain.MoodEntry) []byte {
	return append(timePrefix(e.Timestamp), e.ID...)
}

// timePrefix encodes unix nanos big-endian with the sign bit flipped, so byte
// order matches time order on both sides of 1970.
func timePrefix(t time.Time) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(t.UnixNano())^(1<<63))
	return buf
}

var _ moods.Store = (*Store)(nil)
