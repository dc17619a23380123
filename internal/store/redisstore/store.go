package redisstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNotFound means no snapshot was ever recorded for the user.
var ErrNotFound = errors.New("redisstore: not found")

type Store struct {
	rdb *redis.Client
}

func New(addr, password string, db int) *Store {
	return &Store{rdb: redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})}
}

func NewWithClient(rdb *redis.Client) *Store {
	return &Store{rdb: rdb}
}

func (s *Store) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

func (s *Store) Close() error {
	return s.rdb.Close()
}

func presenceKey(userID string) string {
	return fmt.Sprintf("presence:user:%s", userID)
}

// Snapshot is the last presence transition seen for a user.
type Snapshot struct {
	Status string
	At     time.Time
}

// SetPresence stores the latest transition; an older one never overwrites a newer one.
func (s *Store) SetPresence(ctx context.Context, userID, status string, at time.Time) error {
	key := presenceKey(userID)
	return s.rdb.Watch(ctx, func(tx *redis.Tx) error {
		prev, err := tx.HGet(ctx, key, "at").Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if err == nil && prev > at.UnixMilli() {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.HSet(ctx, key, "status", status, "at", at.UnixMilli())
			return nil
		})
		return err
	}, key)
}

func (s *Store) GetPresence(ctx context.Context, userID string) (Snapshot, error) {
	vals, err := s.rdb.HGetAll(ctx, presenceKey(userID)).Result()
	if err != nil {
		return Snapshot{}, err
	}
	if len(vals) == 0 {
		return Snapshot{}, ErrNotFound
	}
	var ms int64
	if _, err := fmt.Sscan(vals["at"], &ms); err != nil {
		return Snapshot{}, fmt.Errorf("redisstore: bad timestamp for %s: %w", userID, err)
	}
	return Snapshot{Status: vals["status"], At: time.UnixMilli(ms).UTC()}, nil
}
