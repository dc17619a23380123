package redisstore

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// Needs a live redis; set REDIS_TEST_ADDR to run.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR not set")
	}
	s := New(addr, os.Getenv("REDIS_TEST_PASSWORD"), 15)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Ping(ctx); err != nil {
		t.Skipf("redis unreachable: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestPresenceSnapshot(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	user := "snapshot-" + time.Now().Format("150405.000000")
	t.Cleanup(func() { s.rdb.Del(context.Background(), presenceKey(user)) })

	_, err := s.GetPresence(ctx, user)
	require.True(t, errors.Is(err, ErrNotFound))

	t1 := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Minute)

	require.NoError(t, s.SetPresence(ctx, user, "online", t2))
	// older transition arrives late and is ignored
	require.NoError(t, s.SetPresence(ctx, user, "offline", t1))

	snap, err := s.GetPresence(ctx, user)
	require.NoError(t, err)
	require.Equal(t, "online", snap.Status)
	require.True(t, t2.Equal(snap.At))
}

func TestPresenceKey(t *testing.T) {
	require.Equal(t, "presence:user:alice", presenceKey("alice"))
}
