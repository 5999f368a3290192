package lock

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *Redis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	l := NewRedis(client, zerolog.New(io.Discard), RedisConfig{
		TTL:   time.Second,
		Retry: 5 * time.Millisecond,
		Wait:  100 * time.Millisecond,
	})
	return mr, l
}

func TestRedisLockAndRelease(t *testing.T) {
	mr, l := newTestRedis(t)

	unlock, err := l.Lock(context.Background(), "acct-1")
	require.NoError(t, err)
	assert.True(t, mr.Exists(KeyPrefix+"acct-1"))

	unlock()
	assert.False(t, mr.Exists(KeyPrefix+"acct-1"))
}

func TestRedisLockTimesOutWhileHeld(t *testing.T) {
	_, l := newTestRedis(t)

	unlock, err := l.Lock(context.Background(), "acct-1")
	require.NoError(t, err)
	defer unlock()

	_, err = l.Lock(context.Background(), "acct-1")
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestRedisReleaseKeepsForeignToken(t *testing.T) {
	mr, l := newTestRedis(t)

	unlock, err := l.Lock(context.Background(), "acct-1")
	require.NoError(t, err)

	// Simulate expiry and takeover by another instance.
	mr.FastForward(2 * time.Second)
	require.NoError(t, mr.Set(KeyPrefix+"acct-1", "someone-else"))

	unlock()
	got, err := mr.Get(KeyPrefix + "acct-1")
	require.NoError(t, err)
	assert.Equal(t, "someone-else", got)
}

func TestRedisLockAcquiresAfterRelease(t *testing.T) {
	_, l := newTestRedis(t)

	unlock, err := l.Lock(context.Background(), "acct-1")
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		u, err := l.Lock(context.Background(), "acct-1")
		if err == nil {
			u()
		}
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	unlock()
	assert.NoError(t, <-done)
}
