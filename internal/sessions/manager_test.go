package sessions

import (
	"context"
	"errors"
	"net"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingCloser struct {
	n atomic.Int32
}

func (c *countingCloser) Close(context.Context) error {
	c.n.Add(1)
	return nil
}

func TestManager_CreateRespectsLimit(t *testing.T) {
	m := NewManager(Config{MaxSessions: 2}, nil, nil)
	ctx := context.Background()

	a, err := m.Create(ctx, &countingCloser{})
	require.NoError(t, err)
	b, err := m.Create(ctx, &countingCloser{})
	require.NoError(t, err)
	require.NotEqual(t, a.ID, b.ID)

	_, err = m.Create(ctx, &countingCloser{})
	require.ErrorIs(t, err, ErrTooManySessions)
	require.Equal(t, 2, m.Count())

	got, ok := m.Get(a.ID)
	require.True(t, ok)
	require.Same(t, a, got)
}

func TestManager_RemoveClosesOnce(t *testing.T) {
	m := NewManager(Config{}, nil, nil)
	ctx := context.Background()
	c := &countingCloser{}

	e, err := m.Create(ctx, c)
	require.NoError(t, err)

	require.NoError(t, m.Remove(ctx, e.ID))
	require.NoError(t, m.Remove(ctx, e.ID))
	require.NoError(t, m.Remove(ctx, "unknown"))

	assert.EqualValues(t, 1, c.n.Load())
	assert.Zero(t, m.Count())
}

func TestManager_CleanupInactive(t *testing.T) {
	m := NewManager(Config{SessionTimeout: time.Minute}, nil, nil)
	ctx := context.Background()

	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	idle := &countingCloser{}
	busy := &countingCloser{}
	idleEntry, err := m.Create(ctx, idle)
	require.NoError(t, err)
	busyEntry, err := m.Create(ctx, busy)
	require.NoError(t, err)

	now = now.Add(50 * time.Second)
	m.Touch(ctx, busyEntry.ID)
	require.Equal(t, now, busyEntry.LastActivity())

	now = now.Add(30 * time.Second)
	require.Equal(t, 1, m.CleanupInactive(ctx))

	_, ok := m.Get(idleEntry.ID)
	assert.False(t, ok)
	_, ok = m.Get(busyEntry.ID)
	assert.True(t, ok)
	assert.EqualValues(t, 1, idle.n.Load())
	assert.Zero(t, busy.n.Load())
}

func TestManager_Shutdown(t *testing.T) {
	m := NewManager(Config{}, nil, nil)
	ctx := context.Background()
	closers := []*countingCloser{{}, {}, {}}
	for _, c := range closers {
		_, err := m.Create(ctx, c)
		require.NoError(t, err)
	}

	m.Shutdown(ctx)

	for _, c := range closers {
		assert.EqualValues(t, 1, c.n.Load())
	}
	assert.Zero(t, m.Count())

	_, err := m.Create(ctx, &countingCloser{})
	require.ErrorIs(t, err, ErrClosed)
}

func TestManager_CloserFunc(t *testing.T) {
	m := NewManager(Config{}, nil, nil)
	ctx := context.Background()

	called := false
	e, err := m.Create(ctx, CloserFunc(func(context.Context) error {
		called = true
		return nil
	}))
	require.NoError(t, err)
	require.NoError(t, m.Remove(ctx, e.ID))
	require.True(t, called)
}

func TestManager_CreateDoesNotHoldLockDuringRedis(t *testing.T) {
	release := make(chan struct{})
	rdb := redis.NewClient(&redis.Options{
		Addr:       "redis.invalid:6379",
		MaxRetries: -1,
		Dialer: func(ctx context.Context, network, addr string) (net.Conn, error) {
			select {
			case <-release:
			case <-ctx.Done():
			}
			return nil, errors.New("redis unavailable")
		},
	})
	defer rdb.Close()

	m := NewManager(Config{MaxSessions: 2}, rdb, nil)
	created := make(chan *Entry, 1)
	go func() {
		e, err := m.Create(context.Background(), &countingCloser{})
		assert.NoError(t, err)
		created <- e
	}()

	// the entry is visible while the metadata write is still pending
	require.Eventually(t, func() bool { return m.Count() == 1 }, time.Second, 5*time.Millisecond)
	select {
	case <-created:
		t.Fatal("Create returned before the redis write finished")
	default:
	}

	close(release)
	e := <-created
	got, ok := m.Get(e.ID)
	require.True(t, ok)
	require.Same(t, e, got)
}

func TestManager_Redis(t *testing.T) {
	url := os.Getenv("SHOPASSIST_TEST_REDIS_URL")
	if url == "" {
		t.Skip("SHOPASSIST_TEST_REDIS_URL not set")
	}
	opts, err := redis.ParseURL(url)
	require.NoError(t, err)
	rdb := redis.NewClient(opts)
	defer rdb.Close()

	ctx := context.Background()
	m := NewManager(Config{SessionTimeout: time.Minute}, rdb, nil)

	e, err := m.Create(ctx, &countingCloser{})
	require.NoError(t, err)

	key := keyPrefix + e.ID
	status, err := rdb.HGet(ctx, key, "status").Result()
	require.NoError(t, err)
	require.Equal(t, "active", status)

	member, err := rdb.SIsMember(ctx, activeSetKey, e.ID).Result()
	require.NoError(t, err)
	require.True(t, member)

	ttl, err := rdb.TTL(ctx, key).Result()
	require.NoError(t, err)
	require.Greater(t, ttl, time.Duration(0))

	require.NoError(t, m.Remove(ctx, e.ID))
	n, err := rdb.Exists(ctx, key).Result()
	require.NoError(t, err)
	require.Zero(t, n)
}
