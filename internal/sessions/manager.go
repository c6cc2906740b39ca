// Package sessions tracks the live UI connections of the server. Metadata is
// mirrored to Redis when a client is configured so that operators can see
// active sessions across instances.
package sessions

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	activeSetKey     = "active_sessions"
	keyPrefix        = "session:"
	cleanupInterval  = time.Minute
	defaultMax       = 100
	defaultTimeout   = 30 * time.Minute
	redisCallTimeout = 2 * time.Second
)

var (
	ErrTooManySessions = errors.New("maximum sessions reached")
	ErrClosed          = errors.New("session manager is shut down")
)

// Closer releases everything a connection holds.
type Closer interface {
	Close(ctx context.Context) error
}

type CloserFunc func(ctx context.Context) error

func (f CloserFunc) Close(ctx context.Context) error { return f(ctx) }

type Config struct {
	MaxSessions    int
	SessionTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxSessions <= 0 {
		c.MaxSessions = defaultMax
	}
	if c.SessionTimeout <= 0 {
		c.SessionTimeout = defaultTimeout
	}
	return c
}

type Entry struct {
	ID        string
	CreatedAt time.Time

	closer Closer

	mu           sync.Mutex
	lastActivity time.Time
}

func (e *Entry) LastActivity() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastActivity
}

func (e *Entry) touch(now time.Time) {
	e.mu.Lock()
	e.lastActivity = now
	e.mu.Unlock()
}

type Manager struct {
	cfg    Config
	redis  *redis.Client
	logger *slog.Logger
	now    func() time.Time

	mu       sync.RWMutex
	sessions map[string]*Entry
	closed   bool
}

// NewManager creates a manager. rdb may be nil, in which case sessions are
// only tracked in memory.
func NewManager(cfg Config, rdb *redis.Client, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Manager{
		cfg:      cfg.withDefaults(),
		redis:    rdb,
		logger:   logger,
		now:      time.Now,
		sessions: make(map[string]*Entry),
	}
}

// Create registers a new session. closer is invoked on Remove, on cleanup
// after SessionTimeout of inactivity and on Shutdown.
func (m *Manager) Create(ctx context.Context, closer Closer) (*Entry, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrClosed
	}
	if len(m.sessions) >= m.cfg.MaxSessions {
		m.mu.Unlock()
		return nil, ErrTooManySessions
	}

	now := m.now()
	e := &Entry{
		ID:           uuid.NewString(),
		CreatedAt:    now,
		closer:       closer,
		lastActivity: now,
	}
	m.sessions[e.ID] = e
	m.mu.Unlock()

	m.store(ctx, e)
	return e, nil
}

func (m *Manager) store(ctx context.Context, e *Entry) {
	if m.redis == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), redisCallTimeout)
	defer cancel()

	key := keyPrefix + e.ID
	_, err := m.redis.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, key, map[string]any{
			"created_at":    e.CreatedAt.Format(time.RFC3339),
			"last_activity": e.LastActivity().Format(time.RFC3339),
			"status":        "active",
		})
		p.SAdd(ctx, activeSetKey, e.ID)
		p.Expire(ctx, key, m.cfg.SessionTimeout)
		return nil
	})
	if err != nil {
		m.logger.Warn("failed to store session metadata", slog.String("session", e.ID), slog.Any("err", err))
	}
}

func (m *Manager) forget(ctx context.Context, id string) {
	if m.redis == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), redisCallTimeout)
	defer cancel()

	_, err := m.redis.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, keyPrefix+id)
		p.SRem(ctx, activeSetKey, id)
		return nil
	})
	if err != nil {
		m.logger.Warn("failed to delete session metadata", slog.String("session", id), slog.Any("err", err))
	}
}

func (m *Manager) Get(id string) (*Entry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.sessions[id]
	return e, ok
}

// Touch records activity and extends the Redis TTL.
func (m *Manager) Touch(ctx context.Context, id string) {
	e, ok := m.Get(id)
	if !ok {
		return
	}
	now := m.now()
	e.touch(now)

	if m.redis == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), redisCallTimeout)
	defer cancel()

	key := keyPrefix + id
	_, err := m.redis.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, key, "last_activity", now.Format(time.RFC3339))
		p.Expire(ctx, key, m.cfg.SessionTimeout)
		return nil
	})
	if err != nil {
		m.logger.Debug("failed to refresh session metadata", slog.String("session", id), slog.Any("err", err))
	}
}

// Remove closes and forgets the session. Unknown ids are ignored.
func (m *Manager) Remove(ctx context.Context, id string) error {
	m.mu.Lock()
	e, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if !ok {
		return nil
	}
	m.forget(ctx, id)
	return e.closer.Close(ctx)
}

func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// CleanupInactive removes sessions idle for longer than SessionTimeout and
// returns how many were removed.
func (m *Manager) CleanupInactive(ctx context.Context) int {
	now := m.now()

	m.mu.Lock()
	var stale []*Entry
	for id, e := range m.sessions {
		if now.Sub(e.LastActivity()) > m.cfg.SessionTimeout {
			stale = append(stale, e)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, e := range stale {
		m.logger.Info("closing inactive session", slog.String("session", e.ID))
		m.forget(ctx, e.ID)
		if err := e.closer.Close(ctx); err != nil {
			m.logger.Warn("failed to close session", slog.String("session", e.ID), slog.Any("err", err))
		}
	}
	return len(stale)
}

// StartCleanupRoutine runs CleanupInactive every minute until ctx is done.
func (m *Manager) StartCleanupRoutine(ctx context.Context) {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := m.CleanupInactive(ctx); n > 0 {
				m.logger.Info("cleaned up inactive sessions", slog.Int("count", n))
			}
		}
	}
}

// Shutdown closes every session. Later calls to Create fail with ErrClosed.
func (m *Manager) Shutdown(ctx context.Context) {
	m.mu.Lock()
	m.closed = true
	all := make([]*Entry, 0, len(m.sessions))
	for id, e := range m.sessions {
		all = append(all, e)
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	for _, e := range all {
		m.forget(ctx, e.ID)
		if err := e.closer.Close(ctx); err != nil {
			m.logger.Warn("failed to close session", slog.String("session", e.ID), slog.Any("err", err))
		}
	}
}
