// Package session holds the live conversation context of every active
// interview session.
//
// Entries are bounded buffers keyed by session id. A missing entry is
// rebuilt from the Source on first access, so the cache can be dropped at
// any time (restart, explicit eviction) without losing durable state. The
// map is sharded and each buffer has its own lock: operations on one
// session are linearised, different sessions do not contend. No lock is
// held across Source I/O.
package session

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/MikeSquared-Agency/interviewer/internal/conversation"
)

// DefaultCapacity is the buffer bound, system prompt included.
const DefaultCapacity = 20

// RebuildTimeout bounds one rebuild from the Source.
const RebuildTimeout = 30 * time.Second

const shardCount = 32

// Seed is what a session is rebuilt from.
type Seed struct {
	SystemPrompt string
	History      []conversation.Message
}

// Source loads the persisted state of a session. It returns nil, nil when
// the session has no persisted record.
type Source interface {
	Seed(ctx context.Context, sessionID string) (*Seed, error)
}

type shard struct {
	mu      sync.RWMutex
	entries map[string]*buffer
}

type Cache struct {
	source         Source
	capacity       int
	rebuildTimeout time.Duration
	logger         *slog.Logger
	now            func() time.Time

	shards   [shardCount]*shard
	rebuilds singleflight.Group
}

func NewCache(source Source, capacity int, logger *slog.Logger) *Cache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	c := &Cache{
		source:         source,
		capacity:       capacity,
		rebuildTimeout: RebuildTimeout,
		logger:         logger,
		now:            time.Now,
	}
	for i := range c.shards {
		c.shards[i] = &shard{entries: make(map[string]*buffer)}
	}
	return c
}

// Create installs a fresh context seeded with systemPrompt, replacing any
// existing entry for sessionID.
func (c *Cache) Create(sessionID, systemPrompt string) {
	b := newBuffer(c.capacity)
	if systemPrompt != "" {
		b.add(conversation.Message{Role: conversation.RoleSystem, Content: systemPrompt, Timestamp: c.now().UTC()})
	}
	sh := c.shardFor(sessionID)
	sh.mu.Lock()
	sh.entries[sessionID] = b
	sh.mu.Unlock()
}

// GetOrCreate returns a copy of the session's context, rebuilding it from
// the Source when it is not cached.
func (c *Cache) GetOrCreate(ctx context.Context, sessionID string) ([]conversation.Message, error) {
	b, err := c.buffer(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return b.snapshot(), nil
}

// Append adds msg to the session's context, evicting the oldest non-system
// message once the bound is exceeded.
func (c *Cache) Append(ctx context.Context, sessionID string, msg conversation.Message) error {
	b, err := c.buffer(ctx, sessionID)
	if err != nil {
		return err
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = c.now().UTC()
	}
	b.append(msg)
	return nil
}

// Peek returns the cached context without rebuilding.
func (c *Cache) Peek(sessionID string) ([]conversation.Message, bool) {
	b, ok := c.shardFor(sessionID).get(sessionID)
	if !ok {
		return nil, false
	}
	return b.snapshot(), true
}

// Evict drops the session's context. Evicting a missing session is a no-op.
func (c *Cache) Evict(sessionID string) {
	sh := c.shardFor(sessionID)
	sh.mu.Lock()
	delete(sh.entries, sessionID)
	sh.mu.Unlock()
}

// Len reports the number of cached sessions.
func (c *Cache) Len() int {
	n := 0
	for _, sh := range c.shards {
		sh.mu.RLock()
		n += len(sh.entries)
		sh.mu.RUnlock()
	}
	return n
}

func (c *Cache) buffer(ctx context.Context, sessionID string) (*buffer, error) {
	sh := c.shardFor(sessionID)
	if b, ok := sh.get(sessionID); ok {
		return b, nil
	}

	// Concurrent misses for the same session share one rebuild. The rebuild
	// outlives any single caller; each caller stops waiting when its own ctx
	// ends.
	results := c.rebuilds.DoChan(sessionID, func() (any, error) {
		if b, ok := sh.get(sessionID); ok {
			return b, nil
		}
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.rebuildTimeout)
		defer cancel()
		b, err := c.rebuild(rctx, sessionID)
		if err != nil {
			return nil, err
		}
		return sh.putIfAbsent(sessionID, b), nil
	})

	select {
	case res := <-results:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*buffer), nil
	case <-ctx.Done():
		return nil, fmt.Errorf("rebuild session %s: %w", sessionID, ctx.Err())
	}
}

func (c *Cache) rebuild(ctx context.Context, sessionID string) (*buffer, error) {
	seed, err := c.source.Seed(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("rebuild session %s: %w", sessionID, err)
	}

	b := newBuffer(c.capacity)
	if seed == nil {
		c.logger.Info("no persisted conversation, starting empty context", "session_id", sessionID)
		return b, nil
	}

	if seed.SystemPrompt != "" {
		b.add(conversation.Message{Role: conversation.RoleSystem, Content: seed.SystemPrompt, Timestamp: c.now().UTC()})
	}
	for _, msg := range seed.History {
		// The prompt is re-rendered above; persisted copies would duplicate it.
		if msg.Role == conversation.RoleSystem {
			continue
		}
		b.add(msg)
	}

	c.logger.Info("session context rebuilt", "session_id", sessionID, "history", len(seed.History), "kept", len(b.messages))
	return b, nil
}

func (c *Cache) shardFor(sessionID string) *shard {
	h := fnv.New32a()
	h.Write([]byte(sessionID))
	return c.shards[h.Sum32()%shardCount]
}

func (s *shard) get(sessionID string) (*buffer, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.entries[sessionID]
	return b, ok
}

func (s *shard) putIfAbsent(sessionID string, b *buffer) *buffer {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.entries[sessionID]; ok {
		return existing
	}
	s.entries[sessionID] = b
	return b
}
