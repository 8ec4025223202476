package services

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/arcfolio/folio_api/model"
)

// WindowStore holds fixed-window counters for the rate limiter. Incr must
// be atomic per identifier: it starts a fresh window when none is active,
// otherwise advances the current one, and returns the resulting count plus
// the moment the window expires. Implementations decide whether state is
// process-local or shared across instances.
type WindowStore interface {
	Incr(ctx context.Context, identifier string, window time.Duration) (count int, resetAt time.Time, err error)
}

// sweepChancePct is the percentage of Incr calls that also sweep expired
// windows out of the in-memory map. There is no scheduled cleanup; memory
// is bounded opportunistically.
const sweepChancePct = 2

type MemoryWindowStore struct {
	mu      sync.Mutex
	windows map[string]*model.RateLimitWindow

	// now is swappable so window expiry can be tested without sleeping.
	now func() time.Time
}

func NewMemoryWindowStore() *MemoryWindowStore {
	return &MemoryWindowStore{
		windows: make(map[string]*model.RateLimitWindow),
		now:     time.Now,
	}
}

func (s *MemoryWindowStore) Incr(_ context.Context, identifier string, window time.Duration) (int, time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()

	w, exists := s.windows[identifier]
	if !exists || w.Expired(now) {
		w = &model.RateLimitWindow{
			Identifier: identifier,
			Count:      1,
			ResetAt:    now.Add(window),
		}
		s.windows[identifier] = w
	} else {
		w.Count++
	}

	if rand.Intn(100) < sweepChancePct {
		s.sweepLocked(now)
	}

	return w.Count, w.ResetAt, nil
}

func (s *MemoryWindowStore) sweepLocked(now time.Time) {
	for id, w := range s.windows {
		if w.Expired(now) {
			delete(s.windows, id)
		}
	}
}

// Len reports the number of tracked windows, expired or not.
func (s *MemoryWindowStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.windows)
}

// RedisWindowStore shares window state across instances through redis,
// for deployments where a process-local limiter is not enough. INCR plus
// a TTL set on first hit gives the same fixed-window semantics as the
// in-memory map.
type RedisWindowStore struct {
	client *redis.Client
	prefix string
}

func NewRedisWindowStore(client *redis.Client) *RedisWindowStore {
	return &RedisWindowStore{client: client, prefix: "ratelimit:"}
}

func (s *RedisWindowStore) Incr(ctx context.Context, identifier string, window time.Duration) (int, time.Time, error) {
	key := s.prefix + identifier

	count, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, time.Time{}, err
	}

	if count == 1 {
		if err := s.client.Expire(ctx, key, window).Err(); err != nil {
			return 0, time.Time{}, err
		}
		return int(count), time.Now().Add(window), nil
	}

	ttl, err := s.client.TTL(ctx, key).Result()
	if err != nil {
		return 0, time.Time{}, err
	}
	if ttl < 0 {
		// Key survived without a TTL (e.g. expiry raced a restart); pin it
		// so the window cannot live forever.
		if err := s.client.Expire(ctx, key, window).Err(); err != nil {
			return 0, time.Time{}, err
		}
		ttl = window
	}

	return int(count), time.Now().Add(ttl), nil
}
