// Package quota tracks per-user deployment usage inside calendar-month
// windows. The counter store is Redis; an in-memory store covers local
// development and tests.
package quota

import (
	"context"
	"fmt"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// Store counts deployments per user per monthly window.
type Store interface {
	Usage(ctx context.Context, userID string) (int, error)
	Increment(ctx context.Context, userID string) (int, error)
	Close() error
}

func monthKey(now time.Time) string {
	return now.UTC().Format("2006-01")
}

// monthWindowTTL comfortably outlives any calendar month so a window's
// counter expires on its own after the window closes.
const monthWindowTTL = 32 * 24 * time.Hour

type redisStore struct {
	client  *redis.Client
	prefix  string
	timeout time.Duration
	now     func() time.Time
}

// NewRedisStore connects to Redis and verifies connectivity.
func NewRedisStore(addr, password string, db int) (Store, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect quota redis: %w", err)
	}
	return &redisStore{
		client:  client,
		prefix:  "mcpship:quota:deploy:",
		timeout: 250 * time.Millisecond,
		now:     time.Now,
	}, nil
}

func (s *redisStore) key(userID string) string {
	return s.prefix + userID + ":" + monthKey(s.now())
}

func (s *redisStore) Usage(ctx context.Context, userID string) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	count, err := s.client.Get(ctx, s.key(userID)).Int()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read quota counter: %w", err)
	}
	return count, nil
}

func (s *redisStore) Increment(ctx context.Context, userID string) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	key := s.key(userID)
	count, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("increment quota counter: %w", err)
	}
	if count == 1 {
		if err := s.client.Expire(ctx, key, monthWindowTTL).Err(); err != nil {
			return int(count), fmt.Errorf("set quota counter ttl: %w", err)
		}
	}
	return int(count), nil
}

func (s *redisStore) Close() error {
	return s.client.Close()
}

type memoryStore struct {
	mu     sync.Mutex
	counts map[string]int
	now    func() time.Time
}

// NewMemoryStore returns an in-process counter store.
func NewMemoryStore() Store {
	return &memoryStore{counts: make(map[string]int), now: time.Now}
}

func (s *memoryStore) key(userID string) string {
	return userID + ":" + monthKey(s.now())
}

func (s *memoryStore) Usage(_ context.Context, userID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts[s.key(userID)], nil
}

func (s *memoryStore) Increment(_ context.Context, userID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := s.key(userID)
	s.counts[key]++
	return s.counts[key], nil
}

func (s *memoryStore) Close() error { return nil }
