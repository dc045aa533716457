package services

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// Presence tracks which users are currently online. It replaces the static
// connection dictionaries of the old real-time hub with a scoped service and
// explicit TTL eviction: a user is online while their heartbeat is fresh.
type Presence interface {
	Touch(ctx context.Context, userID int) error
	Offline(ctx context.Context, userID int) error
	Online(ctx context.Context) ([]int, error)
}

const defaultPresenceTTL = 90 * time.Second

// NewPresence returns a redis-backed tracker when REDIS_ADDR is set,
// otherwise an in-memory one. Both honor the same TTL semantics.
func NewPresence() Presence {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		return NewMemoryPresence(defaultPresenceTTL)
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:     addr,
		Password: os.Getenv("REDIS_PASSWORD"),
	})
	return &RedisPresence{rdb: rdb, ttl: defaultPresenceTTL}
}

const presenceKeyPrefix = "presence:user:"

// RedisPresence stores one TTL'd key per online user, so eviction is handled
// by redis itself.
type RedisPresence struct {
	rdb *goredis.Client
	ttl time.Duration
}

func (p *RedisPresence) Touch(ctx context.Context, userID int) error {
	return p.rdb.Set(ctx, presenceKey(userID), "1", p.ttl).Err()
}

func (p *RedisPresence) Offline(ctx context.Context, userID int) error {
	return p.rdb.Del(ctx, presenceKey(userID)).Err()
}

func (p *RedisPresence) Online(ctx context.Context) ([]int, error) {
	var ids []int
	iter := p.rdb.Scan(ctx, 0, presenceKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		raw := strings.TrimPrefix(iter.Val(), presenceKeyPrefix)
		id, err := strconv.Atoi(raw)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	sort.Ints(ids)
	return ids, nil
}

func presenceKey(userID int) string {
	return fmt.Sprintf("%s%d", presenceKeyPrefix, userID)
}

// MemoryPresence is the single-process fallback with the same TTL semantics.
type MemoryPresence struct {
	mu   sync.Mutex
	ttl  time.Duration
	seen map[int]time.Time
	now  func() time.Time
}

func NewMemoryPresence(ttl time.Duration) *MemoryPresence {
	if ttl <= 0 {
		ttl = defaultPresenceTTL
	}
	return &MemoryPresence{
		ttl:  ttl,
		seen: make(map[int]time.Time),
		now:  time.Now,
	}
}

func (p *MemoryPresence) Touch(ctx context.Context, userID int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seen[userID] = p.now()
	return nil
}

func (p *MemoryPresence) Offline(ctx context.Context, userID int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.seen, userID)
	return nil
}

func (p *MemoryPresence) Online(ctx context.Context) ([]int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	cutoff := p.now().Add(-p.ttl)
	ids := make([]int, 0, len(p.seen))
	for id, last := range p.seen {
		if last.Before(cutoff) {
			delete(p.seen, id) // expired heartbeat
			continue
		}
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids, nil
}
