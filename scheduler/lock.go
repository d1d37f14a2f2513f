// Package scheduler runs the periodic boost expiry sweep and the daily
// counter reset as supervised services.
package scheduler

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

// Locker elects one instance for a keyed job.
type Locker interface {
	// TryAcquire claims key for ttl. It reports false when another holder
	// already owns the key. The claim is never released early: it expires.
	TryAcquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// NewRedisClient connects and pings with a 5s timeout.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*goredis.Client, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		Password:    password,
		DB:          db,
		DialTimeout: 5 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}

// RedisLocker uses SET NX PX, so exactly one instance wins each key.
type RedisLocker struct {
	rdb    *goredis.Client
	prefix string
	owner  string
}

func NewRedisLocker(rdb *goredis.Client) *RedisLocker {
	host, _ := os.Hostname()
	return &RedisLocker{
		rdb:    rdb,
		prefix: "matching:lock:",
		owner:  host + "/" + uuid.NewString(),
	}
}

func (l *RedisLocker) TryAcquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := l.rdb.SetNX(ctx, l.prefix+key, l.owner, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire %s: %w", key, err)
	}
	return ok, nil
}

// LocalLocker is the single instance fallback.
type LocalLocker struct {
	mu   sync.Mutex
	held map[string]time.Time
	now  func() time.Time
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: make(map[string]time.Time), now: time.Now}
}

func (l *LocalLocker) TryAcquire(_ context.Context, key string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	for k, exp := range l.held {
		if !exp.After(now) {
			delete(l.held, k)
		}
	}
	if _, taken := l.held[key]; taken {
		return false, nil
	}
	l.held[key] = now.Add(ttl)
	return true, nil
}
