// Package runlock keeps two runs from driving the same account at once.
package runlock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrHeld is returned when another run owns the lock
var ErrHeld = errors.New("run lock held by another run")

// Release gives the lock back. It is safe to call more than once.
type Release func(ctx context.Context) error

// Locker hands out exclusive leases on a key
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (Release, error)
}

// Key is the lock key of one account
func Key(userID string) string {
	return "lotto:run:" + userID
}

// deletes the key only while it still holds our token
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// RedisLock leases keys with SET NX PX so runs on different hosts exclude
// each other
type RedisLock struct {
	client *redis.Client
}

// NewRedisLock connects using a redis:// URL
func NewRedisLock(url string) (*RedisLock, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	return &RedisLock{client: redis.NewClient(opt)}, nil
}

// NewRedisLockWithClient wraps an existing client
func NewRedisLockWithClient(client *redis.Client) *RedisLock {
	return &RedisLock{client: client}
}

// Acquire implements Locker
func (l *RedisLock) Acquire(ctx context.Context, key string, ttl time.Duration) (Release, error) {
	token := uuid.New().String()
	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire %s: %w", key, err)
	}
	if !ok {
		return nil, fmt.Errorf("%s: %w", key, ErrHeld)
	}

	var once sync.Once
	return func(ctx context.Context) error {
		var rerr error
		once.Do(func() {
			rerr = releaseScript.Run(ctx, l.client, []string{key}, token).Err()
		})
		return rerr
	}, nil
}

// Close closes the client
func (l *RedisLock) Close() error {
	return l.client.Close()
}

// LocalLock excludes runs within one process
type LocalLock struct {
	mu   sync.Mutex
	held map[string]time.Time
}

// NewLocalLock creates an in-process lock
func NewLocalLock() *LocalLock {
	return &LocalLock{held: make(map[string]time.Time)}
}

// Acquire implements Locker. Expired leases are taken over.
func (l *LocalLock) Acquire(_ context.Context, key string, ttl time.Duration) (Release, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	if exp, ok := l.held[key]; ok && now.Before(exp) {
		return nil, fmt.Errorf("%s: %w", key, ErrHeld)
	}
	exp := now.Add(ttl)
	l.held[key] = exp

	var once sync.Once
	return func(context.Context) error {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			if l.held[key] == exp {
				delete(l.held, key)
			}
		})
		return nil
	}, nil
}
