// Package lock implements the per-URL advisory leasing the Crawler uses to
// keep two loops from processing the same resource concurrently.
package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/0xBADBAC0N/ghcrawler/internal/engine"
)

// ErrExceeded is returned by Acquire when a URL is already leased by another
// holder and the lease has not yet expired.
var ErrExceeded = errors.New("lock: exceeded, URL already held")

// Service is the contract the Crawler pipeline's acquireLock stage depends
// on.
type Service interface {
	Acquire(ctx context.Context, url string, ttl time.Duration) (*engine.Lease, error)
	Release(ctx context.Context, lease *engine.Lease) error
}

// RedisLock implements Service with a SET NX PX lease keyed by URL, the
// standard single-instance distributed-lock recipe: the value is a random
// token unique to the holder, so Release only deletes a key it still owns.
type RedisLock struct {
	client *redis.Client
	prefix string
}

// NewRedisLock constructs a RedisLock over an already-connected client.
// Keys are namespaced under prefix (e.g. "ghcrawler:lock:") to share a
// Redis instance safely with other consumers.
func NewRedisLock(client *redis.Client, prefix string) *RedisLock {
	return &RedisLock{client: client, prefix: prefix}
}

func (l *RedisLock) key(url string) string {
	return l.prefix + url
}

var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end
`)

// Acquire attempts to take the lease for url, failing with ErrExceeded if
// another holder currently owns it.
func (l *RedisLock) Acquire(ctx context.Context, url string, ttl time.Duration) (*engine.Lease, error) {
	token := uuid.New().String()
	ok, err := l.client.SetNX(ctx, l.key(url), token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("lock: acquire %s: %w", url, err)
	}
	if !ok {
		return nil, ErrExceeded
	}
	return &engine.Lease{URL: url, Token: token}, nil
}

// Release gives up a lease, but only if it still owns the key: a lease
// whose TTL already expired and was reissued to another holder must not be
// deleted out from under them.
func (l *RedisLock) Release(ctx context.Context, lease *engine.Lease) error {
	if lease == nil {
		return nil
	}
	_, err := releaseScript.Run(ctx, l.client, []string{l.key(lease.URL)}, lease.Token).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("lock: release %s: %w", lease.URL, err)
	}
	return nil
}
