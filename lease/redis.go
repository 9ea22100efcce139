package lease

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Deletes the key only if it still holds our token, so that an expired lease taken over by
// another process is not released by us.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`) //nolint:gochecknoglobals

// Pushes the expiry forward only while the key still holds our token.
var extendScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("pexpire", KEYS[1], ARGV[2])
end
return 0
`) //nolint:gochecknoglobals

// RedisLocker grants leases stored as expiring Redis keys. While a lease is held, its expiry
// is pushed forward in the background.
type RedisLocker struct {
	client       *redis.Client
	prefix       string
	ttl          time.Duration
	pollInterval time.Duration
}

func NewRedisLocker(client *redis.Client, prefix string, ttl time.Duration) *RedisLocker {
	return &RedisLocker{client: client, prefix: prefix, ttl: ttl, pollInterval: 500 * time.Millisecond}
}

func (r *RedisLocker) Acquire(ctx context.Context, name string) (Release, error) {
	key := r.prefix + name
	token := uuid.NewString()
	for {
		ok, err := r.client.SetNX(ctx, key, token, r.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("redis lease %s: %w", key, err)
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(r.pollInterval):
		}
	}

	stop := make(chan struct{})
	go r.keepAlive(key, token, stop)
	return once(func() error {
		close(stop)
		return releaseScript.Run(context.Background(), r.client, []string{key}, token).Err()
	}), nil
}

// keepAlive extends the lease until stop is closed or the key no longer holds token. Once the
// key has expired and been taken by someone else, it is left alone.
func (r *RedisLocker) keepAlive(key, token string, stop <-chan struct{}) {
	ticker := time.NewTicker(r.ttl / 3)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			n, err := extendScript.Run(context.Background(), r.client, []string{key}, token, r.ttl.Milliseconds()).Int()
			if err == nil && n == 0 {
				return
			}
		}
	}
}
