package lease

import (
	"context"
	"fmt"
	"time"

	consul "github.com/hashicorp/consul/api"
)

// ConsulLocker grants leases with Consul's session-based locks. Consul renews the session
// while the lease is held and releases it if this process disappears.
type ConsulLocker struct {
	client *consul.Client
	prefix string
	ttl    time.Duration
}

func NewConsulLocker(client *consul.Client, prefix string, ttl time.Duration) *ConsulLocker {
	return &ConsulLocker{client: client, prefix: prefix, ttl: ttl}
}

func (c *ConsulLocker) Acquire(ctx context.Context, name string) (Release, error) {
	key := c.prefix + name
	lock, err := c.client.LockOpts(&consul.LockOptions{
		Key:        key,
		Value:      []byte(name),
		SessionTTL: c.ttl.String(),
	})
	if err != nil {
		return nil, fmt.Errorf("consul lease %s: %w", key, err)
	}
	lost, err := lock.Lock(ctx.Done())
	if err != nil {
		return nil, fmt.Errorf("consul lease %s: %w", key, err)
	}
	if lost == nil {
		return nil, ctx.Err()
	}
	return once(lock.Unlock), nil
}
