// Package lease provides mutual exclusion for container stacks. Every stack uses the same
// fixed network ranges and container names, so only one may be live per host at a time, even
// when several harness processes share the host.
package lease

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	consul "github.com/hashicorp/consul/api"
	"github.com/redis/go-redis/v9"
)

// DefaultTTL bounds how long a lease outlives a harness process that died while holding it.
const DefaultTTL = 30 * time.Second

// Release gives up a lease. It is safe to call more than once.
type Release func() error

// Locker grants exclusive leases by name.
type Locker interface {
	// Acquire blocks until the lease is granted or ctx is done.
	Acquire(ctx context.Context, name string) (Release, error)
}

// Parse builds a Locker from a command line value: "" or "local" for an in-process lock,
// "redis://host:port/db" or "consul://host:port".
func Parse(value string) (Locker, error) {
	switch {
	case value == "" || value == "local":
		return NewLocalLocker(), nil
	case strings.HasPrefix(value, "redis://") || strings.HasPrefix(value, "rediss://"):
		opts, err := redis.ParseURL(value)
		if err != nil {
			return nil, fmt.Errorf("invalid redis lease URL: %w", err)
		}
		return NewRedisLocker(redis.NewClient(opts), "quic-interop:lease:", DefaultTTL), nil
	case strings.HasPrefix(value, "consul://"):
		u, err := url.Parse(value)
		if err != nil {
			return nil, fmt.Errorf("invalid consul lease URL: %w", err)
		}
		config := consul.DefaultConfig()
		if u.Host != "" {
			config.Address = u.Host
		}
		client, err := consul.NewClient(config)
		if err != nil {
			return nil, err
		}
		return NewConsulLocker(client, "quic-interop/lease/", DefaultTTL), nil
	default:
		return nil, fmt.Errorf("unknown lease type %q", value)
	}
}

func once(f func() error) Release {
	var o sync.Once
	return func() error {
		var err error
		o.Do(func() { err = f() })
		return err
	}
}
