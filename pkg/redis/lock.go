package redis

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Lease is a coarse mutual-exclusion lease backed by Redis SET NX. It guards
// jobs that must never run twice concurrently (the training run). When Redis
// is disabled the lease degrades to an in-process try-lock, which is enough
// for single-instance deployments.
type Lease struct {
	client *Client
	prefix string

	mu    sync.Mutex
	local map[string]bool
}

// NewLease creates a lease helper with the given key prefix.
func NewLease(client *Client, prefix string) *Lease {
	return &Lease{
		client: client,
		prefix: prefix,
		local:  make(map[string]bool),
	}
}

// releaseScript deletes the key only if it still holds our token, so an
// expired lease cannot release a successor's.
var releaseScript = redis.NewScript(`
	if redis.call('GET', KEYS[1]) == ARGV[1] then
		return redis.call('DEL', KEYS[1])
	end
	return 0
`)

// Acquire attempts to take the named lease for ttl. It returns a release
// function on success and ok=false when another holder is active.
func (l *Lease) Acquire(ctx context.Context, name string, ttl time.Duration) (release func(), ok bool, err error) {
	if !l.client.Enabled() {
		return l.acquireLocal(name)
	}

	key := fmt.Sprintf("%s:lease:%s", l.prefix, name)
	token := uuid.NewString()

	set, err := l.client.Redis().SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("acquire lease %s: %w", name, err)
	}
	if !set {
		return nil, false, nil
	}

	release = func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_, _ = releaseScript.Run(ctx, l.client.Redis(), []string{key}, token).Result()
	}
	return release, true, nil
}

func (l *Lease) acquireLocal(name string) (func(), bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.local[name] {
		return nil, false, nil
	}
	l.local[name] = true

	release := func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.local, name)
	}
	return release, true, nil
}
