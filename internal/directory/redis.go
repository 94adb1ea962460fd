package directory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// KeyPrefix namespaces presence keys: pong:presence:<player_id>.
	KeyPrefix = "pong:presence:"

	// DefaultTTL bounds how long a binding survives a crashed instance.
	DefaultTTL = 2 * time.Minute

	// DefaultTimeout bounds every Redis round trip made from the hub loop.
	DefaultTimeout = 200 * time.Millisecond
)

// KEYS[1]: presence key
// ARGV[1]: connection id expected to own the key
var unregisterScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
	return redis.call('DEL', KEYS[1])
end
return 0
`)

// KEYS[1]: presence key
// ARGV[1]: connection id
// ARGV[2]: ttl in milliseconds
var refreshScript = redis.NewScript(`
local cur = redis.call('GET', KEYS[1])
if not cur then
	return -1
end
if cur == ARGV[1] then
	return redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
return 0
`)

// Redis is a directory shared through Redis. Bindings expire after TTL
// unless refreshed.
type Redis struct {
	client  redis.UniversalClient
	ttl     time.Duration
	timeout time.Duration
}

// NewRedis creates a Redis-backed directory. Zero durations select the
// defaults.
func NewRedis(client redis.UniversalClient, ttl, timeout time.Duration) *Redis {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Redis{client: client, ttl: ttl, timeout: timeout}
}

func key(playerID string) string { return KeyPrefix + playerID }

// Register binds playerID to connID and resets the TTL.
func (r *Redis) Register(ctx context.Context, playerID, connID string) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	if err := r.client.Set(ctx, key(playerID), connID, r.ttl).Err(); err != nil {
		return fmt.Errorf("register %s: %w", playerID, err)
	}
	return nil
}

// Unregister deletes the binding if it still points at connID.
func (r *Redis) Unregister(ctx context.Context, playerID, connID string) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	if err := unregisterScript.Run(ctx, r.client, []string{key(playerID)}, connID).Err(); err != nil {
		return fmt.Errorf("unregister %s: %w", playerID, err)
	}
	return nil
}

// Refresh extends connID's binding. A binding held by another connection,
// possibly on another instance, is left untouched.
func (r *Redis) Refresh(ctx context.Context, playerID, connID string) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	n, err := refreshScript.Run(ctx, r.client, []string{key(playerID)}, connID, r.ttl.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("refresh %s: %w", playerID, err)
	}
	if n < 0 {
		return ErrNotFound
	}
	return nil
}

// Resolve returns the connection bound to playerID.
func (r *Redis) Resolve(ctx context.Context, playerID string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	conn, err := r.client.Get(ctx, key(playerID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", playerID, err)
	}
	return conn, nil
}

// Ping checks connectivity.
func (r *Redis) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	return r.client.Ping(ctx).Err()
}
