package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// releaseScript deletes the marker only while it still carries the caller's token.
var releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// InFlightGuard implements ports.InFlightGuard using Redis SET NX.
// The TTL bounds how long a crashed request can block its reference.
type InFlightGuard struct {
	client *goredis.Client
	prefix string
}

// NewInFlightGuard creates a new Redis-backed in-flight guard.
func NewInFlightGuard(client *goredis.Client) *InFlightGuard {
	return &InFlightGuard{
		client: client,
		prefix: "inflight:",
	}
}

// Acquire atomically claims key under token. Returns false if another request holds it.
func (g *InFlightGuard) Acquire(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	result, err := g.client.SetArgs(ctx, g.prefix+key, token, goredis.SetArgs{
		Mode: "NX",
		TTL:  ttl,
	}).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("redis inflight acquire: %w", err)
	}
	return result == "OK", nil
}

// Release drops the claim on key if it is still held under token. A marker that
// expired and was re-acquired by another request is left alone.
func (g *InFlightGuard) Release(ctx context.Context, key, token string) error {
	if err := releaseScript.Run(ctx, g.client, []string{g.prefix + key}, token).Err(); err != nil {
		return fmt.Errorf("redis inflight release: %w", err)
	}
	return nil
}
