package resync

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const DefaultGuardKey = "connection:resync:lock"

// releaseScript deletes the lock only when it still holds our token, so an
// expired holder cannot release a newer run's lock.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// extendScript pushes the expiry out while our token still holds the lock.
var extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// RedisGuard is a single-holder lock with a TTL, shared by every instance
// pointed at the same Redis. While held, the lock is extended every third of
// the TTL, so a run longer than the TTL keeps it; the TTL only bounds how
// long a crashed holder blocks the next run.
type RedisGuard struct {
	client redis.UniversalClient
	key    string
	ttl    time.Duration
}

func NewRedisGuard(client redis.UniversalClient, key string, ttl time.Duration) (*RedisGuard, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if key == "" {
		key = DefaultGuardKey
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("guard ttl must be positive")
	}
	return &RedisGuard{client: client, key: key, ttl: ttl}, nil
}

func (g *RedisGuard) Acquire(ctx context.Context) (func(context.Context) error, bool, error) {
	token := uuid.NewString()
	ok, err := g.client.SetNX(ctx, g.key, token, g.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("set resync lock: %w", err)
	}
	if !ok {
		return nil, false, nil
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go g.keepAlive(context.WithoutCancel(ctx), token, stop, done)

	var once sync.Once
	release := func(ctx context.Context) error {
		once.Do(func() {
			close(stop)
			<-done
		})
		if err := releaseScript.Run(ctx, g.client, []string{g.key}, token).Err(); err != nil {
			return fmt.Errorf("release resync lock: %w", err)
		}
		return nil
	}
	return release, true, nil
}

// keepAlive extends the lock until stop closes or the lock is lost.
func (g *RedisGuard) keepAlive(ctx context.Context, token string, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(max(g.ttl/3, time.Millisecond))
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			held, err := extendScript.Run(ctx, g.client, []string{g.key}, token, g.ttl.Milliseconds()).Int()
			if err == nil && held == 0 {
				return
			}
		}
	}
}
