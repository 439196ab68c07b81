package retention

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the lock key only when the stored owner token
// matches, so a holder whose TTL lapsed cannot release a successor's lock.
var releaseScript = redis.NewScript(`
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("DEL", KEYS[1])
	end
	return 0
`)

// RedisLock is the multi-instance JobLock built on SET NX PX. The TTL
// bounds how long a crashed holder can block the next run.
type RedisLock struct {
	client redisLockClient
}

// redisLockClient is the slice of the go-redis API the lock needs; satisfied
// by *redis.Client and by miniature test doubles alike.
type redisLockClient interface {
	redis.Scripter
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd
}

func NewRedisLock(client redisLockClient) *RedisLock {
	return &RedisLock{client: client}
}

func (l *RedisLock) Acquire(ctx context.Context, name string, ttl time.Duration) (Release, bool, error) {
	key := "tally:lock:" + name
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("acquire lock %s: %w", name, err)
	}
	if !ok {
		return nil, false, nil
	}

	release := func(ctx context.Context) error {
		if err := releaseScript.Run(ctx, l.client, []string{key}, token).Err(); err != nil && err != redis.Nil {
			return fmt.Errorf("release lock %s: %w", name, err)
		}
		return nil
	}
	return release, true, nil
}
