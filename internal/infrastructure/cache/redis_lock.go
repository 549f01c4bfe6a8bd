package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jaevor/go-nanoid"
	"github.com/redis/go-redis/v9"
)

const lockKeyPrefix = "settlement:lock:"

// Deletes the key only while it still holds the caller's token.
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLock is a single-instance Redis lock: SET NX PX to acquire and a
// compare-and-delete script to release.
type RedisLock struct {
	client   *redis.Client
	newToken func() string
}

func NewRedisLock(client *redis.Client) (*RedisLock, error) {
	gen, err := nanoid.Standard(21)
	if err != nil {
		return nil, fmt.Errorf("init lock token generator: %w", err)
	}
	return &RedisLock{client: client, newToken: gen}, nil
}

func (l *RedisLock) TryLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	token := l.newToken()
	err := l.client.SetArgs(ctx, lockKeyPrefix+key, token, redis.SetArgs{Mode: "NX", TTL: ttl}).Err()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return token, true, nil
}

func (l *RedisLock) Unlock(ctx context.Context, key, token string) (bool, error) {
	n, err := unlockScript.Run(ctx, l.client, []string{lockKeyPrefix + key}, token).Int64()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
