package cache

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/lonmstalker/advert-market-settlement/internal/domain"
	"github.com/redis/go-redis/v9"
)

const (
	balanceKeyPrefix    = "settlement:balance:"
	generationKeyPrefix = "settlement:balance-gen:"

	// Outlives any read that could still hold an older generation.
	generationTTL = 24 * time.Hour
)

// Sets the balance only while the generation key still holds ARGV[2].
// A missing generation key counts as 0. ARGV[3] is the TTL in ms, 0 for none.
var putScript = redis.NewScript(`
local gen = redis.call("GET", KEYS[2]) or "0"
if gen ~= ARGV[2] then
	return 0
end
if ARGV[3] == "0" then
	redis.call("SET", KEYS[1], ARGV[1])
else
	redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[3])
end
return 1
`)

type RedisBalanceCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisBalanceCache(client *redis.Client, ttl time.Duration) *RedisBalanceCache {
	return &RedisBalanceCache{client: client, ttl: ttl}
}

// Both keys of an account share a hash tag so the put script stays on one slot.
func balanceKey(account domain.AccountID) string {
	return balanceKeyPrefix + "{" + string(account) + "}"
}

func generationKey(account domain.AccountID) string {
	return generationKeyPrefix + "{" + string(account) + "}"
}

func (c *RedisBalanceCache) Get(ctx context.Context, account domain.AccountID) (domain.Nano, int64, bool, error) {
	vals, err := c.client.MGet(ctx, balanceKey(account), generationKey(account)).Result()
	if err != nil {
		return 0, 0, false, err
	}

	var gen int64
	if raw, ok := vals[1].(string); ok {
		if gen, err = strconv.ParseInt(raw, 10, 64); err != nil {
			return 0, 0, false, err
		}
	}
	raw, ok := vals[0].(string)
	if !ok {
		return 0, gen, false, nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		// Corrupt value: treat as a miss, the next Put overwrites it.
		return 0, gen, false, nil
	}
	return domain.Nano(n), gen, true, nil
}

func (c *RedisBalanceCache) Put(ctx context.Context, account domain.AccountID, balance domain.Nano, generation int64) (bool, error) {
	n, err := putScript.Run(ctx, c.client,
		[]string{balanceKey(account), generationKey(account)},
		strconv.FormatInt(int64(balance), 10),
		strconv.FormatInt(generation, 10),
		strconv.FormatInt(c.ttl.Milliseconds(), 10),
	).Int64()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (c *RedisBalanceCache) Evict(ctx context.Context, accounts ...domain.AccountID) error {
	if len(accounts) == 0 {
		return nil
	}
	_, err := c.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, a := range accounts {
			pipe.Incr(ctx, generationKey(a))
			pipe.Expire(ctx, generationKey(a), generationTTL)
			pipe.Del(ctx, balanceKey(a))
		}
		return nil
	})
	return err
}
