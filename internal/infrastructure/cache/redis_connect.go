package cache

import (
	"context"
	"fmt"
	"strings"

	"github.com/lonmstalker/advert-market-settlement/internal/config"
	"github.com/redis/go-redis/v9"
)

// Connect builds a client from a redis:// URL or a host:port address and
// checks it with PING.
func Connect(ctx context.Context, cfg config.Redis) (*redis.Client, error) {
	var client *redis.Client
	if strings.HasPrefix(cfg.Addr, "redis://") || strings.HasPrefix(cfg.Addr, "rediss://") {
		opt, err := redis.ParseURL(cfg.Addr)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		client = redis.NewClient(opt)
	} else {
		client = redis.NewClient(&redis.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		})
	}

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}
