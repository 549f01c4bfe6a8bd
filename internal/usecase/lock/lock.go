package lock

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/lonmstalker/advert-market-settlement/internal/domain"
)

// WithLock runs action while holding key. It returns
// domain.ErrLockAcquisitionFailed without running action when the key is
// held elsewhere. The lock is released on every exit path, panics included.
func WithLock(ctx context.Context, l domain.DistributedLock, key string, ttl time.Duration, action func(ctx context.Context) error) error {
	token, acquired, err := l.TryLock(ctx, key, ttl)
	if err != nil {
		return fmt.Errorf("try lock %s: %w", key, err)
	}
	if !acquired {
		return fmt.Errorf("%w: %s", domain.ErrLockAcquisitionFailed, key)
	}

	defer func() {
		released, err := l.Unlock(context.WithoutCancel(ctx), key, token)
		if err != nil {
			slog.ErrorContext(ctx, "failed to release lock", "lock_key", key, "error", err)
			return
		}
		if !released {
			slog.WarnContext(ctx, "lock expired before release", "lock_key", key, "ttl", ttl)
		}
	}()

	return action(ctx)
}
