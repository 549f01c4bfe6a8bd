package memory

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/lonmstalker/advert-market-settlement/internal/domain"
)

type heldLock struct {
	token     string
	expiresAt time.Time
}

// Lock is a single-process domain.DistributedLock with an injectable clock.
type Lock struct {
	mu    sync.Mutex
	held  map[string]heldLock
	seq   int
	clock func() time.Time
}

func NewLock(clock func() time.Time) *Lock {
	if clock == nil {
		clock = time.Now
	}
	return &Lock{held: make(map[string]heldLock), clock: clock}
}

func (l *Lock) TryLock(_ context.Context, key string, ttl time.Duration) (string, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.clock()
	if h, ok := l.held[key]; ok && now.Before(h.expiresAt) {
		return "", false, nil
	}
	l.seq++
	token := "token-" + strconv.Itoa(l.seq)
	l.held[key] = heldLock{token: token, expiresAt: now.Add(ttl)}
	return token, true, nil
}

func (l *Lock) Unlock(_ context.Context, key, token string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	h, ok := l.held[key]
	if !ok || h.token != token {
		return false, nil
	}
	delete(l.held, key)
	return true, nil
}

var _ domain.DistributedLock = (*Lock)(nil)
