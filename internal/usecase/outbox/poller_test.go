package outbox

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/lonmstalker/advert-market-settlement/internal/domain"
	"github.com/lonmstalker/advert-market-settlement/internal/infrastructure/memory"
)

type stubPublisher struct {
	mu        sync.Mutex
	published map[string]int
	failFor   map[string]bool
}

func newStubPublisher() *stubPublisher {
	return &stubPublisher{published: map[string]int{}, failFor: map[string]bool{}}
}

func (p *stubPublisher) Publish(_ context.Context, entry domain.OutboxEntry) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.published[entry.ID]++
	if p.failFor[entry.ID] {
		return errors.New("broker unavailable")
	}
	return nil
}

func (p *stubPublisher) attempts(id string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.published[id]
}

type fixture struct {
	clock time.Time
	store *memory.Store
	repo  *memory.OutboxRepo
	pub   *stubPublisher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		clock: time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC),
		store: memory.NewStore(),
		pub:   newStubPublisher(),
	}
	f.repo = f.store.Outbox()
	return f
}

func (f *fixture) poller(maxRetries int) *Poller {
	p := NewPoller(f.repo, f.pub, PollerConfig{
		BatchSize:       10,
		MaxRetries:      maxRetries,
		VisibilityDelay: time.Second,
		ClaimTTL:        time.Minute,
		PublishTimeout:  time.Second,
	}, nil)
	p.now = func() time.Time { return f.clock }
	return p
}

func (f *fixture) save(t *testing.T, id string, createdAt time.Time) {
	t.Helper()
	err := f.repo.Save(context.Background(), &domain.OutboxEntry{
		ID: id, Topic: domain.TopicDealEvents, PartitionKey: "d1", Payload: []byte(`{}`), CreatedAt: createdAt,
	})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
}

func TestPollDeliversVisibleEntries(t *testing.T) {
	f := newFixture(t)
	f.save(t, "old", f.clock.Add(-time.Minute))
	f.save(t, "just-written", f.clock)

	stats, err := f.poller(3).Poll(context.Background())
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if stats.Claimed != 1 || stats.Delivered != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}
	e, _ := f.store.OutboxEntry("old")
	if e.Status != domain.OutboxDelivered || e.ProcessedAt == nil {
		t.Fatalf("entry not delivered: %+v", e)
	}
	if pending, _ := f.store.OutboxEntry("just-written"); pending.Status != domain.OutboxPending {
		t.Fatalf("entry inside visibility delay was claimed")
	}
}

func TestEntryFailsAfterMaxRetries(t *testing.T) {
	f := newFixture(t)
	f.save(t, "bad", f.clock.Add(-time.Minute))
	f.save(t, "good", f.clock.Add(-time.Minute))
	f.pub.failFor["bad"] = true
	p := f.poller(3)

	for i := 0; i < 5; i++ {
		if _, err := p.Poll(context.Background()); err != nil {
			t.Fatalf("poll %d: %v", i, err)
		}
	}

	bad, _ := f.store.OutboxEntry("bad")
	if bad.Status != domain.OutboxFailed || bad.RetryCount != 3 {
		t.Fatalf("expected FAILED after 3 attempts, got %+v", bad)
	}
	if n := f.pub.attempts("bad"); n != 3 {
		t.Fatalf("expected 3 publish attempts, got %d", n)
	}
	if good, _ := f.store.OutboxEntry("good"); good.Status != domain.OutboxDelivered {
		t.Fatalf("failing entry blocked the batch: %+v", good)
	}
	if n := f.pub.attempts("good"); n != 1 {
		t.Fatalf("delivered entry published %d times", n)
	}
}

func TestClaimIsExclusiveUntilExpiry(t *testing.T) {
	f := newFixture(t)
	for _, id := range []string{"a", "b", "c"} {
		f.save(t, id, f.clock.Add(-time.Minute))
	}
	claim := domain.OutboxClaim{
		BatchSize:          10,
		VisibleBefore:      f.clock,
		ClaimExpiredBefore: f.clock.Add(-time.Minute),
		Now:                f.clock,
	}

	var wg sync.WaitGroup
	results := make([][]domain.OutboxEntry, 4)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			entries, err := f.repo.FindPendingBatch(context.Background(), claim)
			if err != nil {
				t.Errorf("claim: %v", err)
			}
			results[i] = entries
		}(i)
	}
	wg.Wait()

	seen := map[string]int{}
	for _, batch := range results {
		for _, e := range batch {
			seen[e.ID]++
		}
	}
	if len(seen) != 3 {
		t.Fatalf("expected all 3 entries claimed, got %v", seen)
	}
	for id, n := range seen {
		if n != 1 {
			t.Fatalf("entry %s claimed %d times", id, n)
		}
	}

	// A stale claim is released after the TTL and the old claimant can no longer mark it.
	later := f.clock.Add(2 * time.Minute)
	reclaimed, err := f.repo.FindPendingBatch(context.Background(), domain.OutboxClaim{
		BatchSize: 10, VisibleBefore: later, ClaimExpiredBefore: later.Add(-time.Minute), Now: later,
	})
	if err != nil || len(reclaimed) != 3 {
		t.Fatalf("reclaim = %d entries, %v", len(reclaimed), err)
	}
	stale := results[0]
	for _, batch := range results {
		if len(batch) > 0 {
			stale = batch
			break
		}
	}
	if err := f.repo.MarkDelivered(context.Background(), stale[0].ID, stale[0].Version, later); !errors.Is(err, domain.ErrVersionConflict) {
		t.Fatalf("expected stale claim to be rejected, got %v", err)
	}
}
