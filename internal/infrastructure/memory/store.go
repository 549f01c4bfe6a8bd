// Package memory is an in-process implementation of every persistence port.
// Transactions are serialized by one mutex and rolled back by restoring a
// snapshot, so it reproduces all-or-nothing semantics without Postgres.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/lonmstalker/advert-market-settlement/internal/domain"
)

type txKey struct{}

type unitOfWork struct {
	afterCommit []func()
}

func (u *unitOfWork) AfterCommit(fn func()) {
	u.afterCommit = append(u.afterCommit, fn)
}

type state struct {
	balances map[domain.AccountID]domain.AccountBalance
	entries  []domain.LedgerEntry
	idem     map[string]string
	deals    map[string]domain.Deal
	events   []domain.DealEventRecord
	outbox   map[string]domain.OutboxEntry
	tonTxs   map[string]domain.TonTransaction
	entrySeq int64
	eventSeq int64
}

func newState() *state {
	return &state{
		balances: make(map[domain.AccountID]domain.AccountBalance),
		idem:     make(map[string]string),
		deals:    make(map[string]domain.Deal),
		outbox:   make(map[string]domain.OutboxEntry),
		tonTxs:   make(map[string]domain.TonTransaction),
	}
}

func (s *state) clone() *state {
	c := &state{
		balances: make(map[domain.AccountID]domain.AccountBalance, len(s.balances)),
		entries:  append([]domain.LedgerEntry(nil), s.entries...),
		idem:     make(map[string]string, len(s.idem)),
		deals:    make(map[string]domain.Deal, len(s.deals)),
		events:   append([]domain.DealEventRecord(nil), s.events...),
		outbox:   make(map[string]domain.OutboxEntry, len(s.outbox)),
		tonTxs:   make(map[string]domain.TonTransaction, len(s.tonTxs)),
		entrySeq: s.entrySeq,
		eventSeq: s.eventSeq,
	}
	for k, v := range s.balances {
		c.balances[k] = v
	}
	for k, v := range s.idem {
		c.idem[k] = v
	}
	for k, v := range s.deals {
		c.deals[k] = v
	}
	for k, v := range s.outbox {
		c.outbox[k] = v
	}
	for k, v := range s.tonTxs {
		c.tonTxs[k] = v
	}
	return c
}

// Store holds all tables. The zero value is not usable; call NewStore.
type Store struct {
	mu    sync.Mutex
	st    *state
	clock func() time.Time
}

func NewStore() *Store {
	return &Store{st: newState(), clock: time.Now}
}

// SetClock replaces the time source used for timestamps.
func (s *Store) SetClock(clock func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clock = clock
}

func (s *Store) now() time.Time {
	return s.clock().UTC()
}

// Do implements domain.TxManager.
func (s *Store) Do(ctx context.Context, fn func(ctx context.Context, uow domain.UnitOfWork) error) error {
	if uow, ok := ctx.Value(txKey{}).(*unitOfWork); ok {
		return fn(ctx, uow)
	}

	uow := &unitOfWork{}
	s.mu.Lock()
	snapshot := s.st.clone()
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				s.st = snapshot
				s.mu.Unlock()
				panic(r)
			}
		}()
		return fn(context.WithValue(ctx, txKey{}, uow), uow)
	}()
	if err != nil {
		s.st = snapshot
		s.mu.Unlock()
		return err
	}
	s.mu.Unlock()

	for _, cb := range uow.afterCommit {
		cb()
	}
	return nil
}

// read runs fn with the store locked unless ctx already holds the transaction.
func (s *Store) read(ctx context.Context, fn func(st *state) error) error {
	if _, ok := ctx.Value(txKey{}).(*unitOfWork); ok {
		return fn(s.st)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.st)
}

// Inspection helpers for tests.

func (s *Store) EntryCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.st.entries)
}

func (s *Store) Events(dealID string) []domain.DealEventRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.DealEventRecord
	for _, e := range s.st.events {
		if e.DealID == dealID {
			out = append(out, e)
		}
	}
	return out
}

func (s *Store) OutboxEntries() []domain.OutboxEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.OutboxEntry, 0, len(s.st.outbox))
	for _, e := range s.st.outbox {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (s *Store) OutboxEntry(id string) (domain.OutboxEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.st.outbox[id]
	return e, ok
}
