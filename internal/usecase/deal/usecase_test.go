package deal

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/lonmstalker/advert-market-settlement/internal/domain"
	"github.com/lonmstalker/advert-market-settlement/internal/infrastructure/memory"
	"github.com/lonmstalker/advert-market-settlement/internal/usecase/escrow"
	"github.com/lonmstalker/advert-market-settlement/internal/usecase/ledger"
)

type fixture struct {
	store  *memory.Store
	deals  domain.DealRepository
	escrow *escrow.DefaultEscrowUsecase
	uc     *DefaultDealUsecase
}

func newFixture(t *testing.T, wrap func(*memory.DealRepo) domain.DealRepository) *fixture {
	t.Helper()
	store := memory.NewStore()
	var deals domain.DealRepository = store.Deals()
	if wrap != nil {
		deals = wrap(store.Deals())
	}
	ledgerUc := ledger.NewDefaultLedgerUsecase(store, store.Ledger(), memory.NewBalanceCache(), nil)
	escrowUc := escrow.NewDefaultEscrowUsecase(store, ledgerUc, nil, store.TonTxs(), deals, 1)
	uc := NewDefaultDealUsecase(store, deals, store.Outbox(), escrowUc, ledgerUc, nil)
	return &fixture{store: store, deals: deals, escrow: escrowUc, uc: uc}
}

func (f *fixture) seed(t *testing.T, id string, status domain.DealStatus, amount domain.Nano) {
	t.Helper()
	err := f.store.Deals().Create(context.Background(), &domain.Deal{
		ID:               id,
		Status:           status,
		Version:          3,
		AdvertiserID:     "adv",
		OwnerID:          "owner",
		AmountNano:       amount,
		CommissionRateBp: 1000,
	})
	if err != nil {
		t.Fatalf("seed deal: %v", err)
	}
}

func (f *fixture) balance(t *testing.T, account domain.AccountID) domain.Nano {
	t.Helper()
	b, err := f.store.Ledger().GetBalance(context.Background(), account)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	return b
}

func (f *fixture) to(t *testing.T, dealID string, target domain.DealStatus) domain.TransitionResult {
	t.Helper()
	res, err := f.uc.Transition(context.Background(), domain.TransitionCommand{
		DealID: dealID, TargetStatus: target, ActorID: "u1", ActorType: domain.ActorUser,
	})
	if err != nil {
		t.Fatalf("transition to %s: %v", target, err)
	}
	return res
}

func TestFullLifecycleReleasesEscrow(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	deal := &domain.Deal{AdvertiserID: "adv", OwnerID: "owner", AmountNano: 2_000, CommissionRateBp: 1000}
	if err := f.uc.Create(ctx, deal); err != nil {
		t.Fatalf("create: %v", err)
	}

	f.to(t, deal.ID, domain.DealOfferPending)
	f.to(t, deal.ID, domain.DealAwaitingPayment)
	dep, err := f.uc.OnDepositConfirmed(ctx, escrow.DepositConfirmation{DealID: deal.ID, TxHash: "h1", AmountNano: 2_000, Confirmations: 1})
	if err != nil || dep.Outcome != DepositFunded {
		t.Fatalf("deposit = %+v, %v", dep, err)
	}
	f.to(t, deal.ID, domain.DealCreativeApproved)
	f.to(t, deal.ID, domain.DealScheduled)
	if _, err := f.uc.OnPublished(ctx, deal.ID, "msg-1", "sha256:abc"); err != nil {
		t.Fatalf("published: %v", err)
	}
	res, err := f.uc.OnDeliveryVerified(ctx, deal.ID, nil)
	if err != nil {
		t.Fatalf("delivery verified: %v", err)
	}
	if res.Outcome != domain.TransitionSucceeded || res.Status != domain.DealCompletedReleased || res.Version != 7 {
		t.Fatalf("unexpected result %+v", res)
	}

	if got := f.balance(t, domain.EscrowAccount(deal.ID)); got != 0 {
		t.Fatalf("escrow = %d", got)
	}
	if got := f.balance(t, domain.CommissionAccount(deal.ID)); got != 200 {
		t.Fatalf("commission = %d, want 200", got)
	}
	if got := f.balance(t, domain.OwnerPendingAccount("owner")); got != 1_800 {
		t.Fatalf("owner pending = %d, want 1800", got)
	}

	stored, _ := f.deals.GetByID(ctx, deal.ID)
	if stored.PublishedMessageID != "msg-1" || stored.ContentHash != "sha256:abc" {
		t.Fatalf("publication not stored: %+v", stored)
	}
	if n := len(f.store.Events(deal.ID)); n != 7 {
		t.Fatalf("expected 7 events, got %d", n)
	}
	if n := len(f.store.OutboxEntries()); n != 7 {
		t.Fatalf("expected 7 outbox entries, got %d", n)
	}
}

func TestAlreadyInTargetWritesNothing(t *testing.T) {
	f := newFixture(t, nil)
	f.seed(t, "d1", domain.DealFunded, 1_000)

	res := f.to(t, "d1", domain.DealFunded)
	if res.Outcome != domain.TransitionAlreadyInTarget || res.Status != domain.DealFunded || res.Version != 3 {
		t.Fatalf("unexpected result %+v", res)
	}
	if len(f.store.Events("d1")) != 0 || len(f.store.OutboxEntries()) != 0 {
		t.Fatalf("no-op transition wrote records")
	}
}

func TestInvalidTransitionIsRejected(t *testing.T) {
	f := newFixture(t, nil)
	f.seed(t, "d1", domain.DealDraft, 1_000)
	f.seed(t, "d2", domain.DealCancelled, 1_000)

	cases := []struct {
		dealID string
		target domain.DealStatus
		from   domain.DealStatus
	}{
		{"d1", domain.DealFunded, domain.DealDraft},
		{"d2", domain.DealExpired, domain.DealCancelled},
		{"d2", domain.DealOfferPending, domain.DealCancelled},
	}
	for _, tc := range cases {
		_, err := f.uc.Transition(context.Background(), domain.TransitionCommand{DealID: tc.dealID, TargetStatus: tc.target, ActorType: domain.ActorSystem})
		var invalid *domain.InvalidStateTransitionError
		if !errors.As(err, &invalid) {
			t.Fatalf("%s -> %s: expected InvalidStateTransitionError, got %v", tc.from, tc.target, err)
		}
		if invalid.Entity != "deal" || invalid.From != tc.from || invalid.To != tc.target {
			t.Fatalf("unexpected error details %+v", invalid)
		}
	}
	if len(f.store.OutboxEntries()) != 0 {
		t.Fatalf("rejected transitions wrote outbox entries")
	}
}

// racingDeals lets another writer win the CAS between the read and the
// update of the transition under test.
type racingDeals struct {
	*memory.DealRepo
	winner domain.DealStatus
	fired  bool
}

func (r *racingDeals) GetByID(ctx context.Context, dealID string) (*domain.Deal, error) {
	d, err := r.DealRepo.GetByID(ctx, dealID)
	if err != nil || r.fired {
		return d, err
	}
	r.fired = true
	_, err = r.DealRepo.CompareAndSwapStatus(ctx, domain.DealCAS{
		DealID:          dealID,
		ExpectedStatus:  d.Status,
		ExpectedVersion: d.Version,
		NewStatus:       r.winner,
		At:              time.Now(),
	})
	return d, err
}

func racingWith(winner domain.DealStatus) func(*memory.DealRepo) domain.DealRepository {
	return func(repo *memory.DealRepo) domain.DealRepository {
		return &racingDeals{DealRepo: repo, winner: winner}
	}
}

func TestLostRaceToDifferentTargetIsConflict(t *testing.T) {
	f := newFixture(t, racingWith(domain.DealDisputed))
	f.seed(t, "d1", domain.DealPublished, 1_000)
	f.store.Ledger().SetBalance(domain.EscrowAccount("d1"), 1_000)

	_, err := f.uc.Transition(context.Background(), domain.TransitionCommand{
		DealID: "d1", TargetStatus: domain.DealCompletedReleased, ActorType: domain.ActorSystem,
	})
	if !errors.Is(err, domain.ErrVersionConflict) || !IsRetryable(err) {
		t.Fatalf("expected version conflict, got %v", err)
	}
	if got := f.balance(t, domain.OwnerPendingAccount("owner")); got != 0 {
		t.Fatalf("losing transition released escrow: %d", got)
	}
	if len(f.store.Events("d1")) != 0 || len(f.store.OutboxEntries()) != 0 {
		t.Fatalf("losing transition wrote records")
	}
}

func TestLostRaceToSameTargetIsAlreadyInTarget(t *testing.T) {
	f := newFixture(t, racingWith(domain.DealDisputed))
	f.seed(t, "d1", domain.DealPublished, 1_000)

	res, err := f.uc.OnDeliveryFailed(context.Background(), "d1", "post deleted")
	if err != nil {
		t.Fatalf("transition: %v", err)
	}
	if res.Outcome != domain.TransitionAlreadyInTarget || res.Status != domain.DealDisputed || res.Version != 4 {
		t.Fatalf("unexpected result %+v", res)
	}
	if len(f.store.Events("d1")) != 0 || len(f.store.OutboxEntries()) != 0 {
		t.Fatalf("losing transition wrote records")
	}
}

func TestCancelFundedDealRefunds(t *testing.T) {
	f := newFixture(t, nil)
	f.seed(t, "d1", domain.DealScheduled, 1_000)
	f.store.Ledger().SetBalance(domain.EscrowAccount("d1"), 1_000)

	res, err := f.uc.Cancel(context.Background(), "d1", "adv", "changed plans")
	if err != nil || res.Status != domain.DealCancelled {
		t.Fatalf("cancel = %+v, %v", res, err)
	}
	if got := f.balance(t, domain.EscrowAccount("d1")); got != 0 {
		t.Fatalf("escrow = %d, want 0", got)
	}
	if got := f.balance(t, domain.AccountExternalTON); got != 1_000 {
		t.Fatalf("external = %d, want 1000", got)
	}

	events := f.store.Events("d1")
	if len(events) != 1 || events[0].ActorID != "adv" || events[0].ActorType != domain.ActorUser {
		t.Fatalf("unexpected events %+v", events)
	}
}

func TestCancelUnfundedDealHasNoLedgerEffect(t *testing.T) {
	f := newFixture(t, nil)
	f.seed(t, "d1", domain.DealNegotiating, 1_000)

	if _, err := f.uc.Cancel(context.Background(), "d1", "owner", ""); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if f.store.EntryCount() != 0 {
		t.Fatalf("unfunded cancel touched the ledger")
	}
}

func TestPartialReleaseSplitsSettlement(t *testing.T) {
	f := newFixture(t, nil)
	f.seed(t, "d1", domain.DealDisputed, 1_000)
	f.store.Ledger().SetBalance(domain.EscrowAccount("d1"), 1_000)
	ctx := context.Background()

	_, err := f.uc.OnDeliveryVerified(ctx, "d1", &domain.PartialAmounts{ReleaseNano: 600, RefundNano: 300})
	if !errors.Is(err, domain.ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount for uncovered amount, got %v", err)
	}

	if _, err := f.uc.OnDeliveryVerified(ctx, "d1", &domain.PartialAmounts{ReleaseNano: 600, RefundNano: 400}); err != nil {
		t.Fatalf("partial release: %v", err)
	}
	if got := f.balance(t, domain.OwnerPendingAccount("owner")); got != 540 {
		t.Fatalf("owner pending = %d, want 540", got)
	}
	if got := f.balance(t, domain.CommissionAccount("d1")); got != 60 {
		t.Fatalf("commission = %d, want 60", got)
	}
	if got := f.balance(t, domain.EscrowAccount("d1")); got != 0 {
		t.Fatalf("escrow = %d, want 0", got)
	}
}

func TestSplitDepositWithOverpayment(t *testing.T) {
	f := newFixture(t, nil)
	f.seed(t, "d1", domain.DealAwaitingPayment, 1_000)
	ctx := context.Background()

	first := escrow.DepositConfirmation{DealID: "d1", TxHash: "h1", AmountNano: 400, Confirmations: 1}
	res, err := f.uc.OnDepositConfirmed(ctx, first)
	if err != nil || res.Outcome != DepositPartial || res.MissingNano != 600 {
		t.Fatalf("first deposit = %+v, %v", res, err)
	}
	res, err = f.uc.OnDepositConfirmed(ctx, first)
	if err != nil || res.Outcome != DepositDuplicate {
		t.Fatalf("redelivered deposit = %+v, %v", res, err)
	}

	res, err = f.uc.OnDepositConfirmed(ctx, escrow.DepositConfirmation{DealID: "d1", TxHash: "h2", AmountNano: 700, Confirmations: 1})
	if err != nil {
		t.Fatalf("second deposit: %v", err)
	}
	if res.Outcome != DepositOverpaid || res.RefundedNano != 100 || res.Status != domain.DealFunded {
		t.Fatalf("second deposit = %+v", res)
	}
	if got := f.balance(t, domain.EscrowAccount("d1")); got != 1_000 {
		t.Fatalf("escrow = %d, want 1000", got)
	}

	var topics []string
	for _, e := range f.store.OutboxEntries() {
		topics = append(topics, e.Topic)
	}
	if len(topics) != 3 {
		t.Fatalf("expected partial notice, funded event and overpayment notice, got %v", topics)
	}
}

func TestLeavingAwaitingPaymentRefundsPartialDeposits(t *testing.T) {
	tests := []struct {
		name   string
		leave  func(uc *DefaultDealUsecase) (domain.TransitionResult, error)
		status domain.DealStatus
	}{
		{
			name: "deposit failed",
			leave: func(uc *DefaultDealUsecase) (domain.TransitionResult, error) {
				return uc.OnDepositFailed(context.Background(), "d1", "timeout")
			},
			status: domain.DealExpired,
		},
		{
			name: "cancelled",
			leave: func(uc *DefaultDealUsecase) (domain.TransitionResult, error) {
				return uc.Cancel(context.Background(), "d1", "adv", "changed plans")
			},
			status: domain.DealCancelled,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)
			f.seed(t, "d1", domain.DealAwaitingPayment, 1_000)
			ctx := context.Background()

			first := escrow.DepositConfirmation{DealID: "d1", TxHash: "h1", AmountNano: 400, Confirmations: 1}
			if res, err := f.uc.OnDepositConfirmed(ctx, first); err != nil || res.Outcome != DepositPartial {
				t.Fatalf("partial deposit = %+v, %v", res, err)
			}
			if _, err := f.uc.OnDepositConfirmed(ctx, escrow.DepositConfirmation{DealID: "d1", TxHash: "h2", AmountNano: 250, Confirmations: 1}); err != nil {
				t.Fatalf("second partial deposit: %v", err)
			}

			res, err := tt.leave(f.uc)
			if err != nil || res.Status != tt.status {
				t.Fatalf("leave = %+v, %v", res, err)
			}
			if got := f.balance(t, domain.EscrowAccount("d1")); got != 0 {
				t.Fatalf("escrow = %d, want 0", got)
			}
			if got := f.balance(t, domain.AccountExternalTON); got != 0 {
				t.Fatalf("external = %d, want 0", got)
			}

			entries, err := f.uc.Ledger.GetEntriesByDeal(ctx, "d1")
			if err != nil {
				t.Fatalf("entries: %v", err)
			}
			var refunded bool
			for _, e := range entries {
				if e.IdempotencyKey == domain.PartialRefundKey("d1") && e.AccountID == domain.EscrowAccount("d1") && e.DebitNano == 650 {
					refunded = true
				}
			}
			if !refunded {
				t.Fatalf("expected a 650 partial refund, got %+v", entries)
			}

			again, err := f.uc.OnDepositConfirmed(ctx, first)
			if err != nil || again.Outcome != DepositDuplicate {
				t.Fatalf("redelivered deposit = %+v, %v", again, err)
			}
			if got := f.balance(t, domain.EscrowAccount("d1")); got != 0 {
				t.Fatalf("escrow after redelivery = %d, want 0", got)
			}
		})
	}
}

func TestDepositAfterFundingIsRefunded(t *testing.T) {
	f := newFixture(t, nil)
	f.seed(t, "d1", domain.DealAwaitingPayment, 1_000)
	ctx := context.Background()

	if res, err := f.uc.OnDepositConfirmed(ctx, escrow.DepositConfirmation{DealID: "d1", TxHash: "h1", AmountNano: 1_000, Confirmations: 1}); err != nil || res.Outcome != DepositFunded {
		t.Fatalf("funding deposit = %+v, %v", res, err)
	}
	outboxBefore := len(f.store.OutboxEntries())

	late := escrow.DepositConfirmation{DealID: "d1", TxHash: "h2", AmountNano: 700, Confirmations: 1}
	res, err := f.uc.OnDepositConfirmed(ctx, late)
	if err != nil {
		t.Fatalf("late deposit: %v", err)
	}
	if res.Outcome != DepositOverpaid || res.RefundedNano != 700 || res.Status != domain.DealFunded {
		t.Fatalf("late deposit = %+v", res)
	}
	if got := f.balance(t, domain.EscrowAccount("d1")); got != 1_000 {
		t.Fatalf("escrow = %d, want 1000", got)
	}
	if got := f.balance(t, domain.AccountExternalTON); got != -1_000 {
		t.Fatalf("external = %d, want -1000", got)
	}
	if n := len(f.store.OutboxEntries()) - outboxBefore; n != 1 {
		t.Fatalf("expected one overpayment notice, got %d", n)
	}

	entryCount := f.store.EntryCount()
	res, err = f.uc.OnDepositConfirmed(ctx, late)
	if err != nil || res.Outcome != DepositDuplicate {
		t.Fatalf("redelivered late deposit = %+v, %v", res, err)
	}
	if f.store.EntryCount() != entryCount {
		t.Fatalf("redelivery wrote ledger entries")
	}
}

func TestDepositOnEndedDealIsRefunded(t *testing.T) {
	f := newFixture(t, nil)
	f.seed(t, "d1", domain.DealCancelled, 1_000)

	res, err := f.uc.OnDepositConfirmed(context.Background(), escrow.DepositConfirmation{DealID: "d1", TxHash: "h9", AmountNano: 1_000, Confirmations: 1})
	if err != nil {
		t.Fatalf("deposit on cancelled deal: %v", err)
	}
	if res.Outcome != DepositOverpaid || res.RefundedNano != 1_000 || res.Status != domain.DealCancelled {
		t.Fatalf("deposit = %+v", res)
	}
	if got := f.balance(t, domain.EscrowAccount("d1")); got != 0 {
		t.Fatalf("escrow = %d, want 0", got)
	}
	if got := f.balance(t, domain.AccountExternalTON); got != 0 {
		t.Fatalf("external = %d, want 0", got)
	}
}

func TestDepositBeforePaymentRequestIsRejected(t *testing.T) {
	f := newFixture(t, nil)
	f.seed(t, "d1", domain.DealNegotiating, 1_000)

	_, err := f.uc.OnDepositConfirmed(context.Background(), escrow.DepositConfirmation{DealID: "d1", TxHash: "h1", AmountNano: 1_000, Confirmations: 1})
	var invalid *domain.InvalidStateTransitionError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidStateTransitionError, got %v", err)
	}
	if f.store.EntryCount() != 0 {
		t.Fatalf("rejected deposit touched the ledger")
	}
}

func TestExpireTimedOutDeals(t *testing.T) {
	f := newFixture(t, nil)
	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	f.store.SetClock(func() time.Time { return base })
	f.seed(t, "old", domain.DealAwaitingPayment, 1_000)
	f.seed(t, "funded", domain.DealFunded, 1_000)
	f.store.Ledger().SetBalance(domain.EscrowAccount("funded"), 1_000)

	f.store.SetClock(func() time.Time { return base.Add(2 * time.Hour) })
	f.seed(t, "fresh", domain.DealAwaitingPayment, 1_000)

	f.uc.now = func() time.Time { return base.Add(3 * time.Hour) }
	n, err := f.uc.ExpireTimedOut(context.Background(), TimeoutPolicy{
		Timeouts: map[domain.DealStatus]time.Duration{
			domain.DealAwaitingPayment: 2 * time.Hour,
			domain.DealFunded:          2 * time.Hour,
		},
		Grace:     30 * time.Minute,
		BatchSize: 10,
	})
	if err != nil {
		t.Fatalf("expire: %v", err)
	}
	if n != 2 {
		t.Fatalf("expired %d deals, want 2", n)
	}
	for id, want := range map[string]domain.DealStatus{"old": domain.DealExpired, "funded": domain.DealExpired, "fresh": domain.DealAwaitingPayment} {
		d, _ := f.deals.GetByID(context.Background(), id)
		if d.Status != want {
			t.Fatalf("deal %s status = %s, want %s", id, d.Status, want)
		}
	}
	if got := f.balance(t, domain.EscrowAccount("funded")); got != 0 {
		t.Fatalf("expired funded deal not refunded: %d", got)
	}
}

type countingWallet struct {
	calls int
}

func (w *countingWallet) GenerateDepositAddress(_ context.Context, dealID string) (domain.DepositAddress, error) {
	w.calls++
	return domain.DepositAddress{Address: "UQ-" + dealID, SubwalletID: int64(w.calls)}, nil
}

func TestRequestPaymentIssuesAddressOnce(t *testing.T) {
	f := newFixture(t, nil)
	wallet := &countingWallet{}
	f.escrow.Wallet = wallet
	f.seed(t, "d1", domain.DealOfferPending, 1_000)
	ctx := context.Background()

	res, err := f.uc.RequestPayment(ctx, "d1", "adv")
	if err != nil || res.Status != domain.DealAwaitingPayment {
		t.Fatalf("request payment = %+v, %v", res, err)
	}
	again, err := f.uc.RequestPayment(ctx, "d1", "adv")
	if err != nil || again.Outcome != domain.TransitionAlreadyInTarget {
		t.Fatalf("redelivery = %+v, %v", again, err)
	}

	if wallet.calls != 1 {
		t.Fatalf("wallet called %d times, want 1", wallet.calls)
	}
	stored, _ := f.deals.GetByID(ctx, "d1")
	if stored.DepositAddress != "UQ-d1" {
		t.Fatalf("deposit address = %q", stored.DepositAddress)
	}
}
