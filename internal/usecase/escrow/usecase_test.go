package escrow

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/lonmstalker/advert-market-settlement/internal/domain"
	"github.com/lonmstalker/advert-market-settlement/internal/infrastructure/memory"
	"github.com/lonmstalker/advert-market-settlement/internal/usecase/ledger"
)

type fakeWallet struct {
	calls int
	err   error
}

func (w *fakeWallet) GenerateDepositAddress(_ context.Context, dealID string) (domain.DepositAddress, error) {
	w.calls++
	if w.err != nil {
		return domain.DepositAddress{}, w.err
	}
	return domain.DepositAddress{Address: "UQ-deposit-" + dealID, SubwalletID: 7}, nil
}

type fixture struct {
	store  *memory.Store
	ledger *ledger.DefaultLedgerUsecase
	wallet *fakeWallet
	uc     *DefaultEscrowUsecase
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.NewStore()
	ledgerUc := ledger.NewDefaultLedgerUsecase(store, store.Ledger(), memory.NewBalanceCache(), nil)
	wallet := &fakeWallet{}
	uc := NewDefaultEscrowUsecase(store, ledgerUc, wallet, store.TonTxs(), store.Deals(), 3)
	if err := store.Deals().Create(context.Background(), &domain.Deal{
		ID: "d1", Status: domain.DealAwaitingPayment, OwnerID: "owner", AdvertiserID: "adv",
		AmountNano: 10 * domain.NanoPerTON, CommissionRateBp: 500,
	}); err != nil {
		t.Fatalf("seed deal: %v", err)
	}
	return &fixture{store: store, ledger: ledgerUc, wallet: wallet, uc: uc}
}

func (f *fixture) balance(t *testing.T, account domain.AccountID) domain.Nano {
	t.Helper()
	b, err := f.store.Ledger().GetBalance(context.Background(), account)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	return b
}

func TestReleaseSplitsCommission(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.store.Ledger().SetBalance(domain.EscrowAccount("d1"), 10_000_000_000)

	if _, err := f.uc.ReleaseEscrow(ctx, "d1", "owner", 10_000_000_000, 500); err != nil {
		t.Fatalf("release: %v", err)
	}

	if got := f.balance(t, domain.CommissionAccount("d1")); got != 500_000_000 {
		t.Fatalf("commission = %d, want 500000000", got)
	}
	if got := f.balance(t, domain.OwnerPendingAccount("owner")); got != 9_500_000_000 {
		t.Fatalf("owner pending = %d, want 9500000000", got)
	}
	if got := f.balance(t, domain.EscrowAccount("d1")); got != 0 {
		t.Fatalf("escrow = %d, want 0", got)
	}

	entries, _ := f.ledger.GetEntriesByDeal(ctx, "d1")
	if len(entries) != 3 {
		t.Fatalf("expected 3 legs, got %d", len(entries))
	}
	for _, e := range entries {
		if e.IdempotencyKey != "release:d1" {
			t.Fatalf("unexpected key %q", e.IdempotencyKey)
		}
	}
}

func TestReleaseIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first, err := f.uc.ReleaseEscrow(ctx, "d1", "owner", 1_000, 250)
	if err != nil {
		t.Fatalf("release: %v", err)
	}
	second, err := f.uc.ReleaseEscrow(ctx, "d1", "owner", 1_000, 250)
	if err != nil || second != first {
		t.Fatalf("second release = %s, %v", second, err)
	}
	if got := f.balance(t, domain.OwnerPendingAccount("owner")); got != 975 {
		t.Fatalf("owner pending = %d, want 975", got)
	}
}

func TestDepositLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	addr, err := f.uc.GenerateDepositAddress(ctx, "d1", 1_000)
	if err != nil {
		t.Fatalf("generate address: %v", err)
	}
	deal, _ := f.store.Deals().GetByID(ctx, "d1")
	if deal.DepositAddress != addr || deal.SubwalletID != 7 {
		t.Fatalf("deal address not stored: %+v", deal)
	}
	pending, err := f.store.TonTxs().FindPendingInbound(ctx, "d1")
	if err != nil {
		t.Fatalf("pending tx: %v", err)
	}
	if f.store.EntryCount() != 0 {
		t.Fatalf("address issuance touched the ledger")
	}

	in := DepositConfirmation{DealID: "d1", TxHash: "h1", AmountNano: 1_000, Confirmations: 1, FromAddress: "UQ-payer"}
	if _, err := f.uc.ConfirmDeposit(ctx, in); !errors.Is(err, domain.ErrNotEnoughConfirmations) {
		t.Fatalf("expected ErrNotEnoughConfirmations, got %v", err)
	}
	if f.store.EntryCount() != 0 {
		t.Fatalf("unconfirmed deposit touched the ledger")
	}

	in.Confirmations = 3
	ref, err := f.uc.ConfirmDeposit(ctx, in)
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	again, err := f.uc.ConfirmDeposit(ctx, in)
	if err != nil || again != ref {
		t.Fatalf("redelivered confirmation = %s, %v", again, err)
	}
	if got := f.balance(t, domain.EscrowAccount("d1")); got != 1_000 {
		t.Fatalf("escrow = %d, want 1000", got)
	}

	tx, _ := f.store.TonTxs().Get(pending.ID)
	if tx.Status != domain.TonTxConfirmed || tx.TxHash != "h1" || tx.FromAddress != "UQ-payer" {
		t.Fatalf("pending tx not confirmed: %+v", tx)
	}
}

func TestGenerateDepositAddressWalletFailure(t *testing.T) {
	f := newFixture(t)
	f.wallet.err = errors.New("wallet down")
	if _, err := f.uc.GenerateDepositAddress(context.Background(), "d1", 1_000); err == nil {
		t.Fatalf("expected wallet error")
	}
	if _, err := f.store.TonTxs().FindPendingInbound(context.Background(), "d1"); !errors.Is(err, domain.ErrDepositNotFound) {
		t.Fatalf("pending tx recorded despite wallet failure")
	}
}

func TestWithdrawIsBalanceChecked(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.store.Ledger().SetBalance(domain.OwnerPendingAccount("owner"), 100)
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	if _, err := f.uc.Withdraw(ctx, "owner", 150, at); !errors.Is(err, domain.ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	if _, err := f.uc.Withdraw(ctx, "owner", 100, at); err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if got := f.balance(t, domain.OwnerPendingAccount("owner")); got != 0 {
		t.Fatalf("owner pending = %d, want 0", got)
	}
}

func TestSweepCommissionOncePerDay(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	account := domain.CommissionAccount("d1")
	f.store.Ledger().SetBalance(account, 500)
	day := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	first, err := f.uc.SweepCommission(ctx, account, 500, day)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	second, err := f.uc.SweepCommission(ctx, account, 500, day.Add(time.Hour))
	if err != nil || second != first {
		t.Fatalf("same-day sweep = %s, %v", second, err)
	}
	if got := f.balance(t, domain.AccountPlatformTreasury); got != 500 {
		t.Fatalf("treasury = %d, want 500", got)
	}
}

func TestRecordNetworkFeeChargesTreasuryOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ref, err := f.uc.RecordNetworkFee(ctx, "d1", "fee-hash", 5_000_000)
	if err != nil {
		t.Fatalf("record fee: %v", err)
	}
	again, err := f.uc.RecordNetworkFee(ctx, "d1", "fee-hash", 5_000_000)
	if err != nil || again != ref {
		t.Fatalf("replay = %q, %v; want %q", again, err, ref)
	}

	if got := f.balance(t, domain.AccountPlatformTreasury); got != -5_000_000 {
		t.Fatalf("treasury = %d, want -5000000", got)
	}
	if got := f.balance(t, domain.AccountExternalTON); got != 5_000_000 {
		t.Fatalf("external = %d, want 5000000", got)
	}
}
