package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	ledgerResponse "github.com/lonmstalker/advert-market-settlement/internal/delivery/http/dto/ledger/response"
	"github.com/lonmstalker/advert-market-settlement/internal/delivery/http/handlers"
	"github.com/lonmstalker/advert-market-settlement/internal/domain"
	"github.com/lonmstalker/advert-market-settlement/internal/infrastructure/memory"
	"github.com/lonmstalker/advert-market-settlement/internal/infrastructure/metrics"
	"github.com/lonmstalker/advert-market-settlement/internal/usecase/ledger"
)

func newTestRouter(t *testing.T, checks map[string]Pinger) http.Handler {
	t.Helper()
	store := memory.NewStore()
	reg := prometheus.NewRegistry()
	uc := ledger.NewDefaultLedgerUsecase(store, store.Ledger(), memory.NewBalanceCache(), metrics.NewSettlementMetrics(reg))

	escrowAccount := domain.EscrowAccount("d1")
	if _, err := uc.Transfer(context.Background(), domain.TransferRequest{
		DealID:         "d1",
		IdempotencyKey: domain.DepositKey("h1"),
		Legs: []domain.Leg{
			domain.Debit(domain.AccountExternalTON, domain.EntryDeposit, 1_500_000_000),
			domain.Credit(escrowAccount, domain.EntryDeposit, 1_500_000_000),
		},
	}); err != nil {
		t.Fatalf("seed transfer: %v", err)
	}
	return NewRouter(handlers.NewLedgerHandler(uc), reg, checks)
}

func TestBalanceEndpoint(t *testing.T) {
	router := newTestRouter(t, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/accounts/ESCROW:d1/balance", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var body ledgerResponse.BalanceResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.BalanceNano != 1_500_000_000 {
		t.Fatalf("balance = %d", body.BalanceNano)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/accounts/WALLET:x/balance", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown account namespace, got %d", rec.Code)
	}
}

func TestDealEntriesEndpoint(t *testing.T) {
	router := newTestRouter(t, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/deals/d1/entries", nil))
	var body ledgerResponse.EntryPageResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Entries) != 2 {
		t.Fatalf("expected both legs, got %d", len(body.Entries))
	}
}

func TestReadinessAndMetrics(t *testing.T) {
	router := newTestRouter(t, map[string]Pinger{
		"redis": func(context.Context) error { return errors.New("connection refused") },
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("readyz = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics = %d", rec.Code)
	}
}
