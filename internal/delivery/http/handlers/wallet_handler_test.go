package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/lonmstalker/advert-market-settlement/internal/domain"
)

const rawAddress = "0:83dfd552e63729b472fcbcc8c45ebcc6691702558b68ec7527e1ba403a0f31a8"

func TestGenerateDepositAddress(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/wallets/deposit-addresses" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["deal_id"] != "deal-1" {
			t.Errorf("deal_id = %q", body["deal_id"])
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"success": true, "address": rawAddress, "subwallet_id": 42})
	}))
	defer srv.Close()

	h, err := NewHTTPWalletHandler(srv.URL+"/", time.Second)
	if err != nil {
		t.Fatalf("new handler: %v", err)
	}
	addr, err := h.GenerateDepositAddress(context.Background(), "deal-1")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if addr.SubwalletID != 42 || !strings.HasPrefix(addr.Address, "UQ") {
		t.Fatalf("unexpected address %+v", addr)
	}
}

func TestGenerateDepositAddressServiceError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"success":false,"error":"keystore locked"}`))
	}))
	defer srv.Close()

	h, _ := NewHTTPWalletHandler(srv.URL, time.Second)
	if _, err := h.GenerateDepositAddress(context.Background(), "deal-1"); err == nil || err.Error() != "keystore locked" {
		t.Fatalf("expected service error, got %v", err)
	}
}

func TestNormalizeAddressRejectsGarbage(t *testing.T) {
	if _, err := NormalizeAddress("not-an-address"); !errors.Is(err, domain.ErrInvalidAddress) {
		t.Fatalf("expected ErrInvalidAddress, got %v", err)
	}
	friendly, err := NormalizeAddress(rawAddress)
	if err != nil {
		t.Fatalf("normalize raw: %v", err)
	}
	again, err := NormalizeAddress(friendly)
	if err != nil || again != friendly {
		t.Fatalf("normalize is not stable: %q -> %q, %v", friendly, again, err)
	}
}
