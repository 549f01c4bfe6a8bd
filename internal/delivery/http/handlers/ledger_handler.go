package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	ledgerResponse "github.com/lonmstalker/advert-market-settlement/internal/delivery/http/dto/ledger/response"
	walletResponse "github.com/lonmstalker/advert-market-settlement/internal/delivery/http/dto/wallet/response"
	"github.com/lonmstalker/advert-market-settlement/internal/domain"
	"github.com/lonmstalker/advert-market-settlement/internal/usecase/ledger"
)

const maxPageSize = 200

// LedgerHandler serves read-only ledger queries for operators.
type LedgerHandler struct {
	uc ledger.LedgerUsecase
}

func NewLedgerHandler(uc ledger.LedgerUsecase) *LedgerHandler {
	return &LedgerHandler{uc: uc}
}

// GetBalance handles GET /v1/accounts/{account}/balance.
func (h *LedgerHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	account, err := domain.ParseAccountID(chi.URLParam(r, "account"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	balance, err := h.uc.GetBalance(r.Context(), account)
	if err != nil {
		slog.ErrorContext(r.Context(), "get balance failed", "account", account, "error", err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, ledgerResponse.BalanceResponse{
		AccountID:   account.String(),
		BalanceNano: int64(balance),
		BalanceTON:  balance.ToTON(),
	})
}

// GetAccountEntries handles GET /v1/accounts/{account}/entries?cursor=&limit=.
func (h *LedgerHandler) GetAccountEntries(w http.ResponseWriter, r *http.Request) {
	account, err := domain.ParseAccountID(chi.URLParam(r, "account"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	cursor, err := queryInt(r, "cursor", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	limit, err := queryInt(r, "limit", 50)
	if err != nil || limit <= 0 || limit > maxPageSize {
		writeError(w, http.StatusBadRequest, errors.New("limit must be between 1 and 200"))
		return
	}

	page, err := h.uc.GetEntriesByAccount(r.Context(), account, cursor, int(limit))
	if err != nil {
		slog.ErrorContext(r.Context(), "list entries failed", "account", account, "error", err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, ledgerResponse.EntryPageResponse{
		Entries:    toEntryResponses(page.Entries),
		NextCursor: page.NextCursor,
	})
}

// GetDealEntries handles GET /v1/deals/{dealID}/entries.
func (h *LedgerHandler) GetDealEntries(w http.ResponseWriter, r *http.Request) {
	entries, err := h.uc.GetEntriesByDeal(r.Context(), chi.URLParam(r, "dealID"))
	if err != nil {
		slog.ErrorContext(r.Context(), "list deal entries failed", "error", err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, ledgerResponse.EntryPageResponse{Entries: toEntryResponses(entries)})
}

func toEntryResponses(entries []domain.LedgerEntry) []ledgerResponse.EntryResponse {
	out := make([]ledgerResponse.EntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, ledgerResponse.EntryResponse{
			ID:             e.ID,
			TxRef:          e.TxRef,
			AccountID:      e.AccountID.String(),
			EntryType:      string(e.EntryType),
			DebitNano:      int64(e.DebitNano),
			CreditNano:     int64(e.CreditNano),
			IdempotencyKey: e.IdempotencyKey,
			Description:    e.Description,
			CreatedAt:      e.CreatedAt,
		})
	}
	return out
}

func queryInt(r *http.Request, name string, def int64) (int64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	return strconv.ParseInt(raw, 10, 64)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, walletResponse.ErrorResponse{Success: false, Error: err.Error()})
}
