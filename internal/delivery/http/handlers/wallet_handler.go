package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	walletRequest "github.com/lonmstalker/advert-market-settlement/internal/delivery/http/dto/wallet/request"
	walletResponse "github.com/lonmstalker/advert-market-settlement/internal/delivery/http/dto/wallet/response"
	"github.com/lonmstalker/advert-market-settlement/internal/domain"
	"github.com/tonkeeper/tongo/ton"
)

// HTTPWalletHandler calls the wallet service, which owns the TON keys and
// derives one subwallet per deal.
type HTTPWalletHandler struct {
	Address string
	client  *http.Client
}

func NewHTTPWalletHandler(address string, timeout time.Duration) (*HTTPWalletHandler, error) {
	if address == "" {
		return nil, errors.New("wallet service address is required")
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPWalletHandler{
		Address: strings.TrimRight(address, "/"),
		client:  &http.Client{Timeout: timeout},
	}, nil
}

func (h *HTTPWalletHandler) GenerateDepositAddress(ctx context.Context, dealID string) (domain.DepositAddress, error) {
	requestBodyBytes, err := json.Marshal(walletRequest.DepositAddressRequest{DealID: dealID})
	if err != nil {
		return domain.DepositAddress{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fmt.Sprintf("%s/wallets/deposit-addresses", h.Address), bytes.NewBuffer(requestBodyBytes))
	if err != nil {
		return domain.DepositAddress{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", "deposit-address:"+dealID)

	response, err := h.client.Do(req)
	if err != nil {
		return domain.DepositAddress{}, err
	}
	defer response.Body.Close()
	responseBodyBytes, err := io.ReadAll(response.Body)
	if err != nil {
		return domain.DepositAddress{}, err
	}

	if response.StatusCode < 200 || response.StatusCode >= 300 {
		var errorResponse walletResponse.ErrorResponse
		if err := json.Unmarshal(responseBodyBytes, &errorResponse); err != nil || errorResponse.Error == "" {
			return domain.DepositAddress{}, fmt.Errorf("wallet service returned %d", response.StatusCode)
		}
		return domain.DepositAddress{}, errors.New(errorResponse.Error)
	}

	var addressResponse walletResponse.DepositAddressResponse
	if err := json.Unmarshal(responseBodyBytes, &addressResponse); err != nil {
		return domain.DepositAddress{}, err
	}
	address, err := NormalizeAddress(addressResponse.Address)
	if err != nil {
		return domain.DepositAddress{}, err
	}
	return domain.DepositAddress{Address: address, SubwalletID: addressResponse.SubwalletID}, nil
}

// NormalizeAddress validates a TON address in raw or user-friendly form and
// returns it as a non-bounceable user-friendly string, the form wallets
// expect for deposits.
func NormalizeAddress(raw string) (string, error) {
	account, err := ton.ParseAccountID(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("%w: %q: %v", domain.ErrInvalidAddress, raw, err)
	}
	return account.ToHuman(false, false), nil
}
