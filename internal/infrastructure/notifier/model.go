package notifier

import (
	"fmt"
	"html"

	"github.com/lonmstalker/advert-market-settlement/internal/domain"
)

// RenderMessage formats a notification as Telegram HTML.
func RenderMessage(n domain.DealNotification) (string, error) {
	amount := n.AmountNano.Decimal().StringFixed(4)
	deal := html.EscapeString(n.DealID)

	switch n.Kind {
	case domain.NotifyPartialDeposit:
		return fmt.Sprintf(
			"💰 <b>Partial payment received</b>\nDeal <code>%s</code>: %s TON received, %s TON still missing.",
			deal, amount, n.MissingNano.Decimal().StringFixed(4),
		), nil
	case domain.NotifyOverpayment:
		return fmt.Sprintf(
			"↩️ <b>Overpayment refunded</b>\nDeal <code>%s</code>: %s TON above the deal amount was returned to you.",
			deal, amount,
		), nil
	case domain.NotifyUnclaimedPayout:
		return fmt.Sprintf(
			"📤 <b>Payout sent</b>\nYour unclaimed balance of %s TON was sent to your wallet.",
			amount,
		), nil
	}
	return "", fmt.Errorf("unknown notification kind %q", n.Kind)
}
