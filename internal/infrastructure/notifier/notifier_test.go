package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/lonmstalker/advert-market-settlement/internal/domain"
)

type recordingSender struct {
	sent []*bot.SendMessageParams
	err  error
}

func (s *recordingSender) SendMessage(_ context.Context, params *bot.SendMessageParams) (*models.Message, error) {
	s.sent = append(s.sent, params)
	return &models.Message{}, s.err
}

func entryFor(t *testing.T, n domain.DealNotification) domain.OutboxEntry {
	t.Helper()
	payload, err := json.Marshal(n)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return domain.OutboxEntry{ID: "o1", Topic: domain.TopicDealNotifications, Payload: payload}
}

func TestPublishSendsRenderedMessage(t *testing.T) {
	sender := &recordingSender{}
	n := NewTelegramNotifier(sender)

	err := n.Publish(context.Background(), entryFor(t, domain.DealNotification{
		Kind:        domain.NotifyPartialDeposit,
		RecipientID: "123456",
		DealID:      "d1",
		AmountNano:  2_500_000_000,
		MissingNano: 500_000_000,
	}))
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(sender.sent) != 1 {
		t.Fatalf("expected one message, got %d", len(sender.sent))
	}
	msg := sender.sent[0]
	if msg.ChatID != int64(123456) {
		t.Fatalf("chat id = %v", msg.ChatID)
	}
	if !strings.Contains(msg.Text, "2.5000 TON received") || !strings.Contains(msg.Text, "0.5000 TON still missing") {
		t.Fatalf("unexpected text %q", msg.Text)
	}
}

func TestPublishDropsUnroutableRecipient(t *testing.T) {
	sender := &recordingSender{}
	n := NewTelegramNotifier(sender)

	err := n.Publish(context.Background(), entryFor(t, domain.DealNotification{
		Kind: domain.NotifyOverpayment, RecipientID: "not-a-chat", AmountNano: 1,
	}))
	if err != nil || len(sender.sent) != 0 {
		t.Fatalf("expected silent drop, got err=%v sent=%d", err, len(sender.sent))
	}
}

func TestPublishReturnsSendErrorForRetry(t *testing.T) {
	sender := &recordingSender{err: errors.New("429 too many requests")}
	n := NewTelegramNotifier(sender)

	err := n.Publish(context.Background(), entryFor(t, domain.DealNotification{
		Kind: domain.NotifyUnclaimedPayout, RecipientID: "42", AmountNano: domain.NanoPerTON,
	}))
	if err == nil {
		t.Fatalf("expected send error to propagate")
	}
}
