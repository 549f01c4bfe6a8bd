package outbox

import (
	"context"
	"testing"

	"github.com/lonmstalker/advert-market-settlement/internal/domain"
)

func TestTopicRouter(t *testing.T) {
	kafka := newStubPublisher()
	telegram := newStubPublisher()
	router := NewTopicRouter(kafka).Route(domain.TopicDealNotifications, telegram)

	entries := []domain.OutboxEntry{
		{ID: "e1", Topic: domain.TopicDealEvents},
		{ID: "n1", Topic: domain.TopicDealNotifications},
		{ID: "p1", Topic: domain.TopicPayoutRequests},
	}
	for _, e := range entries {
		if err := router.Publish(context.Background(), e); err != nil {
			t.Fatalf("publish %s: %v", e.ID, err)
		}
	}

	if kafka.attempts("e1") != 1 || kafka.attempts("p1") != 1 || kafka.attempts("n1") != 0 {
		t.Fatalf("fallback received %v", kafka.published)
	}
	if telegram.attempts("n1") != 1 || len(telegram.published) != 1 {
		t.Fatalf("notification route received %v", telegram.published)
	}
}
