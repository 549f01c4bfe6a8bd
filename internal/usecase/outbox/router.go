package outbox

import (
	"context"

	"github.com/lonmstalker/advert-market-settlement/internal/domain"
)

// TopicRouter sends entries of selected topics to a dedicated publisher and
// everything else to the fallback.
type TopicRouter struct {
	routes   map[string]domain.EventPublisher
	fallback domain.EventPublisher
}

func NewTopicRouter(fallback domain.EventPublisher) *TopicRouter {
	return &TopicRouter{routes: make(map[string]domain.EventPublisher), fallback: fallback}
}

func (r *TopicRouter) Route(topic string, publisher domain.EventPublisher) *TopicRouter {
	r.routes[topic] = publisher
	return r
}

func (r *TopicRouter) Publish(ctx context.Context, entry domain.OutboxEntry) error {
	if p, ok := r.routes[entry.Topic]; ok {
		return p.Publish(ctx, entry)
	}
	return r.fallback.Publish(ctx, entry)
}
