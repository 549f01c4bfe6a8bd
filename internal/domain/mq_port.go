package domain

import "context"

type Message struct {
	Topic     string
	Key       []byte
	Value     []byte
	Partition int
	Offset    int64
}

// SubscriberPort delivers messages of a consumer group. Messages of one
// partition arrive in order; Commit acknowledges a message and every
// earlier one of its partition.
type SubscriberPort interface {
	Subscribe(ctx context.Context, topic, groupID string) (<-chan Message, error)
	Commit(ctx context.Context, msg Message) error
	Close() error
}
