package domain

import (
	"context"
	"time"
)

type OutboxStatus string

const (
	OutboxPending    OutboxStatus = "PENDING"
	OutboxProcessing OutboxStatus = "PROCESSING"
	OutboxDelivered  OutboxStatus = "DELIVERED"
	OutboxFailed     OutboxStatus = "FAILED"
)

const (
	TopicDealEvents        = "deal-events"
	TopicDealNotifications = "deal-notifications"
	TopicPayoutRequests    = "payout-requests"
	TopicDealTriggers      = "deal-triggers"
)

type OutboxEntry struct {
	ID             string
	DealID         string
	IdempotencyKey string
	Topic          string
	PartitionKey   string
	Payload        []byte
	Status         OutboxStatus
	RetryCount     int
	// Version is bumped on every claim; marks are applied only if it still matches.
	Version     int64
	LastError   string
	CreatedAt   time.Time
	ClaimedAt   *time.Time
	ProcessedAt *time.Time
}

type OutboxClaim struct {
	BatchSize int
	// Only PENDING rows created before VisibleBefore are claimed.
	VisibleBefore time.Time
	// PROCESSING rows claimed before ClaimExpiredBefore are claimed again.
	ClaimExpiredBefore time.Time
	Now                time.Time
}

type OutboxRepository interface {
	Save(ctx context.Context, entry *OutboxEntry) error
	// FindPendingBatch claims rows and marks them PROCESSING in one statement.
	// Rows locked by a concurrent claimer are skipped.
	FindPendingBatch(ctx context.Context, claim OutboxClaim) ([]OutboxEntry, error)
	MarkDelivered(ctx context.Context, id string, version int64, at time.Time) error
	MarkRetry(ctx context.Context, id string, version int64, lastErr string) error
	MarkFailed(ctx context.Context, id string, version int64, lastErr string, at time.Time) error
	CountByStatus(ctx context.Context, status OutboxStatus) (int64, error)
}

// EventPublisher delivers one outbox entry to the broker. Errors are
// treated as transient.
type EventPublisher interface {
	Publish(ctx context.Context, entry OutboxEntry) error
}
