package repository

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/lonmstalker/advert-market-settlement/internal/domain"
	"github.com/lonmstalker/advert-market-settlement/internal/infrastructure/postgres"
	"github.com/lonmstalker/advert-market-settlement/internal/infrastructure/postgres/mappers"
	"github.com/lonmstalker/advert-market-settlement/internal/infrastructure/postgres/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type DefaultOutboxRepository struct {
	DB *gorm.DB
}

func NewDefaultOutboxRepository(db *gorm.DB) *DefaultOutboxRepository {
	return &DefaultOutboxRepository{DB: db}
}

func (r *DefaultOutboxRepository) Save(ctx context.Context, entry *domain.OutboxEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	entry.Status = domain.OutboxPending
	return postgres.Conn(ctx, r.DB).Create(mappers.ToGORMOutbox(entry)).Error
}

// FindPendingBatch claims rows with a single UPDATE over a SKIP LOCKED
// subquery, so concurrent pollers never receive the same row.
func (r *DefaultOutboxRepository) FindPendingBatch(ctx context.Context, claim domain.OutboxClaim) ([]domain.OutboxEntry, error) {
	if claim.BatchSize <= 0 {
		return nil, nil
	}
	db := postgres.Conn(ctx, r.DB)

	candidates := db.Model(&models.OutboxModel{}).
		Select("id").
		Where("(status = ? AND created_at < ?) OR (status = ? AND claimed_at < ?)",
			string(domain.OutboxPending), claim.VisibleBefore,
			string(domain.OutboxProcessing), claim.ClaimExpiredBefore,
		).
		Order("created_at ASC, id ASC").
		Limit(claim.BatchSize).
		Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})

	var rows []models.OutboxModel
	if err := db.Model(&rows).
		Clauses(clause.Returning{}).
		Where("id IN (?)", candidates).
		Updates(map[string]any{
			"status":     string(domain.OutboxProcessing),
			"claimed_at": claim.Now,
			"version":    gorm.Expr("version + 1"),
		}).Error; err != nil {
		return nil, fmt.Errorf("claim outbox batch: %w", err)
	}

	sort.Slice(rows, func(i, j int) bool {
		if rows[i].CreatedAt.Equal(rows[j].CreatedAt) {
			return rows[i].ID < rows[j].ID
		}
		return rows[i].CreatedAt.Before(rows[j].CreatedAt)
	})
	out := make([]domain.OutboxEntry, 0, len(rows))
	for _, row := range rows {
		out = append(out, mappers.ToDomainOutbox(row))
	}
	return out, nil
}

func (r *DefaultOutboxRepository) MarkDelivered(ctx context.Context, id string, version int64, at time.Time) error {
	return r.mark(ctx, id, version, map[string]any{
		"status":       string(domain.OutboxDelivered),
		"processed_at": at,
	})
}

func (r *DefaultOutboxRepository) MarkRetry(ctx context.Context, id string, version int64, lastErr string) error {
	return r.mark(ctx, id, version, map[string]any{
		"status":      string(domain.OutboxPending),
		"retry_count": gorm.Expr("retry_count + 1"),
		"last_error":  lastErr,
		"claimed_at":  nil,
	})
}

func (r *DefaultOutboxRepository) MarkFailed(ctx context.Context, id string, version int64, lastErr string, at time.Time) error {
	return r.mark(ctx, id, version, map[string]any{
		"status":       string(domain.OutboxFailed),
		"retry_count":  gorm.Expr("retry_count + 1"),
		"last_error":   lastErr,
		"processed_at": at,
	})
}

func (r *DefaultOutboxRepository) mark(ctx context.Context, id string, version int64, fields map[string]any) error {
	res := postgres.Conn(ctx, r.DB).
		Model(&models.OutboxModel{}).
		Where("id = ? AND version = ? AND status = ?", id, version, string(domain.OutboxProcessing)).
		Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: outbox entry %s v%d", domain.ErrVersionConflict, id, version)
	}
	return nil
}

func (r *DefaultOutboxRepository) CountByStatus(ctx context.Context, status domain.OutboxStatus) (int64, error) {
	var n int64
	err := postgres.Conn(ctx, r.DB).
		Model(&models.OutboxModel{}).
		Where("status = ?", string(status)).
		Count(&n).Error
	return n, err
}
