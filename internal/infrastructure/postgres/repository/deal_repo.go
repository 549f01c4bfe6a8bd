package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lonmstalker/advert-market-settlement/internal/domain"
	"github.com/lonmstalker/advert-market-settlement/internal/infrastructure/postgres"
	"github.com/lonmstalker/advert-market-settlement/internal/infrastructure/postgres/mappers"
	"github.com/lonmstalker/advert-market-settlement/internal/infrastructure/postgres/models"
	"gorm.io/gorm"
)

type DefaultDealRepository struct {
	DB *gorm.DB
}

func NewDefaultDealRepository(db *gorm.DB) *DefaultDealRepository {
	return &DefaultDealRepository{DB: db}
}

func (r *DefaultDealRepository) Create(ctx context.Context, deal *domain.Deal) error {
	if deal.CreatedAt.IsZero() {
		deal.CreatedAt = time.Now().UTC()
	}
	if deal.StatusChangedAt.IsZero() {
		deal.StatusChangedAt = deal.CreatedAt
	}
	deal.UpdatedAt = deal.CreatedAt
	return postgres.Conn(ctx, r.DB).Create(mappers.ToGORMDeal(deal)).Error
}

func (r *DefaultDealRepository) GetByID(ctx context.Context, dealID string) (*domain.Deal, error) {
	var row models.DealModel
	err := postgres.Conn(ctx, r.DB).First(&row, "id = ?", dealID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", domain.ErrDealNotFound, dealID)
	}
	if err != nil {
		return nil, err
	}
	return mappers.ToDomainDeal(&row), nil
}

func (r *DefaultDealRepository) CompareAndSwapStatus(ctx context.Context, cas domain.DealCAS) (bool, error) {
	res := postgres.Conn(ctx, r.DB).
		Model(&models.DealModel{}).
		Where("id = ? AND status = ? AND version = ?", cas.DealID, string(cas.ExpectedStatus), cas.ExpectedVersion).
		Updates(map[string]any{
			"status":            string(cas.NewStatus),
			"version":           gorm.Expr("version + 1"),
			"status_changed_at": cas.At,
			"updated_at":        cas.At,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *DefaultDealRepository) AppendEvent(ctx context.Context, event *domain.DealEventRecord) error {
	row := mappers.ToGORMDealEvent(event)
	if err := postgres.Conn(ctx, r.DB).Create(row).Error; err != nil {
		return err
	}
	event.ID = row.ID
	return nil
}

func (r *DefaultDealRepository) ListEvents(ctx context.Context, dealID string) ([]domain.DealEventRecord, error) {
	var rows []models.DealEventModel
	if err := postgres.Conn(ctx, r.DB).
		Where("deal_id = ?", dealID).
		Order("id ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]domain.DealEventRecord, 0, len(rows))
	for _, row := range rows {
		out = append(out, mappers.ToDomainDealEvent(row))
	}
	return out, nil
}

func (r *DefaultDealRepository) FindStaleInStatus(ctx context.Context, status domain.DealStatus, cutoff time.Time, limit int) ([]*domain.Deal, error) {
	var rows []models.DealModel
	if err := postgres.Conn(ctx, r.DB).
		Where("status = ? AND status_changed_at < ?", string(status), cutoff).
		Order("status_changed_at ASC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*domain.Deal, 0, len(rows))
	for i := range rows {
		out = append(out, mappers.ToDomainDeal(&rows[i]))
	}
	return out, nil
}

func (r *DefaultDealRepository) SetDepositAddress(ctx context.Context, dealID, address string, subwalletID int64) error {
	return r.update(ctx, dealID, map[string]any{
		"deposit_address": address,
		"subwallet_id":    subwalletID,
	})
}

func (r *DefaultDealRepository) SetPublication(ctx context.Context, dealID, messageID, contentHash string) error {
	return r.update(ctx, dealID, map[string]any{
		"published_message_id": messageID,
		"content_hash":         contentHash,
	})
}

func (r *DefaultDealRepository) update(ctx context.Context, dealID string, fields map[string]any) error {
	fields["updated_at"] = time.Now().UTC()
	res := postgres.Conn(ctx, r.DB).
		Model(&models.DealModel{}).
		Where("id = ?", dealID).
		Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", domain.ErrDealNotFound, dealID)
	}
	return nil
}
