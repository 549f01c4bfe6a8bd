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

type DefaultTonTransactionRepository struct {
	DB *gorm.DB
}

func NewDefaultTonTransactionRepository(db *gorm.DB) *DefaultTonTransactionRepository {
	return &DefaultTonTransactionRepository{DB: db}
}

func (r *DefaultTonTransactionRepository) Create(ctx context.Context, tx *domain.TonTransaction) error {
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now().UTC()
	}
	return postgres.Conn(ctx, r.DB).Create(mappers.ToGORMTonTransaction(tx)).Error
}

func (r *DefaultTonTransactionRepository) FindPendingInbound(ctx context.Context, dealID string) (*domain.TonTransaction, error) {
	var row models.TonTransactionModel
	err := postgres.Conn(ctx, r.DB).
		Where("deal_id = ? AND direction = ? AND status = ?", dealID, string(domain.TonTxInbound), string(domain.TonTxPending)).
		Order("created_at DESC").
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: deal %s", domain.ErrDepositNotFound, dealID)
	}
	if err != nil {
		return nil, err
	}
	return mappers.ToDomainTonTransaction(&row), nil
}

func (r *DefaultTonTransactionRepository) Confirm(ctx context.Context, id string, c domain.TonTxConfirmation) error {
	res := postgres.Conn(ctx, r.DB).
		Model(&models.TonTransactionModel{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"tx_hash":       c.TxHash,
			"amount_nano":   int64(c.AmountNano),
			"confirmations": c.Confirmations,
			"from_address":  c.FromAddress,
			"status":        string(domain.TonTxConfirmed),
			"confirmed_at":  c.At,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", domain.ErrDepositNotFound, id)
	}
	return nil
}
