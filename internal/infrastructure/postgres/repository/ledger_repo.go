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
	"gorm.io/gorm/clause"
)

type DefaultLedgerRepository struct {
	DB *gorm.DB
}

func NewDefaultLedgerRepository(db *gorm.DB) *DefaultLedgerRepository {
	return &DefaultLedgerRepository{DB: db}
}

func (r *DefaultLedgerRepository) ReserveIdempotencyKey(ctx context.Context, key, txRef string) (string, bool, error) {
	db := postgres.Conn(ctx, r.DB)
	res := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&models.LedgerIdempotencyKeyModel{
		IdempotencyKey: key,
		TxRef:          txRef,
		CreatedAt:      time.Now().UTC(),
	})
	if res.Error != nil {
		return "", false, res.Error
	}
	if res.RowsAffected == 1 {
		return "", true, nil
	}

	var existing models.LedgerIdempotencyKeyModel
	if err := db.First(&existing, "idempotency_key = ?", key).Error; err != nil {
		return "", false, fmt.Errorf("read idempotency key %s: %w", key, err)
	}
	return existing.TxRef, false, nil
}

// DebitChecked relies on the row lock taken by the conditional UPDATE, so a
// concurrent debit of the same account waits and then re-evaluates the predicate.
func (r *DefaultLedgerRepository) DebitChecked(ctx context.Context, account domain.AccountID, amount domain.Nano) (bool, domain.Nano, error) {
	db := postgres.Conn(ctx, r.DB)
	res := db.Model(&models.AccountBalanceModel{}).
		Where("account_id = ? AND balance_nano >= ?", string(account), int64(amount)).
		Updates(map[string]any{
			"balance_nano": gorm.Expr("balance_nano - ?", int64(amount)),
			"version":      gorm.Expr("version + 1"),
			"updated_at":   time.Now().UTC(),
		})
	if res.Error != nil {
		return false, 0, res.Error
	}
	if res.RowsAffected == 1 {
		return true, 0, nil
	}

	available, err := r.GetBalance(ctx, account)
	if err != nil {
		return false, 0, err
	}
	return false, available, nil
}

func (r *DefaultLedgerRepository) ApplyDelta(ctx context.Context, account domain.AccountID, delta domain.Nano) error {
	return postgres.Conn(ctx, r.DB).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "account_id"}},
			DoUpdates: clause.Assignments(map[string]any{
				"balance_nano": gorm.Expr("account_balances.balance_nano + EXCLUDED.balance_nano"),
				"version":      gorm.Expr("account_balances.version + 1"),
				"updated_at":   gorm.Expr("EXCLUDED.updated_at"),
			}),
		}).
		Create(&models.AccountBalanceModel{
			AccountID:   string(account),
			BalanceNano: int64(delta),
			UpdatedAt:   time.Now().UTC(),
		}).Error
}

func (r *DefaultLedgerRepository) InsertEntries(ctx context.Context, entries []domain.LedgerEntry) error {
	if len(entries) == 0 {
		return nil
	}
	rows := make([]models.LedgerEntryModel, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, mappers.ToGORMLedgerEntry(e))
	}
	if err := postgres.Conn(ctx, r.DB).Create(&rows).Error; err != nil {
		return err
	}
	for i := range entries {
		entries[i].ID = rows[i].ID
	}
	return nil
}

func (r *DefaultLedgerRepository) GetBalance(ctx context.Context, account domain.AccountID) (domain.Nano, error) {
	var row models.AccountBalanceModel
	err := postgres.Conn(ctx, r.DB).First(&row, "account_id = ?", string(account)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return domain.Nano(row.BalanceNano), nil
}

func (r *DefaultLedgerRepository) GetEntriesByDeal(ctx context.Context, dealID string) ([]domain.LedgerEntry, error) {
	var rows []models.LedgerEntryModel
	if err := postgres.Conn(ctx, r.DB).
		Where("deal_id = ?", dealID).
		Order("id ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return mappers.ToDomainLedgerEntries(rows), nil
}

func (r *DefaultLedgerRepository) GetEntriesByAccount(ctx context.Context, account domain.AccountID, cursor int64, limit int) ([]domain.LedgerEntry, error) {
	query := postgres.Conn(ctx, r.DB).Where("account_id = ?", string(account))
	if cursor > 0 {
		query = query.Where("id < ?", cursor)
	}

	var rows []models.LedgerEntryModel
	if err := query.Order("id DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, err
	}
	return mappers.ToDomainLedgerEntries(rows), nil
}

func (r *DefaultLedgerRepository) GetEntriesByTxRef(ctx context.Context, txRef string) ([]domain.LedgerEntry, error) {
	var rows []models.LedgerEntryModel
	if err := postgres.Conn(ctx, r.DB).
		Where("tx_ref = ?", txRef).
		Order("id ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return mappers.ToDomainLedgerEntries(rows), nil
}

func (r *DefaultLedgerRepository) FindBalances(ctx context.Context, filter domain.BalanceFilter) ([]domain.AccountBalance, error) {
	query := postgres.Conn(ctx, r.DB).
		Model(&models.AccountBalanceModel{}).
		Where("account_id LIKE ?", filter.Prefix+"%").
		Where("balance_nano > 0")
	if filter.MinNano > 0 {
		query = query.Where("balance_nano >= ?", int64(filter.MinNano))
	}
	if !filter.UpdatedBefore.IsZero() {
		query = query.Where("updated_at < ?", filter.UpdatedBefore)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}

	var rows []models.AccountBalanceModel
	if err := query.Order("account_id ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]domain.AccountBalance, 0, len(rows))
	for _, row := range rows {
		out = append(out, mappers.ToDomainBalance(row))
	}
	return out, nil
}
