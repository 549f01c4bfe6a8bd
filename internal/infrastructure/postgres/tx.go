package postgres

import (
	"context"

	"github.com/lonmstalker/advert-market-settlement/internal/domain"
	"gorm.io/gorm"
)

type txKey struct{}

type unitOfWork struct {
	tx          *gorm.DB
	afterCommit []func()
}

func (u *unitOfWork) AfterCommit(fn func()) {
	u.afterCommit = append(u.afterCommit, fn)
}

// TxManager runs units of work in a gorm transaction stored in the context.
type TxManager struct {
	DB *gorm.DB
}

func NewTxManager(db *gorm.DB) *TxManager {
	return &TxManager{DB: db}
}

func (m *TxManager) Do(ctx context.Context, fn func(ctx context.Context, uow domain.UnitOfWork) error) error {
	if uow, ok := ctx.Value(txKey{}).(*unitOfWork); ok {
		return fn(ctx, uow)
	}

	uow := &unitOfWork{}
	err := m.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		uow.tx = tx
		return fn(context.WithValue(ctx, txKey{}, uow), uow)
	})
	if err != nil {
		return err
	}

	for _, cb := range uow.afterCommit {
		cb()
	}
	return nil
}

// Conn returns the transaction carried by ctx, or db when there is none.
func Conn(ctx context.Context, db *gorm.DB) *gorm.DB {
	if uow, ok := ctx.Value(txKey{}).(*unitOfWork); ok {
		return uow.tx.WithContext(ctx)
	}
	return db.WithContext(ctx)
}
