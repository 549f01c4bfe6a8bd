package domain

import "context"

// UnitOfWork is the handle of one running transaction.
type UnitOfWork interface {
	// AfterCommit registers fn to run once the outermost transaction has
	// committed. Callbacks are dropped on rollback.
	AfterCommit(fn func())
}

// TxManager runs fn inside a database transaction carried by the context
// passed to fn. A Do call made with a context that already carries a
// transaction joins it instead of opening a new one.
type TxManager interface {
	Do(ctx context.Context, fn func(ctx context.Context, uow UnitOfWork) error) error
}
