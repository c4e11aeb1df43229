package postgres

import (
	"context"
	"errors"

	"bookstore-orders/internal/ports"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// unitOfWork implements ports.UnitOfWork over a pgx transaction carried in the
// context. Repos fetch the transaction back with MustTxFromContext.
type unitOfWork struct {
	pool *pgxpool.Pool
}

// NewUnitOfWork constructs a UnitOfWork over the given pool.
func NewUnitOfWork(pool *pgxpool.Pool) ports.UnitOfWork {
	return &unitOfWork{pool: pool}
}

type txKey struct{}

// WithinTx begins a transaction, runs fn with the tx stored in the context,
// and commits on success or rolls back on error/panic.
func (u *unitOfWork) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	tx, err := u.pool.Begin(ctx)
	if err != nil {
		return err
	}

	defer func() {
		// no-op after a successful commit
		_ = tx.Rollback(ctx)
	}()

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// MustTxFromContext returns the transaction stored by WithinTx. Repos are only
// ever called inside a unit of work; a missing tx is a programming error.
func MustTxFromContext(ctx context.Context) (pgx.Tx, error) {
	tx, ok := ctx.Value(txKey{}).(pgx.Tx)
	if !ok {
		return nil, errors.New("postgres: no transaction in context; call repos inside WithinTx")
	}
	return tx, nil
}
