package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/loyalty-orders/internal/domain/customer"
	"github.com/xenking/loyalty-orders/internal/domain/order"
)

const lockCustomerSQL = `SELECT id FROM customers WHERE id = $1 FOR UPDATE`

var _ order.UnitOfWork = (*UnitOfWork)(nil)

// UnitOfWork runs work on one customer inside a transaction that holds the
// customer's row lock.
type UnitOfWork struct {
	pool *pgxpool.Pool
}

// NewUnitOfWork returns a UnitOfWork that uses the given pool.
func NewUnitOfWork(pool *pgxpool.Pool) *UnitOfWork {
	return &UnitOfWork{pool: pool}
}

// WithCustomerLock begins a transaction, locks the customer row and runs fn
// with the transaction bound to its context. Repositories called with that
// context join the transaction. It returns customer.ErrNotFound when the
// customer does not exist. A call made inside an existing transaction only
// takes the lock.
func (u *UnitOfWork) WithCustomerLock(ctx context.Context, customerID string, fn func(ctx context.Context) error) error {
	if tx, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		if err := lockCustomer(ctx, tx, customerID); err != nil {
			return err
		}
		return fn(ctx)
	}

	return pgx.BeginFunc(ctx, u.pool, func(tx pgx.Tx) error {
		if err := lockCustomer(ctx, tx, customerID); err != nil {
			return err
		}
		return fn(context.WithValue(ctx, txKey{}, tx))
	})
}

func lockCustomer(ctx context.Context, tx pgx.Tx, customerID string) error {
	var id string
	if err := tx.QueryRow(ctx, lockCustomerSQL, customerID).Scan(&id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return customer.ErrNotFound
		}
		return fmt.Errorf("locking customer %q: %w", customerID, err)
	}
	return nil
}
