package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/loyalty-orders/internal/domain/order"
)

const (
	orderColumns = `id, customer_id, amount, discount_amount, final_amount, order_date`

	createOrderSQL = `INSERT INTO orders (` + orderColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6)`

	getOrderByIDSQL = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	listOrdersSQL = `SELECT ` + orderColumns + ` FROM orders ORDER BY order_date, id`

	listOrdersByCustomerSQL = `SELECT ` + orderColumns + `
		FROM orders WHERE customer_id = $1 ORDER BY order_date, id`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create persists a new order.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	_, err := conn(ctx, r.pool).Exec(ctx, createOrderSQL,
		o.ID, o.CustomerID, o.Amount, o.DiscountAmount, o.FinalAmount, o.OrderDate,
	)
	if err != nil {
		return fmt.Errorf("creating order %q: %w", o.ID, err)
	}
	return nil
}

// FindByID returns a single order by its identifier.
func (r *OrderRepository) FindByID(ctx context.Context, id string) (*order.Order, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, getOrderByIDSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}

	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}
	return &o, nil
}

// ListByCustomer returns a customer's orders, oldest first.
func (r *OrderRepository) ListByCustomer(ctx context.Context, customerID string) ([]order.Order, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, listOrdersByCustomerSQL, customerID)
	if err != nil {
		return nil, fmt.Errorf("listing orders of %q: %w", customerID, err)
	}
	return pgx.CollectRows(rows, scanOrder)
}

// List returns all orders, oldest first.
func (r *OrderRepository) List(ctx context.Context) ([]order.Order, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, listOrdersSQL)
	if err != nil {
		return nil, fmt.Errorf("listing orders: %w", err)
	}
	return pgx.CollectRows(rows, scanOrder)
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var o order.Order
	err := row.Scan(&o.ID, &o.CustomerID, &o.Amount, &o.DiscountAmount, &o.FinalAmount, &o.OrderDate)
	return o, err
}
