package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/loyalty-orders/internal/domain/customer"
	"github.com/xenking/loyalty-orders/internal/domain/tier"
)

const (
	customerColumns = `id, name, email, tier, total_orders, created_at, updated_at`

	createCustomerSQL = `INSERT INTO customers (` + customerColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	updateCustomerSQL = `UPDATE customers
		SET name = $2, email = $3, tier = $4, total_orders = $5, updated_at = $6
		WHERE id = $1`

	renameCustomerSQL = `UPDATE customers
		SET name = $2, email = $3, updated_at = $4
		WHERE id = $1
		RETURNING ` + customerColumns

	getCustomerByIDSQL = `SELECT ` + customerColumns + ` FROM customers WHERE id = $1`

	getCustomerByEmailSQL = `SELECT ` + customerColumns + ` FROM customers WHERE email = $1`

	customerEmailExistsSQL = `SELECT EXISTS (SELECT 1 FROM customers WHERE email = $1)`

	listCustomersSQL = `SELECT ` + customerColumns + ` FROM customers ORDER BY created_at, id`

	listCustomersByTierAndOrdersSQL = `SELECT ` + customerColumns + `
		FROM customers WHERE tier = $1 AND total_orders = $2 ORDER BY id`

	deleteCustomerSQL = `DELETE FROM customers WHERE id = $1`

	emailConstraint = "customers_email_key"
)

var _ customer.Repository = (*CustomerRepository)(nil)

// CustomerRepository implements customer.Repository backed by PostgreSQL.
type CustomerRepository struct {
	pool *pgxpool.Pool
}

// NewCustomerRepository returns a CustomerRepository that uses the given pool.
func NewCustomerRepository(pool *pgxpool.Pool) *CustomerRepository {
	return &CustomerRepository{pool: pool}
}

// Create inserts a customer. The unique email constraint turns a lost race
// between two registrations into customer.ErrDuplicateEmail.
func (r *CustomerRepository) Create(ctx context.Context, c *customer.Customer) error {
	_, err := conn(ctx, r.pool).Exec(ctx, createCustomerSQL,
		c.ID, c.Name, c.Email, string(c.Tier), c.TotalOrders, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err, emailConstraint) {
			return customer.ErrDuplicateEmail
		}
		return fmt.Errorf("creating customer %q: %w", c.ID, err)
	}
	return nil
}

// Update overwrites every mutable column of the customer.
func (r *CustomerRepository) Update(ctx context.Context, c *customer.Customer) error {
	tag, err := conn(ctx, r.pool).Exec(ctx, updateCustomerSQL,
		c.ID, c.Name, c.Email, string(c.Tier), c.TotalOrders, c.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err, emailConstraint) {
			return customer.ErrDuplicateEmail
		}
		return fmt.Errorf("updating customer %q: %w", c.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return customer.ErrNotFound
	}
	return nil
}

// Rename updates the contact columns only. Under a running order the row
// lock makes it wait for the order to commit.
func (r *CustomerRepository) Rename(ctx context.Context, id, name, email string, at time.Time) (*customer.Customer, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, renameCustomerSQL, id, name, email, at)
	if err != nil {
		return nil, fmt.Errorf("renaming customer %q: %w", id, err)
	}
	c, err := pgx.CollectExactlyOneRow(rows, scanCustomer)
	if err != nil {
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			return nil, customer.ErrNotFound
		case isUniqueViolation(err, emailConstraint):
			return nil, customer.ErrDuplicateEmail
		}
		return nil, fmt.Errorf("renaming customer %q: %w", id, err)
	}
	return &c, nil
}

// FindByID returns a single customer by its identifier.
func (r *CustomerRepository) FindByID(ctx context.Context, id string) (*customer.Customer, error) {
	return r.findOne(ctx, getCustomerByIDSQL, id)
}

// FindByEmail returns the customer registered under email.
func (r *CustomerRepository) FindByEmail(ctx context.Context, email string) (*customer.Customer, error) {
	return r.findOne(ctx, getCustomerByEmailSQL, email)
}

func (r *CustomerRepository) findOne(ctx context.Context, sql string, arg string) (*customer.Customer, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, sql, arg)
	if err != nil {
		return nil, fmt.Errorf("getting customer %q: %w", arg, err)
	}

	c, err := pgx.CollectExactlyOneRow(rows, scanCustomer)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, customer.ErrNotFound
		}
		return nil, fmt.Errorf("getting customer %q: %w", arg, err)
	}
	return &c, nil
}

// ExistsByEmail reports whether any customer uses email.
func (r *CustomerRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	var exists bool
	if err := conn(ctx, r.pool).QueryRow(ctx, customerEmailExistsSQL, email).Scan(&exists); err != nil {
		return false, fmt.Errorf("checking email: %w", err)
	}
	return exists, nil
}

// List returns all customers ordered by registration time.
func (r *CustomerRepository) List(ctx context.Context) ([]customer.Customer, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, listCustomersSQL)
	if err != nil {
		return nil, fmt.Errorf("listing customers: %w", err)
	}
	return pgx.CollectRows(rows, scanCustomer)
}

// Delete removes a customer. Its orders go with it through ON DELETE CASCADE.
func (r *CustomerRepository) Delete(ctx context.Context, id string) error {
	tag, err := conn(ctx, r.pool).Exec(ctx, deleteCustomerSQL, id)
	if err != nil {
		return fmt.Errorf("deleting customer %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return customer.ErrNotFound
	}
	return nil
}

// FindByTierAndOrderCount returns customers holding tier t with exactly
// count completed orders.
func (r *CustomerRepository) FindByTierAndOrderCount(ctx context.Context, t tier.Tier, count int) ([]customer.Customer, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, listCustomersByTierAndOrdersSQL, string(t), count)
	if err != nil {
		return nil, fmt.Errorf("listing %s customers at %d orders: %w", t, count, err)
	}
	return pgx.CollectRows(rows, scanCustomer)
}

func scanCustomer(row pgx.CollectableRow) (customer.Customer, error) {
	var (
		c        customer.Customer
		tierName string
	)
	err := row.Scan(&c.ID, &c.Name, &c.Email, &tierName, &c.TotalOrders, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return c, err
	}
	c.Tier = tier.Tier(tierName)
	return c, nil
}
