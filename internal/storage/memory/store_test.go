package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/xenking/loyalty-orders/internal/domain/auth"
	"github.com/xenking/loyalty-orders/internal/domain/customer"
	"github.com/xenking/loyalty-orders/internal/domain/order"
	"github.com/xenking/loyalty-orders/internal/domain/tier"
)

type nopNotifier struct{}

func (nopNotifier) SendUpgrade(context.Context, customer.Customer) error { return nil }

func (nopNotifier) SendProgressionAlert(context.Context, customer.Customer, int) error { return nil }

func mustCustomer(t *testing.T, s *Store, email string) *customer.Customer {
	t.Helper()

	c, err := customer.New("Test User", email, "", time.Now())
	require.NoError(t, err)
	require.NoError(t, s.Customers().Create(context.Background(), c))
	return c
}

func TestCustomerRepository(t *testing.T) {
	t.Parallel()

	s := NewStore()
	repo := s.Customers()
	ctx := context.Background()

	a := mustCustomer(t, s, "a@example.com")
	b := mustCustomer(t, s, "b@example.com")

	dup, err := customer.New("Dup", "a@example.com", "", time.Now())
	require.NoError(t, err)
	require.ErrorIs(t, repo.Create(ctx, dup), customer.ErrDuplicateEmail)

	b.Email = "a@example.com"
	require.ErrorIs(t, repo.Update(ctx, b), customer.ErrDuplicateEmail)

	a.Email = "a2@example.com"
	require.NoError(t, repo.Update(ctx, a))

	exists, err := repo.ExistsByEmail(ctx, "a@example.com")
	require.NoError(t, err)
	assert.False(t, exists, "old email must be released")

	got, err := repo.FindByEmail(ctx, "a2@example.com")
	require.NoError(t, err)
	assert.Equal(t, a.ID, got.ID)

	list, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 2)

	_, err = repo.FindByID(ctx, "missing")
	require.ErrorIs(t, err, customer.ErrNotFound)
	require.ErrorIs(t, repo.Update(ctx, &customer.Customer{ID: "missing"}), customer.ErrNotFound)
}

func TestCustomerRepository_Delete_CascadesOrders(t *testing.T) {
	t.Parallel()

	s := NewStore()
	ctx := context.Background()
	c := mustCustomer(t, s, "a@example.com")

	o := &order.Order{ID: "o1", CustomerID: c.ID, Amount: decimal.NewFromInt(1), OrderDate: time.Now()}
	require.NoError(t, s.Orders().Create(ctx, o))

	require.NoError(t, s.Customers().Delete(ctx, c.ID))
	_, err := s.Orders().FindByID(ctx, "o1")
	require.ErrorIs(t, err, order.ErrNotFound)
	require.ErrorIs(t, s.Customers().Delete(ctx, c.ID), customer.ErrNotFound)

	exists, err := s.Customers().ExistsByEmail(ctx, "a@example.com")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestWithCustomerLock_RollsBack(t *testing.T) {
	t.Parallel()

	s := NewStore()
	ctx := context.Background()
	c := mustCustomer(t, s, "a@example.com")

	err := s.WithCustomerLock(ctx, c.ID, func(ctx context.Context) error {
		require.NoError(t, s.Orders().Create(ctx, &order.Order{ID: "o1", CustomerID: c.ID}))

		staged, err := s.Orders().FindByID(ctx, "o1")
		require.NoError(t, err)
		assert.Equal(t, c.ID, staged.CustomerID)

		updated := *c
		updated.TotalOrders = 1
		require.NoError(t, s.Customers().Update(ctx, &updated))

		got, err := s.Customers().FindByID(ctx, c.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, got.TotalOrders, "reads inside the unit see staged writes")
		return assert.AnError
	})
	require.ErrorIs(t, err, assert.AnError)

	_, err = s.Orders().FindByID(ctx, "o1")
	require.ErrorIs(t, err, order.ErrNotFound)
	got, err := s.Customers().FindByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Zero(t, got.TotalOrders)

	err = s.WithCustomerLock(ctx, "missing", func(context.Context) error { return nil })
	require.ErrorIs(t, err, customer.ErrNotFound)
}

func TestWithCustomerLock_ReleasesLocks(t *testing.T) {
	t.Parallel()

	s := NewStore()
	c := mustCustomer(t, s, "a@example.com")

	for range 3 {
		require.NoError(t, s.WithCustomerLock(context.Background(), c.ID, func(context.Context) error { return nil }))
	}
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	assert.Empty(t, s.locks)
}

func TestPlaceOrder_ConcurrentSameCustomer(t *testing.T) {
	t.Parallel()

	s := NewStore()
	c := mustCustomer(t, s, "a@example.com")
	svc, err := order.NewService(s.Customers(), s.Orders(), s, nopNotifier{}, noop.NewMeterProvider().Meter("test"))
	require.NoError(t, err)

	const n = 25
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.PlaceOrder(context.Background(), order.PlaceOrderRequest{
				CustomerID: c.ID,
				Amount:     decimal.NewNullDecimal(decimal.RequireFromString("100.00")),
			})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	got, err := s.Customers().FindByID(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, n, got.TotalOrders)
	assert.Equal(t, tier.Platinum, got.Tier)

	list, err := s.Orders().ListByCustomer(context.Background(), c.ID)
	require.NoError(t, err)
	require.Len(t, list, n)

	byDiscount := map[string]int{}
	for _, o := range list {
		byDiscount[o.DiscountAmount.StringFixed(2)]++
	}
	assert.Equal(t, map[string]int{"0.00": 10, "10.00": 10, "20.00": 5}, byDiscount)
}

// orderOnRead places an order right after the first FindByID returns, which
// is the window between reading a customer and writing it back.
type orderOnRead struct {
	*CustomerRepository
	once  sync.Once
	place func()
}

func (r *orderOnRead) FindByID(ctx context.Context, id string) (*customer.Customer, error) {
	c, err := r.CustomerRepository.FindByID(ctx, id)
	r.once.Do(r.place)
	return c, err
}

func TestRename_KeepsConcurrentOrder(t *testing.T) {
	t.Parallel()

	s := NewStore()
	ctx := context.Background()
	c := mustCustomer(t, s, "a@example.com")
	orders, err := order.NewService(s.Customers(), s.Orders(), s, nopNotifier{}, noop.NewMeterProvider().Meter("test"))
	require.NoError(t, err)

	repo := &orderOnRead{CustomerRepository: s.Customers(), place: func() {
		_, err := orders.PlaceOrder(ctx, order.PlaceOrderRequest{
			CustomerID: c.ID,
			Amount:     decimal.NewNullDecimal(decimal.RequireFromString("10.00")),
		})
		require.NoError(t, err)
	}}

	renamed, err := customer.NewService(repo).Update(ctx, c.ID, customer.UpdateRequest{Name: "Renamed", Email: "renamed@example.com"})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", renamed.Name)
	assert.Equal(t, 1, renamed.TotalOrders)

	got, err := s.Customers().FindByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.TotalOrders)
	assert.Equal(t, "renamed@example.com", got.Email)

	exists, err := s.Customers().ExistsByEmail(ctx, "a@example.com")
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = s.Customers().Rename(ctx, "missing", "X", "x@example.com", time.Now())
	require.ErrorIs(t, err, customer.ErrNotFound)
	other := mustCustomer(t, s, "b@example.com")
	_, err = s.Customers().Rename(ctx, other.ID, "X", "renamed@example.com", time.Now())
	require.ErrorIs(t, err, customer.ErrDuplicateEmail)
}

func TestAPIKeyRepository(t *testing.T) {
	t.Parallel()

	s := NewStore()
	repo := s.APIKeys()
	ctx := context.Background()

	require.NoError(t, repo.Upsert(ctx, auth.Key{ID: "k1", Hash: "h1", Name: "old"}))
	require.NoError(t, repo.Upsert(ctx, auth.Key{ID: "k1", Hash: "h2", Name: "rotated"}))

	_, err := repo.FindByHash(ctx, "h1")
	require.ErrorIs(t, err, auth.ErrNotFound)

	k, err := repo.FindByHash(ctx, "h2")
	require.NoError(t, err)
	assert.Equal(t, "rotated", k.Name)
}
