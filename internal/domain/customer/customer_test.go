package customer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/loyalty-orders/internal/domain/tier"
	"github.com/xenking/loyalty-orders/internal/domain/validation"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestNew(t *testing.T) {
	t.Parallel()

	c, err := New("  Ada Lovelace ", " ada@example.com ", "", testNow)
	require.NoError(t, err)
	assert.NotEmpty(t, c.ID)
	assert.Equal(t, "Ada Lovelace", c.Name)
	assert.Equal(t, "ada@example.com", c.Email)
	assert.Equal(t, tier.Regular, c.Tier)
	assert.Zero(t, c.TotalOrders)
	assert.Equal(t, testNow, c.CreatedAt)
}

func TestNew_SeededTier(t *testing.T) {
	t.Parallel()

	c, err := New("Grace", "grace@example.com", tier.Gold, testNow)
	require.NoError(t, err)
	assert.Equal(t, tier.Gold, c.Tier)
	assert.Zero(t, c.TotalOrders)
}

func TestNew_Invalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		cname string
		email string
		tier  tier.Tier
		field string
	}{
		{name: "blank name", cname: " ", email: "a@example.com", field: "name"},
		{name: "blank email", cname: "A", email: "", field: "email"},
		{name: "no at sign", cname: "A", email: "example.com", field: "email"},
		{name: "display name form", cname: "A", email: "A <a@example.com>", field: "email"},
		{name: "missing domain", cname: "A", email: "a@", field: "email"},
		{name: "unknown tier", cname: "A", email: "a@example.com", tier: "DIAMOND", field: "tier"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := New(tt.cname, tt.email, tt.tier, testNow)
			require.Error(t, err)
			verr, ok := validation.As(err)
			require.True(t, ok)
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

func TestRecordOrderCompleted(t *testing.T) {
	t.Parallel()

	c, err := New("A", "a@example.com", "", testNow)
	require.NoError(t, err)

	var upgrades []Transition
	for range 25 {
		tr := c.RecordOrderCompleted()
		if tr.Upgraded() {
			upgrades = append(upgrades, tr)
		}
	}

	assert.Equal(t, 25, c.TotalOrders)
	assert.Equal(t, tier.Platinum, c.Tier)
	require.Len(t, upgrades, 2)
	assert.Equal(t, Transition{PreviousTier: tier.Regular, NewTier: tier.Gold, OrderCount: 10}, upgrades[0])
	assert.Equal(t, Transition{PreviousTier: tier.Gold, NewTier: tier.Platinum, OrderCount: 20}, upgrades[1])
}

func TestRecordOrderCompleted_KeepsSeededTier(t *testing.T) {
	t.Parallel()

	c, err := New("A", "a@example.com", tier.Platinum, testNow)
	require.NoError(t, err)

	for range 10 {
		tr := c.RecordOrderCompleted()
		assert.False(t, tr.Upgraded())
		assert.False(t, c.Tier.Less(tier.ForOrderCount(c.TotalOrders)))
	}
	assert.Equal(t, tier.Platinum, c.Tier, "GOLD count does not lower a seeded PLATINUM")
	assert.Equal(t, 10, c.TotalOrders)
}

func TestRename(t *testing.T) {
	t.Parallel()

	c := &Customer{Name: "A", Email: "a@example.com", Tier: tier.Gold, TotalOrders: 12}
	require.NoError(t, c.Rename("B", "b@example.com"))
	assert.Equal(t, "B", c.Name)
	assert.Equal(t, "b@example.com", c.Email)
	assert.Equal(t, tier.Gold, c.Tier)
	assert.Equal(t, 12, c.TotalOrders)

	require.Error(t, c.Rename("", "c@example.com"))
	assert.Equal(t, "B", c.Name, "failed rename must not modify the customer")
}

func TestOrdersUntilNextTier(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 1, (&Customer{Tier: tier.Regular, TotalOrders: 9}).OrdersUntilNextTier())
	assert.Equal(t, 8, (&Customer{Tier: tier.Gold, TotalOrders: 12}).OrdersUntilNextTier())
	assert.Zero(t, (&Customer{Tier: tier.Platinum, TotalOrders: 40}).OrdersUntilNextTier())
}
