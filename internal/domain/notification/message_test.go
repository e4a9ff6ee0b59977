package notification

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/xenking/loyalty-orders/internal/domain/customer"
	"github.com/xenking/loyalty-orders/internal/domain/tier"
)

func TestUpgradeMessage(t *testing.T) {
	t.Parallel()

	msg := UpgradeMessage(customer.Customer{Name: "Test User", Tier: tier.Gold, TotalOrders: 10})
	assert.Equal(t, "Congratulations on Your Tier Upgrade!", msg.Subject)
	assert.Equal(t,
		"Congratulations Test User! You have been upgraded to GOLD tier. You now enjoy a 10% discount on all your orders!",
		msg.Body,
	)

	msg = UpgradeMessage(customer.Customer{Name: "Test User", Tier: tier.Platinum, TotalOrders: 20})
	assert.Contains(t, msg.Body, "PLATINUM tier")
	assert.Contains(t, msg.Body, "20% discount")
}

func TestProgressionMessage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		c         customer.Customer
		remaining int
		want      string
	}{
		{
			name:      "regular one away",
			c:         customer.Customer{Name: "Ann", Tier: tier.Regular, TotalOrders: 9},
			remaining: 1,
			want:      "Dear Ann, you have placed 9 orders with us. Place 1 more order to be promoted to GOLD tier and enjoy 10% discount!",
		},
		{
			name:      "gold one away",
			c:         customer.Customer{Name: "Ann", Tier: tier.Gold, TotalOrders: 19},
			remaining: 1,
			want:      "Dear Ann, you have placed 19 orders with us. Place 1 more order to be promoted to PLATINUM tier and enjoy 20% discount!",
		},
		{
			name:      "plural",
			c:         customer.Customer{Name: "Ann", Tier: tier.Gold, TotalOrders: 17},
			remaining: 3,
			want:      "Dear Ann, you have placed 17 orders with us. Place 3 more orders to be promoted to PLATINUM tier and enjoy 20% discount!",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			msg := ProgressionMessage(tt.c, tt.remaining)
			assert.Equal(t, "Almost there! You're close to a tier upgrade!", msg.Subject)
			assert.Equal(t, tt.want, msg.Body)
		})
	}
}
