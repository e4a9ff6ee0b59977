package notification

import (
	"fmt"

	"github.com/xenking/loyalty-orders/internal/domain/customer"
)

// Message is a rendered notification.
type Message struct {
	Subject string
	Body    string
}

// UpgradeMessage congratulates c on the tier it currently holds.
func UpgradeMessage(c customer.Customer) Message {
	return Message{
		Subject: "Congratulations on Your Tier Upgrade!",
		Body: fmt.Sprintf(
			"Congratulations %s! You have been upgraded to %s tier. You now enjoy a %s%% discount on all your orders!",
			c.Name, c.Tier, c.Tier.Percent().StringFixed(0),
		),
	}
}

// ProgressionMessage tells c how many orders separate it from the next tier.
func ProgressionMessage(c customer.Customer, ordersRemaining int) Message {
	next := c.Tier.Next()
	noun := "orders"
	if ordersRemaining == 1 {
		noun = "order"
	}
	return Message{
		Subject: "Almost there! You're close to a tier upgrade!",
		Body: fmt.Sprintf(
			"Dear %s, you have placed %d orders with us. Place %d more %s to be promoted to %s tier and enjoy %s%% discount!",
			c.Name, c.TotalOrders, ordersRemaining, noun, next, next.Percent().StringFixed(0),
		),
	}
}
