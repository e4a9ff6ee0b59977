// Package notification decides which loyalty notification an order triggers
// and renders its text.
package notification

import (
	"context"

	"github.com/xenking/loyalty-orders/internal/domain/customer"
	"github.com/xenking/loyalty-orders/internal/domain/tier"
)

// Kind identifies a notification type.
type Kind string

const (
	KindNone        Kind = ""
	KindUpgrade     Kind = "upgrade"
	KindProgression Kind = "progression"
)

// Decision is the outcome of Decide.
type Decision struct {
	Kind Kind
	// OrdersRemaining is set for progression alerts.
	OrdersRemaining int
}

// Decide maps a tier transition to a notification. An upgrade on this very
// order wins over a progression alert.
func Decide(t customer.Transition) Decision {
	if t.Upgraded() {
		return Decision{Kind: KindUpgrade}
	}
	if tier.AboutToProgress(t.PreviousTier, t.OrderCount) {
		return Decision{Kind: KindProgression, OrdersRemaining: 1}
	}
	return Decision{Kind: KindNone}
}

// Notifier delivers loyalty notifications. Implementations must not block
// the caller on delivery.
type Notifier interface {
	SendUpgrade(ctx context.Context, c customer.Customer) error
	SendProgressionAlert(ctx context.Context, c customer.Customer, ordersRemaining int) error
}

// Dispatch sends the notification selected by d. KindNone is a no-op.
func Dispatch(ctx context.Context, n Notifier, c customer.Customer, d Decision) error {
	switch d.Kind {
	case KindUpgrade:
		return n.SendUpgrade(ctx, c)
	case KindProgression:
		return n.SendProgressionAlert(ctx, c, d.OrdersRemaining)
	default:
		return nil
	}
}
