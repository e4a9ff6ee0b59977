// Package tier holds the loyalty tier policy: which tier a customer earns for
// a given number of completed orders, and what discount each tier carries.
package tier

import (
	"strings"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Tier is a discrete loyalty level. Tiers are ordered: Regular < Gold < Platinum.
type Tier string

const (
	Regular  Tier = "REGULAR"
	Gold     Tier = "GOLD"
	Platinum Tier = "PLATINUM"
)

// Order counts at which a customer enters a tier.
const (
	GoldThreshold     = 10
	PlatinumThreshold = 20
)

// ErrUnknown is returned by Parse for values that name no tier.
var ErrUnknown = errors.New("unknown tier")

type policy struct {
	rank      int
	rate      decimal.Decimal
	threshold int
	next      Tier
}

var policies = map[Tier]policy{
	Regular:  {rank: 0, rate: decimal.Zero, threshold: 0, next: Gold},
	Gold:     {rank: 1, rate: decimal.RequireFromString("0.10"), threshold: GoldThreshold, next: Platinum},
	Platinum: {rank: 2, rate: decimal.RequireFromString("0.20"), threshold: PlatinumThreshold, next: Platinum},
}

var hundred = decimal.NewFromInt(100)

// All returns every tier in ascending order.
func All() []Tier {
	return []Tier{Regular, Gold, Platinum}
}

// Parse resolves a tier name case-insensitively.
func Parse(s string) (Tier, error) {
	t := Tier(strings.ToUpper(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", errors.Wrapf(ErrUnknown, "%q", s)
	}
	return t, nil
}

// Valid reports whether t is one of the known tiers.
func (t Tier) Valid() bool {
	_, ok := policies[t]
	return ok
}

func (t Tier) String() string { return string(t) }

// Rate is the fraction of the order amount taken off, e.g. 0.10 for Gold.
// Unknown tiers carry no discount.
func (t Tier) Rate() decimal.Decimal {
	return policies[t].rate
}

// Percent is Rate expressed in percent, e.g. 10 for Gold.
func (t Tier) Percent() decimal.Decimal {
	return t.Rate().Mul(hundred)
}

// Next returns the tier following t. Platinum is its own successor.
func (t Tier) Next() Tier {
	p, ok := policies[t]
	if !ok {
		return Regular
	}
	return p.next
}

// Less reports whether t ranks below other.
func (t Tier) Less(other Tier) bool {
	return policies[t].rank < policies[other].rank
}

// Max returns the higher ranked of a and b.
func Max(a, b Tier) Tier {
	if a.Less(b) {
		return b
	}
	return a
}

// ForOrderCount returns the tier earned by n completed orders.
func ForOrderCount(n int) Tier {
	switch {
	case n >= PlatinumThreshold:
		return Platinum
	case n >= GoldThreshold:
		return Gold
	default:
		return Regular
	}
}

// OrdersUntilNext returns how many more orders a customer at tier t with n
// completed orders needs before reaching the next tier. It is zero at the
// ceiling and never negative.
func OrdersUntilNext(t Tier, n int) int {
	if t == Platinum || !t.Valid() {
		return 0
	}
	remaining := policies[t.Next()].threshold - n
	if remaining < 0 {
		return 0
	}
	return remaining
}

// AboutToProgress reports whether the next order moves a customer at tier t
// with n completed orders into the next tier.
func AboutToProgress(t Tier, n int) bool {
	return OrdersUntilNext(t, n) == 1
}

// Checkpoint is a tier and completed order count from which exactly one more
// order reaches the next tier.
type Checkpoint struct {
	Tier   Tier
	Orders int
}

// Checkpoints returns the progression alert points in ascending tier order.
func Checkpoints() []Checkpoint {
	var out []Checkpoint
	for _, t := range All() {
		if t == t.Next() {
			continue
		}
		out = append(out, Checkpoint{Tier: t, Orders: policies[t.Next()].threshold - 1})
	}
	return out
}
