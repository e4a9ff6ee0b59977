package tier

import "github.com/shopspring/decimal"

// Pricing is the outcome of applying a tier discount to an order amount.
type Pricing struct {
	Discount decimal.Decimal
	Final    decimal.Decimal
}

// Apply computes the discount for amount at tier t. The discount is rounded
// half-up to cents and the final amount is whatever remains, so
// Discount + Final always equals amount.
func Apply(amount decimal.Decimal, t Tier) Pricing {
	discount := amount.Mul(t.Rate()).Round(2)
	return Pricing{
		Discount: discount,
		Final:    amount.Sub(discount),
	}
}
