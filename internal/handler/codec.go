package handler

import (
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/loyalty-orders/internal/domain/customer"
	"github.com/xenking/loyalty-orders/internal/domain/order"
	"github.com/xenking/loyalty-orders/internal/domain/tier"
	"github.com/xenking/loyalty-orders/internal/domain/validation"
)

const maxBodySize = 1 << 20

func writeJSON(w http.ResponseWriter, code int, encode func(e *jx.Encoder)) {
	var e jx.Encoder
	encode(&e)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(e.Bytes())
}

// money is written as a JSON number with exactly two decimals.
func encodeMoney(e *jx.Encoder, d decimal.Decimal) {
	e.Num(jx.Num(d.StringFixed(2)))
}

func encodeCustomer(e *jx.Encoder, c customer.Customer) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Str(c.ID) })
		e.Field("name", func(e *jx.Encoder) { e.Str(c.Name) })
		e.Field("email", func(e *jx.Encoder) { e.Str(c.Email) })
		e.Field("tier", func(e *jx.Encoder) { e.Str(c.Tier.String()) })
		e.Field("totalOrders", func(e *jx.Encoder) { e.Int(c.TotalOrders) })
		e.Field("ordersUntilNextTier", func(e *jx.Encoder) { e.Int(c.OrdersUntilNextTier()) })
		e.Field("createdAt", func(e *jx.Encoder) { e.Str(c.CreatedAt.UTC().Format(time.RFC3339Nano)) })
		e.Field("updatedAt", func(e *jx.Encoder) { e.Str(c.UpdatedAt.UTC().Format(time.RFC3339Nano)) })
	})
}

func encodeOrder(e *jx.Encoder, o order.Order) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Str(o.ID) })
		e.Field("customerId", func(e *jx.Encoder) { e.Str(o.CustomerID) })
		e.Field("amount", func(e *jx.Encoder) { encodeMoney(e, o.Amount) })
		e.Field("discountAmount", func(e *jx.Encoder) { encodeMoney(e, o.DiscountAmount) })
		e.Field("finalAmount", func(e *jx.Encoder) { encodeMoney(e, o.FinalAmount) })
		e.Field("orderDate", func(e *jx.Encoder) { e.Str(o.OrderDate.UTC().Format(time.RFC3339Nano)) })
	})
}

func readBody(r *http.Request) (*jx.Decoder, error) {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize+1))
	if err != nil {
		return nil, errors.Wrap(err, "read body")
	}
	if len(data) > maxBodySize {
		return nil, validation.New("body", "request body too large")
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, validation.New("body", "request body is required")
	}
	return jx.DecodeBytes(data), nil
}

func malformed(err error) error {
	return validation.New("body", "malformed JSON: "+err.Error())
}

// optionalStr reads a string, treating null as empty.
func optionalStr(d *jx.Decoder) (string, error) {
	if d.Next() == jx.Null {
		return "", d.Null()
	}
	return d.Str()
}

type customerInput struct {
	Name  string
	Email string
	Tier  tier.Tier
}

// decodeCustomer reads {"name","email","tier"}. Tier is optional and
// case-insensitive; only creation honours it.
func decodeCustomer(r *http.Request) (customerInput, error) {
	var in customerInput
	d, err := readBody(r)
	if err != nil {
		return in, err
	}
	if err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		var err error
		switch string(key) {
		case "name":
			in.Name, err = optionalStr(d)
		case "email":
			in.Email, err = optionalStr(d)
		case "tier":
			in.Tier, err = decodeTier(d)
		default:
			err = d.Skip()
		}
		return err
	}); err != nil {
		if _, ok := validation.As(err); ok {
			return in, err
		}
		return in, malformed(err)
	}
	return in, nil
}

func decodeTier(d *jx.Decoder) (tier.Tier, error) {
	s, err := optionalStr(d)
	if err != nil || strings.TrimSpace(s) == "" {
		return "", err
	}
	t, err := tier.Parse(s)
	if err != nil {
		return "", validation.New("tier", "unknown tier "+s)
	}
	return t, nil
}

// decodeAmount accepts a JSON number or a numeric string. Null leaves the
// amount unset.
func decodeAmount(d *jx.Decoder) (decimal.NullDecimal, error) {
	var raw string
	switch d.Next() {
	case jx.Null:
		return decimal.NullDecimal{}, d.Null()
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return decimal.NullDecimal{}, err
		}
		raw = s
	default:
		n, err := d.Num()
		if err != nil {
			return decimal.NullDecimal{}, err
		}
		raw = n.String()
	}
	v, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.NullDecimal{}, validation.New("amount", "amount must be a number")
	}
	return decimal.NewNullDecimal(v), nil
}

func decodePlaceOrder(r *http.Request) (order.PlaceOrderRequest, error) {
	var req order.PlaceOrderRequest
	d, err := readBody(r)
	if err != nil {
		return req, err
	}
	if err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		var err error
		switch string(key) {
		case "customerId":
			req.CustomerID, err = optionalStr(d)
		case "amount":
			req.Amount, err = decodeAmount(d)
		default:
			err = d.Skip()
		}
		return err
	}); err != nil {
		if _, ok := validation.As(err); ok {
			return req, err
		}
		return req, malformed(err)
	}
	return req, nil
}
