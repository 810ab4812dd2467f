// Package model holds the value types of the tick order book: prices,
// quantities, timestamps, timeouts, identifiers, ticks and trades.
//
// Every value here is immutable once constructed. Prices and quantities carry
// an asset tag and refuse arithmetic or comparison across tags.
package model

import (
	"math"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/Aidin1998/tickbook/pkg/errors"
)

// displayPlaces is the number of fractional digits used when rendering
// prices and quantities.
const displayPlaces = 6

// Market names the asset tags of one book. Prices are denominated in
// PriceTag and quantities in QuantityTag.
type Market struct {
	PriceTag    string `json:"price_tag" mapstructure:"price_tag"`
	QuantityTag string `json:"quantity_tag" mapstructure:"quantity_tag"`
}

func (m Market) String() string {
	return m.QuantityTag + "/" + m.PriceTag
}

// Price is a non-negative integer mantissa paired with an asset tag.
type Price struct {
	mantissa int64
	tag      string
}

// NewPrice builds a price. Negative mantissas are rejected.
func NewPrice(mantissa int64, tag string) (Price, error) {
	if mantissa < 0 {
		return Price{}, errors.ErrInvalidArgument.Explain("price mantissa %d is negative", mantissa)
	}
	return Price{mantissa: mantissa, tag: tag}, nil
}

func (p Price) Mantissa() int64 { return p.mantissa }
func (p Price) Tag() string { return p.tag }

// Cmp returns -1, 0 or +1. Prices with different tags cannot be compared.
func (p Price) Cmp(o Price) (int, error) {
	if p.tag != o.tag {
		return 0, incompatible("compare", p.tag, o.tag)
	}
	return cmpInt64(p.mantissa, o.mantissa), nil
}

// Sub returns the signed difference p - o.
func (p Price) Sub(o Price) (Delta, error) {
	if p.tag != o.tag {
		return Delta{}, incompatible("subtract", p.tag, o.tag)
	}
	return Delta{Mantissa: p.mantissa - o.mantissa, Tag: p.tag}, nil
}

// Mid returns floor((p + o) / 2).
func (p Price) Mid(o Price) (Price, error) {
	if p.tag != o.tag {
		return Price{}, incompatible("average", p.tag, o.tag)
	}
	m := p.mantissa/2 + o.mantissa/2 + (p.mantissa%2+o.mantissa%2)/2
	return Price{mantissa: m, tag: p.tag}, nil
}

func (p Price) Decimal() decimal.Decimal {
	return decimal.NewFromInt(p.mantissa)
}

func (p Price) String() string {
	return formatAmount(p.Decimal(), p.tag)
}

// Quantity is a non-negative integer mantissa paired with an asset tag.
type Quantity struct {
	mantissa int64
	tag      string
}

// NewQuantity builds a quantity. Negative mantissas are rejected.
func NewQuantity(mantissa int64, tag string) (Quantity, error) {
	if mantissa < 0 {
		return Quantity{}, errors.ErrInvalidArgument.Explain("quantity mantissa %d is negative", mantissa)
	}
	return Quantity{mantissa: mantissa, tag: tag}, nil
}

// ZeroQuantity is the empty amount of the given asset.
func ZeroQuantity(tag string) Quantity {
	return Quantity{tag: tag}
}

func (q Quantity) Mantissa() int64 { return q.mantissa }
func (q Quantity) Tag() string { return q.tag }
func (q Quantity) IsZero() bool { return q.mantissa == 0 }

func (q Quantity) Cmp(o Quantity) (int, error) {
	if q.tag != o.tag {
		return 0, incompatible("compare", q.tag, o.tag)
	}
	return cmpInt64(q.mantissa, o.mantissa), nil
}

// Add returns q + o. A sum beyond the mantissa range is an Overflow.
func (q Quantity) Add(o Quantity) (Quantity, error) {
	if q.tag != o.tag {
		return Quantity{}, incompatible("add", q.tag, o.tag)
	}
	if q.mantissa > math.MaxInt64-o.mantissa {
		return Quantity{}, errors.ErrOverflow.Explain("cannot add %s to %s", o, q)
	}
	return Quantity{mantissa: q.mantissa + o.mantissa, tag: q.tag}, nil
}

// Sub returns q - o. The result is never negative; a larger o is an
// Underflow.
func (q Quantity) Sub(o Quantity) (Quantity, error) {
	if q.tag != o.tag {
		return Quantity{}, incompatible("subtract", q.tag, o.tag)
	}
	if o.mantissa > q.mantissa {
		return Quantity{}, errors.ErrUnderflow.Explain("cannot take %s from %s", o, q)
	}
	return Quantity{mantissa: q.mantissa - o.mantissa, tag: q.tag}, nil
}

func (q Quantity) Decimal() decimal.Decimal {
	return decimal.NewFromInt(q.mantissa)
}

func (q Quantity) String() string {
	return formatAmount(q.Decimal(), q.tag)
}

// Delta is a signed price difference, as returned by spreads and relative
// prices.
type Delta struct {
	Mantissa int64  `json:"mantissa"`
	Tag      string `json:"tag"`
}

func (d Delta) String() string {
	return formatAmount(decimal.NewFromInt(d.Mantissa), d.Tag)
}

// Timeout is a lifetime in seconds. +Inf never expires.
type Timeout float64

// NewTimeout rejects negative and NaN durations.
func NewTimeout(seconds float64) (Timeout, error) {
	if math.IsNaN(seconds) || seconds < 0 {
		return 0, errors.ErrInvalidArgument.Explain("timeout %v is not a non-negative duration", seconds)
	}
	return Timeout(seconds), nil
}

// NoTimeout never expires.
var NoTimeout = Timeout(math.Inf(1))

func (t Timeout) Seconds() float64 { return float64(t) }
func (t Timeout) IsInfinite() bool { return math.IsInf(float64(t), 1) }

// Deadline is the wall-clock instant at which a tick created at ts stops
// being valid.
func (t Timeout) Deadline(ts Timestamp) Timestamp {
	return Timestamp(float64(ts) + float64(t))
}

// IsTimedOut reports whether a tick created at ts has expired at now.
func (t Timeout) IsTimedOut(ts, now Timestamp) bool {
	if t.IsInfinite() {
		return false
	}
	return t.Deadline(ts) < now
}

func (t Timeout) String() string {
	return strconv.FormatFloat(float64(t), 'f', -1, 64)
}

func formatAmount(amount decimal.Decimal, tag string) string {
	s := amount.StringFixed(displayPlaces)
	if tag == "" {
		return s
	}
	return s + " " + tag
}

func cmpInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func incompatible(op, a, b string) error {
	return errors.ErrIncompatibleUnit.Explain("cannot %s %q and %q amounts", op, a, b)
}
