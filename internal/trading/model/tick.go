package model

import (
	"fmt"
	"math"

	"github.com/Aidin1998/tickbook/pkg/errors"
)

// Direction tells asks (sell intents) from bids (buy intents).
type Direction uint8

const (
	Ask Direction = iota + 1
	Bid
)

func (d Direction) String() string {
	switch d {
	case Ask:
		return "ask"
	case Bid:
		return "bid"
	default:
		return fmt.Sprintf("direction(%d)", uint8(d))
	}
}

// Opposite returns the direction a tick trades against.
func (d Direction) Opposite() Direction {
	if d == Ask {
		return Bid
	}
	return Ask
}

func (d Direction) Valid() bool { return d == Ask || d == Bid }

func ParseDirection(s string) (Direction, error) {
	switch s {
	case "ask", "sell":
		return Ask, nil
	case "bid", "buy":
		return Bid, nil
	}
	return 0, errors.ErrInvalidArgument.Explain("unknown direction %q", s)
}

func (d Direction) MarshalText() ([]byte, error) {
	if !d.Valid() {
		return nil, errors.ErrInvalidArgument.Explain("cannot encode %s", d)
	}
	return []byte(d.String()), nil
}

func (d *Direction) UnmarshalText(b []byte) error {
	v, err := ParseDirection(string(b))
	if err != nil {
		return err
	}
	*d = v
	return nil
}

// Tick is one order intent as announced on the network. Ticks never change
// after construction; remaining quantities live in the book.
type Tick struct {
	messageID MessageID
	orderID   OrderID
	price     Price
	quantity  Quantity
	timeout   Timeout
	timestamp Timestamp
	direction Direction
}

// NewTick validates and builds a tick.
func NewTick(dir Direction, mid MessageID, oid OrderID, price Price, qty Quantity, timeout Timeout, ts Timestamp) (*Tick, error) {
	if !dir.Valid() {
		return nil, errors.ErrInvalidArgument.Explain("tick %s has no direction", oid)
	}
	if _, err := NewTimeout(float64(timeout)); err != nil {
		return nil, err
	}
	if _, err := NewTimestamp(float64(ts)); err != nil {
		return nil, err
	}
	if price.mantissa < 0 || qty.mantissa < 0 {
		return nil, errors.ErrInvalidArgument.Explain("tick %s carries a negative amount", oid)
	}
	return &Tick{
		messageID: mid,
		orderID:   oid,
		price:     price,
		quantity:  qty,
		timeout:   timeout,
		timestamp: ts,
		direction: dir,
	}, nil
}

func NewAsk(mid MessageID, oid OrderID, price Price, qty Quantity, timeout Timeout, ts Timestamp) (*Tick, error) {
	return NewTick(Ask, mid, oid, price, qty, timeout, ts)
}

func NewBid(mid MessageID, oid OrderID, price Price, qty Quantity, timeout Timeout, ts Timestamp) (*Tick, error) {
	return NewTick(Bid, mid, oid, price, qty, timeout, ts)
}

func (t *Tick) MessageID() MessageID { return t.messageID }
func (t *Tick) OrderID() OrderID { return t.orderID }
func (t *Tick) Price() Price { return t.price }
func (t *Tick) Quantity() Quantity { return t.quantity }
func (t *Tick) Timeout() Timeout { return t.timeout }
func (t *Tick) Timestamp() Timestamp { return t.timestamp }
func (t *Tick) Direction() Direction { return t.direction }
func (t *Tick) IsAsk() bool { return t.direction == Ask }
func (t *Tick) IsBid() bool { return t.direction == Bid }
func (t *Tick) Deadline() Timestamp { return t.timeout.Deadline(t.timestamp) }
func (t *Tick) Expires() bool { return !math.IsInf(float64(t.Deadline()), 1) }
func (t *Tick) IsValid(now Timestamp) bool { return !t.timeout.IsTimedOut(t.timestamp, now) }

// Equal reports whether both ticks stem from the same message.
func (t *Tick) Equal(o *Tick) bool {
	if t == nil || o == nil {
		return t == o
	}
	return t.messageID == o.messageID
}

func (t *Tick) String() string {
	return fmt.Sprintf("%s %s %s @ %s (%s)", t.direction, t.orderID, t.quantity, t.price, t.timestamp)
}
