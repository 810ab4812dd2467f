// Package messaging turns ingress messages into order book calls.
//
// Every Kafka record carries one JSON envelope:
//
//	{"type":"ask",        "tick":[trader, message, order, price, quantity, timeout, timestamp]}
//	{"type":"bid",        "tick":[...]}
//	{"type":"cancel",     "order":{"trader_id":"t","order_number":7}}
//	{"type":"trade",      "trade":{...}}
//	{"type":"trade_tick", "a":{...}, "b":{...}, "quantity":5, "cutoff":12.5}
package messaging

import (
	"encoding/json"

	"github.com/Aidin1998/tickbook/internal/trading/model"
	"github.com/Aidin1998/tickbook/pkg/errors"
)

// Message types
const (
	TypeAsk       = "ask"
	TypeBid       = "bid"
	TypeCancel    = "cancel"
	TypeTrade     = "trade"
	TypeTradeTick = "trade_tick"
)

// OrderRef is an order id on the wire. The order number may be a JSON
// string or integer.
type OrderRef struct {
	TraderID    string          `json:"trader_id"`
	OrderNumber json.RawMessage `json:"order_number"`
}

func (r OrderRef) orderID() (model.OrderID, error) {
	if r.TraderID == "" {
		return model.OrderID{}, errors.ErrInvalidArgument.Explain("order reference without trader_id")
	}
	number, err := model.ParseOrderNumber(r.OrderNumber)
	if err != nil {
		return model.OrderID{}, err
	}
	return model.NewOrderID(model.TraderID(r.TraderID), number), nil
}

// Envelope is the wire form of every ingress message.
type Envelope struct {
	Type     string              `json:"type"`
	Tick     *model.NetworkTuple `json:"tick,omitempty"`
	Order    *OrderRef           `json:"order,omitempty"`
	Trade    *model.Trade        `json:"trade,omitempty"`
	A        *OrderRef           `json:"a,omitempty"`
	B        *OrderRef           `json:"b,omitempty"`
	Quantity int64               `json:"quantity,omitempty"`
	Cutoff   *model.Timestamp    `json:"cutoff,omitempty"`
}

// Message is a decoded envelope with the market's tags applied. Exactly the
// fields of its Type are set.
type Message struct {
	Type     string
	Tick     *model.Tick
	Order    model.OrderID
	Trade    model.Trade
	A, B     model.OrderID
	Quantity model.Quantity
	Cutoff   model.Timestamp
}

// Decode parses and validates one envelope for market m.
func Decode(data []byte, m model.Market) (*Message, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, errors.ErrInvalidArgument.Explain("malformed envelope").Wrap(err)
	}

	msg := &Message{Type: env.Type}
	switch env.Type {
	case TypeAsk, TypeBid:
		if env.Tick == nil {
			return nil, errors.ErrInvalidArgument.Explain("%s message without tick", env.Type)
		}
		dir := model.Ask
		if env.Type == TypeBid {
			dir = model.Bid
		}
		tick, err := model.FromNetwork(*env.Tick, dir, m)
		if err != nil {
			return nil, err
		}
		msg.Tick = tick

	case TypeCancel:
		if env.Order == nil {
			return nil, errors.ErrInvalidArgument.Explain("cancel message without order")
		}
		id, err := env.Order.orderID()
		if err != nil {
			return nil, err
		}
		msg.Order = id

	case TypeTrade:
		if env.Trade == nil {
			return nil, errors.ErrInvalidArgument.Explain("trade message without trade")
		}
		if env.Trade.Price.Tag() != m.PriceTag || env.Trade.Quantity.Tag() != m.QuantityTag {
			return nil, errors.ErrIncompatibleUnit.Explain("trade in %s/%s on market %s",
				env.Trade.Quantity.Tag(), env.Trade.Price.Tag(), m)
		}
		msg.Trade = *env.Trade

	case TypeTradeTick:
		if env.A == nil || env.B == nil || env.Cutoff == nil {
			return nil, errors.ErrInvalidArgument.Explain("trade_tick message needs a, b and cutoff")
		}
		a, err := env.A.orderID()
		if err != nil {
			return nil, err
		}
		b, err := env.B.orderID()
		if err != nil {
			return nil, err
		}
		qty, err := model.NewQuantity(env.Quantity, m.QuantityTag)
		if err != nil {
			return nil, err
		}
		msg.A, msg.B, msg.Quantity, msg.Cutoff = a, b, qty, *env.Cutoff

	default:
		return nil, errors.ErrInvalidArgument.Explain("unknown message type %q", env.Type)
	}
	return msg, nil
}

// Applier is the book surface messages are applied to.
type Applier interface {
	InsertAsk(tick *model.Tick) error
	InsertBid(tick *model.Tick) error
	RemoveTick(id model.OrderID) bool
	TradeTick(a, b model.OrderID, qty model.Quantity, cutoff model.Timestamp) error
	InsertTrade(trade model.Trade)
}

// Apply performs msg on book. Cancelling an unknown order is not an error.
func Apply(book Applier, msg *Message) error {
	switch msg.Type {
	case TypeAsk:
		return book.InsertAsk(msg.Tick)
	case TypeBid:
		return book.InsertBid(msg.Tick)
	case TypeCancel:
		book.RemoveTick(msg.Order)
		return nil
	case TypeTrade:
		book.InsertTrade(msg.Trade)
		return nil
	case TypeTradeTick:
		return book.TradeTick(msg.A, msg.B, msg.Quantity, msg.Cutoff)
	default:
		return errors.ErrInvalidArgument.Explain("unknown message type %q", msg.Type)
	}
}
