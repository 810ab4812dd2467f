package model

import (
	"bytes"
	"encoding/json"
	"strconv"

	"github.com/Aidin1998/tickbook/pkg/errors"
)

// NetworkTuple is the flat wire form of a tick:
//
//	[trader_id, message_number, order_number, price, quantity, timeout, timestamp]
//
// The direction and the asset tags are not part of the tuple; the receiving
// endpoint and its market supply them.
type NetworkTuple struct {
	TraderID      TraderID
	MessageNumber MessageNumber
	OrderNumber   OrderNumber
	Price         int64
	Quantity      int64
	Timeout       float64
	Timestamp     float64
}

const networkTupleLen = 7

// ToNetwork flattens the tick.
func (t *Tick) ToNetwork() NetworkTuple {
	return NetworkTuple{
		TraderID:      t.messageID.Trader,
		MessageNumber: t.messageID.Number,
		OrderNumber:   t.orderID.Number,
		Price:         t.price.mantissa,
		Quantity:      t.quantity.mantissa,
		Timeout:       float64(t.timeout),
		Timestamp:     float64(t.timestamp),
	}
}

// FromNetwork rebuilds a tick received on the dir endpoint of market m.
// The order and the message share the sending trader.
func FromNetwork(n NetworkTuple, dir Direction, m Market) (*Tick, error) {
	price, err := NewPrice(n.Price, m.PriceTag)
	if err != nil {
		return nil, err
	}
	qty, err := NewQuantity(n.Quantity, m.QuantityTag)
	if err != nil {
		return nil, err
	}
	timeout, err := NewTimeout(n.Timeout)
	if err != nil {
		return nil, err
	}
	ts, err := NewTimestamp(n.Timestamp)
	if err != nil {
		return nil, err
	}
	return NewTick(dir,
		NewMessageID(n.TraderID, n.MessageNumber),
		NewOrderID(n.TraderID, n.OrderNumber),
		price, qty, timeout, ts)
}

func (n NetworkTuple) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, s := range []string{string(n.TraderID), string(n.MessageNumber), string(n.OrderNumber)} {
		if i > 0 {
			buf.WriteByte(',')
		}
		b, err := json.Marshal(s)
		if err != nil {
			return nil, err
		}
		buf.Write(b)
	}
	buf.WriteByte(',')
	buf.WriteString(strconv.FormatInt(n.Price, 10))
	buf.WriteByte(',')
	buf.WriteString(strconv.FormatInt(n.Quantity, 10))
	buf.WriteByte(',')
	buf.Write(appendFloat(nil, n.Timeout))
	buf.WriteByte(',')
	buf.Write(appendFloat(nil, n.Timestamp))
	buf.WriteByte(']')
	return buf.Bytes(), nil
}

func (n *NetworkTuple) UnmarshalJSON(b []byte) error {
	var fields []json.RawMessage
	if err := json.Unmarshal(b, &fields); err != nil {
		return errors.ErrInvalidArgument.Explain("network tuple: %v", err)
	}
	if len(fields) != networkTupleLen {
		return errors.ErrInvalidArgument.Explain("network tuple has %d fields, want %d", len(fields), networkTupleLen)
	}

	var (
		out NetworkTuple
		err error
		s   string
	)
	if err = json.Unmarshal(fields[0], &s); err != nil {
		return errors.ErrInvalidArgument.Explain("trader_id: %v", err)
	}
	out.TraderID = TraderID(s)
	if s, err = parseNumberText(fields[1]); err != nil {
		return errors.ErrInvalidArgument.Explain("message_number: %v", err)
	}
	out.MessageNumber = MessageNumber(s)
	if out.OrderNumber, err = ParseOrderNumber(fields[2]); err != nil {
		return err
	}
	if out.Price, err = parseInt(fields[3]); err != nil {
		return errors.ErrInvalidArgument.Explain("price: %v", err)
	}
	if out.Quantity, err = parseInt(fields[4]); err != nil {
		return errors.ErrInvalidArgument.Explain("quantity: %v", err)
	}
	if out.Timeout, err = parseFloat(fields[5]); err != nil {
		return errors.ErrInvalidArgument.Explain("timeout: %v", err)
	}
	if out.Timestamp, err = parseFloat(fields[6]); err != nil {
		return errors.ErrInvalidArgument.Explain("timestamp: %v", err)
	}
	*n = out
	return nil
}
