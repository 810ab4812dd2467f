package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"github.com/Aidin1998/tickbook/pkg/errors"
)

// JSON numbers cannot carry infinities, so non-finite floats travel as the
// strings "inf", "-inf" and "nan". Finite floats use the shortest
// representation that parses back to the same bits.
func appendFloat(dst []byte, f float64) []byte {
	switch {
	case math.IsInf(f, 1):
		return append(dst, `"inf"`...)
	case math.IsInf(f, -1):
		return append(dst, `"-inf"`...)
	case math.IsNaN(f):
		return append(dst, `"nan"`...)
	}
	return strconv.AppendFloat(dst, f, 'g', -1, 64)
}

func parseFloat(raw json.RawMessage) (float64, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, err
		}
		switch s {
		case "inf", "+inf", "Infinity":
			return math.Inf(1), nil
		case "-inf", "-Infinity":
			return math.Inf(-1), nil
		case "nan", "NaN":
			return math.NaN(), nil
		}
		return strconv.ParseFloat(s, 64)
	}
	return strconv.ParseFloat(string(raw), 64)
}

func parseInt(raw json.RawMessage) (int64, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, err
		}
		return strconv.ParseInt(s, 10, 64)
	}
	return strconv.ParseInt(string(raw), 10, 64)
}

// parseNumberText accepts a JSON string or a JSON integer and returns its
// text. Integers are rendered in canonical decimal form, so 7 and "7" give
// the same text. Fractions and exponents are rejected.
func parseNumberText(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '"' {
		var s string
		err := json.Unmarshal(raw, &s)
		return s, err
	}
	n, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return "", fmt.Errorf("%s is neither a string nor an integer", raw)
	}
	return strconv.FormatInt(n, 10), nil
}

// ParseOrderNumber reads an order number sent as a JSON string or integer.
func ParseOrderNumber(raw json.RawMessage) (OrderNumber, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return "", errors.ErrInvalidArgument.Explain("order_number is missing")
	}
	s, err := parseNumberText(raw)
	if err != nil {
		return "", errors.ErrInvalidArgument.Explain("order_number: %v", err)
	}
	return OrderNumber(s), nil
}

func (t Timeout) MarshalJSON() ([]byte, error) {
	return appendFloat(nil, float64(t)), nil
}

func (t *Timeout) UnmarshalJSON(b []byte) error {
	f, err := parseFloat(b)
	if err != nil {
		return errors.ErrInvalidArgument.Explain("timeout: %v", err)
	}
	v, err := NewTimeout(f)
	if err != nil {
		return err
	}
	*t = v
	return nil
}

func (ts Timestamp) MarshalJSON() ([]byte, error) {
	return appendFloat(nil, float64(ts)), nil
}

func (ts *Timestamp) UnmarshalJSON(b []byte) error {
	f, err := parseFloat(b)
	if err != nil {
		return errors.ErrInvalidArgument.Explain("timestamp: %v", err)
	}
	v, err := NewTimestamp(f)
	if err != nil {
		return err
	}
	*ts = v
	return nil
}

type amountJSON struct {
	Mantissa int64  `json:"mantissa"`
	Tag      string `json:"tag"`
}

func (p Price) MarshalJSON() ([]byte, error) {
	return json.Marshal(amountJSON{Mantissa: p.mantissa, Tag: p.tag})
}

func (p *Price) UnmarshalJSON(b []byte) error {
	var a amountJSON
	if err := json.Unmarshal(b, &a); err != nil {
		return err
	}
	v, err := NewPrice(a.Mantissa, a.Tag)
	if err != nil {
		return err
	}
	*p = v
	return nil
}

func (q Quantity) MarshalJSON() ([]byte, error) {
	return json.Marshal(amountJSON{Mantissa: q.mantissa, Tag: q.tag})
}

func (q *Quantity) UnmarshalJSON(b []byte) error {
	var a amountJSON
	if err := json.Unmarshal(b, &a); err != nil {
		return err
	}
	v, err := NewQuantity(a.Mantissa, a.Tag)
	if err != nil {
		return err
	}
	*q = v
	return nil
}

type tickJSON struct {
	Direction Direction `json:"direction"`
	MessageID MessageID `json:"message_id"`
	OrderID   OrderID   `json:"order_id"`
	Price     Price     `json:"price"`
	Quantity  Quantity  `json:"quantity"`
	Timeout   Timeout   `json:"timeout"`
	Timestamp Timestamp `json:"timestamp"`
}

// MarshalJSON encodes every field of the tick, tags and direction included.
// This is the storage form; the network form is NetworkTuple.
func (t *Tick) MarshalJSON() ([]byte, error) {
	return json.Marshal(tickJSON{
		Direction: t.direction,
		MessageID: t.messageID,
		OrderID:   t.orderID,
		Price:     t.price,
		Quantity:  t.quantity,
		Timeout:   t.timeout,
		Timestamp: t.timestamp,
	})
}

func (t *Tick) UnmarshalJSON(b []byte) error {
	var j tickJSON
	if err := json.Unmarshal(b, &j); err != nil {
		return err
	}
	v, err := NewTick(j.Direction, j.MessageID, j.OrderID, j.Price, j.Quantity, j.Timeout, j.Timestamp)
	if err != nil {
		return err
	}
	*t = *v
	return nil
}
