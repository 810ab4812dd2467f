package model

// TraderID identifies a network participant.
type TraderID string

// OrderNumber is unique per trader. It may arrive as an integer or a string
// on the wire; it is kept in its textual form.
type OrderNumber string

// MessageNumber is unique per trader.
type MessageNumber string

// OrderID identifies one order owned by one trader.
type OrderID struct {
	Trader TraderID    `json:"trader_id"`
	Number OrderNumber `json:"order_number"`
}

func NewOrderID(trader TraderID, number OrderNumber) OrderID {
	return OrderID{Trader: trader, Number: number}
}

func (id OrderID) String() string {
	return string(id.Trader) + "." + string(id.Number)
}

// MessageID identifies the protocol message that created a tick.
type MessageID struct {
	Trader TraderID      `json:"trader_id"`
	Number MessageNumber `json:"message_number"`
}

func NewMessageID(trader TraderID, number MessageNumber) MessageID {
	return MessageID{Trader: trader, Number: number}
}

func (id MessageID) String() string {
	return string(id.Trader) + "." + string(id.Number)
}

// Less orders message ids by trader then number.
func (id MessageID) Less(o MessageID) bool {
	if id.Trader != o.Trader {
		return id.Trader < o.Trader
	}
	return id.Number < o.Number
}
