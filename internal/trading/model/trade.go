package model

import "fmt"

// Trade records an execution agreed between two traders. The book only
// keeps it for the recent trades view; it never decides trade terms.
type Trade struct {
	MessageID MessageID `json:"message_id"`
	Buyer     OrderID   `json:"buyer"`
	Seller    OrderID   `json:"seller"`
	Price     Price     `json:"price"`
	Quantity  Quantity  `json:"quantity"`
	Timestamp Timestamp `json:"timestamp"`
}

func (t Trade) String() string {
	return fmt.Sprintf("%s @ %s (%s)", t.Quantity, t.Price, t.Timestamp)
}
