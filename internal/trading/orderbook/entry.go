package orderbook

import (
	"fmt"

	"github.com/Aidin1998/tickbook/internal/trading/model"
)

// TickEntry is the mutable book-side wrapper of a tick. It tracks the
// remaining quantity and its place in the FIFO queue of one PriceLevel.
type TickEntry struct {
	tick      *model.Tick
	remaining model.Quantity

	level      *PriceLevel
	prev, next *TickEntry
}

// NewTickEntry wraps tick with its full quantity remaining. The entry is
// detached until a PriceLevel appends it.
func NewTickEntry(tick *model.Tick) *TickEntry {
	return &TickEntry{tick: tick, remaining: tick.Quantity()}
}

func (e *TickEntry) Tick() *model.Tick { return e.tick }
func (e *TickEntry) OrderID() model.OrderID { return e.tick.OrderID() }
func (e *TickEntry) Price() model.Price { return e.tick.Price() }
func (e *TickEntry) Quantity() model.Quantity { return e.remaining }
func (e *TickEntry) IsFilled() bool { return e.remaining.IsZero() }

// PriceLevel returns the level holding the entry, nil when detached.
func (e *TickEntry) PriceLevel() *PriceLevel { return e.level }

// Next is the entry that arrived after this one at the same price.
func (e *TickEntry) Next() *TickEntry { return e.next }

// Prev is the entry that arrived before this one at the same price.
func (e *TickEntry) Prev() *TickEntry { return e.prev }

func (e *TickEntry) IsValid(now model.Timestamp) bool {
	return e.tick.IsValid(now)
}

// ReduceQuantity takes amount off the remaining quantity and keeps the
// owning level's depth in step. An entry that reaches zero stays where it
// is; removing it is up to the book.
func (e *TickEntry) ReduceQuantity(amount model.Quantity) error {
	rest, err := e.remaining.Sub(amount)
	if err != nil {
		return fmt.Errorf("reduce %s: %w", e.OrderID(), err)
	}
	if e.level != nil {
		depth, err := e.level.depth.Sub(amount)
		if err != nil {
			return fmt.Errorf("reduce depth at %s: %w", e.level.price, err)
		}
		e.level.depth = depth
	}
	e.remaining = rest
	return nil
}

func (e *TickEntry) String() string {
	return e.remaining.String() + "\t@\t" + e.Price().String()
}
