package orderbook

import (
	"strings"

	"github.com/Aidin1998/tickbook/internal/trading/model"
	"github.com/Aidin1998/tickbook/pkg/errors"
)

// PriceLevel holds every entry resting at one price in arrival order.
// Depth is maintained on every append, remove and reduction; it is never
// recomputed by scanning.
type PriceLevel struct {
	price      model.Price
	head, tail *TickEntry
	length     int
	depth      model.Quantity
}

// NewPriceLevel creates an empty level. Depth is counted in quantityTag.
func NewPriceLevel(price model.Price, quantityTag string) *PriceLevel {
	return &PriceLevel{price: price, depth: model.ZeroQuantity(quantityTag)}
}

func (pl *PriceLevel) Price() model.Price { return pl.price }

// Depth is the sum of the remaining quantities of all entries.
func (pl *PriceLevel) Depth() model.Quantity { return pl.depth }

func (pl *PriceLevel) Len() int { return pl.length }

// First is the oldest entry, nil when the level is empty.
func (pl *PriceLevel) First() *TickEntry { return pl.head }

// Last is the newest entry, nil when the level is empty.
func (pl *PriceLevel) Last() *TickEntry { return pl.tail }

// Append puts a detached entry at the back of the queue.
func (pl *PriceLevel) Append(e *TickEntry) error {
	if e.level != nil {
		return errors.ErrInvalidArgument.Explain("entry %s already rests at %s", e.OrderID(), e.level.price)
	}
	if c, err := e.Price().Cmp(pl.price); err != nil {
		return err
	} else if c != 0 {
		return errors.ErrInvalidArgument.Explain("entry %s priced %s appended at %s", e.OrderID(), e.Price(), pl.price)
	}
	depth, err := pl.depth.Add(e.remaining)
	if err != nil {
		return err
	}

	e.level = pl
	e.prev = pl.tail
	e.next = nil
	if pl.tail != nil {
		pl.tail.next = e
	} else {
		pl.head = e
	}
	pl.tail = e
	pl.length++
	pl.depth = depth
	return nil
}

// Remove unlinks e from the queue.
func (pl *PriceLevel) Remove(e *TickEntry) error {
	if e.level != pl {
		return errors.ErrNotFound.Explain("entry %s does not rest at %s", e.OrderID(), pl.price)
	}
	depth, err := pl.depth.Sub(e.remaining)
	if err != nil {
		return err
	}

	if e.prev != nil {
		e.prev.next = e.next
	} else {
		pl.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		pl.tail = e.prev
	}
	e.prev, e.next, e.level = nil, nil, nil
	pl.length--
	pl.depth = depth
	return nil
}

// Scan walks the entries oldest first until fn returns false.
func (pl *PriceLevel) Scan(fn func(e *TickEntry) bool) {
	for e := pl.head; e != nil; {
		next := e.next
		if !fn(e) {
			return
		}
		e = next
	}
}

// Entries returns the entries oldest first.
func (pl *PriceLevel) Entries() []*TickEntry {
	out := make([]*TickEntry, 0, pl.length)
	pl.Scan(func(e *TickEntry) bool {
		out = append(out, e)
		return true
	})
	return out
}

func (pl *PriceLevel) String() string {
	var sb strings.Builder
	pl.Scan(func(e *TickEntry) bool {
		sb.WriteString(e.String())
		sb.WriteByte('\n')
		return true
	})
	return sb.String()
}
