package orderbook

import (
	"github.com/tidwall/btree"

	"github.com/Aidin1998/tickbook/internal/trading/model"
	"github.com/Aidin1998/tickbook/pkg/errors"
)

// DepthEntry is one row of a depth profile.
type DepthEntry struct {
	Price model.Price    `json:"price"`
	Depth model.Quantity `json:"depth"`
}

// Side indexes the price levels of one direction of a book. Levels are kept
// in a B-tree keyed by price mantissa; entries are also indexed by order id.
// Every indexed entry rests in exactly one level of the tree and every entry
// of a level is indexed.
type Side struct {
	direction model.Direction
	market    model.Market
	levels    *btree.Map[int64, *PriceLevel]
	orders    map[model.OrderID]*TickEntry
}

func NewSide(dir model.Direction, market model.Market) *Side {
	return &Side{
		direction: dir,
		market:    market,
		levels:    btree.NewMap[int64, *PriceLevel](32),
		orders:    make(map[model.OrderID]*TickEntry),
	}
}

func (s *Side) Direction() model.Direction { return s.direction }

// Len is the number of resting ticks.
func (s *Side) Len() int { return len(s.orders) }

// Levels is the number of distinct prices.
func (s *Side) Levels() int { return s.levels.Len() }

// InsertTick appends tick at the back of its price level, creating the
// level if needed.
func (s *Side) InsertTick(tick *model.Tick) (*TickEntry, error) {
	if tick.Price().Tag() != s.market.PriceTag || tick.Quantity().Tag() != s.market.QuantityTag {
		return nil, errors.ErrIncompatibleUnit.Explain("tick %s is not in market %s", tick.OrderID(), s.market)
	}
	if _, ok := s.orders[tick.OrderID()]; ok {
		return nil, errors.ErrDuplicateOrder.Explain("order %s already on the %s side", tick.OrderID(), s.direction)
	}

	key := tick.Price().Mantissa()
	level, ok := s.levels.Get(key)
	if !ok {
		level = NewPriceLevel(tick.Price(), s.market.QuantityTag)
		s.levels.Set(key, level)
	}
	entry := NewTickEntry(tick)
	if err := level.Append(entry); err != nil {
		if level.Len() == 0 {
			s.levels.Delete(key)
		}
		return nil, err
	}
	s.orders[tick.OrderID()] = entry
	return entry, nil
}

// RemoveTick detaches the entry of id and drops its level once empty.
func (s *Side) RemoveTick(id model.OrderID) (*TickEntry, error) {
	entry, ok := s.orders[id]
	if !ok {
		return nil, errors.ErrNotFound.Explain("order %s not on the %s side", id, s.direction)
	}
	level := entry.level
	if err := level.Remove(entry); err != nil {
		return nil, err
	}
	if level.Len() == 0 {
		s.levels.Delete(level.price.Mantissa())
	}
	delete(s.orders, id)
	return entry, nil
}

func (s *Side) TickExists(id model.OrderID) bool {
	_, ok := s.orders[id]
	return ok
}

func (s *Side) GetTick(id model.OrderID) (*TickEntry, error) {
	entry, ok := s.orders[id]
	if !ok {
		return nil, errors.ErrNotFound.Explain("order %s not on the %s side", id, s.direction)
	}
	return entry, nil
}

// BestLevel is the highest bid level or the lowest ask level.
func (s *Side) BestLevel() (*PriceLevel, error) {
	var (
		level *PriceLevel
		ok    bool
	)
	if s.direction == model.Bid {
		_, level, ok = s.levels.Max()
	} else {
		_, level, ok = s.levels.Min()
	}
	if !ok {
		return nil, errors.ErrNotFound.Explain("%s side is empty", s.direction)
	}
	return level, nil
}

func (s *Side) BestPrice() (model.Price, error) {
	level, err := s.BestLevel()
	if err != nil {
		return model.Price{}, err
	}
	return level.price, nil
}

// PriceLevel looks up the level at exactly price. It never creates one.
func (s *Side) PriceLevel(price model.Price) (*PriceLevel, error) {
	if price.Tag() != s.market.PriceTag {
		return nil, errors.ErrIncompatibleUnit.Explain("price %s is not in market %s", price, s.market)
	}
	level, ok := s.levels.Get(price.Mantissa())
	if !ok {
		return nil, errors.ErrNotFound.Explain("no %s level at %s", s.direction, price)
	}
	return level, nil
}

// Ascend walks the levels from the lowest price up until fn returns false.
func (s *Side) Ascend(fn func(level *PriceLevel) bool) {
	s.levels.Scan(func(_ int64, level *PriceLevel) bool {
		return fn(level)
	})
}

// BestFirst walks the levels from the best price outwards.
func (s *Side) BestFirst(fn func(level *PriceLevel) bool) {
	if s.direction == model.Bid {
		s.levels.Reverse(func(_ int64, level *PriceLevel) bool {
			return fn(level)
		})
		return
	}
	s.Ascend(fn)
}

// DepthProfile lists (price, depth) for every level in ascending price.
func (s *Side) DepthProfile() []DepthEntry {
	out := make([]DepthEntry, 0, s.levels.Len())
	s.Ascend(func(level *PriceLevel) bool {
		out = append(out, DepthEntry{Price: level.price, Depth: level.depth})
		return true
	})
	return out
}

// Entries lists all entries best level first, oldest first within a level.
func (s *Side) Entries() []*TickEntry {
	out := make([]*TickEntry, 0, len(s.orders))
	s.BestFirst(func(level *PriceLevel) bool {
		level.Scan(func(e *TickEntry) bool {
			out = append(out, e)
			return true
		})
		return true
	})
	return out
}
