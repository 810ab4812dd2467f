// =============================
// Tick Order Book Core
// =============================
// This file implements the order book of one market: two sides of resting
// ticks, the timeouts that evict them, the trades applied to them and the
// queries answered from them.
//
// How it works:
// - Ticks are indexed by price in a B-tree per side and by order id.
// - Each accepted tick gets a timeout task keyed by side and order id.
// - Trades reduce remaining quantities; filled entries wait for PurgeFilled.
//
// The book does no locking. Its owner serializes every call, timeouts
// included (see internal/trading/engine).

package orderbook

import (
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/Aidin1998/tickbook/internal/trading/model"
	"github.com/Aidin1998/tickbook/pkg/errors"
)

// OrderBook holds the bids and asks of one market.
type OrderBook struct {
	market model.Market
	bids   *Side
	asks   *Side
	trades *tradeRing

	scheduler Scheduler[TimeoutKey]
	clock     model.Clock
	logger    *zap.Logger
	observer  Observer

	lastTimestamp model.Timestamp
	expired       int
}

// Option configures an OrderBook.
type Option func(*OrderBook)

func WithClock(c model.Clock) Option {
	return func(ob *OrderBook) { ob.clock = c }
}

func WithScheduler(s Scheduler[TimeoutKey]) Option {
	return func(ob *OrderBook) { ob.scheduler = s }
}

func WithLogger(l *zap.Logger) Option {
	return func(ob *OrderBook) {
		if l != nil {
			ob.logger = l
		}
	}
}

func WithObserver(o Observer) Option {
	return func(ob *OrderBook) {
		if o != nil {
			ob.observer = o
		}
	}
}

// WithTradeHistory sets how many recent trades are kept.
func WithTradeHistory(n int) Option {
	return func(ob *OrderBook) { ob.trades = newTradeRing(n) }
}

// New creates an empty book for market.
func New(market model.Market, opts ...Option) *OrderBook {
	ob := &OrderBook{
		market:    market,
		bids:      NewSide(model.Bid, market),
		asks:      NewSide(model.Ask, market),
		trades:    newTradeRing(DefaultTradeHistory),
		scheduler: NewDeadlineQueue[TimeoutKey](),
		clock:     model.SystemClock{},
		logger:    zap.NewNop(),
		observer:  nopObserver{},
	}
	for _, opt := range opts {
		opt(ob)
	}
	ob.logger = ob.logger.Named("orderbook").With(zap.Stringer("market", market))
	return ob
}

func (ob *OrderBook) Market() model.Market { return ob.market }
func (ob *OrderBook) Bids() *Side { return ob.bids }
func (ob *OrderBook) Asks() *Side { return ob.asks }

// LastTimestamp is the newest timestamp among the accepted ticks and the
// recorded trades.
func (ob *OrderBook) LastTimestamp() model.Timestamp { return ob.lastTimestamp }

func (ob *OrderBook) side(dir model.Direction) *Side {
	if dir == model.Bid {
		return ob.bids
	}
	return ob.asks
}

// TimeoutKey addresses the eviction task of one order on one side.
type TimeoutKey struct {
	Direction model.Direction
	OrderID   model.OrderID
}

func timeoutKey(dir model.Direction, id model.OrderID) TimeoutKey {
	return TimeoutKey{Direction: dir, OrderID: id}
}

// String renders the key as ask_<order id>_timeout or bid_<order id>_timeout.
// Trader ids may contain dots, so the text is not unique.
func (k TimeoutKey) String() string {
	return k.Direction.String() + "_" + k.OrderID.String() + "_timeout"
}

func (ob *OrderBook) processMessage(ts model.Timestamp) {
	if ts > ob.lastTimestamp {
		ob.lastTimestamp = ts
	}
}

func (ob *OrderBook) reportSize(s *Side) {
	ob.observer.SideSize(s.direction.String(), s.Len(), s.Levels())
}

// InsertAsk adds an ask. See insert for the rejection rules.
func (ob *OrderBook) InsertAsk(tick *model.Tick) error {
	return ob.insert(model.Ask, tick)
}

// InsertBid adds a bid. See insert for the rejection rules.
func (ob *OrderBook) InsertBid(tick *model.Tick) error {
	return ob.insert(model.Bid, tick)
}

// insert rejects, with ErrInvalidTick and no state change, a tick of the
// wrong direction, a tick that is no longer valid and a tick whose order id
// rests on either side already. Accepted ticks get an eviction task at
// their deadline.
func (ob *OrderBook) insert(dir model.Direction, tick *model.Tick) error {
	id := tick.OrderID()
	reject := func(cause error) error {
		ob.observer.TickRejected(dir.String())
		ob.logger.Warn("tick rejected",
			zap.Stringer("side", dir),
			zap.Stringer("order_id", id),
			zap.Error(cause))
		return errors.ErrInvalidTick.Explain("%s %s rejected", dir, id).Wrap(cause)
	}

	if tick.Direction() != dir {
		return reject(errors.ErrInvalidArgument.Explain("tick is an %s", tick.Direction()))
	}
	if now := ob.clock.Now(); !tick.IsValid(now) {
		return reject(errors.ErrInvalidArgument.Explain("tick expired at %s", tick.Deadline()))
	}
	if ob.bids.TickExists(id) || ob.asks.TickExists(id) {
		return reject(errors.ErrDuplicateOrder.Explain("order %s already in the book", id))
	}

	side := ob.side(dir)
	if _, err := side.InsertTick(tick); err != nil {
		return reject(err)
	}
	ob.processMessage(tick.Timestamp())

	if tick.Expires() {
		mid := tick.MessageID()
		ob.scheduler.Schedule(timeoutKey(dir, id), tick.Deadline(), func() {
			ob.onTimeout(dir, id, mid)
		})
	}

	ob.observer.TickInserted(dir.String())
	ob.reportSize(side)
	ob.logger.Debug("tick inserted",
		zap.Stringer("side", dir),
		zap.Stringer("order_id", id),
		zap.Stringer("price", tick.Price()),
		zap.Stringer("quantity", tick.Quantity()))
	return nil
}

// onTimeout evicts the tick that scheduled it. The order may have been
// removed, or replaced by a newer tick, in the meantime.
func (ob *OrderBook) onTimeout(dir model.Direction, id model.OrderID, mid model.MessageID) {
	side := ob.side(dir)
	entry, err := side.GetTick(id)
	if err != nil || entry.tick.MessageID() != mid {
		ob.logger.Debug("stale timeout ignored", zap.Stringer("side", dir), zap.Stringer("order_id", id))
		return
	}
	if _, err := side.RemoveTick(id); err != nil {
		ob.logger.Error("timeout eviction failed", zap.Stringer("order_id", id), zap.Error(err))
		return
	}
	ob.expired++
	ob.observer.TickRemoved(dir.String(), ReasonExpired)
	ob.reportSize(side)
	ob.logger.Debug("tick expired", zap.Stringer("task", timeoutKey(dir, id)), zap.Stringer("order_id", id))
}

// remove cancels the timeout of id, then detaches it from the side.
func (ob *OrderBook) remove(dir model.Direction, id model.OrderID, reason string) error {
	ob.scheduler.Cancel(timeoutKey(dir, id))
	side := ob.side(dir)
	if _, err := side.RemoveTick(id); err != nil {
		return err
	}
	ob.observer.TickRemoved(dir.String(), reason)
	ob.reportSize(side)
	ob.logger.Debug("tick removed",
		zap.Stringer("side", dir),
		zap.Stringer("order_id", id),
		zap.String("reason", reason))
	return nil
}

// RemoveAsk cancels an ask. ErrNotFound reports an absent order.
func (ob *OrderBook) RemoveAsk(id model.OrderID) error {
	return ob.remove(model.Ask, id, ReasonCancelled)
}

// RemoveBid cancels a bid. ErrNotFound reports an absent order.
func (ob *OrderBook) RemoveBid(id model.OrderID) error {
	return ob.remove(model.Bid, id, ReasonCancelled)
}

// RemoveTick cancels id on whichever side holds it. Absent orders are a
// no-op. It reports whether anything was removed.
func (ob *OrderBook) RemoveTick(id model.OrderID) bool {
	removed := false
	for _, dir := range []model.Direction{model.Ask, model.Bid} {
		if err := ob.remove(dir, id, ReasonCancelled); err == nil {
			removed = true
		} else if !errors.IsBenign(err) {
			ob.logger.Error("remove failed", zap.Stringer("order_id", id), zap.Error(err))
		}
	}
	return removed
}

// TickExists reports whether id rests on either side.
func (ob *OrderBook) TickExists(id model.OrderID) bool {
	return ob.asks.TickExists(id) || ob.bids.TickExists(id)
}

// GetTick returns the entry of id from either side.
func (ob *OrderBook) GetTick(id model.OrderID) (*TickEntry, error) {
	if e, err := ob.asks.GetTick(id); err == nil {
		return e, nil
	}
	return ob.bids.GetTick(id)
}

// TradeTick applies an agreed trade of qty between order a, the local
// order, and order b, the counterparty.
//
// a is reduced unconditionally. b is reduced only when its tick was created
// strictly before cutoff, so a tick announced after the trade was agreed is
// left alone. Absent legs are skipped. Entries reaching zero stay in the
// book until PurgeFilled. If a cannot be reduced the error is returned and
// b is not touched.
func (ob *OrderBook) TradeTick(a, b model.OrderID, qty model.Quantity, cutoff model.Timestamp) error {
	if entry, err := ob.GetTick(a); err != nil {
		ob.logger.Debug("trade leg absent", zap.Stringer("order_id", a))
	} else if err := entry.ReduceQuantity(qty); err != nil {
		return fmt.Errorf("trade %s/%s: %w", a, b, err)
	}

	entry, err := ob.GetTick(b)
	if err != nil {
		ob.logger.Debug("trade leg absent", zap.Stringer("order_id", b))
		return nil
	}
	if !entry.tick.Timestamp().Before(cutoff) {
		ob.logger.Debug("trade leg newer than cutoff",
			zap.Stringer("order_id", b),
			zap.Stringer("timestamp", entry.tick.Timestamp()),
			zap.Stringer("cutoff", cutoff))
		return nil
	}
	if err := entry.ReduceQuantity(qty); err != nil {
		return fmt.Errorf("trade %s/%s: %w", a, b, err)
	}
	return nil
}

// PurgeFilled removes every entry whose remaining quantity is zero and
// returns their order ids.
func (ob *OrderBook) PurgeFilled() []model.OrderID {
	var purged []model.OrderID
	for _, side := range []*Side{ob.bids, ob.asks} {
		var filled []model.OrderID
		for id, e := range side.orders {
			if e.IsFilled() {
				filled = append(filled, id)
			}
		}
		for _, id := range filled {
			if err := ob.remove(side.direction, id, ReasonFilled); err == nil {
				purged = append(purged, id)
			}
		}
	}
	return purged
}

// ExpireDue delivers every timeout due at now and returns the number of
// ticks evicted.
func (ob *OrderBook) ExpireDue(now model.Timestamp) int {
	before := ob.expired
	ob.scheduler.Advance(now)
	return ob.expired - before
}

// PendingTimeouts is the number of scheduled evictions.
func (ob *OrderBook) PendingTimeouts() int { return ob.scheduler.Len() }

// InsertTrade records trade in the recent trades view, dropping the oldest
// one when full.
func (ob *OrderBook) InsertTrade(trade model.Trade) {
	ob.processMessage(trade.Timestamp)
	ob.trades.push(trade)
	ob.observer.TradeRecorded()
}

// Trades returns the recent trades, newest first.
func (ob *OrderBook) Trades() []model.Trade {
	return ob.trades.newest(-1)
}

func (ob *OrderBook) BidPrice() (model.Price, error) { return ob.bids.BestPrice() }
func (ob *OrderBook) AskPrice() (model.Price, error) { return ob.asks.BestPrice() }

// BidAskSpread is ask - bid. It is not clamped and may be negative.
func (ob *OrderBook) BidAskSpread() (model.Delta, error) {
	bid, ask, err := ob.bestPrices()
	if err != nil {
		return model.Delta{}, err
	}
	return ask.Sub(bid)
}

// MidPrice is floor((ask + bid) / 2).
func (ob *OrderBook) MidPrice() (model.Price, error) {
	bid, ask, err := ob.bestPrices()
	if err != nil {
		return model.Price{}, err
	}
	return ask.Mid(bid)
}

func (ob *OrderBook) bestPrices() (bid, ask model.Price, err error) {
	if bid, err = ob.bids.BestPrice(); err != nil {
		return
	}
	ask, err = ob.asks.BestPrice()
	return
}

func (ob *OrderBook) BidSideDepth(price model.Price) (model.Quantity, error) {
	return sideDepth(ob.bids, price)
}

func (ob *OrderBook) AskSideDepth(price model.Price) (model.Quantity, error) {
	return sideDepth(ob.asks, price)
}

func sideDepth(s *Side, price model.Price) (model.Quantity, error) {
	level, err := s.PriceLevel(price)
	if err != nil {
		return model.Quantity{}, err
	}
	return level.Depth(), nil
}

func (ob *OrderBook) BidSideDepthProfile() []DepthEntry { return ob.bids.DepthProfile() }
func (ob *OrderBook) AskSideDepthProfile() []DepthEntry { return ob.asks.DepthProfile() }

// BidRelativePrice is the best bid minus price.
func (ob *OrderBook) BidRelativePrice(price model.Price) (model.Delta, error) {
	best, err := ob.bids.BestPrice()
	if err != nil {
		return model.Delta{}, err
	}
	return best.Sub(price)
}

// AskRelativePrice is the best ask minus price.
func (ob *OrderBook) AskRelativePrice(price model.Price) (model.Delta, error) {
	best, err := ob.asks.BestPrice()
	if err != nil {
		return model.Delta{}, err
	}
	return best.Sub(price)
}

// RelativeTickPrice measures the price of tick against the best price it
// could trade with: the best bid for an ask, the best ask for a bid.
func (ob *OrderBook) RelativeTickPrice(tick *model.Tick) (model.Delta, error) {
	if tick.IsAsk() {
		return ob.BidRelativePrice(tick.Price())
	}
	return ob.AskRelativePrice(tick.Price())
}

// BidPriceLevel is the level an ask has to match to trade.
func (ob *OrderBook) BidPriceLevel() (*PriceLevel, error) { return ob.bids.BestLevel() }

// AskPriceLevel is the level a bid has to match to trade.
func (ob *OrderBook) AskPriceLevel() (*PriceLevel, error) { return ob.asks.BestLevel() }

// ValidTicks lists the ticks still valid at now: bids best first, then
// asks best first, in arrival order within a price.
func (ob *OrderBook) ValidTicks(now model.Timestamp) []*model.Tick {
	out := make([]*model.Tick, 0, ob.bids.Len()+ob.asks.Len())
	for _, side := range []*Side{ob.bids, ob.asks} {
		for _, e := range side.Entries() {
			if e.IsValid(now) {
				out = append(out, e.tick)
			}
		}
	}
	return out
}

// Restore inserts ticks loaded from a snapshot. Ticks that expired or whose
// order is already in the book are skipped. Ticks go in by creation time
// (then message id), so the result does not depend on the input order.
// It returns the number of ticks inserted.
func (ob *OrderBook) Restore(ticks []*model.Tick) int {
	sorted := make([]*model.Tick, len(ticks))
	copy(sorted, ticks)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.Timestamp() != b.Timestamp() {
			return a.Timestamp() < b.Timestamp()
		}
		return a.MessageID().Less(b.MessageID())
	})

	now := ob.clock.Now()
	restored := 0
	for _, tick := range sorted {
		if !tick.IsValid(now) || ob.TickExists(tick.OrderID()) {
			continue
		}
		if err := ob.insert(tick.Direction(), tick); err != nil {
			ob.logger.Debug("tick not restored", zap.Stringer("order_id", tick.OrderID()), zap.Error(err))
			continue
		}
		restored++
	}
	ob.logger.Info("book restored", zap.Int("restored", restored), zap.Int("loaded", len(ticks)))
	return restored
}

// String renders the book for debugging: bids and asks best first, then
// the five most recent trades.
func (ob *OrderBook) String() string {
	var sb strings.Builder
	sb.WriteString("------ Bids -------\n")
	ob.bids.BestFirst(func(level *PriceLevel) bool {
		sb.WriteString(level.String())
		return true
	})
	sb.WriteString("\n------ Asks -------\n")
	ob.asks.BestFirst(func(level *PriceLevel) bool {
		sb.WriteString(level.String())
		return true
	})
	sb.WriteString("\n------ Trades ------\n")
	for _, t := range ob.trades.newest(5) {
		sb.WriteString(t.String())
		sb.WriteByte('\n')
	}
	sb.WriteByte('\n')
	return sb.String()
}
