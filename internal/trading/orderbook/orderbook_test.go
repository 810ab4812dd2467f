package orderbook

import (
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap/zaptest"

	"github.com/Aidin1998/tickbook/internal/trading/model"
	"github.com/Aidin1998/tickbook/pkg/errors"
)

var market = model.Market{PriceTag: "BTC", QuantityTag: "MC"}

func price(t testing.TB, m int64) model.Price {
	t.Helper()
	p, err := model.NewPrice(m, market.PriceTag)
	require.NoError(t, err)
	return p
}

func qty(t testing.TB, m int64) model.Quantity {
	t.Helper()
	q, err := model.NewQuantity(m, market.QuantityTag)
	require.NoError(t, err)
	return q
}

func oid(trader, number string) model.OrderID {
	return model.NewOrderID(model.TraderID(trader), model.OrderNumber(number))
}

type tickSpec struct {
	dir     model.Direction
	trader  string
	order   string
	msg     string
	price   int64
	qty     int64
	timeout model.Timeout
	ts      model.Timestamp
}

func mkTick(t testing.TB, s tickSpec) *model.Tick {
	t.Helper()
	if s.msg == "" {
		s.msg = "m" + s.order
	}
	tick, err := model.NewTick(s.dir,
		model.NewMessageID(model.TraderID(s.trader), model.MessageNumber(s.msg)),
		oid(s.trader, s.order),
		price(t, s.price), qty(t, s.qty), s.timeout, s.ts)
	require.NoError(t, err)
	return tick
}

type recordingObserver struct {
	inserted, rejected, trades int
	removed                    map[string]int
	sizes                      map[string][2]int
}

func newRecordingObserver() *recordingObserver {
	return &recordingObserver{removed: map[string]int{}, sizes: map[string][2]int{}}
}

func (o *recordingObserver) TickInserted(string) { o.inserted++ }
func (o *recordingObserver) TickRemoved(_ string, r string) { o.removed[r]++ }
func (o *recordingObserver) TickRejected(string) { o.rejected++ }
func (o *recordingObserver) TradeRecorded() { o.trades++ }
func (o *recordingObserver) SideSize(side string, ticks, levels int) {
	o.sizes[side] = [2]int{ticks, levels}
}

type OrderBookSuite struct {
	suite.Suite
	clock    *model.ManualClock
	observer *recordingObserver
	book     *OrderBook
}

func TestOrderBookSuite(t *testing.T) {
	suite.Run(t, new(OrderBookSuite))
}

func (s *OrderBookSuite) SetupTest() {
	s.clock = model.NewManualClock(1000)
	s.observer = newRecordingObserver()
	s.book = New(market,
		WithClock(s.clock),
		WithLogger(zaptest.NewLogger(s.T())),
		WithObserver(s.observer))
}

func (s *OrderBookSuite) ask(order string, p, q int64) *model.Tick {
	return mkTick(s.T(), tickSpec{dir: model.Ask, trader: "t", order: order, price: p, qty: q, timeout: 60, ts: s.clock.Now()})
}

func (s *OrderBookSuite) bid(order string, p, q int64) *model.Tick {
	return mkTick(s.T(), tickSpec{dir: model.Bid, trader: "t", order: order, price: p, qty: q, timeout: 60, ts: s.clock.Now()})
}

func (s *OrderBookSuite) TestSpreadAndMidPrice() {
	s.Require().NoError(s.book.InsertBid(s.bid("b1", 100, 5)))
	s.Require().NoError(s.book.InsertBid(s.bid("b2", 90, 5)))
	s.Require().NoError(s.book.InsertAsk(s.ask("a1", 110, 5)))
	s.Require().NoError(s.book.InsertAsk(s.ask("a2", 120, 5)))

	bid, err := s.book.BidPrice()
	s.Require().NoError(err)
	s.Equal(int64(100), bid.Mantissa())

	ask, err := s.book.AskPrice()
	s.Require().NoError(err)
	s.Equal(int64(110), ask.Mantissa())

	spread, err := s.book.BidAskSpread()
	s.Require().NoError(err)
	s.Equal(int64(10), spread.Mantissa)

	mid, err := s.book.MidPrice()
	s.Require().NoError(err)
	s.Equal(int64(105), mid.Mantissa())
}

func (s *OrderBookSuite) TestCrossedSpreadIsNotClamped() {
	s.Require().NoError(s.book.InsertBid(s.bid("b1", 120, 1)))
	s.Require().NoError(s.book.InsertAsk(s.ask("a1", 110, 1)))

	spread, err := s.book.BidAskSpread()
	s.Require().NoError(err)
	s.Equal(int64(-10), spread.Mantissa)
}

func (s *OrderBookSuite) TestEmptyBookQueries() {
	_, err := s.book.BidPrice()
	s.ErrorIs(err, errors.ErrNotFound)
	_, err = s.book.BidAskSpread()
	s.ErrorIs(err, errors.ErrNotFound)
	_, err = s.book.MidPrice()
	s.ErrorIs(err, errors.ErrNotFound)
	_, err = s.book.AskPriceLevel()
	s.ErrorIs(err, errors.ErrNotFound)
	s.Empty(s.book.BidSideDepthProfile())
}

func (s *OrderBookSuite) TestDuplicateInsertKeepsFirstEntry() {
	first := s.ask("a1", 100, 5)
	s.Require().NoError(s.book.InsertAsk(first))
	s.Require().NoError(s.book.InsertAsk(s.ask("a2", 100, 7)))

	dup := mkTick(s.T(), tickSpec{dir: model.Ask, trader: "t", order: "a1", msg: "other", price: 100, qty: 9, timeout: 60, ts: s.clock.Now()})
	err := s.book.InsertAsk(dup)
	s.ErrorIs(err, errors.ErrInvalidTick)
	s.ErrorIs(err, errors.ErrDuplicateOrder)

	level, err := s.book.AskPriceLevel()
	s.Require().NoError(err)
	s.Equal(2, level.Len())
	s.Same(first, level.First().Tick())
	s.Equal(int64(12), level.Depth().Mantissa())
	s.Equal(1, s.observer.rejected)
}

func (s *OrderBookSuite) TestOrderIDOnOneSideOnly() {
	s.Require().NoError(s.book.InsertAsk(s.ask("x", 100, 5)))
	err := s.book.InsertBid(s.bid("x", 90, 5))
	s.ErrorIs(err, errors.ErrDuplicateOrder)
	s.Equal(0, s.book.Bids().Len())
}

func (s *OrderBookSuite) TestInvalidTickRejected() {
	expired := mkTick(s.T(), tickSpec{dir: model.Ask, trader: "0", order: "1", price: 63400, qty: 30, timeout: 0, ts: 0})
	err := s.book.InsertAsk(expired)
	s.ErrorIs(err, errors.ErrInvalidTick)
	s.False(s.book.TickExists(expired.OrderID()))
	s.Equal(0, s.book.PendingTimeouts())

	err = s.book.InsertBid(s.ask("a1", 100, 1))
	s.ErrorIs(err, errors.ErrInvalidTick, "ask through the bid endpoint")
	s.Equal(0, s.book.Bids().Len())
	s.Equal(model.Timestamp(0), s.book.LastTimestamp())
}

func (s *OrderBookSuite) TestForeignMarketRejected() {
	p, _ := model.NewPrice(100, "EUR")
	tick, err := model.NewAsk(model.NewMessageID("t", "m"), oid("t", "1"), p, qty(s.T(), 1), 60, s.clock.Now())
	s.Require().NoError(err)

	err = s.book.InsertAsk(tick)
	s.ErrorIs(err, errors.ErrInvalidTick)
	s.ErrorIs(err, errors.ErrIncompatibleUnit)
}

func (s *OrderBookSuite) TestTimeoutEvictsAtDeadline() {
	s.Require().NoError(s.book.InsertAsk(s.ask("a1", 100, 5)))
	forever := mkTick(s.T(), tickSpec{dir: model.Bid, trader: "t", order: "b1", price: 90, qty: 5, timeout: model.NoTimeout, ts: s.clock.Now()})
	s.Require().NoError(s.book.InsertBid(forever))
	s.Equal(1, s.book.PendingTimeouts(), "infinite timeouts are not scheduled")

	s.Equal(0, s.book.ExpireDue(s.clock.Advance(59)))
	s.True(s.book.TickExists(oid("t", "a1")))

	s.Equal(1, s.book.ExpireDue(s.clock.Advance(1)))
	s.False(s.book.TickExists(oid("t", "a1")))
	s.True(s.book.TickExists(oid("t", "b1")))
	s.Equal(1, s.observer.removed[ReasonExpired])

	_, err := s.book.AskPrice()
	s.ErrorIs(err, errors.ErrNotFound, "empty level is dropped")
}

func (s *OrderBookSuite) TestRemoveCancelsTimeout() {
	s.Require().NoError(s.book.InsertBid(s.bid("b1", 100, 5)))
	s.Equal(1, s.book.PendingTimeouts())

	s.Require().NoError(s.book.RemoveBid(oid("t", "b1")))
	s.Equal(0, s.book.PendingTimeouts())
	s.Equal(0, s.book.ExpireDue(s.clock.Advance(1000)))
	s.Equal(1, s.observer.removed[ReasonCancelled])
}

func (s *OrderBookSuite) TestStaleTimeoutDoesNotEvictReplacement() {
	old := s.bid("b1", 100, 5)
	s.Require().NoError(s.book.InsertBid(old))

	scheduler := s.book.scheduler.(*DeadlineQueue[TimeoutKey])
	key := timeoutKey(model.Bid, old.OrderID())
	s.True(scheduler.Pending(key))

	// Fire the old callback by hand after the order was replaced.
	stale := scheduler.byKey[key].fn
	s.Require().NoError(s.book.RemoveBid(old.OrderID()))
	s.clock.Advance(10)
	fresh := mkTick(s.T(), tickSpec{dir: model.Bid, trader: "t", order: "b1", msg: "m-new", price: 100, qty: 5, timeout: 60, ts: s.clock.Now()})
	s.Require().NoError(s.book.InsertBid(fresh))

	stale()
	s.True(s.book.TickExists(fresh.OrderID()))

	s.Equal(0, s.book.ExpireDue(1060))
	s.Equal(1, s.book.ExpireDue(1070.5))
}

func (s *OrderBookSuite) TestDottedTraderIDsKeepSeparateTimeouts() {
	first := mkTick(s.T(), tickSpec{dir: model.Ask, trader: "a.b", order: "c", price: 100, qty: 1, timeout: 10, ts: s.clock.Now()})
	second := mkTick(s.T(), tickSpec{dir: model.Ask, trader: "a", order: "b.c", price: 100, qty: 1, timeout: 1000, ts: s.clock.Now()})
	s.Require().Equal(first.OrderID().String(), second.OrderID().String())

	s.Require().NoError(s.book.InsertAsk(first))
	s.Require().NoError(s.book.InsertAsk(second))
	s.Equal(2, s.book.PendingTimeouts())

	s.Equal(1, s.book.ExpireDue(s.clock.Advance(20)))
	s.False(s.book.TickExists(first.OrderID()))
	s.True(s.book.TickExists(second.OrderID()))

	s.Require().NoError(s.book.InsertAsk(mkTick(s.T(), tickSpec{dir: model.Ask, trader: "a.b", order: "c", msg: "m-2", price: 100, qty: 1, timeout: 10, ts: s.clock.Now()})))
	s.Require().NoError(s.book.RemoveAsk(second.OrderID()))
	s.Equal(1, s.book.PendingTimeouts(), "removing one order keeps the other's timeout")
	s.Equal(1, s.book.ExpireDue(s.clock.Advance(10)))
}

func TestTimeoutKeyString(t *testing.T) {
	assert.Equal(t, "ask_t.1_timeout", timeoutKey(model.Ask, oid("t", "1")).String())
	assert.Equal(t, "bid_t.1_timeout", timeoutKey(model.Bid, oid("t", "1")).String())
}

func (s *OrderBookSuite) TestDepthOverflowRejectsTick() {
	huge := func(order string) *model.Tick {
		return mkTick(s.T(), tickSpec{dir: model.Bid, trader: "t", order: order, price: 100, qty: math.MaxInt64, timeout: 60, ts: s.clock.Now()})
	}
	s.Require().NoError(s.book.InsertBid(huge("b1")))

	err := s.book.InsertBid(huge("b2"))
	s.ErrorIs(err, errors.ErrInvalidTick)
	s.ErrorIs(err, errors.ErrOverflow)
	s.False(s.book.TickExists(oid("t", "b2")))
	s.Equal(1, s.book.PendingTimeouts())

	depth, err := s.book.BidSideDepth(price(s.T(), 100))
	s.Require().NoError(err)
	s.Equal(int64(math.MaxInt64), depth.Mantissa())

	s.True(s.book.RemoveTick(oid("t", "b1")))
	s.Equal(0, s.book.Bids().Levels())
}

func (s *OrderBookSuite) TestRemoveTickIsIdempotent() {
	s.Require().NoError(s.book.InsertBid(s.bid("b1", 100, 5)))
	s.Require().NoError(s.book.InsertAsk(s.ask("a1", 110, 5)))
	before := s.book.String()

	s.False(s.book.RemoveTick(oid("t", "missing")))
	s.Equal(before, s.book.String())
	s.Equal(2, s.book.PendingTimeouts())

	s.True(s.book.RemoveTick(oid("t", "a1")))
	s.False(s.book.RemoveTick(oid("t", "a1")))
	s.ErrorIs(s.book.RemoveAsk(oid("t", "a1")), errors.ErrNotFound)
}

func (s *OrderBookSuite) TestTradeTickReducesBothWhenBIsOlder() {
	s.Require().NoError(s.book.InsertAsk(s.ask("a", 100, 30)))
	s.Require().NoError(s.book.InsertBid(s.bid("b", 100, 30)))

	cutoff := s.clock.Advance(1)
	s.Require().NoError(s.book.TradeTick(oid("t", "a"), oid("t", "b"), qty(s.T(), 10), cutoff))

	a, _ := s.book.GetTick(oid("t", "a"))
	b, _ := s.book.GetTick(oid("t", "b"))
	s.Equal(int64(20), a.Quantity().Mantissa())
	s.Equal(int64(20), b.Quantity().Mantissa())

	depth, err := s.book.AskSideDepth(price(s.T(), 100))
	s.Require().NoError(err)
	s.Equal(int64(20), depth.Mantissa())
}

func (s *OrderBookSuite) TestTradeTickSkipsBNotOlderThanCutoff() {
	s.Require().NoError(s.book.InsertAsk(s.ask("a", 100, 30)))
	s.Require().NoError(s.book.InsertBid(s.bid("b", 100, 30)))

	cutoff := s.clock.Now()
	s.Require().NoError(s.book.TradeTick(oid("t", "a"), oid("t", "b"), qty(s.T(), 10), cutoff))

	a, _ := s.book.GetTick(oid("t", "a"))
	b, _ := s.book.GetTick(oid("t", "b"))
	s.Equal(int64(20), a.Quantity().Mantissa())
	s.Equal(int64(30), b.Quantity().Mantissa())
}

func (s *OrderBookSuite) TestTradeTickSkipsAbsentLegs() {
	s.Require().NoError(s.book.InsertBid(s.bid("b", 100, 30)))
	cutoff := s.clock.Advance(1)

	s.NoError(s.book.TradeTick(oid("t", "gone"), oid("t", "b"), qty(s.T(), 10), cutoff))
	b, _ := s.book.GetTick(oid("t", "b"))
	s.Equal(int64(20), b.Quantity().Mantissa())

	s.NoError(s.book.TradeTick(oid("t", "b"), oid("t", "gone"), qty(s.T(), 5), cutoff))
	s.Equal(int64(15), b.Quantity().Mantissa())
}

func (s *OrderBookSuite) TestTradeTickUnderflowLeavesBUntouched() {
	s.Require().NoError(s.book.InsertAsk(s.ask("a", 100, 5)))
	s.Require().NoError(s.book.InsertBid(s.bid("b", 100, 30)))

	err := s.book.TradeTick(oid("t", "a"), oid("t", "b"), qty(s.T(), 10), s.clock.Advance(1))
	s.ErrorIs(err, errors.ErrUnderflow)

	a, _ := s.book.GetTick(oid("t", "a"))
	b, _ := s.book.GetTick(oid("t", "b"))
	s.Equal(int64(5), a.Quantity().Mantissa())
	s.Equal(int64(30), b.Quantity().Mantissa())
}

func (s *OrderBookSuite) TestFilledEntriesStayUntilPurged() {
	s.Require().NoError(s.book.InsertAsk(s.ask("a", 100, 10)))
	s.Require().NoError(s.book.InsertBid(s.bid("b", 100, 10)))
	s.Require().NoError(s.book.TradeTick(oid("t", "a"), oid("t", "b"), qty(s.T(), 10), s.clock.Advance(1)))

	a, err := s.book.GetTick(oid("t", "a"))
	s.Require().NoError(err)
	s.True(a.IsFilled())
	s.Equal(2, s.book.PendingTimeouts())

	purged := s.book.PurgeFilled()
	s.ElementsMatch([]model.OrderID{oid("t", "a"), oid("t", "b")}, purged)
	s.False(s.book.TickExists(oid("t", "a")))
	s.Equal(0, s.book.PendingTimeouts())
	s.Equal(2, s.observer.removed[ReasonFilled])
}

func (s *OrderBookSuite) TestSideDepthReadsOwnSide() {
	s.Require().NoError(s.book.InsertBid(s.bid("b1", 100, 5)))
	s.Require().NoError(s.book.InsertBid(s.bid("b2", 100, 7)))
	s.Require().NoError(s.book.InsertAsk(s.ask("a1", 110, 3)))

	bidDepth, err := s.book.BidSideDepth(price(s.T(), 100))
	s.Require().NoError(err)
	s.Equal(int64(12), bidDepth.Mantissa())

	askDepth, err := s.book.AskSideDepth(price(s.T(), 110))
	s.Require().NoError(err)
	s.Equal(int64(3), askDepth.Mantissa())

	_, err = s.book.AskSideDepth(price(s.T(), 100))
	s.ErrorIs(err, errors.ErrNotFound)
}

func (s *OrderBookSuite) TestDepthProfileAscending() {
	for i, p := range []int64{120, 100, 110, 100} {
		s.Require().NoError(s.book.InsertBid(s.bid(fmt.Sprintf("b%d", i), p, 2)))
	}
	profile := s.book.BidSideDepthProfile()
	s.Require().Len(profile, 3)
	s.Equal(int64(100), profile[0].Price.Mantissa())
	s.Equal(int64(4), profile[0].Depth.Mantissa())
	s.Equal(int64(110), profile[1].Price.Mantissa())
	s.Equal(int64(120), profile[2].Price.Mantissa())
}

func (s *OrderBookSuite) TestRelativePrices() {
	s.Require().NoError(s.book.InsertBid(s.bid("b1", 100, 1)))
	s.Require().NoError(s.book.InsertAsk(s.ask("a1", 110, 1)))

	d, err := s.book.BidRelativePrice(price(s.T(), 95))
	s.Require().NoError(err)
	s.Equal(int64(5), d.Mantissa)

	d, err = s.book.AskRelativePrice(price(s.T(), 115))
	s.Require().NoError(err)
	s.Equal(int64(-5), d.Mantissa)

	d, err = s.book.RelativeTickPrice(s.ask("a2", 104, 1))
	s.Require().NoError(err)
	s.Equal(int64(-4), d.Mantissa, "asks measure against the best bid")

	d, err = s.book.RelativeTickPrice(s.bid("b2", 104, 1))
	s.Require().NoError(err)
	s.Equal(int64(6), d.Mantissa, "bids measure against the best ask")
}

func (s *OrderBookSuite) TestRecentTradesRing() {
	for i := 0; i < 101; i++ {
		s.book.InsertTrade(model.Trade{
			MessageID: model.NewMessageID("t", model.MessageNumber(fmt.Sprint(i))),
			Price:     price(s.T(), int64(i)),
			Quantity:  qty(s.T(), 1),
			Timestamp: model.Timestamp(i),
		})
	}
	trades := s.book.Trades()
	s.Require().Len(trades, 100)
	s.Equal(int64(100), trades[0].Price.Mantissa())
	s.Equal(int64(1), trades[99].Price.Mantissa())
	s.Equal(101, s.observer.trades)
}

func (s *OrderBookSuite) TestLastTimestamp() {
	s.Require().NoError(s.book.InsertBid(s.bid("b1", 100, 1)))
	s.Equal(model.Timestamp(1000), s.book.LastTimestamp())

	s.book.InsertTrade(model.Trade{Timestamp: 1005})
	s.Equal(model.Timestamp(1005), s.book.LastTimestamp())

	s.book.InsertTrade(model.Trade{Timestamp: 1})
	s.Equal(model.Timestamp(1005), s.book.LastTimestamp())
}

func (s *OrderBookSuite) TestValidTicksOrder() {
	s.Require().NoError(s.book.InsertBid(s.bid("b-low", 90, 1)))
	s.Require().NoError(s.book.InsertBid(s.bid("b-high-1", 100, 1)))
	s.Require().NoError(s.book.InsertBid(s.bid("b-high-2", 100, 1)))
	s.Require().NoError(s.book.InsertAsk(s.ask("a-high", 120, 1)))
	s.Require().NoError(s.book.InsertAsk(s.ask("a-low", 110, 1)))

	var got []string
	for _, t := range s.book.ValidTicks(s.clock.Now()) {
		got = append(got, string(t.OrderID().Number))
	}
	s.Equal([]string{"b-high-1", "b-high-2", "b-low", "a-low", "a-high"}, got)

	s.Empty(s.book.ValidTicks(s.clock.Now()+61), "expired ticks are not snapshotted")
}

func (s *OrderBookSuite) TestRestoreIsOrderIndependent() {
	ticks := []*model.Tick{
		mkTick(s.T(), tickSpec{dir: model.Bid, trader: "p", order: "1", price: 100, qty: 1, timeout: 60, ts: 990}),
		mkTick(s.T(), tickSpec{dir: model.Bid, trader: "q", order: "2", price: 100, qty: 2, timeout: 60, ts: 980}),
		mkTick(s.T(), tickSpec{dir: model.Ask, trader: "p", order: "3", price: 110, qty: 3, timeout: 60, ts: 995}),
		mkTick(s.T(), tickSpec{dir: model.Ask, trader: "p", order: "4", price: 110, qty: 4, timeout: 1, ts: 10}),
		mkTick(s.T(), tickSpec{dir: model.Ask, trader: "r", order: "5", price: 110, qty: 5, timeout: model.NoTimeout, ts: 995}),
	}
	reversed := make([]*model.Tick, len(ticks))
	for i, t := range ticks {
		reversed[len(ticks)-1-i] = t
	}

	other := New(market, WithClock(s.clock))
	s.Equal(4, s.book.Restore(ticks))
	s.Equal(4, other.Restore(reversed))
	s.Equal(s.book.String(), other.String())

	level, err := s.book.BidPriceLevel()
	s.Require().NoError(err)
	s.Equal(model.OrderNumber("2"), level.First().OrderID().Number, "older tick first")

	s.Equal(0, s.book.Restore(ticks), "present orders are not restored twice")
}

func (s *OrderBookSuite) TestString() {
	s.Require().NoError(s.book.InsertBid(s.bid("b1", 100, 5)))
	s.Require().NoError(s.book.InsertBid(s.bid("b2", 90, 1)))
	s.Require().NoError(s.book.InsertAsk(s.ask("a1", 110, 3)))
	s.book.InsertTrade(model.Trade{Price: price(s.T(), 105), Quantity: qty(s.T(), 2), Timestamp: 10})

	want := "------ Bids -------\n" +
		"5.000000 MC\t@\t100.000000 BTC\n" +
		"1.000000 MC\t@\t90.000000 BTC\n" +
		"\n------ Asks -------\n" +
		"3.000000 MC\t@\t110.000000 BTC\n" +
		"\n------ Trades ------\n" +
		"2.000000 MC @ 105.000000 BTC (1970-01-01 00:00:10.000000)\n" +
		"\n"
	s.Equal(want, s.book.String())
}

func (s *OrderBookSuite) TestObserverSeesSizes() {
	s.Require().NoError(s.book.InsertBid(s.bid("b1", 100, 5)))
	s.Require().NoError(s.book.InsertBid(s.bid("b2", 101, 5)))
	s.Equal([2]int{2, 2}, s.observer.sizes["bid"])
	s.Equal(2, s.observer.inserted)
}

func TestTickEntryLinks(t *testing.T) {
	level := NewPriceLevel(price(t, 63400), market.QuantityTag)
	e1 := NewTickEntry(mkTick(t, tickSpec{dir: model.Ask, trader: "0", order: "1", price: 63400, qty: 30, timeout: 0, ts: 0}))
	e2 := NewTickEntry(mkTick(t, tickSpec{dir: model.Ask, trader: "0", order: "2", price: 63400, qty: 30, timeout: 100, ts: model.SystemClock{}.Now()}))

	assert.Nil(t, e1.Next())
	assert.Nil(t, e1.PriceLevel())
	require.NoError(t, level.Append(e1))
	require.NoError(t, level.Append(e2))

	assert.Same(t, e2, e1.Next())
	assert.Same(t, e1, e2.Prev())
	assert.Same(t, level, e1.PriceLevel())
	assert.Equal(t, "30.000000 MC\t@\t63400.000000 BTC", e1.String())

	now := model.SystemClock{}.Now()
	assert.False(t, e1.IsValid(now))
	assert.True(t, e2.IsValid(now))

	assert.ErrorIs(t, level.Append(e1), errors.ErrInvalidArgument, "entry already attached")
}

func TestTickEntryReduceQuantity(t *testing.T) {
	level := NewPriceLevel(price(t, 10), market.QuantityTag)
	e := NewTickEntry(mkTick(t, tickSpec{dir: model.Bid, trader: "t", order: "1", price: 10, qty: 30, timeout: model.NoTimeout}))
	require.NoError(t, level.Append(e))

	require.NoError(t, e.ReduceQuantity(qty(t, 15)))
	assert.Equal(t, int64(15), e.Quantity().Mantissa())
	assert.Equal(t, int64(15), level.Depth().Mantissa())
	assert.Equal(t, int64(30), e.Tick().Quantity().Mantissa(), "tick is immutable")

	assert.ErrorIs(t, e.ReduceQuantity(qty(t, 16)), errors.ErrUnderflow)
	assert.Equal(t, int64(15), e.Quantity().Mantissa())
	assert.Equal(t, int64(15), level.Depth().Mantissa())

	require.NoError(t, e.ReduceQuantity(qty(t, 15)))
	assert.True(t, e.IsFilled())
	assert.Equal(t, 1, level.Len(), "filled entries stay")
}

func TestPriceLevelFIFO(t *testing.T) {
	level := NewPriceLevel(price(t, 50), market.QuantityTag)
	var entries []*TickEntry
	for i := 1; i <= 3; i++ {
		e := NewTickEntry(mkTick(t, tickSpec{dir: model.Ask, trader: "t", order: fmt.Sprint(i), price: 50, qty: int64(i), timeout: model.NoTimeout}))
		require.NoError(t, level.Append(e))
		entries = append(entries, e)
	}
	assert.Equal(t, entries, level.Entries())
	assert.Same(t, entries[0], level.First())
	assert.Same(t, entries[2], level.Last())

	require.NoError(t, level.Remove(entries[1]))
	assert.Equal(t, []*TickEntry{entries[0], entries[2]}, level.Entries())
	assert.Nil(t, entries[1].PriceLevel())
	assert.ErrorIs(t, level.Remove(entries[1]), errors.ErrNotFound)
}

func TestPriceLevelDepthMatchesEntries(t *testing.T) {
	level := NewPriceLevel(price(t, 50), market.QuantityTag)
	sum := func() int64 {
		var total int64
		for _, e := range level.Entries() {
			total += e.Quantity().Mantissa()
		}
		return total
	}

	var entries []*TickEntry
	for i := 0; i < 20; i++ {
		e := NewTickEntry(mkTick(t, tickSpec{dir: model.Bid, trader: "t", order: fmt.Sprint(i), price: 50, qty: int64(10 + i), timeout: model.NoTimeout}))
		require.NoError(t, level.Append(e))
		entries = append(entries, e)
		assert.Equal(t, sum(), level.Depth().Mantissa())
	}
	for i, e := range entries {
		switch i % 3 {
		case 0:
			require.NoError(t, level.Remove(e))
		case 1:
			require.NoError(t, e.ReduceQuantity(qty(t, int64(i%7))))
		}
		assert.Equal(t, sum(), level.Depth().Mantissa())
	}
}

func TestPriceLevelRejectsForeignPrice(t *testing.T) {
	level := NewPriceLevel(price(t, 50), market.QuantityTag)
	e := NewTickEntry(mkTick(t, tickSpec{dir: model.Bid, trader: "t", order: "1", price: 51, qty: 1, timeout: model.NoTimeout}))
	assert.ErrorIs(t, level.Append(e), errors.ErrInvalidArgument)
	assert.Equal(t, 0, level.Len())
}

func TestSide(t *testing.T) {
	side := NewSide(model.Bid, market)

	_, err := side.BestPrice()
	assert.ErrorIs(t, err, errors.ErrNotFound)

	first := mkTick(t, tickSpec{dir: model.Bid, trader: "t", order: "1", price: 100, qty: 1, timeout: model.NoTimeout})
	_, err = side.InsertTick(first)
	require.NoError(t, err)
	_, err = side.InsertTick(mkTick(t, tickSpec{dir: model.Bid, trader: "t", order: "2", price: 105, qty: 1, timeout: model.NoTimeout}))
	require.NoError(t, err)

	_, err = side.InsertTick(first)
	assert.ErrorIs(t, err, errors.ErrDuplicateOrder)

	best, err := side.BestPrice()
	require.NoError(t, err)
	assert.Equal(t, int64(105), best.Mantissa(), "bid side best is the maximum")

	entry, err := side.GetTick(oid("t", "1"))
	require.NoError(t, err)
	assert.Same(t, first, entry.Tick())

	_, err = side.PriceLevel(price(t, 101))
	assert.ErrorIs(t, err, errors.ErrNotFound)
	assert.Equal(t, 2, side.Levels(), "lookup never creates a level")

	_, err = side.RemoveTick(oid("t", "2"))
	require.NoError(t, err)
	assert.Equal(t, 1, side.Levels())
	assert.False(t, side.TickExists(oid("t", "2")))

	_, err = side.RemoveTick(oid("t", "2"))
	assert.ErrorIs(t, err, errors.ErrNotFound)
}

func TestSideIndexesStayConsistent(t *testing.T) {
	side := NewSide(model.Ask, market)
	for i := 0; i < 50; i++ {
		_, err := side.InsertTick(mkTick(t, tickSpec{dir: model.Ask, trader: "t", order: fmt.Sprint(i), price: int64(100 + i%7), qty: 1, timeout: model.NoTimeout}))
		require.NoError(t, err)
	}
	for i := 0; i < 50; i += 2 {
		_, err := side.RemoveTick(oid("t", fmt.Sprint(i)))
		require.NoError(t, err)
	}

	seen := 0
	side.Ascend(func(level *PriceLevel) bool {
		assert.NotZero(t, level.Len(), "empty levels are dropped")
		level.Scan(func(e *TickEntry) bool {
			indexed, err := side.GetTick(e.OrderID())
			require.NoError(t, err)
			assert.Same(t, e, indexed)
			assert.Same(t, level, e.PriceLevel())
			seen++
			return true
		})
		return true
	})
	assert.Equal(t, side.Len(), seen)

	best, err := side.BestPrice()
	require.NoError(t, err)
	assert.Equal(t, int64(100), best.Mantissa(), "ask side best is the minimum")
}

func TestDeadlineQueue(t *testing.T) {
	q := NewDeadlineQueue[string]()
	var fired []string
	record := func(key string) func() { return func() { fired = append(fired, key) } }

	q.Schedule("c", 30, record("c"))
	q.Schedule("a", 10, record("a"))
	q.Schedule("b", 10, record("b"))
	q.Schedule("never", model.Timestamp(math.Inf(1)), record("never"))
	assert.Equal(t, 3, q.Len())
	assert.False(t, q.Pending("never"))

	next, ok := q.NextDeadline()
	require.True(t, ok)
	assert.Equal(t, model.Timestamp(10), next)

	assert.True(t, q.Cancel("b"))
	assert.False(t, q.Cancel("b"))

	q.Schedule("c", 20, record("c2"))
	assert.Equal(t, 2, q.Advance(25))
	assert.Equal(t, []string{"a", "c2"}, fired)
	assert.Equal(t, 0, q.Len())
}

func TestDeadlineQueueCallbackMaySchedule(t *testing.T) {
	q := NewDeadlineQueue[string]()
	count := 0
	q.Schedule("first", 1, func() {
		count++
		q.Schedule("second", 2, func() { count++ })
	})
	assert.Equal(t, 2, q.Advance(5))
	assert.Equal(t, 2, count)
}
