package orderbook

import "github.com/Aidin1998/tickbook/internal/trading/model"

// DefaultTradeHistory is the number of recent trades a book keeps.
const DefaultTradeHistory = 100

// tradeRing keeps the last cap(buf) trades. Older trades are overwritten.
type tradeRing struct {
	buf  []model.Trade
	next int
	full bool
}

func newTradeRing(capacity int) *tradeRing {
	if capacity <= 0 {
		capacity = DefaultTradeHistory
	}
	return &tradeRing{buf: make([]model.Trade, capacity)}
}

func (r *tradeRing) push(t model.Trade) {
	r.buf[r.next] = t
	r.next = (r.next + 1) % len(r.buf)
	if r.next == 0 {
		r.full = true
	}
}

func (r *tradeRing) len() int {
	if r.full {
		return len(r.buf)
	}
	return r.next
}

// newest returns up to limit trades, newest first. A negative limit means
// all of them.
func (r *tradeRing) newest(limit int) []model.Trade {
	n := r.len()
	if limit >= 0 && limit < n {
		n = limit
	}
	out := make([]model.Trade, n)
	for i := 0; i < n; i++ {
		out[i] = r.buf[(r.next-1-i+len(r.buf))%len(r.buf)]
	}
	return out
}
