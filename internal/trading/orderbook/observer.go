package orderbook

// Reasons a tick leaves the book.
const (
	ReasonCancelled = "cancelled"
	ReasonExpired   = "expired"
	ReasonFilled    = "filled"
)

// Observer receives book events for metrics. Calls happen while the book
// is being mutated and must not call back into it.
type Observer interface {
	TickInserted(side string)
	TickRemoved(side, reason string)
	TickRejected(side string)
	TradeRecorded()
	SideSize(side string, ticks, levels int)
}

type nopObserver struct{}

func (nopObserver) TickInserted(string) {}
func (nopObserver) TickRemoved(string, string) {}
func (nopObserver) TickRejected(string) {}
func (nopObserver) TradeRecorded() {}
func (nopObserver) SideSize(string, int, int) {}
