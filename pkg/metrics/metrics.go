package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "tickbook"

// Recorder holds the order book metrics. It satisfies orderbook.Observer.
type Recorder struct {
	// TicksInserted counts accepted ticks by side (ask/bid)
	TicksInserted *prometheus.CounterVec
	// TicksRemoved counts ticks leaving the book by side and reason
	TicksRemoved *prometheus.CounterVec
	// TicksRejected counts invalid or duplicate ticks by side
	TicksRejected *prometheus.CounterVec
	// TradesRecorded counts trades added to the recent trades view
	TradesRecorded prometheus.Counter

	// Resting ticks and price levels per side
	Ticks  *prometheus.GaugeVec
	Levels *prometheus.GaugeVec

	// MessagesConsumed counts ingress messages by type and outcome
	MessagesConsumed *prometheus.CounterVec

	// Snapshot checkpoints by outcome, and how long they took
	Checkpoints       *prometheus.CounterVec
	CheckpointLatency prometheus.Histogram
}

// NewRecorder creates the collectors and registers them on reg.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		TicksInserted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ticks_inserted_total",
				Help:      "Total number of ticks accepted into the book",
			},
			[]string{"side"},
		),
		TicksRemoved: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ticks_removed_total",
				Help:      "Total number of ticks removed from the book",
			},
			[]string{"side", "reason"},
		),
		TicksRejected: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ticks_rejected_total",
				Help:      "Total number of ticks rejected as invalid or duplicate",
			},
			[]string{"side"},
		),
		TradesRecorded: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "trades_recorded_total",
				Help:      "Total number of trades recorded",
			},
		),
		Ticks: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "resting_ticks",
				Help:      "Number of ticks resting in the book",
			},
			[]string{"side"},
		),
		Levels: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "price_levels",
				Help:      "Number of distinct price levels in the book",
			},
			[]string{"side"},
		),
		MessagesConsumed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "messages_consumed_total",
				Help:      "Total number of ingress messages by type and outcome",
			},
			[]string{"type", "outcome"},
		),
		Checkpoints: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "checkpoints_total",
				Help:      "Total number of snapshot checkpoints by outcome",
			},
			[]string{"outcome"},
		),
		CheckpointLatency: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "checkpoint_duration_seconds",
				Help:      "Latency in seconds to write a snapshot",
				Buckets:   prometheus.DefBuckets,
			},
		),
	}
	reg.MustRegister(
		r.TicksInserted, r.TicksRemoved, r.TicksRejected, r.TradesRecorded,
		r.Ticks, r.Levels, r.MessagesConsumed, r.Checkpoints, r.CheckpointLatency,
	)
	return r
}

func (r *Recorder) TickInserted(side string) { r.TicksInserted.WithLabelValues(side).Inc() }

func (r *Recorder) TickRemoved(side, reason string) {
	r.TicksRemoved.WithLabelValues(side, reason).Inc()
}

func (r *Recorder) TickRejected(side string) { r.TicksRejected.WithLabelValues(side).Inc() }

func (r *Recorder) TradeRecorded() { r.TradesRecorded.Inc() }

func (r *Recorder) SideSize(side string, ticks, levels int) {
	r.Ticks.WithLabelValues(side).Set(float64(ticks))
	r.Levels.WithLabelValues(side).Set(float64(levels))
}

func (r *Recorder) MessageConsumed(msgType, outcome string) {
	r.MessagesConsumed.WithLabelValues(msgType, outcome).Inc()
}

// CheckpointDone records one snapshot attempt.
func (r *Recorder) CheckpointDone(err error, took time.Duration) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	r.Checkpoints.WithLabelValues(outcome).Inc()
	r.CheckpointLatency.Observe(took.Seconds())
}
