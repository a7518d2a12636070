package statespace

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes the sync engine's operational counters.
type Metrics struct {
	BlocksApplied        prometheus.Counter
	EventsApplied        prometheus.Counter
	EventsSkipped        prometheus.Counter
	ReorgsTotal          prometheus.Counter
	ReorgDepth           prometheus.Histogram
	NotificationsDropped prometheus.Counter
	TrackedPools         prometheus.Gauge
	HeadBlock            prometheus.Gauge
	DegradedFlag         prometheus.Gauge
}

// NewMetrics builds and registers the engine metrics. A nil registerer
// leaves the metrics unregistered, which is what tests want.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		BlocksApplied: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "poolsync",
			Name:      "blocks_applied_total",
			Help:      "Blocks applied to the pool state space.",
		}),
		EventsApplied: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "poolsync",
			Name:      "events_applied_total",
			Help:      "Pool events applied to tracked pools.",
		}),
		EventsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "poolsync",
			Name:      "events_skipped_total",
			Help:      "Pool events skipped because they failed to decode or apply.",
		}),
		ReorgsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "poolsync",
			Name:      "reorgs_total",
			Help:      "Chain reorganizations rolled back.",
		}),
		ReorgDepth: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "poolsync",
			Name:      "reorg_depth_blocks",
			Help:      "Depth in blocks of rolled-back reorganizations.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 8),
		}),
		NotificationsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "poolsync",
			Name:      "notifications_dropped_total",
			Help:      "Change sets dropped because a subscriber buffer was full.",
		}),
		TrackedPools: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "poolsync",
			Name:      "tracked_pools",
			Help:      "Pools currently tracked in the state space.",
		}),
		HeadBlock: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "poolsync",
			Name:      "head_block",
			Help:      "Number of the most recently applied block.",
		}),
		DegradedFlag: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "poolsync",
			Name:      "degraded",
			Help:      "1 while the state space is serving stale state, 0 otherwise.",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.BlocksApplied, m.EventsApplied, m.EventsSkipped,
			m.ReorgsTotal, m.ReorgDepth, m.NotificationsDropped,
			m.TrackedPools, m.HeadBlock, m.DegradedFlag,
		)
	}
	return m
}
