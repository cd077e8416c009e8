package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	EntriesDelivered = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "xstream_entries_delivered_total",
		Help: "Total number of new entries delivered to consumer groups",
	}, []string{"stream", "group"})

	EntriesAcked = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "xstream_entries_acked_total",
		Help: "Total number of pending entries acknowledged",
	}, []string{"stream", "group"})

	EntriesClaimed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "xstream_entries_claimed_total",
		Help: "Total number of pending entries reassigned by claim",
	}, []string{"stream", "group"})

	EntriesLost = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "xstream_entries_lost_total",
		Help: "Total number of pending entries found trimmed from the log",
	}, []string{"stream", "group"})

	PendingEntries = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "xstream_pending_entries",
		Help: "Current size of the pending entries list per group",
	}, []string{"stream", "group"})

	StalePendingEntries = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "xstream_stale_pending_entries",
		Help: "Pending entries idle longer than the stale threshold",
	}, []string{"stream", "group"})

	ReadGroupLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "xstream_read_group_latency_seconds",
		Help:    "Histogram of readGroup latency including time spent blocked",
		Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 2, 5, 10},
	}, []string{"stream"})
)
