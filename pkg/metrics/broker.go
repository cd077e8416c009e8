package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	EntriesAppended = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "xstream_entries_appended_total",
		Help: "Total number of entries appended per stream",
	}, []string{"stream"})

	EntriesTrimmed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "xstream_entries_trimmed_total",
		Help: "Total number of entries dropped by retention or explicit trim",
	}, []string{"stream"})

	StreamLength = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "xstream_stream_length",
		Help: "Current number of retained entries per stream",
	}, []string{"stream"})

	AppendLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "xstream_append_latency_seconds",
		Help:    "Histogram of append latency including the storage commit",
		Buckets: prometheus.DefBuckets,
	})

	RequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "xstream_requests_total",
		Help: "Total number of server requests by operation and status",
	}, []string{"op", "status"})

	ActiveConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "xstream_active_connections",
		Help: "Current number of open client connections",
	})
)
