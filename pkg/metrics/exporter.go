package metrics

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/downfa11-org/xstream/util"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func init() {
	prometheus.MustRegister(EntriesAppended, EntriesTrimmed, StreamLength, AppendLatency, RequestsTotal, ActiveConnections)
	prometheus.MustRegister(EntriesDelivered, EntriesAcked, EntriesClaimed, EntriesLost, PendingEntries, StalePendingEntries, ReadGroupLatency)
}

// StartMetricsServer serves /metrics in the background. Close the returned server to stop it.
func StartMetricsServer(port int) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		util.Info("Prometheus exporter listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			util.Error("metrics server failed: %v", err)
		}
	}()
	return srv
}

// ObserveAppend records one committed append.
func ObserveAppend(stream string, elapsed time.Duration) {
	EntriesAppended.WithLabelValues(stream).Inc()
	AppendLatency.Observe(elapsed.Seconds())
}

// ObserveRequest counts a served request by operation and outcome.
func ObserveRequest(op string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	RequestsTotal.WithLabelValues(op, status).Inc()
}

// ForgetGroup drops the per-group series of a deleted group.
func ForgetGroup(stream, group string) {
	for _, vec := range []*prometheus.GaugeVec{PendingEntries, StalePendingEntries} {
		vec.DeleteLabelValues(stream, group)
	}
}
