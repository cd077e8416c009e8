package coordinator

import (
	"context"
	"time"

	"github.com/downfa11-org/xstream/pkg/metrics"
	"github.com/downfa11-org/xstream/util"
)

// StaleReport describes the pending entries of one consumer idle past the threshold.
type StaleReport struct {
	Stream     string
	Group      string
	Consumer   string
	Count      int
	OldestIdle time.Duration
}

// Monitor periodically publishes PEL sizes and logs entries nobody has
// acknowledged or claimed within the stale threshold.
type Monitor struct {
	coordinators func() []*Coordinator
	interval     time.Duration
	stale        time.Duration
	now          func() time.Time
}

func NewMonitor(coordinators func() []*Coordinator, interval, stale time.Duration) *Monitor {
	return &Monitor{
		coordinators: coordinators,
		interval:     interval,
		stale:        stale,
		now:          time.Now,
	}
}

func (m *Monitor) Run(ctx context.Context) {
	log := util.Logger("monitor")
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, r := range m.Check() {
				log.Warnw("stale pending entries",
					"stream", r.Stream, "group", r.Group, "consumer", r.Consumer,
					"count", r.Count, "oldest_idle", r.OldestIdle.Truncate(time.Millisecond))
			}
		}
	}
}

// Check updates the PEL gauges and returns one report per consumer holding stale entries.
func (m *Monitor) Check() []StaleReport {
	now := m.now()
	var reports []StaleReport

	for _, c := range m.coordinators() {
		for _, g := range c.registry.List() {
			g.mu.Lock()
			byConsumer := make(map[string]*StaleReport)
			staleCount := 0
			for _, p := range g.pending {
				idle := p.Idle(now)
				if idle < m.stale {
					continue
				}
				staleCount++
				r, ok := byConsumer[p.Consumer]
				if !ok {
					r = &StaleReport{Stream: c.Stream(), Group: g.Name, Consumer: p.Consumer}
					byConsumer[p.Consumer] = r
				}
				r.Count++
				if idle > r.OldestIdle {
					r.OldestIdle = idle
				}
			}
			total := len(g.pending)
			g.mu.Unlock()

			metrics.PendingEntries.WithLabelValues(c.Stream(), g.Name).Set(float64(total))
			metrics.StalePendingEntries.WithLabelValues(c.Stream(), g.Name).Set(float64(staleCount))
			for _, r := range byConsumer {
				reports = append(reports, *r)
			}
		}
	}
	return reports
}
