package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/DefiantLabs/token-relayer/config"
	"github.com/DefiantLabs/token-relayer/core"
	"github.com/DefiantLabs/token-relayer/pkg/model"
)

// Relay exports cycle and request metrics. It implements core.CycleObserver.
type Relay struct {
	CyclesTotal      prometheus.Counter
	CycleAbortsTotal *prometheus.CounterVec
	CycleDuration    prometheus.Histogram
	CycleClaimed     prometheus.Histogram
	Uncommitted      prometheus.Counter
	OutcomesTotal    *prometheus.CounterVec
	RequestsByStatus *prometheus.GaugeVec
}

// NewRelay registers the relay metrics on reg. Tests pass a fresh registry.
func NewRelay(reg prometheus.Registerer) *Relay {
	factory := promauto.With(reg)
	return &Relay{
		CyclesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "relay",
			Subsystem: "engine",
			Name:      "cycles_total",
			Help:      "Total completed relay cycles",
		}),
		CycleAbortsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "relay",
			Subsystem: "engine",
			Name:      "cycle_aborts_total",
			Help:      "Cycles aborted before dispatch",
		}, []string{"reason"}),
		CycleDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "relay",
			Subsystem: "engine",
			Name:      "cycle_duration_seconds",
			Help:      "Relay cycle duration",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}),
		CycleClaimed: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "relay",
			Subsystem: "engine",
			Name:      "cycle_claimed_requests",
			Help:      "Requests claimed per cycle",
			Buckets:   []float64{0, 1, 5, 10, 25, 50, 100, 250},
		}),
		Uncommitted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "relay",
			Subsystem: "engine",
			Name:      "uncommitted_total",
			Help:      "Requests whose terminal status could not be written",
		}),
		OutcomesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "relay",
			Subsystem: "requests",
			Name:      "outcomes_total",
			Help:      "Committed request outcomes",
		}, []string{"kind", "status", "reason"}),
		RequestsByStatus: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "relay",
			Subsystem: "requests",
			Name:      "by_status",
			Help:      "Requests currently stored per status",
		}, []string{"status"}),
	}
}

func (m *Relay) ObserveCycle(report core.CycleReport) {
	m.CyclesTotal.Inc()
	m.CycleDuration.Observe(report.Duration.Seconds())
	m.CycleClaimed.Observe(float64(report.Processed))
	m.Uncommitted.Add(float64(report.Uncommitted))
}

func (m *Relay) ObserveOutcome(outcome core.Outcome) {
	m.OutcomesTotal.WithLabelValues(string(outcome.Kind), string(outcome.Status), outcome.Reason).Inc()
}

func (m *Relay) ObserveAbort(err error) {
	m.CycleAbortsTotal.WithLabelValues(core.Classify(err)).Inc()
}

// StatusCounter reports how many requests are stored per status.
type StatusCounter interface {
	CountByStatus(ctx context.Context) ([]*model.StatusCount, error)
}

// SetStatusCounts replaces the per-status gauge values.
func (m *Relay) SetStatusCounts(counts []*model.StatusCount) {
	m.RequestsByStatus.Reset()
	for _, c := range counts {
		m.RequestsByStatus.WithLabelValues(c.Status).Set(float64(c.Count))
	}
}

// PollStatusCounts refreshes the per-status gauge every interval until ctx is done.
func (m *Relay) PollStatusCounts(ctx context.Context, counter StatusCounter, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		counts, err := counter.CountByStatus(ctx)
		if err != nil {
			config.Log.Warn("Failed to count requests by status", err)
		} else {
			m.SetStatusCounts(counts)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
