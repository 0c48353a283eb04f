package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/youngsu5582/logsift/internal/models"
)

const (
	// OutcomeSuccess labels runs that completed including persistence.
	OutcomeSuccess = "success"
	// OutcomeError labels runs that failed (fetch or history save).
	OutcomeError = "error"
)

var (
	runsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "logsift",
			Name:      "runs_total",
			Help:      "Total number of analysis runs, partitioned by outcome.",
		},
		[]string{"outcome"},
	)

	runSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "logsift",
			Name:      "run_seconds",
			Help:      "End-to-end run latency in seconds, fetch included.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
		},
	)

	recordsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "logsift",
			Name:      "records_total",
			Help:      "Total raw log records fed into the engine.",
		},
	)

	patternsSeen = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "logsift",
			Name:      "patterns",
			Help:      "Signature patterns in the latest run, partitioned by class.",
		},
		[]string{"class"},
	)
)

// Register attaches the logsift collectors to the supplied registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		runsTotal,
		runSeconds,
		recordsTotal,
		patternsSeen,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveRun records one run's outcome and latency.
func ObserveRun(duration time.Duration, outcome string) {
	label := outcome
	if label != OutcomeError {
		label = OutcomeSuccess
	}
	runsTotal.WithLabelValues(label).Inc()
	if duration < 0 {
		duration = 0
	}
	runSeconds.Observe(duration.Seconds())
}

// ObserveReport publishes batch-level stats from a completed report.
func ObserveReport(report models.Report) {
	recordsTotal.Add(float64(report.TotalRecords))
	patternsSeen.WithLabelValues("attention").Set(float64(len(report.Attention)))
	patternsSeen.WithLabelValues("noise").Set(float64(len(report.Noise)))
	patternsSeen.WithLabelValues("new").Set(float64(len(report.NewSignatures)))
}
