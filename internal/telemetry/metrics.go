// Package telemetry exposes pipeline metrics on the default Prometheus registry
package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"hoopval/domain/verdict"
)

var (
	// runsTotal counts pipeline runs by outcome
	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hoopval_runs_total",
		Help: "Total validation runs by outcome",
	}, []string{"outcome"})

	// recordsTotal counts produced records by robustness verdict
	recordsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hoopval_records_total",
		Help: "Total validation records by robustness verdict",
	}, []string{"robust"})

	// issuesTotal counts per-metric issues by stage and code
	issuesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hoopval_issues_total",
		Help: "Total per-metric issues by stage and code",
	}, []string{"stage", "code"})

	// metricDuration tracks the time to evaluate one metric
	metricDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "hoopval_metric_duration_seconds",
		Help:    "Time to evaluate one metric in seconds",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms to ~8s
	})
)

// ObserveRun records a finished run
func ObserveRun(err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	runsTotal.WithLabelValues(outcome).Inc()
}

// ObserveRecord records one finished metric
func ObserveRecord(rec verdict.ValidationRecord, elapsed time.Duration) {
	robust := "n/a"
	if rec.Robustness != nil {
		robust = "false"
		if rec.Robustness.Verdict {
			robust = "true"
		}
	}
	recordsTotal.WithLabelValues(robust).Inc()
	for _, issue := range rec.Issues {
		issuesTotal.WithLabelValues(issue.Stage, string(issue.Code)).Inc()
	}
	metricDuration.Observe(elapsed.Seconds())
}
