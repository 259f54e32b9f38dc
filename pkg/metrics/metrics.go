package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	namespace = "cropdesk"

	// Job metrics
	jobsTotal          = "jobs_total"
	jobDurationSeconds = "job_duration_seconds"
	toolExitTotal      = "tool_exit_total"
	inputPagesTotal    = "input_pages_total"
	jobsRunning        = "jobs_running"

	// Labels
	toolLabel    = "tool"
	outcomeLabel = "outcome"
	classLabel   = "class"
)

var jobLabels = []string{
	toolLabel,
	outcomeLabel,
}

/**
* Metrics definition
**/
var jobsTotalMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      jobsTotal,
		Help:      "number of jobs partitioned by tool and terminal state",
	},
	jobLabels,
)

var jobDurationMetric = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      jobDurationSeconds,
		Help:      "time from upload acceptance to terminal state",
		Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
	},
	jobLabels,
)

var toolExitMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      toolExitTotal,
		Help:      "tool process exits partitioned by classification",
	},
	[]string{toolLabel, classLabel},
)

var inputPagesMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      inputPagesTotal,
		Help:      "number of uploaded pdf pages",
	},
	[]string{toolLabel},
)

var jobsRunningMetric = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      jobsRunning,
		Help:      "number of tool processes currently running",
	},
	[]string{toolLabel},
)

func IncreaseJobsTotalMetric(tool, outcome string) {
	jobsTotalMetric.With(prometheus.Labels{toolLabel: tool, outcomeLabel: outcome}).Inc()
}

func ObserveJobDuration(tool, outcome string, seconds float64) {
	jobDurationMetric.With(prometheus.Labels{toolLabel: tool, outcomeLabel: outcome}).Observe(seconds)
}

func IncreaseToolExitMetric(tool, class string) {
	toolExitMetric.With(prometheus.Labels{toolLabel: tool, classLabel: class}).Inc()
}

func AddInputPagesMetric(tool string, pages int) {
	if pages <= 0 {
		return
	}
	inputPagesMetric.With(prometheus.Labels{toolLabel: tool}).Add(float64(pages))
}

// TrackRunning increments the running gauge and returns the matching decrement.
func TrackRunning(tool string) func() {
	g := jobsRunningMetric.With(prometheus.Labels{toolLabel: tool})
	g.Inc()
	return g.Dec
}

func init() {
	registerMetrics()
}

func registerMetrics() {
	prometheus.MustRegister(jobsTotalMetric)
	prometheus.MustRegister(jobDurationMetric)
	prometheus.MustRegister(toolExitMetric)
	prometheus.MustRegister(inputPagesMetric)
	prometheus.MustRegister(jobsRunningMetric)
	prometheus.MustRegister(UniqueUsersPerWeek.counter)
}
