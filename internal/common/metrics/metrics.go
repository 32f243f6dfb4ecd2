// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	DialogueTurns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dialogue_turns_total",
			Help: "Total number of chat turns processed, by decision",
		},
		[]string{"decision"},
	)

	DialogueClarifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dialogue_clarifications_total",
			Help: "Clarification questions asked, by analysis kind and parameter",
		},
		[]string{"kind", "parameter"},
	)

	DialogueIssues = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dialogue_issues_total",
			Help: "Dialogue conditions raised by turns, by error code",
		},
		[]string{"code"},
	)

	DialogueRestarts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dialogue_restarts_total",
			Help: "Dialogues abandoned after reaching the turn cap",
		},
	)

	IntentClassifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "intent_classifications_total",
			Help: "Intent classification results, by kind and source",
		},
		[]string{"kind", "source"},
	)

	AnalysisDispatches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "analysis_dispatches_total",
			Help: "Requests sent to the analysis engine, by kind and outcome",
		},
		[]string{"kind", "status"},
	)

	AnalysisDispatchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "analysis_dispatch_duration_seconds",
			Help:    "Wall time of a dispatch including retries",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"kind"},
	)

	LocationLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "location_lookups_total",
			Help: "Location resolver lookups, by match kind",
		},
		[]string{"result"},
	)

	SessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dialogue_sessions_active",
			Help: "Conversation states held by the in-memory session store",
		},
	)

	WorkerJobsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_completed_total",
			Help: "Total number of jobs completed by worker",
		},
		[]string{"task_type"},
	)

	WorkerJobsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_failed_total",
			Help: "Total number of jobs failed by worker",
		},
		[]string{"task_type", "error_code"},
	)
)
