// Package metrics holds the Prometheus collectors for the generation client and proxy.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Labels stay low cardinality: no task ids or prompts.
var (
	// SignedRequestsTotal counts signed provider calls by action and result.
	SignedRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "visualgen_signed_requests_total",
		Help: "Total number of signed provider requests, by action and result.",
	}, []string{"action", "result"})

	// SubmissionsTotal counts generation submissions by kind and outcome.
	SubmissionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "visualgen_submissions_total",
		Help: "Total number of generation submissions, by kind and outcome.",
	}, []string{"kind", "outcome"})

	// PollsTotal counts status queries by kind and canonical status.
	PollsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "visualgen_polls_total",
		Help: "Total number of task status queries, by kind and canonical status.",
	}, []string{"kind", "status"})

	// TaskOutcomesTotal counts finished tasks by kind and terminal state.
	TaskOutcomesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "visualgen_task_outcomes_total",
		Help: "Total number of finished generation tasks, by kind and terminal state.",
	}, []string{"kind", "state"})

	// ActiveTasks tracks tasks currently inside the poll loop.
	ActiveTasks = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "visualgen_active_tasks",
		Help: "Current number of generation tasks being polled.",
	})
)
