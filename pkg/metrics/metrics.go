// Package metrics declares the prometheus collectors shared by the services.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SyncAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "repochat",
		Subsystem: "sync",
		Name:      "attempts_total",
		Help:      "Sync attempts by outcome (ok, fetch_error, build_error)",
	}, []string{"outcome"})

	SyncOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "repochat",
		Subsystem: "sync",
		Name:      "jobs_total",
		Help:      "Finished sync jobs by terminal state",
	}, []string{"state"})

	SyncDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "repochat",
		Subsystem: "sync",
		Name:      "job_duration_seconds",
		Help:      "Wall time of sync jobs including retries",
		Buckets:   prometheus.ExponentialBuckets(0.5, 2, 12),
	})

	AgentCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "repochat",
		Subsystem: "agents",
		Name:      "calls_total",
		Help:      "Agent invocations by agent and outcome (ok, error, timeout)",
	}, []string{"agent", "outcome"})

	AgentDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "repochat",
		Subsystem: "agents",
		Name:      "call_duration_seconds",
		Help:      "Agent invocation latency",
		Buckets:   prometheus.DefBuckets,
	}, []string{"agent"})

	Answers = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "repochat",
		Subsystem: "agents",
		Name:      "answers_total",
		Help:      "Answered queries by outcome (ok, degraded, failed)",
	}, []string{"outcome"})

	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "repochat",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "HTTP requests by method, route and status",
	}, []string{"method", "route", "status"})
)
