/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "paraspace"

var (
	// SolvesTotal counts finished solves.
	// Labels: outcome (solved, malformed_problem, infeasible, unbounded, cancelled, internal)
	SolvesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "solver",
		Name:      "solves_total",
		Help:      "Total solves by outcome",
	}, []string{"outcome"})

	SolveDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "solver",
		Name:      "solve_duration_seconds",
		Help:      "Solve wall time in seconds",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
	}, []string{"outcome"})

	SearchNodes = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "solver",
		Name:      "search_nodes",
		Help:      "Search nodes visited per solve",
		Buckets:   prometheus.ExponentialBuckets(1, 4, 10),
	})

	GroundTokens = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "solver",
		Name:      "ground_tokens",
		Help:      "Ground tokens in the final plan",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
	})

	// CacheLookups counts solve cache lookups.
	// Labels: result (hit, miss)
	CacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "cache",
		Name:      "lookups_total",
		Help:      "Solve cache lookups by result",
	}, []string{"result"})

	// DatabaseQueryDuration is recorded by the gorm callbacks.
	// Labels: operation, table
	DatabaseQueryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "db",
		Name:      "query_duration_seconds",
		Help:      "Database operation latency in seconds",
		Buckets:   prometheus.DefBuckets,
	}, []string{"operation", "table"})

	DatabaseErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "db",
		Name:      "errors_total",
		Help:      "Database operation errors",
	}, []string{"operation", "type"})

	DatabaseConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "db",
		Name:      "connections_open",
		Help:      "Open database connections",
	})

	// Labels: method, endpoint (route pattern), status
	APIRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "api",
		Name:      "requests_total",
		Help:      "HTTP requests by route and status",
	}, []string{"method", "endpoint", "status"})

	APIRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "api",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency in seconds",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "endpoint", "status"})

	APIActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "api",
		Name:      "active_connections",
		Help:      "In-flight HTTP requests",
	})

	// LeaderStatus is 1 while this instance holds the maintenance lease.
	// Labels: instance_id
	LeaderStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "leader",
		Name:      "status",
		Help:      "Maintenance leadership held by this instance (1) or not (0)",
	}, []string{"instance_id"})

	// Labels: instance_id, transition (acquired, lost)
	LeaderChanges = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "leader",
		Name:      "changes_total",
		Help:      "Maintenance leadership transitions",
	}, []string{"instance_id", "transition"})
)

// RecordSolve records the metrics of one finished solve.
func RecordSolve(outcome string, seconds float64, nodes, tokens int) {
	SolvesTotal.WithLabelValues(outcome).Inc()
	SolveDuration.WithLabelValues(outcome).Observe(seconds)
	if nodes > 0 {
		SearchNodes.Observe(float64(nodes))
	}
	if tokens > 0 {
		GroundTokens.Observe(float64(tokens))
	}
}

// RecordCacheLookup counts a cache hit or miss.
func RecordCacheLookup(hit bool) {
	if hit {
		CacheLookups.WithLabelValues("hit").Inc()
		return
	}
	CacheLookups.WithLabelValues("miss").Inc()
}

// Handler exposes the metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
