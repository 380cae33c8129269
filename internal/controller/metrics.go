// Package controller implements the forking drone supervisor of spec
// §4.5: a per-service process that owns idle/active worker pools, a
// status socket pair, and router registration. Grounded on the
// teacher's graceful-shutdown main (cmd/app/main.go) for signal
// handling and the HyphaGroup-oubliette metrics package for the
// promauto gauge/counter wiring pattern.
package controller

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	idleWorkers = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "opensrf_controller_idle_workers",
			Help: "Number of idle drone workers waiting for a request.",
		},
		[]string{"service"},
	)

	activeWorkers = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "opensrf_controller_active_workers",
			Help: "Number of drone workers currently servicing a request.",
		},
		[]string{"service"},
	)

	workersSpawned = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "opensrf_controller_workers_spawned_total",
			Help: "Total number of drone worker processes spawned.",
		},
		[]string{"service"},
	)

	workersRetired = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "opensrf_controller_workers_retired_total",
			Help: "Total number of drone worker processes retired after max_requests or a crash.",
		},
		[]string{"service", "reason"},
	)

	requestsDispatched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "opensrf_controller_requests_dispatched_total",
			Help: "Total number of NetworkMessage frames handed to a worker.",
		},
		[]string{"service"},
	)
)
