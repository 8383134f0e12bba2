package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	depositsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rebalancer_deposits_total",
		Help: "Number of deposits credited to portfolios.",
	})
	withdrawalsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rebalancer_withdrawals_total",
		Help: "Number of completed full withdrawals.",
	})
	swapsExecuted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rebalancer_swaps_executed_total",
		Help: "Number of rebalancing swaps executed against the venue.",
	})
	sweepsRun = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rebalancer_sweeps_total",
		Help: "Number of completed keeper sweeps.",
	})
	sweepFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rebalancer_sweep_failures_total",
		Help: "Number of sweeps aborted by an error.",
	})
)
