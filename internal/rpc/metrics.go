package rpc

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// callsTotal counts finished calls by action and outcome (success, error,
// transport).
var callsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "poscalc",
		Subsystem: "rpc",
		Name:      "calls_total",
		Help:      "RPC round trips by action and outcome",
	},
	[]string{"action", "outcome"},
)

var callLatency = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "poscalc",
		Subsystem: "rpc",
		Name:      "call_latency_ms",
		Help:      "Full round trip time including dial, in milliseconds",
		Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 5000},
	},
	[]string{"action"},
)

const (
	outcomeSuccess   = "success"
	outcomeError     = "error"
	outcomeTransport = "transport"
)
