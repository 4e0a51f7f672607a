package scheduler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var tasksTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "poscalc",
		Subsystem: "scheduler",
		Name:      "tasks_total",
		Help:      "One-shot tasks by name and outcome (ok, error, rejected)",
	},
	[]string{"task", "outcome"},
)

var loopStepsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "poscalc",
		Subsystem: "scheduler",
		Name:      "loop_steps_total",
		Help:      "Polling loop iterations by loop and outcome",
	},
	[]string{"loop", "outcome"},
)

var queueDepth = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "poscalc",
		Subsystem: "scheduler",
		Name:      "queue_depth",
		Help:      "Tasks waiting for a worker",
	},
)
