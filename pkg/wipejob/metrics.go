// pkg/wipejob/metrics.go

package wipejob

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	jobsStarted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wipestation_jobs_started_total",
		Help: "Wipe jobs admitted, by resolved method.",
	}, []string{"method"})

	jobsFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wipestation_jobs_finished_total",
		Help: "Wipe jobs reaching a terminal state, by method and outcome.",
	}, []string{"method", "outcome"})

	jobsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "wipestation_jobs_active",
		Help: "Wipe jobs currently running.",
	})

	admissionRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wipestation_admission_rejected_total",
		Help: "Wipe requests rejected before a job was created, by reason.",
	}, []string{"reason"})
)
