// pkg/server/metrics.go

package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sseSubscribers = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "wipestation_sse_subscribers",
		Help: "Connected event-stream clients, by channel.",
	}, []string{"channel"})

	sseEventsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wipestation_sse_events_dropped_total",
		Help: "Events evicted from saturated subscriber queues, by channel.",
	}, []string{"channel"})

	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wipestation_http_requests_total",
		Help: "HTTP requests served, by route and status.",
	}, []string{"route", "status"})
)
