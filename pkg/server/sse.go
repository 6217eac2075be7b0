// pkg/server/sse.go

package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/tcs-recycling/wipestation/pkg/events"
)

// handleDiskEvents streams device snapshot/add/change/remove events.
func (s *Server) handleDiskEvents(c *gin.Context) {
	streamSSE(c, s.monitor.Broker(), "disks", s.log)
}

// handleJobEvents streams jobs_snapshot/job events.
func (s *Server) handleJobEvents(c *gin.Context) {
	streamSSE(c, s.engine.Broker(), "jobs", s.log)
}

func setSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
}

// streamSSE pumps a broker subscription to the client until it disconnects.
// The broker primes every subscription with a snapshot, so the first frame a
// client sees is always a consistent full state.
func streamSSE[T any](c *gin.Context, broker *events.Broker[T], channel string, log *zap.Logger) {
	setSSEHeaders(c.Writer)
	c.Writer.WriteHeader(http.StatusOK)
	c.Writer.Flush()

	ch, cancel := broker.Subscribe()
	defer cancel()

	sseSubscribers.WithLabelValues(channel).Inc()
	defer sseSubscribers.WithLabelValues(channel).Dec()

	clientGone := c.Request.Context().Done()
	for {
		select {
		case <-clientGone:
			return
		case event, ok := <-ch:
			if !ok {
				return
			}
			data, err := json.Marshal(event)
			if err != nil {
				log.Error("Failed to encode SSE event",
					zap.String("channel", channel),
					zap.Error(err))
				continue
			}
			if _, err := fmt.Fprintf(c.Writer, "data: %s\n\n", data); err != nil {
				return
			}
			c.Writer.Flush()
		}
	}
}
