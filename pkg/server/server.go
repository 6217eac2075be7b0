// pkg/server/server.go

package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	cerr "github.com/cockroachdb/errors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"

	"github.com/tcs-recycling/wipestation/pkg/devices"
	"github.com/tcs-recycling/wipestation/pkg/wipejob"
)

// Server is the browser-facing HTTP surface: a JSON API for snapshots and
// wipe requests, plus two SSE channels for live device and job state.
type Server struct {
	listen    string
	monitor   *devices.Monitor
	engine    *wipejob.Engine
	protected *devices.ProtectedSet
	log       *zap.Logger
	router    *gin.Engine
}

// New assembles the router. Destructive capability lives entirely behind the
// engine; the server only translates HTTP to engine calls.
func New(listen string, monitor *devices.Monitor, engine *wipejob.Engine, protected *devices.ProtectedSet, log *zap.Logger) *Server {
	s := &Server{
		listen:    listen,
		monitor:   monitor,
		engine:    engine,
		protected: protected,
		log:       log,
	}

	monitor.Broker().OnDrop(func() { sseEventsDropped.WithLabelValues("disks").Inc() })
	engine.Broker().OnDrop(func() { sseEventsDropped.WithLabelValues("jobs").Inc() })

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(s.requestLogger(), gin.Recovery())

	router.GET("/", s.handleIndex)
	router.GET("/healthz", s.handleHealthz)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api")
	{
		api.GET("/disks", s.handleDisks)
		api.GET("/jobs", s.handleJobs)
		api.POST("/wipe/:name", s.handleWipe)
	}

	router.GET("/events", s.handleDiskEvents)
	router.GET("/events/jobs", s.handleJobEvents)

	s.router = router
	return s
}

// Router exposes the gin engine for tests.
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Run serves until ctx is cancelled, then drains with a short grace period.
// SSE connections are long-lived, so shutdown closes them rather than waiting.
func (s *Server) Run(ctx context.Context) error {
	logger := otelzap.Ctx(ctx)

	srv := &http.Server{
		Addr:    s.listen,
		Handler: s.router,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", zap.String("addr", s.listen))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return cerr.Wrap(err, "http server")
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("HTTP server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		srv.Close()
	}
	return nil
}

// requestLogger logs each request with zap and counts it for metrics.
// SSE routes are skipped in the log to avoid one line per long-poll.
func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		httpRequests.WithLabelValues(route, strconv.Itoa(c.Writer.Status())).Inc()

		if route == "/events" || route == "/events/jobs" || route == "/metrics" {
			return
		}
		s.log.Info("HTTP request",
			zap.String("method", c.Request.Method),
			zap.String("route", route),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("client", c.ClientIP()))
	}
}
