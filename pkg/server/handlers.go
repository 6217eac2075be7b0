// pkg/server/handlers.go

package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/tcs-recycling/wipestation/pkg/guardrail"
	"github.com/tcs-recycling/wipestation/pkg/station_err"
	"github.com/tcs-recycling/wipestation/pkg/wipejob"
)

const indexPage = `<!doctype html>
<title>Wipe Station</title>
<h1>Wipe Station API</h1>
<p>Use /api/disks, /api/wipe/{disk}?level=low|med|high, /events, /events/jobs</p>
`

func (s *Server) handleIndex(c *gin.Context) {
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(indexPage))
}

func (s *Server) handleHealthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// handleDisks returns the current device snapshot plus the protected list.
func (s *Server) handleDisks(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"disks":     s.monitor.Snapshot(),
		"protected": s.protected.List(),
	})
}

// handleJobs returns all retained jobs for late-joining pages.
func (s *Server) handleJobs(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"jobs": s.engine.Snapshot()})
}

// handleWipe admits a wipe request. Rejections come back as an error string
// with a status matching the reason; an accepted job is returned with 202
// since the wipe itself runs for hours.
func (s *Server) handleWipe(c *gin.Context) {
	name := c.Param("name")

	level, err := wipejob.ParseLevel(c.DefaultQuery("level", "low"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	job, err := s.engine.StartWipe(c.Request.Context(), name, level)
	if err != nil {
		status := statusForRejection(err)
		if !station_err.IsExpectedUserError(err) {
			status = http.StatusInternalServerError
			s.log.Error("Wipe admission failed unexpectedly",
				zap.String("disk", name),
				zap.Error(err))
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"jobId": job.ID, "job": job})
}

// statusForRejection maps admission rejections onto HTTP statuses: conflicts
// for duplicate jobs, not-found for devices the monitor has never seen, and
// bad-request for everything the guardrail refuses.
func statusForRejection(err error) int {
	var admission *wipejob.AdmissionError
	if errors.As(err, &admission) {
		switch admission.Reason {
		case wipejob.ReasonAlreadyRunning:
			return http.StatusConflict
		case wipejob.ReasonUnknownDevice:
			return http.StatusNotFound
		}
	}
	var rejection *guardrail.Rejection
	if errors.As(err, &rejection) {
		return http.StatusBadRequest
	}
	return http.StatusBadRequest
}
