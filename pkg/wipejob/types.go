// pkg/wipejob/types.go

package wipejob

import (
	"strings"
	"time"
)

// WipeJob is the read-model for one wipe invocation. JSON keys match the
// wire contract the station UI consumes. A job is mutated only by its owning
// supervisor goroutine through the engine's registry lock and becomes
// terminal exactly once.
type WipeJob struct {
	ID         string  `json:"id"`
	Disk       string  `json:"disk"`
	Device     string  `json:"device"`
	Level      Level   `json:"level"`
	Method     Method  `json:"method"`
	Status     string  `json:"status"`
	Rotational bool    `json:"rotational"`
	Model      string  `json:"model"`
	Serial     string  `json:"serial"`
	Bus        string  `json:"bus"`
	Size       uint64  `json:"size"`
	Bytes      uint64  `json:"bytes"`
	Percent    float64 `json:"percent"`
	MBps       float64 `json:"mbps"`
	ETASeconds *int64  `json:"eta_sec"`
	LastLog    string  `json:"last_log"`
	Started    float64 `json:"started"`
	Finished   float64 `json:"finished,omitempty"`

	startedAt time.Time
}

const StatusRunning = "running"
const StatusDone = "done"

// Terminal reports whether the job has reached done or error state.
func (j *WipeJob) Terminal() bool {
	return j.Status != StatusRunning
}

// Failed reports whether the job ended in an error state.
func (j *WipeJob) Failed() bool {
	return strings.HasPrefix(j.Status, "error")
}

// Event is one entry on the jobs SSE channel.
type Event struct {
	Type string    `json:"type"` // jobs_snapshot, job
	Job  *WipeJob  `json:"job,omitempty"`
	Jobs []WipeJob `json:"jobs,omitempty"`
	TS   float64   `json:"ts"`
}

const (
	EventJobsSnapshot = "jobs_snapshot"
	EventJob          = "job"
)
