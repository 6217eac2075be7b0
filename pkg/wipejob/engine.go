// pkg/wipejob/engine.go

package wipejob

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/tcs-recycling/wipestation/pkg/devices"
	"github.com/tcs-recycling/wipestation/pkg/events"
	"github.com/tcs-recycling/wipestation/pkg/guardrail"
	"github.com/tcs-recycling/wipestation/pkg/station_err"
)

// AdmissionError is a wipe request rejection that happens after the guardrail
// checks: the device is unknown to the monitor or already being wiped.
type AdmissionError struct {
	Reason string
	Detail string
}

func (e *AdmissionError) Error() string {
	if e.Detail == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Reason, e.Detail)
}

const (
	ReasonUnknownDevice  = "UnknownDevice"
	ReasonAlreadyRunning = "AlreadyRunning"
)

// Journal records finished jobs for audit. Failures to record never affect
// the job outcome.
type Journal interface {
	Record(job WipeJob)
}

// Options configures the engine's retention policy.
type Options struct {
	Retention    time.Duration // how long terminal jobs stay visible
	RetentionMax int           // hard cap on retained terminal jobs
}

// Engine owns the wipe job registry and is the only writer of job state.
// The single registry mutex makes the admission check-then-insert atomic:
// two concurrent requests for the same device resolve to exactly one job.
type Engine struct {
	baseCtx   context.Context
	monitor   *devices.Monitor
	validator *guardrail.Validator
	runner    Runner
	journal   Journal
	broker    *events.Broker[Event]
	opts      Options

	mu     sync.Mutex
	jobs   map[string]*WipeJob // by job id
	active map[string]string   // disk name -> running job id
	order  []string            // job ids in admission order, for eviction
}

// NewEngine wires the engine. baseCtx bounds the lifetime of all helper
// processes: cancelling it (service shutdown) terminates running helpers and
// their jobs end in an error state, never in a silent success.
func NewEngine(
	baseCtx context.Context,
	monitor *devices.Monitor,
	validator *guardrail.Validator,
	runner Runner,
	journal Journal,
	log *zap.Logger,
	opts Options,
) *Engine {
	e := &Engine{
		baseCtx:   baseCtx,
		monitor:   monitor,
		validator: validator,
		runner:    runner,
		journal:   journal,
		opts:      opts,
		jobs:      make(map[string]*WipeJob),
		active:    make(map[string]string),
	}
	e.broker = events.NewBroker(log, e.snapshotEvents)
	return e
}

// Broker exposes the job event broker for SSE subscribers.
func (e *Engine) Broker() *events.Broker[Event] {
	return e.broker
}

// StartWipe validates and admits a wipe request, spawns the helper under a
// dedicated supervisor goroutine, and returns the created job. Rejections
// are expected user errors; no job is created for them.
func (e *Engine) StartWipe(ctx context.Context, diskName string, level Level) (WipeJob, error) {
	logger := otelzap.Ctx(ctx)

	dev, ok := e.monitor.Get(diskName)
	if !ok {
		admissionRejected.WithLabelValues(ReasonUnknownDevice).Inc()
		return WipeJob{}, station_err.NewExpectedError(
			&AdmissionError{Reason: ReasonUnknownDevice, Detail: diskName})
	}

	if err := e.validator.Validate(dev.Path); err != nil {
		admissionRejected.WithLabelValues(string(guardrail.ReasonOf(err))).Inc()
		logger.Warn("Wipe request failed guardrail",
			zap.String("disk", diskName),
			zap.Error(err))
		return WipeJob{}, station_err.NewExpectedError(err)
	}

	method, err := ResolveMethod(level, dev.Rotational)
	if err != nil {
		return WipeJob{}, station_err.NewExpectedError(err)
	}

	now := time.Now()
	job := &WipeJob{
		ID:         uuid.New().String(),
		Disk:       dev.Name,
		Device:     dev.Path,
		Level:      level,
		Method:     method,
		Status:     StatusRunning,
		Rotational: dev.Rotational,
		Model:      dev.Model,
		Serial:     dev.Serial,
		Bus:        dev.Transport,
		Size:       dev.Size,
		Started:    toTS(now),
		startedAt:  now,
	}

	// Admission check and insert are atomic with respect to concurrent
	// requests for the same device.
	e.mu.Lock()
	e.evictLocked(now)
	if runningID, busy := e.active[dev.Name]; busy {
		e.mu.Unlock()
		admissionRejected.WithLabelValues(ReasonAlreadyRunning).Inc()
		return WipeJob{}, station_err.NewExpectedError(&AdmissionError{
			Reason: ReasonAlreadyRunning,
			Detail: fmt.Sprintf("disk %s already has running job %s", dev.Name, runningID),
		})
	}
	e.jobs[job.ID] = job
	e.active[dev.Name] = job.ID
	e.order = append(e.order, job.ID)
	snapshot := *job
	e.mu.Unlock()

	jobsStarted.WithLabelValues(string(method)).Inc()
	jobsActive.Inc()
	logger.Info("Wipe job admitted",
		zap.String("job_id", job.ID),
		zap.String("disk", dev.Name),
		zap.String("level", string(level)),
		zap.String("method", string(method)),
		zap.Uint64("size", dev.Size))

	e.publish(snapshot)
	go e.supervise(job)

	return snapshot, nil
}

// supervise owns the helper process for one job: it streams progress lines,
// updates the job, and performs the single terminal transition on exit.
func (e *Engine) supervise(job *WipeJob) {
	logger := zap.L().With(
		zap.String("job_id", job.ID),
		zap.String("disk", job.Disk),
		zap.String("method", string(job.Method)),
	)

	family := job.Method.Family()

	// Progress publications are throttled so a chatty dd cannot flood
	// subscribers; state transitions always publish.
	limiter := rate.NewLimiter(rate.Every(250*time.Millisecond), 1)

	err := e.runner.Run(e.baseCtx, job.Method, job.Device, func(line string) {
		if snapshot, changed := e.applyLine(job, family, line); changed && limiter.Allow() {
			e.publish(snapshot)
		}
	})

	e.finish(job, family, err, logger)
}

// applyLine folds one helper output line into the job. Returns a publishable
// copy and whether anything changed. Output after the terminal transition is
// discarded.
func (e *Engine) applyLine(job *WipeJob, family ToolFamily, line string) (WipeJob, bool) {
	progress := ParseLine(family, line)

	e.mu.Lock()
	defer e.mu.Unlock()

	if job.Terminal() {
		return WipeJob{}, false
	}

	job.LastLog = line

	switch {
	case progress.Bytes != nil:
		// Cumulative counters never move backwards within a job; dd restarts
		// inside a multi-stage method would otherwise look like regress.
		if *progress.Bytes > job.Bytes {
			job.Bytes = *progress.Bytes
		}
	case progress.Fraction != nil:
		job.Percent = *progress.Fraction * 100
		if job.Size > 0 {
			job.Bytes = uint64(*progress.Fraction * float64(job.Size))
		}
	}
	e.recomputeRatesLocked(job)

	return *job, true
}

// recomputeRatesLocked derives percent, throughput and ETA from bytes done
// and elapsed time. ETA is nil while the rate is zero or unknown.
func (e *Engine) recomputeRatesLocked(job *WipeJob) {
	if job.Size > 0 && job.Bytes > 0 {
		pct := float64(job.Bytes) / float64(job.Size) * 100
		if pct > job.Percent {
			if pct > 100 {
				pct = 100
			}
			job.Percent = pct
		}
	}

	elapsed := time.Since(job.startedAt).Seconds()
	if elapsed <= 0 || job.Bytes == 0 {
		job.ETASeconds = nil
		return
	}
	rateBps := float64(job.Bytes) / elapsed
	job.MBps = rateBps / (1024 * 1024)
	if job.Size > job.Bytes && rateBps > 0 {
		eta := int64(float64(job.Size-job.Bytes) / rateBps)
		job.ETASeconds = &eta
	} else {
		job.ETASeconds = nil
	}
}

// finish performs the job's single terminal transition.
func (e *Engine) finish(job *WipeJob, family ToolFamily, runErr error, logger *zap.Logger) {
	e.mu.Lock()
	if job.Terminal() {
		e.mu.Unlock()
		return
	}

	// dd exits nonzero with ENOSPC when it runs into the end of the device;
	// that is a completed pass, not a failure.
	if runErr != nil && family == FamilyDD && job.Size > 0 &&
		float64(job.Bytes) >= float64(job.Size)*0.999 {
		job.LastLog = "dd reached end of device; treating as success"
		runErr = nil
	}

	if runErr == nil {
		job.Status = StatusDone
		job.Bytes = job.Size
		job.Percent = 100
		job.ETASeconds = nil
	} else {
		detail := station_err.ExtractSummary(job.LastLog, 1)
		if job.LastLog == "" {
			detail = runErr.Error()
		}
		job.Status = "error: " + detail
	}
	job.Finished = toTS(time.Now())
	e.recomputeRatesLocked(job)
	if job.Status == StatusDone {
		job.Percent = 100
		job.ETASeconds = nil
	}

	delete(e.active, job.Disk)
	snapshot := *job
	e.mu.Unlock()

	jobsActive.Dec()
	outcome := "done"
	if snapshot.Failed() {
		outcome = "error"
	}
	jobsFinished.WithLabelValues(string(snapshot.Method), outcome).Inc()

	if snapshot.Failed() {
		logger.Error("Wipe job failed",
			zap.String("status", snapshot.Status),
			zap.Error(runErr))
	} else {
		logger.Info("Wipe job completed",
			zap.Duration("duration", time.Since(snapshot.startedAt)))
	}

	e.publish(snapshot)
	if e.journal != nil {
		e.journal.Record(snapshot)
	}
}

// evictLocked applies the retention policy to terminal jobs: anything older
// than Retention goes, and the oldest go when more than RetentionMax remain.
func (e *Engine) evictLocked(now time.Time) {
	cutoff := toTS(now.Add(-e.opts.Retention))

	keep := e.order[:0]
	var terminal []string
	for _, id := range e.order {
		job, ok := e.jobs[id]
		if !ok {
			continue
		}
		if job.Terminal() && job.Finished > 0 && job.Finished < cutoff {
			delete(e.jobs, id)
			continue
		}
		keep = append(keep, id)
		if job.Terminal() {
			terminal = append(terminal, id)
		}
	}
	e.order = keep

	if e.opts.RetentionMax > 0 && len(terminal) > e.opts.RetentionMax {
		drop := make(map[string]struct{}, len(terminal)-e.opts.RetentionMax)
		for _, id := range terminal[:len(terminal)-e.opts.RetentionMax] {
			delete(e.jobs, id)
			drop[id] = struct{}{}
		}
		keep = e.order[:0]
		for _, id := range e.order {
			if _, gone := drop[id]; !gone {
				keep = append(keep, id)
			}
		}
		e.order = keep
	}
}

// Snapshot returns all registered jobs ordered by start time.
func (e *Engine) Snapshot() []WipeJob {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]WipeJob, 0, len(e.jobs))
	for _, id := range e.order {
		if job, ok := e.jobs[id]; ok {
			out = append(out, *job)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Started < out[j].Started })
	return out
}

// Get returns one job by id.
func (e *Engine) Get(id string) (WipeJob, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	job, ok := e.jobs[id]
	if !ok {
		return WipeJob{}, false
	}
	return *job, true
}

func (e *Engine) publish(job WipeJob) {
	e.broker.Publish(Event{Type: EventJob, Job: &job, TS: toTS(time.Now())})
}

func (e *Engine) snapshotEvents() []Event {
	return []Event{{Type: EventJobsSnapshot, Jobs: e.Snapshot(), TS: toTS(time.Now())}}
}

func toTS(t time.Time) float64 {
	return float64(t.UnixMilli()) / 1000.0
}
