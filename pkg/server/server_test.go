package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/sys/unix"

	"github.com/tcs-recycling/wipestation/pkg/devices"
	"github.com/tcs-recycling/wipestation/pkg/guardrail"
	"github.com/tcs-recycling/wipestation/pkg/wipejob"
)

// blockedRunner records helper invocations and holds each one until released.
type blockedRunner struct {
	mu      sync.Mutex
	calls   int
	release chan struct{}
}

func newBlockedRunner() *blockedRunner {
	return &blockedRunner{release: make(chan struct{})}
}

func (r *blockedRunner) Run(ctx context.Context, method wipejob.Method, device string, onLine func(string)) error {
	r.mu.Lock()
	r.calls++
	r.mu.Unlock()
	select {
	case <-r.release:
	case <-ctx.Done():
	}
	return nil
}

func (r *blockedRunner) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

func newTestServer(t *testing.T, runner wipejob.Runner, disks ...devices.Device) *Server {
	t.Helper()

	inventory := func() (map[string]devices.Device, error) {
		out := make(map[string]devices.Device, len(disks))
		for _, d := range disks {
			out[d.Name] = d
		}
		return out, nil
	}

	log := zaptest.NewLogger(t)
	monitor := devices.NewMonitor(inventory, time.Minute, time.Second, log)
	monitor.Refresh(context.Background())

	protected := devices.NewProtectedSet([]string{"sda"})
	validator := guardrail.NewValidatorWithProbes(protected,
		func(string) (uint32, error) { return unix.S_IFBLK, nil },
		func(string) ([]string, error) { return nil, nil },
	)
	engine := wipejob.NewEngine(context.Background(), monitor, validator, runner, nil, log,
		wipejob.Options{Retention: time.Hour, RetentionMax: 16})

	return New(":0", monitor, engine, protected, log)
}

func testDisks() []devices.Device {
	return []devices.Device{
		{Name: "sda", Path: "/dev/sda", Size: 256e9, Rotational: false, Protected: true},
		{Name: "sdb", Path: "/dev/sdb", Size: 500e9, Rotational: true},
	}
}

func doJSON(t *testing.T, s *Server, method, target string) (*httptest.ResponseRecorder, map[string]json.RawMessage) {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	body := map[string]json.RawMessage{}
	if rec.Body.Len() > 0 && strings.Contains(rec.Header().Get("Content-Type"), "json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	}
	return rec, body
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t, newBlockedRunner(), testDisks()...)
	rec, _ := doJSON(t, s, http.MethodGet, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestDisksEndpoint(t *testing.T) {
	s := newTestServer(t, newBlockedRunner(), testDisks()...)
	rec, body := doJSON(t, s, http.MethodGet, "/api/disks")
	require.Equal(t, http.StatusOK, rec.Code)

	var disks []devices.Device
	require.NoError(t, json.Unmarshal(body["disks"], &disks))
	require.Len(t, disks, 2)
	assert.Equal(t, "sda", disks[0].Name)
	assert.Equal(t, "sdb", disks[1].Name)

	var protected []string
	require.NoError(t, json.Unmarshal(body["protected"], &protected))
	assert.Equal(t, []string{"sda"}, protected)
}

func TestJobsEndpointEmpty(t *testing.T) {
	s := newTestServer(t, newBlockedRunner(), testDisks()...)
	rec, body := doJSON(t, s, http.MethodGet, "/api/jobs")
	require.Equal(t, http.StatusOK, rec.Code)

	var jobs []wipejob.WipeJob
	require.NoError(t, json.Unmarshal(body["jobs"], &jobs))
	assert.Empty(t, jobs)
}

func TestWipeAccepted(t *testing.T) {
	runner := newBlockedRunner()
	defer close(runner.release)
	s := newTestServer(t, runner, testDisks()...)

	rec, body := doJSON(t, s, http.MethodPost, "/api/wipe/sdb?level=med")
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	var jobID string
	require.NoError(t, json.Unmarshal(body["jobId"], &jobID))
	assert.NotEmpty(t, jobID)

	var job wipejob.WipeJob
	require.NoError(t, json.Unmarshal(body["job"], &job))
	assert.Equal(t, "sdb", job.Disk)
	assert.Equal(t, wipejob.MethodHDDRandom, job.Method)
	assert.Equal(t, wipejob.StatusRunning, job.Status)
}

func TestWipeDefaultsToLowLevel(t *testing.T) {
	runner := newBlockedRunner()
	defer close(runner.release)
	s := newTestServer(t, runner, testDisks()...)

	rec, body := doJSON(t, s, http.MethodPost, "/api/wipe/sdb")
	require.Equal(t, http.StatusAccepted, rec.Code)

	var job wipejob.WipeJob
	require.NoError(t, json.Unmarshal(body["job"], &job))
	assert.Equal(t, wipejob.LevelLow, job.Level)
	assert.Equal(t, wipejob.MethodHDDZero, job.Method)
}

func TestWipeRejectionStatuses(t *testing.T) {
	runner := newBlockedRunner()
	defer close(runner.release)
	s := newTestServer(t, runner, testDisks()...)

	// Protected device fails the guardrail.
	rec, body := doJSON(t, s, http.MethodPost, "/api/wipe/sda?level=high")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, string(body["error"]), "ProtectedDevice")

	// Device the monitor has never seen.
	rec, _ = doJSON(t, s, http.MethodPost, "/api/wipe/sdq")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Bad level string.
	rec, _ = doJSON(t, s, http.MethodPost, "/api/wipe/sdb?level=extreme")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Duplicate request while the first is still running.
	rec, _ = doJSON(t, s, http.MethodPost, "/api/wipe/sdb")
	require.Equal(t, http.StatusAccepted, rec.Code)
	rec, _ = doJSON(t, s, http.MethodPost, "/api/wipe/sdb")
	assert.Equal(t, http.StatusConflict, rec.Code)

	assert.Equal(t, 1, runner.callCount(), "only the accepted request reaches the helper")
}

func TestWipeRejectsInjectionAttempts(t *testing.T) {
	runner := newBlockedRunner()
	defer close(runner.release)
	s := newTestServer(t, runner, testDisks()...)

	// Names that are not known whole disks never reach the helper, no matter
	// what shell metacharacters or traversal they carry.
	names := []string{
		"sdb%3Brm%20-rf%20%2F",   // sdb;rm -rf /
		"..%2F..%2Fetc%2Fshadow", // ../../etc/shadow
		"sdb%20--force",          // argument smuggling
		"%24%28reboot%29",        // $(reboot)
		"sdb1",                   // partition, not a whole disk
	}
	for _, name := range names {
		rec, _ := doJSON(t, s, http.MethodPost, "/api/wipe/"+name)
		assert.Contains(t, []int{http.StatusBadRequest, http.StatusNotFound}, rec.Code, name)
	}
	assert.Zero(t, runner.callCount())
}

func TestIndexPage(t *testing.T) {
	s := newTestServer(t, newBlockedRunner(), testDisks()...)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), "/api/disks")
}

func TestDiskEventsFirstFrameIsSnapshot(t *testing.T) {
	s := newTestServer(t, newBlockedRunner(), testDisks()...)

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/events", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		s.Router().ServeHTTP(rec, req)
		close(done)
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("SSE handler did not exit on client disconnect")
	}

	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, "no", rec.Header().Get("X-Accel-Buffering"))

	body := rec.Body.String()
	require.True(t, strings.HasPrefix(body, "data: "), body)
	frame := strings.SplitN(strings.TrimPrefix(body, "data: "), "\n", 2)[0]

	var event devices.Event
	require.NoError(t, json.Unmarshal([]byte(frame), &event))
	assert.Equal(t, devices.EventSnapshot, event.Type)
	assert.Len(t, event.Disks, 2)
}

func TestJobEventsSnapshotThenDelta(t *testing.T) {
	runner := newBlockedRunner()
	defer close(runner.release)
	s := newTestServer(t, runner, testDisks()...)

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/events/jobs", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		s.Router().ServeHTTP(rec, req)
		close(done)
	}()
	time.Sleep(50 * time.Millisecond)

	wipeRec, _ := doJSON(t, s, http.MethodPost, "/api/wipe/sdb")
	require.Equal(t, http.StatusAccepted, wipeRec.Code)

	time.Sleep(100 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("SSE handler did not exit on client disconnect")
	}

	frames := strings.Split(strings.TrimSpace(rec.Body.String()), "\n\n")
	require.GreaterOrEqual(t, len(frames), 2, rec.Body.String())

	var first, second wipejob.Event
	require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(frames[0], "data: ")), &first))
	require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(frames[1], "data: ")), &second))

	assert.Equal(t, wipejob.EventJobsSnapshot, first.Type)
	assert.Empty(t, first.Jobs)
	assert.Equal(t, wipejob.EventJob, second.Type)
	require.NotNil(t, second.Job)
	assert.Equal(t, "sdb", second.Job.Disk)
}
