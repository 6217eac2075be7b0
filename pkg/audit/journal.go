// pkg/audit/journal.go

package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	cerr "github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/tcs-recycling/wipestation/pkg/wipejob"
)

// Journal appends one JSONL record per finished wipe job to a monthly file.
// Technicians pull these for chain-of-custody paperwork; losing a record is
// logged loudly but never fails the job itself.
type Journal struct {
	mu       sync.Mutex
	basePath string
	log      *zap.Logger
}

// NewJournal creates the journal directory if needed.
func NewJournal(basePath string, log *zap.Logger) (*Journal, error) {
	if err := os.MkdirAll(basePath, 0o700); err != nil {
		return nil, cerr.Wrapf(err, "create journal dir %s", basePath)
	}
	return &Journal{basePath: basePath, log: log}, nil
}

// Record appends the finished job to the current month's file.
func (j *Journal) Record(job wipejob.WipeJob) {
	j.mu.Lock()
	defer j.mu.Unlock()

	path := filepath.Join(j.basePath, fmt.Sprintf("jobs-%s.log", time.Now().Format("2006-01")))

	data, err := json.Marshal(job)
	if err != nil {
		j.log.Error("Failed to encode audit record",
			zap.String("job_id", job.ID),
			zap.Error(err))
		return
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		j.log.Error("Failed to open audit journal",
			zap.String("path", path),
			zap.Error(err))
		return
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		j.log.Error("Failed to write audit record",
			zap.String("job_id", job.ID),
			zap.String("path", path),
			zap.Error(err))
	}
}
