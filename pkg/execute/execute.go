// pkg/execute/execute.go

package execute

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"os/exec"
	"strings"
	"time"

	cerr "github.com/cockroachdb/errors"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

// Package execute provides secure command execution with structured logging.
// Shell interpretation is never used: arguments are passed verbatim to the
// kernel, so device paths and subcommands cannot be reinterpreted.

// Options configures a single command execution.
type Options struct {
	Command string
	Args    []string
	Dir     string
	Timeout time.Duration
	Capture bool
}

// Run executes a command, captures combined output, and returns it when
// Capture is set. A zero Timeout defaults to 30s.
func Run(ctx context.Context, opts Options) (string, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	logger := otelzap.Ctx(ctx)
	cmdStr := opts.Command + " " + strings.Join(opts.Args, " ")

	runCtx, cancel := context.WithTimeout(ctx, defaultTimeout(opts.Timeout))
	defer cancel()

	cmd := exec.CommandContext(runCtx, opts.Command, opts.Args...)
	if opts.Dir != "" {
		cmd.Dir = opts.Dir
	}

	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf

	logger.Debug("Starting execution", zap.String("command", cmdStr))
	err := cmd.Run()
	output := buf.String()

	if err != nil {
		logger.Error("Execution failed",
			zap.String("command", cmdStr),
			zap.Error(err))
		return output, cerr.Wrapf(err, "command %q failed", opts.Command)
	}

	logger.Debug("Execution succeeded", zap.String("command", cmdStr))
	if opts.Capture {
		return output, nil
	}
	return "", nil
}

// Stream executes a command and delivers its stderr line by line to onLine
// as the process produces it. Wipe tools (dd, shred, hdparm) report progress
// on stderr; stdout is drained but discarded. Stream blocks until the process
// exits and returns its exit error, if any. No timeout is applied: wipes can
// legitimately run for hours, so lifetime is bounded only by ctx.
func Stream(ctx context.Context, opts Options, onLine func(string)) error {
	if ctx == nil {
		ctx = context.Background()
	}
	logger := otelzap.Ctx(ctx)
	cmdStr := opts.Command + " " + strings.Join(opts.Args, " ")

	cmd := exec.CommandContext(ctx, opts.Command, opts.Args...)
	if opts.Dir != "" {
		cmd.Dir = opts.Dir
	}

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return cerr.Wrap(err, "stderr pipe")
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return cerr.Wrap(err, "stdout pipe")
	}

	logger.Info("Starting streamed execution", zap.String("command", cmdStr))
	if err := cmd.Start(); err != nil {
		return cerr.Wrapf(err, "spawn %q", opts.Command)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = io.Copy(io.Discard, stdout)
	}()

	scanner := bufio.NewScanner(stderr)
	// Progress lines from dd/shred stay well under this, but hdparm can dump
	// the full IDENTIFY block on one line.
	scanner.Buffer(make([]byte, 0, 64*1024), 256*1024)
	for scanner.Scan() {
		if onLine != nil {
			onLine(scanner.Text())
		}
	}
	scanErr := scanner.Err()

	<-done
	waitErr := cmd.Wait()

	if scanErr != nil && waitErr == nil {
		logger.Warn("Output stream ended unreadable",
			zap.String("command", cmdStr),
			zap.Error(scanErr))
		return cerr.Wrap(scanErr, "read output stream")
	}
	return waitErr
}

// RunSimple executes a command with minimal options.
func RunSimple(ctx context.Context, cmd string, args ...string) error {
	_, err := Run(ctx, Options{Command: cmd, Args: args})
	return err
}

func defaultTimeout(t time.Duration) time.Duration {
	if t > 0 {
		return t
	}
	return 30 * time.Second
}
