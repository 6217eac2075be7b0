// pkg/logger/logger.go

package logger

import (
	"os"
	"path/filepath"

	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var log *zap.Logger

// DefaultLogPaths are tried in order until one is writable. The station
// usually runs as a systemd service with /var/log/wipestation provisioned,
// but a technician running it ad hoc still gets file logging under XDG state.
func DefaultLogPaths() []string {
	paths := []string{"/var/log/wipestation/wipestation.log"}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".local", "state", "wipestation", "wipestation.log"))
	}
	return paths
}

// InitializeWithFallback sets up the global zap and otelzap loggers.
// Console output is always enabled; file output is added when a writable
// log path exists. Never fails: worst case is console-only logging.
func InitializeWithFallback() {
	consoleCore := zapcore.NewCore(
		zapcore.NewConsoleEncoder(consoleEncoderConfig()),
		zapcore.Lock(os.Stdout),
		ParseLogLevel(os.Getenv("LOG_LEVEL")),
	)

	cores := []zapcore.Core{consoleCore}
	if writer, path, err := findLogFileWriter(); err == nil {
		jsonCfg := zap.NewProductionEncoderConfig()
		jsonCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		jsonCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(jsonCfg), writer, zap.InfoLevel))
		defer func() { log.Info("File logging enabled", zap.String("log_path", path)) }()
	}

	log = zap.New(zapcore.NewTee(cores...), zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))
	zap.ReplaceGlobals(log)
	otelzap.ReplaceGlobals(otelzap.New(log))
}

// L returns the global logger, initializing a fallback if needed.
func L() *zap.Logger {
	if log == nil {
		InitializeWithFallback()
	}
	return log
}

// Sync flushes buffered log entries. Safe to call on shutdown; sync errors
// on stdout are expected and ignored.
func Sync() {
	if log != nil {
		_ = log.Sync()
	}
}

// ParseLogLevel maps a LOG_LEVEL string to a zap level, defaulting to info.
func ParseLogLevel(s string) zapcore.Level {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return zapcore.InfoLevel
	}
	return level
}

func consoleEncoderConfig() zapcore.EncoderConfig {
	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = "T"
	cfg.LevelKey = "L"
	cfg.NameKey = "N"
	cfg.CallerKey = "C"
	cfg.MessageKey = "M"
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	return cfg
}

func findLogFileWriter() (zapcore.WriteSyncer, string, error) {
	var lastErr error
	for _, path := range DefaultLogPaths() {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			lastErr = err
			continue
		}
		file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			lastErr = err
			continue
		}
		return zapcore.AddSync(file), path, nil
	}
	return nil, "", lastErr
}
