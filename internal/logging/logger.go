// Package logging provides structured logging for sweeper workers.
//
// Every record is one JSON line. Workers of one sweep usually run as separate
// processes that point at the same log directory, so the file is opened in
// append mode and each record reaches the kernel in a single write. Records
// from different processes may alternate but never split. File-backed loggers
// tag every record with the process ID so the lines can be told apart.
//
//	logger, err := logging.NewLogger("/data/logs", "info")
//	if err != nil {
//	    return err
//	}
//	defer logger.Close()
//
//	log := logger.WithSweep("k3x9a0qz").WithWorker("run-1")
//	log.WithTrial(3).Info("running trial")
//
// produces
//
//	{"time":"...","level":"INFO","msg":"running trial","pid":4711,"sweep_id":"k3x9a0qz","run_id":"run-1","trial":3}
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// Log levels accepted by NewLogger, matched case-insensitively.
const (
	LevelDebug = "DEBUG"
	LevelInfo  = "INFO"
	LevelWarn  = "WARN"
	LevelError = "ERROR"
)

// LogFileName is the file NewLogger appends to inside its directory.
const LogFileName = "sweeper.log"

// Attribute keys shared by every sweeper component.
const (
	KeyPID     = "pid"
	KeySweepID = "sweep_id"
	KeyRunID   = "run_id"
	KeyPhase   = "phase"
	KeyTrial   = "trial"
)

// Logger writes JSON lines with persistent sweep context. Loggers derived
// with the With methods share the parent's output. It is safe for concurrent
// use.
type Logger struct {
	logger *slog.Logger
	out    *appendFile
}

// appendFile is a log file opened with O_APPEND. slog hands over one whole
// record per Write, and the mutex keeps goroutines of this process from
// interleaving inside a record.
type appendFile struct {
	mu   sync.Mutex
	file *os.File
	path string
}

func (a *appendFile) Write(p []byte) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.file == nil {
		return 0, os.ErrClosed
	}
	return a.file.Write(p)
}

func (a *appendFile) close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.file == nil {
		return nil
	}
	f := a.file
	a.file = nil
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("failed to sync log file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close log file: %w", err)
	}
	return nil
}

// NewLogger appends to {logDir}/sweeper.log, creating the directory and
// file as needed. Several processes may use the same directory at once.
// If logDir is empty, logs go to stderr.
//
// Unknown levels fall back to info.
func NewLogger(logDir, level string) (*Logger, error) {
	if logDir == "" {
		return NewLoggerWithWriter(os.Stderr, level), nil
	}

	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	path := filepath.Join(logDir, LogFileName)
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	out := &appendFile{file: file, path: path}
	l := NewLoggerWithWriter(out, level)
	l.out = out
	l.logger = l.logger.With(KeyPID, os.Getpid())
	return l, nil
}

// NewLoggerWithWriter creates a Logger writing JSON lines to w.
func NewLoggerWithWriter(w io.Writer, level string) *Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: parseLevel(level)})
	return &Logger{logger: slog.New(handler)}
}

// NopLogger returns a Logger that discards everything.
func NopLogger() *Logger {
	return &Logger{logger: slog.New(slog.DiscardHandler)}
}

func parseLevel(level string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return slog.LevelInfo
	}
	return l
}

// Path returns the log file path, or "" when not writing to a file.
func (l *Logger) Path() string {
	if l.out == nil {
		return ""
	}
	return l.out.path
}

// WithSweep tags records with the sweep ID.
func (l *Logger) WithSweep(sweepID string) *Logger {
	return l.With(KeySweepID, sweepID)
}

// WithWorker tags records with the worker's run ID.
func (l *Logger) WithWorker(runID string) *Logger {
	return l.With(KeyRunID, runID)
}

// WithPhase tags records with a protocol phase such as "claim-next",
// "mark-done", "execute" or "watch".
func (l *Logger) WithPhase(phase string) *Logger {
	return l.With(KeyPhase, phase)
}

// WithTrial tags records with a trial's position in the trial list.
func (l *Logger) WithTrial(index int) *Logger {
	return l.With(KeyTrial, index)
}

// With returns a Logger adding the key-value pairs to every record.
func (l *Logger) With(args ...any) *Logger {
	if len(args) == 0 {
		return l
	}
	return &Logger{logger: l.logger.With(args...), out: l.out}
}

// Debug logs at DEBUG level.
func (l *Logger) Debug(msg string, args ...any) { l.logger.Debug(msg, args...) }

// Info logs at INFO level.
func (l *Logger) Info(msg string, args ...any) { l.logger.Info(msg, args...) }

// Warn logs at WARN level.
func (l *Logger) Warn(msg string, args ...any) { l.logger.Warn(msg, args...) }

// Error logs at ERROR level.
func (l *Logger) Error(msg string, args ...any) { l.logger.Error(msg, args...) }

// Close syncs and closes the log file. Records logged afterwards are
// dropped. It is a no-op for loggers not backed by a file.
func (l *Logger) Close() error {
	if l.out == nil {
		return nil
	}
	return l.out.close()
}
