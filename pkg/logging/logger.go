package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Level is the minimum severity a logger writes.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// String returns the label used in log entries.
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return fmt.Sprintf("LEVEL(%d)", int(l))
	}
}

// ParseLevel converts a config value (debug, info, warn, error) into a Level.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "", "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

// Logger provides leveled logging for a single component.
// All loggers of one process share a sink and a run ID, so entries from the
// pool, the workflows and the conversation machine interleave in one stream.
type Logger struct {
	component string
}

var (
	// Global run ID for the current process
	runID     string
	runIDOnce sync.Once

	sinkMu   sync.Mutex
	sink     io.Writer = os.Stderr
	sinkFile *os.File
	minLevel = LevelInfo
)

func getRunID() string {
	runIDOnce.Do(func() {
		runID = uuid.New().String()
	})
	return runID
}

// Setup directs all loggers to <dir>/<run-id>-resultbot.log and sets the
// minimum level. An empty dir keeps stderr as the sink.
//
// If the file cannot be opened, stderr stays in place and the error is
// returned so the caller can report the fallback.
func Setup(dir string, level Level) (string, error) {
	sinkMu.Lock()
	defer sinkMu.Unlock()

	minLevel = level
	if dir == "" {
		return "", nil
	}

	if err := os.MkdirAll(dir, 0750); err != nil {
		return "", fmt.Errorf("failed to create log directory: %w", err)
	}

	path := filepath.Join(dir, fmt.Sprintf("%s-resultbot.log", getRunID()))
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return "", fmt.Errorf("failed to open log file: %w", err)
	}

	if sinkFile != nil {
		_ = sinkFile.Close()
	}
	sinkFile = file
	sink = file
	return path, nil
}

// SetOutput replaces the sink. Used by the console transport and by tests.
func SetOutput(w io.Writer) {
	sinkMu.Lock()
	defer sinkMu.Unlock()
	sink = w
}

// Close releases the log file opened by Setup. Safe to call multiple times.
func Close() error {
	sinkMu.Lock()
	defer sinkMu.Unlock()

	if sinkFile == nil {
		return nil
	}
	err := sinkFile.Close()
	sinkFile = nil
	sink = os.Stderr
	return err
}

// NewLogger creates a logger for a specific component.
func NewLogger(component string) *Logger {
	return &Logger{component: component}
}

// formatLogEntry creates a structured log entry with timestamp, component, and level
func (l *Logger) formatLogEntry(level Level, message string) string {
	timestamp := time.Now().Format("2006-01-02 15:04:05.000")
	return fmt.Sprintf("[%s] [%s] [%s] %s", timestamp, l.component, level, message)
}

func (l *Logger) write(level Level, format string, v ...interface{}) {
	sinkMu.Lock()
	defer sinkMu.Unlock()

	if level < minLevel {
		return
	}
	fmt.Fprintln(sink, l.formatLogEntry(level, fmt.Sprintf(format, v...)))
}

// Debugf logs a debug-level message
func (l *Logger) Debugf(format string, v ...interface{}) {
	l.write(LevelDebug, format, v...)
}

// Infof logs an info-level message
func (l *Logger) Infof(format string, v ...interface{}) {
	l.write(LevelInfo, format, v...)
}

// Warnf logs a warning-level message
func (l *Logger) Warnf(format string, v ...interface{}) {
	l.write(LevelWarn, format, v...)
}

// Errorf logs an error-level message
func (l *Logger) Errorf(format string, v ...interface{}) {
	l.write(LevelError, format, v...)
}

// With returns a logger for a sub-component, e.g. "pool" -> "pool/slot-2".
func (l *Logger) With(sub string) *Logger {
	return &Logger{component: l.component + "/" + sub}
}

// GetRunID returns the ID shared by every logger in this process.
func GetRunID() string {
	return getRunID()
}

// Redact shortens a secret so it can be correlated in logs without being replayable.
func Redact(secret string) string {
	if secret == "" {
		return "<empty>"
	}
	if len(secret) <= 4 {
		return "****"
	}
	return secret[:4] + "****"
}
