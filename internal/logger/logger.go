// Package logger provides the process-wide structured logger.
//
// Log records are written as JSON through a rotating file writer. A chained
// handler counts records per level into the metric store so alert rules can
// watch series like "log_levels.ERROR".
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Recorder receives per-level log counts. Satisfied by *metrics.Store.
type Recorder interface {
	RecordIn(category, name string, value float64)
}

// Entry is a captured ERROR-level record kept for diagnostics.
type Entry struct {
	Time    time.Time
	Level   slog.Level
	Message string
}

// errorRing is a fixed-size circular buffer of recent error entries.
type errorRing struct {
	mu      sync.RWMutex
	entries []Entry
	size    int
	head    int
	count   int
}

func newErrorRing(size int) *errorRing {
	return &errorRing{
		entries: make([]Entry, size),
		size:    size,
	}
}

func (rb *errorRing) add(entry Entry) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	rb.entries[rb.head] = entry
	rb.head = (rb.head + 1) % rb.size
	if rb.count < rb.size {
		rb.count++
	}
}

func (rb *errorRing) getAll() []Entry {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	result := make([]Entry, rb.count)
	for i := 0; i < rb.count; i++ {
		idx := (rb.head - rb.count + i + rb.size) % rb.size
		result[i] = rb.entries[idx]
	}
	return result
}

// countingHandler wraps another handler to record per-level counts into the
// metric store and capture recent errors.
type countingHandler struct {
	inner slog.Handler
	ring  *errorRing

	mu     sync.RWMutex
	record Recorder
}

func (h *countingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *countingHandler) Handle(ctx context.Context, r slog.Record) error {
	h.mu.RLock()
	rec := h.record
	h.mu.RUnlock()

	if rec != nil {
		rec.RecordIn("log_levels", levelName(r.Level), 1)
	}

	if r.Level >= slog.LevelError {
		h.ring.add(Entry{
			Time:    r.Time,
			Level:   r.Level,
			Message: r.Message,
		})
	}
	return h.inner.Handle(ctx, r)
}

func (h *countingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &countingHandler{
		inner:  h.inner.WithAttrs(attrs),
		ring:   h.ring,
		record: h.getRecorder(),
	}
}

func (h *countingHandler) WithGroup(name string) slog.Handler {
	return &countingHandler{
		inner:  h.inner.WithGroup(name),
		ring:   h.ring,
		record: h.getRecorder(),
	}
}

func (h *countingHandler) getRecorder() Recorder {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.record
}

func (h *countingHandler) setRecorder(rec Recorder) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.record = rec
}

func levelName(l slog.Level) string {
	switch {
	case l >= slog.LevelError:
		return "ERROR"
	case l >= slog.LevelWarn:
		return "WARN"
	case l >= slog.LevelInfo:
		return "INFO"
	default:
		return "DEBUG"
	}
}

var (
	// Log is the global structured logger
	Log *slog.Logger
	// logWriter is the rotating log writer
	logWriter *lumberjack.Logger
	// LogPath is the path to the current log file
	LogPath string
	// handler is the installed counting handler
	handler *countingHandler
)

// LogLevel represents the logging level
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
)

// ParseLevel converts a level name to a LogLevel, defaulting to Info.
func ParseLevel(s string) LogLevel {
	switch s {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// Init initializes the global logger with the specified level and optional path.
// If logPath is empty, defaults to ~/.config/vigil/vigil.log
func Init(level LogLevel, logPath string) {
	var slogLevel slog.Level
	switch level {
	case LevelDebug:
		slogLevel = slog.LevelDebug
	case LevelInfo:
		slogLevel = slog.LevelInfo
	case LevelWarn:
		slogLevel = slog.LevelWarn
	case LevelError:
		slogLevel = slog.LevelError
	default:
		slogLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: slogLevel,
	}

	if logPath == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			homeDir = os.TempDir()
		}
		logDir := filepath.Join(homeDir, ".config", "vigil")
		_ = os.MkdirAll(logDir, 0755)
		logPath = filepath.Join(logDir, "vigil.log")
	}

	LogPath = logPath

	var writer io.Writer
	logWriter = &lumberjack.Logger{
		Filename:   logPath,
		MaxSize:    10, // MB
		MaxBackups: 3,
		MaxAge:     7, // days
		Compress:   true,
	}
	writer = logWriter

	// Handler chain: countingHandler -> JSONHandler -> lumberjack
	jsonHandler := slog.NewJSONHandler(writer, opts)
	handler = &countingHandler{
		inner: jsonHandler,
		ring:  newErrorRing(100),
	}

	Log = slog.New(handler)
	slog.SetDefault(Log)
}

// AttachMetrics routes per-level log counts into rec. A nil rec detaches.
func AttachMetrics(rec Recorder) {
	if handler != nil {
		handler.setRecorder(rec)
	}
}

// Close closes the log file
func Close() {
	if logWriter != nil {
		logWriter.Close()
	}
}

// getLogger returns the global logger, or the default slog logger if not initialized.
func getLogger() *slog.Logger {
	if Log != nil {
		return Log
	}
	return slog.Default()
}

// Debug logs a debug message
func Debug(msg string, args ...any) {
	getLogger().Debug(msg, args...)
}

// Info logs an info message
func Info(msg string, args ...any) {
	getLogger().Info(msg, args...)
}

// Warn logs a warning message
func Warn(msg string, args ...any) {
	getLogger().Warn(msg, args...)
}

// Error logs an error message
func Error(msg string, args ...any) {
	getLogger().Error(msg, args...)
}

// With creates a new logger with additional attributes
func With(args ...any) *slog.Logger {
	return getLogger().With(args...)
}

// RecentErrors returns the captured ERROR-level entries, oldest first.
func RecentErrors() []Entry {
	if handler == nil {
		return nil
	}
	return handler.ring.getAll()
}

// Format renders an entry for display.
func (e Entry) Format() string {
	return fmt.Sprintf("%s %-5s %s", e.Time.Format("15:04:05"), levelName(e.Level), e.Message)
}
