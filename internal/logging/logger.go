// Package logging provides the leveled logger used by the bridge. Entries go
// to a daily-rotated file, to a console writer, or both.
package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Level represents log severity.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

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
		return "UNKNOWN"
	}
}

// ParseLevel parses a level name. Unknown names return LevelInfo and false.
func ParseLevel(name string) (Level, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return LevelDebug, true
	case "info", "":
		return LevelInfo, true
	case "warn", "warning":
		return LevelWarn, true
	case "error":
		return LevelError, true
	}
	return LevelInfo, false
}

// Entry is a structured log record.
type Entry struct {
	Timestamp time.Time `json:"timestamp"`
	Level     string    `json:"level"`
	Message   string    `json:"message"`
	Project   string    `json:"project,omitempty"`
	Event     string    `json:"event,omitempty"`
	Details   string    `json:"details,omitempty"`
}

// FilePrefix names the daily log files: vibebridge-2006-01-02.log.
const FilePrefix = "vibebridge"

// Logger writes leveled entries. A nil *Logger discards everything, so
// components can take an optional logger without guarding each call.
type Logger struct {
	mu          sync.Mutex
	dir         string
	file        *os.File
	currentDate string
	console     io.Writer
	minLevel    Level
}

// New creates a file logger writing under dir/logs.
func New(dir string) (*Logger, error) {
	logDir := filepath.Join(dir, "logs")
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	l := &Logger{
		dir:      logDir,
		minLevel: LevelInfo,
	}
	if err := l.openLogFile(); err != nil {
		return nil, err
	}
	return l, nil
}

// NewConsole creates a logger that writes human-readable lines to w only.
func NewConsole(w io.Writer) *Logger {
	return &Logger{console: w, minLevel: LevelInfo}
}

// openLogFile opens or rotates the log file based on date.
func (l *Logger) openLogFile() error {
	if l.dir == "" {
		return nil
	}
	today := time.Now().Format("2006-01-02")
	if l.file != nil && l.currentDate == today {
		return nil
	}

	if l.file != nil {
		l.file.Close()
	}

	logPath := filepath.Join(l.dir, fmt.Sprintf("%s-%s.log", FilePrefix, today))
	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	l.file = f
	l.currentDate = today

	symlink := filepath.Join(l.dir, FilePrefix+".log")
	os.Remove(symlink)
	os.Symlink(filepath.Base(logPath), symlink)

	return nil
}

// SetLevel sets the minimum log level.
func (l *Logger) SetLevel(level Level) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.minLevel = level
}

// Enabled reports whether entries at level are written.
func (l *Logger) Enabled(level Level) bool {
	if l == nil {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return level >= l.minLevel
}

// Log writes a printf-style entry.
func (l *Logger) Log(level Level, msg string, args ...interface{}) {
	if len(args) > 0 {
		msg = fmt.Sprintf(msg, args...)
	}
	l.write(level, Entry{Message: msg})
}

// LogEvent writes an entry tagged with a project and event name.
func (l *Logger) LogEvent(level Level, project, event, msg, details string) {
	l.write(level, Entry{
		Message: msg,
		Project: project,
		Event:   event,
		Details: details,
	})
}

func (l *Logger) write(level Level, entry Entry) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if level < l.minLevel {
		return
	}

	if err := l.openLogFile(); err != nil {
		fmt.Fprintf(os.Stderr, "Logger error: %v\n", err)
		return
	}

	entry.Timestamp = time.Now()
	entry.Level = level.String()
	l.writeEntry(entry)
}

// writeEntry writes the human-readable line everywhere and the JSON line to
// the file only.
func (l *Logger) writeEntry(entry Entry) {
	ts := entry.Timestamp.Format("2006-01-02 15:04:05")
	line := fmt.Sprintf("%s [%s] %s", ts, entry.Level, entry.Message)
	if entry.Project != "" {
		line = fmt.Sprintf("%s [%s] [%s] %s", ts, entry.Level, entry.Project, entry.Message)
	}

	if l.console != nil {
		fmt.Fprintln(l.console, line)
	}
	if l.file == nil {
		return
	}
	fmt.Fprintln(l.file, line)
	if data, err := json.Marshal(entry); err == nil {
		fmt.Fprintf(l.file, "  JSON: %s\n", data)
	}
}

// Debug logs a debug message.
func (l *Logger) Debug(msg string, args ...interface{}) {
	l.Log(LevelDebug, msg, args...)
}

// Info logs an info message.
func (l *Logger) Info(msg string, args ...interface{}) {
	l.Log(LevelInfo, msg, args...)
}

// Warn logs a warning message.
func (l *Logger) Warn(msg string, args ...interface{}) {
	l.Log(LevelWarn, msg, args...)
}

// Error logs an error message.
func (l *Logger) Error(msg string, args ...interface{}) {
	l.Log(LevelError, msg, args...)
}

// Close closes the log file.
func (l *Logger) Close() error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file != nil {
		err := l.file.Close()
		l.file = nil
		return err
	}
	return nil
}

// Writer returns an io.Writer that logs each write at INFO level.
func (l *Logger) Writer() io.Writer {
	return &logWriter{logger: l, level: LevelInfo}
}

type logWriter struct {
	logger *Logger
	level  Level
}

func (w *logWriter) Write(p []byte) (n int, err error) {
	w.logger.Log(w.level, "%s", strings.TrimRight(string(p), "\n"))
	return len(p), nil
}

// LogPath returns the current log file path, or "" for console loggers.
func (l *Logger) LogPath() string {
	if l == nil {
		return ""
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file != nil {
		return l.file.Name()
	}
	if l.dir == "" {
		return ""
	}
	return filepath.Join(l.dir, FilePrefix+".log")
}

// Dir returns the log directory.
func (l *Logger) Dir() string {
	if l == nil {
		return ""
	}
	return l.dir
}
