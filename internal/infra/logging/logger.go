// Package logging provides file-based logging for rcrew.
//
// Entries are slog text records (time, level, msg, component, task).
// Every entry goes to logs/rcrew.log in the data directory; entries about a
// task are also appended to logs/tasks/<task-id>.log, next to the task's
// audit trail in the store.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/runoshun/research-crew/internal/domain"
)

// Ensure Logger implements domain.Logger interface.
var _ domain.Logger = (*Logger)(nil)

// Attribute keys written with every record.
const (
	ComponentKey = "component"
	TaskKey      = "task"
)

// Logger routes records to the global log, per-task logs and an optional mirror.
// Fields are ordered to minimize memory padding.
type Logger struct {
	mirror     slog.Handler
	global     slog.Handler
	globalFile *os.File
	tasks      map[string]*taskLog
	now        func() time.Time
	dataDir    string
	mu         sync.Mutex
	level      slog.Level
}

type taskLog struct {
	file    *os.File
	handler slog.Handler
}

// New creates a new Logger that writes to the data directory's logs.
// If dataDir is empty, file logging is disabled.
func New(dataDir string, level slog.Level) *Logger {
	return &Logger{
		dataDir: dataDir,
		level:   level,
		now:     time.Now,
		tasks:   make(map[string]*taskLog),
	}
}

// WithMirror also writes every record to w (e.g. stderr for long-running commands).
func (l *Logger) WithMirror(w io.Writer) *Logger {
	l.mirror = newHandler(w)
	return l
}

// ParseLevel parses a log level string into slog.Level.
// Unknown values fall back to info.
func ParseLevel(levelStr string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(levelStr)) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// newHandler returns the text handler shared by all outputs.
// Level filtering happens in Logger.log, so the handler accepts everything.
func newHandler(w io.Writer) slog.Handler {
	return slog.NewTextHandler(w, &slog.HandlerOptions{
		Level:       slog.LevelDebug,
		ReplaceAttr: utcSeconds,
	})
}

// utcSeconds writes record times in UTC with second precision.
func utcSeconds(groups []string, a slog.Attr) slog.Attr {
	if a.Key == slog.TimeKey && len(groups) == 0 {
		return slog.String(slog.TimeKey, a.Value.Time().UTC().Format(time.RFC3339))
	}
	return a
}

// openLog opens path for appending, creating its directory.
func openLog(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	// Log files are append-only and readable by the owning group
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640) //nolint:gosec // Log file readable by owner and group
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return f, nil
}

// globalHandler opens the global log on first use. Callers hold l.mu.
func (l *Logger) globalHandler() (slog.Handler, error) {
	if l.global != nil {
		return l.global, nil
	}
	f, err := openLog(domain.GlobalLogPath(l.dataDir))
	if err != nil {
		return nil, err
	}
	l.globalFile = f
	l.global = newHandler(f)
	return l.global, nil
}

// taskHandler opens the log of taskID on first use. Callers hold l.mu.
func (l *Logger) taskHandler(taskID string) (slog.Handler, error) {
	if tl, ok := l.tasks[taskID]; ok {
		return tl.handler, nil
	}
	f, err := openLog(domain.TaskLogPath(l.dataDir, taskID))
	if err != nil {
		return nil, err
	}
	tl := &taskLog{file: f, handler: newHandler(f)}
	l.tasks[taskID] = tl
	return tl.handler, nil
}

// Close closes all open log files.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	var lastErr error
	if l.globalFile != nil {
		if err := l.globalFile.Close(); err != nil {
			lastErr = err
		}
		l.globalFile = nil
		l.global = nil
	}
	for id, tl := range l.tasks {
		if err := tl.file.Close(); err != nil {
			lastErr = err
		}
		delete(l.tasks, id)
	}
	return lastErr
}

// fileSafe reports whether a task id can name a log file.
func fileSafe(taskID string) bool {
	return taskID != "" && taskID != "." && taskID != ".." && filepath.Base(taskID) == taskID
}

// log builds one record and hands it to every output it belongs to.
// Records without a task id, or with an id that is not a plain file name,
// only reach the global log.
func (l *Logger) log(level slog.Level, taskID, category, msg string) {
	if level < l.level {
		return
	}

	r := slog.NewRecord(l.now(), level, msg, 0)
	r.AddAttrs(slog.String(ComponentKey, category))
	if taskID != "" {
		r.AddAttrs(slog.String(TaskKey, taskID))
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	ctx := context.Background()
	if l.mirror != nil {
		_ = l.mirror.Handle(ctx, r.Clone())
	}
	if l.dataDir == "" {
		return
	}
	if h, err := l.globalHandler(); err == nil {
		_ = h.Handle(ctx, r.Clone())
	}
	if fileSafe(taskID) {
		if h, err := l.taskHandler(taskID); err == nil {
			_ = h.Handle(ctx, r)
		}
	}
}

// Info logs an info message.
func (l *Logger) Info(taskID, category, msg string) {
	l.log(slog.LevelInfo, taskID, category, msg)
}

// Debug logs a debug message.
func (l *Logger) Debug(taskID, category, msg string) {
	l.log(slog.LevelDebug, taskID, category, msg)
}

// Warn logs a warning message.
func (l *Logger) Warn(taskID, category, msg string) {
	l.log(slog.LevelWarn, taskID, category, msg)
}

// Error logs an error message.
func (l *Logger) Error(taskID, category, msg string) {
	l.log(slog.LevelError, taskID, category, msg)
}
