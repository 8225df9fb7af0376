package core

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Log levels.
const (
	LevelDebug = 0
	LevelInfo  = 1
	LevelWarn  = 2
	LevelError = 3
)

// LogConfig describes where and how much to log.
type LogConfig struct {
	File    string
	Level   int
	MaxSize int // megabytes
	MaxAge  int // days
	// Console mirrors log lines to this writer when non-nil.
	Console io.Writer
}

// Logger is a level-gated logger. A nil *Logger discards everything.
type Logger struct {
	out    *log.Logger
	level  int
	runID  string
	closer io.Closer
}

// SetupLogger opens the rotating log file and tags every line with a
// fresh run id.
func SetupLogger(cfg LogConfig) (*Logger, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}

	maxSize := cfg.MaxSize
	if maxSize <= 0 {
		maxSize = 10
	}
	maxAge := cfg.MaxAge
	if maxAge <= 0 {
		maxAge = 7
	}

	rotating := &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    maxSize,
		MaxBackups: 3,
		MaxAge:     maxAge,
		Compress:   true,
	}

	var w io.Writer = rotating
	if cfg.Console != nil {
		w = io.MultiWriter(rotating, cfg.Console)
	}

	l := NewLogger(w, cfg.Level)
	l.closer = rotating
	return l, nil
}

// NewLogger logs to w with the standard timestamp flags.
func NewLogger(w io.Writer, level int) *Logger {
	return &Logger{
		out:   log.New(w, "", log.LstdFlags),
		level: clampLevel(level),
		runID: uuid.NewString()[:8],
	}
}

func clampLevel(level int) int {
	if level < LevelDebug || level > LevelError {
		return LevelInfo
	}
	return level
}

// ParseLevel accepts a level name or its number.
func ParseLevel(s string) (int, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "0", "debug":
		return LevelDebug, nil
	case "", "1", "info":
		return LevelInfo, nil
	case "2", "warn", "warning":
		return LevelWarn, nil
	case "3", "error":
		return LevelError, nil
	}
	return LevelInfo, fmt.Errorf("unknown log level %q", s)
}

// Log writes message if level passes the configured threshold.
func (l *Logger) Log(level int, message string) {
	if l == nil || level < l.level {
		return
	}
	levelStr := "DEBUG"
	switch level {
	case LevelInfo:
		levelStr = "INFO"
	case LevelWarn:
		levelStr = "WARN"
	case LevelError:
		levelStr = "ERROR"
	}
	l.out.Printf("[%s] [%s] %s", l.runID, levelStr, message)
}

func (l *Logger) Debugf(format string, args ...any) { l.Log(LevelDebug, fmt.Sprintf(format, args...)) }
func (l *Logger) Infof(format string, args ...any)  { l.Log(LevelInfo, fmt.Sprintf(format, args...)) }
func (l *Logger) Warnf(format string, args ...any)  { l.Log(LevelWarn, fmt.Sprintf(format, args...)) }
func (l *Logger) Errorf(format string, args ...any) { l.Log(LevelError, fmt.Sprintf(format, args...)) }

// RunID identifies this process in a shared log file.
func (l *Logger) RunID() string {
	if l == nil {
		return ""
	}
	return l.runID
}

// Close releases the log file, if any.
func (l *Logger) Close() error {
	if l == nil || l.closer == nil {
		return nil
	}
	return l.closer.Close()
}
