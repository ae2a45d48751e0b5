// Package logger provides the leveled TEXT/JSON logger used by the codematch
// command line and, through Slog, by every package that takes a *slog.Logger.
package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// LogLevel represents the severity of a log message
type LogLevel int

// Log level constants
const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
	FATAL
	DISABLED
)

// LogFormat defines how log messages are formatted
type LogFormat int

// Log format constants
const (
	TEXT LogFormat = iota
	JSON
)

var levelNames = map[LogLevel]string{
	DEBUG:    "DEBUG",
	INFO:     "INFO",
	WARN:     "WARN",
	ERROR:    "ERROR",
	FATAL:    "FATAL",
	DISABLED: "DISABLED",
}

// output is shared by a logger and every logger derived from it, so that
// concurrent writes from derived loggers never interleave.
type output struct {
	w  io.Writer
	mu sync.Mutex
}

// Logger represents a structured logger. Derived loggers share the level
// and output of the logger they came from.
type Logger struct {
	level       *atomic.Int32
	format      LogFormat
	out         *output
	fields      map[string]interface{}
	contextPath []string
	mu          sync.RWMutex
}

// Config holds configuration options for the logger
type Config struct {
	Level       LogLevel
	Format      LogFormat
	Output      io.Writer
	DefaultTags map[string]interface{}
}

// DefaultConfig returns a default logger configuration
func DefaultConfig() *Config {
	return &Config{
		Level:       INFO,
		Format:      TEXT,
		Output:      os.Stderr,
		DefaultTags: map[string]interface{}{"service": "codematch"},
	}
}

// New creates a new logger with the given configuration
func New(config *Config) *Logger {
	if config == nil {
		config = DefaultConfig()
	}

	out := config.Output
	if out == nil {
		out = os.Stderr
	}

	fields := make(map[string]interface{}, len(config.DefaultTags))
	for k, v := range config.DefaultTags {
		fields[k] = v
	}

	level := new(atomic.Int32)
	level.Store(int32(config.Level))

	return &Logger{
		level:  level,
		format: config.Format,
		out:    &output{w: out},
		fields: fields,
	}
}

// FromSettings builds a logger from the textual level and format used in
// configuration files.
func FromSettings(level, format string, out io.Writer) *Logger {
	config := DefaultConfig()
	config.Level = ParseLevel(level)
	config.Format = ParseFormat(format)
	if out != nil {
		config.Output = out
	}
	return New(config)
}

// SetLevel sets the minimum log level. Loggers derived from one another
// share it.
func (l *Logger) SetLevel(level LogLevel) {
	l.level.Store(int32(level))
}

// Level returns the logger's minimum log level.
func (l *Logger) Level() LogLevel {
	return LogLevel(l.level.Load())
}

// SetFormat sets the logger's output format
func (l *Logger) SetFormat(format LogFormat) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.format = format
}

// derive copies l with extra fields and context entries.
func (l *Logger) derive(fields map[string]interface{}, contexts []string) *Logger {
	l.mu.RLock()
	defer l.mu.RUnlock()

	newFields := make(map[string]interface{}, len(l.fields)+len(fields))
	for k, v := range l.fields {
		newFields[k] = v
	}
	for k, v := range fields {
		newFields[k] = v
	}

	return &Logger{
		level:       l.level,
		format:      l.format,
		out:         l.out,
		fields:      newFields,
		contextPath: append(append([]string{}, l.contextPath...), contexts...),
	}
}

// WithField returns a new logger with the field added to its context
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return l.derive(map[string]interface{}{key: value}, nil)
}

// WithFields returns a new logger with multiple fields added to its context
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	return l.derive(fields, nil)
}

// WithContext returns a new logger with a context path
func (l *Logger) WithContext(contexts ...string) *Logger {
	return l.derive(nil, contexts)
}

// Debug logs a message at DEBUG level
func (l *Logger) Debug(msg string, args ...interface{}) {
	l.log(DEBUG, 3, msg, args...)
}

// Info logs a message at INFO level
func (l *Logger) Info(msg string, args ...interface{}) {
	l.log(INFO, 3, msg, args...)
}

// Warn logs a message at WARN level
func (l *Logger) Warn(msg string, args ...interface{}) {
	l.log(WARN, 3, msg, args...)
}

// Error logs a message at ERROR level
func (l *Logger) Error(msg string, args ...interface{}) {
	l.log(ERROR, 3, msg, args...)
}

// Fatal logs a message at FATAL level and then exits with status code 1
func (l *Logger) Fatal(msg string, args ...interface{}) {
	l.log(FATAL, 3, msg, args...)
	os.Exit(1)
}

// InfoContext logs a message at INFO level with context
func (l *Logger) InfoContext(ctx string, msg string, args ...interface{}) {
	l.WithContext(ctx).log(INFO, 3, msg, args...)
}

// ErrorContext logs a message at ERROR level with context
func (l *Logger) ErrorContext(ctx string, msg string, args ...interface{}) {
	l.WithContext(ctx).log(ERROR, 3, msg, args...)
}

// log formats msg with args and writes it. skip is passed to runtime.Caller.
func (l *Logger) log(level LogLevel, skip int, msg string, args ...interface{}) {
	if len(args) > 0 {
		msg = fmt.Sprintf(msg, args...)
	}

	caller := "unknown"
	if _, file, line, ok := runtime.Caller(skip - 1); ok {
		caller = fmt.Sprintf("%s:%d", filepath.Base(file), line)
	}
	l.write(level, time.Now(), caller, msg, nil)
}

// write renders one entry. extra fields apply to this entry only.
func (l *Logger) write(level LogLevel, ts time.Time, caller, msg string, extra map[string]interface{}) {
	minLevel := l.Level()
	if level < minLevel || minLevel == DISABLED {
		return
	}

	l.mu.RLock()
	format := l.format
	contextPath := l.contextPath
	fields := make(map[string]interface{}, len(l.fields)+len(extra))
	for k, v := range l.fields {
		fields[k] = v
	}
	l.mu.RUnlock()
	for k, v := range extra {
		fields[k] = v
	}

	timestamp := ts.UTC().Format(time.RFC3339)
	levelName := levelNames[level]

	var line string
	if format == TEXT {
		contextStr := ""
		if len(contextPath) > 0 {
			contextStr = "[" + strings.Join(contextPath, ".") + "] "
		}

		fieldsStr := ""
		if len(fields) > 0 {
			keys := sortedKeys(fields)
			pairs := make([]string, 0, len(keys))
			for _, k := range keys {
				pairs = append(pairs, fmt.Sprintf("%s=%v", k, fields[k]))
			}
			fieldsStr = " " + strings.Join(pairs, " ")
		}

		line = fmt.Sprintf("%s [%s] %s%s (%s)%s\n", timestamp, levelName, contextStr, msg, caller, fieldsStr)
	} else {
		entry := make(map[string]interface{}, len(fields)+5)
		for k, v := range fields {
			if err, ok := v.(error); ok {
				v = err.Error()
			}
			entry[k] = v
		}
		entry["timestamp"] = timestamp
		entry["level"] = levelName
		entry["message"] = msg
		entry["caller"] = caller
		if len(contextPath) > 0 {
			entry["context"] = strings.Join(contextPath, ".")
		}

		data, err := json.Marshal(entry)
		if err != nil {
			data, _ = json.Marshal(map[string]string{
				"timestamp": timestamp,
				"level":     levelName,
				"message":   msg,
				"caller":    caller,
				"error":     "unencodable fields: " + err.Error(),
			})
		}
		line = string(data) + "\n"
	}

	l.out.mu.Lock()
	defer l.out.mu.Unlock()
	io.WriteString(l.out.w, line)
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ParseLevel converts a string level to a LogLevel
func ParseLevel(level string) LogLevel {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "DEBUG":
		return DEBUG
	case "INFO":
		return INFO
	case "WARN", "WARNING":
		return WARN
	case "ERROR":
		return ERROR
	case "FATAL":
		return FATAL
	case "DISABLED", "OFF":
		return DISABLED
	default:
		return INFO
	}
}

// ParseFormat converts "json" to JSON and anything else to TEXT.
func ParseFormat(format string) LogFormat {
	if strings.EqualFold(strings.TrimSpace(format), "json") {
		return JSON
	}
	return TEXT
}

// Global default logger
var defaultLogger = New(DefaultConfig())

// SetDefaultLogger sets the global default logger
func SetDefaultLogger(logger *Logger) {
	defaultLogger = logger
}

// GetDefaultLogger returns the global default logger
func GetDefaultLogger() *Logger {
	return defaultLogger
}

// GetLogger returns a logger with the given name as a field
func GetLogger(name string) *Logger {
	return defaultLogger.WithField("name", name)
}
