package logger

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"runtime"
	"time"
)

// Slog returns a *slog.Logger that writes through l, so packages taking a
// standard logger share its level, format, fields and output.
func (l *Logger) Slog() *slog.Logger {
	return slog.New(&slogHandler{logger: l})
}

type slogHandler struct {
	logger *Logger
	group  string
}

func toLevel(level slog.Level) LogLevel {
	switch {
	case level >= slog.LevelError:
		return ERROR
	case level >= slog.LevelWarn:
		return WARN
	case level >= slog.LevelInfo:
		return INFO
	default:
		return DEBUG
	}
}

func (h *slogHandler) Enabled(_ context.Context, level slog.Level) bool {
	minLevel := h.logger.Level()
	return minLevel != DISABLED && toLevel(level) >= minLevel
}

func (h *slogHandler) Handle(_ context.Context, record slog.Record) error {
	fields := make(map[string]interface{}, record.NumAttrs())
	record.Attrs(func(attr slog.Attr) bool {
		h.addAttr(fields, h.group, attr)
		return true
	})

	caller := "unknown"
	if record.PC != 0 {
		frames := runtime.CallersFrames([]uintptr{record.PC})
		frame, _ := frames.Next()
		if frame.File != "" {
			caller = fmt.Sprintf("%s:%d", filepath.Base(frame.File), frame.Line)
		}
	}

	ts := record.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	h.logger.write(toLevel(record.Level), ts, caller, record.Message, fields)
	return nil
}

func (h *slogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	fields := make(map[string]interface{}, len(attrs))
	for _, attr := range attrs {
		h.addAttr(fields, h.group, attr)
	}
	return &slogHandler{logger: h.logger.WithFields(fields), group: h.group}
}

func (h *slogHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return &slogHandler{logger: h.logger, group: qualify(h.group, name)}
}

func (h *slogHandler) addAttr(fields map[string]interface{}, prefix string, attr slog.Attr) {
	attr.Value = attr.Value.Resolve()
	if attr.Equal(slog.Attr{}) {
		return
	}
	if attr.Value.Kind() == slog.KindGroup {
		groupPrefix := prefix
		if attr.Key != "" {
			groupPrefix = qualify(prefix, attr.Key)
		}
		for _, member := range attr.Value.Group() {
			h.addAttr(fields, groupPrefix, member)
		}
		return
	}
	fields[qualify(prefix, attr.Key)] = attr.Value.Any()
}

func qualify(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}
