// Package eventlog writes the bot's decision history: one JSON object per
// line with the shape {"ts": ..., "event": ..., ...data}, mirrored to the
// console and to an append-only file.
package eventlog

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// Log is a structured event logger built on log/slog.
type Log struct {
	logger *slog.Logger
	file   *os.File
}

// Open creates (or appends to) the log file at path and returns a Log that
// writes every record to both console and the file.
func Open(path string, console io.Writer, level slog.Leveler) (*Log, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("eventlog: create dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("eventlog: open %s: %w", path, err)
	}
	l := New(io.MultiWriter(console, f), level)
	l.file = f
	return l, nil
}

// New returns a Log writing to w only.
func New(w io.Writer, level slog.Leveler) *Log {
	h := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: replaceAttr,
	})
	return &Log{logger: slog.New(h)}
}

// Discard returns a Log that drops every record.
func Discard() *Log {
	return New(io.Discard, slog.LevelError+1)
}

// replaceAttr renames slog's built-in keys to the event-log schema. Record
// attributes that happen to share a built-in key keep their own kind, so only
// a time-valued "time" is treated as the record timestamp.
func replaceAttr(groups []string, a slog.Attr) slog.Attr {
	if len(groups) > 0 {
		return a
	}
	switch a.Key {
	case slog.TimeKey:
		if a.Value.Kind() == slog.KindTime {
			return slog.String("ts", a.Value.Time().UTC().Format(time.RFC3339Nano))
		}
	case slog.MessageKey:
		if a.Value.Kind() == slog.KindString {
			a.Key = "event"
		}
	}
	return a
}

// Info records a routine event.
func (l *Log) Info(event string, args ...any) {
	l.logger.Log(context.Background(), slog.LevelInfo, event, args...)
}

// Warn records a recoverable data problem.
func (l *Log) Warn(event string, args ...any) {
	l.logger.Log(context.Background(), slog.LevelWarn, event, args...)
}

// Error records a failed execution or tick.
func (l *Log) Error(event string, args ...any) {
	l.logger.Log(context.Background(), slog.LevelError, event, args...)
}

// Path returns the backing file path, or "" for console-only logs.
func (l *Log) Path() string {
	if l.file == nil {
		return ""
	}
	return l.file.Name()
}

// Close flushes and closes the backing file.
func (l *Log) Close() error {
	if l.file == nil {
		return nil
	}
	if err := l.file.Sync(); err != nil {
		_ = l.file.Close()
		return fmt.Errorf("eventlog: sync: %w", err)
	}
	return l.file.Close()
}
