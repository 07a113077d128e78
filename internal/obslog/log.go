// Copyright 2025 The GameManager Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package obslog bootstraps the process-wide slog logger, a bridge for
// hashicorp/go-plugin's hclog.Logger, and the otel/prometheus exporters
// GameManager's ambient observability stack uses.
package obslog

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

// ParseLevel converts a config string level to slog.Level.
func ParseLevel(levelStr string) slog.Level {
	switch strings.ToLower(levelStr) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// simpleHandler prints "LEVEL message key=value ..." with no timestamp,
// used for the default "simple" log format.
type simpleHandler struct {
	w     io.Writer
	level slog.Level
}

func (h *simpleHandler) Enabled(_ context.Context, level slog.Level) bool { return level >= h.level }

func (h *simpleHandler) Handle(_ context.Context, record slog.Record) error {
	var b strings.Builder
	b.WriteString(strings.ToUpper(record.Level.String()))
	b.WriteString(" ")
	b.WriteString(record.Message)
	record.Attrs(func(a slog.Attr) bool {
		b.WriteString(" ")
		b.WriteString(a.Key)
		b.WriteString("=")
		b.WriteString(a.Value.String())
		return true
	})
	b.WriteString("\n")
	_, err := io.WriteString(h.w, b.String())
	return err
}

func (h *simpleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &attrHandler{next: h, attrs: attrs}
}

func (h *simpleHandler) WithGroup(name string) slog.Handler { return h }

// attrHandler threads WithAttrs-bound attributes through to the underlying
// simpleHandler; slog.TextHandler already does this internally but our
// minimal simpleHandler needs its own thin wrapper.
type attrHandler struct {
	next  slog.Handler
	attrs []slog.Attr
}

func (h *attrHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *attrHandler) Handle(ctx context.Context, record slog.Record) error {
	record.AddAttrs(h.attrs...)
	return h.next.Handle(ctx, record)
}

func (h *attrHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &attrHandler{next: h.next, attrs: append(append([]slog.Attr{}, h.attrs...), attrs...)}
}

func (h *attrHandler) WithGroup(name string) slog.Handler { return h.next.WithGroup(name) }

// Init initializes and installs the process-wide slog logger. format
// "verbose" uses slog.TextHandler (time, level, message, attrs); any other
// value, including "simple", prints level+message+attrs.
func Init(level slog.Level, output *os.File, format string) *slog.Logger {
	var handler slog.Handler
	if format == "verbose" {
		handler = slog.NewTextHandler(output, &slog.HandlerOptions{Level: level})
	} else {
		handler = &simpleHandler{w: output, level: level}
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// OpenLogFile opens (creating if needed) the file at path for append-only
// logging, returning it and a cleanup func to close it.
func OpenLogFile(path string) (*os.File, func(), error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, nil, err
	}
	return f, func() { _ = f.Close() }, nil
}
