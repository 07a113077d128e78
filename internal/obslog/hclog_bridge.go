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

package obslog

import (
	"context"
	"io"
	"log"
	"log/slog"

	"github.com/hashicorp/go-hclog"
)

// NewHCLogBridge returns an hclog.Logger that forwards every record to the
// process slog logger. The Engine Supervisor takes it as
// supervisor.Config.HCLog and logs engine spawns through it, so those logs
// land in the same structured sink as the rest of GameManager instead of
// going to a second, uncorrelated stream. hclog.Logger is the logger shape
// hashicorp/go-plugin's plugin.ClientConfig.Logger takes; no go-plugin
// client is created in this module.
func NewHCLogBridge(name string, logger *slog.Logger) hclog.Logger {
	return &hclogBridge{name: name, logger: logger}
}

type hclogBridge struct {
	name   string
	logger *slog.Logger
	args   []any
}

func (b *hclogBridge) log(level slog.Level, msg string, args ...any) {
	all := append(append([]any{}, b.args...), args...)
	b.logger.Log(context.Background(), level, msg, append(all, "component", b.name)...)
}

func (b *hclogBridge) Trace(msg string, args ...interface{}) { b.log(slog.LevelDebug, msg, args...) }
func (b *hclogBridge) Debug(msg string, args ...interface{}) { b.log(slog.LevelDebug, msg, args...) }
func (b *hclogBridge) Info(msg string, args ...interface{})  { b.log(slog.LevelInfo, msg, args...) }
func (b *hclogBridge) Warn(msg string, args ...interface{})  { b.log(slog.LevelWarn, msg, args...) }
func (b *hclogBridge) Error(msg string, args ...interface{}) { b.log(slog.LevelError, msg, args...) }

func (b *hclogBridge) IsTrace() bool { return true }
func (b *hclogBridge) IsDebug() bool { return true }
func (b *hclogBridge) IsInfo() bool  { return true }
func (b *hclogBridge) IsWarn() bool  { return true }
func (b *hclogBridge) IsError() bool { return true }

func (b *hclogBridge) ImpliedArgs() []interface{} { return b.args }

func (b *hclogBridge) With(args ...interface{}) hclog.Logger {
	return &hclogBridge{name: b.name, logger: b.logger, args: append(append([]any{}, b.args...), args...)}
}

func (b *hclogBridge) Name() string { return b.name }

func (b *hclogBridge) Named(name string) hclog.Logger {
	return &hclogBridge{name: b.name + "." + name, logger: b.logger, args: b.args}
}

func (b *hclogBridge) ResetNamed(name string) hclog.Logger {
	return &hclogBridge{name: name, logger: b.logger, args: b.args}
}

func (b *hclogBridge) SetLevel(hclog.Level)  {}
func (b *hclogBridge) GetLevel() hclog.Level { return hclog.Info }

func (b *hclogBridge) StandardLogger(opts *hclog.StandardLoggerOptions) *log.Logger {
	return log.New(b.StandardWriter(opts), "", 0)
}

func (b *hclogBridge) StandardWriter(_ *hclog.StandardLoggerOptions) io.Writer {
	return &hclogWriter{b: b}
}

type hclogWriter struct{ b *hclogBridge }

func (w *hclogWriter) Write(p []byte) (int, error) {
	w.b.Info(string(p))
	return len(p), nil
}

var _ hclog.Logger = (*hclogBridge)(nil)
