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

// Package supervisor implements the Engine Supervisor (§4.3): write-dir
// preparation, start-script generation, engine subprocess spawn/reap, and
// the handshake token that correlates a spawned engine with the Bridge
// connection the IPC Router later accepts. The token plays the same
// correlation role as go-plugin's HandshakeConfig magic cookie
// (pkg/plugins/grpc/loader.go), generalized from a static per-plugin-type
// string to a per-instance random token since many engine instances run
// concurrently.
package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"

	"github.com/skirmishbridge/gamemanager/internal/gmerrors"
	"github.com/skirmishbridge/gamemanager/internal/obslog"
)

// StartParams describes one local game to launch.
type StartParams struct {
	Map           string
	Game          string
	PlayerName    string
	Opponent      string // AI name for the local slot layout
	Headless      bool
	EngineVersion string
}

// Instance tracks one spawned engine process end to end: its write
// directory, the handshake token the IPC Router will match against, the
// running (or exited) process, and its captured log tail.
type Instance struct {
	ID             string
	HandshakeToken string
	WriteDir       string
	StartScript    string
	StartedAt      time.Time

	mu        sync.Mutex
	cmd       *exec.Cmd
	exited    bool
	exitCode  int
	handshook bool
	logTail   *ringBuffer
}

// Handshaken reports whether the Bridge has completed its IPC handshake
// for this instance (set by the IPC Router once it matches the token).
func (i *Instance) Handshaken() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.handshook
}

// MarkHandshaken records that the Bridge identified itself with this
// instance's token.
func (i *Instance) MarkHandshaken() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.handshook = true
}

// LogTail returns the last lines of captured engine stdout/stderr, for the
// engine crash payload (§C supplemented feature).
func (i *Instance) LogTail() []string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.logTail.lines()
}

// ExitInfo reports whether the process has exited and with what code.
func (i *Instance) ExitInfo() (exited bool, code int) {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.exited, i.exitCode
}

// EngineEnded is delivered once, when the process exits, on the exit
// thread (i.e. from the goroutine running Wait).
type EngineEnded struct {
	Instance  *Instance
	ExitCode  int
	Err       error
	StartedAt time.Time
	EndedAt   time.Time
}

// Config is the directory and binary layout the Supervisor prepares
// instances under, mirroring §4.3's write-dir description.
type Config struct {
	BinaryPath    string
	ContentRoot   string // shared pool: maps, games, engine, rapid packages
	WriteDirRoot  string
	BridgeName    string
	BridgeVersion string
	BridgeLibPath string // path to the built Bridge shared library
	SocketPath    string // IPC Router's listen address, passed to the Bridge via env

	// HCLog mirrors subprocess lifecycle events to an hclog.Logger, the
	// interface hashicorp/go-plugin hands its own ClientConfig.Logger. This
	// module doesn't dispense a go-plugin gRPC client (the engine isn't a
	// Go binary), but a caller bridging to the rest of an hclog-based
	// operational stack can plug one in here. Nil disables it.
	HCLog hclog.Logger

	// Metrics, if set, tracks the number of currently-supervised engine
	// subprocesses. Nil disables it.
	Metrics *obslog.Metrics
}

// Supervisor spawns and reaps engine subprocesses, one Instance per local
// game (§4.3). It owns the EngineInstance table's lifecycle but not its
// keying into the channel table — the caller correlates Instance.ID with a
// channel id after OpenChannel succeeds.
type Supervisor struct {
	cfg Config
	log *slog.Logger
}

// New creates a Supervisor over cfg.
func New(cfg Config, logger *slog.Logger) *Supervisor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Supervisor{cfg: cfg, log: logger}
}

// Start prepares a write directory, generates a start-script, and spawns
// the engine binary against it. token is the handshake token the IPC
// Router was (or will be) told to expect; the caller registers it with
// the Router before or immediately after calling Start so the Bridge's
// first connection attempt always finds a pending entry. onEnded is
// invoked exactly once, from the reaping goroutine, when the process
// exits for any reason.
func (s *Supervisor) Start(ctx context.Context, params StartParams, token string, onEnded func(EngineEnded)) (*Instance, error) {
	id := uuid.NewString()
	if s.cfg.HCLog != nil {
		s.cfg.HCLog.Debug("spawning engine instance", "instance_id", id, "map", params.Map)
	}

	writeDir := filepath.Join(s.cfg.WriteDirRoot, id)
	if err := s.prepareWriteDir(writeDir, params); err != nil {
		return nil, gmerrors.Wrap(gmerrors.KindEngine, "failed to prepare engine write directory", err)
	}

	scriptPath, err := s.writeStartScript(writeDir, params, token)
	if err != nil {
		return nil, gmerrors.Wrap(gmerrors.KindEngine, "failed to write engine start script", err)
	}

	inst := &Instance{
		ID:             id,
		HandshakeToken: token,
		WriteDir:       writeDir,
		StartScript:    scriptPath,
		StartedAt:      time.Now(),
		logTail:        newRingBuffer(200),
	}

	args := []string{scriptPath}
	if params.Headless {
		args = append([]string{"--headless"}, args...)
	}
	cmd := exec.CommandContext(ctx, s.cfg.BinaryPath, args...)
	cmd.Dir = writeDir
	cmd.Env = append(os.Environ(),
		fmt.Sprintf("GAMEMANAGER_HANDSHAKE_TOKEN=%s", token),
		fmt.Sprintf("GAMEMANAGER_BRIDGE_NAME=%s", s.cfg.BridgeName),
		fmt.Sprintf("GAMEMANAGER_IPC_SOCKET=%s", s.cfg.SocketPath),
	)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, gmerrors.Wrap(gmerrors.KindEngine, "failed to open engine stdout", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, gmerrors.Wrap(gmerrors.KindEngine, "failed to open engine stderr", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, gmerrors.Wrap(gmerrors.KindEngine, "failed to start engine process", err)
	}
	inst.cmd = cmd

	go captureLog(inst, s.log, "stdout", stdout)
	go captureLog(inst, s.log, "stderr", stderr)

	if s.cfg.Metrics != nil {
		s.cfg.Metrics.EngineInstances.Inc()
	}

	go func() {
		waitErr := cmd.Wait()
		endedAt := time.Now()

		inst.mu.Lock()
		inst.exited = true
		if cmd.ProcessState != nil {
			inst.exitCode = cmd.ProcessState.ExitCode()
		}
		handshook := inst.handshook
		code := inst.exitCode
		inst.mu.Unlock()

		if !handshook {
			s.log.Warn("engine process exited before Bridge handshake", "instance_id", id, "exit_code", code)
		}
		if s.cfg.Metrics != nil {
			s.cfg.Metrics.EngineInstances.Dec()
		}

		if onEnded != nil {
			onEnded(EngineEnded{Instance: inst, ExitCode: code, Err: waitErr, StartedAt: inst.StartedAt, EndedAt: endedAt})
		}
	}()

	return inst, nil
}

// Stop signals the instance's process to terminate. It does not wait for
// exit; the reaping goroutine started by Start delivers onEnded.
func (s *Supervisor) Stop(inst *Instance) error {
	inst.mu.Lock()
	cmd := inst.cmd
	exited := inst.exited
	inst.mu.Unlock()
	if exited || cmd == nil || cmd.Process == nil {
		return nil
	}
	return cmd.Process.Kill()
}
