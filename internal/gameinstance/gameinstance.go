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

// Package gameinstance implements the channel.Resource for a single local
// game: it owns the Supervisor-spawned engine process's lifecycle from the
// GameManager side of the IPC link (the Bridge-side equivalent lives in
// internal/bridge), forwarding Bridge events as channel incoming messages
// and channel publishes as Bridge commands. It is the "game-instance"
// channel kind from §3's data model.
package gameinstance

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/skirmishbridge/gamemanager/internal/gmerrors"
	"github.com/skirmishbridge/gamemanager/internal/ipcrouter"
	"github.com/skirmishbridge/gamemanager/internal/supervisor"
)

// Params is the parameters a tool call supplies to start (or restart, on
// rollback) a local game.
type Params struct {
	Map        string
	Game       string
	PlayerName string
	Opponent   string
	Headless   bool
}

func (p Params) toStartParams() supervisor.StartParams {
	return supervisor.StartParams{
		Map:        p.Map,
		Game:       p.Game,
		PlayerName: p.PlayerName,
		Opponent:   p.Opponent,
		Headless:   p.Headless,
	}
}

// checkpointPayload is what Checkpoint/Restore exchange with the
// multiplexer's opaque checkpoint store: everything needed to relaunch an
// equivalent game (§9's "engine-savestate-path plus a record of loaded
// scripts" — simplified here to the launch parameters themselves, since
// this module has no real engine savestate format to reconstruct).
type checkpointPayload struct {
	Params Params `json:"params"`
}

// Instance is a channel.Resource backed by one Supervisor-managed engine
// process and its Bridge IPC connection.
type Instance struct {
	sup              *supervisor.Supervisor
	router           *ipcrouter.Router
	handshakeTimeout time.Duration

	onIncoming func(payload string)
	onEnded    func(cause *gmerrors.Error)
	log        Logger

	mu         sync.Mutex
	params     Params
	engine     *supervisor.Instance
	activeConn connReadWriter
	writeMu    sync.Mutex
	readCancel context.CancelFunc
	closed     bool
}

// Logger is the narrow logging surface this package needs, satisfied by
// *slog.Logger.
type Logger interface {
	Warn(msg string, args ...any)
	Debug(msg string, args ...any)
}

// Config wires an Instance to its collaborators.
type Config struct {
	Supervisor       *supervisor.Supervisor
	Router           *ipcrouter.Router
	HandshakeTimeout time.Duration
	OnIncoming       func(payload string)
	OnEnded          func(cause *gmerrors.Error)
	Log              Logger
}

// Start prepares a write directory and spawns the engine process for
// params, then blocks until the Bridge completes its IPC handshake or the
// handshake timeout elapses.
func Start(ctx context.Context, cfg Config, params Params) (*Instance, error) {
	inst := &Instance{
		sup:              cfg.Supervisor,
		router:           cfg.Router,
		handshakeTimeout: cfg.HandshakeTimeout,
		onIncoming:       cfg.OnIncoming,
		onEnded:          cfg.OnEnded,
		log:              cfg.Log,
		params:           params,
	}
	if inst.handshakeTimeout <= 0 {
		inst.handshakeTimeout = 60 * time.Second
	}
	if err := inst.launch(ctx); err != nil {
		return nil, err
	}
	return inst, nil
}

// launch spawns a fresh engine process for the instance's current params
// and waits for its Bridge handshake, tearing the process down again if
// the handshake never arrives in time (§4.3).
func (inst *Instance) launch(ctx context.Context) error {
	token := uuid.NewString()
	bound := inst.router.Register(token)

	engineInst, err := inst.sup.Start(ctx, inst.params.toStartParams(), token, inst.handleEngineEnded)
	if err != nil {
		inst.router.Unregister(token)
		return err
	}

	handshakeCtx, cancel := context.WithTimeout(ctx, inst.handshakeTimeout)
	defer cancel()

	select {
	case b := <-bound:
		engineInst.MarkHandshaken()
		inst.mu.Lock()
		inst.engine = engineInst
		// Clear closed only once the new engine's handshake has actually
		// completed, so a Restore's superseded engine cannot race this
		// one: until this point closed stays true and suppresses the old
		// engine's reader-exit/handleEngineEnded, which would otherwise
		// fire onEnded for a channel that rollback requires to stay open.
		inst.closed = false
		inst.mu.Unlock()
		if inst.log != nil {
			inst.log.Debug("engine completed Bridge handshake", "instance_id", engineInst.ID)
		}
		inst.startReading(b.Conn)
		return nil
	case <-handshakeCtx.Done():
		inst.router.Unregister(token)
		_ = inst.sup.Stop(engineInst)
		if inst.log != nil {
			inst.log.Warn("engine did not complete Bridge handshake before the deadline", "instance_id", engineInst.ID)
		}
		return gmerrors.New(gmerrors.KindEngine, "engine did not complete Bridge handshake before the deadline", nil)
	}
}

func (inst *Instance) handleEngineEnded(e supervisor.EngineEnded) {
	inst.mu.Lock()
	alreadyClosed := inst.closed
	inst.closed = true
	inst.mu.Unlock()
	if alreadyClosed {
		return
	}
	if inst.onEnded != nil {
		detail := map[string]any{"exit_code": e.ExitCode, "log_tail": e.Instance.LogTail()}
		inst.onEnded(gmerrors.New(gmerrors.KindEngine, fmt.Sprintf("engine process exited with code %d", e.ExitCode), detail))
	}
}

// startReading runs the GameManager-side IPC reader: it decodes Bridge
// event frames and forwards each as a channel incoming payload.
func (inst *Instance) startReading(conn connReadWriter) {
	ctx, cancel := context.WithCancel(context.Background())
	inst.mu.Lock()
	inst.readCancel = cancel
	inst.activeConn = conn
	inst.mu.Unlock()

	go func() {
		reader := bufio.NewReader(conn)
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}
			line, err := reader.ReadBytes('\n')
			if err != nil {
				inst.mu.Lock()
				already := inst.closed
				inst.closed = true
				inst.mu.Unlock()
				if !already && inst.onEnded != nil {
					inst.onEnded(gmerrors.Wrap(gmerrors.KindBridge, "Bridge IPC connection closed unexpectedly", err))
				}
				return
			}
			if inst.onIncoming != nil {
				inst.onIncoming(string(line))
			}
		}
	}()
}

// connReadWriter is the subset of net.Conn this package needs; kept
// narrow so tests can substitute an in-memory pipe.
type connReadWriter interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
}

// Publish implements channel.Resource: it forwards a command payload
// straight to the Bridge over the IPC connection, one JSON line per call.
func (inst *Instance) Publish(ctx context.Context, payload string) error {
	conn, ok := inst.conn()
	if !ok {
		return gmerrors.New(gmerrors.KindBridge, "game instance has no active Bridge connection", nil)
	}

	inst.writeMu.Lock()
	defer inst.writeMu.Unlock()
	if len(payload) == 0 || payload[len(payload)-1] != '\n' {
		payload += "\n"
	}
	if _, err := conn.Write([]byte(payload)); err != nil {
		return gmerrors.Wrap(gmerrors.KindBridge, "failed to write command to Bridge", err)
	}
	return nil
}

func (inst *Instance) conn() (connReadWriter, bool) {
	inst.mu.Lock()
	defer inst.mu.Unlock()
	return inst.activeConn, inst.activeConn != nil
}

// Close implements channel.Resource: it stops the engine process (if
// still running) and releases IPC resources. Idempotent.
func (inst *Instance) Close(ctx context.Context) error {
	inst.mu.Lock()
	if inst.closed {
		inst.mu.Unlock()
		return nil
	}
	inst.closed = true
	engine := inst.engine
	cancel := inst.readCancel
	conn := inst.activeConn
	inst.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		_ = conn.Close()
	}
	if engine != nil {
		return inst.sup.Stop(engine)
	}
	return nil
}

// Checkpoint implements channel.Checkpointable: it snapshots the launch
// parameters that would reconstruct an equivalent game (§9).
func (inst *Instance) Checkpoint(ctx context.Context) ([]byte, error) {
	inst.mu.Lock()
	params := inst.params
	inst.mu.Unlock()
	return json.Marshal(checkpointPayload{Params: params})
}

// Restore implements channel.Checkpointable: it tears down the current
// engine process and relaunches a fresh one from the checkpointed
// parameters, preserving the channel id (the caller keeps addressing this
// same Instance).
func (inst *Instance) Restore(ctx context.Context, payload []byte) error {
	var cp checkpointPayload
	if err := json.Unmarshal(payload, &cp); err != nil {
		return gmerrors.Wrap(gmerrors.KindValidation, "malformed game checkpoint payload", err)
	}

	inst.mu.Lock()
	engine := inst.engine
	cancel := inst.readCancel
	conn := inst.activeConn
	// Mark closed before tearing the old engine down, not after: this is
	// the superseded engine's generation, and its reader-exit/
	// handleEngineEnded must see alreadyClosed and stay quiet. launch
	// below clears closed once the new engine's handshake actually
	// completes, which is the only point a stale callback could be
	// mistaken for this restart.
	inst.closed = true
	inst.params = cp.Params
	inst.engine = nil
	inst.activeConn = nil
	inst.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		_ = conn.Close()
	}
	if engine != nil {
		_ = inst.sup.Stop(engine)
	}

	return inst.launch(ctx)
}
