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

// Command bridge is built with `go build -buildmode=c-shared` into the
// native AI library the engine loads (§4.4). Its three C-linkage exports
// are the entirety of the engine AI ABI surface; everything else lives in
// internal/bridge as ordinary Go the exports delegate to.
package main

/*
#include <stdint.h>
*/
import "C"

import (
	"context"
	"log/slog"
	"os"
	"sync"

	"github.com/skirmishbridge/gamemanager/internal/bridge"
)

// instance is the process-wide singleton state the engine's ABI calls
// operate on. The real engine loads one Bridge library instance per
// engine process, so a single package-level instance is the AI ABI's
// actual contract, not a shortcut.
var (
	instMu sync.Mutex
	inst   *bridgeInstance
)

type bridgeInstance struct {
	sim      *bridge.SimThread
	commands *bridge.CommandQueue
	events   *bridge.EventQueue
	ipc      *bridge.IPCClient
	cancel   context.CancelFunc
	frame    int64
	logger   *slog.Logger
}

//export init
func init_() C.int { //nolint:revive // name fixed by the engine AI ABI
	instMu.Lock()
	defer instMu.Unlock()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	token := os.Getenv("GAMEMANAGER_HANDSHAKE_TOKEN")
	socket := os.Getenv("GAMEMANAGER_IPC_SOCKET")
	if socket == "" {
		socket = "/tmp/game-manager-" + token + ".sock"
	}
	if token == "" {
		logger.Error("bridge: GAMEMANAGER_HANDSHAKE_TOKEN is not set, refusing to start")
		return -1
	}

	ctx, cancel := context.WithCancel(context.Background())

	client, err := bridge.Dial(ctx, "unix", socket, token, "0.1")
	if err != nil {
		logger.Error("bridge: IPC handshake failed", "error", err)
		cancel()
		return -1
	}

	commands := bridge.NewCommandQueue()
	events := bridge.NewEventQueue()
	client.Attach(commands, events)

	sim := bridge.NewSimThread(bridge.SimThreadConfig{
		Engine:   newEngineAdapter(),
		Commands: commands,
		Events:   events,
	})

	inst = &bridgeInstance{sim: sim, commands: commands, events: events, ipc: client, cancel: cancel, logger: logger}

	go func() {
		if err := client.RunReader(ctx); err != nil {
			logger.Warn("bridge: IPC reader exited", "error", err)
		}
	}()
	go func() {
		if err := client.RunWriter(ctx); err != nil {
			logger.Warn("bridge: IPC writer exited", "error", err)
		}
	}()

	events.Push(bridge.Event{Type: bridge.EventInit})
	return 0
}

//export handleEvent
func handleEvent(topic C.int, frame C.longlong) C.int {
	instMu.Lock()
	cur := inst
	instMu.Unlock()
	if cur == nil {
		return -1
	}
	cur.frame = int64(frame)
	cur.sim.Tick(cur.frame)
	return 0
}

//export release
func release() C.int { //nolint:revive // name fixed by the engine AI ABI
	instMu.Lock()
	cur := inst
	inst = nil
	instMu.Unlock()
	if cur == nil {
		return 0
	}

	cur.events.Push(bridge.Event{Type: bridge.EventRelease, Frame: cur.frame})
	cur.events.Close()
	cur.cancel()
	_ = cur.ipc.Close()
	return 0
}

func main() {
	// Required by -buildmode=c-shared; the engine never calls it, it only
	// resolves the exported C symbols above.
}
