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

// Package tools implements the Tool Surface (§4.5): the lobby.* tools and
// the supplemented channel_list/channel_close/channel_open tools, each
// wired to the Lobby Protocol Client, the Engine Supervisor, the IPC
// Router and the Multiplexer's channel table. The game.* command surface
// itself is not a tool at all — it is the existing channels/publish RPC
// against a game-instance channel — so there is nothing to register here
// for it.
package tools

import (
	"log/slog"
	"sync"
	"time"

	"github.com/skirmishbridge/gamemanager/internal/gmerrors"
	"github.com/skirmishbridge/gamemanager/internal/ipcrouter"
	"github.com/skirmishbridge/gamemanager/internal/lobby"
	"github.com/skirmishbridge/gamemanager/internal/mux"
	"github.com/skirmishbridge/gamemanager/internal/supervisor"
	"github.com/skirmishbridge/gamemanager/internal/toolset"
)

// Deps collects every collaborator the tool handlers in this package need.
// One Deps is built per session.
type Deps struct {
	Mux              *mux.Multiplexer
	Supervisor       *supervisor.Supervisor
	Router           *ipcrouter.Router
	HandshakeTimeout time.Duration
	Log              *slog.Logger

	lobby       *lobby.Client
	lobbyMu     sync.Mutex
	globalID    string            // mux channel id backing lobby.GlobalChannelID
	roomChannel map[string]string // joined room name -> mux channel id
}

// NewDeps builds a Deps with its own Lobby Client, wired so the client's
// push events and disconnect notifications reach the Multiplexer once a
// channel id exists for them (see lobbyIncoming/lobbyEnded).
func NewDeps(m *mux.Multiplexer, sup *supervisor.Supervisor, router *ipcrouter.Router, handshakeTimeout time.Duration, clientID, locale string, log *slog.Logger) *Deps {
	if log == nil {
		log = slog.Default()
	}
	d := &Deps{
		Mux:              m,
		Supervisor:       sup,
		Router:           router,
		HandshakeTimeout: handshakeTimeout,
		Log:              log,
		roomChannel:      make(map[string]string),
	}
	d.lobby = lobby.New(lobby.Config{
		ClientID:   clientID,
		Locale:     locale,
		OnIncoming: d.lobbyIncoming,
		OnEnded:    d.lobbyEnded,
	})
	return d
}

// lobbyIncoming translates the client's channelID (either a joined room's
// mux channel id, already the right value, or lobby.GlobalChannelID, which
// needs translating to whatever id lobby_connect assigned) into a call on
// the Multiplexer.
func (d *Deps) lobbyIncoming(channelID, payload string) {
	d.lobbyMu.Lock()
	if channelID == lobby.GlobalChannelID {
		channelID = d.globalID
	}
	d.lobbyMu.Unlock()
	if channelID == "" {
		return
	}
	d.Mux.Incoming(channelID, payload)
}

// lobbyEnded closes every lobby channel currently tracked (§4.2: "socket
// closed ... close lobby channels, emit disconnect notification").
func (d *Deps) lobbyEnded(cause *gmerrors.Error) {
	d.lobbyMu.Lock()
	ids := make([]string, 0, len(d.roomChannel)+1)
	if d.globalID != "" {
		ids = append(ids, d.globalID)
	}
	for _, id := range d.roomChannel {
		ids = append(ids, id)
	}
	d.roomChannel = make(map[string]string)
	d.globalID = ""
	d.lobbyMu.Unlock()

	for _, id := range ids {
		d.Mux.Ended(id, cause)
	}
}

// errChannelsRequired is returned by any tool that would open a channel
// when the session didn't negotiate the channels extension (§4.1's legacy
// client, lobby-only scenario): the tool subset itself stays usable, but
// the channel-owning operations decline instead of silently degrading.
func errChannelsRequired() *gmerrors.Error {
	return gmerrors.New(gmerrors.KindValidation, "session did not negotiate the channels extension", nil)
}

// Register adds every tool this package declares to reg.
func Register(reg *toolset.Registry, deps *Deps) error {
	for _, t := range lobbyTools(deps) {
		if err := reg.Register(t); err != nil {
			return err
		}
	}
	for _, t := range channelTools(deps) {
		if err := reg.Register(t); err != nil {
			return err
		}
	}
	return nil
}
