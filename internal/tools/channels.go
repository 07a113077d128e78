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

package tools

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/skirmishbridge/gamemanager/internal/channel"
	"github.com/skirmishbridge/gamemanager/internal/featureset"
	"github.com/skirmishbridge/gamemanager/internal/gameinstance"
	"github.com/skirmishbridge/gamemanager/internal/gmerrors"
	"github.com/skirmishbridge/gamemanager/internal/mux"
	"github.com/skirmishbridge/gamemanager/internal/toolset"
)

// gameEventForwarder buffers a fresh game instance's incoming payloads and
// ended cause until the channel id OpenChannel will assign it is known: the
// instance's own read loop can start delivering Bridge events before the
// tool handler gets a channel id back to address them to, the same
// before-you-know-the-id problem the handshake token solves for the
// Supervisor/Router pair.
type gameEventForwarder struct {
	m *mux.Multiplexer

	mu        sync.Mutex
	channelID string
	buffered  []string
	endCause  *gmerrors.Error
	ended     bool
}

func (f *gameEventForwarder) incoming(payload string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.channelID == "" {
		f.buffered = append(f.buffered, payload)
		return
	}
	f.m.Incoming(f.channelID, payload)
}

func (f *gameEventForwarder) onEnded(cause *gmerrors.Error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.channelID == "" {
		f.ended = true
		f.endCause = cause
		return
	}
	f.m.Ended(f.channelID, cause)
}

// assign delivers anything buffered before the channel id existed, in order.
func (f *gameEventForwarder) assign(channelID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.channelID = channelID
	for _, payload := range f.buffered {
		f.m.Incoming(channelID, payload)
	}
	f.buffered = nil
	if f.ended {
		f.m.Ended(channelID, f.endCause)
	}
}

// launchGameChannel spawns an engine instance for params and registers it
// as a game-instance channel, returning the assigned channel id. Shared by
// lobby_start_game and channel_open, which differ only in what argument
// shape the caller supplies.
func launchGameChannel(ctx context.Context, deps *Deps, params gameinstance.Params) (string, error) {
	forwarder := &gameEventForwarder{m: deps.Mux}

	inst, err := gameinstance.Start(ctx, gameinstance.Config{
		Supervisor:       deps.Supervisor,
		Router:           deps.Router,
		HandshakeTimeout: deps.HandshakeTimeout,
		OnIncoming:       forwarder.incoming,
		OnEnded:          forwarder.onEnded,
		Log:              deps.Log,
	}, params)
	if err != nil {
		return "", err
	}

	id, err := deps.Mux.OpenChannel(ctx, channel.KindGameInstance, featureset.Game, inst)
	if err != nil {
		_ = inst.Close(ctx)
		return "", err
	}
	forwarder.assign(id)
	return id, nil
}

type channelListResult struct {
	Channels []channelInfo `json:"channels"`
}

type channelInfo struct {
	ID         string `json:"channel_id"`
	Kind       string `json:"kind"`
	FeatureSet string `json:"feature_set"`
	State      string `json:"state"`
}

type channelCloseArgs struct {
	ChannelID string `json:"channel_id" jsonschema:"required"`
}

type channelOpenArgs struct {
	Map  string `json:"map" jsonschema:"required"`
	Game string `json:"game" jsonschema:"required"`
}

type channelOpenResult struct {
	ChannelID string `json:"channel_id"`
}

func channelTools(deps *Deps) []*toolset.Tool {
	return []*toolset.Tool{
		{
			Name:        "channel_list",
			Description: "List currently open channels, including active game instances.",
			FeatureSet:  featureset.Game,
			Schema:      toolset.GenerateSchema[struct{}](),
			Handler: func(ctx context.Context, raw json.RawMessage) (*toolset.Result, error) {
				infos, err := deps.Mux.ListChannels(ctx)
				if err != nil {
					return toolset.Error(err.Error()), nil
				}
				out := make([]channelInfo, 0, len(infos))
				for _, info := range infos {
					out = append(out, channelInfo{
						ID:         info.ID,
						Kind:       string(info.Kind),
						FeatureSet: info.FeatureSet,
						State:      string(info.State),
					})
				}
				return toolset.TextJSON(channelListResult{Channels: out}), nil
			},
		},
		{
			Name:        "channel_close",
			Description: "Close an open channel by id, stopping the game instance or leaving the lobby room it owns.",
			FeatureSet:  featureset.Game,
			Schema:      toolset.GenerateSchema[channelCloseArgs](),
			Handler: func(ctx context.Context, raw json.RawMessage) (*toolset.Result, error) {
				args, err := toolset.DecodeArgs[channelCloseArgs](raw)
				if err != nil {
					return toolset.Error(err.Error()), nil
				}
				if err := deps.Mux.CloseChannel(ctx, args.ChannelID); err != nil {
					return toolset.Error(err.Error()), nil
				}
				return toolset.Text("closed"), nil
			},
		},
		{
			Name:        "channel_open",
			Description: "Start a local game instance directly, as a lower-level alternative to lobby_start_game, returning the new channel id.",
			FeatureSet:  featureset.Game,
			Schema:      toolset.GenerateSchema[channelOpenArgs](),
			Handler: func(ctx context.Context, raw json.RawMessage) (*toolset.Result, error) {
				args, err := toolset.DecodeArgs[channelOpenArgs](raw)
				if err != nil {
					return toolset.Error(err.Error()), nil
				}
				if !deps.Mux.ChannelsAllowed() {
					return toolset.Error(errChannelsRequired().Error()), nil
				}
				id, err := launchGameChannel(ctx, deps, gameinstance.Params{Map: args.Map, Game: args.Game})
				if err != nil {
					return toolset.Error(err.Error()), nil
				}
				return toolset.TextJSON(channelOpenResult{ChannelID: id}), nil
			},
		},
	}
}
