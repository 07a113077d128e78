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
	"fmt"

	"github.com/skirmishbridge/gamemanager/internal/channel"
	"github.com/skirmishbridge/gamemanager/internal/featureset"
	"github.com/skirmishbridge/gamemanager/internal/gameinstance"
	"github.com/skirmishbridge/gamemanager/internal/gmerrors"
	"github.com/skirmishbridge/gamemanager/internal/lobby"
	"github.com/skirmishbridge/gamemanager/internal/toolset"
)

type lobbyConnectArgs struct {
	Host string `json:"host" jsonschema:"required"`
	Port int    `json:"port" jsonschema:"required"`
}

type lobbyLoginArgs struct {
	Username string `json:"username" jsonschema:"required"`
	Password string `json:"password" jsonschema:"required"`
}

type lobbyRegisterArgs struct {
	Username string `json:"username" jsonschema:"required"`
	Password string `json:"password" jsonschema:"required"`
	Email    string `json:"email" jsonschema:"required"`
}

type lobbySayArgs struct {
	Target string `json:"target" jsonschema:"required"`
	Text   string `json:"text" jsonschema:"required"`
	Place  string `json:"place" jsonschema:"required,enum=channel,enum=user"`
}

type lobbyChannelNameArgs struct {
	Name string `json:"name" jsonschema:"required"`
}

type lobbyJoinChannelResult struct {
	ChannelID string `json:"channel_id"`
}

type lobbyBattleIDArgs struct {
	BattleID int `json:"battle_id" jsonschema:"required"`
}

type lobbyQueueArgs struct {
	Queue string `json:"queue" jsonschema:"required"`
}

type lobbyUsernameArgs struct {
	Username string `json:"username" jsonschema:"required"`
}

type lobbyStartGameArgs struct {
	Map      string `json:"map" jsonschema:"required"`
	Opponent string `json:"opponent" jsonschema:"required"`
	Headless bool   `json:"headless"`
}

type lobbyStartGameResult struct {
	ChannelID string `json:"channel_id"`
}

func lobbyTools(deps *Deps) []*toolset.Tool {
	return []*toolset.Tool{
		{
			Name:        "lobby_connect",
			Description: "Connect to the lobby server and open the global lobby channel for non-room push events.",
			FeatureSet:  featureset.Lobby,
			Schema:      toolset.GenerateSchema[lobbyConnectArgs](),
			Handler: func(ctx context.Context, raw json.RawMessage) (*toolset.Result, error) {
				args, err := toolset.DecodeArgs[lobbyConnectArgs](raw)
				if err != nil {
					return toolset.Error(err.Error()), nil
				}
				if !deps.Mux.ChannelsAllowed() {
					return toolset.Error(errChannelsRequired().Error()), nil
				}

				id, err := deps.Mux.OpenChannel(ctx, channel.KindLobbyChat, featureset.Lobby, &globalLobbyResource{client: deps.lobby})
				if err != nil {
					return toolset.Error(err.Error()), nil
				}
				deps.lobbyMu.Lock()
				deps.globalID = id
				deps.lobbyMu.Unlock()

				if err := deps.lobby.Connect(ctx, args.Host, args.Port); err != nil {
					deps.lobbyMu.Lock()
					deps.globalID = ""
					deps.lobbyMu.Unlock()
					_ = deps.Mux.CloseChannel(ctx, id)
					return toolset.Error(err.Error()), nil
				}
				return toolset.TextJSON(lobbyJoinChannelResult{ChannelID: id}), nil
			},
		},
		{
			Name:        "lobby_disconnect",
			Description: "Disconnect from the lobby server, closing every lobby channel.",
			FeatureSet:  featureset.Lobby,
			Schema:      toolset.GenerateSchema[struct{}](),
			Handler: func(ctx context.Context, raw json.RawMessage) (*toolset.Result, error) {
				if err := deps.lobby.Disconnect(); err != nil {
					return toolset.Error(err.Error()), nil
				}
				deps.lobbyEnded(nil)
				return toolset.Text("disconnected"), nil
			},
		},
		{
			Name:        "lobby_login",
			Description: "Authenticate with the lobby server using a username and password.",
			FeatureSet:  featureset.Lobby,
			Schema:      toolset.GenerateSchema[lobbyLoginArgs](),
			Handler: func(ctx context.Context, raw json.RawMessage) (*toolset.Result, error) {
				args, err := toolset.DecodeArgs[lobbyLoginArgs](raw)
				if err != nil {
					return toolset.Error(err.Error()), nil
				}
				if err := deps.lobby.Login(args.Username, args.Password); err != nil {
					return toolset.Error(err.Error()), nil
				}
				if err := deps.lobby.AwaitLogin(ctx); err != nil {
					return toolset.Error(err.Error()), nil
				}
				return toolset.Text("authenticated"), nil
			},
		},
		{
			Name:        "lobby_register",
			Description: "Register a new lobby account.",
			FeatureSet:  featureset.Lobby,
			Schema:      toolset.GenerateSchema[lobbyRegisterArgs](),
			Handler: func(ctx context.Context, raw json.RawMessage) (*toolset.Result, error) {
				args, err := toolset.DecodeArgs[lobbyRegisterArgs](raw)
				if err != nil {
					return toolset.Error(err.Error()), nil
				}
				if err := deps.lobby.Register(args.Username, args.Password, args.Email); err != nil {
					return toolset.Error(err.Error()), nil
				}
				return toolset.Text("registration requested"), nil
			},
		},
		{
			Name:        "lobby_say",
			Description: "Send a chat line to a lobby channel or directly to a user.",
			FeatureSet:  featureset.Lobby,
			Schema:      toolset.GenerateSchema[lobbySayArgs](),
			Handler: func(ctx context.Context, raw json.RawMessage) (*toolset.Result, error) {
				args, err := toolset.DecodeArgs[lobbySayArgs](raw)
				if err != nil {
					return toolset.Error(err.Error()), nil
				}
				place, err := parsePlace(args.Place)
				if err != nil {
					return toolset.Error(err.Error()), nil
				}
				if err := deps.lobby.Say(args.Target, args.Text, place); err != nil {
					return toolset.Error(err.Error()), nil
				}
				return toolset.Text("sent"), nil
			},
		},
		{
			Name:        "lobby_join_channel",
			Description: "Join a lobby chat room by name, opening a channel for its push events.",
			FeatureSet:  featureset.Lobby,
			Schema:      toolset.GenerateSchema[lobbyChannelNameArgs](),
			Handler: func(ctx context.Context, raw json.RawMessage) (*toolset.Result, error) {
				args, err := toolset.DecodeArgs[lobbyChannelNameArgs](raw)
				if err != nil {
					return toolset.Error(err.Error()), nil
				}
				if !deps.Mux.ChannelsAllowed() {
					return toolset.Error(errChannelsRequired().Error()), nil
				}

				id, err := deps.Mux.OpenChannel(ctx, channel.KindLobbyChat, featureset.Lobby, &roomResource{client: deps.lobby, name: args.Name})
				if err != nil {
					return toolset.Error(err.Error()), nil
				}
				if err := deps.lobby.JoinChannel(args.Name); err != nil {
					_ = deps.Mux.CloseChannel(ctx, id)
					return toolset.Error(err.Error()), nil
				}
				deps.lobby.JoinChannelID(args.Name, id)

				deps.lobbyMu.Lock()
				deps.roomChannel[args.Name] = id
				deps.lobbyMu.Unlock()

				return toolset.TextJSON(lobbyJoinChannelResult{ChannelID: id}), nil
			},
		},
		{
			Name:        "lobby_leave_channel",
			Description: "Leave a previously joined lobby chat room by name.",
			FeatureSet:  featureset.Lobby,
			Schema:      toolset.GenerateSchema[lobbyChannelNameArgs](),
			Handler: func(ctx context.Context, raw json.RawMessage) (*toolset.Result, error) {
				args, err := toolset.DecodeArgs[lobbyChannelNameArgs](raw)
				if err != nil {
					return toolset.Error(err.Error()), nil
				}

				deps.lobbyMu.Lock()
				id, ok := deps.roomChannel[args.Name]
				delete(deps.roomChannel, args.Name)
				deps.lobbyMu.Unlock()
				if !ok {
					return toolset.Error(fmt.Sprintf("lobby room %q is not joined", args.Name)), nil
				}
				if err := deps.Mux.CloseChannel(ctx, id); err != nil {
					return toolset.Error(err.Error()), nil
				}
				return toolset.Text("left"), nil
			},
		},
		{
			Name:        "lobby_list_battles",
			Description: "Request the current battle list from the lobby server; results arrive as push events on the global lobby channel.",
			FeatureSet:  featureset.Lobby,
			Schema:      toolset.GenerateSchema[struct{}](),
			Handler: func(ctx context.Context, raw json.RawMessage) (*toolset.Result, error) {
				if err := deps.lobby.ListBattles(); err != nil {
					return toolset.Error(err.Error()), nil
				}
				return toolset.Text("requested"), nil
			},
		},
		{
			Name:        "lobby_list_users",
			Description: "Request the current user list from the lobby server; results arrive as push events on the global lobby channel.",
			FeatureSet:  featureset.Lobby,
			Schema:      toolset.GenerateSchema[struct{}](),
			Handler: func(ctx context.Context, raw json.RawMessage) (*toolset.Result, error) {
				if err := deps.lobby.ListUsers(); err != nil {
					return toolset.Error(err.Error()), nil
				}
				return toolset.Text("requested"), nil
			},
		},
		{
			Name:        "lobby_join_battle",
			Description: "Join a lobby battle room by id.",
			FeatureSet:  featureset.Lobby,
			Schema:      toolset.GenerateSchema[lobbyBattleIDArgs](),
			Handler: func(ctx context.Context, raw json.RawMessage) (*toolset.Result, error) {
				args, err := toolset.DecodeArgs[lobbyBattleIDArgs](raw)
				if err != nil {
					return toolset.Error(err.Error()), nil
				}
				if err := deps.lobby.JoinBattle(args.BattleID); err != nil {
					return toolset.Error(err.Error()), nil
				}
				return toolset.Text("joined"), nil
			},
		},
		{
			Name:        "lobby_leave_battle",
			Description: "Leave the currently joined lobby battle room.",
			FeatureSet:  featureset.Lobby,
			Schema:      toolset.GenerateSchema[struct{}](),
			Handler: func(ctx context.Context, raw json.RawMessage) (*toolset.Result, error) {
				if err := deps.lobby.LeaveBattle(); err != nil {
					return toolset.Error(err.Error()), nil
				}
				return toolset.Text("left"), nil
			},
		},
		{
			Name:        "lobby_matchmaker_join",
			Description: "Enter a lobby matchmaking queue by name.",
			FeatureSet:  featureset.Lobby,
			Schema:      toolset.GenerateSchema[lobbyQueueArgs](),
			Handler: func(ctx context.Context, raw json.RawMessage) (*toolset.Result, error) {
				args, err := toolset.DecodeArgs[lobbyQueueArgs](raw)
				if err != nil {
					return toolset.Error(err.Error()), nil
				}
				if err := deps.lobby.MatchmakerJoin(args.Queue); err != nil {
					return toolset.Error(err.Error()), nil
				}
				return toolset.Text("joined"), nil
			},
		},
		{
			Name:        "lobby_get_battle_info",
			Description: "Look up a tracked battle room's last known state by id, without round-tripping the lobby server.",
			FeatureSet:  featureset.Lobby,
			Schema:      toolset.GenerateSchema[lobbyBattleIDArgs](),
			Handler: func(ctx context.Context, raw json.RawMessage) (*toolset.Result, error) {
				args, err := toolset.DecodeArgs[lobbyBattleIDArgs](raw)
				if err != nil {
					return toolset.Error(err.Error()), nil
				}
				b, ok := deps.lobby.Battle(args.BattleID)
				if !ok {
					return toolset.Error(fmt.Sprintf("no tracked battle with id %d", args.BattleID)), nil
				}
				return toolset.TextJSON(b), nil
			},
		},
		{
			Name:        "lobby_get_user_info",
			Description: "Look up a tracked user's last known status by name, without round-tripping the lobby server.",
			FeatureSet:  featureset.Lobby,
			Schema:      toolset.GenerateSchema[lobbyUsernameArgs](),
			Handler: func(ctx context.Context, raw json.RawMessage) (*toolset.Result, error) {
				args, err := toolset.DecodeArgs[lobbyUsernameArgs](raw)
				if err != nil {
					return toolset.Error(err.Error()), nil
				}
				u, ok := deps.lobby.User(args.Username)
				if !ok {
					return toolset.Error(fmt.Sprintf("no tracked user named %q", args.Username)), nil
				}
				return toolset.TextJSON(u), nil
			},
		},
		{
			Name:        "lobby_start_game",
			Description: "Start a local game instance with the Bridge controlling the human slot, opening a game-instance channel for its events and commands.",
			FeatureSet:  featureset.Lobby,
			Schema:      toolset.GenerateSchema[lobbyStartGameArgs](),
			Handler: func(ctx context.Context, raw json.RawMessage) (*toolset.Result, error) {
				args, err := toolset.DecodeArgs[lobbyStartGameArgs](raw)
				if err != nil {
					return toolset.Error(err.Error()), nil
				}
				if !deps.Mux.ChannelsAllowed() {
					return toolset.Error(errChannelsRequired().Error()), nil
				}
				id, err := launchGameChannel(ctx, deps, gameinstance.Params{
					Map:      args.Map,
					Opponent: args.Opponent,
					Headless: args.Headless,
				})
				if err != nil {
					return toolset.Error(err.Error()), nil
				}
				return toolset.TextJSON(lobbyStartGameResult{ChannelID: id}), nil
			},
		},
	}
}

func parsePlace(s string) (lobby.Place, error) {
	switch s {
	case "channel":
		return lobby.PlaceChannel, nil
	case "user":
		return lobby.PlaceUser, nil
	default:
		return 0, gmerrors.New(gmerrors.KindValidation, fmt.Sprintf("place must be \"channel\" or \"user\", got %q", s), nil)
	}
}
