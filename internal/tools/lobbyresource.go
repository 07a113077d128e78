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

	"github.com/skirmishbridge/gamemanager/internal/gmerrors"
	"github.com/skirmishbridge/gamemanager/internal/lobby"
)

// globalLobbyResource is the channel.Resource behind the channel lobby_connect
// opens for non-room push events (user join/part, private messages, battle
// list changes). It is not itself writable: chat goes through lobby_say.
type globalLobbyResource struct {
	client *lobby.Client
}

func (r *globalLobbyResource) Publish(ctx context.Context, payload string) error {
	return gmerrors.New(gmerrors.KindValidation, "the global lobby channel is not publishable; use lobby_say", nil)
}

func (r *globalLobbyResource) Close(ctx context.Context) error {
	return r.client.Disconnect()
}

// roomResource is the channel.Resource behind a joined chat room's channel.
// Publishing to it says the payload verbatim into the room; closing it
// leaves the room.
type roomResource struct {
	client *lobby.Client
	name   string
}

func (r *roomResource) Publish(ctx context.Context, payload string) error {
	return r.client.Say(r.name, payload, lobby.PlaceChannel)
}

func (r *roomResource) Close(ctx context.Context) error {
	return r.client.LeaveChannel(r.name)
}
