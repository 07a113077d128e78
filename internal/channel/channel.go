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

// Package channel implements the Channel table: the bidirectional named
// streams a session has open, each owned by exactly one resource (a lobby
// room, an engine instance, or a replay reader). The table is a single-actor
// owner per §5's shared-resource policy: it is mutated only by the goroutine
// running Table.Run, addressed by every other goroutine through its inbox.
package channel

import "context"

// Kind identifies what a channel is attached to.
type Kind string

const (
	KindLobbyChat    Kind = "lobby-chat"
	KindGameInstance Kind = "game-instance"
	KindReplay       Kind = "replay"
)

// State is a channel's lifecycle stage.
type State string

const (
	StateOpening State = "opening"
	StateOpen    State = "open"
	StateClosing State = "closing"
	StateClosed  State = "closed"
)

// Resource is the thing a channel is a window onto. Exactly one Resource
// owns each open channel id (§3 invariant).
type Resource interface {
	// Publish delivers an outgoing payload to the resource (e.g. a chat
	// line to the lobby room, a command JSON to the engine).
	Publish(ctx context.Context, payload string) error

	// Close tears the resource down. Idempotent.
	Close(ctx context.Context) error
}

// Checkpointable is implemented by resources whose owning feature set
// declares rollback: true.
type Checkpointable interface {
	Resource
	Checkpoint(ctx context.Context) ([]byte, error)
	Restore(ctx context.Context, payload []byte) error
}

// IDAssignable is implemented by resources built by a ResourceFactory,
// which runs before the channel id they will live under exists. A resource
// that starts producing Incoming payloads as soon as it is constructed
// (e.g. a replay reader) implements this to learn its id once OpenChannel
// assigns one, so it can address anything produced in the meantime.
type IDAssignable interface {
	AssignChannelID(id string)
}

// Channel is one entry in the table.
type Channel struct {
	ID         string
	Kind       Kind
	FeatureSet string
	State      State
	Resource   Resource
}
