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

// Package featureset implements the named capability bundles negotiated at
// session initialize: which tools/events/channels/rollback a session may use.
package featureset

// Names of the feature sets this GameManager declares. Tool and channel
// packages register against these constants rather than free-form strings.
const (
	Lobby = "lobby.chat"
	Game  = "game.commands"
	State = "game.state"
)

// FeatureSet is a named capability bundle with the flags from the data model.
type FeatureSet struct {
	Name string

	// Tools is true when this set adds tools to the registry.
	Tools bool

	// PushEvents is true when this set may emit server-initiated notifications.
	PushEvents bool

	// Channels is true when this set may open channels.
	Channels bool

	// Rollback is true when this set declares checkpoint/restore capability.
	Rollback bool
}

// Declared returns the feature sets this GameManager advertises at initialize.
//
// Lobby declares Channels: false deliberately: the chat/battle-list tool
// subset must stand on its own for a legacy client that acknowledges only
// lobby.chat (§4.1), so Lobby cannot be the thing that grants channel use.
// A client that also wants lobby_connect/lobby_join_channel/
// lobby_start_game to succeed negotiates game.commands alongside it, which
// is what actually unlocks ChannelsAllowed.
func Declared() []FeatureSet {
	return []FeatureSet{
		{Name: Lobby, Tools: true, PushEvents: true, Channels: false, Rollback: false},
		{Name: Game, Tools: true, PushEvents: true, Channels: true, Rollback: true},
		{Name: State, Tools: true, PushEvents: false, Channels: false, Rollback: false},
	}
}

// Registry is the set of feature sets enabled for one session after negotiation.
type Registry struct {
	declared map[string]FeatureSet
	enabled  map[string]bool
}

// NewRegistry builds a Registry over the declared feature sets.
func NewRegistry() *Registry {
	r := &Registry{declared: make(map[string]FeatureSet), enabled: make(map[string]bool)}
	for _, fs := range Declared() {
		r.declared[fs.Name] = fs
	}
	return r
}

// Negotiate enables the subset of declared feature sets the client
// acknowledged understanding. Unknown names are ignored rather than
// rejected: a forward-compatible client may list sets from a newer server.
func (r *Registry) Negotiate(acknowledged []string) []string {
	var enabled []string
	for _, name := range acknowledged {
		if _, ok := r.declared[name]; ok {
			r.enabled[name] = true
			enabled = append(enabled, name)
		}
	}
	return enabled
}

// Enabled reports whether name was negotiated on for this session.
func (r *Registry) Enabled(name string) bool {
	return r.enabled[name]
}

// Get returns the declared feature set definition, if any.
func (r *Registry) Get(name string) (FeatureSet, bool) {
	fs, ok := r.declared[name]
	return fs, ok
}

// EnabledSets returns the FeatureSet values currently enabled.
func (r *Registry) EnabledSets() []FeatureSet {
	var out []FeatureSet
	for name := range r.enabled {
		out = append(out, r.declared[name])
	}
	return out
}

// ChannelsAllowed reports whether the client negotiated the channels
// extension at all (§4.1: "a legacy client that does not advertise channels
// must still be served by the tool subset alone").
func (r *Registry) ChannelsAllowed() bool {
	for name := range r.enabled {
		if r.declared[name].Channels {
			return true
		}
	}
	return false
}
