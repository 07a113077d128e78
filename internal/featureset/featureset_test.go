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

package featureset

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNegotiateIgnoresUnknownNames(t *testing.T) {
	r := NewRegistry()
	enabled := r.Negotiate([]string{Lobby, "future.feature"})
	require.Equal(t, []string{Lobby}, enabled)
	require.True(t, r.Enabled(Lobby))
	require.False(t, r.Enabled("future.feature"))
}

func TestLobbyAloneDoesNotAllowChannels(t *testing.T) {
	r := NewRegistry()
	r.Negotiate([]string{Lobby})
	require.False(t, r.ChannelsAllowed())
}

func TestGameAlongsideLobbyAllowsChannels(t *testing.T) {
	r := NewRegistry()
	r.Negotiate([]string{Lobby, Game})
	require.True(t, r.ChannelsAllowed())
}

func TestStateAloneDoesNotAllowChannels(t *testing.T) {
	r := NewRegistry()
	r.Negotiate([]string{State})
	require.False(t, r.ChannelsAllowed())
}
