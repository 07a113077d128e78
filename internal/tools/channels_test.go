package tools

import (
	"encoding/json"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/skirmishbridge/gamemanager/internal/mux"
)

func TestChannelOpenListAndClose(t *testing.T) {
	setHelperEnv(t)
	exe, err := os.Executable()
	require.NoError(t, err)
	rig := newTestRig(t, exe)
	defer rig.cancel()

	openResp := rig.callTool(t, "1", "channel_open", map[string]any{"map": "DeltaSiegeDry", "game": "BAR"})
	openResult := toolResult(t, openResp)
	require.False(t, openResult.IsError)

	var opened channelOpenResult
	require.NoError(t, json.Unmarshal([]byte(openResult.Content[0].Text), &opened))
	require.NotEmpty(t, opened.ChannelID)

	// The helper process sends an init event right after the handshake.
	notif := rig.pt.recvMatching(t, func(resp mux.Response) bool { return resp.Method == "channels/incoming" })
	b, _ := json.Marshal(notif.Params)
	var incoming mux.ChannelsIncomingParams
	require.NoError(t, json.Unmarshal(b, &incoming))
	require.Equal(t, opened.ChannelID, incoming.ChannelID)
	require.Contains(t, incoming.Payload, "init")

	listResp := rig.callTool(t, "2", "channel_list", nil)
	listResult := toolResult(t, listResp)
	require.False(t, listResult.IsError)
	var listed channelListResult
	require.NoError(t, json.Unmarshal([]byte(listResult.Content[0].Text), &listed))
	require.Len(t, listed.Channels, 1)
	require.Equal(t, opened.ChannelID, listed.Channels[0].ID)
	require.Equal(t, "game-instance", listed.Channels[0].Kind)

	closeResp := rig.callTool(t, "3", "channel_close", map[string]any{"channel_id": opened.ChannelID})
	require.False(t, toolResult(t, closeResp).IsError)

	afterClose := toolResult(t, rig.callTool(t, "4", "channel_list", nil))
	var afterListed channelListResult
	require.NoError(t, json.Unmarshal([]byte(afterClose.Content[0].Text), &afterListed))
	require.Len(t, afterListed.Channels, 0)
}

func TestChannelCloseUnknownChannelErrors(t *testing.T) {
	rig := newTestRig(t, "/bin/true")
	defer rig.cancel()

	resp := rig.callTool(t, "1", "channel_close", map[string]any{"channel_id": "does-not-exist"})
	require.True(t, toolResult(t, resp).IsError)
}

func TestLobbyStartGameOpensGameInstanceChannel(t *testing.T) {
	setHelperEnv(t)
	exe, err := os.Executable()
	require.NoError(t, err)
	rig := newTestRig(t, exe)
	defer rig.cancel()

	resp := rig.callTool(t, "1", "lobby_start_game", map[string]any{"map": "DeltaSiegeDry", "opponent": "NullAI", "headless": true})
	result := toolResult(t, resp)
	require.False(t, result.IsError)

	var started lobbyStartGameResult
	require.NoError(t, json.Unmarshal([]byte(result.Content[0].Text), &started))
	require.NotEmpty(t, started.ChannelID)

	notif := rig.pt.recvMatching(t, func(resp mux.Response) bool { return resp.Method == "channels/incoming" })
	b, _ := json.Marshal(notif.Params)
	var incoming mux.ChannelsIncomingParams
	require.NoError(t, json.Unmarshal(b, &incoming))
	require.Equal(t, started.ChannelID, incoming.ChannelID)
}
