package tools

import (
	"bufio"
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/skirmishbridge/gamemanager/internal/featureset"
	"github.com/skirmishbridge/gamemanager/internal/mux"
)

// fakeLobbyServer accepts one connection and lets a test script lines to
// send and read, standing in for the lobby TCP server.
type fakeLobbyServer struct {
	ln   net.Listener
	conn net.Conn
	rd   *bufio.Scanner
}

func startFakeLobbyServer(t *testing.T) *fakeLobbyServer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	return &fakeLobbyServer{ln: ln}
}

func (s *fakeLobbyServer) accept(t *testing.T) {
	t.Helper()
	conn, err := s.ln.Accept()
	require.NoError(t, err)
	s.conn = conn
	s.rd = bufio.NewScanner(conn)
}

func (s *fakeLobbyServer) readLine(t *testing.T) string {
	t.Helper()
	require.True(t, s.rd.Scan())
	return s.rd.Text()
}

func (s *fakeLobbyServer) sendLine(t *testing.T, line string) {
	t.Helper()
	_, err := s.conn.Write([]byte(line + "\n"))
	require.NoError(t, err)
}

func (s *fakeLobbyServer) port() int {
	return s.ln.Addr().(*net.TCPAddr).Port
}

func TestLobbyConnectLoginAndSay(t *testing.T) {
	rig := newTestRig(t, "/bin/true")
	defer rig.cancel()

	srv := startFakeLobbyServer(t)
	defer srv.ln.Close()

	accepted := make(chan struct{})
	go func() { srv.accept(t); close(accepted) }()

	connectResp := rig.callTool(t, "1", "lobby_connect", map[string]any{"host": "127.0.0.1", "port": srv.port()})
	result := toolResult(t, connectResp)
	require.False(t, result.IsError)

	select {
	case <-accepted:
	case <-time.After(time.Second):
		t.Fatal("lobby server never accepted a connection")
	}

	loginCh := make(chan mux.Response, 1)
	go func() {
		loginCh <- rig.callTool(t, "2", "lobby_login", map[string]any{"username": "alice", "password": "hunter2"})
	}()

	line := srv.readLine(t)
	require.Contains(t, line, "LOGIN ")
	srv.sendLine(t, "LOGINOK {}")

	select {
	case resp := <-loginCh:
		require.False(t, toolResult(t, resp).IsError)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for lobby_login to complete")
	}

	sayResp := rig.callTool(t, "3", "lobby_say", map[string]any{"target": "main", "text": "hi", "place": "channel"})
	require.False(t, toolResult(t, sayResp).IsError)
	require.Contains(t, srv.readLine(t), "SAY ")
}

// TestLobbyOnlySessionServesToolsButRejectsChannels covers §4.1's legacy
// client: a session that acknowledges only lobby.chat must still be able to
// call the non-channel lobby tools, while every tool that would open a
// channel declines with a channels-required error instead of silently
// degrading.
func TestLobbyOnlySessionServesToolsButRejectsChannels(t *testing.T) {
	rig := newTestRigNegotiating(t, "/bin/true", featureset.Lobby)
	defer rig.cancel()

	connectResult := toolResult(t, rig.callTool(t, "1", "lobby_connect", map[string]any{"host": "127.0.0.1", "port": 1}))
	require.True(t, connectResult.IsError)
	require.Contains(t, connectResult.Content[0].Text, "channels extension")

	joinResult := toolResult(t, rig.callTool(t, "2", "lobby_join_channel", map[string]any{"name": "main"}))
	require.True(t, joinResult.IsError)
	require.Contains(t, joinResult.Content[0].Text, "channels extension")

	startResult := toolResult(t, rig.callTool(t, "3", "lobby_start_game", map[string]any{"map": "m", "opponent": "NullAI"}))
	require.True(t, startResult.IsError)
	require.Contains(t, startResult.Content[0].Text, "channels extension")

	// A tool that never opens a channel stays reachable: it runs and
	// fails for its own (not-found) reason, not a channels-extension one.
	infoResult := toolResult(t, rig.callTool(t, "4", "lobby_get_battle_info", map[string]any{"battle_id": 42}))
	require.True(t, infoResult.IsError)
	require.Contains(t, infoResult.Content[0].Text, "no tracked battle")
}

func TestLobbySayRejectsInvalidPlace(t *testing.T) {
	rig := newTestRig(t, "/bin/true")
	defer rig.cancel()

	resp := rig.callTool(t, "1", "lobby_say", map[string]any{"target": "main", "text": "hi", "place": "bogus"})
	require.True(t, toolResult(t, resp).IsError)
}

func TestLobbyJoinChannelRoutesPushEventsToAssignedChannelID(t *testing.T) {
	rig := newTestRig(t, "/bin/true")
	defer rig.cancel()

	srv := startFakeLobbyServer(t)
	defer srv.ln.Close()
	accepted := make(chan struct{})
	go func() { srv.accept(t); close(accepted) }()

	require.False(t, toolResult(t, rig.callTool(t, "1", "lobby_connect", map[string]any{"host": "127.0.0.1", "port": srv.port()})).IsError)
	<-accepted

	// Fast-forward to authenticated so JoinChannel is allowed (mirrors the
	// lobby package's own test shortcut for this state transition).
	rig.deps.lobby.Login("alice", "x")
	srv.readLine(t)
	srv.sendLine(t, "LOGINOK {}")
	time.Sleep(50 * time.Millisecond)

	joinResp := rig.callTool(t, "2", "lobby_join_channel", map[string]any{"name": "main"})
	joinResult := toolResult(t, joinResp)
	require.False(t, joinResult.IsError)
	srv.readLine(t) // JOIN command

	var joined lobbyJoinChannelResult
	require.NoError(t, json.Unmarshal([]byte(joinResult.Content[0].Text), &joined))
	require.NotEmpty(t, joined.ChannelID)

	srv.sendLine(t, `SAID {"channel":"main","user":"bob","text":"hello"}`)

	notif := rig.pt.recvMatching(t, func(resp mux.Response) bool { return resp.Method == "channels/incoming" })
	b, _ := json.Marshal(notif.Params)
	var params mux.ChannelsIncomingParams
	require.NoError(t, json.Unmarshal(b, &params))
	require.Equal(t, joined.ChannelID, params.ChannelID)
	require.Contains(t, params.Payload, "hello")

	leaveResp := rig.callTool(t, "3", "lobby_leave_channel", map[string]any{"name": "main"})
	require.False(t, toolResult(t, leaveResp).IsError)
	srv.readLine(t) // LEAVE command
}
