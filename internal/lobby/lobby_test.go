package lobby

import (
	"bufio"
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/skirmishbridge/gamemanager/internal/gmerrors"
)

// fakeServer accepts one connection and lets the test script lines to send
// and read, standing in for the lobby TCP server.
type fakeServer struct {
	ln   net.Listener
	conn net.Conn
	rd   *bufio.Scanner
}

func startFakeServer(t *testing.T) *fakeServer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	return &fakeServer{ln: ln}
}

func (s *fakeServer) accept(t *testing.T) {
	t.Helper()
	conn, err := s.ln.Accept()
	require.NoError(t, err)
	s.conn = conn
	s.rd = bufio.NewScanner(conn)
}

func (s *fakeServer) readLine(t *testing.T) string {
	t.Helper()
	require.True(t, s.rd.Scan())
	return s.rd.Text()
}

func (s *fakeServer) sendLine(t *testing.T, line string) {
	t.Helper()
	_, err := s.conn.Write([]byte(line + "\n"))
	require.NoError(t, err)
}

func (s *fakeServer) port() int {
	return s.ln.Addr().(*net.TCPAddr).Port
}

func dialClient(t *testing.T, srv *fakeServer, cfg Config) *Client {
	t.Helper()
	c := New(cfg)
	done := make(chan struct{})
	go func() { srv.accept(t); close(done) }()
	require.NoError(t, c.Connect(context.Background(), "127.0.0.1", srv.port()))
	<-done
	return c
}

func TestConnectTransitionsToGreeted(t *testing.T) {
	srv := startFakeServer(t)
	defer srv.ln.Close()
	c := dialClient(t, srv, Config{ClientID: "gamemanager"})
	require.Equal(t, StateGreeted, c.State())
}

func TestLoginSuccessTransitionsToAuthenticated(t *testing.T) {
	srv := startFakeServer(t)
	defer srv.ln.Close()
	c := dialClient(t, srv, Config{ClientID: "gamemanager"})

	require.NoError(t, c.Login("alice", "hunter2"))
	line := srv.readLine(t)
	require.Contains(t, line, "LOGIN ")

	srv.sendLine(t, "LOGINOK {}")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, c.AwaitLogin(ctx))
	require.Equal(t, StateAuthenticated, c.State())
}

func TestLoginFailureStaysGreeted(t *testing.T) {
	srv := startFakeServer(t)
	defer srv.ln.Close()
	c := dialClient(t, srv, Config{ClientID: "gamemanager"})

	require.NoError(t, c.Login("alice", "wrong"))
	srv.readLine(t)
	srv.sendLine(t, `LOGINFAIL {"reason":"bad credentials"}`)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err := c.AwaitLogin(ctx)
	require.Error(t, err)
	require.True(t, gmerrors.Is(err, gmerrors.KindAuth))
	require.Equal(t, StateGreeted, c.State())
}

func TestChatPushEventRoutesToRoomChannel(t *testing.T) {
	srv := startFakeServer(t)
	defer srv.ln.Close()

	var gotChannel, gotPayload string
	incoming := make(chan struct{}, 1)
	c := dialClient(t, srv, Config{
		ClientID: "gamemanager",
		OnIncoming: func(channelID, payload string) {
			gotChannel, gotPayload = channelID, payload
			incoming <- struct{}{}
		},
	})

	// Fast-forward to authenticated so JoinChannel is allowed.
	c.mu.Lock()
	c.state = StateAuthenticated
	c.mu.Unlock()

	require.NoError(t, c.JoinChannel("main"))
	srv.readLine(t) // JOIN command
	c.JoinChannelID("main", "lobby:main")

	srv.sendLine(t, `SAID {"channel":"main","user":"alice","text":"hello"}`)

	select {
	case <-incoming:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for incoming push event")
	}
	require.Equal(t, "lobby:main", gotChannel)
	require.Contains(t, gotPayload, "hello")
}

func TestDisconnectInvokesOnEnded(t *testing.T) {
	srv := startFakeServer(t)
	defer srv.ln.Close()

	endedCh := make(chan *gmerrors.Error, 1)
	c := dialClient(t, srv, Config{
		ClientID: "gamemanager",
		OnEnded:  func(cause *gmerrors.Error) { endedCh <- cause },
	})

	require.NoError(t, srv.conn.Close())

	select {
	case cause := <-endedCh:
		require.NotNil(t, cause)
		require.Equal(t, gmerrors.KindTransport, cause.Kind)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for onEnded")
	}
}
