package ipcrouter

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func startRouter(t *testing.T) (*Router, func()) {
	t.Helper()
	r := New(nil)
	sock := filepath.Join(t.TempDir(), "bridge.sock")
	require.NoError(t, r.Listen("unix", sock))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = r.Serve(ctx)
		close(done)
	}()

	return r, func() {
		cancel()
		<-done
	}
}

func dialAndHandshake(t *testing.T, r *Router, token, version string) net.Conn {
	t.Helper()
	conn, err := net.Dial(r.Addr().Network(), r.Addr().String())
	require.NoError(t, err)

	h, err := json.Marshal(map[string]string{"type": "hello", "token": token, "version": version})
	require.NoError(t, err)
	_, err = conn.Write(append(h, '\n'))
	require.NoError(t, err)
	return conn
}

func TestMatchingTokenCompletesHandshake(t *testing.T) {
	r, stop := startRouter(t)
	defer stop()

	ch := r.Register("tok-1")
	conn := dialAndHandshake(t, r, "tok-1", "1.0")
	defer conn.Close()

	reader := bufio.NewReader(conn)
	line, err := reader.ReadBytes('\n')
	require.NoError(t, err)
	var w map[string]string
	require.NoError(t, json.Unmarshal(line, &w))
	require.Equal(t, "welcome", w["type"])

	select {
	case bound := <-ch:
		require.Equal(t, "tok-1", bound.Token)
		require.Equal(t, "1.0", bound.Version)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for Bound")
	}
}

func TestUnmatchedTokenIsDropped(t *testing.T) {
	r, stop := startRouter(t)
	defer stop()

	conn := dialAndHandshake(t, r, "no-such-token", "1.0")
	defer conn.Close()

	// The router closes the connection instead of ever writing a welcome.
	buf := make([]byte, 1)
	conn.SetReadDeadline(time.Now().Add(time.Second))
	_, err := conn.Read(buf)
	require.Error(t, err)
}

func TestDuplicateHandshakeClosesSecondConnection(t *testing.T) {
	r, stop := startRouter(t)
	defer stop()

	ch := r.Register("tok-dup")
	first := dialAndHandshake(t, r, "tok-dup", "1.0")
	defer first.Close()

	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for first handshake")
	}

	second := dialAndHandshake(t, r, "tok-dup", "1.0")
	defer second.Close()

	buf := make([]byte, 1)
	second.SetReadDeadline(time.Now().Add(time.Second))
	_, err := second.Read(buf)
	require.Error(t, err)
}

func TestUnregisterPreventsLateHandshake(t *testing.T) {
	r, stop := startRouter(t)
	defer stop()

	_ = r.Register("tok-gone")
	r.Unregister("tok-gone")

	conn := dialAndHandshake(t, r, "tok-gone", "1.0")
	defer conn.Close()

	buf := make([]byte, 1)
	conn.SetReadDeadline(time.Now().Add(time.Second))
	_, err := conn.Read(buf)
	require.Error(t, err)
}
