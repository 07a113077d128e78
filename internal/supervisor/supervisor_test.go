package supervisor

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) Config {
	t.Helper()
	root := t.TempDir()
	content := filepath.Join(root, "content")
	require.NoError(t, os.MkdirAll(filepath.Join(content, "maps"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(content, "games"), 0o755))
	return Config{
		BinaryPath:    "/bin/true",
		ContentRoot:   content,
		WriteDirRoot:  filepath.Join(root, "instances"),
		BridgeName:    "SkirmishBridge",
		BridgeVersion: "0.1",
	}
}

func TestPrepareWriteDirCreatesExpectedLayout(t *testing.T) {
	cfg := testConfig(t)
	s := New(cfg, nil)

	dir := filepath.Join(cfg.WriteDirRoot, "inst-1")
	require.NoError(t, s.prepareWriteDir(dir, StartParams{Map: "DeltaSiegeDry", Game: "BAR"}))

	for _, sub := range []string{
		filepath.Join("AI", "Skirmish", "SkirmishBridge", "0.1"),
		filepath.Join("LuaUI", "Widgets"),
		filepath.Join("LuaUI", "Config"),
		"demos",
		"temp",
	} {
		info, err := os.Stat(filepath.Join(dir, sub))
		require.NoError(t, err, "expected %s to exist", sub)
		require.True(t, info.IsDir())
	}

	// Present in the shared content tree: symlinked.
	_, err := os.Lstat(filepath.Join(dir, "maps"))
	require.NoError(t, err)
	// Absent from the shared content tree: silently skipped, not an error.
	_, err = os.Lstat(filepath.Join(dir, "rapid"))
	require.True(t, os.IsNotExist(err))
}

func TestWriteStartScriptIncludesMapAndSlots(t *testing.T) {
	cfg := testConfig(t)
	s := New(cfg, nil)
	dir := t.TempDir()

	path, err := s.writeStartScript(dir, StartParams{
		Map:        "DeltaSiegeDry",
		Game:       "BAR",
		PlayerName: "Bridge",
		Opponent:   "NullAI",
	}, "token-123")
	require.NoError(t, err)

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(b)
	require.Contains(t, text, "Mapname=DeltaSiegeDry")
	require.Contains(t, text, "Gametype=BAR")
	require.Contains(t, text, "Name=Bridge")
	require.Contains(t, text, "ShortName=NullAI")
	// The handshake token never appears in the script text; it's carried via env.
	require.NotContains(t, text, "token-123")
}

func TestStartSpawnsProcessAndReapsOnExit(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses a unix shell binary")
	}
	cfg := testConfig(t)
	cfg.BinaryPath = "/bin/sh"
	s := New(cfg, nil)

	ended := make(chan EngineEnded, 1)
	inst, err := s.Start(context.Background(), StartParams{Map: "m", Game: "g"}, "tok-test", func(e EngineEnded) {
		ended <- e
	})
	require.NoError(t, err)
	require.NotEmpty(t, inst.HandshakeToken)
	require.False(t, inst.Handshaken())

	select {
	case e := <-ended:
		require.Equal(t, inst, e.Instance)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for engine process to be reaped")
	}

	exited, _ := inst.ExitInfo()
	require.True(t, exited)
}

func TestStopKillsRunningProcess(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses a unix shell binary")
	}
	cfg := testConfig(t)
	sleeper := filepath.Join(t.TempDir(), "sleeper.sh")
	require.NoError(t, os.WriteFile(sleeper, []byte("#!/bin/sh\nsleep 30\n"), 0o755))
	cfg.BinaryPath = sleeper
	s := New(cfg, nil)

	ended := make(chan EngineEnded, 1)
	inst, err := s.Start(context.Background(), StartParams{Map: "m", Game: "g"}, "tok-test", func(e EngineEnded) {
		ended <- e
	})
	require.NoError(t, err)

	require.NoError(t, s.Stop(inst))

	select {
	case <-ended:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for killed process to be reaped")
	}
}

func TestMarkHandshakenIsObservedAfterStart(t *testing.T) {
	cfg := testConfig(t)
	s := New(cfg, nil)
	_ = s
	inst := &Instance{logTail: newRingBuffer(10)}
	require.False(t, inst.Handshaken())
	inst.MarkHandshaken()
	require.True(t, inst.Handshaken())
}
