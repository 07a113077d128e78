package channel

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/skirmishbridge/gamemanager/internal/gmerrors"
)

type fakeResource struct {
	published  []string
	closed     bool
	closeErr   error
	publishErr error
}

func (f *fakeResource) Publish(ctx context.Context, payload string) error {
	if f.publishErr != nil {
		return f.publishErr
	}
	f.published = append(f.published, payload)
	return nil
}

func (f *fakeResource) Close(ctx context.Context) error {
	f.closed = true
	return f.closeErr
}

type fakeCheckpointable struct {
	fakeResource
	snapshot []byte
	restored []byte
}

func (f *fakeCheckpointable) Checkpoint(ctx context.Context) ([]byte, error) {
	return f.snapshot, nil
}

func (f *fakeCheckpointable) Restore(ctx context.Context, payload []byte) error {
	f.restored = payload
	return nil
}

func startTable(t *testing.T) (*Table, context.Context) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	tbl := NewTable()
	go tbl.Run(ctx)
	t.Cleanup(cancel)
	return tbl, ctx
}

func TestOpenEmitsChangedAdded(t *testing.T) {
	tbl, ctx := startTable(t)
	res := &fakeResource{}
	require.NoError(t, tbl.Open(ctx, "ch1", KindLobbyChat, "lobby.chat", res))

	select {
	case ev := <-tbl.Events():
		require.Equal(t, "changed", ev.Kind)
		require.Equal(t, []string{"ch1"}, ev.Added)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for changed event")
	}
}

func TestOpenDuplicateIDFails(t *testing.T) {
	tbl, ctx := startTable(t)
	require.NoError(t, tbl.Open(ctx, "ch1", KindLobbyChat, "lobby.chat", &fakeResource{}))
	<-tbl.Events()

	err := tbl.Open(ctx, "ch1", KindLobbyChat, "lobby.chat", &fakeResource{})
	require.Error(t, err)
}

func TestPublishOnClosedChannelFails(t *testing.T) {
	tbl, ctx := startTable(t)
	err := tbl.Publish(ctx, "does-not-exist", "hello")
	require.Error(t, err)

	gerr, ok := gmerrors.As(err)
	require.True(t, ok)
	require.Equal(t, gmerrors.KindChannelClosed, gerr.Kind)
}

func TestPublishRoutesToResource(t *testing.T) {
	tbl, ctx := startTable(t)
	res := &fakeResource{}
	require.NoError(t, tbl.Open(ctx, "ch1", KindLobbyChat, "lobby.chat", res))
	<-tbl.Events()

	require.NoError(t, tbl.Publish(ctx, "ch1", "hi"))
	require.Equal(t, []string{"hi"}, res.published)
}

func TestCloseRemovesChannelAndClosesResource(t *testing.T) {
	tbl, ctx := startTable(t)
	res := &fakeResource{}
	require.NoError(t, tbl.Open(ctx, "ch1", KindLobbyChat, "lobby.chat", res))
	<-tbl.Events()

	require.NoError(t, tbl.Close(ctx, "ch1", nil))
	require.True(t, res.closed)

	select {
	case ev := <-tbl.Events():
		require.Equal(t, "changed", ev.Kind)
		require.Equal(t, []string{"ch1"}, ev.Removed)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for changed event")
	}

	err := tbl.Publish(ctx, "ch1", "hi")
	require.Error(t, err)
}

func TestIncomingDeliversOnlyWhileOpen(t *testing.T) {
	tbl, ctx := startTable(t)
	res := &fakeResource{}
	require.NoError(t, tbl.Open(ctx, "ch1", KindLobbyChat, "lobby.chat", res))
	<-tbl.Events()

	tbl.Incoming("ch1", "payload")
	select {
	case ev := <-tbl.Events():
		require.Equal(t, "incoming", ev.Kind)
		require.Equal(t, "ch1", ev.ChannelID)
		require.Equal(t, "payload", ev.Payload)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for incoming event")
	}

	require.NoError(t, tbl.Close(ctx, "ch1", nil))
	<-tbl.Events()

	tbl.Incoming("ch1", "dropped")
	select {
	case ev := <-tbl.Events():
		t.Fatalf("expected no event after channel closed, got %+v", ev)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestEndedRemovesChannelWithCause(t *testing.T) {
	tbl, ctx := startTable(t)
	require.NoError(t, tbl.Open(ctx, "ch1", KindGameInstance, "game.commands", &fakeResource{}))
	<-tbl.Events()

	cause := gmerrors.New(gmerrors.KindEngine, "engine process exited", nil)
	tbl.Ended("ch1", cause)

	select {
	case ev := <-tbl.Events():
		require.Equal(t, "changed", ev.Kind)
		require.Equal(t, []string{"ch1"}, ev.Removed)
		require.Equal(t, cause, ev.Err)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for changed event")
	}
}

func TestListReturnsOpenChannels(t *testing.T) {
	tbl, ctx := startTable(t)
	require.NoError(t, tbl.Open(ctx, "ch1", KindLobbyChat, "lobby.chat", &fakeResource{}))
	<-tbl.Events()
	require.NoError(t, tbl.Open(ctx, "ch2", KindGameInstance, "game.commands", &fakeResource{}))
	<-tbl.Events()

	infos, err := tbl.List(ctx)
	require.NoError(t, err)
	require.Len(t, infos, 2)
}

func TestCheckpointRequiresCheckpointableResource(t *testing.T) {
	tbl, ctx := startTable(t)
	require.NoError(t, tbl.Open(ctx, "ch1", KindGameInstance, "game.commands", &fakeResource{}))
	<-tbl.Events()

	_, err := tbl.Checkpoint(ctx, "ch1")
	require.Error(t, err)
}

func TestCheckpointAndRestoreRoundTrip(t *testing.T) {
	tbl, ctx := startTable(t)
	cp := &fakeCheckpointable{snapshot: []byte("state-1")}
	require.NoError(t, tbl.Open(ctx, "ch1", KindGameInstance, "game.commands", cp))
	<-tbl.Events()

	payload, err := tbl.Checkpoint(ctx, "ch1")
	require.NoError(t, err)
	require.Equal(t, []byte("state-1"), payload)

	require.NoError(t, tbl.Restore(ctx, "ch1", []byte("state-0")))
	require.Equal(t, []byte("state-0"), cp.restored)
}
