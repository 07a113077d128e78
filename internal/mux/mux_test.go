package mux

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/skirmishbridge/gamemanager/internal/channel"
	"github.com/skirmishbridge/gamemanager/internal/featureset"
	"github.com/skirmishbridge/gamemanager/internal/session"
	"github.com/skirmishbridge/gamemanager/internal/toolset"
)

// pipeTransport is an in-memory Transport for exercising the Multiplexer
// without a real socket or stdio pair.
type pipeTransport struct {
	in      chan []byte
	out     chan []byte
	closeCh chan struct{}
}

func newPipeTransport() *pipeTransport {
	return &pipeTransport{in: make(chan []byte, 16), out: make(chan []byte, 16), closeCh: make(chan struct{})}
}

func (p *pipeTransport) ReadLine() ([]byte, error) {
	select {
	case line := <-p.in:
		return line, nil
	case <-p.closeCh:
		return nil, ErrTransportClosed
	}
}

func (p *pipeTransport) WriteLine(line []byte) error {
	cp := make([]byte, len(line))
	copy(cp, line)
	select {
	case p.out <- cp:
	default:
	}
	return nil
}

func (p *pipeTransport) Close() error {
	close(p.closeCh)
	return nil
}

func (p *pipeTransport) send(v any) {
	b, _ := json.Marshal(v)
	p.in <- b
}

func (p *pipeTransport) recv(t *testing.T) Response {
	t.Helper()
	select {
	case line := <-p.out:
		var resp Response
		require.NoError(t, json.Unmarshal(line, &resp))
		return resp
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for a response")
		return Response{}
	}
}

func newTestMux() (*Multiplexer, *pipeTransport) {
	pt := newPipeTransport()
	sess := session.New(4)
	tools := toolset.NewRegistry()
	m := New(pt, Config{Session: sess, Tools: tools, ToolDeadline: time.Second})
	return m, pt
}

func TestInitializeNegotiatesFeatureSets(t *testing.T) {
	m, pt := newTestMux()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)

	params, _ := json.Marshal(InitializeParams{ProtocolVersion: "1.0", FeatureSets: []string{featureset.Lobby, featureset.Game}})
	pt.send(Request{JSONRPC: "2.0", ID: json.RawMessage(`1`), Method: "initialize", Params: params})

	resp := pt.recv(t)
	require.Nil(t, resp.Error)

	b, _ := json.Marshal(resp.Result)
	var result InitializeResult
	require.NoError(t, json.Unmarshal(b, &result))
	require.ElementsMatch(t, []string{featureset.Lobby, featureset.Game}, result.EnabledFeatureSets)
}

func TestUnknownMethodReturnsProtocolError(t *testing.T) {
	m, pt := newTestMux()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)

	pt.send(Request{JSONRPC: "2.0", ID: json.RawMessage(`1`), Method: "bogus/method"})
	resp := pt.recv(t)
	require.NotNil(t, resp.Error)
	require.Equal(t, "protocol", string(resp.Error.Kind))
}

func TestToolsCallRunsRegisteredHandler(t *testing.T) {
	pt := newPipeTransport()
	sess := session.New(4)
	tools := toolset.NewRegistry()
	require.NoError(t, tools.Register(&toolset.Tool{
		Name:       "ping",
		FeatureSet: featureset.Lobby,
		Handler: func(ctx context.Context, raw json.RawMessage) (*toolset.Result, error) {
			return toolset.Text("pong"), nil
		},
	}))
	m := New(pt, Config{Session: sess, Tools: tools, ToolDeadline: time.Second})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)

	sess.Negotiate([]string{featureset.Lobby})

	args, _ := json.Marshal(CallToolParams{Name: "ping"})
	pt.send(Request{JSONRPC: "2.0", ID: json.RawMessage(`2`), Method: "tools/call", Params: args})

	resp := pt.recv(t)
	require.Nil(t, resp.Error)

	b, _ := json.Marshal(resp.Result)
	var result CallToolResult
	require.NoError(t, json.Unmarshal(b, &result))
	require.False(t, result.IsError)
	require.Equal(t, "pong", result.Content[0].Text)
}

type fakeResource struct{ closed bool }

func (f *fakeResource) Publish(ctx context.Context, payload string) error { return nil }
func (f *fakeResource) Close(ctx context.Context) error                   { f.closed = true; return nil }

func TestChannelsOpenPublishCloseEmitsNotifications(t *testing.T) {
	m, pt := newTestMux()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)

	m.sess.Negotiate([]string{featureset.Lobby, featureset.Game})
	m.RegisterFactory("replay", func(ctx context.Context, opts json.RawMessage) (channel.Resource, channel.Kind, error) {
		return &fakeResource{}, channel.KindReplay, nil
	})

	options, _ := json.Marshal(map[string]string{"path": "/tmp/demo.sdfz"})
	pt.send(Request{JSONRPC: "2.0", ID: json.RawMessage(`3`), Method: "channels/open", Params: mustMarshal(OpenChannelParams{Kind: "replay", FeatureSet: featureset.Lobby, Options: options})})

	// one of the next two frames is the changed notification, the other the response
	first := pt.recv(t)
	second := pt.recv(t)

	var notif, respMsg Response
	if first.Method == "channels/changed" {
		notif, respMsg = first, second
	} else {
		notif, respMsg = second, first
	}
	require.Equal(t, "channels/changed", notif.Method)
	require.Nil(t, respMsg.Error)

	b, _ := json.Marshal(respMsg.Result)
	var opened OpenChannelResult
	require.NoError(t, json.Unmarshal(b, &opened))
	require.NotEmpty(t, opened.ChannelID)

	pt.send(Request{JSONRPC: "2.0", ID: json.RawMessage(`4`), Method: "channels/close", Params: mustMarshal(ChannelIDParams{ChannelID: opened.ChannelID})})
	closeResp := pt.recv(t)
	require.Nil(t, closeResp.Error)
}

func mustMarshal(v any) json.RawMessage {
	b, _ := json.Marshal(v)
	return b
}
