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

package mux

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/skirmishbridge/gamemanager/internal/channel"
	"github.com/skirmishbridge/gamemanager/internal/checkpoint"
	"github.com/skirmishbridge/gamemanager/internal/gmerrors"
	"github.com/skirmishbridge/gamemanager/internal/obslog"
	"github.com/skirmishbridge/gamemanager/internal/session"
	"github.com/skirmishbridge/gamemanager/internal/toolset"
)

// ResourceFactory builds the Resource behind a client-initiated
// channels/open call of a given kind (e.g. "replay"). Factories for kinds
// that require multi-step setup (starting an engine, joining the lobby)
// are not registered here; those channels are opened internally by a tool
// handler via OpenChannel instead.
type ResourceFactory func(ctx context.Context, options json.RawMessage) (channel.Resource, channel.Kind, error)

// Multiplexer is the session-scoped upstream protocol engine: it owns one
// Transport, dispatches requests to the Session's tool registry and
// channel table, and pumps the channel table's Events into
// channels/changed and channels/incoming notifications.
type Multiplexer struct {
	transport Transport
	sess      *session.Session
	tools     *toolset.Registry
	factories map[string]ResourceFactory
	cps       *checkpoint.Tree
	log       *slog.Logger
	metrics   *obslog.Metrics

	toolDeadline time.Duration

	writeMu sync.Mutex
}

// Config collects what a Multiplexer needs beyond the transport.
type Config struct {
	Session      *session.Session
	Tools        *toolset.Registry
	ToolDeadline time.Duration
	Logger       *slog.Logger

	// Metrics, if set, is updated with open-channel and tool-call counts.
	// Nil disables metrics collection.
	Metrics *obslog.Metrics
}

// New creates a Multiplexer bound to one upstream Transport and Session.
func New(transport Transport, cfg Config) *Multiplexer {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	deadline := cfg.ToolDeadline
	if deadline <= 0 {
		deadline = 30 * time.Second
	}
	return &Multiplexer{
		transport:    transport,
		sess:         cfg.Session,
		tools:        cfg.Tools,
		factories:    make(map[string]ResourceFactory),
		cps:          checkpoint.NewTree(nil),
		log:          logger,
		metrics:      cfg.Metrics,
		toolDeadline: deadline,
	}
}

// RegisterFactory registers a ResourceFactory for a client-openable channel
// kind such as "replay".
func (m *Multiplexer) RegisterFactory(kind string, factory ResourceFactory) {
	m.factories[kind] = factory
}

// ChannelsAllowed reports whether the session negotiated the channels
// extension at all, for tool handlers that own a channel (lobby_connect,
// lobby_join_channel, lobby_start_game, channel_open) and must decline
// rather than open one under a lobby-only, channels-less negotiation
// (§4.1's legacy-client scenario).
func (m *Multiplexer) ChannelsAllowed() bool {
	return m.sess.Features.ChannelsAllowed()
}

// OpenChannel is how a tool handler (lobby_start_game, channel_open, ...)
// registers a channel and its owning resource without going through the
// channels/open RPC. It assigns a stable channel id and returns it,
// emitting channels/changed(added) the same way a client-initiated open
// would.
func (m *Multiplexer) OpenChannel(ctx context.Context, kind channel.Kind, featureSet string, resource channel.Resource) (string, error) {
	id := uuid.NewString()
	if err := m.sess.Channels.Open(ctx, id, kind, featureSet, resource); err != nil {
		return "", err
	}
	return id, nil
}

// Incoming forwards a payload from any resource (lobby client, Bridge IPC
// reader, replay reader) into the channel table for delivery as
// channels/incoming.
func (m *Multiplexer) Incoming(channelID, payload string) {
	m.sess.Channels.Incoming(channelID, payload)
}

// Ended reports that channelID's resource ended on its own.
func (m *Multiplexer) Ended(channelID string, cause *gmerrors.Error) {
	m.sess.Channels.Ended(channelID, cause)
}

// ListChannels returns a snapshot of the open channel table, for the
// channel_list tool (§4.5).
func (m *Multiplexer) ListChannels(ctx context.Context) ([]channel.Info, error) {
	return m.sess.Channels.List(ctx)
}

// CloseChannel closes an open channel by id, for the channel_close tool.
func (m *Multiplexer) CloseChannel(ctx context.Context, channelID string) error {
	return m.sess.Channels.Close(ctx, channelID, nil)
}

// Run drives the Multiplexer until the transport closes, a shutdown request
// has been answered, or ctx is done: one goroutine pumps channel Events into
// notifications, the calling goroutine reads and dispatches requests. Run
// returns when both finish, with nil after a shutdown request.
func (m *Multiplexer) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go m.sess.Run(runCtx)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		m.pumpEvents(runCtx)
	}()

	err := m.readLoop(runCtx)
	cancel()
	m.sess.CancelAll()
	wg.Wait()
	return err
}

func (m *Multiplexer) readLoop(ctx context.Context) error {
	for {
		line, err := m.transport.ReadLine()
		if err != nil {
			return err
		}
		if len(line) == 0 {
			continue
		}

		var req Request
		if err := json.Unmarshal(line, &req); err != nil {
			m.writeResponse(Response{Error: gmerrors.New(gmerrors.KindProtocol, "malformed upstream frame", map[string]any{"error": err.Error()})})
			continue
		}

		// tools/call runs as a spawned child task so it can suspend on I/O
		// without blocking the reader from picking up the next frame (§6's
		// "Handlers must never block the session reader").
		if req.Method == "tools/call" {
			go m.handleToolCall(ctx, req)
			continue
		}

		m.dispatch(ctx, req)
		// A graceful shutdown ends the session here rather than surfacing the
		// read error that closing the transport produces.
		if req.Method == "shutdown" {
			return nil
		}
	}
}

func (m *Multiplexer) dispatch(ctx context.Context, req Request) {
	switch req.Method {
	case "initialize":
		m.handleInitialize(req)
	case "tools/list":
		m.handleToolsList(req)
	case "channels/open":
		m.handleChannelsOpen(ctx, req)
	case "channels/close":
		m.handleChannelsClose(ctx, req)
	case "channels/publish":
		m.handleChannelsPublish(ctx, req)
	case "state/checkpoint":
		m.handleCheckpoint(ctx, req)
	case "state/rollback":
		m.handleRollback(ctx, req)
	case "shutdown":
		m.handleShutdown(req)
	default:
		m.respondError(req.ID, gmerrors.New(gmerrors.KindProtocol, fmt.Sprintf("unknown method %q", req.Method), nil))
	}
}

func (m *Multiplexer) pumpEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-m.sess.Channels.Events():
			if !ok {
				return
			}
			switch ev.Kind {
			case "changed":
				if m.metrics != nil {
					m.metrics.OpenChannels.Add(float64(len(ev.Added) - len(ev.Removed)))
				}
				m.writeResponse(Response{Method: "channels/changed", Params: ChannelsChangedParams{Added: ev.Added, Removed: ev.Removed, Error: ev.Err}})
			case "incoming":
				m.writeResponse(Response{Method: "channels/incoming", Params: ChannelsIncomingParams{ChannelID: ev.ChannelID, Payload: ev.Payload}})
			}
		}
	}
}

func (m *Multiplexer) handleInitialize(req Request) {
	var params InitializeParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			m.respondError(req.ID, gmerrors.New(gmerrors.KindValidation, "invalid initialize params", nil))
			return
		}
	}
	enabled := m.sess.Negotiate(params.FeatureSets)
	m.sess.ProtocolVersion = protocolVersion
	m.respond(req.ID, InitializeResult{ProtocolVersion: protocolVersion, EnabledFeatureSets: enabled, SessionID: m.sess.ID})
}

func (m *Multiplexer) handleToolsList(req Request) {
	tools := m.tools.ListFor(m.sess.Features.Enabled)
	out := make([]ToolDescriptor, 0, len(tools))
	for _, t := range tools {
		out = append(out, ToolDescriptor{Name: t.Name, Description: t.Description, FeatureSet: t.FeatureSet, InputSchema: t.Schema})
	}
	m.respond(req.ID, ListToolsResult{Tools: out})
}

func (m *Multiplexer) handleToolCall(ctx context.Context, req Request) {
	var params CallToolParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		m.respondError(req.ID, gmerrors.New(gmerrors.KindValidation, "invalid tools/call params", nil))
		return
	}

	tool, ok := m.tools.Get(params.Name)
	if !ok || !m.sess.Features.Enabled(tool.FeatureSet) {
		m.respondError(req.ID, gmerrors.New(gmerrors.KindValidation, fmt.Sprintf("unknown tool %q", params.Name), nil))
		return
	}

	callCtx, done := m.sess.Track(ctx, string(req.ID), m.toolDeadline)
	if m.metrics != nil {
		m.metrics.PendingRequests.Inc()
	}
	defer func() {
		done()
		if m.metrics != nil {
			m.metrics.PendingRequests.Dec()
		}
	}()

	var result *toolset.Result
	err := m.sess.Spawn(callCtx, func(taskCtx context.Context) error {
		r, handlerErr := tool.Handler(taskCtx, params.Arguments)
		result = r
		return handlerErr
	})
	if err != nil {
		if m.metrics != nil {
			m.metrics.ToolCallsTotal.WithLabelValues(params.Name, "error").Inc()
		}
		m.respondError(req.ID, toWireError(err))
		return
	}

	outcome := "ok"
	if result.IsError {
		outcome = "error"
	}
	if m.metrics != nil {
		m.metrics.ToolCallsTotal.WithLabelValues(params.Name, outcome).Inc()
	}

	content := make([]ContentItem, 0, len(result.Content))
	for _, c := range result.Content {
		content = append(content, ContentItem{Type: c.Type, Text: c.Text})
	}
	m.respond(req.ID, CallToolResult{Content: content, IsError: result.IsError})
}

func (m *Multiplexer) handleChannelsOpen(ctx context.Context, req Request) {
	var params OpenChannelParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		m.respondError(req.ID, gmerrors.New(gmerrors.KindValidation, "invalid channels/open params", nil))
		return
	}
	if !m.sess.Features.ChannelsAllowed() {
		m.respondError(req.ID, gmerrors.New(gmerrors.KindValidation, "session did not negotiate the channels extension", nil))
		return
	}
	factory, ok := m.factories[params.Kind]
	if !ok {
		m.respondError(req.ID, gmerrors.New(gmerrors.KindValidation, fmt.Sprintf("no channel factory for kind %q", params.Kind), nil))
		return
	}

	resource, kind, err := factory(ctx, params.Options)
	if err != nil {
		m.respondError(req.ID, toWireError(err))
		return
	}

	id := uuid.NewString()
	if err := m.sess.Channels.Open(ctx, id, kind, params.FeatureSet, resource); err != nil {
		m.respondError(req.ID, toWireError(err))
		return
	}
	if assignable, ok := resource.(channel.IDAssignable); ok {
		assignable.AssignChannelID(id)
	}
	m.respond(req.ID, OpenChannelResult{ChannelID: id})
}

func (m *Multiplexer) handleChannelsClose(ctx context.Context, req Request) {
	var params ChannelIDParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		m.respondError(req.ID, gmerrors.New(gmerrors.KindValidation, "invalid channels/close params", nil))
		return
	}
	if err := m.sess.Channels.Close(ctx, params.ChannelID, nil); err != nil {
		m.respondError(req.ID, toWireError(err))
		return
	}
	m.respond(req.ID, struct{}{})
}

func (m *Multiplexer) handleChannelsPublish(ctx context.Context, req Request) {
	var params ChannelIDParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		m.respondError(req.ID, gmerrors.New(gmerrors.KindValidation, "invalid channels/publish params", nil))
		return
	}
	if err := m.sess.Channels.Publish(ctx, params.ChannelID, params.Payload); err != nil {
		m.respondError(req.ID, toWireError(err))
		return
	}
	m.respond(req.ID, struct{}{})
}

func (m *Multiplexer) handleCheckpoint(ctx context.Context, req Request) {
	var params CheckpointParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		m.respondError(req.ID, gmerrors.New(gmerrors.KindValidation, "invalid state/checkpoint params", nil))
		return
	}

	fs, channelOK := m.channelFeatureSet(ctx, params.ChannelID)
	fsDef, declaredOK := m.sess.Features.Get(fs)
	if !channelOK || !declaredOK || !fsDef.Rollback {
		m.respondError(req.ID, gmerrors.New(gmerrors.KindValidation, "channel's feature set does not support rollback", nil))
		return
	}

	payload, err := m.sess.Channels.Checkpoint(ctx, params.ChannelID)
	if err != nil {
		m.respondError(req.ID, toWireError(err))
		return
	}

	rec := m.cps.Create(params.ChannelID, fs, payload)
	m.respond(req.ID, CheckpointResult{CheckpointID: rec.ID, ParentID: rec.ParentID})
}

func (m *Multiplexer) handleRollback(ctx context.Context, req Request) {
	var params RollbackParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		m.respondError(req.ID, gmerrors.New(gmerrors.KindValidation, "invalid state/rollback params", nil))
		return
	}

	rec, err := m.cps.Get(params.CheckpointID)
	if err != nil {
		m.respondError(req.ID, toWireError(err))
		return
	}
	if rec.ChannelID != params.ChannelID {
		m.respondError(req.ID, gmerrors.New(gmerrors.KindValidation, "checkpoint does not belong to this channel", nil))
		return
	}

	if err := m.sess.Channels.Restore(ctx, params.ChannelID, rec.Payload); err != nil {
		m.respondError(req.ID, toWireError(err))
		return
	}
	m.cps.MarkCurrent(params.ChannelID, rec.ID)

	// The channel id is preserved across rollback (§9 decision c), so the
	// agent host sees a continuous channel even when rollback tore down
	// and restarted an engine process underneath it.
	m.respond(req.ID, RollbackResult{ChannelID: params.ChannelID})
}

func (m *Multiplexer) handleShutdown(req Request) {
	m.respond(req.ID, struct{}{})
	_ = m.transport.Close()
}

// channelFeatureSet looks up which feature set owns an open channel, by
// asking the table for its snapshot. Returns ok=false if the channel isn't
// currently open.
func (m *Multiplexer) channelFeatureSet(ctx context.Context, channelID string) (string, bool) {
	infos, err := m.sess.Channels.List(ctx)
	if err != nil {
		return "", false
	}
	for _, info := range infos {
		if info.ID == channelID {
			return info.FeatureSet, true
		}
	}
	return "", false
}

func (m *Multiplexer) respond(id json.RawMessage, result any) {
	m.writeResponse(Response{ID: id, Result: result})
}

func (m *Multiplexer) respondError(id json.RawMessage, err *gmerrors.Error) {
	m.writeResponse(Response{ID: id, Error: err})
}

func (m *Multiplexer) writeResponse(resp Response) {
	resp.JSONRPC = "2.0"
	line, err := json.Marshal(resp)
	if err != nil {
		m.log.Error("failed to marshal response", "error", err)
		return
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	if err := m.transport.WriteLine(line); err != nil {
		m.log.Error("failed to write upstream frame", "error", err)
	}
}

func toWireError(err error) *gmerrors.Error {
	if ge, ok := gmerrors.As(err); ok {
		return ge
	}
	return gmerrors.Wrap(gmerrors.KindInternal, "unexpected error", err)
}
