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

// Package mux implements the Channel & Feature-Set Multiplexer: the
// upstream line-delimited JSON-RPC-style protocol, session lifecycle, tool
// dispatch, and the channel-extension and checkpoint-extension methods
// (§4.1). The request/response/error envelope follows the shape of
// pkg/transport's JSONRPCRequest/JSONRPCResponse/RPCError, generalized from
// an HTTP+protobuf transport to a line-delimited stdio/TCP one.
package mux

import (
	"encoding/json"

	"github.com/skirmishbridge/gamemanager/internal/gmerrors"
)

// Request is one upstream line: a request if ID is set, a notification
// otherwise (the upstream client never sends notifications in this
// protocol, but the shape is reused for symmetry with Response).
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Response answers a Request by ID, or carries a server-initiated
// notification when ID is empty and Method is set.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Result  any             `json:"result,omitempty"`
	Params  any             `json:"params,omitempty"`
	Error   *gmerrors.Error `json:"error,omitempty"`
}

const protocolVersion = "1.0"

// InitializeParams is tools/list's prerequisite handshake: the client lists
// the feature sets it understands and the server enables the subset it
// also declares.
type InitializeParams struct {
	ProtocolVersion string   `json:"protocolVersion"`
	FeatureSets     []string `json:"featureSets"`
}

// InitializeResult echoes the negotiated version and feature sets.
type InitializeResult struct {
	ProtocolVersion    string   `json:"protocolVersion"`
	EnabledFeatureSets []string `json:"enabledFeatureSets"`
	SessionID          string   `json:"sessionId"`
}

// ToolDescriptor is one entry in tools/list's result.
type ToolDescriptor struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	FeatureSet  string         `json:"featureSet"`
	InputSchema map[string]any `json:"inputSchema"`
}

// ListToolsResult is tools/list's result.
type ListToolsResult struct {
	Tools []ToolDescriptor `json:"tools"`
}

// CallToolParams is tools/call's params.
type CallToolParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// CallToolResult is tools/call's result, mirroring toolset.Result's
// { content: [...], isError: bool } envelope.
type CallToolResult struct {
	Content []ContentItem `json:"content"`
	IsError bool          `json:"isError"`
}

// ContentItem is one piece of a CallToolResult's content array.
type ContentItem struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// OpenChannelParams is channels/open's params.
type OpenChannelParams struct {
	Kind       string          `json:"kind"`
	FeatureSet string          `json:"featureSet"`
	Options    json.RawMessage `json:"options,omitempty"`
}

// OpenChannelResult is channels/open's result.
type OpenChannelResult struct {
	ChannelID string `json:"channelId"`
}

// ChannelIDParams is the shared shape of channels/close and
// channels/publish's channel-id-bearing params.
type ChannelIDParams struct {
	ChannelID string `json:"channelId"`
	Payload   string `json:"payload,omitempty"`
}

// ChannelsChangedParams is the channels/changed notification's params.
type ChannelsChangedParams struct {
	Added   []string        `json:"added,omitempty"`
	Removed []string        `json:"removed,omitempty"`
	Error   *gmerrors.Error `json:"error,omitempty"`
}

// ChannelsIncomingParams is the channels/incoming notification's params.
type ChannelsIncomingParams struct {
	ChannelID string `json:"channelId"`
	Payload   string `json:"payload"`
}

// CheckpointParams is state/checkpoint's params.
type CheckpointParams struct {
	ChannelID string `json:"channelId"`
}

// CheckpointResult is state/checkpoint's result.
type CheckpointResult struct {
	CheckpointID string `json:"checkpointId"`
	ParentID     string `json:"parentId,omitempty"`
}

// RollbackParams is state/rollback's params.
type RollbackParams struct {
	ChannelID    string `json:"channelId"`
	CheckpointID string `json:"checkpointId"`
}

// RollbackResult is state/rollback's result. The channel id is unchanged
// from the one rolled back (§9 design decision: rollback preserves id).
type RollbackResult struct {
	ChannelID string `json:"channelId"`
}
