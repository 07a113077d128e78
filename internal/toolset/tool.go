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

// Package toolset defines the Tool Surface: typed tool handlers grouped by
// feature set, their JSON-schema input shape, and the normalized
// {content, isError} result envelope returned by tools/call.
package toolset

import (
	"context"
	"encoding/json"
	"fmt"
)

// ContentItem is one element of a tool result's content array. GameManager
// only ever produces text content; the shape matches the envelope mcp-go's
// mcp.TextContent uses so a client speaking either protocol parses it the
// same way.
type ContentItem struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Result is the normalized tool output envelope from §4.1:
// { content: [...], isError: bool }.
type Result struct {
	Content []ContentItem `json:"content"`
	IsError bool          `json:"isError"`
}

// Text builds a successful single-text-block Result.
func Text(s string) *Result {
	return &Result{Content: []ContentItem{{Type: "text", Text: s}}}
}

// TextJSON builds a successful Result whose single text block is v marshaled
// to JSON, the common case for tools returning structured data.
func TextJSON(v any) *Result {
	b, err := json.Marshal(v)
	if err != nil {
		return Error(fmt.Sprintf("marshal result: %v", err))
	}
	return Text(string(b))
}

// Error builds a failed Result carrying a human-readable message.
func Error(message string) *Result {
	return &Result{Content: []ContentItem{{Type: "text", Text: message}}, IsError: true}
}

// Handler executes a tool call. raw is the tools/call "arguments" object,
// still encoded as JSON; handlers decode it themselves (typically via
// DecodeArgs) so each handler owns its own params type.
type Handler func(ctx context.Context, raw json.RawMessage) (*Result, error)

// Tool is one entry in the registry: a name, schema, owning feature set and
// handler.
type Tool struct {
	Name        string
	Description string
	FeatureSet  string
	Schema      map[string]any
	Handler     Handler
}
