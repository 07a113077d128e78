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

// Package replay implements the "replay" channel kind: a read-only channel
// over a recorded demo file, opened by the client itself via channels/open
// rather than by a tool call. Each recorded frame is delivered as a
// channels/incoming notification, one per line of the demo file, as fast as
// the reader can scan them.
package replay

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"sync"

	"github.com/skirmishbridge/gamemanager/internal/channel"
	"github.com/skirmishbridge/gamemanager/internal/gmerrors"
	"github.com/skirmishbridge/gamemanager/internal/mux"
)

// Options is the channels/open options payload for kind "replay".
type Options struct {
	Path string `json:"path"`
}

// reader streams one demo file's recorded frames and implements
// channel.Resource plus channel.IDAssignable: its scanning goroutine starts
// the moment the factory returns it, before OpenChannel has assigned a
// channel id, so anything produced before AssignChannelID is called is
// buffered and flushed in order once the id is known — the same
// before-you-know-the-id problem internal/tools solves for game instances.
type reader struct {
	mx *mux.Multiplexer

	mu        sync.Mutex
	channelID string
	buffered  []string
	ended     bool
	endCause  *gmerrors.Error

	file   *os.File
	cancel context.CancelFunc
}

var _ channel.Resource = (*reader)(nil)
var _ channel.IDAssignable = (*reader)(nil)

// AssignChannelID implements channel.IDAssignable.
func (r *reader) AssignChannelID(id string) {
	r.mu.Lock()
	r.channelID = id
	buffered := r.buffered
	r.buffered = nil
	ended := r.ended
	cause := r.endCause
	r.mu.Unlock()

	for _, payload := range buffered {
		r.mx.Incoming(id, payload)
	}
	if ended {
		r.mx.Ended(id, cause)
	}
}

func (r *reader) deliver(payload string) {
	r.mu.Lock()
	id := r.channelID
	if id == "" {
		r.buffered = append(r.buffered, payload)
		r.mu.Unlock()
		return
	}
	r.mu.Unlock()
	r.mx.Incoming(id, payload)
}

func (r *reader) finish(cause *gmerrors.Error) {
	r.mu.Lock()
	id := r.channelID
	if id == "" {
		r.ended = true
		r.endCause = cause
		r.mu.Unlock()
		return
	}
	r.mu.Unlock()
	r.mx.Ended(id, cause)
}

func (r *reader) run(ctx context.Context) {
	defer r.file.Close()
	scanner := bufio.NewScanner(r.file)
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return
		default:
		}
		r.deliver(scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		r.finish(gmerrors.Wrap(gmerrors.KindInternal, "replay read failed", err))
		return
	}
	r.finish(nil)
}

// Publish implements channel.Resource: replay channels are read-only.
func (r *reader) Publish(ctx context.Context, payload string) error {
	return gmerrors.New(gmerrors.KindValidation, "replay channels are read-only", nil)
}

// Close implements channel.Resource: stops streaming and releases the file.
// Idempotent.
func (r *reader) Close(ctx context.Context) error {
	r.mu.Lock()
	cancel := r.cancel
	r.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	return nil
}

// NewFactory returns a mux.ResourceFactory for channels/open calls naming
// kind "replay". options must unmarshal to Options with a non-empty Path.
func NewFactory(mx *mux.Multiplexer) mux.ResourceFactory {
	return func(ctx context.Context, raw json.RawMessage) (channel.Resource, channel.Kind, error) {
		var opts Options
		if err := json.Unmarshal(raw, &opts); err != nil || opts.Path == "" {
			return nil, "", gmerrors.New(gmerrors.KindValidation, `replay channels/open requires a non-empty "path" option`, nil)
		}
		f, err := os.Open(opts.Path)
		if err != nil {
			return nil, "", gmerrors.Wrap(gmerrors.KindValidation, "failed to open replay file", err)
		}

		runCtx, cancel := context.WithCancel(context.Background())
		r := &reader{mx: mx, file: f, cancel: cancel}
		go r.run(runCtx)
		return r, channel.KindReplay, nil
	}
}
