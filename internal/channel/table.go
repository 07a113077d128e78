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

package channel

import (
	"context"

	"github.com/skirmishbridge/gamemanager/internal/gmerrors"
)

// Event is something the Table wants the Multiplexer to turn into an
// upstream notification. Only the fields listed under its Kind below are
// populated.
type Event struct {
	Kind string // "changed" | "incoming"

	// "changed"
	Added   []string
	Removed []string
	Err     *gmerrors.Error

	// "incoming"
	ChannelID string
	Payload   string
}

// Info is a read-only snapshot of a channel, safe to hand outside the table.
type Info struct {
	ID         string
	Kind       Kind
	FeatureSet string
	State      State
}

type openReq struct {
	id         string
	kind       Kind
	featureSet string
	resource   Resource
	respCh     chan error
}

type closeReq struct {
	id     string
	cause  *gmerrors.Error
	respCh chan error
}

type publishReq struct {
	id      string
	payload string
	respCh  chan error
}

type incomingMsg struct {
	id      string
	payload string
}

type endedMsg struct {
	id    string
	cause *gmerrors.Error
}

type listReq struct {
	respCh chan []Info
}

type checkpointReq struct {
	id     string
	respCh chan checkpointResult
}

type checkpointResult struct {
	payload []byte
	err     error
}

type restoreReq struct {
	id      string
	payload []byte
	respCh  chan error
}

// Table owns the set of open channels for one session. It must only be
// mutated by the goroutine running Run; every other goroutine talks to it
// through the exported methods, which enqueue a command and block only on
// that command's own response channel (never on the table's internal lock,
// because there isn't one).
type Table struct {
	inbox  chan any
	events chan Event
	done   chan struct{}
}

// NewTable creates a Table. Callers must call Run in its own goroutine
// before using the table, and Stop when the session ends.
func NewTable() *Table {
	return &Table{
		inbox:  make(chan any, 64),
		events: make(chan Event, 64),
		done:   make(chan struct{}),
	}
}

// Events returns the channel of notifications the Multiplexer should drain
// and translate into channels/changed and channels/incoming messages.
func (t *Table) Events() <-chan Event { return t.events }

// Run is the table's single actor loop. Call it in its own goroutine.
func (t *Table) Run(ctx context.Context) {
	channels := make(map[string]*Channel)
	defer close(t.events)

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.done:
			return
		case msg := <-t.inbox:
			t.handle(ctx, channels, msg)
		}
	}
}

// Stop terminates Run. Open channels are left as-is; callers are expected to
// have already closed resources they care about draining cleanly.
func (t *Table) Stop() {
	close(t.done)
}

func (t *Table) handle(ctx context.Context, channels map[string]*Channel, msg any) {
	switch m := msg.(type) {
	case openReq:
		if _, exists := channels[m.id]; exists {
			m.respCh <- gmerrors.New(gmerrors.KindInternal, "channel id already in use", map[string]any{"channel_id": m.id})
			return
		}
		channels[m.id] = &Channel{ID: m.id, Kind: m.kind, FeatureSet: m.featureSet, State: StateOpen, Resource: m.resource}
		m.respCh <- nil
		t.emit(Event{Kind: "changed", Added: []string{m.id}})

	case closeReq:
		ch, ok := channels[m.id]
		if !ok || ch.State == StateClosed {
			m.respCh <- gmerrors.New(gmerrors.KindChannelClosed, "channel is not open", map[string]any{"channel_id": m.id})
			return
		}
		ch.State = StateClosing
		_ = ch.Resource.Close(ctx)
		ch.State = StateClosed
		delete(channels, m.id)
		m.respCh <- nil
		t.emit(Event{Kind: "changed", Removed: []string{m.id}, Err: m.cause})

	case publishReq:
		ch, ok := channels[m.id]
		if !ok || ch.State != StateOpen {
			m.respCh <- gmerrors.New(gmerrors.KindChannelClosed, "channel is not open", map[string]any{"channel_id": m.id})
			return
		}
		m.respCh <- ch.Resource.Publish(ctx, m.payload)

	case incomingMsg:
		if ch, ok := channels[m.id]; ok && ch.State == StateOpen {
			t.emit(Event{Kind: "incoming", ChannelID: m.id, Payload: m.payload})
		}
		// A message from a resource whose channel already closed is dropped:
		// there is no one left to deliver it to.

	case endedMsg:
		ch, ok := channels[m.id]
		if !ok || ch.State == StateClosed {
			return
		}
		ch.State = StateClosed
		delete(channels, m.id)
		t.emit(Event{Kind: "changed", Removed: []string{m.id}, Err: m.cause})

	case listReq:
		var out []Info
		for _, ch := range channels {
			out = append(out, Info{ID: ch.ID, Kind: ch.Kind, FeatureSet: ch.FeatureSet, State: ch.State})
		}
		m.respCh <- out

	case checkpointReq:
		ch, ok := channels[m.id]
		if !ok || ch.State != StateOpen {
			m.respCh <- checkpointResult{err: gmerrors.New(gmerrors.KindChannelClosed, "channel is not open", map[string]any{"channel_id": m.id})}
			return
		}
		cp, ok := ch.Resource.(Checkpointable)
		if !ok {
			m.respCh <- checkpointResult{err: gmerrors.New(gmerrors.KindValidation, "channel's feature set does not support rollback", map[string]any{"channel_id": m.id})}
			return
		}
		payload, err := cp.Checkpoint(ctx)
		m.respCh <- checkpointResult{payload: payload, err: err}

	case restoreReq:
		ch, ok := channels[m.id]
		if !ok || ch.State != StateOpen {
			m.respCh <- gmerrors.New(gmerrors.KindChannelClosed, "channel is not open", map[string]any{"channel_id": m.id})
			return
		}
		cp, ok := ch.Resource.(Checkpointable)
		if !ok {
			m.respCh <- gmerrors.New(gmerrors.KindValidation, "channel's feature set does not support rollback", map[string]any{"channel_id": m.id})
			return
		}
		m.respCh <- cp.Restore(ctx, m.payload)
	}
}

func (t *Table) emit(e Event) {
	select {
	case t.events <- e:
	default:
		// The events channel is sized generously for normal traffic; if a
		// consumer has stopped draining it, dropping rather than blocking
		// keeps the single-actor loop from stalling on a dead session.
	}
}

// Open registers a new channel and its owning resource, returning the
// channels/changed(added) notification as a side effect on the Events stream.
func (t *Table) Open(ctx context.Context, id string, kind Kind, featureSet string, resource Resource) error {
	respCh := make(chan error, 1)
	select {
	case t.inbox <- openReq{id: id, kind: kind, featureSet: featureSet, resource: resource, respCh: respCh}:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-respCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close tears down a channel's resource and removes it from the table.
func (t *Table) Close(ctx context.Context, id string, cause *gmerrors.Error) error {
	respCh := make(chan error, 1)
	select {
	case t.inbox <- closeReq{id: id, cause: cause, respCh: respCh}:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-respCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Publish routes an outgoing payload to the channel's owning resource.
func (t *Table) Publish(ctx context.Context, id string, payload string) error {
	respCh := make(chan error, 1)
	select {
	case t.inbox <- publishReq{id: id, payload: payload, respCh: respCh}:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-respCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Incoming is how a resource (lobby client, Bridge IPC reader, replay
// reader) hands the table a payload to forward as channels/incoming. It
// never blocks on a response: the caller is usually itself a single-reader
// goroutine that must not stall on table contention.
func (t *Table) Incoming(id string, payload string) {
	select {
	case t.inbox <- incomingMsg{id: id, payload: payload}:
	case <-t.done:
	}
}

// Ended reports that a resource ended on its own (engine crash, socket
// drop) and the table should remove the channel and emit the error payload.
func (t *Table) Ended(id string, cause *gmerrors.Error) {
	select {
	case t.inbox <- endedMsg{id: id, cause: cause}:
	case <-t.done:
	}
}

// List returns a snapshot of every currently open channel.
func (t *Table) List(ctx context.Context) ([]Info, error) {
	respCh := make(chan []Info, 1)
	select {
	case t.inbox <- listReq{respCh: respCh}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case infos := <-respCh:
		return infos, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Checkpoint asks a rollback-enabled channel's resource for an opaque
// checkpoint payload.
func (t *Table) Checkpoint(ctx context.Context, id string) ([]byte, error) {
	respCh := make(chan checkpointResult, 1)
	select {
	case t.inbox <- checkpointReq{id: id, respCh: respCh}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case res := <-respCh:
		return res.payload, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Restore asks a rollback-enabled channel's resource to restore an opaque
// checkpoint payload, preserving the channel id (§9 design decision).
func (t *Table) Restore(ctx context.Context, id string, payload []byte) error {
	respCh := make(chan error, 1)
	select {
	case t.inbox <- restoreReq{id: id, payload: payload, respCh: respCh}:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-respCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
