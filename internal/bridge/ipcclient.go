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

package bridge

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"sync"

	"github.com/skirmishbridge/gamemanager/internal/gmerrors"
)

// IPCClient is the Bridge-owned IPC thread (§4.4): it owns the socket,
// handshakes with the Router, then runs a single reader and a single
// writer loop, feeding the sim thread's command queue and draining its
// event queue. The socket never blocks the sim thread: reads decode
// straight into CommandQueue.Push (rejecting on backpressure), and writes
// happen from a dedicated goroutine pulling off EventQueue.Drain.
type IPCClient struct {
	conn     net.Conn
	commands *CommandQueue
	events   *EventQueue

	writeMu sync.Mutex
}

// Dial connects to the Router's socket, performs the hello/welcome
// handshake, and returns a ready IPCClient.
func Dial(ctx context.Context, network, address, token, version string) (*IPCClient, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, network, address)
	if err != nil {
		return nil, gmerrors.Wrap(gmerrors.KindBridge, "failed to dial IPC router", err)
	}

	hello, err := json.Marshal(map[string]string{"type": "hello", "token": token, "version": version})
	if err != nil {
		_ = conn.Close()
		return nil, gmerrors.Wrap(gmerrors.KindInternal, "failed to marshal hello frame", err)
	}
	if _, err := conn.Write(append(hello, '\n')); err != nil {
		_ = conn.Close()
		return nil, gmerrors.Wrap(gmerrors.KindBridge, "failed to send hello frame", err)
	}

	reader := bufio.NewReader(conn)
	line, err := reader.ReadBytes('\n')
	if err != nil {
		_ = conn.Close()
		return nil, gmerrors.Wrap(gmerrors.KindBridge, "failed to read welcome frame", err)
	}
	var w struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(line, &w); err != nil || w.Type != "welcome" {
		_ = conn.Close()
		return nil, gmerrors.New(gmerrors.KindBridge, "IPC router rejected handshake", nil)
	}

	return &IPCClient{conn: conn}, nil
}

// Attach binds the command/event queues the sim thread drains and feeds.
// Separated from Dial so the handshake can complete before the sim thread
// (which is driven by the engine, not by this package) exists.
func (c *IPCClient) Attach(commands *CommandQueue, events *EventQueue) {
	c.commands = commands
	c.events = events
}

// RunReader decodes inbound command frames until the socket closes or ctx
// is done, pushing each onto the command queue. A full queue yields a
// command_error("backpressure") event rather than blocking the socket.
func (c *IPCClient) RunReader(ctx context.Context) error {
	dec := json.NewDecoder(c.conn)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		var cmd Command
		if err := dec.Decode(&cmd); err != nil {
			return gmerrors.Wrap(gmerrors.KindBridge, "IPC read failed", err)
		}
		if err := c.commands.Push(cmd); err != nil {
			c.events.Push(Event{Type: EventCommandError, Fields: map[string]any{
				"command": string(cmd.Type),
				"reason":  "backpressure",
			}})
		}
	}
}

// RunWriter drains the event queue and writes each event as a JSON line
// until the queue is closed (the release path) or ctx is done.
func (c *IPCClient) RunWriter(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		events := c.events.Drain()
		if events == nil {
			return nil // queue closed with nothing left
		}
		for _, e := range events {
			if err := c.writeEvent(e); err != nil {
				return err
			}
		}
	}
}

func (c *IPCClient) writeEvent(e Event) error {
	b, err := json.Marshal(e)
	if err != nil {
		return gmerrors.Wrap(gmerrors.KindInternal, "failed to marshal event", err)
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_, err = c.conn.Write(append(b, '\n'))
	if err != nil {
		return gmerrors.Wrap(gmerrors.KindBridge, "IPC write failed", err)
	}
	return nil
}

// Close closes the underlying socket.
func (c *IPCClient) Close() error {
	return c.conn.Close()
}
