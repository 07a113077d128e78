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

package lobby

import (
	"context"
	"encoding/json"

	"github.com/skirmishbridge/gamemanager/internal/gmerrors"
)

// readLoop is the lobby connection's single reader task (§5). It owns
// nothing else: every piece of tracked state it mutates (rooms, users,
// battles, auth state) belongs only to this Client, addressed by callers
// through its exported methods while the read loop itself runs unopposed.
func (c *Client) readLoop(ctx context.Context) {
	for {
		c.mu.Lock()
		scanner := c.scanner
		c.mu.Unlock()
		if scanner == nil {
			c.handleDisconnect(nil)
			return
		}
		if !scanner.Scan() {
			c.handleDisconnect(scanner.Err())
			return
		}
		c.handleLine(scanner.Text())

		select {
		case <-ctx.Done():
			c.handleDisconnect(ctx.Err())
			return
		default:
		}
	}
}

func (c *Client) handleDisconnect(cause error) {
	c.mu.Lock()
	if c.state == StateDisconnected {
		c.mu.Unlock()
		return
	}
	c.state = StateDead
	c.mu.Unlock()

	var gerr *gmerrors.Error
	if cause != nil {
		gerr = gmerrors.Wrap(gmerrors.KindTransport, "lobby connection closed", cause)
	} else {
		gerr = gmerrors.New(gmerrors.KindTransport, "lobby connection closed", nil)
	}

	// Closing the individual lobby channel ids is the owner's job (it holds
	// the multiplexer's channel table); onEnded is the signal to do it.
	if c.onEnded != nil {
		c.onEnded(gerr)
	}
}

func (c *Client) handleLine(line string) {
	command, argsJSON := splitCommandLine(line)

	switch command {
	case "LOGINOK":
		c.mu.Lock()
		c.state = StateAuthenticated
		c.mu.Unlock()
		c.deliverAuthResult(nil)

	case "LOGINFAIL":
		var args struct {
			Reason string `json:"reason"`
		}
		_ = json.Unmarshal([]byte(argsJSON), &args)
		c.deliverAuthResult(gmerrors.New(gmerrors.KindAuth, "lobby login failed: "+args.Reason, nil))

	case "JOINED":
		var args struct {
			Channel string `json:"channel"`
			User    string `json:"user"`
		}
		if err := json.Unmarshal([]byte(argsJSON), &args); err == nil {
			c.mu.Lock()
			if room, ok := c.rooms[args.Channel]; ok {
				room.Members[args.User] = struct{}{}
			}
			c.mu.Unlock()
		}
		c.deliver(argsJSON, line)

	case "LEFT":
		var args struct {
			Channel string `json:"channel"`
			User    string `json:"user"`
		}
		if err := json.Unmarshal([]byte(argsJSON), &args); err == nil {
			c.mu.Lock()
			if room, ok := c.rooms[args.Channel]; ok {
				delete(room.Members, args.User)
			}
			c.mu.Unlock()
		}
		c.deliver(argsJSON, line)

	case "SAID":
		var args struct {
			Channel string `json:"channel"`
		}
		_ = json.Unmarshal([]byte(argsJSON), &args)
		c.deliverToRoom(args.Channel, line)

	case "SAIDPRIVATE":
		c.deliver(argsJSON, line)

	case "BATTLE":
		var b Battle
		if err := json.Unmarshal([]byte(argsJSON), &b); err == nil {
			c.mu.Lock()
			c.battles[b.ID] = &b
			c.mu.Unlock()
		}
		c.deliver(argsJSON, line)

	case "BATTLECLOSED":
		var args struct {
			ID int `json:"id"`
		}
		if err := json.Unmarshal([]byte(argsJSON), &args); err == nil {
			c.mu.Lock()
			delete(c.battles, args.ID)
			c.mu.Unlock()
		}
		c.deliver(argsJSON, line)

	case "ADDUSER", "USERSTATUS":
		var u User
		if err := json.Unmarshal([]byte(argsJSON), &u); err == nil {
			c.mu.Lock()
			c.users[u.Name] = &u
			c.mu.Unlock()
		}
		c.deliver(argsJSON, line)

	case "REMOVEUSER":
		var args struct {
			Name string `json:"name"`
		}
		if err := json.Unmarshal([]byte(argsJSON), &args); err == nil {
			c.mu.Lock()
			delete(c.users, args.Name)
			c.mu.Unlock()
		}
		c.deliver(argsJSON, line)

	default:
		// Unrecognized commands are still forwarded verbatim on the global
		// channel: the agent host, not this client, decides what matters.
		c.deliver(argsJSON, line)
	}
}

func (c *Client) deliverAuthResult(err error) {
	select {
	case c.authResult <- err:
	default:
	}
}

// deliverToRoom routes a push event to the channel id owning a joined room,
// falling back to the global channel if the room isn't tracked (e.g. a
// message arriving just before JoinChannelID was called).
func (c *Client) deliverToRoom(room, payload string) {
	c.mu.Lock()
	channelID, ok := c.roomChannelID[room]
	c.mu.Unlock()
	if !ok {
		channelID = GlobalChannelID
	}
	if c.onIncoming != nil {
		c.onIncoming(channelID, payload)
	}
}

func (c *Client) deliver(_ string, payload string) {
	if c.onIncoming != nil {
		c.onIncoming(GlobalChannelID, payload)
	}
}
