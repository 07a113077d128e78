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

	"github.com/skirmishbridge/gamemanager/internal/gmerrors"
)

// Login authenticates with a digested password. On success the server
// greeting transitions Greeted → Authenticated; on failure the state
// remains Greeted and the caller's tool call surfaces an auth error. Login
// only sends the command; call AwaitLogin to block for the server's reply.
func (c *Client) Login(username, password string) error {
	if c.State() != StateGreeted && c.State() != StateAuthenticated {
		return gmerrors.New(gmerrors.KindAuth, "lobby client must be connected before logging in", nil)
	}
	c.mu.Lock()
	c.username = username
	// Drain any stale result from a previous login attempt before sending.
	select {
	case <-c.authResult:
	default:
	}
	c.mu.Unlock()
	return c.send("LOGIN", map[string]any{
		"username":  username,
		"password":  digestPassword(password),
		"client_id": c.clientID,
		"locale":    c.locale,
	})
}

// AwaitLogin blocks until the read loop observes LOGINOK or LOGINFAIL for
// the most recent Login call, or ctx is done.
func (c *Client) AwaitLogin(ctx context.Context) error {
	select {
	case err := <-c.authResult:
		return err
	case <-ctx.Done():
		return gmerrors.Wrap(gmerrors.KindAuth, "timed out waiting for lobby login reply", ctx.Err())
	}
}

// Register asks the server to create a new account.
func (c *Client) Register(username, password, email string) error {
	return c.send("REGISTER", map[string]any{
		"username": username,
		"password": digestPassword(password),
		"email":    email,
	})
}

// Say sends a chat line to a channel or directly to a user.
func (c *Client) Say(target, text string, place Place) error {
	if c.State() != StateAuthenticated {
		return gmerrors.New(gmerrors.KindAuth, "lobby client is not authenticated", nil)
	}
	return c.send("SAY", map[string]any{
		"target": target,
		"text":   text,
		"place":  int(place),
	})
}

// JoinChannel joins a chat room by name.
func (c *Client) JoinChannel(name string) error {
	if c.State() != StateAuthenticated {
		return gmerrors.New(gmerrors.KindAuth, "lobby client is not authenticated", nil)
	}
	if err := c.send("JOIN", map[string]any{"channel": name}); err != nil {
		return err
	}
	c.mu.Lock()
	c.rooms[name] = &Room{Name: name, Members: make(map[string]struct{})}
	c.mu.Unlock()
	return nil
}

// LeaveChannel leaves a previously joined chat room.
func (c *Client) LeaveChannel(name string) error {
	if err := c.send("LEAVE", map[string]any{"channel": name}); err != nil {
		return err
	}
	c.mu.Lock()
	delete(c.rooms, name)
	delete(c.roomChannelID, name)
	c.mu.Unlock()
	return nil
}

// ListBattles asks the server for the current battle list.
func (c *Client) ListBattles() error {
	return c.send("LISTBATTLES", nil)
}

// ListUsers asks the server for the current user list.
func (c *Client) ListUsers() error {
	return c.send("LISTUSERS", nil)
}

// JoinBattle joins a battle room by id.
func (c *Client) JoinBattle(battleID int) error {
	return c.send("JOINBATTLE", map[string]any{"battle_id": battleID})
}

// LeaveBattle leaves the currently joined battle.
func (c *Client) LeaveBattle() error {
	return c.send("LEAVEBATTLE", nil)
}

// MatchmakerJoin enters a matchmaking queue by name.
func (c *Client) MatchmakerJoin(queue string) error {
	return c.send("MMJOIN", map[string]any{"queue": queue})
}

// Battles returns a snapshot of the tracked battle list.
func (c *Client) Battles() []*Battle {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*Battle, 0, len(c.battles))
	for _, b := range c.battles {
		out = append(out, b)
	}
	return out
}

// Users returns a snapshot of the tracked user list.
func (c *Client) Users() []*User {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*User, 0, len(c.users))
	for _, u := range c.users {
		out = append(out, u)
	}
	return out
}

// Battle looks up one tracked battle by id.
func (c *Client) Battle(id int) (*Battle, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.battles[id]
	return b, ok
}

// User looks up one tracked user by name.
func (c *Client) User(name string) (*User, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	u, ok := c.users[name]
	return u, ok
}
