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

// Package lobby implements the Lobby Protocol Client (§4.2): a single TCP
// connection to the lobby service, its authentication state machine, and
// the tracked room/user/battle tables it maintains from push events. The
// single-reader/single-writer split over one net.Conn follows the
// bufio.Reader + json handling in HyphaGroup-oubliette's socket handler,
// adapted from framed JSON-RPC to the lobby's "Command JSON\n" line format.
package lobby

import (
	"bufio"
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"

	"github.com/skirmishbridge/gamemanager/internal/gmerrors"
)

// AuthState is the lobby connection's authentication state, per §4.2's table.
type AuthState string

const (
	StateDisconnected  AuthState = "disconnected"
	StateGreeted       AuthState = "greeted"
	StateAuthenticated AuthState = "authenticated"
	StateDead          AuthState = "dead"
)

// Place distinguishes where a chat line is sent, matching lobby_say's
// place ∈ {channel=0, user=4}.
type Place int

const (
	PlaceChannel Place = 0
	PlaceUser    Place = 4
)

// GlobalChannelID is the channel id used for lobby push events that are
// not scoped to a specific joined room (user join/part, private messages,
// battle list changes).
const GlobalChannelID = "lobby"

// Room is a tracked joined channel.
type Room struct {
	Name    string
	Members map[string]struct{}
}

// Battle is a tracked battle room entry from the server's battle list.
type Battle struct {
	ID       int    `json:"id"`
	Host     string `json:"host"`
	Map      string `json:"map"`
	Title    string `json:"title"`
	MaxSlots int    `json:"max_slots"`
	Locked   bool   `json:"locked"`
}

// User is a tracked user entry from the server's user list.
type User struct {
	Name   string
	Status string
}

// Incoming is how the Client hands the Multiplexer's channel table a push
// event payload: the raw line verbatim, addressed to either a room's
// per-channel id or GlobalChannelID.
type Incoming func(channelID string, payload string)

// Ended is called when the connection drops, so the owner can close every
// lobby channel with a transport error (§6: "Lobby socket drops mid-request
// ... all lobby channels close").
type Ended func(cause *gmerrors.Error)

// Client is the lobby protocol state machine and connection owner. At most
// one Client exists per session (§4.1's LobbyConnection cardinality).
type Client struct {
	clientID string
	locale   string

	onIncoming Incoming
	onEnded    Ended

	mu      sync.Mutex
	conn    net.Conn
	state   AuthState
	scanner *bufio.Scanner
	writeMu sync.Mutex

	username string
	rooms    map[string]*Room
	users    map[string]*User
	battles  map[int]*Battle

	// roomChannelID maps a joined room name to the multiplexer channel id
	// the owner assigned it, so push events for that room are routed there
	// instead of the global lobby channel.
	roomChannelID map[string]string

	// authResult carries the server's LOGINOK/LOGINFAIL reply back to the
	// tool handler blocked in AwaitLogin, since the reply arrives asynchronously
	// on the read loop rather than as a direct command response.
	authResult chan error
}

// Config configures a Client.
type Config struct {
	ClientID   string
	Locale     string
	OnIncoming Incoming
	OnEnded    Ended
}

// New creates a disconnected Client.
func New(cfg Config) *Client {
	locale := cfg.Locale
	if locale == "" {
		locale = "en"
	}
	return &Client{
		clientID:      cfg.ClientID,
		locale:        locale,
		onIncoming:    cfg.OnIncoming,
		onEnded:       cfg.OnEnded,
		state:         StateDisconnected,
		rooms:         make(map[string]*Room),
		users:         make(map[string]*User),
		battles:       make(map[int]*Battle),
		roomChannelID: make(map[string]string),
		authResult:    make(chan error, 1),
	}
}

// State returns the client's current authentication state.
func (c *Client) State() AuthState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connect dials the lobby server and starts the read loop. Reconnect is
// explicit: calling Connect again after Disconnect rebuilds all tracked
// state from scratch, with no automatic re-join of chat rooms (§4.1).
func (c *Client) Connect(ctx context.Context, host string, port int) error {
	c.mu.Lock()
	if c.state != StateDisconnected && c.state != StateDead {
		c.mu.Unlock()
		return gmerrors.New(gmerrors.KindProtocol, "lobby client is already connected", nil)
	}
	c.mu.Unlock()

	dialer := net.Dialer{}
	conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return gmerrors.Wrap(gmerrors.KindTransport, "failed to connect to lobby server", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.scanner = bufio.NewScanner(conn)
	c.scanner.Buffer(make([]byte, 0, 4096), 1<<20)
	c.state = StateGreeted
	c.rooms = make(map[string]*Room)
	c.users = make(map[string]*User)
	c.battles = make(map[int]*Battle)
	c.roomChannelID = make(map[string]string)
	c.mu.Unlock()

	go c.readLoop(ctx)
	return nil
}

// Disconnect closes the connection and marks the client disconnected. A
// disconnect made this way does not invoke OnEnded; only a connection that
// drops on its own does.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		c.state = StateDisconnected
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	c.state = StateDisconnected
	return err
}

// JoinChannelID records which multiplexer channel id owns push events for
// a joined room, so readLoop can route them precisely instead of falling
// back to the global lobby channel.
func (c *Client) JoinChannelID(room, channelID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.roomChannelID[room] = channelID
}

// send writes one "Command JSON\n" line. A single mutex serializes writes,
// matching §5's "the lobby socket has a single writer task".
func (c *Client) send(command string, args any) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return gmerrors.New(gmerrors.KindTransport, "lobby client is not connected", nil)
	}

	var line string
	if args == nil {
		line = command
	} else {
		b, err := json.Marshal(args)
		if err != nil {
			return gmerrors.Wrap(gmerrors.KindInternal, "failed to marshal lobby command", err)
		}
		line = command + " " + string(b)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if _, err := fmt.Fprintln(conn, line); err != nil {
		return gmerrors.Wrap(gmerrors.KindTransport, "failed to write lobby command", err)
	}
	return nil
}

// digestPassword returns the lowercase hex MD5 digest §4.2 requires for
// login/register commands.
func digestPassword(password string) string {
	sum := md5.Sum([]byte(password))
	return hex.EncodeToString(sum[:])
}

func splitCommandLine(line string) (string, string) {
	idx := strings.IndexByte(line, ' ')
	if idx < 0 {
		return line, ""
	}
	return line[:idx], line[idx+1:]
}
