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

// Package ipcrouter implements the IPC Router (§4.4): a local socket the
// Bridge shared library connects back to once the engine has loaded it,
// matched to the Supervisor's expected instance by handshake token. Token
// registration/lookup follows the same correlation idea as
// pkg/plugins/grpc/loader.go's plugin.HandshakeConfig magic cookie, but
// keyed per engine instance rather than by a single static value, since
// many instances can be pending concurrently.
package ipcrouter

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/skirmishbridge/gamemanager/internal/gmerrors"
)

// hello is the Bridge's opening handshake frame.
type hello struct {
	Type    string `json:"type"`
	Token   string `json:"token"`
	Version string `json:"version"`
}

// welcome is the Router's handshake acknowledgement.
type welcome struct {
	Type string `json:"type"`
}

// Bound is delivered once a Bridge connection successfully handshakes
// against a registered token. Conn is already past the hello/welcome
// exchange and is handed off to the caller (the channel resource that
// owns this engine instance) for the IPC-thread protocol proper.
type Bound struct {
	Token   string
	Version string
	Conn    net.Conn
}

// Router accepts Bridge connections on a local socket and matches each to
// an expected instance by handshake token (§4.4).
type Router struct {
	log *slog.Logger

	mu      sync.Mutex
	pending map[string]*pendingEntry

	ln      net.Listener
	network string
	address string
}

type pendingEntry struct {
	result chan Bound
	bound  bool
}

// New creates a Router. log defaults to slog.Default() if nil.
func New(log *slog.Logger) *Router {
	if log == nil {
		log = slog.Default()
	}
	return &Router{log: log, pending: make(map[string]*pendingEntry)}
}

// Listen opens the local socket. network is typically "unix"; for a unix
// socket path, any stale file left from a previous run is removed first.
func (r *Router) Listen(network, address string) error {
	if network == "unix" {
		_ = os.Remove(address)
	}
	ln, err := net.Listen(network, address)
	if err != nil {
		return gmerrors.Wrap(gmerrors.KindBridge, "failed to open IPC router socket", err)
	}
	r.ln = ln
	r.network = network
	r.address = address
	return nil
}

// Addr returns the bound listener address, or nil if Listen has not been
// called.
func (r *Router) Addr() net.Addr {
	if r.ln == nil {
		return nil
	}
	return r.ln.Addr()
}

// Register declares that a Bridge bearing token is expected to connect.
// The returned channel receives exactly one Bound once that Bridge
// handshakes; the caller is responsible for timing its own wait out and
// calling Unregister if the handshake never arrives (§4.3's "Bridge that
// fails to handshake within the supervisor's deadline" case).
func (r *Router) Register(token string) <-chan Bound {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry := &pendingEntry{result: make(chan Bound, 1)}
	r.pending[token] = entry
	return entry.result
}

// Unregister removes a pending (or already-bound) token, e.g. after the
// Supervisor's handshake deadline expires or the instance is torn down.
func (r *Router) Unregister(token string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.pending, token)
}

// Serve accepts connections until ctx is done or the listener closes.
func (r *Router) Serve(ctx context.Context) error {
	if r.ln == nil {
		return gmerrors.New(gmerrors.KindInternal, "ipcrouter: Serve called before Listen", nil)
	}
	go func() {
		<-ctx.Done()
		_ = r.ln.Close()
	}()

	for {
		conn, err := r.ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return gmerrors.Wrap(gmerrors.KindBridge, "IPC router accept failed", err)
		}
		go r.handleConn(conn)
	}
}

// Close closes the listener, stopping Serve.
func (r *Router) Close() error {
	if r.ln == nil {
		return nil
	}
	return r.ln.Close()
}

func (r *Router) handleConn(conn net.Conn) {
	_ = conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	reader := bufio.NewReader(conn)
	line, err := reader.ReadBytes('\n')
	if err != nil {
		r.log.Warn("ipc router: connection closed before handshake", "error", err)
		_ = conn.Close()
		return
	}
	_ = conn.SetReadDeadline(time.Time{})

	var h hello
	if err := json.Unmarshal(line, &h); err != nil || h.Type != "hello" || h.Token == "" {
		r.log.Warn("ipc router: malformed handshake, dropping connection")
		_ = conn.Close()
		return
	}

	r.mu.Lock()
	entry, ok := r.pending[h.Token]
	if ok {
		if entry.bound {
			ok = false // duplicate handshake for an already-bound token
		} else {
			entry.bound = true
		}
	}
	r.mu.Unlock()

	if !ok {
		r.log.Warn("ipc router: unmatched or duplicate handshake token, dropping connection")
		_ = conn.Close()
		return
	}

	w, err := json.Marshal(welcome{Type: "welcome"})
	if err != nil {
		_ = conn.Close()
		return
	}
	if _, err := conn.Write(append(w, '\n')); err != nil {
		r.log.Warn("ipc router: failed to write welcome", "error", err)
		_ = conn.Close()
		return
	}

	entry.result <- Bound{Token: h.Token, Version: h.Version, Conn: conn}
}
