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

// Package session implements the one-per-connection Session: negotiated
// protocol state, the channel table, the pending-request table, and the
// executor that bounds how many tool handlers a session runs at once.
//
// A Session is itself a single-actor owner only for its pending-request
// table; the channel table is its own actor (package channel). Everything
// else here is safe for concurrent use because it is either read-mostly
// after negotiation or already synchronized (the executor's semaphore).
package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/skirmishbridge/gamemanager/internal/channel"
	"github.com/skirmishbridge/gamemanager/internal/featureset"
	"github.com/skirmishbridge/gamemanager/internal/gmerrors"
)

// PendingRequest tracks one in-flight upstream request so a late or
// duplicate response/cancel can be matched and settled exactly once.
type PendingRequest struct {
	ID       string
	Deadline time.Time
	Cancel   context.CancelFunc
}

// Session is one connected agent host, per §4.1's Session entity.
type Session struct {
	ID              string
	ProtocolVersion string

	Features *featureset.Registry
	Channels *channel.Table

	executor *Executor

	mu      sync.Mutex
	pending map[string]*PendingRequest
	closed  bool
}

// New creates a Session with a fresh, unnegotiated feature registry and an
// executor bounding concurrent tool handlers to maxConcurrentTools.
func New(maxConcurrentTools int64) *Session {
	return &Session{
		ID:       uuid.NewString(),
		Features: featureset.NewRegistry(),
		Channels: channel.NewTable(),
		executor: NewExecutor(maxConcurrentTools),
		pending:  make(map[string]*PendingRequest),
	}
}

// Run starts the session's channel table actor. Call once, in its own
// goroutine, for the life of the connection.
func (s *Session) Run(ctx context.Context) {
	s.Channels.Run(ctx)
}

// Negotiate applies the initialize handshake's acknowledged feature sets.
func (s *Session) Negotiate(acknowledged []string) []string {
	return s.Features.Negotiate(acknowledged)
}

// Track registers a pending request with a per-call deadline derived from
// ctx, returning a derived context the handler must run under and a done
// func the caller must invoke once the request settles.
func (s *Session) Track(ctx context.Context, requestID string, timeout time.Duration) (context.Context, func()) {
	callCtx, cancel := context.WithTimeout(ctx, timeout)

	s.mu.Lock()
	s.pending[requestID] = &PendingRequest{ID: requestID, Deadline: time.Now().Add(timeout), Cancel: cancel}
	s.mu.Unlock()

	return callCtx, func() {
		s.mu.Lock()
		delete(s.pending, requestID)
		s.mu.Unlock()
		cancel()
	}
}

// CancelPending cancels a single in-flight request by id, if still pending.
func (s *Session) CancelPending(requestID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	pr, ok := s.pending[requestID]
	if !ok {
		return false
	}
	pr.Cancel()
	delete(s.pending, requestID)
	return true
}

// CancelAll cancels every outstanding request, used when the upstream
// transport disconnects (§6: "a socket disconnect cancels all outstanding
// handlers for that session").
func (s *Session) CancelAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, pr := range s.pending {
		pr.Cancel()
		delete(s.pending, id)
	}
	s.closed = true
}

// Spawn runs fn as a child task of the session executor, bounded by the
// session's max-concurrent-tools semaphore.
func (s *Session) Spawn(ctx context.Context, fn func(context.Context) error) error {
	return s.executor.Run(ctx, fn)
}

// Executor bounds how many tool handlers a session runs concurrently, the
// way workflowagent's parallel runner bounds sub-agent fan-out with an
// errgroup, generalized here with a semaphore so the limit is configurable
// per session rather than "one per sub-agent".
type Executor struct {
	sem *semaphore.Weighted
}

// NewExecutor creates an Executor that allows up to max concurrent calls to
// Run to actually execute at once; further calls block on Acquire.
func NewExecutor(max int64) *Executor {
	if max <= 0 {
		max = 1
	}
	return &Executor{sem: semaphore.NewWeighted(max)}
}

// Run acquires a slot, runs fn, and releases the slot. If ctx is canceled
// before a slot frees up, Run returns the context's error without running
// fn at all.
func (e *Executor) Run(ctx context.Context, fn func(context.Context) error) error {
	if err := e.sem.Acquire(ctx, 1); err != nil {
		return gmerrors.Wrap(gmerrors.KindInternal, "tool invocation queue", err)
	}
	defer e.sem.Release(1)
	return fn(ctx)
}
