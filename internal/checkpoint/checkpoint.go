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

// Package checkpoint implements the per-session checkpoint tree behind
// state/checkpoint and state/rollback. A checkpoint's payload is opaque to
// this package: the owning channel resource hands it an opaque token on
// Checkpoint and gets the same shape of token back on Restore. Each record
// holds that payload uninterpreted, alongside its id, parent link, creation
// time, and which channel/feature set it belongs to (§4.1's
// "Checkpoint/rollback" note).
package checkpoint

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/skirmishbridge/gamemanager/internal/gmerrors"
)

// Record is one node in a session's checkpoint tree.
type Record struct {
	ID         string
	ParentID   string // empty for a root checkpoint
	ChannelID  string
	FeatureSet string
	Payload    []byte
	CreatedAt  time.Time
}

// Tree is a single session's checkpoint history. Checkpoint ids are
// uuid-derived rather than sequential counters, so a rollback followed by a
// fresh checkpoint never reuses or skips an id (§8 invariant 7).
type Tree struct {
	mu      sync.Mutex
	records map[string]*Record
	// current is the checkpoint each channel most recently rolled back to
	// or checkpointed from; the next Create for that channel parents off it.
	current map[string]string
	now     func() time.Time
}

// NewTree creates an empty checkpoint tree. now is injectable for tests; a
// nil value defaults to time.Now.
func NewTree(now func() time.Time) *Tree {
	if now == nil {
		now = time.Now
	}
	return &Tree{
		records: make(map[string]*Record),
		current: make(map[string]string),
		now:     now,
	}
}

// Create records a new checkpoint for channelID, parented off that
// channel's current checkpoint (if any), and returns its stable id.
func (t *Tree) Create(channelID, featureSet string, payload []byte) *Record {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec := &Record{
		ID:         uuid.NewString(),
		ParentID:   t.current[channelID],
		ChannelID:  channelID,
		FeatureSet: featureSet,
		Payload:    payload,
		CreatedAt:  t.now(),
	}
	t.records[rec.ID] = rec
	t.current[channelID] = rec.ID
	return rec
}

// Get returns the checkpoint record for id.
func (t *Tree) Get(id string) (*Record, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	rec, ok := t.records[id]
	if !ok {
		return nil, gmerrors.New(gmerrors.KindValidation, "unknown checkpoint id", map[string]any{"checkpoint_id": id})
	}
	return rec, nil
}

// MarkCurrent sets channelID's current checkpoint after a successful
// rollback, so the next Create for that channel parents off the id rolled
// back to rather than the one it was rolled back from.
func (t *Tree) MarkCurrent(channelID, id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.current[channelID] = id
}

// Lineage returns the chain of checkpoint ids from the root to id,
// inclusive, oldest first.
func (t *Tree) Lineage(id string) ([]string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var chain []string
	cursor := id
	for cursor != "" {
		rec, ok := t.records[cursor]
		if !ok {
			return nil, gmerrors.New(gmerrors.KindValidation, "unknown checkpoint id", map[string]any{"checkpoint_id": id})
		}
		chain = append([]string{rec.ID}, chain...)
		cursor = rec.ParentID
	}
	return chain, nil
}
