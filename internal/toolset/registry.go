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

package toolset

import (
	"fmt"
	"sort"
	"sync"
)

// Registry holds every tool GameManager declares, across all feature sets.
// Invariant (§3): every tool name is globally unique within a session after
// negotiation, so Register fails loudly on a duplicate name rather than
// silently overwriting it.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]*Tool
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]*Tool)}
}

// Register adds a tool, returning an error if the name is already taken.
func (r *Registry) Register(t *Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[t.Name]; exists {
		return fmt.Errorf("tool %q already registered", t.Name)
	}
	r.tools[t.Name] = t
	return nil
}

// Get returns the tool with the given name, if registered.
func (r *Registry) Get(name string) (*Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// ListFor returns the tools belonging to one of the enabled feature sets,
// sorted by name for a deterministic tools/list response.
func (r *Registry) ListFor(enabled func(featureSet string) bool) []*Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Tool
	for _, t := range r.tools {
		if enabled(t.FeatureSet) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
