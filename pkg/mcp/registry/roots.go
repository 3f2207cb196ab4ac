// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package registry

import (
	"sync"

	"github.com/teradata-labs/weft/pkg/mcp/protocol"
)

// Roots caches the workspace boundaries the client most recently reported
// via roots/list. Roots are client-owned: the server never registers
// them, it only refreshes this cache after issuing a roots/list request
// and invalidates it on notifications/roots/list_changed.
type Roots struct {
	mu    sync.RWMutex
	roots []protocol.Root
	stale bool
}

// NewRoots creates an empty, stale Roots cache.
func NewRoots() *Roots {
	return &Roots{stale: true}
}

// Set replaces the cached root list after a fresh roots/list round trip.
func (r *Roots) Set(roots []protocol.Root) {
	r.mu.Lock()
	r.roots = roots
	r.stale = false
	r.mu.Unlock()
}

// List returns the cached roots and whether the cache is stale (never
// populated, or invalidated since).
func (r *Roots) List() ([]protocol.Root, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]protocol.Root, len(r.roots))
	copy(out, r.roots)
	return out, r.stale
}

// Invalidate marks the cache stale in response to
// notifications/roots/list_changed.
func (r *Roots) Invalidate() {
	r.mu.Lock()
	r.stale = true
	r.mu.Unlock()
}
