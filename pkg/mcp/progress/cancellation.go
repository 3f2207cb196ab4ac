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

package progress

import (
	"context"
	"sync"
)

// entry pairs a request's derived cancel func with a flag recording
// whether its response has already been queued for delivery. A
// notifications/cancelled that arrives after the response was queued is a
// no-op: the response wins the race.
type entry struct {
	cancel context.CancelFunc
	queued bool
}

// CancelRegistry maps in-flight request ids to the context.CancelFunc that
// tears down their handler goroutine, implementing the cooperative
// cancellation half of notifications/cancelled.
type CancelRegistry struct {
	mu      sync.Mutex
	entries map[string]*entry
}

// NewCancelRegistry creates an empty CancelRegistry.
func NewCancelRegistry() *CancelRegistry {
	return &CancelRegistry{entries: make(map[string]*entry)}
}

// Register derives a cancellable context for a request id, tracks its
// cancel func, and returns the derived context. Call Release once the
// handler has returned to drop the entry; Cancel and MarkQueued leave it
// in place.
func (r *CancelRegistry) Register(ctx context.Context, id string) context.Context {
	ctx, cancel := context.WithCancel(ctx)
	r.mu.Lock()
	r.entries[id] = &entry{cancel: cancel}
	r.mu.Unlock()
	return ctx
}

// Cancel cancels the handler for id if it hasn't already queued its
// response. Returns true if cancellation was applied.
func (r *CancelRegistry) Cancel(id string) bool {
	r.mu.Lock()
	e, ok := r.entries[id]
	r.mu.Unlock()
	if !ok || e.queued {
		return false
	}
	e.cancel()
	return true
}

// MarkQueued records that id's response has been queued for delivery,
// after which a racing Cancel call becomes a no-op.
func (r *CancelRegistry) MarkQueued(id string) {
	r.mu.Lock()
	if e, ok := r.entries[id]; ok {
		e.queued = true
	}
	r.mu.Unlock()
}

// Release drops bookkeeping for id once its handler has fully returned.
func (r *CancelRegistry) Release(id string) {
	r.mu.Lock()
	if e, ok := r.entries[id]; ok {
		e.cancel()
		delete(r.entries, id)
	}
	r.mu.Unlock()
}
