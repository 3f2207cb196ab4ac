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

// Package subscription fans resource change events out to the connections
// that subscribed to their URI, isolating a slow or dead observer so it
// can never back up delivery to everyone else.
package subscription

import (
	"sync"

	"go.uber.org/zap"
)

// EventKind classifies a resource change.
type EventKind int

const (
	EventUpdated EventKind = iota
	EventCreated
	EventDeleted
)

// Event describes a single resource change for one URI.
type Event struct {
	Kind EventKind
	URI  string
}

// Observer receives resource events for the URIs it subscribed to. Notify
// must not block for long; the hub gives each observer its own queue, but
// a permanently blocked Notify still starves that one observer's queue.
type Observer interface {
	ID() string
	Notify(Event)
}

const (
	observerQueueDepth   = 32
	maxConsecutiveErrors = 3
)

type observerState struct {
	observer Observer
	queue    chan Event
	done     chan struct{}
	failures int
	mu       sync.Mutex
}

// Hub tracks per-URI subscriptions and delivers events to each subscribed
// observer on its own goroutine and queue.
type Hub struct {
	mu     sync.RWMutex
	byURI  map[string]map[string]*observerState
	states map[string]*observerState // observer id -> state, for eviction bookkeeping
	logger *zap.Logger
}

// NewHub creates an empty Hub.
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		byURI:  make(map[string]map[string]*observerState),
		states: make(map[string]*observerState),
		logger: logger,
	}
}

// Subscribe registers observer for events on uri. Safe to call more than
// once for the same (uri, observer) pair; later calls are no-ops.
func (h *Hub) Subscribe(uri string, observer Observer) {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs, ok := h.byURI[uri]
	if !ok {
		subs = make(map[string]*observerState)
		h.byURI[uri] = subs
	}
	if _, exists := subs[observer.ID()]; exists {
		return
	}

	state, ok := h.states[observer.ID()]
	if !ok {
		state = &observerState{
			observer: observer,
			queue:    make(chan Event, observerQueueDepth),
			done:     make(chan struct{}),
		}
		h.states[observer.ID()] = state
		go h.deliver(state)
	}
	subs[observer.ID()] = state
}

// Unsubscribe removes observer from uri's subscriber set.
func (h *Hub) Unsubscribe(uri string, observerID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if subs, ok := h.byURI[uri]; ok {
		delete(subs, observerID)
		if len(subs) == 0 {
			delete(h.byURI, uri)
		}
	}
	h.removeIfOrphaned(observerID)
}

// RemoveObserver drops observer from every URI it subscribed to, e.g. when
// its owning connection closes.
func (h *Hub) RemoveObserver(observerID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for uri, subs := range h.byURI {
		delete(subs, observerID)
		if len(subs) == 0 {
			delete(h.byURI, uri)
		}
	}
	if state, ok := h.states[observerID]; ok {
		close(state.done)
		delete(h.states, observerID)
	}
}

// removeIfOrphaned drops an observer's state once it subscribes to
// nothing. Caller must hold h.mu.
func (h *Hub) removeIfOrphaned(observerID string) {
	for _, subs := range h.byURI {
		if _, ok := subs[observerID]; ok {
			return
		}
	}
	if state, ok := h.states[observerID]; ok {
		close(state.done)
		delete(h.states, observerID)
	}
}

// Publish fans an event out to every observer subscribed to ev.URI.
func (h *Hub) Publish(ev Event) {
	h.mu.RLock()
	subs := h.byURI[ev.URI]
	targets := make([]*observerState, 0, len(subs))
	for _, state := range subs {
		targets = append(targets, state)
	}
	h.mu.RUnlock()

	for _, state := range targets {
		select {
		case state.queue <- ev:
		case <-state.done:
		default:
			h.logger.Warn("subscription queue full, dropping event",
				zap.String("observer_id", state.observer.ID()),
				zap.String("uri", ev.URI))
		}
	}
}

// deliver drains one observer's queue until its state is removed,
// evicting the observer from every subscription after too many
// consecutive delivery failures.
func (h *Hub) deliver(state *observerState) {
	for {
		select {
		case <-state.done:
			return
		case ev := <-state.queue:
			if !h.notify(state, ev) {
				return
			}
		}
	}
}

// notify invokes the observer's Notify, tracking consecutive failures via
// a panic-recovery boundary (a misbehaving observer must not take the hub
// down). Returns false once the observer has been evicted.
func (h *Hub) notify(state *observerState, ev Event) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("observer panicked", zap.String("observer_id", state.observer.ID()), zap.Any("panic", r))
			ok = h.recordFailure(state)
		}
	}()

	state.observer.Notify(ev)
	state.mu.Lock()
	state.failures = 0
	state.mu.Unlock()
	return true
}

func (h *Hub) recordFailure(state *observerState) bool {
	state.mu.Lock()
	state.failures++
	failures := state.failures
	state.mu.Unlock()

	if failures >= maxConsecutiveErrors {
		h.logger.Warn("evicting observer after repeated failures", zap.String("observer_id", state.observer.ID()))
		h.RemoveObserver(state.observer.ID())
		return false
	}
	return true
}
