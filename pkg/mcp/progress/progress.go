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

// Package progress tracks long-running request progress and cooperative
// cancellation, both keyed off values the client supplies on the request:
// the progress token in _meta, and the request id itself.
package progress

import (
	"fmt"
	"sync"
)

// State is the last reported progress for one progress token.
type State struct {
	Token     string
	Current   float64
	Total     float64
	HasTotal  bool
	Message   string
	Completed bool
}

// Tracker holds progress state per token for the lifetime of the
// connection that issued the tokens.
type Tracker struct {
	mu     sync.Mutex
	states map[string]*State
}

// NewTracker creates an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{states: make(map[string]*State)}
}

// Begin registers a new progress token. Returns an error if the token is
// already tracked, since tokens are scoped to a single in-flight request.
func (t *Tracker) Begin(token string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.states[token]; exists {
		return fmt.Errorf("progress token %q already in use", token)
	}
	t.states[token] = &State{Token: token}
	return nil
}

// Update records a progress notification for token. Returns an error if
// the token is unknown or already marked complete.
func (t *Tracker) Update(token string, current float64, total *float64, message string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.states[token]
	if !ok {
		return fmt.Errorf("unknown progress token %q", token)
	}
	if s.Completed {
		return fmt.Errorf("progress token %q already complete", token)
	}
	s.Current = current
	s.Message = message
	if total != nil {
		s.Total = *total
		s.HasTotal = true
	}
	return nil
}

// Snapshot returns a copy of the current state for token.
func (t *Tracker) Snapshot(token string) (State, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.states[token]
	if !ok {
		return State{}, false
	}
	return *s, true
}

// Complete marks token finished and stops accepting further updates. The
// entry is retained until Forget is called so a late duplicate completion
// notification can still be recognized as terminal rather than unknown.
func (t *Tracker) Complete(token string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.states[token]
	if !ok {
		return fmt.Errorf("unknown progress token %q", token)
	}
	s.Completed = true
	return nil
}

// Forget removes a token's state, e.g. once its owning request's response
// has been sent.
func (t *Tracker) Forget(token string) {
	t.mu.Lock()
	delete(t.states, token)
	t.mu.Unlock()
}
