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

// Package connection tracks the lifecycle of a single MCP peer: its
// transport, its state machine, and the table of requests it has
// outstanding with the peer.
package connection

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/teradata-labs/weft/pkg/mcp/protocol"
	"github.com/teradata-labs/weft/pkg/mcp/transport"
)

// State is a connection's position in its lifecycle state machine.
type State int

const (
	StateCreated State = iota
	StateConnected
	StateInitializing
	StateReady
	StateClosing
	StateClosed
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateConnected:
		return "connected"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// validTransitions enumerates the allowed state-machine edges. Transition
// also accepts Failed from any state other than Closed and Failed
// (including Closing) before it consults this table.
var validTransitions = map[State][]State{
	StateCreated:       {StateConnected, StateFailed},
	StateConnected:     {StateInitializing, StateClosing, StateFailed},
	StateInitializing:  {StateReady, StateClosing, StateFailed},
	StateReady:         {StateClosing, StateFailed},
	StateClosing:       {StateClosed},
	StateClosed:        {},
	StateFailed:        {},
}

// pendingRequest is an outbound request awaiting the peer's response.
type pendingRequest struct {
	resultCh chan *protocol.Response
	cancel   context.CancelFunc
}

// Connection represents one accepted MCP peer: its transport, its state
// machine, and bookkeeping for requests sent to the peer (sampling,
// roots/list) awaiting a response.
type Connection struct {
	ID        string
	Transport transport.Transport

	mu           sync.RWMutex
	state        State
	lastActivity time.Time
	negotiated   string                      // negotiated protocol version, set during initialize
	clientCaps   protocol.ClientCapabilities // recorded at initialize

	pendingMu sync.Mutex
	pending   map[string]*pendingRequest

	outbound chan []byte
	closed   chan struct{}
	once     sync.Once
}

// New creates a Connection in StateCreated over the given transport.
func New(t transport.Transport) *Connection {
	return &Connection{
		ID:           uuid.New().String(),
		Transport:    t,
		state:        StateCreated,
		lastActivity: time.Now(),
		pending:      make(map[string]*pendingRequest),
		outbound:     make(chan []byte, 64),
		closed:       make(chan struct{}),
	}
}

// State returns the connection's current state.
func (c *Connection) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// NegotiatedVersion returns the protocol version agreed during initialize,
// empty until SetNegotiatedVersion has been called.
func (c *Connection) NegotiatedVersion() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.negotiated
}

// SetNegotiatedVersion records the protocol version chosen during
// initialize. Call before transitioning to StateReady.
func (c *Connection) SetNegotiatedVersion(v string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.negotiated = v
}

// SetClientCapabilities records the capabilities the peer declared during
// initialize. Call before transitioning to StateReady.
func (c *Connection) SetClientCapabilities(caps protocol.ClientCapabilities) {
	c.mu.Lock()
	c.clientCaps = caps
	c.mu.Unlock()
}

// ClientCapabilities returns the capabilities the peer declared during
// initialize, zero-valued until then.
func (c *Connection) ClientCapabilities() protocol.ClientCapabilities {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.clientCaps
}

// Transition attempts to move the connection to next, returning an error
// if the edge isn't allowed from the current state.
func (c *Connection) Transition(next State) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if next == StateFailed && c.state != StateClosed && c.state != StateFailed {
		c.state = StateFailed
		return nil
	}

	for _, allowed := range validTransitions[c.state] {
		if allowed == next {
			c.state = next
			return nil
		}
	}
	return fmt.Errorf("connection %s: invalid transition %s -> %s", c.ID, c.state, next)
}

// Touch records activity for idle-sweep purposes.
func (c *Connection) Touch() {
	c.mu.Lock()
	c.lastActivity = time.Now()
	c.mu.Unlock()
}

// IdleSince returns how long it has been since the last recorded activity.
func (c *Connection) IdleSince() time.Duration {
	c.mu.RLock()
	last := c.lastActivity
	c.mu.RUnlock()
	return time.Since(last)
}

// Enqueue schedules a frame for delivery to the peer. It never blocks the
// caller on transport I/O; writePump drains the channel.
func (c *Connection) Enqueue(frame []byte) error {
	select {
	case <-c.closed:
		return fmt.Errorf("connection %s closed", c.ID)
	default:
	}
	select {
	case c.outbound <- frame:
		return nil
	case <-c.closed:
		return fmt.Errorf("connection %s closed", c.ID)
	}
}

// Outbound exposes the send queue for the server core's write pump.
func (c *Connection) Outbound() <-chan []byte {
	return c.outbound
}

// TrackRequest registers an outbound request (server-to-client, e.g.
// sampling/createMessage) awaiting a response keyed by its JSON-RPC id.
func (c *Connection) TrackRequest(ctx context.Context, id string) (<-chan *protocol.Response, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	ch := make(chan *protocol.Response, 1)
	c.pendingMu.Lock()
	c.pending[id] = &pendingRequest{resultCh: ch, cancel: cancel}
	c.pendingMu.Unlock()

	go func() {
		<-ctx.Done()
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
	}()

	return ch, cancel
}

// Resolve delivers a response to whichever TrackRequest call is waiting on
// its id. It reports false if no such request is outstanding (a late or
// spurious response).
func (c *Connection) Resolve(id string, resp *protocol.Response) bool {
	c.pendingMu.Lock()
	p, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
	}
	c.pendingMu.Unlock()
	if !ok {
		return false
	}
	p.resultCh <- resp
	p.cancel()
	return true
}

// Close transitions the connection to Closed, rejects pending outbound
// requests with a ConnectionLost error response, and closes the
// underlying transport. Safe to call more than once.
func (c *Connection) Close() error {
	var err error
	c.once.Do(func() {
		_ = c.Transition(StateClosing)
		close(c.closed)

		c.pendingMu.Lock()
		for id, p := range c.pending {
			select {
			case p.resultCh <- &protocol.Response{JSONRPC: protocol.JSONRPCVersion, Error: protocol.NewCanonicalError(protocol.ConnectionLost, nil)}:
			default:
			}
			p.cancel()
			delete(c.pending, id)
		}
		c.pendingMu.Unlock()

		err = c.Transport.Close()
		c.mu.Lock()
		c.state = StateClosed
		c.mu.Unlock()
	})
	return err
}
