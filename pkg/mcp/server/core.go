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

// Package server orchestrates the MCP runtime: it owns the connection
// manager and capability registries, drives each connection's read loop
// through the router, and carries connections through the
// initialize/initialized handshake before admitting any other method.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/teradata-labs/weft/internal/version"
	"github.com/teradata-labs/weft/pkg/mcp/connection"
	"github.com/teradata-labs/weft/pkg/mcp/logging"
	"github.com/teradata-labs/weft/pkg/mcp/progress"
	"github.com/teradata-labs/weft/pkg/mcp/protocol"
	"github.com/teradata-labs/weft/pkg/mcp/registry"
	"github.com/teradata-labs/weft/pkg/mcp/router"
	"github.com/teradata-labs/weft/pkg/mcp/subscription"
	"github.com/teradata-labs/weft/pkg/mcp/transport"
)

// RunState is the server's own lifecycle, distinct from any one
// connection's state machine.
type RunState int

const (
	RunCreated RunState = iota
	RunStarting
	RunRunning
	RunStopping
	RunStopped
	RunFailed
)

// Config configures a Core. Connection admission and idle eviction are
// configured separately on the connection.Manager passed to New, since
// those concerns are independent of the MCP method dispatch Core owns.
type Config struct {
	Name               string
	Version            string
	SupportedProtocols []string // negotiable protocol versions, latest last
	Logger             *zap.Logger
}

// Core is the composition root for one running MCP server: the
// connection manager, every capability registry, the subscription hub,
// the MCP logging service, and the router that dispatches each
// connection's requests.
type Core struct {
	name               string
	serverVersion      string
	supportedProtocols []string
	logger             *zap.Logger

	Connections *connection.Manager
	Tools       *registry.Tools
	Resources   *registry.Resources
	Prompts     *registry.Prompts
	Roots       *registry.Roots
	Hub         *subscription.Hub
	Logging     *logging.Service
	Router      *router.Router

	progressMu sync.Mutex
	progressOf map[string]*progress.Tracker // connection id -> tracker
	cancelOf   map[string]*progress.CancelRegistry

	mu    sync.RWMutex
	state RunState
}

// New builds a Core wired for cfg, registering every method the server
// answers: the handshake and housekeeping methods (initialize,
// notifications/initialized, ping, notifications/cancelled,
// logging/setLevel) and the tools/*, resources/*, prompts/*, roots and
// completion methods backed by the registries. Callers populate the
// registries (or add further methods via Router.Handle) before calling
// Start.
func New(cfg Config, connMgr *connection.Manager) *Core {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &Core{
		name:               cfg.Name,
		serverVersion:      cfg.Version,
		supportedProtocols: cfg.SupportedProtocols,
		logger:             logger,
		Connections:        connMgr,
		Hub:                subscription.NewHub(logger),
		Logging:            logging.NewService(),
		Router:             router.New(),
		progressOf:         make(map[string]*progress.Tracker),
		cancelOf:           make(map[string]*progress.CancelRegistry),
		state:              RunCreated,
	}

	c.Tools = registry.NewTools(func() { c.notifyListChanged("notifications/tools/list_changed") })
	c.Resources = registry.NewResources(func() { c.notifyListChanged("notifications/resources/list_changed") })
	c.Prompts = registry.NewPrompts(func() { c.notifyListChanged("notifications/prompts/list_changed") })
	c.Roots = registry.NewRoots()

	c.registerBuiltins()
	return c
}

// State returns the server's own run state.
func (c *Core) State() RunState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *Core) setState(s RunState) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// handshakeExempt lists the methods admitted before a connection reaches
// StateReady: the handshake itself (initialize, notifications/initialized),
// plus ping and notifications/cancelled, which a client may legitimately
// send while still initializing.
var handshakeExempt = map[string]bool{
	"initialize":                true,
	"notifications/initialized": true,
	"ping":                      true,
	"notifications/cancelled":   true,
}

// registerBuiltins installs the router's cross-cutting middleware chain
// and wires every method the server answers: the handshake, and the
// tools/resources/prompts/roots/completion surface driven by the
// registries New built above. Each non-exempt method is gated by
// RequireReady (dispatch step 1) and, where it belongs to an optional
// capability, RequireCapability (the capability-negotiation rule in
// §4.6). sampling/createMessage and the refresh half of roots/list are
// server-initiated requests the client answers on the return path (see
// Core.RequestSampling, Core.RequestRoots) and so carry no router.Handle
// registration of their own.
func (c *Core) registerBuiltins() {
	c.Router.Use(router.Recover())

	register := func(method, capability string, fn router.HandlerFunc) {
		wrapped := fn
		if capability != "" {
			wrapped = router.RequireCapability(capability, c.capabilitySupported)(wrapped)
		}
		wrapped = router.RequireReady(method, handshakeExempt)(wrapped)
		c.Router.Handle(method, wrapped)
	}

	register("initialize", "", c.handleInitialize)
	register("notifications/initialized", "", c.handleInitialized)
	register("ping", "", c.handlePing)
	register("notifications/cancelled", "", c.handleCancelled)
	register("logging/setLevel", "logging", c.handleSetLevel)

	register("tools/list", "tools", c.handleToolsList)
	register("tools/call", "tools", c.handleToolsCall)

	register("resources/list", "resources", c.handleResourcesList)
	register("resources/templates/list", "resources", c.handleResourcesTemplatesList)
	register("resources/read", "resources", c.handleResourcesRead)
	register("resources/subscribe", "resources", c.handleResourcesSubscribe)
	register("resources/unsubscribe", "resources", c.handleResourcesUnsubscribe)

	register("prompts/list", "prompts", c.handlePromptsList)
	register("prompts/get", "prompts", c.handlePromptsGet)

	register("roots/list", "roots", c.handleRootsList)
	register("notifications/roots/list_changed", "roots", c.handleRootsListChanged)
	register("completion/complete", "completion", c.handleComplete)
}

// capabilitySupported reports whether the server advertises capability.
// Every registry Core builds in New is always present, so today this is a
// defensive check against an unknown capability name rather than a live
// feature flag; it is the seam a deployment-specific Core would use to
// disable a capability (e.g. a read-only server omitting "tools").
func (c *Core) capabilitySupported(capability string) bool {
	switch capability {
	case "tools", "resources", "prompts", "logging", "roots", "completion", "sampling":
		return true
	default:
		return false
	}
}

func (c *Core) handleInitialize(ctx context.Context, conn *connection.Connection, params json.RawMessage) (interface{}, *protocol.Error) {
	var req protocol.InitializeParams
	if rpcErr := router.DecodeParams(params, &req); rpcErr != nil {
		return nil, rpcErr
	}

	if err := conn.Transition(connection.StateInitializing); err != nil {
		return nil, protocol.NewCanonicalError(protocol.ServerNotInitialized, nil)
	}

	negotiated, err := router.NegotiateVersion(req.ProtocolVersion, c.supportedProtocols)
	if err != nil {
		return nil, protocol.NewCanonicalError(protocol.UnsupportedProtocolVersion, nil)
	}
	conn.SetNegotiatedVersion(negotiated)
	conn.SetClientCapabilities(req.Capabilities)

	c.progressMu.Lock()
	c.progressOf[conn.ID] = progress.NewTracker()
	c.cancelOf[conn.ID] = progress.NewCancelRegistry()
	c.progressMu.Unlock()

	return protocol.InitializeResult{
		ProtocolVersion: negotiated,
		Capabilities:    c.capabilities(),
		ServerInfo:      protocol.Implementation{Name: c.name, Version: c.serverVersion},
	}, nil
}

func (c *Core) capabilities() protocol.ServerCapabilities {
	return protocol.ServerCapabilities{
		Tools:      &protocol.ToolsCapability{},
		Resources:  &protocol.ResourcesCapability{Subscribe: true, ListChanged: true},
		Prompts:    &protocol.PromptsCapability{ListChanged: true},
		Logging:    &protocol.LoggingCapability{},
		Roots:      &protocol.RootsCapability{ListChanged: true},
		Completion: &protocol.CompletionCapability{},
		Sampling:   &protocol.SamplingCapability{},
	}
}

func (c *Core) handleInitialized(ctx context.Context, conn *connection.Connection, params json.RawMessage) (interface{}, *protocol.Error) {
	if err := conn.Transition(connection.StateReady); err != nil {
		return nil, protocol.NewCanonicalError(protocol.ServerNotInitialized, nil)
	}
	c.Logging.Attach(conn.ID, func(level logging.Level, logger string, data interface{}) {
		note := protocol.LogNotification{Level: string(level), Logger: logger, Data: data}
		c.sendNotification(conn, "notifications/message", note)
	})
	c.logger.Info("connection ready", zap.String("connection_id", conn.ID), zap.String("protocol_version", conn.NegotiatedVersion()))
	return nil, nil
}

func (c *Core) handlePing(ctx context.Context, conn *connection.Connection, params json.RawMessage) (interface{}, *protocol.Error) {
	return map[string]interface{}{}, nil
}

func (c *Core) handleCancelled(ctx context.Context, conn *connection.Connection, params json.RawMessage) (interface{}, *protocol.Error) {
	var p protocol.CancelledParams
	if rpcErr := router.DecodeParams(params, &p); rpcErr != nil {
		return nil, rpcErr
	}
	if p.RequestID == nil {
		return nil, nil
	}

	c.progressMu.Lock()
	reg := c.cancelOf[conn.ID]
	c.progressMu.Unlock()
	if reg != nil {
		reg.Cancel(p.RequestID.String())
	}
	return nil, nil
}

func (c *Core) handleSetLevel(ctx context.Context, conn *connection.Connection, params json.RawMessage) (interface{}, *protocol.Error) {
	var p protocol.SetLevelParams
	if rpcErr := router.DecodeParams(params, &p); rpcErr != nil {
		return nil, rpcErr
	}
	level, err := logging.ParseLevel(p.Level)
	if err != nil {
		return nil, protocol.NewError(protocol.InvalidParams, err.Error(), nil)
	}
	c.Logging.SetLevel(conn.ID, level)
	return map[string]interface{}{}, nil
}

// CancelRegistryFor returns the per-connection cancellation registry,
// creating one if the connection somehow predates initialize (defensive;
// should not happen on the normal handshake path).
func (c *Core) CancelRegistryFor(connID string) *progress.CancelRegistry {
	c.progressMu.Lock()
	defer c.progressMu.Unlock()
	reg, ok := c.cancelOf[connID]
	if !ok {
		reg = progress.NewCancelRegistry()
		c.cancelOf[connID] = reg
	}
	return reg
}

// ProgressTrackerFor returns the per-connection progress tracker, creating
// one if needed.
func (c *Core) ProgressTrackerFor(connID string) *progress.Tracker {
	c.progressMu.Lock()
	defer c.progressMu.Unlock()
	tr, ok := c.progressOf[connID]
	if !ok {
		tr = progress.NewTracker()
		c.progressOf[connID] = tr
	}
	return tr
}

func (c *Core) notifyListChanged(method string) {
	c.mu.RLock()
	running := c.state == RunRunning
	c.mu.RUnlock()
	if !running {
		return
	}
	frame, err := protocol.EncodeRequest(&protocol.Request{JSONRPC: protocol.JSONRPCVersion, Method: method})
	if err != nil {
		c.logger.Error("failed to encode list_changed notification", zap.Error(err))
		return
	}
	c.Connections.Broadcast(frame)
}

func (c *Core) sendNotification(conn *connection.Connection, method string, params interface{}) {
	raw, err := json.Marshal(params)
	if err != nil {
		c.logger.Error("failed to marshal notification params", zap.Error(err))
		return
	}
	frame, err := protocol.EncodeRequest(&protocol.Request{JSONRPC: protocol.JSONRPCVersion, Method: method, Params: raw})
	if err != nil {
		c.logger.Error("failed to encode notification", zap.Error(err))
		return
	}
	if err := conn.Enqueue(frame); err != nil {
		c.logger.Warn("failed to enqueue notification", zap.String("connection_id", conn.ID), zap.Error(err))
	}
}

// Start admits connections from listener in a loop until ctx is cancelled,
// spawning a read/dispatch/write pump per connection. It returns once
// every spawned connection goroutine has exited.
func (c *Core) Start(ctx context.Context, listener Listener) error {
	c.setState(RunStarting)
	defer c.setState(RunStopped)

	group, gctx := errgroup.WithContext(ctx)
	c.setState(RunRunning)

	for {
		t, err := listener.Accept(gctx)
		if err != nil {
			break
		}

		conn, err := c.Connections.Accept(gctx, t)
		if err != nil {
			c.logger.Warn("connection rejected", zap.Error(err))
			_ = t.Close()
			continue
		}

		group.Go(func() error {
			c.serve(gctx, conn)
			return nil
		})

		if gctx.Err() != nil {
			break
		}
	}

	c.setState(RunStopping)
	c.Connections.Shutdown()
	return group.Wait()
}

// Listener abstracts accepting new transports, so Start works the same
// way for a single-connection stdio server and a multiplexing socket
// listener.
type Listener interface {
	Accept(ctx context.Context) (transport.Transport, error)
}

func (c *Core) serve(ctx context.Context, conn *connection.Connection) {
	defer c.Connections.Remove(conn.ID)
	defer c.Logging.Detach(conn.ID)
	defer c.Hub.RemoveObserver(conn.ID)

	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error { return c.readPump(gctx, conn) })
	group.Go(func() error { return c.writePump(gctx, conn) })
	_ = group.Wait()
}

func (c *Core) readPump(ctx context.Context, conn *connection.Connection) error {
	for {
		raw, err := conn.Transport.Receive(ctx)
		if err != nil {
			return err
		}
		conn.Touch()

		frame := protocol.Decode(raw)
		switch frame.Kind {
		case protocol.FrameMalformed:
			if frame.Request != nil && frame.Request.ID != nil {
				c.deliver(conn, &protocol.Response{JSONRPC: protocol.JSONRPCVersion, ID: frame.Request.ID, Error: frame.Err})
			}
		case protocol.FrameRequest:
			c.dispatchRequest(ctx, conn, frame.Request)
		case protocol.FrameNotification:
			c.Router.Dispatch(ctx, conn, frame.Request)
		case protocol.FrameResponse:
			conn.Resolve(frame.Response.ID.String(), frame.Response)
		}
	}
}

func (c *Core) dispatchRequest(ctx context.Context, conn *connection.Connection, req *protocol.Request) {
	reg := c.CancelRegistryFor(conn.ID)
	reqID := req.ID.String()
	cctx := reg.Register(ctx, reqID)

	go func() {
		resp := c.Router.Dispatch(cctx, conn, req)
		reg.MarkQueued(reqID)
		c.deliver(conn, resp)
		reg.Release(reqID)
	}()
}

func (c *Core) deliver(conn *connection.Connection, resp *protocol.Response) {
	frame, err := protocol.EncodeResponse(resp)
	if err != nil {
		c.logger.Error("failed to encode response", zap.Error(err))
		return
	}
	if err := conn.Enqueue(frame); err != nil {
		c.logger.Warn("failed to enqueue response", zap.String("connection_id", conn.ID), zap.Error(err))
	}
}

func (c *Core) writePump(ctx context.Context, conn *connection.Connection) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case frame, ok := <-conn.Outbound():
			if !ok {
				return nil
			}
			if err := conn.Transport.Send(ctx, frame); err != nil {
				return fmt.Errorf("connection %s: %w", conn.ID, err)
			}
		}
	}
}

// ServerName returns the configured server name, e.g. for logging.
func (c *Core) ServerName() string { return c.name }

// BuildVersion returns the version the server advertises during
// initialize, typically internal/version.Get() unless overridden.
func BuildVersion() string { return version.Get() }
