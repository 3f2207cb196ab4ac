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

package server

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/teradata-labs/weft/pkg/mcp/connection"
	"github.com/teradata-labs/weft/pkg/mcp/protocol"
	"github.com/teradata-labs/weft/pkg/mcp/router"
	"github.com/teradata-labs/weft/pkg/mcp/subscription"
)

// findingsError is satisfied by registry.Tools' internal argument-validation
// error. Asserting against this interface lets the handler surface
// per-field detail without the registry package exporting its error type.
type findingsError interface {
	Findings() protocol.ValidationErrors
}

func (c *Core) handleToolsList(ctx context.Context, conn *connection.Connection, params json.RawMessage) (interface{}, *protocol.Error) {
	return protocol.ToolListResult{Tools: c.Tools.List()}, nil
}

func (c *Core) handleToolsCall(ctx context.Context, conn *connection.Connection, params json.RawMessage) (interface{}, *protocol.Error) {
	var req protocol.CallToolParams
	if rpcErr := router.DecodeParams(params, &req); rpcErr != nil {
		return nil, rpcErr
	}

	found := false
	for _, t := range c.Tools.List() {
		if t.Name == req.Name {
			found = true
			break
		}
	}
	if !found {
		return nil, protocol.NewCanonicalError(protocol.ToolNotFound, map[string]string{"name": req.Name})
	}

	if req.Meta != nil && req.Meta.ProgressToken != "" {
		token := req.Meta.ProgressToken
		tracker := c.ProgressTrackerFor(conn.ID)
		if err := tracker.Begin(token); err == nil {
			ctx = withProgressToken(ctx, token)
			defer tracker.Forget(token)
		}
	}

	result, err := c.Tools.Execute(ctx, req.Name, req.Arguments)
	if err != nil {
		if fe, ok := err.(findingsError); ok {
			return nil, protocol.NewCanonicalError(protocol.InvalidToolArguments, map[string]interface{}{"validationErrors": fe.Findings()})
		}
		return nil, protocol.NewCanonicalError(protocol.ToolExecutionFailed, map[string]string{"tool": req.Name, "error": err.Error()})
	}
	return result, nil
}

func (c *Core) handleResourcesList(ctx context.Context, conn *connection.Connection, params json.RawMessage) (interface{}, *protocol.Error) {
	return protocol.ResourceListResult{Resources: c.Resources.List()}, nil
}

func (c *Core) handleResourcesTemplatesList(ctx context.Context, conn *connection.Connection, params json.RawMessage) (interface{}, *protocol.Error) {
	return protocol.ResourceTemplateListResult{ResourceTemplates: c.Resources.ListTemplates()}, nil
}

func (c *Core) handleResourcesRead(ctx context.Context, conn *connection.Connection, params json.RawMessage) (interface{}, *protocol.Error) {
	var req protocol.ReadResourceParams
	if rpcErr := router.DecodeParams(params, &req); rpcErr != nil {
		return nil, rpcErr
	}
	result, err := c.Resources.Read(ctx, req.URI)
	if err != nil {
		return nil, protocol.NewCanonicalError(protocol.ResourceNotFound, map[string]string{"uri": req.URI, "error": err.Error()})
	}
	return result, nil
}

func (c *Core) handleResourcesSubscribe(ctx context.Context, conn *connection.Connection, params json.RawMessage) (interface{}, *protocol.Error) {
	var req protocol.SubscribeResourceParams
	if rpcErr := router.DecodeParams(params, &req); rpcErr != nil {
		return nil, rpcErr
	}
	if !c.Resources.Exists(req.URI) {
		return nil, protocol.NewCanonicalError(protocol.ResourceSubscriptionNotSupported, map[string]string{"uri": req.URI})
	}
	c.Hub.Subscribe(req.URI, &resourceObserver{conn: conn, core: c})
	return map[string]interface{}{}, nil
}

func (c *Core) handleResourcesUnsubscribe(ctx context.Context, conn *connection.Connection, params json.RawMessage) (interface{}, *protocol.Error) {
	var req protocol.SubscribeResourceParams
	if rpcErr := router.DecodeParams(params, &req); rpcErr != nil {
		return nil, rpcErr
	}
	c.Hub.Unsubscribe(req.URI, conn.ID)
	return map[string]interface{}{}, nil
}

// resourceObserver adapts a Connection into a subscription.Observer,
// forwarding each event as notifications/resources/updated. One instance
// is created per resources/subscribe call; the hub deduplicates repeat
// subscriptions from the same (uri, observer id) pair.
type resourceObserver struct {
	conn *connection.Connection
	core *Core
}

func (o *resourceObserver) ID() string { return o.conn.ID }

func (o *resourceObserver) Notify(ev subscription.Event) {
	o.core.sendNotification(o.conn, "notifications/resources/updated", protocol.ResourceUpdatedNotification{URI: ev.URI})
}

func (c *Core) handlePromptsList(ctx context.Context, conn *connection.Connection, params json.RawMessage) (interface{}, *protocol.Error) {
	return protocol.PromptListResult{Prompts: c.Prompts.List()}, nil
}

func (c *Core) handlePromptsGet(ctx context.Context, conn *connection.Connection, params json.RawMessage) (interface{}, *protocol.Error) {
	var req protocol.GetPromptParams
	if rpcErr := router.DecodeParams(params, &req); rpcErr != nil {
		return nil, rpcErr
	}
	result, err := c.Prompts.Get(ctx, req.Name, req.Arguments)
	if err != nil {
		if !c.promptExists(req.Name) {
			return nil, protocol.NewCanonicalError(protocol.PromptNotFound, map[string]string{"name": req.Name})
		}
		return nil, protocol.NewCanonicalError(protocol.InvalidPromptArguments, map[string]string{"prompt": req.Name, "error": err.Error()})
	}
	return result, nil
}

func (c *Core) promptExists(name string) bool {
	for _, p := range c.Prompts.List() {
		if p.Name == name {
			return true
		}
	}
	return false
}

// handleRootsList answers the host's own roots/list by serving the cached
// roots snapshot, refreshing it from the client first if the cache is
// stale and the client declared roots support at initialize. The refresh
// itself is the server-initiated request described at RequestRoots: this
// handler exists so a host can inspect the last-known roots without
// waiting on a fresh round trip when the client never advertised roots.
func (c *Core) handleRootsList(ctx context.Context, conn *connection.Connection, params json.RawMessage) (interface{}, *protocol.Error) {
	roots, stale := c.Roots.List()
	if stale && conn.ClientCapabilities().Roots != nil {
		if fresh, err := c.RequestRoots(ctx, conn); err == nil {
			roots = fresh
		}
	}
	return protocol.RootListResult{Roots: roots}, nil
}

// handleRootsListChanged invalidates the cached roots snapshot when the
// client reports its root set changed; the next handleRootsList or
// RequestRoots call re-fetches instead of serving the stale cache.
func (c *Core) handleRootsListChanged(ctx context.Context, conn *connection.Connection, params json.RawMessage) (interface{}, *protocol.Error) {
	c.Roots.Invalidate()
	return nil, nil
}

func (c *Core) handleComplete(ctx context.Context, conn *connection.Connection, params json.RawMessage) (interface{}, *protocol.Error) {
	var req protocol.CompleteParams
	if rpcErr := router.DecodeParams(params, &req); rpcErr != nil {
		return nil, rpcErr
	}

	switch req.Ref.Type {
	case "ref/prompt":
		if !c.promptExists(req.Ref.Name) {
			return nil, protocol.NewCanonicalError(protocol.PromptNotFound, map[string]string{"name": req.Ref.Name})
		}
	case "ref/resource":
		if req.Ref.URI == "" {
			return nil, protocol.NewError(protocol.InvalidParams, "completion ref/resource requires a uri", nil)
		}
	default:
		return nil, protocol.NewError(protocol.InvalidParams, fmt.Sprintf("unknown completion ref type %q", req.Ref.Type), nil)
	}

	// No candidate source is wired in yet (tool/resource authors supply
	// completions, and none are registered here), so every valid ref
	// completes to an empty, exhausted candidate set rather than an error.
	return protocol.CompleteResult{Completion: protocol.CompletionValues{Values: []string{}, HasMore: false}}, nil
}

// progressTokenKey is the context key handleToolsCall uses to expose an
// in-flight call's progress token to its tool handler.
type progressTokenKey struct{}

func withProgressToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, progressTokenKey{}, token)
}

// ProgressTokenFromContext returns the progress token a tool handler may
// report progress against, and whether the caller supplied one.
func ProgressTokenFromContext(ctx context.Context) (string, bool) {
	token, ok := ctx.Value(progressTokenKey{}).(string)
	return token, ok
}

// ReportProgress publishes a notifications/progress frame for token,
// recording it in the connection's tracker first so a duplicate or
// post-completion update is rejected rather than resent. Tool handlers
// call this with the token from ProgressTokenFromContext.
func (c *Core) ReportProgress(conn *connection.Connection, token string, current float64, total *float64, message string) error {
	tracker := c.ProgressTrackerFor(conn.ID)
	if err := tracker.Update(token, current, total, message); err != nil {
		return err
	}
	note := protocol.ProgressNotification{ProgressToken: token, Progress: current}
	if total != nil {
		note.Total = *total
	}
	c.sendNotification(conn, "notifications/progress", note)
	return nil
}

// requestFromClient sends a server-initiated request over conn and blocks
// until the matching response arrives or ctx is done. roots/list and
// sampling/createMessage are the only two methods this drives: both are
// requests the *client* implements. The outbound request does not go
// through router.Handle (sampling/createMessage has no registration; the
// registered roots/list handler serves the inbound method, see
// registerBuiltins) and is completed on the return path through
// Connection.Resolve, which the read pump already calls for every inbound
// FrameResponse.
func (c *Core) requestFromClient(ctx context.Context, conn *connection.Connection, method string, params interface{}) (json.RawMessage, error) {
	id := uuid.New().String()
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("marshal %s params: %w", method, err)
	}
	frame, err := protocol.EncodeRequest(&protocol.Request{
		JSONRPC: protocol.JSONRPCVersion,
		ID:      protocol.NewStringRequestID(id),
		Method:  method,
		Params:  raw,
	})
	if err != nil {
		return nil, fmt.Errorf("encode %s request: %w", method, err)
	}

	resultCh, cancel := conn.TrackRequest(ctx, id)
	defer cancel()

	if err := conn.Enqueue(frame); err != nil {
		return nil, fmt.Errorf("enqueue %s request: %w", method, err)
	}

	select {
	case resp := <-resultCh:
		if resp.Error != nil {
			return nil, fmt.Errorf("%s failed: %s", method, resp.Error.Message)
		}
		return resp.Result, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// RequestRoots asks the client for its current roots, caching and
// returning the result. Call when the cached Roots snapshot is stale
// (Roots.List's second return value) and the client declared roots
// support at initialize.
func (c *Core) RequestRoots(ctx context.Context, conn *connection.Connection) ([]protocol.Root, error) {
	raw, err := c.requestFromClient(ctx, conn, "roots/list", map[string]interface{}{})
	if err != nil {
		return nil, err
	}
	var result protocol.RootListResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("decode roots/list result: %w", err)
	}
	c.Roots.Set(result.Roots)
	return result.Roots, nil
}

// RequestSampling asks the client to run a sampling/createMessage
// completion on the server's behalf. Only meaningful if the client
// declared sampling support at initialize; callers should check
// conn.ClientCapabilities().Sampling first.
func (c *Core) RequestSampling(ctx context.Context, conn *connection.Connection, params protocol.SamplingParams) (*protocol.SamplingResult, error) {
	raw, err := c.requestFromClient(ctx, conn, "sampling/createMessage", params)
	if err != nil {
		return nil, err
	}
	var result protocol.SamplingResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("decode sampling/createMessage result: %w", err)
	}
	return &result, nil
}
