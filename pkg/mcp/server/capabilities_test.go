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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teradata-labs/weft/pkg/mcp/connection"
	"github.com/teradata-labs/weft/pkg/mcp/protocol"
)

// readyConnection drives a fresh connection through the real
// initialize/notifications/initialized handshake via the router, the same
// path a live client takes, so every test below exercises the wired
// capability handlers rather than calling them directly.
func readyConnection(t *testing.T, c *Core) *connection.Connection {
	t.Helper()
	conn := newTestConnection()
	require.NoError(t, conn.Transition(connection.StateConnected))

	params, err := json.Marshal(protocol.InitializeParams{ProtocolVersion: protocol.ProtocolVersion})
	require.NoError(t, err)
	req := &protocol.Request{JSONRPC: protocol.JSONRPCVersion, ID: protocol.NewStringRequestID("init"), Method: "initialize", Params: params}
	resp := c.Router.Dispatch(context.Background(), conn, req)
	require.Nil(t, resp.Error)

	initNotif := &protocol.Request{JSONRPC: protocol.JSONRPCVersion, Method: "notifications/initialized"}
	c.Router.Dispatch(context.Background(), conn, initNotif)
	require.Equal(t, connection.StateReady, conn.State())
	return conn
}

func echoToolSchema() map[string]interface{} {
	return map[string]interface{}{
		"type":       "object",
		"required":   []interface{}{"text"},
		"properties": map[string]interface{}{"text": map[string]interface{}{"type": "string"}},
	}
}

func TestCore_ToolsListAndCall(t *testing.T) {
	c := newTestCore()
	require.NoError(t, c.Tools.Register(protocol.Tool{Name: "echo", InputSchema: echoToolSchema()},
		func(ctx context.Context, arguments map[string]interface{}) (*protocol.CallToolResult, error) {
			return &protocol.CallToolResult{Content: []protocol.Content{{Type: "text", Text: arguments["text"].(string)}}}, nil
		}, 0))

	conn := readyConnection(t, c)

	listReq := &protocol.Request{JSONRPC: protocol.JSONRPCVersion, ID: protocol.NewStringRequestID("1"), Method: "tools/list"}
	resp := c.Router.Dispatch(context.Background(), conn, listReq)
	require.Nil(t, resp.Error)
	var list protocol.ToolListResult
	require.NoError(t, json.Unmarshal(resp.Result, &list))
	require.Len(t, list.Tools, 1)
	assert.Equal(t, "echo", list.Tools[0].Name)

	params, _ := json.Marshal(protocol.CallToolParams{Name: "echo", Arguments: map[string]interface{}{"text": "hi"}})
	callReq := &protocol.Request{JSONRPC: protocol.JSONRPCVersion, ID: protocol.NewStringRequestID("2"), Method: "tools/call", Params: params}
	resp = c.Router.Dispatch(context.Background(), conn, callReq)
	require.Nil(t, resp.Error)
	var result protocol.CallToolResult
	require.NoError(t, json.Unmarshal(resp.Result, &result))
	assert.Equal(t, "hi", result.Content[0].Text)
}

func TestCore_ToolsCallInvalidArguments(t *testing.T) {
	c := newTestCore()
	require.NoError(t, c.Tools.Register(protocol.Tool{Name: "echo", InputSchema: echoToolSchema()},
		func(ctx context.Context, arguments map[string]interface{}) (*protocol.CallToolResult, error) {
			return &protocol.CallToolResult{}, nil
		}, 0))

	conn := readyConnection(t, c)

	params, _ := json.Marshal(protocol.CallToolParams{Name: "echo", Arguments: map[string]interface{}{}})
	req := &protocol.Request{JSONRPC: protocol.JSONRPCVersion, ID: protocol.NewStringRequestID("1"), Method: "tools/call", Params: params}
	resp := c.Router.Dispatch(context.Background(), conn, req)
	require.NotNil(t, resp.Error)
	assert.Equal(t, protocol.InvalidToolArguments, resp.Error.Code)
	assert.Contains(t, string(resp.Error.Data), "validationErrors")
}

func TestCore_ToolsCallUnknownTool(t *testing.T) {
	c := newTestCore()
	conn := readyConnection(t, c)

	params, _ := json.Marshal(protocol.CallToolParams{Name: "missing"})
	req := &protocol.Request{JSONRPC: protocol.JSONRPCVersion, ID: protocol.NewStringRequestID("1"), Method: "tools/call", Params: params}
	resp := c.Router.Dispatch(context.Background(), conn, req)
	require.NotNil(t, resp.Error)
	assert.Equal(t, protocol.ToolNotFound, resp.Error.Code)
}

func TestCore_ResourcesReadAndSubscribe(t *testing.T) {
	c := newTestCore()
	require.NoError(t, c.Resources.Register(protocol.Resource{URI: "mem://a", Name: "a"},
		func(ctx context.Context, uri string) (*protocol.ReadResourceResult, error) {
			return &protocol.ReadResourceResult{Contents: []protocol.ResourceContents{{URI: uri, Text: "hello"}}}, nil
		}))

	conn := readyConnection(t, c)

	readParams, _ := json.Marshal(protocol.ReadResourceParams{URI: "mem://a"})
	req := &protocol.Request{JSONRPC: protocol.JSONRPCVersion, ID: protocol.NewStringRequestID("1"), Method: "resources/read", Params: readParams}
	resp := c.Router.Dispatch(context.Background(), conn, req)
	require.Nil(t, resp.Error)
	var result protocol.ReadResourceResult
	require.NoError(t, json.Unmarshal(resp.Result, &result))
	assert.Equal(t, "hello", result.Contents[0].Text)

	subParams, _ := json.Marshal(protocol.SubscribeResourceParams{URI: "mem://a"})
	subReq := &protocol.Request{JSONRPC: protocol.JSONRPCVersion, ID: protocol.NewStringRequestID("2"), Method: "resources/subscribe", Params: subParams}
	resp = c.Router.Dispatch(context.Background(), conn, subReq)
	require.Nil(t, resp.Error)

	unsubReq := &protocol.Request{JSONRPC: protocol.JSONRPCVersion, ID: protocol.NewStringRequestID("3"), Method: "resources/unsubscribe", Params: subParams}
	resp = c.Router.Dispatch(context.Background(), conn, unsubReq)
	require.Nil(t, resp.Error)
}

func TestCore_ResourcesSubscribeRejectsUnregisteredURI(t *testing.T) {
	c := newTestCore()
	conn := readyConnection(t, c)

	subParams, _ := json.Marshal(protocol.SubscribeResourceParams{URI: "mem://missing"})
	req := &protocol.Request{JSONRPC: protocol.JSONRPCVersion, ID: protocol.NewStringRequestID("1"), Method: "resources/subscribe", Params: subParams}
	resp := c.Router.Dispatch(context.Background(), conn, req)
	require.NotNil(t, resp.Error)
	assert.Equal(t, protocol.ResourceSubscriptionNotSupported, resp.Error.Code)
}

func TestCore_PromptsListAndGet(t *testing.T) {
	c := newTestCore()
	require.NoError(t, c.Prompts.Register(protocol.Prompt{
		Name:      "greeting",
		Arguments: []protocol.PromptArgument{{Name: "name", Required: true}},
	}, func(ctx context.Context, arguments map[string]interface{}) (*protocol.GetPromptResult, error) {
		return &protocol.GetPromptResult{Messages: []protocol.PromptMessage{{Role: "user", Content: "hi " + arguments["name"].(string)}}}, nil
	}))

	conn := readyConnection(t, c)

	listReq := &protocol.Request{JSONRPC: protocol.JSONRPCVersion, ID: protocol.NewStringRequestID("1"), Method: "prompts/list"}
	resp := c.Router.Dispatch(context.Background(), conn, listReq)
	require.Nil(t, resp.Error)

	params, _ := json.Marshal(protocol.GetPromptParams{Name: "greeting", Arguments: map[string]interface{}{"name": "ada"}})
	getReq := &protocol.Request{JSONRPC: protocol.JSONRPCVersion, ID: protocol.NewStringRequestID("2"), Method: "prompts/get", Params: params}
	resp = c.Router.Dispatch(context.Background(), conn, getReq)
	require.Nil(t, resp.Error)

	missingParams, _ := json.Marshal(protocol.GetPromptParams{Name: "greeting", Arguments: map[string]interface{}{}})
	badReq := &protocol.Request{JSONRPC: protocol.JSONRPCVersion, ID: protocol.NewStringRequestID("3"), Method: "prompts/get", Params: missingParams}
	resp = c.Router.Dispatch(context.Background(), conn, badReq)
	require.NotNil(t, resp.Error)
	assert.Equal(t, protocol.InvalidPromptArguments, resp.Error.Code)
}

func TestCore_RootsListServesCacheWithoutClientSupport(t *testing.T) {
	c := newTestCore()
	conn := readyConnection(t, c)

	req := &protocol.Request{JSONRPC: protocol.JSONRPCVersion, ID: protocol.NewStringRequestID("1"), Method: "roots/list"}
	resp := c.Router.Dispatch(context.Background(), conn, req)
	require.Nil(t, resp.Error)
	var result protocol.RootListResult
	require.NoError(t, json.Unmarshal(resp.Result, &result))
	assert.Empty(t, result.Roots)
}

func TestCore_RootsListChangedInvalidatesCache(t *testing.T) {
	c := newTestCore()
	conn := readyConnection(t, c)
	c.Roots.Set([]protocol.Root{{URI: "file:///tmp", Name: "tmp"}})

	_, stale := c.Roots.List()
	require.False(t, stale)

	notif := &protocol.Request{JSONRPC: protocol.JSONRPCVersion, Method: "notifications/roots/list_changed"}
	resp := c.Router.Dispatch(context.Background(), conn, notif)
	require.Nil(t, resp.Error)

	_, stale = c.Roots.List()
	assert.True(t, stale)
}

func TestCore_CompletePrompt(t *testing.T) {
	c := newTestCore()
	require.NoError(t, c.Prompts.Register(protocol.Prompt{Name: "greeting"},
		func(ctx context.Context, arguments map[string]interface{}) (*protocol.GetPromptResult, error) {
			return &protocol.GetPromptResult{}, nil
		}))
	conn := readyConnection(t, c)

	params, _ := json.Marshal(protocol.CompleteParams{
		Ref:      protocol.CompletionReference{Type: "ref/prompt", Name: "greeting"},
		Argument: protocol.CompletionArgument{Name: "name", Value: "a"},
	})
	req := &protocol.Request{JSONRPC: protocol.JSONRPCVersion, ID: protocol.NewStringRequestID("1"), Method: "completion/complete", Params: params}
	resp := c.Router.Dispatch(context.Background(), conn, req)
	require.Nil(t, resp.Error)

	missing, _ := json.Marshal(protocol.CompleteParams{Ref: protocol.CompletionReference{Type: "ref/prompt", Name: "nope"}})
	badReq := &protocol.Request{JSONRPC: protocol.JSONRPCVersion, ID: protocol.NewStringRequestID("2"), Method: "completion/complete", Params: missing}
	resp = c.Router.Dispatch(context.Background(), conn, badReq)
	require.NotNil(t, resp.Error)
	assert.Equal(t, protocol.PromptNotFound, resp.Error.Code)
}

func TestCore_CapabilityMethodsRequireReady(t *testing.T) {
	c := newTestCore()
	conn := newTestConnection()

	req := &protocol.Request{JSONRPC: protocol.JSONRPCVersion, ID: protocol.NewStringRequestID("1"), Method: "tools/list"}
	resp := c.Router.Dispatch(context.Background(), conn, req)
	require.NotNil(t, resp.Error)
	assert.Equal(t, protocol.ServerNotInitialized, resp.Error.Code)
}

func TestCore_RequestRootsRoundTrip(t *testing.T) {
	c := newTestCore()
	conn := newTestConnection()

	done := make(chan struct{})
	go func() {
		defer close(done)
		frame := <-conn.Outbound()
		var req protocol.Request
		require.NoError(t, json.Unmarshal(frame, &req))
		assert.Equal(t, "roots/list", req.Method)

		result, _ := json.Marshal(protocol.RootListResult{Roots: []protocol.Root{{URI: "file:///tmp", Name: "tmp"}}})
		conn.Resolve(req.ID.String(), &protocol.Response{JSONRPC: protocol.JSONRPCVersion, ID: req.ID, Result: result})
	}()

	roots, err := c.RequestRoots(context.Background(), conn)
	require.NoError(t, err)
	require.Len(t, roots, 1)
	assert.Equal(t, "file:///tmp", roots[0].URI)
	<-done

	cached, stale := c.Roots.List()
	assert.False(t, stale)
	require.Len(t, cached, 1)
}

func TestCore_RequestSamplingRoundTrip(t *testing.T) {
	c := newTestCore()
	conn := newTestConnection()

	done := make(chan struct{})
	go func() {
		defer close(done)
		frame := <-conn.Outbound()
		var req protocol.Request
		require.NoError(t, json.Unmarshal(frame, &req))
		assert.Equal(t, "sampling/createMessage", req.Method)

		result, _ := json.Marshal(protocol.SamplingResult{Role: "assistant", Content: protocol.Content{Type: "text", Text: "hi"}, Model: "test-model"})
		conn.Resolve(req.ID.String(), &protocol.Response{JSONRPC: protocol.JSONRPCVersion, ID: req.ID, Result: result})
	}()

	result, err := c.RequestSampling(context.Background(), conn, protocol.SamplingParams{MaxTokens: 16})
	require.NoError(t, err)
	assert.Equal(t, "hi", result.Content.Text)
	<-done
}
