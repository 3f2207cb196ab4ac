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

// Package router dispatches decoded JSON-RPC requests to their registered
// handlers, running each through a middleware chain and handling the
// method-not-found and malformed-params cases uniformly.
package router

import (
	"context"
	"encoding/json"

	"github.com/teradata-labs/weft/pkg/mcp/connection"
	"github.com/teradata-labs/weft/pkg/mcp/protocol"
)

// HandlerFunc processes one request's params and returns the value to
// marshal into the response's result field, or an *protocol.Error.
type HandlerFunc func(ctx context.Context, conn *connection.Connection, params json.RawMessage) (interface{}, *protocol.Error)

// Middleware wraps a HandlerFunc, typically to enforce auth, validate
// capability/version preconditions, or apply rate limiting before the
// inner handler runs.
type Middleware func(next HandlerFunc) HandlerFunc

// Router holds the method table and the middleware chain applied to every
// registered handler.
type Router struct {
	handlers   map[string]HandlerFunc
	middleware []Middleware
}

// New creates an empty Router.
func New() *Router {
	return &Router{handlers: make(map[string]HandlerFunc)}
}

// Use appends middleware to the chain. Middleware registered before a
// Handle call wraps that handler; call Use before Handle for every method
// that needs it, typically during server construction.
func (r *Router) Use(mw ...Middleware) {
	r.middleware = append(r.middleware, mw...)
}

// Handle registers fn for method, wrapped by every middleware registered
// so far via Use, innermost-last (the first Use call runs outermost).
func (r *Router) Handle(method string, fn HandlerFunc) {
	wrapped := fn
	for i := len(r.middleware) - 1; i >= 0; i-- {
		wrapped = r.middleware[i](wrapped)
	}
	r.handlers[method] = wrapped
}

// Dispatch runs the request through the registered handler for
// req.Method, translating the result or error into a Response. Unknown
// methods yield protocol.MethodNotFound.
func (r *Router) Dispatch(ctx context.Context, conn *connection.Connection, req *protocol.Request) *protocol.Response {
	handler, ok := r.handlers[req.Method]
	if !ok {
		return errorResponse(req.ID, protocol.NewCanonicalError(protocol.MethodNotFound, map[string]string{"method": req.Method}))
	}

	result, rpcErr := handler(ctx, conn, req.Params)
	if rpcErr != nil {
		return errorResponse(req.ID, rpcErr)
	}

	payload, err := json.Marshal(result)
	if err != nil {
		return errorResponse(req.ID, protocol.NewCanonicalError(protocol.InternalError, nil))
	}
	return &protocol.Response{JSONRPC: protocol.JSONRPCVersion, ID: req.ID, Result: payload}
}

// Methods returns every registered method name, for capability
// advertisement and diagnostics.
func (r *Router) Methods() []string {
	names := make([]string, 0, len(r.handlers))
	for m := range r.handlers {
		names = append(names, m)
	}
	return names
}

func errorResponse(id *protocol.RequestID, rpcErr *protocol.Error) *protocol.Response {
	return &protocol.Response{JSONRPC: protocol.JSONRPCVersion, ID: id, Error: rpcErr}
}

// DecodeParams unmarshals raw into dst, translating a decode failure into
// a protocol.InvalidParams error ready to return from a HandlerFunc.
func DecodeParams(raw json.RawMessage, dst interface{}) *protocol.Error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return protocol.NewError(protocol.InvalidParams, "invalid params: "+err.Error(), nil)
	}
	return nil
}
