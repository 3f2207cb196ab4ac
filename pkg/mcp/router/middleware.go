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

package router

import (
	"context"
	"encoding/json"

	"github.com/teradata-labs/weft/pkg/mcp/connection"
	"github.com/teradata-labs/weft/pkg/mcp/protocol"
)

// Authenticator decides whether a connection may invoke method at all.
// Concrete credential checking (OAuth, API keys, mTLS) is out of scope
// here; Authenticator only defines the seam a host application wires its
// own policy into.
type Authenticator interface {
	Authenticate(ctx context.Context, conn *connection.Connection, method string) error
}

// RateLimiter decides whether a connection may invoke method right now.
// Concrete policy (token bucket, sliding window, per-tenant quota) is out
// of scope; RateLimiter only defines the seam.
type RateLimiter interface {
	Allow(ctx context.Context, conn *connection.Connection, method string) bool
}

// RequireReady rejects any request before the connection reaches
// StateReady, except the handful of methods the handshake itself needs
// (initialize, notifications/initialized, ping).
func RequireReady(method string, exempt map[string]bool) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		if exempt[method] {
			return next
		}
		return func(ctx context.Context, conn *connection.Connection, params json.RawMessage) (interface{}, *protocol.Error) {
			if conn.State() != connection.StateReady {
				return nil, protocol.NewCanonicalError(protocol.ServerNotInitialized, nil)
			}
			return next(ctx, conn, params)
		}
	}
}

// CapabilitySupported reports whether the server has the named capability
// (tools, resources, prompts, logging, roots, completion, sampling)
// enabled. Core supplies this by consulting the ServerCapabilities it
// advertised at initialize.
type CapabilitySupported func(capability string) bool

// RequireCapability rejects a method whose owning capability the server
// did not advertise, per the capability-negotiation rule in the router's
// dispatch contract.
func RequireCapability(capability string, supported CapabilitySupported) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, conn *connection.Connection, params json.RawMessage) (interface{}, *protocol.Error) {
			if supported == nil || !supported(capability) {
				return nil, protocol.NewCanonicalError(protocol.CapabilityNotSupported, map[string]string{"capability": capability})
			}
			return next(ctx, conn, params)
		}
	}
}

// WithAuth rejects requests an Authenticator declines, translating its
// error into protocol.Unauthenticated.
func WithAuth(auth Authenticator, method string) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, conn *connection.Connection, params json.RawMessage) (interface{}, *protocol.Error) {
			if auth != nil {
				if err := auth.Authenticate(ctx, conn, method); err != nil {
					return nil, protocol.NewError(protocol.Unauthenticated, err.Error(), nil)
				}
			}
			return next(ctx, conn, params)
		}
	}
}

// WithRateLimit rejects requests a RateLimiter declines, translating the
// refusal into protocol.RateLimitExceeded.
func WithRateLimit(limiter RateLimiter, method string) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, conn *connection.Connection, params json.RawMessage) (interface{}, *protocol.Error) {
			if limiter != nil && !limiter.Allow(ctx, conn, method) {
				return nil, protocol.NewCanonicalError(protocol.RateLimitExceeded, map[string]string{"method": method})
			}
			return next(ctx, conn, params)
		}
	}
}

// Recover converts a panicking handler into an InternalError response
// instead of taking down the connection's dispatch goroutine.
func Recover() Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, conn *connection.Connection, params json.RawMessage) (result interface{}, rpcErr *protocol.Error) {
			defer func() {
				if r := recover(); r != nil {
					result = nil
					rpcErr = protocol.NewCanonicalError(protocol.InternalError, nil)
				}
			}()
			return next(ctx, conn, params)
		}
	}
}
