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

package transport

import (
	"context"
	"fmt"
	"net"
	"net/http"
)

// SingleShotListener yields exactly one pre-built Transport and then
// reports the listener exhausted, modeling the stdio variant where the
// process itself is the one connection.
type SingleShotListener struct {
	t      Transport
	served bool
}

// NewSingleShotListener wraps t as a one-connection listener.
func NewSingleShotListener(t Transport) *SingleShotListener {
	return &SingleShotListener{t: t}
}

// Accept returns t exactly once, then io.EOF-equivalent on every
// subsequent call.
func (l *SingleShotListener) Accept(ctx context.Context) (Transport, error) {
	if l.served {
		return nil, fmt.Errorf("single-shot listener already served its connection")
	}
	l.served = true
	return l.t, nil
}

// SocketListener accepts raw TCP connections and wraps each one as a
// duplex Transport without any HTTP upgrade handshake, for deployments
// that want a bare framed socket rather than WebSocket-over-HTTP.
type SocketListener struct {
	ln net.Listener
}

// NewSocketListener wraps a net.Listener (e.g. from net.Listen("tcp", addr)).
func NewSocketListener(ln net.Listener) *SocketListener {
	return &SocketListener{ln: ln}
}

// Accept blocks until a TCP connection arrives, wrapping it as a
// line-framed Transport identical in framing to the stdio variant.
func (l *SocketListener) Accept(ctx context.Context) (Transport, error) {
	conn, err := l.ln.Accept()
	if err != nil {
		return nil, err
	}
	return NewStdioServerTransport(conn, conn), nil
}

// HTTPUpgradeListener bridges an http.Server's WebSocket upgrade requests
// into the Listener interface by handing each upgraded connection to a
// channel that Accept drains.
type HTTPUpgradeListener struct {
	conns chan Transport
}

// NewHTTPUpgradeListener creates a listener whose ServeHTTP method should
// be mounted at the server's socket-transport endpoint.
func NewHTTPUpgradeListener() *HTTPUpgradeListener {
	return &HTTPUpgradeListener{conns: make(chan Transport)}
}

// ServeHTTP upgrades the request to a WebSocket and publishes it to
// Accept. Blocks until the transport is retrieved or the request context
// ends.
func (l *HTTPUpgradeListener) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	t, err := UpgradeSocketTransport(w, r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	select {
	case l.conns <- t:
	case <-r.Context().Done():
		_ = t.Close()
	}
}

// Accept returns the next upgraded connection.
func (l *HTTPUpgradeListener) Accept(ctx context.Context) (Transport, error) {
	select {
	case t := <-l.conns:
		return t, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
