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
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// DefaultMaxFrameBytes bounds a single WebSocket message. A peer that
// exceeds it is disconnected with MessageTooLarge rather than allowed to
// grow the process's memory unbounded.
const DefaultMaxFrameBytes = 4 * 1024 * 1024

// DefaultPingInterval is how often SocketTransport pings an idle peer to
// detect a dead connection faster than TCP keepalive would.
const DefaultPingInterval = 30 * time.Second

// SocketTransport implements Transport over a full-duplex WebSocket
// connection, the variant of the MCP wire protocol that doesn't need
// separate request/response framing because the underlying connection
// already delivers whole messages.
type SocketTransport struct {
	conn *websocket.Conn

	writeMu sync.Mutex
	closed  chan struct{}
	once    sync.Once

	pingStop chan struct{}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// UpgradeSocketTransport upgrades an incoming HTTP request to a WebSocket
// connection and wraps it as a Transport. Callers are responsible for any
// origin/auth checks before calling this; CheckOrigin here always allows,
// matching a server meant to be reached over localhost or behind a
// trusted reverse proxy.
func UpgradeSocketTransport(w http.ResponseWriter, r *http.Request) (*SocketTransport, error) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, fmt.Errorf("upgrade to websocket: %w", err)
	}
	return newSocketTransport(conn), nil
}

func newSocketTransport(conn *websocket.Conn) *SocketTransport {
	conn.SetReadLimit(DefaultMaxFrameBytes)
	t := &SocketTransport{
		conn:     conn,
		closed:   make(chan struct{}),
		pingStop: make(chan struct{}),
	}
	t.startPing()
	return t
}

func (t *SocketTransport) startPing() {
	go func() {
		ticker := time.NewTicker(DefaultPingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-t.pingStop:
				return
			case <-ticker.C:
				t.writeMu.Lock()
				_ = t.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
				t.writeMu.Unlock()
			}
		}
	}()
}

// Send writes one JSON-RPC message as a single WebSocket text frame.
func (t *SocketTransport) Send(ctx context.Context, message []byte) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	select {
	case <-t.closed:
		return fmt.Errorf("transport closed")
	default:
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = t.conn.SetWriteDeadline(deadline)
	}
	return t.conn.WriteMessage(websocket.TextMessage, message)
}

// Receive reads the next text/binary WebSocket message. A frame exceeding
// DefaultMaxFrameBytes surfaces as an error from the underlying
// gorilla/websocket reader, which enforces the read limit set in
// newSocketTransport.
func (t *SocketTransport) Receive(ctx context.Context) ([]byte, error) {
	type result struct {
		data []byte
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		_, data, err := t.conn.ReadMessage()
		ch <- result{data: data, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		return r.data, r.err
	}
}

// Close terminates the WebSocket connection and stops the ping loop.
func (t *SocketTransport) Close() error {
	var err error
	t.once.Do(func() {
		close(t.closed)
		close(t.pingStop)
		t.writeMu.Lock()
		_ = t.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		t.writeMu.Unlock()
		err = t.conn.Close()
	})
	return err
}
