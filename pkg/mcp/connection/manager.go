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

package connection

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/teradata-labs/weft/pkg/mcp/transport"
)

// EventKind classifies a lifecycle event the manager publishes.
type EventKind int

const (
	EventEstablished EventKind = iota
	EventClosed
)

// Event is published whenever a connection is admitted or removed.
type Event struct {
	Kind       EventKind
	Connection *Connection
}

// Manager admits, tracks, and evicts connections. Admission is governed by
// a weighted semaphore so a flood of dial attempts backpressures instead of
// exhausting memory; an idle connection is swept on a cron schedule rather
// than a bare ticker so the sweep cadence reads the same way the rest of
// the operator-facing schedule does.
type Manager struct {
	maxConnections int64
	idleTimeout    time.Duration
	logger         *zap.Logger

	sem *semaphore.Weighted

	mu    sync.RWMutex
	conns map[string]*Connection

	events chan Event

	cron    *cron.Cron
	sweepMu sync.Mutex
}

// Config configures a Manager.
type Config struct {
	MaxConnections int64         // <=0 means unlimited
	IdleTimeout    time.Duration // <=0 disables the idle sweep
	Logger         *zap.Logger
}

// NewManager builds a Manager and starts its idle sweeper if configured.
func NewManager(cfg Config) *Manager {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	var sem *semaphore.Weighted
	if cfg.MaxConnections > 0 {
		sem = semaphore.NewWeighted(cfg.MaxConnections)
	}

	m := &Manager{
		maxConnections: cfg.MaxConnections,
		idleTimeout:    cfg.IdleTimeout,
		logger:         logger,
		sem:            sem,
		conns:          make(map[string]*Connection),
		events:         make(chan Event, 256),
	}

	if cfg.IdleTimeout > 0 {
		m.cron = cron.New(cron.WithSeconds())
		spec := fmt.Sprintf("@every %s", sweepInterval(cfg.IdleTimeout))
		if _, err := m.cron.AddFunc(spec, m.sweepIdle); err != nil {
			logger.Error("failed to schedule idle sweep, idle connections will not be reaped", zap.Error(err))
		} else {
			m.cron.Start()
		}
	}

	return m
}

// sweepInterval runs the sweep at half the idle timeout, floored at one
// second so a very short timeout doesn't produce a zero/negative duration.
func sweepInterval(idle time.Duration) time.Duration {
	d := idle / 2
	if d < time.Second {
		d = time.Second
	}
	return d
}

// Events exposes the manager's lifecycle event stream. The channel is
// never closed by Accept/Remove; callers select over it until Shutdown.
func (m *Manager) Events() <-chan Event {
	return m.events
}

// Accept admits a new connection over t, blocking until a slot is free or
// ctx is cancelled. Returns protocol.ConnectionAdmissionDenied-flavored
// errors to the caller when admission fails; callers are expected to
// translate that into a transport-level rejection.
func (m *Manager) Accept(ctx context.Context, t transport.Transport) (*Connection, error) {
	if m.sem != nil {
		if err := m.sem.Acquire(ctx, 1); err != nil {
			return nil, fmt.Errorf("connection admission denied: %w", err)
		}
	}

	c := New(t)
	if err := c.Transition(StateConnected); err != nil {
		if m.sem != nil {
			m.sem.Release(1)
		}
		return nil, err
	}

	m.mu.Lock()
	m.conns[c.ID] = c
	m.mu.Unlock()

	m.publish(Event{Kind: EventEstablished, Connection: c})
	m.logger.Info("connection established", zap.String("connection_id", c.ID))
	return c, nil
}

// Get returns the connection with the given id, if tracked.
func (m *Manager) Get(id string) (*Connection, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.conns[id]
	return c, ok
}

// Remove closes and untracks a connection, releasing its admission slot.
func (m *Manager) Remove(id string) {
	m.mu.Lock()
	c, ok := m.conns[id]
	if ok {
		delete(m.conns, id)
	}
	m.mu.Unlock()

	if !ok {
		return
	}

	_ = c.Close()
	if m.sem != nil {
		m.sem.Release(1)
	}
	m.publish(Event{Kind: EventClosed, Connection: c})
	m.logger.Info("connection closed", zap.String("connection_id", c.ID))
}

// Broadcast enqueues frame for delivery to every connection currently in
// StateReady. Connections not yet ready are skipped rather than queued,
// since they cannot yet interpret server-initiated notifications.
func (m *Manager) Broadcast(frame []byte) {
	m.mu.RLock()
	targets := make([]*Connection, 0, len(m.conns))
	for _, c := range m.conns {
		if c.State() == StateReady {
			targets = append(targets, c)
		}
	}
	m.mu.RUnlock()

	for _, c := range targets {
		if err := c.Enqueue(frame); err != nil {
			m.logger.Warn("broadcast enqueue failed", zap.String("connection_id", c.ID), zap.Error(err))
		}
	}
}

// Count returns the number of tracked connections.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.conns)
}

func (m *Manager) sweepIdle() {
	m.sweepMu.Lock()
	defer m.sweepMu.Unlock()

	m.mu.RLock()
	var stale []string
	for id, c := range m.conns {
		if c.IdleSince() > m.idleTimeout {
			stale = append(stale, id)
		}
	}
	m.mu.RUnlock()

	for _, id := range stale {
		m.logger.Info("evicting idle connection", zap.String("connection_id", id), zap.Duration("idle_timeout", m.idleTimeout))
		m.Remove(id)
	}
}

// Shutdown stops the idle sweeper and closes every tracked connection.
func (m *Manager) Shutdown() {
	if m.cron != nil {
		ctx := m.cron.Stop()
		<-ctx.Done()
	}

	m.mu.Lock()
	ids := make([]string, 0, len(m.conns))
	for id := range m.conns {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	for _, id := range ids {
		m.Remove(id)
	}
}

func (m *Manager) publish(ev Event) {
	select {
	case m.events <- ev:
	default:
		m.logger.Warn("connection event dropped, subscriber too slow")
	}
}
