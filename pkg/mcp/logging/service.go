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

// Package logging implements the MCP protocol-level logging capability:
// notifications/message emitted toward a connection, gated by the
// minimum severity that connection set via logging/setLevel. This is
// distinct from the server's own operator-facing zap logging, which
// records the server's own operational history rather than forwarding
// application log lines to connected clients.
package logging

import (
	"fmt"
	"sync"
)

// Level is an RFC 5424 syslog severity, ordered from most to least severe
// in reverse: the MCP spec enumerates Debug as least severe and Emergency
// as most severe, and setLevel admits anything at or above the configured
// minimum.
type Level string

const (
	LevelDebug     Level = "debug"
	LevelInfo      Level = "info"
	LevelNotice    Level = "notice"
	LevelWarning   Level = "warning"
	LevelError     Level = "error"
	LevelCritical  Level = "critical"
	LevelAlert     Level = "alert"
	LevelEmergency Level = "emergency"
)

var severityRank = map[Level]int{
	LevelDebug:     0,
	LevelInfo:      1,
	LevelNotice:    2,
	LevelWarning:   3,
	LevelError:     4,
	LevelCritical:  5,
	LevelAlert:     6,
	LevelEmergency: 7,
}

// ParseLevel validates and normalizes a level string from a
// logging/setLevel request.
func ParseLevel(s string) (Level, error) {
	l := Level(s)
	if _, ok := severityRank[l]; !ok {
		return "", fmt.Errorf("unknown log level %q", s)
	}
	return l, nil
}

// Sink delivers a single notifications/message payload to its connection.
// The router supplies the implementation; this package only decides
// whether a message clears the configured threshold.
type Sink func(level Level, logger string, data interface{})

// Service tracks each connection's minimum log level and gates
// notifications/message emission accordingly.
type Service struct {
	mu        sync.RWMutex
	minLevels map[string]Level // connection id -> minimum level
	sinks     map[string]Sink
}

// NewService creates a Service with no connections registered. The
// default minimum level for a connection that never called
// logging/setLevel is LevelInfo, per the Non-goals-adjacent guidance that
// debug-level chatter should be opt-in.
func NewService() *Service {
	return &Service{
		minLevels: make(map[string]Level),
		sinks:     make(map[string]Sink),
	}
}

// Attach registers a connection's delivery sink.
func (s *Service) Attach(connectionID string, sink Sink) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sinks[connectionID] = sink
	if _, ok := s.minLevels[connectionID]; !ok {
		s.minLevels[connectionID] = LevelInfo
	}
}

// Detach removes a connection's sink and level, e.g. on disconnect.
func (s *Service) Detach(connectionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sinks, connectionID)
	delete(s.minLevels, connectionID)
}

// SetLevel applies a logging/setLevel request for connectionID.
func (s *Service) SetLevel(connectionID string, level Level) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.minLevels[connectionID] = level
}

// Log delivers a message to connectionID's sink if level clears its
// configured minimum. A no-op for unattached connections.
func (s *Service) Log(connectionID string, level Level, logger string, data interface{}) {
	s.mu.RLock()
	min, hasMin := s.minLevels[connectionID]
	sink, hasSink := s.sinks[connectionID]
	s.mu.RUnlock()

	if !hasSink {
		return
	}
	if hasMin && severityRank[level] < severityRank[min] {
		return
	}
	sink(level, logger, data)
}

// Broadcast delivers a message to every attached connection whose minimum
// level admits it.
func (s *Service) Broadcast(level Level, logger string, data interface{}) {
	s.mu.RLock()
	type target struct {
		sink Sink
	}
	var targets []target
	for id, sink := range s.sinks {
		min := s.minLevels[id]
		if severityRank[level] >= severityRank[min] {
			targets = append(targets, target{sink: sink})
		}
	}
	s.mu.RUnlock()

	for _, tg := range targets {
		tg.sink(level, logger, data)
	}
}
