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

package registry

import (
	"context"
	"fmt"

	"golang.org/x/sync/semaphore"

	"github.com/teradata-labs/weft/pkg/mcp/protocol"
)

// ToolHandler executes a tool call. A non-nil error is surfaced as a
// JSON-RPC error; a tool-level failure the caller should see as data (not
// a protocol error) should instead be returned via CallToolResult.IsError.
type ToolHandler func(ctx context.Context, arguments map[string]interface{}) (*protocol.CallToolResult, error)

// toolEntry pairs a tool's definition with its handler and an optional
// per-tool concurrency cap.
type toolEntry struct {
	def     protocol.Tool
	handler ToolHandler
	sem     *semaphore.Weighted
}

// Tools is the server's tool catalog.
type Tools struct {
	catalog *catalog[*toolEntry]
}

// NewTools creates an empty Tools catalog. onChange fires after every
// Register/Unregister so the server can emit tools/list_changed.
func NewTools(onChange ChangeNotifier) *Tools {
	return &Tools{catalog: newCatalog[*toolEntry](onChange)}
}

// Register adds a tool definition and handler. maxConcurrent <= 0 means
// unbounded concurrent calls to this tool.
func (t *Tools) Register(def protocol.Tool, handler ToolHandler, maxConcurrent int64) error {
	entry := &toolEntry{def: def, handler: handler}
	if maxConcurrent > 0 {
		entry.sem = semaphore.NewWeighted(maxConcurrent)
	}
	return t.catalog.register(def.Name, entry)
}

// Unregister removes a tool by name.
func (t *Tools) Unregister(name string) error {
	return t.catalog.unregister(name)
}

// List returns every registered tool definition, sorted by name.
func (t *Tools) List() []protocol.Tool {
	names := t.catalog.list()
	out := make([]protocol.Tool, 0, len(names))
	for _, name := range names {
		entry, _ := t.catalog.get(name)
		out = append(out, entry.def)
	}
	return out
}

// Execute validates arguments against the tool's schema, acquires its
// concurrency slot if one is configured, and invokes its handler. Schema
// violations and unknown tools are returned as errors; a handler's own
// CallToolResult.IsError is left untouched for the caller to forward.
func (t *Tools) Execute(ctx context.Context, name string, arguments map[string]interface{}) (*protocol.CallToolResult, error) {
	entry, ok := t.catalog.get(name)
	if !ok {
		return nil, fmt.Errorf("tool %q not found", name)
	}

	if errs := protocol.ValidateToolArguments(entry.def, arguments); errs.Blocking() {
		return nil, &toolArgumentError{tool: name, errs: errs}
	}

	if entry.sem != nil {
		if err := entry.sem.Acquire(ctx, 1); err != nil {
			return nil, fmt.Errorf("tool %q at capacity: %w", name, err)
		}
		defer entry.sem.Release(1)
	}

	return entry.handler(ctx, arguments)
}

// toolArgumentError reports schema validation failures for a tool call.
type toolArgumentError struct {
	tool string
	errs protocol.ValidationErrors
}

func (e *toolArgumentError) Error() string {
	return fmt.Sprintf("invalid arguments for tool %q: %d finding(s)", e.tool, len(e.errs))
}

// Findings exposes the underlying validation errors for callers that want
// to surface per-field detail in the error response's data field.
func (e *toolArgumentError) Findings() protocol.ValidationErrors {
	return e.errs
}
