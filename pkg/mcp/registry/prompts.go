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

	"github.com/teradata-labs/weft/pkg/mcp/protocol"
)

// PromptRenderer renders a prompt's messages given caller-supplied
// arguments.
type PromptRenderer func(ctx context.Context, arguments map[string]interface{}) (*protocol.GetPromptResult, error)

type promptEntry struct {
	def      protocol.Prompt
	renderer PromptRenderer
}

// Prompts is the server's prompt catalog.
type Prompts struct {
	catalog *catalog[*promptEntry]
}

// NewPrompts creates an empty Prompts catalog.
func NewPrompts(onChange ChangeNotifier) *Prompts {
	return &Prompts{catalog: newCatalog[*promptEntry](onChange)}
}

// Register adds a prompt definition and renderer.
func (p *Prompts) Register(def protocol.Prompt, renderer PromptRenderer) error {
	return p.catalog.register(def.Name, &promptEntry{def: def, renderer: renderer})
}

// Unregister removes a prompt by name.
func (p *Prompts) Unregister(name string) error {
	return p.catalog.unregister(name)
}

// List returns every registered prompt, sorted by name.
func (p *Prompts) List() []protocol.Prompt {
	names := p.catalog.list()
	out := make([]protocol.Prompt, 0, len(names))
	for _, name := range names {
		entry, _ := p.catalog.get(name)
		out = append(out, entry.def)
	}
	return out
}

// Get validates required arguments are present and renders the prompt.
func (p *Prompts) Get(ctx context.Context, name string, arguments map[string]interface{}) (*protocol.GetPromptResult, error) {
	entry, ok := p.catalog.get(name)
	if !ok {
		return nil, fmt.Errorf("prompt %q not found", name)
	}

	for _, arg := range entry.def.Arguments {
		if !arg.Required {
			continue
		}
		if _, present := arguments[arg.Name]; !present {
			return nil, fmt.Errorf("prompt %q: missing required argument %q", name, arg.Name)
		}
	}

	return entry.renderer(ctx, arguments)
}
