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
	"regexp"
	"strings"

	"github.com/teradata-labs/weft/pkg/mcp/protocol"
)

// ResourceReader fetches the contents of a concrete resource URI.
type ResourceReader func(ctx context.Context, uri string) (*protocol.ReadResourceResult, error)

// TemplateExpander fetches a resource matched against a template, given
// the URI that matched it.
type TemplateExpander func(ctx context.Context, uri string) (*protocol.ReadResourceResult, error)

type resourceEntry struct {
	def    protocol.Resource
	reader ResourceReader
}

type templateEntry struct {
	def      protocol.ResourceTemplate
	pattern  *regexp.Regexp
	expander TemplateExpander
}

// Resources is the server's resource catalog, covering both concrete
// resources and URI templates.
type Resources struct {
	catalog   *catalog[*resourceEntry]
	templates *catalog[*templateEntry]
}

// NewResources creates an empty Resources catalog. onChange fires after
// every mutation to either concrete resources or templates.
func NewResources(onChange ChangeNotifier) *Resources {
	return &Resources{
		catalog:   newCatalog[*resourceEntry](onChange),
		templates: newCatalog[*templateEntry](onChange),
	}
}

// Register adds a concrete resource.
func (r *Resources) Register(def protocol.Resource, reader ResourceReader) error {
	return r.catalog.register(def.URI, &resourceEntry{def: def, reader: reader})
}

// Unregister removes a concrete resource by URI.
func (r *Resources) Unregister(uri string) error {
	return r.catalog.unregister(uri)
}

// RegisterTemplate adds a URI template. The template's {name} placeholders
// become a matching regexp so a read against a non-registered concrete URI
// can still be routed to the template's expander.
func (r *Resources) RegisterTemplate(def protocol.ResourceTemplate, expander TemplateExpander) error {
	pattern, err := compileTemplate(def.URITemplate)
	if err != nil {
		return fmt.Errorf("template %q: %w", def.URITemplate, err)
	}
	return r.templates.register(def.URITemplate, &templateEntry{def: def, pattern: pattern, expander: expander})
}

// UnregisterTemplate removes a URI template.
func (r *Resources) UnregisterTemplate(uriTemplate string) error {
	return r.templates.unregister(uriTemplate)
}

// List returns every concrete resource, sorted by URI.
func (r *Resources) List() []protocol.Resource {
	names := r.catalog.list()
	out := make([]protocol.Resource, 0, len(names))
	for _, name := range names {
		entry, _ := r.catalog.get(name)
		out = append(out, entry.def)
	}
	return out
}

// ListTemplates returns every registered resource template, sorted by
// template string.
func (r *Resources) ListTemplates() []protocol.ResourceTemplate {
	names := r.templates.list()
	out := make([]protocol.ResourceTemplate, 0, len(names))
	for _, name := range names {
		entry, _ := r.templates.get(name)
		out = append(out, entry.def)
	}
	return out
}

// Exists reports whether uri is registered as a concrete resource (not a
// template match). Subscriptions are only offered against concrete
// resources: a template has no single identity to subscribe to.
func (r *Resources) Exists(uri string) bool {
	_, ok := r.catalog.get(uri)
	return ok
}

// Read resolves a URI against concrete resources first, then templates in
// sorted template-string order; registration order is not kept, and the
// first template whose pattern matches wins. Returns an error if nothing
// matches.
func (r *Resources) Read(ctx context.Context, uri string) (*protocol.ReadResourceResult, error) {
	if entry, ok := r.catalog.get(uri); ok {
		return entry.reader(ctx, uri)
	}

	for _, name := range r.templates.list() {
		entry, ok := r.templates.get(name)
		if !ok {
			continue
		}
		if entry.pattern.MatchString(uri) {
			return entry.expander(ctx, uri)
		}
	}

	return nil, fmt.Errorf("resource %q not found and no template matched", uri)
}

// compileTemplate turns an RFC 6570-style simple URI template (only
// {name} expansions, no operators) into a matching regexp.
func compileTemplate(tmpl string) (*regexp.Regexp, error) {
	var sb strings.Builder
	sb.WriteString("^")
	i := 0
	for i < len(tmpl) {
		if tmpl[i] == '{' {
			end := strings.IndexByte(tmpl[i:], '}')
			if end == -1 {
				return nil, fmt.Errorf("unterminated placeholder at offset %d", i)
			}
			sb.WriteString("[^/]+")
			i += end + 1
			continue
		}
		sb.WriteString(regexp.QuoteMeta(string(tmpl[i])))
		i++
	}
	sb.WriteString("$")
	return regexp.Compile(sb.String())
}
