package mcpservice

import (
	"context"
	"fmt"
	"sync"

	"github.com/compose-mcp/mcp-compose-go/mcp"
	"github.com/compose-mcp/mcp-compose-go/sessions"
	"github.com/yosida95/uritemplate/v3"
)

// ResourceHandler resolves the contents behind a resource URI. The same
// signature serves both concrete resources and template-backed reads;
// for templates the uri argument is the concrete expansion being read.
type ResourceHandler func(ctx context.Context, session sessions.Session, uri string) ([]mcp.ResourceContents, error)

// ResourceDef pairs a concrete resource descriptor with its handler.
type ResourceDef struct {
	Descriptor mcp.Resource
	Handler    ResourceHandler
}

// TemplateDef pairs a resource template descriptor with its handler.
type TemplateDef struct {
	Descriptor mcp.ResourceTemplate
	Handler    ResourceHandler
}

// NewTextResource builds a ResourceDef serving fixed text contents.
func NewTextResource(uri, name, mimeType, text string) ResourceDef {
	return ResourceDef{
		Descriptor: mcp.Resource{URI: uri, Name: name, MimeType: mimeType},
		Handler: func(ctx context.Context, session sessions.Session, u string) ([]mcp.ResourceContents, error) {
			return []mcp.ResourceContents{{URI: u, MimeType: mimeType, Text: text}}, nil
		},
	}
}

type compiledTemplate struct {
	def TemplateDef
	tpl *uritemplate.Template
}

// ResourcesContainer owns a mutable, thread-safe set of concrete
// resources and URI templates. Reads resolve against exact URIs first,
// then against templates in registration order.
type ResourcesContainer struct {
	mu        sync.RWMutex
	resources []mcp.Resource             // descriptors in registration order
	handlers  map[string]ResourceHandler // uri -> handler
	templates []compiledTemplate         // registration order

	notifier ChangeNotifier

	pageSize int
}

// NewResourcesContainer constructs a container with the given concrete
// resources. Templates are added separately because compilation can
// fail.
func NewResourcesContainer(defs ...ResourceDef) *ResourcesContainer {
	rc := &ResourcesContainer{
		handlers: make(map[string]ResourceHandler, len(defs)),
		pageSize: DefaultPageSize,
	}
	for _, d := range defs {
		rc.resources = append(rc.resources, d.Descriptor)
		if d.Handler != nil {
			rc.handlers[d.Descriptor.URI] = d.Handler
		}
	}
	return rc
}

// SetPageSize sets the pagination size used by the listing methods.
// Values < 1 are ignored.
func (rc *ResourcesContainer) SetPageSize(n int) {
	if n < 1 {
		return
	}
	rc.mu.Lock()
	rc.pageSize = n
	rc.mu.Unlock()
}

// AddResource registers a concrete resource. Returns false without
// mutating when the URI is already taken or empty.
func (rc *ResourcesContainer) AddResource(_ context.Context, def ResourceDef) bool {
	uri := def.Descriptor.URI
	if uri == "" {
		return false
	}
	rc.mu.Lock()
	if _, exists := rc.handlers[uri]; exists {
		rc.mu.Unlock()
		return false
	}
	rc.resources = append(rc.resources, def.Descriptor)
	if def.Handler != nil {
		rc.handlers[uri] = def.Handler
	}
	rc.mu.Unlock()
	go func() { _ = rc.notifier.Notify(context.Background()) }()
	return true
}

// RemoveResource removes a concrete resource by URI.
func (rc *ResourcesContainer) RemoveResource(_ context.Context, uri string) bool {
	rc.mu.Lock()
	n := 0
	removed := false
	for _, r := range rc.resources {
		if r.URI == uri {
			removed = true
			continue
		}
		rc.resources[n] = r
		n++
	}
	if removed {
		rc.resources = rc.resources[:n]
		delete(rc.handlers, uri)
	}
	rc.mu.Unlock()
	if removed {
		go func() { _ = rc.notifier.Notify(context.Background()) }()
	}
	return removed
}

// AddTemplate registers a URI template. The template expression is
// compiled eagerly so malformed templates fail at registration time,
// not at read time.
func (rc *ResourcesContainer) AddTemplate(_ context.Context, def TemplateDef) error {
	expr := def.Descriptor.URITemplate
	if expr == "" {
		return fmt.Errorf("resource template: empty uriTemplate")
	}
	tpl, err := uritemplate.New(expr)
	if err != nil {
		return fmt.Errorf("resource template %q: %w", expr, err)
	}
	rc.mu.Lock()
	for _, ct := range rc.templates {
		if ct.def.Descriptor.URITemplate == expr {
			rc.mu.Unlock()
			return fmt.Errorf("resource template %q: already registered", expr)
		}
	}
	rc.templates = append(rc.templates, compiledTemplate{def: def, tpl: tpl})
	rc.mu.Unlock()
	go func() { _ = rc.notifier.Notify(context.Background()) }()
	return nil
}

// RemoveTemplate removes a template by its expression.
func (rc *ResourcesContainer) RemoveTemplate(_ context.Context, expr string) bool {
	rc.mu.Lock()
	n := 0
	removed := false
	for _, ct := range rc.templates {
		if ct.def.Descriptor.URITemplate == expr {
			removed = true
			continue
		}
		rc.templates[n] = ct
		n++
	}
	if removed {
		rc.templates = rc.templates[:n]
	}
	rc.mu.Unlock()
	if removed {
		go func() { _ = rc.notifier.Notify(context.Background()) }()
	}
	return removed
}

// Snapshot returns a copy of the concrete resource descriptors.
func (rc *ResourcesContainer) Snapshot() []mcp.Resource {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	out := make([]mcp.Resource, len(rc.resources))
	copy(out, rc.resources)
	return out
}

// TemplateSnapshot returns a copy of the template descriptors.
func (rc *ResourcesContainer) TemplateSnapshot() []mcp.ResourceTemplate {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	out := make([]mcp.ResourceTemplate, 0, len(rc.templates))
	for _, ct := range rc.templates {
		out = append(out, ct.def.Descriptor)
	}
	return out
}

// Definitions returns a copy of the concrete resource definition
// records, descriptors paired with handlers.
func (rc *ResourcesContainer) Definitions() []ResourceDef {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	out := make([]ResourceDef, 0, len(rc.resources))
	for _, r := range rc.resources {
		out = append(out, ResourceDef{Descriptor: r, Handler: rc.handlers[r.URI]})
	}
	return out
}

// TemplateDefinitions returns a copy of the template definition records.
func (rc *ResourcesContainer) TemplateDefinitions() []TemplateDef {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	out := make([]TemplateDef, 0, len(rc.templates))
	for _, ct := range rc.templates {
		out = append(out, ct.def)
	}
	return out
}

// HasResource reports whether a concrete resource with the URI exists.
func (rc *ResourcesContainer) HasResource(uri string) bool {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	_, ok := rc.handlers[uri]
	return ok
}

// HasMatch reports whether uri would resolve against this container,
// either as an exact resource or through a template.
func (rc *ResourcesContainer) HasMatch(uri string) bool {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	if _, ok := rc.handlers[uri]; ok {
		return true
	}
	for _, ct := range rc.templates {
		if ct.tpl.Match(uri) != nil {
			return true
		}
	}
	return false
}

// HasTemplate reports whether a template with the expression exists.
func (rc *ResourcesContainer) HasTemplate(expr string) bool {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	for _, ct := range rc.templates {
		if ct.def.Descriptor.URITemplate == expr {
			return true
		}
	}
	return false
}

// ListResources implements ResourcesCapability.
func (rc *ResourcesContainer) ListResources(ctx context.Context, session sessions.Session, cursor *string) (Page[mcp.Resource], error) {
	rc.mu.RLock()
	all := make([]mcp.Resource, len(rc.resources))
	copy(all, rc.resources)
	pageSize := rc.pageSize
	rc.mu.RUnlock()
	return PageSlice(all, cursor, pageSize), nil
}

// ListResourceTemplates implements ResourcesCapability.
func (rc *ResourcesContainer) ListResourceTemplates(ctx context.Context, session sessions.Session, cursor *string) (Page[mcp.ResourceTemplate], error) {
	rc.mu.RLock()
	all := make([]mcp.ResourceTemplate, 0, len(rc.templates))
	for _, ct := range rc.templates {
		all = append(all, ct.def.Descriptor)
	}
	pageSize := rc.pageSize
	rc.mu.RUnlock()
	return PageSlice(all, cursor, pageSize), nil
}

// ReadResource implements ResourcesCapability. Exact URIs win over
// templates; among templates the first registered match wins.
func (rc *ResourcesContainer) ReadResource(ctx context.Context, session sessions.Session, uri string) ([]mcp.ResourceContents, error) {
	rc.mu.RLock()
	h := rc.handlers[uri]
	var templates []compiledTemplate
	if h == nil {
		templates = make([]compiledTemplate, len(rc.templates))
		copy(templates, rc.templates)
	}
	rc.mu.RUnlock()

	if h != nil {
		return h(ctx, session, uri)
	}
	for _, ct := range templates {
		if ct.tpl.Match(uri) != nil {
			return ct.def.Handler(ctx, session, uri)
		}
	}
	return nil, fmt.Errorf("resource not found: %s", uri)
}

// Subscriber implements ChangeSubscriber.
func (rc *ResourcesContainer) Subscriber() <-chan struct{} {
	return rc.notifier.Subscriber()
}

// Close closes every subscriber channel. Further mutations still apply
// but no longer notify.
func (rc *ResourcesContainer) Close() {
	rc.notifier.Close()
}
