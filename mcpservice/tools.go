package mcpservice

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/compose-mcp/mcp-compose-go/mcp"
	"github.com/compose-mcp/mcp-compose-go/sessions"
	"github.com/invopop/jsonschema"
)

// ToolHandler is the function signature used to handle a tool
// invocation. The handler is the opaque executable part of a tool; the
// composition engine never inspects it, it only moves and invokes it.
type ToolHandler func(ctx context.Context, session sessions.Session, req *mcp.CallToolRequest) (*mcp.CallToolResult, error)

// ToolDef pairs a tool descriptor with its handler. It is the registry
// record for the tool kind.
type ToolDef struct {
	Descriptor mcp.Tool
	Handler    ToolHandler
}

// ToolOption configures NewTool behavior.
type ToolOption func(*toolConfig)

type toolConfig struct {
	description               string
	allowAdditionalProperties bool
}

// WithToolDescription sets the tool description used in listings.
func WithToolDescription(desc string) ToolOption {
	return func(c *toolConfig) { c.description = desc }
}

// WithToolAllowAdditionalProperties controls whether unknown argument
// fields are allowed. When false (the default), the generated schema
// sets additionalProperties=false and decoding rejects unknown fields.
func WithToolAllowAdditionalProperties(allow bool) ToolOption {
	return func(c *toolConfig) { c.allowAdditionalProperties = allow }
}

// NewTool constructs a ToolDef from a typed args struct A. The input
// schema is reflected from A, and the handler decodes raw arguments
// into A before invoking fn.
func NewTool[A any](name string, fn func(ctx context.Context, session sessions.Session, args A) (*mcp.CallToolResult, error), opts ...ToolOption) ToolDef {
	cfg := toolConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	desc := mcp.Tool{
		Name:        name,
		Description: cfg.description,
		InputSchema: reflectInputSchema[A](cfg.allowAdditionalProperties),
	}

	handler := func(ctx context.Context, session sessions.Session, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var a A
		if len(req.Arguments) > 0 {
			if cfg.allowAdditionalProperties {
				if err := json.Unmarshal(req.Arguments, &a); err != nil {
					return Errorf("invalid arguments: %v", err), nil
				}
			} else {
				dec := json.NewDecoder(bytes.NewReader(req.Arguments))
				dec.DisallowUnknownFields()
				if err := dec.Decode(&a); err != nil {
					return Errorf("invalid arguments: %v", err), nil
				}
			}
		}
		return fn(ctx, session, a)
	}

	return ToolDef{Descriptor: desc, Handler: handler}
}

// reflectInputSchema reflects a Go type A into a jsonschema.Schema and
// down-converts it to the simplified mcp.ToolInputSchema.
func reflectInputSchema[A any](allowAdditional bool) mcp.ToolInputSchema {
	r := &jsonschema.Reflector{
		DoNotReference:            true,
		ExpandedStruct:            true,
		AllowAdditionalProperties: allowAdditional,
	}
	s := r.Reflect(new(A))

	// Only object schemas map onto the tool input shape. Anything else
	// is exposed as an empty object.
	if s == nil || s.Type != "object" {
		return mcp.ToolInputSchema{
			Type:                 "object",
			Properties:           map[string]mcp.SchemaProperty{},
			AdditionalProperties: allowAdditional,
		}
	}

	props := make(map[string]mcp.SchemaProperty)
	if s.Properties != nil {
		for el := s.Properties.Oldest(); el != nil; el = el.Next() {
			props[el.Key] = toSchemaProperty(el.Value)
		}
	}
	var required []string
	if len(s.Required) > 0 {
		required = append(required, s.Required...)
	}
	return mcp.ToolInputSchema{
		Type:                 "object",
		Properties:           props,
		Required:             required,
		AdditionalProperties: allowAdditional,
	}
}

// toSchemaProperty recursively maps a jsonschema.Schema to the
// simplified mcp.SchemaProperty.
func toSchemaProperty(s *jsonschema.Schema) mcp.SchemaProperty {
	if s == nil {
		return mcp.SchemaProperty{}
	}
	p := mcp.SchemaProperty{
		Type:        s.Type,
		Description: s.Description,
	}
	if len(s.Enum) > 0 {
		p.Enum = s.Enum
	}
	if s.Type == "array" && s.Items != nil {
		item := toSchemaProperty(s.Items)
		p.Items = &item
	}
	if s.Type == "object" && s.Properties != nil {
		m := make(map[string]mcp.SchemaProperty, s.Properties.Len())
		for el := s.Properties.Oldest(); el != nil; el = el.Next() {
			m[el.Key] = toSchemaProperty(el.Value)
		}
		p.Properties = m
	}
	return p
}

// ToolsContainer owns a mutable, thread-safe set of tool definitions.
// It is the per-host registry for the tool kind and embeds a
// ChangeNotifier so composition layers can observe list changes.
type ToolsContainer struct {
	mu       sync.RWMutex
	tools    []mcp.Tool             // descriptors in registration order
	handlers map[string]ToolHandler // name -> handler

	notifier ChangeNotifier

	pageSize int
}

// NewToolsContainer constructs a container with the given definitions.
func NewToolsContainer(defs ...ToolDef) *ToolsContainer {
	tc := &ToolsContainer{pageSize: DefaultPageSize}
	tc.Replace(context.Background(), defs...)
	return tc
}

// SetPageSize sets the pagination size used by ListTools. Values < 1
// are ignored.
func (tc *ToolsContainer) SetPageSize(n int) {
	if n < 1 {
		return
	}
	tc.mu.Lock()
	tc.pageSize = n
	tc.mu.Unlock()
}

// Snapshot returns a copy of the current tool descriptors.
func (tc *ToolsContainer) Snapshot() []mcp.Tool {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	out := make([]mcp.Tool, len(tc.tools))
	copy(out, tc.tools)
	return out
}

// Definitions returns a copy of the current definition records,
// descriptors paired with handlers. Composition uses this to take the
// deep-copy snapshot an import requires.
func (tc *ToolsContainer) Definitions() []ToolDef {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	out := make([]ToolDef, 0, len(tc.tools))
	for _, t := range tc.tools {
		out = append(out, ToolDef{Descriptor: t, Handler: tc.handlers[t.Name]})
	}
	return out
}

// Has reports whether a tool with the given name is registered.
func (tc *ToolsContainer) Has(name string) bool {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	_, ok := tc.handlers[name]
	return ok
}

// Replace atomically replaces the entire tool set. Last write wins on
// duplicate names.
func (tc *ToolsContainer) Replace(_ context.Context, defs ...ToolDef) {
	tc.mu.Lock()
	tc.tools = make([]mcp.Tool, 0, len(defs))
	tc.handlers = make(map[string]ToolHandler, len(defs))
	for _, d := range defs {
		tc.tools = append(tc.tools, d.Descriptor)
		if d.Handler != nil {
			tc.handlers[d.Descriptor.Name] = d.Handler
		}
	}
	tc.mu.Unlock()
	go func() { _ = tc.notifier.Notify(context.Background()) }()
}

// Add registers a new tool. Returns false without mutating when the
// name is already taken or empty.
func (tc *ToolsContainer) Add(_ context.Context, def ToolDef) bool {
	name := def.Descriptor.Name
	if name == "" {
		return false
	}
	tc.mu.Lock()
	if tc.handlers == nil {
		tc.handlers = make(map[string]ToolHandler)
	}
	if _, exists := tc.handlers[name]; exists {
		tc.mu.Unlock()
		return false
	}
	tc.tools = append(tc.tools, def.Descriptor)
	if def.Handler != nil {
		tc.handlers[name] = def.Handler
	}
	tc.mu.Unlock()
	go func() { _ = tc.notifier.Notify(context.Background()) }()
	return true
}

// Remove removes a tool by name. Returns true if removed.
func (tc *ToolsContainer) Remove(_ context.Context, name string) bool {
	tc.mu.Lock()
	n := 0
	removed := false
	for _, t := range tc.tools {
		if t.Name == name {
			removed = true
			continue
		}
		tc.tools[n] = t
		n++
	}
	if removed {
		tc.tools = tc.tools[:n]
		delete(tc.handlers, name)
	}
	tc.mu.Unlock()
	if removed {
		go func() { _ = tc.notifier.Notify(context.Background()) }()
	}
	return removed
}

// ListTools implements ToolsCapability.
func (tc *ToolsContainer) ListTools(ctx context.Context, session sessions.Session, cursor *string) (Page[mcp.Tool], error) {
	tc.mu.RLock()
	all := make([]mcp.Tool, len(tc.tools))
	copy(all, tc.tools)
	pageSize := tc.pageSize
	tc.mu.RUnlock()
	return PageSlice(all, cursor, pageSize), nil
}

// CallTool implements ToolsCapability.
func (tc *ToolsContainer) CallTool(ctx context.Context, session sessions.Session, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if req == nil || req.Name == "" {
		return nil, fmt.Errorf("invalid tool request: missing name")
	}
	tc.mu.RLock()
	h := tc.handlers[req.Name]
	tc.mu.RUnlock()
	if h == nil {
		return nil, fmt.Errorf("tool not found: %s", req.Name)
	}
	return h(ctx, session, req)
}

// Subscriber implements ChangeSubscriber.
func (tc *ToolsContainer) Subscriber() <-chan struct{} {
	return tc.notifier.Subscriber()
}

// Close closes every subscriber channel. Further mutations still apply
// but no longer notify.
func (tc *ToolsContainer) Close() {
	tc.notifier.Close()
}

// TextResult builds a CallToolResult holding a single text block.
func TextResult(s string) *mcp.CallToolResult {
	return &mcp.CallToolResult{Content: []mcp.ContentBlock{{Type: "text", Text: s}}}
}

// Errorf builds an error CallToolResult with a single text block and
// IsError set.
func Errorf(format string, a ...any) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.ContentBlock{{Type: "text", Text: fmt.Sprintf(format, a...)}},
		IsError: true,
	}
}
