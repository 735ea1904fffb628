package mcphost

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/compose-mcp/mcp-compose-go/mcp"
	"github.com/compose-mcp/mcp-compose-go/mcpservice"
	"github.com/compose-mcp/mcp-compose-go/sessions"
	"github.com/yosida95/uritemplate/v3"
)

// ImportServer copies the child's current capabilities into this
// host's local registries under prefix. The copy is one-shot: later
// changes to the child, including unmounting the links the child
// itself holds, do not alter what was imported. Definitions the child
// serves through its own mounts are imported as delegating handlers
// bound to those links.
//
// The operation is atomic. Every prefixed identifier is validated
// against the local registries (and the rest of the batch) before
// anything is written; on any collision or invalid template the
// registries are left untouched and the error describes the first
// offender. Composition operations on the same host are mutually
// exclusive, and a commit refused by a racing container-level write
// rolls the whole batch back.
func (h *Host) ImportServer(ctx context.Context, prefix string, child *Host, opts ...ComposeOption) error {
	cfg := composeConfig{seps: h.defaults.separators()}
	for _, opt := range opts {
		opt(&cfg)
	}
	if err := validatePrefixAll(prefix, cfg.seps); err != nil {
		return err
	}
	if child == nil {
		return &NotFoundError{Kind: KindMount, Identifier: prefix}
	}

	h.composeMu.Lock()
	defer h.composeMu.Unlock()

	toolDefs, err := child.exportToolDefs(ctx, nil)
	if err != nil {
		return err
	}
	resourceDefs, err := child.exportResourceDefs(ctx, nil)
	if err != nil {
		return err
	}
	templateDefs, err := child.exportTemplateDefs(ctx, nil)
	if err != nil {
		return err
	}
	promptDefs, err := child.exportPromptDefs(ctx, nil)
	if err != nil {
		return err
	}

	// Phase one: compute prefixed identifiers and validate the whole
	// batch before touching any registry.
	seen := make(map[string]struct{})
	checkName := func(kind Kind, id string, localHas bool) error {
		key := string(kind) + "\x00" + id
		if _, dup := seen[key]; dup || localHas {
			return &CollisionError{Kind: kind, Identifier: id}
		}
		seen[key] = struct{}{}
		return nil
	}

	tools := make([]mcpservice.ToolDef, 0, len(toolDefs))
	for _, d := range toolDefs {
		name := applyPrefix(prefix, cfg.seps.Tool, d.Descriptor.Name)
		if err := checkName(KindTool, name, h.tools.Has(name)); err != nil {
			return err
		}
		tools = append(tools, importToolDef(d, name))
	}

	resources := make([]mcpservice.ResourceDef, 0, len(resourceDefs))
	for _, d := range resourceDefs {
		uri := applyPrefix(prefix, cfg.seps.Resource, d.Descriptor.URI)
		if err := checkName(KindResource, uri, h.resources.HasResource(uri)); err != nil {
			return err
		}
		resources = append(resources, importResourceDef(d, uri))
	}

	templates := make([]mcpservice.TemplateDef, 0, len(templateDefs))
	for _, d := range templateDefs {
		expr := applyPrefix(prefix, cfg.seps.Resource, d.Descriptor.URITemplate)
		if err := checkName(KindResourceTemplate, expr, h.resources.HasTemplate(expr)); err != nil {
			return err
		}
		if _, err := uritemplate.New(expr); err != nil {
			return fmt.Errorf("prefixed template %q is not a valid URI template: %w", expr, err)
		}
		templates = append(templates, importTemplateDef(d, expr, prefix, cfg.seps.Resource))
	}

	prompts := make([]mcpservice.PromptDef, 0, len(promptDefs))
	for _, d := range promptDefs {
		name := applyPrefix(prefix, cfg.seps.Prompt, d.Descriptor.Name)
		if err := checkName(KindPrompt, name, h.prompts.Has(name)); err != nil {
			return err
		}
		prompts = append(prompts, importPromptDef(d, name))
	}

	// Phase two: commit. The composition lock keeps phase one binding
	// against other composition writers, but the registries are also
	// open to container-level writers that do not hold it, so a refused
	// insert rolls the whole batch back.
	var (
		addedTools     []string
		addedResources []string
		addedTemplates []string
		addedPrompts   []string
	)
	rollback := func() {
		for _, name := range addedPrompts {
			h.prompts.Remove(ctx, name)
		}
		for _, expr := range addedTemplates {
			h.resources.RemoveTemplate(ctx, expr)
		}
		for _, uri := range addedResources {
			h.resources.RemoveResource(ctx, uri)
		}
		for _, name := range addedTools {
			h.tools.Remove(ctx, name)
		}
	}
	for _, d := range tools {
		if !h.tools.Add(ctx, d) {
			rollback()
			return &CollisionError{Kind: KindTool, Identifier: d.Descriptor.Name}
		}
		addedTools = append(addedTools, d.Descriptor.Name)
	}
	for _, d := range resources {
		if !h.resources.AddResource(ctx, d) {
			rollback()
			return &CollisionError{Kind: KindResource, Identifier: d.Descriptor.URI}
		}
		addedResources = append(addedResources, d.Descriptor.URI)
	}
	for _, d := range templates {
		if err := h.resources.AddTemplate(ctx, d); err != nil {
			rollback()
			return err
		}
		addedTemplates = append(addedTemplates, d.Descriptor.URITemplate)
	}
	for _, d := range prompts {
		if !h.prompts.Add(ctx, d) {
			rollback()
			return &CollisionError{Kind: KindPrompt, Identifier: d.Descriptor.Name}
		}
		addedPrompts = append(addedPrompts, d.Descriptor.Name)
	}

	h.log.InfoContext(ctx, "import.apply",
		slog.String("prefix", prefix),
		slog.String("child", child.info.Name),
		slog.Int("tools", len(tools)),
		slog.Int("resources", len(resources)),
		slog.Int("templates", len(templates)),
		slog.Int("prompts", len(prompts)))
	h.notifyAll(ctx)
	return nil
}

// importToolDef renames a tool definition and pins the original name
// so the underlying handler still sees the identifier it was defined
// under.
func importToolDef(d mcpservice.ToolDef, name string) mcpservice.ToolDef {
	childName := d.Descriptor.Name
	handler := d.Handler
	desc := d.Descriptor
	desc.Name = name
	return mcpservice.ToolDef{
		Descriptor: desc,
		Handler: func(ctx context.Context, s sessions.Session, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			delegated := *req
			delegated.Name = childName
			return handler(ctx, s, &delegated)
		},
	}
}

func importResourceDef(d mcpservice.ResourceDef, uri string) mcpservice.ResourceDef {
	childURI := d.Descriptor.URI
	handler := d.Handler
	desc := d.Descriptor
	desc.URI = uri
	return mcpservice.ResourceDef{
		Descriptor: desc,
		Handler: func(ctx context.Context, s sessions.Session, _ string) ([]mcp.ResourceContents, error) {
			return handler(ctx, s, childURI)
		},
	}
}

// importTemplateDef rewrites a template expression and strips the
// prefix from each concrete expansion before handing the read to the
// original handler.
func importTemplateDef(d mcpservice.TemplateDef, expr, prefix, sep string) mcpservice.TemplateDef {
	handler := d.Handler
	desc := d.Descriptor
	desc.URITemplate = expr
	return mcpservice.TemplateDef{
		Descriptor: desc,
		Handler: func(ctx context.Context, s sessions.Session, uri string) ([]mcp.ResourceContents, error) {
			childURI, ok := stripPrefix(prefix, sep, uri)
			if !ok {
				return nil, &NotFoundError{Kind: KindResource, Identifier: uri}
			}
			return handler(ctx, s, childURI)
		},
	}
}

func importPromptDef(d mcpservice.PromptDef, name string) mcpservice.PromptDef {
	childName := d.Descriptor.Name
	handler := d.Handler
	desc := d.Descriptor
	desc.Name = name
	return mcpservice.PromptDef{
		Descriptor: desc,
		Handler: func(ctx context.Context, s sessions.Session, req *mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
			delegated := *req
			delegated.Name = childName
			return handler(ctx, s, &delegated)
		},
	}
}

// --- merged definition export ---------------------------------------

// exportToolDefs returns the host's merged tool definitions: local
// records as-is, plus one delegating record per tool visible through
// each mount, named under the mount's prefix. Shadowed names are
// omitted, matching the merged listing.
func (h *Host) exportToolDefs(ctx context.Context, session sessions.Session) ([]mcpservice.ToolDef, error) {
	defs := h.tools.Definitions()
	seen := make(map[string]struct{}, len(defs))
	for _, d := range defs {
		seen[d.Descriptor.Name] = struct{}{}
	}
	for _, e := range h.entries() {
		tools, err := e.listTools(ctx, session)
		if err != nil {
			return nil, err
		}
		for _, t := range tools {
			inner := t.Name
			t.Name = applyPrefix(e.prefix, e.seps.Tool, inner)
			if _, dup := seen[t.Name]; dup {
				continue
			}
			seen[t.Name] = struct{}{}
			defs = append(defs, mcpservice.ToolDef{
				Descriptor: t,
				Handler: func(ctx context.Context, s sessions.Session, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
					delegated := *req
					delegated.Name = inner
					return e.callTool(ctx, s, &delegated)
				},
			})
		}
	}
	return defs, nil
}

func (h *Host) exportResourceDefs(ctx context.Context, session sessions.Session) ([]mcpservice.ResourceDef, error) {
	defs := h.resources.Definitions()
	seen := make(map[string]struct{}, len(defs))
	for _, d := range defs {
		seen[d.Descriptor.URI] = struct{}{}
	}
	for _, e := range h.entries() {
		resources, err := e.listResources(ctx, session)
		if err != nil {
			return nil, err
		}
		for _, r := range resources {
			inner := r.URI
			r.URI = applyPrefix(e.prefix, e.seps.Resource, inner)
			if _, dup := seen[r.URI]; dup {
				continue
			}
			seen[r.URI] = struct{}{}
			defs = append(defs, mcpservice.ResourceDef{
				Descriptor: r,
				Handler: func(ctx context.Context, s sessions.Session, _ string) ([]mcp.ResourceContents, error) {
					return e.readResource(ctx, s, inner)
				},
			})
		}
	}
	return defs, nil
}

func (h *Host) exportTemplateDefs(ctx context.Context, session sessions.Session) ([]mcpservice.TemplateDef, error) {
	defs := h.resources.TemplateDefinitions()
	seen := make(map[string]struct{}, len(defs))
	for _, d := range defs {
		seen[d.Descriptor.URITemplate] = struct{}{}
	}
	for _, e := range h.entries() {
		templates, err := e.listResourceTemplates(ctx, session)
		if err != nil {
			return nil, err
		}
		for _, t := range templates {
			prefix, sep := e.prefix, e.seps.Resource
			t.URITemplate = applyPrefix(prefix, sep, t.URITemplate)
			if _, dup := seen[t.URITemplate]; dup {
				continue
			}
			seen[t.URITemplate] = struct{}{}
			defs = append(defs, mcpservice.TemplateDef{
				Descriptor: t,
				Handler: func(ctx context.Context, s sessions.Session, uri string) ([]mcp.ResourceContents, error) {
					childURI, ok := stripPrefix(prefix, sep, uri)
					if !ok {
						return nil, &NotFoundError{Kind: KindResource, Identifier: uri}
					}
					return e.readResource(ctx, s, childURI)
				},
			})
		}
	}
	return defs, nil
}

func (h *Host) exportPromptDefs(ctx context.Context, session sessions.Session) ([]mcpservice.PromptDef, error) {
	defs := h.prompts.Definitions()
	seen := make(map[string]struct{}, len(defs))
	for _, d := range defs {
		seen[d.Descriptor.Name] = struct{}{}
	}
	for _, e := range h.entries() {
		prompts, err := e.listPrompts(ctx, session)
		if err != nil {
			return nil, err
		}
		for _, p := range prompts {
			inner := p.Name
			p.Name = applyPrefix(e.prefix, e.seps.Prompt, inner)
			if _, dup := seen[p.Name]; dup {
				continue
			}
			seen[p.Name] = struct{}{}
			defs = append(defs, mcpservice.PromptDef{
				Descriptor: p,
				Handler: func(ctx context.Context, s sessions.Session, req *mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
					delegated := *req
					delegated.Name = inner
					return e.getPrompt(ctx, s, &delegated)
				},
			})
		}
	}
	return defs, nil
}
