package mcphost

import (
	"context"
	"errors"
	"log/slog"

	"github.com/compose-mcp/mcp-compose-go/internal/jsonrpc"
	"github.com/compose-mcp/mcp-compose-go/mcp"
	"github.com/compose-mcp/mcp-compose-go/mcpservice"
	"github.com/compose-mcp/mcp-compose-go/sessions"
)

// drain collects every page of a listing into one slice. Merged views
// are recomputed per read, so pagination happens once at the parent
// rather than being stitched across children.
func drain[T any](list func(cursor *string) (mcpservice.Page[T], error)) ([]T, error) {
	var out []T
	var cursor *string
	for {
		page, err := list(cursor)
		if err != nil {
			return nil, err
		}
		out = append(out, page.Items...)
		if page.NextCursor == nil {
			return out, nil
		}
		cursor = page.NextCursor
	}
}

// --- per-link child views -------------------------------------------

func (e *mountEntry) listTools(ctx context.Context, parent sessions.Session) ([]mcp.Tool, error) {
	if e.mode == ModeDirect {
		return drain(func(cursor *string) (mcpservice.Page[mcp.Tool], error) {
			return e.child.ListTools(ctx, parent, cursor)
		})
	}
	var out []mcp.Tool
	err := e.withSession(ctx, parent, func(p *proxySession) error {
		cursor := ""
		for {
			var res mcp.ListToolsResult
			req := mcp.ListToolsRequest{PaginatedRequest: mcp.PaginatedRequest{Cursor: cursor}}
			if err := p.call(ctx, string(mcp.ToolsListMethod), req, &res); err != nil {
				return err
			}
			out = append(out, res.Tools...)
			if res.NextCursor == "" {
				return nil
			}
			cursor = res.NextCursor
		}
	})
	return out, err
}

func (e *mountEntry) callTool(ctx context.Context, parent sessions.Session, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if e.mode == ModeDirect {
		return e.child.CallTool(ctx, parent, req)
	}
	var res mcp.CallToolResult
	err := e.withSession(ctx, parent, func(p *proxySession) error {
		return p.call(ctx, string(mcp.ToolsCallMethod), req, &res)
	})
	if err != nil {
		return nil, err
	}
	return &res, nil
}

func (e *mountEntry) listResources(ctx context.Context, parent sessions.Session) ([]mcp.Resource, error) {
	if e.mode == ModeDirect {
		return drain(func(cursor *string) (mcpservice.Page[mcp.Resource], error) {
			return e.child.ListResources(ctx, parent, cursor)
		})
	}
	var out []mcp.Resource
	err := e.withSession(ctx, parent, func(p *proxySession) error {
		cursor := ""
		for {
			var res mcp.ListResourcesResult
			req := mcp.ListResourcesRequest{PaginatedRequest: mcp.PaginatedRequest{Cursor: cursor}}
			if err := p.call(ctx, string(mcp.ResourcesListMethod), req, &res); err != nil {
				return err
			}
			out = append(out, res.Resources...)
			if res.NextCursor == "" {
				return nil
			}
			cursor = res.NextCursor
		}
	})
	return out, err
}

func (e *mountEntry) listResourceTemplates(ctx context.Context, parent sessions.Session) ([]mcp.ResourceTemplate, error) {
	if e.mode == ModeDirect {
		return drain(func(cursor *string) (mcpservice.Page[mcp.ResourceTemplate], error) {
			return e.child.ListResourceTemplates(ctx, parent, cursor)
		})
	}
	var out []mcp.ResourceTemplate
	err := e.withSession(ctx, parent, func(p *proxySession) error {
		cursor := ""
		for {
			var res mcp.ListResourceTemplatesResult
			req := mcp.ListResourceTemplatesRequest{PaginatedRequest: mcp.PaginatedRequest{Cursor: cursor}}
			if err := p.call(ctx, string(mcp.ResourcesTemplatesListMethod), req, &res); err != nil {
				return err
			}
			out = append(out, res.ResourceTemplates...)
			if res.NextCursor == "" {
				return nil
			}
			cursor = res.NextCursor
		}
	})
	return out, err
}

func (e *mountEntry) readResource(ctx context.Context, parent sessions.Session, uri string) ([]mcp.ResourceContents, error) {
	if e.mode == ModeDirect {
		return e.child.ReadResource(ctx, parent, uri)
	}
	var res mcp.ReadResourceResult
	err := e.withSession(ctx, parent, func(p *proxySession) error {
		return p.call(ctx, string(mcp.ResourcesReadMethod), mcp.ReadResourceRequest{URI: uri}, &res)
	})
	if err != nil {
		return nil, err
	}
	return res.Contents, nil
}

func (e *mountEntry) listPrompts(ctx context.Context, parent sessions.Session) ([]mcp.Prompt, error) {
	if e.mode == ModeDirect {
		return drain(func(cursor *string) (mcpservice.Page[mcp.Prompt], error) {
			return e.child.ListPrompts(ctx, parent, cursor)
		})
	}
	var out []mcp.Prompt
	err := e.withSession(ctx, parent, func(p *proxySession) error {
		cursor := ""
		for {
			var res mcp.ListPromptsResult
			req := mcp.ListPromptsRequest{PaginatedRequest: mcp.PaginatedRequest{Cursor: cursor}}
			if err := p.call(ctx, string(mcp.PromptsListMethod), req, &res); err != nil {
				return err
			}
			out = append(out, res.Prompts...)
			if res.NextCursor == "" {
				return nil
			}
			cursor = res.NextCursor
		}
	})
	return out, err
}

func (e *mountEntry) getPrompt(ctx context.Context, parent sessions.Session, req *mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	if e.mode == ModeDirect {
		return e.child.GetPrompt(ctx, parent, req)
	}
	var res mcp.GetPromptResult
	err := e.withSession(ctx, parent, func(p *proxySession) error {
		return p.call(ctx, string(mcp.PromptsGetMethod), req, &res)
	})
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// unresolved reports whether a delegated call failed because the
// stripped identifier did not resolve inside the child, as opposed to
// the invocation itself failing. Direct children surface the typed
// NotFoundError; across a proxy hop the same condition arrives as the
// invalid-params wire code.
func unresolved(err error) bool {
	var nf *NotFoundError
	if errors.As(err, &nf) {
		return true
	}
	var rpcErr *jsonrpc.Error
	return errors.As(err, &rpcErr) && rpcErr.Code == jsonrpc.ErrorCodeInvalidParams
}

// --- merged capability surface --------------------------------------

// ListTools implements mcpservice.ToolsCapability over the merged
// view: local tools first, then each mount's tools under its prefix,
// in mount order. A local name shadows any prefixed name that would
// collide with it; between mounts, the earlier mount wins.
func (h *Host) ListTools(ctx context.Context, session sessions.Session, cursor *string) (mcpservice.Page[mcp.Tool], error) {
	local := h.tools.Snapshot()
	seen := make(map[string]struct{}, len(local))
	merged := make([]mcp.Tool, 0, len(local))
	for _, t := range local {
		seen[t.Name] = struct{}{}
		merged = append(merged, t)
	}
	for _, e := range h.entries() {
		tools, err := e.listTools(ctx, session)
		if err != nil {
			h.log.ErrorContext(e.logCtx(ctx), "mount.list.fail", slog.String("err", err.Error()))
			return mcpservice.Page[mcp.Tool]{}, err
		}
		for _, t := range tools {
			t.Name = applyPrefix(e.prefix, e.seps.Tool, t.Name)
			if _, dup := seen[t.Name]; dup {
				continue
			}
			seen[t.Name] = struct{}{}
			merged = append(merged, t)
		}
	}
	return mcpservice.PageSlice(merged, cursor, h.defaults.PageSize), nil
}

// CallTool implements mcpservice.ToolsCapability. Local tools resolve
// first; otherwise links are tried in mount order with the local name
// restored. A link whose prefix strips but whose child cannot resolve
// the stripped name passes the call to the next link; NotFound is
// returned only once every link is exhausted.
func (h *Host) CallTool(ctx context.Context, session sessions.Session, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if req == nil || req.Name == "" {
		return nil, &NotFoundError{Kind: KindTool, Identifier: ""}
	}
	if h.tools.Has(req.Name) {
		return h.tools.CallTool(ctx, session, req)
	}
	for _, e := range h.entries() {
		childName, ok := stripPrefix(e.prefix, e.seps.Tool, req.Name)
		if !ok {
			continue
		}
		delegated := *req
		delegated.Name = childName
		res, err := e.callTool(e.logCtx(ctx), session, &delegated)
		if err != nil && unresolved(err) {
			continue
		}
		return res, err
	}
	return nil, &NotFoundError{Kind: KindTool, Identifier: req.Name}
}

// ListResources implements mcpservice.ResourcesCapability over the
// merged view.
func (h *Host) ListResources(ctx context.Context, session sessions.Session, cursor *string) (mcpservice.Page[mcp.Resource], error) {
	local := h.resources.Snapshot()
	seen := make(map[string]struct{}, len(local))
	merged := make([]mcp.Resource, 0, len(local))
	for _, r := range local {
		seen[r.URI] = struct{}{}
		merged = append(merged, r)
	}
	for _, e := range h.entries() {
		resources, err := e.listResources(ctx, session)
		if err != nil {
			h.log.ErrorContext(e.logCtx(ctx), "mount.list.fail", slog.String("err", err.Error()))
			return mcpservice.Page[mcp.Resource]{}, err
		}
		for _, r := range resources {
			r.URI = applyPrefix(e.prefix, e.seps.Resource, r.URI)
			if _, dup := seen[r.URI]; dup {
				continue
			}
			seen[r.URI] = struct{}{}
			merged = append(merged, r)
		}
	}
	return mcpservice.PageSlice(merged, cursor, h.defaults.PageSize), nil
}

// ListResourceTemplates implements mcpservice.ResourcesCapability over
// the merged view.
func (h *Host) ListResourceTemplates(ctx context.Context, session sessions.Session, cursor *string) (mcpservice.Page[mcp.ResourceTemplate], error) {
	local := h.resources.TemplateSnapshot()
	seen := make(map[string]struct{}, len(local))
	merged := make([]mcp.ResourceTemplate, 0, len(local))
	for _, t := range local {
		seen[t.URITemplate] = struct{}{}
		merged = append(merged, t)
	}
	for _, e := range h.entries() {
		templates, err := e.listResourceTemplates(ctx, session)
		if err != nil {
			h.log.ErrorContext(e.logCtx(ctx), "mount.list.fail", slog.String("err", err.Error()))
			return mcpservice.Page[mcp.ResourceTemplate]{}, err
		}
		for _, t := range templates {
			t.URITemplate = applyPrefix(e.prefix, e.seps.Resource, t.URITemplate)
			if _, dup := seen[t.URITemplate]; dup {
				continue
			}
			seen[t.URITemplate] = struct{}{}
			merged = append(merged, t)
		}
	}
	return mcpservice.PageSlice(merged, cursor, h.defaults.PageSize), nil
}

// ReadResource implements mcpservice.ResourcesCapability. Local
// resources and templates resolve first; otherwise links are tried in
// mount order with the local URI restored, falling through to the next
// link when the matched child cannot resolve the stripped URI.
func (h *Host) ReadResource(ctx context.Context, session sessions.Session, uri string) ([]mcp.ResourceContents, error) {
	if uri == "" {
		return nil, &NotFoundError{Kind: KindResource, Identifier: uri}
	}
	if h.resources.HasMatch(uri) {
		return h.resources.ReadResource(ctx, session, uri)
	}
	for _, e := range h.entries() {
		childURI, ok := stripPrefix(e.prefix, e.seps.Resource, uri)
		if !ok {
			continue
		}
		contents, err := e.readResource(e.logCtx(ctx), session, childURI)
		if err != nil && unresolved(err) {
			continue
		}
		return contents, err
	}
	return nil, &NotFoundError{Kind: KindResource, Identifier: uri}
}

// ListPrompts implements mcpservice.PromptsCapability over the merged
// view.
func (h *Host) ListPrompts(ctx context.Context, session sessions.Session, cursor *string) (mcpservice.Page[mcp.Prompt], error) {
	local := h.prompts.Snapshot()
	seen := make(map[string]struct{}, len(local))
	merged := make([]mcp.Prompt, 0, len(local))
	for _, p := range local {
		seen[p.Name] = struct{}{}
		merged = append(merged, p)
	}
	for _, e := range h.entries() {
		prompts, err := e.listPrompts(ctx, session)
		if err != nil {
			h.log.ErrorContext(e.logCtx(ctx), "mount.list.fail", slog.String("err", err.Error()))
			return mcpservice.Page[mcp.Prompt]{}, err
		}
		for _, p := range prompts {
			p.Name = applyPrefix(e.prefix, e.seps.Prompt, p.Name)
			if _, dup := seen[p.Name]; dup {
				continue
			}
			seen[p.Name] = struct{}{}
			merged = append(merged, p)
		}
	}
	return mcpservice.PageSlice(merged, cursor, h.defaults.PageSize), nil
}

// GetPrompt implements mcpservice.PromptsCapability. Resolution order
// matches CallTool.
func (h *Host) GetPrompt(ctx context.Context, session sessions.Session, req *mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	if req == nil || req.Name == "" {
		return nil, &NotFoundError{Kind: KindPrompt, Identifier: ""}
	}
	if h.prompts.Has(req.Name) {
		return h.prompts.GetPrompt(ctx, session, req)
	}
	for _, e := range h.entries() {
		childName, ok := stripPrefix(e.prefix, e.seps.Prompt, req.Name)
		if !ok {
			continue
		}
		delegated := *req
		delegated.Name = childName
		res, err := e.getPrompt(e.logCtx(ctx), session, &delegated)
		if err != nil && unresolved(err) {
			continue
		}
		return res, err
	}
	return nil, &NotFoundError{Kind: KindPrompt, Identifier: req.Name}
}

var (
	_ mcpservice.ToolsCapability     = (*Host)(nil)
	_ mcpservice.ResourcesCapability = (*Host)(nil)
	_ mcpservice.PromptsCapability   = (*Host)(nil)
)
