package mcpservice

import (
	"context"

	"github.com/compose-mcp/mcp-compose-go/mcp"
	"github.com/compose-mcp/mcp-compose-go/sessions"
)

// ToolsCapability is the tools surface of a host or registry.
// Implementations MUST be safe for concurrent use.
type ToolsCapability interface {
	// ListTools returns a (possibly paginated) page of tools visible to
	// the session. A nil cursor requests the first page.
	ListTools(ctx context.Context, session sessions.Session, cursor *string) (Page[mcp.Tool], error)

	// CallTool invokes a named tool with the provided request payload.
	CallTool(ctx context.Context, session sessions.Session, req *mcp.CallToolRequest) (*mcp.CallToolResult, error)
}

// ResourcesCapability is the resources and resource-templates surface
// of a host or registry. Implementations MUST be safe for concurrent
// use.
type ResourcesCapability interface {
	// ListResources returns a page of concrete resources.
	ListResources(ctx context.Context, session sessions.Session, cursor *string) (Page[mcp.Resource], error)

	// ListResourceTemplates returns a page of URI templates.
	ListResourceTemplates(ctx context.Context, session sessions.Session, cursor *string) (Page[mcp.ResourceTemplate], error)

	// ReadResource returns the contents for a resource URI. The URI may
	// address a concrete resource or match a registered template.
	ReadResource(ctx context.Context, session sessions.Session, uri string) ([]mcp.ResourceContents, error)
}

// PromptsCapability is the prompts surface of a host or registry.
// Implementations MUST be safe for concurrent use.
type PromptsCapability interface {
	// ListPrompts returns a page of prompt descriptors.
	ListPrompts(ctx context.Context, session sessions.Session, cursor *string) (Page[mcp.Prompt], error)

	// GetPrompt materializes the named prompt with the given arguments.
	GetPrompt(ctx context.Context, session sessions.Session, req *mcp.GetPromptRequest) (*mcp.GetPromptResult, error)
}

// ChangeSubscriber is implemented by capability sources that can signal
// list changes. Each call to Subscriber returns an independent channel
// that receives a tick per change; ticks are coalesced under load.
type ChangeSubscriber interface {
	Subscriber() <-chan struct{}
}
