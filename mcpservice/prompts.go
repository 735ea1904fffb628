package mcpservice

import (
	"context"
	"fmt"
	"sync"

	"github.com/compose-mcp/mcp-compose-go/mcp"
	"github.com/compose-mcp/mcp-compose-go/sessions"
)

// PromptHandler materializes a prompt with the caller's arguments.
type PromptHandler func(ctx context.Context, session sessions.Session, req *mcp.GetPromptRequest) (*mcp.GetPromptResult, error)

// PromptDef pairs a prompt descriptor with its handler.
type PromptDef struct {
	Descriptor mcp.Prompt
	Handler    PromptHandler
}

// PromptsContainer owns a mutable, thread-safe set of prompt
// definitions.
type PromptsContainer struct {
	mu       sync.RWMutex
	prompts  []mcp.Prompt
	handlers map[string]PromptHandler

	notifier ChangeNotifier

	pageSize int
}

// NewPromptsContainer constructs a container with the given definitions.
func NewPromptsContainer(defs ...PromptDef) *PromptsContainer {
	pc := &PromptsContainer{
		handlers: make(map[string]PromptHandler, len(defs)),
		pageSize: DefaultPageSize,
	}
	for _, d := range defs {
		pc.prompts = append(pc.prompts, d.Descriptor)
		if d.Handler != nil {
			pc.handlers[d.Descriptor.Name] = d.Handler
		}
	}
	return pc
}

// SetPageSize sets the pagination size used by ListPrompts. Values < 1
// are ignored.
func (pc *PromptsContainer) SetPageSize(n int) {
	if n < 1 {
		return
	}
	pc.mu.Lock()
	pc.pageSize = n
	pc.mu.Unlock()
}

// Add registers a new prompt. Returns false without mutating when the
// name is already taken or empty.
func (pc *PromptsContainer) Add(_ context.Context, def PromptDef) bool {
	name := def.Descriptor.Name
	if name == "" {
		return false
	}
	pc.mu.Lock()
	if _, exists := pc.handlers[name]; exists {
		pc.mu.Unlock()
		return false
	}
	pc.prompts = append(pc.prompts, def.Descriptor)
	if def.Handler != nil {
		pc.handlers[name] = def.Handler
	}
	pc.mu.Unlock()
	go func() { _ = pc.notifier.Notify(context.Background()) }()
	return true
}

// Remove removes a prompt by name. Returns true if removed.
func (pc *PromptsContainer) Remove(_ context.Context, name string) bool {
	pc.mu.Lock()
	n := 0
	removed := false
	for _, p := range pc.prompts {
		if p.Name == name {
			removed = true
			continue
		}
		pc.prompts[n] = p
		n++
	}
	if removed {
		pc.prompts = pc.prompts[:n]
		delete(pc.handlers, name)
	}
	pc.mu.Unlock()
	if removed {
		go func() { _ = pc.notifier.Notify(context.Background()) }()
	}
	return removed
}

// Snapshot returns a copy of the current prompt descriptors.
func (pc *PromptsContainer) Snapshot() []mcp.Prompt {
	pc.mu.RLock()
	defer pc.mu.RUnlock()
	out := make([]mcp.Prompt, len(pc.prompts))
	copy(out, pc.prompts)
	return out
}

// Definitions returns a copy of the current definition records.
func (pc *PromptsContainer) Definitions() []PromptDef {
	pc.mu.RLock()
	defer pc.mu.RUnlock()
	out := make([]PromptDef, 0, len(pc.prompts))
	for _, p := range pc.prompts {
		out = append(out, PromptDef{Descriptor: p, Handler: pc.handlers[p.Name]})
	}
	return out
}

// Has reports whether a prompt with the given name is registered.
func (pc *PromptsContainer) Has(name string) bool {
	pc.mu.RLock()
	defer pc.mu.RUnlock()
	_, ok := pc.handlers[name]
	return ok
}

// ListPrompts implements PromptsCapability.
func (pc *PromptsContainer) ListPrompts(ctx context.Context, session sessions.Session, cursor *string) (Page[mcp.Prompt], error) {
	pc.mu.RLock()
	all := make([]mcp.Prompt, len(pc.prompts))
	copy(all, pc.prompts)
	pageSize := pc.pageSize
	pc.mu.RUnlock()
	return PageSlice(all, cursor, pageSize), nil
}

// GetPrompt implements PromptsCapability.
func (pc *PromptsContainer) GetPrompt(ctx context.Context, session sessions.Session, req *mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	if req == nil || req.Name == "" {
		return nil, fmt.Errorf("invalid prompt request: missing name")
	}
	pc.mu.RLock()
	h := pc.handlers[req.Name]
	pc.mu.RUnlock()
	if h == nil {
		return nil, fmt.Errorf("prompt not found: %s", req.Name)
	}
	return h(ctx, session, req)
}

// Subscriber implements ChangeSubscriber.
func (pc *PromptsContainer) Subscriber() <-chan struct{} {
	return pc.notifier.Subscriber()
}

// Close closes every subscriber channel. Further mutations still apply
// but no longer notify.
func (pc *PromptsContainer) Close() {
	pc.notifier.Close()
}
