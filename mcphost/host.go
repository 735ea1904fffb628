package mcphost

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/compose-mcp/mcp-compose-go/internal/logctx"
	"github.com/compose-mcp/mcp-compose-go/mcp"
	"github.com/compose-mcp/mcp-compose-go/mcpservice"
	"github.com/compose-mcp/mcp-compose-go/sessions"
)

// Host is a capability server that can also act as a composition
// parent. It owns local registries for every capability kind and a set
// of mount links, and serves the merged view of both.
//
// A Host is safe for concurrent use. Mount, Unmount and ImportServer
// may run concurrently with listings and invocations; in-flight
// delegated calls that raced an Unmount are allowed to finish.
// Composition operations on the same host are serialized with each
// other.
type Host struct {
	info     mcp.ImplementationInfo
	log      *slog.Logger
	defaults Defaults

	tools     *mcpservice.ToolsContainer
	resources *mcpservice.ResourcesContainer
	prompts   *mcpservice.PromptsContainer

	connect    sessions.ConnectHandler
	disconnect sessions.DisconnectHandler

	registry *sessions.Registry

	composeMu sync.Mutex // serializes Mount, Unmount and ImportServer

	mu     sync.RWMutex
	mounts []*mountEntry

	toolsChanged     mcpservice.ChangeNotifier
	resourcesChanged mcpservice.ChangeNotifier
	promptsChanged   mcpservice.ChangeNotifier
}

// Option configures a Host at construction time.
type Option func(*Host)

// WithName sets the server name reported during initialization.
func WithName(name string) Option {
	return func(h *Host) { h.info.Name = name }
}

// WithVersion sets the server version reported during initialization.
func WithVersion(version string) Option {
	return func(h *Host) { h.info.Version = version }
}

// WithLogger sets the structured logger. Defaults to a discarding
// logger.
func WithLogger(log *slog.Logger) Option {
	return func(h *Host) {
		if log != nil {
			h.log = log
		}
	}
}

// WithDefaults overrides the composition defaults. Use DefaultsFromEnv
// to source them from the environment.
func WithDefaults(d Defaults) Option {
	return func(h *Host) { h.defaults = d }
}

// WithConnectHandler registers a hook invoked when a client session
// connects to this host. A non-nil error aborts the session.
func WithConnectHandler(fn sessions.ConnectHandler) Option {
	return func(h *Host) { h.connect = fn }
}

// WithDisconnectHandler registers a hook invoked when a client session
// disconnects from this host.
func WithDisconnectHandler(fn sessions.DisconnectHandler) Option {
	return func(h *Host) { h.disconnect = fn }
}

// WithTools seeds the local tool registry.
func WithTools(defs ...mcpservice.ToolDef) Option {
	return func(h *Host) {
		for _, d := range defs {
			h.tools.Add(context.Background(), d)
		}
	}
}

// WithResources seeds the local resource registry.
func WithResources(defs ...mcpservice.ResourceDef) Option {
	return func(h *Host) {
		for _, d := range defs {
			h.resources.AddResource(context.Background(), d)
		}
	}
}

// WithPrompts seeds the local prompt registry.
func WithPrompts(defs ...mcpservice.PromptDef) Option {
	return func(h *Host) {
		for _, d := range defs {
			h.prompts.Add(context.Background(), d)
		}
	}
}

// New constructs a Host.
func New(opts ...Option) *Host {
	h := &Host{
		info:      mcp.ImplementationInfo{Name: "mcp-compose", Version: "0.0.0"},
		log:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		defaults:  builtinDefaults(),
		tools:     mcpservice.NewToolsContainer(),
		resources: mcpservice.NewResourcesContainer(),
		prompts:   mcpservice.NewPromptsContainer(),
		registry:  sessions.NewRegistry(),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.log = slog.New(logctx.Handler{Handler: h.log.Handler()})

	// Local registry mutations surface on the host-level notifiers so
	// composition parents observe them without knowing the containers.
	bridgeTicks(h.tools.Subscriber(), &h.toolsChanged)
	bridgeTicks(h.resources.Subscriber(), &h.resourcesChanged)
	bridgeTicks(h.prompts.Subscriber(), &h.promptsChanged)
	return h
}

func bridgeTicks(src <-chan struct{}, dst *mcpservice.ChangeNotifier) {
	go func() {
		for range src {
			_ = dst.Notify(context.Background())
		}
	}()
}

// Info returns the implementation info reported during initialization.
func (h *Host) Info() mcp.ImplementationInfo { return h.info }

// Tools returns the local tool registry. Mutations are visible in the
// merged view immediately.
func (h *Host) Tools() *mcpservice.ToolsContainer { return h.tools }

// Resources returns the local resource registry.
func (h *Host) Resources() *mcpservice.ResourcesContainer { return h.resources }

// Prompts returns the local prompt registry.
func (h *Host) Prompts() *mcpservice.PromptsContainer { return h.prompts }

// Sessions returns the registry of sessions currently connected to
// this host, including proxy sessions opened by composition parents.
func (h *Host) Sessions() *sessions.Registry { return h.registry }

// HasLifecycle reports whether this host registered connect or
// disconnect hooks. Mounts in automatic mode use this to decide
// between direct and proxy delegation.
func (h *Host) HasLifecycle() bool {
	return h.connect != nil || h.disconnect != nil
}

// OpenSession connects a new session to this host: the session is
// added to the registry and the connect hook, if any, runs. A connect
// hook error aborts the session and is returned unchanged.
func (h *Host) OpenSession(ctx context.Context, userID string) (sessions.Session, error) {
	sess := sessions.New(userID)
	if h.connect != nil {
		if err := h.connect(ctx, sess); err != nil {
			h.log.ErrorContext(ctx, "session.connect.fail",
				slog.String("session_id", sess.SessionID()),
				slog.String("err", err.Error()))
			return nil, err
		}
	}
	h.registry.Add(sess)
	h.log.DebugContext(ctx, "session.open", slog.String("session_id", sess.SessionID()))
	return sess, nil
}

// CloseSession disconnects a session from this host: it is removed
// from the registry and the disconnect hook, if any, runs. Closing an
// unknown session is a no-op.
func (h *Host) CloseSession(ctx context.Context, sess sessions.Session) {
	if sess == nil {
		return
	}
	if h.registry.Remove(sess.SessionID()) && h.disconnect != nil {
		h.disconnect(ctx, sess)
	}
	h.log.DebugContext(ctx, "session.close", slog.String("session_id", sess.SessionID()))
}

// Close tears down the host's composition plumbing: every mount link
// stops forwarding, shared proxy sessions close (firing the children's
// disconnect hooks), and all subscriber channels are closed so bridge
// goroutines terminate. The host must not be used after Close.
func (h *Host) Close(ctx context.Context) {
	h.composeMu.Lock()
	mountGraphMu.Lock()
	h.mu.Lock()
	entries := h.mounts
	h.mounts = nil
	h.mu.Unlock()
	mountGraphMu.Unlock()
	h.composeMu.Unlock()

	for _, e := range entries {
		if e.stopForward != nil {
			e.stopForward()
		}
		e.closeSharedSession(ctx)
	}

	h.tools.Close()
	h.resources.Close()
	h.prompts.Close()
	h.toolsChanged.Close()
	h.resourcesChanged.Close()
	h.promptsChanged.Close()
}

// ToolsSubscriber returns a channel ticking when the merged tool list
// may have changed: local registry mutations, mounts, unmounts and
// imports all tick it.
func (h *Host) ToolsSubscriber() <-chan struct{} { return h.toolsChanged.Subscriber() }

// ResourcesSubscriber is the resources and templates counterpart of
// ToolsSubscriber.
func (h *Host) ResourcesSubscriber() <-chan struct{} { return h.resourcesChanged.Subscriber() }

// PromptsSubscriber is the prompts counterpart of ToolsSubscriber.
func (h *Host) PromptsSubscriber() <-chan struct{} { return h.promptsChanged.Subscriber() }

// notifyAll signals a change on every kind. Composition operations use
// it because they touch all registries at once.
func (h *Host) notifyAll(ctx context.Context) {
	_ = h.toolsChanged.Notify(ctx)
	_ = h.resourcesChanged.Notify(ctx)
	_ = h.promptsChanged.Notify(ctx)
}

// entries returns a snapshot of the current mount links in mount
// order.
func (h *Host) entries() []*mountEntry {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*mountEntry, len(h.mounts))
	copy(out, h.mounts)
	return out
}

// MountPrefixes returns the prefixes of the current mount links in
// mount order.
func (h *Host) MountPrefixes() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]string, 0, len(h.mounts))
	for _, e := range h.mounts {
		out = append(out, e.prefix)
	}
	return out
}
