package mcphost

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/compose-mcp/mcp-compose-go/internal/logctx"
	"github.com/compose-mcp/mcp-compose-go/mcp"
	"github.com/compose-mcp/mcp-compose-go/mcpservice"
)

// Mode selects how a mounted child receives delegated traffic.
type Mode string

const (
	// ModeAuto picks ModeProxy when the child has lifecycle hooks and
	// ModeDirect otherwise. It is the default.
	ModeAuto Mode = "auto"

	// ModeDirect delegates with plain in-process calls. No session is
	// opened against the child and its lifecycle hooks never fire.
	ModeDirect Mode = "direct"

	// ModeProxy routes listings and invocations through the child's
	// message endpoint over a session, so the child observes a real
	// client lifecycle.
	ModeProxy Mode = "proxy"
)

// ComposeOption configures a Mount or ImportServer call.
type ComposeOption func(*composeConfig)

type composeConfig struct {
	seps   Separators
	mode   Mode
	shared bool
}

// WithToolSeparator overrides the separator used for tool names.
func WithToolSeparator(sep string) ComposeOption {
	return func(c *composeConfig) { c.seps.Tool = sep }
}

// WithResourceSeparator overrides the separator used for resource and
// template URIs.
func WithResourceSeparator(sep string) ComposeOption {
	return func(c *composeConfig) { c.seps.Resource = sep }
}

// WithPromptSeparator overrides the separator used for prompt names.
func WithPromptSeparator(sep string) ComposeOption {
	return func(c *composeConfig) { c.seps.Prompt = sep }
}

// WithMode forces the delegation mode of a mount. Imports ignore it.
func WithMode(m Mode) ComposeOption {
	return func(c *composeConfig) { c.mode = m }
}

// AsProxy is shorthand for WithMode(ModeProxy) when proxy is true and
// WithMode(ModeDirect) otherwise.
func AsProxy(proxy bool) ComposeOption {
	return func(c *composeConfig) {
		if proxy {
			c.mode = ModeProxy
		} else {
			c.mode = ModeDirect
		}
	}
}

// WithSharedSession makes a proxy mount keep one session open across
// calls instead of opening a fresh session per call. The session opens
// lazily on first use and closes at unmount.
func WithSharedSession() ComposeOption {
	return func(c *composeConfig) { c.shared = true }
}

// mountEntry is one persistent composition link. The parent holds
// entries in mount order; that order is the tiebreak when two mounts
// could both resolve an identifier.
type mountEntry struct {
	prefix  string
	seps    Separators
	child   *Host
	mode    Mode // resolved, never ModeAuto
	log     *slog.Logger
	timeout time.Duration // per proxy round trip; <= 0 means none

	info mcp.ImplementationInfo // parent identity sent during initialize

	shared bool
	mu     sync.Mutex    // guards sess
	sess   *proxySession // lazily opened shared session

	stopForward context.CancelFunc
}

func (e *mountEntry) logCtx(ctx context.Context) context.Context {
	return logctx.WithMountData(ctx, &logctx.MountData{Prefix: e.prefix, Mode: string(e.mode)})
}

// mountGraphMu serializes mount-graph mutation and reachability checks
// across every host in the process. Cycle validation needs a stable
// graph; per-host locks cannot order two mounts that would close a
// cycle through different parents.
var mountGraphMu sync.Mutex

// Mount links child under prefix. The child's capabilities become
// visible in the parent's merged listings on the next read and stay
// live until Unmount. The call validates the prefix against every
// separator, rejects duplicate prefixes, and refuses links that would
// make the parent reachable from itself.
func (h *Host) Mount(ctx context.Context, prefix string, child *Host, opts ...ComposeOption) error {
	cfg := composeConfig{seps: h.defaults.separators(), mode: ModeAuto}
	for _, opt := range opts {
		opt(&cfg)
	}
	if err := validatePrefixAll(prefix, cfg.seps); err != nil {
		return err
	}
	if child == nil || child == h {
		return &CycleError{Prefix: prefix}
	}

	mode := cfg.mode
	if mode == ModeAuto {
		if child.HasLifecycle() {
			mode = ModeProxy
		} else {
			mode = ModeDirect
		}
	}

	entry := &mountEntry{
		prefix:  prefix,
		seps:    cfg.seps,
		child:   child,
		mode:    mode,
		log:     h.log,
		timeout: h.defaults.ProxyCallTimeout,
		shared:  cfg.shared,
		info:    h.info,
	}

	h.composeMu.Lock()
	defer h.composeMu.Unlock()

	mountGraphMu.Lock()
	if child.reaches(h) {
		mountGraphMu.Unlock()
		return &CycleError{Prefix: prefix}
	}
	h.mu.Lock()
	for _, e := range h.mounts {
		if e.prefix == prefix {
			h.mu.Unlock()
			mountGraphMu.Unlock()
			return &CollisionError{Kind: KindMount, Identifier: prefix}
		}
	}
	h.mounts = append(h.mounts, entry)
	h.mu.Unlock()
	mountGraphMu.Unlock()

	h.forwardChanges(entry)
	h.log.InfoContext(entry.logCtx(ctx), "mount.attach",
		slog.String("child", child.info.Name))
	h.notifyAll(ctx)
	return nil
}

// Unmount severs the link registered under prefix. In-flight delegated
// calls finish; subsequent reads no longer see the child. A shared
// proxy session, if open, is closed so the child's disconnect hook
// fires.
func (h *Host) Unmount(ctx context.Context, prefix string) error {
	h.composeMu.Lock()
	defer h.composeMu.Unlock()

	mountGraphMu.Lock()
	h.mu.Lock()
	var entry *mountEntry
	n := 0
	for _, e := range h.mounts {
		if e.prefix == prefix && entry == nil {
			entry = e
			continue
		}
		h.mounts[n] = e
		n++
	}
	if entry == nil {
		h.mu.Unlock()
		mountGraphMu.Unlock()
		return &NotFoundError{Kind: KindMount, Identifier: prefix}
	}
	h.mounts = h.mounts[:n]
	h.mu.Unlock()
	mountGraphMu.Unlock()

	if entry.stopForward != nil {
		entry.stopForward()
	}
	entry.closeSharedSession(ctx)
	h.log.InfoContext(entry.logCtx(ctx), "mount.detach")
	h.notifyAll(ctx)
	return nil
}

// reaches reports whether target is reachable from h through mount
// links. Mount uses it from the candidate child under mountGraphMu, so
// a true result means the new link would close a cycle. The visited set
// keeps the walk linear on graphs where one child is mounted under
// several parents.
func (h *Host) reaches(target *Host) bool {
	return h.reachesSeen(target, map[*Host]struct{}{})
}

func (h *Host) reachesSeen(target *Host, seen map[*Host]struct{}) bool {
	if h == target {
		return true
	}
	if _, done := seen[h]; done {
		return false
	}
	seen[h] = struct{}{}
	for _, e := range h.entries() {
		if e.child.reachesSeen(target, seen) {
			return true
		}
	}
	return false
}

// forwardChanges bridges the child's change signals into the parent's
// notifiers for the lifetime of the link.
func (h *Host) forwardChanges(entry *mountEntry) {
	ctx, cancel := context.WithCancel(context.Background())
	entry.stopForward = cancel

	forward := func(src <-chan struct{}, notifier *mcpservice.ChangeNotifier) {
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case _, ok := <-src:
					if !ok {
						return
					}
					_ = notifier.Notify(ctx)
				}
			}
		}()
	}

	forward(entry.child.ToolsSubscriber(), &h.toolsChanged)
	forward(entry.child.ResourcesSubscriber(), &h.resourcesChanged)
	forward(entry.child.PromptsSubscriber(), &h.promptsChanged)
}
