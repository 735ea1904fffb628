package mcphost

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/compose-mcp/mcp-compose-go/internal/jsonrpc"
	"github.com/compose-mcp/mcp-compose-go/internal/logctx"
	"github.com/compose-mcp/mcp-compose-go/mcp"
	"github.com/compose-mcp/mcp-compose-go/sessions"
)

// proxySession is a client session the parent holds open against a
// mounted child. Every delegated listing and invocation on a proxy
// mount crosses the child's ServeMessage endpoint through one of
// these, so the child cannot tell a composition parent from an
// ordinary client.
type proxySession struct {
	entry *mountEntry
	sess  sessions.Session

	stateMu sync.Mutex
	state   sessions.State

	nextID atomic.Int64
}

func (p *proxySession) currentState() sessions.State {
	p.stateMu.Lock()
	defer p.stateMu.Unlock()
	return p.state
}

func (p *proxySession) setState(s sessions.State) {
	p.stateMu.Lock()
	p.state = s
	p.stateMu.Unlock()
}

// openProxySession connects to the child and completes the initialize
// exchange. parent is the session driving the parent host, used only
// to propagate the user identity; it may be nil.
func (e *mountEntry) openProxySession(ctx context.Context, parent sessions.Session) (*proxySession, error) {
	userID := ""
	if parent != nil {
		userID = parent.UserID()
	}
	sess, err := e.child.OpenSession(ctx, userID)
	if err != nil {
		return nil, &ProxySessionError{Prefix: e.prefix, Op: "connect", Err: err}
	}
	p := &proxySession{entry: e, sess: sess, state: sessions.StateOpen}

	var initRes mcp.InitializeResult
	initReq := mcp.InitializeRequest{
		ProtocolVersion: mcp.LatestProtocolVersion,
		ClientInfo:      e.info,
	}
	if err := p.call(ctx, string(mcp.InitializeMethod), initReq, &initRes); err != nil {
		p.close(ctx)
		return nil, &ProxySessionError{Prefix: e.prefix, Op: "initialize", Err: err}
	}
	if err := p.notify(ctx, string(mcp.InitializedNotificationMethod)); err != nil {
		p.close(ctx)
		return nil, &ProxySessionError{Prefix: e.prefix, Op: "initialize", Err: err}
	}
	e.log.DebugContext(e.logCtx(ctx), "proxy.session.open",
		slog.String("session_id", sess.SessionID()))
	return p, nil
}

// call performs one request/response round trip over the child's
// message endpoint. A jsonrpc error in the response is returned as-is
// so callers see the same failure an external client would.
func (p *proxySession) call(ctx context.Context, method string, params, result any) error {
	if st := p.currentState(); st != sessions.StateOpen {
		return &ProxySessionError{Prefix: p.entry.prefix, Op: "call", Err: fmt.Errorf("session is %s", st)}
	}
	if p.entry.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.entry.timeout)
		defer cancel()
	}

	id := jsonrpc.NewRequestID(p.nextID.Add(1))
	req, err := jsonrpc.NewRequest(id, method, params)
	if err != nil {
		return &ProxySessionError{Prefix: p.entry.prefix, Op: "call", Err: err}
	}
	raw, err := json.Marshal(req)
	if err != nil {
		return &ProxySessionError{Prefix: p.entry.prefix, Op: "call", Err: err}
	}

	ctx = logctx.WithRPCMessage(p.entry.logCtx(ctx), &logctx.RPCMessage{Method: method, ID: id.String()})
	out := p.entry.child.ServeMessage(ctx, p.sess, raw)
	if err := ctx.Err(); err != nil {
		return &ProxySessionError{Prefix: p.entry.prefix, Op: "call", Err: err}
	}
	res, err := jsonrpc.DecodeResponse(out)
	if err != nil {
		return &ProxySessionError{Prefix: p.entry.prefix, Op: "call", Err: err}
	}
	if res.Error != nil {
		return res.Error
	}
	if result != nil {
		if err := json.Unmarshal(res.Result, result); err != nil {
			return &ProxySessionError{Prefix: p.entry.prefix, Op: "call", Err: err}
		}
	}
	return nil
}

// notify sends a notification; no response is expected.
func (p *proxySession) notify(ctx context.Context, method string) error {
	req, err := jsonrpc.NewRequest(nil, method, nil)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(req)
	if err != nil {
		return err
	}
	_ = p.entry.child.ServeMessage(ctx, p.sess, raw)
	return nil
}

// close disconnects from the child. Teardown runs even when the
// triggering context is already canceled.
func (p *proxySession) close(ctx context.Context) {
	p.stateMu.Lock()
	if p.state == sessions.StateClosed || p.state == sessions.StateClosing {
		p.stateMu.Unlock()
		return
	}
	p.state = sessions.StateClosing
	p.stateMu.Unlock()

	ctx = context.WithoutCancel(ctx)
	p.entry.child.CloseSession(ctx, p.sess)
	p.setState(sessions.StateClosed)
	p.entry.log.DebugContext(p.entry.logCtx(ctx), "proxy.session.close",
		slog.String("session_id", p.sess.SessionID()))
}

// withSession runs fn against a proxy session. Per-call mounts open a
// fresh session and close it when fn returns. Shared mounts lazily
// open one session on first use and keep it until unmount.
func (e *mountEntry) withSession(ctx context.Context, parent sessions.Session, fn func(p *proxySession) error) error {
	if !e.shared {
		p, err := e.openProxySession(ctx, parent)
		if err != nil {
			return err
		}
		defer p.close(ctx)
		return fn(p)
	}

	e.mu.Lock()
	if e.sess == nil {
		p, err := e.openProxySession(ctx, parent)
		if err != nil {
			e.mu.Unlock()
			return err
		}
		e.sess = p
	}
	p := e.sess
	e.mu.Unlock()
	return fn(p)
}

// closeSharedSession closes the shared session if one was opened.
func (e *mountEntry) closeSharedSession(ctx context.Context) {
	e.mu.Lock()
	p := e.sess
	e.sess = nil
	e.mu.Unlock()
	if p != nil {
		p.close(ctx)
	}
}
