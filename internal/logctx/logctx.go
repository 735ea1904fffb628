// Package logctx enriches slog records with request-scoped attribute
// groups carried in the context: the active session, the in-flight RPC
// message, and the composition link a call is being delegated through.
package logctx

import (
	"context"
	"log/slog"
)

// Handler wraps another slog.Handler and appends context-carried groups
// to every record.
type Handler struct {
	slog.Handler
}

func (h Handler) Handle(ctx context.Context, r slog.Record) error {
	if sd, ok := ctx.Value(sessionDataKey{}).(*SessionData); ok {
		r.AddAttrs(slog.Group("sess",
			slog.String("id", sd.SessionID),
			slog.String("state", sd.State),
		))
	}

	if msg, ok := ctx.Value(rpcMsgKey{}).(*RPCMessage); ok {
		r.AddAttrs(slog.Group("rpc",
			slog.String("method", msg.Method),
			slog.String("id", msg.ID),
		))
	}

	if md, ok := ctx.Value(mountDataKey{}).(*MountData); ok {
		r.AddAttrs(slog.Group("mount",
			slog.String("prefix", md.Prefix),
			slog.String("mode", md.Mode),
		))
	}

	return h.Handler.Handle(ctx, r)
}

type sessionDataKey struct{}

// SessionData carries the session identity for log enrichment.
type SessionData struct {
	SessionID string
	State     string
}

func WithSessionData(ctx context.Context, data *SessionData) context.Context {
	return context.WithValue(ctx, sessionDataKey{}, data)
}

type rpcMsgKey struct{}

// RPCMessage carries the in-flight JSON-RPC method and ID.
type RPCMessage struct {
	Method string
	ID     string
}

func WithRPCMessage(ctx context.Context, msg *RPCMessage) context.Context {
	return context.WithValue(ctx, rpcMsgKey{}, msg)
}

type mountDataKey struct{}

// MountData carries the composition link a call is crossing.
type MountData struct {
	Prefix string
	Mode   string
}

func WithMountData(ctx context.Context, data *MountData) context.Context {
	return context.WithValue(ctx, mountDataKey{}, data)
}
