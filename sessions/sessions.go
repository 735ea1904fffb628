package sessions

import (
	"context"

	"github.com/google/uuid"
)

// Session identifies one client connection scope against a host. All
// capability methods receive the session of the caller; implementations
// must treat it as the boundary for any connection-scoped state.
type Session interface {
	SessionID() string
	UserID() string
}

// ConnectHandler runs when a new session scope is established against a
// host. Returning an error aborts session establishment.
type ConnectHandler func(ctx context.Context, session Session) error

// DisconnectHandler runs when a session scope is torn down. It runs on
// both success and failure paths and must not block indefinitely.
type DisconnectHandler func(ctx context.Context, session Session)

// State is the lifecycle state of a session.
type State string

const (
	// StateIdle is the initial state before the session is opened.
	StateIdle State = "idle"
	// StateOpen means the connect hook has run and calls may flow.
	StateOpen State = "open"
	// StateClosing means teardown began; no further calls are accepted.
	StateClosing State = "closing"
	// StateClosed is terminal.
	StateClosed State = "closed"
)

type session struct {
	id     string
	userID string
}

func (s *session) SessionID() string { return s.id }
func (s *session) UserID() string    { return s.userID }

// New creates a session with a fresh random ID on behalf of userID.
// userID may be empty for anonymous callers.
func New(userID string) Session {
	return &session{id: uuid.NewString(), userID: userID}
}

// NewWithID creates a session with a caller-chosen ID. Transports that
// already minted a wire-level session ID use this to keep the two in
// sync.
func NewWithID(id, userID string) Session {
	return &session{id: id, userID: userID}
}
