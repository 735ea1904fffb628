package sessions

import "sync"

// Registry tracks the sessions currently open against a host. It is an
// in-memory, process-local structure: every composition boundary in
// this module is in-process, so there is no cross-process session state
// to share.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]Session
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]Session)}
}

// Add records a session. It overwrites any prior entry with the same ID.
func (r *Registry) Add(s Session) {
	if s == nil {
		return
	}
	r.mu.Lock()
	r.sessions[s.SessionID()] = s
	r.mu.Unlock()
}

// Remove drops a session by ID and reports whether it was present.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[id]; !ok {
		return false
	}
	delete(r.sessions, id)
	return true
}

// Get returns the session with the given ID, if present.
func (r *Registry) Get(id string) (Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Len reports the number of open sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Snapshot returns a copy of the current session set.
func (r *Registry) Snapshot() []Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}
