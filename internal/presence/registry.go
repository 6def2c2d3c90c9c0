// Package presence maintains the process-wide mapping from user identity to
// live WebSocket connections. It is the source of truth the relay consults
// when fanning out direct messages: a user with several open tabs has one
// entry holding every connection ID.
package presence

import (
	"errors"
	"sync"
)

// ErrConflict is returned by Register when a connection that is already bound
// to one user attempts to bind to a different user. The client must reconnect
// to obtain a fresh connection before registering as someone else.
var ErrConflict = errors.New("presence: connection already bound to another user")

// Registry is a goroutine-safe user -> connection-set index. A user entry
// exists iff at least one registered connection is open for that user; the
// entry is removed the moment its set empties.
type Registry struct {
	mu     sync.RWMutex
	byUser map[string]map[string]struct{} // user_id -> set of conn IDs
	byConn map[string]string              // conn_id -> user_id
}

// NewRegistry creates an empty Registry ready for use.
func NewRegistry() *Registry {
	return &Registry{
		byUser: make(map[string]map[string]struct{}),
		byConn: make(map[string]string),
	}
}

// Register binds a connection to a user. Registering the same connection for
// the same user again is a no-op (multi-tab clients re-send register after
// reconnect races). Binding an already-bound connection to a different user
// fails with ErrConflict and leaves the original binding untouched.
func (r *Registry) Register(connID, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if bound, ok := r.byConn[connID]; ok {
		if bound == userID {
			return nil
		}
		return ErrConflict
	}

	conns, ok := r.byUser[userID]
	if !ok {
		conns = make(map[string]struct{})
		r.byUser[userID] = conns
	}
	conns[connID] = struct{}{}
	r.byConn[connID] = userID
	return nil
}

// Unregister removes a connection from its user's set and deletes the user
// entry if the set becomes empty. It returns the user ID the connection was
// bound to and whether the connection was registered at all. Unregistering
// an unknown connection is a no-op, so duplicate disconnect signals are safe.
func (r *Registry) Unregister(connID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	userID, ok := r.byConn[connID]
	if !ok {
		return "", false
	}
	delete(r.byConn, connID)

	if conns, ok := r.byUser[userID]; ok {
		delete(conns, connID)
		if len(conns) == 0 {
			delete(r.byUser, userID)
		}
	}
	return userID, true
}

// Resolve returns a snapshot of the connection IDs currently registered for
// the user. The slice is empty (never nil semantics relied upon) when the
// user has no live connections.
func (r *Registry) Resolve(userID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns, ok := r.byUser[userID]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(conns))
	for id := range conns {
		out = append(out, id)
	}
	return out
}

// UserOf returns the user ID a connection is bound to, or "" if unbound.
func (r *Registry) UserOf(connID string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byConn[connID]
}

// Online reports whether the user has at least one registered connection.
func (r *Registry) Online(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser[userID]) > 0
}

// Users returns the number of users with at least one live connection.
func (r *Registry) Users() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser)
}

// Connections returns the total number of registered connections.
func (r *Registry) Connections() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byConn)
}
