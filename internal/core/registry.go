package core

import "sync"

// Registry maps a username to its single live connection (last-connect-wins).
// All methods are safe for concurrent use; no I/O happens under the lock.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]Connection
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{conns: make(map[string]Connection)}
}

// Register installs conn as user's channel and returns the connection it replaced, if any.
// The replaced connection is not closed here; that is the transport's call.
func (r *Registry) Register(user string, conn Connection) Connection {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev := r.conns[user]
	r.conns[user] = conn
	return prev
}

// Unregister removes user's mapping only if it still points at conn, so a late
// disconnect from a superseded connection cannot evict the newer one.
func (r *Registry) Unregister(user string, conn Connection) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.conns[user]
	if !ok || current != conn {
		return false
	}
	delete(r.conns, user)
	return true
}

// Resolve returns user's live connection. false means the user is offline.
func (r *Registry) Resolve(user string) (Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conn, ok := r.conns[user]
	return conn, ok
}

// Len returns the number of connected users.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.conns)
}

// Connections returns a snapshot of every registered connection.
func (r *Registry) Connections() []Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Connection, 0, len(r.conns))
	for _, conn := range r.conns {
		out = append(out, conn)
	}
	return out
}
