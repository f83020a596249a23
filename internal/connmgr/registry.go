package connmgr

import (
	"fmt"
	"sync"
)

// Registry is the Manager-owned mapping from identity hash to Connection
// (spec.md §3, §4.2). It is not itself lock-free — serialization is
// provided by an internal mutex, not the Manager's — so Acquirer calls for
// distinct endpoints may run their transport I/O concurrently and only
// briefly hold this lock around the registry mutation (spec.md §5).
type Registry struct {
	mu    sync.RWMutex
	conns map[string]*Connection

	// destroy releases the transport resources owned by a Connection. Set
	// once at construction by the Manager, which knows the Transport.
	destroy func(*Connection)

	// metrics reports registration/deregistration counts, if non-nil.
	metrics MetricsReporter
}

// newRegistry creates an empty Registry. destroy is invoked by deregister
// and destroyAll to release the transport socket of a removed Connection.
// metrics may be nil, in which case no counters are reported.
func newRegistry(destroy func(*Connection), metrics MetricsReporter) *Registry {
	return &Registry{
		conns:   make(map[string]*Connection),
		destroy: destroy,
		metrics: metrics,
	}
}

// find returns the unique Connection registered under hash, or nil.
func (r *Registry) find(hash string) *Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.conns[hash]
}

// register inserts conn. Precondition: no Connection is currently
// registered under conn.Hash(). Violating the precondition is a programming
// error in the C source this core is modeled on; here it is surfaced as
// ErrDuplicateConnection rather than left undefined, so callers doing
// double-checked insertion across a released lock (spec.md §5) can detect
// a concurrent winner and fall back to using it instead.
func (r *Registry) register(conn *Connection) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.conns[conn.hash]; exists {
		return fmt.Errorf("register connection %s: %w", conn.hash, ErrDuplicateConnection)
	}
	r.conns[conn.hash] = conn
	if r.metrics != nil {
		r.metrics.RegisterConnection(conn.deployment, conn.role.String())
	}
	return nil
}

// deregister removes the Connection registered under conn.Hash(), destroys
// it, and reports whether a removal occurred.
func (r *Registry) deregister(conn *Connection) bool {
	r.mu.Lock()
	existing, ok := r.conns[conn.hash]
	if ok {
		delete(r.conns, conn.hash)
	}
	r.mu.Unlock()

	if !ok {
		return false
	}
	existing.recordEvicted()
	r.destroy(existing)
	if r.metrics != nil {
		r.metrics.UnregisterConnection(existing.deployment, existing.role.String())
	}
	return true
}

// destroyAll destroys every registered Connection and empties the registry.
// Invoked by Manager.Deinit. Iterative, not recursive, so a large pool
// cannot blow the stack (spec.md §9 "Recursive destruction").
func (r *Registry) destroyAll() {
	r.mu.Lock()
	all := make([]*Connection, 0, len(r.conns))
	for hash, conn := range r.conns {
		all = append(all, conn)
		delete(r.conns, hash)
	}
	r.mu.Unlock()

	for _, conn := range all {
		conn.recordEvicted()
		r.destroy(conn)
		if r.metrics != nil {
			r.metrics.UnregisterConnection(conn.deployment, conn.role.String())
		}
	}
}

// snapshot returns a point-in-time copy of every registered Connection, for
// the selector pipeline to scan without holding the registry lock across
// its own (non-blocking, spec.md §5) filter/sort/window/pick stages.
func (r *Registry) snapshot() []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Connection, 0, len(r.conns))
	for _, conn := range r.conns {
		out = append(out, conn)
	}
	return out
}

// size returns the number of registered connections.
func (r *Registry) size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}
