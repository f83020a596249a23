package connmgr

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
)

// Acquirer resolves a single ServerDef to a live, registered Connection,
// keeping at most one registered Connection per identity hash (spec.md §4.2,
// §4.3). Concurrent acquisitions of the same hash may each dial; the losers'
// sockets are closed in registerOrAdopt.
type Acquirer struct {
	transport Transport
	registry  *Registry
	sink      Sink
	metrics   MetricsReporter
	intervals *intervals
	now       func() time.Time
}

// newAcquirer builds an Acquirer over transport and registry. sink must not
// be nil; callers pass NullSink when logging is not wanted. metrics may be
// nil.
func newAcquirer(transport Transport, registry *Registry, sink Sink, metrics MetricsReporter, ivals *intervals, now func() time.Time) *Acquirer {
	return &Acquirer{transport: transport, registry: registry, sink: sink, metrics: metrics, intervals: ivals, now: now}
}

// Acquire resolves server to a Connection (spec.md §4.3):
//
//   - already registered, FlagDontConnect set: return the cached entry as-is.
//   - already registered, FlagDontConnect clear: re-ping it; a failed ping
//     deregisters the entry and the failure is returned to the caller.
//   - not registered, FlagDontConnect set: return (nil, nil). This is not an
//     error (spec.md §9 "Cache-only miss").
//   - not registered, FlagDontConnect clear: dial, authenticate if the server
//     carries credentials, ping, and register.
func (a *Acquirer) Acquire(ctx context.Context, server ServerDef, deployment string, flags Flags) (*Connection, error) {
	hash := Identity(server)

	if existing := a.registry.find(hash); existing != nil {
		return a.refreshExisting(ctx, existing, flags)
	}

	if flags.Has(FlagDontConnect) {
		return nil, nil
	}

	return a.acquireFresh(ctx, hash, server, deployment)
}

// refreshExisting implements the cached-connection branch of Acquire: an
// unconditional re-ping, since a caller reaching for a cached connection
// wants to know now whether it is still alive.
func (a *Acquirer) refreshExisting(ctx context.Context, conn *Connection, flags Flags) (*Connection, error) {
	if flags.Has(FlagDontConnect) {
		return conn, nil
	}

	latencyUs, err := a.transport.Ping(ctx, conn.sock)
	if err != nil {
		a.sink.Log("acquire", LevelWarn, "ping failed for cached connection %s: %v", conn.hash, err)
		a.registry.deregister(conn)
		a.incFailure(conn.deployment, "ping")
		return nil, fmt.Errorf("acquire %s: %w", conn.server.Host, ErrPingFailure)
	}

	conn.recordPingable(latencyUs, a.now())
	return conn, nil
}

// acquireFresh implements the not-cached branch of Acquire: dial,
// authenticate, ping, register.
func (a *Acquirer) acquireFresh(ctx context.Context, hash string, server ServerDef, deployment string) (*Connection, error) {
	sock, err := a.transport.Dial(ctx, server)
	if err != nil {
		a.sink.Log("acquire", LevelWarn, "dial failed for %s:%d: %v", server.Host, server.Port, err)
		a.incFailure(deployment, "dial")
		return nil, fmt.Errorf("acquire %s: %w", server.Host, ErrDialFailure)
	}

	scope := authScope(a.transport.HashPassword, server)
	conn := newDialingConnection(hash, server, scope, deployment, sock)

	if server.hasAuth() {
		if err := a.authenticate(ctx, conn, server); err != nil {
			a.sink.Log("acquire", LevelWarn, "authentication failed for %s:%d: %v", server.Host, server.Port, err)
			_ = a.transport.Close(sock)
			a.incFailure(deployment, "auth")
			return nil, fmt.Errorf("acquire %s: %w", server.Host, err)
		}
		conn.recordAuthenticated()
	}

	latencyUs, err := a.transport.Ping(ctx, sock)
	if err != nil {
		a.sink.Log("acquire", LevelWarn, "ping failed for %s:%d: %v", server.Host, server.Port, err)
		_ = a.transport.Close(sock)
		a.incFailure(deployment, "ping")
		return nil, fmt.Errorf("acquire %s: %w", server.Host, ErrPingFailure)
	}
	conn.recordPingable(latencyUs, a.now())

	return a.registerOrAdopt(conn)
}

// incFailure reports a recoverable acquisition failure, if a metrics
// reporter is configured.
func (a *Acquirer) incFailure(deployment, stage string) {
	if a.metrics != nil {
		a.metrics.IncFailure(deployment, stage)
	}
}

// withinInterval reports whether last is non-zero and closer to a.now() than
// interval, i.e. whether a refresh due at last+interval should be skipped.
func (a *Acquirer) withinInterval(last time.Time, interval time.Duration) bool {
	return interval > 0 && !last.IsZero() && a.now().Sub(last) < interval
}

// authenticate runs the two-step nonce/authenticate handshake. A fresh nonce
// is fetched for this attempt and never reused (spec.md §4.3; grounded on
// the original C implementation's mongo_cr_authenticate, which fetches a new
// nonce on every call rather than caching one across attempts).
func (a *Acquirer) authenticate(ctx context.Context, conn *Connection, server ServerDef) error {
	nonce, err := a.transport.GetNonce(ctx, conn.sock)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrAuthFailure, err)
	}
	if err := a.transport.Authenticate(ctx, conn.sock, server.AuthDB, server.Username, server.Password, nonce); err != nil {
		return fmt.Errorf("%w: %v", ErrAuthFailure, err)
	}
	return nil
}

// registerOrAdopt registers conn, or — if a concurrent Acquire for the same
// identity hash won the race (spec.md §5 double-checked registration) —
// discards conn's socket and adopts the winner already in the registry.
func (a *Acquirer) registerOrAdopt(conn *Connection) (*Connection, error) {
	if err := a.registry.register(conn); err == nil {
		return conn, nil
	}

	if winner := a.registry.find(conn.hash); winner != nil {
		_ = a.transport.Close(conn.sock)
		return winner, nil
	}

	// The registered entry vanished between the failed register and this
	// lookup (a concurrent deregister). Retry registration once; if that
	// collides again, conn's socket is closed and the duplicate-registration
	// error is returned.
	if err := a.registry.register(conn); err != nil {
		_ = a.transport.Close(conn.sock)
		return nil, fmt.Errorf("acquire %s: %w", conn.server.Host, err)
	}
	return conn, nil
}

// acquireAll resolves every server in servers concurrently (spec.md §5: a
// Manager call may fan out I/O across distinct endpoints freely, since each
// Acquire only ever touches its own identity hash). Results and errors are
// returned index-aligned with servers, preserving the seed order callers
// rely on (spec.md §5 ordering guarantee) even though the dials themselves
// race.
func acquireAll(ctx context.Context, a *Acquirer, servers []ServerDef, deployment string, flags Flags) ([]*Connection, []error) {
	conns := make([]*Connection, len(servers))
	errs := make([]error, len(servers))

	var g errgroup.Group
	for i, server := range servers {
		g.Go(func() error {
			conn, err := a.Acquire(ctx, server, deployment, flags)
			conns[i] = conn
			errs[i] = err
			return nil
		})
	}
	_ = g.Wait()

	return conns, errs
}
