package connmgr

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Manager is the package's single entry point (spec.md §3): it owns the
// connection registry, the pluggable logging sink, and the collaborator
// used to dial, authenticate, ping, and classify servers. A Manager has no
// CLI, persisted state, or environment dependency of its own (spec.md §6);
// everything it needs is supplied by its constructor and ManagerOptions.
type Manager struct {
	registry  *Registry
	acquirer  *Acquirer
	discover  *discoverer
	sink      Sink
	metrics   MetricsReporter
	intervals *intervals
	now       func() time.Time
}

// defaultPingInterval and defaultIsMasterInterval hold the process-wide
// ping/ismaster spacing (spec.md §3 Manager state) until SetIntervals
// overrides them. Only ismaster is currently enforced as a throttle (by the
// discoverer, on its re-probe of an already-classified connection); ping is
// tracked for parity with manager_set_intervals's two-argument signature,
// since a cache-hit Acquire always re-pings to answer "is this still alive"
// for the caller that asked.
const (
	defaultPingInterval     = 10 * time.Second
	defaultIsMasterInterval = 10 * time.Second
)

// intervals is the ping/ismaster throttle state, held by a pointer shared
// between Manager, its Acquirer, and its discoverer so that SetIntervals
// takes effect immediately without reconstructing either (spec.md §6
// manager_set_intervals).
type intervals struct {
	ping, ismaster time.Duration
}

// MetricsReporter receives connection-manager observability events. A
// Manager's default is a no-op implementation; production callers supply
// mongomgrmetrics.Collector via WithMetrics.
type MetricsReporter interface {
	// RegisterConnection and UnregisterConnection track the number of
	// currently registered connections, by deployment and classified role.
	RegisterConnection(deployment, role string)
	UnregisterConnection(deployment, role string)

	// IncFailure counts a recoverable acquisition failure at the named
	// stage ("dial", "auth", "ping").
	IncFailure(deployment, stage string)

	// IncSelection and IncSelectionFailure count server-selection outcomes.
	IncSelection(deployment string)
	IncSelectionFailure(deployment string)

	// IncDiscoveryRound counts one replica-set topology discovery pass.
	IncDiscoveryRound(deployment string)
}

// nullMetrics discards every event. It is the Manager's default so
// production code never needs a nil check.
type nullMetrics struct{}

func (nullMetrics) RegisterConnection(string, string)   {}
func (nullMetrics) UnregisterConnection(string, string) {}
func (nullMetrics) IncFailure(string, string)           {}
func (nullMetrics) IncSelection(string)                 {}
func (nullMetrics) IncSelectionFailure(string)          {}
func (nullMetrics) IncDiscoveryRound(string)            {}

// ManagerOption configures a Manager at construction time.
type ManagerOption func(*Manager)

// WithSink overrides the Manager's default no-op log sink (spec.md §6).
func WithSink(sink Sink) ManagerOption {
	return func(m *Manager) { m.sink = sink }
}

// WithMetrics overrides the Manager's default no-op metrics reporter.
func WithMetrics(metrics MetricsReporter) ManagerOption {
	return func(m *Manager) { m.metrics = metrics }
}

// WithClock overrides the Manager's time source. Used by tests; production
// callers never need this option.
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) { m.now = now }
}

// NewManager constructs a Manager bound to transport. transport is the sole
// collaborator (spec.md §6); everything else — the connection registry, the
// discovery worklist, the selector pipeline — lives entirely inside this
// package (spec.md §3 "init creates a manager with an empty registry and a
// no-op log sink").
func NewManager(transport Transport, opts ...ManagerOption) *Manager {
	m := &Manager{
		sink:      NullSink{},
		metrics:   nullMetrics{},
		intervals: &intervals{ping: defaultPingInterval, ismaster: defaultIsMasterInterval},
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}

	m.registry = newRegistry(func(conn *Connection) { _ = transport.Close(conn.sock) }, m.metrics)
	m.acquirer = newAcquirer(transport, m.registry, m.sink, m.metrics, m.intervals, m.now)
	m.discover = newDiscoverer(m.acquirer, m.sink, m.intervals)

	return m
}

// SetIntervals overrides the process-wide ping/ismaster spacing (spec.md §6
// manager_set_intervals). Safe to call at any time; the Acquirer and the
// discoverer observe the change on their next call since they share this
// state with Manager.
func (m *Manager) SetIntervals(pingInterval, ismasterInterval time.Duration) {
	m.intervals.ping = pingInterval
	m.intervals.ismaster = ismasterInterval
}

// Deinit destroys every registered connection and releases their transport
// resources (spec.md §4.6 terminal transition). A Manager must not be used
// again after Deinit.
func (m *Manager) Deinit() {
	m.registry.destroyAll()
}

// Size returns the number of currently registered connections. Exposed for
// observability (spec.md §6 "expose read-only introspection").
func (m *Manager) Size() int {
	return m.registry.size()
}

// GetReadWriteConnection resolves seeds to a single Connection satisfying
// seeds.ReadPreference, dispatching on seeds.DeploymentType (spec.md §4):
//
//   - Standalone, MultiRouter: every seed is acquired independently and
//     selection runs in Nearest mode, since there is no primary/secondary
//     distinction between independent routers or a lone standalone server.
//   - ReplicaSet: every seed is acquired, topology discovery runs outward
//     from them, and selection runs against the full discovered membership.
//     flags.Has(FlagWrite) forces the effective read preference to Primary
//     regardless of the caller's configured mode (spec.md §9 "Write flag
//     coupling").
func (m *Manager) GetReadWriteConnection(ctx context.Context, seeds *SeedSet, flags Flags) (*Connection, error) {
	switch seeds.DeploymentType {
	case Standalone, MultiRouter:
		return m.getConnectionIndependent(ctx, seeds, flags)
	case ReplicaSet:
		return m.getConnectionReplicaSet(ctx, seeds, flags)
	default:
		return nil, fmt.Errorf("deployment type %d: %w", seeds.DeploymentType, ErrUnknownDeploymentType)
	}
}

// getConnectionIndependent implements the Standalone/MultiRouter path of
// GetReadWriteConnection.
func (m *Manager) getConnectionIndependent(ctx context.Context, seeds *SeedSet, flags Flags) (*Connection, error) {
	deployment := seeds.DeploymentType.String()
	conns, errs := acquireAll(ctx, m.acquirer, seeds.Servers, deployment, flags)
	live := nonNil(conns)

	if len(live) == 0 && flags.Has(FlagDontConnect) {
		return nil, nil
	}

	rp := seeds.ReadPreference.withMode(Nearest)
	authScope := m.seedAuthScope(seeds)

	conn, err := selectIndependent(live, authScope, rp)
	if err != nil {
		m.metrics.IncSelectionFailure(deployment)
		if msg := joinDialErrors(errs); msg != "" {
			return nil, fmt.Errorf("%w: %s", err, msg)
		}
		return nil, err
	}
	m.metrics.IncSelection(deployment)
	return conn, nil
}

// getConnectionReplicaSet implements the ReplicaSet path of
// GetReadWriteConnection.
func (m *Manager) getConnectionReplicaSet(ctx context.Context, seeds *SeedSet, flags Flags) (*Connection, error) {
	deployment := seeds.DeploymentType.String()
	conns, _ := acquireAll(ctx, m.acquirer, seeds.Servers, deployment, flags)
	live := nonNil(conns)

	if len(live) == 0 && flags.Has(FlagDontConnect) {
		return nil, nil
	}

	m.discover.discover(ctx, seeds, live)
	m.metrics.IncDiscoveryRound(deployment)

	rp := seeds.ReadPreference
	if flags.Has(FlagWrite) {
		rp = rp.withMode(Primary)
	}

	authScope := m.seedAuthScope(seeds)
	conn, err := selectConnection(m.registry.snapshot(), authScope, rp)
	if err != nil {
		m.metrics.IncSelectionFailure(deployment)
		return nil, err
	}
	m.metrics.IncSelection(deployment)
	return conn, nil
}

// seedAuthScope derives the authentication scope a caller is requesting,
// taken from the first configured seed: a SeedSet carries one credential
// pair that every member of the target deployment is expected to share
// (spec.md §4.4 member credential inheritance).
func (m *Manager) seedAuthScope(seeds *SeedSet) string {
	if len(seeds.Servers) == 0 {
		return ""
	}
	return authScope(m.acquirer.transport.HashPassword, seeds.Servers[0])
}

func nonNil(conns []*Connection) []*Connection {
	out := make([]*Connection, 0, len(conns))
	for _, c := range conns {
		if c != nil {
			out = append(out, c)
		}
	}
	return out
}

func joinDialErrors(errs []error) string {
	var msgs []string
	for _, err := range errs {
		if err != nil {
			msgs = append(msgs, err.Error())
		}
	}
	return strings.Join(msgs, "; ")
}
