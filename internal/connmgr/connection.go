package connmgr

import "time"

// Role classifies a server as observed through the most recent successful
// ismaster reply (spec.md §3 Connection attributes).
type Role uint8

const (
	// RoleUnknown means no successful ismaster reply has classified this
	// connection yet.
	RoleUnknown Role = iota
	RolePrimary
	RoleSecondary
	RoleArbiter
	RoleMongos
	RoleStandalone
)

// String returns the human-readable name of the role.
func (r Role) String() string {
	switch r {
	case RolePrimary:
		return "primary"
	case RoleSecondary:
		return "secondary"
	case RoleArbiter:
		return "arbiter"
	case RoleMongos:
		return "mongos"
	case RoleStandalone:
		return "standalone"
	default:
		return "unknown"
	}
}

// State is a Connection's position in the lifecycle state machine described
// by spec.md §4.6:
//
//	Dialing --ok--> Authenticating --ok--> Pingable
//	   |               |                     |
//	   +-fail          +-fail                +-ismaster ok--> Classified(role)
//	                                          +-ping fail----> Evicted
//
// Classified is re-entered on every subsequent ismaster success; Evicted is
// terminal and means the Connection has been deregistered and destroyed.
type State uint8

const (
	StateDialing State = iota
	StateAuthenticating
	StatePingable
	StateClassified
	StateEvicted
)

// String returns the human-readable name of the state.
func (s State) String() string {
	switch s {
	case StateDialing:
		return "dialing"
	case StateAuthenticating:
		return "authenticating"
	case StatePingable:
		return "pingable"
	case StateClassified:
		return "classified"
	case StateEvicted:
		return "evicted"
	default:
		return "unknown"
	}
}

// Connection is a live, authenticated session bound to one ServerDef
// (spec.md §3). Identity is immutable after registration; at most one
// Connection per identity hash is ever registered (enforced by Registry).
type Connection struct {
	hash       string
	server     ServerDef
	authScope  string
	deployment string
	sock       Socket

	state State
	role  Role

	replSetName string
	tags        map[string]string

	lastPingAt     time.Time
	lastIsMasterAt time.Time
	latencyUs      int64
}

// Hash returns the identity hash this Connection was registered under.
func (c *Connection) Hash() string { return c.hash }

// Server returns the ServerDef this Connection was dialed from.
func (c *Connection) Server() ServerDef { return c.server }

// Deployment returns the name of the deployment this Connection was
// acquired for (spec.md §4.1 DeploymentType, stringified), used to label
// metrics and log lines.
func (c *Connection) Deployment() string { return c.deployment }

// State returns the Connection's current lifecycle state.
func (c *Connection) State() State { return c.state }

// Role returns the most recently classified role, or RoleUnknown if no
// ismaster probe has succeeded yet.
func (c *Connection) Role() Role { return c.role }

// ReplSetName returns the replica-set name advertised by the most recent
// successful ismaster reply, or the empty string.
func (c *Connection) ReplSetName() string { return c.replSetName }

// Tags returns the tag set advertised by the most recent successful
// ismaster reply. The returned map must not be mutated by the caller.
func (c *Connection) Tags() map[string]string { return c.tags }

// LatencyMicros returns the round-trip latency measured by the most recent
// successful ping or ismaster probe, in microseconds.
func (c *Connection) LatencyMicros() int64 { return c.latencyUs }

// LastPingAt returns the timestamp of the most recent successful ping.
func (c *Connection) LastPingAt() time.Time { return c.lastPingAt }

// LastIsMasterAt returns the timestamp of the most recent successful
// ismaster probe.
func (c *Connection) LastIsMasterAt() time.Time { return c.lastIsMasterAt }

// newDialingConnection constructs a Connection in the Dialing state. It is
// not usable (and not registered) until recordAuthenticated/recordPingable
// advance it past the handshake.
func newDialingConnection(hash string, server ServerDef, authScope, deployment string, sock Socket) *Connection {
	return &Connection{
		hash:       hash,
		server:     server,
		authScope:  authScope,
		deployment: deployment,
		sock:       sock,
		state:      StateDialing,
	}
}

// recordAuthenticated advances Dialing -> Authenticating after a successful
// nonce/authenticate handshake. It is not called for a server without auth
// credentials, which goes from Dialing straight to Pingable.
func (c *Connection) recordAuthenticated() { c.state = StateAuthenticating }

// recordPingable advances {Dialing,Authenticating} -> Pingable after a
// successful liveness ping, stamping latency and last-ping time.
func (c *Connection) recordPingable(latencyUs int64, at time.Time) {
	c.state = StatePingable
	c.latencyUs = latencyUs
	c.lastPingAt = at
}

// recordClassified advances {Pingable,Classified} -> Classified after a
// successful ismaster reply. Classified is re-entered on every subsequent
// successful ismaster per spec.md §4.6.
func (c *Connection) recordClassified(role Role, replSetName string, tags map[string]string, latencyUs int64, at time.Time) {
	c.state = StateClassified
	c.role = role
	c.replSetName = replSetName
	c.tags = tags
	c.latencyUs = latencyUs
	c.lastIsMasterAt = at
}

// recordEvicted transitions to the terminal Evicted state. Called by the
// Registry immediately before the Connection is destroyed.
func (c *Connection) recordEvicted() { c.state = StateEvicted }
