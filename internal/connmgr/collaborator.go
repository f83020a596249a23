package connmgr

import "context"

// Socket is an opaque transport handle. The core never inspects it; it is
// passed back to the Transport collaborator on every subsequent call for a
// given Connection. Wire protocol encoding, TCP I/O, BSON parsing, and TLS
// negotiation are out of scope for this package (spec.md §1) and live
// entirely behind this interface.
type Socket any

// IsMasterOutcome is the classification an ismaster probe returns, modeled
// as a typed enum rather than the magic integers {0,1,2,3} of spec.md §4.4
// (design note §9 "Integer-coded ismaster result").
type IsMasterOutcome uint8

const (
	// IsMasterProtocolError means the probe failed at the transport or
	// protocol level; the caller must deregister the connection.
	IsMasterProtocolError IsMasterOutcome = iota

	// IsMasterOK means the probe succeeded and the reply should be ingested.
	IsMasterOK

	// IsMasterThrottled means the probe was suppressed by the
	// ismaster_interval throttle; no reply was produced and nothing changed.
	IsMasterThrottled

	// IsMasterOKNotMember means the probe succeeded but the responding node
	// reports it is not part of the expected replica set (e.g. it is a
	// standalone masquerading as a replset member, or reports a different
	// set name). The caller must deregister the connection and still
	// ingest the advertised member list.
	IsMasterOKNotMember
)

// String returns the human-readable name of the outcome.
func (o IsMasterOutcome) String() string {
	switch o {
	case IsMasterOK:
		return "ok"
	case IsMasterThrottled:
		return "throttled"
	case IsMasterOKNotMember:
		return "ok-not-member"
	default:
		return "protocol-error"
	}
}

// IsMasterReply carries everything an ismaster probe can tell the core about
// the responding server (spec.md §4.4, §6).
type IsMasterReply struct {
	Outcome IsMasterOutcome

	// ReplSetName is the set name advertised by the responding node. The
	// first successful probe anchors the expected name for subsequent
	// probes (spec.md §4.4 "Replica-set name handling").
	ReplSetName string

	// Hosts is the advertised member list as "host:port" strings.
	Hosts []string

	Role      Role
	Tags      map[string]string
	LatencyUs int64
}

// Transport is the external collaborator interface for wire protocol and
// socket I/O (spec.md §6). The core depends only on this interface; no
// concrete transport, BSON codec, or TLS implementation lives in this
// package.
type Transport interface {
	// Dial opens a transport-level connection to server. It does not
	// authenticate or ping.
	Dial(ctx context.Context, server ServerDef) (Socket, error)

	// GetNonce fetches a fresh nonce for the two-step authentication
	// handshake (spec.md §4.3). A new nonce is fetched for every
	// authentication attempt; nonces are never cached or reused.
	GetNonce(ctx context.Context, sock Socket) (string, error)

	// Authenticate submits the authenticate command using a nonce obtained
	// from GetNonce.
	Authenticate(ctx context.Context, sock Socket, db, user, password, nonce string) error

	// Ping issues a liveness probe and returns the measured round-trip
	// latency in microseconds.
	Ping(ctx context.Context, sock Socket) (latencyUs int64, err error)

	// IsMaster issues the server-introspection command. replSetName carries
	// the caller's current expectation (possibly empty) and the reply's
	// ReplSetName field carries the effective name to use for subsequent
	// probes, per spec.md §4.4.
	IsMaster(ctx context.Context, sock Socket, server ServerDef, replSetName string) (IsMasterReply, error)

	// HashPassword returns a stable one-way digest of (user, password),
	// used as the auth-scope key for candidate filtering (spec.md §4.5).
	HashPassword(user, password string) string

	// Close releases a transport-level connection.
	Close(sock Socket) error
}
