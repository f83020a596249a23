package connmgr

import "errors"

// Sentinel errors surfaced by the core. Call sites wrap these with
// fmt.Errorf("...: %w", ...) to add operation context.
var (
	// ErrDialFailure indicates the transport collaborator could not open a
	// connection to a ServerDef.
	ErrDialFailure = errors.New("dial failure")

	// ErrAuthFailure indicates the nonce/authenticate handshake failed.
	ErrAuthFailure = errors.New("authentication failure")

	// ErrPingFailure indicates a liveness ping failed against an otherwise
	// open connection.
	ErrPingFailure = errors.New("ping failure")

	// ErrProtocolError indicates the wire protocol collaborator returned a
	// decode or framing error.
	ErrProtocolError = errors.New("protocol error")

	// ErrNoCandidateServers indicates the selector pipeline produced an
	// empty candidate set after filtering, sorting, and windowing.
	ErrNoCandidateServers = errors.New("no candidate servers found")

	// ErrUnknownDeploymentType indicates SeedSet.DeploymentType did not match
	// any of Standalone, ReplicaSet, or MultiRouter.
	ErrUnknownDeploymentType = errors.New("unknown connection type requested")

	// ErrDuplicateConnection indicates register was called for a hash that
	// already has a registered Connection. This is a programming error; the
	// registry detects it rather than silently overwriting the entry.
	ErrDuplicateConnection = errors.New("duplicate connection for identity hash")
)
