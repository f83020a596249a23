// Package transport provides a minimal real connmgr.Transport over plain
// TCP. It dials and checks liveness with a zero-length write; it
// does not speak any document-database wire protocol, since wire-protocol
// encoding, BSON, and TLS negotiation are explicitly out of scope for this
// module (spec.md §1 Non-goals). GetNonce, Authenticate, and IsMaster return
// ErrWireProtocolUnavailable: a deployment that needs authentication or
// replica-set discovery supplies its own Transport built on a real driver;
// this one is enough to run Standalone/MultiRouter deployments with no
// authentication configured.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/mguindin/mongomgr/internal/connmgr"
)

// ErrWireProtocolUnavailable is returned by every TCP collaborator method
// that would require speaking the database wire protocol.
var ErrWireProtocolUnavailable = errors.New("transport: wire protocol not implemented")

// DialTimeout bounds how long Dial waits for the TCP handshake to complete.
const DialTimeout = 5 * time.Second

// socket wraps the dialed net.Conn. connmgr never inspects it.
type socket struct {
	conn net.Conn
}

// TCP is a bare-TCP connmgr.Transport: real sockets, no authentication or
// replica-set support. See the package doc for scope.
type TCP struct {
	dialer net.Dialer
}

// New returns a TCP transport using a fresh net.Dialer.
func New() *TCP {
	return &TCP{dialer: net.Dialer{Timeout: DialTimeout}}
}

// Dial implements connmgr.Transport.
func (t *TCP) Dial(ctx context.Context, server connmgr.ServerDef) (connmgr.Socket, error) {
	addr := fmt.Sprintf("%s:%d", server.Host, server.Port)
	conn, err := t.dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return &socket{conn: conn}, nil
}

// GetNonce implements connmgr.Transport.
func (t *TCP) GetNonce(_ context.Context, _ connmgr.Socket) (string, error) {
	return "", ErrWireProtocolUnavailable
}

// Authenticate implements connmgr.Transport.
func (t *TCP) Authenticate(_ context.Context, _ connmgr.Socket, _, _, _, _ string) error {
	return ErrWireProtocolUnavailable
}

// Ping implements connmgr.Transport as a zero-length write on the open
// socket: no application-level liveness check is possible without a wire
// protocol. No bytes are sent, so this detects only a socket that is already
// closed or has a pending error, and the reported latency is the duration of
// that local call, not a network round trip.
func (t *TCP) Ping(_ context.Context, sock connmgr.Socket) (int64, error) {
	s, ok := sock.(*socket)
	if !ok {
		return 0, fmt.Errorf("ping: %w", ErrWireProtocolUnavailable)
	}

	start := time.Now()
	if err := s.conn.SetWriteDeadline(time.Now().Add(DialTimeout)); err != nil {
		return 0, fmt.Errorf("ping: %w", err)
	}
	if _, err := s.conn.Write(nil); err != nil {
		return 0, fmt.Errorf("ping: %w", err)
	}
	return time.Since(start).Microseconds(), nil
}

// IsMaster implements connmgr.Transport.
func (t *TCP) IsMaster(_ context.Context, _ connmgr.Socket, _ connmgr.ServerDef, _ string) (connmgr.IsMasterReply, error) {
	return connmgr.IsMasterReply{}, ErrWireProtocolUnavailable
}

// HashPassword implements connmgr.Transport. It is never invoked on a
// ServerDef with no credentials, which is the only kind this transport can
// actually authenticate (none).
func (t *TCP) HashPassword(user, password string) string {
	return user + "\x00" + password
}

// Close implements connmgr.Transport.
func (t *TCP) Close(sock connmgr.Socket) error {
	s, ok := sock.(*socket)
	if !ok {
		return nil
	}
	if err := s.conn.Close(); err != nil {
		return fmt.Errorf("close: %w", err)
	}
	return nil
}
