// Package connmgrtest provides in-memory fakes for connmgr.Transport and
// connmgr.Sink, grounded on the same map-keyed fake-endpoint idiom used by
// the retrieved corpus's own server-pool fakes: no real sockets, no real
// wire protocol, just per-endpoint canned behavior keyed by address.
package connmgrtest

import (
	"context"
	"fmt"
	"sync"

	"github.com/mguindin/mongomgr/internal/connmgr"
)

// socket is the fake's concrete Socket value. connmgr never inspects it.
type socket struct {
	addr   string
	closed bool
}

// endpoint holds the canned behavior for one fake server address.
type endpoint struct {
	dialErr       error
	nonce         string
	nonceErr      error
	authErr       error
	pingLatencyUs int64
	pingErr       error
	isMasterReply connmgr.IsMasterReply
	isMasterErr   error
}

// Transport is an in-memory fake satisfying connmgr.Transport. Construct it
// with NewTransport (the zero value has nil maps and is not usable), then
// configure per-address behavior with the setters before exercising it.
type Transport struct {
	mu        sync.Mutex
	endpoints map[string]*endpoint
	sockets   []*socket
	dialCount map[string]int
}

// NewTransport returns an empty fake Transport.
func NewTransport() *Transport {
	return &Transport{
		endpoints: make(map[string]*endpoint),
		dialCount: make(map[string]int),
	}
}

func addrOf(server connmgr.ServerDef) string {
	return fmt.Sprintf("%s:%d", server.Host, server.Port)
}

func (t *Transport) entry(addr string) *endpoint {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.endpoints[addr]
	if !ok {
		e = &endpoint{nonce: "nonce-" + addr}
		t.endpoints[addr] = e
	}
	return e
}

// SetDialError makes Dial fail for host:port.
func (t *Transport) SetDialError(host string, port uint16, err error) {
	t.entry(fmt.Sprintf("%s:%d", host, port)).dialErr = err
}

// SetAuthError makes Authenticate fail for host:port.
func (t *Transport) SetAuthError(host string, port uint16, err error) {
	t.entry(fmt.Sprintf("%s:%d", host, port)).authErr = err
}

// SetPingError makes Ping fail for host:port.
func (t *Transport) SetPingError(host string, port uint16, err error) {
	t.entry(fmt.Sprintf("%s:%d", host, port)).pingErr = err
}

// SetPingLatency sets the round-trip latency Ping reports for host:port.
func (t *Transport) SetPingLatency(host string, port uint16, latencyUs int64) {
	t.entry(fmt.Sprintf("%s:%d", host, port)).pingLatencyUs = latencyUs
}

// SetIsMaster configures the ismaster reply for host:port. latencyUs is
// also adopted by Ping unless overridden separately, mirroring a real
// server reporting consistent round-trip timing across commands.
func (t *Transport) SetIsMaster(host string, port uint16, reply connmgr.IsMasterReply) {
	addr := fmt.Sprintf("%s:%d", host, port)
	e := t.entry(addr)
	e.isMasterReply = reply
	if e.pingLatencyUs == 0 {
		e.pingLatencyUs = reply.LatencyUs
	}
}

// SetIsMasterError makes IsMaster fail at the transport level for host:port.
func (t *Transport) SetIsMasterError(host string, port uint16, err error) {
	t.entry(fmt.Sprintf("%s:%d", host, port)).isMasterErr = err
}

// DialCount reports how many times Dial was called for host:port.
func (t *Transport) DialCount(host string, port uint16) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dialCount[fmt.Sprintf("%s:%d", host, port)]
}

// Dial implements connmgr.Transport.
func (t *Transport) Dial(_ context.Context, server connmgr.ServerDef) (connmgr.Socket, error) {
	addr := addrOf(server)
	e := t.entry(addr)

	t.mu.Lock()
	t.dialCount[addr]++
	t.mu.Unlock()

	if e.dialErr != nil {
		return nil, e.dialErr
	}

	sock := &socket{addr: addr}
	t.mu.Lock()
	t.sockets = append(t.sockets, sock)
	t.mu.Unlock()
	return sock, nil
}

// GetNonce implements connmgr.Transport.
func (t *Transport) GetNonce(_ context.Context, sock connmgr.Socket) (string, error) {
	s := sock.(*socket)
	e := t.entry(s.addr)
	if e.nonceErr != nil {
		return "", e.nonceErr
	}
	return e.nonce, nil
}

// Authenticate implements connmgr.Transport.
func (t *Transport) Authenticate(_ context.Context, sock connmgr.Socket, _, _, _, _ string) error {
	s := sock.(*socket)
	return t.entry(s.addr).authErr
}

// Ping implements connmgr.Transport.
func (t *Transport) Ping(_ context.Context, sock connmgr.Socket) (int64, error) {
	s := sock.(*socket)
	e := t.entry(s.addr)
	if e.pingErr != nil {
		return 0, e.pingErr
	}
	return e.pingLatencyUs, nil
}

// IsMaster implements connmgr.Transport.
func (t *Transport) IsMaster(_ context.Context, sock connmgr.Socket, _ connmgr.ServerDef, _ string) (connmgr.IsMasterReply, error) {
	s := sock.(*socket)
	e := t.entry(s.addr)
	if e.isMasterErr != nil {
		return connmgr.IsMasterReply{}, e.isMasterErr
	}
	return e.isMasterReply, nil
}

// HashPassword implements connmgr.Transport with a deterministic, non-secure
// digest; good enough to distinguish credential pairs in tests.
func (t *Transport) HashPassword(user, password string) string {
	return "hash:" + user + ":" + password
}

// Close implements connmgr.Transport.
func (t *Transport) Close(sock connmgr.Socket) error {
	s := sock.(*socket)
	t.mu.Lock()
	defer t.mu.Unlock()
	s.closed = true
	return nil
}

// ClosedCount returns how many sockets dialed by this fake have been closed.
func (t *Transport) ClosedCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, s := range t.sockets {
		if s.closed {
			n++
		}
	}
	return n
}

// record is one captured log call.
type record struct {
	Module  string
	Level   connmgr.Level
	Message string
}

// Sink is an in-memory fake satisfying connmgr.Sink; it records every call
// for test assertions instead of discarding or printing them.
type Sink struct {
	mu      sync.Mutex
	records []record
}

// NewSink returns an empty fake Sink.
func NewSink() *Sink { return &Sink{} }

// Log implements connmgr.Sink.
func (s *Sink) Log(module string, level connmgr.Level, format string, args ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, record{Module: module, Level: level, Message: fmt.Sprintf(format, args...)})
}

// Count returns how many records were logged at level.
func (s *Sink) Count(level connmgr.Level) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, r := range s.records {
		if r.Level == level {
			n++
		}
	}
	return n
}
