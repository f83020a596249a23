package connmgr

import (
	"context"
	"net"
	"strconv"
)

// discoverer walks a replica-set topology outward from an initial set of
// already-acquired connections, classifying each and following its
// advertised member list until the membership set reaches a fixpoint
// (spec.md §4.4, §9 "Cyclic discovery state"). It is worklist-driven, not
// recursive: a member list referencing an already-visited host is simply
// not re-queued, so cycles in the advertised topology terminate naturally
// instead of requiring cycle detection bolted on afterward.
type discoverer struct {
	acquirer  *Acquirer
	sink      Sink
	intervals *intervals
}

func newDiscoverer(acquirer *Acquirer, sink Sink, ivals *intervals) *discoverer {
	return &discoverer{acquirer: acquirer, sink: sink, intervals: ivals}
}

// discover probes every connection currently reachable from seeds, ingests
// each ismaster reply, and acquires newly advertised members, appending them
// to seeds.Servers in discovery order (spec.md §5 ordering guarantee: seeds
// already present keep their original relative order; newly discovered
// hosts are appended in the order their owning reply advertised them).
//
// Newly discovered hosts are always acquired with FlagWrite set (spec.md §9
// "New-member write flag"), regardless of the caller's flags. Acquire does
// not act on FlagWrite; the effect is that FlagDontConnect is never passed
// for a discovered host, so it is dialed even when the caller asked for
// cached connections only.
func (d *discoverer) discover(ctx context.Context, seeds *SeedSet, conns []*Connection) []error {
	visited := make(map[string]struct{}, len(conns))
	worklist := make([]*Connection, 0, len(conns))
	for _, conn := range conns {
		if conn == nil {
			continue
		}
		visited[conn.hash] = struct{}{}
		worklist = append(worklist, conn)
	}

	var errs []error
	for len(worklist) > 0 {
		conn := worklist[0]
		worklist = worklist[1:]

		reply, err := d.probe(ctx, conn, seeds.ExpectedReplSet)
		if err != nil {
			errs = append(errs, err)
			continue
		}

		if seeds.ExpectedReplSet == "" && reply.ReplSetName != "" {
			seeds.ExpectedReplSet = reply.ReplSetName
		}

		for _, member := range reply.Hosts {
			newConn, ok := d.admit(ctx, seeds, conn.Server(), member, visited)
			if !ok {
				continue
			}
			if newConn != nil {
				visited[newConn.hash] = struct{}{}
				worklist = append(worklist, newConn)
			}
		}
	}

	return errs
}

// probe issues one ismaster call and applies its outcome to conn per
// spec.md §4.4:
//
//   - protocol error: deregister and report the failure.
//   - throttled: no-op, nothing changes.
//   - ok: classify the connection from the reply.
//   - ok-not-member: deregister, but the advertised member list is still
//     ingested by the caller (the responding node may still know about
//     genuine members of the target set even though it isn't one itself).
func (d *discoverer) probe(ctx context.Context, conn *Connection, expectedReplSet string) (IsMasterReply, error) {
	if d.acquirer.withinInterval(conn.lastIsMasterAt, d.intervals.ismaster) {
		return IsMasterReply{Outcome: IsMasterThrottled}, nil
	}

	reply, err := d.acquirer.transport.IsMaster(ctx, conn.sock, conn.Server(), expectedReplSet)
	if err != nil {
		d.sink.Log("discover", LevelWarn, "ismaster transport error for %s: %v", conn.hash, err)
		d.acquirer.registry.deregister(conn)
		return IsMasterReply{}, err
	}

	switch reply.Outcome {
	case IsMasterProtocolError:
		d.sink.Log("discover", LevelWarn, "ismaster protocol error for %s", conn.hash)
		d.acquirer.registry.deregister(conn)
		return reply, ErrProtocolError
	case IsMasterThrottled:
		return reply, nil
	case IsMasterOKNotMember:
		d.sink.Log("discover", LevelInfo, "host %s is not a member of %q; deregistering", conn.hash, expectedReplSet)
		d.acquirer.registry.deregister(conn)
		return reply, nil
	default: // IsMasterOK
		oldRole := conn.role
		conn.recordClassified(reply.Role, reply.ReplSetName, reply.Tags, reply.LatencyUs, d.acquirer.now())
		if d.acquirer.metrics != nil && oldRole != reply.Role {
			d.acquirer.metrics.UnregisterConnection(conn.deployment, oldRole.String())
			d.acquirer.metrics.RegisterConnection(conn.deployment, reply.Role.String())
		}
		return reply, nil
	}
}

// admit resolves one advertised "host:port" member string to a Connection,
// acquiring it if it has not already been visited. It returns (nil, true)
// for a member already visited (nothing new to queue) and (nil, false) on a
// malformed host string or acquisition failure.
func (d *discoverer) admit(ctx context.Context, seeds *SeedSet, probed ServerDef, hostport string, visited map[string]struct{}) (*Connection, bool) {
	server, ok := resolveMember(probed, hostport)
	if !ok {
		d.sink.Log("discover", LevelWarn, "malformed member address %q", hostport)
		return nil, false
	}

	hash := Identity(server)
	if _, seen := visited[hash]; seen {
		return nil, true
	}

	conn, err := d.acquirer.Acquire(ctx, server, seeds.DeploymentType.String(), FlagWrite)
	if err != nil {
		d.sink.Log("discover", LevelWarn, "failed to acquire discovered member %s: %v", hostport, err)
		return nil, false
	}
	if conn == nil {
		return nil, false
	}

	seeds.Servers = append(seeds.Servers, server)
	return conn, true
}

// resolveMember splits a "host:port" member string and inherits the
// authentication fields of probed, the connection whose ismaster reply
// advertised it (spec.md §4.4 "member credential inheritance", grounded on
// original_source/mcon/manager.c:122-124, which copies username/password/db
// from servers->server[i], the seed being probed, not the first seed).
func resolveMember(probed ServerDef, hostport string) (ServerDef, bool) {
	host, portStr, err := net.SplitHostPort(hostport)
	if err != nil {
		return ServerDef{}, false
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return ServerDef{}, false
	}

	return ServerDef{
		Host: host, Port: uint16(port),
		AuthDB: probed.AuthDB, Username: probed.Username, Password: probed.Password,
	}, true
}
