package connmgr_test

import (
	"context"
	"testing"

	"github.com/mguindin/mongomgr/internal/connmgr"
	"github.com/mguindin/mongomgr/internal/connmgr/connmgrtest"
)

func newTestManager(transport *connmgrtest.Transport, sink *connmgrtest.Sink) *connmgr.Manager {
	return connmgr.NewManager(transport, connmgr.WithSink(sink))
}

// TestGetReadWriteConnectionStandaloneNoAuth covers spec.md §8's single
// standalone, no-auth scenario: one seed, no credentials, selection must
// return that seed's own connection.
func TestGetReadWriteConnectionStandaloneNoAuth(t *testing.T) {
	transport := connmgrtest.NewTransport()
	transport.SetPingLatency("s1", 27017, 1000)
	mgr := newTestManager(transport, connmgrtest.NewSink())
	defer mgr.Deinit()

	seeds := &connmgr.SeedSet{
		Servers:        []connmgr.ServerDef{{Host: "s1", Port: 27017}},
		DeploymentType: connmgr.Standalone,
	}

	conn, err := mgr.GetReadWriteConnection(context.Background(), seeds, 0)
	if err != nil {
		t.Fatalf("GetReadWriteConnection: %v", err)
	}
	if conn == nil || conn.Server().Host != "s1" {
		t.Fatalf("got %+v, want connection to s1", conn)
	}
	if transport.DialCount("s1", 27017) != 1 {
		t.Errorf("Dial called %d times, want 1", transport.DialCount("s1", 27017))
	}
}

// TestGetReadWriteConnectionReplicaSetDiscovery covers spec.md §8's
// replica-set discovery scenario: one seed discovers the full three-member
// set, and a write request returns the primary.
func TestGetReadWriteConnectionReplicaSetDiscovery(t *testing.T) {
	transport := connmgrtest.NewTransport()
	members := []string{"s1:27017", "s2:27017", "s3:27017"}

	transport.SetIsMaster("s1", 27017, connmgr.IsMasterReply{
		Outcome: connmgr.IsMasterOK, ReplSetName: "rs0", Hosts: members,
		Role: connmgr.RolePrimary, LatencyUs: 500,
	})
	transport.SetIsMaster("s2", 27017, connmgr.IsMasterReply{
		Outcome: connmgr.IsMasterOK, ReplSetName: "rs0", Hosts: members,
		Role: connmgr.RoleSecondary, LatencyUs: 700,
	})
	transport.SetIsMaster("s3", 27017, connmgr.IsMasterReply{
		Outcome: connmgr.IsMasterOK, ReplSetName: "rs0", Hosts: members,
		Role: connmgr.RoleSecondary, LatencyUs: 900,
	})

	mgr := newTestManager(transport, connmgrtest.NewSink())
	defer mgr.Deinit()

	seeds := &connmgr.SeedSet{
		Servers:        []connmgr.ServerDef{{Host: "s1", Port: 27017}},
		DeploymentType: connmgr.ReplicaSet,
		ReadPreference: connmgr.ReadPreference{Mode: connmgr.Primary},
	}

	conn, err := mgr.GetReadWriteConnection(context.Background(), seeds, connmgr.FlagWrite)
	if err != nil {
		t.Fatalf("GetReadWriteConnection: %v", err)
	}
	if conn == nil || conn.Server().Host != "s1" {
		t.Fatalf("got %+v, want connection to primary s1", conn)
	}
	if got := mgr.Size(); got != 3 {
		t.Errorf("registry size = %d, want 3 (full discovered membership)", got)
	}
}

// TestGetReadWriteConnectionSeedNotAMember covers spec.md §8's
// seed-was-not-a-member scenario: the seed reports ok-not-member, is
// deregistered, but its advertised member list is still used to discover
// the real primary.
func TestGetReadWriteConnectionSeedNotAMember(t *testing.T) {
	transport := connmgrtest.NewTransport()
	members := []string{"s1:27017", "s2:27017"}

	transport.SetIsMaster("s1", 27017, connmgr.IsMasterReply{
		Outcome: connmgr.IsMasterOKNotMember, ReplSetName: "rs0", Hosts: members,
	})
	transport.SetIsMaster("s2", 27017, connmgr.IsMasterReply{
		Outcome: connmgr.IsMasterOK, ReplSetName: "rs0", Hosts: members,
		Role: connmgr.RolePrimary, LatencyUs: 500,
	})

	mgr := newTestManager(transport, connmgrtest.NewSink())
	defer mgr.Deinit()

	seeds := &connmgr.SeedSet{
		Servers:        []connmgr.ServerDef{{Host: "s1", Port: 27017}},
		DeploymentType: connmgr.ReplicaSet,
		ReadPreference: connmgr.ReadPreference{Mode: connmgr.Primary},
	}

	conn, err := mgr.GetReadWriteConnection(context.Background(), seeds, connmgr.FlagWrite)
	if err != nil {
		t.Fatalf("GetReadWriteConnection: %v", err)
	}
	if conn == nil || conn.Server().Host != "s2" {
		t.Fatalf("got %+v, want connection to s2 (the real primary)", conn)
	}
	if got := mgr.Size(); got != 1 {
		t.Errorf("registry size = %d, want 1 (s1 deregistered as a non-member)", got)
	}
}

// TestGetReadWriteConnectionNearestWindow covers spec.md §8's nearest-window
// scenario: only connections within the latency window of the fastest
// candidate are eligible, even under a role-agnostic Nearest preference.
func TestGetReadWriteConnectionNearestWindow(t *testing.T) {
	transport := connmgrtest.NewTransport()
	members := []string{"s1:27017", "s2:27017", "s3:27017"}

	transport.SetIsMaster("s1", 27017, connmgr.IsMasterReply{
		Outcome: connmgr.IsMasterOK, ReplSetName: "rs0", Hosts: members,
		Role: connmgr.RolePrimary, LatencyUs: 500,
	})
	transport.SetIsMaster("s2", 27017, connmgr.IsMasterReply{
		Outcome: connmgr.IsMasterOK, ReplSetName: "rs0", Hosts: members,
		Role: connmgr.RoleSecondary, LatencyUs: 1000,
	})
	transport.SetIsMaster("s3", 27017, connmgr.IsMasterReply{
		Outcome: connmgr.IsMasterOK, ReplSetName: "rs0", Hosts: members,
		Role: connmgr.RoleSecondary, LatencyUs: 20000,
	})

	mgr := newTestManager(transport, connmgrtest.NewSink())
	defer mgr.Deinit()

	seeds := &connmgr.SeedSet{
		Servers:        []connmgr.ServerDef{{Host: "s1", Port: 27017}},
		DeploymentType: connmgr.ReplicaSet,
		ReadPreference: connmgr.ReadPreference{Mode: connmgr.Nearest},
	}

	seen := map[string]bool{}
	for i := 0; i < 40; i++ {
		conn, err := mgr.GetReadWriteConnection(context.Background(), seeds, 0)
		if err != nil {
			t.Fatalf("GetReadWriteConnection: %v", err)
		}
		seen[conn.Server().Host] = true
	}

	if seen["s3"] {
		t.Error("s3 is outside the latency window and must never be selected")
	}
	if !seen["s1"] || !seen["s2"] {
		t.Errorf("expected both s1 and s2 to be selected across repeated calls, got %v", seen)
	}
}

// TestGetReadWriteConnectionTagFiltering covers spec.md §8's tag-filtering
// scenario: SecondaryPreferred with a tag predicate must only return a
// secondary matching that predicate, never falling back to a
// non-matching secondary or the primary while a matching secondary exists.
func TestGetReadWriteConnectionTagFiltering(t *testing.T) {
	transport := connmgrtest.NewTransport()
	members := []string{"s1:27017", "s2:27017", "s3:27017"}

	transport.SetIsMaster("s1", 27017, connmgr.IsMasterReply{
		Outcome: connmgr.IsMasterOK, ReplSetName: "rs0", Hosts: members,
		Role: connmgr.RolePrimary, LatencyUs: 100,
	})
	transport.SetIsMaster("s2", 27017, connmgr.IsMasterReply{
		Outcome: connmgr.IsMasterOK, ReplSetName: "rs0", Hosts: members,
		Role: connmgr.RoleSecondary, Tags: map[string]string{"dc": "east"}, LatencyUs: 5000,
	})
	transport.SetIsMaster("s3", 27017, connmgr.IsMasterReply{
		Outcome: connmgr.IsMasterOK, ReplSetName: "rs0", Hosts: members,
		Role: connmgr.RoleSecondary, Tags: map[string]string{"dc": "west"}, LatencyUs: 100,
	})

	mgr := newTestManager(transport, connmgrtest.NewSink())
	defer mgr.Deinit()

	seeds := &connmgr.SeedSet{
		Servers:        []connmgr.ServerDef{{Host: "s1", Port: 27017}},
		DeploymentType: connmgr.ReplicaSet,
		ReadPreference: connmgr.ReadPreference{
			Mode: connmgr.SecondaryPreferred,
			Tags: []connmgr.TagPredicate{{"dc": "east"}},
		},
	}

	for i := 0; i < 10; i++ {
		conn, err := mgr.GetReadWriteConnection(context.Background(), seeds, 0)
		if err != nil {
			t.Fatalf("GetReadWriteConnection: %v", err)
		}
		if conn.Server().Host != "s2" {
			t.Fatalf("got %s, want s2 (the tag-matching secondary)", conn.Server().Host)
		}
	}
}

// TestGetReadWriteConnectionAuthFailureOnOneSeed covers spec.md §8's
// auth-failure-on-one-seed scenario: a MultiRouter deployment with one seed
// failing authentication still succeeds through the other.
func TestGetReadWriteConnectionAuthFailureOnOneSeed(t *testing.T) {
	transport := connmgrtest.NewTransport()
	transport.SetPingLatency("s1", 27017, 100)
	transport.SetPingLatency("s2", 27017, 200)
	transport.SetAuthError("s2", 27017, connmgr.ErrAuthFailure)

	sink := connmgrtest.NewSink()
	mgr := newTestManager(transport, sink)
	defer mgr.Deinit()

	seeds := &connmgr.SeedSet{
		Servers: []connmgr.ServerDef{
			{Host: "s1", Port: 27017, AuthDB: "admin", Username: "u", Password: "p"},
			{Host: "s2", Port: 27017, AuthDB: "admin", Username: "u", Password: "p"},
		},
		DeploymentType: connmgr.MultiRouter,
	}

	conn, err := mgr.GetReadWriteConnection(context.Background(), seeds, 0)
	if err != nil {
		t.Fatalf("GetReadWriteConnection: %v", err)
	}
	if conn == nil || conn.Server().Host != "s1" {
		t.Fatalf("got %+v, want connection to s1", conn)
	}
	if sink.Count(connmgr.LevelWarn) == 0 {
		t.Error("expected a warning logged for s2's authentication failure")
	}
}

// TestGetReadWriteConnectionDontConnectCacheMiss covers spec.md §9's
// DONT_CONNECT open-question decision: when nothing is cached and no dial
// is attempted, GetReadWriteConnection returns (nil, nil), not an error.
func TestGetReadWriteConnectionDontConnectCacheMiss(t *testing.T) {
	transport := connmgrtest.NewTransport()
	mgr := newTestManager(transport, connmgrtest.NewSink())
	defer mgr.Deinit()

	seeds := &connmgr.SeedSet{
		Servers:        []connmgr.ServerDef{{Host: "s1", Port: 27017}},
		DeploymentType: connmgr.Standalone,
	}

	conn, err := mgr.GetReadWriteConnection(context.Background(), seeds, connmgr.FlagDontConnect)
	if err != nil {
		t.Fatalf("GetReadWriteConnection: unexpected error %v", err)
	}
	if conn != nil {
		t.Fatalf("got %+v, want nil connection on an uncached DontConnect miss", conn)
	}
	if transport.DialCount("s1", 27017) != 0 {
		t.Error("DontConnect must never dial")
	}
}

// TestManagerDeinitDestroysEveryConnection verifies Deinit releases every
// registered connection's transport resource.
func TestManagerDeinitDestroysEveryConnection(t *testing.T) {
	transport := connmgrtest.NewTransport()
	transport.SetPingLatency("s1", 27017, 100)
	transport.SetPingLatency("s2", 27017, 100)
	mgr := newTestManager(transport, connmgrtest.NewSink())

	seeds := &connmgr.SeedSet{
		Servers: []connmgr.ServerDef{
			{Host: "s1", Port: 27017},
			{Host: "s2", Port: 27017},
		},
		DeploymentType: connmgr.MultiRouter,
	}
	if _, err := mgr.GetReadWriteConnection(context.Background(), seeds, 0); err != nil {
		t.Fatalf("GetReadWriteConnection: %v", err)
	}
	if got := mgr.Size(); got != 2 {
		t.Fatalf("registry size = %d, want 2", got)
	}

	mgr.Deinit()

	if got := mgr.Size(); got != 0 {
		t.Errorf("registry size after Deinit = %d, want 0", got)
	}
	if got := transport.ClosedCount(); got != 2 {
		t.Errorf("closed sockets = %d, want 2", got)
	}
}
