package connmgr

// DeploymentType is the topology hint a caller supplies alongside a seed
// list (spec.md §3).
type DeploymentType uint8

const (
	// Standalone is a single, unreplicated server.
	Standalone DeploymentType = iota

	// ReplicaSet is a replicated set with a primary; the manager discovers
	// the full membership starting from the given seeds (spec.md §4.4).
	ReplicaSet

	// MultiRouter is a pool of independent routers (e.g. mongos) with no
	// primary/secondary distinction from the client's perspective.
	MultiRouter
)

// String returns the human-readable name of the deployment type.
func (d DeploymentType) String() string {
	switch d {
	case ReplicaSet:
		return "replica-set"
	case MultiRouter:
		return "multi-router"
	default:
		return "standalone"
	}
}

// Flags are the per-call connection flags of spec.md §6.
type Flags uint8

const (
	// FlagWrite requests a write-capable connection. At the selector it
	// forces the effective read-preference mode to Primary (spec.md §4.5,
	// §9 "Write flag coupling"); it has no other effect.
	FlagWrite Flags = 1 << iota

	// FlagDontConnect restricts acquisition to already-cached connections;
	// it never dials (spec.md §4.3).
	FlagDontConnect
)

// Has reports whether f includes flag.
func (f Flags) Has(flag Flags) bool { return f&flag != 0 }

// SeedSet is the mutable ordered working list of endpoints for one
// GetReadWriteConnection call (spec.md §3). The topology discoverer appends
// to Servers during a ReplicaSet-mode call; iteration order determines
// which probe anchors an otherwise-ambiguous replica-set name (spec.md §5),
// so Servers must always be probed in the order given.
type SeedSet struct {
	Servers         []ServerDef
	DeploymentType  DeploymentType
	ReadPreference  ReadPreference
	ExpectedReplSet string
}
