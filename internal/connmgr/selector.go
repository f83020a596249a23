package connmgr

import (
	"math/rand/v2"
	"sort"
	"time"
)

// selectConnection runs the four-stage pipeline of spec.md §4.5 over a
// replica-set registry snapshot: candidate filter (auth scope, role, tags)
// -> sort-by-latency -> nearest-window restriction -> pick. It is
// in-memory and non-blocking (spec.md §5).
func selectConnection(conns []*Connection, authScope string, rp ReadPreference) (*Connection, error) {
	return runPipeline(filterCandidates(conns, authScope, rp), rp)
}

// selectIndependent runs the same sort/window/pick stages as
// selectConnection but without the replica-set role rules: Standalone and
// MultiRouter connections have no primary/secondary distinction, so
// candidates are narrowed only by auth scope and, if given, tag predicates
// (spec.md §4.4 "independent deployments").
func selectIndependent(conns []*Connection, authScope string, rp ReadPreference) (*Connection, error) {
	scoped := filterByAuthScope(conns, authScope)
	scoped = filterByTags(scoped, rp.Tags)
	return runPipeline(scoped, rp)
}

func runPipeline(candidates []*Connection, rp ReadPreference) (*Connection, error) {
	if len(candidates) == 0 {
		return nil, ErrNoCandidateServers
	}
	sortByLatency(candidates)
	candidates = restrictToNearestWindow(candidates, rp.window())
	return pick(candidates, rp.Mode), nil
}

func filterByAuthScope(conns []*Connection, authScope string) []*Connection {
	out := make([]*Connection, 0, len(conns))
	for _, c := range conns {
		if c.authScope == authScope {
			out = append(out, c)
		}
	}
	return out
}

// filterCandidates implements spec.md §4.5 stage 1. Role selection is
// decided by existence among the auth-scoped set before tags are applied,
// per the worked example in spec.md §8 scenario 5 (a tag-mismatched
// secondary does not cause a fall back to the primary once a secondary
// exists at all).
func filterCandidates(conns []*Connection, authScope string, rp ReadPreference) []*Connection {
	scoped := filterByAuthScope(conns, authScope)

	var byRole []*Connection
	switch rp.Mode {
	case Primary:
		byRole = filterByRole(scoped, RolePrimary)
	case Secondary:
		byRole = filterByRole(scoped, RoleSecondary)
	case PrimaryPreferred:
		if p := filterByRole(scoped, RolePrimary); len(p) > 0 {
			byRole = p
		} else {
			byRole = filterByRole(scoped, RoleSecondary)
		}
	case SecondaryPreferred:
		if s := filterByRole(scoped, RoleSecondary); len(s) > 0 {
			byRole = s
		} else {
			byRole = filterByRole(scoped, RolePrimary)
		}
	case Nearest:
		byRole = filterByRoles(scoped, RolePrimary, RoleSecondary)
	}

	// Tag predicates never apply to Primary/PrimaryPreferred (spec.md §4.5).
	if rp.Mode == Primary || rp.Mode == PrimaryPreferred {
		return byRole
	}
	return filterByTags(byRole, rp.Tags)
}

func filterByRole(conns []*Connection, role Role) []*Connection {
	return filterByRoles(conns, role)
}

func filterByRoles(conns []*Connection, roles ...Role) []*Connection {
	out := make([]*Connection, 0, len(conns))
	for _, c := range conns {
		for _, role := range roles {
			if c.role == role {
				out = append(out, c)
				break
			}
		}
	}
	return out
}

func filterByTags(conns []*Connection, preds []TagPredicate) []*Connection {
	if len(preds) == 0 {
		return conns
	}
	out := make([]*Connection, 0, len(conns))
	for _, c := range conns {
		if MatchesAny(preds, c.tags) {
			out = append(out, c)
		}
	}
	return out
}

// sortByLatency implements spec.md §4.5 stage 2.
func sortByLatency(conns []*Connection) {
	sort.Slice(conns, func(i, j int) bool {
		return conns[i].latencyUs < conns[j].latencyUs
	})
}

// restrictToNearestWindow implements spec.md §4.5 stage 3: keep every
// connection within window of the minimum observed latency. conns must
// already be sorted ascending by latency.
func restrictToNearestWindow(conns []*Connection, window time.Duration) []*Connection {
	if len(conns) == 0 {
		return conns
	}
	threshold := conns[0].latencyUs + window.Microseconds()
	out := conns[:0:0]
	for _, c := range conns {
		if c.latencyUs <= threshold {
			out = append(out, c)
		}
	}
	return out
}

// pick implements spec.md §4.5 stage 4.
func pick(conns []*Connection, mode Mode) *Connection {
	if mode == Primary {
		return conns[0]
	}
	return conns[rand.IntN(len(conns))]
}
