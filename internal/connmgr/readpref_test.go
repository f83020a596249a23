package connmgr_test

import (
	"testing"

	"github.com/mguindin/mongomgr/internal/connmgr"
)

func TestMatchesAnyEmptyPredicateMatchesEverything(t *testing.T) {
	if !connmgr.MatchesAny(nil, nil) {
		t.Fatal("empty predicate list should match everything")
	}
	if !connmgr.MatchesAny([]connmgr.TagPredicate{}, map[string]string{"dc": "east"}) {
		t.Fatal("empty predicate list should match a non-empty tag set")
	}
}

func TestMatchesAllRequiresEveryPair(t *testing.T) {
	pred := connmgr.TagPredicate{"dc": "east", "rack": "1"}

	cases := []struct {
		name string
		tags map[string]string
		want bool
	}{
		{"exact match", map[string]string{"dc": "east", "rack": "1"}, true},
		{"superset match", map[string]string{"dc": "east", "rack": "1", "extra": "x"}, true},
		{"missing key", map[string]string{"dc": "east"}, false},
		{"wrong value", map[string]string{"dc": "west", "rack": "1"}, false},
		{"empty tags", map[string]string{}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := connmgr.MatchesAll(pred, tc.tags); got != tc.want {
				t.Errorf("MatchesAll(%v, %v) = %v, want %v", pred, tc.tags, got, tc.want)
			}
		})
	}
}

func TestMatchesAnySatisfiedByAnySinglePredicateSet(t *testing.T) {
	preds := []connmgr.TagPredicate{
		{"dc": "west"},
		{"dc": "east"},
	}

	if !connmgr.MatchesAny(preds, map[string]string{"dc": "east"}) {
		t.Fatal("expected match against the second predicate set")
	}
	if connmgr.MatchesAny(preds, map[string]string{"dc": "north"}) {
		t.Fatal("expected no match against either predicate set")
	}
}
