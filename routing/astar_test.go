package routing

import "testing"

// diamond with a tempting but more expensive upper path:
//
//	a -> b -> d   cost 1 + 5
//	a -> c -> d   cost 2 + 1
var diamond = map[string][]Edge{
	"a": {{To: "b", ID: "ab"}, {To: "c", ID: "ac"}},
	"b": {{To: "d", ID: "bd"}},
	"c": {{To: "d", ID: "cd"}},
	"d": nil,
}

var diamondCosts = map[string]float64{
	"ab": 1, "bd": 5,
	"ac": 2, "cd": 1,
}

func diamondNeighbors(node string) []Edge { return diamond[node] }
func diamondCost(edgeID string) float64   { return diamondCosts[edgeID] }
func zeroHeuristic(string) float64        { return 0 }

func TestFindPathPicksCheapestRoute(t *testing.T) {
	path, found := FindPath("a", "d", diamondNeighbors, diamondCost, zeroHeuristic)
	if !found {
		t.Fatal("expected a path from a to d")
	}
	if path.Cost != 3 {
		t.Errorf("path cost = %f, want 3", path.Cost)
	}
	want := []string{"a", "c", "d"}
	if len(path.Nodes) != len(want) {
		t.Fatalf("path nodes = %v, want %v", path.Nodes, want)
	}
	for i, n := range want {
		if path.Nodes[i] != n {
			t.Fatalf("path nodes = %v, want %v", path.Nodes, want)
		}
	}
	if len(path.EdgeIDs) != 2 || path.EdgeIDs[0] != "ac" || path.EdgeIDs[1] != "cd" {
		t.Errorf("path edges = %v, want [ac cd]", path.EdgeIDs)
	}
}

func TestFindPathTrivialOrigin(t *testing.T) {
	path, found := FindPath("a", "a", diamondNeighbors, diamondCost, zeroHeuristic)
	if !found {
		t.Fatal("expected the trivial path")
	}
	if len(path.Nodes) != 1 || path.Nodes[0] != "a" {
		t.Errorf("trivial path nodes = %v, want [a]", path.Nodes)
	}
	if path.Cost != 0 {
		t.Errorf("trivial path cost = %f, want 0", path.Cost)
	}
}

func TestFindPathUnreachable(t *testing.T) {
	// d has no outgoing edges, so nothing is reachable from it.
	if _, found := FindPath("d", "a", diamondNeighbors, diamondCost, zeroHeuristic); found {
		t.Error("expected no path from d to a")
	}
}

func TestFindPathUnknownGoal(t *testing.T) {
	if _, found := FindPath("a", "zzz", diamondNeighbors, diamondCost, zeroHeuristic); found {
		t.Error("expected no path to an unknown node")
	}
}

func TestFindPathDeterministicOnTies(t *testing.T) {
	// Two equal-cost paths; the result must be identical across runs.
	ties := map[string][]Edge{
		"a": {{To: "b", ID: "ab"}, {To: "c", ID: "ac"}},
		"b": {{To: "d", ID: "bd"}},
		"c": {{To: "d", ID: "cd"}},
	}
	unit := func(string) float64 { return 1 }

	first, found := FindPath("a", "d", func(n string) []Edge { return ties[n] }, unit, zeroHeuristic)
	if !found {
		t.Fatal("expected a path")
	}
	for i := 0; i < 50; i++ {
		again, _ := FindPath("a", "d", func(n string) []Edge { return ties[n] }, unit, zeroHeuristic)
		if len(again.Nodes) != len(first.Nodes) {
			t.Fatalf("run %d: path changed from %v to %v", i, first.Nodes, again.Nodes)
		}
		for j := range again.Nodes {
			if again.Nodes[j] != first.Nodes[j] {
				t.Fatalf("run %d: path changed from %v to %v", i, first.Nodes, again.Nodes)
			}
		}
	}
}
