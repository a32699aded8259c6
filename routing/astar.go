package routing

import "container/heap"

// Edge is one outgoing connection the search can take from a node.
type Edge struct {
	To string // destination node id
	ID string // edge id, passed to the cost function
}

// Path is a reconstructed search result.
type Path struct {
	Nodes   []string // visited node ids, origin first
	EdgeIDs []string // edge ids between consecutive nodes
	Cost    float64
}

// FindPath runs best-first search from origin to goal over the graph
// described by neighbors. cost prices an edge by id; heuristic estimates the
// remaining cost from a node to the goal and must be admissible and
// consistent for the result to be minimal. An exhausted frontier returns
// found=false; that is an answer, not an error. Equal-priority frontier
// entries pop in insertion order, so identical inputs always produce the
// identical path.
func FindPath(
	origin, goal string,
	neighbors func(node string) []Edge,
	cost func(edgeID string) float64,
	heuristic func(node string) float64,
) (Path, bool) {
	bestG := map[string]float64{origin: 0}
	prev := make(map[string]cameFrom)

	open := &frontier{}
	heap.Init(open)
	heap.Push(open, &frontierItem{node: origin, f: heuristic(origin)})
	seq := 0

	for open.Len() > 0 {
		cur := heap.Pop(open).(*frontierItem)
		if cur.g > bestG[cur.node] {
			continue // stale entry superseded by a cheaper one
		}
		if cur.node == goal {
			return reconstruct(origin, goal, bestG[goal], prev), true
		}

		for _, e := range neighbors(cur.node) {
			g := cur.g + cost(e.ID)
			if known, ok := bestG[e.To]; ok && g >= known {
				continue
			}
			bestG[e.To] = g
			prev[e.To] = cameFrom{prev: cur.node, edgeID: e.ID}
			seq++
			heap.Push(open, &frontierItem{node: e.To, g: g, f: g + heuristic(e.To), seq: seq})
		}
	}

	return Path{}, false
}

type cameFrom struct {
	prev   string
	edgeID string
}

func reconstruct(origin, goal string, cost float64, prev map[string]cameFrom) Path {
	var nodes []string
	var edges []string
	for at := goal; ; {
		nodes = append(nodes, at)
		if at == origin {
			break
		}
		p := prev[at]
		edges = append(edges, p.edgeID)
		at = p.prev
	}
	// Reverse into origin-first order.
	for i, j := 0, len(nodes)-1; i < j; i, j = i+1, j-1 {
		nodes[i], nodes[j] = nodes[j], nodes[i]
	}
	for i, j := 0, len(edges)-1; i < j; i, j = i+1, j-1 {
		edges[i], edges[j] = edges[j], edges[i]
	}
	return Path{Nodes: nodes, EdgeIDs: edges, Cost: cost}
}

// frontier is the open set ordered by f, breaking ties by insertion order.
type frontierItem struct {
	node string
	g    float64
	f    float64
	seq  int
}

type frontier []*frontierItem

func (f frontier) Len() int { return len(f) }

func (f frontier) Less(i, j int) bool {
	if f[i].f != f[j].f {
		return f[i].f < f[j].f
	}
	return f[i].seq < f[j].seq
}

func (f frontier) Swap(i, j int) { f[i], f[j] = f[j], f[i] }

func (f *frontier) Push(x any) { *f = append(*f, x.(*frontierItem)) }

func (f *frontier) Pop() any {
	old := *f
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*f = old[:n-1]
	return item
}
