package solve

import (
	"container/heap"
	"fmt"
)

// RequirementCycleDetected is returned when the dispensable-requirement
// fixed-point iteration (§4.2) fails to converge within the iteration cap,
// meaning two or more @requires directives form a cycle that can never be
// satisfied by any solution.
type RequirementCycleDetected struct {
	Iterations int
}

func (e *RequirementCycleDetected) Error() string {
	return fmt.Sprintf("requirement cycle detected after %d iterations", e.Iterations)
}

const maxFixedPointIterations = 100

// Solution is the result of solving a Space: the set of nodes and edges
// that make up the chosen Steiner tree, i.e. the minimal-cost set of
// resolvers able to serve every indispensable query field plus whatever
// extra fields their @requires directives pull in transitively.
type Solution struct {
	Included     map[NodeIndex]bool
	SpanningEdge map[NodeIndex]EdgeIndex // node -> the tree edge that first reached it
}

// Solve computes the Steiner tree for a Space using FLAC-style greedy
// spreading: repeatedly run a single-source shortest-path search from the
// root over the traversable (non-Requires) edges, folding in the cost of
// satisfying any dispensable requirement discovered along the way, until
// the set of dispensable terminals stops growing. Grounded on the
// teacher's Dijkstra implementation in federation/graph/weighted_graph.go
// (container/heap priority queue, NodeKey-based dedup) generalized from a
// plain shortest-path query into the fixed-point spreading solver
// described by the original Rust query-solver crate.
func Solve(s *Space) (*Solution, error) {
	requiredCost := make(map[NodeIndex]int)
	dispensable := make(map[NodeIndex]bool)

	var lastDist map[NodeIndex]int
	var lastPrev map[NodeIndex]EdgeIndex

	for iter := 0; iter < maxFixedPointIterations; iter++ {
		dist, prev := s.shortestPaths(requiredCost)
		lastDist, lastPrev = dist, prev

		newDispensable := false
		for nodeIdx, n := range s.Nodes {
			if n.Kind != NodeProvidableField {
				continue
			}
			idx := NodeIndex(nodeIdx)
			if _, reachable := dist[idx]; !reachable {
				continue
			}
			cost := 0
			for _, eIdx := range n.OutEdges {
				e := s.Edges[eIdx]
				if e.Kind != EdgeRequires {
					continue
				}
				reqDist, ok := dist[e.To]
				if !ok {
					// required field unreachable on its own; its cost will
					// be picked up once some other path reaches it.
					continue
				}
				cost += reqDist
				if !dispensable[e.To] {
					dispensable[e.To] = true
					newDispensable = true
				}
			}
			if requiredCost[idx] != cost {
				requiredCost[idx] = cost
				newDispensable = true
			}
		}

		if !newDispensable {
			return s.buildSolution(lastDist, lastPrev, dispensable), nil
		}
	}
	return nil, &RequirementCycleDetected{Iterations: maxFixedPointIterations}
}

// shortestPaths runs Dijkstra from the root over every edge except
// EdgeRequires (which records a dependency, not a traversal step), adding
// requiredCost[node] as an extra weight when settling a providable-field
// node so that expensive requirements bias the solver away from resolvers
// that would need them. Ties are broken deterministically by (From, edge
// index) so re-solving the same Space always yields the same tree.
func (s *Space) shortestPaths(requiredCost map[NodeIndex]int) (map[NodeIndex]int, map[NodeIndex]EdgeIndex) {
	dist := map[NodeIndex]int{s.root: 0}
	prev := map[NodeIndex]EdgeIndex{}
	visited := map[NodeIndex]bool{}

	pq := &nodeHeap{}
	heap.Init(pq)
	heap.Push(pq, nodeDist{node: s.root, dist: 0})

	for pq.Len() > 0 {
		cur := heap.Pop(pq).(nodeDist)
		if visited[cur.node] {
			continue
		}
		if d, ok := dist[cur.node]; ok && cur.dist > d {
			continue
		}
		visited[cur.node] = true

		edges := append([]EdgeIndex(nil), s.Nodes[cur.node].OutEdges...)
		for _, eIdx := range edges {
			e := s.Edges[eIdx]
			if e.Kind == EdgeRequires {
				continue
			}
			extra := 0
			if s.Nodes[e.To].Kind == NodeProvidableField {
				extra = requiredCost[e.To]
			}
			nd := cur.dist + e.Cost() + extra
			existing, has := dist[e.To]
			replace := !has || nd < existing
			if !replace && nd == existing {
				replace = s.tieBreakBetter(e, eIdx, prev[e.To])
			}
			if replace {
				dist[e.To] = nd
				prev[e.To] = eIdx
				heap.Push(pq, nodeDist{node: e.To, dist: nd})
			}
		}
	}
	return dist, prev
}

// tieBreakBetter reports whether edge eIdx should replace the current
// winning edge curIdx under the deterministic (source_node_id, edge_id)
// ordering required by §4.2, so re-solving the same Space always yields
// the same tree.
func (s *Space) tieBreakBetter(e SpaceEdge, eIdx, curIdx EdgeIndex) bool {
	cur := s.Edges[curIdx]
	if e.From != cur.From {
		return e.From < cur.From
	}
	return eIdx < curIdx
}

func (s *Space) buildSolution(dist map[NodeIndex]int, prev map[NodeIndex]EdgeIndex, dispensable map[NodeIndex]bool) *Solution {
	included := map[NodeIndex]bool{s.root: true}

	addPath := func(target NodeIndex) {
		cur := target
		for {
			if included[cur] {
				return
			}
			included[cur] = true
			eIdx, ok := prev[cur]
			if !ok {
				return
			}
			cur = s.Edges[eIdx].From
		}
	}

	for _, t := range s.Terminals {
		if _, ok := dist[t]; ok {
			addPath(t)
		}
	}
	for nodeIdx := range dispensable {
		if _, ok := dist[nodeIdx]; ok {
			addPath(nodeIdx)
		}
	}

	return &Solution{Included: included, SpanningEdge: prev}
}

type nodeDist struct {
	node NodeIndex
	dist int
}

type nodeHeap []nodeDist

func (h nodeHeap) Len() int { return len(h) }
func (h nodeHeap) Less(i, j int) bool {
	if h[i].dist != h[j].dist {
		return h[i].dist < h[j].dist
	}
	return h[i].node < h[j].node
}
func (h nodeHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *nodeHeap) Push(x any)   { *h = append(*h, x.(nodeDist)) }
func (h *nodeHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
