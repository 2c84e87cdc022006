package graph

import (
	"fmt"

	"github.com/leapstack-labs/snowglobe/pkg/identity"
)

// Direction selects which way a trace walks the graph.
type Direction string

// Trace directions. Upstream follows out-edges (what the start object
// depends on); downstream follows in-edges (what depends on it).
const (
	Upstream   Direction = "upstream"
	Downstream Direction = "downstream"
)

// ParseDirection normalizes a user-supplied direction string.
func ParseDirection(s string) (Direction, error) {
	switch Direction(s) {
	case Upstream, Downstream:
		return Direction(s), nil
	case "up":
		return Upstream, nil
	case "down":
		return Downstream, nil
	}
	return "", fmt.Errorf("invalid direction: %q (want upstream or downstream)", s)
}

// NotFoundError reports a trace start that is not present in the graph.
type NotFoundError struct {
	FQN string
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("object not found in graph: %s", e.FQN)
}

// TraceNode is one entry of a lineage result. Depth is the shortest-path
// distance from the start object; depth 0 is the start itself.
type TraceNode struct {
	ID        identity.Identity
	Depth     int
	Direction Direction
	External  bool
}

// Trace walks the graph from start in the given direction. The walk is
// breadth-first, so each reachable node is emitted exactly once at its
// minimum depth, which also guarantees termination on cyclic graphs.
// maxDepth < 0 means unbounded; 0 returns only the start. Trace mutates
// no shared state and is safe to call concurrently.
func (g *Graph) Trace(start identity.Identity, dir Direction, maxDepth int) ([]TraceNode, error) {
	startID, ok := g.index[start.FQN()]
	if !ok {
		return nil, &NotFoundError{FQN: start.FQN()}
	}

	adj := g.out
	if dir == Downstream {
		adj = g.in
	}

	visited := make(map[int]bool, len(g.nodes))
	visited[startID] = true

	result := []TraceNode{{
		ID:        g.nodes[startID].ID,
		Depth:     0,
		Direction: dir,
		External:  g.nodes[startID].External,
	}}

	frontier := []int{startID}
	for depth := 1; len(frontier) > 0 && (maxDepth < 0 || depth <= maxDepth); depth++ {
		var next []int
		for _, i := range frontier {
			for _, j := range adj[i] {
				if visited[j] {
					continue
				}
				visited[j] = true
				next = append(next, j)
				result = append(result, TraceNode{
					ID:        g.nodes[j].ID,
					Depth:     depth,
					Direction: dir,
					External:  g.nodes[j].External,
				})
			}
		}
		frontier = next
	}

	return result, nil
}
