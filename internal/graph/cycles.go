package graph

import (
	"fmt"
	"strings"

	"github.com/leapstack-labs/snowglobe/pkg/identity"
)

// Three-color marks for the cycle scan.
const (
	white = iota // unvisited
	gray         // on the current DFS path
	black        // fully explored
)

// Cycles finds directed cycles in the graph. Well-formed warehouse
// objects should not have any, so each cycle is reported as a non-fatal
// diagnostic; traversal elsewhere stays correct regardless. The scan is
// an iterative depth-first search with three-color marking, one cycle
// per back edge, deduplicated by rotation.
func (g *Graph) Cycles() [][]identity.Identity {
	color := make([]int, len(g.nodes))
	onPath := make([]int, 0, len(g.nodes)) // current DFS path as node ids
	pathPos := make(map[int]int)           // node id -> index in onPath

	seen := make(map[string]bool)
	var cycles [][]identity.Identity

	type frame struct {
		node int
		next int // index of the next out-edge to explore
	}

	for start := range g.nodes {
		if color[start] != white {
			continue
		}
		stack := []frame{{node: start}}
		color[start] = gray
		pathPos[start] = len(onPath)
		onPath = append(onPath, start)

		for len(stack) > 0 {
			f := &stack[len(stack)-1]
			if f.next < len(g.out[f.node]) {
				child := g.out[f.node][f.next]
				f.next++
				switch color[child] {
				case white:
					color[child] = gray
					pathPos[child] = len(onPath)
					onPath = append(onPath, child)
					stack = append(stack, frame{node: child})
				case gray:
					// Back edge: the cycle is the path slice from the
					// child back to the current node.
					cycle := append([]int(nil), onPath[pathPos[child]:]...)
					if key := canonicalCycleKey(cycle); !seen[key] {
						seen[key] = true
						cycles = append(cycles, g.identities(cycle))
					}
				}
				continue
			}
			color[f.node] = black
			delete(pathPos, f.node)
			onPath = onPath[:len(onPath)-1]
			stack = stack[:len(stack)-1]
		}
	}

	return cycles
}

// canonicalCycleKey rotates the cycle so it starts at its smallest node
// id, giving the same key for any entry point into the same cycle.
func canonicalCycleKey(cycle []int) string {
	minAt := 0
	for i, id := range cycle {
		if id < cycle[minAt] {
			minAt = i
		}
	}
	var b strings.Builder
	for i := range cycle {
		fmt.Fprintf(&b, "%d,", cycle[(minAt+i)%len(cycle)])
	}
	return b.String()
}

func (g *Graph) identities(ids []int) []identity.Identity {
	out := make([]identity.Identity, len(ids))
	for i, id := range ids {
		out[i] = g.nodes[id].ID
	}
	return out
}
