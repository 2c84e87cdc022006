// Package graph builds and traverses the object dependency graph. Nodes
// are keyed by normalized FQN; edges point from an object to the objects
// its DDL references. The structure is index-based (FQN to integer id,
// adjacency lists by id) so it carries no mutual object references and
// stays cheap to traverse and check for cycles.
package graph

import (
	"sort"

	"github.com/leapstack-labs/snowglobe/internal/snapshot"
	"github.com/leapstack-labs/snowglobe/pkg/identity"
)

// Node is one graph vertex. External marks reference targets that were
// not part of the fetched snapshot: they have no DDL and no outgoing
// edges.
type Node struct {
	ID       identity.Identity
	External bool
}

// Graph is an immutable dependency graph. Build once, query from any
// number of goroutines.
type Graph struct {
	index map[string]int // fqn -> node id
	nodes []Node
	out   [][]int // id -> ids this node depends on
	in    [][]int // id -> ids that depend on this node
}

// Build assembles the graph from a snapshot and the per-object reference
// sets, keyed like the snapshot (identity key -> references). The build
// is a single pass and order-independent: node ids are assigned in
// sorted-FQN order and adjacency lists are sorted, so permuting the
// input yields an identical graph.
func Build(snap *snapshot.Snapshot, refs map[string][]identity.Identity) *Graph {
	// Collect the node universe: every fetched object plus every
	// reference target, resolved by FQN.
	byFQN := make(map[string]Node)
	for _, rec := range snap.Records() {
		byFQN[rec.ID.FQN()] = Node{ID: rec.ID}
	}
	for _, targets := range refs {
		for _, target := range targets {
			if _, ok := byFQN[target.FQN()]; !ok {
				byFQN[target.FQN()] = Node{ID: target, External: true}
			}
		}
	}

	fqns := make([]string, 0, len(byFQN))
	for fqn := range byFQN {
		fqns = append(fqns, fqn)
	}
	sort.Strings(fqns)

	g := &Graph{
		index: make(map[string]int, len(fqns)),
		nodes: make([]Node, len(fqns)),
		out:   make([][]int, len(fqns)),
		in:    make([][]int, len(fqns)),
	}
	for i, fqn := range fqns {
		g.index[fqn] = i
		g.nodes[i] = byFQN[fqn]
	}

	// Edges: deduplicated, self-edges dropped.
	type edge struct{ from, to int }
	edgeSet := make(map[edge]bool)
	for key, targets := range refs {
		rec, ok := snap.Get(key)
		if !ok {
			continue
		}
		from := g.index[rec.ID.FQN()]
		for _, target := range targets {
			to := g.index[target.FQN()]
			if from == to {
				continue
			}
			e := edge{from, to}
			if edgeSet[e] {
				continue
			}
			edgeSet[e] = true
			g.out[from] = append(g.out[from], to)
			g.in[to] = append(g.in[to], from)
		}
	}
	for i := range g.out {
		sort.Ints(g.out[i])
		sort.Ints(g.in[i])
	}

	return g
}

// NodeCount returns the number of nodes.
func (g *Graph) NodeCount() int {
	return len(g.nodes)
}

// EdgeCount returns the number of edges.
func (g *Graph) EdgeCount() int {
	count := 0
	for _, adj := range g.out {
		count += len(adj)
	}
	return count
}

// Node returns the node for a normalized FQN.
func (g *Graph) Node(fqn string) (Node, bool) {
	i, ok := g.index[fqn]
	if !ok {
		return Node{}, false
	}
	return g.nodes[i], true
}

// Nodes returns all nodes in FQN order.
func (g *Graph) Nodes() []Node {
	nodes := make([]Node, len(g.nodes))
	copy(nodes, g.nodes)
	return nodes
}

// Dependencies returns the identities a node directly depends on.
func (g *Graph) Dependencies(fqn string) []identity.Identity {
	return g.neighbors(fqn, g.out)
}

// Dependents returns the identities that directly depend on a node.
func (g *Graph) Dependents(fqn string) []identity.Identity {
	return g.neighbors(fqn, g.in)
}

// ExternalNodes returns the reference targets that were not fetched.
func (g *Graph) ExternalNodes() []identity.Identity {
	var ids []identity.Identity
	for _, n := range g.nodes {
		if n.External {
			ids = append(ids, n.ID)
		}
	}
	return ids
}

func (g *Graph) neighbors(fqn string, adj [][]int) []identity.Identity {
	i, ok := g.index[fqn]
	if !ok {
		return nil
	}
	ids := make([]identity.Identity, 0, len(adj[i]))
	for _, j := range adj[i] {
		ids = append(ids, g.nodes[j].ID)
	}
	return ids
}
