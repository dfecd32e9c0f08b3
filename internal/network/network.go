// Package network implements the contact graph between individuals.
//
// Nodes are dense integer indices and edges live in a flat, index-addressed
// list. The set of edges (the edge universe) is fixed once the network is
// built; interventions only place or lift holds on edges. An edge with at
// least one hold is inactive and is skipped by neighbour queries.
package network

import (
	"sort"
)

// Edge is an undirected contact between two individuals. A < B always holds.
type Edge struct {
	A int `json:"a"`
	B int `json:"b"`
}

// Other returns the endpoint of e opposite to id.
func (e Edge) Other(id int) int {
	if e.A == id {
		return e.B
	}
	return e.A
}

// ContactNetwork is an undirected graph with togglable edges.
// It is not safe for concurrent mutation; a running simulation owns it.
type ContactNetwork struct {
	edges    []Edge
	holds    []int   // per-edge hold count, 0 = active
	adj      [][]int // node -> incident edge indices, ordered by neighbour id
	isolated []bool  // node edges suppressed via SuppressEdgesFor
}

// newContactNetwork indexes edges into adjacency lists.
func newContactNetwork(n int, edges []Edge) *ContactNetwork {
	g := &ContactNetwork{
		edges:    edges,
		holds:    make([]int, len(edges)),
		adj:      make([][]int, n),
		isolated: make([]bool, n),
	}
	for i, e := range edges {
		g.adj[e.A] = append(g.adj[e.A], i)
		g.adj[e.B] = append(g.adj[e.B], i)
	}
	for id, list := range g.adj {
		sort.Slice(list, func(x, y int) bool {
			return edges[list[x]].Other(id) < edges[list[y]].Other(id)
		})
	}
	return g
}

// Size returns the number of nodes.
func (g *ContactNetwork) Size() int {
	return len(g.adj)
}

// EdgeCount returns the size of the edge universe (active and suppressed).
func (g *ContactNetwork) EdgeCount() int {
	return len(g.edges)
}

// ActiveEdgeCount returns the number of edges without holds.
func (g *ContactNetwork) ActiveEdgeCount() int {
	n := 0
	for _, h := range g.holds {
		if h == 0 {
			n++
		}
	}
	return n
}

// Edge returns the edge with index e.
func (g *ContactNetwork) Edge(e int) Edge {
	return g.edges[e]
}

// Edges returns a copy of the edge universe in index order.
func (g *ContactNetwork) Edges() []Edge {
	out := make([]Edge, len(g.edges))
	copy(out, g.edges)
	return out
}

// Active reports whether edge e currently carries contacts.
func (g *ContactNetwork) Active(e int) bool {
	return g.holds[e] == 0
}

// ActiveEdgeIDs returns the indices of all active edges in ascending order.
func (g *ContactNetwork) ActiveEdgeIDs() []int {
	ids := make([]int, 0, len(g.edges))
	for i, h := range g.holds {
		if h == 0 {
			ids = append(ids, i)
		}
	}
	return ids
}

// Degree returns the number of edges incident to id in the edge universe.
func (g *ContactNetwork) Degree(id int) int {
	return len(g.adj[id])
}

// HasEdge reports whether a and b share an edge, active or not.
func (g *ContactNetwork) HasEdge(a, b int) bool {
	for _, e := range g.adj[a] {
		if g.edges[e].Other(a) == b {
			return true
		}
	}
	return false
}

// Neighbors returns the currently active contacts of id in ascending order.
func (g *ContactNetwork) Neighbors(id int) []int {
	out := make([]int, 0, len(g.adj[id]))
	for _, e := range g.adj[id] {
		if g.holds[e] == 0 {
			out = append(out, g.edges[e].Other(id))
		}
	}
	return out
}

// HoldEdge marks edge e inactive. Holds stack: an edge held twice needs two
// releases.
func (g *ContactNetwork) HoldEdge(e int) {
	g.holds[e]++
}

// ReleaseEdge lifts one hold from edge e. Releasing an active edge is a no-op.
func (g *ContactNetwork) ReleaseEdge(e int) {
	if g.holds[e] > 0 {
		g.holds[e]--
	}
}

// SuppressEdgesFor holds every edge of id. It returns false if id was
// already suppressed, in which case nothing changes.
func (g *ContactNetwork) SuppressEdgesFor(id int) bool {
	if g.isolated[id] {
		return false
	}
	g.isolated[id] = true
	for _, e := range g.adj[id] {
		g.HoldEdge(e)
	}
	return true
}

// RestoreEdgesFor lifts the holds placed by SuppressEdgesFor. Holds placed
// by other interventions stay in place, so the neighbour set returns to
// exactly what it was before suppression. It returns false if id was not
// suppressed.
func (g *ContactNetwork) RestoreEdgesFor(id int) bool {
	if !g.isolated[id] {
		return false
	}
	g.isolated[id] = false
	for _, e := range g.adj[id] {
		g.ReleaseEdge(e)
	}
	return true
}

// Suppressed reports whether id's edges are currently suppressed.
func (g *ContactNetwork) Suppressed(id int) bool {
	return g.isolated[id]
}
