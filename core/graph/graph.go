package graph

import (
	"slices"

	"github.com/siherrmann/keygrapher/model"
)

// Neighbor is an adjacent node index with the accumulated edge weight.
type Neighbor struct {
	Node   int
	Weight float64
}

// Graph is a weighted undirected graph of tag identities. Node indexes follow
// discovery order, which is also the tie-break order of rankings.
type Graph struct {
	index map[model.TagIdentity]int
	nodes []model.TagIdentity
	adj   []map[int]float64
}

// New creates an empty graph.
func New() *Graph {
	return &Graph{
		index: make(map[model.TagIdentity]int),
	}
}

// FromEdges builds the weighted view of a set of co-occurrence edges. Nodes
// are added in the given discovery order, identities only seen in edges are
// appended afterwards in edge order. Identities without any edge are left out.
func FromEdges(order []model.TagIdentity, edges []*model.CooccurrenceEdge) *Graph {
	connected := make(map[model.TagIdentity]bool, len(edges)*2)
	for _, e := range edges {
		connected[e.A] = true
		connected[e.B] = true
	}

	g := New()
	for _, id := range order {
		if connected[id] {
			g.AddNode(id)
		}
	}
	for _, e := range edges {
		g.AddEdge(e.A, e.B, float64(e.Weight))
	}
	return g
}

// AddNode adds id if missing and returns its index.
func (g *Graph) AddNode(id model.TagIdentity) int {
	if i, ok := g.index[id]; ok {
		return i
	}
	i := len(g.nodes)
	g.index[id] = i
	g.nodes = append(g.nodes, id)
	g.adj = append(g.adj, make(map[int]float64))
	return i
}

// AddEdge accumulates weight on the undirected edge a-b. A self-loop is
// stored once.
func (g *Graph) AddEdge(a, b model.TagIdentity, weight float64) {
	ia := g.AddNode(a)
	ib := g.AddNode(b)
	g.adj[ia][ib] += weight
	if ia != ib {
		g.adj[ib][ia] += weight
	}
}

// Len returns the number of nodes.
func (g *Graph) Len() int {
	return len(g.nodes)
}

// Nodes returns the identities in discovery order.
func (g *Graph) Nodes() []model.TagIdentity {
	return slices.Clone(g.nodes)
}

// Neighbors returns the neighbors of node i sorted by index.
func (g *Graph) Neighbors(i int) []Neighbor {
	neighbors := make([]Neighbor, 0, len(g.adj[i]))
	for to, w := range g.adj[i] {
		neighbors = append(neighbors, Neighbor{Node: to, Weight: w})
	}
	slices.SortFunc(neighbors, func(a, b Neighbor) int {
		return a.Node - b.Node
	})
	return neighbors
}

// Degree returns the weighted degree of node i.
func (g *Graph) Degree(i int) float64 {
	sum := 0.0
	for _, w := range g.adj[i] {
		sum += w
	}
	return sum
}
