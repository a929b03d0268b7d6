// Package graph holds the pipeline dependency graph and the cycle guard that
// keeps it acyclic.
//
// An edge points from a downstream pipeline to the upstream pipeline it runs
// after, mirroring the dependency trigger that declares it.
package graph

import (
	"slices"

	"github.com/medallionhq/conductor/pkg/models"
)

// Graph is an adjacency list of dependency edges. It is not safe for
// concurrent mutation; build one per question from a consistent edge set.
type Graph struct {
	upstream   map[string][]string // downstream -> upstreams
	downstream map[string][]string // upstream -> downstreams
	edges      int
}

// New returns an empty graph.
func New() *Graph {
	return &Graph{
		upstream:   make(map[string][]string),
		downstream: make(map[string][]string),
	}
}

// FromEdges builds a graph from persisted dependency edges. Duplicate edges
// (several triggers between the same pair) collapse into one.
func FromEdges(edges []models.DependencyEdge) *Graph {
	g := New()
	for _, edge := range edges {
		g.AddEdge(edge.Downstream, edge.Upstream)
	}

	return g
}

// AddEdge records that downstream runs after upstream. Self edges are kept
// so that a corrupted graph stays observable.
func (g *Graph) AddEdge(downstream, upstream string) {
	if downstream == "" || upstream == "" {
		return
	}

	if slices.Contains(g.upstream[downstream], upstream) {
		return
	}

	g.upstream[downstream] = append(g.upstream[downstream], upstream)
	g.downstream[upstream] = append(g.downstream[upstream], downstream)
	g.edges++
}

// RemoveEdge deletes the edge downstream -> upstream if present.
func (g *Graph) RemoveEdge(downstream, upstream string) {
	before := len(g.upstream[downstream])

	g.upstream[downstream] = slices.DeleteFunc(g.upstream[downstream], func(id string) bool { return id == upstream })
	g.downstream[upstream] = slices.DeleteFunc(g.downstream[upstream], func(id string) bool { return id == downstream })

	if len(g.upstream[downstream]) < before {
		g.edges--
	}
}

// Upstreams returns the pipelines id runs after.
func (g *Graph) Upstreams(id string) []string {
	return slices.Clone(g.upstream[id])
}

// Downstreams returns the pipelines that run after id.
func (g *Graph) Downstreams(id string) []string {
	return slices.Clone(g.downstream[id])
}

// EdgeCount returns the number of distinct edges.
func (g *Graph) EdgeCount() int {
	return g.edges
}

// Nodes returns every pipeline that appears on an edge, sorted.
func (g *Graph) Nodes() []string {
	seen := make(map[string]struct{})

	for downstream, upstreams := range g.upstream {
		if len(upstreams) > 0 {
			seen[downstream] = struct{}{}
		}

		for _, upstream := range upstreams {
			seen[upstream] = struct{}{}
		}
	}

	nodes := make([]string, 0, len(seen))
	for id := range seen {
		nodes = append(nodes, id)
	}

	slices.Sort(nodes)

	return nodes
}
