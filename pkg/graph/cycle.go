package graph

import "slices"

// Reason explains why a candidate dependency was rejected.
type Reason string

const (
	ReasonSelfDependency Reason = "self_dependency"
	ReasonCycle          Reason = "circular_dependency"
)

// Validation is the outcome of checking a candidate dependency edge.
type Validation struct {
	Valid  bool     `json:"valid"`
	Reason Reason   `json:"reason,omitempty"`
	Chain  []string `json:"chain,omitempty"`
}

// Validate reports whether adding downstream -> upstream keeps the graph
// acyclic. On rejection Chain lists pipeline ids from upstream following
// existing edges back to downstream; a self-dependency yields [downstream].
//
// The traversal keeps a visited set, so it terminates on graphs that are
// already cyclic.
func (g *Graph) Validate(downstream, upstream string) Validation {
	if downstream == upstream {
		return Validation{Valid: false, Reason: ReasonSelfDependency, Chain: []string{downstream}}
	}

	if chain := g.PathTo(upstream, downstream); chain != nil {
		return Validation{Valid: false, Reason: ReasonCycle, Chain: chain}
	}

	return Validation{Valid: true}
}

// PathTo returns a path from start to target following downstream -> upstream
// edges, or nil when target is unreachable.
func (g *Graph) PathTo(start, target string) []string {
	visited := make(map[string]bool)

	var walk func(id string, path []string) []string
	walk = func(id string, path []string) []string {
		if id == target {
			return append(slices.Clone(path), id)
		}

		if visited[id] {
			return nil
		}

		visited[id] = true
		path = append(path, id)

		for _, next := range g.upstream[id] {
			if found := walk(next, path); found != nil {
				return found
			}
		}

		return nil
	}

	return walk(start, nil)
}

// FindCycles returns one closed chain per strongly connected loop it meets,
// each starting and ending with the same pipeline. A healthy graph returns nil.
func (g *Graph) FindCycles() [][]string {
	const (
		unvisited = iota
		inStack
		done
	)

	state := make(map[string]int)

	var (
		cycles [][]string
		stack  []string
	)

	var visit func(id string)
	visit = func(id string) {
		state[id] = inStack
		stack = append(stack, id)

		for _, next := range g.upstream[id] {
			switch state[next] {
			case unvisited:
				visit(next)
			case inStack:
				start := slices.Index(stack, next)
				cycle := append(slices.Clone(stack[start:]), next)
				cycles = append(cycles, cycle)
			}
		}

		stack = stack[:len(stack)-1]
		state[id] = done
	}

	for _, id := range g.Nodes() {
		if state[id] == unvisited {
			visit(id)
		}
	}

	return cycles
}
