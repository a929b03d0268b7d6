package graph

import (
	"testing"

	"github.com/medallionhq/conductor/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGraph_AddRemove(t *testing.T) {
	g := FromEdges([]models.DependencyEdge{
		{TriggerID: "t1", Downstream: "B", Upstream: "A"},
		{TriggerID: "t2", Downstream: "B", Upstream: "A"},
		{TriggerID: "t3", Downstream: "C", Upstream: "B"},
	})

	assert.Equal(t, 2, g.EdgeCount())
	assert.Equal(t, []string{"A"}, g.Upstreams("B"))
	assert.Equal(t, []string{"C"}, g.Downstreams("B"))
	assert.Equal(t, []string{"A", "B", "C"}, g.Nodes())

	g.RemoveEdge("C", "B")
	assert.Equal(t, 1, g.EdgeCount())
	assert.Empty(t, g.Downstreams("B"))

	g.RemoveEdge("C", "B")
	assert.Equal(t, 1, g.EdgeCount())
}

func TestGraph_Validate(t *testing.T) {
	// A <- B <- C : B runs after A, C runs after B.
	g := FromEdges([]models.DependencyEdge{
		{Downstream: "B", Upstream: "A"},
		{Downstream: "C", Upstream: "B"},
	})

	tests := []struct {
		name       string
		downstream string
		upstream   string
		valid      bool
		reason     Reason
		chain      []string
	}{
		{name: "fan out", downstream: "D", upstream: "A", valid: true},
		{name: "extend chain", downstream: "D", upstream: "C", valid: true},
		{name: "shortcut", downstream: "C", upstream: "A", valid: true},
		{name: "self", downstream: "B", upstream: "B", reason: ReasonSelfDependency, chain: []string{"B"}},
		{name: "direct back edge", downstream: "A", upstream: "B", reason: ReasonCycle, chain: []string{"B", "A"}},
		{name: "transitive back edge", downstream: "A", upstream: "C", reason: ReasonCycle, chain: []string{"C", "B", "A"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := g.Validate(tt.downstream, tt.upstream)
			assert.Equal(t, tt.valid, result.Valid)
			assert.Equal(t, tt.reason, result.Reason)
			assert.Equal(t, tt.chain, result.Chain)
		})
	}
}

func TestGraph_ValidateTerminatesOnCorruptGraph(t *testing.T) {
	g := New()
	g.AddEdge("X", "Y")
	g.AddEdge("Y", "X")
	g.AddEdge("Y", "Y")

	result := g.Validate("Z", "X")
	assert.True(t, result.Valid)

	result = g.Validate("X", "Z")
	assert.True(t, result.Valid)
}

func TestGraph_AcceptedEdgesNeverCloseACycle(t *testing.T) {
	g := New()
	ids := []string{"p0", "p1", "p2", "p3", "p4", "p5"}

	for _, downstream := range ids {
		for _, upstream := range ids {
			if result := g.Validate(downstream, upstream); result.Valid {
				g.AddEdge(downstream, upstream)
			}
		}
	}

	assert.Positive(t, g.EdgeCount())
	assert.Empty(t, g.FindCycles())
}

func TestGraph_FindCycles(t *testing.T) {
	g := New()
	g.AddEdge("A", "B")
	g.AddEdge("B", "C")
	g.AddEdge("C", "A")
	g.AddEdge("D", "A")

	cycles := g.FindCycles()
	require.Len(t, cycles, 1)
	assert.Equal(t, []string{"A", "B", "C", "A"}, cycles[0])
}
