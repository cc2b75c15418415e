package dgml

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestGraph(t *testing.T, labels ...string) *Graph {
	t.Helper()
	g := NewGraph("test")
	for i, label := range labels {
		g.AddNode(NewNode(i, label))
	}
	return g
}

func TestGraphEdgesAccumulateReasons(t *testing.T) {
	g := newTestGraph(t, "a", "b", "c")

	require.NoError(t, g.AddEdge(0, 1, "first"))
	require.NoError(t, g.AddEdge(0, 1, "second"))
	require.NoError(t, g.AddEdge(0, 2, "third"))

	assert.Equal(t, []int{1, 2}, g.Targets(0))
	assert.Equal(t, []int{0}, g.Sources(1))
	assert.Equal(t, []string{"first", "second"}, g.Reasons(0, 1))
	assert.Equal(t, 2, g.EdgeCount())
	assert.Empty(t, g.Targets(2))
}

func TestGraphRejectsUnknownEndpoints(t *testing.T) {
	g := newTestGraph(t, "a")

	err := g.AddEdge(0, 7, "")
	require.ErrorIs(t, err, ErrUnknownNode)
	err = g.AddEdge(7, 0, "")
	require.ErrorIs(t, err, ErrUnknownNode)
	_, err = g.AddConditionalEdge(0, 9, 0, "")
	require.ErrorIs(t, err, ErrUnknownNode)
	assert.Zero(t, g.EdgeCount())
	assert.Equal(t, 1, g.Len())
}

func TestGraphConditionalEdges(t *testing.T) {
	g := newTestGraph(t, "first", "second", "target")

	id, err := g.AddConditionalEdge(0, 1, 2, "both")
	require.NoError(t, err)
	assert.Equal(t, -1, id)

	node := g.Node(id)
	require.NotNil(t, node)
	assert.Equal(t, KindConditional, node.Kind)
	assert.Equal(t, "Conditional(Index: 0, Name: first - Index: 1, Name: second)", node.Name)

	assert.Equal(t, []string{"both"}, g.Reasons(id, 2))
	assert.Equal(t, []string{"Reason1Conditional - both"}, g.Reasons(0, id))
	assert.Equal(t, []string{"Reason2Conditional - both"}, g.Reasons(1, id))
	assert.Equal(t, []int{id}, g.Sources(2))

	next, err := g.AddConditionalEdge(1, 0, 2, "again")
	require.NoError(t, err)
	assert.Equal(t, -2, next)
	assert.Equal(t, 5, g.Len())
}

func TestGraphAddNodeReplacesInPlace(t *testing.T) {
	g := newTestGraph(t, "a", "b")
	require.NoError(t, g.AddEdge(0, 1, "r"))

	g.AddNode(&Node{Index: 0, Kind: KindType, Name: "A"})

	nodes := g.Nodes()
	require.Len(t, nodes, 2)
	assert.Equal(t, "A", nodes[0].Name)
	assert.Equal(t, "b", nodes[1].Name)
	assert.Equal(t, []int{1}, g.Targets(0))
}

func TestGraphKindCounts(t *testing.T) {
	g := newTestGraph(t, "a", "b")
	g.AddNode(&Node{Index: 2, Kind: KindType, Name: "T"})

	counts := g.KindCounts()
	assert.Equal(t, 2, counts[KindNode])
	assert.Equal(t, 1, counts[KindType])
}

func TestGraphAccessorsReturnCopies(t *testing.T) {
	g := newTestGraph(t, "a", "b")
	require.NoError(t, g.AddEdge(0, 1, "r"))

	targets := g.Targets(0)
	targets[0] = 42
	reasons := g.Reasons(0, 1)
	reasons[0] = "changed"

	assert.Equal(t, []int{1}, g.Targets(0))
	assert.Equal(t, []string{"r"}, g.Reasons(0, 1))
}
