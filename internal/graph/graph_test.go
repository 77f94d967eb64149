package graph_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/accented-ai/semq/internal/graph"
)

func TestTopologicalSortOrdersDependenciesFirst(t *testing.T) {
	g := graph.NewDependencyGraph[string]()
	g.AddNode("activePercentage")
	g.AddNode("activeCount")
	g.AddNode("count")

	require.NoError(t, g.AddDependency("activePercentage", "activeCount"))
	require.NoError(t, g.AddDependency("activePercentage", "count"))

	order, err := g.TopologicalSort()
	require.NoError(t, err)
	require.Equal(t, []string{"activeCount", "count", "activePercentage"}, order)
}

func TestTopologicalSortDeterministicTieBreak(t *testing.T) {
	g := graph.NewDependencyGraph[string]()
	g.AddNode("b")
	g.AddNode("a")
	g.AddNode("c")

	order, err := g.TopologicalSort()
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b", "c"}, order)
}

func TestTopologicalSortDetectsCycle(t *testing.T) {
	g := graph.NewDependencyGraph[string]()
	g.AddNode("a")
	g.AddNode("b")

	require.NoError(t, g.AddDependency("a", "b"))
	require.NoError(t, g.AddDependency("b", "a"))

	_, err := g.TopologicalSort()
	require.Error(t, err)

	var cycleErr *graph.CycleError[string]
	require.ErrorAs(t, err, &cycleErr)
}

func TestBFSPathFindsShortestRoute(t *testing.T) {
	g := graph.NewAdjacencyGraph[string]()
	g.AddEdge("Employees", "Departments")
	g.AddEdge("Employees", "Productivity")
	g.AddEdge("Productivity", "ProductivityDetails")

	path, ok := g.BFSPath("Employees", "ProductivityDetails")
	require.True(t, ok)
	require.Equal(t, []string{"Employees", "Productivity", "ProductivityDetails"}, path)
}

func TestBFSPathUnreachable(t *testing.T) {
	g := graph.NewAdjacencyGraph[string]()
	g.AddEdge("Employees", "Departments")

	_, ok := g.BFSPath("Employees", "Nowhere")
	require.False(t, ok)
}
