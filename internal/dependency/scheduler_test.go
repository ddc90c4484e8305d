package dependency

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrder_LinearChain(t *testing.T) {
	g := New()
	g.AddNode(Node{ID: "frontend", DependsOn: []NodeID{"backend"}})
	g.AddNode(Node{ID: "backend", DependsOn: []NodeID{"db"}})
	g.AddNode(Node{ID: "db"})

	order, err := Order(g)
	require.NoError(t, err)
	assert.Equal(t, []NodeID{"db", "backend", "frontend"}, order)
}

func TestOrder_DependenciesBeforeDependents(t *testing.T) {
	g := New()
	g.AddNode(Node{ID: "a"})
	g.AddNode(Node{ID: "b", DependsOn: []NodeID{"a"}})
	g.AddNode(Node{ID: "c", DependsOn: []NodeID{"a", "b"}})
	g.AddNode(Node{ID: "d", DependsOn: []NodeID{"b"}})

	order, err := Order(g)
	require.NoError(t, err)
	require.Len(t, order, 4)

	pos := make(map[NodeID]int)
	for i, id := range order {
		pos[id] = i
	}
	for _, n := range g.Nodes() {
		for _, dep := range n.DependsOn {
			assert.Less(t, pos[dep], pos[n.ID], "%s must come before %s", dep, n.ID)
		}
	}
}

func TestOrder_StableForDetectionOrder(t *testing.T) {
	// Independent nodes come out in the order they were detected,
	// run after run.
	build := func() *Graph {
		g := New()
		g.AddNode(Node{ID: "web"})
		g.AddNode(Node{ID: "api"})
		g.AddNode(Node{ID: "worker"})
		return g
	}

	first, err := Order(build())
	require.NoError(t, err)
	assert.Equal(t, []NodeID{"web", "api", "worker"}, first)

	for i := 0; i < 10; i++ {
		again, err := Order(build())
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestOrder_CycleIsFatal(t *testing.T) {
	g := New()
	g.AddNode(Node{ID: "a", DependsOn: []NodeID{"b"}})
	g.AddNode(Node{ID: "b", DependsOn: []NodeID{"a"}})
	g.AddNode(Node{ID: "c"})

	_, err := Order(g)
	require.Error(t, err)

	var fatal *FatalConfigError
	require.True(t, errors.As(err, &fatal))
	assert.Contains(t, fatal.Reason, "cycle")
	assert.Contains(t, fatal.Reason, "a")
	assert.Contains(t, fatal.Reason, "b")
	assert.NotContains(t, fatal.Reason, "c")
}

func TestOrder_UnknownDependencyIsFatal(t *testing.T) {
	g := New()
	g.AddNode(Node{ID: "frontend", DependsOn: []NodeID{"backend"}})

	_, err := Order(g)
	require.Error(t, err)

	var fatal *FatalConfigError
	require.True(t, errors.As(err, &fatal))
	assert.Contains(t, fatal.Reason, "frontend")
	assert.Contains(t, fatal.Reason, "backend")
}

func TestOrder_EmptyGraph(t *testing.T) {
	order, err := Order(New())
	require.NoError(t, err)
	assert.Empty(t, order)
}

func TestOrder_SelfDependency(t *testing.T) {
	g := New()
	g.AddNode(Node{ID: "a", DependsOn: []NodeID{"a"}})

	_, err := Order(g)
	var fatal *FatalConfigError
	require.True(t, errors.As(err, &fatal))
}

func TestLevels(t *testing.T) {
	g := New()
	g.AddNode(Node{ID: "db"})
	g.AddNode(Node{ID: "cache"})
	g.AddNode(Node{ID: "backend", DependsOn: []NodeID{"db", "cache"}})
	g.AddNode(Node{ID: "frontend", DependsOn: []NodeID{"backend"}})

	levels, err := Levels(g)
	require.NoError(t, err)
	require.Len(t, levels, 3)
	assert.Equal(t, []NodeID{"db", "cache"}, levels[0])
	assert.Equal(t, []NodeID{"backend"}, levels[1])
	assert.Equal(t, []NodeID{"frontend"}, levels[2])
}

func TestGraph_Dependents(t *testing.T) {
	g := New()
	g.AddNode(Node{ID: "db"})
	g.AddNode(Node{ID: "backend", DependsOn: []NodeID{"db"}})
	g.AddNode(Node{ID: "reporting", DependsOn: []NodeID{"db"}})

	deps := g.Dependents("db")
	assert.Equal(t, []NodeID{"backend", "reporting"}, deps)
	assert.Empty(t, g.Dependents("backend"))
}
