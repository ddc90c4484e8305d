package dependency

import (
	"fmt"
	"sort"
	"strings"
)

// FatalConfigError reports a dependency structure the engine cannot
// start from: a cycle, or a reference to a service that does not exist.
// It is not retryable.
type FatalConfigError struct {
	Reason string
}

func (e *FatalConfigError) Error() string {
	return "fatal configuration error: " + e.Reason
}

// Order computes the startup order for the graph using Kahn's algorithm.
// The ready queue is FIFO and is seeded with zero-dependency nodes in
// detection order, so the result is stable for a given input.
//
// A reference to an unknown service or a dependency cycle returns a
// *FatalConfigError naming the offending nodes.
func Order(g *Graph) ([]NodeID, error) {
	nodes := g.Nodes()

	for _, n := range nodes {
		for _, dep := range n.DependsOn {
			if g.Get(dep) == nil {
				return nil, &FatalConfigError{
					Reason: fmt.Sprintf("service %q depends on unknown service %q", n.ID, dep),
				}
			}
		}
	}

	indegree := make(map[NodeID]int, len(nodes))
	for _, n := range nodes {
		indegree[n.ID] = len(n.DependsOn)
	}

	var queue []NodeID
	for _, n := range nodes {
		if indegree[n.ID] == 0 {
			queue = append(queue, n.ID)
		}
	}

	result := make([]NodeID, 0, len(nodes))
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		result = append(result, current)

		for _, dependent := range g.Dependents(current) {
			indegree[dependent]--
			if indegree[dependent] == 0 {
				queue = append(queue, dependent)
			}
		}
	}

	if len(result) != len(nodes) {
		var unresolved []string
		for _, n := range nodes {
			if indegree[n.ID] > 0 {
				unresolved = append(unresolved, string(n.ID))
			}
		}
		sort.Strings(unresolved)
		return nil, &FatalConfigError{
			Reason: fmt.Sprintf("dependency cycle among services: %s", strings.Join(unresolved, ", ")),
		}
	}

	return result, nil
}

// Levels groups the ordered nodes by dependency depth: level 0 has no
// dependencies, level N depends only on nodes at levels below N. Nodes
// in the same level can start concurrently.
func Levels(g *Graph) ([][]NodeID, error) {
	ordered, err := Order(g)
	if err != nil {
		return nil, err
	}

	depth := make(map[NodeID]int, len(ordered))
	for _, id := range ordered {
		d := 0
		for _, dep := range g.Get(id).DependsOn {
			if depth[dep]+1 > d {
				d = depth[dep] + 1
			}
		}
		depth[id] = d
	}

	maxDepth := 0
	for _, d := range depth {
		if d > maxDepth {
			maxDepth = d
		}
	}

	levels := make([][]NodeID, maxDepth+1)
	for _, id := range ordered {
		levels[depth[id]] = append(levels[depth[id]], id)
	}
	return levels, nil
}
