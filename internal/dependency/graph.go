package dependency

// NodeID identifies a service in the dependency graph.
type NodeID string

// Node is a service plus the services it depends on.
type Node struct {
	ID        NodeID
	DependsOn []NodeID
}

// Graph holds the dependency relationships between detected services.
// Insertion order is preserved so scheduling is deterministic across runs.
type Graph struct {
	nodes map[NodeID]Node
	order []NodeID
}

// New creates an empty dependency graph.
func New() *Graph {
	return &Graph{
		nodes: make(map[NodeID]Node),
	}
}

// AddNode adds or replaces a node. Re-adding an ID keeps its original
// position in the insertion order.
func (g *Graph) AddNode(n Node) {
	if _, exists := g.nodes[n.ID]; !exists {
		g.order = append(g.order, n.ID)
	}
	g.nodes[n.ID] = n
}

// Get returns the node for id, or nil if absent.
func (g *Graph) Get(id NodeID) *Node {
	n, ok := g.nodes[id]
	if !ok {
		return nil
	}
	return &n
}

// Nodes returns all nodes in insertion order.
func (g *Graph) Nodes() []Node {
	result := make([]Node, 0, len(g.order))
	for _, id := range g.order {
		result = append(result, g.nodes[id])
	}
	return result
}

// Len returns the number of nodes.
func (g *Graph) Len() int {
	return len(g.order)
}

// Dependents returns the IDs of nodes that depend on id, in insertion order.
func (g *Graph) Dependents(id NodeID) []NodeID {
	var result []NodeID
	for _, candidate := range g.order {
		for _, dep := range g.nodes[candidate].DependsOn {
			if dep == id {
				result = append(result, candidate)
				break
			}
		}
	}
	return result
}
