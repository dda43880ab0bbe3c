package dag

import (
	"fmt"
	"strings"
	"sync"
)

// Graph is a collection of nodes and their dependencies.
// All operations on the graph are concurrency-safe.
type Graph struct {
	mutex sync.RWMutex
	nodes map[string]*node
	// order holds node IDs in insertion order.
	order []string
}

// node is un-exported to enforce interaction with the graph through string
// IDs rather than direct struct manipulation.
type node struct {
	id    string
	index int
	// deps are the nodes this node depends on (predecessors).
	deps map[string]*node
	// dependents are the nodes depending on this node (successors).
	dependents map[string]*node
}

// CycleError reports a dependency cycle. Path starts and ends with the same ID.
type CycleError struct {
	Path []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("cycle detected: %s", strings.Join(e.Path, " -> "))
}
