// Package node defines the scheduler's vertex: one job instance together with
// the atomic bookkeeping workers use to release it exactly once.
package node

import (
	"sync"
	"sync/atomic"

	"github.com/vk/burstci/internal/model"
)

// statuses maps the atomic state index to its status.
var statuses = []model.Status{
	model.StatusPending,
	model.StatusRunning,
	model.StatusSucceeded,
	model.StatusFailed,
	model.StatusSkipped,
	model.StatusSkippedDueToFailure,
}

func indexOf(s model.Status) int32 {
	for i, candidate := range statuses {
		if candidate == s {
			return int32(i)
		}
	}
	return 0
}

// Node is a single vertex in the instance graph.
type Node struct {
	Instance *model.JobInstance
	// Deps are the nodes this node waits for.
	Deps []*Node
	// Dependents are the nodes waiting for this node.
	Dependents []*Node

	// Error stores why the node failed or was skipped due to failure.
	Error error

	// --- Internal state management ---

	// depCount counts dependencies that have not reached a terminal state.
	depCount atomic.Int32
	state    atomic.Int32
	// finishOnce ensures a node reaches a terminal state exactly once.
	finishOnce sync.Once
}

// New creates a pending node for inst.
func New(inst *model.JobInstance) *Node {
	return &Node{Instance: inst}
}

// ID returns the instance identifier.
func (n *Node) ID() string {
	return n.Instance.ID
}

// SetInitialCounters primes the dependency counter from Deps.
func (n *Node) SetInitialCounters() {
	n.depCount.Store(int32(len(n.Deps)))
}

// DepCount atomically returns the number of dependencies still outstanding.
func (n *Node) DepCount() int32 {
	return n.depCount.Load()
}

// DecrementDepCount atomically decrements the dependency counter and returns
// the new value.
func (n *Node) DecrementDepCount() int32 {
	return n.depCount.Add(-1)
}

// SetStatus atomically sets the node's status.
func (n *Node) SetStatus(s model.Status) {
	n.state.Store(indexOf(s))
}

// Status atomically retrieves the node's status.
func (n *Node) Status() model.Status {
	return statuses[n.state.Load()]
}

// Finish moves the node to a terminal status and calls done. It uses a
// sync.Once so a node is finished only once, returning true the first time.
func (n *Node) Finish(status model.Status, err error, done func()) bool {
	var finished bool
	n.finishOnce.Do(func() {
		n.Error = err
		n.SetStatus(status)
		if done != nil {
			done()
		}
		finished = true
	})
	return finished
}
