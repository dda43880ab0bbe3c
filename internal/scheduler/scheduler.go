package scheduler

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/vk/burstci/internal/ctxlog"
	"github.com/vk/burstci/internal/model"
	"github.com/vk/burstci/internal/node"
	"github.com/vk/burstci/internal/nodestore"
	"github.com/vk/burstci/internal/plan"
)

// Work is what the scheduler asks of its caller for each runnable instance.
// Implementations must be safe for concurrent use.
type Work interface {
	// Gate evaluates the instance's own condition.
	Gate(ctx context.Context, inst *model.JobInstance) (bool, error)
	// Execute runs the instance and returns its terminal status, either
	// succeeded or failed, together with a result recorded in the store.
	Execute(ctx context.Context, inst *model.JobInstance) (model.Status, any, error)
}

// Config tunes a scheduler.
type Config struct {
	// Workers bounds concurrency. Zero means one worker per instance.
	Workers int
	// DefaultPolicy applies to jobs that declare no needs policy.
	DefaultPolicy model.NeedsPolicy
}

// Scheduler runs one plan. It is single use.
type Scheduler struct {
	nodes []*node.Node
	byID  map[string]*node.Node
	store nodestore.Store
	work  Work
	cfg   Config
	wg    sync.WaitGroup
}

// New builds the node graph for p.
func New(p *plan.Plan, store nodestore.Store, work Work, cfg Config) *Scheduler {
	if cfg.DefaultPolicy == "" {
		cfg.DefaultPolicy = model.NeedsAll
	}
	s := &Scheduler{
		nodes: make([]*node.Node, 0, len(p.Instances)),
		byID:  make(map[string]*node.Node, len(p.Instances)),
		store: store,
		work:  work,
		cfg:   cfg,
	}
	for _, inst := range p.Instances {
		n := node.New(inst)
		s.nodes = append(s.nodes, n)
		s.byID[inst.ID] = n
	}
	for _, n := range s.nodes {
		for _, id := range n.Instance.Needs {
			dep := s.byID[id]
			n.Deps = append(n.Deps, dep)
			dep.Dependents = append(dep.Dependents, n)
		}
		n.SetInitialCounters()
	}
	return s
}

// Nodes returns the nodes in plan order.
func (s *Scheduler) Nodes() []*node.Node {
	return s.nodes
}

// Node returns the node for id, or nil.
func (s *Scheduler) Node(id string) *node.Node {
	return s.byID[id]
}

// Run blocks until every node is terminal. Cancelling ctx kills running
// commands and skips every node not yet started.
func (s *Scheduler) Run(ctx context.Context) {
	logger := ctxlog.FromContext(ctx)
	if len(s.nodes) == 0 {
		logger.Info("No instances to run.")
		return
	}

	workers := s.cfg.Workers
	if workers <= 0 || workers > len(s.nodes) {
		workers = len(s.nodes)
	}

	for _, n := range s.nodes {
		if err := s.store.SetStatus(ctx, n.ID(), model.StatusPending); err != nil {
			logger.Warn("Failed to record pending status.", "instance", n.ID(), "error", err)
		}
	}

	readyChan := make(chan *node.Node, len(s.nodes))
	s.wg.Add(len(s.nodes))

	logger.Debug("Finding root nodes...")
	for _, n := range s.nodes {
		if n.DepCount() == 0 {
			logger.Debug("Found root node.", "instance", n.ID())
			readyChan <- n
		}
	}

	logger.Info("🚀 Starting concurrent execution...", "instances", len(s.nodes), "workers", workers)
	for i := 0; i < workers; i++ {
		go s.worker(ctx, readyChan, i)
	}

	s.wg.Wait()
	close(readyChan)
	logger.Info("🏁 Execution finished.")
}

// worker is the processing loop of a single concurrent worker.
func (s *Scheduler) worker(ctx context.Context, readyChan chan *node.Node, workerID int) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Worker started.", "workerID", workerID)

	for n := range readyChan {
		nodeCtx := ctxlog.WithLogger(ctx, logger.With("workerID", workerID, "instance", n.ID()))
		status, result, err := s.resolve(nodeCtx, n)
		s.finish(nodeCtx, n, status, result, err, readyChan)
	}
	logger.Debug("Worker finished.", "workerID", workerID)
}

// resolve decides what happens to a node whose needs are all terminal and
// runs it when nothing prevents it.
func (s *Scheduler) resolve(ctx context.Context, n *node.Node) (model.Status, any, error) {
	logger := ctxlog.FromContext(ctx)
	inst := n.Instance

	if ctx.Err() != nil {
		logger.Warn("Context canceled, skipping instance.")
		return model.StatusSkippedDueToFailure, nil, ctx.Err()
	}

	if failed := s.blockingFailures(n); len(failed) > 0 {
		logger.Warn("Skipping instance due to upstream failure.", "failed", strings.Join(failed, ","))
		return model.StatusSkippedDueToFailure, nil, fmt.Errorf("needed instance failed: %s", strings.Join(failed, ", "))
	}

	if inst.Template.RequireSuccess {
		for _, dep := range n.Deps {
			if dep.Status() == model.StatusSkipped {
				logger.Info("Skipping instance, needed instance was skipped.", "dependency", dep.ID())
				return model.StatusSkipped, nil, nil
			}
		}
	}

	ok, err := s.work.Gate(ctx, inst)
	if err != nil {
		logger.Error("Condition evaluation failed.", "error", err)
		return model.StatusFailed, nil, fmt.Errorf("evaluating condition: %w", err)
	}
	if !ok {
		logger.Info("Instance condition is false, skipping.")
		return model.StatusSkipped, nil, nil
	}

	n.SetStatus(model.StatusRunning)
	if err := s.store.SetStatus(ctx, n.ID(), model.StatusRunning); err != nil {
		logger.Warn("Failed to record running status.", "error", err)
	}
	return s.work.Execute(ctx, inst)
}

// blockingFailures returns the needed instances whose failure prevents n from
// running under its policy.
func (s *Scheduler) blockingFailures(n *node.Node) []string {
	if len(n.Deps) == 0 {
		return nil
	}
	var failed []string
	for _, dep := range n.Deps {
		if dep.Status().Unsuccessful() {
			failed = append(failed, dep.ID())
		}
	}

	policy := n.Instance.Template.NeedsPolicy
	if policy == "" {
		policy = s.cfg.DefaultPolicy
	}
	if policy == model.NeedsAny && len(failed) < len(n.Deps) {
		return nil
	}
	return failed
}

// finish records the terminal state of n and releases its dependents.
func (s *Scheduler) finish(ctx context.Context, n *node.Node, status model.Status, result any, err error, readyChan chan *node.Node) {
	logger := ctxlog.FromContext(ctx)
	n.Finish(status, err, func() {
		if result != nil {
			if serr := s.store.SetOutput(ctx, n.ID(), result); serr != nil {
				logger.Warn("Failed to record result.", "error", serr)
			}
		}
		if err != nil {
			if serr := s.store.SetError(ctx, n.ID(), err); serr != nil {
				logger.Warn("Failed to record error.", "error", serr)
			}
		}
		if serr := s.store.SetStatus(ctx, n.ID(), status); serr != nil {
			logger.Warn("Failed to record status.", "error", serr)
		}
		logger.Debug("Instance reached a terminal state.", "status", status)

		for _, dependent := range n.Dependents {
			if dependent.DecrementDepCount() == 0 {
				logger.Debug("Unlocking dependent node.", "dependentID", dependent.ID())
				readyChan <- dependent
			}
		}
		s.wg.Done()
	})
}
