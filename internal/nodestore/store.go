// Package nodestore defines the interface for storing and retrieving the
// mutable execution state of job instances during a run.
//
// # Why Node Store Exists
//
// The store isolates **mutable execution state** (status, results, errors)
// from the **immutable plan** (instances and their dependency edges). The
// scheduler writes statuses as instances move through their lifecycle, the
// engine records each instance's result, and readers such as the status
// endpoint and the run reporter query it without touching the scheduler's
// internals.
//
// # State Transitions
//
// Instances follow this lifecycle:
//
//	Pending → Running → Succeeded | Failed
//	Pending → Skipped | Skipped-due-to-failure
package nodestore

import (
	"context"

	"github.com/vk/burstci/internal/model"
)

// Store manages the mutable execution state of instances.
//
// Implementations MUST be safe for concurrent reads and writes: many workers
// update different instances at once while readers take snapshots.
type Store interface {
	// SetStatus updates the status of an instance.
	SetStatus(ctx context.Context, id string, status model.Status) error

	// GetStatus returns the status of an instance, or StatusPending if none
	// has been recorded yet.
	GetStatus(ctx context.Context, id string) (model.Status, error)

	// SetOutput records the result of an instance, typically the executor's
	// job result.
	SetOutput(ctx context.Context, id string, output any) error

	// GetOutput returns the recorded result, or nil.
	GetOutput(ctx context.Context, id string) (any, error)

	// SetError records why an instance failed or was skipped.
	SetError(ctx context.Context, id string, nodeErr error) error

	// GetError returns the recorded error, or nil.
	GetError(ctx context.Context, id string) (error, error)

	// Snapshot returns the current status of every instance seen so far.
	Snapshot(ctx context.Context) (map[string]model.Status, error)
}
