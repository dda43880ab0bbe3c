// Package scheduler drives the instance graph to completion with a pool of
// workers.
//
// # How It Works
//
// Every instance is a node.Node whose counter holds the number of needed
// instances that have not reached a terminal state. Nodes with no needs are
// queued first. A worker that finishes a node decrements the counter of each
// dependent, and the worker that brings a counter to zero queues that
// dependent. A queued node is resolved in this order:
//
//  1. the run was cancelled: skipped due to failure;
//  2. its needs failed under the needs policy: skipped due to failure;
//  3. it requires success and a need was skipped: skipped;
//  4. its condition is false: skipped;
//  5. otherwise it runs and ends succeeded or failed.
//
// There is no global abort. A failure only reaches the nodes downstream of it,
// and unrelated instances keep running.
package scheduler
