// Package dag provides a small, concurrency-safe directed acyclic graph keyed
// by string IDs.
//
// It is used twice per run: once over job names to reject cyclic `needs`
// declarations at load time, and once over expanded job instances to give the
// scheduler its dependency edges and the dry-run planner its stages. Nodes
// remember their insertion order so every traversal is deterministic.
package dag
