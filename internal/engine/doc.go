// Package engine wires the pipeline stages together: it loads and validates a
// definition, matches its triggers, expands the instance plan, schedules the
// instances, and hands the terminal states to the run reporter.
//
// The engine owns no execution logic of its own. Every collaborator (command
// runner, cache store, secrets provider, publisher, node store) is injected
// through Config so the whole run can be driven by fakes in tests.
package engine
