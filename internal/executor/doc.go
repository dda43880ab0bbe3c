// Package executor runs the steps of a single job instance.
//
// An instance's steps run strictly in declared order. Each step is gated by
// its condition and OS guard, receives the composed environment, and is
// bounded by the first timeout declared on the step, the job, or the
// executor. The first failing step stops the job: every later step is
// recorded as skipped due to failure and the instance fails.
//
// The executor also brackets the steps with the instance's cache: a restore
// before the first step and a save after a successful job. Cache problems are
// never fatal to the instance.
package executor
