// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
package model

// Status is the lifecycle state of a job instance or a step.
type Status string

const (
	StatusPending             Status = "Pending"
	StatusRunning             Status = "Running"
	StatusSucceeded           Status = "Succeeded"
	StatusFailed              Status = "Failed"
	StatusSkipped             Status = "Skipped"
	StatusSkippedDueToFailure Status = "Skipped-due-to-failure"
)

// Terminal reports whether no further transition can happen.
func (s Status) Terminal() bool {
	switch s {
	case StatusSucceeded, StatusFailed, StatusSkipped, StatusSkippedDueToFailure:
		return true
	}
	return false
}

// Unsuccessful reports whether the status counts as a failure for dependents
// and for the run outcome.
func (s Status) Unsuccessful() bool {
	return s == StatusFailed || s == StatusSkippedDueToFailure
}
