package testutil

import (
	"time"

	"github.com/vk/burstci/internal/command"
)

// ExecutionRecord holds one command the fake runner received.
type ExecutionRecord struct {
	Command command.Command
	// Instance is the BURSTCI_INSTANCE value the command ran with.
	Instance string
	Start    time.Time
	End      time.Time
}

// Env returns the value of key in the recorded command environment.
func (r ExecutionRecord) Env(key string) (string, bool) {
	return lookup(r.Command.Env, key)
}
