package executor

import (
	"time"

	"github.com/vk/burstci/internal/cache"
	"github.com/vk/burstci/internal/model"
)

// StepResult records the outcome of one step.
type StepResult struct {
	Name     string        `json:"name" yaml:"name" cbor:"name"`
	Status   model.Status  `json:"status" yaml:"status" cbor:"status"`
	ExitCode int           `json:"exit_code" yaml:"exit_code" cbor:"exit_code"`
	Error    string        `json:"error,omitempty" yaml:"error,omitempty" cbor:"error,omitempty"`
	Duration time.Duration `json:"duration" yaml:"duration" cbor:"duration"`
	// Outputs are the KEY=VALUE pairs the step published.
	Outputs map[string]string `json:"outputs,omitempty" yaml:"outputs,omitempty" cbor:"outputs,omitempty"`
}

// JobResult records the outcome of one instance's steps.
type JobResult struct {
	Instance string        `json:"instance" yaml:"instance" cbor:"instance"`
	Status   model.Status  `json:"status" yaml:"status" cbor:"status"`
	Cache    cache.Outcome `json:"cache" yaml:"cache" cbor:"cache"`
	CacheKey string        `json:"cache_key,omitempty" yaml:"cache_key,omitempty" cbor:"cache_key,omitempty"`
	Steps    []StepResult  `json:"steps" yaml:"steps" cbor:"steps"`
	Duration time.Duration `json:"duration" yaml:"duration" cbor:"duration"`
	// Err is the first step failure, if any.
	Err error `json:"-" yaml:"-" cbor:"-"`
}

// Step returns the result of the named step, or nil.
func (r *JobResult) Step(name string) *StepResult {
	for i := range r.Steps {
		if r.Steps[i].Name == name {
			return &r.Steps[i]
		}
	}
	return nil
}
