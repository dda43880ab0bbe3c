// Package env composes the layered environment each step runs with.
//
// Layers are ordered from weakest to strongest: process-wide, job-level,
// accumulated step outputs, and finally the step's own overlay. A Stack is
// immutable; With returns a new stack and never touches the receiver, so a
// job can hand the same base stack to every step and concurrent instances
// never share mutable state.
package env

import (
	"os"
	"sort"
	"strings"
)

// Layer names used by the engine.
const (
	LayerProcess     = "process"
	LayerJob         = "job"
	LayerStepOutputs = "step-outputs"
	LayerStep        = "step"
)

// Layer is one named set of variables.
type Layer struct {
	Name string
	Vars map[string]string
}

// Stack is an immutable, ordered stack of layers.
type Stack struct {
	layers []Layer
}

// New returns a stack holding only the process layer.
func New(process map[string]string) Stack {
	return Stack{}.With(LayerProcess, process)
}

// With returns a new stack with vars pushed on top under name.
func (s Stack) With(name string, vars map[string]string) Stack {
	copied := make(map[string]string, len(vars))
	for k, v := range vars {
		copied[k] = v
	}
	layers := make([]Layer, len(s.layers), len(s.layers)+1)
	copy(layers, s.layers)
	return Stack{layers: append(layers, Layer{Name: name, Vars: copied})}
}

// Layers returns the layer names from weakest to strongest.
func (s Stack) Layers() []string {
	names := make([]string, len(s.layers))
	for i, l := range s.layers {
		names[i] = l.Name
	}
	return names
}

// Lookup returns the effective value of key.
func (s Stack) Lookup(key string) (string, bool) {
	for i := len(s.layers) - 1; i >= 0; i-- {
		if v, ok := s.layers[i].Vars[key]; ok {
			return v, true
		}
	}
	return "", false
}

// Resolve flattens the stack; later layers shadow earlier ones.
func (s Stack) Resolve() map[string]string {
	out := make(map[string]string)
	for _, l := range s.layers {
		for k, v := range l.Vars {
			out[k] = v
		}
	}
	return out
}

// Environ returns the flattened stack as sorted KEY=VALUE pairs, the form
// os/exec expects.
func (s Stack) Environ() []string {
	resolved := s.Resolve()
	out := make([]string, 0, len(resolved))
	for k, v := range resolved {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}

// Compose flattens the four standard layers in order.
func Compose(process, job, stepOutputs, step map[string]string) map[string]string {
	return New(process).
		With(LayerJob, job).
		With(LayerStepOutputs, stepOutputs).
		With(LayerStep, step).
		Resolve()
}

// Process captures the current process environment, dropping the names in
// scrub. Secrets are scrubbed so they only reach the deployment step.
func Process(scrub ...string) map[string]string {
	drop := make(map[string]bool, len(scrub))
	for _, name := range scrub {
		drop[name] = true
	}
	out := make(map[string]string)
	for _, kv := range os.Environ() {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" || drop[k] {
			continue
		}
		out[k] = v
	}
	return out
}
