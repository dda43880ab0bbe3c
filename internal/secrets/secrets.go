// Package secrets resolves the credentials requested by the deploy step.
//
// Secrets never enter the environment of ordinary steps: the engine scrubs
// requested names from the process layer and only the deploy step receives
// the resolved values.
package secrets

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrMissing is returned when a requested secret has no value.
var ErrMissing = errors.New("secret not found")

// Provider resolves secret names to values.
type Provider interface {
	Resolve(ctx context.Context, names []string) (map[string]string, error)
}

// Env resolves secrets from a snapshot of environment variables.
type Env struct {
	vars map[string]string
}

// NewEnv creates a provider over vars, typically env.Process() taken before
// scrubbing.
func NewEnv(vars map[string]string) *Env {
	return &Env{vars: vars}
}

// Resolve implements Provider.
func (e *Env) Resolve(_ context.Context, names []string) (map[string]string, error) {
	return pick(e.vars, names)
}

// pick selects names from values, reporting every missing name at once.
func pick(values map[string]string, names []string) (map[string]string, error) {
	out := make(map[string]string, len(names))
	var missing []string
	for _, name := range names {
		v, ok := values[name]
		if !ok {
			missing = append(missing, name)
			continue
		}
		out[name] = v
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, fmt.Errorf("%w: %s", ErrMissing, strings.Join(missing, ", "))
	}
	return out, nil
}
