package config

import (
	"context"

	"github.com/vk/burstci/internal/model"
)

// Loader is the interface for a format-specific definition loader.
type Loader interface {
	// Load reads the definitions at paths and translates them into a
	// workflow. The result is not validated.
	Load(ctx context.Context, paths ...string) (*model.Workflow, error)
}
