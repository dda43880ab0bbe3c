package engine

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"github.com/vk/burstci/internal/config"
	"github.com/vk/burstci/internal/ctxlog"
	"github.com/vk/burstci/internal/document"
	"github.com/vk/burstci/internal/hcl"
	"github.com/vk/burstci/internal/model"
)

// LoaderFor picks the definition loader for paths by file extension. A single
// YAML or JSON file selects the document loader; anything else, including
// directories, is read as HCL.
func LoaderFor(paths []string) (config.Loader, error) {
	var documents int
	for _, p := range paths {
		if slices.Contains(document.Extensions, strings.ToLower(filepath.Ext(p))) {
			documents++
		}
	}
	switch {
	case documents == 0:
		return hcl.NewLoader(), nil
	case documents == 1 && len(paths) == 1:
		return document.NewLoader(), nil
	default:
		return nil, fmt.Errorf("a YAML or JSON definition must be the only path, got %v", paths)
	}
}

// Load reads and validates the definition at paths. Any problem that must
// stop a run before a job starts is returned here.
func Load(ctx context.Context, paths ...string) (*model.Workflow, error) {
	logger := ctxlog.FromContext(ctx)
	if len(paths) == 0 {
		return nil, fmt.Errorf("no definition path given")
	}
	loader, err := LoaderFor(paths)
	if err != nil {
		return nil, err
	}

	wf, err := loader.Load(ctx, paths...)
	if err != nil {
		return nil, fmt.Errorf("failed to load definition: %w", err)
	}
	if err := config.Validate(wf); err != nil {
		return nil, fmt.Errorf("invalid definition %s: %w", wf.Source, err)
	}
	logger.Debug("Definition loaded and validated.", "workflow", wf.Name, "jobs", len(wf.Jobs))
	return wf, nil
}
