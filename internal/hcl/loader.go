package hcl

import (
	"context"
	"fmt"
	"os"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/vk/burstci/internal/config"
	"github.com/vk/burstci/internal/ctxlog"
	"github.com/vk/burstci/internal/fsutil"
	"github.com/vk/burstci/internal/model"
)

// Extension is the file extension the loader reads.
const Extension = ".hcl"

// Loader is the HCL implementation of config.Loader.
type Loader struct{}

var _ config.Loader = (*Loader)(nil)

// NewLoader creates a new HCL definition loader.
func NewLoader() *Loader {
	return &Loader{}
}

// source pairs a decoded file with its bytes, needed to recover expression
// source text.
type source struct {
	path  string
	bytes []byte
}

// Load parses every .hcl file under paths and translates them into one
// workflow.
func (l *Loader) Load(ctx context.Context, paths ...string) (*model.Workflow, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("HCL loader started.", "path_count", len(paths))

	files, err := findHCLFiles(paths)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no %s files found in %v", Extension, paths)
	}
	logger.Debug("Discovered HCL files.", "count", len(files))

	parser := hclparse.NewParser()
	var (
		wf       *Workflow
		wfSource source
		extra    []*Job
		extraSrc []source
	)
	for _, file := range files {
		hclFile, diags := parser.ParseHCLFile(file)
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to parse HCL file %s: %w", file, diags)
		}

		var root fileRoot
		if diags := gohcl.DecodeBody(hclFile.Body, nil, &root); diags.HasErrors() {
			return nil, fmt.Errorf("failed to decode HCL file %s: %w", file, diags)
		}
		src := source{path: file, bytes: hclFile.Bytes}

		for _, w := range root.Workflows {
			if wf != nil {
				return nil, &model.DefinitionError{
					Kind:   model.ErrInvalidDefinition,
					Field:  "workflow",
					Detail: fmt.Sprintf("second workflow block %q in %s; only one is allowed", w.Name, file),
				}
			}
			wf, wfSource = w, src
		}
		for _, j := range root.Jobs {
			extra = append(extra, j)
			extraSrc = append(extraSrc, src)
		}
	}
	if wf == nil {
		return nil, &model.DefinitionError{
			Kind:   model.ErrInvalidDefinition,
			Field:  "workflow",
			Detail: fmt.Sprintf("no workflow block found in %v", paths),
		}
	}

	out, err := translateWorkflow(ctx, wf, wfSource)
	if err != nil {
		return nil, err
	}
	for i, j := range extra {
		job, err := translateJob(ctx, j, extraSrc[i])
		if err != nil {
			return nil, err
		}
		out.Jobs = append(out.Jobs, job)
	}
	out.Source = wfSource.path

	logger.Debug("HCL loading complete.", "workflow", out.Name, "jobs", len(out.Jobs))
	return out, nil
}

// findHCLFiles returns the .hcl files named by paths, walking directories.
// Paths that do not exist are an error: a definition must be found.
func findHCLFiles(paths []string) ([]string, error) {
	var all []string
	seen := make(map[string]struct{})
	add := func(p string) {
		if _, ok := seen[p]; !ok {
			seen[p] = struct{}{}
			all = append(all, p)
		}
	}

	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("error accessing path %s: %w", path, err)
		}
		if !info.IsDir() {
			add(path)
			continue
		}
		found, err := fsutil.FindFilesByExtension(path, Extension)
		if err != nil {
			return nil, err
		}
		for _, f := range found {
			add(f)
		}
	}
	return all, nil
}

// isExprDefined reports whether an optional expression attribute was present
// in the source. gohcl fills omitted hcl.Expression fields with a zero-width
// placeholder.
func isExprDefined(expr hcl.Expression) bool {
	if expr == nil {
		return false
	}
	r := expr.Range()
	return r.End.Byte > r.Start.Byte
}
