package document

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tidwall/jsonc"
	"github.com/vk/burstci/internal/condition"
	"github.com/vk/burstci/internal/config"
	"github.com/vk/burstci/internal/ctxlog"
	"github.com/vk/burstci/internal/model"
	"gopkg.in/yaml.v3"
)

// Extensions lists the file extensions the loader reads.
var Extensions = []string{".yaml", ".yml", ".json", ".jsonc"}

// Loader is the YAML and JSONC implementation of config.Loader.
type Loader struct{}

var _ config.Loader = (*Loader)(nil)

// NewLoader creates a document loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Load reads a single definition file. Exactly one path is accepted.
func (l *Loader) Load(ctx context.Context, paths ...string) (*model.Workflow, error) {
	if len(paths) != 1 {
		return nil, fmt.Errorf("document loader reads exactly one file, got %d", len(paths))
	}
	path := paths[0]
	ctxlog.FromContext(ctx).Debug("Document loader started.", "path", path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	wf, err := Parse(data, filepath.Ext(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	wf.Source = path
	if wf.Name == "" {
		wf.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return wf, nil
}

// Parse decodes a definition. ext selects JSONC stripping for .json and
// .jsonc; anything else is read as YAML.
func Parse(data []byte, ext string) (*model.Workflow, error) {
	switch strings.ToLower(ext) {
	case ".json", ".jsonc":
		data = jsonc.ToJSON(data)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var f File
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, &model.DefinitionError{Kind: model.ErrInvalidDefinition, Detail: "definition is empty"}
		}
		return nil, fmt.Errorf("parsing definition: %w", err)
	}
	return translate(&f)
}

func translate(f *File) (*model.Workflow, error) {
	wf := &model.Workflow{
		Name:     f.Name,
		Triggers: []model.Trigger(f.On),
		Env:      f.Env,
	}
	for _, nj := range f.Jobs {
		job, err := translateJob(nj.Name, &nj.Job)
		if err != nil {
			return nil, err
		}
		wf.Jobs = append(wf.Jobs, job)
	}
	if f.Deploy != nil {
		d, err := translateDeploy(f.Deploy)
		if err != nil {
			return nil, err
		}
		wf.Deploy = d
	}
	return wf, nil
}

func translateJob(name string, j *Job) (*model.JobTemplate, error) {
	policy, err := model.ParseNeedsPolicy(j.NeedsPolicy)
	if err != nil {
		return nil, invalid(name, "", "needs-policy", err)
	}
	timeout, err := parseDuration(j.Timeout)
	if err != nil {
		return nil, invalid(name, "", "timeout", err)
	}
	job := &model.JobTemplate{
		Name:             name,
		Needs:            j.Needs,
		NeedsPolicy:      policy,
		RequireSuccess:   j.RequireSuccess,
		Env:              j.Env,
		WorkingDirectory: j.WorkingDirectory,
		Timeout:          timeout,
	}
	if job.Condition, err = parseCondition(j.If); err != nil {
		return nil, invalid(name, "", "if", err)
	}
	if j.RunsOn != "" {
		if job.RunsOn, err = condition.ParseTemplate(j.RunsOn); err != nil {
			return nil, invalid(name, "", "runs-on", err)
		}
	}
	if j.Matrix != nil {
		job.Matrix = &model.MatrixSpec{Axes: j.Matrix.Axes, Include: j.Matrix.Include, Exclude: j.Matrix.Exclude}
	}
	if j.Cache != nil {
		spec := &model.CacheSpec{Paths: j.Cache.Paths}
		if j.Cache.Key != "" {
			if spec.Key, err = condition.ParseTemplate(j.Cache.Key); err != nil {
				return nil, invalid(name, "", "cache.key", err)
			}
		}
		job.Cache = spec
	}

	for i := range j.Steps {
		s := &j.Steps[i]
		stepName := s.Name
		if stepName == "" {
			stepName = fmt.Sprintf("step-%d", i+1)
		}
		timeout, err := parseDuration(s.Timeout)
		if err != nil {
			return nil, invalid(name, stepName, "timeout", err)
		}
		step := &model.StepTemplate{
			Name:             stepName,
			Run:              s.Run,
			Shell:            s.Shell,
			Env:              s.Env,
			OS:               s.OS,
			Timeout:          timeout,
			WorkingDirectory: s.WorkingDirectory,
		}
		if step.Condition, err = parseCondition(s.If); err != nil {
			return nil, invalid(name, stepName, "if", err)
		}
		job.Steps = append(job.Steps, step)
	}
	return job, nil
}

func translateDeploy(d *Deploy) (*model.Deploy, error) {
	cond, err := parseCondition(d.If)
	if err != nil {
		return nil, invalid("", "", "deploy.if", err)
	}
	return &model.Deploy{
		Name:      d.Name,
		Condition: cond,
		Run:       d.Run,
		Shell:     d.Shell,
		Env:       d.Env,
		Secrets:   d.Secrets,
	}, nil
}

func parseCondition(src string) (*condition.Expr, error) {
	if strings.TrimSpace(src) == "" {
		return nil, nil
	}
	return condition.Parse(src)
}

func parseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	return time.ParseDuration(s)
}

func invalid(job, step, field string, err error) error {
	return &model.DefinitionError{Kind: model.ErrInvalidDefinition, Job: job, Step: step, Field: field, Detail: err.Error()}
}
