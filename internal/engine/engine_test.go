package engine

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/burstci/internal/blobstore"
	"github.com/vk/burstci/internal/cache"
	"github.com/vk/burstci/internal/command"
	"github.com/vk/burstci/internal/model"
	"github.com/vk/burstci/internal/report"
	"github.com/vk/burstci/internal/secrets"
	"github.com/vk/burstci/internal/testutil"
)

const pipeline = `
name: ci
on:
  push:
    branches: [main]
env:
  GOFLAGS: -mod=readonly
jobs:
  build:
    matrix:
      os: [linux, macos]
    steps:
      - name: compile
        run: make build
  test:
    needs: build
    steps:
      - name: unit
        run: make test
  docs:
    steps:
      - name: render
        run: make docs
deploy:
  name: release
  if: ref == "refs/heads/main"
  run: ./release.sh
  secrets: [REGISTRY_TOKEN]
`

func load(t *testing.T, ctx context.Context, definition string) *model.Workflow {
	t.Helper()
	dir := testutil.WriteFiles(t, map[string]string{"pipeline.yaml": definition})
	wf, err := Load(ctx, filepath.Join(dir, "pipeline.yaml"))
	require.NoError(t, err)
	return wf
}

func statuses(run *report.Run) map[string]model.Status {
	out := make(map[string]model.Status, len(run.Instances))
	for _, inst := range run.Instances {
		out[inst.ID] = inst.Status
	}
	return out
}

var mainPush = model.RunContext{Event: "push", Ref: "refs/heads/main"}

func TestEngine_Run_Success(t *testing.T) {
	// --- Arrange ---
	ctx, _ := testutil.Context(t)
	wf := load(t, ctx, pipeline)
	runner := testutil.NewFakeRunner()
	eng := New(Config{
		Runner:  runner,
		Process: map[string]string{"PATH": "/bin", "REGISTRY_TOKEN": "hunter2"},
		Secrets: secrets.NewEnv(map[string]string{"REGISTRY_TOKEN": "hunter2"}),
		WorkDir: t.TempDir(),
	})

	// --- Act ---
	run, err := eng.Run(ctx, wf, mainPush)

	// --- Assert ---
	require.NoError(t, err)
	assert.Equal(t, report.StatusSucceeded, run.Status)
	assert.Equal(t, map[string]model.Status{
		"build[os=linux]": model.StatusSucceeded,
		"build[os=macos]": model.StatusSucceeded,
		"test":            model.StatusSucceeded,
		"docs":            model.StatusSucceeded,
	}, statuses(run))

	records := runner.Records()
	require.Len(t, records, 5, "four instances and one deploy")

	var testStart, lastBuildEnd time.Time
	for _, rec := range records {
		switch rec.Instance {
		case "test":
			testStart = rec.Start
		case "build[os=linux]", "build[os=macos]":
			if rec.End.After(lastBuildEnd) {
				lastBuildEnd = rec.End
			}
		}
	}
	assert.False(t, testStart.Before(lastBuildEnd), "test waits for every build instance")

	for _, rec := range records {
		token, hasToken := rec.Env("REGISTRY_TOKEN")
		if rec.Command.Script == "./release.sh" {
			assert.Equal(t, "hunter2", token, "deploy receives its secret")
			continue
		}
		assert.False(t, hasToken, "secrets never reach ordinary steps")
		flags, _ := rec.Env("GOFLAGS")
		assert.Equal(t, "-mod=readonly", flags, "workflow env is part of the process layer")
	}

	require.NotNil(t, run.Deploy)
	assert.True(t, run.Deploy.Published)
	assert.Equal(t, 0, report.ExitCode(run.Status))
}

func TestEngine_Run_FailureStaysDownstream(t *testing.T) {
	ctx, _ := testutil.Context(t)
	wf := load(t, ctx, pipeline)
	runner := testutil.NewFakeRunner().Fail("make build", 2)
	pub := &testutil.RecordingPublisher{}
	eng := New(Config{Runner: runner, Process: map[string]string{}, Publisher: pub, WorkDir: t.TempDir()})

	run, err := eng.Run(ctx, wf, mainPush)

	require.NoError(t, err)
	assert.Equal(t, report.StatusFailed, run.Status)
	got := statuses(run)
	assert.Equal(t, model.StatusFailed, got["build[os=linux]"])
	assert.Equal(t, model.StatusSkippedDueToFailure, got["test"])
	assert.Equal(t, model.StatusSucceeded, got["docs"], "siblings are not aborted")
	assert.Empty(t, runner.Scripts("test"))
	assert.Contains(t, run.Instance("test").Error, "needed instance failed")
	assert.Empty(t, pub.Requests(), "a failed run never deploys")
	assert.Equal(t, 1, report.ExitCode(run.Status))
}

func TestEngine_Run_DeployFailure(t *testing.T) {
	ctx, _ := testutil.Context(t)
	wf := load(t, ctx, pipeline)
	pub := &testutil.RecordingPublisher{Err: errors.New("registry down")}
	eng := New(Config{
		Runner:    testutil.NewFakeRunner(),
		Process:   map[string]string{},
		Publisher: pub,
		Secrets:   secrets.NewEnv(map[string]string{"REGISTRY_TOKEN": "x"}),
		WorkDir:   t.TempDir(),
	})

	run, err := eng.Run(ctx, wf, mainPush)

	require.NoError(t, err)
	assert.Equal(t, report.StatusSucceededDeployFailed, run.Status)
	assert.Len(t, pub.Requests(), 1)
	assert.Equal(t, 3, report.ExitCode(run.Status))
}

func TestEngine_Run_NotTriggered(t *testing.T) {
	ctx, _ := testutil.Context(t)
	wf := load(t, ctx, pipeline)
	runner := testutil.NewFakeRunner()
	pub := &testutil.RecordingPublisher{}
	eng := New(Config{Runner: runner, Process: map[string]string{}, Publisher: pub})

	run, err := eng.Run(ctx, wf, model.RunContext{Event: "push", Ref: "refs/heads/feature"})

	require.NoError(t, err)
	assert.False(t, run.Triggered)
	assert.Equal(t, report.StatusSucceeded, run.Status)
	assert.Empty(t, run.Instances)
	assert.Empty(t, runner.Records())
	assert.Empty(t, pub.Requests())
}

func TestEngine_Run_ConditionsAndCache(t *testing.T) {
	ctx, _ := testutil.Context(t)
	wf := load(t, ctx, `
jobs:
  test:
    matrix:
      os: [linux, windows]
    if: matrix.os != "windows"
    cache:
      paths: [deps]
      key: 'deps-${hash_files("deps.lock")}'
    steps:
      - name: fetch
        run: fetch
`)
	workDir := testutil.WriteFiles(t, map[string]string{"deps.lock": "v1", "deps/lib.txt": "library"})
	store := blobstore.NewMemory()
	newEngine := func(runner command.Runner) *Engine {
		return New(Config{
			Runner:      runner,
			Process:     map[string]string{},
			CacheStore:  store,
			Compression: cache.CompressionLZ4,
			WorkDir:     workDir,
		})
	}

	first, err := newEngine(testutil.NewFakeRunner()).Run(ctx, wf, mainPush)
	require.NoError(t, err)
	assert.Equal(t, report.StatusSucceeded, first.Status)
	assert.Equal(t, model.StatusSkipped, first.Instance("test[os=windows]").Status)
	assert.Nil(t, first.Instance("test[os=windows]").Result)
	linux := first.Instance("test[os=linux]")
	require.NotNil(t, linux.Result)
	assert.Equal(t, cache.OutcomeMiss, linux.Result.Cache)
	assert.Equal(t, 1, store.Len())

	second, err := newEngine(testutil.NewFakeRunner()).Run(ctx, wf, mainPush)
	require.NoError(t, err)
	assert.Equal(t, cache.OutcomeHit, second.Instance("test[os=linux]").Result.Cache)
}

func TestEngine_Run_LiveStore(t *testing.T) {
	ctx, _ := testutil.Context(t)
	wf := load(t, ctx, pipeline)
	eng := New(Config{Runner: testutil.NewFakeRunner(), Process: map[string]string{},
		Publisher: &testutil.RecordingPublisher{}, WorkDir: t.TempDir()})

	_, err := eng.Run(ctx, wf, mainPush)
	require.NoError(t, err)

	snapshot, err := eng.Store().Snapshot(ctx)
	require.NoError(t, err)
	assert.Len(t, snapshot, 4)
	assert.Equal(t, model.StatusSucceeded, snapshot["docs"])
}

func TestLoad_DefinitionErrors(t *testing.T) {
	ctx, _ := testutil.Context(t)

	testCases := []struct {
		name       string
		definition string
		want       error
	}{
		{
			name: "unknown condition field",
			definition: `
jobs:
  a:
    if: branch == "main"
    steps: [{run: x}]
`,
			want: model.ErrUnknownConditionField,
		},
		{
			name: "cycle",
			definition: `
jobs:
  a:
    needs: b
    steps: [{run: x}]
  b:
    needs: a
    steps: [{run: x}]
`,
			want: model.ErrCyclicJobDependency,
		},
		{
			name: "duplicate matrix instance",
			definition: `
jobs:
  a:
    matrix:
      os: [linux]
      include:
        - os: linux
    steps: [{run: x}]
`,
			want: model.ErrDuplicateMatrixInstance,
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			dir := testutil.WriteFiles(t, map[string]string{"pipeline.yml": tc.definition})
			_, err := Load(ctx, filepath.Join(dir, "pipeline.yml"))
			require.Error(t, err)
			assert.ErrorIs(t, err, tc.want)
			assert.True(t, model.IsDefinitionError(err))
		})
	}
}

func TestLoad_HCLDirectory(t *testing.T) {
	ctx, _ := testutil.Context(t)
	dir := testutil.WriteFiles(t, map[string]string{
		"workflow.hcl": `
workflow "ci" {
  job "lint" {
    step "vet" { run = "go vet ./..." }
  }
}
`,
		"jobs/test.hcl": `
job "test" {
  needs = ["lint"]
  step "unit" { run = "go test ./..." }
}
`,
	})

	wf, err := Load(ctx, dir)

	require.NoError(t, err)
	assert.Equal(t, "ci", wf.Name)
	require.Len(t, wf.Jobs, 2)
	assert.NotNil(t, wf.Job("test"))
}

func TestLoaderFor(t *testing.T) {
	_, err := LoaderFor([]string{"a.yaml", "b.hcl"})
	assert.ErrorContains(t, err, "must be the only path")

	_, err = LoaderFor([]string{"pipeline.jsonc"})
	assert.NoError(t, err)

	_, err = LoaderFor([]string{"ci/"})
	assert.NoError(t, err)
}
