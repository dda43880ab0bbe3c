package executor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/burstci/internal/blobstore"
	"github.com/vk/burstci/internal/cache"
	"github.com/vk/burstci/internal/command"
	"github.com/vk/burstci/internal/model"
	"github.com/vk/burstci/internal/testutil"
)

func instance(job *model.JobTemplate, os string, axes ...model.AxisValue) *model.JobInstance {
	return &model.JobInstance{
		ID:       model.InstanceID(job.Name, axes),
		Template: job,
		Axes:     axes,
		OS:       os,
	}
}

func TestRunJob_StepsRunInOrder(t *testing.T) {
	// --- Arrange ---
	ctx, _ := testutil.Context(t)
	runner := testutil.NewFakeRunner()
	job := &model.JobTemplate{Name: "build", Steps: []*model.StepTemplate{
		{Name: "a", Run: "one"}, {Name: "b", Run: "two"}, {Name: "c", Run: "three"},
	}}
	exec := New(Config{Runner: runner, WorkDir: t.TempDir()})

	// --- Act ---
	res := exec.RunJob(ctx, instance(job, "linux"), model.RunContext{Event: "push"})

	// --- Assert ---
	require.NoError(t, res.Err)
	assert.Equal(t, model.StatusSucceeded, res.Status)
	assert.Equal(t, []string{"one", "two", "three"}, runner.Scripts("build"))
	assert.Equal(t, cache.OutcomeDisabled, res.Cache)
}

func TestRunJob_FailureSkipsRemainingSteps(t *testing.T) {
	ctx, _ := testutil.Context(t)
	runner := testutil.NewFakeRunner().Fail("two", 4)
	job := &model.JobTemplate{Name: "test", Steps: []*model.StepTemplate{
		{Name: "a", Run: "one"}, {Name: "b", Run: "two"}, {Name: "c", Run: "three"},
	}}

	res := New(Config{Runner: runner}).RunJob(ctx, instance(job, "linux"), model.RunContext{})

	assert.Equal(t, model.StatusFailed, res.Status)
	require.Error(t, res.Err)
	assert.Equal(t, []string{"one", "two"}, runner.Scripts("test"))
	assert.Equal(t, model.StatusSucceeded, res.Step("a").Status)
	assert.Equal(t, model.StatusFailed, res.Step("b").Status)
	assert.Equal(t, 4, res.Step("b").ExitCode)
	assert.Equal(t, model.StatusSkippedDueToFailure, res.Step("c").Status)
}

func TestRunJob_Gating(t *testing.T) {
	ctx, _ := testutil.Context(t)
	runner := testutil.NewFakeRunner()
	job := &model.JobTemplate{Name: "gate", Steps: []*model.StepTemplate{
		{Name: "push-only", Run: "push", Condition: testutil.Expr(t, `event == "push"`)},
		{Name: "pr-only", Run: "pr", Condition: testutil.Expr(t, `event == "pull_request"`)},
		{Name: "windows-only", Run: "win", OS: []string{"windows"}},
		{Name: "always", Run: "always"},
	}}

	res := New(Config{Runner: runner}).RunJob(ctx, instance(job, "linux"), model.RunContext{Event: "push"})

	assert.Equal(t, model.StatusSucceeded, res.Status)
	assert.Equal(t, []string{"push", "always"}, runner.Scripts("gate"))
	assert.Equal(t, model.StatusSkipped, res.Step("pr-only").Status)
	assert.Equal(t, model.StatusSkipped, res.Step("windows-only").Status)
}

func TestRunJob_Environment(t *testing.T) {
	ctx, _ := testutil.Context(t)
	runner := testutil.NewFakeRunner().
		Output("produce", map[string]string{"VERSION": "1.2.3", "SHARED": "from-output"})
	job := &model.JobTemplate{
		Name: "env",
		Env:  map[string]string{"SHARED": "job", "JOB_ONLY": "yes"},
		Steps: []*model.StepTemplate{
			{Name: "produce", Run: "produce"},
			{Name: "consume", Run: "consume", Env: map[string]string{"STEP_ONLY": "1"}},
			{Name: "override", Run: "override", Env: map[string]string{"SHARED": "step"}},
		},
	}
	exec := New(Config{Runner: runner, Process: map[string]string{"SHARED": "process", "HOME": "/home/ci"}})
	inst := instance(job, "linux", model.AxisValue{Name: "go-version", Value: "1.22"})

	res := exec.RunJob(ctx, inst, model.RunContext{Event: "push", Ref: "refs/heads/main"})
	require.NoError(t, res.Err)

	records := runner.Records()
	require.Len(t, records, 3)

	first := records[0]
	v, _ := first.Env("SHARED")
	assert.Equal(t, "job", v, "job layer shadows process")
	_, ok := first.Env("VERSION")
	assert.False(t, ok, "outputs are not visible to the step that publishes them")
	v, _ = first.Env("HOME")
	assert.Equal(t, "/home/ci", v)
	v, _ = first.Env("BURSTCI_INSTANCE")
	assert.Equal(t, "env[go-version=1.22]", v)
	v, _ = first.Env("BURSTCI_REF")
	assert.Equal(t, "refs/heads/main", v)
	v, _ = first.Env("MATRIX_GO_VERSION")
	assert.Equal(t, "1.22", v)

	second := records[1]
	v, _ = second.Env("VERSION")
	assert.Equal(t, "1.2.3", v)
	v, _ = second.Env("SHARED")
	assert.Equal(t, "from-output", v, "outputs shadow the job layer")
	v, _ = second.Env("STEP_ONLY")
	assert.Equal(t, "1", v)

	third := records[2]
	v, _ = third.Env("SHARED")
	assert.Equal(t, "step", v, "step layer shadows everything")
	_, ok = third.Env("STEP_ONLY")
	assert.False(t, ok)

	assert.Equal(t, map[string]string{"VERSION": "1.2.3", "SHARED": "from-output"}, res.Step("produce").Outputs)
}

func TestRunJob_Timeout(t *testing.T) {
	ctx, _ := testutil.Context(t)
	runner := testutil.NewFakeRunner().Sleep("slow", 5*time.Second)

	t.Run("step timeout wins", func(t *testing.T) {
		job := &model.JobTemplate{Name: "t1", Timeout: time.Hour, Steps: []*model.StepTemplate{
			{Name: "slow", Run: "slow", Timeout: 20 * time.Millisecond},
			{Name: "next", Run: "next"},
		}}
		res := New(Config{Runner: runner}).RunJob(ctx, instance(job, "linux"), model.RunContext{})

		assert.Equal(t, model.StatusFailed, res.Status)
		assert.Contains(t, res.Step("slow").Error, "timed out")
		assert.Equal(t, model.StatusSkippedDueToFailure, res.Step("next").Status)
	})

	t.Run("job timeout applies to steps without one", func(t *testing.T) {
		job := &model.JobTemplate{Name: "t2", Timeout: 20 * time.Millisecond, Steps: []*model.StepTemplate{
			{Name: "slow", Run: "slow"},
		}}
		res := New(Config{Runner: runner, DefaultTimeout: time.Hour}).RunJob(ctx, instance(job, "linux"), model.RunContext{})
		assert.Equal(t, model.StatusFailed, res.Status)
	})

	t.Run("default timeout is the last resort", func(t *testing.T) {
		job := &model.JobTemplate{Name: "t3", Steps: []*model.StepTemplate{{Name: "slow", Run: "slow"}}}
		res := New(Config{Runner: runner, DefaultTimeout: 20 * time.Millisecond}).RunJob(ctx, instance(job, "linux"), model.RunContext{})
		assert.Equal(t, model.StatusFailed, res.Status)
	})
}

func TestRunJob_Cache(t *testing.T) {
	ctx, _ := testutil.Context(t)
	work := testutil.WriteFiles(t, map[string]string{"go.sum": "deps"})
	store := blobstore.NewMemory()
	manager := cache.NewManager(store, cache.CompressionZstd)

	runner := testutil.NewFakeRunner().On("build", func(_ context.Context, cmd command.Command) error {
		return writeFile(cmd.Dir, "out/artifact", "built")
	})
	job := &model.JobTemplate{
		Name:  "build",
		Cache: &model.CacheSpec{Paths: []string{"out"}, Key: testutil.Template(t, `deps-${hash_files("go.sum")}`, []string{cache.HashFilesFunction})},
		Steps: []*model.StepTemplate{{Name: "build", Run: "build"}},
	}
	exec := New(Config{Runner: runner, Cache: manager, WorkDir: work})

	first := exec.RunJob(ctx, instance(job, "linux"), model.RunContext{})
	require.NoError(t, first.Err)
	assert.Equal(t, cache.OutcomeMiss, first.Cache)
	assert.Equal(t, 1, store.Len(), "successful job saves its cache")

	second := exec.RunJob(ctx, instance(job, "linux"), model.RunContext{})
	assert.Equal(t, cache.OutcomeHit, second.Cache)
	assert.Equal(t, first.CacheKey, second.CacheKey)

	t.Run("failed job does not save", func(t *testing.T) {
		failing := testutil.NewFakeRunner().Fail("build", 1)
		otherJob := *job
		otherJob.Name = "other"
		otherJob.Cache = &model.CacheSpec{Paths: []string{"out"}, Key: testutil.Template(t, "other", nil)}
		res := New(Config{Runner: failing, Cache: manager, WorkDir: work}).RunJob(ctx, instance(&otherJob, "linux"), model.RunContext{})
		assert.Equal(t, model.StatusFailed, res.Status)
		assert.Equal(t, 1, store.Len())
	})
}

func TestEnvName(t *testing.T) {
	assert.Equal(t, "GO_VERSION", envName("go-version"))
	assert.Equal(t, "OS", envName("os"))
	assert.Equal(t, "NODE_18", envName("node.18"))
}
