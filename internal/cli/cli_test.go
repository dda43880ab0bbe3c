package cli

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/burstci/internal/app"
	"github.com/vk/burstci/internal/testutil"
)

const definition = `
name: ci
jobs:
  build:
    matrix:
      os: [linux, windows]
    steps:
      - run: make
  test:
    needs: build
    steps:
      - run: make test
`

func execute(t *testing.T, runner *testutil.FakeRunner, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	var opts []app.Option
	if runner != nil {
		opts = append(opts, app.WithRunner(runner))
	}
	err := Execute(context.Background(), args, &out, &errOut, opts...)
	return out.String(), err
}

func exitCode(t *testing.T, err error) int {
	t.Helper()
	var exitErr *ExitError
	require.True(t, errors.As(err, &exitErr), "expected *ExitError, got %v", err)
	return exitErr.Code
}

func TestValidate(t *testing.T) {
	dir := testutil.WriteFiles(t, map[string]string{
		"ci.yaml":  definition,
		"bad.yaml": "jobs:\n  a:\n    if: nope == \"x\"\n    steps: [{run: x}]\n",
	})

	t.Run("valid", func(t *testing.T) {
		out, err := execute(t, nil, "validate", filepath.Join(dir, "ci.yaml"))
		require.NoError(t, err)
		assert.Equal(t, "ci: 2 jobs OK\n", out)
	})

	t.Run("definition error exits 2", func(t *testing.T) {
		_, err := execute(t, nil, "validate", filepath.Join(dir, "bad.yaml"))
		assert.Equal(t, 2, exitCode(t, err))
		assert.ErrorContains(t, err, "unknown condition field")
	})
}

func TestPlan(t *testing.T) {
	dir := testutil.WriteFiles(t, map[string]string{"ci.yaml": definition})

	out, err := execute(t, nil, "plan", filepath.Join(dir, "ci.yaml"))

	require.NoError(t, err)
	assert.Equal(t, "stage 1\n  build[os=linux] (linux)\n  build[os=windows] (windows)\nstage 2\n  test\n", out)
}

func TestRun(t *testing.T) {
	dir := testutil.WriteFiles(t, map[string]string{"ci.yaml": definition})
	path := filepath.Join(dir, "ci.yaml")

	t.Run("success", func(t *testing.T) {
		runner := testutil.NewFakeRunner()
		out, err := execute(t, runner, "run", "--no-cache", "--event", "push", "-C", dir, path)
		require.NoError(t, err)
		assert.Len(t, runner.Records(), 3)
		assert.Contains(t, out, "Result Succeeded")
	})

	t.Run("failed run exits 1", func(t *testing.T) {
		runner := testutil.NewFakeRunner().Fail("make test", 1)
		_, err := execute(t, runner, "run", "--no-cache", "--event", "push", "-C", dir, "--workers", "1", path)
		assert.Equal(t, 1, exitCode(t, err))
		assert.ErrorContains(t, err, "Failed")
	})
}

func TestUsageErrors(t *testing.T) {
	testCases := []struct {
		name string
		args []string
		want string
	}{
		{"unknown flag", []string{"run", "--no-such-flag", "x.yaml"}, "unknown flag"},
		{"missing path", []string{"validate"}, "requires at least 1 arg"},
		{"bad log format", []string{"validate", "--log-format", "xml", "x.yaml"}, "invalid log-format"},
		{"bad policy", []string{"run", "--needs-policy", "most", "x.yaml"}, "invalid needs policy"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := execute(t, nil, tc.args...)
			assert.Equal(t, 2, exitCode(t, err))
			assert.ErrorContains(t, err, tc.want)
		})
	}
}
