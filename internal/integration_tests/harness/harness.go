// Package harness drives whole runs through the application with the real
// shell runner, for the integration test suites next to it.
package harness

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vk/burstci/internal/app"
	"github.com/vk/burstci/internal/report"
	"github.com/vk/burstci/internal/testutil"
)

// Result holds everything a run left behind.
type Result struct {
	App *app.App
	Run *report.Run
	Err error
	// Dir is the working directory the jobs ran in.
	Dir    string
	Output *testutil.SafeBuffer
	Logs   *testutil.SafeBuffer
}

// ReadFile returns the content of a file the run wrote under Dir, trimmed.
func (r *Result) ReadFile(t *testing.T, name string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(r.Dir, filepath.FromSlash(name)))
	require.NoError(t, err, "run should have written %s", name)
	return strings.TrimSpace(string(data))
}

// Exists reports whether the run wrote name under Dir.
func (r *Result) Exists(name string) bool {
	_, err := os.Stat(filepath.Join(r.Dir, filepath.FromSlash(name)))
	return err == nil
}

// RunIntegrationTest writes files to a fresh directory and runs the
// definition named by definition (a key of files) from there. configure may
// adjust the configuration before it is validated.
func RunIntegrationTest(t *testing.T, definition string, files map[string]string, configure func(*app.Config), opts ...app.Option) *Result {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("integration tests drive POSIX shell scripts")
	}

	dir := testutil.WriteFiles(t, files)
	raw := app.Config{
		Paths:    []string{filepath.Join(dir, filepath.FromSlash(definition))},
		Event:    "push",
		Ref:      "refs/heads/main",
		WorkDir:  dir,
		NoCache:  true,
		LogLevel: "debug",
	}
	if configure != nil {
		configure(&raw)
	}
	cfg, err := app.NewConfig(raw)
	require.NoError(t, err)

	res := &Result{Dir: dir, Output: &testutil.SafeBuffer{}, Logs: &testutil.SafeBuffer{}}
	res.App = app.New(res.Output, res.Logs, cfg, opts...)
	t.Cleanup(func() {
		if os.Getenv(testutil.LogsEnvVar) == "true" {
			t.Logf("--- Full Log Output for %s ---\n%s", t.Name(), res.Logs.String())
			t.Logf("--- Step Output for %s ---\n%s", t.Name(), res.Output.String())
		}
	})

	res.Run, res.Err = res.App.Run(context.Background())
	return res
}
