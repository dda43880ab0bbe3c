package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/burstci/internal/inmemorystore"
	"github.com/vk/burstci/internal/model"
	"github.com/vk/burstci/internal/report"
	"github.com/vk/burstci/internal/testutil"
)

func TestNewConfig(t *testing.T) {
	testCases := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{name: "minimal", cfg: Config{Paths: []string{"ci.hcl"}}},
		{name: "no path", cfg: Config{}, wantErr: "definition path is required"},
		{name: "bad format", cfg: Config{Paths: []string{"x"}, LogFormat: "xml"}, wantErr: "invalid log-format"},
		{name: "bad level", cfg: Config{Paths: []string{"x"}, LogLevel: "loud"}, wantErr: "invalid log-level"},
		{name: "negative workers", cfg: Config{Paths: []string{"x"}, Workers: -1}, wantErr: "invalid workers"},
		{name: "bad policy", cfg: Config{Paths: []string{"x"}, NeedsPolicy: "most"}, wantErr: "invalid needs policy"},
		{name: "bad compression", cfg: Config{Paths: []string{"x"}, Compression: "gzip"}, wantErr: "unknown compression"},
		{name: "identity without file", cfg: Config{Paths: []string{"x"}, SecretsIdentity: "key.txt"}, wantErr: "must be given together"},
		{name: "bad port", cfg: Config{Paths: []string{"x"}, HealthcheckPort: 70000}, wantErr: "invalid healthcheck-port"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg, err := NewConfig(tc.cfg)
			if tc.wantErr != "" {
				assert.ErrorContains(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "text", cfg.LogFormat)
			assert.Equal(t, "info", cfg.LogLevel)
		})
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger("warn", "json", &buf)

	logger.Info("hidden")
	logger.Warn("shown", "key", "value")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "shown", line["msg"])
	assert.Equal(t, "value", line["key"])
}

func TestRouter(t *testing.T) {
	ctx, _ := testutil.Context(t)
	store := inmemorystore.New()
	require.NoError(t, store.SetStatus(ctx, "b", model.StatusRunning))
	require.NoError(t, store.SetStatus(ctx, "a", model.StatusSucceeded))
	router := newRouter(ctx, store)

	t.Run("health", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "OK\n", rec.Body.String())
	})

	t.Run("status", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
		require.Equal(t, http.StatusOK, rec.Code)

		var body struct {
			Instances []instanceState       `json:"instances"`
			Counts    map[model.Status]int `json:"counts"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, []instanceState{
			{ID: "a", Status: model.StatusSucceeded},
			{ID: "b", Status: model.StatusRunning},
		}, body.Instances)
		assert.Equal(t, 1, body.Counts[model.StatusRunning])
	})

	t.Run("single instance", func(t *testing.T) {
		require.NoError(t, store.SetStatus(ctx, "test[os=linux,go=1.22]", model.StatusFailed))
		require.NoError(t, store.SetError(ctx, "test[os=linux,go=1.22]", errors.New("exit status 1")))

		rec := httptest.NewRecorder()
		target := "/status/" + url.PathEscape("test[go=1.22,os=linux]")
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
		require.Equal(t, http.StatusOK, rec.Code)

		var body map[string]string
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "test[os=linux,go=1.22]", body["id"])
		assert.Equal(t, "Failed", body["status"])
		assert.Equal(t, "exit status 1", body["error"])
	})

	t.Run("unknown and malformed instances", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status/missing", nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)

		rec = httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status/"+url.PathEscape("test[os"), nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

const pipeline = `
workflow "ci" {
  job "build" {
    matrix {
      axis "os" { values = ["linux", "macos"] }
    }
    step "compile" { run = "make" }
  }
  job "test" {
    needs = ["build"]
    step "unit" { run = "make test" }
  }
}
`

func TestApp_Run(t *testing.T) {
	// --- Arrange ---
	dir := testutil.WriteFiles(t, map[string]string{"ci.hcl": pipeline})
	reportPath := filepath.Join(dir, "out", "report.json")
	cfg, err := NewConfig(Config{
		Paths:         []string{filepath.Join(dir, "ci.hcl")},
		Event:         "push",
		Ref:           "refs/heads/main",
		WorkDir:       dir,
		CacheLocation: "memory://",
		ReportPath:    reportPath,
		LogLevel:      "debug",
	})
	require.NoError(t, err)
	runner := testutil.NewFakeRunner().Fail("make test", 1)
	var out, logs testutil.SafeBuffer
	a := New(&out, &logs, cfg, WithRunner(runner))

	// --- Act ---
	run, err := a.Run(context.Background())

	// --- Assert ---
	require.NoError(t, err)
	assert.Equal(t, report.StatusFailed, run.Status)
	assert.Len(t, run.Instances, 3)
	assert.Equal(t, model.StatusFailed, run.Instance("test").Status)
	assert.Contains(t, out.String(), "Result Failed")
	assert.Contains(t, logs.String(), "Starting concurrent execution")

	data, err := os.ReadFile(reportPath)
	require.NoError(t, err)
	var exported map[string]any
	require.NoError(t, json.Unmarshal(data, &exported))
	assert.Equal(t, run.ID, exported["id"])

	snapshot, err := a.Store().Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.StatusSucceeded, snapshot["build[os=macos]"])
}

func TestApp_Run_DefinitionError(t *testing.T) {
	dir := testutil.WriteFiles(t, map[string]string{"ci.hcl": `
workflow "ci" {
  job "a" {
    needs = ["missing"]
    step "s" { run = "true" }
  }
}
`})
	cfg, err := NewConfig(Config{Paths: []string{dir}, Event: "push", NoCache: true})
	require.NoError(t, err)
	runner := testutil.NewFakeRunner()
	var out, logs testutil.SafeBuffer

	_, err = New(&out, &logs, cfg, WithRunner(runner)).Run(context.Background())

	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrUnknownDependency)
	assert.Empty(t, runner.Records(), "no job starts after a definition error")
}

func TestApp_Plan(t *testing.T) {
	dir := testutil.WriteFiles(t, map[string]string{"ci.hcl": pipeline})
	cfg, err := NewConfig(Config{Paths: []string{dir}})
	require.NoError(t, err)
	var out, logs testutil.SafeBuffer

	p, err := New(&out, &logs, cfg).Plan(context.Background())

	require.NoError(t, err)
	assert.Equal(t, [][]string{{"build[os=linux]", "build[os=macos]"}, {"test"}}, p.Stages())
}
