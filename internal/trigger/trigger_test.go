package trigger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/burstci/internal/model"
)

func envOf(vars map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := vars[k]
		return v, ok
	}
}

func TestResolve_Precedence(t *testing.T) {
	dir := t.TempDir()
	payloadPath := filepath.Join(dir, "event.json")
	require.NoError(t, os.WriteFile(payloadPath, []byte(`{
		"pull_request": {"head": {"ref": "feature/x"}, "base": {"ref": "main"}}
	}`), 0o644))

	env := envOf(map[string]string{
		"BURSTCI_REF":       "refs/heads/from-env",
		"GITHUB_EVENT_NAME": "push",
		"GITHUB_BASE_REF":   "develop",
	})

	testCases := []struct {
		name string
		src  Source
		want model.RunContext
	}{
		{
			name: "environment only",
			want: model.RunContext{Event: "push", Ref: "refs/heads/from-env", BaseRef: "develop"},
		},
		{
			name: "payload beats environment",
			src:  Source{PayloadPath: payloadPath},
			want: model.RunContext{Event: "pull_request", Ref: "feature/x", BaseRef: "main"},
		},
		{
			name: "flags beat payload",
			src:  Source{Event: "push", Ref: "refs/heads/main", PayloadPath: payloadPath},
			want: model.RunContext{Event: "push", Ref: "refs/heads/main"},
		},
		{
			name: "flag ref ignores a stale base ref",
			src:  Source{Event: "pull_request", Ref: "feature/y"},
			want: model.RunContext{Event: "pull_request", Ref: "feature/y"},
		},
		{
			name: "flag ref and base ref together",
			src:  Source{Ref: "feature/y", BaseRef: "release"},
			want: model.RunContext{Event: "push", Ref: "feature/y", BaseRef: "release"},
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Resolve(tc.src, env)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestResolve_DefaultsToPush(t *testing.T) {
	rc, err := Resolve(Source{}, envOf(nil))
	require.NoError(t, err)
	assert.Equal(t, "push", rc.Event)
}

func TestResolve_BadPayload(t *testing.T) {
	payloadPath := filepath.Join(t.TempDir(), "event.json")
	require.NoError(t, os.WriteFile(payloadPath, []byte("{"), 0o644))

	_, err := Resolve(Source{PayloadPath: payloadPath}, envOf(nil))
	assert.ErrorContains(t, err, "decoding event payload")

	_, err = Resolve(Source{PayloadPath: filepath.Join(t.TempDir(), "missing.json")}, envOf(nil))
	assert.ErrorContains(t, err, "reading event payload")
}

func TestMatches(t *testing.T) {
	wf := &model.Workflow{Triggers: []model.Trigger{
		{Event: "push", Branches: []string{"main", "release/*"}},
		{Event: "pull_request", Branches: []string{"main"}},
	}}

	testCases := []struct {
		name string
		rc   model.RunContext
		want bool
	}{
		{"push to main", model.RunContext{Event: "push", Ref: "refs/heads/main"}, true},
		{"push to release branch", model.RunContext{Event: "push", Ref: "refs/heads/release/1.2"}, true},
		{"push to feature", model.RunContext{Event: "push", Ref: "refs/heads/feature"}, false},
		{"pull request into main", model.RunContext{Event: "pull_request", Ref: "feature", BaseRef: "main"}, true},
		{"pull request into develop", model.RunContext{Event: "pull_request", Ref: "main", BaseRef: "develop"}, false},
		{"other event", model.RunContext{Event: "schedule", Ref: "refs/heads/main"}, false},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Matches(wf, tc.rc))
		})
	}

	t.Run("no triggers accepts everything", func(t *testing.T) {
		assert.True(t, Matches(&model.Workflow{}, model.RunContext{Event: "anything"}))
	})
	t.Run("trigger without branches accepts every ref", func(t *testing.T) {
		wf := &model.Workflow{Triggers: []model.Trigger{{Event: "push"}}}
		assert.True(t, Matches(wf, model.RunContext{Event: "push", Ref: "refs/tags/v1"}))
	})
}
