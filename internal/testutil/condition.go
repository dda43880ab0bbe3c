package testutil

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vk/burstci/internal/condition"
)

// Expr parses src and checks it against the job schema for axes.
func Expr(t *testing.T, src string, axes ...string) *condition.Expr {
	t.Helper()
	e, err := condition.Parse(src)
	require.NoError(t, err)
	require.NoError(t, e.Check(condition.JobSchema(axes)))
	return e
}

// DeployExpr parses src and checks it against the deploy schema.
func DeployExpr(t *testing.T, src string) *condition.Expr {
	t.Helper()
	e, err := condition.Parse(src)
	require.NoError(t, err)
	require.NoError(t, e.Check(condition.DeploySchema()))
	return e
}

// Template parses src and checks it against the job schema for axes.
func Template(t *testing.T, src string, functions []string, axes ...string) *condition.Template {
	t.Helper()
	tmpl, err := condition.ParseTemplate(src)
	require.NoError(t, err)
	require.NoError(t, tmpl.Check(condition.JobSchema(axes), functions...))
	return tmpl
}
