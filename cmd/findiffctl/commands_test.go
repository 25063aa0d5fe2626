package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	kpimodels "findiff/internal/kpi/models"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestPermsCommand(t *testing.T) {
	t.Run("lists every module", func(t *testing.T) {
		out, err := execute(t, "perms")
		require.NoError(t, err)
		assert.Contains(t, out, "apply_audit_order")
		assert.Contains(t, out, "assign_qa_order")
		assert.Contains(t, out, "list_user_kpi")
	})

	t.Run("filters by module", func(t *testing.T) {
		out, err := execute(t, "perms", "--module", "proofreading")
		require.NoError(t, err)
		assert.Contains(t, out, "returned_audit_order")
		assert.NotContains(t, out, "list_user_kpi")
	})

	t.Run("unknown module", func(t *testing.T) {
		_, err := execute(t, "perms", "-m", "nope")
		require.Error(t, err)
		assert.Contains(t, err.Error(), `unknown module "nope"`)
	})
}

func TestCreateSuperuserValidation(t *testing.T) {
	t.Setenv(superuserPasswordEnv, "")

	_, err := execute(t, "create-superuser", "--password", "secret1")
	require.EqualError(t, err, "--username is required")

	_, err = execute(t, "create-superuser", "-u", "root")
	require.Error(t, err)
	assert.Contains(t, err.Error(), superuserPasswordEnv)
}

func TestCommandsNeedDatabase(t *testing.T) {
	t.Setenv("DATABASE_URL", "")

	_, err := execute(t, "migrate")
	require.ErrorIs(t, err, errNoDatabase)

	_, err = execute(t, "create-superuser", "-u", "root", "-p", "secret1")
	require.ErrorIs(t, err, errNoDatabase)

	_, err = execute(t, "kpi")
	require.ErrorIs(t, err, errNoDatabase)
}

func TestKPIRejectsBadDates(t *testing.T) {
	_, err := execute(t, "kpi", "--from", "03/04/2024")
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), "--from:"))
}

func TestRenderKPI(t *testing.T) {
	assert.Equal(t, "No KPI recorded", renderKPI(nil))

	out := renderKPI([]*kpimodels.SummaryRow{{
		Username: "alice",
		Nickname: "Alice",
		Totals: map[kpimodels.Type]int{
			kpimodels.TypeHorizontalAudit: 12,
			kpimodels.TypeReturnedShuffle: -1,
		},
	}})
	assert.Contains(t, out, "alice")
	assert.Contains(t, out, "horizontal_audit")
	assert.Contains(t, out, "12")
	assert.Contains(t, out, "-1")
}

func TestRenderTable(t *testing.T) {
	assert.Empty(t, renderTable(nil, nil, nil))

	out := renderTable([]string{"A", "B"}, [][]string{{"x"}}, []columnAlignment{alignLeft, alignRight})
	lines := strings.Split(out, "\n")
	require.Len(t, lines, 5)
	assert.Contains(t, lines[1], "A")
	assert.Contains(t, lines[3], "x")

	out = renderTable([]string{"horizontal_audit"}, [][]string{{"1"}}, nil)
	assert.Contains(t, out, "horizontal_audit")
	assert.NotContains(t, out, "HORIZONTAL_AUDIT")
}
