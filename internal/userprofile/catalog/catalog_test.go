package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	c, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []string{"proofreading", "qa", "content", "users", "kpi"}, c.Modules())
	assert.Len(t, c.Codenames(), 26)
	for _, code := range []string{
		PermApplyAuditOrder, PermReturnedAuditOrder, PermAssignQAOrder,
		PermDeleteContent, PermAssignRole, PermListUserKPI,
	} {
		assert.True(t, c.Has(code), code)
	}

	grouped := c.ByModule()
	assert.Len(t, grouped["qa"], 5)
	assert.Equal(t, "qa", grouped["qa"][0].Module)
}

func TestUnknown(t *testing.T) {
	c := MustLoad()
	assert.Equal(t, []string{"fly_to_moon"}, c.Unknown([]string{PermListQAOrder, "fly_to_moon"}))
	assert.Empty(t, c.Unknown(c.Codenames()))
}

func TestParseRejectsDuplicates(t *testing.T) {
	_, err := Parse([]byte(`
modules:
  - name: a
    perms:
      - codename: x
  - name: b
    perms:
      - codename: x
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate")
}
