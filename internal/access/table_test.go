package access

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testTable(t *testing.T) *Table {
	t.Helper()
	tbl, err := New([]Rule{
		{Prefix: "/dashboard", MinRole: 1},
		{Prefix: "/dashboard/admin", MinRole: 3},
		{Prefix: "/dashboard/admin/users", MinRole: 4},
		{Prefix: "/v1/parts", MinRole: 2},
	})
	require.NoError(t, err)
	return tbl
}

func TestMatch_LongestPrefixWins(t *testing.T) {
	tbl := testTable(t)

	cases := []struct {
		path   string
		prefix string
		ok     bool
	}{
		{"/dashboard", "/dashboard", true},
		{"/dashboard/incidents/4", "/dashboard", true},
		{"/dashboard/admin", "/dashboard/admin", true},
		{"/dashboard/admin/vics", "/dashboard/admin", true},
		{"/dashboard/admin/users/12/edit", "/dashboard/admin/users", true},
		{"/dashboard/admin/users/", "/dashboard/admin/users", true},
		{"/v1/parts?q=filter", "/v1/parts", true},
		{"/v1/partsx", "", false},
		{"/dashboards", "", false},
		{"/", "", false},
	}
	for _, tc := range cases {
		t.Run(tc.path, func(t *testing.T) {
			r, ok := tbl.Match(tc.path)
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.prefix, r.Prefix)
		})
	}
}

func TestAllowed(t *testing.T) {
	tbl := testTable(t)

	assert.True(t, tbl.Allowed("/dashboard/work-orders", 1))
	assert.False(t, tbl.Allowed("/dashboard/admin", 2))
	assert.True(t, tbl.Allowed("/dashboard/admin", 3))
	assert.False(t, tbl.Allowed("/dashboard/admin/users", 3))
	assert.True(t, tbl.Allowed("/dashboard/admin/users", 4))
	assert.False(t, tbl.Allowed("/v1/parts/9", 1))
	assert.True(t, tbl.Allowed("/healthz", 0), "unmatched paths are open")
}

func TestDecide(t *testing.T) {
	tbl := testTable(t)
	tech := &Session{RoleID: 1, DefaultPath: "/dashboard/work-orders"}
	admin := &Session{RoleID: 4, DefaultPath: "/dashboard/admin"}

	t.Run("no session on protected page", func(t *testing.T) {
		d := tbl.Decide("/dashboard/admin/users", nil)
		assert.False(t, d.Allowed)
		assert.Equal(t, "/login?callbackUrl=%2Fdashboard%2Fadmin%2Fusers", d.Redirect)
	})
	t.Run("no session on public page", func(t *testing.T) {
		assert.Equal(t, Decision{Allowed: true}, tbl.Decide("/about", nil))
		assert.Equal(t, Decision{Allowed: true}, tbl.Decide("/login", nil))
	})
	t.Run("signed in user on login page", func(t *testing.T) {
		assert.Equal(t, Decision{Redirect: "/dashboard/admin"}, tbl.Decide("/login", admin))
	})
	t.Run("insufficient role goes home", func(t *testing.T) {
		assert.Equal(t, Decision{Redirect: "/dashboard/work-orders"}, tbl.Decide("/dashboard/admin", tech))
	})
	t.Run("sufficient role", func(t *testing.T) {
		assert.Equal(t, Decision{Allowed: true}, tbl.Decide("/dashboard/admin/users/3", admin))
	})
	t.Run("unreachable default path falls back to root", func(t *testing.T) {
		broken := &Session{RoleID: 1, DefaultPath: "/dashboard/admin"}
		assert.Equal(t, Decision{Redirect: "/"}, tbl.Decide("/dashboard/admin/users", broken))
	})
}

func TestLoad(t *testing.T) {
	tbl, err := Load(strings.NewReader(`
rules:
  - prefix: /a/
    min_role: 2
  - prefix: /a/b
    min_role: 3
`))
	require.NoError(t, err)
	rules := tbl.Rules()
	require.Len(t, rules, 2)
	assert.Equal(t, "/a/b", rules[0].Prefix)
	assert.Equal(t, "/a", rules[1].Prefix)
}

func TestLoad_Errors(t *testing.T) {
	cases := map[string]string{
		"relative prefix": "rules:\n  - prefix: a\n    min_role: 1\n",
		"empty prefix":    "rules:\n  - prefix: \"\"\n    min_role: 1\n",
		"zero role":       "rules:\n  - prefix: /a\n    min_role: 0\n",
		"duplicate":       "rules:\n  - prefix: /a\n    min_role: 1\n  - prefix: /a/\n    min_role: 2\n",
		"unknown field":   "rules:\n  - prefix: /a\n    role: 1\n",
		"bad yaml":        "rules: [",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(strings.NewReader(doc))
			assert.Error(t, err)
		})
	}
}

func TestDefaultTable(t *testing.T) {
	tbl := Default()
	assert.True(t, tbl.Allowed("/v1/incidents/1", 1))
	assert.False(t, tbl.Allowed("/v1/parts", 1))
	assert.False(t, tbl.Allowed("/v1/admin/vics", 2))
	assert.True(t, tbl.Allowed("/v1/admin/vics", 3))
	assert.False(t, tbl.Allowed("/v1/admin/users", 3))
	assert.True(t, tbl.Allowed("/v1/admin/roles/2", 4))
	assert.True(t, tbl.Allowed("/healthz", 0))
}
