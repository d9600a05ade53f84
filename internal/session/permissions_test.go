package session_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netresearch/hub-server/internal/session"
)

func buildTable(t *testing.T, entries ...[2]string) *session.Table {
	t.Helper()

	var pairs []struct{ Pattern, Rule string }
	for _, e := range entries {
		pairs = append(pairs, struct{ Pattern, Rule string }{e[0], e[1]})
	}

	tbl, err := session.NewTable(pairs)
	require.NoError(t, err)

	return tbl
}

func TestPermissionsDefaultAllowWhenNoPatternMatches(t *testing.T) {
	tbl := buildTable(t, [2]string{"^/admin/", "g:admins=ALL"})

	assert.True(t, tbl.Allow("/public/page", nil, "r"))
}

func TestPermissionsDenyWithStop(t *testing.T) {
	tbl := buildTable(t, [2]string{"^/admin/", "g:admins=ALL ; *=NONE"})

	guest := &session.Principal{Username: "bob", Groups: []string{"guests"}}
	assert.False(t, tbl.Allow("/admin/home", guest, "r"))
}

func TestPermissionsAllowForMatchingGroup(t *testing.T) {
	tbl := buildTable(t, [2]string{"^/admin/", "g:admins=ALL ; *=NONE"})

	admin := &session.Principal{Username: "alice", Groups: []string{"admins"}}
	assert.True(t, tbl.Allow("/admin/home", admin, "w"))
}

func TestPermissionsModeSubsetRequired(t *testing.T) {
	tbl := buildTable(t, [2]string{"^/docs/", "*=r"})

	assert.True(t, tbl.Allow("/docs/readme", nil, "r"))
	assert.False(t, tbl.Allow("/docs/readme", nil, "w"))
}

func TestPermissionsUppercaseStopsSearch(t *testing.T) {
	tbl := buildTable(t,
		[2]string{"^/shared/", "u:jane=R"},
		[2]string{"^/shared/", "*=rw"},
	)

	jane := &session.Principal{Username: "jane"}
	assert.True(t, tbl.Allow("/shared/doc", jane, "r"))
}

// An earlier, non-stop clause granting access must not leak through a
// later uppercase (stop) clause whose own mode check fails — the stop
// clause denies based on its own result, not the prior decision.
func TestPermissionsUppercaseStopDeniesOnItsOwnFailure(t *testing.T) {
	tbl := buildTable(t, [2]string{"^/shared/", "u:jane=rw ; u:jane=X"})

	jane := &session.Principal{Username: "jane"}
	assert.False(t, tbl.Allow("/shared/doc", jane, "r"))
}
