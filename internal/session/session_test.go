package session_test

import (
	"testing"
	"time"

	"github.com/gofiber/storage/memory/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netresearch/hub-server/internal/session"
)

type fakeUsers struct {
	h1     map[string]string
	groups map[string][]string
}

func (f fakeUsers) H1(username string) (string, bool, error) {
	v, ok := f.h1[username]

	return v, ok, nil
}

func (f fakeUsers) Groups(username string) ([]string, error) {
	return f.groups[username], nil
}

func TestSIDValidation(t *testing.T) {
	sid, err := session.GenerateSID()
	require.NoError(t, err)
	assert.True(t, session.IsValidSID(sid))
	assert.False(t, session.IsValidSID("too-short"))
	assert.False(t, session.IsValidSID(""))
}

func TestCookieKeyStableForSameInputs(t *testing.T) {
	a := session.CookieKey("https", "hub.example.org", "", "", false)
	b := session.CookieKey("https", "hub.example.org", "", "", false)
	assert.Equal(t, a, b)

	c := session.CookieKey("http", "hub.example.org", "", "", false)
	assert.NotEqual(t, a, c)

	d := session.CookieKey("http", "hub.example.org", "", "", true)
	e := session.CookieKey("https", "hub.example.org", "", "", true)
	assert.Equal(t, d, e)
}

func TestParseTimeout(t *testing.T) {
	got, err := session.ParseTimeout("30m")
	require.NoError(t, err)
	assert.Equal(t, 30*time.Minute, got)

	got, err = session.ParseTimeout("2h")
	require.NoError(t, err)
	assert.Equal(t, 2*time.Hour, got)

	_, err = session.ParseTimeout("bogus")
	assert.Error(t, err)
}

func TestLoginThenAuthenticateRoundTrip(t *testing.T) {
	store := session.NewStore(memory.New(), time.Hour)
	users := fakeUsers{
		h1:     map[string]string{"jane": session.Sha1Hex("hunter2")},
		groups: map[string][]string{"jane": {"staff"}},
	}

	sid := "0123456789012345678901234567890AB"

	tk, err := session.CurrentAuthToken(store, sid)
	require.NoError(t, err)

	h2 := session.Sha1Hex(users.h1["jane"] + ":" + tk)

	k, v, err := session.Login(store, users, sid, "jane", h2)
	require.NoError(t, err)
	require.NotEmpty(t, k)
	require.NotEmpty(t, v)

	principal, err := session.Authenticate(store, users, sid, map[string]string{k: v}, time.Hour)
	require.NoError(t, err)
	require.NotNil(t, principal)
	assert.Equal(t, "jane", principal.Username)
	assert.Equal(t, []string{"staff"}, principal.Groups)
}

func TestLoginRejectsWrongResponse(t *testing.T) {
	store := session.NewStore(memory.New(), time.Hour)
	users := fakeUsers{h1: map[string]string{"jane": session.Sha1Hex("hunter2")}}

	_, _, err := session.Login(store, users, "sid-x", "jane", "not-the-right-hash")
	assert.ErrorIs(t, err, session.ErrAuthFailed)
}

func TestAuthenticateExpiresAfterTimeout(t *testing.T) {
	store := session.NewStore(memory.New(), time.Hour)
	users := fakeUsers{h1: map[string]string{"jane": session.Sha1Hex("hunter2")}}

	sid := "sid-expiry"
	tk, err := session.CurrentAuthToken(store, sid)
	require.NoError(t, err)

	h2 := session.Sha1Hex(users.h1["jane"] + ":" + tk)
	k, v, err := session.Login(store, users, sid, "jane", h2)
	require.NoError(t, err)

	_, err = session.Authenticate(store, users, sid, map[string]string{k: v}, -time.Second)
	assert.ErrorIs(t, err, session.ErrAuthFailed)
}
