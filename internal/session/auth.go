package session

import (
	"crypto/rand"
	"crypto/sha1" //nolint:gosec // protocol-mandated hash, not a design choice
	"encoding/hex"
	"errors"
	"fmt"
	"time"
)

// ErrAuthFailed is returned by Login when the submitted challenge response
// does not match, and by Authenticate when no valid session is present.
var ErrAuthFailed = errors.New("session: authentication failed")

// UserLookup resolves a username to its stored h1 = sha1(password) and
// group membership, the credential backend the login protocol and
// permission evaluator consult (spec §4.F). Implementations back this with
// whatever the deployment's user store is (a hub hashfile, an external
// directory, ...); session itself is agnostic.
type UserLookup interface {
	H1(username string) (h1 string, ok bool, err error)
	Groups(username string) ([]string, error)
}

// Principal is the authenticated identity attached to a request on
// successful Authenticate.
type Principal struct {
	Username string
	Groups   []string
}

// Sha1Hex returns the lowercase hex SHA1 digest of s, the primitive both
// sides of the login protocol use (spec §4.F: h1 = sha1(password), h2 =
// sha1(h1 + ":" + tk)).
func Sha1Hex(s string) string {
	sum := sha1.Sum([]byte(s)) //nolint:gosec // protocol-mandated

	return hex.EncodeToString(sum[:])
}

func randomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}

	return hex.EncodeToString(buf), nil
}

// CurrentAuthToken returns sid's current server-side auth token,
// generating and persisting one if none exists yet — including
// immediately after a logout, which deletes the previous token (spec
// §4.F "Auth token").
func CurrentAuthToken(store *Store, sid string) (string, error) {
	tk, ok, err := store.LoadAuthToken(sid)
	if err != nil {
		return "", err
	}

	if ok {
		return tk, nil
	}

	tk, err = randomHex(20)
	if err != nil {
		return "", fmt.Errorf("session: generating auth token: %w", err)
	}

	if err := store.SaveAuthToken(sid, tk); err != nil {
		return "", err
	}

	return tk, nil
}

// Login runs the server side of the challenge/response protocol (spec
// §4.F "Login protocol"): the client already holds tk (from a prior
// CurrentAuthToken read) and submits username plus h2 = sha1(h1 + ":" +
// tk). On success it allocates the (k, v) cookie pair, stores the
// credential record at v, and returns them for the HTTP layer to set as
// Set-Cookie k=v and to record k in the session directory.
func Login(store *Store, users UserLookup, sid, username, h2 string) (k, v string, err error) {
	tk, err := CurrentAuthToken(store, sid)
	if err != nil {
		return "", "", err
	}

	h1, ok, err := users.H1(username)
	if err != nil {
		return "", "", err
	}

	if !ok {
		return "", "", ErrAuthFailed
	}

	expected := Sha1Hex(h1 + ":" + tk)
	if expected != h2 {
		return "", "", ErrAuthFailed
	}

	k, err = randomHex(12)
	if err != nil {
		return "", "", err
	}

	v, err = randomHex(16)
	if err != nil {
		return "", "", err
	}

	cred := Credential{Username: username, H2: h2, SID: sid, MTime: time.Now()}
	if err := store.SaveCredential(v, cred); err != nil {
		return "", "", err
	}

	rec, _, err := store.LoadSession(sid)
	if err != nil {
		return "", "", err
	}

	rec.SID = sid
	rec.AuthCookieKey = k

	if err := store.SaveSession(rec); err != nil {
		return "", "", err
	}

	return k, v, nil
}

// Authenticate resolves the session directory for sid, the credential
// cookie value v from the incoming request cookies, and validates it
// against the stored credential record per spec §4.F "Authenticate". A nil
// Principal with a nil error means the request is simply anonymous (no
// session cookie presented yet), distinct from ErrAuthFailed which means a
// credential was presented and rejected.
func Authenticate(store *Store, users UserLookup, sid string, cookies map[string]string, timeout time.Duration) (*Principal, error) {
	rec, ok, err := store.LoadSession(sid)
	if err != nil {
		return nil, err
	}

	if !ok || rec.AuthCookieKey == "" {
		return nil, nil
	}

	v, ok := cookies[rec.AuthCookieKey]
	if !ok {
		return nil, nil
	}

	cred, ok, err := store.LoadCredential(v)
	if err != nil {
		return nil, err
	}

	if !ok {
		return nil, nil
	}

	if cred.SID != sid {
		return nil, ErrAuthFailed
	}

	if time.Since(cred.MTime) > timeout {
		_ = Logout(store, sid, v)

		return nil, ErrAuthFailed
	}

	h1, ok, err := users.H1(cred.Username)
	if err != nil {
		return nil, err
	}

	if !ok {
		return nil, ErrAuthFailed
	}

	tk, err := CurrentAuthToken(store, sid)
	if err != nil {
		return nil, err
	}

	if Sha1Hex(h1+":"+tk) != cred.H2 {
		return nil, ErrAuthFailed
	}

	cred.MTime = time.Now()
	if err := store.SaveCredential(v, cred); err != nil {
		return nil, err
	}

	groups, err := users.Groups(cred.Username)
	if err != nil {
		return nil, err
	}

	return &Principal{Username: cred.Username, Groups: groups}, nil
}

// Logout removes the credential record at v and the server-side auth
// token for sid, so the first request after logout regenerates a fresh
// token (spec §4.F "Auth token").
func Logout(store *Store, sid, v string) error {
	if v != "" {
		if err := store.DeleteCredential(v); err != nil {
			return err
		}
	}

	return store.DeleteAuthToken(sid)
}
