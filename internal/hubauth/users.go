// Package hubauth backs session.UserLookup with the hub's own address
// space, resolving handlers/auth/users (spec §4.D config surface) to a
// Mapping of username -> user record rather than an external directory,
// since this deployment has no LDAP/SQL backend of its own.
package hubauth

import (
	"fmt"
	"strings"

	"github.com/netresearch/hub-server/internal/addr"
	"github.com/netresearch/hub-server/internal/hub"
	"github.com/netresearch/hub-server/internal/node"
)

// defaultUsersAddr backs handlers/auth/users when config doesn't set one.
const defaultUsersAddr = "/sys/conf/users"

// defaultPasswordKey backs handlers/auth/password_key: the field name
// inside each user record holding the stored h1 = sha1(password).
const defaultPasswordKey = "h1"

// Lookup implements session.UserLookup against one Hub, re-resolving the
// users Mapping on every call so edits to the backing file take effect
// without a restart (mirrors the teacher's LDAP client: a thin adapter
// with no cache of its own).
type Lookup struct {
	hub *hub.Hub
}

// New constructs a Lookup reading usernames and groups from h's own
// address space.
func New(h *hub.Hub) *Lookup {
	return &Lookup{hub: h}
}

func configPath(cfg *hub.Config, path string) (node.Node, bool) {
	segs := strings.Split(path, "/")

	cur, ok := cfg.Get(segs[0])
	if !ok {
		return nil, false
	}

	for _, seg := range segs[1:] {
		m, ok := cur.(*node.Mapping)
		if !ok {
			return nil, false
		}

		cur, ok = m.Get(seg)
		if !ok {
			return nil, false
		}
	}

	return cur, true
}

func configString(cfg *hub.Config, path, def string) string {
	n, ok := configPath(cfg, path)
	if !ok {
		return def
	}

	sc, ok := n.(*node.Scalar)
	if !ok {
		return def
	}

	return sc.Text()
}

func (l *Lookup) usersMapping() (*node.Mapping, string, error) {
	cfg := l.hub.Config()

	usersAddr := configString(cfg, "handlers/auth/users", defaultUsersAddr)
	passwordKey := configString(cfg, "handlers/auth/password_key", defaultPasswordKey)

	n, err := l.hub.Resolve(hub.NewResolveContext(), addr.Parse(usersAddr))
	if err != nil {
		return nil, passwordKey, fmt.Errorf("hubauth: resolving %s: %w", usersAddr, err)
	}

	m, ok := n.(*node.Mapping)
	if !ok {
		return nil, passwordKey, fmt.Errorf("hubauth: %s is not a mapping", usersAddr)
	}

	return m, passwordKey, nil
}

func (l *Lookup) record(username string) (*node.Mapping, string, error) {
	users, passwordKey, err := l.usersMapping()
	if err != nil {
		return nil, "", err
	}

	child, ok := users.Get(username)
	if !ok {
		return nil, passwordKey, nil
	}

	rec, ok := child.(*node.Mapping)
	if !ok {
		return nil, passwordKey, fmt.Errorf("hubauth: user record %s is not a mapping", username)
	}

	return rec, passwordKey, nil
}

// H1 returns the stored h1 = sha1(password) for username, satisfying
// session.UserLookup.
func (l *Lookup) H1(username string) (string, bool, error) {
	rec, passwordKey, err := l.record(username)
	if err != nil {
		return "", false, err
	}

	if rec == nil {
		return "", false, nil
	}

	v, ok := rec.Get(passwordKey)
	if !ok {
		return "", false, nil
	}

	sc, ok := v.(*node.Scalar)
	if !ok {
		return "", false, nil
	}

	return sc.Text(), true, nil
}

// Groups returns username's group memberships, satisfying
// session.UserLookup.
func (l *Lookup) Groups(username string) ([]string, error) {
	rec, _, err := l.record(username)
	if err != nil {
		return nil, err
	}

	if rec == nil {
		return nil, nil
	}

	v, ok := rec.Get("groups")
	if !ok {
		return nil, nil
	}

	seq, ok := v.(*node.Sequence)
	if !ok {
		return nil, nil
	}

	out := make([]string, 0, seq.Len())

	for _, item := range seq.Items() {
		sc, ok := item.(*node.Scalar)
		if !ok {
			continue
		}

		out = append(out, sc.Text())
	}

	return out, nil
}
