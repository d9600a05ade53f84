package lifecycle

import (
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/netresearch/hub-server/internal/hub"
	"github.com/netresearch/hub-server/internal/node"
	"github.com/netresearch/hub-server/internal/rcache"
	"github.com/netresearch/hub-server/internal/responder"
	"github.com/netresearch/hub-server/internal/session"
)

// defaultLoginPage is substituted for a 401 body when config
// handlers/auth/login_page is unset (spec §4.J step 5 "fixup").
const defaultLoginPage = "/res/login/index.html"

// defaultAuthTimeout backs handlers/auth/timeout when config doesn't set
// one; a SID without a parseable timeout falls back to this rather than
// failing the request.
const defaultAuthTimeout = 20 * time.Minute

// Driver binds one virtual host's Hub, session store, responder registry
// and response cache together and carries a request through the seven
// ordered phases of spec §4.J. internal/web constructs one Driver per
// vhost at startup and calls Handle once per inbound request.
//
// Grounded on the teacher's App (internal/web/server.go): the same
// "own the dependencies, expose one per-request entry point" shape,
// generalized from LDAP-backed handlers to a hub responder dispatch.
type Driver struct {
	Hub        *hub.Hub
	Sessions   *session.Store
	Users      session.UserLookup
	Responders *responder.Registry
	Cache      *rcache.Store

	// ShareHTTPSchemes seeds session.CookieKey's shareHTTPSchemes argument
	// when config session/share_http_schemes is absent.
	ShareHTTPSchemes bool

	// TerminateHook is invoked from the cleanup phase when a response's
	// status is 5xx and config debug/terminate_on_error is set (spec §4.J
	// step 7 "mark the worker for termination"). Left nil in tests; wired
	// by internal/web to whatever supervises the worker process.
	TerminateHook func()
}

// New constructs a Driver from its required collaborators.
func New(h *hub.Hub, sessions *session.Store, users session.UserLookup, responders *responder.Registry, cache *rcache.Store) *Driver {
	return &Driver{
		Hub:        h,
		Sessions:   sessions,
		Users:      users,
		Responders: responders,
		Cache:      cache,
	}
}

// configPath descends into cfg's merged overlay through a slash-delimited
// path, one Mapping lookup per segment — config.Get is a flat single-key
// lookup, so a nested key like "handlers/access/forbidden" (spec §4.D
// config key list) must be walked segment by segment rather than looked
// up in one call.
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

// configString reads a scalar at path, returning def if absent or not a
// scalar.
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

// configBool reads a scalar at path as a loose boolean ("1", "true", "yes"
// and "on", in any case, are truthy; everything else including absence is
// false).
func configBool(cfg *hub.Config, path string) bool {
	v := strings.ToLower(configString(cfg, path, ""))

	return v == "1" || v == "true" || v == "yes" || v == "on"
}

// configDuration reads handlers/auth/timeout-shaped scalars via
// session.ParseTimeout, falling back to def on absence or parse failure.
func configDuration(cfg *hub.Config, path string, def time.Duration) time.Duration {
	s := configString(cfg, path, "")
	if s == "" {
		return def
	}

	d, err := session.ParseTimeout(s)
	if err != nil {
		log.Warn().Err(err).Str("path", path).Msg("lifecycle: invalid duration in config, using default")

		return def
	}

	return d
}

// configRegexList reads a Sequence of regex-string scalars at path,
// compiling each; an entry that fails to compile is logged and skipped
// rather than failing the whole request (spec §4.D "handlers/access/forbidden
// (regex list)", "handlers/response/{ignore}").
func configRegexList(cfg *hub.Config, path string) []*regexp.Regexp {
	n, ok := configPath(cfg, path)
	if !ok {
		return nil
	}

	seq, ok := n.(*node.Sequence)
	if !ok {
		return nil
	}

	out := make([]*regexp.Regexp, 0, seq.Len())

	for _, item := range seq.Items() {
		sc, ok := item.(*node.Scalar)
		if !ok {
			continue
		}

		re, err := regexp.Compile(sc.Text())
		if err != nil {
			log.Warn().Err(err).Str("path", path).Str("pattern", sc.Text()).Msg("lifecycle: invalid regex in config, skipping")

			continue
		}

		out = append(out, re)
	}

	return out
}

// anyMatch reports whether any regex in list matches s.
func anyMatch(list []*regexp.Regexp, s string) bool {
	for _, re := range list {
		if re.MatchString(s) {
			return true
		}
	}

	return false
}

// permissionsTable builds a session.Table from config's ordered
// "permissions" map (spec §4.D "permissions (ordered map)"), whose keys
// are URI regex patterns and whose values are rule strings, evaluated in
// the order preserved by the hashfile parser.
func permissionsTable(cfg *hub.Config) (*session.Table, error) {
	n, ok := cfg.Get("permissions")
	if !ok {
		return session.NewTable(nil)
	}

	m, ok := n.(*node.Mapping)
	if !ok {
		return session.NewTable(nil)
	}

	entries := make([]struct{ Pattern, Rule string }, 0, m.Len())

	for _, k := range m.Keys() {
		v, _ := m.Get(k)

		sc, ok := v.(*node.Scalar)
		if !ok {
			continue
		}

		entries = append(entries, struct{ Pattern, Rule string }{Pattern: k, Rule: sc.Text()})
	}

	return session.NewTable(entries)
}
