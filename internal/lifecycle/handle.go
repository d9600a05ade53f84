package lifecycle

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/netresearch/hub-server/internal/addr"
	"github.com/netresearch/hub-server/internal/herr"
	"github.com/netresearch/hub-server/internal/hub"
	"github.com/netresearch/hub-server/internal/hubapi"
	"github.com/netresearch/hub-server/internal/node"
	"github.com/netresearch/hub-server/internal/rcache"
	"github.com/netresearch/hub-server/internal/session"
	"github.com/netresearch/hub-server/internal/sysctx"
)

// sysPrefix is the address prefix that is always 403 to resolution (spec
// §6 "/sys/* — forbidden"); the /sys tree is only ever visible to
// responders through the request/response objects handed to them
// directly, never through Hub.Resolve.
var sysPrefix = addr.Parse("/sys")

// requestSession carries the per-request identity state phase 3 derives
// and phase 6 needs again, kept local to Handle rather than grafted onto
// sysctx.Request (whose doc comment reserves it for read-only fields
// filled in once by internal/web, Username excepted).
type requestSession struct {
	sidKey    string
	sid       string
	rolledSID bool
	principal *session.Principal
}

// Handle carries req through the seven ordered phases of spec §4.J and
// returns the Response to send. An error return means a Programatic
// failure the caller (internal/web) should turn into a bare 500 — every
// expected failure mode (404, 401, 403, 409...) is instead encoded as a
// normal Response with the matching Status, per herr's taxonomy.
func (d *Driver) Handle(req *sysctx.Request) (*sysctx.Response, error) {
	cfg := d.Hub.Config()

	// 1. New-request-cycle.
	if err := cfg.Refresh(); err != nil {
		log.Error().Err(err).Msg("lifecycle: config refresh failed, continuing with last good config")
	}

	req.MergeXArgs()

	// 2. Map-to-storage.
	a := addr.Parse(req.URI)

	if addr.HasPrefix(a, sysPrefix) {
		return d.errorResponse(cfg, req, nil, herr.New(herr.Forbidden, "/sys is not a resolvable address")), nil
	}

	if anyMatch(configRegexList(cfg, "handlers/access/forbidden"), req.URI) {
		return d.errorResponse(cfg, req, nil, herr.New(herr.Forbidden, "uri is on the forbidden list")), nil
	}

	if anyMatch(configRegexList(cfg, "handlers/response/ignore"), req.URI) {
		// Bypass mapping entirely: the caller (internal/web) is expected to
		// fall through to its own static-file serving for this request.
		return &sysctx.Response{Status: 0}, nil
	}

	rc := hub.NewResolveContext()

	target, rerr := d.Hub.Resolve(rc, a)
	if rerr != nil {
		return d.errorResponse(cfg, req, nil, wrapResolveErr(rerr)), nil
	}

	// 3. Header-parse.
	rs, aerr := d.authenticate(cfg, req)
	if aerr != nil {
		return d.errorResponse(cfg, req, rs, aerr), nil
	}

	if rs.principal != nil {
		req.Username = rs.principal.Username
	}

	// 4. Fixup.
	typeOf := hubapi.TypeOf(target)

	resp, found := d.Responders.Select(req.URI, typeOf, target, req.QS, req.XArgs)
	if !found {
		return d.errorResponse(cfg, req, rs, herr.New(herr.DoesNotExist, "no responder matches this resource")), nil
	}

	table, err := permissionsTable(cfg)
	if err != nil {
		return nil, fmt.Errorf("lifecycle: building permissions table: %w", err)
	}

	if !table.Allow(req.URI, rs.principal, resp.PermissionMode()) {
		return d.loginRedirect(cfg, req, rs), nil
	}

	out := sysctx.NewResponse()

	if _, isDir := target.(*hub.Directory); isDir {
		if cerr := resp.Compile(req, out, target, a); cerr != nil {
			return d.errorResponse(cfg, req, rs, cerr), nil
		}

		d.send(cfg, req, rs, out)

		return out, nil
	}

	rtag := sysctx.Fingerprint(req)

	meta, hit, cerr := d.Cache.LoadMeta(rtag)
	if cerr != nil {
		log.Warn().Err(cerr).Msg("lifecycle: cache meta load failed, falling back to live respond")

		hit = false
	}

	if hit {
		if latest, valid := rcache.Validate(meta, cfg.Aggregate(), time.Now()); valid {
			return d.respondFromCache(cfg, req, rs, rtag, meta, latest), nil
		}
	}

	// 5. Respond (live).
	if cerr := resp.Compile(req, out, target, a); cerr != nil {
		d.cleanup(cfg, req, rtag, nil, false)

		return d.errorResponse(cfg, req, rs, cerr), nil
	}

	storagePath := ""
	if sn, serr := d.Hub.FindStorage(rc, a); serr == nil {
		if f, ok := sn.(*hub.File); ok {
			storagePath = f.FSPath()
		}
	}

	if _, ok := firstHeaderSet(out.Headers, "Last-Modified"); !ok {
		out.SetHeader("Last-Modified", time.Now().UTC().Format(http.TimeFormat))
	}

	// 6. Send.
	d.send(cfg, req, rs, out)

	// 7. Cleanup.
	d.cleanup(cfg, req, rtag, &cleanupInfo{resp: out, storagePath: storagePath, cfgAggregate: cfg.Aggregate()}, true)

	return out, nil
}

// authenticate performs the SID cookie derivation/rolling and session
// authentication steps of spec §4.J step 3 "Header-parse", returning the
// resolved identity (nil for anonymous) for fixup's permission check.
func (d *Driver) authenticate(cfg *hub.Config, req *sysctx.Request) (*requestSession, *herr.Error) {
	shareSchemes := d.ShareHTTPSchemes || configBool(cfg, "session/share_http_schemes")
	xff := firstOf(req.Headers, "X-Forwarded-For")
	refererHost := hostnameOf(firstOf(req.Headers, "Referer"))

	sidKey := session.CookieKey(req.Scheme, req.Hostname, xff, refererHost, shareSchemes)

	rs := &requestSession{sidKey: sidKey}

	sid, ok := req.Cookies[sidKey]
	if !ok || !session.IsValidSID(sid) {
		fresh, err := session.GenerateSID()
		if err != nil {
			return rs, herr.Wrap(herr.Programatic, "generating session id", err)
		}

		sid = fresh
		rs.rolledSID = true
	}

	rs.sid = sid

	timeout := configDuration(cfg, "handlers/auth/timeout", defaultAuthTimeout)

	principal, aerr := session.Authenticate(d.Sessions, d.Users, sid, req.Cookies, timeout)
	if aerr != nil && !errors.Is(aerr, session.ErrAuthFailed) {
		return rs, herr.Wrap(herr.Programatic, "authenticating session", aerr)
	}

	rs.principal = principal

	return rs, nil
}

// loginRedirect builds the 401 response spec §4.J step 4 describes:
// WWW-Authenticate: Web, and the configured login page's own content
// substituted as the entity body.
func (d *Driver) loginRedirect(cfg *hub.Config, req *sysctx.Request, rs *requestSession) *sysctx.Response {
	out := sysctx.NewResponse()
	out.Status = 401
	out.SetHeader("WWW-Authenticate", "Web")

	loginPage := configString(cfg, "handlers/auth/login_page", defaultLoginPage)

	rc := hub.NewResolveContext()

	if n, err := d.Hub.Resolve(rc, addr.Parse(loginPage)); err == nil {
		if f, ok := n.(*hub.File); ok {
			if raw, rerr := f.GetRawContent(); rerr == nil {
				out.Body = raw
				out.ContentType = "text/html; charset=utf-8"
			}
		}
	}

	d.send(cfg, req, rs, out)

	return out
}

// errorResponse converts a hub-taxonomy error into a Response per spec §7,
// translating HTTPSRequired/HTTPSNotRequired into a cross-scheme redirect
// rather than a fixed status.
func (d *Driver) errorResponse(cfg *hub.Config, req *sysctx.Request, rs *requestSession, err error) *sysctx.Response {
	kind := herr.KindOf(err)

	out := sysctx.NewResponse()

	switch kind {
	case herr.HTTPSRequired:
		out.Status = 302
		out.SetHeader("Location", "https://"+req.Hostname+req.URI)
	case herr.HTTPSNotRequired:
		out.Status = 302
		out.SetHeader("Location", "http://"+req.Hostname+req.URI)
	default:
		out.Status = kind.Status()
		out.ContentType = "text/plain; charset=utf-8"
		out.Body = []byte(err.Error())

		if kind == herr.AccessDenied {
			out.SetHeader("WWW-Authenticate", "Web")
		}

		if kind == herr.Programatic {
			log.Error().Err(err).Str("uri", req.URI).Msg("lifecycle: programmatic error handling request")
		}
	}

	d.send(cfg, req, rs, out)

	return out
}

// respondFromCache replays a still-valid cached response, serving a bare
// 304 when the client's own If-None-Match already matches, or when its
// If-Modified-Since is at or after the cache's effective mtime (spec §4.H
// "the cache consultation yields: a 304 ... a cached hook ... or a live
// hook"; spec §4.J step 4). latest is the validator's returned max-mtime,
// falling back to meta.MTime when the caller has none.
func (d *Driver) respondFromCache(cfg *hub.Config, req *sysctx.Request, rs *requestSession, rtag string, meta *rcache.Meta, latest time.Time) *sysctx.Response {
	out := sysctx.NewResponse()
	out.ETag = meta.ETag
	out.Cacheable = true

	for k, v := range meta.Headers {
		out.Headers[k] = append([]string{}, v...)
	}

	if latest.IsZero() {
		latest = meta.MTime
	}

	out.SetHeader("Last-Modified", latest.UTC().Format(http.TimeFormat))

	if inm, ok := firstHeaderSet(req.Headers, "If-None-Match"); ok && inm == meta.ETag {
		out.Status = 304
		d.send(cfg, req, rs, out)
		d.cleanup(cfg, req, rtag, &cleanupInfo{resp: out}, true)

		return out
	}

	if ims, ok := firstHeaderSet(req.Headers, "If-Modified-Since"); ok {
		if t, err := http.ParseTime(ims); err == nil && !latest.After(t) {
			out.Status = 304
			d.send(cfg, req, rs, out)
			d.cleanup(cfg, req, rtag, &cleanupInfo{resp: out}, true)

			return out
		}
	}

	if meta.SendFile != "" {
		out.SendFile = meta.SendFile
	} else if body, err := d.Cache.LoadBody(meta.ETag); err == nil {
		out.Body = body
	}

	out.Status = 200

	d.send(cfg, req, rs, out)
	d.cleanup(cfg, req, rtag, &cleanupInfo{resp: out}, true)

	return out
}

// send materializes the cookies, ETag, and default Cache-Control header
// every response carries (spec §4.J step 6).
func (d *Driver) send(cfg *hub.Config, req *sysctx.Request, rs *requestSession, out *sysctx.Response) {
	timeout := configDuration(cfg, "handlers/auth/timeout", defaultAuthTimeout)

	if rs != nil && rs.sidKey != "" {
		out.AddHeader("Set-Cookie", fmt.Sprintf("%s=%s; Path=/; Expires=%s", rs.sidKey, rs.sid, time.Now().Add(timeout).UTC().Format(time.RFC1123)))
	}

	if out.ETag == "" && len(out.Body) > 0 {
		out.ETag = sysctx.Fingerprint(req)
	}

	if _, ok := firstHeaderSet(out.Headers, "Cache-Control"); !ok {
		out.SetHeader("Cache-Control", "must-revalidate")
	}
}

// cleanupInfo carries the information cleanup needs to build a fresh
// cache.Meta on a store, kept separate from sysctx.Response since most of
// it (storage path, config aggregate) is not response state.
type cleanupInfo struct {
	resp         *sysctx.Response
	storagePath  string
	cfgAggregate time.Time
}

// cleanup implements spec §4.J step 7: worker-termination marking on a
// 5xx with debug/terminate_on_error set, cache store/update/purge
// depending on outcome, and draining the change log. The drained entries
// are counted in a debug log line; no changelog file is written.
func (d *Driver) cleanup(cfg *hub.Config, req *sysctx.Request, rtag string, info *cleanupInfo, responderRan bool) {
	status := 0
	if info != nil && info.resp != nil {
		status = info.resp.Status
	}

	if status >= 500 && configBool(cfg, "debug/terminate_on_error") && d.TerminateHook != nil {
		d.TerminateHook()
	}

	if responderRan && info != nil && info.resp != nil {
		d.updateCache(req, rtag, info)
	}

	drained := d.Hub.ChangeLog().Drain()
	if len(drained) > 0 {
		log.Debug().Int("count", len(drained)).Str("uri", req.URI).Msg("lifecycle: request wrote to storage")
	}
}

func (d *Driver) updateCache(req *sysctx.Request, rtag string, info *cleanupInfo) {
	out := info.resp

	switch {
	case out.Status == 200 && out.Cacheable && !rcache.NoStore(out.Headers):
		now := time.Now()
		m := &rcache.Meta{
			URI:      req.URI,
			RtagStr:  rtag,
			Path:     info.storagePath,
			MTime:    now,
			SendFile: out.SendFile,
			CfgMTime: info.cfgAggregate,
			Headers:  stripSetCookie(out.Headers),
			ETag:     out.ETag,
			CTime:    now,
			ATime:    now,
			ACount:   1,
		}

		if err := d.Cache.Store(rtag, m, out.Body); err != nil {
			log.Warn().Err(err).Msg("lifecycle: storing cache entry failed")
		}
	case out.Status == 304:
		if meta, ok, err := d.Cache.LoadMeta(rtag); err == nil && ok {
			meta.ATime = time.Now()
			meta.ACount++

			if serr := d.Cache.Store(rtag, meta, nil); serr != nil {
				log.Warn().Err(serr).Msg("lifecycle: updating cache entry failed")
			}
		}
	default:
		if err := d.Cache.Purge(rtag); err != nil {
			log.Warn().Err(err).Msg("lifecycle: purging cache entry failed")
		}
	}
}

// stripSetCookie removes Set-Cookie from a header set before it is stored
// in the response cache — cookies, including the rolled SID, are always
// materialized fresh by send for every request, cache hit or not (spec
// §4.J step 6).
func stripSetCookie(headers map[string][]string) map[string][]string {
	out := make(map[string][]string, len(headers))

	for k, v := range headers {
		if strings.EqualFold(k, "Set-Cookie") {
			continue
		}

		out[k] = v
	}

	return out
}

func wrapResolveErr(err error) *herr.Error {
	if errors.Is(err, node.ErrNotFound) {
		return herr.Wrap(herr.DoesNotExist, "resolving address", err)
	}

	if errors.Is(err, hub.ErrMountCycle) {
		return herr.Wrap(herr.Programatic, "resolving address", err)
	}

	return herr.Wrap(herr.Logical, "resolving address", err)
}

func firstOf(headers map[string][]string, name string) string {
	for k, v := range headers {
		if len(v) > 0 && strings.EqualFold(k, name) {
			return v[0]
		}
	}

	return ""
}

func firstHeaderSet(headers map[string][]string, name string) (string, bool) {
	for k, v := range headers {
		if len(v) > 0 && strings.EqualFold(k, name) {
			return v[0], true
		}
	}

	return "", false
}

// hostnameOf extracts the host from a Referer header value, ignoring any
// scheme, port, and path — the "Referer hostname-if-different" input to
// session.CookieKey (spec §4.F "Session ID").
func hostnameOf(refererURL string) string {
	if refererURL == "" {
		return ""
	}

	rest := refererURL
	if i := strings.Index(rest, "://"); i >= 0 {
		rest = rest[i+3:]
	}

	if i := strings.IndexAny(rest, "/:?"); i >= 0 {
		return rest[:i]
	}

	return rest
}
