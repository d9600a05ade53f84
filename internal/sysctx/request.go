package sysctx

import (
	"io"
	"sort"
	"strings"

	"github.com/netresearch/hub-server/internal/node"
)

// xargsAllowlist are the X-* names that participate in the request
// fingerprint (spec §4.E "Request fingerprint (rtag)"). Every other
// X-header is still merged into XArgs for handlers to read, but must not
// affect rtag.
var xargsAllowlist = []string{
	"X-Command",
	"X-Auth",
	"X-Base-Uri",
	"X-Return-Disposition",
	"X-Response-Type",
	"X-Link-Origin",
	"X-Accept",
	"X-HTTP-Scheme",
}

// Page describes the request's own address in the four shapes handlers
// need: the full URI as received, the hub address it maps to, a
// caller-facing href, and that address's parent/name.
type Page struct {
	FullURI string
	URI     string
	Href    string
	Addr    string
	Parent  string
	Name    string
}

// Request is the inbound side of a hub request's per-request state (spec
// §4.E). It is constructed once by internal/web from the incoming HTTP
// request. internal/lifecycle's phases only read it, except that Handle
// calls MergeXArgs and the authenticate phase sets Username.
type Request struct {
	Method   string
	Scheme   string
	Hostname string
	URI      string

	QS      *Params
	Cookies map[string]string
	Headers map[string][]string
	XArgs   *Params

	cgi     *node.Mapping
	cgiLoad func() (*node.Mapping, error)

	bodyLoad func() (io.ReadCloser, error)

	Page  Page
	Stack []string
	Depth int

	// Username is populated by internal/lifecycle once authentication runs;
	// empty for anonymous requests. Included in the rtag tuple so that two
	// users never share a cached response for a permission-sensitive
	// address.
	Username string
}

// New constructs an empty Request. Callers fill in the exported fields and
// then call MergeXArgs to populate XArgs from Headers and QS.
func New() *Request {
	return &Request{
		QS:      NewParams(),
		Cookies: map[string]string{},
		Headers: map[string][]string{},
		XArgs:   NewCaseInsensitiveParams(),
	}
}

// MergeXArgs populates XArgs from every header and query parameter whose
// name begins with "X-" (case-insensitive), headers first (in sorted name
// order), then query parameters in their received order — the same order
// the fingerprint hashes them in.
func (r *Request) MergeXArgs() {
	names := make([]string, 0, len(r.Headers))
	for name := range r.Headers {
		names = append(names, name)
	}

	sort.Strings(names)

	for _, name := range names {
		if !strings.HasPrefix(strings.ToLower(name), "x-") {
			continue
		}

		for _, v := range r.Headers[name] {
			r.XArgs.Add(name, v)
		}
	}

	for _, pr := range r.QS.Pairs() {
		if !strings.HasPrefix(strings.ToLower(pr.Key), "x-") {
			continue
		}

		r.XArgs.Add(pr.Key, pr.Value)
	}
}

// SetCGILoader installs the lazy body/query parser used by CGI(); body
// parsing is deferred because most requests never need it (spec §4.E "cgi
// (lazy Mapping materialized from body or query depending on Content-Type)").
func (r *Request) SetCGILoader(load func() (*node.Mapping, error)) {
	r.cgiLoad = load
}

// CGI returns the request's body/query parameters as an ordered Mapping,
// parsing on first call.
func (r *Request) CGI() (*node.Mapping, error) {
	if r.cgi != nil {
		return r.cgi, nil
	}

	if r.cgiLoad == nil {
		r.cgi = node.NewMapping()

		return r.cgi, nil
	}

	m, err := r.cgiLoad()
	if err != nil {
		return nil, err
	}

	r.cgi = m

	return m, nil
}

// SetBodyLoader installs the raw-request-body opener the upload verb reads
// through (spec §4.I "upload"), kept separate from CGI's body parser since
// upload streams arbitrary bytes rather than structured parameters.
func (r *Request) SetBodyLoader(load func() (io.ReadCloser, error)) {
	r.bodyLoad = load
}

// Body opens the raw request body, or reports that none was installed —
// every real HTTP request gets one from internal/web; only test doubles
// omit it.
func (r *Request) Body() (io.ReadCloser, error) {
	if r.bodyLoad == nil {
		return nil, io.EOF
	}

	return r.bodyLoad()
}

// InternalXArgs returns only the XArgs on the fingerprint allowlist, in the
// order they were merged — the slice Fingerprint hashes.
func (r *Request) InternalXArgs() []Pair {
	var out []Pair

	for _, pr := range r.XArgs.Pairs() {
		for _, allowed := range xargsAllowlist {
			if strings.EqualFold(pr.Key, allowed) {
				out = append(out, pr)

				break
			}
		}
	}

	return out
}
