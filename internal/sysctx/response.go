package sysctx

// Response is the outbound side of a hub request's per-request state (spec
// §4.E), assembled by internal/lifecycle's respond phase and flushed by its
// send phase. Body is left nil for a responder with no inline body: the
// Image responder names its generated file in SendFile, and the Directory
// responder answers with a redirect or an InternalRedirect.
type Response struct {
	Status      int
	ContentType string
	Headers     map[string][]string
	Body        []byte

	// ETag and Cacheable are set by a responder (or by internal/rcache
	// replaying a hit) and consumed by the send phase to emit validator
	// headers and, on a cache miss, to drive the store phase.
	ETag      string
	Cacheable bool

	// SendFile names a filesystem path the send phase should stream
	// directly (zero-copy) instead of Body — set by a cache hit replay or
	// by the Image responder after generating a transformed variant (spec
	// §4.G, §4.H "send_file").
	SendFile string

	// InternalRedirect, when non-empty, names a hub address the lifecycle
	// driver should re-resolve and re-dispatch instead of sending this
	// Response — used by the Directory responder for an index-file
	// redirect (spec §4.G "Directory responder").
	InternalRedirect string
}

// NewResponse returns a Response defaulted to 200 OK with no body.
func NewResponse() *Response {
	return &Response{Status: 200, Headers: map[string][]string{}}
}

// SetHeader replaces any existing values for name.
func (r *Response) SetHeader(name, value string) {
	r.Headers[name] = []string{value}
}

// AddHeader appends value to name's existing values.
func (r *Response) AddHeader(name, value string) {
	r.Headers[name] = append(r.Headers[name], value)
}
