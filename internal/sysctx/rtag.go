package sysctx

import (
	"crypto/sha1" //nolint:gosec // rtag is a cache key, not a security boundary
	"encoding/hex"
	"strings"
)

// Fingerprint computes the request's rtag: a checksum over (username,
// method, scheme, hostname, uri, qs entries in original order, internal
// XArgs entries in original order) (spec §4.E). Two requests that differ
// only in a header outside the internal XArgs allowlist hash identically,
// by design — that's what makes the response cache effective.
func Fingerprint(r *Request) string {
	var b strings.Builder

	b.WriteString(r.Username)
	b.WriteByte('\n')
	b.WriteString(r.Method)
	b.WriteByte('\n')
	b.WriteString(r.Scheme)
	b.WriteByte('\n')
	b.WriteString(r.Hostname)
	b.WriteByte('\n')
	b.WriteString(r.URI)
	b.WriteByte('\n')

	for _, pr := range r.QS.Pairs() {
		b.WriteString(pr.Key)
		b.WriteByte('=')
		b.WriteString(pr.Value)
		b.WriteByte('&')
	}

	b.WriteByte('\n')

	for _, pr := range r.InternalXArgs() {
		b.WriteString(pr.Key)
		b.WriteByte('=')
		b.WriteString(pr.Value)
		b.WriteByte('&')
	}

	sum := sha1.Sum([]byte(b.String())) //nolint:gosec // see package doc: identity hash, not a security boundary

	return hex.EncodeToString(sum[:])
}
