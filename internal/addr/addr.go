package addr

import (
	"net/url"
	"strings"
)

// Next is the sentinel segment meaning "append as a new trailing element of
// an ordered sequence" (used by store/insert/copy/move targets).
const Next = "<next>"

// Addr is a parsed, canonical-or-abstract hub address: an ordered list of
// segments with no leading/trailing empties.
type Addr struct {
	segments []string
}

// Root is the address "/".
var Root = Addr{segments: nil}

// Parse decodes percent-escapes and normalizes s into an Addr. Trailing
// slashes on non-root addresses are dropped; ".." segments are taken
// literally (addresses are not filesystem paths).
func Parse(s string) Addr {
	if decoded, err := url.PathUnescape(s); err == nil {
		s = decoded
	}

	s = strings.TrimPrefix(s, "/")
	s = strings.TrimSuffix(s, "/")

	if s == "" {
		return Root
	}

	parts := strings.Split(s, "/")
	segs := make([]string, 0, len(parts))

	for _, p := range parts {
		if p == "" {
			continue
		}

		segs = append(segs, p)
	}

	return Addr{segments: segs}
}

// Join appends segs to a and returns the normalized result.
func Join(a Addr, segs ...string) Addr {
	out := make([]string, 0, len(a.segments)+len(segs))
	out = append(out, a.segments...)

	for _, s := range segs {
		s = strings.Trim(s, "/")
		if s == "" {
			continue
		}

		out = append(out, s)
	}

	return Addr{segments: out}
}

// String renders the canonical form: a single leading slash, no trailing
// slash except for the root, which renders as "/".
func (a Addr) String() string {
	if len(a.segments) == 0 {
		return "/"
	}

	return "/" + strings.Join(a.segments, "/")
}

// Segments returns a copy of the address's segments.
func (a Addr) Segments() []string {
	out := make([]string, len(a.segments))
	copy(out, a.segments)

	return out
}

// Len returns the number of segments; the root address has length 0.
func (a Addr) Len() int {
	return len(a.segments)
}

// IsRoot reports whether a is the root address.
func (a Addr) IsRoot() bool {
	return len(a.segments) == 0
}

// Parent returns the address of a's enclosing container. Parent of root is
// root.
func Parent(a Addr) Addr {
	if len(a.segments) == 0 {
		return Root
	}

	return Addr{segments: a.segments[:len(a.segments)-1]}
}

// Name returns a's final segment, or "" for the root address.
func Name(a Addr) string {
	if len(a.segments) == 0 {
		return ""
	}

	return a.segments[len(a.segments)-1]
}

// Normalize re-parses a's string form; normalize(normalize(A)) == normalize(A)
// holds because Parse already strips empties and trailing slashes.
func Normalize(a Addr) Addr {
	return Parse(a.String())
}

// IsAbstract reports whether a contains any query segment. Query segments
// begin with "{" and end with "}"; their interior syntax ("?key=value",
// ":first", ":last", a bare integer, or a "|{...}" pipe stage) is
// recognized but not evaluated here — evaluation is the hub's job.
func (a Addr) IsAbstract() bool {
	for _, s := range a.segments {
		if IsAbstractSegment(s) {
			return true
		}
	}

	return false
}

// IsAbstractSegment reports whether a single segment is a query segment.
func IsAbstractSegment(seg string) bool {
	return strings.HasPrefix(seg, "{") && strings.HasSuffix(seg, "}")
}

// IsNext reports whether seg is the "append to sequence" sentinel.
func IsNext(seg string) bool {
	return seg == Next
}

// HasPrefix reports whether a begins with the segments of prefix.
func HasPrefix(a, prefix Addr) bool {
	if len(prefix.segments) > len(a.segments) {
		return false
	}

	for i, s := range prefix.segments {
		if a.segments[i] != s {
			return false
		}
	}

	return true
}

// TrimPrefix removes prefix's segments from the front of a. If a does not
// have prefix as a prefix, a is returned unchanged.
func TrimPrefix(a, prefix Addr) Addr {
	if !HasPrefix(a, prefix) {
		return a
	}

	return Addr{segments: a.segments[len(prefix.segments):]}
}
