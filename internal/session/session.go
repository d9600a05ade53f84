package session

import (
	"crypto/rand"
	"crypto/sha1" //nolint:gosec // SID cookie-key derivation is an identity hash, not a security boundary
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// sidAlphabet is the character set a generated SID is drawn from (spec
// §4.F: "33 characters from [A-Za-z0-9]").
const sidAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

const sidLength = 33

// CookieKey derives the SID cookie's name: "v01" followed by a checksum of
// the scheme (omitted when shareHTTPSchemes is set), hostname, the
// X-Forwarded-For chain, and the Referer hostname when it differs from
// hostname (spec §4.F "Session ID"). Deriving the cookie name itself, not
// just its value, means a session started over https never collides with
// one over http on the same host when schemes aren't shared, and a
// cross-host CSRF replay of a stolen cookie lands on the wrong key.
func CookieKey(scheme, hostname, xForwardedFor, refererHost string, shareHTTPSchemes bool) string {
	var b strings.Builder

	if !shareHTTPSchemes {
		b.WriteString(scheme)
		b.WriteByte(';')
	}

	b.WriteString(hostname)
	b.WriteByte(';')
	b.WriteString(xForwardedFor)
	b.WriteByte(';')

	if refererHost != "" && refererHost != hostname {
		b.WriteString(refererHost)
	}

	sum := sha1.Sum([]byte(b.String())) //nolint:gosec // see above

	return "v01" + hex.EncodeToString(sum[:])
}

// GenerateSID returns a fresh random SID: sidLength characters drawn from
// sidAlphabet using a cryptographic random source.
func GenerateSID() (string, error) {
	buf := make([]byte, sidLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("session: generating sid: %w", err)
	}

	out := make([]byte, sidLength)
	for i, b := range buf {
		out[i] = sidAlphabet[int(b)%len(sidAlphabet)]
	}

	return string(out), nil
}

// IsValidSID reports whether s has the expected length and alphabet; an
// empty or malformed SID must be replaced by a fresh one rather than
// trusted (spec §4.F).
func IsValidSID(s string) bool {
	if len(s) != sidLength {
		return false
	}

	for _, r := range s {
		if !strings.ContainsRune(sidAlphabet, r) {
			return false
		}
	}

	return true
}

// ParseTimeout parses the "{digits}{s|m|h|D|M|Y}" duration syntax used by
// handlers/auth/timeout (spec §4.F). Calendar units (D/M/Y) are
// approximated as 24h/30D/365D, matching how a single scalar config value
// is expected to behave for a session timeout rather than a calendar
// computation.
func ParseTimeout(s string) (time.Duration, error) {
	if s == "" {
		return 0, fmt.Errorf("session: empty timeout")
	}

	unit := s[len(s)-1]
	digits := s[:len(s)-1]

	n, err := strconv.Atoi(digits)
	if err != nil {
		return 0, fmt.Errorf("session: invalid timeout %q: %w", s, err)
	}

	var unitDur time.Duration

	switch unit {
	case 's':
		unitDur = time.Second
	case 'm':
		unitDur = time.Minute
	case 'h':
		unitDur = time.Hour
	case 'D':
		unitDur = 24 * time.Hour
	case 'M':
		unitDur = 30 * 24 * time.Hour
	case 'Y':
		unitDur = 365 * 24 * time.Hour
	default:
		return 0, fmt.Errorf("session: unknown timeout unit %q in %q", string(unit), s)
	}

	return time.Duration(n) * unitDur, nil
}

// Cookie describes a Set-Cookie the session layer wants emitted; the HTTP
// layer (internal/web) translates this into a fiber.Cookie.
type Cookie struct {
	Name    string
	Value   string
	Expires time.Time
}
