package rcache

import (
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"
)

// Validate implements get_mtime (spec §4.H "Validator"): returns the
// maximum of every source mtime if m is still valid, or zero time and
// false if any invalidation condition holds.
func Validate(m *Meta, cfgAggregate time.Time, now time.Time) (time.Time, bool) {
	latest := m.MTime

	if fi, err := os.Stat(m.Path); err == nil {
		if fi.ModTime().After(m.MTime) {
			return time.Time{}, false
		}
	}

	for depPath, recorded := range m.Deps {
		fi, err := os.Stat(depPath)
		if err != nil {
			if os.IsNotExist(err) {
				if !recorded.IsZero() {
					return time.Time{}, false
				}

				continue
			}

			return time.Time{}, false
		}

		if fi.ModTime().After(recorded) {
			return time.Time{}, false
		}

		if fi.ModTime().After(latest) {
			latest = fi.ModTime()
		}
	}

	if cfgAggregate.After(m.CfgMTime) {
		return time.Time{}, false
	}

	if m.CfgMTime.IsZero() && !cfgAggregate.IsZero() {
		return time.Time{}, false
	}

	if cfgAggregate.After(latest) {
		latest = cfgAggregate
	}

	if maxAge, ok := maxAgeSeconds(m.Headers); ok {
		if now.Sub(m.CTime) > time.Duration(maxAge)*time.Second {
			return time.Time{}, false
		}

		return latest, true
	}

	if exp, ok := expiresHeader(m.Headers); ok {
		if now.After(exp) {
			return time.Time{}, false
		}
	}

	return latest, true
}

// maxAgeSeconds extracts max-age (or s-maxage, which takes priority) from
// a Cache-Control header value set.
func maxAgeSeconds(headers map[string][]string) (int, bool) {
	for _, v := range headerValues(headers, "Cache-Control") {
		for _, directive := range strings.Split(v, ",") {
			directive = strings.TrimSpace(directive)

			name, val, ok := strings.Cut(directive, "=")
			if !ok {
				continue
			}

			if strings.EqualFold(strings.TrimSpace(name), "s-maxage") {
				if n, err := strconv.Atoi(strings.TrimSpace(val)); err == nil {
					return n, true
				}
			}
		}
	}

	for _, v := range headerValues(headers, "Cache-Control") {
		for _, directive := range strings.Split(v, ",") {
			directive = strings.TrimSpace(directive)

			name, val, ok := strings.Cut(directive, "=")
			if !ok {
				continue
			}

			if strings.EqualFold(strings.TrimSpace(name), "max-age") {
				if n, err := strconv.Atoi(strings.TrimSpace(val)); err == nil {
					return n, true
				}
			}
		}
	}

	return 0, false
}

func expiresHeader(headers map[string][]string) (time.Time, bool) {
	for _, v := range headerValues(headers, "Expires") {
		if t, err := http.ParseTime(v); err == nil {
			return t, true
		}
	}

	return time.Time{}, false
}

func headerValues(headers map[string][]string, name string) []string {
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}

	return nil
}

// NoStore reports whether headers declares Cache-Control: no-cache or
// no-store, which forbids storing the response at all (spec §4.H "Store
// policy").
func NoStore(headers map[string][]string) bool {
	for _, v := range headerValues(headers, "Cache-Control") {
		for _, directive := range strings.Split(v, ",") {
			d := strings.ToLower(strings.TrimSpace(directive))
			if d == "no-cache" || d == "no-store" {
				return true
			}
		}
	}

	return false
}
