package session

import (
	"fmt"
	"regexp"
	"strings"
)

// clause is one "<scope>:<name>=<modes>" entry within a rule (spec §4.F
// "Permissions"). scope is 'u', 'g', or '*'; name is empty for '*'.
type clause struct {
	scope rune
	name  string
	modes string
	stop  bool // true when modes was ALL/NONE or an uppercase mode letter set
	allow bool // true for ALL, false for NONE; meaningless unless modes=="" (see stop)
	none  bool
}

// Pattern is one entry of the ordered `permissions` config map: a URI regex
// and the ordered rule clauses that apply when it matches.
type Pattern struct {
	Regex   *regexp.Regexp
	Clauses []clause
}

// Table is the full ordered permissions config, evaluated top-to-bottom
// per pattern, each pattern's clauses left-to-right (spec §4.F
// "Evaluation").
type Table struct {
	patterns []Pattern
}

// NewTable builds a Table from an ordered list of (regex, rule-string)
// pairs, matching the ordered-map shape the hashfile config format
// preserves for the `permissions` key.
func NewTable(entries []struct{ Pattern, Rule string }) (*Table, error) {
	t := &Table{}

	for _, e := range entries {
		re, err := regexp.Compile(e.Pattern)
		if err != nil {
			return nil, fmt.Errorf("session: invalid permission pattern %q: %w", e.Pattern, err)
		}

		clauses, err := parseRule(e.Rule)
		if err != nil {
			return nil, fmt.Errorf("session: invalid permission rule %q: %w", e.Rule, err)
		}

		t.patterns = append(t.patterns, Pattern{Regex: re, Clauses: clauses})
	}

	return t, nil
}

func parseRule(rule string) ([]clause, error) {
	var out []clause

	for _, part := range strings.Split(rule, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		lhs, modes, ok := strings.Cut(part, "=")
		if !ok {
			return nil, fmt.Errorf("missing '=' in clause %q", part)
		}

		lhs = strings.TrimSpace(lhs)
		modes = strings.TrimSpace(modes)

		var c clause

		if lhs == "*" {
			c.scope = '*'
		} else {
			scope, name, ok := strings.Cut(lhs, ":")
			if !ok || len(scope) != 1 {
				return nil, fmt.Errorf("malformed scope in clause %q", part)
			}

			c.scope = rune(scope[0])
			c.name = name
		}

		switch modes {
		case "ALL":
			c.stop = true
			c.allow = true
		case "NONE":
			c.stop = true
			c.none = true
		default:
			c.modes = modes
			// An uppercase mode letter set means "stop after this rule"
			// (spec §4.F). A set containing any lowercase letter is not a
			// stop clause.
			c.stop = modes == strings.ToUpper(modes) && strings.ToLower(modes) != modes
		}

		out = append(out, c)
	}

	return out, nil
}

// Allow evaluates whether principal (nil for anonymous) may access uri
// with mode (one or more letters from "rwxvq", every one of which a rule
// must grant), per spec §4.F "Evaluation".
func (t *Table) Allow(uri string, principal *Principal, mode string) bool {
	mode = strings.ToLower(mode)

	matchedAny := false
	decision := false // default: deny, once any pattern has matched

	for _, p := range t.patterns {
		if !p.Regex.MatchString(uri) {
			continue
		}

		matchedAny = true

		scopeMatched := false

		for _, c := range p.Clauses {
			if c.scope == '*' && scopeMatched {
				continue
			}

			if !clauseAppliesTo(c, principal) {
				continue
			}

			if c.scope != '*' {
				scopeMatched = true
			}

			if c.none {
				return false
			}

			if c.allow {
				return true
			}

			satisfied := modeSatisfied(mode, c.modes)
			if satisfied {
				decision = true
			}

			if c.stop {
				return satisfied
			}
		}
	}

	if !matchedAny {
		return true
	}

	return decision
}

// modeSatisfied reports whether every letter of mode appears in the
// rule's modes, case-insensitively — "every letter of the requested mode
// (case-insensitive) to appear in the rule's modes" (spec §4.F).
func modeSatisfied(mode, ruleModes string) bool {
	lower := strings.ToLower(ruleModes)

	for _, r := range mode {
		if !strings.ContainsRune(lower, r) {
			return false
		}
	}

	return true
}

func clauseAppliesTo(c clause, principal *Principal) bool {
	switch c.scope {
	case '*':
		return true
	case 'u':
		return principal != nil && principal.Username == c.name
	case 'g':
		if principal == nil {
			return false
		}

		for _, g := range principal.Groups {
			if g == c.name {
				return true
			}
		}

		return false
	default:
		return false
	}
}
