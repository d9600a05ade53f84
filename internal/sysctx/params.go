package sysctx

import "strings"

// Pair is one (key, value) entry in a Params multimap.
type Pair struct {
	Key   string
	Value string
}

// Params is an ordered multimap: keys may repeat, and Pairs() always
// returns entries in the order they were added. Used for query strings and
// XArgs, both of which the request fingerprint (rtag) hashes in original
// order (spec §4.E).
type Params struct {
	pairs         []Pair
	caseInsensitive bool
}

// NewParams returns an empty, case-sensitive Params (used for qs).
func NewParams() *Params {
	return &Params{}
}

// NewCaseInsensitiveParams returns an empty Params whose Get/Add treat keys
// case-insensitively (used for XArgs, whose names are HTTP header names).
func NewCaseInsensitiveParams() *Params {
	return &Params{caseInsensitive: true}
}

func (p *Params) norm(key string) string {
	if p.caseInsensitive {
		return strings.ToLower(key)
	}

	return key
}

// Add appends a new (key, value) pair, preserving any existing pairs with
// the same key.
func (p *Params) Add(key, value string) {
	p.pairs = append(p.pairs, Pair{Key: key, Value: value})
}

// Get returns the first value stored under key, if any.
func (p *Params) Get(key string) (string, bool) {
	nk := p.norm(key)

	for _, pr := range p.pairs {
		if p.norm(pr.Key) == nk {
			return pr.Value, true
		}
	}

	return "", false
}

// All returns every value stored under key, in insertion order.
func (p *Params) All(key string) []string {
	nk := p.norm(key)

	var out []string

	for _, pr := range p.pairs {
		if p.norm(pr.Key) == nk {
			out = append(out, pr.Value)
		}
	}

	return out
}

// Pairs returns every entry in insertion order.
func (p *Params) Pairs() []Pair {
	out := make([]Pair, len(p.pairs))
	copy(out, p.pairs)

	return out
}

// Len reports the number of entries.
func (p *Params) Len() int { return len(p.pairs) }
