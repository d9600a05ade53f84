package responder

import (
	"regexp"

	"github.com/netresearch/hub-server/internal/addr"
	"github.com/netresearch/hub-server/internal/node"
	"github.com/netresearch/hub-server/internal/sysctx"
)

// Responder is the surface every concrete responder implements (spec
// §4.G). Compile mutates resp in place; it is called only after the
// permission check for PermissionMode has already passed.
type Responder interface {
	PermissionMode() string
	CanPost() bool
	CanUpload() bool
	MaxPostSize() int64
	Compile(req *sysctx.Request, resp *sysctx.Response, target node.Node, a addr.Addr) error
}

// Criteria are the selection predicates an Entry evaluates against the
// current request (spec §4.G). A zero-value field is not checked; all
// set fields must hold for the entry to match.
type Criteria struct {
	Typeof      string
	TypeofMatch *regexp.Regexp
	URI         string
	URIMatch    *regexp.Regexp
	ParamMatch  map[string]*regexp.Regexp // each key's query param must match its regex
	XArgsMatch  map[string]*regexp.Regexp // same, over XArgs

	// MatchMethod, when set, is consulted in addition to the above; both
	// must pass. MatchRequest, when set, short-circuits selection to true
	// regardless of every other field (spec §4.G "static match_request").
	MatchMethod  func(uri string, typeOf string) bool
	MatchRequest func(uri string, target node.Node) bool
}

// Entry pairs Criteria with a Responder factory. Factory returning nil
// means "criteria matched syntactically but this entry declines the
// request" (spec §4.G "first whose criteria all hold and which returns a
// non-null instance").
type Entry struct {
	Criteria Criteria
	Factory  func() Responder
}

// Registry holds the ordered responder table; later-registered entries
// take priority (spec §4.G "reverse-insertion order").
type Registry struct {
	entries []Entry
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register appends entry, giving it priority over every entry already
// registered.
func (r *Registry) Register(e Entry) {
	r.entries = append(r.entries, e)
}

// Select evaluates the registry in reverse-insertion order against uri,
// typeOf (the target node's typeof string), qs, and xargs, returning the
// first matching non-nil Responder.
func (r *Registry) Select(uri, typeOf string, target node.Node, qs, xargs *sysctx.Params) (Responder, bool) {
	for i := len(r.entries) - 1; i >= 0; i-- {
		e := r.entries[i]

		if e.Criteria.MatchRequest != nil && e.Criteria.MatchRequest(uri, target) {
			if resp := e.Factory(); resp != nil {
				return resp, true
			}

			continue
		}

		if !criteriaMatch(e.Criteria, uri, typeOf, qs, xargs) {
			continue
		}

		if resp := e.Factory(); resp != nil {
			return resp, true
		}
	}

	return nil, false
}

func criteriaMatch(c Criteria, uri, typeOf string, qs, xargs *sysctx.Params) bool {
	if c.Typeof != "" && c.Typeof != typeOf {
		return false
	}

	if c.TypeofMatch != nil && !c.TypeofMatch.MatchString(typeOf) {
		return false
	}

	if c.URI != "" && c.URI != uri {
		return false
	}

	if c.URIMatch != nil && !c.URIMatch.MatchString(uri) {
		return false
	}

	for key, re := range c.ParamMatch {
		v, ok := qs.Get(key)
		if !ok || !re.MatchString(v) {
			return false
		}
	}

	for key, re := range c.XArgsMatch {
		v, ok := xargs.Get(key)
		if !ok || !re.MatchString(v) {
			return false
		}
	}

	if c.MatchMethod != nil && !c.MatchMethod(uri, typeOf) {
		return false
	}

	return true
}
