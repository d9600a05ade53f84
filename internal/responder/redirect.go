package responder

import (
	"regexp"

	"github.com/netresearch/hub-server/internal/addr"
	"github.com/netresearch/hub-server/internal/node"
	"github.com/netresearch/hub-server/internal/sysctx"
)

// RedirectRule is one entry of an alias/redirect/gone rule table: a URI
// regex, a replacement template (Go's regexp.ReplaceAllString syntax,
// "$1" etc.), and the status it produces.
type RedirectRule struct {
	Pattern     *regexp.Regexp
	Replacement string
	Status      int // 301, 302, or 410 (gone — Replacement is ignored)
}

// Redirect implements the redirect responder (spec §4.G "Redirect
// responder"): ordered alias, redirect, and gone tables, evaluated in that
// order, first match wins.
type Redirect struct {
	Alias    []RedirectRule
	Redirect []RedirectRule
	Gone     []RedirectRule
}

func (r *Redirect) PermissionMode() string { return "r" }
func (r *Redirect) CanPost() bool          { return false }
func (r *Redirect) CanUpload() bool        { return false }
func (r *Redirect) MaxPostSize() int64     { return 0 }

// Compile finds the first matching rule across Alias, Redirect, then Gone,
// and sets resp accordingly. target and a are unused; redirect rules match
// on the raw request URI, not a resolved hub node.
func (r *Redirect) Compile(req *sysctx.Request, resp *sysctx.Response, _ node.Node, _ addr.Addr) error {
	for _, table := range [][]RedirectRule{r.Alias, r.Redirect, r.Gone} {
		for _, rule := range table {
			if !rule.Pattern.MatchString(req.URI) {
				continue
			}

			if rule.Status == 410 {
				resp.Status = 410

				return nil
			}

			resp.Status = rule.Status
			resp.SetHeader("Location", rule.Pattern.ReplaceAllString(req.URI, rule.Replacement))

			return nil
		}
	}

	return node.ErrNotFound
}
