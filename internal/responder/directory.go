package responder

import (
	"strings"

	"github.com/netresearch/hub-server/internal/addr"
	"github.com/netresearch/hub-server/internal/hub"
	"github.com/netresearch/hub-server/internal/node"
	"github.com/netresearch/hub-server/internal/sysctx"
)

// Directory implements the directory responder (spec §4.G "Directory
// responder"): redirect to add a trailing slash, then try each configured
// index filename, then fall back to the configured sitemap address, else
// fail not-found.
type Directory struct {
	IndexNames  []string
	SitemapAddr string
}

func (d *Directory) PermissionMode() string { return "r" }
func (d *Directory) CanPost() bool          { return false }
func (d *Directory) CanUpload() bool        { return false }
func (d *Directory) MaxPostSize() int64     { return 0 }

// Compile runs the directory responder's three-step decision against dir,
// the Directory node already resolved for a.
func (d *Directory) Compile(req *sysctx.Request, resp *sysctx.Response, target node.Node, a addr.Addr) error {
	if !strings.HasSuffix(req.URI, "/") {
		resp.Status = 302
		resp.SetHeader("Location", req.URI+"/")

		return nil
	}

	dir, ok := target.(*hub.Directory)
	if !ok {
		return node.ErrWrongKind
	}

	for _, name := range d.IndexNames {
		if _, err := dir.Get(name); err == nil {
			resp.InternalRedirect = addr.Join(a, name).String()

			return nil
		}
	}

	if d.SitemapAddr != "" {
		resp.InternalRedirect = d.SitemapAddr

		return nil
	}

	return node.ErrNotFound
}
