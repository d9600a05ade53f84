package responder

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/netresearch/hub-server/internal/addr"
	"github.com/netresearch/hub-server/internal/hub"
	"github.com/netresearch/hub-server/internal/imaging"
	"github.com/netresearch/hub-server/internal/node"
	"github.com/netresearch/hub-server/internal/sysctx"
)

// ImageURIPattern matches the three image extensions the Image responder
// triggers on (spec §4.G "Image responder").
var ImageURIPattern = regexp.MustCompile(`(?i)\.(jpe?g|gif|png)$`)

// Image implements the Image responder: resize/watermark transform,
// served via Response.SendFile (spec §4.G, §4.H "send_file").
type Image struct {
	Transformer     *imaging.Transformer
	WatermarkPrefix string // hub address prefix forcing a watermark even without resize=
	WatermarkPath   string
}

func (im *Image) PermissionMode() string { return "r" }
func (im *Image) CanPost() bool          { return false }
func (im *Image) CanUpload() bool        { return false }
func (im *Image) MaxPostSize() int64     { return 0 }

// Compile resolves the requested resize/attach options from the query
// string and runs the transform, setting resp.SendFile to the generated
// variant's path.
func (im *Image) Compile(req *sysctx.Request, resp *sysctx.Response, target node.Node, a addr.Addr) error {
	file, ok := target.(*hub.File)
	if !ok {
		return node.ErrWrongKind
	}

	opts := imaging.ResizeOpts{}

	if resize, ok := req.QS.Get("resize"); ok {
		w, h, err := parseResize(resize)
		if err != nil {
			return err
		}

		opts.Width, opts.Height = w, h
	}

	if strings.HasPrefix(a.String(), im.WatermarkPrefix) && im.WatermarkPrefix != "" {
		opts.Watermark = im.WatermarkPath
	}

	if _, err := file.GetRawContent(); err != nil { // confirms the file is readable before handing its path to the transformer
		return err
	}

	out, err := im.Transformer.Transform(file.FSPath(), opts)
	if err != nil {
		return err
	}

	resp.SendFile = out

	if _, attach := req.QS.Get("attach"); attach {
		resp.SetHeader("Content-Disposition", "attachment")
	}

	return nil
}

func parseResize(spec string) (int, int, error) {
	parts := strings.SplitN(spec, "x", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("responder: malformed resize=%q", spec)
	}

	w, err := strconv.Atoi(parts[0])
	if err != nil && parts[0] != "" {
		return 0, 0, fmt.Errorf("responder: malformed resize width in %q", spec)
	}

	h, err := strconv.Atoi(parts[1])
	if err != nil && parts[1] != "" {
		return 0, 0, fmt.Errorf("responder: malformed resize height in %q", spec)
	}

	return w, h, nil
}
