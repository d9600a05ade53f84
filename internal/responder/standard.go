package responder

import (
	"fmt"

	"github.com/netresearch/hub-server/internal/addr"
	"github.com/netresearch/hub-server/internal/hub"
	"github.com/netresearch/hub-server/internal/node"
	"github.com/netresearch/hub-server/internal/sysctx"
)

// Formatter renders a Node into a response body and content type, the
// "template engine and optional formatter" step of the Standard/Data
// responders (spec §4.G). The default formatter below covers every
// built-in Node variant; a deployment may supply its own for, e.g., a
// Markdown-to-HTML pipeline.
type Formatter func(n node.Node) (body []byte, contentType string, err error)

// DefaultFormatter renders Scalars as their raw text/bytes and
// Mapping/Sequence as order-preserving JSON, matching the hub's own
// structured-data wire format.
func DefaultFormatter(n node.Node) ([]byte, string, error) {
	switch v := n.(type) {
	case *node.Scalar:
		if v.IsBinary() {
			return v.Bytes(), "application/octet-stream", nil
		}

		return v.Bytes(), "text/plain; charset=utf-8", nil
	case *node.Mapping, *node.Sequence:
		body, err := node.EncodeJSONFile(v)
		if err != nil {
			return nil, "", err
		}

		return body, "application/json", nil
	default:
		return nil, "", fmt.Errorf("responder: no formatter for kind %v", n.Kind())
	}
}

// Standard implements the Standard/Data/Empty responder family (spec §4.G):
// format the resolved target through Format, or emit an empty body when
// target is nil (the Empty responder's case — used for addresses that
// resolve to a directory listing placeholder or a void code result).
type Standard struct {
	Format      Formatter
	Mode        string
	PostAllowed bool
	MaxBody     int64
}

// NewStandard returns a Standard responder using DefaultFormatter.
func NewStandard() *Standard {
	return &Standard{Format: DefaultFormatter, Mode: "r"}
}

func (s *Standard) PermissionMode() string { return s.Mode }
func (s *Standard) CanPost() bool          { return s.PostAllowed }
func (s *Standard) CanUpload() bool        { return false }
func (s *Standard) MaxPostSize() int64     { return s.MaxBody }

// Compile formats target into resp's body.
func (s *Standard) Compile(_ *sysctx.Request, resp *sysctx.Response, target node.Node, _ addr.Addr) error {
	if target == nil {
		resp.Status = 204

		return nil
	}

	if f, ok := target.(*hub.File); ok {
		data, err := f.GetData()
		if err != nil {
			return err
		}

		target = data
	}

	format := s.Format
	if format == nil {
		format = DefaultFormatter
	}

	body, ct, err := format(target)
	if err != nil {
		return err
	}

	resp.Body = body
	resp.ContentType = ct
	resp.Cacheable = true

	return nil
}

// Exec implements the Exec responder: target must be a Code node; its
// return value is formatted the same way Standard formats data (spec §4.G
// "Format the target Node (parsed content, code result, empty body)").
type Exec struct {
	Format Formatter
	Mode   string
}

// NewExec returns an Exec responder using DefaultFormatter.
func NewExec() *Exec {
	return &Exec{Format: DefaultFormatter, Mode: "rx"}
}

func (e *Exec) PermissionMode() string { return e.Mode }
func (e *Exec) CanPost() bool          { return false }
func (e *Exec) CanUpload() bool        { return false }
func (e *Exec) MaxPostSize() int64     { return 0 }

// Compile invokes target's Code with the request's CGI parameters and
// formats the result.
func (e *Exec) Compile(req *sysctx.Request, resp *sysctx.Response, target node.Node, a addr.Addr) error {
	code, ok := target.(*node.Code)
	if !ok {
		return node.ErrWrongKind
	}

	params, err := req.CGI()
	if err != nil {
		return err
	}

	result, err := code.Invoke(params)
	if err != nil {
		return err
	}

	format := e.Format
	if format == nil {
		format = DefaultFormatter
	}

	if result == nil {
		resp.Status = 204

		return nil
	}

	body, ct, err := format(result)
	if err != nil {
		return err
	}

	resp.Body = body
	resp.ContentType = ct

	return nil
}
