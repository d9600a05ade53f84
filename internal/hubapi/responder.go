package hubapi

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"html"
	"io"
	"strconv"
	"strings"

	"github.com/netresearch/hub-server/internal/addr"
	"github.com/netresearch/hub-server/internal/herr"
	"github.com/netresearch/hub-server/internal/hub"
	"github.com/netresearch/hub-server/internal/node"
	"github.com/netresearch/hub-server/internal/sysctx"
)

// URIPrefix is the mount point the hub data API responder answers under
// (spec §4.G "Hub data API responder on URI prefix /api/hub", §6 "verb
// comes from the URI's third segment ... or from X-Command").
const URIPrefix = "/api/hub"

// MaxUploadBytes is the default max_post_size for the upload verb when a
// responder instance does not override it.
const MaxUploadBytes = 256 << 20

// Responder implements responder.Responder for the hub data API (spec
// §4.I). One instance is registered per vhost, sharing the vhost's Service.
type Responder struct {
	Service        *Service
	MaxUploadSize  int64
	UploadBodyFunc func(req *sysctx.Request, target string) (io.ReadCloser, error) // body reader, installed by internal/web
}

func (r *Responder) PermissionMode() string { return "rvq" }
func (r *Responder) CanPost() bool          { return true }
func (r *Responder) CanUpload() bool        { return true }

func (r *Responder) MaxPostSize() int64 {
	if r.MaxUploadSize > 0 {
		return r.MaxUploadSize
	}

	return MaxUploadBytes
}

// Compile dispatches the request to the named verb and writes the
// negotiated envelope into resp.Body (spec §6 "Content-type negotiation":
// the response formatter picks data-XFR, JSON, json-hash, or HTML by
// X-Accept then Accept).
func (r *Responder) Compile(req *sysctx.Request, resp *sysctx.Response, _ node.Node, a addr.Addr) error {
	if err := sameOrigin(firstHeader(req.Headers, "Referer"), req.Hostname); err != nil {
		return err
	}

	verb := verbFromURI(a, URIPrefix)
	if v, ok := req.XArgs.Get("X-Command"); ok && v != "" {
		verb = v
	}

	rc := hub.NewResolveContext()

	params, err := req.CGI()
	if err != nil {
		return herr.Wrap(herr.IllegalArg, "parsing request body", err)
	}

	switch verb {
	case "upload_progress", "download_progress":
		return r.progress(req, resp)
	case "batch":
		return r.batch(rc, params, resp)
	case "upload":
		return r.upload(req, rc, params, resp)
	case "download":
		return r.download(req, rc, params, resp)
	default:
		env, derr := r.Service.Dispatch(rc, verb, params)
		if derr != nil {
			return derr
		}

		return writeEnvelope(req, resp, env)
	}
}

func verbFromURI(a addr.Addr, prefix string) string {
	rest := addr.TrimPrefix(a, addr.Parse(prefix))

	segs := rest.Segments()
	if len(segs) == 0 {
		return ""
	}

	return segs[0]
}

func firstHeader(headers map[string][]string, name string) string {
	for k, vals := range headers {
		if strings.EqualFold(k, name) && len(vals) > 0 {
			return vals[0]
		}
	}

	return ""
}

// negotiateFormat picks the response formatter by X-Accept, falling back to
// Accept (spec §6 "Content-type negotiation").
func negotiateFormat(req *sysctx.Request) string {
	accept := ""
	if v, ok := req.XArgs.Get("X-Accept"); ok && v != "" {
		accept = v
	} else {
		accept = firstHeader(req.Headers, "Accept")
	}

	switch {
	case strings.Contains(accept, "text/data-xfr"):
		return "data-xfr"
	case strings.Contains(accept, "text/json-hash"):
		return "json-hash"
	case strings.Contains(accept, "application/json"), strings.Contains(accept, "text/json"):
		return "json"
	case accept == "", accept == "*/*":
		return "json"
	default:
		return "html"
	}
}

// writeEnvelope renders env in the format negotiateFormat selects, setting
// the X-Content-Format/X-Content-Encoding/X-Content-Charset response
// headers the spec requires for data-XFR and JSON bodies.
func writeEnvelope(req *sysctx.Request, resp *sysctx.Response, env *Envelope) error {
	switch negotiateFormat(req) {
	case "data-xfr":
		return writeXFREnvelope(resp, env)
	case "json-hash":
		return writeJSONHashEnvelope(resp, env)
	case "html":
		return writeHTMLEnvelope(resp, env)
	default:
		return writeJSONEnvelope(resp, env)
	}
}

func writeJSONEnvelope(resp *sysctx.Response, env *Envelope) error {
	body, err := json.Marshal(env)
	if err != nil {
		return herr.Wrap(herr.Programatic, "encoding response", err)
	}

	resp.Body = body
	resp.ContentType = "application/json"
	resp.Status = 200
	resp.SetHeader("X-Content-Format", "json")
	resp.SetHeader("X-Content-Charset", "utf-8")

	return nil
}

// writeJSONHashEnvelope renders the legacy flat shape: Head's fields at the
// top level alongside the verb's result under "data", instead of the
// {head, body} nesting writeJSONEnvelope produces.
func writeJSONHashEnvelope(resp *sysctx.Response, env *Envelope) error {
	flat := map[string]any{
		"addr":     env.Head.Addr,
		"type":     env.Head.Type,
		"mtime":    env.Head.MTime,
		"size":     env.Head.Size,
		"prev":     env.Head.Prev,
		"content":  env.Head.Content,
		"checksum": env.Head.Checksum,
		"data":     env.Body,
	}

	body, err := json.Marshal(flat)
	if err != nil {
		return herr.Wrap(herr.Programatic, "encoding response", err)
	}

	resp.Body = body
	resp.ContentType = "text/json-hash"
	resp.Status = 200
	resp.SetHeader("X-Content-Format", "json-hash")
	resp.SetHeader("X-Content-Charset", "utf-8")

	return nil
}

// writeXFREnvelope renders the binary data-XFR envelope: a 4-byte
// big-endian length prefix, the head as JSON, then the body as JSON
// (spec §6 "text/data-xfr -> binary XFR envelope with head+body").
func writeXFREnvelope(resp *sysctx.Response, env *Envelope) error {
	headJSON, err := json.Marshal(env.Head)
	if err != nil {
		return herr.Wrap(herr.Programatic, "encoding XFR head", err)
	}

	bodyJSON, err := json.Marshal(env.Body)
	if err != nil {
		return herr.Wrap(herr.Programatic, "encoding XFR body", err)
	}

	var buf bytes.Buffer

	if err := binary.Write(&buf, binary.BigEndian, uint32(len(headJSON))); err != nil {
		return herr.Wrap(herr.Programatic, "encoding XFR length prefix", err)
	}

	buf.Write(headJSON)
	buf.Write(bodyJSON)

	resp.Body = buf.Bytes()
	resp.ContentType = "text/data-xfr"
	resp.Status = 200
	resp.SetHeader("X-Content-Format", "data-xfr")
	resp.SetHeader("X-Content-Encoding", "binary")

	return nil
}

// writeHTMLEnvelope is the fallback formatter for a browser-issued request
// with no JSON/data-XFR Accept: the envelope, escaped, inside a minimal
// document. There is no head-entry accumulator (css/js link list) anywhere
// in this deployment, so head injection is limited to this static
// boilerplate rather than spec §6's full per-responder head-entry merge.
func writeHTMLEnvelope(resp *sysctx.Response, env *Envelope) error {
	body, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return herr.Wrap(herr.Programatic, "encoding response", err)
	}

	var buf bytes.Buffer

	buf.WriteString("<!DOCTYPE html><html><head><title>hub data API</title></head><body><pre>")
	buf.WriteString(html.EscapeString(string(body)))
	buf.WriteString("</pre></body></html>")

	resp.Body = buf.Bytes()
	resp.ContentType = "text/html"
	resp.Status = 200
	resp.SetHeader("X-Content-Format", "html")
	resp.SetHeader("X-Content-Charset", "utf-8")

	return nil
}

func (r *Responder) progress(req *sysctx.Request, resp *sysctx.Response) error {
	id := firstHeader(req.Headers, "X-Progress-ID")
	if id == "" {
		return herr.New(herr.MissingArg, "missing X-Progress-ID header")
	}

	rec, err := r.Service.Xfers.Get(id)
	if err != nil {
		return err
	}

	state := "uploading"
	if rec.Kind == "download" {
		state = "downloading"
	}

	if rec.Err != "" {
		state = "error"
	} else if rec.Completed {
		state = "done"
	}

	body, merr := json.Marshal(struct {
		ID       string `json:"id"`
		Target   string `json:"target"`
		Size     int64  `json:"size"`
		Received int64  `json:"received"`
		State    string `json:"state"`
		Error    string `json:"error,omitempty"`
	}{rec.ID, rec.Target, rec.Total, rec.BytesDone(), state, rec.Err})
	if merr != nil {
		return herr.Wrap(herr.Programatic, "encoding progress", merr)
	}

	resp.Body = body
	resp.ContentType = "application/json"
	resp.Status = 200

	return nil
}

func (r *Responder) batch(rc *hub.ResolveContext, params *node.Mapping, resp *sysctx.Response) error {
	itemsNode, ok := params.Get("batch")
	if !ok {
		return herr.New(herr.MissingArg, "missing parameter: batch")
	}

	seq, ok := itemsNode.(*node.Sequence)
	if !ok {
		return herr.New(herr.IllegalArg, "batch must be an array")
	}

	items := make([]struct {
		Verb   string
		Params *node.Mapping
	}, 0, seq.Len())

	for _, it := range seq.Items() {
		m, ok := it.(*node.Mapping)
		if !ok {
			continue
		}

		verbNode, _ := m.Get("verb")
		vs, _ := verbNode.(*node.Scalar)

		verb := ""
		if vs != nil {
			verb = vs.Text()
		}

		items = append(items, struct {
			Verb   string
			Params *node.Mapping
		}{Verb: verb, Params: m})
	}

	results := r.Service.Batch(rc, items)

	body, err := json.Marshal(results)
	if err != nil {
		return herr.Wrap(herr.Programatic, "encoding batch results", err)
	}

	resp.Body = body
	resp.ContentType = "application/json"
	resp.Status = 200

	return nil
}

func (r *Responder) upload(req *sysctx.Request, rc *hub.ResolveContext, params *node.Mapping, resp *sysctx.Response) error {
	targetStr, err := stringParam(params, "target")
	if err != nil {
		return err
	}

	name, err := stringParam(params, "name")
	if err != nil {
		return err
	}

	replace := optionalStringParam(params, "replace") != ""

	target := addr.Parse(targetStr)
	childAddr := addr.Join(target, name)

	if !replace {
		if _, rerr := r.Service.Hub.Resolve(rc, childAddr); rerr == nil {
			return herr.New(herr.Logical, "upload target already exists: "+childAddr.String())
		}
	}

	if r.UploadBodyFunc == nil {
		return herr.New(herr.Programatic, "hubapi: no upload body source installed")
	}

	body, err := r.UploadBodyFunc(req, childAddr.String())
	if err != nil {
		return herr.Wrap(herr.Programatic, "opening upload body", err)
	}
	defer func() { _ = body.Close() }()

	progressID := firstHeader(req.Headers, "X-Progress-ID")

	var rec *XferRecord
	if progressID != "" {
		total, _ := strconv.ParseInt(firstHeader(req.Headers, "Content-Length"), 10, 64)
		rec = r.Service.Xfers.Start(progressID, childAddr.String(), total, "upload")
	}

	data, err := readAllCapped(body, r.MaxPostSize(), rec)
	if err != nil {
		if rec != nil {
			r.Service.Xfers.Finish(progressID, err.Error())
		}

		return herr.Wrap(herr.Logical, "upload failed", err)
	}

	if werr := r.Service.writeFileBytes(rc, childAddr, data); werr != nil {
		if rec != nil {
			r.Service.Xfers.Finish(progressID, werr.Error())
		}

		return werr
	}

	if rec != nil {
		r.Service.Xfers.Finish(progressID, "")
	}

	resp.Status = 204

	return nil
}

func (r *Responder) download(req *sysctx.Request, rc *hub.ResolveContext, params *node.Mapping, resp *sysctx.Response) error {
	targetStr, err := stringParam(params, "target")
	if err != nil {
		return err
	}

	name, err := stringParam(params, "name")
	if err != nil {
		return err
	}

	uri, err := stringParam(params, "uri")
	if err != nil {
		return err
	}

	target := addr.Parse(targetStr)
	childAddr := addr.Join(target, name)

	progressID := firstHeader(req.Headers, "X-Progress-ID")
	if progressID == "" {
		progressID = childAddr.String()
	}

	rec := r.Service.Xfers.Start(progressID, childAddr.String(), 0, "download")

	var buf strBuilder

	err = r.Service.Download.Fetch(context.Background(), uri, &buf, r.MaxPostSize(), func(n int64) { rec.addBytes(n) })
	if err != nil {
		r.Service.Xfers.Finish(progressID, err.Error())

		return herr.Wrap(herr.Logical, "download transport failure", err)
	}

	if werr := r.Service.writeFileBytes(rc, childAddr, buf.Bytes()); werr != nil {
		r.Service.Xfers.Finish(progressID, werr.Error())

		return werr
	}

	r.Service.Xfers.Finish(progressID, "")

	resp.Status = 204

	return nil
}

// readAllCapped reads from body, enforcing max bytes and feeding rec's
// progress counter, the input-filter hook the spec describes as "used for
// upload progress" (spec §4.G "input_filter").
func readAllCapped(body io.Reader, max int64, rec *XferRecord) ([]byte, error) {
	var out []byte

	buf := make([]byte, 32*1024)

	for {
		n, err := body.Read(buf)
		if n > 0 {
			out = append(out, buf[:n]...)

			if rec != nil {
				rec.addBytes(int64(n))
			}

			if max > 0 && int64(len(out)) > max {
				return nil, herr.New(herr.Logical, "upload exceeds max_post_size")
			}
		}

		if err == io.EOF {
			return out, nil
		}

		if err != nil {
			return nil, err
		}
	}
}

// strBuilder is an io.Writer accumulating bytes, used as the download
// verb's in-memory spool before the fetched content is written through
// writeFileBytes. Every download is buffered here in full, whatever its
// size.
type strBuilder struct {
	b []byte
}

func (s *strBuilder) Write(p []byte) (int, error) {
	s.b = append(s.b, p...)

	return len(p), nil
}

func (s *strBuilder) Bytes() []byte { return s.b }
