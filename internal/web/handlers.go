package web

import (
	"bytes"
	"io"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"github.com/netresearch/hub-server/internal/node"
	"github.com/netresearch/hub-server/internal/sysctx"
)

// maxInternalRedirects bounds the Directory responder's index-file /
// sitemap-fallback internal restart (spec §4.G "internal_redirect"), which
// the lifecycle driver itself does not loop on — internal/web performs the
// re-dispatch since it alone owns the request/response translation.
const maxInternalRedirects = 5

// requestFromCtx builds a sysctx.Request from an inbound Fiber request,
// carrying every header, cookie, and query parameter through untouched —
// internal/lifecycle is the only place that interprets any of it.
func requestFromCtx(c *fiber.Ctx) *sysctx.Request {
	req := sysctx.New()

	req.Method = c.Method()
	req.Hostname = c.Hostname()
	req.URI = c.Path()

	req.Scheme = "http"
	if c.Protocol() == "https" {
		req.Scheme = "https"
	}

	fc := c.Context()

	fc.QueryArgs().VisitAll(func(key, value []byte) {
		req.QS.Add(string(key), string(value))
	})

	fc.Request.Header.VisitAll(func(key, value []byte) {
		req.Headers[string(key)] = append(req.Headers[string(key)], string(value))
	})

	fc.Request.Header.VisitAllCookie(func(key, value []byte) {
		req.Cookies[string(key)] = string(value)
	})

	req.Page = sysctx.Page{FullURI: string(fc.URI().FullURI()), URI: req.URI, Href: req.URI}

	req.SetCGILoader(func() (*node.Mapping, error) {
		return cgiFromCtx(c), nil
	})

	req.SetBodyLoader(func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(c.Body())), nil
	})

	return req
}

// hubHandler is the catch-all Fiber route that bridges every request not
// claimed by /sys/login, /sys/health*, /sys/debug/*, or /static into the
// lifecycle driver (routing-layer endpoints vs. hub-resolvable addresses).
func (a *App) hubHandler(c *fiber.Ctx) error {
	req := requestFromCtx(c)

	resp, err := a.driveWithRedirects(req)
	if err != nil {
		return handle500(c, err)
	}

	if resp.Status == 0 {
		return c.Next()
	}

	return writeResponse(c, resp)
}

// driveWithRedirects calls the driver once, then follows any
// Directory-responder internal restart (spec §4.G "internal_redirect")
// until it stops producing one or the hop bound is reached.
func (a *App) driveWithRedirects(req *sysctx.Request) (*sysctx.Response, error) {
	resp, err := a.driver.Handle(req)
	if err != nil {
		return nil, err
	}

	for hop := 0; resp.InternalRedirect != "" && hop < maxInternalRedirects; hop++ {
		next := *req
		next.URI = resp.InternalRedirect
		next.Page = sysctx.Page{FullURI: resp.InternalRedirect, URI: resp.InternalRedirect, Href: resp.InternalRedirect}

		resp, err = a.driver.Handle(&next)
		if err != nil {
			return nil, err
		}
	}

	return resp, nil
}

func writeResponse(c *fiber.Ctx, resp *sysctx.Response) error {
	for name, vals := range resp.Headers {
		if strings.EqualFold(name, "Content-Type") {
			continue
		}

		for _, v := range vals {
			c.Response().Header.Add(name, v)
		}
	}

	if resp.ContentType != "" {
		c.Set(fiber.HeaderContentType, resp.ContentType)
	}

	if resp.ETag != "" {
		c.Set(fiber.HeaderETag, resp.ETag)
	}

	c.Status(statusOrDefault(resp.Status))

	if resp.SendFile != "" {
		return c.SendFile(resp.SendFile, false)
	}

	if resp.Body != nil {
		return c.Send(resp.Body)
	}

	return nil
}

func statusOrDefault(status int) int {
	if status == 0 {
		return fiber.StatusOK
	}

	return status
}

// cgiFromCtx parses the request's query string and body into the ordered
// Mapping handlers read via Request.CGI(), matching the teacher's own
// lazy-body-parse idiom. The body parser is chosen by Content-Type (or, if
// absent, X-Content-Format) among urlencoded form, JSON, multipart, and
// data-XFR, since the hub data API's store/insert verbs take their target
// Mapping from whichever of these the client sent.
func cgiFromCtx(c *fiber.Ctx) *node.Mapping {
	m := node.NewMapping()

	c.Context().QueryArgs().VisitAll(func(key, value []byte) {
		m.Set(string(key), node.NewText(string(value)))
	})

	switch bodyFormat(c) {
	case "urlencoded":
		c.Request().PostArgs().VisitAll(func(key, value []byte) {
			m.Set(string(key), node.NewText(string(value)))
		})
	case "json":
		parseJSONBody(m, c.Body())
	case "multipart":
		parseMultipartBody(m, c)
	case "data-xfr":
		parseXFRBody(m, c.Body())
	}

	return m
}

// bodyFormat picks the request-body parser per Content-Type, falling back
// to X-Content-Format when Content-Type is absent or generic (a raw POST
// from a non-browser client, per spec §4.J step 5).
func bodyFormat(c *fiber.Ctx) string {
	ct := string(c.Request().Header.ContentType())

	switch {
	case strings.HasPrefix(ct, fiber.MIMEApplicationForm):
		return "urlencoded"
	case strings.HasPrefix(ct, fiber.MIMEApplicationJSON):
		return "json"
	case strings.HasPrefix(ct, fiber.MIMEMultipartForm):
		return "multipart"
	case strings.HasPrefix(ct, "text/data-xfr"):
		return "data-xfr"
	}

	switch strings.ToLower(c.Get("X-Content-Format")) {
	case "json":
		return "json"
	case "multipart":
		return "multipart"
	case "data-xfr":
		return "data-xfr"
	}

	return ""
}

// parseJSONBody decodes a JSON object body directly into m's top-level
// entries. A non-object body (array, scalar) has nowhere to go in a flat
// CGI Mapping, so it is ignored rather than rejected here — verbs that
// require a body still fail their own argument checks.
func parseJSONBody(m *node.Mapping, body []byte) {
	if len(body) == 0 {
		return
	}

	n, err := node.ParseJSONFile(body)
	if err != nil {
		log.Debug().Err(err).Msg("web: request body is not valid JSON, ignoring")

		return
	}

	obj, ok := n.(*node.Mapping)
	if !ok {
		return
	}

	for _, k := range obj.Keys() {
		v, _ := obj.Get(k)
		m.Set(k, v)
	}
}

// parseMultipartBody copies multipart form fields into m as text, and each
// uploaded file as a binary scalar keyed by its field name, so a responder
// reading req.CGI() sees uploaded content the same way it sees any other
// argument.
func parseMultipartBody(m *node.Mapping, c *fiber.Ctx) {
	form, err := c.MultipartForm()
	if err != nil {
		log.Debug().Err(err).Msg("web: request is not a valid multipart body, ignoring")

		return
	}

	for key, values := range form.Value {
		if len(values) > 0 {
			m.Set(key, node.NewText(values[0]))
		}
	}

	for key, files := range form.File {
		if len(files) == 0 {
			continue
		}

		fh := files[0]

		f, err := fh.Open()
		if err != nil {
			continue
		}

		data, err := io.ReadAll(f)
		f.Close()

		if err != nil {
			continue
		}

		m.Set(key, node.NewBinary(data))
	}
}

// parseXFRBody handles the legacy binary data-XFR envelope. Full head+body
// decoding isn't wired yet (nothing in this deployment emits data-XFR
// requests), so the raw envelope is carried through as a single binary
// entry rather than silently dropped; a verb expecting structured fields
// from it will fail its own argument check instead of crashing here.
func parseXFRBody(m *node.Mapping, body []byte) {
	if len(body) == 0 {
		return
	}

	m.Set("_xfr_raw", node.NewBinary(body))
}
