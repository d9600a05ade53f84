package web

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/netresearch/hub-server/internal/node"
	"github.com/netresearch/hub-server/internal/options"
	"github.com/netresearch/hub-server/internal/sysctx"
)

func assertHTTPStatus(t *testing.T, resp *http.Response, expectedStatus int) {
	t.Helper()

	if resp.StatusCode != expectedStatus {
		t.Errorf("Expected status %d, got %d", expectedStatus, resp.StatusCode)
	}
}

func closeHTTPResponse(t *testing.T, resp *http.Response) {
	t.Helper()

	if err := resp.Body.Close(); err != nil {
		t.Logf("Failed to close response body: %v", err)
	}
}

// newHandlersTestApp builds a full App over a hub root (hub.New serves
// opts.HubRoot directly as address "/") seeded with one plain text file,
// one index.html (so / resolves through the directory responder) and a
// sub/ directory; the /sys/ address the tests also request is forbidden
// by the lifecycle driver itself, with no config entry.
func newHandlersTestApp(t *testing.T) *App {
	t.Helper()

	root := t.TempDir()

	if err := os.MkdirAll(filepath.Join(root, "sub"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	if err := os.WriteFile(filepath.Join(root, "index.html"), []byte("<html>hi</html>"), 0o644); err != nil {
		t.Fatalf("write index.html: %v", err)
	}

	if err := os.WriteFile(filepath.Join(root, "hello.txt"), []byte("hello world"), 0o644); err != nil {
		t.Fatalf("write hello.txt: %v", err)
	}

	opts := &options.Opts{
		HubRoot:         root,
		SessionDuration: 30 * time.Minute,
		CookieSecure:    false,
	}

	app, err := NewApp(opts)
	if err != nil {
		t.Fatalf("NewApp: %v", err)
	}

	t.Cleanup(func() { app.rateLimiter.Stop() })

	return app
}

func TestHubHandlerServesPlainFile(t *testing.T) {
	app := newHandlersTestApp(t)

	req := httptest.NewRequest(http.MethodGet, "/hello.txt", http.NoBody)

	resp, err := app.fiber.Test(req)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer closeHTTPResponse(t, resp)

	assertHTTPStatus(t, resp, fiber.StatusOK)
}

func TestHubHandlerDirectoryWithoutTrailingSlashRedirects(t *testing.T) {
	app := newHandlersTestApp(t)

	req := httptest.NewRequest(http.MethodGet, "/sub", http.NoBody)

	resp, err := app.fiber.Test(req)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer closeHTTPResponse(t, resp)

	// spec §8 boundary behavior: a directory URI missing its trailing slash
	// gets an external redirect adding one, never served in place.
	assertHTTPStatus(t, resp, fiber.StatusFound)

	if loc := resp.Header.Get("Location"); loc != "/sub/" {
		t.Errorf("expected redirect to /sub/, got %q", loc)
	}
}

func TestHubHandlerDirectoryServesIndex(t *testing.T) {
	app := newHandlersTestApp(t)

	req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)

	resp, err := app.fiber.Test(req)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer closeHTTPResponse(t, resp)

	assertHTTPStatus(t, resp, fiber.StatusOK)
}

func TestHubHandlerSysPrefixForbidden(t *testing.T) {
	app := newHandlersTestApp(t)

	req := httptest.NewRequest(http.MethodGet, "/sys/request/anything", http.NoBody)

	resp, err := app.fiber.Test(req)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer closeHTTPResponse(t, resp)

	// /sys/login, /sys/health* etc. are routed directly by Fiber and never
	// reach map-to-storage; any other /sys/* address is always 403 (spec §6).
	assertHTTPStatus(t, resp, fiber.StatusForbidden)
}

func TestHubHandlerMissingFileIs404(t *testing.T) {
	app := newHandlersTestApp(t)

	req := httptest.NewRequest(http.MethodGet, "/does-not-exist.txt", http.NoBody)

	resp, err := app.fiber.Test(req)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer closeHTTPResponse(t, resp)

	assertHTTPStatus(t, resp, fiber.StatusNotFound)
}

func TestCGIFromCtxParsesQueryAndForm(t *testing.T) {
	f := fiber.New()

	var captured *node.Mapping

	f.Post("/cgi", func(c *fiber.Ctx) error {
		captured = cgiFromCtx(c)

		return c.SendStatus(fiber.StatusOK)
	})

	httpReq := httptest.NewRequest(http.MethodPost, "/cgi?a=1", strings.NewReader("b=2"))
	httpReq.Header.Set("Content-Type", fiber.MIMEApplicationForm)

	resp, err := f.Test(httpReq)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer closeHTTPResponse(t, resp)

	if captured == nil {
		t.Fatal("expected cgiFromCtx to populate a Mapping")
	}

	if v, ok := captured.Get("a"); !ok {
		t.Error("expected query parameter 'a' to be present")
	} else if sc, ok := v.(*node.Scalar); !ok || sc.Text() != "1" {
		t.Errorf("expected a=1, got %v", v)
	}
}

func TestCGIFromCtxParsesJSONBody(t *testing.T) {
	f := fiber.New()

	var captured *node.Mapping

	f.Post("/cgi", func(c *fiber.Ctx) error {
		captured = cgiFromCtx(c)

		return c.SendStatus(fiber.StatusOK)
	})

	httpReq := httptest.NewRequest(http.MethodPost, "/cgi", strings.NewReader(`{"target":"/projects","name":"foo"}`))
	httpReq.Header.Set("Content-Type", fiber.MIMEApplicationJSON)

	resp, err := f.Test(httpReq)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer closeHTTPResponse(t, resp)

	if captured == nil {
		t.Fatal("expected cgiFromCtx to populate a Mapping")
	}

	if v, ok := captured.Get("target"); !ok {
		t.Error("expected JSON field 'target' to be present")
	} else if sc, ok := v.(*node.Scalar); !ok || sc.Text() != "/projects" {
		t.Errorf("expected target=/projects, got %v", v)
	}

	if v, ok := captured.Get("name"); !ok {
		t.Error("expected JSON field 'name' to be present")
	} else if sc, ok := v.(*node.Scalar); !ok || sc.Text() != "foo" {
		t.Errorf("expected name=foo, got %v", v)
	}
}

func TestStatusOrDefault(t *testing.T) {
	if got := statusOrDefault(0); got != fiber.StatusOK {
		t.Errorf("expected default status 200, got %d", got)
	}

	if got := statusOrDefault(404); got != 404 {
		t.Errorf("expected status passthrough, got %d", got)
	}
}

func TestRequestFromCtxMergesXArgsSources(t *testing.T) {
	f := fiber.New()

	var captured *sysctx.Request

	f.Get("/x", func(c *fiber.Ctx) error {
		captured = requestFromCtx(c)

		return c.SendStatus(fiber.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/x?X-Foo=bar", http.NoBody)
	req.Header.Set("X-Command", "fetch")

	resp, err := f.Test(req)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer closeHTTPResponse(t, resp)

	if captured == nil {
		t.Fatal("expected requestFromCtx to run")
	}

	captured.MergeXArgs()

	if v, ok := captured.XArgs.Get("X-Command"); !ok || v != "fetch" {
		t.Errorf("expected X-Command header merged into XArgs, got %q ok=%v", v, ok)
	}

	if v, ok := captured.XArgs.Get("X-Foo"); !ok || v != "bar" {
		t.Errorf("expected X-Foo query param merged into XArgs, got %q ok=%v", v, ok)
	}
}
