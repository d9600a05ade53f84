package web

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/netresearch/hub-server/internal/options"
)

// newHealthTestApp builds a full App rooted at a throwaway hub directory,
// exercising the real construction path (internal/hub, internal/rcache,
// internal/session) rather than hand-assembling App's fields.
func newHealthTestApp(t *testing.T) *App {
	t.Helper()

	root := t.TempDir()

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

func decodeJSONBody(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("reading body: %v", err)
	}

	var out map[string]interface{}
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatalf("response is not valid JSON: %v (%q)", err, body)
	}

	return out
}

func TestHealthHandler(t *testing.T) {
	app := newHealthTestApp(t)

	req := httptest.NewRequest(http.MethodGet, "/sys/health", http.NoBody)

	resp, err := app.fiber.Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != fiber.StatusOK && resp.StatusCode != fiber.StatusServiceUnavailable {
		t.Fatalf("expected status 200 or 503, got %d", resp.StatusCode)
	}

	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected JSON content type, got %q", ct)
	}

	body := decodeJSONBody(t, resp)

	for _, field := range []string{"overall_healthy", "hub", "config", "cache"} {
		if _, ok := body[field]; !ok {
			t.Errorf("response should contain %q field, got %v", field, body)
		}
	}

	if body["hub"] != "healthy" {
		t.Errorf("expected hub=healthy for a freshly created hub root, got %v", body["hub"])
	}
}

func TestReadinessHandler(t *testing.T) {
	app := newHealthTestApp(t)

	req := httptest.NewRequest(http.MethodGet, "/sys/health/ready", http.NoBody)

	resp, err := app.fiber.Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body := decodeJSONBody(t, resp)

	status, ok := body["status"]
	if !ok {
		t.Fatal("response should contain 'status' field")
	}

	if status != "ready" && status != "not ready" {
		t.Errorf("unexpected status %v", status)
	}
}

func TestLivenessHandler(t *testing.T) {
	app := newHealthTestApp(t)

	req := httptest.NewRequest(http.MethodGet, "/sys/health/live", http.NoBody)

	resp, err := app.fiber.Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("liveness should always return 200, got %d", resp.StatusCode)
	}

	body := decodeJSONBody(t, resp)
	if body["status"] != "alive" {
		t.Errorf("expected status=alive, got %v", body["status"])
	}
}
