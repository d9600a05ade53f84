package lifecycle_test

import (
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/gofiber/storage/memory/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netresearch/hub-server/internal/addr"
	"github.com/netresearch/hub-server/internal/hub"
	"github.com/netresearch/hub-server/internal/lifecycle"
	"github.com/netresearch/hub-server/internal/node"
	"github.com/netresearch/hub-server/internal/rcache"
	"github.com/netresearch/hub-server/internal/responder"
	"github.com/netresearch/hub-server/internal/session"
	"github.com/netresearch/hub-server/internal/sysctx"
)

// staticUsers is a fixed UserLookup for tests, avoiding a dependency on
// any real credential backend.
type staticUsers map[string]struct {
	h1     string
	groups []string
}

func (u staticUsers) H1(username string) (string, bool, error) {
	r, ok := u[username]

	return r.h1, ok, nil
}

func (u staticUsers) Groups(username string) ([]string, error) {
	return u[username].groups, nil
}

// echoResponder writes the fetched text File's content back verbatim, a
// minimal stand-in for the real static-file responder this package
// doesn't own.
type echoResponder struct{}

func (echoResponder) PermissionMode() string { return "r" }
func (echoResponder) CanPost() bool          { return false }
func (echoResponder) CanUpload() bool        { return false }
func (echoResponder) MaxPostSize() int64     { return 0 }

func (echoResponder) Compile(_ *sysctx.Request, resp *sysctx.Response, target node.Node, _ addr.Addr) error {
	f, ok := target.(*hub.File)
	if !ok {
		resp.Status = 404

		return nil
	}

	raw, err := f.GetRawContent()
	if err != nil {
		return err
	}

	resp.Status = 200
	resp.ContentType = "text/plain"
	resp.Body = raw
	resp.Cacheable = true

	return nil
}

func newDriver(t *testing.T) (*lifecycle.Driver, *hub.Hub) {
	t.Helper()

	root := t.TempDir()
	h := hub.New(root)

	rc := hub.NewResolveContext()
	dirNode, err := h.Resolve(rc, addr.Root)
	require.NoError(t, err)

	dir, ok := dirNode.(*hub.Directory)
	require.True(t, ok)

	f, err := dir.Vivify("hello.txt", node.KindFile)
	require.NoError(t, err)

	file, ok := f.(*hub.File)
	require.True(t, ok)

	file.SetData(node.NewText("hello, world"))
	require.NoError(t, file.Save())
	require.NoError(t, dir.Save())

	store := session.NewStore(memory.New(), 0)

	reg := responder.NewRegistry()
	reg.Register(responder.Entry{
		Criteria: responder.Criteria{Typeof: "file-text"},
		Factory:  func() responder.Responder { return echoResponder{} },
	})

	cache, err := rcache.NewStore(filepath.Join(root, "cache"))
	require.NoError(t, err)

	users := staticUsers{}

	return lifecycle.New(h, store, users, reg, cache), h
}

func newRequest(uri string) *sysctx.Request {
	req := sysctx.New()
	req.Method = "GET"
	req.Scheme = "http"
	req.Hostname = "example.test"
	req.URI = uri
	req.Page.URI = uri

	return req
}

func TestHandleFetchesTextFileThroughResponder(t *testing.T) {
	d, _ := newDriver(t)

	resp, err := d.Handle(newRequest("/hello.txt"))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.Status)
	assert.Equal(t, "hello, world", string(resp.Body))
	assert.NotEmpty(t, resp.ETag)
}

func TestHandleMissingAddressReturns404(t *testing.T) {
	d, _ := newDriver(t)

	resp, err := d.Handle(newRequest("/nope.txt"))
	require.NoError(t, err)
	assert.Equal(t, 404, resp.Status)
}

func TestHandleSysPrefixIsForbidden(t *testing.T) {
	d, _ := newDriver(t)

	resp, err := d.Handle(newRequest("/sys/request"))
	require.NoError(t, err)
	assert.Equal(t, 403, resp.Status)
}

func TestHandleSetsRolledSIDCookie(t *testing.T) {
	d, _ := newDriver(t)

	resp, err := d.Handle(newRequest("/hello.txt"))
	require.NoError(t, err)

	cookies, ok := resp.Headers["Set-Cookie"]
	require.True(t, ok)
	require.NotEmpty(t, cookies)
}

func TestHandleDeniesForbiddenURIFromConfig(t *testing.T) {
	d, h := newDriver(t)

	rc := hub.NewResolveContext()
	dirNode, err := h.Resolve(rc, addr.Root)
	require.NoError(t, err)
	dir := dirNode.(*hub.Directory)

	cf, err := dir.VivifyKind("config.hf", node.FileHash)
	require.NoError(t, err)

	forbidden := node.NewMapping()
	handlers := node.NewMapping()
	access := node.NewMapping()
	list := node.NewSequence()
	list.Append(node.NewText("^/hello\\.txt$"))
	access.Set("forbidden", list)
	handlers.Set("access", access)
	forbidden.Set("handlers", handlers)

	cf.SetData(forbidden)
	require.NoError(t, cf.Save())
	require.NoError(t, dir.Save())

	h.Config().AddSource("config.hf")
	require.NoError(t, h.Config().Refresh())

	resp, err := d.Handle(newRequest("/hello.txt"))
	require.NoError(t, err)
	assert.Equal(t, 403, resp.Status)
}

func TestHandleSecondRequestServesFromCache(t *testing.T) {
	d, _ := newDriver(t)

	first, err := d.Handle(newRequest("/hello.txt"))
	require.NoError(t, err)
	require.Equal(t, 200, first.Status)

	second, err := d.Handle(newRequest("/hello.txt"))
	require.NoError(t, err)
	assert.Equal(t, 200, second.Status)
	assert.Equal(t, first.ETag, second.ETag)
	assert.NotEmpty(t, second.Headers["Last-Modified"])
}

func TestHandleCacheHitReturns304OnMatchingIfNoneMatch(t *testing.T) {
	d, _ := newDriver(t)

	first, err := d.Handle(newRequest("/hello.txt"))
	require.NoError(t, err)
	require.Equal(t, 200, first.Status)

	req := newRequest("/hello.txt")
	req.Headers["If-None-Match"] = []string{first.ETag}

	second, err := d.Handle(req)
	require.NoError(t, err)
	assert.Equal(t, 304, second.Status)
	assert.Empty(t, second.Body)
	assert.Equal(t, first.ETag, second.ETag)
}

func TestHandleCacheHitReturns304OnFutureIfModifiedSince(t *testing.T) {
	d, _ := newDriver(t)

	first, err := d.Handle(newRequest("/hello.txt"))
	require.NoError(t, err)
	require.Equal(t, 200, first.Status)

	lastModified := first.Headers["Last-Modified"][0]
	mtime, err := http.ParseTime(lastModified)
	require.NoError(t, err)

	req := newRequest("/hello.txt")
	req.Headers["If-Modified-Since"] = []string{mtime.Add(time.Second).UTC().Format(http.TimeFormat)}

	second, err := d.Handle(req)
	require.NoError(t, err)
	assert.Equal(t, 304, second.Status)
	assert.Empty(t, second.Body)
	assert.Equal(t, first.ETag, second.ETag)
}
