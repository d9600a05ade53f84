package responder_test

import (
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netresearch/hub-server/internal/addr"
	"github.com/netresearch/hub-server/internal/hub"
	"github.com/netresearch/hub-server/internal/node"
	"github.com/netresearch/hub-server/internal/responder"
	"github.com/netresearch/hub-server/internal/sysctx"
)

func TestRegistrySelectsLastMatchingEntry(t *testing.T) {
	reg := responder.NewRegistry()

	first := responder.NewStandard()
	second := responder.NewExec()

	reg.Register(responder.Entry{
		Criteria: responder.Criteria{URIMatch: regexp.MustCompile(`.*`)},
		Factory:  func() responder.Responder { return first },
	})
	reg.Register(responder.Entry{
		Criteria: responder.Criteria{URIMatch: regexp.MustCompile(`.*`)},
		Factory:  func() responder.Responder { return second },
	})

	got, ok := reg.Select("/any", "file-text", nil, sysctx.NewParams(), sysctx.NewCaseInsensitiveParams())
	require.True(t, ok)
	assert.Same(t, second, got)
}

func TestRegistryFalsyFactorySkipsEntry(t *testing.T) {
	reg := responder.NewRegistry()

	reg.Register(responder.Entry{
		Criteria: responder.Criteria{URIMatch: regexp.MustCompile(`.*`)},
		Factory:  func() responder.Responder { return nil },
	})

	fallback := responder.NewStandard()
	reg.Register(responder.Entry{
		Criteria: responder.Criteria{URI: "/specific"},
		Factory:  func() responder.Responder { return fallback },
	})

	_, ok := reg.Select("/other", "file-text", nil, sysctx.NewParams(), sysctx.NewCaseInsensitiveParams())
	assert.False(t, ok)

	got, ok := reg.Select("/specific", "file-text", nil, sysctx.NewParams(), sysctx.NewCaseInsensitiveParams())
	require.True(t, ok)
	assert.Same(t, fallback, got)
}

func TestDirectoryResponderRedirectsWithoutTrailingSlash(t *testing.T) {
	d := &responder.Directory{}
	req := &sysctx.Request{URI: "/docs"}
	resp := sysctx.NewResponse()

	require.NoError(t, d.Compile(req, resp, nil, addr.Parse("/docs")))
	assert.Equal(t, 302, resp.Status)
	assert.Equal(t, []string{"/docs/"}, resp.Headers["Location"])
}

func TestDirectoryResponderFindsIndex(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "index.hf"), []byte("a = 1\n"), 0o644))

	h := hub.New(root)
	target, err := h.Resolve(nil, addr.Root)
	require.NoError(t, err)

	d := &responder.Directory{IndexNames: []string{"index.hf"}}
	req := &sysctx.Request{URI: "/"}
	resp := sysctx.NewResponse()

	require.NoError(t, d.Compile(req, resp, target, addr.Root))
	assert.Equal(t, "/index.hf", resp.InternalRedirect)
}

func TestStandardResponderFormatsScalar(t *testing.T) {
	s := responder.NewStandard()
	resp := sysctx.NewResponse()

	require.NoError(t, s.Compile(&sysctx.Request{}, resp, node.NewText("hi"), addr.Root))
	assert.Equal(t, "hi", string(resp.Body))
	assert.Equal(t, "text/plain; charset=utf-8", resp.ContentType)
}

func TestStandardResponderFormatsMappingAsJSON(t *testing.T) {
	s := responder.NewStandard()
	resp := sysctx.NewResponse()

	m := node.NewMapping()
	m.Set("a", node.NewText("1"))

	require.NoError(t, s.Compile(&sysctx.Request{}, resp, m, addr.Root))
	assert.Equal(t, `{"a":"1"}`, string(resp.Body))
	assert.Equal(t, "application/json", resp.ContentType)
}

func TestRedirectResponderGone(t *testing.T) {
	r := &responder.Redirect{
		Gone: []responder.RedirectRule{{Pattern: regexp.MustCompile(`^/old$`), Status: 410}},
	}

	req := &sysctx.Request{URI: "/old"}
	resp := sysctx.NewResponse()

	require.NoError(t, r.Compile(req, resp, nil, addr.Root))
	assert.Equal(t, 410, resp.Status)
}

func TestRedirectResponderRewritesLocation(t *testing.T) {
	r := &responder.Redirect{
		Redirect: []responder.RedirectRule{
			{Pattern: regexp.MustCompile(`^/old/(.+)$`), Replacement: "/new/$1", Status: 301},
		},
	}

	req := &sysctx.Request{URI: "/old/page"}
	resp := sysctx.NewResponse()

	require.NoError(t, r.Compile(req, resp, nil, addr.Root))
	assert.Equal(t, 301, resp.Status)
	assert.Equal(t, []string{"/new/page"}, resp.Headers["Location"])
}
