package hub_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netresearch/hub-server/internal/addr"
	"github.com/netresearch/hub-server/internal/hub"
	"github.com/netresearch/hub-server/internal/node"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestResolveDirectoryAndFile(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "docs", "readme.txt"), "hello")

	h := hub.New(root)

	n, err := h.Resolve(nil, addr.Parse("/docs"))
	require.NoError(t, err)
	assert.Equal(t, node.KindDirectory, n.Kind())

	n, err = h.Resolve(nil, addr.Parse("/docs/readme.txt"))
	require.NoError(t, err)
	assert.Equal(t, node.KindFile, n.Kind())
}

func TestResolveMissingReturnsNotFound(t *testing.T) {
	h := hub.New(t.TempDir())

	_, err := h.Resolve(nil, addr.Parse("/nope"))
	assert.ErrorIs(t, err, node.ErrNotFound)
}

func TestResolveIntoHashFileFields(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "project.hf"), "title = Demo\nowner = Jane\n")

	h := hub.New(root)

	n, err := h.Resolve(nil, addr.Parse("/project.hf/title"))
	require.NoError(t, err)

	sc, ok := n.(*node.Scalar)
	require.True(t, ok)
	assert.Equal(t, "Demo", sc.Text())
}

func TestResolveRecordsAccessLog(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a", "b.txt"), "x")

	h := hub.New(root)
	rc := hub.NewResolveContext()

	_, err := h.Resolve(rc, addr.Parse("/a/b.txt"))
	require.NoError(t, err)

	entries := rc.Access.Entries()
	assert.GreaterOrEqual(t, len(entries), 2) // root dir, "a" dir, "b.txt" file
}

func TestMountDelegatesResolution(t *testing.T) {
	root := t.TempDir()
	other := t.TempDir()
	writeFile(t, filepath.Join(other, "file.txt"), "mounted")

	h := hub.New(root)
	h.Mount(addr.Parse("/external"), other)

	n, err := h.Resolve(nil, addr.Parse("/external/file.txt"))
	require.NoError(t, err)
	assert.Equal(t, node.KindFile, n.Kind())

	f := n.(*hub.File)
	raw, err := f.GetRawContent()
	require.NoError(t, err)
	assert.Equal(t, "mounted", string(raw))
}

func TestVivifyStagesUntilSave(t *testing.T) {
	root := t.TempDir()
	h := hub.New(root)
	rc := hub.NewResolveContext()

	n, err := h.Vivify(rc, addr.Parse("/new.txt"), node.KindFile)
	require.NoError(t, err)

	f, ok := n.(*hub.File)
	require.True(t, ok)
	f.SetData(node.NewText("fresh"))

	_, err = os.Stat(filepath.Join(root, "new.txt"))
	assert.True(t, os.IsNotExist(err))

	require.NoError(t, f.Save())

	got, err := os.ReadFile(filepath.Join(root, "new.txt"))
	require.NoError(t, err)
	assert.Equal(t, "fresh", string(got))
}

func TestQueryFieldMatch(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "alpha.hf"), "slug = alpha\n")
	writeFile(t, filepath.Join(root, "beta.hf"), "slug = beta\n")

	h := hub.New(root)

	n, err := h.Resolve(nil, addr.Parse("/{?slug=beta}"))
	require.NoError(t, err)

	f, ok := n.(*hub.File)
	require.True(t, ok)
	assert.Equal(t, "beta.hf", addr.Name(f.Address()))
}

func TestConfigOverlayMerge(t *testing.T) {
	root := t.TempDir()
	base := filepath.Join(root, "base.hf")
	override := filepath.Join(root, "override.hf")
	writeFile(t, base, "color = red\nsize = large\n")
	writeFile(t, override, "color = blue\n")

	h := hub.New(root)
	h.Config().AddSource(base)
	h.Config().AddSource(override)
	require.NoError(t, h.Config().Refresh())

	v, ok := h.Config().Get("color")
	require.True(t, ok)
	assert.Equal(t, "blue", v.(*node.Scalar).Text())

	v, ok = h.Config().Get("size")
	require.True(t, ok)
	assert.Equal(t, "large", v.(*node.Scalar).Text())
}
