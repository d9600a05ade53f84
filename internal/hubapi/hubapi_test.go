package hubapi_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netresearch/hub-server/internal/hub"
	"github.com/netresearch/hub-server/internal/hubapi"
	"github.com/netresearch/hub-server/internal/node"
)

func newService(t *testing.T) *hubapi.Service {
	t.Helper()

	root := t.TempDir()
	h := hub.New(root)

	return hubapi.NewService(h, filepath.Join(root, "xfr"))
}

func mparams(pairs map[string]string) *node.Mapping {
	m := node.NewMapping()
	for k, v := range pairs {
		m.Set(k, node.NewText(v))
	}

	return m
}

func TestFetchDirectoryListsChildren(t *testing.T) {
	svc := newService(t)
	rc := hub.NewResolveContext()

	env, err := svc.Create(rc, mparams(map[string]string{"target": "/", "name": "a.txt", "type": "file-text", "value": "hi"}))
	require.NoError(t, err)
	assert.Equal(t, "/a.txt", env.Head.Addr)

	fetched, err := svc.Fetch(rc, mparams(map[string]string{"target": "/"}))
	require.NoError(t, err)
	assert.Equal(t, "directory", fetched.Head.Type)

	children, ok := fetched.Body.(map[string]hubapi.ChildSummary)
	require.True(t, ok)
	assert.Contains(t, children, "a.txt")
}

func TestFetchTextFileInlinesContent(t *testing.T) {
	svc := newService(t)
	rc := hub.NewResolveContext()

	_, err := svc.Create(rc, mparams(map[string]string{"target": "/", "name": "a.txt", "type": "file-text", "value": "hello"}))
	require.NoError(t, err)

	env, err := svc.Fetch(rc, mparams(map[string]string{"target": "/a.txt"}))
	require.NoError(t, err)
	assert.Equal(t, "hello", env.Head.Content)
	assert.NotEmpty(t, env.Head.Checksum)
}

func TestFetchMissingReturnsDoesNotExist(t *testing.T) {
	svc := newService(t)
	rc := hub.NewResolveContext()

	_, err := svc.Fetch(rc, mparams(map[string]string{"target": "/nope"}))
	require.Error(t, err)
}

func TestCreateDirectoryThenStoreFileInside(t *testing.T) {
	svc := newService(t)
	rc := hub.NewResolveContext()

	_, err := svc.Create(rc, mparams(map[string]string{"target": "/", "name": "conf", "type": "directory"}))
	require.NoError(t, err)

	env, err := svc.Store(rc, mparams(map[string]string{"target": "/conf/x.txt", "value": "1"}))
	require.NoError(t, err)
	assert.Equal(t, "/conf/x.txt", env.Head.Addr)
}

func TestRemoveFileThenFetchFails(t *testing.T) {
	svc := newService(t)
	rc := hub.NewResolveContext()

	_, err := svc.Create(rc, mparams(map[string]string{"target": "/", "name": "b.txt", "type": "file-text"}))
	require.NoError(t, err)

	_, err = svc.Remove(rc, mparams(map[string]string{"target": "/b.txt"}))
	require.NoError(t, err)

	_, err = svc.Fetch(rc, mparams(map[string]string{"target": "/b.txt"}))
	require.Error(t, err)
}

func TestCreateDataArrayThenReorder(t *testing.T) {
	svc := newService(t)
	rc := hub.NewResolveContext()

	_, err := svc.Create(rc, mparams(map[string]string{"target": "/", "name": "list", "type": "data-array"}))
	require.NoError(t, err)

	_, err = svc.Store(rc, mparams(map[string]string{"target": "/list.json/<next>", "value": "a"}))
	require.NoError(t, err)

	_, err = svc.Store(rc, mparams(map[string]string{"target": "/list.json/<next>", "value": "b"}))
	require.NoError(t, err)

	perm := node.NewSequence()
	perm.Append(node.NewText("1"))
	perm.Append(node.NewText("0"))

	params := node.NewMapping()
	params.Set("target", node.NewText("/list.json"))
	params.Set("value", perm)

	env, err := svc.Reorder(rc, params)
	require.NoError(t, err)
	assert.Equal(t, "/list.json", env.Head.Addr)

	seq, ok := env.Body.(*node.Sequence)
	require.True(t, ok)
	require.Equal(t, 2, seq.Len())

	first, _ := seq.At(0)
	sc, ok := first.(*node.Scalar)
	require.True(t, ok)
	assert.Equal(t, "b", sc.Text())
}

func TestRenameMappingKeyKeepsValueUnderNewName(t *testing.T) {
	svc := newService(t)
	rc := hub.NewResolveContext()

	_, err := svc.Create(rc, mparams(map[string]string{"target": "/", "name": "h", "type": "data-hash"}))
	require.NoError(t, err)

	values := node.NewMapping()
	values.Set("oldkey", node.NewText("v1"))

	updateParams := mparams(map[string]string{"target": "/h.json"})
	updateParams.Set("values", values)

	_, err = svc.Update(rc, updateParams)
	require.NoError(t, err)

	_, err = svc.Rename(rc, mparams(map[string]string{"target": "/h.json/oldkey", "name": "newkey"}))
	require.NoError(t, err)

	fetched, err := svc.Fetch(rc, mparams(map[string]string{"target": "/h.json"}))
	require.NoError(t, err)

	body, ok := fetched.Body.(*node.Mapping)
	require.True(t, ok)

	_, hasOld := body.Get("oldkey")
	assert.False(t, hasOld)

	v, hasNew := body.Get("newkey")
	require.True(t, hasNew)

	sc, ok := v.(*node.Scalar)
	require.True(t, ok)
	assert.Equal(t, "v1", sc.Text())
}

func TestUpdateMappingInsideFilePersistsAcrossFreshHub(t *testing.T) {
	root := t.TempDir()
	h := hub.New(root)
	svc := hubapi.NewService(h, filepath.Join(root, "xfr"))
	rc := hub.NewResolveContext()

	_, err := svc.Create(rc, mparams(map[string]string{"target": "/", "name": "h", "type": "data-hash"}))
	require.NoError(t, err)

	values := node.NewMapping()
	values.Set("k1", node.NewText("v1"))

	updateParams := mparams(map[string]string{"target": "/h.json"})
	updateParams.Set("values", values)

	_, err = svc.Update(rc, updateParams)
	require.NoError(t, err)

	// A fresh Hub and ResolveContext force a disk re-read, proving the
	// mutation actually reached storage rather than only the in-memory
	// File instance that staged it.
	h2 := hub.New(root)
	svc2 := hubapi.NewService(h2, filepath.Join(root, "xfr2"))
	rc2 := hub.NewResolveContext()

	fetched, err := svc2.Fetch(rc2, mparams(map[string]string{"target": "/h.json"}))
	require.NoError(t, err)

	body, ok := fetched.Body.(*node.Mapping)
	require.True(t, ok)

	v, has := body.Get("k1")
	require.True(t, has)

	sc, ok := v.(*node.Scalar)
	require.True(t, ok)
	assert.Equal(t, "v1", sc.Text())
}
