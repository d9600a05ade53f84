package sysctx_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/netresearch/hub-server/internal/node"
	"github.com/netresearch/hub-server/internal/sysctx"
)

func baseRequest() *sysctx.Request {
	r := sysctx.New()
	r.Method = "GET"
	r.Scheme = "https"
	r.Hostname = "hub.example.org"
	r.URI = "/projects/demo"
	r.QS.Add("sort", "name")
	r.Headers["X-Command"] = []string{"fetch"}
	r.Headers["X-Request-Id"] = []string{"abc123"}
	r.MergeXArgs()

	return r
}

func TestFingerprintStableForIdenticalRequests(t *testing.T) {
	a := sysctx.Fingerprint(baseRequest())
	b := sysctx.Fingerprint(baseRequest())
	assert.Equal(t, a, b)
}

func TestFingerprintIgnoresNonAllowlistedXArgs(t *testing.T) {
	with := baseRequest()

	without := baseRequest()
	without.Headers["X-Request-Id"] = []string{"different-value"}
	without.MergeXArgs()

	assert.Equal(t, sysctx.Fingerprint(with), sysctx.Fingerprint(without))
}

func TestFingerprintChangesWithAllowlistedXArg(t *testing.T) {
	a := baseRequest()

	b := sysctx.New()
	b.Method = a.Method
	b.Scheme = a.Scheme
	b.Hostname = a.Hostname
	b.URI = a.URI
	b.QS.Add("sort", "name")
	b.Headers["X-Command"] = []string{"store"}
	b.MergeXArgs()

	assert.NotEqual(t, sysctx.Fingerprint(a), sysctx.Fingerprint(b))
}

func TestFingerprintChangesWithUsername(t *testing.T) {
	a := baseRequest()
	b := baseRequest()
	b.Username = "jane"

	assert.NotEqual(t, sysctx.Fingerprint(a), sysctx.Fingerprint(b))
}

func TestMergeXArgsCaseInsensitiveLookup(t *testing.T) {
	r := baseRequest()

	v, ok := r.XArgs.Get("x-command")
	assert.True(t, ok)
	assert.Equal(t, "fetch", v)
}

func TestCGILazyLoadOnlyCallsLoaderOnce(t *testing.T) {
	calls := 0
	r := sysctx.New()
	r.SetCGILoader(func() (*node.Mapping, error) {
		calls++

		return node.NewMapping(), nil
	})

	_, err := r.CGI()
	assert.NoError(t, err)
	_, err = r.CGI()
	assert.NoError(t, err)
	assert.Equal(t, 1, calls)
}
