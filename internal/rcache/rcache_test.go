package rcache_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netresearch/hub-server/internal/rcache"
)

func TestStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store, err := rcache.NewStore(dir)
	require.NoError(t, err)

	now := time.Now()
	m := &rcache.Meta{
		URI:   "/docs",
		Path:  filepath.Join(dir, "primary"),
		MTime: now,
		ETag:  "abc123",
		CTime: now,
		ATime: now,
	}

	require.NoError(t, store.Store("rtag1", m, []byte("hello")))

	loaded, ok, err := store.LoadMeta("rtag1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "abc123", loaded.ETag)

	body, err := store.LoadBody("abc123")
	require.NoError(t, err)
	assert.Equal(t, "hello", string(body))
}

func TestStoreBumpsAccessCountOnIdenticalETag(t *testing.T) {
	dir := t.TempDir()
	store, err := rcache.NewStore(dir)
	require.NoError(t, err)

	now := time.Now()
	m := &rcache.Meta{Path: filepath.Join(dir, "primary"), MTime: now, ETag: "same", CTime: now, ATime: now}
	require.NoError(t, store.Store("rtag1", m, []byte("v1")))

	m2 := &rcache.Meta{Path: filepath.Join(dir, "primary"), MTime: now, ETag: "same", CTime: now, ATime: now.Add(time.Minute)}
	require.NoError(t, store.Store("rtag1", m2, []byte("v1")))

	loaded, ok, err := store.LoadMeta("rtag1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1, loaded.ACount)
}

func TestValidateInvalidatesOnPrimaryMTimeAdvance(t *testing.T) {
	dir := t.TempDir()
	primary := filepath.Join(dir, "primary.txt")
	require.NoError(t, os.WriteFile(primary, []byte("x"), 0o644))

	past := time.Now().Add(-time.Hour)
	m := &rcache.Meta{Path: primary, MTime: past}

	_, valid := rcache.Validate(m, time.Time{}, time.Now())
	assert.False(t, valid)
}

func TestValidateInvalidatesWhenDepMissingButWasPresent(t *testing.T) {
	dir := t.TempDir()
	primary := filepath.Join(dir, "primary.txt")
	require.NoError(t, os.WriteFile(primary, []byte("x"), 0o644))
	fi, err := os.Stat(primary)
	require.NoError(t, err)

	m := &rcache.Meta{
		Path:  primary,
		MTime: fi.ModTime(),
		Deps:  map[string]time.Time{filepath.Join(dir, "gone.txt"): fi.ModTime()},
	}

	_, valid := rcache.Validate(m, time.Time{}, time.Now())
	assert.False(t, valid)
}

func TestValidateToleratesDepMissingBothTimes(t *testing.T) {
	dir := t.TempDir()
	primary := filepath.Join(dir, "primary.txt")
	require.NoError(t, os.WriteFile(primary, []byte("x"), 0o644))
	fi, err := os.Stat(primary)
	require.NoError(t, err)

	m := &rcache.Meta{
		Path:  primary,
		MTime: fi.ModTime(),
		Deps:  map[string]time.Time{filepath.Join(dir, "never-existed.txt"): time.Time{}},
	}

	_, valid := rcache.Validate(m, time.Time{}, time.Now())
	assert.True(t, valid)
}

func TestValidateMaxAgeExpiry(t *testing.T) {
	dir := t.TempDir()
	primary := filepath.Join(dir, "primary.txt")
	require.NoError(t, os.WriteFile(primary, []byte("x"), 0o644))
	fi, err := os.Stat(primary)
	require.NoError(t, err)

	m := &rcache.Meta{
		Path:    primary,
		MTime:   fi.ModTime(),
		CTime:   time.Now().Add(-time.Hour),
		Headers: map[string][]string{"Cache-Control": {"max-age=60"}},
	}

	_, valid := rcache.Validate(m, time.Time{}, time.Now())
	assert.False(t, valid)
}

func TestValidateConfigAggregateInvalidation(t *testing.T) {
	dir := t.TempDir()
	primary := filepath.Join(dir, "primary.txt")
	require.NoError(t, os.WriteFile(primary, []byte("x"), 0o644))
	fi, err := os.Stat(primary)
	require.NoError(t, err)

	m := &rcache.Meta{Path: primary, MTime: fi.ModTime(), CfgMTime: fi.ModTime()}

	_, valid := rcache.Validate(m, fi.ModTime().Add(time.Second), time.Now())
	assert.False(t, valid)
}

func TestNoStoreDirective(t *testing.T) {
	assert.True(t, rcache.NoStore(map[string][]string{"Cache-Control": {"no-store"}}))
	assert.False(t, rcache.NoStore(map[string][]string{"Cache-Control": {"public"}}))
}
