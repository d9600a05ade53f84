package rcache

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

// MetaVersion is the cache format version stamped into every meta record;
// a mismatch on load invalidates the entry outright (spec §4.H "ver").
const MetaVersion = 1

// Meta is the request-fingerprint → compile-result record (spec §4.H
// "Meta record fields").
type Meta struct {
	Ver      int                 `json:"ver"`
	URI      string              `json:"uri"`
	QS       string              `json:"qs"`
	RtagStr  string              `json:"rtag_str"`
	Path     string              `json:"path"`
	MTime    time.Time           `json:"mtime"`
	SendFile string              `json:"send_file,omitempty"`
	Deps     map[string]time.Time `json:"deps"`
	CfgMTime time.Time           `json:"cfg_mtime"`
	Headers  map[string][]string `json:"headers"`
	ETag     string              `json:"etag"`
	CTime    time.Time           `json:"ctime"`
	ATime    time.Time           `json:"atime"`
	ACount   int                 `json:"acount"`
}

// Store is the on-disk cache: requests/<rtag>/meta.json and
// responses/<etag>, rooted at dir (spec §4.H "tmp/response/cache").
type Store struct {
	dir string
}

// NewStore roots a Store at dir, creating it if necessary.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(filepath.Join(dir, "requests"), 0o755); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Join(dir, "responses"), 0o755); err != nil {
		return nil, err
	}

	return &Store{dir: dir}, nil
}

func (s *Store) metaPath(rtag string) string {
	return filepath.Join(s.dir, "requests", rtag, "meta.json")
}

func (s *Store) bodyPath(etag string) string {
	return filepath.Join(s.dir, "responses", etag)
}

// LoadMeta reads the meta record for rtag, reporting ok=false if absent or
// if its format version does not match MetaVersion.
func (s *Store) LoadMeta(rtag string) (*Meta, bool, error) {
	b, err := os.ReadFile(s.metaPath(rtag)) // #nosec G304 -- rtag is a hex digest, not attacker-controlled path
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}

		return nil, false, err
	}

	var m Meta
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, false, nil //nolint:nilerr // a corrupt record is a cache miss, not a fatal error
	}

	if m.Ver != MetaVersion {
		return nil, false, nil
	}

	return &m, true, nil
}

// LoadBody reads the stored entity for etag.
func (s *Store) LoadBody(etag string) ([]byte, error) {
	return os.ReadFile(s.bodyPath(etag)) // #nosec G304 -- etag is a hex digest
}

// Store writes meta and body atomically (write-to-temp + rename), and
// implements the "bump atime/acount only" fast path when an existing
// record already has an identical etag (spec §4.H "Store policy").
func (s *Store) Store(rtag string, m *Meta, body []byte) error {
	if existing, ok, err := s.LoadMeta(rtag); err == nil && ok && existing.ETag == m.ETag {
		existing.ATime = m.ATime
		existing.ACount++

		return s.writeMeta(rtag, existing)
	}

	if err := s.writeBody(m.ETag, body); err != nil {
		return err
	}

	m.Ver = MetaVersion

	return s.writeMeta(rtag, m)
}

// Purge removes the meta record and the body it names for rtag; the body
// is removed even if another rtag's meta names the same ETag — called from the lifecycle
// driver's cleanup phase on a non-OK, non-304 outcome (spec §4.J step 7).
func (s *Store) Purge(rtag string) error {
	existing, ok, err := s.LoadMeta(rtag)
	if err != nil {
		return err
	}

	if err := os.RemoveAll(filepath.Dir(s.metaPath(rtag))); err != nil {
		return err
	}

	if ok && existing.ETag != "" {
		_ = os.Remove(s.bodyPath(existing.ETag))
	}

	return nil
}

// Stats is a point-in-time summary of the on-disk cache, for the
// /sys/debug/cache observability endpoint, mirroring the teacher's
// TemplateCache.Stats() shape.
type Stats struct {
	Entries int
}

// Stats walks the requests/ directory and counts entries. It is O(n) in
// the number of cached requests and meant for occasional debug polling,
// not the request hot path.
func (s *Store) Stats() (Stats, error) {
	entries, err := os.ReadDir(filepath.Join(s.dir, "requests"))
	if err != nil {
		if os.IsNotExist(err) {
			return Stats{}, nil
		}

		return Stats{}, err
	}

	return Stats{Entries: len(entries)}, nil
}

func (s *Store) writeMeta(rtag string, m *Meta) error {
	b, err := json.Marshal(m)
	if err != nil {
		return err
	}

	path := s.metaPath(rtag)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	return atomicWrite(path, b)
}

func (s *Store) writeBody(etag string, body []byte) error {
	return atomicWrite(s.bodyPath(etag), body)
}

func atomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".rcache-tmp-*")
	if err != nil {
		return err
	}

	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)

		return err
	}

	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)

		return err
	}

	return os.Rename(tmpName, path)
}
