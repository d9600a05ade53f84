package hubapi

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/netresearch/hub-server/internal/herr"
)

// XferRecord tracks one in-flight upload or download, addressable by the
// client-supplied X-Progress-ID (spec §4.I "tmp/xfr/<id>").
type XferRecord struct {
	ID        string
	Target    string
	Kind      string // "upload" or "download"
	Total     int64
	done      int64 // atomic
	Started   time.Time
	Completed bool
	Err       string
}

// BytesDone reports the current transferred byte count.
func (r *XferRecord) BytesDone() int64 { return atomic.LoadInt64(&r.done) }

// addBytes advances the record's progress counter.
func (r *XferRecord) addBytes(n int64) { atomic.AddInt64(&r.done, n) }

// XferStore is the per-vhost table of in-flight transfers, analogous in
// shape to the teacher's connection-pool stats registry
// (internal/ldap.ConnectionPool.GetStats): a small mutex-guarded map
// mutated by the upload/download verbs and read by *_progress.
type XferStore struct {
	mu      sync.Mutex
	records map[string]*XferRecord
}

// NewXferStore constructs an empty transfer registry.
func NewXferStore() *XferStore {
	return &XferStore{records: make(map[string]*XferRecord)}
}

// Start registers a new transfer under id, overwriting any stale record.
func (s *XferStore) Start(id, target string, total int64, kind string) *XferRecord {
	rec := &XferRecord{ID: id, Target: target, Total: total, Kind: kind, Started: time.Now()}

	s.mu.Lock()
	s.records[id] = rec
	s.mu.Unlock()

	return rec
}

// Get returns the record for id.
func (s *XferStore) Get(id string) (*XferRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return nil, herr.New(herr.MissingArg, "unknown progress id")
	}

	return rec, nil
}

// Finish marks id complete. When errMsg is non-empty the transfer failed
// and its record is dropped instead, so a later Get reports an unknown id.
func (s *XferStore) Finish(id string, errMsg string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return
	}

	if errMsg != "" {
		rec.Err = errMsg
		delete(s.records, id)

		return
	}

	rec.Completed = true
}
