package hub

import (
	"sync"
	"time"
)

// AccessEntry records that a File or Directory at Path contributed to the
// current response, along with its mtime at the moment of access.
type AccessEntry struct {
	Path  string
	MTime time.Time
}

// ChangeEntry records that Path was written during the current request.
type ChangeEntry struct {
	Path  string
	MTime time.Time
}

// AccessLog accumulates every storage read made while resolving a request,
// shared with the current response so the response cache (internal/rcache)
// can capture it as the compiled response's dependency set (spec §4.C,
// §4.H "the compile phase attaches a listener to the access log").
type AccessLog struct {
	mu        sync.Mutex
	entries   []AccessEntry
	listeners []func(AccessEntry)
}

// NewAccessLog returns an empty log.
func NewAccessLog() *AccessLog {
	return &AccessLog{}
}

// Push records an access and fans it out to any attached listeners.
func (l *AccessLog) Push(path string, mtime time.Time) {
	if l == nil {
		return
	}

	l.mu.Lock()
	entry := AccessEntry{Path: path, MTime: mtime}
	l.entries = append(l.entries, entry)
	listeners := append([]func(AccessEntry){}, l.listeners...)
	l.mu.Unlock()

	for _, fn := range listeners {
		fn(entry)
	}
}

// Listen attaches fn to be called for every future Push.
func (l *AccessLog) Listen(fn func(AccessEntry)) {
	if l == nil {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.listeners = append(l.listeners, fn)
}

// Entries returns a snapshot of everything recorded so far.
func (l *AccessLog) Entries() []AccessEntry {
	if l == nil {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]AccessEntry, len(l.entries))
	copy(out, l.entries)

	return out
}

// ChangeLog accumulates every storage write made while handling a request.
type ChangeLog struct {
	mu      sync.Mutex
	entries []ChangeEntry
}

// NewChangeLog returns an empty log.
func NewChangeLog() *ChangeLog {
	return &ChangeLog{}
}

// Push records a write.
func (l *ChangeLog) Push(path string, mtime time.Time) {
	if l == nil {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, ChangeEntry{Path: path, MTime: mtime})
}

// Entries returns a snapshot of everything recorded so far.
func (l *ChangeLog) Entries() []ChangeEntry {
	if l == nil {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]ChangeEntry, len(l.entries))
	copy(out, l.entries)

	return out
}

// Drain returns everything recorded so far and clears the log, so a
// per-request cleanup phase never sees the same entry twice.
func (l *ChangeLog) Drain() []ChangeEntry {
	if l == nil {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	out := l.entries
	l.entries = nil

	return out
}
