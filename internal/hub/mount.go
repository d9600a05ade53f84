package hub

import (
	"sort"
	"sync"

	"github.com/netresearch/hub-server/internal/addr"
)

// mountEntry records that addresses under point delegate to fs.
type mountEntry struct {
	point addr.Addr
	fs    string
}

// mountTable holds the installed mounts, longest-prefix-first so lookup
// always finds the most specific mount covering an address (a mount at
// /projects/foo takes priority over one at /projects when resolving
// /projects/foo/bar).
type mountTable struct {
	mu      sync.RWMutex
	entries []mountEntry
}

func newMountTable() *mountTable {
	return &mountTable{}
}

func (t *mountTable) add(point addr.Addr, fs string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i, e := range t.entries {
		if e.point.String() == point.String() {
			t.entries[i].fs = fs

			return
		}
	}

	t.entries = append(t.entries, mountEntry{point: point, fs: fs})

	sort.Slice(t.entries, func(i, j int) bool {
		return t.entries[i].point.Len() > t.entries[j].point.Len()
	})
}

func (t *mountTable) remove(point addr.Addr) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i, e := range t.entries {
		if e.point.String() == point.String() {
			t.entries = append(t.entries[:i], t.entries[i+1:]...)

			return
		}
	}
}

// lookup finds the most specific mount that a descends into (or equals),
// returning the matched mount point, its target filesystem root, and a
// addressing the remainder of a relative to that root.
func (t *mountTable) lookup(a addr.Addr) (point addr.Addr, fs string, rest addr.Addr, ok bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	for _, e := range t.entries {
		if addr.HasPrefix(a, e.point) {
			return e.point, e.fs, addr.TrimPrefix(a, e.point), true
		}
	}

	return addr.Root, "", a, false
}

// snapshot returns a copy of the installed mounts, for the debug/mounts
// observability endpoint.
func (t *mountTable) snapshot() []mountEntry {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]mountEntry, len(t.entries))
	copy(out, t.entries)

	return out
}
