package hub

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/netresearch/hub-server/internal/addr"
	"github.com/netresearch/hub-server/internal/node"
)

// ErrMountCycle is returned when following mount delegations revisits a
// mount point already on the current resolution's path.
var ErrMountCycle = errors.New("hub: mount cycle detected")

// CodeFileLoader compiles the raw bytes of a FileCode-kind file into a
// callable Code node. Hub takes this as a dependency rather than importing
// an interpreter package directly, since what "code" means is
// deployment-specific. Unless WithCodeLoader installs one, New's default
// loader rejects every code file.
type CodeFileLoader func(a addr.Addr, raw []byte) (*node.Code, error)

// Hub is the root hierarchical container unifying the local filesystem,
// mounted foreign subtrees, and the config-hashfile overlay into one
// address space (spec §4.C). One Hub is constructed per virtual host and
// shared read-mostly across concurrent requests (spec §5); the only
// mutable shared state it owns directly is the mount table and the config
// overlay, both refreshed under their own locks.
type Hub struct {
	root      string
	mounts    *mountTable
	config    *Config
	loadCode  CodeFileLoader
	changeLog *ChangeLog // hub-wide write ledger, independent of any one request's ResolveContext
}

// Option configures a Hub at construction time.
type Option func(*Hub)

// WithCodeLoader installs the callable used to compile FileCode content.
func WithCodeLoader(loader CodeFileLoader) Option {
	return func(h *Hub) { h.loadCode = loader }
}

// New constructs a Hub rooted at rootFS, the directory that backs hub
// address "/".
func New(rootFS string, opts ...Option) *Hub {
	abs, err := filepath.Abs(rootFS)
	if err != nil {
		abs = rootFS
	}

	h := &Hub{
		root:      abs,
		mounts:    newMountTable(),
		changeLog: NewChangeLog(),
		loadCode:  func(addr.Addr, []byte) (*node.Code, error) { return node.NewCode(denyCode), nil },
	}

	for _, o := range opts {
		o(h)
	}

	h.config = newConfig(h)

	return h
}

func denyCode(*node.Mapping) (node.Node, error) {
	return nil, fmt.Errorf("hub: no code loader installed")
}

func (h *Hub) loadCodeFile(a addr.Addr, raw []byte) (*node.Code, error) {
	return h.loadCode(a, raw)
}

// Mount grafts the subtree rooted at targetFS onto the hub address space at
// mountPoint. Requests crossing mountPoint delegate to targetFS as though it
// were the hub's own root for everything below that point (spec §4.C mount
// delegation).
func (h *Hub) Mount(mountPoint addr.Addr, targetFS string) {
	abs, err := filepath.Abs(targetFS)
	if err != nil {
		abs = targetFS
	}

	h.mounts.add(mountPoint, abs)
}

// Unmount removes a previously installed mount.
func (h *Hub) Unmount(mountPoint addr.Addr) {
	h.mounts.remove(mountPoint)
}

// ChangeLog returns the hub-wide write ledger, which internal/lifecycle's
// cleanup phase drains after each request (spec §4.J step 7). The drained
// entries are only counted in a debug log line; no changelog file is
// written.
func (h *Hub) ChangeLog() *ChangeLog { return h.changeLog }

// MountInfo is one installed mount, exported for the /sys/debug/mounts
// observability endpoint.
type MountInfo struct {
	Point string
	FS    string
}

// Mounts returns a snapshot of the installed mount table, longest-prefix
// first.
func (h *Hub) Mounts() []MountInfo {
	entries := h.mounts.snapshot()
	out := make([]MountInfo, len(entries))

	for i, e := range entries {
		out[i] = MountInfo{Point: e.point.String(), FS: e.fs}
	}

	return out
}

// ResolveContext carries the per-request state that must not leak between
// concurrent requests: the access log accumulating read dependencies, and
// the mount-delegation stack used to detect cycles (spec §5: per-request
// state is exclusive, unlike the Hub's own shared structures).
type ResolveContext struct {
	Access     *AccessLog
	mountStack []string
}

// NewResolveContext starts a fresh per-request resolution context.
func NewResolveContext() *ResolveContext {
	return &ResolveContext{Access: NewAccessLog()}
}

// Resolve walks a from the hub root, returning the Node addressed by a.
// The walk crosses three kinds of boundary, in order at each segment:
//  1. a mount point, in which case resolution delegates to the mounted
//     Hub's own root-relative Resolve (with cycle detection);
//  2. a File's parsed content (Mapping/Sequence), in which case remaining
//     segments address into that structured data rather than the
//     filesystem;
//  3. a Directory, in which case the next segment names a filesystem
//     child materialized via Directory.Get.
//
// An abstract (query) segment is delegated to evalQuery against whatever
// Node the walk has reached so far.
//
// Resolve does not cache File/Directory instances across calls: a fresh
// walk is performed (and a fresh AccessLog entry recorded) for every
// Resolve, so that two requests resolving the same address during an
// intervening write never share a stale in-memory node. Caching belongs to
// internal/rcache, one layer up, which is mtime-aware.
func (h *Hub) Resolve(rc *ResolveContext, a addr.Addr) (node.Node, error) {
	if rc == nil {
		rc = NewResolveContext()
	}

	root, rootFS, delegated, err := h.rootFor(rc, a)
	if err != nil {
		return nil, err
	}

	return root.walk(rc, rootFS, delegated)
}

// rootFor determines which filesystem root governs address a: either this
// Hub's own root, or a mounted Hub's root reached by following the mount
// table (possibly more than once, if mounts are nested).
func (h *Hub) rootFor(rc *ResolveContext, a addr.Addr) (*Hub, string, addr.Addr, error) {
	mp, targetFS, rest, ok := h.mounts.lookup(a)
	if !ok {
		return h, h.root, a, nil
	}

	key := mp.String() + "=>" + targetFS
	for _, seen := range rc.mountStack {
		if seen == key {
			return nil, "", addr.Root, ErrMountCycle
		}
	}

	rc.mountStack = append(rc.mountStack, key)

	sub := &Hub{root: targetFS, mounts: h.mounts, config: h.config, loadCode: h.loadCode, changeLog: h.changeLog}

	return sub.rootFor(rc, rest)
}

// walk performs the filesystem-boundary-crossing resolution described on
// Resolve, starting from fsRoot (this Hub instance's filesystem root) for
// address a (already relative to that root).
func (h *Hub) walk(rc *ResolveContext, fsRoot string, a addr.Addr) (node.Node, error) {
	var cur node.Node = newDirectory(h, addr.Root, fsRoot)

	recordAccess := func(n node.Node) {
		sn, ok := n.(StorageNode)
		if !ok {
			return
		}

		mtime, err := sn.MTime()
		if err != nil {
			return
		}

		rc.Access.Push(sn.Address().String(), mtime)
	}

	recordAccess(cur)

	segs := a.Segments()

	for i := 0; i < len(segs); i++ {
		seg := segs[i]

		if addr.IsAbstractSegment(seg) {
			next, err := evalQuery(cur, seg)
			if err != nil {
				return nil, err
			}

			cur = next
			recordAccess(cur)

			continue
		}

		switch v := cur.(type) {
		case *Directory:
			child, err := v.Get(seg)
			if err != nil {
				return nil, err
			}

			cur = child
			recordAccess(cur)
		case *File:
			data, err := v.GetData()
			if err != nil {
				return nil, err
			}

			rest := addr.Join(addr.Root, segs[i:]...)

			return walkData(data, rest)
		case *node.Mapping:
			child, ok := v.Get(seg)
			if !ok {
				return nil, node.ErrNotFound
			}

			cur = child
		case *node.Sequence:
			idx, ok := sequenceIndex(seg)
			if !ok {
				return nil, node.ErrNotFound
			}

			child, ok := v.At(idx)
			if !ok {
				return nil, node.ErrNotFound
			}

			cur = child
		default:
			return nil, node.ErrNotFound
		}
	}

	return cur, nil
}

// walkData addresses into already-parsed structured data (the content of a
// File), used once resolution crosses into a File's parsed Mapping or
// Sequence and need not touch the filesystem again.
func walkData(start node.Node, a addr.Addr) (node.Node, error) {
	cur := start

	for _, seg := range a.Segments() {
		if addr.IsAbstractSegment(seg) {
			next, err := evalQuery(cur, seg)
			if err != nil {
				return nil, err
			}

			cur = next

			continue
		}

		switch v := cur.(type) {
		case *node.Mapping:
			child, ok := v.Get(seg)
			if !ok {
				return nil, node.ErrNotFound
			}

			cur = child
		case *node.Sequence:
			idx, ok := sequenceIndex(seg)
			if !ok {
				return nil, node.ErrNotFound
			}

			child, ok := v.At(idx)
			if !ok {
				return nil, node.ErrNotFound
			}

			cur = child
		default:
			return nil, node.ErrNotFound
		}
	}

	return cur, nil
}

// FindStorage returns the StorageNode that owns the address a resolves
// into, along with that storage node's own address. For an address that
// resolves through structured File content, this is the File itself (not
// some synthetic address for the nested data), matching the hub data API's
// contract that every write ultimately calls Save on one storage node
// (spec §4.C "find_storage").
func (h *Hub) FindStorage(rc *ResolveContext, a addr.Addr) (StorageNode, error) {
	if rc == nil {
		rc = NewResolveContext()
	}

	root, rootFS, delegated, err := h.rootFor(rc, a)
	if err != nil {
		return nil, err
	}

	var cur StorageNode = newDirectory(root, addr.Root, rootFS)

	segs := delegated.Segments()

	for i := 0; i < len(segs); i++ {
		seg := segs[i]

		if addr.IsAbstractSegment(seg) {
			next, err := evalQuery(cur, seg)
			if err != nil {
				return nil, err
			}

			sn, ok := next.(StorageNode)
			if !ok {
				// Resolved into non-storage data; storage ownership stays
				// with the node already reached.
				return cur, nil
			}

			cur = sn

			continue
		}

		switch v := cur.(type) {
		case *Directory:
			child, err := v.Get(seg)
			if err != nil {
				return nil, err
			}

			sn, ok := child.(StorageNode)
			if !ok {
				return nil, fmt.Errorf("hub: %s is not a storage node", addr.Join(v.addr, seg).String())
			}

			cur = sn
		case *File:
			// Remaining segments, if any, address into this File's parsed
			// content; storage ownership stays with the File.
			return cur, nil
		default:
			return cur, nil
		}
	}

	return cur, nil
}

// Vivify materializes a not-yet-existing address as a new storage node of
// kind, staged on its parent Directory pending Save (spec §4.C "vivify").
func (h *Hub) Vivify(rc *ResolveContext, a addr.Addr, kind node.Kind) (node.Node, error) {
	if a.IsRoot() {
		return nil, fmt.Errorf("hub: cannot vivify root")
	}

	parentAddr := addr.Parent(a)
	name := addr.Name(a)

	parentNode, err := h.Resolve(rc, parentAddr)
	if err != nil {
		return nil, err
	}

	dir, ok := parentNode.(*Directory)
	if !ok {
		return nil, fmt.Errorf("hub: %s is not a directory, cannot vivify child", parentAddr.String())
	}

	return dir.Vivify(name, kind)
}

// sequenceIndex parses seg as a Sequence index. The "<next>" sentinel is
// not an index here and is reported as (-1, false).
func sequenceIndex(seg string) (int, bool) {
	if addr.IsNext(seg) {
		return -1, false
	}

	n := 0

	if seg == "" {
		return 0, false
	}

	for _, r := range seg {
		if r < '0' || r > '9' {
			return 0, false
		}

		n = n*10 + int(r-'0')
	}

	return n, true
}
