package hub

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/netresearch/hub-server/internal/addr"
	"github.com/netresearch/hub-server/internal/node"
)

// StorageNode is any Node that owns persistence for its subtree: the
// "canonical storage address" every other Node resolves up to (spec §3
// invariant).
type StorageNode interface {
	node.Node
	Address() addr.Addr
	MTime() (time.Time, error)
	Stat() (node.Stat, error)
	Save() error
}

// Directory is a storage-backed Mapping whose entries are child Nodes
// computed from directory entries on disk. Children are materialized
// lazily on first access and are never retained beyond a single Get call by
// Directory itself — caching across requests is the hub's AccessLog plus
// the response cache's job, not this type's.
type Directory struct {
	hub  *Hub
	addr addr.Addr
	fs   string // absolute filesystem path

	mu       sync.Mutex
	modified map[string]node.Node // entries mutated since load, pending Save
}

func newDirectory(h *Hub, a addr.Addr, fsPath string) *Directory {
	return &Directory{hub: h, addr: a, fs: fsPath, modified: map[string]node.Node{}}
}

func (d *Directory) Kind() node.Kind { return node.KindDirectory }

// Address returns the Directory's own hub address.
func (d *Directory) Address() addr.Addr { return d.addr }

// MTime reads the backing directory's mtime from disk.
func (d *Directory) MTime() (time.Time, error) {
	fi, err := os.Stat(d.fs)
	if err != nil {
		return time.Time{}, err
	}

	return fi.ModTime(), nil
}

// Stat reports directory size (entry count is not meaningful as bytes, so
// Size reports 0) and mtime.
func (d *Directory) Stat() (node.Stat, error) {
	mtime, err := d.MTime()
	if err != nil {
		return node.Stat{}, err
	}

	return node.Stat{Size: 0, MTime: mtime}, nil
}

// Keys lists the directory's entries, skipping dotfiles.
func (d *Directory) Keys() ([]string, error) {
	entries, err := os.ReadDir(d.fs)
	if err != nil {
		return nil, err
	}

	out := make([]string, 0, len(entries))

	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".") {
			continue
		}

		out = append(out, e.Name())
	}

	return out, nil
}

// Get materializes the child named name: a nested Directory for a
// subdirectory, or a File of the appropriate FileKind for a regular file.
// Edits staged via Set are preferred over the disk so that a vivified but
// unsaved child is visible to a subsequent Get within the same request.
func (d *Directory) Get(name string) (node.Node, error) {
	d.mu.Lock()
	if staged, ok := d.modified[name]; ok {
		d.mu.Unlock()

		return staged, nil
	}
	d.mu.Unlock()

	childFS := filepath.Join(d.fs, name)

	fi, err := os.Stat(childFS)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, node.ErrNotFound
		}

		return nil, err
	}

	childAddr := addr.Join(d.addr, name)

	if fi.IsDir() {
		return newDirectory(d.hub, childAddr, childFS), nil
	}

	return newFile(d.hub, childAddr, childFS, classifyFileKind(name)), nil
}

// Vivify stages a new child of kind under name without touching disk until
// Save is called.
func (d *Directory) Vivify(name string, kind node.Kind) (node.Node, error) {
	childAddr := addr.Join(d.addr, name)
	childFS := filepath.Join(d.fs, name)

	var n node.Node

	switch kind {
	case node.KindDirectory:
		n = newDirectory(d.hub, childAddr, childFS)
	case node.KindFile:
		n = newFile(d.hub, childAddr, childFS, node.FileText)
	default:
		return nil, fmt.Errorf("hub: vivify unsupported kind %v", kind)
	}

	d.mu.Lock()
	d.modified[name] = n
	d.mu.Unlock()

	return n, nil
}

// VivifyKind stages a new File child under name with a specific FileKind
// (FileJSON, FileHash, ...), for callers such as the hub data API's create
// verb that need a file shaped for structured content rather than the
// plain-text default Vivify produces.
func (d *Directory) VivifyKind(name string, kind node.FileKind) (*File, error) {
	childAddr := addr.Join(d.addr, name)
	childFS := filepath.Join(d.fs, name)

	f := newFile(d.hub, childAddr, childFS, kind)

	d.mu.Lock()
	d.modified[name] = f
	d.mu.Unlock()

	return f, nil
}

// Remove deletes name from disk immediately (directories recursively).
func (d *Directory) Remove(name string) error {
	d.mu.Lock()
	delete(d.modified, name)
	d.mu.Unlock()

	return os.RemoveAll(filepath.Join(d.fs, name))
}

// Save persists every staged-but-unwritten child; Directories save by
// saving each modified child, never by writing themselves directly (spec
// §3 lifecycle note).
func (d *Directory) Save() error {
	d.mu.Lock()
	pending := d.modified
	d.modified = map[string]node.Node{}
	d.mu.Unlock()

	for name, child := range pending {
		switch c := child.(type) {
		case *Directory:
			if err := os.MkdirAll(c.fs, 0o755); err != nil {
				return err
			}
		case *File:
			if err := c.Save(); err != nil {
				return fmt.Errorf("hub: saving %s/%s: %w", d.addr.String(), name, err)
			}
		}
	}

	return nil
}

// ClassifyFileKind reports how Directory.Get would parse a file of this
// name, for callers (the hub data API's create verb) that vivify a file
// directly and must pick a name classifyFileKind agrees on — otherwise a
// fresh Get after Save reclassifies it and the next read misparses it.
func ClassifyFileKind(name string) node.FileKind {
	return classifyFileKind(name)
}

func classifyFileKind(name string) node.FileKind {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".hf", ".hash":
		return node.FileHash
	case ".json":
		return node.FileJSON
	case ".txt", ".html", ".htm", ".css", ".md":
		return node.FileText
	case ".go", ".pl", ".pm":
		return node.FileCode
	default:
		return node.FileBinary
	}
}

// File is a storage-backed leaf. Its parsed content (GetData) is cached
// after first read within the same File instance, but a File instance
// itself is never retained across requests — see the Hub.Resolve doc
// comment for why.
type File struct {
	hub  *Hub
	addr addr.Addr
	fs   string
	kind node.FileKind

	mu      sync.Mutex
	raw     []byte
	rawRead bool
	parsed  node.Node
	dirty   bool
}

func newFile(h *Hub, a addr.Addr, fsPath string, kind node.FileKind) *File {
	return &File{hub: h, addr: a, fs: fsPath, kind: kind}
}

func (f *File) Kind() node.Kind { return node.KindFile }

// FileKind reports the parsed shape of this file's content.
func (f *File) FileKind() node.FileKind { return f.kind }

// Address returns the File's own hub address.
func (f *File) Address() addr.Addr { return f.addr }

// FSPath returns the File's backing filesystem path, for responders (the
// Image responder's transform backend, the hub data API's download/upload
// verbs) that must hand a real path to a library that only takes one.
func (f *File) FSPath() string { return f.fs }

// MTime reads the backing file's mtime from disk.
func (f *File) MTime() (time.Time, error) {
	fi, err := os.Stat(f.fs)
	if err != nil {
		return time.Time{}, err
	}

	return fi.ModTime(), nil
}

// Stat reports size and mtime.
func (f *File) Stat() (node.Stat, error) {
	fi, err := os.Stat(f.fs)
	if err != nil {
		return node.Stat{}, err
	}

	return node.Stat{Size: fi.Size(), MTime: fi.ModTime()}, nil
}

// GetRawContent returns the file's bytes as stored on disk, uninterpreted.
func (f *File) GetRawContent() ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.rawRead {
		return f.raw, nil
	}

	b, err := os.ReadFile(f.fs) // #nosec G304 -- fs is hub-resolved, not attacker input
	if err != nil {
		return nil, err
	}

	f.raw = b
	f.rawRead = true

	return b, nil
}

// GetData returns the parsed content: a Mapping for FileHash/FileJSON (when
// the JSON root is an object), a Sequence for a JSON array root, a Scalar
// for FileText/FileBinary, or a Code node for FileCode (see
// NewCodeFileLoader).
func (f *File) GetData() (node.Node, error) {
	f.mu.Lock()
	if f.parsed != nil {
		defer f.mu.Unlock()

		return f.parsed, nil
	}
	f.mu.Unlock()

	raw, err := f.GetRawContent()
	if err != nil {
		return nil, err
	}

	var parsed node.Node

	switch f.kind {
	case node.FileHash:
		parsed, err = node.ParseHashFile(raw)
	case node.FileJSON:
		parsed, err = node.ParseJSONFile(raw)
	case node.FileText:
		parsed = node.NewText(string(raw))
	case node.FileBinary:
		parsed = node.NewBinary(raw)
	case node.FileCode:
		parsed, err = f.hub.loadCodeFile(f.addr, raw)
	default:
		return nil, fmt.Errorf("hub: unknown file kind %v", f.kind)
	}

	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	f.parsed = parsed
	f.mu.Unlock()

	return parsed, nil
}

// SetData replaces the parsed content and marks the file dirty, for
// writes performed by the hub data API.
func (f *File) SetData(n node.Node) {
	f.mu.Lock()
	f.parsed = n
	f.dirty = true
	f.mu.Unlock()
}

// Save serializes the parsed content (if it has been modified) back to
// disk via write-to-temp + rename, so concurrent readers never observe a
// partial file (spec §5 shared-resource discipline).
func (f *File) Save() error {
	f.mu.Lock()
	dirty := f.dirty
	parsed := f.parsed
	f.mu.Unlock()

	if !dirty {
		return nil
	}

	var out []byte

	var err error

	switch f.kind {
	case node.FileHash:
		m, ok := parsed.(*node.Mapping)
		if !ok {
			return fmt.Errorf("hub: hash file %s content is not a mapping", f.addr.String())
		}

		out = node.EncodeHashFile(m)
	case node.FileJSON:
		out, err = node.EncodeJSONFile(parsed)
	case node.FileText:
		sc, ok := parsed.(*node.Scalar)
		if !ok {
			return fmt.Errorf("hub: text file %s content is not a scalar", f.addr.String())
		}

		out = sc.Bytes()
	case node.FileBinary:
		sc, ok := parsed.(*node.Scalar)
		if !ok {
			return fmt.Errorf("hub: binary file %s content is not a scalar", f.addr.String())
		}

		out = sc.Bytes()
	default:
		return fmt.Errorf("hub: cannot save file kind %v", f.kind)
	}

	if err != nil {
		return err
	}

	if err := atomicWriteFile(f.fs, out); err != nil {
		return err
	}

	f.mu.Lock()
	f.raw = out
	f.rawRead = true
	f.dirty = false
	f.mu.Unlock()

	if f.hub != nil {
		mtime, _ := f.MTime()
		f.hub.changeLog.Push(f.fs, mtime)
	}

	return nil
}

// atomicWriteFile writes data to a temp file in the same directory as path
// and renames it into place, guaranteeing readers never see a partial
// write (spec §5).
func atomicWriteFile(path string, data []byte) error {
	dir := filepath.Dir(path)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".hub-tmp-*")
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
