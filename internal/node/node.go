package node

import (
	"errors"
	"time"
)

// Kind tags the variant a Node holds.
type Kind int

const (
	KindScalar Kind = iota
	KindMapping
	KindSequence
	KindCode
	KindDirectory
	KindFile
)

// String renders a Kind the way the hub data API reports it in head/meta.type.
func (k Kind) String() string {
	switch k {
	case KindScalar:
		return "data-scalar"
	case KindMapping:
		return "data-hash"
	case KindSequence:
		return "data-array"
	case KindCode:
		return "code"
	case KindDirectory:
		return "directory"
	case KindFile:
		return "file"
	default:
		return "unknown"
	}
}

// FileKind distinguishes the parsed shape of a storage-backed File.
type FileKind int

const (
	FileHash FileKind = iota
	FileJSON
	FileText
	FileBinary
	FileCode
)

// String renders a FileKind the way "typeof" reports it (file-<kind>).
func (k FileKind) String() string {
	switch k {
	case FileHash:
		return "file-hash"
	case FileJSON:
		return "file-json"
	case FileText:
		return "file-text"
	case FileBinary:
		return "file-binary"
	case FileCode:
		return "file-code"
	default:
		return "file-unknown"
	}
}

// ErrNotFound is returned by Get when the addressed child does not exist.
var ErrNotFound = errors.New("node: not found")

// ErrWrongKind is returned when an operation requires a variant the node
// does not have (e.g. Keys() on a Sequence).
var ErrWrongKind = errors.New("node: wrong kind for operation")

// Stat reports size and modification time, the two facts the response
// cache validator (internal/rcache) needs about every dependency path.
type Stat struct {
	Size  int64
	MTime time.Time
}

// Node is the common surface every variant satisfies. Concrete behavior
// (Keys, Items, Invoke, ...) lives on the concrete types below; callers
// type-switch or type-assert to reach it, mirroring the source design's
// tagged-sum dispatch instead of a class hierarchy.
type Node interface {
	Kind() Kind
}

// Scalar holds either text or binary content. IsBinary() reports which.
type Scalar struct {
	text   string
	binary []byte
	isBin  bool
}

// NewText constructs a text Scalar.
func NewText(s string) *Scalar { return &Scalar{text: s} }

// NewBinary constructs a binary (octet) Scalar.
func NewBinary(b []byte) *Scalar { return &Scalar{binary: b, isBin: true} }

func (s *Scalar) Kind() Kind { return KindScalar }

// IsBinary reports whether this scalar holds octets rather than text.
func (s *Scalar) IsBinary() bool { return s.isBin }

// Text returns the scalar's string value (zero value for a binary scalar).
func (s *Scalar) Text() string { return s.text }

// Bytes returns the scalar's octet value, converting text scalars on demand.
func (s *Scalar) Bytes() []byte {
	if s.isBin {
		return s.binary
	}

	return []byte(s.text)
}

// Len reports byte length for either representation.
func (s *Scalar) Len() int {
	if s.isBin {
		return len(s.binary)
	}

	return len(s.text)
}

// Mapping is an ordered sequence of (key, Node) pairs with unique keys.
// Insertion order is preserved across Keys() and round-trips through a
// hashfile or JSON object, satisfying the load->mutate->save invariant.
type Mapping struct {
	keys []string
	vals map[string]Node
}

// NewMapping constructs an empty ordered mapping.
func NewMapping() *Mapping {
	return &Mapping{vals: make(map[string]Node)}
}

func (m *Mapping) Kind() Kind { return KindMapping }

// Len returns the number of entries.
func (m *Mapping) Len() int { return len(m.keys) }

// Keys returns the entry keys in insertion order.
func (m *Mapping) Keys() []string {
	out := make([]string, len(m.keys))
	copy(out, m.keys)

	return out
}

// Get returns the child stored at key.
func (m *Mapping) Get(key string) (Node, bool) {
	v, ok := m.vals[key]

	return v, ok
}

// Set inserts or replaces the child at key, appending key to the order if
// it is new.
func (m *Mapping) Set(key string, v Node) {
	if _, exists := m.vals[key]; !exists {
		m.keys = append(m.keys, key)
	}

	m.vals[key] = v
}

// Delete removes key, reporting whether it was present.
func (m *Mapping) Delete(key string) bool {
	if _, ok := m.vals[key]; !ok {
		return false
	}

	delete(m.vals, key)

	for i, k := range m.keys {
		if k == key {
			m.keys = append(m.keys[:i], m.keys[i+1:]...)

			break
		}
	}

	return true
}

// Rename changes a key while preserving its position in the order, used by
// the hub data API's rename verb for ordered-mapping parents.
func (m *Mapping) Rename(oldKey, newKey string) bool {
	v, ok := m.vals[oldKey]
	if !ok {
		return false
	}

	if _, collision := m.vals[newKey]; collision {
		return false
	}

	delete(m.vals, oldKey)
	m.vals[newKey] = v

	for i, k := range m.keys {
		if k == oldKey {
			m.keys[i] = newKey

			break
		}
	}

	return true
}

// Reorder replaces the key order with newOrder, which must be a permutation
// of the existing keys (used by the hub data API's reorder verb on ordered
// mappings, which sorts by the supplied key order rather than an index
// permutation).
func (m *Mapping) Reorder(newOrder []string) error {
	if len(newOrder) != len(m.keys) {
		return ErrWrongKind
	}

	seen := make(map[string]bool, len(newOrder))

	for _, k := range newOrder {
		if _, ok := m.vals[k]; !ok {
			return ErrNotFound
		}

		seen[k] = true
	}

	if len(seen) != len(m.keys) {
		return ErrWrongKind
	}

	m.keys = append([]string(nil), newOrder...)

	return nil
}

// Clone performs a deep copy, used by insert/copy's "deep clone of src".
func (m *Mapping) Clone() *Mapping {
	out := NewMapping()

	for _, k := range m.keys {
		out.Set(k, CloneNode(m.vals[k]))
	}

	return out
}

// Sequence is a dense, order-significant list of Nodes.
type Sequence struct {
	items []Node
}

// NewSequence constructs an empty sequence.
func NewSequence() *Sequence { return &Sequence{} }

func (s *Sequence) Kind() Kind { return KindSequence }

// Len returns the number of elements.
func (s *Sequence) Len() int { return len(s.items) }

// Items returns the elements in order.
func (s *Sequence) Items() []Node {
	out := make([]Node, len(s.items))
	copy(out, s.items)

	return out
}

// At returns the element at index i.
func (s *Sequence) At(i int) (Node, bool) {
	if i < 0 || i >= len(s.items) {
		return nil, false
	}

	return s.items[i], true
}

// Append adds v as a new trailing element (the "<next>" target) and returns
// its index.
func (s *Sequence) Append(v Node) int {
	s.items = append(s.items, v)

	return len(s.items) - 1
}

// Insert splices v at index, shifting later elements right. index ==
// len(items) is equivalent to Append.
func (s *Sequence) Insert(index int, v Node) error {
	if index < 0 || index > len(s.items) {
		return ErrNotFound
	}

	s.items = append(s.items, nil)
	copy(s.items[index+1:], s.items[index:])
	s.items[index] = v

	return nil
}

// RemoveAt deletes the element at index, renumbering later elements.
func (s *Sequence) RemoveAt(index int) error {
	if index < 0 || index >= len(s.items) {
		return ErrNotFound
	}

	s.items = append(s.items[:index], s.items[index+1:]...)

	return nil
}

// Reorder applies permutation perm, a slice of the same length as the
// sequence giving, for each output position, the source index to copy from
// (e.g. [2,0,4,1,3] on [A,B,C,D,E] yields [C,A,E,B,D]).
func (s *Sequence) Reorder(perm []int) error {
	if len(perm) != len(s.items) {
		return ErrWrongKind
	}

	seen := make([]bool, len(perm))
	out := make([]Node, len(perm))

	for i, src := range perm {
		if src < 0 || src >= len(s.items) || seen[src] {
			return ErrWrongKind
		}

		seen[src] = true
		out[i] = s.items[src]
	}

	s.items = out

	return nil
}

// Clone performs a deep copy.
func (s *Sequence) Clone() *Sequence {
	out := NewSequence()

	for _, v := range s.items {
		out.items = append(out.items, CloneNode(v))
	}

	return out
}

// Code wraps a callable that is invoked with a keyword-parameter Mapping and
// returns any Node. It backs PerlModule/CodeFile-style File subvariants as
// well as ad hoc computed values attached under /sys.
type Code struct {
	fn func(params *Mapping) (Node, error)
}

// NewCode wraps fn as a Code node.
func NewCode(fn func(params *Mapping) (Node, error)) *Code {
	return &Code{fn: fn}
}

func (c *Code) Kind() Kind { return KindCode }

// Invoke calls the wrapped function.
func (c *Code) Invoke(params *Mapping) (Node, error) {
	if params == nil {
		params = NewMapping()
	}

	return c.fn(params)
}

// CloneNode deep-copies any Node variant. Directory/File (storage) nodes are
// returned as-is: cloning storage means copying the backing bytes, which is
// not a pure in-memory operation.
func CloneNode(n Node) Node {
	switch v := n.(type) {
	case nil:
		return nil
	case *Scalar:
		if v.isBin {
			b := make([]byte, len(v.binary))
			copy(b, v.binary)

			return NewBinary(b)
		}

		return NewText(v.text)
	case *Mapping:
		return v.Clone()
	case *Sequence:
		return v.Clone()
	default:
		return n
	}
}
