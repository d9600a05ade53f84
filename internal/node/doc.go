// Package node implements the hub's tagged-variant value type. A Node is
// either a Scalar (text or binary), an ordered Mapping, a dense Sequence, a
// Code value, or a storage-backed Directory/File. Every variant satisfies
// the Node interface; callers switch on Kind() rather than relying on a type
// hierarchy, matching the source specification's "tagged sum, not deep
// inheritance" design note.
package node
