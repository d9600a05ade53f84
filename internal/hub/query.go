package hub

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/netresearch/hub-server/internal/node"
)

// evalQuery evaluates an abstract (query) address segment against cur,
// which must be a Directory, a Mapping, or a Sequence — the three
// container shapes an abstract segment can filter over (spec §4.C). The
// recognized interiors are:
//
//	{?key=value}   first child whose own "key" field equals value
//	{-?key=value}  last child whose own "key" field equals value
//	{:first}       first child in container order
//	{:last}        last child in container order
//	{:re}          first child whose name matches the regular expression re
//	{-:re}         last child whose name matches re
//
// A "|{...}" prefix on the raw segment marks a pipe stage chained from the
// previous segment's result; since segments are already evaluated in
// address order against whatever the walk last reached, the pipe marker
// carries no separate evaluation semantics here and is stripped before
// parsing the interior.
func evalQuery(cur node.Node, seg string) (node.Node, error) {
	interior := strings.TrimPrefix(seg, "|")
	interior = strings.TrimPrefix(interior, "{")
	interior = strings.TrimSuffix(interior, "}")

	last := false
	if strings.HasPrefix(interior, "-") {
		last = true
		interior = interior[1:]
	}

	switch {
	case strings.HasPrefix(interior, "?"):
		return evalFieldQuery(cur, interior[1:], last)
	case interior == ":first":
		return evalPositional(cur, false)
	case interior == ":last":
		return evalPositional(cur, true)
	case strings.HasPrefix(interior, ":"):
		return evalNameRegex(cur, interior[1:], last)
	default:
		return nil, fmt.Errorf("hub: unrecognized query segment %q", seg)
	}
}

// evalFieldQuery matches children of cur whose own "key" field (a Mapping
// entry if the child is itself a Mapping, or a field on the child's parsed
// content if it is a File) equals value.
func evalFieldQuery(cur node.Node, kv string, last bool) (node.Node, error) {
	key, value, ok := strings.Cut(kv, "=")
	if !ok {
		return nil, fmt.Errorf("hub: malformed field query %q", kv)
	}

	names, getter, err := containerChildren(cur)
	if err != nil {
		return nil, err
	}

	var match node.Node

	for _, name := range names {
		child, err := getter(name)
		if err != nil {
			continue
		}

		if fieldEquals(child, key, value) {
			match = child

			if !last {
				return match, nil
			}
		}
	}

	if match == nil {
		return nil, node.ErrNotFound
	}

	return match, nil
}

func fieldEquals(n node.Node, key, value string) bool {
	m, ok := fieldsOf(n)
	if !ok {
		return false
	}

	v, ok := m.Get(key)
	if !ok {
		return false
	}

	sc, ok := v.(*node.Scalar)

	return ok && !sc.IsBinary() && sc.Text() == value
}

// fieldsOf returns the Mapping backing n's queryable fields, unwrapping a
// File down to its parsed content.
func fieldsOf(n node.Node) (*node.Mapping, bool) {
	switch v := n.(type) {
	case *node.Mapping:
		return v, true
	case *File:
		data, err := v.GetData()
		if err != nil {
			return nil, false
		}

		m, ok := data.(*node.Mapping)

		return m, ok
	default:
		return nil, false
	}
}

func evalPositional(cur node.Node, last bool) (node.Node, error) {
	names, getter, err := containerChildren(cur)
	if err != nil {
		return nil, err
	}

	if len(names) == 0 {
		return nil, node.ErrNotFound
	}

	name := names[0]
	if last {
		name = names[len(names)-1]
	}

	return getter(name)
}

func evalNameRegex(cur node.Node, pattern string, last bool) (node.Node, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("hub: invalid query regex %q: %w", pattern, err)
	}

	names, getter, err := containerChildren(cur)
	if err != nil {
		return nil, err
	}

	var matchName string

	for _, name := range names {
		if re.MatchString(name) {
			matchName = name

			if !last {
				break
			}
		}
	}

	if matchName == "" {
		return nil, node.ErrNotFound
	}

	return getter(matchName)
}

// containerChildren adapts Directory, Mapping, and Sequence to a common
// (ordered names, lookup-by-name) shape so the query evaluators above do
// not need a case per container kind.
func containerChildren(cur node.Node) ([]string, func(string) (node.Node, error), error) {
	switch v := cur.(type) {
	case *Directory:
		names, err := v.Keys()
		if err != nil {
			return nil, nil, err
		}

		return names, v.Get, nil
	case *node.Mapping:
		return v.Keys(), func(k string) (node.Node, error) {
			child, ok := v.Get(k)
			if !ok {
				return nil, node.ErrNotFound
			}

			return child, nil
		}, nil
	case *node.Sequence:
		items := v.Items()
		names := make([]string, len(items))

		for i := range items {
			names[i] = fmt.Sprintf("%d", i)
		}

		return names, func(k string) (node.Node, error) {
			idx, ok := sequenceIndex(k)
			if !ok {
				return nil, node.ErrNotFound
			}

			child, ok := v.At(idx)
			if !ok {
				return nil, node.ErrNotFound
			}

			return child, nil
		}, nil
	case *File:
		data, err := v.GetData()
		if err != nil {
			return nil, nil, err
		}

		return containerChildren(data)
	default:
		return nil, nil, node.ErrWrongKind
	}
}
