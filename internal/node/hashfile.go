package node

import (
	"bufio"
	"bytes"
	"fmt"
	"strings"
)

// ParseHashFile parses the hub's native ordered key/value format: one
// "key = value" pair per line, "#"-prefixed comment lines and blank lines
// ignored, two-space indentation opens a nested Mapping, and a line of the
// form "key[]" opens a Sequence block whose items are "- value" lines until
// indentation drops back. The format is deliberately line-ordered so that a
// Mapping parsed from it preserves insertion order without requiring a
// side-channel ordering structure, the same property spec.md requires of
// every Mapping round-trip.
func ParseHashFile(data []byte) (*Mapping, error) {
	lines := splitLines(data)
	root := NewMapping()

	_, err := parseHashBlock(lines, 0, 0, root)
	if err != nil {
		return nil, err
	}

	return root, nil
}

func splitLines(data []byte) []string {
	var out []string

	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	for sc.Scan() {
		out = append(out, sc.Text())
	}

	return out
}

func indentOf(line string) int {
	n := 0

	for n < len(line) && line[n] == ' ' {
		n++
	}

	return n
}

// parseHashBlock consumes lines starting at idx that are indented exactly
// indent spaces, populating into. It returns the index of the first line
// that is not part of this block.
func parseHashBlock(lines []string, idx, indent int, into *Mapping) (int, error) {
	for idx < len(lines) {
		raw := lines[idx]
		trimmed := strings.TrimSpace(raw)

		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			idx++

			continue
		}

		lineIndent := indentOf(raw)
		if lineIndent < indent {
			return idx, nil
		}

		if lineIndent > indent {
			return idx, fmt.Errorf("hashfile: unexpected indent at line %d", idx+1)
		}

		if strings.HasSuffix(trimmed, "[]") {
			key := strings.TrimSuffix(trimmed, "[]")
			key = strings.TrimSpace(key)

			seq := NewSequence()
			next, err := parseHashSeq(lines, idx+1, indent+2, seq)
			if err != nil {
				return 0, err
			}

			into.Set(key, seq)
			idx = next

			continue
		}

		eq := strings.Index(trimmed, "=")
		if eq < 0 {
			return 0, fmt.Errorf("hashfile: missing '=' at line %d", idx+1)
		}

		key := strings.TrimSpace(trimmed[:eq])
		val := strings.TrimSpace(trimmed[eq+1:])

		if val == "" && idx+1 < len(lines) && indentOf(lines[idx+1]) > indent {
			nested := NewMapping()
			next, err := parseHashBlock(lines, idx+1, indent+2, nested)
			if err != nil {
				return 0, err
			}

			into.Set(key, nested)
			idx = next

			continue
		}

		into.Set(key, NewText(unquote(val)))
		idx++
	}

	return idx, nil
}

func parseHashSeq(lines []string, idx, indent int, into *Sequence) (int, error) {
	for idx < len(lines) {
		raw := lines[idx]
		trimmed := strings.TrimSpace(raw)

		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			idx++

			continue
		}

		lineIndent := indentOf(raw)
		if lineIndent < indent {
			return idx, nil
		}

		if !strings.HasPrefix(trimmed, "- ") && trimmed != "-" {
			return idx, nil
		}

		val := strings.TrimSpace(strings.TrimPrefix(trimmed, "-"))
		into.Append(NewText(unquote(val)))
		idx++
	}

	return idx, nil
}

func unquote(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}

	return s
}

// EncodeHashFile renders m back to the hashfile format, walking Keys() in
// stored order and never re-sorting. A load->save round-trip with no
// mutations keeps every key, value and their order, but is not
// byte-identical: comment lines and blank lines are not kept, and values
// are re-quoted by quoteIfNeeded rather than as they were written.
func EncodeHashFile(m *Mapping) []byte {
	var buf bytes.Buffer

	encodeHashMapping(&buf, m, 0)

	return buf.Bytes()
}

func encodeHashMapping(buf *bytes.Buffer, m *Mapping, indent int) {
	pad := strings.Repeat(" ", indent)

	for _, k := range m.Keys() {
		v, _ := m.Get(k)

		switch cv := v.(type) {
		case *Mapping:
			fmt.Fprintf(buf, "%s%s =\n", pad, k)
			encodeHashMapping(buf, cv, indent+2)
		case *Sequence:
			fmt.Fprintf(buf, "%s%s[]\n", pad, k)

			for _, item := range cv.Items() {
				if sc, ok := item.(*Scalar); ok {
					fmt.Fprintf(buf, "%s  - %s\n", pad, quoteIfNeeded(sc.Text()))
				}
			}
		case *Scalar:
			fmt.Fprintf(buf, "%s%s = %s\n", pad, k, quoteIfNeeded(cv.Text()))
		}
	}
}

func quoteIfNeeded(s string) string {
	if s == "" || strings.TrimSpace(s) != s || strings.ContainsAny(s, "#=") {
		return fmt.Sprintf("%q", s)
	}

	return s
}
