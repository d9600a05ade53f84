package node

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ParseJSONFile parses data into a Mapping or Sequence, preserving object key
// order. encoding/json's map[string]any cannot do this (Go maps have no
// order), so this walks the token stream by hand — the same reason
// internal/node defines Mapping at all instead of leaning on stdlib maps.
func ParseJSONFile(data []byte) (Node, error) {
	dec := json.NewDecoder(bytes.NewReader(data))

	n, err := decodeJSONValue(dec)
	if err != nil {
		return nil, err
	}

	return n, nil
}

func decodeJSONValue(dec *json.Decoder) (Node, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}

	return decodeJSONToken(dec, tok)
}

func decodeJSONToken(dec *json.Decoder, tok json.Token) (Node, error) {
	switch v := tok.(type) {
	case json.Delim:
		switch v {
		case '{':
			return decodeJSONObject(dec)
		case '[':
			return decodeJSONArray(dec)
		default:
			return nil, fmt.Errorf("node: unexpected JSON delimiter %q", v)
		}
	case string:
		return NewText(v), nil
	case float64:
		return NewText(trimFloat(v)), nil
	case bool:
		if v {
			return NewText("true"), nil
		}

		return NewText("false"), nil
	case nil:
		return NewText(""), nil
	default:
		return nil, fmt.Errorf("node: unsupported JSON token %v", tok)
	}
}

func trimFloat(f float64) string {
	s := fmt.Sprintf("%g", f)

	return s
}

func decodeJSONObject(dec *json.Decoder) (Node, error) {
	m := NewMapping()

	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, err
		}

		key, ok := keyTok.(string)
		if !ok {
			return nil, fmt.Errorf("node: JSON object key must be a string, got %v", keyTok)
		}

		val, err := decodeJSONValue(dec)
		if err != nil {
			return nil, err
		}

		m.Set(key, val)
	}

	if _, err := dec.Token(); err != nil { // consume closing '}'
		return nil, err
	}

	return m, nil
}

func decodeJSONArray(dec *json.Decoder) (Node, error) {
	seq := NewSequence()

	for dec.More() {
		val, err := decodeJSONValue(dec)
		if err != nil {
			return nil, err
		}

		seq.Append(val)
	}

	if _, err := dec.Token(); err != nil { // consume closing ']'
		return nil, err
	}

	return seq, nil
}

// EncodeJSONFile renders n back to JSON text, preserving Mapping key order.
func EncodeJSONFile(n Node) ([]byte, error) {
	var buf bytes.Buffer

	if err := encodeJSONValue(&buf, n); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

func encodeJSONValue(buf *bytes.Buffer, n Node) error {
	switch v := n.(type) {
	case nil:
		buf.WriteString("null")

		return nil
	case *Scalar:
		if v.IsBinary() {
			enc, err := json.Marshal(v.Bytes())
			if err != nil {
				return err
			}

			buf.Write(enc)

			return nil
		}

		enc, err := json.Marshal(v.Text())
		if err != nil {
			return err
		}

		buf.Write(enc)

		return nil
	case *Mapping:
		buf.WriteByte('{')

		for i, k := range v.Keys() {
			if i > 0 {
				buf.WriteByte(',')
			}

			keyEnc, err := json.Marshal(k)
			if err != nil {
				return err
			}

			buf.Write(keyEnc)
			buf.WriteByte(':')

			child, _ := v.Get(k)
			if err := encodeJSONValue(buf, child); err != nil {
				return err
			}
		}

		buf.WriteByte('}')

		return nil
	case *Sequence:
		buf.WriteByte('[')

		for i, item := range v.Items() {
			if i > 0 {
				buf.WriteByte(',')
			}

			if err := encodeJSONValue(buf, item); err != nil {
				return err
			}
		}

		buf.WriteByte(']')

		return nil
	default:
		return fmt.Errorf("node: cannot JSON-encode kind %v", n.Kind())
	}
}
