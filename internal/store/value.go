// Conversions between command-line text and stored JSON values.

package store

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/buger/jsonparser"
	"gopkg.in/yaml.v3"
)

// ParseValue converts user input into the JSON value to store.
//
// Input that is valid JSON is kept as that value, compacted. Anything else,
// including the empty string, becomes a JSON string containing s.
func ParseValue(s string) json.RawMessage {
	b := []byte(s)
	if json.Valid(b) {
		var buf bytes.Buffer
		if err := json.Compact(&buf, b); err == nil {
			return buf.Bytes()
		}
	}
	return encodeString(s)
}

// encodeString returns s as a JSON string. Unlike json.Marshal, it leaves
// <, > and & unescaped.
func encodeString(s string) json.RawMessage {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	// Encoding a string cannot fail.
	_ = enc.Encode(s)
	return bytes.TrimSuffix(buf.Bytes(), []byte{'\n'})
}

// IsFalsy reports whether v is null, false, a numeric zero, an empty string,
// an empty array or an empty object.
func IsFalsy(v json.RawMessage) bool {
	val, typ, _, err := jsonparser.Get(v)
	if err != nil {
		return false
	}
	switch typ {
	case jsonparser.Null:
		return true
	case jsonparser.Boolean:
		b, err := jsonparser.ParseBoolean(val)
		return err == nil && !b
	case jsonparser.Number:
		f, err := jsonparser.ParseFloat(val)
		return err == nil && f == 0
	case jsonparser.String:
		return len(val) == 0
	case jsonparser.Array, jsonparser.Object:
		// val includes the enclosing brackets.
		return len(val) >= 2 && len(bytes.TrimSpace(val[1:len(val)-1])) == 0
	default:
		return false
	}
}

// Indent renders v as JSON indented with two spaces.
func Indent(v json.RawMessage) string {
	var buf bytes.Buffer
	if err := json.Indent(&buf, v, "", "  "); err != nil {
		return string(v)
	}
	return buf.String()
}

// ToYAML renders v as a YAML document, keeping object keys in order.
func ToYAML(v json.RawMessage) ([]byte, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(v, &doc); err != nil {
		return nil, fmt.Errorf("failed to convert value to YAML: %w", err)
	}
	resetStyle(&doc)
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return nil, fmt.Errorf("failed to encode YAML: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("failed to encode YAML: %w", err)
	}
	return buf.Bytes(), nil
}

// resetStyle drops the flow and quoting styles inherited from the JSON
// syntax so the encoder picks block style and quotes only when needed.
func resetStyle(n *yaml.Node) {
	n.Style = 0
	for _, c := range n.Content {
		resetStyle(c)
	}
}
