// Package frontmatter parses and serializes Markdown notes with a leading
// YAML frontmatter block, preserving key order and untouched values across
// get_path/set_path edits.
package frontmatter

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

const delimiter = "---"

// Document is a parsed Markdown note: a YAML frontmatter mapping plus the
// opaque Markdown body that follows it.
type Document struct {
	// root is the document's mapping node. Nil when the note carries no
	// frontmatter, in which case Body holds the full original content.
	root *yaml.Node
	Body string
}

// Parse splits content into frontmatter and body. Content that does not
// begin with a "---" line is returned with an empty mapping and the full
// content as Body.
func Parse(content []byte) (*Document, error) {
	text := string(content)
	if !strings.HasPrefix(text, delimiter) {
		return &Document{root: newEmptyMapping(), Body: text}, nil
	}

	// Find the line-terminated closing delimiter after the opening one.
	rest := text[len(delimiter):]
	// The opening delimiter must be followed by a newline (a bare "---"
	// line), not by more dashes or content on the same line.
	if len(rest) > 0 && rest[0] != '\n' && rest[0] != '\r' {
		return &Document{root: newEmptyMapping(), Body: text}, nil
	}

	closeIdx := findClosingDelimiter(rest)
	if closeIdx < 0 {
		return &Document{root: newEmptyMapping(), Body: text}, nil
	}

	yamlBlock := rest[:closeIdx]
	after := rest[closeIdx:]
	// after starts at the closing delimiter line itself; strip the
	// delimiter, its line terminator, and one following blank separator
	// line (the shape Serialize always emits).
	after = strings.TrimPrefix(after, delimiter)
	after = strings.TrimPrefix(after, "\r\n")
	after = strings.TrimPrefix(after, "\n")
	after = strings.TrimPrefix(after, "\r\n")
	after = strings.TrimPrefix(after, "\n")

	var doc yaml.Node
	if err := yaml.Unmarshal([]byte(yamlBlock), &doc); err != nil {
		return nil, fmt.Errorf("parse frontmatter: %w", err)
	}

	var mapping *yaml.Node
	if len(doc.Content) > 0 && doc.Content[0].Kind == yaml.MappingNode {
		mapping = doc.Content[0]
	} else {
		mapping = newEmptyMapping()
	}

	return &Document{root: mapping, Body: after}, nil
}

// findClosingDelimiter finds the index within s of a line consisting
// solely of "---" following the opening delimiter's newline, returning
// the index of the first character of that line (or -1 if not found).
func findClosingDelimiter(s string) int {
	lines := strings.SplitAfter(s, "\n")
	offset := 0
	for _, line := range lines {
		trimmed := strings.TrimRight(line, "\r\n")
		if trimmed == delimiter {
			return offset
		}
		offset += len(line)
	}
	return -1
}

func newEmptyMapping() *yaml.Node {
	return &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
}

// Serialize emits "---\n<yaml>\n---\n\n<body>".
func (d *Document) Serialize() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(delimiter)
	buf.WriteString("\n")

	if len(d.root.Content) > 0 {
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(d.root); err != nil {
			return nil, fmt.Errorf("marshal frontmatter: %w", err)
		}
		enc.Close()
	}

	buf.WriteString(delimiter)
	buf.WriteString("\n\n")
	buf.WriteString(d.Body)
	return buf.Bytes(), nil
}

// Get reads the value at a dotted path, returning (nil, false) if any
// segment is absent.
func (d *Document) Get(dottedKey string) (interface{}, bool) {
	node := findNode(d.root, strings.Split(dottedKey, "."), false)
	if node == nil {
		return nil, false
	}
	return nodeToValue(node), true
}

// Set writes value at a dotted path, creating intermediate mappings as
// needed. Keys outside the touched path are left byte-for-byte untouched.
func (d *Document) Set(dottedKey string, value interface{}) error {
	segments := strings.Split(dottedKey, ".")
	if len(segments) == 0 || segments[0] == "" {
		return fmt.Errorf("empty key")
	}

	parent := d.root
	for _, seg := range segments[:len(segments)-1] {
		child := lookupKey(parent, seg)
		if child == nil || child.Kind != yaml.MappingNode {
			newChild := newEmptyMapping()
			setKey(parent, seg, newChild)
			child = newChild
		}
		parent = child
	}

	valueNode, err := valueToNode(value)
	if err != nil {
		return err
	}
	setKey(parent, segments[len(segments)-1], valueNode)
	return nil
}

// Has reports whether a dotted path is present (even if its value is null).
func (d *Document) Has(dottedKey string) bool {
	node := findNode(d.root, strings.Split(dottedKey, "."), true)
	return node != nil
}

func findNode(mapping *yaml.Node, segments []string, allowNull bool) *yaml.Node {
	cur := mapping
	for i, seg := range segments {
		if cur == nil || cur.Kind != yaml.MappingNode {
			return nil
		}
		child := lookupKey(cur, seg)
		if child == nil {
			return nil
		}
		if i == len(segments)-1 {
			if !allowNull && child.Tag == "!!null" {
				return nil
			}
			return child
		}
		cur = child
	}
	return nil
}

// lookupKey returns the value node for key within a mapping node, or nil.
func lookupKey(mapping *yaml.Node, key string) *yaml.Node {
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		if mapping.Content[i].Value == key {
			return mapping.Content[i+1]
		}
	}
	return nil
}

// setKey inserts or replaces key's value within mapping, preserving the
// position of existing keys and appending new ones at the end.
func setKey(mapping *yaml.Node, key string, value *yaml.Node) {
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		if mapping.Content[i].Value == key {
			mapping.Content[i+1] = value
			return
		}
	}
	keyNode := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key}
	mapping.Content = append(mapping.Content, keyNode, value)
}

// Keys returns the top-level keys in insertion order.
func (d *Document) Keys() []string {
	keys := make([]string, 0, len(d.root.Content)/2)
	for i := 0; i+1 < len(d.root.Content); i += 2 {
		keys = append(keys, d.root.Content[i].Value)
	}
	return keys
}

// nodeToValue converts a yaml.Node into a JSON-compatible Go value,
// preserving numeric fidelity (ints stay int64, decimals stay float64).
func nodeToValue(node *yaml.Node) interface{} {
	switch node.Kind {
	case yaml.ScalarNode:
		switch node.Tag {
		case "!!null":
			return nil
		case "!!bool":
			b, _ := strconv.ParseBool(node.Value)
			return b
		case "!!int":
			n, err := strconv.ParseInt(node.Value, 10, 64)
			if err != nil {
				return node.Value
			}
			return n
		case "!!float":
			f, err := strconv.ParseFloat(node.Value, 64)
			if err != nil {
				return node.Value
			}
			return f
		default:
			return node.Value
		}
	case yaml.SequenceNode:
		out := make([]interface{}, len(node.Content))
		for i, c := range node.Content {
			out[i] = nodeToValue(c)
		}
		return out
	case yaml.MappingNode:
		out := make(map[string]interface{}, len(node.Content)/2)
		for i := 0; i+1 < len(node.Content); i += 2 {
			out[node.Content[i].Value] = nodeToValue(node.Content[i+1])
		}
		return out
	default:
		return nil
	}
}

// valueToNode converts a Go value into a yaml.Node, round-tripping
// through yaml.Marshal/Unmarshal so arbitrary nested structures (maps,
// slices, structs) are handled uniformly.
func valueToNode(value interface{}) (*yaml.Node, error) {
	data, err := yaml.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("marshal value: %w", err)
	}
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("unmarshal value: %w", err)
	}
	if len(doc.Content) == 0 {
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!null", Value: "null"}, nil
	}
	return doc.Content[0], nil
}
