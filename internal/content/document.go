// Package content models the structured rich-text document stored in a
// post body: a tree of typed nodes as produced by ProseMirror-style editors.
package content

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
)

// WordsPerMinute is the reading speed used for read-time estimates.
const WordsPerMinute = 200

var (
	ErrEmpty   = errors.New("content is empty")
	ErrInvalid = errors.New("content is not a document")
)

// Node is one element of the document tree. Leaf text lives in Text;
// "markdown" nodes carry a raw Markdown body in Text.
type Node struct {
	Type    string         `json:"type"`
	Text    string         `json:"text,omitempty"`
	Attrs   map[string]any `json:"attrs,omitempty"`
	Marks   []Mark         `json:"marks,omitempty"`
	Content []Node         `json:"content,omitempty"`
}

type Mark struct {
	Type  string         `json:"type"`
	Attrs map[string]any `json:"attrs,omitempty"`
}

// Parse decodes raw JSON into a document. A bare JSON string is accepted as
// Markdown and wrapped in a doc with a single markdown node; a bare array is
// taken as the doc's children.
func Parse(raw []byte) (Node, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return Node{}, ErrEmpty
	}

	switch trimmed[0] {
	case '"':
		var md string
		if err := json.Unmarshal(trimmed, &md); err != nil {
			return Node{}, fmt.Errorf("%w: %v", ErrInvalid, err)
		}
		return Markdown(md), nil
	case '[':
		var children []Node
		if err := json.Unmarshal(trimmed, &children); err != nil {
			return Node{}, fmt.Errorf("%w: %v", ErrInvalid, err)
		}
		return Node{Type: "doc", Content: children}, nil
	case '{':
		var doc Node
		if err := json.Unmarshal(trimmed, &doc); err != nil {
			return Node{}, fmt.Errorf("%w: %v", ErrInvalid, err)
		}
		if doc.Type == "" {
			return Node{}, fmt.Errorf("%w: missing node type", ErrInvalid)
		}
		return doc, nil
	default:
		return Node{}, ErrInvalid
	}
}

// Markdown wraps a Markdown string as a document.
func Markdown(md string) Node {
	return Node{Type: "doc", Content: []Node{{Type: "markdown", Text: md}}}
}

// Paragraphs builds a doc with one paragraph per string.
func Paragraphs(texts ...string) Node {
	doc := Node{Type: "doc"}
	for _, text := range texts {
		doc.Content = append(doc.Content, Node{
			Type:    "paragraph",
			Content: []Node{{Type: "text", Text: text}},
		})
	}
	return doc
}

// Encode marshals the document for storage.
func Encode(doc Node) ([]byte, error) {
	return json.Marshal(doc)
}

// IsEmpty reports whether the document has neither text nor media.
func IsEmpty(doc Node) bool {
	return !hasSubstance(doc)
}

func hasSubstance(n Node) bool {
	if strings.TrimSpace(n.Text) != "" {
		return true
	}
	switch n.Type {
	case "image", "youtube":
		return true
	}
	for _, child := range n.Content {
		if hasSubstance(child) {
			return true
		}
	}
	return false
}

// PlainText flattens the document, separating blocks with newlines.
func PlainText(doc Node) string {
	var b strings.Builder
	writeText(&b, doc)
	return strings.TrimSpace(b.String())
}

func writeText(b *strings.Builder, n Node) {
	switch n.Type {
	case "hardBreak":
		b.WriteByte('\n')
		return
	case "image":
		if alt, ok := n.Attrs["alt"].(string); ok && alt != "" {
			b.WriteString(alt)
			b.WriteByte('\n')
		}
		return
	}

	b.WriteString(n.Text)
	for _, child := range n.Content {
		writeText(b, child)
	}
	if n.Type != "text" && n.Type != "doc" {
		b.WriteByte('\n')
	}
}

// WordCount counts whitespace separated words.
func WordCount(doc Node) int {
	return len(strings.Fields(PlainText(doc)))
}

// ReadTime estimates minutes to read doc, never less than one.
func ReadTime(doc Node) int {
	minutes := int(math.Ceil(float64(WordCount(doc)) / WordsPerMinute))
	if minutes < 1 {
		return 1
	}
	return minutes
}
