// Package richtext parses CMS rich text documents, resolves their embedded
// assets into derived images and renders the result as HTML.
package richtext

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"git.home.luguber.info/inful/sitebuilder/internal/asset"
)

// Kind is the type of a rich text node.
type Kind string

const (
	KindDocument      Kind = "document"
	KindText          Kind = "text"
	KindParagraph     Kind = "paragraph"
	KindHeading       Kind = "heading"
	KindEmbeddedAsset Kind = "embedded-asset"
	KindLink          Kind = "link"
	KindList          Kind = "list"
	KindListItem      Kind = "list-item"
	KindQuote         Kind = "quote"
	KindRule          Kind = "rule"
	// KindImage is an embedded asset whose derivation succeeded.
	KindImage Kind = "image"
	// KindMissingAsset marks an embedded asset that could not be resolved.
	KindMissingAsset Kind = "missing-asset"
	// KindUnknown keeps node types this package does not model, children intact.
	KindUnknown Kind = "unknown"
)

// Mark is a text formatting flag.
type Mark string

const (
	MarkBold      Mark = "bold"
	MarkItalic    Mark = "italic"
	MarkUnderline Mark = "underline"
	MarkCode      Mark = "code"
)

// Node is one element of a rich text tree. Trees returned by this package
// are never modified after construction.
type Node struct {
	Kind     Kind
	Text     string // KindText
	Marks    []Mark // KindText
	Level    int    // KindHeading, 1..6
	Ordered  bool   // KindList
	Target   string // KindLink
	AssetID  string // KindEmbeddedAsset, KindImage, KindMissingAsset
	RawType  string // original node type for KindUnknown
	Image    *asset.DerivedImage
	Reason   string // KindMissingAsset
	Children []*Node
}

// PlainText concatenates the text of n and its descendants, with block
// elements separated by a single space.
func (n *Node) PlainText() string {
	var b strings.Builder
	var walk func(*Node)
	walk = func(n *Node) {
		if n == nil {
			return
		}
		if n.Kind == KindText {
			b.WriteString(n.Text)
			return
		}
		for _, c := range n.Children {
			walk(c)
		}
		if n.Kind != KindLink {
			b.WriteByte(' ')
		}
	}
	walk(n)
	return strings.Join(strings.Fields(b.String()), " ")
}

// Empty reports whether the document has no visible content.
func (n *Node) Empty() bool {
	if n == nil {
		return true
	}
	var visible func(*Node) bool
	visible = func(n *Node) bool {
		switch n.Kind {
		case KindText:
			return strings.TrimSpace(n.Text) != ""
		case KindEmbeddedAsset, KindImage, KindMissingAsset, KindRule:
			return true
		}
		for _, c := range n.Children {
			if visible(c) {
				return true
			}
		}
		return false
	}
	return !visible(n)
}

// wireNode is the CMS JSON shape of a node.
type wireNode struct {
	NodeType string                  `json:"nodeType"`
	Value    string                  `json:"value"`
	Marks    []struct{ Type string } `json:"marks"`
	Data     json.RawMessage         `json:"data"`
	Content  []wireNode              `json:"content"`
}

type wireData struct {
	URI    string `json:"uri"`
	Target struct {
		Sys struct {
			ID string `json:"id"`
		} `json:"sys"`
	} `json:"target"`
}

// Parse decodes a CMS rich text document.
func Parse(raw []byte) (*Node, error) {
	var w wireNode
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, fmt.Errorf("parse rich text: %w", err)
	}
	if w.NodeType != "document" {
		return nil, fmt.Errorf("parse rich text: root node is %q, want \"document\"", w.NodeType)
	}
	return convert(w), nil
}

func convert(w wireNode) *Node {
	n := &Node{}
	var data wireData
	if len(w.Data) > 0 {
		_ = json.Unmarshal(w.Data, &data)
	}

	switch {
	case w.NodeType == "document":
		n.Kind = KindDocument
	case w.NodeType == "text":
		n.Kind = KindText
		n.Text = w.Value
		for _, m := range w.Marks {
			n.Marks = append(n.Marks, Mark(m.Type))
		}
		return n
	case w.NodeType == "paragraph":
		n.Kind = KindParagraph
	case strings.HasPrefix(w.NodeType, "heading-"):
		level, err := strconv.Atoi(strings.TrimPrefix(w.NodeType, "heading-"))
		if err != nil || level < 1 || level > 6 {
			n.Kind, n.RawType = KindUnknown, w.NodeType
			break
		}
		n.Kind, n.Level = KindHeading, level
	case w.NodeType == "embedded-asset-block":
		n.Kind = KindEmbeddedAsset
		n.AssetID = data.Target.Sys.ID
		return n
	case w.NodeType == "hyperlink":
		n.Kind, n.Target = KindLink, data.URI
	case w.NodeType == "unordered-list", w.NodeType == "ordered-list":
		n.Kind, n.Ordered = KindList, w.NodeType == "ordered-list"
	case w.NodeType == "list-item":
		n.Kind = KindListItem
	case w.NodeType == "blockquote":
		n.Kind = KindQuote
	case w.NodeType == "hr":
		n.Kind = KindRule
		return n
	default:
		n.Kind, n.RawType = KindUnknown, w.NodeType
	}

	for _, c := range w.Content {
		n.Children = append(n.Children, convert(c))
	}
	return n
}

// Paragraph builds a one-paragraph document, used for static fallback copy.
func Paragraph(text string) *Node {
	return &Node{Kind: KindDocument, Children: []*Node{
		{Kind: KindParagraph, Children: []*Node{{Kind: KindText, Text: text}}},
	}}
}
