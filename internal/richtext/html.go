package richtext

import (
	"bytes"
	"fmt"
	"html/template"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var markElements = map[Mark]atom.Atom{
	MarkBold:      atom.Strong,
	MarkItalic:    atom.Em,
	MarkUnderline: atom.U,
	MarkCode:      atom.Code,
}

// RenderHTML renders a resolved document as an HTML fragment.
func RenderHTML(doc *Node) (template.HTML, error) {
	if doc == nil {
		return "", nil
	}
	var buf bytes.Buffer
	for _, n := range toHTML(doc) {
		if err := html.Render(&buf, n); err != nil {
			return "", fmt.Errorf("render rich text: %w", err)
		}
	}
	// #nosec G203 - produced by html.Render, which escapes text and attributes
	return template.HTML(buf.String()), nil
}

func element(a atom.Atom, attrs ...html.Attribute) *html.Node {
	return &html.Node{Type: html.ElementNode, DataAtom: a, Data: a.String(), Attr: attrs}
}

func attr(key, val string) html.Attribute {
	return html.Attribute{Key: key, Val: val}
}

func appendAll(parent *html.Node, children []*html.Node) *html.Node {
	for _, c := range children {
		parent.AppendChild(c)
	}
	return parent
}

func childrenHTML(n *Node) []*html.Node {
	var out []*html.Node
	for _, c := range n.Children {
		out = append(out, toHTML(c)...)
	}
	return out
}

// toHTML converts n into zero or more sibling HTML nodes.
func toHTML(n *Node) []*html.Node {
	switch n.Kind {
	case KindDocument:
		return childrenHTML(n)
	case KindText:
		out := &html.Node{Type: html.TextNode, Data: n.Text}
		for i := len(n.Marks) - 1; i >= 0; i-- {
			a, ok := markElements[n.Marks[i]]
			if !ok {
				continue
			}
			wrapper := element(a)
			wrapper.AppendChild(out)
			out = wrapper
		}
		return []*html.Node{out}
	case KindParagraph:
		return []*html.Node{appendAll(element(atom.P), childrenHTML(n))}
	case KindHeading:
		headings := [...]atom.Atom{atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6}
		return []*html.Node{appendAll(element(headings[n.Level-1]), childrenHTML(n))}
	case KindLink:
		href, ok := safeHref(n.Target)
		if !ok {
			return childrenHTML(n)
		}
		return []*html.Node{appendAll(element(atom.A, attr("href", href)), childrenHTML(n))}
	case KindList:
		tag := atom.Ul
		if n.Ordered {
			tag = atom.Ol
		}
		return []*html.Node{appendAll(element(tag), childrenHTML(n))}
	case KindListItem:
		return []*html.Node{appendAll(element(atom.Li), childrenHTML(n))}
	case KindQuote:
		return []*html.Node{appendAll(element(atom.Blockquote), childrenHTML(n))}
	case KindRule:
		return []*html.Node{element(atom.Hr)}
	case KindImage:
		return []*html.Node{imageHTML(n)}
	case KindEmbeddedAsset, KindMissingAsset:
		return []*html.Node{element(atom.Div,
			attr("class", "image-missing"),
			attr("role", "img"),
			attr("aria-label", "Image unavailable"),
			attr("data-asset", n.AssetID))}
	default:
		return []*html.Node{appendAll(element(atom.Div, attr("data-node-type", n.RawType)), childrenHTML(n))}
	}
}

var linkSchemes = map[string]bool{"http": true, "https": true, "mailto": true, "tel": true}

// safeHref accepts relative targets and http, https, mailto and tel URLs.
// Other targets render as their link text only.
func safeHref(target string) (string, bool) {
	target = strings.TrimSpace(target)
	if target == "" {
		return "", false
	}
	u, err := url.Parse(target)
	if err != nil {
		return "", false
	}
	if u.Scheme == "" {
		// a colon ahead of any path or query separator is an unparsed scheme
		if i := strings.IndexAny(target, ":/?#"); i >= 0 && target[i] == ':' {
			return "", false
		}
		return target, true
	}
	return target, linkSchemes[strings.ToLower(u.Scheme)]
}

func imageHTML(n *Node) *html.Node {
	img := n.Image
	fig := element(atom.Figure, attr("class", "rich-image"))
	picture := element(atom.Picture)
	for _, v := range img.Variants {
		picture.AppendChild(element(atom.Source,
			attr("type", v.Format.ContentType()),
			attr("srcset", "/"+v.Path)))
	}
	attrs := []html.Attribute{
		attr("src", "/"+img.Path),
		attr("alt", img.Alt()),
		attr("width", strconv.Itoa(img.Width)),
		attr("height", strconv.Itoa(img.Height)),
		attr("loading", "lazy"),
		attr("decoding", "async"),
	}
	if img.Placeholder != "" {
		attrs = append(attrs, attr("style", fmt.Sprintf("background-color:%s;background-image:url(%s);background-size:cover", img.DominantColor, img.Placeholder)))
	}
	picture.AppendChild(element(atom.Img, attrs...))
	fig.AppendChild(picture)
	if title := img.Alt(); title != "" {
		caption := element(atom.Figcaption)
		caption.AppendChild(&html.Node{Type: html.TextNode, Data: title})
		fig.AppendChild(caption)
	}
	return fig
}
