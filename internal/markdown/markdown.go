// Package markdown renders CMS long-text fields to sanitized HTML.
package markdown

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"

	bm "github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

// Renderer converts markdown to sanitized HTML. It is safe for concurrent use.
type Renderer struct {
	md     goldmark.Markdown
	policy *bm.Policy
}

// New creates a renderer with GitHub-flavored extensions and the UGC sanitizer policy.
func New() *Renderer {
	policy := bm.UGCPolicy()
	policy.RequireNoFollowOnLinks(false)
	policy.AddTargetBlankToFullyQualifiedLinks(true)
	return &Renderer{
		md:     goldmark.New(goldmark.WithExtensions(extension.GFM)),
		policy: policy,
	}
}

// Render converts text to HTML. Raw HTML in the source is escaped by
// goldmark and anything that slips through is removed by the sanitizer.
func (r *Renderer) Render(text string) (template.HTML, error) {
	if strings.TrimSpace(text) == "" {
		return "", nil
	}
	var buf bytes.Buffer
	if err := r.md.Convert([]byte(text), &buf); err != nil {
		return "", fmt.Errorf("convert markdown: %w", err)
	}
	// #nosec G203 - sanitized by the UGC policy
	return template.HTML(r.policy.SanitizeBytes(buf.Bytes())), nil
}

// Plain renders text and falls back to escaped text on error, for use in templates.
func (r *Renderer) Plain(text string) template.HTML {
	out, err := r.Render(text)
	if err != nil {
		return template.HTML(template.HTMLEscapeString(text)) // #nosec G203 - escaped
	}
	return out
}
