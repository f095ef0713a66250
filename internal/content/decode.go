package content

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

// assetLookup resolves an asset id to its reference; ok is false when the
// CMS did not include the asset (unpublished or deleted).
type assetLookup func(id string) (ImageReference, bool)

// decodeEntry turns a raw field map into a typed Entry. Required fields must
// be present and non-empty; optional fields decode to their zero value.
func decodeEntry(kind Kind, id string, fields map[string]any, assets assetLookup) (Entry, error) {
	d := fieldDecoder{kind: kind, id: id, fields: fields, assets: assets}
	e := Entry{Kind: kind, ID: id, Order: d.optionalInt("order")}

	switch kind {
	case KindService:
		e.Service = &Service{
			Title:       d.required("title"),
			Slug:        d.required("slug"),
			Description: d.optional("description"),
			Features:    d.stringList("features"),
		}
	case KindTeamMember:
		e.TeamMember = &TeamMember{
			Name:        d.required("name"),
			Position:    d.required("position"),
			Bio:         d.optional("bio"),
			Photo:       d.image("photo"),
			LinkedInURL: d.optional("linkedInUrl"),
		}
	case KindTestimonial:
		e.Testimonial = &Testimonial{
			Quote:   d.required("quote"),
			Author:  d.required("author"),
			Company: d.optional("company"),
			Role:    d.optional("role"),
			Photo:   d.image("photo"),
		}
	case KindPage:
		p := &Page{
			Title:          d.required("title"),
			Slug:           d.required("slug"),
			SEOTitle:       d.optional("seoTitle"),
			SEODescription: d.optional("seoDescription"),
			FeaturedImage:  d.image("featuredImage"),
		}
		p.Content, p.Assets = d.richText("content")
		e.Page = p
	default:
		return Entry{}, schemaMismatch(kind, id, "sys.contentType", "is not a known content type")
	}

	if d.err != nil {
		return Entry{}, d.err
	}
	return e, nil
}

// fieldDecoder records the first failure and turns later calls into no-ops.
type fieldDecoder struct {
	kind   Kind
	id     string
	fields map[string]any
	assets assetLookup
	err    error
}

func (d *fieldDecoder) fail(field, reason string) {
	if d.err == nil {
		d.err = schemaMismatch(d.kind, d.id, field, reason)
	}
}

func (d *fieldDecoder) required(name string) string {
	v, ok := d.fields[name]
	if !ok || v == nil {
		d.fail(name, "is required")
		return ""
	}
	s, ok := v.(string)
	if !ok {
		d.fail(name, fmt.Sprintf("must be text, got %T", v))
		return ""
	}
	if strings.TrimSpace(s) == "" {
		d.fail(name, "is required")
		return ""
	}
	return s
}

func (d *fieldDecoder) optional(name string) string {
	v, ok := d.fields[name]
	if !ok || v == nil {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		d.fail(name, fmt.Sprintf("must be text, got %T", v))
		return ""
	}
	return s
}

func (d *fieldDecoder) optionalInt(name string) int {
	v, ok := d.fields[name]
	if !ok || v == nil {
		return 0
	}
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		if n != math.Trunc(n) {
			d.fail(name, "must be an integer")
			return 0
		}
		return int(n)
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			d.fail(name, "must be an integer")
			return 0
		}
		return int(i)
	default:
		d.fail(name, fmt.Sprintf("must be an integer, got %T", v))
		return 0
	}
}

func (d *fieldDecoder) stringList(name string) []string {
	v, ok := d.fields[name]
	if !ok || v == nil {
		return nil
	}
	items, ok := v.([]any)
	if !ok {
		d.fail(name, fmt.Sprintf("must be a list, got %T", v))
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		s, ok := item.(string)
		if !ok {
			d.fail(name, "must contain only text")
			return nil
		}
		out = append(out, s)
	}
	return out
}

// image resolves an asset link field. An unresolvable link is an absent image.
func (d *fieldDecoder) image(name string) *ImageReference {
	v, ok := d.fields[name]
	if !ok || v == nil {
		return nil
	}
	id, ok := linkID(v)
	if !ok {
		d.fail(name, "must be an asset link")
		return nil
	}
	ref, ok := d.assets(id)
	if !ok {
		return nil
	}
	return &ref
}

func (d *fieldDecoder) richText(name string) (json.RawMessage, map[string]ImageReference) {
	v, ok := d.fields[name]
	if !ok || v == nil {
		return nil, nil
	}
	doc, ok := v.(map[string]any)
	if !ok {
		d.fail(name, fmt.Sprintf("must be a rich text document, got %T", v))
		return nil, nil
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		d.fail(name, "is not serializable: "+err.Error())
		return nil, nil
	}
	assets := map[string]ImageReference{}
	collectEmbeddedAssets(doc, func(id string) {
		if ref, ok := d.assets(id); ok {
			assets[id] = ref
		}
	})
	return raw, assets
}

// linkID extracts sys.id from a link object ({"sys": {"id": ...}}).
func linkID(v any) (string, bool) {
	m, ok := v.(map[string]any)
	if !ok {
		return "", false
	}
	sys, ok := m["sys"].(map[string]any)
	if !ok {
		return "", false
	}
	id, ok := sys["id"].(string)
	return id, ok && id != ""
}

func collectEmbeddedAssets(node map[string]any, visit func(id string)) {
	if nt, _ := node["nodeType"].(string); nt == "embedded-asset-block" {
		if data, ok := node["data"].(map[string]any); ok {
			if id, ok := linkID(data["target"]); ok {
				visit(id)
			}
		}
	}
	children, _ := node["content"].([]any)
	for _, c := range children {
		if child, ok := c.(map[string]any); ok {
			collectEmbeddedAssets(child, visit)
		}
	}
}
