package content

import (
	"context"
	"encoding/json"
	"maps"
	"slices"
)

// Kind is a CMS content type id.
type Kind string

const (
	KindService     Kind = "service"
	KindTeamMember  Kind = "teamMember"
	KindTestimonial Kind = "testimonial"
	KindPage        Kind = "page"
)

// Kinds lists every kind the pipeline understands.
var Kinds = []Kind{KindService, KindTeamMember, KindTestimonial, KindPage}

// ParseKind returns the kind named by s.
func ParseKind(s string) (Kind, bool) {
	for _, k := range Kinds {
		if string(k) == s {
			return k, true
		}
	}
	return "", false
}

// ImageReference points at a CMS asset. ContentHash changes whenever the
// asset's bytes change, so (AssetID, ContentHash) identifies one exact image.
type ImageReference struct {
	AssetID     string `json:"asset_id" yaml:"asset_id"`
	URL         string `json:"url" yaml:"url"`
	ContentHash string `json:"content_hash" yaml:"content_hash"`
	ContentType string `json:"content_type,omitempty" yaml:"content_type,omitempty"`
	Width       int    `json:"width,omitempty" yaml:"width,omitempty"`
	Height      int    `json:"height,omitempty" yaml:"height,omitempty"`
	Title       string `json:"title,omitempty" yaml:"title,omitempty"`
}

// Entry is one CMS entry. Exactly one of the kind payloads is set, matching Kind.
type Entry struct {
	Kind  Kind
	ID    string
	Order int

	Service     *Service
	TeamMember  *TeamMember
	Testimonial *Testimonial
	Page        *Page
}

// Images returns every image the entry references, embedded assets included.
func (e Entry) Images() []ImageReference {
	var refs []ImageReference
	add := func(r *ImageReference) {
		if r != nil {
			refs = append(refs, *r)
		}
	}
	switch {
	case e.TeamMember != nil:
		add(e.TeamMember.Photo)
	case e.Testimonial != nil:
		add(e.Testimonial.Photo)
	case e.Page != nil:
		add(e.Page.FeaturedImage)
		for _, id := range slices.Sorted(maps.Keys(e.Page.Assets)) {
			r := e.Page.Assets[id]
			add(&r)
		}
	}
	return refs
}

type Service struct {
	Title       string
	Slug        string
	Description string // markdown
	Features    []string
}

type TeamMember struct {
	Name        string
	Position    string
	Bio         string
	Photo       *ImageReference
	LinkedInURL string
}

type Testimonial struct {
	Quote   string
	Author  string
	Company string
	Role    string
	Photo   *ImageReference
}

type Page struct {
	Title string
	Slug  string
	// Content is the raw rich text document, nil when the entry has none.
	Content json.RawMessage
	// Assets holds the references embedded in Content that the CMS could resolve, by asset id.
	Assets         map[string]ImageReference
	SEOTitle       string
	SEODescription string
	FeaturedImage  *ImageReference
}

// Filter narrows a query. Only equality on indexed fields is supported.
type Filter struct {
	Slug string
}

// Source yields entries of one kind matching a filter. Zero matches is an
// empty slice, not an error.
type Source interface {
	FetchEntries(ctx context.Context, kind Kind, filter Filter) ([]Entry, error)
}

// AssetFetcher downloads the bytes of a referenced asset.
type AssetFetcher interface {
	FetchAsset(ctx context.Context, ref ImageReference) ([]byte, error)
}
