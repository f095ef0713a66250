package page

import (
	"git.home.luguber.info/inful/sitebuilder/internal/asset"
	"git.home.luguber.info/inful/sitebuilder/internal/content"
	"git.home.luguber.info/inful/sitebuilder/internal/richtext"
)

// Query selects entries for one section of a route.
type Query struct {
	Name      string
	Kind      content.Kind
	Filter    content.Filter
	Mandatory bool
	// OrderBy names the field collections are stably sorted by; "order" or empty.
	OrderBy string
}

// Fallback is static copy used when the page entry is absent or lacks a field.
type Fallback struct {
	Title    string
	SEOTitle string
	Intro    string
}

// RouteSpec declares everything a route needs to be assembled.
type RouteSpec struct {
	Path string
	// Kind is the template the route renders with.
	Kind     string
	Critical bool
	// Page selects the page entry backing the route's title, SEO and body.
	Page     *Query
	Queries  []Query
	Fallback Fallback

	HeroSpec  asset.Spec
	BodySpec  asset.Spec
	PhotoSpec asset.Spec
	// RequireHero makes the hero image mandatory for the route.
	RequireHero bool
}

type SEO struct {
	Title       string
	Description string
}

// Model is the renderer-ready result for one route. It is never modified
// after Assemble returns it.
type Model struct {
	Route string
	Kind  string
	Title string
	SEO   SEO
	// HeroImage is nil when the page has no featured image or it could not be derived.
	HeroImage *asset.DerivedImage
	// Body is the resolved page document, or the fallback intro when the page has none.
	Body         *richtext.Node
	BodyFallback bool
	Collections  []Collection
}

// Collection is an ordered section of entries. Entries is never nil.
type Collection struct {
	Name    string
	Kind    content.Kind
	Entries []ResolvedEntry
}

// ResolvedEntry is an entry together with its derived presentation data.
type ResolvedEntry struct {
	content.Entry
	// Image is the derived photo; nil when the entry has none or derivation failed.
	Image *asset.DerivedImage
	// Icon is the service icon name, set for services only.
	Icon string
}

// Collection returns the named collection, or an empty one when the route
// declares no such query.
func (m *Model) Collection(name string) Collection {
	for _, c := range m.Collections {
		if c.Name == name {
			return c
		}
	}
	return Collection{Name: name, Entries: []ResolvedEntry{}}
}
