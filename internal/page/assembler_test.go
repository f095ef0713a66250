package page

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/sitebuilder/internal/asset"
	"git.home.luguber.info/inful/sitebuilder/internal/content"
	"git.home.luguber.info/inful/sitebuilder/internal/richtext"
)

type fakeSource struct {
	entries map[content.Kind][]content.Entry
	errs    map[content.Kind]error
}

func (f *fakeSource) FetchEntries(_ context.Context, kind content.Kind, filter content.Filter) ([]content.Entry, error) {
	if err := f.errs[kind]; err != nil {
		return nil, err
	}
	out := []content.Entry{}
	for _, e := range f.entries[kind] {
		if filter.Slug != "" && e.Page != nil && e.Page.Slug != filter.Slug {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

type fakeDeriver struct {
	mu    sync.Mutex
	fail  map[string]bool
	calls []string
}

func (f *fakeDeriver) Derive(_ context.Context, ref content.ImageReference, spec asset.Spec) (*asset.DerivedImage, error) {
	f.mu.Lock()
	f.calls = append(f.calls, ref.AssetID)
	f.mu.Unlock()
	if f.fail[ref.AssetID] {
		return nil, asset.ErrDerivation
	}
	return &asset.DerivedImage{Key: "k-" + ref.AssetID, Source: ref, Width: spec.Width, Path: "img/" + ref.AssetID + ".jpg"}, nil
}

func img(id string) *content.ImageReference {
	return &content.ImageReference{AssetID: id, URL: "//cdn/" + id, ContentHash: "r1"}
}

func member(id, name string, order int, photo *content.ImageReference) content.Entry {
	return content.Entry{Kind: content.KindTeamMember, ID: id, Order: order,
		TeamMember: &content.TeamMember{Name: name, Position: "Consultant", Photo: photo}}
}

func aboutPage(title string, featured *content.ImageReference, body string) content.Entry {
	p := &content.Page{Title: title, Slug: "about", FeaturedImage: featured}
	if body != "" {
		p.Content = json.RawMessage(body)
	}
	return content.Entry{Kind: content.KindPage, ID: "page-about", Page: p}
}

func aboutSpec() RouteSpec {
	return RouteSpec{
		Path:      "/about",
		Kind:      "about",
		Critical:  true,
		Page:      &Query{Name: "page", Kind: content.KindPage, Filter: content.Filter{Slug: "about"}},
		Queries:   []Query{{Name: "team", Kind: content.KindTeamMember, OrderBy: OrderByOrder}},
		Fallback:  Fallback{Title: "About Us", SEOTitle: "About Us | Technology Consulting", Intro: "We're a team."},
		HeroSpec:  asset.Spec{Width: 1920, Height: 1080},
		PhotoSpec: asset.Spec{Width: 400, Height: 400},
	}
}

func TestAssemble_AboutEndToEnd(t *testing.T) {
	src := &fakeSource{entries: map[content.Kind][]content.Entry{
		content.KindTeamMember: {member("tm1", "Ada", 0, img("p1")), member("tm2", "Grace", 0, img("p2"))},
		content.KindPage:       {aboutPage("About Our Firm", nil, "")},
	}}
	m, err := NewAssembler(src, &fakeDeriver{}).Assemble(context.Background(), aboutSpec())
	require.NoError(t, err)

	assert.Equal(t, "/about", m.Route)
	assert.Equal(t, "About Our Firm", m.Title)
	require.Len(t, m.Collections, 1)
	team := m.Collections[0]
	require.Len(t, team.Entries, 2)
	for _, e := range team.Entries {
		require.NotNil(t, e.Image)
		assert.Equal(t, 400, e.Image.Width)
	}
	assert.Equal(t, "Ada", team.Entries[0].TeamMember.Name)
	assert.Nil(t, m.HeroImage)
	assert.True(t, m.BodyFallback)
	assert.Equal(t, "We're a team.", m.Body.PlainText())
	assert.Equal(t, "About Us | Technology Consulting", m.SEO.Title)
}

func TestAssemble_StableOrdering(t *testing.T) {
	src := &fakeSource{entries: map[content.Kind][]content.Entry{
		content.KindTeamMember: {
			member("a", "A", 3, nil),
			member("b", "B", 1, nil),
			member("c", "C", 1, nil),
			member("d", "D", 2, nil),
		},
	}}
	m, err := NewAssembler(src, &fakeDeriver{}).Assemble(context.Background(), aboutSpec())
	require.NoError(t, err)

	var ids []string
	var orders []int
	for _, e := range m.Collection("team").Entries {
		ids = append(ids, e.ID)
		orders = append(orders, e.Order)
	}
	assert.Equal(t, []int{1, 1, 2, 3}, orders)
	assert.Equal(t, []string{"b", "c", "d", "a"}, ids)
}

func TestAssemble_EmptyOptionalCollection(t *testing.T) {
	m, err := NewAssembler(&fakeSource{}, &fakeDeriver{}).Assemble(context.Background(), aboutSpec())
	require.NoError(t, err)

	require.Len(t, m.Collections, 1)
	assert.Equal(t, "team", m.Collections[0].Name)
	assert.NotNil(t, m.Collections[0].Entries)
	assert.Empty(t, m.Collections[0].Entries)

	// No page entry: title and body come from the fallback.
	assert.Equal(t, "About Us", m.Title)
	assert.True(t, m.BodyFallback)

	missing := m.Collection("testimonials")
	assert.NotNil(t, missing.Entries)
}

func TestAssemble_MandatoryQueryEmpty(t *testing.T) {
	spec := aboutSpec()
	spec.Queries[0].Mandatory = true

	_, err := NewAssembler(&fakeSource{}, &fakeDeriver{}).Assemble(context.Background(), spec)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAssembly))

	var ae *AssemblyError
	require.True(t, errors.As(err, &ae))
	assert.Equal(t, "/about", ae.Route)
	assert.Equal(t, "query team", ae.Element)
}

func TestAssemble_SourceFailuresFailTheRoute(t *testing.T) {
	tests := []struct {
		name  string
		kind  content.Kind
		cause error
	}{
		{"unavailable on optional query", content.KindTeamMember, content.ErrSourceUnavailable},
		{"schema mismatch on team member", content.KindTeamMember, &content.SchemaMismatchError{Kind: content.KindTeamMember, EntryID: "tm1", Field: "name"}},
		{"unavailable on page query", content.KindPage, content.ErrSourceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := &fakeSource{errs: map[content.Kind]error{tt.kind: tt.cause}}
			_, err := NewAssembler(src, &fakeDeriver{}).Assemble(context.Background(), aboutSpec())
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrAssembly))
			assert.True(t, errors.Is(err, tt.cause))
		})
	}
}

func TestAssemble_ImageFailures(t *testing.T) {
	src := &fakeSource{entries: map[content.Kind][]content.Entry{
		content.KindTeamMember: {member("tm1", "Ada", 0, img("bad-photo")), member("tm2", "Grace", 0, img("p2"))},
		content.KindPage:       {aboutPage("About", img("bad-hero"), "")},
	}}
	d := &fakeDeriver{fail: map[string]bool{"bad-photo": true, "bad-hero": true}}

	m, err := NewAssembler(src, d).Assemble(context.Background(), aboutSpec())
	require.NoError(t, err)
	assert.Nil(t, m.HeroImage)
	team := m.Collection("team").Entries
	assert.Nil(t, team[0].Image)
	assert.NotNil(t, team[1].Image)

	spec := aboutSpec()
	spec.RequireHero = true
	_, err = NewAssembler(src, d).Assemble(context.Background(), spec)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAssembly))
	assert.True(t, errors.Is(err, asset.ErrDerivation))
}

func TestAssemble_RequiredHeroAbsent(t *testing.T) {
	spec := aboutSpec()
	spec.RequireHero = true
	_, err := NewAssembler(&fakeSource{}, &fakeDeriver{}).Assemble(context.Background(), spec)
	assert.True(t, errors.Is(err, ErrAssembly))
}

func TestAssemble_ResolvesBody(t *testing.T) {
	body := `{"nodeType":"document","content":[
		{"nodeType":"paragraph","content":[{"nodeType":"text","value":"Hello"}]},
		{"nodeType":"embedded-asset-block","data":{"target":{"sys":{"id":"inline"}}}}]}`
	page := aboutPage("About", img("hero"), body)
	page.Page.Assets = map[string]content.ImageReference{"inline": *img("inline")}
	page.Page.SEOTitle = "Custom SEO"
	page.Page.SEODescription = "Who we are"
	src := &fakeSource{entries: map[content.Kind][]content.Entry{content.KindPage: {page}}}

	spec := aboutSpec()
	spec.BodySpec = asset.Spec{Width: 800}
	m, err := NewAssembler(src, &fakeDeriver{}).Assemble(context.Background(), spec)
	require.NoError(t, err)

	require.NotNil(t, m.HeroImage)
	assert.Equal(t, 1920, m.HeroImage.Width)
	assert.False(t, m.BodyFallback)
	require.Len(t, m.Body.Children, 2)
	inline := m.Body.Children[1]
	assert.Equal(t, richtext.KindImage, inline.Kind)
	assert.Equal(t, 800, inline.Image.Width)
	assert.Equal(t, SEO{Title: "Custom SEO", Description: "Who we are"}, m.SEO)
}

func TestAssemble_InvalidBodyFallsBack(t *testing.T) {
	src := &fakeSource{entries: map[content.Kind][]content.Entry{
		content.KindPage: {aboutPage("About", nil, `{"nodeType":"paragraph"}`)},
	}}
	m, err := NewAssembler(src, &fakeDeriver{}).Assemble(context.Background(), aboutSpec())
	require.NoError(t, err)
	assert.True(t, m.BodyFallback)
	assert.Equal(t, "We're a team.", m.Body.PlainText())
}

func TestAssemble_ServiceIcons(t *testing.T) {
	svc := func(id, slug string, order int) content.Entry {
		return content.Entry{Kind: content.KindService, ID: id, Order: order, Service: &content.Service{Title: id, Slug: slug}}
	}
	src := &fakeSource{entries: map[content.Kind][]content.Entry{
		content.KindService: {svc("s1", "cloud-services", 2), svc("s2", "bespoke", 1)},
	}}
	spec := RouteSpec{
		Path:    "/services",
		Kind:    "services",
		Queries: []Query{{Name: "services", Kind: content.KindService, Mandatory: true, OrderBy: OrderByOrder}},
	}
	m, err := NewAssembler(src, &fakeDeriver{}).Assemble(context.Background(), spec)
	require.NoError(t, err)

	entries := m.Collection("services").Entries
	require.Len(t, entries, 2)
	assert.Equal(t, "s2", entries[0].ID)
	assert.Equal(t, DefaultIcon, entries[0].Icon)
	assert.Equal(t, IconCloudArrowUp, entries[1].Icon)
	assert.Nil(t, m.Body)
}

func TestIconFor(t *testing.T) {
	assert.Equal(t, IconComputerDesktop, IconFor("technology-strategy"))
	assert.Equal(t, IconCloudArrowUp, IconFor("cloud-services"))
	assert.Equal(t, IconCog, IconFor("implementation"))
	assert.Equal(t, IconChartBar, IconFor("analytics"))
	assert.Equal(t, IconCog, IconFor(""))
	assert.Equal(t, IconCog, IconFor("Analytics"))
}
