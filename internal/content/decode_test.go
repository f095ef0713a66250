package content

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noAssets(string) (ImageReference, bool) { return ImageReference{}, false }

func TestDecodeEntry_Service(t *testing.T) {
	e, err := decodeEntry(KindService, "s1", map[string]any{
		"title":       "Cloud Services",
		"slug":        "cloud-services",
		"description": "**Move** to the cloud.",
		"features":    []any{"Migration", "Cost reviews"},
		"order":       float64(4),
	}, noAssets)
	require.NoError(t, err)
	require.NotNil(t, e.Service)
	assert.Nil(t, e.Page)
	assert.Equal(t, 4, e.Order)
	assert.Equal(t, []string{"Migration", "Cost reviews"}, e.Service.Features)
}

func TestDecodeEntry_Failures(t *testing.T) {
	tests := []struct {
		name   string
		kind   Kind
		fields map[string]any
		field  string
	}{
		{"missing title", KindService, map[string]any{"slug": "x"}, "title"},
		{"blank title", KindService, map[string]any{"title": "  ", "slug": "x"}, "title"},
		{"title wrong type", KindService, map[string]any{"title": 12, "slug": "x"}, "title"},
		{"fractional order", KindService, map[string]any{"title": "a", "slug": "x", "order": 1.5}, "order"},
		{"features not list", KindService, map[string]any{"title": "a", "slug": "x", "features": "one"}, "features"},
		{"photo not a link", KindTeamMember, map[string]any{"name": "a", "position": "b", "photo": "img.jpg"}, "photo"},
		{"content not a document", KindPage, map[string]any{"title": "a", "slug": "b", "content": "text"}, "content"},
		{"unknown kind", Kind("blogPost"), map[string]any{}, "sys.contentType"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := decodeEntry(tt.kind, "e1", tt.fields, noAssets)
			require.Error(t, err)
			var sm *SchemaMismatchError
			require.True(t, errors.As(err, &sm))
			assert.Equal(t, tt.field, sm.Field)
			assert.True(t, errors.Is(err, ErrSchemaMismatch))
		})
	}
}

func TestDecodeEntry_UnresolvedImageIsAbsent(t *testing.T) {
	e, err := decodeEntry(KindTestimonial, "t1", map[string]any{
		"quote":  "Great",
		"author": "Sam",
		"photo":  map[string]any{"sys": map[string]any{"id": "unpublished"}},
	}, noAssets)
	require.NoError(t, err)
	assert.Nil(t, e.Testimonial.Photo)
	assert.Empty(t, e.Testimonial.Company)
}

func TestNormalizeSlug(t *testing.T) {
	assert.Equal(t, "about", NormalizeSlug(" About "))
	assert.Equal(t, "café", NormalizeSlug("CAFÉ"))
	assert.Equal(t, "fi", NormalizeSlug("ﬁ"))
	assert.True(t, Filter{}.matches("anything"))
	assert.True(t, Filter{Slug: "Technology-Strategy"}.matches("technology-strategy"))
	assert.False(t, Filter{Slug: "about"}.matches("contact"))
}
