package page

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/sitebuilder/internal/asset"
	"git.home.luguber.info/inful/sitebuilder/internal/config"
	"git.home.luguber.info/inful/sitebuilder/internal/content"
)

func TestRoutesFromConfig(t *testing.T) {
	cfg := &config.Config{
		Images: config.ImagesConfig{
			Format:       config.ImageFormatJPEG,
			ExtraFormats: []string{"webp"},
			Quality:      85,
			Placeholder:  true,
			Hero:         config.ImageSize{Width: 1920, Height: 1080},
			Photo:        config.ImageSize{Width: 400, Height: 400},
			Body:         config.ImageSize{Width: 800},
		},
		Routes: config.DefaultRoutes(),
	}

	specs := RoutesFromConfig(cfg)
	require.Len(t, specs, 4)

	about := specs[1]
	assert.Equal(t, "/about", about.Path)
	assert.Equal(t, config.TemplateAbout, about.Kind)
	assert.True(t, about.Critical)
	require.NotNil(t, about.Page)
	assert.Equal(t, content.KindPage, about.Page.Kind)
	assert.Equal(t, "about", about.Page.Filter.Slug)
	require.Len(t, about.Queries, 1)
	assert.Equal(t, content.KindTeamMember, about.Queries[0].Kind)
	assert.False(t, about.Queries[0].Mandatory)
	assert.Equal(t, "About Us", about.Fallback.Title)

	assert.Equal(t, asset.Spec{
		Width: 1920, Height: 1080, Format: asset.FormatJPEG, Quality: 85, Placeholder: true,
		Formats: []asset.Format{asset.FormatWebP},
	}, about.HeroSpec)
	assert.Equal(t, 400, about.PhotoSpec.Height)
	assert.Equal(t, 0, about.BodySpec.Height)

	services := specs[2]
	assert.True(t, services.Queries[0].Mandatory)
	assert.False(t, specs[3].Critical)
}
