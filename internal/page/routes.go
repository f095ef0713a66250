package page

import (
	"git.home.luguber.info/inful/sitebuilder/internal/asset"
	"git.home.luguber.info/inful/sitebuilder/internal/config"
	"git.home.luguber.info/inful/sitebuilder/internal/content"
)

// ImageSpecs returns the hero, body and photo derivation specs configured for the site.
func ImageSpecs(img config.ImagesConfig) (hero, body, photo asset.Spec) {
	formats := make([]asset.Format, 0, len(img.ExtraFormats))
	for _, f := range img.ExtraFormats {
		formats = append(formats, asset.Format(f))
	}
	mk := func(size config.ImageSize) asset.Spec {
		return asset.Spec{
			Width:       size.Width,
			Height:      size.Height,
			Format:      asset.Format(img.Format),
			Quality:     img.Quality,
			Placeholder: img.Placeholder,
			Formats:     formats,
		}
	}
	return mk(img.Hero), mk(img.Body), mk(img.Photo)
}

// RoutesFromConfig turns validated route configuration into route specs.
func RoutesFromConfig(cfg *config.Config) []RouteSpec {
	hero, body, photo := ImageSpecs(cfg.Images)
	specs := make([]RouteSpec, 0, len(cfg.Routes))
	for _, rc := range cfg.Routes {
		rs := RouteSpec{
			Path:     rc.Path,
			Kind:     rc.Template,
			Critical: rc.Critical,
			Fallback: Fallback{
				Title:    rc.Fallback.Title,
				SEOTitle: rc.Fallback.SEOTitle,
				Intro:    rc.Fallback.Intro,
			},
			HeroSpec:    hero,
			BodySpec:    body,
			PhotoSpec:   photo,
			RequireHero: rc.RequireHero,
		}
		if rc.Page != nil {
			rs.Page = &Query{
				Name:      "page",
				Kind:      content.KindPage,
				Filter:    content.Filter{Slug: rc.Page.Slug},
				Mandatory: rc.Page.Mandatory,
			}
		}
		for _, q := range rc.Queries {
			rs.Queries = append(rs.Queries, Query{
				Name:      q.Name,
				Kind:      content.Kind(q.Kind),
				Filter:    content.Filter{Slug: q.Slug},
				Mandatory: q.Mandatory,
				OrderBy:   q.OrderBy,
			})
		}
		specs = append(specs, rs)
	}
	return specs
}
