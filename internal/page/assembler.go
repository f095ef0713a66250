package page

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"

	"git.home.luguber.info/inful/sitebuilder/internal/asset"
	"git.home.luguber.info/inful/sitebuilder/internal/content"
	"git.home.luguber.info/inful/sitebuilder/internal/logfields"
	"git.home.luguber.info/inful/sitebuilder/internal/observability"
	"git.home.luguber.info/inful/sitebuilder/internal/richtext"
)

// OrderByOrder sorts a collection by the entries' display order hint.
const OrderByOrder = "order"

var errNoEntries = errors.New("query returned no entries")

// Assembler builds page models. It holds no per-route state and is safe for
// concurrent use.
type Assembler struct {
	source  content.Source
	deriver richtext.Deriver
}

// NewAssembler creates an assembler reading entries from source and deriving
// images through deriver.
func NewAssembler(source content.Source, deriver richtext.Deriver) *Assembler {
	return &Assembler{source: source, deriver: deriver}
}

// Assemble produces the model for spec. Queries run concurrently; the model
// is returned only after every query, derivation and rich text resolution
// for the route has finished.
func (a *Assembler) Assemble(ctx context.Context, spec RouteSpec) (*Model, error) {
	ctx = observability.WithRoute(ctx, spec.Path)
	log := observability.Logger(ctx)

	var (
		pageEntry   *content.Entry
		collections = make([]Collection, len(spec.Queries))
	)

	g, gctx := errgroup.WithContext(ctx)
	if spec.Page != nil {
		q := *spec.Page
		g.Go(func() error {
			entries, err := a.fetch(gctx, spec.Path, q)
			if err != nil {
				return err
			}
			if len(entries) > 0 {
				if len(entries) > 1 {
					log.Warn("Multiple page entries match, using the first", logfields.Count(len(entries)))
				}
				pageEntry = &entries[0]
			}
			return nil
		})
	}
	for i, q := range spec.Queries {
		g.Go(func() error {
			entries, err := a.fetch(gctx, spec.Path, q)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				log.Info("Optional collection is empty", logfields.Query(q.Name))
			}
			if q.OrderBy == OrderByOrder {
				slices.SortStableFunc(entries, func(x, y content.Entry) int { return cmp.Compare(x.Order, y.Order) })
			}
			resolved, err := a.resolveEntries(gctx, spec, entries)
			if err != nil {
				return err
			}
			collections[i] = Collection{Name: q.Name, Kind: q.Kind, Entries: resolved}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	m := &Model{
		Route:       spec.Path,
		Kind:        spec.Kind,
		Title:       spec.Fallback.Title,
		Collections: collections,
	}
	var page *content.Page
	if pageEntry != nil {
		page = pageEntry.Page
	}
	if page != nil && page.Title != "" {
		m.Title = page.Title
	}
	m.SEO = seoFor(page, spec.Fallback, m.Title)

	hero, err := a.hero(ctx, spec, page)
	if err != nil {
		return nil, err
	}
	m.HeroImage = hero

	m.Body, m.BodyFallback, err = a.body(ctx, spec, page)
	if err != nil {
		return nil, assemblyError(spec.Path, "body", err)
	}
	return m, nil
}

// fetch runs one query, turning source failures (and emptiness of a
// mandatory query) into an assembly error. An empty optional result is an
// empty, non-nil slice.
func (a *Assembler) fetch(ctx context.Context, route string, q Query) ([]content.Entry, error) {
	entries, err := a.source.FetchEntries(ctx, q.Kind, q.Filter)
	if err != nil {
		return nil, assemblyError(route, "query "+queryName(q), err)
	}
	if len(entries) == 0 && q.Mandatory {
		return nil, assemblyError(route, "query "+queryName(q), errNoEntries)
	}
	if entries == nil {
		entries = []content.Entry{}
	}
	return entries, nil
}

func queryName(q Query) string {
	if q.Name != "" {
		return q.Name
	}
	return string(q.Kind)
}

// resolveEntries derives each entry's photo concurrently. Failures leave the
// image absent; only cancellation is returned.
func (a *Assembler) resolveEntries(ctx context.Context, spec RouteSpec, entries []content.Entry) ([]ResolvedEntry, error) {
	out := make([]ResolvedEntry, len(entries))
	var wg sync.WaitGroup
	for i, e := range entries {
		out[i] = ResolvedEntry{Entry: e}
		if e.Service != nil {
			out[i].Icon = IconFor(e.Service.Slug)
		}
		ref := entryPhoto(e)
		if ref == nil {
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			img, err := a.deriver.Derive(ctx, *ref, spec.PhotoSpec)
			if err != nil {
				observability.Logger(ctx).Warn("Entry image unavailable",
					logfields.EntryID(e.ID),
					logfields.Asset(ref.AssetID),
					logfields.Error(err))
				return
			}
			out[i].Image = img
		}()
	}
	wg.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func entryPhoto(e content.Entry) *content.ImageReference {
	switch {
	case e.TeamMember != nil:
		return e.TeamMember.Photo
	case e.Testimonial != nil:
		return e.Testimonial.Photo
	default:
		return nil
	}
}

func (a *Assembler) hero(ctx context.Context, spec RouteSpec, page *content.Page) (*asset.DerivedImage, error) {
	if page == nil || page.FeaturedImage == nil {
		if spec.RequireHero {
			return nil, assemblyError(spec.Path, "hero image", errors.New("page has no featured image"))
		}
		return nil, nil
	}
	img, err := a.deriver.Derive(ctx, *page.FeaturedImage, spec.HeroSpec)
	if err != nil {
		if spec.RequireHero {
			return nil, assemblyError(spec.Path, "hero image", err)
		}
		observability.Logger(ctx).Warn("Hero image unavailable",
			logfields.Asset(page.FeaturedImage.AssetID),
			logfields.Error(err))
		return nil, nil
	}
	return img, nil
}

// body resolves the page document. A missing, unparsable or empty document
// falls back to the route's intro copy.
func (a *Assembler) body(ctx context.Context, spec RouteSpec, page *content.Page) (*richtext.Node, bool, error) {
	if page != nil && len(page.Content) > 0 {
		doc, err := richtext.Parse(page.Content)
		switch {
		case err != nil:
			observability.Logger(ctx).Warn("Page content is not a valid document, using fallback",
				logfields.Error(err))
		case !doc.Empty():
			resolved, err := richtext.NewResolver(a.deriver, spec.BodySpec).Resolve(ctx, doc, page.Assets)
			if err != nil {
				return nil, false, fmt.Errorf("resolve body: %w", err)
			}
			return resolved, false, nil
		}
	}
	if spec.Fallback.Intro == "" {
		return nil, true, nil
	}
	return richtext.Paragraph(spec.Fallback.Intro), true, nil
}

func seoFor(page *content.Page, fb Fallback, title string) SEO {
	seo := SEO{Title: fb.SEOTitle}
	if seo.Title == "" {
		seo.Title = title
	}
	if page != nil {
		if page.SEOTitle != "" {
			seo.Title = page.SEOTitle
		}
		seo.Description = page.SEODescription
	}
	if seo.Description == "" {
		seo.Description = fb.Intro
	}
	return seo
}
