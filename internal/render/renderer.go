package render

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"os"
	"path"
	"path/filepath"
	"strings"

	"git.home.luguber.info/inful/sitebuilder/internal/asset"
	"git.home.luguber.info/inful/sitebuilder/internal/build"
	"git.home.luguber.info/inful/sitebuilder/internal/config"
	"git.home.luguber.info/inful/sitebuilder/internal/contact"
	ferrors "git.home.luguber.info/inful/sitebuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/sitebuilder/internal/manifest"
	"git.home.luguber.info/inful/sitebuilder/internal/markdown"
	"git.home.luguber.info/inful/sitebuilder/internal/page"
	"git.home.luguber.info/inful/sitebuilder/internal/richtext"
	"git.home.luguber.info/inful/sitebuilder/internal/version"
)

//go:embed templates/*.tmpl
var embeddedTemplates embed.FS

var pageTemplates = []string{
	config.TemplateHome,
	config.TemplateAbout,
	config.TemplateServices,
	config.TemplateContact,
}

var navLabels = map[string]string{
	config.TemplateHome:     "Home",
	config.TemplateAbout:    "About",
	config.TemplateServices: "Services",
	config.TemplateContact:  "Contact",
}

// HTMLRenderer implements build.Renderer. It is safe for concurrent use.
type HTMLRenderer struct {
	outDir    string
	site      config.SiteConfig
	routes    []config.RouteConfig
	images    build.ImageExporter
	templates map[string]*template.Template
}

// New parses the embedded templates and returns a renderer writing below outDir.
func New(cfg *config.Config, outDir string, images build.ImageExporter) (*HTMLRenderer, error) {
	md := markdown.New()
	funcs := template.FuncMap{
		"markdown": md.Plain,
		"image":    newImageView,
	}
	base, err := template.New("layout").Funcs(funcs).ParseFS(embeddedTemplates, "templates/layout.html.tmpl")
	if err != nil {
		return nil, fmt.Errorf("parse layout: %w", err)
	}
	templates := make(map[string]*template.Template, len(pageTemplates))
	for _, name := range pageTemplates {
		t, err := template.Must(base.Clone()).ParseFS(embeddedTemplates, "templates/"+name+".html.tmpl")
		if err != nil {
			return nil, fmt.Errorf("parse %s template: %w", name, err)
		}
		templates[name] = t
	}
	return &HTMLRenderer{
		outDir:    outDir,
		site:      cfg.Site,
		routes:    cfg.Routes,
		images:    images,
		templates: templates,
	}, nil
}

// Factory adapts New to build.RendererFactory. Template parsing only fails on
// a broken binary, so it panics.
func Factory(cfg *config.Config, outDir string, images build.ImageExporter) build.Renderer {
	r, err := New(cfg, outDir, images)
	if err != nil {
		panic(fmt.Sprintf("embedded templates invalid: %v", err))
	}
	return r
}

type navItem struct {
	Path   string
	Label  string
	Active bool
}

type contactView struct {
	Endpoint string
	Fields   []contact.Field
	Success  string
	Failure  string
}

type pageData struct {
	Site      config.SiteConfig
	Model     *page.Model
	Body      template.HTML
	Canonical string
	Nav       []navItem
	Contact   *contactView
	Version   string
}

// AssetURL returns the absolute URL of a site-relative path when a base URL is configured.
func (d pageData) AssetURL(rel string) string {
	return joinURL(d.Site.BaseURL, rel)
}

type imageView struct {
	Image   *asset.DerivedImage
	Alt     string
	Class   string
	Loading string
	Style   template.CSS
}

func newImageView(img *asset.DerivedImage, alt, class string, eager bool) imageView {
	v := imageView{Image: img, Alt: alt, Class: class, Loading: "lazy"}
	if eager {
		v.Loading = "eager"
	}
	if img == nil {
		return v
	}
	if v.Alt == "" {
		v.Alt = img.Alt()
	}
	var style []string
	if img.DominantColor != "" {
		style = append(style, "background-color:"+img.DominantColor)
	}
	if img.Placeholder != "" {
		style = append(style, "background-image:url("+img.Placeholder+")", "background-size:cover")
	}
	// #nosec G203 - derived from hex colors and base64 data URIs produced by the engine
	v.Style = template.CSS(strings.Join(style, ";"))
	return v
}

// Render writes the page for m and exports its images.
func (r *HTMLRenderer) Render(ctx context.Context, m *page.Model) (*build.Artifact, error) {
	t, ok := r.templates[m.Kind]
	if !ok {
		return nil, ferrors.RenderError("unknown template").WithContext("template", m.Kind).WithContext("route", m.Route).Build()
	}
	var body template.HTML
	if m.Body != nil {
		var err error
		if body, err = richtext.RenderHTML(m.Body); err != nil {
			return nil, ferrors.RenderError("failed to render page body").WithCause(err).WithContext("route", m.Route).Build()
		}
	}

	data := pageData{
		Site:      r.site,
		Model:     m,
		Body:      body,
		Canonical: joinURL(r.site.BaseURL, strings.TrimPrefix(m.Route, "/")),
		Nav:       r.nav(m.Route),
		Version:   version.Version,
	}
	if m.Kind == config.TemplateContact && r.site.ContactEndpoint != "" {
		data.Contact = &contactView{
			Endpoint: r.site.ContactEndpoint,
			Fields:   contact.Fields,
			Success:  contact.SuccessMessage,
			Failure:  contact.FailureMessage,
		}
	}

	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", data); err != nil {
		return nil, ferrors.RenderError("failed to execute template").WithCause(err).WithContext("route", m.Route).Build()
	}

	for _, img := range referencedImages(m) {
		if err := r.images.Export(ctx, r.outDir, img); err != nil {
			return nil, ferrors.FileSystemError("failed to export image").WithCause(err).
				WithContext("route", m.Route).WithContext("asset", img.Source.AssetID).Build()
		}
	}

	rel := artifactPath(m.Route)
	dst := filepath.Join(r.outDir, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(dst), 0o750); err != nil {
		return nil, ferrors.FileSystemError("failed to create route directory").WithCause(err).Build()
	}
	// #nosec G306 - published site files are world readable
	if err := os.WriteFile(dst, buf.Bytes(), 0o644); err != nil {
		return nil, ferrors.FileSystemError("failed to write page").WithCause(err).WithContext("path", dst).Build()
	}
	return &build.Artifact{
		Route:       m.Route,
		Path:        rel,
		Fingerprint: manifest.Fingerprint(m.Route, m.Kind, buf.Bytes()),
		Size:        int64(buf.Len()),
	}, nil
}

func (r *HTMLRenderer) nav(current string) []navItem {
	items := make([]navItem, 0, len(r.routes))
	for _, rc := range r.routes {
		label, ok := navLabels[rc.Template]
		if !ok {
			continue
		}
		items = append(items, navItem{Path: rc.Path, Label: label, Active: rc.Path == current})
	}
	return items
}

// artifactPath maps a route to its file relative to the output directory.
func artifactPath(route string) string {
	clean := strings.TrimPrefix(path.Clean("/"+route), "/")
	if clean == "" {
		return "index.html"
	}
	return clean + "/index.html"
}

func joinURL(base, rel string) string {
	if base == "" {
		return ""
	}
	return strings.TrimSuffix(base, "/") + "/" + strings.TrimPrefix(rel, "/")
}

// referencedImages lists every derived image the page displays.
func referencedImages(m *page.Model) []*asset.DerivedImage {
	var out []*asset.DerivedImage
	if m.HeroImage != nil {
		out = append(out, m.HeroImage)
	}
	for _, c := range m.Collections {
		for _, e := range c.Entries {
			if e.Image != nil {
				out = append(out, e.Image)
			}
		}
	}
	var walk func(n *richtext.Node)
	walk = func(n *richtext.Node) {
		if n == nil {
			return
		}
		if n.Kind == richtext.KindImage && n.Image != nil {
			out = append(out, n.Image)
		}
		for _, c := range n.Children {
			walk(c)
		}
	}
	walk(m.Body)
	return out
}
