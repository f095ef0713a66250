package build

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/sitebuilder/internal/config"
	"git.home.luguber.info/inful/sitebuilder/internal/content"
	"git.home.luguber.info/inful/sitebuilder/internal/manifest"
	"git.home.luguber.info/inful/sitebuilder/internal/metrics"
	"git.home.luguber.info/inful/sitebuilder/internal/page"
)

func writeFile(p, data string) error {
	if err := os.MkdirAll(filepath.Dir(p), 0o750); err != nil {
		return err
	}
	return os.WriteFile(p, []byte(data), 0o600)
}

type memBackend struct {
	entries map[content.Kind][]content.Entry
	image   []byte
}

func (b *memBackend) FetchEntries(_ context.Context, kind content.Kind, _ content.Filter) ([]content.Entry, error) {
	return b.entries[kind], nil
}

func (b *memBackend) FetchAsset(context.Context, content.ImageReference) ([]byte, error) {
	return b.image, nil
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 40, 40))
	for y := range 40 {
		for x := range 40 {
			img.Set(x, y, color.RGBA{R: 200, G: 40, B: 40, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// fileRenderer writes a tiny page per route and exports the hero image.
type fileRenderer struct {
	out    string
	images ImageExporter
}

func (r *fileRenderer) Render(ctx context.Context, m *page.Model) (*Artifact, error) {
	rel := filepath.ToSlash(filepath.Join(strings.TrimPrefix(m.Route, "/"), "index.html"))
	body := "<h1>" + m.Title + "</h1>"
	if m.HeroImage != nil {
		if err := r.images.Export(ctx, r.out, m.HeroImage); err != nil {
			return nil, err
		}
		body += `<img src="/` + m.HeroImage.Path + `">`
	}
	if err := writeFile(filepath.Join(r.out, filepath.FromSlash(rel)), body); err != nil {
		return nil, err
	}
	return &Artifact{Route: m.Route, Path: rel, Fingerprint: manifest.Fingerprint(m.Route, m.Kind, []byte(body))}, nil
}

func testConfig(out string) *config.Config {
	cfg := &config.Config{
		Images: config.ImagesConfig{
			Format:       config.ImageFormatJPEG,
			Quality:      80,
			OutputSubdir: "img",
			Hero:         config.ImageSize{Width: 20, Height: 10},
			Photo:        config.ImageSize{Width: 10, Height: 10},
			Body:         config.ImageSize{Width: 20},
		},
		Build: config.BuildConfig{Concurrency: 2, OutputDir: out, Clean: true},
		Routes: []config.RouteConfig{
			{Path: "/about", Template: config.TemplateAbout, Critical: true, Page: &config.PageQueryConfig{Slug: "about"},
				Queries: []config.QueryConfig{{Name: "team", Kind: "teamMember", OrderBy: "order"}}},
			{Path: "/services", Template: config.TemplateServices, Critical: true,
				Queries: []config.QueryConfig{{Name: "services", Kind: "service", Mandatory: true}}},
		},
	}
	return cfg
}

func newTestService(t *testing.T, backend *memBackend) *DefaultService {
	t.Helper()
	return NewService(func(_ *config.Config, out string, images ImageExporter) Renderer {
		return &fileRenderer{out: out, images: images}
	}).WithBackendFactory(func(*config.Config, metrics.Recorder) (content.Backend, error) {
		return backend, nil
	})
}

func TestService_PublishesSuccessfulBuild(t *testing.T) {
	out := filepath.Join(t.TempDir(), "site")
	backend := &memBackend{
		image: pngBytes(t),
		entries: map[content.Kind][]content.Entry{
			content.KindPage: {{Kind: content.KindPage, ID: "p", Page: &content.Page{
				Title: "About", Slug: "about",
				FeaturedImage: &content.ImageReference{AssetID: "hero", URL: "//x/hero.png", ContentHash: "r1"},
			}}},
			content.KindService: {{Kind: content.KindService, ID: "s", Service: &content.Service{Title: "Cloud", Slug: "cloud-services"}}},
		},
	}

	res, err := newTestService(t, backend).Run(context.Background(), Request{Config: testConfig(out), Trigger: "test"})
	require.NoError(t, err)
	assert.Len(t, res.Succeeded, 2)

	data, err := os.ReadFile(filepath.Join(out, "about", "index.html"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "<h1>About</h1>")

	m, err := manifest.Read(out)
	require.NoError(t, err)
	require.Len(t, m.Outputs.Images, 1)
	_, err = os.Stat(filepath.Join(out, filepath.FromSlash(m.Outputs.Images[0].Path)))
	assert.NoError(t, err, "hero image exported")

	siblings, err := os.ReadDir(filepath.Dir(out))
	require.NoError(t, err)
	assert.Len(t, siblings, 1, "staging directory removed")
}

func TestService_CriticalFailureKeepsPreviousOutput(t *testing.T) {
	out := filepath.Join(t.TempDir(), "site")
	require.NoError(t, writeFile(filepath.Join(out, "index.html"), "previous"))

	// services is mandatory and the backend has none.
	backend := &memBackend{entries: map[content.Kind][]content.Entry{}}
	res, err := newTestService(t, backend).Run(context.Background(), Request{Config: testConfig(out)})

	require.Error(t, err)
	require.NotNil(t, res)
	assert.ErrorIs(t, err, page.ErrAssembly)
	assert.True(t, res.Succeeded["/about"])

	data, err := os.ReadFile(filepath.Join(out, "index.html"))
	require.NoError(t, err)
	assert.Equal(t, "previous", string(data))
	_, err = os.Stat(filepath.Join(out, "about"))
	assert.True(t, os.IsNotExist(err))
}

func TestService_RequiresRoutesAndConfig(t *testing.T) {
	svc := newTestService(t, &memBackend{})

	_, err := svc.Run(context.Background(), Request{})
	assert.Error(t, err)

	cfg := testConfig(t.TempDir())
	cfg.Routes = nil
	_, err = svc.Run(context.Background(), Request{Config: cfg})
	assert.Error(t, err)
}
