package content

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// FixtureFile is the on-disk shape of a fixture set. Entry fields use the
// same names and link shape ({sys: {id: ...}}) as the CMS, so fixtures and
// live responses decode identically.
type FixtureFile struct {
	Assets  []FixtureAsset `yaml:"assets"`
	Entries []FixtureEntry `yaml:"entries"`
}

type FixtureAsset struct {
	ID          string `yaml:"id"`
	URL         string `yaml:"url"` // file path relative to the fixture file, or http(s) URL
	ContentHash string `yaml:"content_hash,omitempty"`
	ContentType string `yaml:"content_type,omitempty"`
	Width       int    `yaml:"width,omitempty"`
	Height      int    `yaml:"height,omitempty"`
	Title       string `yaml:"title,omitempty"`
}

type FixtureEntry struct {
	ID     string         `yaml:"id"`
	Kind   string         `yaml:"kind"`
	Fields map[string]any `yaml:"fields"`
}

// FixtureSource serves entries and assets from a fixture file.
type FixtureSource struct {
	baseDir string
	entries []FixtureEntry
	assets  map[string]ImageReference
	http    *http.Client
}

// LoadFixtures reads a fixture file from disk.
func LoadFixtures(path string) (*FixtureSource, error) {
	// #nosec G304 - fixture path comes from the operator's configuration
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixtures: %w", err)
	}
	return ParseFixtures(data, filepath.Dir(path))
}

// ParseFixtures parses fixture YAML; relative asset paths resolve against baseDir.
// Assets without a content hash are hashed from their file bytes.
func ParseFixtures(data []byte, baseDir string) (*FixtureSource, error) {
	var f FixtureFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse fixtures: %w", err)
	}
	s := &FixtureSource{
		baseDir: baseDir,
		entries: f.Entries,
		assets:  make(map[string]ImageReference, len(f.Assets)),
		http:    http.DefaultClient,
	}
	for _, a := range f.Assets {
		if a.ID == "" || a.URL == "" {
			return nil, fmt.Errorf("fixture asset %q: id and url are required", a.ID)
		}
		ref := ImageReference{
			AssetID:     a.ID,
			URL:         a.URL,
			ContentHash: a.ContentHash,
			ContentType: a.ContentType,
			Width:       a.Width,
			Height:      a.Height,
			Title:       a.Title,
		}
		if ref.ContentHash == "" {
			if isRemote(a.URL) {
				return nil, fmt.Errorf("fixture asset %q: remote assets need a content_hash", a.ID)
			}
			data, err := os.ReadFile(s.localPath(a.URL))
			if err != nil {
				return nil, fmt.Errorf("fixture asset %q: %w", a.ID, err)
			}
			sum := sha256.Sum256(data)
			ref.ContentHash = hex.EncodeToString(sum[:8])
		}
		s.assets[a.ID] = ref
	}
	for i, e := range f.Entries {
		if e.ID == "" {
			return nil, fmt.Errorf("fixture entry %d: id is required", i)
		}
		if _, ok := ParseKind(e.Kind); !ok {
			return nil, fmt.Errorf("fixture entry %q: unknown kind %q", e.ID, e.Kind)
		}
	}
	return s, nil
}

// FetchEntries decodes the fixture entries of kind that match filter, in file order.
func (s *FixtureSource) FetchEntries(ctx context.Context, kind Kind, filter Filter) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, sourceUnavailable(kind, 0, err)
	}
	lookup := func(id string) (ImageReference, bool) {
		ref, ok := s.assets[id]
		return ref, ok
	}
	out := []Entry{}
	for _, fe := range s.entries {
		if fe.Kind != string(kind) {
			continue
		}
		e, err := decodeEntry(kind, fe.ID, fe.Fields, lookup)
		if err != nil {
			return nil, err
		}
		if filter.matches(slugOf(e)) {
			out = append(out, e)
		}
	}
	return out, nil
}

// FetchAsset reads the asset from disk, or over HTTP for remote fixture URLs.
func (s *FixtureSource) FetchAsset(ctx context.Context, ref ImageReference) ([]byte, error) {
	if !isRemote(ref.URL) {
		data, err := os.ReadFile(s.localPath(ref.URL))
		if err != nil {
			return nil, sourceUnavailable(assetMetricKind, 1, err)
		}
		return data, nil
	}
	u := ref.URL
	if strings.HasPrefix(u, "//") {
		u = "https:" + u
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, sourceUnavailable(assetMetricKind, 0, err)
	}
	resp, err := s.http.Do(req)
	if err != nil {
		return nil, sourceUnavailable(assetMetricKind, 1, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, sourceRejected(assetMetricKind, resp.StatusCode, fmt.Errorf("GET %s: %s", ref.URL, resp.Status))
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxAssetBody))
}

func (s *FixtureSource) localPath(p string) string {
	p = strings.TrimPrefix(p, "file://")
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(s.baseDir, filepath.FromSlash(p))
}

func isRemote(u string) bool {
	return strings.HasPrefix(u, "http://") || strings.HasPrefix(u, "https://") || strings.HasPrefix(u, "//")
}
