// Package manifest records what a build consumed and produced.
package manifest

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/inful/mdfp"
)

// FileName is the manifest's name inside the output directory.
const FileName = "manifest.json"

// Route statuses.
const (
	RouteSucceeded = "succeeded"
	RouteFailed    = "failed"
)

// BuildManifest is the record of one build's inputs and outputs.
type BuildManifest struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Inputs    Inputs    `json:"inputs"`
	Outputs   Outputs   `json:"outputs"`
	Status    string    `json:"status"`
	Duration  int64     `json:"duration_ms"`
}

// Inputs captures what the build was asked to produce.
type Inputs struct {
	ConfigHash string       `json:"config_hash,omitempty"`
	Routes     []RouteInput `json:"routes"`
}

// RouteInput is one requested route.
type RouteInput struct {
	Path     string `json:"path"`
	Template string `json:"template"`
	Critical bool   `json:"critical"`
}

// Outputs captures the produced artifacts.
type Outputs struct {
	Routes []RouteOutput `json:"routes"`
	Images []ImageOutput `json:"images,omitempty"`
	// ArtifactHashes maps artifact paths to their content fingerprint.
	ArtifactHashes map[string]string `json:"artifact_hashes,omitempty"`
}

// RouteOutput is the outcome of one route.
type RouteOutput struct {
	Path        string `json:"path"`
	Status      string `json:"status"`
	Artifact    string `json:"artifact,omitempty"`
	Fingerprint string `json:"fingerprint,omitempty"`
	Error       string `json:"error,omitempty"`
}

// ImageOutput is one derived image published with the build.
type ImageOutput struct {
	Key         string   `json:"key"`
	AssetID     string   `json:"asset_id"`
	ContentHash string   `json:"content_hash"`
	Path        string   `json:"path"`
	Variants    []string `json:"variants,omitempty"`
}

// Fingerprint returns the content fingerprint of a rendered artifact.
// Route and template act as the header so identical bodies on different
// routes never share a fingerprint.
func Fingerprint(route, template string, body []byte) string {
	header := "route: " + route + "\ntemplate: " + template
	return mdfp.CalculateFingerprintFromParts(header, string(body))
}

// ConfigHash returns a stable digest of a configuration value.
func ConfigHash(cfg any) (string, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("marshal config for hash: %w", err)
	}
	sum := sha256.Sum256(data)
	return fmt.Sprintf("%x", sum), nil
}

// Sort orders routes and images so the serialized manifest is stable.
func (m *BuildManifest) Sort() {
	slices.SortFunc(m.Inputs.Routes, func(a, b RouteInput) int { return strings.Compare(a.Path, b.Path) })
	slices.SortFunc(m.Outputs.Routes, func(a, b RouteOutput) int { return strings.Compare(a.Path, b.Path) })
	slices.SortFunc(m.Outputs.Images, func(a, b ImageOutput) int { return strings.Compare(a.Key, b.Key) })
}

// Failed returns the paths of failed routes.
func (m *BuildManifest) Failed() []string {
	var out []string
	for _, r := range m.Outputs.Routes {
		if r.Status == RouteFailed {
			out = append(out, r.Path)
		}
	}
	return out
}

// ToJSON serializes the manifest to JSON.
func (m *BuildManifest) ToJSON() ([]byte, error) {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal manifest: %w", err)
	}
	return data, nil
}

// FromJSON deserializes a manifest from JSON.
func FromJSON(data []byte) (*BuildManifest, error) {
	var m BuildManifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("unmarshal manifest: %w", err)
	}
	return &m, nil
}

// Hash computes a deterministic hash of the manifest's inputs and produced
// artifacts. Two builds with equal hashes published identical pages.
func (m *BuildManifest) Hash() (string, error) {
	hashInput := struct {
		ConfigHash string            `json:"config_hash"`
		Routes     []RouteInput      `json:"routes"`
		Artifacts  map[string]string `json:"artifacts"`
	}{
		ConfigHash: m.Inputs.ConfigHash,
		Routes:     m.Inputs.Routes,
		Artifacts:  m.Outputs.ArtifactHashes,
	}

	data, err := json.Marshal(hashInput)
	if err != nil {
		return "", fmt.Errorf("marshal for hash: %w", err)
	}

	hash := sha256.Sum256(data)
	return fmt.Sprintf("%x", hash), nil
}

// Write stores the manifest as dir/manifest.json.
func (m *BuildManifest) Write(dir string) error {
	data, err := m.ToJSON()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create manifest directory: %w", err)
	}
	// #nosec G306 - published alongside the site
	if err := os.WriteFile(filepath.Join(dir, FileName), data, 0o644); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	return nil
}

// Read loads dir/manifest.json.
func Read(dir string) (*BuildManifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, FileName)) // #nosec G304 - dir is the configured output
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	return FromJSON(data)
}
