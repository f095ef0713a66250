package asset

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"git.home.luguber.info/inful/sitebuilder/internal/content"
)

// Format is an output image encoding.
type Format string

const (
	FormatJPEG Format = "jpeg"
	FormatPNG  Format = "png"
	FormatWebP Format = "webp"
	FormatAVIF Format = "avif"
)

// Extension returns the file extension used for f.
func (f Format) Extension() string {
	if f == FormatJPEG {
		return "jpg"
	}
	return string(f)
}

// ContentType returns the MIME type of f.
func (f Format) ContentType() string {
	return "image/" + string(f)
}

const (
	DefaultQuality          = 90
	DefaultPlaceholderWidth = 20
	MaxPlaceholderWidth     = 32
)

// Spec is a template's request for one derived image. A zero Height keeps
// the source aspect ratio; both dimensions set means a centered cover crop.
type Spec struct {
	Width       int
	Height      int
	Format      Format
	Quality     int
	Placeholder bool
	// Formats lists secondary encodings; failures degrade to the primary.
	Formats []Format
}

// normalized fills defaults and canonicalizes Formats so equal requests share a key.
func (s Spec) normalized() Spec {
	if s.Format == "" {
		s.Format = FormatJPEG
	}
	if s.Quality <= 0 || s.Quality > 100 {
		s.Quality = DefaultQuality
	}
	var formats []Format
	for _, f := range s.Formats {
		if f != s.Format && !slices.Contains(formats, f) {
			formats = append(formats, f)
		}
	}
	slices.Sort(formats)
	s.Formats = formats
	return s
}

// Variant is one encoding of a derived image.
type Variant struct {
	Format      Format `json:"format"`
	Path        string `json:"path"`
	PayloadHash string `json:"payload_hash"`
	Size        int64  `json:"size"`
}

// DerivedImage is the immutable result of a derivation. Callers share the
// cached value and must not modify it.
type DerivedImage struct {
	Key     string                 `json:"key"`
	Source  content.ImageReference `json:"source"`
	Width   int                    `json:"width"`
	Height  int                    `json:"height"`
	Format  Format                 `json:"format"`
	Quality int                    `json:"quality"`
	// Path is the site-relative location of the primary encoding.
	Path        string `json:"path"`
	PayloadHash string `json:"payload_hash"`
	// Placeholder is a data: URI of a tiny blurred preview, empty unless requested.
	Placeholder   string `json:"placeholder,omitempty"`
	DominantColor string `json:"dominant_color,omitempty"`
	// Fallback is set when a requested secondary format could not be produced.
	Fallback bool      `json:"fallback,omitempty"`
	Variants []Variant `json:"variants,omitempty"`
}

// Alt returns the asset title, used as alternative text when the template has none.
func (d *DerivedImage) Alt() string {
	if d == nil {
		return ""
	}
	return d.Source.Title
}

// CacheKey identifies a derivation. It covers everything that influences the
// output bytes, including the source content hash.
func CacheKey(ref content.ImageReference, spec Spec, placeholderWidth int) string {
	spec = spec.normalized()
	formats := make([]string, len(spec.Formats))
	for i, f := range spec.Formats {
		formats[i] = string(f)
	}
	pw := 0
	if spec.Placeholder {
		pw = placeholderWidth
	}
	parts := []string{
		ref.AssetID,
		ref.ContentHash,
		strconv.Itoa(spec.Width),
		strconv.Itoa(spec.Height),
		string(spec.Format),
		strconv.Itoa(spec.Quality),
		strconv.Itoa(pw),
		strings.Join(formats, ","),
	}
	h := sha256.Sum256([]byte(strings.Join(parts, "\x00")))
	return hex.EncodeToString(h[:])
}

func publicPath(prefix, key string, f Format) string {
	return fmt.Sprintf("%s/%s.%s", strings.Trim(prefix, "/"), key[:20], f.Extension())
}
