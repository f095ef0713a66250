package asset

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"git.home.luguber.info/inful/sitebuilder/internal/content"
	"git.home.luguber.info/inful/sitebuilder/internal/logfields"
	"git.home.luguber.info/inful/sitebuilder/internal/metrics"
	"git.home.luguber.info/inful/sitebuilder/internal/observability"
	"git.home.luguber.info/inful/sitebuilder/internal/storage"
)

// Options configures an Engine.
type Options struct {
	// Store holds encoded payloads; defaults to an in-memory store.
	Store storage.ObjectStore
	// Index enables reuse of derivations across builds; optional.
	Index            Index
	Recorder         metrics.Recorder
	PlaceholderWidth int
	// PublicPrefix is the site-relative directory derived images are published under.
	PublicPrefix string
}

// Engine derives images. It is safe for concurrent use.
type Engine struct {
	fetcher          content.AssetFetcher
	store            storage.ObjectStore
	index            Index
	recorder         metrics.Recorder
	placeholderWidth int
	prefix           string

	mu    sync.RWMutex
	cache map[string]*DerivedImage
	group singleflight.Group
}

// NewEngine creates an engine fetching source bytes through fetcher.
func NewEngine(fetcher content.AssetFetcher, opts Options) *Engine {
	pw := opts.PlaceholderWidth
	if pw <= 0 {
		pw = DefaultPlaceholderWidth
	}
	pw = min(pw, MaxPlaceholderWidth)
	store := opts.Store
	if store == nil {
		store = storage.NewMemoryStore()
	}
	prefix := opts.PublicPrefix
	if prefix == "" {
		prefix = "img"
	}
	return &Engine{
		fetcher:          fetcher,
		store:            store,
		index:            opts.Index,
		recorder:         metrics.OrNoop(opts.Recorder),
		placeholderWidth: pw,
		prefix:           prefix,
		cache:            make(map[string]*DerivedImage),
	}
}

// Derive returns the image described by spec for ref, deriving it at most
// once per cache key no matter how many callers ask concurrently.
func (e *Engine) Derive(ctx context.Context, ref content.ImageReference, spec Spec) (*DerivedImage, error) {
	if ref.AssetID == "" || ref.URL == "" {
		e.recorder.IncDerivation(metrics.DerivationError)
		return nil, derivationError(ref.AssetID, "validate", errors.New("image reference has no asset id or url"))
	}
	if spec.Width <= 0 {
		e.recorder.IncDerivation(metrics.DerivationError)
		return nil, derivationError(ref.AssetID, "validate", fmt.Errorf("width must be positive, got %d", spec.Width))
	}
	spec = spec.normalized()
	key := CacheKey(ref, spec, e.placeholderWidth)

	if img, ok := e.cached(key); ok {
		e.recorder.IncDerivation(metrics.DerivationHit)
		return img, nil
	}

	// Derivation ignores caller cancellation; a canceled caller only stops waiting.
	dctx := context.WithoutCancel(ctx)
	ch := e.group.DoChan(key, func() (any, error) {
		if img, ok := e.cached(key); ok {
			return img, nil
		}
		if img := e.restore(dctx, key); img != nil {
			e.recorder.IncDerivation(metrics.DerivationHit)
			return e.insert(img), nil
		}
		start := time.Now()
		img, err := e.derive(dctx, key, ref, spec)
		if err != nil {
			return nil, err
		}
		e.recorder.IncDerivation(metrics.DerivationMiss)
		e.recorder.ObserveDerivationDuration(time.Since(start))
		e.persist(dctx, img)
		return e.insert(img), nil
	})

	var res singleflight.Result
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res = <-ch:
	}
	if res.Err != nil {
		e.recorder.IncDerivation(metrics.DerivationError)
		return nil, res.Err
	}
	v, shared := res.Val, res.Shared
	if shared {
		e.recorder.IncDerivation(metrics.DerivationCollapsed)
	}
	return v.(*DerivedImage), nil
}

func (e *Engine) cached(key string) (*DerivedImage, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	img, ok := e.cache[key]
	return img, ok
}

// insert stores img unless the key is already present and returns the winner.
func (e *Engine) insert(img *DerivedImage) *DerivedImage {
	e.mu.Lock()
	defer e.mu.Unlock()
	if existing, ok := e.cache[img.Key]; ok {
		return existing
	}
	e.cache[img.Key] = img
	return img
}

// restore loads a derivation recorded by an earlier build when all of its
// payloads are still in the store.
func (e *Engine) restore(ctx context.Context, key string) *DerivedImage {
	if e.index == nil {
		return nil
	}
	img, err := e.index.Lookup(ctx, key)
	if err != nil {
		observability.Logger(ctx).Warn("Derivation index lookup failed", logfields.CacheKey(key), logfields.Error(err))
		return nil
	}
	if img == nil {
		return nil
	}
	hashes := []string{img.PayloadHash}
	for _, v := range img.Variants {
		hashes = append(hashes, v.PayloadHash)
	}
	for _, h := range hashes {
		if ok, err := e.store.Exists(ctx, h); err != nil || !ok {
			return nil
		}
	}
	return img
}

func (e *Engine) persist(ctx context.Context, img *DerivedImage) {
	if e.index == nil {
		return
	}
	if err := e.index.Record(ctx, img); err != nil {
		observability.Logger(ctx).Warn("Failed to record derivation", logfields.Asset(img.Source.AssetID), logfields.Error(err))
	}
}

func (e *Engine) derive(ctx context.Context, key string, ref content.ImageReference, spec Spec) (*DerivedImage, error) {
	data, err := e.fetcher.FetchAsset(ctx, ref)
	if err != nil {
		return nil, derivationError(ref.AssetID, "fetch", err)
	}
	src, err := decode(data)
	if err != nil {
		return nil, derivationError(ref.AssetID, "decode", err)
	}

	img := &DerivedImage{
		Key:     key,
		Source:  ref,
		Format:  spec.Format,
		Quality: spec.Quality,
	}

	// The placeholder goes first: a requested placeholder gates completion.
	if spec.Placeholder {
		img.Placeholder, img.DominantColor, err = placeholder(src, e.placeholderWidth)
		if err != nil {
			return nil, derivationError(ref.AssetID, "placeholder", err)
		}
	}

	scaled := resize(src, spec.Width, spec.Height)
	img.Width, img.Height = scaled.Bounds().Dx(), scaled.Bounds().Dy()

	primary, err := e.encodeAndStore(ctx, key, ref, scaled, spec.Format, spec.Quality)
	if err != nil {
		return nil, derivationError(ref.AssetID, "encode "+string(spec.Format), err)
	}
	img.Path, img.PayloadHash = primary.Path, primary.PayloadHash

	for _, f := range spec.Formats {
		v, err := e.encodeAndStore(ctx, key, ref, scaled, f, spec.Quality)
		if err != nil {
			img.Fallback = true
			observability.Logger(ctx).Warn("Secondary image format unavailable, using primary",
				logfields.Asset(ref.AssetID),
				logfields.Format(string(f)),
				logfields.Error(err))
			continue
		}
		img.Variants = append(img.Variants, v)
	}

	observability.Logger(ctx).Debug("Derived image",
		logfields.Asset(ref.AssetID),
		logfields.CacheKey(key),
		slog.Int("width", img.Width),
		slog.Int("height", img.Height))
	return img, nil
}

func (e *Engine) encodeAndStore(ctx context.Context, key string, ref content.ImageReference, scaled image.Image, f Format, quality int) (Variant, error) {
	data, err := encode(scaled, f, quality)
	if err != nil {
		return Variant{}, err
	}
	hash, err := e.store.Put(ctx, &storage.Object{
		Type:        storage.ObjectTypeDerivedImage,
		ContentType: f.ContentType(),
		Data:        data,
		Metadata:    storage.Metadata{Custom: map[string]string{"asset_id": ref.AssetID, "cache_key": key}},
	})
	if err != nil {
		return Variant{}, fmt.Errorf("store payload: %w", err)
	}
	return Variant{Format: f, Path: publicPath(e.prefix, key, f), PayloadHash: hash, Size: int64(len(data))}, nil
}

// Derived returns every image derived or restored by this engine, ordered by key.
func (e *Engine) Derived() []*DerivedImage {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]*DerivedImage, 0, len(e.cache))
	for _, img := range e.cache {
		out = append(out, img)
	}
	slices.SortFunc(out, func(a, b *DerivedImage) int { return strings.Compare(a.Key, b.Key) })
	return out
}

// Export writes the payloads of img under outDir at their public paths.
// Files already present are left alone since a path names exactly one payload.
func (e *Engine) Export(ctx context.Context, outDir string, img *DerivedImage) error {
	if img == nil {
		return nil
	}
	files := map[string]string{img.Path: img.PayloadHash}
	for _, v := range img.Variants {
		files[v.Path] = v.PayloadHash
	}
	for rel, hash := range files {
		dst := filepath.Join(outDir, filepath.FromSlash(rel))
		if _, err := os.Stat(dst); err == nil {
			continue
		}
		obj, err := e.store.Get(ctx, hash)
		if err != nil {
			return fmt.Errorf("load payload for %s: %w", rel, err)
		}
		if err := os.MkdirAll(filepath.Dir(dst), 0o750); err != nil {
			return fmt.Errorf("create image directory: %w", err)
		}
		// #nosec G306 - published site files are world readable
		if err := os.WriteFile(dst, obj.Data, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", rel, err)
		}
	}
	return nil
}
