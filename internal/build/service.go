package build

import (
	"context"
	"log/slog"
	"time"

	"git.home.luguber.info/inful/sitebuilder/internal/asset"
	"git.home.luguber.info/inful/sitebuilder/internal/config"
	"git.home.luguber.info/inful/sitebuilder/internal/content"
	ferrors "git.home.luguber.info/inful/sitebuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/sitebuilder/internal/logfields"
	"git.home.luguber.info/inful/sitebuilder/internal/manifest"
	"git.home.luguber.info/inful/sitebuilder/internal/metrics"
	"git.home.luguber.info/inful/sitebuilder/internal/page"
	"git.home.luguber.info/inful/sitebuilder/internal/storage"
	"git.home.luguber.info/inful/sitebuilder/internal/workspace"
)

// Service is the canonical interface for executing site builds.
// Both the CLI and the daemon are thin wrappers over it.
type Service interface {
	Run(ctx context.Context, req Request) (*Result, error)
}

// Request contains all inputs required to execute a build.
type Request struct {
	// Config is the loaded configuration for this build.
	Config *config.Config
	// OutputDir overrides build.output_dir when set.
	OutputDir string
	// Trigger names what started the build (cli, schedule, content, config).
	Trigger string
}

// ImageExporter copies derived images into the output tree.
type ImageExporter interface {
	Export(ctx context.Context, outDir string, img *asset.DerivedImage) error
}

// RendererFactory creates a renderer writing below outputDir and exporting
// the images it references through images.
type RendererFactory func(cfg *config.Config, outputDir string, images ImageExporter) Renderer

// BackendFactory creates the content backend for a configuration.
type BackendFactory func(cfg *config.Config, rec metrics.Recorder) (content.Backend, error)

// DefaultService builds the site described by the request configuration into
// a staging workspace and promotes it when no critical route failed.
type DefaultService struct {
	renderers RendererFactory
	backends  BackendFactory
	store     storage.ObjectStore
	index     asset.Index
	recorder  metrics.Recorder
}

// NewService creates a DefaultService rendering with renderers.
func NewService(renderers RendererFactory) *DefaultService {
	return &DefaultService{
		renderers: renderers,
		backends:  content.BackendFromConfig,
		recorder:  metrics.NoopRecorder{},
	}
}

// WithBackendFactory replaces how the content backend is created (for testing and fixtures).
func (s *DefaultService) WithBackendFactory(f BackendFactory) *DefaultService {
	s.backends = f
	return s
}

// WithStore sets the payload store shared across builds.
func (s *DefaultService) WithStore(store storage.ObjectStore) *DefaultService {
	s.store = store
	return s
}

// WithIndex enables reuse of derivations recorded by earlier builds.
func (s *DefaultService) WithIndex(idx asset.Index) *DefaultService {
	s.index = idx
	return s
}

// WithRecorder injects a metrics recorder.
func (s *DefaultService) WithRecorder(r metrics.Recorder) *DefaultService {
	s.recorder = metrics.OrNoop(r)
	return s
}

// Run executes one build. The returned result is non-nil whenever the routes
// were attempted; the error reports critical failures, cancellation or a
// workspace problem.
func (s *DefaultService) Run(ctx context.Context, req Request) (*Result, error) {
	cfg := req.Config
	if cfg == nil {
		return nil, ferrors.ConfigError("config required").Build()
	}
	routes := page.RoutesFromConfig(cfg)
	if len(routes) == 0 {
		return nil, ferrors.ConfigError("no routes configured").Build()
	}
	if s.renderers == nil {
		return nil, ferrors.ConfigError("renderer factory required").Build()
	}

	outputDir := req.OutputDir
	if outputDir == "" {
		outputDir = cfg.Build.OutputDir
	}
	log := slog.With(logfields.Trigger(req.Trigger), logfields.Path(outputDir))

	backend, err := s.backends(cfg, s.recorder)
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryContent, "failed to create content backend").Build()
	}

	ws := workspace.NewInPlace(outputDir)
	if cfg.Build.Clean {
		ws = workspace.NewStaging(outputDir)
	}
	if err := ws.Create(); err != nil {
		return nil, ferrors.FileSystemError("failed to create workspace").WithCause(err).Build()
	}
	defer func() {
		if err := ws.Cleanup(); err != nil {
			log.Warn("Failed to cleanup workspace", logfields.Error(err))
		}
	}()

	engine := asset.NewEngine(backend, asset.Options{
		Store:            s.store,
		Index:            s.index,
		Recorder:         s.recorder,
		PlaceholderWidth: cfg.Images.PlaceholderWidth,
		PublicPrefix:     cfg.Images.OutputSubdir,
	})
	configHash, err := manifest.ConfigHash(cfg)
	if err != nil {
		log.Warn("Config hash unavailable", logfields.Error(err))
	}

	orch := New(page.NewAssembler(backend, engine), s.renderers(cfg, ws.Path(), engine), Options{
		Concurrency: cfg.Build.Concurrency,
		ManifestDir: ws.Path(),
		ConfigHash:  configHash,
		Images:      engine,
		Recorder:    s.recorder,
	})

	started := time.Now()
	res := orch.Build(ctx, routes)
	if res.Canceled {
		return res, ctx.Err()
	}
	if err := res.Err(); err != nil {
		log.Error("Build failed, keeping previous output", logfields.BuildID(res.BuildID), logfields.Error(err))
		return res, err
	}
	if res.ManifestErr != nil {
		return res, res.ManifestErr
	}
	if err := ws.Promote(); err != nil {
		return res, ferrors.FileSystemError("failed to publish build output").WithCause(err).Build()
	}
	log.Info("Build published",
		logfields.BuildID(res.BuildID),
		logfields.DurationMS(float64(time.Since(started).Milliseconds())))
	return res, nil
}
