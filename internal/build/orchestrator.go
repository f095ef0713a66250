package build

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"runtime/debug"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"git.home.luguber.info/inful/sitebuilder/internal/asset"
	ferrors "git.home.luguber.info/inful/sitebuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/sitebuilder/internal/logfields"
	"git.home.luguber.info/inful/sitebuilder/internal/manifest"
	"git.home.luguber.info/inful/sitebuilder/internal/metrics"
	"git.home.luguber.info/inful/sitebuilder/internal/observability"
	"git.home.luguber.info/inful/sitebuilder/internal/page"
)

// DefaultConcurrency bounds route parallelism when none is configured.
const DefaultConcurrency = 4

// Assembler produces the model for one route.
type Assembler interface {
	Assemble(ctx context.Context, spec page.RouteSpec) (*page.Model, error)
}

// Renderer turns a finished model into a static artifact.
type Renderer interface {
	Render(ctx context.Context, m *page.Model) (*Artifact, error)
}

// ImageLister reports the images derived during a build.
type ImageLister interface {
	Derived() []*asset.DerivedImage
}

// Artifact describes one rendered route.
type Artifact struct {
	Route string
	// Path is the artifact location relative to the output directory.
	Path        string
	Fingerprint string
	Size        int64
}

// Options configures an Orchestrator.
type Options struct {
	Concurrency int
	// ManifestDir receives manifest.json; empty skips writing it.
	ManifestDir string
	ConfigHash  string
	Images      ImageLister
	Recorder    metrics.Recorder
}

// Orchestrator runs the routes of a build. A single orchestrator may run
// several builds sequentially or concurrently.
type Orchestrator struct {
	assembler Assembler
	renderer  Renderer
	opts      Options
	recorder  metrics.Recorder
	now       func() time.Time
}

// New creates an orchestrator.
func New(assembler Assembler, renderer Renderer, opts Options) *Orchestrator {
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	return &Orchestrator{
		assembler: assembler,
		renderer:  renderer,
		opts:      opts,
		recorder:  metrics.OrNoop(opts.Recorder),
		now:       time.Now,
	}
}

// Result is the outcome of one build.
type Result struct {
	BuildID   string
	StartTime time.Time
	Duration  time.Duration
	// Succeeded holds the paths of routes that were rendered.
	Succeeded map[string]bool
	// Failed maps each failed route path to its cause.
	Failed    map[string]error
	Artifacts map[string]*Artifact
	// Critical marks the routes whose failure fails the build.
	Critical map[string]bool
	Manifest *manifest.BuildManifest
	// ManifestErr is set when the manifest could not be written.
	ManifestErr error
	Canceled    bool
}

// Err returns a build error when at least one critical route failed, nil otherwise.
func (r *Result) Err() error {
	var errs []error
	for _, path := range slices.Sorted(maps.Keys(r.Failed)) {
		if r.Critical[path] {
			errs = append(errs, r.Failed[path])
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return ferrors.BuildError("critical routes failed").
		WithCause(errors.Join(errs...)).
		WithContext("build_id", r.BuildID).
		WithContext("failed", len(errs)).
		Build()
}

// Outcome classifies the build for metrics and the manifest.
func (r *Result) Outcome() metrics.BuildOutcomeLabel {
	switch {
	case r.Canceled:
		return metrics.BuildOutcomeCanceled
	case r.Err() != nil:
		return metrics.BuildOutcomeFailed
	case len(r.Failed) > 0:
		return metrics.BuildOutcomePartial
	default:
		return metrics.BuildOutcomeSuccess
	}
}

// SucceededRoutes returns the rendered route paths in order.
func (r *Result) SucceededRoutes() []string {
	return slices.Sorted(maps.Keys(r.Succeeded))
}

// Build assembles and renders every route. Routes run concurrently up to the
// configured limit and each is attempted at most once; a failing route never
// stops the others. Routes sharing a path are all rejected before any work
// starts.
func (o *Orchestrator) Build(ctx context.Context, routes []page.RouteSpec) *Result {
	start := o.now()
	res := &Result{
		BuildID:   uuid.NewString(),
		StartTime: start,
		Succeeded: make(map[string]bool),
		Failed:    make(map[string]error),
		Artifacts: make(map[string]*Artifact),
		Critical:  make(map[string]bool),
	}
	ctx = observability.WithBuildID(ctx, res.BuildID)
	log := observability.Logger(ctx)
	log.Info("Build started", logfields.Count(len(routes)))

	runnable := o.rejectDuplicates(res, routes)

	var mu sync.Mutex
	g := new(errgroup.Group)
	g.SetLimit(o.opts.Concurrency)
	o.recorder.SetBuildConcurrency(o.opts.Concurrency)
	for _, spec := range runnable {
		g.Go(func() error {
			routeStart := time.Now()
			art, err := o.runRoute(ctx, spec)
			o.recorder.ObserveRouteDuration(spec.Path, time.Since(routeStart))

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				res.Failed[spec.Path] = &RouteError{Route: spec.Path, Err: err}
				result := metrics.ResultFailed
				if ctx.Err() != nil {
					result = metrics.ResultCanceled
				}
				o.recorder.IncRouteResult(spec.Path, result)
				log.Error("Route failed",
					logfields.Route(spec.Path),
					slog.Bool("critical", spec.Critical),
					slog.String("category", string(ferrors.GetCategory(err))),
					logfields.Error(err))
				return nil
			}
			res.Succeeded[spec.Path] = true
			res.Artifacts[spec.Path] = art
			o.recorder.IncRouteResult(spec.Path, metrics.ResultSuccess)
			log.Info("Route rendered",
				logfields.Route(spec.Path),
				logfields.Path(art.Path),
				logfields.DurationMS(float64(time.Since(routeStart).Milliseconds())))
			return nil
		})
	}
	_ = g.Wait()

	res.Canceled = ctx.Err() != nil
	res.Duration = o.now().Sub(start)
	res.Manifest = o.manifest(res, routes)
	if o.opts.ManifestDir != "" {
		if err := res.Manifest.Write(o.opts.ManifestDir); err != nil {
			res.ManifestErr = ferrors.FileSystemError("failed to write build manifest").
				WithCause(err).
				WithContext("dir", o.opts.ManifestDir).
				Build()
			log.Error("Manifest write failed", logfields.Error(err))
		}
	}

	outcome := res.Outcome()
	o.recorder.IncBuildOutcome(outcome)
	o.recorder.ObserveBuildDuration(res.Duration)
	log.Info("Build finished",
		slog.String("outcome", string(outcome)),
		slog.Int("succeeded", len(res.Succeeded)),
		slog.Int("failed", len(res.Failed)),
		logfields.DurationMS(float64(res.Duration.Milliseconds())))
	return res
}

func (o *Orchestrator) rejectDuplicates(res *Result, routes []page.RouteSpec) []page.RouteSpec {
	seen := make(map[string]int, len(routes))
	for _, spec := range routes {
		seen[spec.Path]++
		if spec.Critical {
			res.Critical[spec.Path] = true
		}
	}
	runnable := make([]page.RouteSpec, 0, len(routes))
	for _, spec := range routes {
		if n := seen[spec.Path]; n > 1 {
			if _, done := res.Failed[spec.Path]; !done {
				res.Failed[spec.Path] = &RouteError{
					Route: spec.Path,
					Err:   fmt.Errorf("%w: declared %d times", ErrDuplicateRoute, n),
				}
				o.recorder.IncRouteResult(spec.Path, metrics.ResultFailed)
				slog.Error("Duplicate route rejected", logfields.Route(spec.Path), logfields.Count(n))
			}
			continue
		}
		runnable = append(runnable, spec)
	}
	return runnable
}

func (o *Orchestrator) runRoute(ctx context.Context, spec page.RouteSpec) (art *Artifact, err error) {
	ctx = observability.WithRoute(ctx, spec.Path)
	defer func() {
		if r := recover(); r != nil {
			observability.Logger(ctx).Error("Route panicked", slog.String("stack", string(debug.Stack())))
			art, err = nil, ferrors.InternalError("route panicked").
				WithCause(ErrRoutePanic).
				WithContext("panic", fmt.Sprint(r)).
				Build()
		}
	}()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	model, err := o.assembler.Assemble(ctx, spec)
	if err != nil {
		return nil, err
	}
	art, err = o.renderer.Render(ctx, model)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRender, err)
	}
	return art, nil
}

func (o *Orchestrator) manifest(res *Result, routes []page.RouteSpec) *manifest.BuildManifest {
	m := &manifest.BuildManifest{
		ID:        res.BuildID,
		Timestamp: res.StartTime.UTC(),
		Inputs:    manifest.Inputs{ConfigHash: o.opts.ConfigHash},
		Outputs:   manifest.Outputs{ArtifactHashes: make(map[string]string)},
		Status:    string(res.Outcome()),
		Duration:  res.Duration.Milliseconds(),
	}
	seen := make(map[string]bool, len(routes))
	for _, spec := range routes {
		m.Inputs.Routes = append(m.Inputs.Routes, manifest.RouteInput{Path: spec.Path, Template: spec.Kind, Critical: spec.Critical})
		if seen[spec.Path] {
			continue
		}
		seen[spec.Path] = true
		out := manifest.RouteOutput{Path: spec.Path, Status: manifest.RouteSucceeded}
		if err, failed := res.Failed[spec.Path]; failed {
			out.Status = manifest.RouteFailed
			out.Error = err.Error()
		} else if art := res.Artifacts[spec.Path]; art != nil {
			out.Artifact = art.Path
			out.Fingerprint = art.Fingerprint
			m.Outputs.ArtifactHashes[art.Path] = art.Fingerprint
		}
		m.Outputs.Routes = append(m.Outputs.Routes, out)
	}
	if o.opts.Images != nil {
		for _, img := range o.opts.Images.Derived() {
			io := manifest.ImageOutput{
				Key:         img.Key,
				AssetID:     img.Source.AssetID,
				ContentHash: img.Source.ContentHash,
				Path:        img.Path,
			}
			for _, v := range img.Variants {
				io.Variants = append(io.Variants, v.Path)
			}
			m.Outputs.Images = append(m.Outputs.Images, io)
		}
	}
	m.Sort()
	return m
}
