package daemon

import (
	"context"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"time"

	"git.home.luguber.info/inful/sitebuilder/internal/build"
	"git.home.luguber.info/inful/sitebuilder/internal/config"
	"git.home.luguber.info/inful/sitebuilder/internal/logfields"
	"git.home.luguber.info/inful/sitebuilder/internal/metrics"
	"git.home.luguber.info/inful/sitebuilder/internal/observability"
	"git.home.luguber.info/inful/sitebuilder/internal/publish"
)

// ServiceBuilder runs a build through the build service, publishes the output
// of a successful build and announces the result.
type ServiceBuilder struct {
	service   build.Service
	config    func() *config.Config
	publisher publish.Publisher
	events    EventPublisher
	now       func() time.Time
}

// NewServiceBuilder builds with service using the configuration current at job start.
func NewServiceBuilder(service build.Service, cfg func() *config.Config) *ServiceBuilder {
	return &ServiceBuilder{service: service, config: cfg, now: time.Now}
}

// WithPublisher deploys successful builds with p.
func (b *ServiceBuilder) WithPublisher(p publish.Publisher) *ServiceBuilder {
	b.publisher = p
	return b
}

// WithEvents announces build results on p.
func (b *ServiceBuilder) WithEvents(p EventPublisher) *ServiceBuilder {
	b.events = p
	return b
}

// Build implements Builder.
func (b *ServiceBuilder) Build(ctx context.Context, job *Job) error {
	cfg := b.config()
	started := b.now()
	ctx = observability.WithTrigger(observability.WithJobID(ctx, job.ID), joinTriggers(job.Triggers))
	log := observability.Logger(ctx)

	res, err := b.service.Run(ctx, build.Request{Config: cfg, Trigger: joinTriggers(job.Triggers)})
	ev := BuildEvent{
		Kind:     EventCompleted,
		JobID:    job.ID,
		Triggers: job.Triggers,
		Outcome:  string(metrics.BuildOutcomeFailed),
	}
	if res != nil {
		ev.BuildID = res.BuildID
		ev.Outcome = string(res.Outcome())
		ev.Routes = res.SucceededRoutes()
		ev.Failed = slices.Sorted(maps.Keys(res.Failed))
	}

	if err == nil && b.publisher != nil && cfg.Publish != nil && cfg.Publish.Git.Enabled {
		pres, perr := b.publisher.Publish(ctx, cfg.Build.OutputDir, ev.BuildID)
		if perr != nil {
			log.Error("Publish failed", logfields.BuildID(ev.BuildID), logfields.Error(perr))
			err = perr
		} else {
			ev.Commit = pres.Commit
		}
	}

	if err != nil {
		ev.Kind = EventFailed
		ev.Error = err.Error()
	}
	ev.DurationMS = b.now().Sub(started).Milliseconds()
	ev.Timestamp = b.now()
	b.announce(ctx, ev)

	log.Info("Build job finished",
		logfields.BuildID(ev.BuildID),
		slog.String("outcome", ev.Outcome),
		logfields.DurationMS(float64(ev.DurationMS)))
	return err
}

func (b *ServiceBuilder) announce(ctx context.Context, ev BuildEvent) {
	if b.events == nil {
		return
	}
	if err := b.events.PublishBuildEvent(ctx, ev); err != nil {
		observability.Logger(ctx).Warn("Failed to publish build event", logfields.BuildID(ev.BuildID), logfields.Error(err))
	}
}

func joinTriggers(ts []Trigger) string {
	parts := make([]string, len(ts))
	for i, t := range ts {
		parts[i] = string(t)
	}
	return strings.Join(parts, ",")
}
