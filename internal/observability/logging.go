// Package observability carries build correlation ids through a context so
// log lines deep in the pipeline name the build, route and job they belong to.
package observability

import (
	"context"
	"log/slog"

	"git.home.luguber.info/inful/sitebuilder/internal/logfields"
)

// LogContext holds structured logging context information.
type LogContext struct {
	BuildID string
	Route   string
	Trigger string
	JobID   string
}

type logContextKeyType string

const logContextKey logContextKeyType = "log-context"

// WithBuildID adds a build ID to the context.
func WithBuildID(ctx context.Context, buildID string) context.Context {
	lc := extractLogContext(ctx)
	lc.BuildID = buildID
	return context.WithValue(ctx, logContextKey, lc)
}

// WithRoute adds the route being assembled to the context.
func WithRoute(ctx context.Context, route string) context.Context {
	lc := extractLogContext(ctx)
	lc.Route = route
	return context.WithValue(ctx, logContextKey, lc)
}

// WithTrigger records what started the build.
func WithTrigger(ctx context.Context, trigger string) context.Context {
	lc := extractLogContext(ctx)
	lc.Trigger = trigger
	return context.WithValue(ctx, logContextKey, lc)
}

// WithJobID adds a daemon job ID to the context.
func WithJobID(ctx context.Context, jobID string) context.Context {
	lc := extractLogContext(ctx)
	lc.JobID = jobID
	return context.WithValue(ctx, logContextKey, lc)
}

func extractLogContext(ctx context.Context) LogContext {
	if lc, ok := ctx.Value(logContextKey).(LogContext); ok {
		return lc
	}
	return LogContext{}
}

// GetContext returns the structured log context from the provided context.
func GetContext(ctx context.Context) LogContext {
	return extractLogContext(ctx)
}

// Attrs returns the context's correlation fields as slog attributes.
func Attrs(ctx context.Context) []any {
	lc := extractLogContext(ctx)
	var attrs []any
	if lc.JobID != "" {
		attrs = append(attrs, slog.String("job_id", lc.JobID))
	}
	if lc.Trigger != "" {
		attrs = append(attrs, logfields.Trigger(lc.Trigger))
	}
	if lc.BuildID != "" {
		attrs = append(attrs, logfields.BuildID(lc.BuildID))
	}
	if lc.Route != "" {
		attrs = append(attrs, logfields.Route(lc.Route))
	}
	return attrs
}

// Logger returns the default logger annotated with the context's fields.
func Logger(ctx context.Context) *slog.Logger {
	attrs := Attrs(ctx)
	if len(attrs) == 0 {
		return slog.Default()
	}
	return slog.Default().With(attrs...)
}
