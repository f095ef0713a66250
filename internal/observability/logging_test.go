package observability

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestContextFieldsAccumulate(t *testing.T) {
	ctx := WithJobID(context.Background(), "job-1")
	ctx = WithTrigger(ctx, "content")
	ctx = WithBuildID(ctx, "build-123")
	routeCtx := WithRoute(ctx, "/about")

	lc := GetContext(routeCtx)
	if lc.BuildID != "build-123" || lc.Route != "/about" || lc.JobID != "job-1" || lc.Trigger != "content" {
		t.Fatalf("unexpected log context: %+v", lc)
	}
	if GetContext(ctx).Route != "" {
		t.Error("route must not leak into the parent context")
	}
}

func TestLoggerAddsFields(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	defer slog.SetDefault(prev)

	ctx := WithRoute(WithBuildID(context.Background(), "b-9"), "/services")
	Logger(ctx).Info("hello")

	out := buf.String()
	for _, want := range []string{"build_id=b-9", "route=/services", "msg=hello"} {
		if !strings.Contains(out, want) {
			t.Errorf("log line %q missing %q", out, want)
		}
	}
}

func TestLoggerWithoutFields(t *testing.T) {
	if Logger(context.Background()) != slog.Default() {
		t.Error("expected the default logger for an empty context")
	}
	if len(Attrs(context.Background())) != 0 {
		t.Error("expected no attributes")
	}
}
