package daemon

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/sitebuilder/internal/build"
	"git.home.luguber.info/inful/sitebuilder/internal/config"
	ferrors "git.home.luguber.info/inful/sitebuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/sitebuilder/internal/publish"
)

type fakeService struct {
	res  *build.Result
	err  error
	reqs []build.Request
}

func (s *fakeService) Run(_ context.Context, req build.Request) (*build.Result, error) {
	s.reqs = append(s.reqs, req)
	return s.res, s.err
}

type fakePublisher struct {
	calls []string
	err   error
}

func (p *fakePublisher) Publish(_ context.Context, outputDir, buildID string) (*publish.Result, error) {
	p.calls = append(p.calls, outputDir+"@"+buildID)
	if p.err != nil {
		return nil, p.err
	}
	return &publish.Result{Commit: "abc123", Changed: true}, nil
}

type fakeEvents struct{ events []BuildEvent }

func (e *fakeEvents) PublishBuildEvent(_ context.Context, ev BuildEvent) error {
	e.events = append(e.events, ev)
	return nil
}

func publishingConfig() *config.Config {
	return &config.Config{
		Build:   config.BuildConfig{OutputDir: "/srv/site"},
		Publish: &config.PublishConfig{Git: config.GitPublishConfig{Enabled: true, Branch: "gh-pages"}},
	}
}

func TestServiceBuilderPublishesSuccessfulBuild(t *testing.T) {
	svc := &fakeService{res: &build.Result{
		BuildID:   "b1",
		Succeeded: map[string]bool{"/": true, "/about": true},
		Failed:    map[string]error{"/services": errors.New("render")},
	}}
	pub := &fakePublisher{}
	events := &fakeEvents{}
	cfg := publishingConfig()
	b := NewServiceBuilder(svc, func() *config.Config { return cfg }).WithPublisher(pub).WithEvents(events)

	require.NoError(t, b.Build(context.Background(), &Job{ID: "j1", Triggers: []Trigger{TriggerContent, TriggerSchedule}}))

	require.Len(t, svc.reqs, 1)
	assert.Equal(t, "content,schedule", svc.reqs[0].Trigger)
	assert.Same(t, cfg, svc.reqs[0].Config)
	assert.Equal(t, []string{"/srv/site@b1"}, pub.calls)

	require.Len(t, events.events, 1)
	ev := events.events[0]
	assert.Equal(t, EventCompleted, ev.Kind)
	assert.Equal(t, "partial", ev.Outcome)
	assert.Equal(t, []string{"/", "/about"}, ev.Routes)
	assert.Equal(t, []string{"/services"}, ev.Failed)
	assert.Equal(t, "abc123", ev.Commit)
}

func TestServiceBuilderSkipsPublishOnFailure(t *testing.T) {
	svc := &fakeService{
		res: &build.Result{BuildID: "b2"},
		err: ferrors.BuildError("critical routes failed").Build(),
	}
	pub := &fakePublisher{}
	events := &fakeEvents{}
	cfg := publishingConfig()
	b := NewServiceBuilder(svc, func() *config.Config { return cfg }).WithPublisher(pub).WithEvents(events)

	err := b.Build(context.Background(), &Job{ID: "j2", Triggers: []Trigger{TriggerManual}})
	require.Error(t, err)
	assert.Empty(t, pub.calls)
	require.Len(t, events.events, 1)
	assert.Equal(t, EventFailed, events.events[0].Kind)
	assert.Equal(t, "b2", events.events[0].BuildID)
}

func TestServiceBuilderReportsPublishFailure(t *testing.T) {
	svc := &fakeService{res: &build.Result{BuildID: "b3"}}
	pub := &fakePublisher{err: ferrors.PublishError("git push failed").Build()}
	events := &fakeEvents{}
	cfg := publishingConfig()
	b := NewServiceBuilder(svc, func() *config.Config { return cfg }).WithPublisher(pub).WithEvents(events)

	err := b.Build(context.Background(), &Job{ID: "j3", Triggers: []Trigger{TriggerManual}})
	require.True(t, ferrors.HasCategory(err, ferrors.CategoryPublish))
	assert.Equal(t, EventFailed, events.events[0].Kind)
}

func TestServiceBuilderWithoutPublishSection(t *testing.T) {
	svc := &fakeService{res: &build.Result{BuildID: "b4"}}
	pub := &fakePublisher{}
	b := NewServiceBuilder(svc, func() *config.Config { return &config.Config{} }).WithPublisher(pub)

	require.NoError(t, b.Build(context.Background(), &Job{ID: "j4"}))
	assert.Empty(t, pub.calls)
}
