package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"git.home.luguber.info/inful/sitebuilder/internal/logfields"
)

// Trigger names what requested a build.
type Trigger string

const (
	TriggerStartup  Trigger = "startup"
	TriggerSchedule Trigger = "schedule"
	TriggerContent  Trigger = "content"
	TriggerConfig   Trigger = "config"
	TriggerManual   Trigger = "manual"
)

// JobStatus is the lifecycle state of a build job.
type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
	JobCanceled  JobStatus = "canceled"
)

// Job is one requested build. Requests arriving while a job is queued are
// folded into it as extra triggers.
type Job struct {
	ID          string        `json:"id"`
	Triggers    []Trigger     `json:"triggers"`
	Status      JobStatus     `json:"status"`
	CreatedAt   time.Time     `json:"created_at"`
	StartedAt   time.Time     `json:"started_at,omitzero"`
	CompletedAt time.Time     `json:"completed_at,omitzero"`
	Duration    time.Duration `json:"duration,omitempty"`
	Error       string        `json:"error,omitempty"`
}

// Builder executes a build job.
type Builder interface {
	Build(ctx context.Context, job *Job) error
}

// ErrQueueStopped is returned by Enqueue after Stop.
var ErrQueueStopped = errors.New("build queue stopped")

const defaultHistorySize = 20

// BuildQueue runs builds one at a time. At most one job waits behind the
// running one; further requests coalesce into it.
type BuildQueue struct {
	builder Builder

	mu          sync.Mutex
	pending     *Job
	running     *Job
	history     []Job
	historySize int
	stopped     bool

	wake     chan struct{}
	stopChan chan struct{}
	wg       sync.WaitGroup
	cancel   context.CancelFunc
}

// NewBuildQueue creates a queue executing jobs with builder.
func NewBuildQueue(builder Builder) *BuildQueue {
	if builder == nil {
		panic("NewBuildQueue: builder is required")
	}
	return &BuildQueue{
		builder:     builder,
		historySize: defaultHistorySize,
		wake:        make(chan struct{}, 1),
		stopChan:    make(chan struct{}),
	}
}

// Start launches the worker. Jobs run under a context derived from ctx.
func (q *BuildQueue) Start(ctx context.Context) {
	ctx, q.cancel = context.WithCancel(ctx)
	q.wg.Add(1)
	go q.worker(ctx)
}

// Stop cancels the running job and waits for the worker to exit.
func (q *BuildQueue) Stop() {
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return
	}
	q.stopped = true
	q.mu.Unlock()

	close(q.stopChan)
	if q.cancel != nil {
		q.cancel()
	}
	q.wg.Wait()
}

// Enqueue requests a build. It returns the job that will serve the request
// and whether a new job was created.
func (q *BuildQueue) Enqueue(trigger Trigger) (Job, bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.stopped {
		return Job{}, false, ErrQueueStopped
	}
	if q.pending != nil {
		q.pending.Triggers = appendTrigger(q.pending.Triggers, trigger)
		slog.Debug("Build request coalesced", logfields.Trigger(string(trigger)), logfields.BuildID(q.pending.ID))
		return *q.pending, false, nil
	}

	q.pending = &Job{
		ID:        uuid.NewString(),
		Triggers:  []Trigger{trigger},
		Status:    JobQueued,
		CreatedAt: time.Now(),
	}
	select {
	case q.wake <- struct{}{}:
	default:
	}
	slog.Info("Build queued", logfields.Trigger(string(trigger)), logfields.BuildID(q.pending.ID))
	return *q.pending, true, nil
}

// Snapshot returns copies of the running job, the pending job and the history, newest last.
func (q *BuildQueue) Snapshot() (running, pending *Job, history []Job) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.running != nil {
		cp := *q.running
		running = &cp
	}
	if q.pending != nil {
		cp := *q.pending
		pending = &cp
	}
	history = append([]Job(nil), q.history...)
	return running, pending, history
}

// LastCompleted returns the most recently finished job.
func (q *BuildQueue) LastCompleted() (Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.history) == 0 {
		return Job{}, false
	}
	return q.history[len(q.history)-1], true
}

func (q *BuildQueue) worker(ctx context.Context) {
	defer q.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-q.stopChan:
			return
		case <-q.wake:
		}

		q.mu.Lock()
		job := q.pending
		q.pending = nil
		if job != nil {
			job.Status = JobRunning
			job.StartedAt = time.Now()
			q.running = job
		}
		q.mu.Unlock()

		if job != nil {
			q.process(ctx, job)
		}
	}
}

func (q *BuildQueue) process(ctx context.Context, job *Job) {
	err := q.runJob(ctx, job)

	q.mu.Lock()
	job.CompletedAt = time.Now()
	job.Duration = job.CompletedAt.Sub(job.StartedAt)
	switch {
	case err == nil:
		job.Status = JobCompleted
	case errors.Is(err, context.Canceled):
		job.Status = JobCanceled
		job.Error = err.Error()
	default:
		job.Status = JobFailed
		job.Error = err.Error()
	}
	q.running = nil
	q.history = append(q.history, *job)
	if len(q.history) > q.historySize {
		q.history = q.history[len(q.history)-q.historySize:]
	}
	requeue := q.pending != nil
	q.mu.Unlock()

	if requeue {
		select {
		case q.wake <- struct{}{}:
		default:
		}
	}
}

func (q *BuildQueue) runJob(ctx context.Context, job *Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("build panicked: %v", r)
			slog.Error("Build panicked", logfields.BuildID(job.ID), slog.Any("panic", r))
		}
	}()
	return q.builder.Build(ctx, job)
}

func appendTrigger(ts []Trigger, t Trigger) []Trigger {
	for _, existing := range ts {
		if existing == t {
			return ts
		}
	}
	return append(ts, t)
}
