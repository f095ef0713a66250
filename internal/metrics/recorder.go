package metrics

import "time"

// ResultLabel enumerates per-route result categories for counters.
type ResultLabel string

const (
	ResultSuccess  ResultLabel = "success"
	ResultFailed   ResultLabel = "failed"
	ResultCanceled ResultLabel = "canceled"
)

// BuildOutcomeLabel is the final status of a whole build.
type BuildOutcomeLabel string

const (
	BuildOutcomeSuccess  BuildOutcomeLabel = "success"
	BuildOutcomePartial  BuildOutcomeLabel = "partial"
	BuildOutcomeFailed   BuildOutcomeLabel = "failed"
	BuildOutcomeCanceled BuildOutcomeLabel = "canceled"
)

// DerivationLabel classifies how an image derivation request was satisfied.
type DerivationLabel string

const (
	DerivationHit       DerivationLabel = "hit"
	DerivationMiss      DerivationLabel = "miss"
	DerivationCollapsed DerivationLabel = "collapsed"
	DerivationError     DerivationLabel = "error"
)

// Recorder defines observability hooks for builds, routes, image derivations
// and content source calls. Implementations must be safe for concurrent use.
type Recorder interface {
	ObserveBuildDuration(d time.Duration)
	IncBuildOutcome(outcome BuildOutcomeLabel)
	ObserveRouteDuration(route string, d time.Duration)
	IncRouteResult(route string, result ResultLabel)
	SetBuildConcurrency(n int)
	IncDerivation(result DerivationLabel)
	ObserveDerivationDuration(d time.Duration)
	IncSourceRequest(kind string, success bool)
	IncSourceRetry(kind string)
}

// NoopRecorder is a Recorder that does nothing (default when metrics not configured).
type NoopRecorder struct{}

func (NoopRecorder) ObserveBuildDuration(time.Duration)         {}
func (NoopRecorder) IncBuildOutcome(BuildOutcomeLabel)          {}
func (NoopRecorder) ObserveRouteDuration(string, time.Duration) {}
func (NoopRecorder) IncRouteResult(string, ResultLabel)         {}
func (NoopRecorder) SetBuildConcurrency(int)                    {}
func (NoopRecorder) IncDerivation(DerivationLabel)              {}
func (NoopRecorder) ObserveDerivationDuration(time.Duration)    {}
func (NoopRecorder) IncSourceRequest(string, bool)              {}
func (NoopRecorder) IncSourceRetry(string)                      {}

// OrNoop returns r, or NoopRecorder when r is nil.
func OrNoop(r Recorder) Recorder {
	if r == nil {
		return NoopRecorder{}
	}
	return r
}
