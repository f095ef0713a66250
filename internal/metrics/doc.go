// Package metrics provides build observability for sitebuilder.
//
// Components receive a Recorder through dependency injection and default to
// NoopRecorder, so no call site needs a nil check:
//
//	type Orchestrator struct {
//	    recorder metrics.Recorder
//	}
//
//	o := build.New(cfg, assembler, renderer).WithRecorder(metrics.NoopRecorder{})
//
// When monitoring is enabled the daemon swaps in a PrometheusRecorder and
// exposes its registry through HTTPHandler.
package metrics
