package metrics

import (
	"net/http"
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	promhttp "github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "sitebuilder"

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	once               sync.Once
	registry           *prom.Registry
	buildDuration      prom.Histogram
	buildOutcome       *prom.CounterVec
	routeDuration      *prom.HistogramVec
	routeResults       *prom.CounterVec
	buildConcurrency   prom.Gauge
	derivations        *prom.CounterVec
	derivationDuration prom.Histogram
	sourceRequests     *prom.CounterVec
	sourceRetries      *prom.CounterVec
}

// NewPrometheusRecorder constructs and registers Prometheus metrics (idempotent).
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{registry: reg}
	pr.once.Do(func() {
		pr.buildDuration = prom.NewHistogram(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "build_duration_seconds",
			Help:      "Total build duration",
			Buckets:   prom.DefBuckets,
		})
		pr.buildOutcome = prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "build_outcomes_total",
			Help:      "Build outcomes by final status",
		}, []string{"outcome"})
		pr.routeDuration = prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "route_duration_seconds",
			Help:      "Duration of assembling and rendering a single route",
			Buckets:   prom.DefBuckets,
		}, []string{"route"})
		pr.routeResults = prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "route_results_total",
			Help:      "Route results by outcome",
		}, []string{"route", "result"})
		pr.buildConcurrency = prom.NewGauge(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "build_concurrency",
			Help:      "Route concurrency bound of the last build",
		})
		pr.derivations = prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "image_derivations_total",
			Help:      "Image derivation requests by cache result",
		}, []string{"result"})
		pr.derivationDuration = prom.NewHistogram(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "image_derivation_duration_seconds",
			Help:      "Duration of image derivations that missed the cache",
			Buckets:   prom.DefBuckets,
		})
		pr.sourceRequests = prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "content_requests_total",
			Help:      "Content source requests by kind and result",
		}, []string{"kind", "result"})
		pr.sourceRetries = prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "content_retries_total",
			Help:      "Content source retries after transient failures",
		}, []string{"kind"})
		reg.MustRegister(pr.buildDuration, pr.buildOutcome, pr.routeDuration, pr.routeResults,
			pr.buildConcurrency, pr.derivations, pr.derivationDuration, pr.sourceRequests, pr.sourceRetries)
	})
	return pr
}

// Registry returns the registry the recorder's collectors are registered with.
func (p *PrometheusRecorder) Registry() *prom.Registry {
	if p == nil {
		return nil
	}
	return p.registry
}

func (p *PrometheusRecorder) ObserveBuildDuration(d time.Duration) {
	if p == nil || p.buildDuration == nil {
		return
	}
	p.buildDuration.Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncBuildOutcome(outcome BuildOutcomeLabel) {
	if p == nil || p.buildOutcome == nil {
		return
	}
	p.buildOutcome.WithLabelValues(string(outcome)).Inc()
}

func (p *PrometheusRecorder) ObserveRouteDuration(route string, d time.Duration) {
	if p == nil || p.routeDuration == nil {
		return
	}
	p.routeDuration.WithLabelValues(route).Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncRouteResult(route string, result ResultLabel) {
	if p == nil || p.routeResults == nil {
		return
	}
	p.routeResults.WithLabelValues(route, string(result)).Inc()
}

func (p *PrometheusRecorder) SetBuildConcurrency(n int) {
	if p == nil || p.buildConcurrency == nil {
		return
	}
	p.buildConcurrency.Set(float64(n))
}

func (p *PrometheusRecorder) IncDerivation(result DerivationLabel) {
	if p == nil || p.derivations == nil {
		return
	}
	p.derivations.WithLabelValues(string(result)).Inc()
}

func (p *PrometheusRecorder) ObserveDerivationDuration(d time.Duration) {
	if p == nil || p.derivationDuration == nil {
		return
	}
	p.derivationDuration.Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncSourceRequest(kind string, success bool) {
	if p == nil || p.sourceRequests == nil {
		return
	}
	res := "failed"
	if success {
		res = "success"
	}
	p.sourceRequests.WithLabelValues(kind, res).Inc()
}

func (p *PrometheusRecorder) IncSourceRetry(kind string) {
	if p == nil || p.sourceRetries == nil {
		return
	}
	p.sourceRetries.WithLabelValues(kind).Inc()
}

// HTTPHandler returns an http.Handler that serves Prometheus metrics for the provided registry.
func HTTPHandler(reg *prom.Registry) http.Handler {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{EnableOpenMetrics: true})
}
