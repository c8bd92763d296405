package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "taleweaver"

// Metrics holds the service collectors. They are registered on their own
// registry rather than prometheus.DefaultRegisterer so tests can build many.
type Metrics struct {
	registry *prometheus.Registry

	providerResults *prometheus.CounterVec
	providerLatency *prometheus.HistogramVec
	fallbacks       *prometheus.CounterVec
	imageTasks      *prometheus.CounterVec
	imageLatency    prometheus.Histogram
	requests        *prometheus.HistogramVec
	promptTokens    prometheus.Histogram
	lineageCache    *prometheus.CounterVec
}

func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		providerResults: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_results_total",
			Help:      "Text provider calls, partitioned by provider and outcome.",
		}, []string{"provider", "outcome"}),
		providerLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "provider_duration_seconds",
			Help:      "Text provider call latency.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 40, 60},
		}, []string{"provider"}),
		fallbacks: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fallbacks_total",
			Help:      "Canned content served in place of model output, partitioned by stage.",
		}, []string{"stage"}),
		imageTasks: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "image_tasks_total",
			Help:      "Background image tasks, partitioned by outcome.",
		}, []string{"outcome"}),
		imageLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "image_task_duration_seconds",
			Help:      "Time from task start to the segment image being written.",
			Buckets:   []float64{1, 5, 10, 20, 30, 60, 120, 180},
		}),
		requests: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency, partitioned by route and status code.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "code"}),
		promptTokens: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "prompt_tokens",
			Help:      "Estimated tokens in the assembled story prompt.",
			Buckets:   prometheus.ExponentialBuckets(64, 2, 8),
		}),
		lineageCache: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lineage_cache_total",
			Help:      "Lineage cache lookups and the store loads behind them.",
		}, []string{"event"}),
	}
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ProviderResult matches inference.ResultHook.
func (m *Metrics) ProviderResult(provider, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.providerResults.WithLabelValues(provider, outcome).Inc()
	m.providerLatency.WithLabelValues(provider).Observe(elapsed.Seconds())
}

func (m *Metrics) Fallback(stage string) {
	if m == nil {
		return
	}
	m.fallbacks.WithLabelValues(stage).Inc()
}

// ImageTask matches the queue observer.
func (m *Metrics) ImageTask(outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.imageTasks.WithLabelValues(outcome).Inc()
	m.imageLatency.Observe(elapsed.Seconds())
}

func (m *Metrics) Request(route string, code int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(route, strconv.Itoa(code)).Observe(elapsed.Seconds())
}

func (m *Metrics) PromptTokens(n int) {
	if m == nil {
		return
	}
	m.promptTokens.Observe(float64(n))
}

// LineageLookup counts a request for history. LineageLoad counts the
// subset that reached the store.
func (m *Metrics) LineageLookup() {
	if m == nil {
		return
	}
	m.lineageCache.WithLabelValues("lookup").Inc()
}

func (m *Metrics) LineageLoad() {
	if m == nil {
		return
	}
	m.lineageCache.WithLabelValues("load").Inc()
}
