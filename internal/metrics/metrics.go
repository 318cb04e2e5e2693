package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds every Veritas collector. It is separate from the default
// registry so tests can scrape it without global side effects.
var Registry = prometheus.NewRegistry()

var factory = promauto.With(Registry)

var (
	HTTPRequests = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "veritas_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})
	HTTPDuration = factory.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "veritas_http_request_seconds",
		Help:    "HTTP request duration seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	// result=sent|dropped
	BusMessages = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "veritas_bus_messages_total",
		Help: "Bus messages by target and result",
	}, []string{"target", "result"})

	// outcome=ok|error
	LLMPings = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "veritas_llm_pings_total",
		Help: "LLM Ping calls",
	}, []string{"provider", "outcome"})
	LLMChats = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "veritas_llm_chats_total",
		Help: "LLM Chat calls",
	}, []string{"provider", "model", "outcome"})
	LLMChatDur = factory.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "veritas_llm_chat_seconds",
		Help:    "LLM Chat duration seconds",
		Buckets: []float64{.25, .5, 1, 2, 5, 10, 20, 40, 80},
	}, []string{"provider", "outcome"})

	// outcome=ok|error|skipped
	GruntSearches = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "veritas_grunt_searches_total",
		Help: "Grunt research attempts by researcher and outcome",
	}, []string{"researcher", "outcome"})

	Jobs = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "veritas_jobs_total",
		Help: "Jobs that reached a terminal status",
	}, []string{"status"})
	ActiveJobs = factory.NewGauge(prometheus.GaugeOpts{
		Name: "veritas_jobs_active",
		Help: "Jobs currently running through the pipeline",
	})
	Findings = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "veritas_findings_total",
		Help: "Verified claims by risk level",
	}, []string{"risk"})
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

var handler = promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})

// ServeHTTP exposes all metrics in Prometheus text format.
func ServeHTTP(w http.ResponseWriter, r *http.Request) {
	handler.ServeHTTP(w, r)
}
