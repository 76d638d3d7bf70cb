// Package metrics exposes workflow counters and HTTP latency to Prometheus.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder implements workflow.Observer on its own registry.
type Recorder struct {
	reg *prometheus.Registry

	transitions *prometheus.CounterVec
	conflicts   *prometheus.CounterVec
	requests    *prometheus.HistogramVec
}

func NewRecorder() *Recorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)
	return &Recorder{
		reg: reg,
		transitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "hr_workflow_transitions_total",
			Help: "Committed workflow mutations by entity and action.",
		}, []string{"entity", "action"}),
		conflicts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "hr_workflow_version_conflicts_total",
			Help: "Optimistic-lock conflicts that triggered a retry.",
		}, []string{"operation"}),
		requests: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "hr_http_request_duration_seconds",
			Help:    "HTTP request latency by route and status.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
}

func (r *Recorder) Transition(entity, action string) {
	r.transitions.WithLabelValues(entity, action).Inc()
}

func (r *Recorder) Conflict(operation string) {
	r.conflicts.WithLabelValues(operation).Inc()
}

func (r *Recorder) Registry() *prometheus.Registry { return r.reg }

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// GinMiddleware observes latency labelled by the matched route template.
func (r *Recorder) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		r.requests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).
			Observe(time.Since(start).Seconds())
	}
}
