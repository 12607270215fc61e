// Package metrics records classifier verdicts and tool calls for Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder receives the events the server reports.
type Recorder interface {
	// Verdict counts one classifier outcome. kind is "allowed" or a denial kind.
	Verdict(kind string)
	// ToolCall records one MCP tool invocation.
	ToolCall(tool string, ok bool, elapsed time.Duration)
}

// NoOp discards everything.
type NoOp struct{}

func (NoOp) Verdict(string) {}

func (NoOp) ToolCall(string, bool, time.Duration) {}

// Prometheus is a Recorder backed by its own registry.
type Prometheus struct {
	registry *prometheus.Registry
	verdicts *prometheus.CounterVec
	queries  *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewPrometheus creates a recorder with the gomysqlmcp_* metrics and the Go
// runtime and process collectors registered.
func NewPrometheus() *Prometheus {
	p := &Prometheus{
		registry: prometheus.NewRegistry(),
		verdicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gomysqlmcp_verdicts_total",
			Help: "Query classifier verdicts by outcome kind.",
		}, []string{"kind"}),
		queries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gomysqlmcp_queries_total",
			Help: "MCP tool calls by tool and status.",
		}, []string{"tool", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gomysqlmcp_query_duration_seconds",
			Help:    "MCP tool call duration.",
			Buckets: prometheus.DefBuckets,
		}, []string{"tool"}),
	}
	p.registry.MustRegister(
		p.verdicts,
		p.queries,
		p.duration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return p
}

func (p *Prometheus) Verdict(kind string) {
	p.verdicts.WithLabelValues(kind).Inc()
}

func (p *Prometheus) ToolCall(tool string, ok bool, elapsed time.Duration) {
	status := "ok"
	if !ok {
		status = "error"
	}
	p.queries.WithLabelValues(tool, status).Inc()
	p.duration.WithLabelValues(tool).Observe(elapsed.Seconds())
}

// Registry exposes the underlying registry.
func (p *Prometheus) Registry() *prometheus.Registry {
	return p.registry
}

// Handler serves the registry in the Prometheus text format.
func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}
