// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector aggregates the prometheus instruments for the orchestration
// core.
type Collector struct {
	pipelineEvents     *prometheus.CounterVec
	stageInvocations   *prometheus.CounterVec
	gatewayRequests    *prometheus.CounterVec
	gatewayDuration    *prometheus.HistogramVec
	fanoutSpecialists  *prometheus.CounterVec
	fanoutDuration     prometheus.Histogram
	knowledgeQueries   *prometheus.CounterVec
	knowledgeWrites    prometheus.Counter
}

// NewCollector registers the instruments on reg. Pass a fresh
// prometheus.NewRegistry() in tests to avoid duplicate registration.
func NewCollector(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		pipelineEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "campaignflow_pipeline_events_total",
			Help: "Pipeline state machine events by kind.",
		}, []string{"event"}),

		stageInvocations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "campaignflow_stage_invocations_total",
			Help: "Stage invocations by stage and source (scripted|live).",
		}, []string{"stage", "source"}),

		gatewayRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "campaignflow_gateway_requests_total",
			Help: "Gateway calls by gateway name and outcome.",
		}, []string{"gateway", "outcome"}),

		gatewayDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "campaignflow_gateway_request_duration_seconds",
			Help:    "Gateway call latency.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		}, []string{"gateway"}),

		fanoutSpecialists: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "campaignflow_fanout_specialists_total",
			Help: "Research fan-out specialist outcomes.",
		}, []string{"outcome"}),

		fanoutDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "campaignflow_fanout_duration_seconds",
			Help:    "End-to-end research fan-out latency.",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 8),
		}),

		knowledgeQueries: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "campaignflow_knowledge_queries_total",
			Help: "Knowledge bank reads by outcome.",
		}, []string{"outcome"}),

		knowledgeWrites: factory.NewCounter(prometheus.CounterOpts{
			Name: "campaignflow_knowledge_writes_total",
			Help: "Knowledge bank writes.",
		}),
	}
}

// RecordPipelineEvent counts one state machine event.
func (c *Collector) RecordPipelineEvent(event string) {
	if c == nil {
		return
	}
	c.pipelineEvents.WithLabelValues(event).Inc()
}

// RecordStageInvocation counts one stage invocation.
func (c *Collector) RecordStageInvocation(stage, source string) {
	if c == nil {
		return
	}
	c.stageInvocations.WithLabelValues(stage, source).Inc()
}

// RecordGatewayRequest counts one gateway call and its latency.
func (c *Collector) RecordGatewayRequest(gateway, outcome string, d time.Duration) {
	if c == nil {
		return
	}
	c.gatewayRequests.WithLabelValues(gateway, outcome).Inc()
	c.gatewayDuration.WithLabelValues(gateway).Observe(d.Seconds())
}

// RecordFanOut counts specialist outcomes and the fan-out latency.
func (c *Collector) RecordFanOut(succeeded, failed int, d time.Duration) {
	if c == nil {
		return
	}
	c.fanoutSpecialists.WithLabelValues("success").Add(float64(succeeded))
	c.fanoutSpecialists.WithLabelValues("failure").Add(float64(failed))
	c.fanoutDuration.Observe(d.Seconds())
}

// RecordKnowledgeQuery counts one knowledge bank read.
func (c *Collector) RecordKnowledgeQuery(outcome string) {
	if c == nil {
		return
	}
	c.knowledgeQueries.WithLabelValues(outcome).Inc()
}

// RecordKnowledgeWrite counts one knowledge bank write.
func (c *Collector) RecordKnowledgeWrite() {
	if c == nil {
		return
	}
	c.knowledgeWrites.Inc()
}
