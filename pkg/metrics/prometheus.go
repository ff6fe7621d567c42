package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	workItemsTotal     *prometheus.CounterVec
	workItemDuration   *prometheus.HistogramVec
	queueDepth         prometheus.Gauge
	reviewsTotal       *prometheus.CounterVec
	mergesTotal        *prometheus.CounterVec
	generationsTotal   *prometheus.CounterVec
	generationDuration *prometheus.HistogramVec
	generationTokens   *prometheus.CounterVec
	chatCommandsTotal  *prometheus.CounterVec
}

// NewPrometheusRecorder registers the team metrics on reg under namespace.
func NewPrometheusRecorder(reg prometheus.Registerer, namespace string) *PrometheusRecorder {
	factory := promauto.With(reg)
	return &PrometheusRecorder{
		workItemsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "work_items_total",
				Help:      "Total number of executed work items by agent and outcome",
			},
			[]string{"agent_id", "outcome"},
		),
		workItemDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "work_item_duration_seconds",
				Help:      "Duration of work item execution in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"agent_id"},
		),
		queueDepth: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "work_queue_depth",
				Help:      "Number of work items waiting in the queue",
			},
		),
		reviewsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reviews_total",
				Help:      "Total number of reviewer verdicts",
			},
			[]string{"reviewer", "verdict", "fallback"},
		),
		mergesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "merges_total",
				Help:      "Total number of merge attempts by outcome",
			},
			[]string{"outcome"},
		),
		generationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "generations_total",
				Help:      "Total number of text generation calls",
			},
			[]string{"purpose", "provider", "status"},
		),
		generationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "generation_duration_seconds",
				Help:      "Duration of text generation calls in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"purpose", "provider"},
		),
		generationTokens: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "generation_tokens_total",
				Help:      "Completion tokens produced by text generation",
			},
			[]string{"purpose", "provider"},
		),
		chatCommandsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "chat_commands_total",
				Help:      "Total number of routed chat commands",
			},
			[]string{"kind"},
		),
	}
}

func (p *PrometheusRecorder) ObserveWorkItem(agentID, outcome string, duration time.Duration) {
	p.workItemsTotal.WithLabelValues(agentID, outcome).Inc()
	p.workItemDuration.WithLabelValues(agentID).Observe(duration.Seconds())
}

func (p *PrometheusRecorder) SetQueueDepth(n int) {
	p.queueDepth.Set(float64(n))
}

func (p *PrometheusRecorder) ObserveReview(reviewer, verdict string, fallback bool) {
	p.reviewsTotal.WithLabelValues(reviewer, verdict, strconv.FormatBool(fallback)).Inc()
}

func (p *PrometheusRecorder) ObserveMerge(outcome string) {
	p.mergesTotal.WithLabelValues(outcome).Inc()
}

func (p *PrometheusRecorder) ObserveGeneration(purpose, provider string, duration time.Duration, tokens int, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	p.generationsTotal.WithLabelValues(purpose, provider, status).Inc()
	p.generationDuration.WithLabelValues(purpose, provider).Observe(duration.Seconds())
	if tokens > 0 {
		p.generationTokens.WithLabelValues(purpose, provider).Add(float64(tokens))
	}
}

func (p *PrometheusRecorder) IncChatCommand(kind string) {
	p.chatCommandsTotal.WithLabelValues(kind).Inc()
}
