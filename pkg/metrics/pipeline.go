package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PipelineMetrics records payment webhook traffic and order materialization.
type PipelineMetrics struct {
	webhookReceived  *prometheus.CounterVec
	webhookDuplicate *prometheus.CounterVec
	webhookFailed    *prometheus.CounterVec
	handlerDuration  *prometheus.HistogramVec
	ordersCreated    prometheus.Counter
	ordersCancelled  prometheus.Counter
	ordersDeduped    prometheus.Counter
}

// NewPipelineMetrics registers the pipeline metrics on the provided registerer.
func NewPipelineMetrics(reg prometheus.Registerer) *PipelineMetrics {
	if reg == nil {
		return &PipelineMetrics{}
	}
	received := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_events_received",
		Help: "Webhook events admitted for processing.",
	}, []string{"type"})
	duplicate := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_events_duplicate",
		Help: "Webhook deliveries rejected as already seen.",
	}, []string{"type"})
	failed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_events_failed",
		Help: "Webhook events whose handler returned an error.",
	}, []string{"type"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "webhook_handler_duration_seconds",
		Help:    "Duration of webhook event handlers in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"type"})
	created := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "orders_materialized",
		Help: "Orders created from completed checkouts.",
	})
	cancelled := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "orders_cancelled",
		Help: "Orders cancelled after failed payments.",
	})
	deduped := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "orders_deduplicated",
		Help: "Materialization no-ops for payment intents already recorded.",
	})
	reg.MustRegister(received, duplicate, failed, duration, created, cancelled, deduped)
	return &PipelineMetrics{
		webhookReceived:  received,
		webhookDuplicate: duplicate,
		webhookFailed:    failed,
		handlerDuration:  duration,
		ordersCreated:    created,
		ordersCancelled:  cancelled,
		ordersDeduped:    deduped,
	}
}

// IncWebhookReceived increments the admitted counter for the event type.
func (p *PipelineMetrics) IncWebhookReceived(eventType string) {
	if p == nil || p.webhookReceived == nil {
		return
	}
	p.webhookReceived.WithLabelValues(normalizeLabel(eventType)).Inc()
}

// IncWebhookDuplicate increments the duplicate counter for the event type.
func (p *PipelineMetrics) IncWebhookDuplicate(eventType string) {
	if p == nil || p.webhookDuplicate == nil {
		return
	}
	p.webhookDuplicate.WithLabelValues(normalizeLabel(eventType)).Inc()
}

// IncWebhookFailed increments the failure counter for the event type.
func (p *PipelineMetrics) IncWebhookFailed(eventType string) {
	if p == nil || p.webhookFailed == nil {
		return
	}
	p.webhookFailed.WithLabelValues(normalizeLabel(eventType)).Inc()
}

// ObserveHandlerDuration records handler latency for the event type.
func (p *PipelineMetrics) ObserveHandlerDuration(eventType string, duration time.Duration) {
	if p == nil || p.handlerDuration == nil {
		return
	}
	p.handlerDuration.WithLabelValues(normalizeLabel(eventType)).Observe(duration.Seconds())
}

// IncOrdersCreated increments the materialized order counter.
func (p *PipelineMetrics) IncOrdersCreated() {
	if p == nil || p.ordersCreated == nil {
		return
	}
	p.ordersCreated.Inc()
}

// IncOrdersCancelled increments the cancelled order counter.
func (p *PipelineMetrics) IncOrdersCancelled() {
	if p == nil || p.ordersCancelled == nil {
		return
	}
	p.ordersCancelled.Inc()
}

// IncOrdersDeduplicated counts materializations skipped because the payment
// intent already produced an order.
func (p *PipelineMetrics) IncOrdersDeduplicated() {
	if p == nil || p.ordersDeduped == nil {
		return
	}
	p.ordersDeduped.Inc()
}

// normalizeLabel keeps label cardinality bounded when a caller passes an
// empty identifier.
func normalizeLabel(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
