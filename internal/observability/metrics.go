package observability

import "github.com/prometheus/client_golang/prometheus"

var (
	APIRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "campaigns_api_requests_total", Help: "API requests"},
		[]string{"endpoint", "status"},
	)
	Enqueues = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "campaigns_dispatch_enqueue_total", Help: "SQS dispatch enqueue results"},
		[]string{"result"},
	)
	GatewaySend = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "gateway_send_total", Help: "Gateway send attempt outcomes"},
		[]string{"result", "http_status"},
	)
	GatewayLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{Name: "gateway_send_latency_seconds", Help: "Gateway send latency"},
	)
	RecipientOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "campaigns_recipient_outcomes_total", Help: "Final per-recipient delivery status"},
		[]string{"status"},
	)
	AuditWriteFailures = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "campaigns_audit_write_failures_total", Help: "Document store writes that failed"},
	)
	DispatchRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "campaigns_dispatch_runs_total", Help: "Dispatch runs"},
		[]string{"result"},
	)
	DispatchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "campaigns_dispatch_duration_seconds",
			Help:    "Dispatch run duration",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
		},
	)
	WebhookEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "twilio_webhook_events_total", Help: "Webhook events"},
		[]string{"status"},
	)
)

func Register(reg prometheus.Registerer) {
	reg.MustRegister(APIRequests, Enqueues, GatewaySend, GatewayLatency, RecipientOutcomes,
		AuditWriteFailures, DispatchRuns, DispatchDuration, WebhookEvents)
}
