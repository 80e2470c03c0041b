package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	registry *prometheus.Registry

	// Conversation metrics
	ConversationsTotal   *prometheus.CounterVec
	ConversationDuration prometheus.Histogram
	ConversationRounds   prometheus.Histogram
	ModelCallsTotal      *prometheus.CounterVec
	ModelTokensTotal     *prometheus.CounterVec

	// Tool metrics
	ToolExecutionsTotal   *prometheus.CounterVec
	ToolExecutionDuration *prometheus.HistogramVec

	// Session metrics
	SessionsActive prometheus.Gauge
	SessionsEnded  prometheus.Counter
	SessionsPurged prometheus.Counter

	// Webhook metrics
	WebhookRequestsTotal  *prometheus.CounterVec
	MessagesReceivedTotal prometheus.Counter
	MessagesSentTotal     prometheus.Counter
	DuplicateDeliveries   prometheus.Counter
}

// NewMetrics creates and registers all metrics.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,

		// Conversation metrics
		ConversationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "conversations_total",
				Help: "Total number of handled inbound messages",
			},
			[]string{"outcome"},
		),
		ConversationDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "conversation_duration_seconds",
				Help:    "End-to-end duration of handling one inbound message",
				Buckets: prometheus.DefBuckets,
			},
		),
		ConversationRounds: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "conversation_rounds",
				Help:    "Model rounds used per inbound message",
				Buckets: []float64{1, 2, 3, 4, 5},
			},
		),
		ModelCallsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "model_calls_total",
				Help: "Total number of model completion calls",
			},
			[]string{"provider", "status"},
		),
		ModelTokensTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "model_tokens_total",
				Help: "Total tokens consumed by model calls",
			},
			[]string{"provider", "direction"},
		),

		// Tool metrics
		ToolExecutionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tool_executions_total",
				Help: "Total number of tool executions",
			},
			[]string{"tool_name", "status"},
		),
		ToolExecutionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tool_execution_duration_seconds",
				Help:    "Duration of tool executions in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"tool_name"},
		),

		// Session metrics
		SessionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "sessions_active",
				Help: "Number of currently active sessions",
			},
		),
		SessionsEnded: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "sessions_ended_total",
				Help: "Total number of sessions ended by the user",
			},
		),
		SessionsPurged: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "sessions_purged_total",
				Help: "Total number of sessions removed by TTL expiry",
			},
		),

		// Webhook metrics
		WebhookRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "webhook_requests_total",
				Help: "Total number of webhook requests",
			},
			[]string{"status"},
		),
		MessagesReceivedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "messages_received_total",
				Help: "Total number of inbound WhatsApp messages",
			},
		),
		MessagesSentTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "messages_sent_total",
				Help: "Total number of outbound WhatsApp messages",
			},
		),
		DuplicateDeliveries: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "duplicate_deliveries_total",
				Help: "Total number of duplicate webhook deliveries short-circuited",
			},
		),
	}

	m.registerMetrics()

	return m
}

// registerMetrics registers all metrics with the registry.
func (m *Metrics) registerMetrics() {
	// Conversation metrics
	m.registry.MustRegister(m.ConversationsTotal)
	m.registry.MustRegister(m.ConversationDuration)
	m.registry.MustRegister(m.ConversationRounds)
	m.registry.MustRegister(m.ModelCallsTotal)
	m.registry.MustRegister(m.ModelTokensTotal)

	// Tool metrics
	m.registry.MustRegister(m.ToolExecutionsTotal)
	m.registry.MustRegister(m.ToolExecutionDuration)

	// Session metrics
	m.registry.MustRegister(m.SessionsActive)
	m.registry.MustRegister(m.SessionsEnded)
	m.registry.MustRegister(m.SessionsPurged)

	// Webhook metrics
	m.registry.MustRegister(m.WebhookRequestsTotal)
	m.registry.MustRegister(m.MessagesReceivedTotal)
	m.registry.MustRegister(m.MessagesSentTotal)
	m.registry.MustRegister(m.DuplicateDeliveries)
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Registry returns the Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
