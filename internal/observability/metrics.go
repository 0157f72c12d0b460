package observability

import "github.com/prometheus/client_golang/prometheus"

var (
	chatRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_requests_total",
			Help: "Chat requests by mode (message|stream) and terminal state.",
		},
		[]string{"mode", "outcome"},
	)

	usageReservations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "usage_reservations_total",
			Help: "Usage ledger transitions by resource kind and result (reserved|rejected|committed|rolledback).",
		},
		[]string{"kind", "result"},
	)

	streamTerminations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_stream_terminations_total",
			Help: "Streamed answers by how they ended (completed|idle_timeout|max_duration|upstream_error|client_gone).",
		},
		[]string{"reason"},
	)

	providerCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llm_provider_calls_total",
			Help: "Upstream model calls by provider and result (ok|error|context_overflow|unavailable).",
		},
		[]string{"provider", "result"},
	)

	webhookDeliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "billing_webhook_deliveries_total",
			Help: "Billing webhook deliveries by provider and result (applied|duplicate|ignored|rejected|error).",
		},
		[]string{"provider", "result"},
	)
)

func init() {
	prometheus.MustRegister(chatRequests, usageReservations, streamTerminations, providerCalls, webhookDeliveries)
}

// ObserveChat counts a finished chat request.
func ObserveChat(mode, outcome string) { chatRequests.WithLabelValues(mode, outcome).Inc() }

// ObserveReservation counts a usage ledger transition.
func ObserveReservation(kind, result string) { usageReservations.WithLabelValues(kind, result).Inc() }

// ObserveStreamEnd counts a terminated stream.
func ObserveStreamEnd(reason string) { streamTerminations.WithLabelValues(reason).Inc() }

// ObserveProviderCall counts an upstream model call.
func ObserveProviderCall(provider, result string) { providerCalls.WithLabelValues(provider, result).Inc() }

// ObserveWebhook counts a billing webhook delivery.
func ObserveWebhook(provider, result string) { webhookDeliveries.WithLabelValues(provider, result).Inc() }
