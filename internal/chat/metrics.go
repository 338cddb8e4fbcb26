// Prometheus instrumentation for the conversation core. Label cardinality is
// bounded by the closed model catalog.
package chat

import "github.com/prometheus/client_golang/prometheus"

var (
	// exchangesTotal counts completed exchanges per model.
	exchangesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_exchanges_total",
			Help: "Total number of completed exchanges.",
		},
		[]string{"model"},
	)

	// tokensTotal counts consumed tokens per model and kind (prompt/completion).
	tokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_tokens_total",
			Help: "Total number of tokens consumed by completed exchanges.",
		},
		[]string{"model", "kind"},
	)

	// costTotal accumulates the billed cost per model, in USD.
	costTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_cost_usd_total",
			Help: "Total cost of completed exchanges in USD.",
		},
		[]string{"model"},
	)

	// completionFailures counts failed completion calls per model.
	completionFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_completion_failures_total",
			Help: "Total number of failed completion backend calls.",
		},
		[]string{"model"},
	)
)

func init() {
	prometheus.MustRegister(exchangesTotal, tokensTotal, costTotal, completionFailures)
}

// observeExchange records the metrics for one completed exchange.
func observeExchange(model string, ex Exchange) {
	exchangesTotal.WithLabelValues(model).Inc()
	tokensTotal.WithLabelValues(model, "prompt").Add(float64(ex.PromptTokens))
	tokensTotal.WithLabelValues(model, "completion").Add(float64(ex.CompletionTokens))
	costTotal.WithLabelValues(model).Add(ex.Cost)
}
