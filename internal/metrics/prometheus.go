package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Prometheus implements Recorder backed by Prometheus collectors.
type Prometheus struct {
	reconciles       *prometheus.CounterVec
	reconcileLatency prometheus.Histogram
	assignments      *prometheus.CounterVec
	conversations    *prometheus.CounterVec
	messages         *prometheus.CounterVec
}

var _ Recorder = (*Prometheus)(nil)

// NewPrometheus registers the engine collectors on reg.
//
// Parameters:
//   - reg: Prometheus registerer (uses prometheus.DefaultRegisterer if nil)
//   - namespace: metrics namespace (defaults to "clientdesk" if empty)
func NewPrometheus(reg prometheus.Registerer, namespace string) *Prometheus {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if namespace == "" {
		namespace = "clientdesk"
	}

	p := &Prometheus{
		reconciles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "payments",
			Name:      "reconcile_total",
			Help:      "Payment confirmation events processed, by outcome.",
		}, []string{"outcome"}),
		reconcileLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "payments",
			Name:      "reconcile_duration_seconds",
			Help:      "Time spent reconciling one payment confirmation event.",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}),
		assignments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "assignments",
			Name:      "total",
			Help:      "Client to assistant assignment attempts, by policy and result.",
		}, []string{"policy", "result"}),
		conversations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "conversations",
			Name:      "opened_total",
			Help:      "Get-or-create conversation calls, by whether a record was created.",
		}, []string{"created"}),
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "conversations",
			Name:      "messages_total",
			Help:      "Messages appended to conversations, by role.",
		}, []string{"role"}),
	}

	reg.MustRegister(p.reconciles, p.reconcileLatency, p.assignments, p.conversations, p.messages)
	return p
}

func (p *Prometheus) RecordReconcile(outcome string, duration time.Duration) {
	p.reconciles.WithLabelValues(outcome).Inc()
	p.reconcileLatency.Observe(duration.Seconds())
}

func (p *Prometheus) RecordAssignment(policy string, result string) {
	p.assignments.WithLabelValues(policy, result).Inc()
}

func (p *Prometheus) RecordConversation(created bool) {
	p.conversations.WithLabelValues(strconv.FormatBool(created)).Inc()
}

func (p *Prometheus) RecordMessage(role string) {
	p.messages.WithLabelValues(role).Inc()
}
