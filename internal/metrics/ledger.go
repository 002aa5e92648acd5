package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "ledger"

// LedgerMetrics counts reconciliation outcomes per callback source.
type LedgerMetrics struct {
	webhooks         *prometheus.CounterVec
	providerCommands *prometheus.CounterVec
	providerLatency  *prometheus.HistogramVec
	riskFlags        *prometheus.CounterVec
}

func NewLedgerMetrics(reg prometheus.Registerer) *LedgerMetrics {
	if reg == nil {
		return &LedgerMetrics{}
	}

	webhooks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "gateway_webhooks_total",
		Help:      "Gateway notifications by transaction kind and outcome.",
	}, []string{"kind", "outcome"})
	commands := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "provider_commands_total",
		Help:      "Game provider commands by cmd and result code.",
	}, []string{"cmd", "code"})
	latency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "provider_command_duration_seconds",
		Help:      "Time spent answering game provider commands.",
		Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
	}, []string{"cmd"})
	flags := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "risk_flags_opened_total",
		Help:      "Risk flags opened per rule.",
	}, []string{"rule"})

	reg.MustRegister(webhooks, commands, latency, flags)

	return &LedgerMetrics{
		webhooks:         webhooks,
		providerCommands: commands,
		providerLatency:  latency,
		riskFlags:        flags,
	}
}

func (m *LedgerMetrics) Webhook(kind, outcome string) {
	if m == nil || m.webhooks == nil {
		return
	}

	m.webhooks.WithLabelValues(normalizeLabel(kind), normalizeLabel(outcome)).Inc()
}

func (m *LedgerMetrics) ProviderCommand(cmd string, code int, d time.Duration) {
	if m == nil || m.providerCommands == nil {
		return
	}

	cmd = normalizeLabel(cmd)
	m.providerCommands.WithLabelValues(cmd, codeLabel(code)).Inc()
	m.providerLatency.WithLabelValues(cmd).Observe(d.Seconds())
}

func (m *LedgerMetrics) RiskFlag(rule string) {
	if m == nil || m.riskFlags == nil {
		return
	}

	m.riskFlags.WithLabelValues(normalizeLabel(rule)).Inc()
}

func codeLabel(code int) string {
	if code < 0 || code > 5 {
		return "other"
	}

	return strconv.Itoa(code)
}
