package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	// Latency: сколько времени заняло решение (политики + скоринг + аудит)
	DecisionDuration *prometheus.HistogramVec

	// Traffic: интенты по инструментам и исходам
	IntentsTotal *prometheus.CounterVec

	// Распределение итогового риска
	RiskScore prometheus.Histogram

	// Errors: классификация отказов
	ErrorTotal *prometheus.CounterVec

	// Сколько решений принято без модельного скора (деградация)
	DegradedScoring prometheus.Counter

	// Saturation: состояние Circuit Breaker диспетчера (0 - ок, 1 - выбило)
	CircuitBreakerState *prometheus.GaugeVec

	// Audit: заполненность буфера (backpressure)
	AuditBufferFill prometheus.Gauge

	// Открытые сессии интентов в полёте
	SessionsInFlight prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	// Null Object Pattern - Если рег не передан, используем локальный, который никуда не подключен
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	return &Metrics{
		DecisionDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "aeon_decision_duration_seconds",
			Help:    "Histogram of intent decision latencies.",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"tool", "verdict"}),

		IntentsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "aeon_intents_total",
			Help: "Total number of processed intents.",
		}, []string{"tool", "verdict"}),

		RiskScore: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name:    "aeon_risk_score",
			Help:    "Distribution of final hybrid risk scores.",
			Buckets: []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0},
		}),

		ErrorTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "aeon_errors_total",
			Help: "Total number of errors by type.",
		}, []string{"type"}), // типы: policy_deny, revoked, replay, audit_fail, dispatch_fail

		DegradedScoring: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "aeon_degraded_scoring_total",
			Help: "Decisions issued on heuristics alone (risk model unavailable).",
		}),

		CircuitBreakerState: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Name: "aeon_circuit_breaker_state",
			Help: "Current state of the circuit breaker (0=closed, 1=open).",
		}, []string{"target"}),

		AuditBufferFill: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "aeon_audit_buffer_utilization",
			Help: "Current number of events in audit buffer.",
		}),

		SessionsInFlight: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "aeon_sessions_in_flight",
			Help: "Open intent sessions awaiting decision or report.",
		}),
	}
}
