package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// AuditMetrics records the forensic pipeline's operational counters.
type AuditMetrics struct {
	runDuration     *prometheus.HistogramVec
	runSuccess      *prometheus.CounterVec
	runFailure      *prometheus.CounterVec
	findings        *prometheus.CounterVec
	appendRetries   prometheus.Counter
	outboxPublished prometheus.Counter
	outboxFailed    prometheus.Counter
}

// NewAuditMetrics registers the audit metrics on the provided registerer.
func NewAuditMetrics(reg prometheus.Registerer) *AuditMetrics {
	if reg == nil {
		return &AuditMetrics{}
	}
	runDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "audit_run_duration_seconds",
		Help:    "Duration of audit runs in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"run_type"})
	runSuccess := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "audit_run_success",
		Help: "Completed audit runs.",
	}, []string{"run_type"})
	runFailure := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "audit_run_failure",
		Help: "Failed audit runs.",
	}, []string{"run_type"})
	findings := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "audit_findings_total",
		Help: "Findings produced, labeled by risk level.",
	}, []string{"risk_level"})
	appendRetries := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ledger_append_conflict_retries_total",
		Help: "Ledger append attempts retried after a sequence conflict.",
	})
	outboxPublished := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "outbox_events_published_total",
		Help: "Outbox events relayed to Pub/Sub.",
	})
	outboxFailed := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "outbox_events_failed_total",
		Help: "Outbox relay attempts that failed.",
	})
	reg.MustRegister(runDuration, runSuccess, runFailure, findings, appendRetries, outboxPublished, outboxFailed)
	return &AuditMetrics{
		runDuration:     runDuration,
		runSuccess:      runSuccess,
		runFailure:      runFailure,
		findings:        findings,
		appendRetries:   appendRetries,
		outboxPublished: outboxPublished,
		outboxFailed:    outboxFailed,
	}
}

// ObserveRunDuration records how long the run took.
func (m *AuditMetrics) ObserveRunDuration(runType string, duration time.Duration) {
	if m == nil || m.runDuration == nil {
		return
	}
	m.runDuration.WithLabelValues(normalizeLabel(runType)).Observe(duration.Seconds())
}

// IncRunSuccess increments the completed-run counter.
func (m *AuditMetrics) IncRunSuccess(runType string) {
	if m == nil || m.runSuccess == nil {
		return
	}
	m.runSuccess.WithLabelValues(normalizeLabel(runType)).Inc()
}

// IncRunFailure increments the failed-run counter.
func (m *AuditMetrics) IncRunFailure(runType string) {
	if m == nil || m.runFailure == nil {
		return
	}
	m.runFailure.WithLabelValues(normalizeLabel(runType)).Inc()
}

// AddFindings counts findings at the given risk level.
func (m *AuditMetrics) AddFindings(riskLevel string, count int) {
	if m == nil || m.findings == nil || count <= 0 {
		return
	}
	m.findings.WithLabelValues(normalizeLabel(riskLevel)).Add(float64(count))
}

// IncAppendRetry counts one retried ledger append.
func (m *AuditMetrics) IncAppendRetry() {
	if m == nil || m.appendRetries == nil {
		return
	}
	m.appendRetries.Inc()
}

// IncOutboxPublished counts one relayed outbox event.
func (m *AuditMetrics) IncOutboxPublished() {
	if m == nil || m.outboxPublished == nil {
		return
	}
	m.outboxPublished.Inc()
}

// IncOutboxFailed counts one failed relay attempt.
func (m *AuditMetrics) IncOutboxFailed() {
	if m == nil || m.outboxFailed == nil {
		return
	}
	m.outboxFailed.Inc()
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
