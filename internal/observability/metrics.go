package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce        sync.Once
	moderationRequestsTotal  *prometheus.CounterVec
	moderationLatencySeconds *prometheus.HistogramVec
	moderationErrorsTotal    *prometheus.CounterVec

	casesSubmittedTotal       *prometheus.CounterVec
	caseTransitionsTotal      *prometheus.CounterVec
	resolveConflictsTotal     *prometheus.CounterVec
	enforcementFailuresTotal  *prometheus.CounterVec
	notificationsEnqueued     *prometheus.CounterVec
	notificationPublishFailed *prometheus.CounterVec
	statsCacheLookups         *prometheus.CounterVec
)

// RegisterMetrics initialises the Prometheus collectors used by the engine.
func RegisterMetrics() {
	registerOnce.Do(func() {
		moderationRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "moderation_http_requests_total",
			Help: "Requests served by the moderation queue and submission endpoints.",
		}, []string{"surface", "method", "route", "status"})

		moderationLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "moderation_http_latency_seconds",
			Help:    "Latency distribution for moderation endpoints.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0},
		}, []string{"surface", "method", "route"})

		moderationErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "moderation_http_errors_total",
			Help: "Error responses returned by moderation endpoints.",
		}, []string{"surface", "method", "route", "status"})

		casesSubmittedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "moderation_cases_submitted_total",
			Help: "Moderation cases accepted, by kind.",
		}, []string{"kind"})

		caseTransitionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "moderation_case_transitions_total",
			Help: "Successful case transitions, by kind and resulting status.",
		}, []string{"kind", "status"})

		resolveConflictsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "moderation_resolve_conflicts_total",
			Help: "Claims and resolutions rejected because another decision won.",
		}, []string{"kind", "operation"})

		enforcementFailuresTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "moderation_enforcement_failures_total",
			Help: "Enforcement actions that aborted a resolution.",
		}, []string{"resolution"})

		notificationsEnqueued = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "moderation_notifications_enqueued_total",
			Help: "Notifications persisted for delivery, by type.",
		}, []string{"type"})

		notificationPublishFailed = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "moderation_notification_publish_failures_total",
			Help: "Notification broker publishes that failed after retries.",
		}, []string{"broker"})

		statsCacheLookups = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "moderation_stats_cache_lookups_total",
			Help: "Stats cache lookups, by result.",
		}, []string{"result"})

		prometheus.MustRegister(
			moderationRequestsTotal,
			moderationLatencySeconds,
			moderationErrorsTotal,
			casesSubmittedTotal,
			caseTransitionsTotal,
			resolveConflictsTotal,
			enforcementFailuresTotal,
			notificationsEnqueued,
			notificationPublishFailed,
			statsCacheLookups,
		)
	})
}

// ModerationRequests counts requests to moderation endpoints.
func ModerationRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return moderationRequestsTotal
}

// ModerationLatency exposes the latency histogram for moderation endpoints.
func ModerationLatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return moderationLatencySeconds
}

// ModerationErrors counts 4xx and 5xx responses from moderation endpoints.
func ModerationErrors() *prometheus.CounterVec {
	RegisterMetrics()
	return moderationErrorsTotal
}

// CasesSubmitted counts accepted submissions.
func CasesSubmitted() *prometheus.CounterVec {
	RegisterMetrics()
	return casesSubmittedTotal
}

// CaseTransitions counts claims and resolutions that committed.
func CaseTransitions() *prometheus.CounterVec {
	RegisterMetrics()
	return caseTransitionsTotal
}

// ResolveConflicts counts lost compare-and-set races and repeated decisions.
func ResolveConflicts() *prometheus.CounterVec {
	RegisterMetrics()
	return resolveConflictsTotal
}

// EnforcementFailures counts enforcement errors.
func EnforcementFailures() *prometheus.CounterVec {
	RegisterMetrics()
	return enforcementFailuresTotal
}

// NotificationsEnqueued counts persisted notifications.
func NotificationsEnqueued() *prometheus.CounterVec {
	RegisterMetrics()
	return notificationsEnqueued
}

// NotificationPublishFailures counts broker publish failures.
func NotificationPublishFailures() *prometheus.CounterVec {
	RegisterMetrics()
	return notificationPublishFailed
}

// StatsCacheLookups counts stats cache hits and misses.
func StatsCacheLookups() *prometheus.CounterVec {
	RegisterMetrics()
	return statsCacheLookups
}
