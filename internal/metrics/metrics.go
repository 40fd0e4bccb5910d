// Package metrics exposes Prometheus metrics for the outreach service
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	globalMetrics *Metrics
	globalMu      sync.RWMutex
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// Campaign
	SubmissionsTotal      *prometheus.CounterVec
	ValidationsTotal      *prometheus.CounterVec
	ValidationErrorsTotal *prometheus.CounterVec

	// Test emails
	TestEmailsTotal        *prometheus.CounterVec
	RateLimitExceededTotal *prometheus.CounterVec

	// Verification
	VerificationsTotal     *prometheus.CounterVec
	VerificationStepsTotal *prometheus.CounterVec
	VerificationsActive    prometheus.Gauge

	// API metrics
	APIRequestsTotal          *prometheus.CounterVec
	APIRequestDurationSeconds *prometheus.HistogramVec
	APIErrorsTotal            *prometheus.CounterVec

	// System metrics
	UptimeSeconds    prometheus.Gauge
	Goroutines       prometheus.Gauge
	StorageUsedBytes prometheus.Gauge

	registry *prometheus.Registry

	// counters restored from and flushed to storage by the Collector
	persistent map[string]*prometheus.CounterVec
}

func newCounterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(prometheus.CounterOpts{Name: name, Help: help}, labels)
}

// New creates a new Metrics instance with all metrics registered
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		SubmissionsTotal: newCounterVec("outreach_campaign_submissions_total",
			"Campaign submissions by result", "result"),
		ValidationsTotal: newCounterVec("outreach_campaign_validations_total",
			"Campaign validations by outcome", "result"),
		ValidationErrorsTotal: newCounterVec("outreach_campaign_validation_errors_total",
			"Validation rule violations", "rule"),

		TestEmailsTotal: newCounterVec("outreach_test_emails_total",
			"Test emails by delivery mode and status", "mode", "status"),
		RateLimitExceededTotal: newCounterVec("outreach_ratelimit_exceeded_total",
			"Test emails denied by the rate limiter", "level"),

		VerificationsTotal: newCounterVec("outreach_verifications_total",
			"Verification runs by result", "result"),
		VerificationStepsTotal: newCounterVec("outreach_verification_steps_total",
			"Verification steps by check and status", "check", "status"),
		VerificationsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "outreach_verifications_active",
			Help: "Verification runs in progress",
		}),

		APIRequestsTotal: newCounterVec("outreach_api_requests_total",
			"Total number of API requests", "method", "path", "status"),
		APIRequestDurationSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "outreach_api_request_duration_seconds",
				Help:    "API request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		APIErrorsTotal: newCounterVec("outreach_api_errors_total",
			"Total number of API errors", "error_type"),

		UptimeSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "outreach_uptime_seconds",
			Help: "Server uptime in seconds",
		}),
		Goroutines: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "outreach_goroutines",
			Help: "Number of active goroutines",
		}),
		StorageUsedBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "outreach_storage_used_bytes",
			Help: "BoltDB file size in bytes",
		}),

		registry: reg,
	}

	m.persistent = map[string]*prometheus.CounterVec{
		"outreach_campaign_submissions_total":       m.SubmissionsTotal,
		"outreach_campaign_validations_total":       m.ValidationsTotal,
		"outreach_campaign_validation_errors_total": m.ValidationErrorsTotal,
		"outreach_test_emails_total":                m.TestEmailsTotal,
		"outreach_ratelimit_exceeded_total":         m.RateLimitExceededTotal,
		"outreach_verifications_total":              m.VerificationsTotal,
		"outreach_verification_steps_total":         m.VerificationStepsTotal,
	}

	reg.MustRegister(
		m.SubmissionsTotal,
		m.ValidationsTotal,
		m.ValidationErrorsTotal,
		m.TestEmailsTotal,
		m.RateLimitExceededTotal,
		m.VerificationsTotal,
		m.VerificationStepsTotal,
		m.VerificationsActive,
		m.APIRequestsTotal,
		m.APIRequestDurationSeconds,
		m.APIErrorsTotal,
		m.UptimeSeconds,
		m.Goroutines,
		m.StorageUsedBytes,
	)

	return m
}

// Registry returns the Prometheus registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// SetGlobal sets the global metrics instance
func SetGlobal(m *Metrics) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalMetrics = m
}

// Global returns the global metrics instance
func Global() *Metrics {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalMetrics
}

// IncSubmissions counts a campaign submission ("accepted", "invalid" or
// "error")
func IncSubmissions(result string) {
	if m := Global(); m != nil {
		m.SubmissionsTotal.WithLabelValues(result).Inc()
	}
}

// ObserveValidation counts one validation and each violated rule
func ObserveValidation(valid bool, rules []string) {
	m := Global()
	if m == nil {
		return
	}
	result := "valid"
	if !valid {
		result = "invalid"
	}
	m.ValidationsTotal.WithLabelValues(result).Inc()
	for _, rule := range rules {
		m.ValidationErrorsTotal.WithLabelValues(rule).Inc()
	}
}

// IncTestEmails counts a test email attempt
func IncTestEmails(mode, status string) {
	if m := Global(); m != nil {
		m.TestEmailsTotal.WithLabelValues(mode, status).Inc()
	}
}

// IncRateLimitExceeded increments rate limit exceeded counter
func IncRateLimitExceeded(level string) {
	if m := Global(); m != nil {
		m.RateLimitExceededTotal.WithLabelValues(level).Inc()
	}
}

// IncVerificationStep counts a finished verification step
func IncVerificationStep(check, status string) {
	if m := Global(); m != nil {
		m.VerificationStepsTotal.WithLabelValues(check, status).Inc()
	}
}

// VerificationStarted marks a verification run as active
func VerificationStarted() {
	if m := Global(); m != nil {
		m.VerificationsActive.Inc()
	}
}

// VerificationFinished records the outcome of a run
func VerificationFinished(result string) {
	if m := Global(); m != nil {
		m.VerificationsActive.Dec()
		m.VerificationsTotal.WithLabelValues(result).Inc()
	}
}

// IncAPIErrors increments API error counter
func IncAPIErrors(errorType string) {
	if m := Global(); m != nil {
		m.APIErrorsTotal.WithLabelValues(errorType).Inc()
	}
}
