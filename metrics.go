package auth

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome label values.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeError   = "error"
)

// Metrics holds the Prometheus collectors of the auth core. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	LoginsTotal                *prometheus.CounterVec
	LoginDurationSeconds       prometheus.Histogram
	RefreshesTotal             *prometheus.CounterVec
	RoleSwitchesTotal          *prometheus.CounterVec
	VerificationsTotal         *prometheus.CounterVec
	FingerprintMismatchesTotal *prometheus.CounterVec
	EffectFailuresTotal        *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg when it is
// not nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		LoginsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tenant_auth_logins_total",
				Help: "Total login attempts by outcome and reason.",
			},
			[]string{"outcome", "reason"},
		),
		LoginDurationSeconds: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "tenant_auth_login_duration_seconds",
				Help:    "Duration of login attempts in seconds, password hashing included.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
		),
		RefreshesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tenant_auth_refreshes_total",
				Help: "Total refresh token exchanges by outcome.",
			},
			[]string{"outcome"},
		),
		RoleSwitchesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tenant_auth_role_switches_total",
				Help: "Total role switch requests by target role and outcome.",
			},
			[]string{"target", "outcome"},
		),
		VerificationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tenant_auth_verifications_total",
				Help: "Total request verifications by outcome code.",
			},
			[]string{"code"},
		),
		FingerprintMismatchesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tenant_auth_fingerprint_mismatches_total",
				Help: "Total session fingerprint mismatches by policy.",
			},
			[]string{"policy"},
		),
		EffectFailuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tenant_auth_effect_failures_total",
				Help: "Total failed best-effort side effects by effect name.",
			},
			[]string{"effect"},
		),
	}

	if reg != nil {
		reg.MustRegister(
			m.LoginsTotal,
			m.LoginDurationSeconds,
			m.RefreshesTotal,
			m.RoleSwitchesTotal,
			m.VerificationsTotal,
			m.FingerprintMismatchesTotal,
			m.EffectFailuresTotal,
		)
	}

	return m
}

func (m *Metrics) observeLogin(outcome, reason string, started time.Time) {
	if m == nil {
		return
	}
	m.LoginsTotal.WithLabelValues(outcome, reason).Inc()
	m.LoginDurationSeconds.Observe(time.Since(started).Seconds())
}

func (m *Metrics) observeRefresh(outcome string) {
	if m == nil {
		return
	}
	m.RefreshesTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) observeSwitch(target Role, outcome string) {
	if m == nil {
		return
	}
	m.RoleSwitchesTotal.WithLabelValues(string(target), outcome).Inc()
}

// ObserveVerification counts one request verification; code is a text code
// or "ok".
func (m *Metrics) ObserveVerification(code string) {
	if m == nil {
		return
	}
	m.VerificationsTotal.WithLabelValues(code).Inc()
}

func (m *Metrics) observeFingerprintMismatch(policy string) {
	if m == nil {
		return
	}
	m.FingerprintMismatchesTotal.WithLabelValues(policy).Inc()
}

func (m *Metrics) observeEffect(e Effect) {
	if m == nil || e.Err == nil {
		return
	}
	m.EffectFailuresTotal.WithLabelValues(e.Name).Inc()
}
