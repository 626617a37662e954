package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "edu_auth"

// Outcome labels.
const (
	OutcomeOK       = "ok"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"
)

// Recorder owns the service collectors. A nil *Recorder records nothing.
type Recorder struct {
	registry     *prometheus.Registry
	otpIssued    *prometheus.CounterVec
	otpFailures  *prometheus.CounterVec
	operations   *prometheus.CounterVec
	tokensIssued *prometheus.CounterVec
	rateLimited  prometheus.Counter
}

// New registers the service collectors on a private registry together with
// the Go runtime and process collectors.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	r := &Recorder{
		registry: reg,
		otpIssued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "otp_issued_total",
			Help:      "OTP codes delivered, by flow.",
		}, []string{"flow"}),
		otpFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "otp_delivery_failures_total",
			Help:      "OTP deliveries rejected by the transport, by flow.",
		}, []string{"flow"}),
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "registration_operations_total",
			Help:      "Registration operations, by operation and outcome.",
		}, []string{"operation", "outcome"}),
		tokensIssued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tokens_issued_total",
			Help:      "Token pairs signed, by reason.",
		}, []string{"reason"}),
		rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "otp_rate_limited_total",
			Help:      "OTP requests refused by the per-phone rate limit.",
		}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.otpIssued,
		r.otpFailures,
		r.operations,
		r.tokensIssued,
		r.rateLimited,
	)
	return r
}

// OTPIssued counts a delivered code.
func (r *Recorder) OTPIssued(flow string) {
	if r == nil {
		return
	}
	r.otpIssued.WithLabelValues(flow).Inc()
}

// OTPDeliveryFailed counts a code the transport refused.
func (r *Recorder) OTPDeliveryFailed(flow string) {
	if r == nil {
		return
	}
	r.otpFailures.WithLabelValues(flow).Inc()
}

// Operation counts one registration operation with its outcome.
func (r *Recorder) Operation(name, outcome string) {
	if r == nil {
		return
	}
	r.operations.WithLabelValues(name, outcome).Inc()
}

// TokensIssued counts a signed pair.
func (r *Recorder) TokensIssued(reason string) {
	if r == nil {
		return
	}
	r.tokensIssued.WithLabelValues(reason).Inc()
}

// RateLimited counts a refused OTP request.
func (r *Recorder) RateLimited() {
	if r == nil {
		return
	}
	r.rateLimited.Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}
