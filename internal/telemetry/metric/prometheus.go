package metric

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "cligate"

// Registry holds all application metrics.
type Registry struct {
	reg *prometheus.Registry

	tokensIssued    prometheus.Counter
	tokenVerifies   *prometheus.CounterVec
	tokensRevoked   *prometheus.CounterVec
	verifyCache     *prometheus.CounterVec
	sessionLogins   *prometheus.CounterVec
	trapTriggers    *prometheus.CounterVec
	accountsBlocked prometheus.Counter
	decoysServed    prometheus.Counter
	auditWrites     *prometheus.CounterVec
	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
}

// NewRegistry creates a Registry with Go runtime and process collectors.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	r := &Registry{
		reg: reg,
		tokensIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "token", Name: "issued_total",
			Help: "CLI credentials issued.",
		}),
		tokenVerifies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "token", Name: "verifications_total",
			Help: "Credential verifications by result.",
		}, []string{"result"}),
		tokensRevoked: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "token", Name: "deactivated_total",
			Help: "Credentials deactivated by reason.",
		}, []string{"reason"}),
		verifyCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "token", Name: "verify_cache_total",
			Help: "Verification cache lookups by outcome.",
		}, []string{"outcome"}),
		sessionLogins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "session", Name: "logins_total",
			Help: "Session arbitration outcomes by client type.",
		}, []string{"client_type", "outcome"}),
		trapTriggers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "honeypot", Name: "triggers_total",
			Help: "Trap credential uses by class and attribution.",
		}, []string{"class", "attributed"}),
		accountsBlocked: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "honeypot", Name: "accounts_blocked_total",
			Help: "Accounts blocked after a trap trigger.",
		}),
		decoysServed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "honeypot", Name: "decoys_served_total",
			Help: "Decoy resources served.",
		}),
		auditWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "audit", Name: "writes_total",
			Help: "Audit entries by destination (store, fallback, dropped).",
		}, []string{"destination"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "http", Name: "requests_total",
			Help: "HTTP requests by route and status.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "http", Name: "request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	reg.MustRegister(
		r.tokensIssued, r.tokenVerifies, r.tokensRevoked, r.verifyCache,
		r.sessionLogins, r.trapTriggers, r.accountsBlocked, r.decoysServed,
		r.auditWrites, r.httpRequests, r.httpDuration,
	)
	return r
}

// Prometheus returns the underlying registry for extra collectors.
func (r *Registry) Prometheus() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.reg
}

// Handler returns the /metrics HTTP handler.
func (r *Registry) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{Registry: r.reg})
}

// TokenIssued counts one issued credential.
func (r *Registry) TokenIssued() {
	if r == nil {
		return
	}
	r.tokensIssued.Inc()
}

// TokenVerified counts a verification result ("valid", "invalid").
func (r *Registry) TokenVerified(result string) {
	if r == nil {
		return
	}
	r.tokenVerifies.WithLabelValues(result).Inc()
}

// TokensDeactivated counts n credentials deactivated for reason.
func (r *Registry) TokensDeactivated(reason string, n int) {
	if r == nil || n <= 0 {
		return
	}
	r.tokensRevoked.WithLabelValues(reason).Add(float64(n))
}

// VerifyCache counts a cache lookup ("hit", "miss", "invalidated").
func (r *Registry) VerifyCache(outcome string) {
	if r == nil {
		return
	}
	r.verifyCache.WithLabelValues(outcome).Inc()
}

// SessionLogin counts an arbitration outcome ("created", "replaced", "rejected").
func (r *Registry) SessionLogin(clientType, outcome string) {
	if r == nil {
		return
	}
	r.sessionLogins.WithLabelValues(clientType, outcome).Inc()
}

// TrapTriggered counts a trap use.
func (r *Registry) TrapTriggered(class string, attributed bool) {
	if r == nil {
		return
	}
	a := "false"
	if attributed {
		a = "true"
	}
	r.trapTriggers.WithLabelValues(class, a).Inc()
}

// AccountBlocked counts a security block.
func (r *Registry) AccountBlocked() {
	if r == nil {
		return
	}
	r.accountsBlocked.Inc()
}

// DecoyServed counts a decoy response.
func (r *Registry) DecoyServed() {
	if r == nil {
		return
	}
	r.decoysServed.Inc()
}

// AuditWrite counts an audit entry by destination.
func (r *Registry) AuditWrite(destination string) {
	if r == nil {
		return
	}
	r.auditWrites.WithLabelValues(destination).Inc()
}

// ObserveHTTP records one served request.
func (r *Registry) ObserveHTTP(method, route, status string, d time.Duration) {
	if r == nil {
		return
	}
	r.httpRequests.WithLabelValues(method, route, status).Inc()
	r.httpDuration.WithLabelValues(method, route).Observe(d.Seconds())
}
