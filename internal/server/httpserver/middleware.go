package httpserver

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/netip"
	"runtime/debug"
	"slices"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/bluelamp/cligate/internal/core/domain"
	"github.com/bluelamp/cligate/internal/server/httpserver/handler"
	"github.com/bluelamp/cligate/internal/telemetry/logger"
	"github.com/bluelamp/cligate/internal/telemetry/metric"
	"github.com/bluelamp/cligate/pkg/cmap"
)

// Header names.
const (
	HeaderRequestID = "X-Request-ID"
	HeaderAdminKey  = "X-Admin-Key"
)

// CodeRateLimited is returned with 429 by RateLimit.
const CodeRateLimited = domain.CodeRateLimited

const maxRequestIDLen = 128

// Middleware wraps an http.Handler with additional functionality.
type Middleware func(http.Handler) http.Handler

// Chain chains multiple middlewares together. The first middleware is
// the outermost.
func Chain(h http.Handler, middlewares ...Middleware) http.Handler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		h = middlewares[i](h)
	}
	return h
}

// RequestID assigns every request an id. A well-formed incoming
// X-Request-ID is kept.
func RequestID() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(HeaderRequestID)
			if !validRequestID(id) {
				id = "req-" + uuid.NewString()
			}
			w.Header().Set(HeaderRequestID, id)
			next.ServeHTTP(w, r.WithContext(logger.WithRequestID(r.Context(), id)))
		})
	}
}

func validRequestID(id string) bool {
	if id == "" || len(id) > maxRequestIDLen {
		return false
	}
	for _, c := range id {
		if c <= ' ' || c > '~' {
			return false
		}
	}
	return true
}

// WithLogger installs log as the request logger.
func WithLogger(log logger.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(logger.WithLogger(r.Context(), log)))
		})
	}
}

// AccessLog logs each request and observes its latency under route, the
// registered pattern.
func AccessLog(metrics *metric.Registry, route string, trustProxy bool) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			r = r.WithContext(logger.WithAttrs(r.Context(), "route", route))
			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(rw, r)

			d := time.Since(start)
			metrics.ObserveHTTP(r.Method, route, strconv.Itoa(rw.statusCode), d)

			attrs := []any{
				"method", r.Method,
				"path", r.URL.Path,
				"status", rw.statusCode,
				"bytes", rw.written,
				"duration_ms", d.Milliseconds(),
				"client_ip", handler.ClientIP(r, trustProxy),
			}
			if code := rw.Header().Get("X-Error-Code"); code != "" {
				attrs = append(attrs, "error_code", code)
			}
			log := logger.L(r.Context())
			switch {
			case rw.statusCode >= 500:
				log.Error("request completed with error", attrs...)
			case rw.statusCode >= 400:
				log.Warn("request completed with client error", attrs...)
			default:
				log.Info("request completed", attrs...)
			}
		})
	}
}

// Timeout bounds the request context to d. Zero or negative d disables it.
func Timeout(d time.Duration) Middleware {
	return func(next http.Handler) http.Handler {
		if d <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), d)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Recover recovers from panics and returns 500 error.
func Recover() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					if err == http.ErrAbortHandler {
						panic(err)
					}
					logger.L(r.Context()).Error("panic recovered",
						"error", err,
						"path", r.URL.Path,
						"stack", string(debug.Stack()))
					writeError(w, r, http.StatusInternalServerError, domain.CodeInternal, domain.ErrInternal.Message)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// AdminAuth requires X-Admin-Key whose SHA-256 matches one of hashes.
// With no hashes configured every admin request is refused.
func AdminAuth(hashes []string) Middleware {
	var digests [][]byte
	for _, h := range hashes {
		if b, err := hex.DecodeString(strings.TrimSpace(h)); err == nil && len(b) == sha256.Size {
			digests = append(digests, b)
		}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(HeaderAdminKey)
			if key == "" || !matchAdminKey(digests, key) {
				logger.L(r.Context()).Warn("admin request refused", "path", r.URL.Path, "key_present", key != "")
				writeError(w, r, http.StatusForbidden, domain.CodeForbidden, domain.ErrForbidden.Message)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func matchAdminKey(digests [][]byte, key string) bool {
	sum := sha256.Sum256([]byte(key))
	ok := 0
	for _, d := range digests {
		ok |= subtle.ConstantTimeCompare(sum[:], d)
	}
	return ok == 1
}

// HashAdminKey returns the configuration form of an admin key.
func HashAdminKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// NetworkACL admits only clients whose address is in allowList (IPs or
// CIDRs). An empty list admits everyone.
func NetworkACL(allowList []string, trustProxy bool) Middleware {
	var prefixes []netip.Prefix
	for _, entry := range allowList {
		if strings.Contains(entry, "/") {
			if p, err := netip.ParsePrefix(entry); err == nil {
				prefixes = append(prefixes, p.Masked())
			}
			continue
		}
		if a, err := netip.ParseAddr(entry); err == nil {
			prefixes = append(prefixes, netip.PrefixFrom(a, a.BitLen()))
		}
	}

	return func(next http.Handler) http.Handler {
		if len(prefixes) == 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := handler.ClientIP(r, trustProxy)
			addr, err := netip.ParseAddr(ip)
			if err == nil {
				addr = addr.Unmap()
				if slices.ContainsFunc(prefixes, func(p netip.Prefix) bool { return p.Contains(addr) }) {
					next.ServeHTTP(w, r)
					return
				}
			}
			logger.L(r.Context()).Warn("request denied by network ACL", "client_ip", ip, "path", r.URL.Path)
			writeError(w, r, http.StatusForbidden, domain.CodeForbidden, "client address not allowed")
		})
	}
}

// CORS adds Cross-Origin Resource Sharing headers for allowedOrigins.
func CORS(allowedOrigins []string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin != "" && (slices.Contains(allowedOrigins, "*") || slices.Contains(allowedOrigins, origin)) {
				h := w.Header()
				h.Set("Access-Control-Allow-Origin", origin)
				h.Add("Vary", "Origin")
				h.Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
				h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Api-Key, X-CLI-Token, X-Request-ID")
				h.Set("Access-Control-Expose-Headers", "X-Request-ID, X-Error-Code, Retry-After")
				h.Set("Access-Control-Max-Age", "86400")
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RateLimiter hands out one token bucket per client address.
type RateLimiter struct {
	limit      rate.Limit
	burst      int
	trustProxy bool
	idle       time.Duration

	visitors *cmap.Map[string, *visitor]
	sweepMu  sync.Mutex
	lastScan time.Time
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen atomicTime
}

type atomicTime struct{ ns atomic.Int64 }

func (t *atomicTime) Store(v time.Time) { t.ns.Store(v.UnixNano()) }
func (t *atomicTime) Load() time.Time   { return time.Unix(0, t.ns.Load()) }

// NewRateLimiter allows perSecond requests per client with the given
// burst. A burst below 1 becomes ceil(perSecond).
func NewRateLimiter(perSecond float64, burst int, trustProxy bool) *RateLimiter {
	if burst < 1 {
		burst = max(1, int(perSecond+0.999))
	}
	return &RateLimiter{
		limit:      rate.Limit(perSecond),
		burst:      burst,
		trustProxy: trustProxy,
		idle:       5 * time.Minute,
		visitors:   cmap.New[string, *visitor](),
	}
}

// Allow reports whether ip may proceed now.
func (l *RateLimiter) Allow(ip string) bool {
	now := time.Now()
	v, _ := l.visitors.LoadOrStore(ip, &visitor{limiter: rate.NewLimiter(l.limit, l.burst)})
	v.lastSeen.Store(now)
	l.sweep(now)
	return v.limiter.AllowN(now, 1)
}

// sweep drops visitors idle for longer than l.idle, at most once a minute.
func (l *RateLimiter) sweep(now time.Time) {
	if !l.sweepMu.TryLock() {
		return
	}
	defer l.sweepMu.Unlock()
	if now.Sub(l.lastScan) < time.Minute {
		return
	}
	l.lastScan = now
	for _, ip := range l.visitors.Keys() {
		l.visitors.DeleteIf(ip, func(v *visitor) bool {
			return now.Sub(v.lastSeen.Load()) > l.idle
		})
	}
}

// Len returns the number of tracked clients.
func (l *RateLimiter) Len() int {
	return l.visitors.Count()
}

// Middleware returns the limiter as a Middleware.
func (l *RateLimiter) Middleware() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !l.Allow(handler.ClientIP(r, l.trustProxy)) {
				w.Header().Set("Retry-After", "1")
				writeError(w, r, http.StatusTooManyRequests, CodeRateLimited, "too many requests")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// responseWriter wraps http.ResponseWriter to capture status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode  int
	written     int
	wroteHeader bool
}

func (w *responseWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.statusCode = code
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *responseWriter) Write(b []byte) (int, error) {
	w.wroteHeader = true
	n, err := w.ResponseWriter.Write(b)
	w.written += n
	return n, err
}

func (w *responseWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// writeError writes the standard error envelope.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Error-Code", code)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(handler.NewErrorResponse(logger.RequestIDFromContext(r.Context()), code, message, nil))
}
