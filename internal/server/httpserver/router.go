package httpserver

import (
	"net/http"
	"strings"
	"time"

	"github.com/bluelamp/cligate/internal/core/domain"
	"github.com/bluelamp/cligate/internal/server/httpserver/handler"
	"github.com/bluelamp/cligate/internal/telemetry/logger"
	"github.com/bluelamp/cligate/internal/telemetry/metric"
)

// RouterConfig holds configuration for the HTTP router.
type RouterConfig struct {
	Handler *handler.Handler
	Logger  logger.Logger
	Metrics *metric.Registry

	// AdminKeyHashes are hex SHA-256 digests of accepted X-Admin-Key values.
	AdminKeyHashes []string

	// AdminAllowList is the IP/CIDR allowlist for admin routes (empty = no restriction).
	AdminAllowList []string

	MetricsEnabled bool
	MetricsPath    string

	TrustProxy bool

	// RateLimit is requests per second per client; 0 disables.
	RateLimit float64
	RateBurst int

	CORSOrigins []string

	// RequestTimeout bounds each request context; 0 disables.
	RequestTimeout time.Duration
}

// NewRouter creates and configures the HTTP router with all routes and middleware.
func NewRouter(cfg *RouterConfig) http.Handler {
	log := cfg.Logger
	if log == nil {
		log = logger.Nop()
	}
	log = log.With("component", "http")

	var limiter *RateLimiter
	if cfg.RateLimit > 0 {
		limiter = NewRateLimiter(cfg.RateLimit, cfg.RateBurst, cfg.TrustProxy)
	}

	// Order: RequestID -> Logger -> AccessLog -> Recover -> Timeout -> CORS -> RateLimit -> route-specific
	common := func(route string, extra ...Middleware) []Middleware {
		mws := []Middleware{
			RequestID(),
			WithLogger(log),
			AccessLog(cfg.Metrics, route, cfg.TrustProxy),
			Recover(),
			Timeout(cfg.RequestTimeout),
		}
		if len(cfg.CORSOrigins) > 0 {
			mws = append(mws, CORS(cfg.CORSOrigins))
		}
		if limiter != nil {
			mws = append(mws, limiter.Middleware())
		}
		return append(mws, extra...)
	}

	mux := http.NewServeMux()

	for _, p := range handler.Routes.Public {
		mux.Handle(p, Chain(cfg.Handler, common(p)...))
	}
	for _, p := range handler.Routes.Admin {
		mux.Handle(p, Chain(cfg.Handler, common(p,
			NetworkACL(cfg.AdminAllowList, cfg.TrustProxy),
			AdminAuth(cfg.AdminKeyHashes),
		)...))
	}

	if cfg.MetricsEnabled && cfg.Metrics != nil {
		path := cfg.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		pattern := "GET " + path
		mux.Handle(pattern, Chain(cfg.Metrics.Handler(), RequestID(), WithLogger(log), Recover()))
	}

	if len(cfg.CORSOrigins) > 0 {
		mux.Handle("OPTIONS /", Chain(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		}), common("OPTIONS")...))
	}

	mux.Handle("/", Chain(http.HandlerFunc(notFound), common("unmatched")...))
	return mux
}

func notFound(w http.ResponseWriter, r *http.Request) {
	msg := domain.ErrNotFound.Message
	if strings.HasPrefix(r.URL.Path, "/admin/") {
		msg = "unknown admin route"
	}
	writeError(w, r, http.StatusNotFound, domain.CodeNotFound, msg)
}
