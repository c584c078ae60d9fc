package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bluelamp/cligate/internal/core/domain"
	"github.com/bluelamp/cligate/internal/core/service"
	"github.com/bluelamp/cligate/internal/infra/buildinfo"
	"github.com/bluelamp/cligate/internal/infra/confloader"
	"github.com/bluelamp/cligate/internal/infra/shutdown"
	"github.com/bluelamp/cligate/internal/infra/tlsroots"
	"github.com/bluelamp/cligate/internal/server/config"
	"github.com/bluelamp/cligate/internal/server/httpserver"
	"github.com/bluelamp/cligate/internal/server/httpserver/handler"
	"github.com/bluelamp/cligate/internal/telemetry/logger"
	"github.com/bluelamp/cligate/internal/telemetry/metric"
)

// App is an assembled cligate-server.
type App struct {
	cfg      *config.ServerConfig
	log      logger.Logger
	metrics  *metric.Registry
	shutdown *shutdown.Handler

	stores  *stores
	tokens  *service.TokenService
	arbiter *service.SessionArbiter
	audit   *service.AuditLog
	policy  *service.AtomicPolicy

	watcher *confloader.Watcher
	server  *httpserver.Server
}

// New builds every component described by cfg. On error, whatever was
// already opened is closed again.
func New(ctx context.Context, cfg *config.ServerConfig, log logger.Logger) (a *App, err error) {
	if log == nil {
		log = logger.Nop()
	}
	a = &App{
		cfg:      cfg,
		log:      log,
		metrics:  metric.NewRegistry(),
		shutdown: shutdown.NewHandler(cfg.Server.ShutdownTimeout, log),
	}
	defer func() {
		if err != nil {
			if cerr := a.shutdown.Shutdown(); cerr != nil {
				log.Warn("cleanup after failed start", "error", cerr)
			}
			a = nil
		}
	}()

	if a.stores, err = a.openStores(ctx); err != nil {
		return nil, err
	}
	if err = a.seed(ctx); err != nil {
		return nil, err
	}
	if err = a.buildServices(); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *App) buildServices() error {
	cfg := a.cfg
	st := a.stores

	a.tokens = service.NewTokenService(st.credentials, st.users, &service.TokenServiceConfig{
		DefaultExpirationDays: cfg.Token.DefaultExpirationDays,
		Pepper:                cfg.Token.Pepper,
		CacheTTL:              cfg.Token.CacheTTL,
		CacheSize:             cfg.Token.CacheSize,
		Logger:                a.log.With("component", "token"),
		Metrics:               a.metrics,
	})

	policy, err := service.ParseSessionPolicy(cfg.Session.Policy)
	if err != nil {
		return err
	}
	a.arbiter = service.NewSessionArbiter(st.sessions, &service.SessionArbiterConfig{
		Policy:          policy,
		ActivityTimeout: cfg.Session.ActivityTimeout,
		Logger:          a.log.With("component", "session"),
		Metrics:         a.metrics,
	})
	a.shutdown.OnClose("session arbiter", func() error { a.arbiter.Close(); return nil })

	var fallback service.AuditSink
	if st.fallback != nil {
		fallback = st.fallback
	}
	a.audit = service.NewAuditLog(st.audit, fallback, &service.AuditLogConfig{
		QueueSize:    cfg.Audit.QueueSize,
		WriteTimeout: cfg.Audit.WriteTimeout,
		Logger:       a.log.With("component", "audit"),
		Metrics:      a.metrics,
	})
	a.audit.Start()
	// Registered after the stores, so the queue drains before they close.
	a.shutdown.OnShutdown("audit log", a.audit.Close)

	auth := service.NewAuthService(a.tokens, a.arbiter, st.users, &service.AuthServiceConfig{
		AppealURL: cfg.Honeypot.AppealURL,
		Logger:    a.log.With("component", "auth"),
	})

	hcfg := &handler.Config{
		Auth:              auth,
		Tokens:            a.tokens,
		Sessions:          a.arbiter,
		Prompts:           service.NewPromptService(st.prompts),
		Audit:             a.audit,
		Users:             st.users,
		TrustProxyHeaders: cfg.Server.TrustProxyHeaders,
		MaxBodyBytes:      cfg.Server.MaxBodyBytes,
		Version:           buildinfo.Version,
		Logger:            a.log,
	}

	if cfg.Honeypot.Enabled {
		if err := a.loadPolicy(context.Background()); err != nil {
			return err
		}
		hcfg.Policy = a.policy
		hcfg.Detector = service.NewHoneypotDetector(a.policy, a.tokens, a.tokens, st.users, a.arbiter, a.audit,
			&service.HoneypotConfig{
				BlockReason:   cfg.Honeypot.BlockReason,
				ActionTimeout: cfg.Honeypot.ActionTimeout,
				Logger:        a.log.With("component", "honeypot"),
				Metrics:       a.metrics,
			})
		hcfg.Deception = service.NewDeceptionService(st.traps, &service.DeceptionConfig{
			MaxAnchors: cfg.Honeypot.MaxAnchors,
			Logger:     a.log.With("component", "deception"),
			Metrics:    a.metrics,
		})
	} else {
		a.log.Warn("honeypot disabled; trap keys are treated as unknown credentials")
	}

	policySize := func() int { return 0 }
	if a.policy != nil {
		policySize = func() int { return a.policy.Policy().Len() }
	}
	if err := a.metrics.Prometheus().Register(metric.NewCollector(a.audit.QueueDepth, policySize)); err != nil {
		return fmt.Errorf("register collector: %w", err)
	}

	if err := a.startWatcher(); err != nil {
		return err
	}

	router := httpserver.NewRouter(&httpserver.RouterConfig{
		Handler:        handler.New(hcfg),
		Logger:         a.log,
		Metrics:        a.metrics,
		AdminKeyHashes: cfg.Security.AdminKeyHashes,
		AdminAllowList: cfg.Security.AdminAllowList,
		MetricsEnabled: cfg.Metrics.Enabled,
		MetricsPath:    cfg.Metrics.Path,
		TrustProxy:     cfg.Server.TrustProxyHeaders,
		RateLimit:      cfg.Server.RateLimit,
		RateBurst:      cfg.Server.RateBurst,
		CORSOrigins:    cfg.Server.CORSOrigins,
		RequestTimeout: cfg.Server.RequestTimeout,
	})

	opts := httpserver.Options{
		Addr:            cfg.Server.Addr,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		IdleTimeout:     cfg.Server.IdleTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		Logger:          a.log,
	}
	if cfg.Server.TLSCertFile != "" {
		certs, err := tlsroots.NewCertReloader(cfg.Server.TLSCertFile, cfg.Server.TLSKeyFile, a.log)
		if err != nil {
			return err
		}
		if a.watcher != nil {
			if err := certs.Watch(a.watcher); err != nil {
				a.log.Warn("certificate reload disabled", "error", err)
			}
		}
		opts.TLSConfig = certs.ServerConfig()
	}
	a.server = httpserver.New(router, opts)
	return nil
}

// startWatcher watches the policy file and TLS material when either can
// change at runtime.
func (a *App) startWatcher() error {
	cfg := a.cfg
	watchPolicy := cfg.Honeypot.Enabled && cfg.Honeypot.WatchPolicy
	if !watchPolicy && cfg.Server.TLSCertFile == "" {
		return nil
	}
	w, err := confloader.NewWatcher(confloader.WithWatcherLogger(a.log.With("component", "watcher")))
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	a.watcher = w
	a.shutdown.OnClose("watcher", w.Stop)

	if watchPolicy {
		if err := w.WatchFile(cfg.Honeypot.PolicyFile, func(string) {
			if err := a.loadPolicy(context.Background()); err != nil {
				a.log.Error("trap policy reload rejected; keeping previous policy", "file", cfg.Honeypot.PolicyFile, "error", err)
			}
		}); err != nil {
			return err
		}
	}
	return nil
}

// loadPolicy reads the policy file, swaps in the new key set and upserts
// the decoy table. A bad file leaves the current policy in place.
func (a *App) loadPolicy(ctx context.Context) error {
	p, prompts, err := config.LoadPolicy(a.cfg.Honeypot.PolicyFile)
	if err != nil {
		return err
	}
	for i := range prompts {
		tp := prompts[i]
		if _, err := a.stores.prompts.Get(ctx, tp.RealResourceID); err != nil {
			a.log.Warn("trap prompt has no real counterpart", "trap_prompt_id", tp.ID, "real_resource_id", tp.RealResourceID)
		}
		if err := a.stores.traps.Upsert(ctx, &tp); err != nil {
			return fmt.Errorf("store trap prompt %s: %w", tp.ID, err)
		}
	}

	if a.policy == nil {
		a.policy = service.NewAtomicPolicy(p)
	} else {
		a.policy.Store(p)
	}

	secrets := []string{a.cfg.Token.Pepper, a.cfg.Storage.Redis.Password}
	for _, k := range p.Keys() {
		secrets = append(secrets, k.Value)
	}
	logger.RegisterSecrets(secrets...)
	a.log.Info("trap policy loaded", "file", a.cfg.Honeypot.PolicyFile, "trap_keys", p.Len(), "trap_prompts", len(prompts))
	return nil
}

// seed creates bootstrap records. Existing accounts are left alone so a
// restart never lifts a block.
func (a *App) seed(ctx context.Context) error {
	path := a.cfg.Storage.SeedFile
	if path == "" {
		return nil
	}
	s, err := config.LoadSeed(path)
	if err != nil {
		return err
	}

	created := 0
	for _, su := range s.Users {
		u, secret := su.User()
		if _, err := a.stores.users.GetUser(ctx, u.ID); err == nil {
			continue
		} else if !errors.Is(err, domain.ErrUserNotFound) {
			return err
		}
		if err := a.stores.users.AddUser(ctx, u, secret); err != nil {
			return fmt.Errorf("seed user %s: %w", u.ID, err)
		}
		created++
	}

	now := time.Now().UTC()
	for _, sp := range s.Prompts {
		p := sp.Prompt()
		p.CreatedAt, p.UpdatedAt = now, now
		if err := a.stores.prompts.Upsert(ctx, p); err != nil {
			return fmt.Errorf("seed prompt %s: %w", p.ID, err)
		}
	}
	a.log.Info("seed applied", "file", path, "users_created", created, "prompts", len(s.Prompts))
	return nil
}

// Addr returns the HTTP listen address.
func (a *App) Addr() string {
	return a.server.Addr()
}

// Listen binds the HTTP socket ahead of Run.
func (a *App) Listen() error {
	return a.server.Listen()
}

// Metrics returns the metrics registry.
func (a *App) Metrics() *metric.Registry {
	return a.metrics
}

// Run serves until ctx is done or a component fails, then releases
// everything.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return a.server.Serve(gctx) })
	g.Go(func() error { return a.cleanupLoop(gctx) })
	if a.watcher != nil {
		g.Go(func() error { return a.watcher.Run(gctx) })
	}

	err := g.Wait()
	return errors.Join(err, a.shutdown.Shutdown())
}

// cleanupOnce runs one sweep bounded by the cleanup interval.
func (a *App) cleanupOnce(ctx context.Context) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, a.cfg.Token.CleanupInterval)
	defer cancel()
	return a.tokens.CleanupExpired(ctx)
}

// cleanupLoop marks expired credentials inactive on an interval.
func (a *App) cleanupLoop(ctx context.Context) error {
	interval := a.cfg.Token.CleanupInterval
	if interval <= 0 {
		<-ctx.Done()
		return nil
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			n, err := a.cleanupOnce(ctx)
			if err != nil {
				a.log.Warn("expired credential cleanup failed", "error", err)
				continue
			}
			if n > 0 {
				a.log.Info("expired credentials deactivated", "count", n)
			}
		}
	}
}
