package config

import "time"

// Default configuration values.
const (
	DefaultHTTPAddr        = "127.0.0.1:8787"
	DefaultReadTimeout     = 10 * time.Second
	DefaultWriteTimeout    = 15 * time.Second
	DefaultIdleTimeout     = 60 * time.Second
	DefaultShutdownTimeout = 15 * time.Second
	DefaultRequestTimeout  = 30 * time.Second
	DefaultMaxBodyBytes    = 1 << 20

	DefaultSQLitePath = "/var/lib/cligate/cligate.db"
	DefaultBadgerDir  = "/var/lib/cligate/audit"
	DefaultRedisAddr  = "127.0.0.1:6379"

	DefaultExpirationDays  = 30
	DefaultCacheTTL        = 30 * time.Second
	DefaultCacheSize       = 10000
	DefaultCleanupInterval = time.Hour

	DefaultSessionPolicy   = "replace"
	DefaultActivityTimeout = 2 * time.Second

	DefaultBlockReason   = "Automated access pattern detected: a planted credential was used"
	DefaultActionTimeout = 5 * time.Second
	DefaultMaxAnchors    = 4

	DefaultAuditQueueSize    = 1024
	DefaultAuditWriteTimeout = 2 * time.Second
	DefaultFallbackFile      = "/var/log/cligate/audit-fallback.jsonl"

	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"

	DefaultMetricsPath = "/metrics"
)

// Default returns the default server configuration.
func Default() *ServerConfig {
	return &ServerConfig{
		Server: ServerSection{
			Addr:            DefaultHTTPAddr,
			ReadTimeout:     DefaultReadTimeout,
			WriteTimeout:    DefaultWriteTimeout,
			IdleTimeout:     DefaultIdleTimeout,
			ShutdownTimeout: DefaultShutdownTimeout,
			RequestTimeout:  DefaultRequestTimeout,
			MaxBodyBytes:    DefaultMaxBodyBytes,
		},
		Storage: StorageSection{
			Credentials: BackendMemory,
			Users:       BackendMemory,
			Sessions:    BackendMemory,
			Audit:       BackendMemory,
			SQLitePath:  DefaultSQLitePath,
			BadgerDir:   DefaultBadgerDir,
			Redis: RedisSection{
				Addr: DefaultRedisAddr,
			},
		},
		Token: TokenSection{
			DefaultExpirationDays: DefaultExpirationDays,
			CacheTTL:              DefaultCacheTTL,
			CacheSize:             DefaultCacheSize,
			CleanupInterval:       DefaultCleanupInterval,
		},
		Session: SessionSection{
			Policy:          DefaultSessionPolicy,
			ActivityTimeout: DefaultActivityTimeout,
		},
		Honeypot: HoneypotSection{
			Enabled:       true,
			WatchPolicy:   true,
			BlockReason:   DefaultBlockReason,
			ActionTimeout: DefaultActionTimeout,
			MaxAnchors:    DefaultMaxAnchors,
		},
		Audit: AuditSection{
			QueueSize:      DefaultAuditQueueSize,
			WriteTimeout:   DefaultAuditWriteTimeout,
			FallbackFile:   DefaultFallbackFile,
			FallbackSizeMB: 50,
			FallbackKeep:   5,
			ReplayFallback: true,
		},
		Security: SecuritySection{
			Argon2: Argon2Section{
				MemoryKiB:   16 * 1024,
				Iterations:  2,
				Parallelism: 2,
			},
		},
		Log: LogSection{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
		Metrics: MetricsSection{
			Enabled: true,
			Path:    DefaultMetricsPath,
		},
	}
}
