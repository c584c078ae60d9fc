package config

import "time"

// ServerConfig is the root configuration for cligate-server.
type ServerConfig struct {
	Server   ServerSection   `koanf:"server"`
	Storage  StorageSection  `koanf:"storage"`
	Token    TokenSection    `koanf:"token"`
	Session  SessionSection  `koanf:"session"`
	Honeypot HoneypotSection `koanf:"honeypot"`
	Audit    AuditSection    `koanf:"audit"`
	Security SecuritySection `koanf:"security"`
	Log      LogSection      `koanf:"log"`
	Metrics  MetricsSection  `koanf:"metrics"`
}

// ServerSection configures the HTTP listener.
type ServerSection struct {
	Addr            string        `koanf:"addr"`
	TLSCertFile     string        `koanf:"tls_cert_file"`
	TLSKeyFile      string        `koanf:"tls_key_file"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	IdleTimeout     time.Duration `koanf:"idle_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	RequestTimeout  time.Duration `koanf:"request_timeout"` // 0 disables
	MaxBodyBytes    int64         `koanf:"max_body_bytes"`

	// TrustProxyHeaders takes the client address from X-Forwarded-For /
	// X-Real-IP. Enable only behind a proxy that sets them.
	TrustProxyHeaders bool `koanf:"trust_proxy_headers"`

	// RateLimit is requests per second per client address; 0 disables.
	RateLimit float64 `koanf:"rate_limit"`
	RateBurst int     `koanf:"rate_burst"`

	// CORSOrigins enables CORS for the listed origins; "*" allows any.
	CORSOrigins []string `koanf:"cors_origins"`
}

// Storage backends.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
	BackendBadger = "badger"
)

// StorageSection selects a backend per repository.
type StorageSection struct {
	// Credentials and users: memory | sqlite.
	Credentials string `koanf:"credentials"`
	Users       string `koanf:"users"`

	// Sessions: memory | redis.
	Sessions string `koanf:"sessions"`

	// Audit: memory | sqlite | badger.
	Audit string `koanf:"audit"`

	SQLitePath string       `koanf:"sqlite_path"`
	BadgerDir  string       `koanf:"badger_dir"`
	Redis      RedisSection `koanf:"redis"`

	// SeedFile lists bootstrap accounts and prompts.
	SeedFile string `koanf:"seed_file"`
}

// RedisSection configures the session store connection.
type RedisSection struct {
	Addr     string        `koanf:"addr"`
	Username string        `koanf:"username"`
	Password string        `koanf:"password"`
	DB       int           `koanf:"db"`
	Prefix   string        `koanf:"prefix"`
	TTL      time.Duration `koanf:"ttl"`
}

// TokenSection configures credential issuance and verification.
type TokenSection struct {
	DefaultExpirationDays int           `koanf:"default_expiration_days"`
	Pepper                string        `koanf:"pepper"`
	CacheTTL              time.Duration `koanf:"cache_ttl"`
	CacheSize             int           `koanf:"cache_size"`
	CleanupInterval       time.Duration `koanf:"cleanup_interval"`
}

// SessionSection configures arbitration.
type SessionSection struct {
	// Policy is replace (newest login wins) or strict.
	Policy          string        `koanf:"policy"`
	ActivityTimeout time.Duration `koanf:"activity_timeout"`
}

// HoneypotSection configures trap detection and decoys.
type HoneypotSection struct {
	Enabled       bool          `koanf:"enabled"`
	PolicyFile    string        `koanf:"policy_file"`
	WatchPolicy   bool          `koanf:"watch_policy"`
	BlockReason   string        `koanf:"block_reason"`
	AppealURL     string        `koanf:"appeal_url"`
	ActionTimeout time.Duration `koanf:"action_timeout"`
	MaxAnchors    int           `koanf:"max_anchors"`
}

// AuditSection configures the trap access log.
type AuditSection struct {
	QueueSize      int           `koanf:"queue_size"`
	WriteTimeout   time.Duration `koanf:"write_timeout"`
	FallbackFile   string        `koanf:"fallback_file"`
	FallbackSizeMB int           `koanf:"fallback_size_mb"`
	FallbackKeep   int           `koanf:"fallback_keep"`
	ReplayFallback bool          `koanf:"replay_fallback"`
}

// SecuritySection configures admin access and password hashing.
type SecuritySection struct {
	// AdminKeyHashes are hex SHA-256 digests of accepted X-Admin-Key values.
	AdminKeyHashes []string `koanf:"admin_key_hashes"`

	// AdminAllowList restricts admin routes to these IPs or CIDRs. Empty
	// means no restriction.
	AdminAllowList []string `koanf:"admin_allow_list"`

	Argon2 Argon2Section `koanf:"argon2"`
}

// Argon2Section sets the Argon2id cost for new password hashes.
type Argon2Section struct {
	MemoryKiB   uint32 `koanf:"memory_kib"`
	Iterations  uint32 `koanf:"iterations"`
	Parallelism uint8  `koanf:"parallelism"`
}

// LogSection configures logging.
type LogSection struct {
	Level      string `koanf:"level"`
	Format     string `koanf:"format"`
	File       string `koanf:"file"`
	MaxSizeMB  int    `koanf:"max_size_mb"`
	MaxBackups int    `koanf:"max_backups"`
}

// MetricsSection configures the Prometheus endpoint.
type MetricsSection struct {
	Enabled bool   `koanf:"enabled"`
	Path    string `koanf:"path"`
}
