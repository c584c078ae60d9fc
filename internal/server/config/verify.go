package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"os"
	"slices"
	"strings"

	"github.com/bluelamp/cligate/internal/core/service"
)

// Verify validates the configuration.
func Verify(cfg *ServerConfig) error {
	return errors.Join(
		verifyServer(&cfg.Server),
		verifyStorage(&cfg.Storage),
		verifyToken(&cfg.Token),
		verifySession(&cfg.Session),
		verifyHoneypot(&cfg.Honeypot),
		verifyAudit(&cfg.Audit),
		verifySecurity(&cfg.Security),
	)
}

func verifyServer(cfg *ServerSection) error {
	if _, _, err := net.SplitHostPort(cfg.Addr); err != nil {
		return fmt.Errorf("server.addr %q: %w", cfg.Addr, err)
	}
	if (cfg.TLSCertFile == "") != (cfg.TLSKeyFile == "") {
		return errors.New("server.tls_cert_file and server.tls_key_file must be set together")
	}
	for _, f := range []string{cfg.TLSCertFile, cfg.TLSKeyFile} {
		if f == "" {
			continue
		}
		if _, err := os.Stat(f); err != nil {
			return fmt.Errorf("tls file: %w", err)
		}
	}
	if cfg.MaxBodyBytes <= 0 {
		return errors.New("server.max_body_bytes must be positive")
	}
	if cfg.RequestTimeout < 0 {
		return errors.New("server.request_timeout must not be negative")
	}
	if cfg.RateLimit < 0 || cfg.RateBurst < 0 {
		return errors.New("server.rate_limit and server.rate_burst must not be negative")
	}
	return nil
}

func oneOf(field, value string, allowed ...string) error {
	if slices.Contains(allowed, value) {
		return nil
	}
	return fmt.Errorf("%s %q: must be one of %s", field, value, strings.Join(allowed, ", "))
}

func verifyStorage(cfg *StorageSection) error {
	err := errors.Join(
		oneOf("storage.credentials", cfg.Credentials, BackendMemory, BackendSQLite),
		oneOf("storage.users", cfg.Users, BackendMemory, BackendSQLite),
		oneOf("storage.sessions", cfg.Sessions, BackendMemory, BackendRedis),
		oneOf("storage.audit", cfg.Audit, BackendMemory, BackendSQLite, BackendBadger),
	)
	if err != nil {
		return err
	}
	if cfg.UsesSQLite() && cfg.SQLitePath == "" {
		return errors.New("storage.sqlite_path is required for the sqlite backend")
	}
	if cfg.Audit == BackendBadger && cfg.BadgerDir == "" {
		return errors.New("storage.badger_dir is required for the badger audit backend")
	}
	if cfg.Sessions == BackendRedis && cfg.Redis.Addr == "" {
		return errors.New("storage.redis.addr is required for the redis session backend")
	}
	return nil
}

// UsesSQLite reports whether any repository is on SQLite.
func (s *StorageSection) UsesSQLite() bool {
	return s.Credentials == BackendSQLite || s.Users == BackendSQLite || s.Audit == BackendSQLite
}

func verifyToken(cfg *TokenSection) error {
	if cfg.DefaultExpirationDays < 1 || cfg.DefaultExpirationDays > 365 {
		return fmt.Errorf("token.default_expiration_days %d: must be within 1..365", cfg.DefaultExpirationDays)
	}
	if cfg.CacheSize < 0 || cfg.CacheTTL < 0 {
		return errors.New("token.cache_size and token.cache_ttl must not be negative")
	}
	if cfg.CleanupInterval < 0 {
		return errors.New("token.cleanup_interval must not be negative")
	}
	return nil
}

func verifySession(cfg *SessionSection) error {
	if _, err := service.ParseSessionPolicy(cfg.Policy); err != nil {
		return fmt.Errorf("session.policy: %w", err)
	}
	return nil
}

func verifyHoneypot(cfg *HoneypotSection) error {
	if !cfg.Enabled {
		return nil
	}
	if cfg.PolicyFile == "" {
		return errors.New("honeypot.policy_file is required when the honeypot is enabled")
	}
	if cfg.MaxAnchors < 2 {
		return errors.New("honeypot.max_anchors must be at least 2")
	}
	return nil
}

func verifyAudit(cfg *AuditSection) error {
	if cfg.QueueSize < 1 {
		return errors.New("audit.queue_size must be at least 1")
	}
	if cfg.WriteTimeout <= 0 {
		return errors.New("audit.write_timeout must be positive")
	}
	return nil
}

func verifySecurity(cfg *SecuritySection) error {
	for i, h := range cfg.AdminKeyHashes {
		b, err := hex.DecodeString(h)
		if err != nil || len(b) != 32 {
			return fmt.Errorf("security.admin_key_hashes[%d]: want 64 hex characters of SHA-256", i)
		}
	}
	for i, entry := range cfg.AdminAllowList {
		if strings.Contains(entry, "/") {
			if _, err := netip.ParsePrefix(entry); err != nil {
				return fmt.Errorf("security.admin_allow_list[%d]: %w", i, err)
			}
		} else if _, err := netip.ParseAddr(entry); err != nil {
			return fmt.Errorf("security.admin_allow_list[%d]: %w", i, err)
		}
	}
	a := cfg.Argon2
	if a.MemoryKiB < 8*uint32(max(a.Parallelism, 1)) || a.Iterations < 1 || a.Parallelism < 1 {
		return errors.New("security.argon2: memory_kib, iterations and parallelism must be positive")
	}
	return nil
}
