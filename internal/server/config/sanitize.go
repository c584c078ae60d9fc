package config

import (
	"slices"
	"strings"
)

// Sanitize returns a copy of the config with sensitive fields masked.
func Sanitize(cfg *ServerConfig) *ServerConfig {
	sanitized := *cfg
	sanitized.Security.AdminKeyHashes = slices.Clone(cfg.Security.AdminKeyHashes)

	if sanitized.Token.Pepper != "" {
		sanitized.Token.Pepper = maskSecret(sanitized.Token.Pepper)
	}
	if sanitized.Storage.Redis.Password != "" {
		sanitized.Storage.Redis.Password = maskSecret(sanitized.Storage.Redis.Password)
	}
	for i, h := range sanitized.Security.AdminKeyHashes {
		sanitized.Security.AdminKeyHashes[i] = maskSecret(h)
	}
	return &sanitized
}

// maskSecret masks a secret value for safe logging.
func maskSecret(s string) string {
	if len(s) <= 4 {
		return "****"
	}
	return s[:2] + strings.Repeat("*", len(s)-4) + s[len(s)-2:]
}
