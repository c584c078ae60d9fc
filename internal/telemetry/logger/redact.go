package logger

import (
	"log/slog"
	"strings"
	"sync/atomic"
)

// Prefixes of values that are credentials whatever key they are logged under.
var sensitiveValuePrefixes = []string{
	"blcli_",              // issued CLI credential
	"bluelamp_cli_token_", // planted trap key family
	"sk-",                 // provider style API key
}

// Key name fragments that mark an attribute as sensitive.
var sensitiveKeyPatterns = []string{
	"password",
	"secret",
	"token",
	"key",
	"credential",
	"auth",
	"bearer",
	"cookie",
}

// Key names that contain a pattern above but hold no secret.
var safeKeys = map[string]bool{
	"token_id":      true,
	"key_label":     true,
	"trap_key_mask": true,
	"tokens":        true,
}

const redactedValue = "***REDACTED***"

// exactSecrets holds literal values (trap keys) masked wherever they appear.
var exactSecrets atomic.Pointer[map[string]struct{}]

// RegisterSecrets replaces the set of literal values that are always
// masked. The trap policy loader calls this on every (re)load.
func RegisterSecrets(values ...string) {
	m := make(map[string]struct{}, len(values))
	for _, v := range values {
		if v != "" {
			m[v] = struct{}{}
		}
	}
	exactSecrets.Store(&m)
}

func isExactSecret(v string) bool {
	m := exactSecrets.Load()
	if m == nil {
		return false
	}
	_, ok := (*m)[v]
	return ok
}

func redactSensitive(a slog.Attr) slog.Attr {
	if a.Value.Kind() == slog.KindString {
		v := a.Value.String()
		for _, prefix := range sensitiveValuePrefixes {
			if strings.HasPrefix(v, prefix) {
				return slog.String(a.Key, maskValue(v, prefix))
			}
		}
		if isExactSecret(v) {
			return slog.String(a.Key, redactedValue)
		}
		if v != "" && IsSensitiveKey(a.Key) {
			return slog.String(a.Key, redactedValue)
		}
	}

	if a.Value.Kind() == slog.KindGroup {
		attrs := a.Value.Group()
		out := make([]slog.Attr, len(attrs))
		for i, attr := range attrs {
			out[i] = redactSensitive(attr)
		}
		return slog.Attr{Key: a.Key, Value: slog.GroupValue(out...)}
	}
	return a
}

// maskValue keeps the prefix plus the first and last three body characters.
func maskValue(value, prefix string) string {
	body := value[len(prefix):]
	if len(body) <= 6 {
		return prefix + "***"
	}
	return prefix + body[:3] + "..." + body[len(body)-3:]
}

// RedactString masks value when it looks like a credential.
func RedactString(value string) string {
	for _, prefix := range sensitiveValuePrefixes {
		if strings.HasPrefix(value, prefix) {
			return maskValue(value, prefix)
		}
	}
	if isExactSecret(value) {
		return redactedValue
	}
	return value
}

// IsSensitiveKey checks if a key name suggests sensitive content.
func IsSensitiveKey(key string) bool {
	k := strings.ToLower(key)
	if safeKeys[k] {
		return false
	}
	for _, pattern := range sensitiveKeyPatterns {
		if strings.Contains(k, pattern) {
			return true
		}
	}
	return false
}

// IsSensitiveValue checks if a value appears to be a credential.
func IsSensitiveValue(value string) bool {
	for _, prefix := range sensitiveValuePrefixes {
		if strings.HasPrefix(value, prefix) {
			return true
		}
	}
	return isExactSecret(value)
}
