package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bluelamp/cligate/internal/infra/confloader"
)

func validConfig(t *testing.T) *ServerConfig {
	t.Helper()
	cfg := Default()
	cfg.Honeypot.PolicyFile = filepath.Join(t.TempDir(), "policy.yaml")
	return cfg
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestDefault_Verifies(t *testing.T) {
	if err := Verify(validConfig(t)); err != nil {
		t.Fatalf("Verify(default) = %v", err)
	}
}

func TestDefault_HoneypotNeedsPolicyFile(t *testing.T) {
	if err := Verify(Default()); err == nil {
		t.Fatal("expected error without honeypot.policy_file")
	}
	cfg := Default()
	cfg.Honeypot.Enabled = false
	if err := Verify(cfg); err != nil {
		t.Fatalf("Verify(honeypot disabled) = %v", err)
	}
}

func TestVerify_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*ServerConfig)
		want   string
	}{
		{"bad addr", func(c *ServerConfig) { c.Server.Addr = "nope" }, "server.addr"},
		{"request timeout", func(c *ServerConfig) { c.Server.RequestTimeout = -time.Second }, "request_timeout"},
		{"tls half set", func(c *ServerConfig) { c.Server.TLSCertFile = "cert.pem" }, "tls_cert_file"},
		{"credential backend", func(c *ServerConfig) { c.Storage.Credentials = BackendRedis }, "storage.credentials"},
		{"session backend", func(c *ServerConfig) { c.Storage.Sessions = BackendSQLite }, "storage.sessions"},
		{"audit backend", func(c *ServerConfig) { c.Storage.Audit = "kafka" }, "storage.audit"},
		{"sqlite path", func(c *ServerConfig) {
			c.Storage.Credentials = BackendSQLite
			c.Storage.SQLitePath = ""
		}, "sqlite_path"},
		{"badger dir", func(c *ServerConfig) {
			c.Storage.Audit = BackendBadger
			c.Storage.BadgerDir = ""
		}, "badger_dir"},
		{"expiration", func(c *ServerConfig) { c.Token.DefaultExpirationDays = 0 }, "default_expiration_days"},
		{"session policy", func(c *ServerConfig) { c.Session.Policy = "lifo" }, "session.policy"},
		{"anchors", func(c *ServerConfig) { c.Honeypot.MaxAnchors = 1 }, "max_anchors"},
		{"queue", func(c *ServerConfig) { c.Audit.QueueSize = 0 }, "queue_size"},
		{"admin hash", func(c *ServerConfig) { c.Security.AdminKeyHashes = []string{"abc"} }, "admin_key_hashes"},
		{"argon2", func(c *ServerConfig) { c.Security.Argon2.Iterations = 0 }, "argon2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig(t)
			tt.mutate(cfg)
			err := Verify(cfg)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestSanitize(t *testing.T) {
	cfg := validConfig(t)
	cfg.Token.Pepper = "pepper-secret-value"
	cfg.Storage.Redis.Password = "hunter2hunter2"
	cfg.Security.AdminKeyHashes = []string{strings.Repeat("ab", 32)}

	s := Sanitize(cfg)
	if s.Token.Pepper == cfg.Token.Pepper || !strings.Contains(s.Token.Pepper, "*") {
		t.Errorf("pepper not masked: %q", s.Token.Pepper)
	}
	if s.Storage.Redis.Password == cfg.Storage.Redis.Password {
		t.Error("redis password not masked")
	}
	if s.Security.AdminKeyHashes[0] == cfg.Security.AdminKeyHashes[0] {
		t.Error("admin hash not masked")
	}
	if cfg.Security.AdminKeyHashes[0] != strings.Repeat("ab", 32) {
		t.Error("Sanitize modified the original slice")
	}
	if got := maskSecret("abc"); got != "****" {
		t.Errorf("maskSecret(short) = %q", got)
	}
}

func TestLoader_EnvOverridesDefaults(t *testing.T) {
	t.Setenv("CLIGATE_TOKEN_CLEANUP_INTERVAL", "5m")
	t.Setenv("CLIGATE_STORAGE_SQLITE_PATH", "/tmp/x.db")
	t.Setenv("CLIGATE_HONEYPOT_ENABLED", "false")

	cfg := Default()
	if err := confloader.NewLoader().Load(cfg); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Token.CleanupInterval != 5*time.Minute {
		t.Errorf("cleanup_interval = %v", cfg.Token.CleanupInterval)
	}
	if cfg.Storage.SQLitePath != "/tmp/x.db" {
		t.Errorf("sqlite_path = %q", cfg.Storage.SQLitePath)
	}
	if cfg.Honeypot.Enabled {
		t.Error("honeypot.enabled still true")
	}
	if cfg.Server.Addr != DefaultHTTPAddr {
		t.Errorf("server.addr = %q, want default", cfg.Server.Addr)
	}
}

const policyYAML = `
trap_keys:
  - value: sk-live-winning-0001
    winning: true
    label: readme
  - value: sk-live-losing-0002
    label: env-example
trap_prompts:
  - id: tp-1
    real_resource_id: prompt-1
    title: Decoy title
    content: decoy body
    tags: [a, b]
`

func TestLoadPolicy(t *testing.T) {
	p, prompts, err := LoadPolicy(writeFile(t, "policy.yaml", policyYAML))
	if err != nil {
		t.Fatalf("LoadPolicy: %v", err)
	}
	if p.Len() != 2 {
		t.Errorf("policy len = %d", p.Len())
	}
	if !p.IsTrap("sk-live-winning-0001") || p.IsTrap("sk-live-winning-000") {
		t.Error("classification is not exact-match")
	}
	if p.Label("sk-live-losing-0002") != "env-example" {
		t.Errorf("label = %q", p.Label("sk-live-losing-0002"))
	}
	if len(prompts) != 1 || prompts[0].RealResourceID != "prompt-1" || len(prompts[0].Tags) != 2 {
		t.Errorf("prompts = %+v", prompts)
	}
}

func TestLoadPolicy_Invalid(t *testing.T) {
	tests := map[string]string{
		"two winners": `
trap_keys:
  - value: a-key
    winning: true
  - value: b-key
    winning: true
`,
		"no winner": `
trap_keys:
  - value: a-key
`,
		"duplicate decoy mapping": `
trap_keys:
  - value: a-key
    winning: true
trap_prompts:
  - id: tp-1
    real_resource_id: prompt-1
  - id: tp-2
    real_resource_id: prompt-1
`,
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			if _, _, err := LoadPolicy(writeFile(t, "policy.yaml", body)); err == nil {
				t.Fatal("expected error")
			}
		})
	}
	if _, _, err := LoadPolicy(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoadSeed(t *testing.T) {
	path := writeFile(t, "seed.yaml", `
users:
  - id: u1
    email: a@example.com
    password: correct horse
  - id: u2
    email: b@example.com
    password_hash: "$argon2id$v=19$m=1024,t=1,p=1$c2FsdA$aGFzaA"
prompts:
  - id: prompt-1
    title: Real title
    tags: [x]
`)
	s, err := LoadSeed(path)
	if err != nil {
		t.Fatalf("LoadSeed: %v", err)
	}
	if len(s.Users) != 2 || len(s.Prompts) != 1 {
		t.Fatalf("seed = %+v", s)
	}
	u, secret := s.Users[1].User()
	if u.ID != "u2" || !strings.HasPrefix(secret, "$argon2id$") {
		t.Errorf("User() = %+v, %q", u, secret)
	}
	if p := s.Prompts[0].Prompt(); p.Version != 1 || p.Tags[0] != "x" {
		t.Errorf("Prompt() = %+v", p)
	}
}

func TestLoadSeed_RequiresOneSecret(t *testing.T) {
	path := writeFile(t, "seed.yaml", `
users:
  - id: u1
    email: a@example.com
`)
	if _, err := LoadSeed(path); err == nil {
		t.Fatal("expected error")
	}
}
