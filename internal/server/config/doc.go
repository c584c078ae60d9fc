// Package config provides server configuration for cligate.
//
// This package defines the server configuration structure and validation:
//
//   - spec.go: ServerConfig struct definition
//   - default.go: Default configuration values
//   - verify.go: Business validation (backend choices, required paths, key digests)
//   - sanitize.go: Log sanitization (hide sensitive values)
//   - policy.go: Trap policy document (trap keys and decoy content)
//   - seed.go: Bootstrap accounts and prompts
//
// Configuration is loaded via internal/infra/confloader and supports
// multiple sources: files, .env, environment variables, and flags.
package config
