// Package service provides the domain services of cligate.
//
// Services combine pure policy from the domain package with repository
// calls. Every dependency is injected through a constructor and every
// storage dependency is an interface declared here, so each service can
// be tested against in-memory fakes.
//
//   - TokenService: credential issuance, verification, revocation, stats
//   - VerifyCache: bounded TTL cache of positive verifications
//   - SessionArbiter: one live session per (user, client type)
//   - AuthService: login, logout and request authentication
//   - HoneypotDetector: trap classification and account action
//   - DeceptionService, PromptService: decoy and real resource views
//   - AuditLog: ordered, non-blocking trap evidence log
package service
