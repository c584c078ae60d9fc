// Package domain defines the core domain models for cligate.
//
// Domain models are pure value objects and entities without any IO
// dependencies. Policy decisions that do not need storage (credential
// usability, login eligibility, trap classification) live here as plain
// functions so services only combine them with repository calls.
//
//   - CliCredential: issued CLI token record (digest only)
//   - ClientSession: the single live session per (user, client type)
//   - User: account status and security blocks
//   - TrapPolicy, TrapPrompt, TrapAccessLog: honeypot configuration and evidence
//   - Prompt: the protected resource served to real and decoy callers
//   - Errors: domain error codes shared with the HTTP boundary
package domain
