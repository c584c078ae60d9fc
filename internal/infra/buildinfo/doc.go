// Package buildinfo exposes build information for cligate binaries.
//
// Version, Commit and BuildTime are injected via ldflags:
//
//	go build -ldflags "-X github.com/bluelamp/cligate/internal/infra/buildinfo.Version=v1.0.0"
//
// When they are not set, Commit and BuildTime fall back to the VCS
// settings recorded by the Go toolchain.
package buildinfo
