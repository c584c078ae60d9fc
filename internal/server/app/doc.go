// Package app assembles cligate-server from its configuration: storage
// backends, services, the trap policy and its watcher, the HTTP server and
// the background jobs that run next to it.
package app
