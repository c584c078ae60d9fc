package tlsroots

import (
	"crypto/tls"
	"fmt"
	"sync"

	"github.com/bluelamp/cligate/internal/telemetry/logger"
)

// FileWatcher registers a callback for changes to a file.
// confloader.Watcher satisfies it.
type FileWatcher interface {
	WatchFile(path string, fn func(string)) error
}

// CertReloader serves a certificate pair and reloads it on demand.
type CertReloader struct {
	certFile string
	keyFile  string
	log      logger.Logger

	mu   sync.RWMutex
	cert *tls.Certificate
}

// NewCertReloader loads the pair once and fails if it is unusable.
func NewCertReloader(certFile, keyFile string, log logger.Logger) (*CertReloader, error) {
	if log == nil {
		log = logger.Nop()
	}
	r := &CertReloader{certFile: certFile, keyFile: keyFile, log: log}
	if err := r.Reload(); err != nil {
		return nil, fmt.Errorf("tlsroots: initial load: %w", err)
	}
	return r, nil
}

// Reload re-reads the pair. On failure the previous certificate stays.
func (r *CertReloader) Reload() error {
	cert, err := tls.LoadX509KeyPair(r.certFile, r.keyFile)
	if err != nil {
		return fmt.Errorf("load key pair: %w", err)
	}
	r.mu.Lock()
	r.cert = &cert
	r.mu.Unlock()
	r.log.Info("certificate reloaded", "cert_file", r.certFile)
	return nil
}

// Watch reloads the pair whenever either file changes.
func (r *CertReloader) Watch(w FileWatcher) error {
	reload := func(string) {
		if err := r.Reload(); err != nil {
			r.log.Error("certificate reload failed", "cert_file", r.certFile, "error", err)
		}
	}
	if err := w.WatchFile(r.certFile, reload); err != nil {
		return err
	}
	return w.WatchFile(r.keyFile, reload)
}

// GetCertificate implements tls.Config.GetCertificate.
func (r *CertReloader) GetCertificate(*tls.ClientHelloInfo) (*tls.Certificate, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cert, nil
}

// ServerConfig returns a TLS config that serves the current pair.
func (r *CertReloader) ServerConfig() *tls.Config {
	return &tls.Config{
		MinVersion:     tls.VersionTLS12,
		GetCertificate: r.GetCertificate,
	}
}
