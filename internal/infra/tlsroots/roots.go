package tlsroots

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
)

// ErrNoCertsFound means a CA bundle held no CERTIFICATE blocks.
var ErrNoCertsFound = errors.New("tlsroots: no certificates found in PEM file")

// LoadRoots returns the system roots plus every certificate in caFile.
// An empty caFile yields the system roots alone. Hosts without a system
// pool start from an empty one.
func LoadRoots(caFile string) (*x509.CertPool, error) {
	pool, err := x509.SystemCertPool()
	if err != nil {
		pool = x509.NewCertPool()
	}
	if caFile == "" {
		return pool, nil
	}
	data, err := os.ReadFile(caFile)
	if err != nil {
		return nil, fmt.Errorf("tlsroots: read CA bundle: %w", err)
	}
	if err := appendPEM(pool, data); err != nil {
		return nil, fmt.Errorf("tlsroots: %s: %w", caFile, err)
	}
	return pool, nil
}

// appendPEM adds the CERTIFICATE blocks of data to pool. Keys and other
// block types in a combined bundle are skipped, but a certificate block
// that does not parse fails the whole bundle.
func appendPEM(pool *x509.CertPool, data []byte) error {
	n := 0
	for block, rest := pem.Decode(data); block != nil; block, rest = pem.Decode(rest) {
		if block.Type != "CERTIFICATE" {
			continue
		}
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return fmt.Errorf("parse certificate %d: %w", n+1, err)
		}
		pool.AddCert(cert)
		n++
	}
	if n == 0 {
		return ErrNoCertsFound
	}
	return nil
}

// ClientConfig returns the TLS config cligate-cli dials with.
func ClientConfig(caFile string, insecureSkipVerify bool) (*tls.Config, error) {
	roots, err := LoadRoots(caFile)
	if err != nil {
		return nil, err
	}
	return &tls.Config{
		RootCAs:            roots,
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: insecureSkipVerify, //nolint:gosec // operator opt-in for local testing
	}, nil
}
