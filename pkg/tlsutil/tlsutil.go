// Package tlsutil provides TLS configuration loading for the connection upgrade path.
package tlsutil

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"

	"github.com/c360/natswire/errors"
)

// Config holds client-side TLS settings. The connection state machine
// upgrades the transport before any protocol bytes are exchanged whenever
// TLS is required by configuration or advertised by the server.
type Config struct {
	// CertFile and KeyFile provide a client certificate for servers that
	// verify clients. Both must be set together.
	CertFile string `yaml:"cert_file" json:"cert_file,omitempty"`
	KeyFile  string `yaml:"key_file" json:"key_file,omitempty"`

	// CAFiles are additional trusted CAs. The system CA bundle is always
	// used first.
	CAFiles []string `yaml:"ca_files" json:"ca_files,omitempty"`

	// MinVersion is "1.2" (default) or "1.3".
	MinVersion string `yaml:"min_version" json:"min_version,omitempty"`

	// InsecureSkipVerify disables server certificate verification.
	// DEV/TEST ONLY.
	InsecureSkipVerify bool `yaml:"insecure_skip_verify" json:"insecure_skip_verify,omitempty"`
}

// Load creates a *tls.Config from cfg, suitable for upgrading a client
// connection. ServerName is left empty; the dialer fills it in from the
// endpoint being contacted.
func Load(cfg Config) (*tls.Config, error) {
	tlsConfig := &tls.Config{
		MinVersion: parseTLSVersion(cfg.MinVersion),
	}

	rootCAs, err := x509.SystemCertPool()
	if err != nil {
		// System pool unavailable (some minimal containers); fall back
		// to the configured CAs only.
		rootCAs = x509.NewCertPool()
	}
	for _, caFile := range cfg.CAFiles {
		caPEM, err := os.ReadFile(caFile)
		if err != nil {
			return nil, errors.WrapFatal(err, "tlsutil", "Load", fmt.Sprintf("read CA file %s", caFile))
		}
		if !rootCAs.AppendCertsFromPEM(caPEM) {
			return nil, errors.WrapFatal(
				fmt.Errorf("invalid PEM data"),
				"tlsutil", "Load",
				fmt.Sprintf("parse CA certificate from %s", caFile),
			)
		}
	}
	tlsConfig.RootCAs = rootCAs

	if cfg.CertFile != "" || cfg.KeyFile != "" {
		if cfg.CertFile == "" || cfg.KeyFile == "" {
			return nil, errors.WrapInvalid(
				fmt.Errorf("cert_file and key_file must be set together"),
				"tlsutil", "Load", "load client certificate")
		}
		cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
		if err != nil {
			return nil, errors.WrapFatal(err, "tlsutil", "Load", "load client certificate")
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}

	// Intentional via config; operators know the security implications.
	if cfg.InsecureSkipVerify {
		tlsConfig.InsecureSkipVerify = true
	}

	return tlsConfig, nil
}

// parseTLSVersion maps a config string to a tls version constant.
// Unknown values default to TLS 1.2.
func parseTLSVersion(v string) uint16 {
	switch v {
	case "1.3":
		return tls.VersionTLS13
	default:
		return tls.VersionTLS12
	}
}
