package server

import (
	"crypto/tls"
	"fmt"

	"github.com/Xatter/shellies-ng/internal/logging"
	"go.uber.org/zap"
)

// NewTLSConfig creates a TLS configuration for the outbound listener from a
// PEM certificate and key. Shelly devices support TLS 1.2 and 1.3.
func NewTLSConfig(certPath, keyPath string) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(certPath, keyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load TLS certificate: %w", err)
	}

	logging.Info("TLS configuration created from files",
		zap.String("cert", certPath),
		zap.String("key", keyPath),
	)

	return buildTLSConfig(cert), nil
}

// NewTLSConfigFromMemory creates a TLS configuration from PEM-encoded data,
// such as a certificate passed through the environment.
func NewTLSConfigFromMemory(certPEM, keyPEM []byte) (*tls.Config, error) {
	cert, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return nil, fmt.Errorf("failed to load TLS certificate from memory: %w", err)
	}

	logging.Info("TLS configuration created from inline PEM")

	return buildTLSConfig(cert), nil
}

// loadTLSConfig picks the certificate source of cfg. It returns nil for a
// plain ws:// listener.
func loadTLSConfig(cfg *Config) (*tls.Config, error) {
	files := cfg.CertPath != "" || cfg.KeyPath != ""
	inline := len(cfg.CertPEM) > 0 || len(cfg.KeyPEM) > 0

	switch {
	case files && inline:
		return nil, fmt.Errorf("TLS certificate given both as files and as inline PEM")
	case files:
		if cfg.CertPath == "" || cfg.KeyPath == "" {
			return nil, fmt.Errorf("both cert and key must be provided together, or neither")
		}
		return NewTLSConfig(cfg.CertPath, cfg.KeyPath)
	case inline:
		if len(cfg.CertPEM) == 0 || len(cfg.KeyPEM) == 0 {
			return nil, fmt.Errorf("both cert and key PEM must be provided together, or neither")
		}
		return NewTLSConfigFromMemory(cfg.CertPEM, cfg.KeyPEM)
	}
	return nil, nil
}

func buildTLSConfig(cert tls.Certificate) *tls.Config {
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
		NextProtos:   []string{"http/1.1"},
	}
}
