package tls

import (
	"crypto/tls"
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/crypto/acme/autocert"

	"trust-service/internal/config"
	"trust-service/internal/util"
)

// TLSManager picks the server certificate: ACME when AutoCert is on, the
// configured key pair otherwise, and a self-signed certificate outside
// production as the last resort.
type TLSManager struct {
	cfg        config.ServerConfig
	production bool
	autoCert   *autocert.Manager
	selfSigned *tls.Certificate
	selfSignMu sync.Mutex
}

func NewTLSManager(cfg config.ServerConfig, production bool) (*TLSManager, error) {
	m := &TLSManager{cfg: cfg, production: production}

	if cfg.AutoCert {
		if err := os.MkdirAll(cfg.AutoCertDir, 0o700); err != nil {
			return nil, fmt.Errorf("create autocert directory: %w", err)
		}
		m.autoCert = &autocert.Manager{
			Prompt:     autocert.AcceptTOS,
			HostPolicy: autocert.HostWhitelist(cfg.Domain),
			Cache:      autocert.DirCache(cfg.AutoCertDir),
			Email:      cfg.Email,
		}
		util.Info("AutoCert configured",
			zap.String("domain", cfg.Domain),
			zap.String("cache_dir", cfg.AutoCertDir))
	}
	return m, nil
}

func (m *TLSManager) GetCertificate(hello *tls.ClientHelloInfo) (*tls.Certificate, error) {
	if m.autoCert != nil {
		cert, err := m.autoCert.GetCertificate(hello)
		if err == nil {
			return cert, nil
		}
		util.Warn("AutoCert certificate unavailable", zap.Error(err))
	}

	if m.cfg.CertFile != "" && m.cfg.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(m.cfg.CertFile, m.cfg.KeyFile)
		if err == nil {
			return &cert, nil
		}
		util.Warn("Configured key pair unavailable", zap.Error(err))
	}

	if m.production {
		return nil, fmt.Errorf("no certificate available for %q", hello.ServerName)
	}
	return m.devCertificate()
}

func (m *TLSManager) devCertificate() (*tls.Certificate, error) {
	m.selfSignMu.Lock()
	defer m.selfSignMu.Unlock()
	if m.selfSigned != nil {
		return m.selfSigned, nil
	}

	hosts := []string{m.cfg.Domain, "localhost", "127.0.0.1", "::1"}
	cert, err := NewDevCertGenerator(m.cfg.AutoCertDir).GenerateCert(hosts)
	if err != nil {
		return nil, fmt.Errorf("failed to generate self-signed certificate: %w", err)
	}
	m.selfSigned = &cert
	return m.selfSigned, nil
}

func (m *TLSManager) GetTLSConfig() *tls.Config {
	return &tls.Config{
		GetCertificate: m.GetCertificate,
		NextProtos:     []string{"h2", "http/1.1"},
		MinVersion:     tls.VersionTLS12,
		CurvePreferences: []tls.CurveID{
			tls.X25519,
			tls.CurveP256,
		},
		CipherSuites: []uint16{
			tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305,
			tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305,
			tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
			tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
		},
	}
}

func (m *TLSManager) GetAutocertManager() *autocert.Manager {
	return m.autoCert
}
