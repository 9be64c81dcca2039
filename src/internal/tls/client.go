// FILE: logship/src/internal/tls/client.go
package tls

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"strings"

	"logship/src/internal/config"

	"github.com/lixenwraith/log"
)

// ClientManager builds the TLS configuration shared by the token exchange and
// the write requests. A nil manager means the system defaults apply.
type ClientManager struct {
	config    *config.TLSClientConfig
	tlsConfig *tls.Config
	logger    *log.Logger
}

// NewClientManager returns nil, nil when TLS customisation is disabled.
func NewClientManager(cfg *config.TLSClientConfig, logger *log.Logger) (*ClientManager, error) {
	if cfg == nil || !cfg.Enabled {
		return nil, nil
	}

	tlsConfig := &tls.Config{
		MinVersion:         parseTLSVersion(cfg.MinVersion, tls.VersionTLS12),
		MaxVersion:         parseTLSVersion(cfg.MaxVersion, tls.VersionTLS13),
		ServerName:         cfg.ServerName,
		InsecureSkipVerify: cfg.InsecureSkipVerify,
	}
	if tlsConfig.MinVersion > tlsConfig.MaxVersion {
		return nil, fmt.Errorf("min_version %s is above max_version %s",
			tlsVersionString(tlsConfig.MinVersion), tlsVersionString(tlsConfig.MaxVersion))
	}
	if cfg.CipherSuites != "" {
		ids, unknown := parseCipherSuites(cfg.CipherSuites)
		if len(unknown) > 0 {
			logger.Warn("msg", "Ignoring unsupported cipher suites",
				"component", "tls",
				"suites", strings.Join(unknown, ","))
		}
		tlsConfig.CipherSuites = ids
	}

	cert, err := loadClientCertificate(cfg.ClientCertFile, cfg.ClientKeyFile)
	if err != nil {
		return nil, err
	}
	if cert != nil {
		tlsConfig.Certificates = []tls.Certificate{*cert}
	}

	roots, err := loadRootCAs(cfg.ServerCAFile)
	if err != nil {
		return nil, err
	}
	tlsConfig.RootCAs = roots

	if cfg.InsecureSkipVerify {
		logger.Warn("msg", "Server certificate verification disabled",
			"component", "tls")
	}
	logger.Info("msg", "Client TLS configured",
		"component", "tls",
		"has_client_cert", cert != nil,
		"has_server_ca", roots != nil,
		"min_version", tlsVersionString(tlsConfig.MinVersion),
		"server_name", cfg.ServerName)

	return &ClientManager{
		config:    cfg,
		tlsConfig: tlsConfig,
		logger:    logger,
	}, nil
}

// loadClientCertificate loads the mTLS key pair; both paths or neither.
func loadClientCertificate(certFile, keyFile string) (*tls.Certificate, error) {
	switch {
	case certFile == "" && keyFile == "":
		return nil, nil
	case certFile == "" || keyFile == "":
		return nil, fmt.Errorf("both client_cert_file and client_key_file must be provided for mTLS")
	}
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load client cert/key: %w", err)
	}
	return &cert, nil
}

// loadRootCAs reads a PEM bundle. An empty path keeps the system roots.
func loadRootCAs(caFile string) (*x509.CertPool, error) {
	if caFile == "" {
		return nil, nil
	}
	pemData, err := os.ReadFile(caFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read server CA file: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pemData) {
		return nil, fmt.Errorf("no certificates found in server CA file %s", caFile)
	}
	return pool, nil
}

// GetConfig returns a copy of the client TLS configuration, nil for defaults.
func (m *ClientManager) GetConfig() *tls.Config {
	if m == nil {
		return nil
	}
	return m.tlsConfig.Clone()
}

// GetStats describes the active client TLS settings.
func (m *ClientManager) GetStats() map[string]any {
	if m == nil {
		return map[string]any{"enabled": false}
	}
	return map[string]any{
		"enabled":              true,
		"min_version":          tlsVersionString(m.tlsConfig.MinVersion),
		"max_version":          tlsVersionString(m.tlsConfig.MaxVersion),
		"cipher_suites":        len(m.tlsConfig.CipherSuites),
		"has_client_cert":      len(m.tlsConfig.Certificates) > 0,
		"has_server_ca":        m.tlsConfig.RootCAs != nil,
		"insecure_skip_verify": m.config.InsecureSkipVerify,
	}
}
