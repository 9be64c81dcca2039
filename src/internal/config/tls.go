// FILE: logship/src/internal/config/tls.go
package config

// TLSClientConfig configures TLS for the outbound write and token requests.
// Only needed for private endpoints or emulators; public endpoints verify
// against the system roots.
type TLSClientConfig struct {
	Enabled bool `toml:"enabled"`

	// CA bundle to trust for the server certificate
	ServerCAFile string `toml:"server_ca_file"`

	// Client certificate for mTLS
	ClientCertFile string `toml:"client_cert_file"`
	ClientKeyFile  string `toml:"client_key_file"`

	// Expected server name, defaults to the URL host
	ServerName string `toml:"server_name"`

	InsecureSkipVerify bool `toml:"insecure_skip_verify"`

	// TLS version constraints
	MinVersion string `toml:"min_version"` // "TLS1.2", "TLS1.3"
	MaxVersion string `toml:"max_version"`

	// Comma-separated cipher suite names, Go defaults when empty
	CipherSuites string `toml:"cipher_suites"`
}
