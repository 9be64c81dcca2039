// FILE: logship/src/internal/auth/credential.go
package auth

import (
	"crypto/ecdsa"
	"encoding/json"
	"fmt"

	"logship/src/internal/core"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultTokenURI is used when a key file omits token_uri.
const DefaultTokenURI = "https://oauth2.googleapis.com/token"

// Credential is parsed service-account key material. It is read-only after
// ParseCredential returns.
type Credential struct {
	Type         string
	ProjectID    string
	PrivateKeyID string
	ClientEmail  string
	ClientID     string
	TokenURI     string

	key    any
	method jwt.SigningMethod
}

// credentialFile mirrors the service-account key JSON layout.
type credentialFile struct {
	Type           string `json:"type"`
	ProjectID      string `json:"project_id"`
	PrivateKeyID   string `json:"private_key_id"`
	PrivateKey     string `json:"private_key"`
	ClientEmail    string `json:"client_email"`
	ClientID       string `json:"client_id"`
	TokenURI       string `json:"token_uri"`
	UniverseDomain string `json:"universe_domain"`
}

// ParseCredential decodes a service-account key file. Any malformed or
// missing field is reported as a *core.ConfigError.
func ParseCredential(data []byte) (*Credential, error) {
	if len(data) == 0 {
		return nil, core.NewConfigError("credential", "empty key material", nil)
	}

	var f credentialFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, core.NewConfigError("credential", "not a valid JSON key file", err)
	}

	if f.Type != "" && f.Type != "service_account" {
		return nil, core.NewConfigError("credential.type",
			fmt.Sprintf("unsupported credential type %q", f.Type), nil)
	}
	if f.ClientEmail == "" {
		return nil, core.NewConfigError("credential.client_email", "missing", nil)
	}
	if f.PrivateKey == "" {
		return nil, core.NewConfigError("credential.private_key", "missing", nil)
	}

	key, method, err := parsePrivateKey([]byte(f.PrivateKey))
	if err != nil {
		return nil, core.NewConfigError("credential.private_key", "cannot decode PEM key", err)
	}

	tokenURI := f.TokenURI
	if tokenURI == "" {
		tokenURI = DefaultTokenURI
	}

	return &Credential{
		Type:         f.Type,
		ProjectID:    f.ProjectID,
		PrivateKeyID: f.PrivateKeyID,
		ClientEmail:  f.ClientEmail,
		ClientID:     f.ClientID,
		TokenURI:     tokenURI,
		key:          key,
		method:       method,
	}, nil
}

// SigningAlgorithm returns the JWT alg used for assertions.
func (c *Credential) SigningAlgorithm() string {
	return c.method.Alg()
}

// parsePrivateKey accepts RSA (PKCS#1 or PKCS#8) and EC (SEC1 or PKCS#8)
// keys in PEM form.
func parsePrivateKey(pemBytes []byte) (any, jwt.SigningMethod, error) {
	rsaKey, rsaErr := jwt.ParseRSAPrivateKeyFromPEM(pemBytes)
	if rsaErr == nil {
		return rsaKey, jwt.SigningMethodRS256, nil
	}

	ecKey, ecErr := jwt.ParseECPrivateKeyFromPEM(pemBytes)
	if ecErr != nil {
		return nil, nil, fmt.Errorf("not an RSA key (%v) nor an EC key (%v)", rsaErr, ecErr)
	}

	method, err := ecMethod(ecKey)
	if err != nil {
		return nil, nil, err
	}
	return ecKey, method, nil
}

func ecMethod(key *ecdsa.PrivateKey) (jwt.SigningMethod, error) {
	switch key.Curve.Params().BitSize {
	case 256:
		return jwt.SigningMethodES256, nil
	case 384:
		return jwt.SigningMethodES384, nil
	case 521:
		return jwt.SigningMethodES512, nil
	default:
		return nil, fmt.Errorf("unsupported EC curve %s", key.Curve.Params().Name)
	}
}
