// FILE: logship/src/internal/testutil/credential.go
package testutil

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"testing"

	"github.com/lixenwraith/log"
)

const (
	TestProjectID   = "test-project"
	TestClientEmail = "shipper@test-project.iam.gserviceaccount.com"
	TestKeyID       = "0123456789abcdef"
)

// NewLogger returns an uninitialised logger as the package tests use.
func NewLogger() *log.Logger {
	return log.NewLogger()
}

// NewRSAKeyPEM generates a throwaway RSA key in PKCS#8 PEM form.
func NewRSAKeyPEM(t testing.TB) string {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate rsa key: %v", err)
	}
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		t.Fatalf("marshal rsa key: %v", err)
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}))
}

// NewECKeyPEM generates a throwaway P-256 key in SEC1 PEM form.
func NewECKeyPEM(t testing.TB) string {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate ec key: %v", err)
	}
	der, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		t.Fatalf("marshal ec key: %v", err)
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: der}))
}

// CredentialJSON renders a service-account key file pointing at tokenURI.
func CredentialJSON(t testing.TB, keyPEM, tokenURI string) []byte {
	t.Helper()
	data, err := json.Marshal(map[string]string{
		"type":           "service_account",
		"project_id":     TestProjectID,
		"private_key_id": TestKeyID,
		"private_key":    keyPEM,
		"client_email":   TestClientEmail,
		"client_id":      "1234567890",
		"auth_uri":       "https://accounts.google.com/o/oauth2/auth",
		"token_uri":      tokenURI,
	})
	if err != nil {
		t.Fatalf("marshal credential: %v", err)
	}
	return data
}
