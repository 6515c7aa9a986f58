package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"os"
)

var (
	ErrNoPrivateKey  = errors.New("no signing key configured")
	ErrInvalidKeyPEM = errors.New("invalid PEM key material")
)

// LoadPrivateKeyPEM parses an RSA private key from PEM bytes
// (PKCS#1 or PKCS#8).
func LoadPrivateKeyPEM(data []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, ErrInvalidKeyPEM
	}

	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}

	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, ErrInvalidKeyPEM
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, ErrInvalidKeyPEM
	}
	return key, nil
}

// LoadPrivateKeyFile reads and parses an RSA private key from a PEM file
func LoadPrivateKeyFile(path string) (*rsa.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return LoadPrivateKeyPEM(data)
}

// GenerateDevKey creates an ephemeral RSA key pair. Used for local
// development and tests when no key file is configured; production
// deployments must supply persistent key material so access credentials
// survive process restarts.
func GenerateDevKey(bits int) (*rsa.PrivateKey, error) {
	if bits < 2048 {
		bits = 2048
	}
	return rsa.GenerateKey(rand.Reader, bits)
}

// EncodePrivateKeyPEM serializes a private key to PKCS#1 PEM, for dev
// tooling that wants to persist a generated key.
func EncodePrivateKeyPEM(key *rsa.PrivateKey) []byte {
	return pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	})
}
