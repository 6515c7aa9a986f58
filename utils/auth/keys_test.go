package auth

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestPrivateKeyPEMRoundTrip(t *testing.T) {
	key, err := GenerateDevKey(2048)
	if err != nil {
		t.Fatalf("key generation failed: %v", err)
	}

	encoded := EncodePrivateKeyPEM(key)
	loaded, err := LoadPrivateKeyPEM(encoded)
	if err != nil {
		t.Fatalf("loading encoded key failed: %v", err)
	}
	if loaded.N.Cmp(key.N) != 0 {
		t.Error("loaded key differs from the generated one")
	}
}

func TestLoadPrivateKeyFile(t *testing.T) {
	key, err := GenerateDevKey(2048)
	if err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(t.TempDir(), "signing.pem")
	if err := os.WriteFile(path, EncodePrivateKeyPEM(key), 0o600); err != nil {
		t.Fatal(err)
	}

	loaded, err := LoadPrivateKeyFile(path)
	if err != nil {
		t.Fatalf("loading key file failed: %v", err)
	}
	if loaded.N.Cmp(key.N) != 0 {
		t.Error("loaded key differs from the written one")
	}

	if _, err := LoadPrivateKeyFile(filepath.Join(t.TempDir(), "missing.pem")); err == nil {
		t.Error("expected an error for a missing key file")
	}
}

func TestLoadPrivateKeyPEMRejectsGarbage(t *testing.T) {
	if _, err := LoadPrivateKeyPEM([]byte("not a key")); !errors.Is(err, ErrInvalidKeyPEM) {
		t.Errorf("expected ErrInvalidKeyPEM, got %v", err)
	}
}

func TestOpaqueTokenGeneration(t *testing.T) {
	token, hash, err := GenerateOpaqueToken()
	if err != nil {
		t.Fatalf("generation failed: %v", err)
	}
	if len(token) != refreshTokenBytes*2 {
		t.Errorf("expected %d hex chars, got %d", refreshTokenBytes*2, len(token))
	}
	if hash != HashOpaqueToken(token) {
		t.Error("returned hash does not match the token digest")
	}
	if token == hash {
		t.Error("token and stored digest must differ")
	}

	other, _, err := GenerateOpaqueToken()
	if err != nil {
		t.Fatal(err)
	}
	if token == other {
		t.Error("consecutive tokens collided")
	}
}

func TestOpaqueTokenEqual(t *testing.T) {
	token, hash, err := GenerateOpaqueToken()
	if err != nil {
		t.Fatal(err)
	}
	if !OpaqueTokenEqual(token, hash) {
		t.Error("matching token rejected")
	}
	if OpaqueTokenEqual("outro-valor", hash) {
		t.Error("non-matching token accepted")
	}
}
