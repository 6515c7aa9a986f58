package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

// refreshTokenBytes gives 256 bits of entropy per opaque credential
const refreshTokenBytes = 32

// GenerateOpaqueToken returns a random opaque token value and the SHA-256
// hex comparand stored in its place. The raw value goes to the client
// only; lookups hash the presented value and match on the digest.
func GenerateOpaqueToken() (token string, tokenHash string, err error) {
	buf := make([]byte, refreshTokenBytes)
	if _, err = rand.Read(buf); err != nil {
		return "", "", err
	}
	token = hex.EncodeToString(buf)
	return token, HashOpaqueToken(token), nil
}

// HashOpaqueToken computes the stored digest of an opaque token value
func HashOpaqueToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// OpaqueTokenEqual compares a presented value against a stored digest in
// constant time.
func OpaqueTokenEqual(token, storedHash string) bool {
	digest := HashOpaqueToken(token)
	return subtle.ConstantTimeCompare([]byte(digest), []byte(storedHash)) == 1
}
