package auth

import (
	"crypto/rsa"
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrInvalidToken  = errors.New("invalid token")
	ErrExpiredToken  = errors.New("token has expired")
	ErrInvalidClaims = errors.New("invalid token claims")
)

// IssuerConfig holds token issuer configuration. The private key signs;
// verification needs only the public half, so edge services can validate
// credentials without access to signing secrets.
type IssuerConfig struct {
	PrivateKey    *rsa.PrivateKey
	AccessExpiry  time.Duration
	RefreshExpiry time.Duration
	Issuer        string
}

// AccessClaims is the payload embedded in a signed access credential.
// Roles and permissions are resolved at issue time and may go stale
// within the access TTL; authorization-sensitive callers re-check against
// the permission resolver instead of trusting these hints.
type AccessClaims struct {
	UserID           uint              `json:"user_id"`
	Username         string            `json:"username"`
	Roles            []string          `json:"roles"`
	Permissions      []string          `json:"permissions,omitempty"`
	PermissionScopes map[string]string `json:"permissionScopes,omitempty"`
	UnidadeID        *uint             `json:"unidade_id,omitempty"`
	TokenType        string            `json:"token_type"` // "access"
	jwt.RegisteredClaims
}

// TokenIssuer mints and verifies signed access credentials (RS256)
type TokenIssuer struct {
	config IssuerConfig
	public *rsa.PublicKey
}

// NewTokenIssuer creates a new token issuer from loaded key material
func NewTokenIssuer(config IssuerConfig) (*TokenIssuer, error) {
	if config.PrivateKey == nil {
		return nil, ErrNoPrivateKey
	}
	return &TokenIssuer{
		config: config,
		public: &config.PrivateKey.PublicKey,
	}, nil
}

// PublicKey exposes the verification key for edge services
func (t *TokenIssuer) PublicKey() *rsa.PublicKey {
	return t.public
}

// AccessExpiry returns the configured access credential TTL
func (t *TokenIssuer) AccessExpiry() time.Duration {
	return t.config.AccessExpiry
}

// RefreshExpiry returns the configured refresh credential TTL
func (t *TokenIssuer) RefreshExpiry() time.Duration {
	return t.config.RefreshExpiry
}

// IssueAccessToken mints a signed access credential and returns the
// signed string together with its JTI for blacklist bookkeeping.
func (t *TokenIssuer) IssueAccessToken(userID uint, username string, roles []string, permissions []string, permissionScopes map[string]string, unidadeID *uint) (string, string, error) {
	now := time.Now()
	jti := uuid.New().String()

	claims := AccessClaims{
		UserID:           userID,
		Username:         username,
		Roles:            roles,
		Permissions:      permissions,
		PermissionScopes: permissionScopes,
		UnidadeID:        unidadeID,
		TokenType:        "access",
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			ExpiresAt: jwt.NewNumericDate(now.Add(t.config.AccessExpiry)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    t.config.Issuer,
			Subject:   strconv.FormatUint(uint64(userID), 10),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	signed, err := token.SignedString(t.config.PrivateKey)
	return signed, jti, err
}

// VerifyAccessToken validates signature and expiry and returns the claims.
// Blacklist membership is the caller's concern; this check is stateless.
func (t *TokenIssuer) VerifyAccessToken(tokenString string) (*AccessClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &AccessClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, ErrInvalidToken
		}
		return t.public, nil
	})

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*AccessClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidClaims
	}
	if claims.TokenType != "access" {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

// GetTokenExpiry returns the expiry of a token without verifying it,
// for blacklisting credentials that may already be expired.
func (t *TokenIssuer) GetTokenExpiry(tokenString string) (time.Time, error) {
	token, _, err := jwt.NewParser().ParseUnverified(tokenString, &AccessClaims{})
	if err != nil {
		return time.Time{}, ErrInvalidToken
	}
	claims, ok := token.Claims.(*AccessClaims)
	if !ok || claims.ExpiresAt == nil {
		return time.Time{}, ErrInvalidClaims
	}
	return claims.ExpiresAt.Time, nil
}
