package middleware

import (
	"log"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/prefeitura-digital/beneficios-api/services"
	"github.com/prefeitura-digital/beneficios-api/utils/auth"
	"github.com/prefeitura-digital/beneficios-api/utils/response"
)

// AuthMiddleware validates access credentials at the edge: RS256
// signature and expiry via the public key, then a blacklist lookup.
// The blacklist check fails closed - a storage failure denies the
// request rather than accepting a possibly revoked credential.
type AuthMiddleware struct {
	issuer    *auth.TokenIssuer
	blacklist *services.BlacklistService
}

// NewAuthMiddleware creates a new auth middleware
func NewAuthMiddleware(issuer *auth.TokenIssuer, blacklist *services.BlacklistService) *AuthMiddleware {
	return &AuthMiddleware{
		issuer:    issuer,
		blacklist: blacklist,
	}
}

// Required is middleware that requires a valid access credential
func (m *AuthMiddleware) Required() fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return response.Unauthorized(c, "Missing authorization token")
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			return response.Unauthorized(c, "Invalid authorization format")
		}

		claims, err := m.issuer.VerifyAccessToken(parts[1])
		if err != nil {
			if err == auth.ErrExpiredToken {
				return response.Unauthorized(c, "Token has expired")
			}
			return response.Unauthorized(c, "Invalid token")
		}

		// Fail closed: this credential was not minted in this request,
		// so an unreadable blacklist means deny.
		blacklisted, err := m.blacklist.IsBlacklisted(c.UserContext(), claims.ID)
		if err != nil {
			log.Printf("[AUTH] blacklist check failed for jti %s: %v", claims.ID, err)
			return response.InternalServerError(c, "Failed to check token status")
		}
		if blacklisted {
			return response.Unauthorized(c, "Token has been revoked")
		}

		if claims.IssuedAt != nil {
			invalidated, err := m.blacklist.IsUserInvalidated(c.UserContext(), claims.UserID, claims.IssuedAt.Time)
			if err != nil {
				log.Printf("[AUTH] user invalidation check failed for user %d: %v", claims.UserID, err)
				return response.InternalServerError(c, "Failed to check token status")
			}
			if invalidated {
				return response.Unauthorized(c, "Token has been revoked")
			}
		}

		c.Locals("user_id", claims.UserID)
		c.Locals("username", claims.Username)
		c.Locals("roles", claims.Roles)
		c.Locals("claims", claims)
		c.Locals("token_jti", claims.ID)

		return c.Next()
	}
}

// GetUserID extracts the authenticated user id from the request context
func GetUserID(c *fiber.Ctx) (uint, bool) {
	id, ok := c.Locals("user_id").(uint)
	return id, ok
}

// GetClaims extracts the verified access claims from the request context
func GetClaims(c *fiber.Ctx) (*auth.AccessClaims, bool) {
	claims, ok := c.Locals("claims").(*auth.AccessClaims)
	return claims, ok
}

// GetTokenJTI extracts the access credential identifier from the request context
func GetTokenJTI(c *fiber.Ctx) (string, bool) {
	jti, ok := c.Locals("token_jti").(string)
	return jti, ok
}
