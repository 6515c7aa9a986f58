package auth

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prefeitura-digital/beneficios-api/model"
	"github.com/prefeitura-digital/beneficios-api/utils/middleware"
	"github.com/prefeitura-digital/beneficios-api/utils/response"
)

// RefreshRequest represents a token refresh request
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// RefreshResponse represents a token refresh response
type RefreshResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
}

// LogoutRequest carries the refresh credential to revoke alongside the
// presented access credential
type LogoutRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// Refresh rotates a refresh credential for a fresh pair
func (h *AuthHandler) Refresh(c *fiber.Ctx) error {
	var req RefreshRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if req.RefreshToken == "" {
		return response.BadRequest(c, "Refresh token is required")
	}

	pair, err := h.tokens.Refresh(c.UserContext(), req.RefreshToken, c.IP(), c.Get("User-Agent"))
	if err != nil {
		return response.FromError(c, err)
	}

	res := RefreshResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		ExpiresIn:    int(time.Until(pair.AccessExpiresAt).Seconds()),
	}
	return response.Success(c, res)
}

// Logout revokes the presented refresh credential and blacklists the
// access credential used on this request
func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		return response.Unauthorized(c, "Not authenticated")
	}

	var req LogoutRequest
	_ = c.BodyParser(&req)

	if req.RefreshToken != "" {
		if err := h.tokens.RevokeRefreshToken(c.UserContext(), req.RefreshToken, model.RevokeReasonLogout, c.IP()); err != nil {
			return response.FromError(c, err)
		}
	}

	if claims, ok := middleware.GetClaims(c); ok && claims.ExpiresAt != nil {
		err := h.blacklist.Add(c.UserContext(), claims.ID, userID, model.TokenTypeAccess,
			claims.ExpiresAt.Time, "logout", c.IP(), c.Get("User-Agent"), nil)
		if err != nil {
			return response.FromError(c, err)
		}
	}

	return response.SuccessWithMessage(c, "Successfully logged out", nil)
}

// LogoutAll revokes every live session of the authenticated user
func (h *AuthHandler) LogoutAll(c *fiber.Ctx) error {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		return response.Unauthorized(c, "Not authenticated")
	}

	count, err := h.tokens.LogoutAll(c.UserContext(), userID, c.IP())
	if err != nil {
		return response.FromError(c, err)
	}

	// Also cut off outstanding access credentials; refresh revocation
	// alone lets them ride out their short TTL.
	if err := h.blacklist.InvalidateAllForUser(c.UserContext(), userID, model.TokenTypeAccess, "logout_all", c.IP()); err != nil {
		return response.FromError(c, err)
	}

	return response.Success(c, fiber.Map{"revoked_sessions": count})
}
