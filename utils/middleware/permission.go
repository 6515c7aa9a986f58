package middleware

import (
	"context"
	"log"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/prefeitura-digital/beneficios-api/model"
	"github.com/prefeitura-digital/beneficios-api/utils/response"
)

// PermissionChecker answers scoped permission questions. Implemented by
// services.PermissionService; protected handlers call it explicitly
// rather than trusting the claims embedded in the credential, which may
// be stale within the access TTL.
type PermissionChecker interface {
	HasPermission(ctx context.Context, userID uint, name string, scopeType string, scopeID *uint) (bool, error)
}

// RequirePermission guards a route with a GLOBAL-scope permission check
func RequirePermission(checker PermissionChecker, permission string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, ok := GetUserID(c)
		if !ok {
			return response.Unauthorized(c, "Not authenticated")
		}

		allowed, err := checker.HasPermission(c.UserContext(), userID, permission, model.ScopeGlobal, nil)
		if err != nil {
			log.Printf("[AUTHZ] permission check failed for user %d on %s: %v", userID, permission, err)
			return response.InternalServerError(c, "Failed to check permissions")
		}
		if !allowed {
			return response.Forbidden(c, "Insufficient permissions")
		}

		return c.Next()
	}
}

// RequireUnitPermission guards a route with a UNIT-scope permission
// check, reading the unit id from the named route parameter. A missing
// or malformed unit id denies the request.
func RequireUnitPermission(checker PermissionChecker, permission, param string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, ok := GetUserID(c)
		if !ok {
			return response.Unauthorized(c, "Not authenticated")
		}

		raw := c.Params(param)
		parsed, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			return response.BadRequest(c, "Invalid unit id")
		}
		unitID := uint(parsed)

		allowed, err := checker.HasPermission(c.UserContext(), userID, permission, model.ScopeUnit, &unitID)
		if err != nil {
			log.Printf("[AUTHZ] permission check failed for user %d on %s: %v", userID, permission, err)
			return response.InternalServerError(c, "Failed to check permissions")
		}
		if !allowed {
			return response.Forbidden(c, "Insufficient permissions")
		}

		return c.Next()
	}
}
