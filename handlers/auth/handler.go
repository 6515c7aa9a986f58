package auth

import (
	"github.com/prefeitura-digital/beneficios-api/services"
	"github.com/prefeitura-digital/beneficios-api/utils/middleware"
	"github.com/prefeitura-digital/beneficios-api/utils/validation"
)

// AuthHandler exposes the credential lifecycle over HTTP
type AuthHandler struct {
	tokens    *services.TokenService
	resets    *services.PasswordResetService
	blacklist *services.BlacklistService
	throttle  *middleware.LoginThrottle
	validator *validation.Validator
}

// NewAuthHandler creates a new auth handler. throttle may be nil when
// Redis is unavailable; login then runs without lockouts.
func NewAuthHandler(tokens *services.TokenService, resets *services.PasswordResetService, blacklist *services.BlacklistService, throttle *middleware.LoginThrottle) *AuthHandler {
	return &AuthHandler{
		tokens:    tokens,
		resets:    resets,
		blacklist: blacklist,
		throttle:  throttle,
		validator: validation.NewValidator(),
	}
}
