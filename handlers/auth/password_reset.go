package auth

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/prefeitura-digital/beneficios-api/utils/apperror"
	"github.com/prefeitura-digital/beneficios-api/utils/response"
)

// genericResetAck is returned for every reset request, existing account
// or not, so responses cannot confirm which emails are registered.
const genericResetAck = "If the email exists, a password reset link will be sent"

// ForgotPasswordRequest represents a password reset request
type ForgotPasswordRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// ValidateResetTokenRequest probes a reset token without consuming it
type ValidateResetTokenRequest struct {
	Token string `json:"token" validate:"required"`
}

// ResetPasswordRequest represents a password reset with token
type ResetPasswordRequest struct {
	Token           string `json:"token" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required,min=8"`
	ConfirmPassword string `json:"confirm_password" validate:"required,eqfield=NewPassword"`
}

// ForgotPassword handles a password reset request
func (h *AuthHandler) ForgotPassword(c *fiber.Ctx) error {
	var req ForgotPasswordRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if err := h.validator.ValidateStruct(&req); err != nil {
		return response.BadRequest(c, "A valid email is required")
	}

	err := h.resets.RequestReset(c.UserContext(), req.Email, c.IP(), c.Get("User-Agent"))
	if err != nil {
		var appErr *apperror.Error
		if errors.As(err, &appErr) && appErr.Kind == apperror.KindRateLimit {
			return response.FromError(c, err)
		}
		// Storage failures still get the generic ack shape after logging
		// upstream; a distinguishable error here would leak existence.
		return response.SuccessWithMessage(c, genericResetAck, nil)
	}

	return response.SuccessWithMessage(c, genericResetAck, nil)
}

// ValidateResetToken reports whether a reset token is still usable
func (h *AuthHandler) ValidateResetToken(c *fiber.Ctx) error {
	var req ValidateResetTokenRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if req.Token == "" {
		return response.BadRequest(c, "Token is required")
	}

	result, err := h.resets.Validate(c.UserContext(), req.Token)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, result)
}

// ResetPassword consumes a reset token and sets the new password
func (h *AuthHandler) ResetPassword(c *fiber.Ctx) error {
	var req ResetPasswordRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if req.Token == "" || req.NewPassword == "" {
		return response.BadRequest(c, "Token and new password are required")
	}

	err := h.resets.Reset(c.UserContext(), req.Token, req.NewPassword, req.ConfirmPassword, c.IP(), c.Get("User-Agent"))
	if err != nil {
		return response.FromError(c, err)
	}

	return response.SuccessWithMessage(c, "Password reset successfully", nil)
}
