package auth

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prefeitura-digital/beneficios-api/utils/apperror"
	"github.com/prefeitura-digital/beneficios-api/utils/response"
)

// LoginRequest represents a login request
type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// LoginResponse represents a successful login response
type LoginResponse struct {
	User         UserResponse `json:"user"`
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token"`
	ExpiresIn    int          `json:"expires_in"` // in seconds
}

// UserResponse is the identity subset returned to authenticated callers
type UserResponse struct {
	ID        uint      `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Roles     []string  `json:"roles"`
	UnidadeID *uint     `json:"unidade_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Login handles user login
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if err := h.validator.ValidateStruct(&req); err != nil {
		return response.BadRequest(c, "Username and password are required")
	}

	ip := c.IP()

	pair, err := h.tokens.Login(c.UserContext(), req.Username, req.Password, ip, c.Get("User-Agent"))
	if err != nil {
		if errors.Is(err, apperror.ErrInvalidCredentials) && h.throttle != nil {
			h.throttle.RecordFailure(c, ip)
		}
		return response.FromError(c, err)
	}

	if h.throttle != nil {
		h.throttle.RecordSuccess(c, ip)
	}

	user := pair.User
	res := LoginResponse{
		User: UserResponse{
			ID:        user.ID,
			Username:  user.Username,
			Email:     user.Email,
			Name:      user.Name,
			Roles:     user.RoleNames(),
			UnidadeID: user.UnidadeID,
			CreatedAt: user.CreatedAt,
		},
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		ExpiresIn:    int(time.Until(pair.AccessExpiresAt).Seconds()),
	}

	return response.Success(c, res)
}
