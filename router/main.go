package router

import (
	"crypto/rsa"
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/prefeitura-digital/beneficios-api/config"
	"github.com/prefeitura-digital/beneficios-api/handlers"
	auth_handlers "github.com/prefeitura-digital/beneficios-api/handlers/auth"
	"github.com/prefeitura-digital/beneficios-api/services"
	"github.com/prefeitura-digital/beneficios-api/utils/auth"
	"github.com/prefeitura-digital/beneficios-api/utils/cache"
	"github.com/prefeitura-digital/beneficios-api/utils/middleware"
	"gorm.io/gorm"
)

// Services groups the long-lived services the app wires into the
// cleanup scheduler after routing is set up.
type Services struct {
	Blacklist *services.BlacklistService
	Tokens    *services.TokenService
	Resets    *services.PasswordResetService
}

// SetupRoutes wires the auth surface onto the Fiber app
func SetupRoutes(app *fiber.App, db *gorm.DB, getEnv *config.EnviornmentVariable) (*Services, error) {
	key, err := loadSigningKey(getEnv)
	if err != nil {
		return nil, err
	}

	issuer, err := auth.NewTokenIssuer(auth.IssuerConfig{
		PrivateKey:    key,
		AccessExpiry:  getEnv.ACCESS_TOKEN_TTL,
		RefreshExpiry: getEnv.REFRESH_TOKEN_TTL,
		Issuer:        getEnv.JWT_ISSUER,
	})
	if err != nil {
		return nil, err
	}

	// Redis backs the permission resolution cache and login throttling.
	// Both degrade gracefully when it is unavailable.
	redisCache, err := cache.NewRedisCache(getEnv.REDIS_URL)
	if err != nil {
		log.Printf("Warning: Failed to connect to Redis: %v. Resolution cache and login throttling disabled.", err)
		redisCache = nil
	}

	audit := services.NewLogAuditLogger()
	blacklist := services.NewBlacklistService(db)

	var resolutionCache services.ResolutionCache
	if redisCache != nil {
		resolutionCache = redisCache
	}
	permissions := services.NewPermissionService(db, resolutionCache, getEnv.PERMISSION_CACHE_TTL)

	tokens := services.NewTokenService(db, issuer, permissions, blacklist, audit)

	mailer := services.NewEmailService(services.SMTPConfig{
		Host:     getEnv.SMTP_HOST,
		Port:     getEnv.SMTP_PORT,
		Username: getEnv.SMTP_USERNAME,
		Password: getEnv.SMTP_PASSWORD,
		From:     getEnv.SMTP_FROM,
		AppURL:   getEnv.APP_URL,
	})
	resets := services.NewPasswordResetService(db, mailer, tokens, audit, services.ResetConfig{
		TokenExpiry:        getEnv.RESET_TOKEN_TTL,
		MaxAttempts:        getEnv.RESET_MAX_ATTEMPTS,
		MaxRequestsPerHour: getEnv.RESET_MAX_PER_HOUR,
		UsedRetention:      services.DefaultResetConfig().UsedRetention,
	})

	var throttle *middleware.LoginThrottle
	if redisCache != nil {
		throttle = middleware.NewLoginThrottle(redisCache)
	}

	authMiddleware := middleware.NewAuthMiddleware(issuer, blacklist)
	authHandler := auth_handlers.NewAuthHandler(tokens, resets, blacklist, throttle)
	healthHandler := handlers.NewHealthHandler(db)

	app.Get("/health", healthHandler.Check)

	api := app.Group("/api/v1")

	authGroup := api.Group("/auth")
	if throttle != nil {
		authGroup.Post("/login", throttle.CheckLocked(), authHandler.Login)
	} else {
		authGroup.Post("/login", authHandler.Login)
	}
	authGroup.Post("/refresh", authHandler.Refresh)
	authGroup.Post("/logout", authMiddleware.Required(), authHandler.Logout)
	authGroup.Post("/logout-all", authMiddleware.Required(), authHandler.LogoutAll)
	authGroup.Post("/forgot-password", authHandler.ForgotPassword)
	authGroup.Post("/validate-reset-token", authHandler.ValidateResetToken)
	authGroup.Post("/reset-password", authHandler.ResetPassword)

	return &Services{Blacklist: blacklist, Tokens: tokens, Resets: resets}, nil
}

// loadSigningKey loads the configured RSA key pair. Without a key file
// an ephemeral dev pair is generated; credentials then die with the
// process, which is unacceptable in production but fine locally.
func loadSigningKey(getEnv *config.EnviornmentVariable) (*rsa.PrivateKey, error) {
	if getEnv.JWT_PRIVATE_KEY_FILE != "" {
		return auth.LoadPrivateKeyFile(getEnv.JWT_PRIVATE_KEY_FILE)
	}

	if getEnv.GO_ENV == "production" {
		return nil, auth.ErrNoPrivateKey
	}

	log.Println("Warning: JWT_PRIVATE_KEY_FILE not set, generating an ephemeral signing key")
	return auth.GenerateDevKey(2048)
}
