package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// LoadENV loads environment variables from .env unless GO_ENV says
// otherwise (production supplies real env vars).
func LoadENV() error {
	goEnv := os.Getenv("GO_ENV")

	if goEnv == "" || goEnv == "development" {
		err := godotenv.Load()
		if err != nil {
			return err
		}
	}

	return nil
}

type EnviornmentVariable struct {
	// All variables
	GO_ENV       string
	DB_USER_NAME string
	DB_PASSWORD  string
	DB_NAME      string
	DB_HOST      string
	DB_PORT      string
	DB_SSL_MODE  string
	PORT         int
	// JWT Configuration
	JWT_PRIVATE_KEY_FILE string
	JWT_ISSUER           string
	ACCESS_TOKEN_TTL     time.Duration
	REFRESH_TOKEN_TTL    time.Duration
	// Redis Configuration
	REDIS_URL string
	// SMTP Configuration
	SMTP_HOST     string
	SMTP_PORT     int
	SMTP_USERNAME string
	SMTP_PASSWORD string
	SMTP_FROM     string
	APP_URL       string
	// Password reset limits
	RESET_TOKEN_TTL      time.Duration
	RESET_MAX_ATTEMPTS   int
	RESET_MAX_PER_HOUR   int
	PERMISSION_CACHE_TTL time.Duration
}

func Get() (*EnviornmentVariable, error) {

	port, err := strconv.Atoi(os.Getenv("PORT"))
	if err != nil {
		port = 8080
	}

	// Database defaults
	dbHost := os.Getenv("DB_HOST")
	if dbHost == "" {
		dbHost = "localhost"
	}

	dbPort := os.Getenv("DB_PORT")
	if dbPort == "" {
		dbPort = "5432"
	}

	envVariables := &EnviornmentVariable{
		GO_ENV:       os.Getenv("GO_ENV"),
		DB_USER_NAME: os.Getenv("DB_USER_NAME"),
		DB_PASSWORD:  os.Getenv("DB_PASSWORD"),
		DB_NAME:      os.Getenv("DB_NAME"),
		DB_HOST:      dbHost,
		DB_PORT:      dbPort,
		DB_SSL_MODE:  os.Getenv("DB_SSL_MODE"),
		PORT:         port,
		// JWT
		JWT_PRIVATE_KEY_FILE: os.Getenv("JWT_PRIVATE_KEY_FILE"),
		JWT_ISSUER:           getEnvOrDefault("JWT_ISSUER", "beneficios-api"),
		ACCESS_TOKEN_TTL:     getDurationMinutes("ACCESS_TOKEN_TTL_MINUTES", 30),
		REFRESH_TOKEN_TTL:    getDurationHours("REFRESH_TOKEN_TTL_HOURS", 7*24),
		// Redis
		REDIS_URL: getEnvOrDefault("REDIS_URL", "redis://localhost:6379/0"),
		// SMTP
		SMTP_HOST:     getEnvOrDefault("SMTP_HOST", "smtp.gmail.com"),
		SMTP_PORT:     getEnvInt("SMTP_PORT", 587),
		SMTP_USERNAME: os.Getenv("SMTP_USERNAME"),
		SMTP_PASSWORD: os.Getenv("SMTP_PASSWORD"),
		SMTP_FROM:     getEnvOrDefault("SMTP_FROM", "noreply@beneficios.gov.br"),
		APP_URL:       getEnvOrDefault("APP_URL", "http://localhost:3000"),
		// Password reset
		RESET_TOKEN_TTL:      getDurationMinutes("RESET_TOKEN_TTL_MINUTES", 15),
		RESET_MAX_ATTEMPTS:   getEnvInt("RESET_MAX_ATTEMPTS", 3),
		RESET_MAX_PER_HOUR:   getEnvInt("RESET_MAX_REQUESTS_PER_HOUR", 3),
		PERMISSION_CACHE_TTL: getDurationMinutes("PERMISSION_CACHE_TTL_MINUTES", 5),
	}

	return envVariables, nil
}

// getEnvOrDefault returns the environment variable value or a default
func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	val, err := strconv.Atoi(os.Getenv(key))
	if err != nil || val <= 0 {
		return defaultVal
	}
	return val
}

func getDurationMinutes(key string, defaultMinutes int) time.Duration {
	return time.Duration(getEnvInt(key, defaultMinutes)) * time.Minute
}

func getDurationHours(key string, defaultHours int) time.Duration {
	return time.Duration(getEnvInt(key, defaultHours)) * time.Hour
}
