package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/prefeitura-digital/beneficios-api/utils/response"
	"gorm.io/gorm"
)

// HealthHandler reports process and database liveness
type HealthHandler struct {
	db *gorm.DB
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(db *gorm.DB) *HealthHandler {
	return &HealthHandler{db: db}
}

// Check handles the health probe
func (h *HealthHandler) Check(c *fiber.Ctx) error {
	dbStatus := "ok"
	if sqlDB, err := h.db.DB(); err != nil || sqlDB.Ping() != nil {
		dbStatus = "unreachable"
	}

	return response.Success(c, fiber.Map{
		"status":   "ok",
		"database": dbStatus,
	})
}
