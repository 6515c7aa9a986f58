package app

import (
	"fmt"

	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prefeitura-digital/beneficios-api/api"
	"github.com/prefeitura-digital/beneficios-api/config"
	"github.com/prefeitura-digital/beneficios-api/database"
	"github.com/prefeitura-digital/beneficios-api/router"
	"github.com/prefeitura-digital/beneficios-api/services/cron"
)

func SetupAndRunServer() error {

	// Load ENV
	if err := config.LoadENV(); err != nil {
		return err
	}

	getEnv, err := config.Get()
	if err != nil {
		return err
	}

	// Initialize GORM database connection
	store, err := database.StartGORM()
	if err != nil {
		print("Check whether the Postgres is running or not\n")
		return err
	}

	// Run migrations for the credential/authorization tables
	if err := store.Init(); err != nil {
		return err
	}

	server := api.NewAPIServer(fmt.Sprintf(":%d", getEnv.PORT))
	engine := server.GetEngine()

	engine.Use(recover.New())
	engine.Use(logger.New())

	svcs, err := router.SetupRoutes(engine, store.GetDB(), getEnv)
	if err != nil {
		return err
	}

	// Background retention sweeps
	cronManager := cron.NewCronManager(svcs.Blacklist, svcs.Tokens, svcs.Resets)
	if err := cronManager.Start(); err != nil {
		return err
	}
	defer cronManager.Stop()

	return server.Run()
}
