package cron

import (
	"log"
	"time"

	"github.com/prefeitura-digital/beneficios-api/services"
	"github.com/robfig/cron/v3"
)

// CronManager schedules the retention sweeps that keep the credential
// stores bounded. Jobs are fire-and-forget: a failed run is logged and
// retried on the next tick, never surfaced to request traffic.
type CronManager struct {
	cron      *cron.Cron
	blacklist *services.BlacklistService
	tokens    *services.TokenService
	resets    *services.PasswordResetService

	// RefreshRetention bounds how long expired refresh rows are kept
	RefreshRetention time.Duration
}

// NewCronManager creates a new cron manager
func NewCronManager(blacklist *services.BlacklistService, tokens *services.TokenService, resets *services.PasswordResetService) *CronManager {
	return &CronManager{
		cron:             cron.New(cron.WithSeconds()),
		blacklist:        blacklist,
		tokens:           tokens,
		resets:           resets,
		RefreshRetention: 30 * 24 * time.Hour,
	}
}

// Start registers and starts all cleanup jobs
func (m *CronManager) Start() error {
	log.Println("Starting cleanup jobs...")

	if err := m.registerJobs(); err != nil {
		return err
	}

	m.cron.Start()

	log.Println("Cleanup jobs started successfully")
	return nil
}

// Stop stops the scheduler and waits for running jobs to finish
func (m *CronManager) Stop() {
	log.Println("Stopping cleanup jobs...")
	ctx := m.cron.Stop()
	<-ctx.Done()
	log.Println("Cleanup jobs stopped")
}

// registerJobs registers all cleanup jobs with their schedules
func (m *CronManager) registerJobs() error {
	// Every 10 minutes: purge expired blacklist entries
	if _, err := m.cron.AddFunc("0 */10 * * * *", m.CleanupBlacklist); err != nil {
		return err
	}

	// Hourly: purge expired/retained password reset tokens
	if _, err := m.cron.AddFunc("0 0 * * * *", m.CleanupResetTokens); err != nil {
		return err
	}

	// Daily at 03:00: purge refresh credentials past retention
	if _, err := m.cron.AddFunc("0 0 3 * * *", m.CleanupRefreshCredentials); err != nil {
		return err
	}

	return nil
}

func (m *CronManager) logJobStart(name string) {
	log.Printf("[CRON] %s: started", name)
}

func (m *CronManager) logJobComplete(name string, detail string) {
	log.Printf("[CRON] %s: completed - %s", name, detail)
}

func (m *CronManager) logJobError(name string, err error) {
	log.Printf("[CRON] %s: failed - %v", name, err)
}
