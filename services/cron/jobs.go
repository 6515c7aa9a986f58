package cron

import (
	"context"
	"fmt"
	"time"
)

// jobTimeout bounds a single sweep so a stuck database connection cannot
// pile up overlapping runs.
const jobTimeout = 5 * time.Minute

// CleanupBlacklist removes expired blacklist entries so lookups degrade
// gracefully even when opportunistic reclaim was skipped.
func (m *CronManager) CleanupBlacklist() {
	jobName := "cleanup_blacklist"
	m.logJobStart(jobName)

	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	removed, err := m.blacklist.CleanupExpired(ctx)
	if err != nil {
		m.logJobError(jobName, err)
		return
	}
	m.logJobComplete(jobName, fmt.Sprintf("%d expired entries removed", removed))
}

// CleanupResetTokens deletes expired-and-unused reset tokens and purges
// used tokens past the retention window.
func (m *CronManager) CleanupResetTokens() {
	jobName := "cleanup_reset_tokens"
	m.logJobStart(jobName)

	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	removed, err := m.resets.Cleanup(ctx)
	if err != nil {
		m.logJobError(jobName, err)
		return
	}
	m.logJobComplete(jobName, fmt.Sprintf("%d tokens removed", removed))
}

// CleanupRefreshCredentials purges refresh rows whose expiry is past the
// retention window. Revoked rows stay until then for the audit trail.
func (m *CronManager) CleanupRefreshCredentials() {
	jobName := "cleanup_refresh_credentials"
	m.logJobStart(jobName)

	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	removed, err := m.tokens.CleanupExpired(ctx, m.RefreshRetention)
	if err != nil {
		m.logJobError(jobName, err)
		return
	}
	m.logJobComplete(jobName, fmt.Sprintf("%d credentials removed", removed))
}
