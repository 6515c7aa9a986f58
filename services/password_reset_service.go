package services

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/prefeitura-digital/beneficios-api/model"
	"github.com/prefeitura-digital/beneficios-api/utils/apperror"
	"github.com/prefeitura-digital/beneficios-api/utils/auth"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// SessionRevoker invalidates every live session of a user after a
// password change. Implemented by TokenService; injected to keep the
// reset flow decoupled from token issuance.
type SessionRevoker interface {
	RevokeAllSessions(ctx context.Context, userID uint, reason, clientIP string) error
}

// ResetConfig tunes the password reset flow
type ResetConfig struct {
	TokenExpiry        time.Duration // short-lived, minutes not hours
	MaxAttempts        int
	MaxRequestsPerHour int
	UsedRetention      time.Duration // how long used tokens stay for audit
}

// DefaultResetConfig returns the standard reset flow limits
func DefaultResetConfig() ResetConfig {
	return ResetConfig{
		TokenExpiry:        15 * time.Minute,
		MaxAttempts:        3,
		MaxRequestsPerHour: 3,
		UsedRetention:      30 * 24 * time.Hour,
	}
}

// ResetValidation is the answer to a reset-token validity probe
type ResetValidation struct {
	Valid            bool `json:"valid"`
	MinutesRemaining int  `json:"minutes_remaining,omitempty"`
}

// PasswordResetService runs the forgot/reset-password flow. Token
// plaintext leaves the process only through the mail channel; storage
// holds bcrypt hashes.
type PasswordResetService struct {
	db       *gorm.DB
	mailer   Mailer
	sessions SessionRevoker
	audit    AuditLogger
	config   ResetConfig
}

// NewPasswordResetService creates a new password reset service
func NewPasswordResetService(db *gorm.DB, mailer Mailer, sessions SessionRevoker, audit AuditLogger, config ResetConfig) *PasswordResetService {
	if config.TokenExpiry <= 0 {
		config = DefaultResetConfig()
	}
	return &PasswordResetService{
		db:       db,
		mailer:   mailer,
		sessions: sessions,
		audit:    audit,
		config:   config,
	}
}

// RequestReset starts the flow for the given email. The caller receives
// the same nil result whether or not the account exists; only rate-limit
// and storage failures surface.
func (s *PasswordResetService) RequestReset(ctx context.Context, email, clientIP, userAgent string) error {
	if err := s.checkRequestRate(ctx, clientIP); err != nil {
		return err
	}

	var user model.User
	err := s.db.WithContext(ctx).Where("email = ?", email).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return apperror.Internal("user_lookup_failed", err)
	}
	if !user.Active {
		return nil
	}

	if err := s.checkUserRate(ctx, user.ID); err != nil {
		return err
	}

	// Superseding: at most one active token per user.
	now := time.Now()
	err = s.db.WithContext(ctx).
		Model(&model.PasswordResetToken{}).
		Where("usuario_id = ? AND is_used = ? AND expires_at > ?", user.ID, false, now).
		Updates(map[string]interface{}{
			"is_used":             true,
			"used_at":             now,
			"invalidation_reason": model.ResetInvalidationNewRequest,
		}).Error
	if err != nil {
		return apperror.Internal("reset_supersede_failed", err)
	}

	rawToken, _, err := auth.GenerateOpaqueToken()
	if err != nil {
		return apperror.Internal("reset_token_mint_failed", err)
	}
	tokenHash, err := bcrypt.GenerateFromPassword([]byte(rawToken), bcrypt.DefaultCost)
	if err != nil {
		return apperror.Internal("reset_token_hash_failed", err)
	}

	record := model.PasswordResetToken{
		TokenHash: string(tokenHash),
		UserID:    user.ID,
		ExpiresAt: now.Add(s.config.TokenExpiry),
		ClientIP:  clientIP,
		UserAgent: userAgent,
	}
	if err := s.db.WithContext(ctx).Create(&record).Error; err != nil {
		return apperror.Internal("reset_token_persist_failed", err)
	}

	// Delivery is fire-and-forget; the mailer owns retries.
	expiresIn := int(s.config.TokenExpiry.Minutes())
	go func() {
		if err := s.mailer.SendPasswordResetEmail(user.Email, rawToken, expiresIn); err != nil {
			log.Printf("[RESET] failed to send reset email to user %d: %v", user.ID, err)
		}
	}()

	s.audit.LogUserAction(ctx, "password_reset_requested", user.ID, clientIP, nil)
	return nil
}

// Validate probes whether a presented token is still usable, without
// consuming an attempt.
func (s *PasswordResetService) Validate(ctx context.Context, rawToken string) (*ResetValidation, error) {
	record, err := s.findActiveToken(ctx, rawToken)
	if err != nil {
		return nil, err
	}
	if record == nil || record.Attempts > s.config.MaxAttempts {
		return &ResetValidation{Valid: false}, nil
	}
	return &ResetValidation{Valid: true, MinutesRemaining: record.MinutesRemaining()}, nil
}

// Reset consumes a token and sets the new password. Locating the token
// increments its attempt counter immediately, so attempts accumulate
// across failed calls; exceeding the maximum makes the token terminal.
func (s *PasswordResetService) Reset(ctx context.Context, rawToken, newPassword, confirmPassword, clientIP, userAgent string) error {
	if newPassword != confirmPassword {
		return apperror.Validation("password_mismatch", "Password confirmation does not match")
	}
	if !auth.IsPasswordValid(newPassword) {
		return apperror.Validation("password_too_short", "Password must be at least 8 characters long")
	}

	record, err := s.findActiveToken(ctx, rawToken)
	if err != nil {
		return err
	}
	if record == nil {
		return apperror.Authorization("invalid_reset_token", "Invalid or expired reset token")
	}

	// Increment-then-check: the counter moves before the limit decision
	// so two concurrent calls cannot both pass an under-limit read.
	err = s.db.WithContext(ctx).
		Model(record).
		UpdateColumn("attempts", gorm.Expr("attempts + ?", 1)).Error
	if err != nil {
		return apperror.Internal("reset_attempt_update_failed", err)
	}
	if err := s.db.WithContext(ctx).First(record, record.ID).Error; err != nil {
		return apperror.Internal("reset_token_lookup_failed", err)
	}

	if record.Attempts > s.config.MaxAttempts {
		now := time.Now()
		s.db.WithContext(ctx).Model(record).Updates(map[string]interface{}{
			"is_used":             true,
			"used_at":             now,
			"invalidation_reason": model.ResetInvalidationMaxAttempts,
		})
		s.audit.LogSecurityEvent(ctx, "reset_max_attempts", record.UserID, clientIP, nil)
		return apperror.Authorization("max_attempts_exceeded", "Too many attempts for this reset token")
	}

	var user model.User
	if err := s.db.WithContext(ctx).First(&user, record.UserID).Error; err != nil {
		return apperror.Internal("user_lookup_failed", err)
	}

	if err := auth.VerifyPassword(user.PasswordHash, newPassword); err == nil {
		return apperror.Validation("password_reused", "New password must differ from the current password")
	}

	newHash, err := auth.HashPassword(newPassword)
	if err != nil {
		return apperror.Internal("password_hash_failed", err)
	}

	now := time.Now()
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&user).UpdateColumn("password_hash", newHash).Error; err != nil {
			return err
		}
		if err := tx.Model(record).Updates(map[string]interface{}{
			"is_used": true,
			"used_at": now,
		}).Error; err != nil {
			return err
		}
		// Supersede any other active token for the user.
		return tx.Model(&model.PasswordResetToken{}).
			Where("usuario_id = ? AND id <> ? AND is_used = ? AND expires_at > ?", user.ID, record.ID, false, now).
			Updates(map[string]interface{}{
				"is_used":             true,
				"used_at":             now,
				"invalidation_reason": model.ResetInvalidationPasswordChanged,
			}).Error
	})
	if err != nil {
		return apperror.Internal("password_reset_failed", err)
	}

	if err := s.sessions.RevokeAllSessions(ctx, user.ID, model.RevokeReasonPasswordChange, clientIP); err != nil {
		log.Printf("[RESET] session revocation after password change failed for user %d: %v", user.ID, err)
	}

	s.audit.LogUserAction(ctx, "password_reset", user.ID, clientIP, nil)
	return nil
}

// Cleanup deletes expired-and-unused tokens and purges used tokens past
// the retention window.
func (s *PasswordResetService) Cleanup(ctx context.Context) (int64, error) {
	now := time.Now()

	expired := s.db.WithContext(ctx).
		Where("is_used = ? AND expires_at < ?", false, now).
		Delete(&model.PasswordResetToken{})
	if expired.Error != nil {
		return 0, apperror.Internal("reset_cleanup_failed", expired.Error)
	}

	retained := s.db.WithContext(ctx).
		Where("is_used = ? AND used_at < ?", true, now.Add(-s.config.UsedRetention)).
		Delete(&model.PasswordResetToken{})
	if retained.Error != nil {
		return expired.RowsAffected, apperror.Internal("reset_cleanup_failed", retained.Error)
	}

	return expired.RowsAffected + retained.RowsAffected, nil
}

// findActiveToken scans active rows and bcrypt-compares each stored hash
// against the presented value. Returns nil when nothing matches.
func (s *PasswordResetService) findActiveToken(ctx context.Context, rawToken string) (*model.PasswordResetToken, error) {
	var candidates []model.PasswordResetToken
	err := s.db.WithContext(ctx).
		Where("is_used = ? AND expires_at > ?", false, time.Now()).
		Find(&candidates).Error
	if err != nil {
		return nil, apperror.Internal("reset_token_lookup_failed", err)
	}

	for i := range candidates {
		if bcrypt.CompareHashAndPassword([]byte(candidates[i].TokenHash), []byte(rawToken)) == nil {
			return &candidates[i], nil
		}
	}
	return nil, nil
}

// checkUserRate enforces the per-user request limit over a rolling hour,
// counted from stored creation timestamps so concurrent requests cannot
// double-count.
func (s *PasswordResetService) checkUserRate(ctx context.Context, userID uint) error {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&model.PasswordResetToken{}).
		Where("usuario_id = ? AND created_at > ?", userID, time.Now().Add(-time.Hour)).
		Count(&count).Error
	if err != nil {
		return apperror.Internal("reset_rate_check_failed", err)
	}
	if count >= int64(s.config.MaxRequestsPerHour) {
		return apperror.RateLimit("reset_rate_limited", "Too many password reset requests, try again later")
	}
	return nil
}

// checkRequestRate enforces the independent per-client-IP limit
func (s *PasswordResetService) checkRequestRate(ctx context.Context, clientIP string) error {
	if clientIP == "" {
		return nil
	}
	var count int64
	err := s.db.WithContext(ctx).
		Model(&model.PasswordResetToken{}).
		Where("client_ip = ? AND created_at > ?", clientIP, time.Now().Add(-time.Hour)).
		Count(&count).Error
	if err != nil {
		return apperror.Internal("reset_rate_check_failed", err)
	}
	if count >= int64(s.config.MaxRequestsPerHour) {
		return apperror.RateLimit("reset_rate_limited", "Too many password reset requests, try again later")
	}
	return nil
}
