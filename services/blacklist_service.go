package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/prefeitura-digital/beneficios-api/model"
	"github.com/prefeitura-digital/beneficios-api/utils/apperror"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// BlacklistStatus is the answer to a blacklist lookup
type BlacklistStatus struct {
	Blacklisted bool       `json:"blacklisted"`
	Reason      string     `json:"reason,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
}

// BlacklistService manages the denylist of credential identifiers.
// A non-expired entry makes its credential invalid regardless of
// signature or expiry validity. Lookups that hit an expired entry treat
// the credential as not blacklisted and reclaim the row.
type BlacklistService struct {
	db *gorm.DB
}

// NewBlacklistService creates a new blacklist service
func NewBlacklistService(db *gorm.DB) *BlacklistService {
	return &BlacklistService{db: db}
}

// Add inserts a denylist entry for the given credential identifier.
// Idempotent: re-adding a known JTI logs a warning and succeeds. The
// insert goes first and a unique-index conflict resolves to the no-op
// path, so concurrent adds of the same JTI cannot race each other into
// an error.
func (s *BlacklistService) Add(ctx context.Context, jti string, userID uint, tokenType string, expiresAt time.Time, reason, clientIP, userAgent string, metadata map[string]interface{}) error {
	entry := model.BlacklistedToken{
		JTI:       jti,
		UserID:    userID,
		TokenType: tokenType,
		ExpiresAt: expiresAt,
		Reason:    reason,
		ClientIP:  clientIP,
		UserAgent: userAgent,
	}
	if len(metadata) > 0 {
		raw, err := json.Marshal(metadata)
		if err != nil {
			return apperror.Internal("blacklist_metadata_encode_failed", err)
		}
		entry.Metadata = datatypes.JSON(raw)
	}

	if err := s.db.WithContext(ctx).Create(&entry).Error; err != nil {
		// Duplicate-key shapes differ per driver; an existing row for
		// this JTI is the authoritative signal either way.
		var existing model.BlacklistedToken
		lookupErr := s.db.WithContext(ctx).Where("jti = ?", jti).First(&existing).Error
		if lookupErr == nil {
			log.Printf("[BLACKLIST] jti %s already blacklisted (reason=%s), skipping", jti, existing.Reason)
			return nil
		}
		return apperror.Internal("blacklist_insert_failed", err)
	}
	return nil
}

// Check looks up a credential identifier. An expired row is treated as
// not blacklisted and deleted opportunistically.
func (s *BlacklistService) Check(ctx context.Context, jti string) (*BlacklistStatus, error) {
	var entry model.BlacklistedToken
	err := s.db.WithContext(ctx).Where("jti = ?", jti).First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &BlacklistStatus{Blacklisted: false}, nil
	}
	if err != nil {
		return nil, apperror.Internal("blacklist_lookup_failed", err)
	}

	if entry.IsExpired() {
		// Logically void; reclaim the row. The periodic sweep covers the
		// case where this delete fails.
		if err := s.db.WithContext(ctx).Delete(&entry).Error; err != nil {
			log.Printf("[BLACKLIST] failed to reclaim expired entry %s: %v", jti, err)
		}
		return &BlacklistStatus{Blacklisted: false}, nil
	}

	return &BlacklistStatus{
		Blacklisted: true,
		Reason:      entry.Reason,
		ExpiresAt:   &entry.ExpiresAt,
	}, nil
}

// IsBlacklisted reports whether the credential identifier is denied
func (s *BlacklistService) IsBlacklisted(ctx context.Context, jti string) (bool, error) {
	status, err := s.Check(ctx, jti)
	if err != nil {
		return false, err
	}
	return status.Blacklisted, nil
}

// InvalidateAllForUser records a user-wide invalidation watermark.
// Access credential identifiers are not enumerable after issuance, so the
// bulk variant stores a synthetic entry; IsUserInvalidated compares a
// credential's issued-at against the watermark instead of its JTI.
func (s *BlacklistService) InvalidateAllForUser(ctx context.Context, userID uint, tokenType string, reason, clientIP string) error {
	if tokenType == "" {
		tokenType = model.TokenTypeAccess
	}
	entry := model.BlacklistedToken{
		JTI:       fmt.Sprintf("user-invalidation:%d:%s", userID, uuid.New().String()),
		UserID:    userID,
		TokenType: tokenType,
		ExpiresAt: time.Now().Add(userInvalidationWindow),
		Reason:    reason,
		ClientIP:  clientIP,
	}
	if err := s.db.WithContext(ctx).Create(&entry).Error; err != nil {
		return apperror.Internal("blacklist_insert_failed", err)
	}
	return nil
}

// userInvalidationWindow must outlive the longest access credential TTL
// so every token issued before the watermark ages out while it is active.
const userInvalidationWindow = 24 * time.Hour

// IsUserInvalidated reports whether a user-wide invalidation exists that
// postdates the given credential's issuance.
func (s *BlacklistService) IsUserInvalidated(ctx context.Context, userID uint, issuedAt time.Time) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&model.BlacklistedToken{}).
		Where("usuario_id = ? AND jti LIKE ? AND created_at > ? AND expires_at > ?",
			userID, fmt.Sprintf("user-invalidation:%d:%%", userID), issuedAt, time.Now()).
		Count(&count).Error
	if err != nil {
		return false, apperror.Internal("blacklist_lookup_failed", err)
	}
	return count > 0, nil
}

// CleanupExpired removes entries whose expiry has passed. Safe to run
// concurrently with lookups; a reader that just treated an expired row as
// not-blacklisted loses nothing when the row disappears.
func (s *BlacklistService) CleanupExpired(ctx context.Context) (int64, error) {
	res := s.db.WithContext(ctx).
		Where("expires_at < ?", time.Now()).
		Delete(&model.BlacklistedToken{})
	if res.Error != nil {
		return 0, apperror.Internal("blacklist_cleanup_failed", res.Error)
	}
	return res.RowsAffected, nil
}
