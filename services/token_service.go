package services

import (
	"context"
	"errors"
	"time"

	"github.com/prefeitura-digital/beneficios-api/model"
	"github.com/prefeitura-digital/beneficios-api/utils/apperror"
	"github.com/prefeitura-digital/beneficios-api/utils/auth"
	"gorm.io/gorm"
)

// errRotationLost signals that another rotation revoked the presented
// token between our lookup and our conditional update.
var errRotationLost = errors.New("refresh token already rotated")

// TokenPair is the result of a successful login or refresh
type TokenPair struct {
	AccessToken      string      `json:"access_token"`
	RefreshToken     string      `json:"refresh_token"`
	AccessExpiresAt  time.Time   `json:"access_expires_at"`
	RefreshExpiresAt time.Time   `json:"refresh_expires_at"`
	User             *model.User `json:"user,omitempty"`
}

// TokenService orchestrates the credential lifecycle: login, refresh
// with mandatory rotation, and session revocation.
type TokenService struct {
	db          *gorm.DB
	issuer      *auth.TokenIssuer
	permissions *PermissionService
	blacklist   *BlacklistService
	audit       AuditLogger
}

// NewTokenService creates a new token lifecycle service
func NewTokenService(db *gorm.DB, issuer *auth.TokenIssuer, permissions *PermissionService, blacklist *BlacklistService, audit AuditLogger) *TokenService {
	return &TokenService{
		db:          db,
		issuer:      issuer,
		permissions: permissions,
		blacklist:   blacklist,
		audit:       audit,
	}
}

// Login validates the password and mints an access/refresh pair. Unknown
// user, wrong password and inactive account all fail with the same
// error; the unknown-user path burns an equivalent bcrypt comparison so
// the two cannot be told apart by timing.
func (s *TokenService) Login(ctx context.Context, username, password, clientIP, userAgent string) (*TokenPair, error) {
	var user model.User
	err := s.db.WithContext(ctx).Preload("Roles").Where("username = ?", username).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		auth.BurnPasswordCheck(password)
		return nil, apperror.ErrInvalidCredentials
	}
	if err != nil {
		return nil, apperror.Internal("user_lookup_failed", err)
	}

	if err := auth.VerifyPassword(user.PasswordHash, password); err != nil {
		s.audit.LogSecurityEvent(ctx, "login_failed", user.ID, clientIP, map[string]interface{}{"username": username})
		return nil, apperror.ErrInvalidCredentials
	}
	if !user.Active {
		s.audit.LogSecurityEvent(ctx, "login_inactive_account", user.ID, clientIP, nil)
		return nil, apperror.ErrInvalidCredentials
	}

	pair, record, err := s.mintPair(ctx, &user)
	if err != nil {
		return nil, err
	}
	record.CreatedByIP = clientIP
	record.UserAgent = userAgent

	if err := s.db.WithContext(ctx).Create(record).Error; err != nil {
		return nil, apperror.Internal("refresh_persist_failed", err)
	}

	now := time.Now()
	s.db.WithContext(ctx).Model(&user).UpdateColumn("last_login_at", now)

	s.audit.LogUserAction(ctx, "login", user.ID, clientIP, nil)
	return pair, nil
}

// Refresh rotates a refresh credential: the presented token is revoked,
// claims are re-resolved and a fresh pair is issued. Refresh tokens are
// single-use; presenting an already-rotated token is treated as a theft
// signal and revokes the whole descendant chain.
func (s *TokenService) Refresh(ctx context.Context, rawToken, clientIP, userAgent string) (*TokenPair, error) {
	hash := auth.HashOpaqueToken(rawToken)

	var stored model.RefreshToken
	err := s.db.WithContext(ctx).Where("token = ?", hash).First(&stored).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperror.Authorization("invalid_refresh_token", "Invalid or expired refresh token")
	}
	if err != nil {
		return nil, apperror.Internal("refresh_lookup_failed", err)
	}

	if stored.Revoked {
		s.audit.LogSecurityEvent(ctx, "refresh_token_reuse", stored.UserID, clientIP, map[string]interface{}{
			"revoked_at": stored.RevokedAt,
			"reason":     stored.RevokedReason,
		})
		if err := s.revokeDescendants(ctx, &stored, clientIP); err != nil {
			return nil, err
		}
		return nil, apperror.Authorization("refresh_token_reused", "Invalid or expired refresh token")
	}
	if stored.IsExpired() {
		return nil, apperror.Authorization("refresh_token_expired", "Invalid or expired refresh token")
	}

	var user model.User
	err = s.db.WithContext(ctx).Preload("Roles").First(&user, stored.UserID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperror.Authorization("invalid_refresh_token", "Invalid or expired refresh token")
	}
	if err != nil {
		return nil, apperror.Internal("user_lookup_failed", err)
	}
	if !user.Active {
		return nil, apperror.Authorization("account_inactive", "Account is not active")
	}

	pair, record, err := s.mintPair(ctx, &user)
	if err != nil {
		return nil, err
	}
	record.CreatedByIP = clientIP
	record.UserAgent = userAgent

	// Revoke-old and persist-new must land together. The revocation is
	// conditional on the row still being live so that two concurrent
	// rotations of the same token cannot both commit; the loser rolls
	// back its freshly minted record and fails like any other reuse.
	now := time.Now()
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(record).Error; err != nil {
			return err
		}
		res := tx.Model(&model.RefreshToken{}).
			Where("id = ? AND revoked = ?", stored.ID, false).
			Updates(map[string]interface{}{
				"revoked":           true,
				"revoked_at":        now,
				"revoked_by_ip":     clientIP,
				"revoked_reason":    model.RevokeReasonRotation,
				"replaced_by_token": record.Token,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errRotationLost
		}
		return nil
	})
	if errors.Is(err, errRotationLost) {
		s.audit.LogSecurityEvent(ctx, "refresh_token_reuse", stored.UserID, clientIP, map[string]interface{}{
			"detail": "concurrent rotation",
		})
		return nil, apperror.Authorization("refresh_token_reused", "Invalid or expired refresh token")
	}
	if err != nil {
		return nil, apperror.Internal("refresh_rotation_failed", err)
	}

	s.audit.LogUserAction(ctx, "token_refresh", user.ID, clientIP, nil)
	return pair, nil
}

// RevokeRefreshToken revokes a single presented refresh credential.
// Used on logout; revoking an unknown token is a no-op.
func (s *TokenService) RevokeRefreshToken(ctx context.Context, rawToken, reason, clientIP string) error {
	hash := auth.HashOpaqueToken(rawToken)
	now := time.Now()
	err := s.db.WithContext(ctx).
		Model(&model.RefreshToken{}).
		Where("token = ? AND revoked = ?", hash, false).
		Updates(map[string]interface{}{
			"revoked":        true,
			"revoked_at":     now,
			"revoked_by_ip":  clientIP,
			"revoked_reason": reason,
		}).Error
	if err != nil {
		return apperror.Internal("refresh_revoke_failed", err)
	}
	return nil
}

// LogoutAll revokes every live refresh credential for the user and
// returns how many were revoked. Already-issued access credentials stay
// valid until expiry unless the caller also blacklists them.
func (s *TokenService) LogoutAll(ctx context.Context, userID uint, clientIP string) (int64, error) {
	now := time.Now()
	res := s.db.WithContext(ctx).
		Model(&model.RefreshToken{}).
		Where("usuario_id = ? AND revoked = ? AND expires_at > ?", userID, false, now).
		Updates(map[string]interface{}{
			"revoked":        true,
			"revoked_at":     now,
			"revoked_by_ip":  clientIP,
			"revoked_reason": model.RevokeReasonLogout,
		})
	if res.Error != nil {
		return 0, apperror.Internal("logout_all_failed", res.Error)
	}

	s.audit.LogUserAction(ctx, "logout_all", userID, clientIP, map[string]interface{}{"revoked": res.RowsAffected})
	return res.RowsAffected, nil
}

// RevokeAllSessions revokes refresh credentials and records a user-wide
// access invalidation watermark. Satisfies the SessionRevoker interface
// the password reset flow depends on.
func (s *TokenService) RevokeAllSessions(ctx context.Context, userID uint, reason, clientIP string) error {
	if _, err := s.LogoutAll(ctx, userID, clientIP); err != nil {
		return err
	}
	return s.blacklist.InvalidateAllForUser(ctx, userID, model.TokenTypeAccess, reason, clientIP)
}

// CleanupExpired deletes refresh rows whose expiry is older than the
// retention window. Revoked rows are kept until then for the audit trail.
func (s *TokenService) CleanupExpired(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := time.Now().Add(-retention)
	res := s.db.WithContext(ctx).
		Where("expires_at < ?", cutoff).
		Delete(&model.RefreshToken{})
	if res.Error != nil {
		return 0, apperror.Internal("refresh_cleanup_failed", res.Error)
	}
	return res.RowsAffected, nil
}

// mintPair resolves fresh claims and mints an access/refresh pair. The
// refresh record is returned unsaved so callers control persistence.
func (s *TokenService) mintPair(ctx context.Context, user *model.User) (*TokenPair, *model.RefreshToken, error) {
	permissions, scopes, err := s.permissions.ResolveClaims(ctx, user.ID)
	if err != nil {
		return nil, nil, err
	}

	accessToken, _, err := s.issuer.IssueAccessToken(user.ID, user.Username, user.RoleNames(), permissions, scopes, user.UnidadeID)
	if err != nil {
		return nil, nil, apperror.Internal("access_token_mint_failed", err)
	}

	rawRefresh, refreshHash, err := auth.GenerateOpaqueToken()
	if err != nil {
		return nil, nil, apperror.Internal("refresh_token_mint_failed", err)
	}

	now := time.Now()
	record := &model.RefreshToken{
		Token:     refreshHash,
		UserID:    user.ID,
		ExpiresAt: now.Add(s.issuer.RefreshExpiry()),
	}

	pair := &TokenPair{
		AccessToken:      accessToken,
		RefreshToken:     rawRefresh,
		AccessExpiresAt:  now.Add(s.issuer.AccessExpiry()),
		RefreshExpiresAt: record.ExpiresAt,
		User:             user,
	}
	return pair, record, nil
}

// revokeDescendants walks the rotation chain forward from a reused token
// and revokes every live descendant. Iterative store loop; a visited set
// guards against malformed cyclic chains.
func (s *TokenService) revokeDescendants(ctx context.Context, start *model.RefreshToken, clientIP string) error {
	visited := map[string]bool{start.Token: true}
	next := start.ReplacedByToken
	now := time.Now()

	for next != nil && !visited[*next] {
		visited[*next] = true

		var descendant model.RefreshToken
		err := s.db.WithContext(ctx).Where("token = ?", *next).First(&descendant).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			break
		}
		if err != nil {
			return apperror.Internal("refresh_lookup_failed", err)
		}

		if !descendant.Revoked {
			err = s.db.WithContext(ctx).Model(&descendant).Updates(map[string]interface{}{
				"revoked":        true,
				"revoked_at":     now,
				"revoked_by_ip":  clientIP,
				"revoked_reason": model.RevokeReasonReuseDetected,
			}).Error
			if err != nil {
				return apperror.Internal("refresh_revoke_failed", err)
			}
		}

		next = descendant.ReplacedByToken
	}
	return nil
}
