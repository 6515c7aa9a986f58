package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/prefeitura-digital/beneficios-api/model"
	"github.com/prefeitura-digital/beneficios-api/utils/apperror"
	"github.com/prefeitura-digital/beneficios-api/utils/cache"
	"gorm.io/gorm"
)

// orSeparator joins alternative permission names in a single check;
// the composed name resolves as a logical OR over its parts.
const orSeparator = ","

// ResolutionCache is the best-effort cache behind the resolver. Cache
// failures never fail an authorization check; resolution falls back to
// the store. *cache.RedisCache satisfies this interface.
type ResolutionCache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	AddToSet(ctx context.Context, key string, expiration time.Duration, members ...interface{}) error
	SetMembers(ctx context.Context, key string) ([]string, error)
}

// PermissionService resolves scoped permissions over the grant tables.
// Resolution order: direct grant, role grant, wildcard candidates.
type PermissionService struct {
	db    *gorm.DB
	cache ResolutionCache
	ttl   time.Duration
}

// NewPermissionService creates a permission resolver. cache may be nil,
// in which case every check hits the store.
func NewPermissionService(db *gorm.DB, resolutionCache ResolutionCache, ttl time.Duration) *PermissionService {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &PermissionService{db: db, cache: resolutionCache, ttl: ttl}
}

// HasPermission answers "does user U hold permission P in scope S?".
// A UNIT scope without a scope id is a malformed request and resolves to
// false, never to a grant.
func (s *PermissionService) HasPermission(ctx context.Context, userID uint, name string, scopeType string, scopeID *uint) (bool, error) {
	if scopeType == "" {
		scopeType = model.ScopeGlobal
	}
	if scopeType == model.ScopeUnit && scopeID == nil {
		return false, nil
	}

	// Composed names resolve as OR over their parts.
	if strings.Contains(name, orSeparator) {
		for _, part := range strings.Split(name, orSeparator) {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			ok, err := s.HasPermission(ctx, userID, part, scopeType, scopeID)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	}

	key := resolutionKey(userID, name, scopeType, scopeID)
	if s.cache != nil {
		if cached, err := s.cache.Get(ctx, key); err == nil {
			return cached == "1", nil
		} else if !errors.Is(err, cache.ErrNotFound) {
			log.Printf("[AUTHZ] cache read failed for %s: %v", key, err)
		}
	}

	granted, err := s.resolve(ctx, userID, name, scopeType, scopeID)
	if err != nil {
		return false, err
	}

	if s.cache != nil {
		val := "0"
		if granted {
			val = "1"
		}
		if err := s.cache.Set(ctx, key, val, s.ttl); err != nil {
			log.Printf("[AUTHZ] cache write failed for %s: %v", key, err)
		} else if err := s.cache.AddToSet(ctx, userKeyIndex(userID), s.ttl+time.Minute, key); err != nil {
			log.Printf("[AUTHZ] cache index update failed for user %d: %v", userID, err)
		}
	}

	return granted, nil
}

// resolve runs the tiered resolution for a single concrete name
func (s *PermissionService) resolve(ctx context.Context, userID uint, name string, scopeType string, scopeID *uint) (bool, error) {
	candidates := append([]string{name}, wildcardCandidates(name)...)
	for _, candidate := range candidates {
		ok, err := s.directGrant(ctx, userID, candidate, scopeType, scopeID)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}

		ok, err = s.roleGrant(ctx, userID, candidate)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

// directGrant checks the exact-name UserPermission row for the scope.
// A row with granted=false or past valid_until does not conclude the
// resolution; later tiers may still grant.
func (s *PermissionService) directGrant(ctx context.Context, userID uint, name string, scopeType string, scopeID *uint) (bool, error) {
	var up model.UserPermission
	q := s.db.WithContext(ctx).
		Joins("JOIN permissions ON permissions.id = user_permissions.permissao_id").
		Where("user_permissions.usuario_id = ? AND permissions.name = ? AND user_permissions.scope_type = ?", userID, name, scopeType)
	if scopeID != nil {
		q = q.Where("user_permissions.scope_id = ?", *scopeID)
	} else {
		q = q.Where("user_permissions.scope_id IS NULL")
	}

	err := q.First(&up).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, apperror.Internal("permission_lookup_failed", err)
	}

	return up.IsEffective(), nil
}

// roleGrant checks whether any role held by the user carries the
// permission. Role grants are implicitly GLOBAL, so they satisfy any
// scope request.
func (s *PermissionService) roleGrant(ctx context.Context, userID uint, name string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&model.RolePermission{}).
		Joins("JOIN permissions ON permissions.id = role_permissions.permissao_id").
		Joins("JOIN user_roles ON user_roles.role_id = role_permissions.role_id").
		Where("user_roles.user_id = ? AND permissions.name = ?", userID, name).
		Count(&count).Error
	if err != nil {
		return false, apperror.Internal("permission_lookup_failed", err)
	}
	return count > 0, nil
}

// wildcardCandidates builds the wildcard names that would satisfy a
// request for the given concrete name.
func wildcardCandidates(name string) []string {
	parts := strings.Split(name, ".")
	candidates := []string{"*.*"}
	if len(parts) >= 2 {
		candidates = append(candidates, parts[0]+".*")
		candidates = append(candidates, "*."+parts[len(parts)-1])
	}
	if len(parts) >= 3 {
		candidates = append(candidates, parts[0]+"."+parts[1]+".*")
	}
	return candidates
}

// Grant gives the user a direct permission in the given scope. An
// existing active grant has its valid_until extended (never shortened);
// a revoked grant is reactivated; otherwise a new row is inserted.
func (s *PermissionService) Grant(ctx context.Context, userID uint, name string, scopeType string, scopeID *uint, validUntil *time.Time, actorID uint) error {
	if scopeType == "" {
		scopeType = model.ScopeGlobal
	}
	if scopeType == model.ScopeUnit && scopeID == nil {
		return apperror.Validation("missing_scope_id", "UNIT scope requires a scope id")
	}
	if scopeType == model.ScopeGlobal {
		scopeID = nil
	}

	perm, err := s.findPermission(ctx, name)
	if err != nil {
		return err
	}

	existing, err := s.findGrantRow(ctx, userID, perm.ID, scopeType, scopeID)
	if err != nil {
		return err
	}

	if existing == nil {
		row := model.UserPermission{
			UserID:       userID,
			PermissionID: perm.ID,
			ScopeType:    scopeType,
			ScopeID:      scopeID,
			Granted:      true,
			ValidUntil:   validUntil,
			CreatedBy:    actorID,
			UpdatedBy:    actorID,
		}
		if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
			return apperror.Internal("permission_grant_failed", err)
		}
	} else {
		updates := map[string]interface{}{
			"granted":    true,
			"updated_by": actorID,
		}
		if existing.Granted {
			// Active grant: only extend the validity window.
			if validUntil == nil {
				updates["valid_until"] = nil
			} else if existing.ValidUntil == nil || validUntil.After(*existing.ValidUntil) {
				updates["valid_until"] = validUntil
			}
		} else {
			// Reactivating a revoked grant takes the new window as given.
			updates["valid_until"] = validUntil
		}
		if err := s.db.WithContext(ctx).Model(existing).Updates(updates).Error; err != nil {
			return apperror.Internal("permission_grant_failed", err)
		}
	}

	s.InvalidateUserCache(ctx, userID)
	return nil
}

// Revoke removes a direct grant. Idempotent: revoking an absent or
// already-revoked grant succeeds without mutation.
func (s *PermissionService) Revoke(ctx context.Context, userID uint, name string, scopeType string, scopeID *uint, actorID uint) error {
	if scopeType == "" {
		scopeType = model.ScopeGlobal
	}
	if scopeType == model.ScopeGlobal {
		scopeID = nil
	}

	perm, err := s.findPermission(ctx, name)
	if err != nil {
		return err
	}

	existing, err := s.findGrantRow(ctx, userID, perm.ID, scopeType, scopeID)
	if err != nil {
		return err
	}
	if existing == nil || !existing.Granted {
		return nil
	}

	if err := s.db.WithContext(ctx).Model(existing).Updates(map[string]interface{}{
		"granted":    false,
		"updated_by": actorID,
	}).Error; err != nil {
		return apperror.Internal("permission_revoke_failed", err)
	}

	s.InvalidateUserCache(ctx, userID)
	return nil
}

// ResolveClaims collects the user's effective permission names and scope
// hints for embedding in an access credential. The hints may go stale
// within the access TTL; the resolver remains the source of truth.
func (s *PermissionService) ResolveClaims(ctx context.Context, userID uint) ([]string, map[string]string, error) {
	type grantRow struct {
		Name      string
		ScopeType string
		ScopeID   *uint
	}

	var direct []grantRow
	err := s.db.WithContext(ctx).
		Model(&model.UserPermission{}).
		Select("permissions.name AS name, user_permissions.scope_type AS scope_type, user_permissions.scope_id AS scope_id").
		Joins("JOIN permissions ON permissions.id = user_permissions.permissao_id").
		Where("user_permissions.usuario_id = ? AND user_permissions.granted = ?", userID, true).
		Where("user_permissions.valid_until IS NULL OR user_permissions.valid_until > ?", time.Now()).
		Scan(&direct).Error
	if err != nil {
		return nil, nil, apperror.Internal("permission_lookup_failed", err)
	}

	var roleNames []string
	err = s.db.WithContext(ctx).
		Model(&model.RolePermission{}).
		Distinct("permissions.name").
		Joins("JOIN permissions ON permissions.id = role_permissions.permissao_id").
		Joins("JOIN user_roles ON user_roles.role_id = role_permissions.role_id").
		Where("user_roles.user_id = ?", userID).
		Pluck("permissions.name", &roleNames).Error
	if err != nil {
		return nil, nil, apperror.Internal("permission_lookup_failed", err)
	}

	seen := make(map[string]bool)
	names := make([]string, 0, len(direct)+len(roleNames))
	scopes := make(map[string]string)

	for _, g := range direct {
		if !seen[g.Name] {
			seen[g.Name] = true
			names = append(names, g.Name)
		}
		if g.ScopeType == model.ScopeUnit && g.ScopeID != nil {
			scopes[g.Name] = fmt.Sprintf("%s:%d", model.ScopeUnit, *g.ScopeID)
		} else if _, ok := scopes[g.Name]; !ok {
			scopes[g.Name] = model.ScopeGlobal
		}
	}
	for _, n := range roleNames {
		if !seen[n] {
			seen[n] = true
			names = append(names, n)
		}
		scopes[n] = model.ScopeGlobal
	}

	return names, scopes, nil
}

// InvalidateUserCache deletes every cached resolution for the user. Exact
// invalidation via the per-user key index; a failure here degrades to
// TTL-bounded staleness rather than an error.
func (s *PermissionService) InvalidateUserCache(ctx context.Context, userID uint) {
	if s.cache == nil {
		return
	}
	indexKey := userKeyIndex(userID)
	keys, err := s.cache.SetMembers(ctx, indexKey)
	if err != nil {
		log.Printf("[AUTHZ] cache invalidation index read failed for user %d: %v", userID, err)
		return
	}
	keys = append(keys, indexKey)
	if err := s.cache.Delete(ctx, keys...); err != nil {
		log.Printf("[AUTHZ] cache invalidation failed for user %d: %v", userID, err)
	}
}

func (s *PermissionService) findPermission(ctx context.Context, name string) (*model.Permission, error) {
	var perm model.Permission
	err := s.db.WithContext(ctx).Where("name = ?", name).First(&perm).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperror.NotFound("permission_not_found", fmt.Sprintf("Permission %q does not exist", name))
	}
	if err != nil {
		return nil, apperror.Internal("permission_lookup_failed", err)
	}
	return &perm, nil
}

func (s *PermissionService) findGrantRow(ctx context.Context, userID, permissionID uint, scopeType string, scopeID *uint) (*model.UserPermission, error) {
	var row model.UserPermission
	q := s.db.WithContext(ctx).
		Where("usuario_id = ? AND permissao_id = ? AND scope_type = ?", userID, permissionID, scopeType)
	if scopeID != nil {
		q = q.Where("scope_id = ?", *scopeID)
	} else {
		q = q.Where("scope_id IS NULL")
	}
	err := q.First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, apperror.Internal("permission_lookup_failed", err)
	}
	return &row, nil
}

func resolutionKey(userID uint, name string, scopeType string, scopeID *uint) string {
	sid := "-"
	if scopeID != nil {
		sid = fmt.Sprintf("%d", *scopeID)
	}
	return fmt.Sprintf("authz:perm:%d:%s:%s:%s", userID, name, scopeType, sid)
}

func userKeyIndex(userID uint) string {
	return fmt.Sprintf("authz:keys:%d", userID)
}
