package services

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prefeitura-digital/beneficios-api/model"
	"github.com/prefeitura-digital/beneficios-api/utils/apperror"
	"github.com/prefeitura-digital/beneficios-api/utils/auth"
)

func TestLoginIssuesVerifiablePair(t *testing.T) {
	db := setupTestDB(t)
	issuer := testIssuer(t, 30*time.Minute)
	audit := &recordingAudit{}
	permissions := NewPermissionService(db, nil, time.Minute)
	blacklist := NewBlacklistService(db)
	svc := NewTokenService(db, issuer, permissions, blacklist, audit)

	user := createTestUser(t, db, "maria", "maria@example.com", "segredo-forte")
	attachRole(t, db, user, "gestor")

	pair, err := svc.Login(context.Background(), "maria", "segredo-forte", "10.0.0.1", "test-agent")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	claims, err := issuer.VerifyAccessToken(pair.AccessToken)
	if err != nil {
		t.Fatalf("issued access token did not verify: %v", err)
	}
	if claims.UserID != user.ID {
		t.Errorf("expected user id %d in claims, got %d", user.ID, claims.UserID)
	}
	if len(claims.Roles) != 1 || claims.Roles[0] != "gestor" {
		t.Errorf("expected roles [gestor], got %v", claims.Roles)
	}

	// The raw refresh token must never be stored; only its hash is.
	var count int64
	db.Model(&model.RefreshToken{}).Where("token = ?", pair.RefreshToken).Count(&count)
	if count != 0 {
		t.Error("raw refresh token found in storage")
	}
	db.Model(&model.RefreshToken{}).Where("token = ?", auth.HashOpaqueToken(pair.RefreshToken)).Count(&count)
	if count != 1 {
		t.Errorf("expected 1 stored refresh hash, got %d", count)
	}
}

func TestLoginFailuresAreUniform(t *testing.T) {
	db := setupTestDB(t)
	issuer := testIssuer(t, 30*time.Minute)
	audit := &recordingAudit{}
	svc := NewTokenService(db, issuer, NewPermissionService(db, nil, time.Minute), NewBlacklistService(db), audit)

	user := createTestUser(t, db, "joao", "joao@example.com", "senha-correta")

	if _, err := svc.Login(context.Background(), "ninguem", "qualquer", "", ""); !errors.Is(err, apperror.ErrInvalidCredentials) {
		t.Errorf("unknown user: expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := svc.Login(context.Background(), "joao", "senha-errada", "", ""); !errors.Is(err, apperror.ErrInvalidCredentials) {
		t.Errorf("wrong password: expected ErrInvalidCredentials, got %v", err)
	}

	db.Model(user).UpdateColumn("active", false)
	if _, err := svc.Login(context.Background(), "joao", "senha-correta", "", ""); !errors.Is(err, apperror.ErrInvalidCredentials) {
		t.Errorf("inactive account: expected ErrInvalidCredentials, got %v", err)
	}
}

func TestRefreshRotatesAndLinksChain(t *testing.T) {
	db := setupTestDB(t)
	issuer := testIssuer(t, 30*time.Minute)
	svc := NewTokenService(db, issuer, NewPermissionService(db, nil, time.Minute), NewBlacklistService(db), &recordingAudit{})

	createTestUser(t, db, "ana", "ana@example.com", "segredo-forte")

	pair, err := svc.Login(context.Background(), "ana", "segredo-forte", "10.0.0.1", "")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	next, err := svc.Refresh(context.Background(), pair.RefreshToken, "10.0.0.2", "")
	if err != nil {
		t.Fatalf("refresh failed: %v", err)
	}
	if next.RefreshToken == pair.RefreshToken {
		t.Fatal("refresh returned the same token instead of rotating")
	}

	var old model.RefreshToken
	if err := db.Where("token = ?", auth.HashOpaqueToken(pair.RefreshToken)).First(&old).Error; err != nil {
		t.Fatalf("old refresh row missing: %v", err)
	}
	if !old.Revoked {
		t.Error("rotated token was not revoked")
	}
	if old.RevokedReason != model.RevokeReasonRotation {
		t.Errorf("expected revoke reason %q, got %q", model.RevokeReasonRotation, old.RevokedReason)
	}
	if old.ReplacedByToken == nil || *old.ReplacedByToken != auth.HashOpaqueToken(next.RefreshToken) {
		t.Error("rotation chain link not recorded on the old row")
	}
}

func TestRefreshReuseRevokesDescendants(t *testing.T) {
	db := setupTestDB(t)
	issuer := testIssuer(t, 30*time.Minute)
	audit := &recordingAudit{}
	svc := NewTokenService(db, issuer, NewPermissionService(db, nil, time.Minute), NewBlacklistService(db), audit)

	createTestUser(t, db, "carlos", "carlos@example.com", "segredo-forte")

	first, err := svc.Login(context.Background(), "carlos", "segredo-forte", "", "")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	second, err := svc.Refresh(context.Background(), first.RefreshToken, "", "")
	if err != nil {
		t.Fatalf("first refresh failed: %v", err)
	}

	// Presenting the already-rotated token is the theft signal.
	_, err = svc.Refresh(context.Background(), first.RefreshToken, "", "")
	if apperror.KindOf(err) != apperror.KindAuthorization {
		t.Fatalf("expected authorization error on reuse, got %v", err)
	}
	if !audit.hasSecurityEvent("refresh_token_reuse") {
		t.Error("reuse was not reported as a security event")
	}

	// The descendant minted from the stolen token must be dead too.
	var descendant model.RefreshToken
	if err := db.Where("token = ?", auth.HashOpaqueToken(second.RefreshToken)).First(&descendant).Error; err != nil {
		t.Fatalf("descendant row missing: %v", err)
	}
	if !descendant.Revoked {
		t.Error("descendant of reused token was not revoked")
	}
	if descendant.RevokedReason != model.RevokeReasonReuseDetected {
		t.Errorf("expected revoke reason %q, got %q", model.RevokeReasonReuseDetected, descendant.RevokedReason)
	}

	if _, err := svc.Refresh(context.Background(), second.RefreshToken, "", ""); apperror.KindOf(err) != apperror.KindAuthorization {
		t.Errorf("expected authorization error when refreshing a revoked descendant, got %v", err)
	}
}

func TestRefreshConcurrentRotationKeepsSingleChain(t *testing.T) {
	db := setupTestDB(t)
	issuer := testIssuer(t, 30*time.Minute)
	svc := NewTokenService(db, issuer, NewPermissionService(db, nil, time.Minute), NewBlacklistService(db), &recordingAudit{})

	user := createTestUser(t, db, "beatriz", "beatriz@example.com", "segredo-forte")

	pair, err := svc.Login(context.Background(), "beatriz", "segredo-forte", "", "")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	// Two clients racing to rotate the same single-use token. The
	// conditional revocation lets at most one rotation commit; the
	// other must not leave a second live chain behind.
	var wg sync.WaitGroup
	var successes int32
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.Refresh(context.Background(), pair.RefreshToken, "", ""); err == nil {
				atomic.AddInt32(&successes, 1)
			}
		}()
	}
	wg.Wait()

	if successes > 1 {
		t.Fatalf("expected at most one rotation to succeed, got %d", successes)
	}

	var live int64
	db.Model(&model.RefreshToken{}).
		Where("usuario_id = ? AND revoked = ?", user.ID, false).
		Count(&live)
	if live != 1 {
		t.Errorf("expected exactly 1 live refresh row after the race, got %d", live)
	}
}

func TestRefreshExpiredToken(t *testing.T) {
	db := setupTestDB(t)
	issuer := testIssuer(t, 30*time.Minute)
	svc := NewTokenService(db, issuer, NewPermissionService(db, nil, time.Minute), NewBlacklistService(db), &recordingAudit{})

	createTestUser(t, db, "rita", "rita@example.com", "segredo-forte")
	pair, err := svc.Login(context.Background(), "rita", "segredo-forte", "", "")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	db.Model(&model.RefreshToken{}).
		Where("token = ?", auth.HashOpaqueToken(pair.RefreshToken)).
		UpdateColumn("expires_at", time.Now().Add(-time.Minute))

	if _, err := svc.Refresh(context.Background(), pair.RefreshToken, "", ""); apperror.KindOf(err) != apperror.KindAuthorization {
		t.Errorf("expected authorization error for expired token, got %v", err)
	}
}

func TestLogoutAllRevokesEveryLiveSession(t *testing.T) {
	db := setupTestDB(t)
	issuer := testIssuer(t, 30*time.Minute)
	svc := NewTokenService(db, issuer, NewPermissionService(db, nil, time.Minute), NewBlacklistService(db), &recordingAudit{})

	user := createTestUser(t, db, "paulo", "paulo@example.com", "segredo-forte")
	for i := 0; i < 3; i++ {
		if _, err := svc.Login(context.Background(), "paulo", "segredo-forte", "", ""); err != nil {
			t.Fatalf("login %d failed: %v", i, err)
		}
	}

	revoked, err := svc.LogoutAll(context.Background(), user.ID, "10.0.0.9")
	if err != nil {
		t.Fatalf("logout all failed: %v", err)
	}
	if revoked != 3 {
		t.Errorf("expected 3 revoked sessions, got %d", revoked)
	}

	// Idempotent second call finds nothing live.
	revoked, err = svc.LogoutAll(context.Background(), user.ID, "10.0.0.9")
	if err != nil {
		t.Fatalf("second logout all failed: %v", err)
	}
	if revoked != 0 {
		t.Errorf("expected 0 revoked sessions on second call, got %d", revoked)
	}
}

func TestCleanupExpiredRespectsRetention(t *testing.T) {
	db := setupTestDB(t)
	issuer := testIssuer(t, 30*time.Minute)
	svc := NewTokenService(db, issuer, NewPermissionService(db, nil, time.Minute), NewBlacklistService(db), &recordingAudit{})

	user := createTestUser(t, db, "luisa", "luisa@example.com", "segredo-forte")

	old := model.RefreshToken{Token: auth.HashOpaqueToken("old"), UserID: user.ID, ExpiresAt: time.Now().Add(-48 * time.Hour)}
	fresh := model.RefreshToken{Token: auth.HashOpaqueToken("fresh"), UserID: user.ID, ExpiresAt: time.Now().Add(time.Hour)}
	if err := db.Create(&old).Error; err != nil {
		t.Fatal(err)
	}
	if err := db.Create(&fresh).Error; err != nil {
		t.Fatal(err)
	}

	deleted, err := svc.CleanupExpired(context.Background(), 24*time.Hour)
	if err != nil {
		t.Fatalf("cleanup failed: %v", err)
	}
	if deleted != 1 {
		t.Errorf("expected 1 deleted row, got %d", deleted)
	}

	var remaining int64
	db.Model(&model.RefreshToken{}).Count(&remaining)
	if remaining != 1 {
		t.Errorf("expected 1 remaining row, got %d", remaining)
	}
}
