package services

import (
	"context"
	"testing"
	"time"

	"github.com/prefeitura-digital/beneficios-api/model"
)

func TestBlacklistAddAndCheck(t *testing.T) {
	db := setupTestDB(t)
	svc := NewBlacklistService(db)
	ctx := context.Background()

	err := svc.Add(ctx, "jti-1", 7, model.TokenTypeAccess, time.Now().Add(time.Hour), "logout", "10.0.0.1", "agent", map[string]interface{}{"session": "abc"})
	if err != nil {
		t.Fatalf("add failed: %v", err)
	}

	status, err := svc.Check(ctx, "jti-1")
	if err != nil {
		t.Fatalf("check failed: %v", err)
	}
	if !status.Blacklisted {
		t.Error("expected jti-1 to be blacklisted")
	}
	if status.Reason != "logout" {
		t.Errorf("expected reason logout, got %q", status.Reason)
	}

	if denied, err := svc.IsBlacklisted(ctx, "unknown-jti"); err != nil || denied {
		t.Errorf("unknown jti should not be blacklisted (denied=%v err=%v)", denied, err)
	}
}

func TestBlacklistAddIsIdempotent(t *testing.T) {
	db := setupTestDB(t)
	svc := NewBlacklistService(db)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := svc.Add(ctx, "jti-dup", 7, model.TokenTypeAccess, time.Now().Add(time.Hour), "logout", "", "", nil); err != nil {
			t.Fatalf("add %d failed: %v", i, err)
		}
	}

	var count int64
	db.Model(&model.BlacklistedToken{}).Where("jti = ?", "jti-dup").Count(&count)
	if count != 1 {
		t.Errorf("expected a single row for jti-dup, got %d", count)
	}
}

func TestBlacklistExpiredEntryIsReclaimed(t *testing.T) {
	db := setupTestDB(t)
	svc := NewBlacklistService(db)
	ctx := context.Background()

	if err := svc.Add(ctx, "jti-old", 7, model.TokenTypeAccess, time.Now().Add(-time.Minute), "logout", "", "", nil); err != nil {
		t.Fatalf("add failed: %v", err)
	}

	status, err := svc.Check(ctx, "jti-old")
	if err != nil {
		t.Fatalf("check failed: %v", err)
	}
	if status.Blacklisted {
		t.Error("entry past its expiry must not deny the credential")
	}

	// The lookup reclaims the logically void row.
	var count int64
	db.Model(&model.BlacklistedToken{}).Where("jti = ?", "jti-old").Count(&count)
	if count != 0 {
		t.Errorf("expected expired row to be deleted, found %d", count)
	}
}

func TestBlacklistCleanupExpired(t *testing.T) {
	db := setupTestDB(t)
	svc := NewBlacklistService(db)
	ctx := context.Background()

	svc.Add(ctx, "jti-live", 1, model.TokenTypeAccess, time.Now().Add(time.Hour), "logout", "", "", nil)
	svc.Add(ctx, "jti-dead-1", 1, model.TokenTypeAccess, time.Now().Add(-time.Hour), "logout", "", "", nil)
	svc.Add(ctx, "jti-dead-2", 2, model.TokenTypeRefresh, time.Now().Add(-time.Minute), "logout", "", "", nil)

	deleted, err := svc.CleanupExpired(ctx)
	if err != nil {
		t.Fatalf("cleanup failed: %v", err)
	}
	if deleted != 2 {
		t.Errorf("expected 2 deleted rows, got %d", deleted)
	}

	if denied, _ := svc.IsBlacklisted(ctx, "jti-live"); !denied {
		t.Error("live entry must survive the sweep")
	}
}

func TestUserWideInvalidationWatermark(t *testing.T) {
	db := setupTestDB(t)
	svc := NewBlacklistService(db)
	ctx := context.Background()

	issuedBefore := time.Now().Add(-time.Minute)

	if err := svc.InvalidateAllForUser(ctx, 42, model.TokenTypeAccess, "password_change", "10.0.0.1"); err != nil {
		t.Fatalf("invalidate all failed: %v", err)
	}

	invalidated, err := svc.IsUserInvalidated(ctx, 42, issuedBefore)
	if err != nil {
		t.Fatalf("watermark lookup failed: %v", err)
	}
	if !invalidated {
		t.Error("credential issued before the watermark must be invalidated")
	}

	issuedAfter := time.Now().Add(time.Minute)
	invalidated, err = svc.IsUserInvalidated(ctx, 42, issuedAfter)
	if err != nil {
		t.Fatalf("watermark lookup failed: %v", err)
	}
	if invalidated {
		t.Error("credential issued after the watermark must stay valid")
	}

	// Other users are unaffected.
	if invalidated, _ := svc.IsUserInvalidated(ctx, 43, issuedBefore); invalidated {
		t.Error("watermark must only cover its own user")
	}
}
