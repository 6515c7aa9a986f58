package services

import (
	"context"
	"crypto/rsa"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prefeitura-digital/beneficios-api/model"
	"github.com/prefeitura-digital/beneficios-api/utils/auth"
	"github.com/prefeitura-digital/beneficios-api/utils/cache"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// setupTestDB opens an isolated in-memory sqlite database migrated with
// the auth core models.
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	err = db.AutoMigrate(
		&model.User{},
		&model.Role{},
		&model.RefreshToken{},
		&model.BlacklistedToken{},
		&model.PasswordResetToken{},
		&model.Permission{},
		&model.UserPermission{},
		&model.RolePermission{},
	)
	if err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}

	return db
}

// createTestUser inserts an active user with the given password
func createTestUser(t *testing.T, db *gorm.DB, username, email, password string) *model.User {
	t.Helper()

	// MinCost keeps the fixtures fast; production hashing uses the
	// real cost via auth.HashPassword.
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("failed to hash fixture password: %v", err)
	}

	user := &model.User{
		Username:     username,
		Email:        email,
		Name:         username,
		PasswordHash: string(hash),
		Active:       true,
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("failed to create test user: %v", err)
	}
	return user
}

// createPermission inserts a permission catalog row
func createPermission(t *testing.T, db *gorm.DB, name string) *model.Permission {
	t.Helper()

	perm := &model.Permission{Name: name}
	if err := db.Create(perm).Error; err != nil {
		t.Fatalf("failed to create permission %s: %v", name, err)
	}
	return perm
}

// attachRole gives the user a role, creating it if needed
func attachRole(t *testing.T, db *gorm.DB, user *model.User, roleName string) *model.Role {
	t.Helper()

	role := &model.Role{Name: roleName}
	if err := db.Where("name = ?", roleName).FirstOrCreate(role).Error; err != nil {
		t.Fatalf("failed to create role %s: %v", roleName, err)
	}
	if err := db.Model(user).Association("Roles").Append(role); err != nil {
		t.Fatalf("failed to attach role: %v", err)
	}
	return role
}

var (
	testKeyOnce sync.Once
	testKey     *rsa.PrivateKey
)

// testIssuer builds a token issuer with a process-wide dev key, so the
// expensive key generation runs once per test binary.
func testIssuer(t *testing.T, accessExpiry time.Duration) *auth.TokenIssuer {
	t.Helper()

	testKeyOnce.Do(func() {
		key, err := auth.GenerateDevKey(2048)
		if err != nil {
			panic(err)
		}
		testKey = key
	})

	issuer, err := auth.NewTokenIssuer(auth.IssuerConfig{
		PrivateKey:    testKey,
		AccessExpiry:  accessExpiry,
		RefreshExpiry: 24 * time.Hour,
		Issuer:        "beneficios-api-test",
	})
	if err != nil {
		t.Fatalf("failed to build test issuer: %v", err)
	}
	return issuer
}

// memoryCache is an in-process ResolutionCache used by tests
type memoryCache struct {
	mu   sync.Mutex
	vals map[string]string
	sets map[string]map[string]bool
}

func newMemoryCache() *memoryCache {
	return &memoryCache{
		vals: make(map[string]string),
		sets: make(map[string]map[string]bool),
	}
}

func (m *memoryCache) Get(ctx context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	val, ok := m.vals[key]
	if !ok {
		return "", cache.ErrNotFound
	}
	return val, nil
}

func (m *memoryCache) Set(ctx context.Context, key string, value interface{}, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vals[key] = fmt.Sprintf("%v", value)
	return nil
}

func (m *memoryCache) Delete(ctx context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.vals, k)
		delete(m.sets, k)
	}
	return nil
}

func (m *memoryCache) AddToSet(ctx context.Context, key string, _ time.Duration, members ...interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sets[key] == nil {
		m.sets[key] = make(map[string]bool)
	}
	for _, member := range members {
		m.sets[key][fmt.Sprintf("%v", member)] = true
	}
	return nil
}

func (m *memoryCache) SetMembers(ctx context.Context, key string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	members := make([]string, 0, len(m.sets[key]))
	for member := range m.sets[key] {
		members = append(members, member)
	}
	return members, nil
}

// recordingAudit captures audit calls for assertions
type recordingAudit struct {
	mu             sync.Mutex
	securityEvents []string
	userActions    []string
}

func (r *recordingAudit) LogSecurityEvent(ctx context.Context, event string, userID uint, clientIP string, details map[string]interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.securityEvents = append(r.securityEvents, event)
}

func (r *recordingAudit) LogUserAction(ctx context.Context, action string, userID uint, clientIP string, details map[string]interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.userActions = append(r.userActions, action)
}

func (r *recordingAudit) hasSecurityEvent(event string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.securityEvents {
		if e == event {
			return true
		}
	}
	return false
}
