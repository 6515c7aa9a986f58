package model

import (
	"time"

	"gorm.io/datatypes"
)

// Token classes stored in the blacklist.
const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

// BlacklistedToken marks a signed credential identifier (JTI) as invalid
// regardless of its signature or expiry. ExpiresAt is copied from the
// original credential so rows age out on their own; an expired row is
// logically void and is reclaimed by lookups or the periodic sweep.
type BlacklistedToken struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	// Sized for both UUID JTIs and synthetic user-invalidation markers.
	JTI       string         `gorm:"column:jti;uniqueIndex;size:100;not null" json:"jti"`
	UserID    uint           `gorm:"column:usuario_id;index" json:"usuario_id"`
	TokenType string         `gorm:"size:16;not null;default:access" json:"token_type"`
	ExpiresAt time.Time      `gorm:"index;not null" json:"expires_at"`
	Reason    string         `gorm:"size:100" json:"reason"` // logout, rotation, security, password_changed
	ClientIP  string         `gorm:"size:64" json:"client_ip,omitempty"`
	UserAgent string         `gorm:"size:255" json:"user_agent,omitempty"`
	Metadata  datatypes.JSON `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// TableName specifies the table name for BlacklistedToken
func (BlacklistedToken) TableName() string {
	return "jwt_blacklist"
}

// IsExpired checks if the blacklist entry has outlived the credential it denies
func (b *BlacklistedToken) IsExpired() bool {
	return time.Now().After(b.ExpiresAt)
}
