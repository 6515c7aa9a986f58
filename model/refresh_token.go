package model

import (
	"time"
)

// Revocation reasons recorded on refresh credentials.
const (
	RevokeReasonRotation       = "rotation"
	RevokeReasonLogout         = "logout"
	RevokeReasonReuseDetected  = "reuse_detected"
	RevokeReasonPasswordChange = "password_changed"
)

// RefreshToken is a persisted refresh credential. The Token column holds
// the SHA-256 hex of the opaque value handed to the client; the raw value
// is never stored. Once Revoked is set the row is terminal and the chain
// continues through ReplacedByToken.
type RefreshToken struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	Token           string     `gorm:"uniqueIndex;size:64;not null" json:"-"`
	UserID          uint       `gorm:"column:usuario_id;index;not null" json:"usuario_id"`
	ExpiresAt       time.Time  `gorm:"index;not null" json:"expires_at"`
	Revoked         bool       `gorm:"not null;default:false" json:"revoked"`
	RevokedAt       *time.Time `json:"revoked_at,omitempty"`
	RevokedByIP     string     `gorm:"size:64" json:"revoked_by_ip,omitempty"`
	RevokedReason   string     `gorm:"size:50" json:"revoked_reason,omitempty"`
	ReplacedByToken *string    `gorm:"size:64;index" json:"-"`
	CreatedByIP     string     `gorm:"size:64" json:"created_by_ip,omitempty"`
	UserAgent       string     `gorm:"size:255" json:"user_agent,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`

	// Relationships
	User User `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
}

// TableName specifies the table name for RefreshToken
func (RefreshToken) TableName() string {
	return "refresh_credentials"
}

// IsExpired checks if the refresh credential has expired
func (t *RefreshToken) IsExpired() bool {
	return time.Now().After(t.ExpiresAt)
}

// IsActive reports whether the credential can still be presented for rotation
func (t *RefreshToken) IsActive() bool {
	return !t.Revoked && !t.IsExpired()
}
