package model

import (
	"time"
)

// Invalidation reasons recorded on password reset tokens.
const (
	ResetInvalidationNewRequest      = "new_request"
	ResetInvalidationPasswordChanged = "password_changed"
	ResetInvalidationMaxAttempts     = "max_attempts_exceeded"
)

// PasswordResetToken stores a single-use password reset token. Only the
// bcrypt hash of the token is persisted; the plaintext goes out through
// the mail channel and is never written to storage. At most one active
// (non-used, non-expired) token exists per user.
type PasswordResetToken struct {
	ID                 uint       `gorm:"primaryKey" json:"id"`
	TokenHash          string     `gorm:"not null" json:"-"`
	UserID             uint       `gorm:"column:usuario_id;index;not null" json:"usuario_id"`
	ExpiresAt          time.Time  `gorm:"index;not null" json:"expires_at"`
	IsUsed             bool       `gorm:"not null;default:false" json:"is_used"`
	UsedAt             *time.Time `json:"used_at,omitempty"`
	InvalidationReason string     `gorm:"size:50" json:"invalidation_reason,omitempty"`
	Attempts           int        `gorm:"not null;default:0" json:"attempts"`
	ClientIP           string     `gorm:"size:64" json:"client_ip,omitempty"`
	UserAgent          string     `gorm:"size:255" json:"user_agent,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`

	// Relationships
	User User `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
}

// TableName specifies the table name for PasswordResetToken
func (PasswordResetToken) TableName() string {
	return "password_reset_tokens"
}

// IsExpired checks if the reset token has expired
func (p *PasswordResetToken) IsExpired() bool {
	return time.Now().After(p.ExpiresAt)
}

// IsActive reports whether the token may still be matched against input
func (p *PasswordResetToken) IsActive() bool {
	return !p.IsUsed && !p.IsExpired()
}

// MinutesRemaining returns how many whole minutes remain before expiry
func (p *PasswordResetToken) MinutesRemaining() int {
	remaining := time.Until(p.ExpiresAt)
	if remaining <= 0 {
		return 0
	}
	return int(remaining.Minutes())
}
