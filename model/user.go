package model

import (
	"time"
)

// User represents a system operator able to authenticate against the
// benefits backend. Business-domain relations (citizens, benefits) live
// in their own subsystems and are not modeled here.
type User struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	Username     string     `gorm:"uniqueIndex;not null;size:100" json:"username"`
	Email        string     `gorm:"uniqueIndex;not null;size:255" json:"email"`
	Name         string     `gorm:"size:255" json:"name"`
	PasswordHash string     `gorm:"not null" json:"-"` // Never expose password in JSON
	Active       bool       `gorm:"not null;default:true" json:"active"`
	UnidadeID    *uint      `gorm:"column:unidade_id;index" json:"unidade_id,omitempty"`
	LastLoginAt  *time.Time `json:"last_login_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`

	// Relationships
	Roles []Role `gorm:"many2many:user_roles;" json:"roles,omitempty"`
}

// TableName specifies the table name for User
func (User) TableName() string {
	return "usuarios"
}

// RoleNames returns the names of all roles held by the user
func (u *User) RoleNames() []string {
	names := make([]string, 0, len(u.Roles))
	for _, r := range u.Roles {
		names = append(names, r.Name)
	}
	return names
}

// Role is a coarse-grained permission group (admin, gestor, tecnico, ...)
type Role struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Name        string    `gorm:"uniqueIndex;not null;size:50" json:"name"`
	Description string    `gorm:"size:255" json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// TableName specifies the table name for Role
func (Role) TableName() string {
	return "roles"
}
