package model

import (
	"time"
)

// Permission scope types. A GLOBAL grant applies everywhere; a UNIT grant
// applies only within one organizational unit.
const (
	ScopeGlobal = "GLOBAL"
	ScopeUnit   = "UNIT"
)

// Permission is a named capability of the form module.resource.operation.
// A segment may be the wildcard "*" (e.g. "beneficio.*", "*.*").
// Catalog data; rarely mutated at runtime.
type Permission struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Name        string    `gorm:"uniqueIndex;not null;size:150" json:"name"`
	Description string    `gorm:"size:255" json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// TableName specifies the table name for Permission
func (Permission) TableName() string {
	return "permissions"
}

// UserPermission is a direct, possibly scoped, grant (or explicit revoke
// when Granted=false). At most one active row per
// (user, permission, scope type, scope id) tuple; updates mutate in place.
type UserPermission struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	UserID       uint       `gorm:"column:usuario_id;index:idx_user_perm_scope,unique;not null" json:"usuario_id"`
	PermissionID uint       `gorm:"column:permissao_id;index:idx_user_perm_scope,unique;not null" json:"permissao_id"`
	ScopeType    string     `gorm:"index:idx_user_perm_scope,unique;size:10;not null;default:GLOBAL" json:"scope_type"`
	ScopeID      *uint      `gorm:"index:idx_user_perm_scope,unique" json:"scope_id,omitempty"`
	Granted      bool       `gorm:"not null;default:true" json:"granted"`
	ValidUntil   *time.Time `json:"valid_until,omitempty"`
	CreatedBy    uint       `json:"created_by,omitempty"`
	UpdatedBy    uint       `json:"updated_by,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`

	// Relationships
	User       User       `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
	Permission Permission `gorm:"foreignKey:PermissionID;constraint:OnDelete:CASCADE" json:"permission,omitempty"`
}

// TableName specifies the table name for UserPermission
func (UserPermission) TableName() string {
	return "user_permissions"
}

// IsEffective reports whether the grant currently confers the permission
func (up *UserPermission) IsEffective() bool {
	if !up.Granted {
		return false
	}
	if up.ValidUntil != nil && time.Now().After(*up.ValidUntil) {
		return false
	}
	return true
}

// RolePermission attaches a permission to a role. Role grants are always
// implicitly GLOBAL.
type RolePermission struct {
	RoleID       uint `gorm:"primaryKey" json:"role_id"`
	PermissionID uint `gorm:"column:permissao_id;primaryKey" json:"permissao_id"`

	// Relationships
	Role       Role       `gorm:"foreignKey:RoleID;constraint:OnDelete:CASCADE" json:"-"`
	Permission Permission `gorm:"foreignKey:PermissionID;constraint:OnDelete:CASCADE" json:"-"`
}

// TableName specifies the table name for RolePermission
func (RolePermission) TableName() string {
	return "role_permissions"
}
