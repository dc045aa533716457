package models

import (
	"time"
)

// Role names stored in users.rol. Authorization is role-name based; admin and
// soporte are the privileged roles that may act on any signature slot.
const (
	RoleAdmin   = "admin"
	RoleSoporte = "soporte"
	RoleUsuario = "usuario"
)

type User struct {
	UserID        int        `gorm:"primaryKey;column:user_id" json:"user_id"`
	Username      string     `gorm:"column:username;unique" json:"username"`
	DisplayName   *string    `gorm:"column:display_name" json:"display_name,omitempty"`
	Email         string     `gorm:"column:email;unique" json:"email"`
	Password      string     `gorm:"column:password" json:"-"`
	Role          string     `gorm:"column:rol" json:"rol"`
	IsActive      bool       `gorm:"column:is_active" json:"is_active"`
	SignaturePath *string    `gorm:"column:signature_path" json:"signature_path,omitempty"`
	CreateAt      *time.Time `gorm:"column:create_at" json:"create_at"`
	UpdateAt      *time.Time `gorm:"column:update_at" json:"update_at"`
	DeleteAt      *time.Time `gorm:"column:delete_at" json:"delete_at,omitempty"`
}

func (User) TableName() string {
	return "users"
}

// IsAdmin reports whether the account holds the administrator role.
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// IsPrivileged reports whether the account may act on any signature slot.
func (u *User) IsPrivileged() bool {
	return u.Role == RoleAdmin || u.Role == RoleSoporte
}

// Name returns the display name when present, otherwise the login.
func (u *User) Name() string {
	if u.DisplayName != nil && *u.DisplayName != "" {
		return *u.DisplayName
	}
	return u.Username
}
