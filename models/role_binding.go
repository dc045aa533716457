package models

import "time"

// RoleAssignment binds a user to a named approval role, optionally scoped to
// a company. Company NULL means the binding applies to every company and is
// used as an explicit fallback when no company-scoped binding exists.
type RoleAssignment struct {
	AssignmentID int        `gorm:"primaryKey;column:assignment_id" json:"assignment_id"`
	Role         string     `gorm:"column:rol" json:"rol"`
	UserID       int        `gorm:"column:user_id" json:"user_id"`
	Company      *string    `gorm:"column:company" json:"company,omitempty"`
	IsActive     bool       `gorm:"column:is_active" json:"is_active"`
	CreateAt     *time.Time `gorm:"column:create_at" json:"create_at"`
	UpdateAt     *time.Time `gorm:"column:update_at" json:"update_at"`
	DeleteAt     *time.Time `gorm:"column:delete_at" json:"delete_at,omitempty"`

	// Relations
	User User `gorm:"foreignKey:UserID" json:"user,omitempty"`
}

func (RoleAssignment) TableName() string {
	return "role_assignments"
}

// RoleDelegation is a time-boxed grant letting a substitute sign on behalf of
// a role holder. Valid only while now ∈ [StartsAt, EndsAt) and IsActive.
type RoleDelegation struct {
	DelegationID   int        `gorm:"primaryKey;column:delegation_id" json:"delegation_id"`
	Role           string     `gorm:"column:rol" json:"rol"`
	DelegateUserID int        `gorm:"column:delegate_user_id" json:"delegate_user_id"`
	GrantedBy      int        `gorm:"column:granted_by" json:"granted_by"`
	StartsAt       time.Time  `gorm:"column:starts_at" json:"starts_at"`
	EndsAt         time.Time  `gorm:"column:ends_at" json:"ends_at"`
	IsActive       bool       `gorm:"column:is_active" json:"is_active"`
	CreateAt       *time.Time `gorm:"column:create_at" json:"create_at"`
}

func (RoleDelegation) TableName() string {
	return "role_delegations"
}

// Covers reports whether the delegation authorizes signing at the given time.
func (d *RoleDelegation) Covers(at time.Time) bool {
	return d.IsActive && !at.Before(d.StartsAt) && at.Before(d.EndsAt)
}
