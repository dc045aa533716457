package models

import "time"

// Employee is a row of the payroll (nómina). Employees may or may not have a
// login account; UserID links the two when they do.
type Employee struct {
	EmployeeID int        `gorm:"primaryKey;column:employee_id" json:"employee_id"`
	FullName   string     `gorm:"column:full_name" json:"full_name"`
	Rut        string     `gorm:"column:rut;unique" json:"rut"`
	Company    string     `gorm:"column:company" json:"company"`
	Department *string    `gorm:"column:department" json:"department,omitempty"`
	Position   *string    `gorm:"column:position" json:"position,omitempty"`
	Email      *string    `gorm:"column:email" json:"email,omitempty"`
	UserID     *int       `gorm:"column:user_id" json:"user_id,omitempty"`
	IsActive   bool       `gorm:"column:is_active" json:"is_active"`
	CreateAt   *time.Time `gorm:"column:create_at" json:"create_at"`
	UpdateAt   *time.Time `gorm:"column:update_at" json:"update_at"`
	DeleteAt   *time.Time `gorm:"column:delete_at" json:"delete_at,omitempty"`

	// Relations
	User *User `gorm:"foreignKey:UserID" json:"user,omitempty"`
}

func (Employee) TableName() string {
	return "employees"
}
