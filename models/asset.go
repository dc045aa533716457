package models

import "time"

// Asset is an inventory item (notebook, monitor, phone...).
type Asset struct {
	AssetID     int        `gorm:"primaryKey;column:asset_id" json:"asset_id"`
	Code        string     `gorm:"column:code;unique" json:"code"`
	Category    string     `gorm:"column:category" json:"category"`
	Description string     `gorm:"column:description" json:"description"`
	Status      string     `gorm:"column:status" json:"status"` // Operativo|En Reparacion|De Baja
	Serial      *string    `gorm:"column:serial" json:"serial,omitempty"`
	CreateAt    *time.Time `gorm:"column:create_at" json:"create_at"`
	UpdateAt    *time.Time `gorm:"column:update_at" json:"update_at"`
	DeleteAt    *time.Time `gorm:"column:delete_at" json:"delete_at,omitempty"`
}

func (Asset) TableName() string {
	return "assets"
}

// AssetAssignment links an asset to the employee currently holding it.
// ReturnedAt is NULL while the assignment is active.
type AssetAssignment struct {
	AssignmentID int        `gorm:"primaryKey;column:assignment_id" json:"assignment_id"`
	AssetID      int        `gorm:"column:asset_id" json:"asset_id"`
	EmployeeID   int        `gorm:"column:employee_id" json:"employee_id"`
	AssignedAt   time.Time  `gorm:"column:assigned_at" json:"assigned_at"`
	ReturnedAt   *time.Time `gorm:"column:returned_at" json:"returned_at,omitempty"`
	Observation  *string    `gorm:"column:observation" json:"observation,omitempty"`

	// Relations
	Asset Asset `gorm:"foreignKey:AssetID" json:"asset,omitempty"`
}

func (AssetAssignment) TableName() string {
	return "asset_assignments"
}
