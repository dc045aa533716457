package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"portalti-api/config"
	"portalti-api/models"
	"portalti-api/utils"
)

// tempPasswordSeed is the default credential minted for nominated supervisors
// without an account. The account is created inactive and must be enabled and
// re-credentialed before first login.
const tempPasswordSeed = "PortalTI.2024!"

// GormDirectory is the MySQL-backed Directory.
type GormDirectory struct {
	db *gorm.DB
}

func NewGormDirectory(db *gorm.DB) *GormDirectory {
	if db == nil {
		db = config.DB
	}
	return &GormDirectory{db: db}
}

// Lookup returns active bindings for a role, resolved to their accounts.
// company == "" selects company-agnostic bindings only. The display name of a
// linked employee record wins over the account's own name.
func (d *GormDirectory) Lookup(ctx context.Context, role, company string) ([]SignerBinding, error) {
	query := d.db.WithContext(ctx).Model(&models.RoleAssignment{}).
		Where("rol = ? AND is_active = ? AND delete_at IS NULL", role, true)
	if company == "" {
		query = query.Where("company IS NULL")
	} else {
		query = query.Where("company = ?", company)
	}

	var assignments []models.RoleAssignment
	if err := query.Order("assignment_id").Find(&assignments).Error; err != nil {
		return nil, err
	}

	bindings := make([]SignerBinding, 0, len(assignments))
	for _, a := range assignments {
		var user models.User
		err := d.db.WithContext(ctx).
			Where("user_id = ? AND delete_at IS NULL", a.UserID).
			First(&user).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				continue // stale binding, skip
			}
			return nil, err
		}
		bindings = append(bindings, d.toBinding(ctx, &user))
	}
	return bindings, nil
}

func (d *GormDirectory) toBinding(ctx context.Context, user *models.User) SignerBinding {
	binding := SignerBinding{
		UserID:        user.UserID,
		Username:      user.Username,
		DisplayName:   user.Name(),
		Email:         user.Email,
		IsAdmin:       user.IsAdmin(),
		SignaturePath: user.SignaturePath,
	}
	// Prefer the payroll display name when the account is linked to one.
	var emp models.Employee
	err := d.db.WithContext(ctx).
		Where("user_id = ? AND delete_at IS NULL", user.UserID).
		First(&emp).Error
	if err == nil && emp.FullName != "" {
		binding.DisplayName = emp.FullName
	}
	return binding
}

// HasDelegation reports whether userID holds a delegation for the role valid
// at the given instant. The time window and active flag are evaluated by
// RoleDelegation.Covers, the single definition of delegation validity.
func (d *GormDirectory) HasDelegation(ctx context.Context, role string, userID int, at time.Time) (bool, error) {
	var delegations []models.RoleDelegation
	err := d.db.WithContext(ctx).
		Where("rol = ? AND delegate_user_id = ?", role, userID).
		Find(&delegations).Error
	if err != nil {
		return false, err
	}
	for i := range delegations {
		if delegations[i].Covers(at) {
			return true, nil
		}
	}
	return false, nil
}

func (d *GormDirectory) EmployeeByID(ctx context.Context, id int) (*models.Employee, error) {
	var emp models.Employee
	err := d.db.WithContext(ctx).
		Where("employee_id = ? AND delete_at IS NULL", id).
		First(&emp).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &NotFoundError{Entity: "employee", ID: id}
		}
		return nil, err
	}
	return &emp, nil
}

func (d *GormDirectory) UserByID(ctx context.Context, id int) (*models.User, error) {
	var user models.User
	err := d.db.WithContext(ctx).
		Where("user_id = ? AND delete_at IS NULL", id).
		First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &NotFoundError{Entity: "user", ID: id}
		}
		return nil, err
	}
	return &user, nil
}

// EnsureJefeAccount guarantees the nominated supervisor can sign: an account
// (minted inactive with temporary credentials when missing) plus an active
// JefeInmediato binding for the company. Runs in its own transaction and is
// idempotent.
func (d *GormDirectory) EnsureJefeAccount(ctx context.Context, employeeID int, company string) (*SignerBinding, error) {
	emp, err := d.EmployeeByID(ctx, employeeID)
	if err != nil {
		return nil, err
	}

	var user models.User
	err = d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if emp.UserID != nil {
			if err := tx.Where("user_id = ? AND delete_at IS NULL", *emp.UserID).First(&user).Error; err != nil {
				return err
			}
		} else {
			hashed, err := bcrypt.GenerateFromPassword([]byte(tempPasswordSeed), bcrypt.DefaultCost)
			if err != nil {
				return err
			}
			now := time.Now()
			name := emp.FullName
			email := supervisorEmail(emp)
			user = models.User{
				Username:    supervisorUsername(emp),
				DisplayName: &name,
				Email:       email,
				Password:    string(hashed),
				Role:        models.RoleUsuario,
				IsActive:    false,
				CreateAt:    &now,
				UpdateAt:    &now,
			}
			if err := tx.Create(&user).Error; err != nil {
				return err
			}
			if err := tx.Model(&models.Employee{}).
				Where("employee_id = ?", emp.EmployeeID).
				Update("user_id", user.UserID).Error; err != nil {
				return err
			}
		}

		var count int64
		if err := tx.Model(&models.RoleAssignment{}).
			Where("rol = ? AND user_id = ? AND is_active = ? AND delete_at IS NULL",
				models.RoleJefeInmediato, user.UserID, true).
			Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			now := time.Now()
			assignment := models.RoleAssignment{
				Role:     models.RoleJefeInmediato,
				UserID:   user.UserID,
				Company:  &company,
				IsActive: true,
				CreateAt: &now,
			}
			if err := tx.Create(&assignment).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	binding := d.toBinding(ctx, &user)
	if emp.FullName != "" {
		binding.DisplayName = emp.FullName
	}
	return &binding, nil
}

func (d *GormDirectory) ActiveAssetSnapshots(ctx context.Context, employeeID int, at time.Time) ([]models.AssetSnapshot, error) {
	var assignments []models.AssetAssignment
	err := d.db.WithContext(ctx).Preload("Asset").
		Where("employee_id = ? AND returned_at IS NULL", employeeID).
		Order("assignment_id").
		Find(&assignments).Error
	if err != nil {
		return nil, err
	}

	snapshots := make([]models.AssetSnapshot, 0, len(assignments))
	for _, a := range assignments {
		assetID := a.AssetID
		snap := models.AssetSnapshot{
			AssetID:     &assetID,
			Description: a.Asset.Description,
			Status:      a.Asset.Status,
			SnapshotAt:  at,
		}
		if a.Observation != nil {
			snap.Observation = *a.Observation
		}
		snapshots = append(snapshots, snap)
	}
	return snapshots, nil
}

func supervisorUsername(emp *models.Employee) string {
	rut := strings.ReplaceAll(utils.NormalizeRut(emp.Rut), "-", "")
	return strings.ToLower(rut)
}

func supervisorEmail(emp *models.Employee) string {
	if emp.Email != nil && utils.ValidateEmail(*emp.Email) {
		return *emp.Email
	}
	return fmt.Sprintf("%s@portalti.local", supervisorUsername(emp))
}
