package services

import (
	"context"
	"time"

	"portalti-api/models"
)

// The workflow core talks to the outside world through the seams below.
// GORM-backed implementations live in document_store_gorm.go and
// directory_gorm.go; tests substitute in-memory fakes.

// DocumentQuery filters and pages the sign-off listing.
type DocumentQuery struct {
	Status   string
	Search   string // matched against employee name, rut and reason
	Page     int
	PageSize int
}

// DocumentStore persists the sign-off aggregate. Update is guarded by an
// optimistic compare-and-swap on the version column and must return
// ErrVersionConflict on a stale write.
type DocumentStore interface {
	Get(ctx context.Context, id int) (*models.PazYSalvo, error)
	Create(ctx context.Context, doc *models.PazYSalvo) error
	Update(ctx context.Context, doc *models.PazYSalvo, expectedVersion int) error
	Search(ctx context.Context, q DocumentQuery) ([]models.PazYSalvo, int64, error)
}

// SignerBinding is an active role binding resolved to its account, with the
// employee display name already preferred over the login when one exists.
type SignerBinding struct {
	UserID        int
	Username      string
	DisplayName   string
	Email         string
	IsAdmin       bool
	SignaturePath *string
}

// Directory resolves people: role bindings, delegations, employees and the
// asset assignments feeding the creation-time snapshot.
type Directory interface {
	// Lookup returns active bindings for a role. company == "" looks up
	// company-agnostic bindings (the documented fallback).
	Lookup(ctx context.Context, role, company string) ([]SignerBinding, error)
	// HasDelegation reports whether userID holds a delegation for the role
	// valid at the given instant.
	HasDelegation(ctx context.Context, role string, userID int, at time.Time) (bool, error)
	EmployeeByID(ctx context.Context, id int) (*models.Employee, error)
	UserByID(ctx context.Context, id int) (*models.User, error)
	// EnsureJefeAccount guarantees the nominated supervisor has a login
	// account (minting temporary inactive credentials when missing) and an
	// active JefeInmediato binding for the company. Idempotent.
	EnsureJefeAccount(ctx context.Context, employeeID int, company string) (*SignerBinding, error)
	// ActiveAssetSnapshots freezes the employee's current assignments.
	ActiveAssetSnapshots(ctx context.Context, employeeID int, at time.Time) ([]models.AssetSnapshot, error)
}

// Notifier delivers user and role targeted notifications. Fire-and-forget:
// the orchestrator logs failures and never lets them fail a transition.
type Notifier interface {
	Notify(ctx context.Context, userID int, title, message, refType string, refID int) error
	NotifyRole(ctx context.Context, role, title, message, refType string, refID int) error
}

// DocumentRenderer renders the closing certificate for a document snapshot.
type DocumentRenderer interface {
	Render(doc *models.PazYSalvo) ([]byte, error)
}

// FileStorage persists rendered artifacts. Save returns the stored path;
// Remove deletes a stored artifact when the write it belonged to never
// committed.
type FileStorage interface {
	Save(data []byte, logicalPath string) (string, error)
	Remove(storedPath string) error
}
