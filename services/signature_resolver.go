package services

import (
	"context"

	"portalti-api/models"
)

// SignatureResolver builds the ordered signature slate for a document and
// resolves individual slots (RRHH is resolved lazily at approval time).
type SignatureResolver struct {
	dir Directory
}

func NewSignatureResolver(dir Directory) *SignatureResolver {
	return &SignatureResolver{dir: dir}
}

// isEligibleDefaultSigner is the exclusion policy for default assignees:
// administrators never occupy a slot by default. They may still countersign
// through the privileged-role override at signing time.
func isEligibleDefaultSigner(b SignerBinding) bool {
	return !b.IsAdmin
}

// ResolveDefaultSlots produces the four mandatory creation-time slots in
// fixed order. presetJefeID, when non-nil, pins the JefeInmediato slot to a
// specific user instead of consulting the directory.
func (r *SignatureResolver) ResolveDefaultSlots(ctx context.Context, company string, presetJefe *SignerBinding) ([]models.SignatureSlot, error) {
	slots := make([]models.SignatureSlot, 0, len(models.DefaultSlotRoles))
	for i, role := range models.DefaultSlotRoles {
		if role == models.RoleJefeInmediato && presetJefe != nil {
			slots = append(slots, newSlot(role, i+1, presetJefe))
			continue
		}
		slot, err := r.ResolveSlot(ctx, role, company, i+1)
		if err != nil {
			return nil, err
		}
		slots = append(slots, slot)
	}
	return slots, nil
}

// ResolveSlot resolves one role to a Pending slot. Company-scoped bindings
// are preferred; company-agnostic bindings are the documented fallback. When
// every eligible candidate is an administrator the slot is left unassigned.
func (r *SignatureResolver) ResolveSlot(ctx context.Context, role, company string, ordinal int) (models.SignatureSlot, error) {
	binding, err := r.findEligible(ctx, role, company)
	if err != nil {
		return models.SignatureSlot{}, err
	}
	return newSlot(role, ordinal, binding), nil
}

func (r *SignatureResolver) findEligible(ctx context.Context, role, company string) (*SignerBinding, error) {
	scopes := []string{company}
	if company != "" {
		scopes = append(scopes, "") // company-agnostic fallback
	}
	for _, scope := range scopes {
		bindings, err := r.dir.Lookup(ctx, role, scope)
		if err != nil {
			return nil, err
		}
		for i := range bindings {
			if isEligibleDefaultSigner(bindings[i]) {
				return &bindings[i], nil
			}
		}
	}
	return nil, nil
}

func newSlot(role string, ordinal int, b *SignerBinding) models.SignatureSlot {
	slot := models.SignatureSlot{
		Role:      role,
		Order:     ordinal,
		Mandatory: true,
		Status:    models.SlotPendiente,
	}
	if b != nil {
		id := b.UserID
		name := b.DisplayName
		if name == "" {
			name = b.Username
		}
		slot.SignerID = &id
		slot.SignerName = &name
	}
	return slot
}
