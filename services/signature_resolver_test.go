package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"portalti-api/models"
)

func resolverDirectory() *fakeDirectory {
	dir := newFakeDirectory()
	dir.bindings[bindingKey(models.RoleJefeInmediato, "Acme")] = []SignerBinding{
		{UserID: 1, Username: "jefe", DisplayName: "Jefe Acme"},
	}
	dir.bindings[bindingKey(models.RoleContabilidad, "Acme")] = []SignerBinding{
		{UserID: 2, Username: "conta", DisplayName: "Conta Acme"},
	}
	dir.bindings[bindingKey(models.RoleInformatica, "Acme")] = []SignerBinding{
		{UserID: 3, Username: "info", DisplayName: "Info Acme"},
	}
	dir.bindings[bindingKey(models.RoleGerenciaFinanzas, "Acme")] = []SignerBinding{
		{UserID: 4, Username: "gerencia", DisplayName: "Gerencia Acme"},
	}
	return dir
}

func TestResolveDefaultSlotsOrder(t *testing.T) {
	r := NewSignatureResolver(resolverDirectory())

	slots, err := r.ResolveDefaultSlots(context.Background(), "Acme", nil)
	require.NoError(t, err)
	require.Len(t, slots, 4)

	for i, role := range models.DefaultSlotRoles {
		assert.Equal(t, role, slots[i].Role)
		assert.Equal(t, i+1, slots[i].Order)
		assert.True(t, slots[i].Mandatory)
		assert.Equal(t, models.SlotPendiente, slots[i].Status)
		require.NotNil(t, slots[i].SignerID)
	}
	assert.Equal(t, 1, *slots[0].SignerID)
	assert.Equal(t, "Jefe Acme", *slots[0].SignerName)
}

func TestResolveDefaultSlotsPresetJefe(t *testing.T) {
	r := NewSignatureResolver(resolverDirectory())

	preset := &SignerBinding{UserID: 99, Username: "nominado", DisplayName: "Jefe Nominado"}
	slots, err := r.ResolveDefaultSlots(context.Background(), "Acme", preset)
	require.NoError(t, err)

	require.NotNil(t, slots[0].SignerID)
	assert.Equal(t, 99, *slots[0].SignerID)
	assert.Equal(t, "Jefe Nominado", *slots[0].SignerName)
	// Remaining slots still resolved from the directory.
	assert.Equal(t, 2, *slots[1].SignerID)
}

func TestResolveSkipsAdminsForDefaultAssignment(t *testing.T) {
	dir := resolverDirectory()
	dir.bindings[bindingKey(models.RoleInformatica, "Acme")] = []SignerBinding{
		{UserID: 10, Username: "admin1", IsAdmin: true},
		{UserID: 3, Username: "info", DisplayName: "Info Acme"},
	}
	r := NewSignatureResolver(dir)

	slot, err := r.ResolveSlot(context.Background(), models.RoleInformatica, "Acme", 3)
	require.NoError(t, err)
	require.NotNil(t, slot.SignerID)
	assert.Equal(t, 3, *slot.SignerID)
}

func TestResolveLeavesSlotUnassignedWhenOnlyAdmins(t *testing.T) {
	dir := resolverDirectory()
	dir.bindings[bindingKey(models.RoleInformatica, "Acme")] = []SignerBinding{
		{UserID: 10, Username: "admin1", IsAdmin: true},
		{UserID: 11, Username: "admin2", IsAdmin: true},
	}
	r := NewSignatureResolver(dir)

	slot, err := r.ResolveSlot(context.Background(), models.RoleInformatica, "Acme", 3)
	require.NoError(t, err)
	assert.Nil(t, slot.SignerID)
	assert.Nil(t, slot.SignerName)
	assert.Equal(t, models.SlotPendiente, slot.Status)
	assert.True(t, slot.Mandatory)
}

func TestResolveFallsBackToGlobalBinding(t *testing.T) {
	dir := resolverDirectory()
	delete(dir.bindings, bindingKey(models.RoleContabilidad, "Acme"))
	dir.bindings[bindingKey(models.RoleContabilidad, "")] = []SignerBinding{
		{UserID: 20, Username: "conta-corp", DisplayName: "Conta Corporativa"},
	}
	r := NewSignatureResolver(dir)

	slot, err := r.ResolveSlot(context.Background(), models.RoleContabilidad, "Acme", 2)
	require.NoError(t, err)
	require.NotNil(t, slot.SignerID)
	assert.Equal(t, 20, *slot.SignerID)
}

func TestResolvePrefersCompanyScopedBinding(t *testing.T) {
	dir := resolverDirectory()
	dir.bindings[bindingKey(models.RoleContabilidad, "")] = []SignerBinding{
		{UserID: 20, Username: "conta-corp", DisplayName: "Conta Corporativa"},
	}
	r := NewSignatureResolver(dir)

	slot, err := r.ResolveSlot(context.Background(), models.RoleContabilidad, "Acme", 2)
	require.NoError(t, err)
	require.NotNil(t, slot.SignerID)
	assert.Equal(t, 2, *slot.SignerID)
}

func TestResolveFallsBackToLoginWhenNoDisplayName(t *testing.T) {
	dir := resolverDirectory()
	dir.bindings[bindingKey(models.RoleGerenciaFinanzas, "Acme")] = []SignerBinding{
		{UserID: 4, Username: "gerencia"},
	}
	r := NewSignatureResolver(dir)

	slot, err := r.ResolveSlot(context.Background(), models.RoleGerenciaFinanzas, "Acme", 4)
	require.NoError(t, err)
	require.NotNil(t, slot.SignerName)
	assert.Equal(t, "gerencia", *slot.SignerName)
}
