package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"portalti-api/models"
)

// ── In-memory collaborators ──

type memStore struct {
	mu        sync.Mutex
	seq       int
	docs      map[int]*models.PazYSalvo
	updateErr error // forced failure for the next Update
}

func newMemStore() *memStore {
	return &memStore{docs: make(map[int]*models.PazYSalvo)}
}

func cloneDoc(doc *models.PazYSalvo) *models.PazYSalvo {
	raw, _ := json.Marshal(doc)
	var out models.PazYSalvo
	_ = json.Unmarshal(raw, &out)
	return &out
}

func (s *memStore) Get(ctx context.Context, id int) (*models.PazYSalvo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[id]
	if !ok {
		return nil, &NotFoundError{Entity: "paz y salvo", ID: id}
	}
	return cloneDoc(doc), nil
}

func (s *memStore) Create(ctx context.Context, doc *models.PazYSalvo) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	doc.ID = s.seq
	doc.Version = 1
	s.docs[doc.ID] = cloneDoc(doc)
	return nil
}

func (s *memStore) Update(ctx context.Context, doc *models.PazYSalvo, expectedVersion int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.updateErr != nil {
		return s.updateErr
	}
	current, ok := s.docs[doc.ID]
	if !ok {
		return &NotFoundError{Entity: "paz y salvo", ID: doc.ID}
	}
	if current.Version != expectedVersion {
		return ErrVersionConflict
	}
	doc.Version = expectedVersion + 1
	s.docs[doc.ID] = cloneDoc(doc)
	return nil
}

func (s *memStore) Search(ctx context.Context, q DocumentQuery) ([]models.PazYSalvo, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]int, 0, len(s.docs))
	for id := range s.docs {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	matched := make([]models.PazYSalvo, 0)
	needle := strings.ToLower(q.Search)
	for _, id := range ids {
		doc := s.docs[id]
		if q.Status != "" && doc.Status != q.Status {
			continue
		}
		if needle != "" {
			haystack := strings.ToLower(doc.EmployeeName + " " + doc.EmployeeRut + " " + doc.Reason)
			if !strings.Contains(haystack, needle) {
				continue
			}
		}
		matched = append(matched, *cloneDoc(doc))
	}

	total := int64(len(matched))
	start := (q.Page - 1) * q.PageSize
	if start >= len(matched) {
		return nil, total, nil
	}
	end := start + q.PageSize
	if end > len(matched) {
		end = len(matched)
	}
	return matched[start:end], total, nil
}

type fakeDirectory struct {
	employees   map[int]*models.Employee
	users       map[int]*models.User
	bindings    map[string][]SignerBinding // "role|company"
	delegations map[string]bool            // "role|userID"
	ensured     []int
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{
		employees:   make(map[int]*models.Employee),
		users:       make(map[int]*models.User),
		bindings:    make(map[string][]SignerBinding),
		delegations: make(map[string]bool),
	}
}

func bindingKey(role, company string) string { return role + "|" + company }

func (d *fakeDirectory) Lookup(ctx context.Context, role, company string) ([]SignerBinding, error) {
	return d.bindings[bindingKey(role, company)], nil
}

func (d *fakeDirectory) HasDelegation(ctx context.Context, role string, userID int, at time.Time) (bool, error) {
	return d.delegations[fmt.Sprintf("%s|%d", role, userID)], nil
}

func (d *fakeDirectory) EmployeeByID(ctx context.Context, id int) (*models.Employee, error) {
	emp, ok := d.employees[id]
	if !ok {
		return nil, &NotFoundError{Entity: "employee", ID: id}
	}
	return emp, nil
}

func (d *fakeDirectory) UserByID(ctx context.Context, id int) (*models.User, error) {
	user, ok := d.users[id]
	if !ok {
		return nil, &NotFoundError{Entity: "user", ID: id}
	}
	return user, nil
}

func (d *fakeDirectory) EnsureJefeAccount(ctx context.Context, employeeID int, company string) (*SignerBinding, error) {
	emp, err := d.EmployeeByID(ctx, employeeID)
	if err != nil {
		return nil, err
	}
	d.ensured = append(d.ensured, employeeID)
	if emp.UserID == nil {
		return nil, fmt.Errorf("fake directory: employee %d has no linked user", employeeID)
	}
	user := d.users[*emp.UserID]
	return &SignerBinding{UserID: user.UserID, Username: user.Username, DisplayName: emp.FullName, Email: user.Email}, nil
}

func (d *fakeDirectory) ActiveAssetSnapshots(ctx context.Context, employeeID int, at time.Time) ([]models.AssetSnapshot, error) {
	if employeeID != 7 {
		return nil, nil
	}
	assetID := 31
	return []models.AssetSnapshot{
		{AssetID: &assetID, Description: "Notebook Lenovo T14", Status: "Operativo", SnapshotAt: at},
	}, nil
}

type notifyCall struct {
	UserID  int
	Role    string
	Title   string
	RefType string
	RefID   int
}

type fakeNotifier struct {
	mu    sync.Mutex
	calls []notifyCall
	fail  bool
}

func (n *fakeNotifier) Notify(ctx context.Context, userID int, title, message, refType string, refID int) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.fail {
		return fmt.Errorf("notifier down")
	}
	n.calls = append(n.calls, notifyCall{UserID: userID, Title: title, RefType: refType, RefID: refID})
	return nil
}

func (n *fakeNotifier) NotifyRole(ctx context.Context, role, title, message, refType string, refID int) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.fail {
		return fmt.Errorf("notifier down")
	}
	n.calls = append(n.calls, notifyCall{Role: role, Title: title, RefType: refType, RefID: refID})
	return nil
}

type fakeRenderer struct {
	fail bool
}

func (r *fakeRenderer) Render(doc *models.PazYSalvo) ([]byte, error) {
	if r.fail {
		return nil, fmt.Errorf("render failed")
	}
	return []byte("<html>acta " + doc.EmployeeName + "</html>"), nil
}

type fakeStorage struct {
	saved   map[string][]byte
	removed []string
	fail    bool
}

func (s *fakeStorage) Save(data []byte, logicalPath string) (string, error) {
	if s.fail {
		return "", fmt.Errorf("storage failed")
	}
	if s.saved == nil {
		s.saved = make(map[string][]byte)
	}
	stored := "uploads/" + logicalPath
	s.saved[stored] = data
	return stored, nil
}

func (s *fakeStorage) Remove(storedPath string) error {
	delete(s.saved, storedPath)
	s.removed = append(s.removed, storedPath)
	return nil
}

// ── Fixture ──

const (
	requesterID = 100
	jefeUserID  = 201
	contaUserID = 202
	infoUserID  = 203
	gerUserID   = 204
	rrhhUserID  = 205
)

type fixture struct {
	svc      *PazYSalvoService
	store    *memStore
	dir      *fakeDirectory
	notifier *fakeNotifier
	renderer *fakeRenderer
	storage  *fakeStorage
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	dir := newFakeDirectory()
	dir.employees[7] = &models.Employee{
		EmployeeID: 7,
		FullName:   "María Contreras",
		Rut:        "12345678-5",
		Company:    "Acme",
		IsActive:   true,
	}

	signers := map[int]struct {
		username string
		name     string
		role     string
	}{
		jefeUserID:  {"jperez", "Juan Pérez", models.RoleUsuario},
		contaUserID: {"asoto", "Ana Soto", models.RoleUsuario},
		infoUserID:  {"lrojas", "Luis Rojas", models.RoleUsuario},
		gerUserID:   {"mvidal", "Marcela Vidal", models.RoleUsuario},
		rrhhUserID:  {"cfuentes", "Carla Fuentes", models.RoleUsuario},
	}
	for id, s := range signers {
		name := s.name
		dir.users[id] = &models.User{
			UserID:      id,
			Username:    s.username,
			DisplayName: &name,
			Email:       s.username + "@acme.cl",
			Role:        s.role,
			IsActive:    true,
		}
	}
	dir.users[requesterID] = &models.User{UserID: requesterID, Username: "soporte1", Role: models.RoleSoporte, IsActive: true}

	bind := func(userID int) SignerBinding {
		u := dir.users[userID]
		return SignerBinding{UserID: u.UserID, Username: u.Username, DisplayName: u.Name(), Email: u.Email}
	}
	dir.bindings[bindingKey(models.RoleJefeInmediato, "Acme")] = []SignerBinding{bind(jefeUserID)}
	dir.bindings[bindingKey(models.RoleContabilidad, "Acme")] = []SignerBinding{bind(contaUserID)}
	dir.bindings[bindingKey(models.RoleInformatica, "Acme")] = []SignerBinding{bind(infoUserID)}
	dir.bindings[bindingKey(models.RoleGerenciaFinanzas, "Acme")] = []SignerBinding{bind(gerUserID)}
	dir.bindings[bindingKey(models.RoleRRHH, "Acme")] = []SignerBinding{bind(rrhhUserID)}

	store := newMemStore()
	notifier := &fakeNotifier{}
	renderer := &fakeRenderer{}
	storage := &fakeStorage{}

	svc := NewPazYSalvoService(store, dir, notifier, renderer, storage)
	return &fixture{svc: svc, store: store, dir: dir, notifier: notifier, renderer: renderer, storage: storage}
}

func (f *fixture) create(t *testing.T) *models.PazYSalvo {
	t.Helper()
	doc, err := f.svc.Create(context.Background(), CreateRequest{
		EmployeeID: 7,
		ExitDate:   time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC),
		Reason:     "Renuncia",
	}, requesterID)
	require.NoError(t, err)
	return doc
}

func actorFor(userID int) Actor {
	return Actor{UserID: userID}
}

func (f *fixture) signAllMandatory(t *testing.T, id int) *models.PazYSalvo {
	t.Helper()
	signers := map[string]int{
		models.RoleJefeInmediato:    jefeUserID,
		models.RoleContabilidad:     contaUserID,
		models.RoleInformatica:      infoUserID,
		models.RoleGerenciaFinanzas: gerUserID,
	}
	var doc *models.PazYSalvo
	var err error
	for _, role := range models.DefaultSlotRoles {
		doc, err = f.svc.Sign(context.Background(), id, role, actorFor(signers[role]), "ok")
		require.NoError(t, err)
	}
	return doc
}

// ── Scenarios ──

func TestCreateDispatchesToEnFirma(t *testing.T) {
	f := newFixture(t)
	doc := f.create(t)

	// Scenario A: created document auto-dispatches with the 4 ordered slots.
	assert.Equal(t, models.StateEnFirma, doc.Status)
	assert.NotNil(t, doc.SentAt)
	require.Len(t, doc.Slots, 4)
	for i, role := range models.DefaultSlotRoles {
		assert.Equal(t, role, doc.Slots[i].Role)
		assert.Equal(t, i+1, doc.Slots[i].Order)
		assert.Equal(t, models.SlotPendiente, doc.Slots[i].Status)
		assert.True(t, doc.Slots[i].Mandatory)
		assert.Empty(t, doc.Slots[i].Hash)
	}

	// Snapshot frozen at creation.
	require.Len(t, doc.AssetsSnapshot, 1)
	assert.Equal(t, "Notebook Lenovo T14", doc.AssetsSnapshot[0].Description)

	// Subject snapshot fields.
	assert.Equal(t, "María Contreras", doc.EmployeeName)
	assert.Equal(t, "12345678-5", doc.EmployeeRut)

	// Every assigned pending signer got notified on dispatch.
	notified := make(map[int]bool)
	for _, call := range f.notifier.calls {
		notified[call.UserID] = true
	}
	for _, id := range []int{jefeUserID, contaUserID, infoUserID, gerUserID} {
		assert.True(t, notified[id], "signer %d not notified", id)
	}
}

func TestCreateValidatesReason(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Create(context.Background(), CreateRequest{EmployeeID: 7, Reason: "  "}, requesterID)
	var validation *ValidationError
	require.ErrorAs(t, err, &validation)
	assert.Equal(t, "reason", validation.Field)

	_, err = f.svc.Create(context.Background(), CreateRequest{EmployeeID: 7, Reason: strings.Repeat("x", 201)}, requesterID)
	require.ErrorAs(t, err, &validation)

	// The limit counts characters, not bytes: 200 accented characters fit.
	doc, err := f.svc.Create(context.Background(), CreateRequest{EmployeeID: 7, Reason: strings.Repeat("ñ", 200)}, requesterID)
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("ñ", 200), doc.Reason)

	_, err = f.svc.Create(context.Background(), CreateRequest{EmployeeID: 7, Reason: strings.Repeat("ñ", 201)}, requesterID)
	require.ErrorAs(t, err, &validation)
}

func TestCreateRejectsInvalidEmployeeRut(t *testing.T) {
	f := newFixture(t)
	f.dir.employees[8] = &models.Employee{
		EmployeeID: 8,
		FullName:   "Pedro Malformado",
		Rut:        "12345678-9", // wrong check digit
		Company:    "Acme",
		IsActive:   true,
	}

	_, err := f.svc.Create(context.Background(), CreateRequest{EmployeeID: 8, Reason: "Renuncia"}, requesterID)
	var validation *ValidationError
	require.ErrorAs(t, err, &validation)
	assert.Equal(t, "rut", validation.Field)
}

func TestCreateUnknownEmployee(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Create(context.Background(), CreateRequest{EmployeeID: 999, Reason: "Renuncia"}, requesterID)
	var notFound *NotFoundError
	require.ErrorAs(t, err, &notFound)
}

func TestSignAllMandatoryApproves(t *testing.T) {
	f := newFixture(t)
	doc := f.create(t)

	// Scenario B: signing all 4 mandatory slots approves and appends RRHH.
	doc = f.signAllMandatory(t, doc.ID)
	assert.Equal(t, models.StateAprobado, doc.Status)
	assert.NotNil(t, doc.ApprovedAt)

	require.Len(t, doc.Slots, 5)
	rrhh := doc.Slot(models.RoleRRHH)
	require.NotNil(t, rrhh)
	assert.Equal(t, 5, rrhh.Order)
	assert.True(t, rrhh.Mandatory)
	assert.Equal(t, models.SlotPendiente, rrhh.Status)
	require.NotNil(t, rrhh.SignerID)
	assert.Equal(t, rrhhUserID, *rrhh.SignerID)
}

func TestRRHHSignCloses(t *testing.T) {
	f := newFixture(t)
	doc := f.create(t)
	f.signAllMandatory(t, doc.ID)

	// Scenario C: RRHH signs while Aprobado, document closes.
	closed, err := f.svc.Sign(context.Background(), doc.ID, models.RoleRRHH, actorFor(rrhhUserID), "")
	require.NoError(t, err)
	assert.Equal(t, models.StateCerrado, closed.Status)
	assert.NotNil(t, closed.ClosedAt)
	// RRHH closing leaves artifacts to the explicit close path.
	assert.Nil(t, closed.PDFPath)
	assert.Nil(t, closed.FinalHash)
}

func TestRRHHCannotSignWhileEnFirma(t *testing.T) {
	f := newFixture(t)
	doc := f.create(t)

	_, err := f.svc.Sign(context.Background(), doc.ID, models.RoleRRHH, actorFor(rrhhUserID), "")
	var invalidState *InvalidStateError
	require.ErrorAs(t, err, &invalidState)
	assert.Equal(t, models.StateEnFirma, invalidState.Current)
	assert.Equal(t, models.StateAprobado, invalidState.Required)
}

func TestRRHHSlotSynthesizedWhenMissing(t *testing.T) {
	f := newFixture(t)
	doc := f.create(t)
	f.signAllMandatory(t, doc.ID)

	// Simulate a document approved before the lazy slot existed.
	stored := f.store.docs[doc.ID]
	stored.Slots = stored.Slots[:4]

	closed, err := f.svc.Sign(context.Background(), doc.ID, models.RoleRRHH, actorFor(rrhhUserID), "")
	require.NoError(t, err)
	assert.Equal(t, models.StateCerrado, closed.Status)
	rrhh := closed.Slot(models.RoleRRHH)
	require.NotNil(t, rrhh)
	assert.Equal(t, models.SlotFirmada, rrhh.Status)
}

func TestSignWhileDraftFails(t *testing.T) {
	f := newFixture(t)
	doc := f.create(t)
	// Rewind the stored document to Borrador to simulate a failed dispatch.
	f.store.docs[doc.ID].Status = models.StateBorrador

	// Scenario D: signing while Borrador fails and mutates nothing.
	_, err := f.svc.Sign(context.Background(), doc.ID, models.RoleGerenciaFinanzas, actorFor(gerUserID), "")
	var invalidState *InvalidStateError
	require.ErrorAs(t, err, &invalidState)
	assert.Equal(t, models.StateBorrador, invalidState.Current)

	after, err := f.svc.GetDetail(context.Background(), doc.ID)
	require.NoError(t, err)
	for _, slot := range after.Slots {
		assert.Equal(t, models.SlotPendiente, slot.Status)
	}
}

func TestRejectMakesDocumentRechazado(t *testing.T) {
	f := newFixture(t)
	doc := f.create(t)

	// Scenario E: rejecting one mandatory slot is terminal.
	rejected, err := f.svc.Reject(context.Background(), doc.ID, models.RoleContabilidad, actorFor(contaUserID), "Deuda pendiente")
	require.NoError(t, err)
	assert.Equal(t, models.StateRechazado, rejected.Status)

	slot := rejected.Slot(models.RoleContabilidad)
	assert.Equal(t, models.SlotRechazada, slot.Status)
	assert.Equal(t, "Deuda pendiente", slot.Comment)

	_, err = f.svc.Sign(context.Background(), doc.ID, models.RoleInformatica, actorFor(infoUserID), "")
	var invalidState *InvalidStateError
	require.ErrorAs(t, err, &invalidState)
	assert.Equal(t, models.StateRechazado, invalidState.Current)
}

func TestRejectRequiresReason(t *testing.T) {
	f := newFixture(t)
	doc := f.create(t)

	_, err := f.svc.Reject(context.Background(), doc.ID, models.RoleContabilidad, actorFor(contaUserID), " ")
	var validation *ValidationError
	require.ErrorAs(t, err, &validation)
}

func TestSignAuthorization(t *testing.T) {
	f := newFixture(t)
	doc := f.create(t)

	// A stranger cannot sign someone else's slot.
	_, err := f.svc.Sign(context.Background(), doc.ID, models.RoleContabilidad, actorFor(infoUserID), "")
	var unauthorized *UnauthorizedError
	require.ErrorAs(t, err, &unauthorized)
	assert.Equal(t, models.RoleContabilidad, unauthorized.RequiredRole)

	// Admin and soporte accounts bypass identity matching on any slot;
	// privilege comes from the live user row.
	signed, err := f.svc.Sign(context.Background(), doc.ID, models.RoleContabilidad, actorFor(requesterID), "countersigned")
	require.NoError(t, err)
	assert.Equal(t, models.SlotFirmada, signed.Slot(models.RoleContabilidad).Status)
	require.NotNil(t, signed.Slot(models.RoleContabilidad).SignerID)
	assert.Equal(t, requesterID, *signed.Slot(models.RoleContabilidad).SignerID)
}

func TestSignWithDelegation(t *testing.T) {
	f := newFixture(t)
	doc := f.create(t)

	delegate := 310
	name := "Pedro Díaz"
	f.dir.users[delegate] = &models.User{UserID: delegate, Username: "pdiaz", DisplayName: &name, Role: models.RoleUsuario, IsActive: true}
	f.dir.delegations[fmt.Sprintf("%s|%d", models.RoleInformatica, delegate)] = true

	signed, err := f.svc.Sign(context.Background(), doc.ID, models.RoleInformatica, actorFor(delegate), "por delegación")
	require.NoError(t, err)
	slot := signed.Slot(models.RoleInformatica)
	assert.Equal(t, models.SlotFirmada, slot.Status)
	assert.Equal(t, "Pedro Díaz", *slot.SignerName)
}

func TestSlotCannotBeSignedTwice(t *testing.T) {
	f := newFixture(t)
	doc := f.create(t)

	_, err := f.svc.Sign(context.Background(), doc.ID, models.RoleJefeInmediato, actorFor(jefeUserID), "")
	require.NoError(t, err)

	_, err = f.svc.Sign(context.Background(), doc.ID, models.RoleJefeInmediato, actorFor(jefeUserID), "")
	var invalidState *InvalidStateError
	require.ErrorAs(t, err, &invalidState)
	assert.Equal(t, models.SlotFirmada, invalidState.Current)
	assert.Equal(t, models.SlotPendiente, invalidState.Required)
}

func TestExplicitClose(t *testing.T) {
	f := newFixture(t)
	doc := f.create(t)
	f.signAllMandatory(t, doc.ID)

	closed, err := f.svc.Close(context.Background(), doc.ID, requesterID)
	require.NoError(t, err)
	assert.Equal(t, models.StateCerrado, closed.Status)
	require.NotNil(t, closed.PDFPath)
	require.NotNil(t, closed.FinalHash)
	assert.NotNil(t, closed.ClosedAt)
	assert.Contains(t, *closed.PDFPath, "acta-pys-")
	assert.Len(t, f.storage.saved, 1)
}

func TestCloseRequiresAprobado(t *testing.T) {
	f := newFixture(t)
	doc := f.create(t)

	_, err := f.svc.Close(context.Background(), doc.ID, requesterID)
	var invalidState *InvalidStateError
	require.ErrorAs(t, err, &invalidState)
	assert.Equal(t, models.StateAprobado, invalidState.Required)
}

func TestCloseFinalizesAfterRRHHSign(t *testing.T) {
	f := newFixture(t)
	doc := f.create(t)
	f.signAllMandatory(t, doc.ID)
	_, err := f.svc.Sign(context.Background(), doc.ID, models.RoleRRHH, actorFor(rrhhUserID), "")
	require.NoError(t, err)

	closed, err := f.svc.Close(context.Background(), doc.ID, requesterID)
	require.NoError(t, err)
	require.NotNil(t, closed.PDFPath)
	require.NotNil(t, closed.FinalHash)

	// A second close on a fully finalized document is rejected.
	_, err = f.svc.Close(context.Background(), doc.ID, requesterID)
	var invalidState *InvalidStateError
	require.ErrorAs(t, err, &invalidState)
}

func TestCloseAbortsWhenRenderFails(t *testing.T) {
	f := newFixture(t)
	doc := f.create(t)
	f.signAllMandatory(t, doc.ID)

	f.renderer.fail = true
	_, err := f.svc.Close(context.Background(), doc.ID, requesterID)
	require.Error(t, err)

	// Close is all-or-nothing: the document is untouched.
	after, err := f.svc.GetDetail(context.Background(), doc.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StateAprobado, after.Status)
	assert.Nil(t, after.PDFPath)
	assert.Nil(t, after.FinalHash)
}

func TestVerifyHashDetectsTampering(t *testing.T) {
	f := newFixture(t)
	doc := f.create(t)
	f.signAllMandatory(t, doc.ID)
	_, err := f.svc.Close(context.Background(), doc.ID, requesterID)
	require.NoError(t, err)

	result, err := f.svc.VerifyHash(context.Background(), doc.ID)
	require.NoError(t, err)
	assert.True(t, result.Valid)
	assert.Equal(t, result.StoredHash, result.ComputedHash)

	// Tamper with a stored signature hash.
	f.store.docs[doc.ID].Slots[1].Hash = "deadbeef"

	result, err = f.svc.VerifyHash(context.Background(), doc.ID)
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.NotEqual(t, result.StoredHash, result.ComputedHash)
}

func TestVerifyHashWithoutFinalHash(t *testing.T) {
	f := newFixture(t)
	doc := f.create(t)

	_, err := f.svc.VerifyHash(context.Background(), doc.ID)
	var integrity *IntegrityError
	require.ErrorAs(t, err, &integrity)
}

func TestExceptionIsAdvisory(t *testing.T) {
	f := newFixture(t)
	doc := f.create(t)

	updated, err := f.svc.CreateException(context.Background(), doc.ID, requesterID, "Activo extraviado, descuento autorizado")
	require.NoError(t, err)
	require.Len(t, updated.Exceptions, 1)
	assert.Equal(t, requesterID, updated.Exceptions[0].ApproverID)
	// State untouched.
	assert.Equal(t, models.StateEnFirma, updated.Status)
}

func TestExceptionRejectedOnTerminalDocument(t *testing.T) {
	f := newFixture(t)
	doc := f.create(t)
	_, err := f.svc.Reject(context.Background(), doc.ID, models.RoleContabilidad, actorFor(contaUserID), "Deuda pendiente")
	require.NoError(t, err)

	_, err = f.svc.CreateException(context.Background(), doc.ID, requesterID, "Descuento autorizado")
	var invalidState *InvalidStateError
	require.ErrorAs(t, err, &invalidState)
	assert.Equal(t, models.StateRechazado, invalidState.Current)
}

func TestCloseRemovesActaWhenWriteFails(t *testing.T) {
	f := newFixture(t)
	doc := f.create(t)
	f.signAllMandatory(t, doc.ID)

	f.store.updateErr = ErrVersionConflict
	_, err := f.svc.Close(context.Background(), doc.ID, requesterID)
	assert.ErrorIs(t, err, ErrVersionConflict)

	// The stored acta of the failed close is cleaned up, not orphaned.
	assert.Empty(t, f.storage.saved)
	assert.Len(t, f.storage.removed, 1)
}

func TestNotifierFailureDoesNotFailTransition(t *testing.T) {
	f := newFixture(t)
	f.notifier.fail = true

	doc := f.create(t)
	assert.Equal(t, models.StateEnFirma, doc.Status)

	doc = f.signAllMandatory(t, doc.ID)
	assert.Equal(t, models.StateAprobado, doc.Status)
}

func TestHistoryIsAValidStatePath(t *testing.T) {
	f := newFixture(t)
	doc := f.create(t)
	f.signAllMandatory(t, doc.ID)
	_, err := f.svc.Sign(context.Background(), doc.ID, models.RoleRRHH, actorFor(rrhhUserID), "")
	require.NoError(t, err)

	final, err := f.svc.GetDetail(context.Background(), doc.ID)
	require.NoError(t, err)

	state := ""
	for _, entry := range final.History {
		if entry.ToState == entry.FromState {
			continue // in-state events (signatures, exceptions)
		}
		if state != "" {
			assert.True(t, CanTransition(entry.FromState, entry.ToState),
				"illegal transition %s -> %s", entry.FromState, entry.ToState)
			assert.Equal(t, state, entry.FromState, "history entry skips a state")
		}
		state = entry.ToState
	}
	assert.Equal(t, models.StateCerrado, state)
}

func TestSlotStatusIsMonotonic(t *testing.T) {
	f := newFixture(t)
	doc := f.create(t)

	_, err := f.svc.Sign(context.Background(), doc.ID, models.RoleJefeInmediato, actorFor(jefeUserID), "")
	require.NoError(t, err)

	// A signed slot rejects further actions, even from privileged accounts;
	// nothing ever resets it to Pendiente.
	_, err = f.svc.Sign(context.Background(), doc.ID, models.RoleJefeInmediato, actorFor(requesterID), "")
	var invalidState *InvalidStateError
	require.ErrorAs(t, err, &invalidState)
	assert.Equal(t, models.SlotFirmada, invalidState.Current)

	_, err = f.svc.Reject(context.Background(), doc.ID, models.RoleJefeInmediato, actorFor(requesterID), "tarde")
	require.ErrorAs(t, err, &invalidState)
	assert.Equal(t, models.SlotFirmada, invalidState.Current)

	after, err := f.svc.GetDetail(context.Background(), doc.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SlotFirmada, after.Slot(models.RoleJefeInmediato).Status)
}

func TestListPaginationIsStable(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 25; i++ {
		f.create(t)
	}

	seen := make(map[int]bool)
	for page := 1; page <= 3; page++ {
		result, err := f.svc.List(context.Background(), DocumentQuery{Page: page, PageSize: 10})
		require.NoError(t, err)
		assert.Equal(t, int64(25), result.Total)
		assert.Equal(t, 3, result.TotalPages)
		for _, item := range result.Items {
			assert.False(t, seen[item.ID], "document %d returned twice", item.ID)
			seen[item.ID] = true
		}
	}
	assert.Len(t, seen, 25)
}

func TestListFiltersAndCounts(t *testing.T) {
	f := newFixture(t)
	doc := f.create(t)
	f.signAllMandatory(t, doc.ID)
	f.create(t)

	result, err := f.svc.List(context.Background(), DocumentQuery{Status: models.StateAprobado, Page: 1, PageSize: 10})
	require.NoError(t, err)
	require.Len(t, result.Items, 1)
	item := result.Items[0]
	assert.Equal(t, doc.ID, item.ID)
	assert.Equal(t, 1, item.PendingCount) // RRHH
	assert.Equal(t, 4, item.SignedCount)
	assert.Equal(t, 5, item.RequiredCount)

	searched, err := f.svc.List(context.Background(), DocumentQuery{Search: "contreras", Page: 1, PageSize: 10})
	require.NoError(t, err)
	assert.Len(t, searched.Items, 2)

	missed, err := f.svc.List(context.Background(), DocumentQuery{Search: "no-such-person", Page: 1, PageSize: 10})
	require.NoError(t, err)
	assert.Empty(t, missed.Items)
}

func TestStaleUpdateConflicts(t *testing.T) {
	f := newFixture(t)
	doc := f.create(t)

	stale, err := f.store.Get(context.Background(), doc.ID)
	require.NoError(t, err)

	_, err = f.svc.Sign(context.Background(), doc.ID, models.RoleJefeInmediato, actorFor(jefeUserID), "")
	require.NoError(t, err)

	err = f.store.Update(context.Background(), stale, stale.Version)
	assert.ErrorIs(t, err, ErrVersionConflict)
}
