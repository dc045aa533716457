package services

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"
	"unicode/utf8"

	"portalti-api/models"
	"portalti-api/utils"
)

// History action tags.
const (
	ActionCreacion   = "Creacion"
	ActionEnvioFirma = "EnvioFirma"
	ActionFirma      = "Firma"
	ActionAprobacion = "Aprobacion"
	ActionRechazo    = "Rechazo"
	ActionCierre     = "Cierre"
	ActionExcepcion  = "Excepcion"
)

const refTypePazYSalvo = "pazysalvo"

// Actor identifies who is performing a workflow operation. Authorization
// always consults the live user row, never a caller-supplied role.
type Actor struct {
	UserID int
}

// CreateRequest is the input for opening a new sign-off document.
type CreateRequest struct {
	EmployeeID     int                    `json:"employee_id"`
	JefeEmployeeID *int                   `json:"jefe_employee_id,omitempty"`
	ExitDate       time.Time              `json:"exit_date"`
	Reason         string                 `json:"reason"`
	Observations   string                 `json:"observations"`
	Assets         []models.AssetSnapshot `json:"assets,omitempty"`
}

// PazYSalvoService drives the sign-off workflow: creation, dispatch, signing,
// rejection, closing. Every mutating operation is one atomic write (the
// aggregate row carries all embedded collections, guarded by a version CAS);
// notification and mail side effects run after the write and are best-effort.
type PazYSalvoService struct {
	store     DocumentStore
	dir       Directory
	resolver  *SignatureResolver
	integrity IntegrityService
	notifier  Notifier
	renderer  DocumentRenderer
	storage   FileStorage
	now       func() time.Time
}

func NewPazYSalvoService(store DocumentStore, dir Directory, notifier Notifier, renderer DocumentRenderer, storage FileStorage) *PazYSalvoService {
	return &PazYSalvoService{
		store:     store,
		dir:       dir,
		resolver:  NewSignatureResolver(dir),
		notifier:  notifier,
		renderer:  renderer,
		storage:   storage,
		now:       time.Now,
	}
}

// Create opens a document in Borrador with the resolved slate and asset
// snapshot, then immediately attempts dispatch to EnFirma. A failed dispatch
// is logged, not fatal: the document stays valid in Borrador.
func (s *PazYSalvoService) Create(ctx context.Context, req CreateRequest, requesterID int) (*models.PazYSalvo, error) {
	reason := utils.SanitizeInput(req.Reason)
	if reason == "" {
		return nil, &ValidationError{Field: "reason", Message: "departure reason is required"}
	}
	if utf8.RuneCountInString(reason) > 200 {
		return nil, &ValidationError{Field: "reason", Message: "departure reason must be 200 characters or less"}
	}

	emp, err := s.dir.EmployeeByID(ctx, req.EmployeeID)
	if err != nil {
		return nil, err
	}
	if !utils.ValidateRut(emp.Rut) {
		return nil, &ValidationError{Field: "rut", Message: "employee rut fails check-digit verification"}
	}

	var presetJefe *SignerBinding
	if req.JefeEmployeeID != nil {
		presetJefe, err = s.dir.EnsureJefeAccount(ctx, *req.JefeEmployeeID, emp.Company)
		if err != nil {
			return nil, err
		}
	}

	slots, err := s.resolver.ResolveDefaultSlots(ctx, emp.Company, presetJefe)
	if err != nil {
		return nil, err
	}

	now := s.now()
	snapshot, err := s.dir.ActiveAssetSnapshots(ctx, emp.EmployeeID, now)
	if err != nil {
		return nil, err
	}
	if len(snapshot) == 0 && len(req.Assets) > 0 {
		snapshot = make([]models.AssetSnapshot, len(req.Assets))
		copy(snapshot, req.Assets)
		for i := range snapshot {
			snapshot[i].SnapshotAt = now
		}
	}

	doc := &models.PazYSalvo{
		EmployeeID:     emp.EmployeeID,
		EmployeeName:   emp.FullName,
		EmployeeRut:    utils.NormalizeRut(emp.Rut),
		RequestedBy:    requesterID,
		ExitDate:       req.ExitDate,
		Reason:         reason,
		Observations:   utils.SanitizeInput(req.Observations),
		Status:         models.StateBorrador,
		Slots:          slots,
		History:        []models.HistoryEntry{},
		Exceptions:     []models.ExceptionRecord{},
		Attachments:    []models.Attachment{},
		AssetsSnapshot: snapshot,
	}
	doc.AppendHistory(requesterID, ActionCreacion, "", models.StateBorrador, "Documento creado", now)

	if err := s.store.Create(ctx, doc); err != nil {
		return nil, err
	}

	if err := s.SendToSign(ctx, doc.ID, requesterID); err != nil {
		log.Printf("paz y salvo %d: auto dispatch failed, document stays in %s: %v", doc.ID, models.StateBorrador, err)
		return doc, nil
	}
	return s.store.Get(ctx, doc.ID)
}

// SendToSign moves a Borrador document into EnFirma and notifies every
// assigned pending signer.
func (s *PazYSalvoService) SendToSign(ctx context.Context, id, actorID int) error {
	doc, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := requireState("enviar a firma", doc, models.StateBorrador); err != nil {
		return err
	}

	now := s.now()
	doc.SentAt = &now
	if err := transitionTo("enviar a firma", doc, models.StateEnFirma); err != nil {
		return err
	}
	doc.AppendHistory(actorID, ActionEnvioFirma, models.StateBorrador, models.StateEnFirma, "Documento enviado a firma", now)

	if err := s.store.Update(ctx, doc, doc.Version); err != nil {
		return err
	}

	for i := range doc.Slots {
		slot := &doc.Slots[i]
		if slot.Status == models.SlotPendiente && slot.SignerID != nil {
			s.notifyBestEffort(ctx, *slot.SignerID,
				"Firma pendiente",
				fmt.Sprintf("El Paz y Salvo de %s requiere su firma como %s.", doc.EmployeeName, slot.Role),
				doc.ID)
		}
	}
	return nil
}

// Sign records a signature on the given role's slot. RRHH is special-cased:
// its slot may only be signed while the document is Aprobado, is synthesized
// on the fly when missing, and signing it closes the document.
func (s *PazYSalvoService) Sign(ctx context.Context, id int, role string, actor Actor, comment string) (*models.PazYSalvo, error) {
	doc, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	fromState := doc.Status
	isRRHH := role == models.RoleRRHH
	if isRRHH {
		if err := requireState("firma RRHH", doc, models.StateAprobado); err != nil {
			return nil, err
		}
		if doc.Slot(models.RoleRRHH) == nil {
			if err := s.appendRRHHSlot(ctx, doc); err != nil {
				return nil, err
			}
		}
	} else {
		if err := requireState("firma "+role, doc, models.StateEnFirma); err != nil {
			return nil, err
		}
	}

	slot := doc.Slot(role)
	if slot == nil {
		return nil, &NotFoundError{Entity: "signature slot", ID: role}
	}
	if slot.Status != models.SlotPendiente {
		return nil, &InvalidStateError{Op: "firma " + role, Current: slot.Status, Required: models.SlotPendiente}
	}

	now := s.now()
	signer, err := s.authorizeSlotActor(ctx, slot, role, actor, now)
	if err != nil {
		return nil, err
	}

	hash, err := s.integrity.SignatureHash(doc, role, signer, now)
	if err != nil {
		return nil, err
	}

	signerID := signer.UserID
	signerName := signer.Name()
	slot.Status = models.SlotFirmada
	slot.SignerID = &signerID
	slot.SignerName = &signerName
	slot.Comment = strings.TrimSpace(comment)
	slot.SignedAt = &now
	slot.Hash = hash
	doc.AppendHistory(actor.UserID, ActionFirma, fromState, doc.Status,
		fmt.Sprintf("Firma %s registrada por %s", role, signerName), now)

	notifyRequester := ""
	if isRRHH {
		// RRHH signature closes the document. Rendering and the final hash
		// stay with the explicit close operation.
		if err := transitionTo("firma RRHH", doc, models.StateCerrado); err != nil {
			return nil, err
		}
		doc.ClosedAt = &now
		doc.AppendHistory(actor.UserID, ActionCierre, models.StateAprobado, models.StateCerrado,
			"Documento cerrado por firma RRHH", now)
		notifyRequester = fmt.Sprintf("El Paz y Salvo de %s fue cerrado por RRHH.", doc.EmployeeName)
	} else if doc.MandatorySigned() {
		if err := transitionTo("firma "+role, doc, models.StateAprobado); err != nil {
			return nil, err
		}
		doc.ApprovedAt = &now
		if err := s.appendRRHHSlot(ctx, doc); err != nil {
			return nil, err
		}
		doc.AppendHistory(actor.UserID, ActionAprobacion, models.StateEnFirma, models.StateAprobado,
			"Todas las firmas obligatorias registradas", now)
		notifyRequester = fmt.Sprintf("El Paz y Salvo de %s fue aprobado y espera firma de RRHH.", doc.EmployeeName)
	}

	if err := s.store.Update(ctx, doc, doc.Version); err != nil {
		return nil, err
	}

	if notifyRequester != "" {
		s.notifyBestEffort(ctx, doc.RequestedBy, "Paz y Salvo actualizado", notifyRequester, doc.ID)
	}
	return doc, nil
}

// Reject marks the role's slot rejected and the whole document Rechazado.
// Terminal: resubmission means creating a new document.
func (s *PazYSalvoService) Reject(ctx context.Context, id int, role string, actor Actor, reason string) (*models.PazYSalvo, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, &ValidationError{Field: "reason", Message: "rejection reason is required"}
	}

	doc, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := requireState("rechazo "+role, doc, models.StateEnFirma); err != nil {
		return nil, err
	}

	slot := doc.Slot(role)
	if slot == nil {
		return nil, &NotFoundError{Entity: "signature slot", ID: role}
	}
	if slot.Status != models.SlotPendiente {
		return nil, &InvalidStateError{Op: "rechazo " + role, Current: slot.Status, Required: models.SlotPendiente}
	}

	now := s.now()
	rejecter, err := s.authorizeSlotActor(ctx, slot, role, actor, now)
	if err != nil {
		return nil, err
	}

	rejecterID := rejecter.UserID
	rejecterName := rejecter.Name()
	slot.Status = models.SlotRechazada
	slot.SignerID = &rejecterID
	slot.SignerName = &rejecterName
	slot.Comment = reason
	slot.SignedAt = &now
	if err := transitionTo("rechazo "+role, doc, models.StateRechazado); err != nil {
		return nil, err
	}
	doc.AppendHistory(actor.UserID, ActionRechazo, models.StateEnFirma, models.StateRechazado,
		fmt.Sprintf("Rechazado en firma %s: %s", role, reason), now)

	if err := s.store.Update(ctx, doc, doc.Version); err != nil {
		return nil, err
	}

	s.notifyBestEffort(ctx, doc.RequestedBy, "Paz y Salvo rechazado",
		fmt.Sprintf("El Paz y Salvo de %s fue rechazado en la firma %s.", doc.EmployeeName, role), doc.ID)
	return doc, nil
}

// Close is the explicit close path: it renders the final certificate, stores
// it and computes the document hash. Render/store/hash are on the critical
// path here and abort the close on failure. Also finalizes documents already
// closed by RRHH signature but still missing their artifacts.
func (s *PazYSalvoService) Close(ctx context.Context, id, actorID int) (*models.PazYSalvo, error) {
	doc, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	alreadyClosed := doc.Status == models.StateCerrado && doc.PDFPath == nil
	if doc.Status != models.StateAprobado && !alreadyClosed {
		return nil, &InvalidStateError{Op: "cierre", Current: doc.Status, Required: models.StateAprobado}
	}

	now := s.now()
	fromState := doc.Status
	if fromState != models.StateCerrado {
		if err := transitionTo("cierre", doc, models.StateCerrado); err != nil {
			return nil, err
		}
	}
	if doc.ClosedAt == nil {
		doc.ClosedAt = &now
	}

	rendered, err := s.renderer.Render(doc)
	if err != nil {
		return nil, fmt.Errorf("render acta for document %d: %w", id, err)
	}
	storedPath, err := s.storage.Save(rendered, fmt.Sprintf("pazysalvo/acta-pys-%d.html", doc.ID))
	if err != nil {
		return nil, fmt.Errorf("store acta for document %d: %w", id, err)
	}
	finalHash, err := s.integrity.FinalHash(doc)
	if err != nil {
		return nil, err
	}

	doc.PDFPath = &storedPath
	doc.FinalHash = &finalHash
	doc.AppendHistory(actorID, ActionCierre, fromState, models.StateCerrado, "Documento cerrado y acta generada", now)

	if err := s.store.Update(ctx, doc, doc.Version); err != nil {
		// The stored acta belongs to a write that never happened.
		if rmErr := s.storage.Remove(storedPath); rmErr != nil {
			log.Printf("paz y salvo %d: removing orphaned acta %s failed: %v", id, storedPath, rmErr)
		}
		return nil, err
	}

	s.notifyBestEffort(ctx, doc.RequestedBy, "Paz y Salvo cerrado",
		fmt.Sprintf("El Paz y Salvo de %s fue cerrado. Acta disponible.", doc.EmployeeName), doc.ID)
	return doc, nil
}

// CreateException appends an advisory override record. It never alters
// document state.
func (s *PazYSalvoService) CreateException(ctx context.Context, id, approverID int, justification string) (*models.PazYSalvo, error) {
	justification = strings.TrimSpace(justification)
	if justification == "" {
		return nil, &ValidationError{Field: "justification", Message: "justification is required"}
	}

	doc, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if doc.IsTerminal() {
		return nil, &InvalidStateError{Op: "excepcion", Current: doc.Status}
	}

	now := s.now()
	doc.Exceptions = append(doc.Exceptions, models.ExceptionRecord{
		ApproverID:    approverID,
		Justification: justification,
		CreatedAt:     now,
	})
	doc.AppendHistory(approverID, ActionExcepcion, doc.Status, doc.Status, justification, now)

	if err := s.store.Update(ctx, doc, doc.Version); err != nil {
		return nil, err
	}
	return doc, nil
}

// GetDetail loads the full aggregate.
func (s *PazYSalvoService) GetDetail(ctx context.Context, id int) (*models.PazYSalvo, error) {
	return s.store.Get(ctx, id)
}

// Summary is the lightweight listing projection.
type Summary struct {
	ID            int        `json:"pys_id"`
	EmployeeName  string     `json:"employee_name"`
	EmployeeRut   string     `json:"employee_rut"`
	Status        string     `json:"status"`
	Reason        string     `json:"reason"`
	ExitDate      time.Time  `json:"exit_date"`
	PendingCount  int        `json:"pending_count"`
	SignedCount   int        `json:"signed_count"`
	RequiredCount int        `json:"required_count"`
	SentAt        *time.Time `json:"sent_at,omitempty"`
	ApprovedAt    *time.Time `json:"approved_at,omitempty"`
	ClosedAt      *time.Time `json:"closed_at,omitempty"`
}

// ListResult pages summaries with stable pagination.
type ListResult struct {
	Items      []Summary `json:"items"`
	Total      int64     `json:"total"`
	Page       int       `json:"page"`
	PageSize   int       `json:"page_size"`
	TotalPages int       `json:"total_pages"`
}

// List returns paged summaries filtered by state and free text over the
// subject name, rut and reason.
func (s *PazYSalvoService) List(ctx context.Context, q DocumentQuery) (*ListResult, error) {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PageSize < 1 {
		q.PageSize = 20
	}

	docs, total, err := s.store.Search(ctx, q)
	if err != nil {
		return nil, err
	}

	items := make([]Summary, 0, len(docs))
	for i := range docs {
		doc := &docs[i]
		pending, signed, required := doc.SlotCounts()
		items = append(items, Summary{
			ID:            doc.ID,
			EmployeeName:  doc.EmployeeName,
			EmployeeRut:   doc.EmployeeRut,
			Status:        doc.Status,
			Reason:        doc.Reason,
			ExitDate:      doc.ExitDate,
			PendingCount:  pending,
			SignedCount:   signed,
			RequiredCount: required,
			SentAt:        doc.SentAt,
			ApprovedAt:    doc.ApprovedAt,
			ClosedAt:      doc.ClosedAt,
		})
	}

	totalPages := int((total + int64(q.PageSize) - 1) / int64(q.PageSize))
	return &ListResult{
		Items:      items,
		Total:      total,
		Page:       q.Page,
		PageSize:   q.PageSize,
		TotalPages: totalPages,
	}, nil
}

// VerifyHash recomputes the final hash from persisted state and compares it
// against the stored one.
func (s *PazYSalvoService) VerifyHash(ctx context.Context, id int) (*VerifyResult, error) {
	doc, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.integrity.Verify(doc)
}

// authorizeSlotActor enforces the slot authorization rule: the assigned
// signer, a privileged account (admin/soporte, any slot), or an active
// delegation for the slot's role. The actor's live user row is the source of
// truth for privilege and is returned for the signature record.
func (s *PazYSalvoService) authorizeSlotActor(ctx context.Context, slot *models.SignatureSlot, role string, actor Actor, at time.Time) (*models.User, error) {
	user, err := s.dir.UserByID(ctx, actor.UserID)
	if err != nil {
		return nil, err
	}
	if user.IsPrivileged() {
		return user, nil
	}
	if slot.SignerID != nil && *slot.SignerID == actor.UserID {
		return user, nil
	}
	delegated, err := s.dir.HasDelegation(ctx, role, actor.UserID, at)
	if err != nil {
		return nil, err
	}
	if delegated {
		return user, nil
	}
	return nil, &UnauthorizedError{
		ActorID:      actor.UserID,
		RequiredRole: role,
		Reason:       "not the assigned signer, no privilege, no active delegation",
	}
}

// appendRRHHSlot resolves and appends the lazy RRHH slot using the same
// role-binding lookup as creation-time resolution.
func (s *PazYSalvoService) appendRRHHSlot(ctx context.Context, doc *models.PazYSalvo) error {
	company := ""
	if emp, err := s.dir.EmployeeByID(ctx, doc.EmployeeID); err == nil {
		company = emp.Company
	}
	slot, err := s.resolver.ResolveSlot(ctx, models.RoleRRHH, company, len(models.DefaultSlotRoles)+1)
	if err != nil {
		return err
	}
	doc.Slots = append(doc.Slots, slot)
	return nil
}

func (s *PazYSalvoService) notifyBestEffort(ctx context.Context, userID int, title, message string, docID int) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, userID, title, message, refTypePazYSalvo, docID); err != nil {
		log.Printf("paz y salvo %d: notification to user %d failed: %v", docID, userID, err)
	}
}
