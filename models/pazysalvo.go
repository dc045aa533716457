package models

import "time"

// Document states. Rechazado and Cerrado are terminal.
const (
	StateBorrador  = "Borrador"
	StateEnFirma   = "EnFirma"
	StateAprobado  = "Aprobado"
	StateRechazado = "Rechazado"
	StateCerrado   = "Cerrado"
)

// Signature roles in slate order. RRHH is appended lazily once the document
// reaches Aprobado.
const (
	RoleJefeInmediato    = "JefeInmediato"
	RoleContabilidad     = "Contabilidad"
	RoleInformatica      = "Informatica"
	RoleGerenciaFinanzas = "GerenciaFinanzas"
	RoleRRHH             = "RRHH"
)

// Slot statuses. A slot only ever moves Pendiente -> Firmada or
// Pendiente -> Rechazada, never back.
const (
	SlotPendiente = "Pendiente"
	SlotFirmada   = "Firmada"
	SlotRechazada = "Rechazada"
)

// DefaultSlotRoles is the fixed order of the mandatory slate built at
// creation time (RRHH excluded, see StateAprobado).
var DefaultSlotRoles = []string{
	RoleJefeInmediato,
	RoleContabilidad,
	RoleInformatica,
	RoleGerenciaFinanzas,
}

// SignatureSlot is one seat in the approval sequence, bound to a role.
type SignatureSlot struct {
	Role       string     `json:"rol"`
	Order      int        `json:"orden"`
	Mandatory  bool       `json:"obligatoria"`
	SignerID   *int       `json:"signer_id,omitempty"`
	SignerName *string    `json:"signer_name,omitempty"`
	Status     string     `json:"estado"`
	SignedAt   *time.Time `json:"signed_at,omitempty"`
	Comment    string     `json:"comentario,omitempty"`
	Hash       string     `json:"hash,omitempty"`
}

// HistoryEntry is an immutable audit-trail record. Append-only.
type HistoryEntry struct {
	ActorID   int       `json:"actor_id"`
	Action    string    `json:"accion"`
	FromState string    `json:"estado_origen"`
	ToState   string    `json:"estado_destino"`
	Note      string    `json:"nota,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ExceptionRecord documents an approved override. Advisory: it never mutates
// document state by itself.
type ExceptionRecord struct {
	ApproverID    int       `json:"approver_id"`
	Justification string    `json:"justificacion"`
	CreatedAt     time.Time `json:"created_at"`
}

// Attachment references an uploaded supporting file.
type Attachment struct {
	Name       string    `json:"nombre"`
	StoredPath string    `json:"stored_path"`
	MimeType   string    `json:"mime_type"`
	Size       int64     `json:"size"`
	UploadedBy int       `json:"uploaded_by"`
	UploadedAt time.Time `json:"uploaded_at"`
}

// AssetSnapshot freezes one asset assignment at document creation time so
// later asset mutations never retroactively alter the document. AssetID is
// nullable because the asset row may be deleted afterwards.
type AssetSnapshot struct {
	AssetID     *int      `json:"asset_id,omitempty"`
	Description string    `json:"descripcion"`
	Status      string    `json:"estado"`
	Observation string    `json:"observacion,omitempty"`
	SnapshotAt  time.Time `json:"snapshot_at"`
}

// PazYSalvo is the sign-off aggregate root. The slot/history/exception/
// attachment/snapshot collections are persisted as JSON on the row so every
// workflow mutation commits atomically with the aggregate.
type PazYSalvo struct {
	ID           int    `gorm:"primaryKey;column:pys_id" json:"pys_id"`
	EmployeeID   int    `gorm:"column:employee_id" json:"employee_id"`
	EmployeeName string `gorm:"column:employee_name" json:"employee_name"`
	EmployeeRut  string `gorm:"column:employee_rut" json:"employee_rut"`
	RequestedBy  int    `gorm:"column:requested_by" json:"requested_by"`

	ExitDate     time.Time `gorm:"column:exit_date" json:"exit_date"`
	Reason       string    `gorm:"column:reason" json:"reason"`
	Observations string    `gorm:"column:observations" json:"observations,omitempty"`
	Status       string    `gorm:"column:status" json:"status"`

	Slots          []SignatureSlot   `gorm:"column:signatures;serializer:json" json:"firmas"`
	History        []HistoryEntry    `gorm:"column:history;serializer:json" json:"historial"`
	Exceptions     []ExceptionRecord `gorm:"column:exceptions;serializer:json" json:"excepciones"`
	Attachments    []Attachment      `gorm:"column:attachments;serializer:json" json:"adjuntos"`
	AssetsSnapshot []AssetSnapshot   `gorm:"column:assets_snapshot;serializer:json" json:"activos_snapshot"`

	SentAt     *time.Time `gorm:"column:sent_at" json:"sent_at,omitempty"`
	ApprovedAt *time.Time `gorm:"column:approved_at" json:"approved_at,omitempty"`
	ClosedAt   *time.Time `gorm:"column:closed_at" json:"closed_at,omitempty"`

	PDFPath   *string `gorm:"column:pdf_path" json:"pdf_path,omitempty"`
	FinalHash *string `gorm:"column:final_hash" json:"final_hash,omitempty"`

	// Version is the optimistic-concurrency token: every update is guarded by
	// a compare-and-swap on this column.
	Version int `gorm:"column:version" json:"version"`

	CreateAt *time.Time `gorm:"column:create_at" json:"create_at"`
	UpdateAt *time.Time `gorm:"column:update_at" json:"update_at"`
	DeleteAt *time.Time `gorm:"column:delete_at" json:"delete_at,omitempty"`
}

func (PazYSalvo) TableName() string {
	return "pazysalvos"
}

// IsTerminal reports whether the document can no longer change state.
func (p *PazYSalvo) IsTerminal() bool {
	return p.Status == StateRechazado || p.Status == StateCerrado
}

// Slot returns the slot bound to the given role, or nil.
func (p *PazYSalvo) Slot(role string) *SignatureSlot {
	for i := range p.Slots {
		if p.Slots[i].Role == role {
			return &p.Slots[i]
		}
	}
	return nil
}

// MandatorySigned reports whether every mandatory slot other than RRHH has
// been signed. This is the auto-approval condition.
func (p *PazYSalvo) MandatorySigned() bool {
	for i := range p.Slots {
		s := &p.Slots[i]
		if s.Role == RoleRRHH || !s.Mandatory {
			continue
		}
		if s.Status != SlotFirmada {
			return false
		}
	}
	return true
}

// SlotCounts returns (pending, signed, mandatory) slot counts for listings.
func (p *PazYSalvo) SlotCounts() (pending, signed, mandatory int) {
	for i := range p.Slots {
		switch p.Slots[i].Status {
		case SlotPendiente:
			pending++
		case SlotFirmada:
			signed++
		}
		if p.Slots[i].Mandatory {
			mandatory++
		}
	}
	return pending, signed, mandatory
}

// AppendHistory adds an immutable trail entry.
func (p *PazYSalvo) AppendHistory(actorID int, action, from, to, note string, at time.Time) {
	p.History = append(p.History, HistoryEntry{
		ActorID:   actorID,
		Action:    action,
		FromState: from,
		ToState:   to,
		Note:      note,
		Timestamp: at,
	})
}
