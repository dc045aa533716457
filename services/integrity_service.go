package services

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/gowebpki/jcs"

	"portalti-api/models"
)

// Schema tags versioning the hash payloads. Bump on any payload change.
const (
	signatureSchemaTag = "psfirma-v1"
	documentSchemaTag  = "psdoc-v1"
)

// noSignatureImage is the sentinel hashed when the signer has no stored
// signature-image reference.
const noSignatureImage = "SIN-FIRMA-REGISTRADA"

// IntegrityService computes the tamper-evident hashes of the workflow:
// one per signature event, one over the aggregated final state. Hashes are
// SHA-256 hex digests over RFC 8785 canonical JSON.
//
// The per-signature payload embeds the signing timestamp, so it is computed
// exactly once at signing time and persisted; verification recomputes only
// the final aggregate hash from the stored leaf hashes.
type IntegrityService struct{}

type signaturePayload struct {
	DocumentID   int    `json:"pys_id"`
	Role         string `json:"rol"`
	SignerID     int    `json:"signer_id"`
	SignerLogin  string `json:"signer_login"`
	SignatureRef string `json:"signature_ref"`
	EmployeeID   int    `json:"employee_id"`
	EmployeeRut  string `json:"employee_rut"`
	SignedAt     string `json:"signed_at"`
	Schema       string `json:"schema"`
}

type finalSlotPayload struct {
	Role     string `json:"rol"`
	Status   string `json:"estado"`
	Hash     string `json:"hash"`
	SignedAt string `json:"signed_at"`
}

type finalPayload struct {
	DocumentID int                `json:"pys_id"`
	EmployeeID int                `json:"employee_id"`
	ExitDate   string             `json:"exit_date"`
	Reason     string             `json:"reason"`
	Status     string             `json:"status"`
	Signatures []finalSlotPayload `json:"firmas"`
	Schema     string             `json:"schema"`
}

// SignatureHash computes the per-signature hash for a signing event.
// signedAt must be the server-side timestamp persisted on the slot.
func (IntegrityService) SignatureHash(doc *models.PazYSalvo, role string, signer *models.User, signedAt time.Time) (string, error) {
	if signer == nil {
		return "", &IntegrityError{Reason: fmt.Sprintf("signer record missing for role %s on document %d", role, doc.ID)}
	}
	ref := noSignatureImage
	if signer.SignaturePath != nil && *signer.SignaturePath != "" {
		ref = *signer.SignaturePath
	}
	return canonicalHash(signaturePayload{
		DocumentID:   doc.ID,
		Role:         role,
		SignerID:     signer.UserID,
		SignerLogin:  signer.Username,
		SignatureRef: ref,
		EmployeeID:   doc.EmployeeID,
		EmployeeRut:  doc.EmployeeRut,
		SignedAt:     signedAt.UTC().Format(time.RFC3339Nano),
		Schema:       signatureSchemaTag,
	})
}

// FinalHash computes the document hash over the aggregated state: identity,
// departure data, state and the (role, status, leaf hash, signed-at) tuples
// of every slot sorted by role name.
func (IntegrityService) FinalHash(doc *models.PazYSalvo) (string, error) {
	slots := make([]finalSlotPayload, 0, len(doc.Slots))
	for i := range doc.Slots {
		s := &doc.Slots[i]
		signedAt := ""
		if s.SignedAt != nil {
			signedAt = s.SignedAt.UTC().Format(time.RFC3339Nano)
		}
		slots = append(slots, finalSlotPayload{
			Role:     s.Role,
			Status:   s.Status,
			Hash:     s.Hash,
			SignedAt: signedAt,
		})
	}
	sort.Slice(slots, func(i, j int) bool { return slots[i].Role < slots[j].Role })

	return canonicalHash(finalPayload{
		DocumentID: doc.ID,
		EmployeeID: doc.EmployeeID,
		ExitDate:   doc.ExitDate.UTC().Format("2006-01-02"),
		Reason:     doc.Reason,
		Status:     doc.Status,
		Signatures: slots,
		Schema:     documentSchemaTag,
	})
}

// VerifyResult carries the outcome of a hash verification plus both hash
// values for diagnostics.
type VerifyResult struct {
	Valid        bool   `json:"valid"`
	StoredHash   string `json:"stored_hash"`
	ComputedHash string `json:"computed_hash"`
}

// Verify recomputes the final hash from the persisted state and compares it
// byte-for-byte against the stored one.
func (s IntegrityService) Verify(doc *models.PazYSalvo) (*VerifyResult, error) {
	if doc.FinalHash == nil || *doc.FinalHash == "" {
		return nil, &IntegrityError{Reason: fmt.Sprintf("document %d has no final hash to verify", doc.ID)}
	}
	computed, err := s.FinalHash(doc)
	if err != nil {
		return nil, err
	}
	return &VerifyResult{
		Valid:        computed == *doc.FinalHash,
		StoredHash:   *doc.FinalHash,
		ComputedHash: computed,
	}, nil
}

// canonicalHash marshals the payload, canonicalizes it per RFC 8785 and
// returns the SHA-256 hex digest.
func canonicalHash(v interface{}) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", &IntegrityError{Reason: "hash payload marshal: " + err.Error()}
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", &IntegrityError{Reason: "hash payload canonicalization: " + err.Error()}
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}
