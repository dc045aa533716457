package services

import (
	"portalti-api/models"
)

// legalTransitions is the full transition table of the sign-off workflow.
// Rechazado and Cerrado have no outgoing edges.
var legalTransitions = map[string][]string{
	models.StateBorrador:  {models.StateEnFirma},
	models.StateEnFirma:   {models.StateAprobado, models.StateRechazado},
	models.StateAprobado:  {models.StateCerrado},
	models.StateRechazado: {},
	models.StateCerrado:   {},
}

// CanTransition reports whether from -> to is a legal edge.
func CanTransition(from, to string) bool {
	for _, next := range legalTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// transitionTo moves the document to the given state after checking the edge
// against the table. The document is never mutated on an illegal edge.
func transitionTo(op string, doc *models.PazYSalvo, to string) error {
	if !CanTransition(doc.Status, to) {
		return &InvalidStateError{Op: op, Current: doc.Status}
	}
	doc.Status = to
	return nil
}

// requireState returns an InvalidStateError unless the document is in the
// required state. The document is never mutated on failure.
func requireState(op string, doc *models.PazYSalvo, required string) error {
	if doc.Status != required {
		return &InvalidStateError{Op: op, Current: doc.Status, Required: required}
	}
	return nil
}
