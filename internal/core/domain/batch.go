package domain

import "time"

type BatchStatus string

const (
	BatchQueued  BatchStatus = "queued"
	BatchSettled BatchStatus = "settled"
)

// Batch groups the documents accepted from one upload action.
type Batch struct {
	ID          string      `json:"id"`
	CaseID      string      `json:"case_id"`
	DocumentIDs []string    `json:"document_ids"`
	Submitted   int         `json:"submitted"`
	Rejected    int         `json:"rejected"`
	Status      BatchStatus `json:"status"`
	CreatedAt   time.Time   `json:"created_at"`
}

type DocumentOutcomeStatus string

const (
	OutcomeCommitted DocumentOutcomeStatus = "committed"
	OutcomeDeleted   DocumentOutcomeStatus = "deleted"
)

type DocumentOutcome struct {
	DocumentID string                `json:"document_id"`
	Status     DocumentOutcomeStatus `json:"status"`
	SlotID     string                `json:"slot_id,omitempty"`
	Reason     string                `json:"-"`
	// CompletesCase is set on the one commit that left no slot unsatisfied.
	CompletesCase bool `json:"-"`
}

// BatchResult is the aggregate the initiating user sees. Per-document
// reasons stay in server logs.
type BatchResult struct {
	BatchID   string              `json:"batch_id"`
	CaseID    string              `json:"case_id"`
	Succeeded int                 `json:"succeeded"`
	Failed    int                 `json:"failed"`
	GateFired bool                `json:"gate_fired"`
	Report    *VerificationReport `json:"report,omitempty"`
	Warnings  []string            `json:"warnings,omitempty"`
	Case      *Case               `json:"case,omitempty"`
	Outcomes  []DocumentOutcome   `json:"-"`
	SettledAt time.Time           `json:"settled_at"`
}

// BatchRecord is the persisted view of a batch and, once settled, its summary.
type BatchRecord struct {
	Batch
	Succeeded int        `json:"succeeded"`
	Failed    int        `json:"failed"`
	GateFired bool       `json:"gate_fired"`
	Warnings  []string   `json:"warnings,omitempty"`
	SettledAt *time.Time `json:"settled_at,omitempty"`
}
