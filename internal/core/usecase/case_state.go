package usecase

import (
	"context"
	"fmt"

	"github.com/kirillkom/case-intake/internal/core/domain"
	"github.com/kirillkom/case-intake/internal/core/ports"
)

type CaseStateUpdater struct {
	cases ports.CaseStore
	docs  ports.DocumentStore
}

func NewCaseStateUpdater(cases ports.CaseStore, docs ports.DocumentStore) *CaseStateUpdater {
	return &CaseStateUpdater{
		cases: cases,
		docs:  docs,
	}
}

// Commit binds doc to slot and moves the slot to uploaded. Callers must hold
// the case lock. Repeating a commit for the same document is a no-op.
func (u *CaseStateUpdater) Commit(ctx context.Context, doc *domain.UploadedDocument, slot domain.ChecklistSlot) error {
	c, err := u.cases.Get(ctx, doc.CaseID)
	if err != nil {
		return fmt.Errorf("reload case: %w", err)
	}
	current, ok := c.SlotByID(slot.ID)
	if !ok {
		return domain.WrapError(domain.ErrInvalidInput, "commit document", fmt.Errorf("slot %s not in case %s", slot.ID, c.ID))
	}

	if current.DocumentID == doc.ID && current.IsSatisfied() {
		u.applyCommit(doc, current)
		return nil
	}
	if !current.IsPending() {
		return domain.WrapError(
			domain.ErrSlotAlreadyClaimed,
			"commit document",
			fmt.Errorf("slot %s is %s", current.ID, current.Status),
		)
	}

	if err := u.docs.Patch(ctx, doc.ID, current.ID, current.DocumentTypeID); err != nil {
		return fmt.Errorf("bind document to slot: %w", err)
	}
	if err := u.cases.PatchSlotStatus(ctx, c.ID, current.ID, domain.SlotUploaded); err != nil {
		return fmt.Errorf("set slot status=uploaded: %w", err)
	}

	u.applyCommit(doc, current)
	return nil
}

func (u *CaseStateUpdater) applyCommit(doc *domain.UploadedDocument, slot domain.ChecklistSlot) {
	doc.SlotID = slot.ID
	doc.DocumentTypeID = slot.DocumentTypeID
	doc.Status = domain.DocumentUploaded
}
