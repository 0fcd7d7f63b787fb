package domain

import "time"

type CaseStatus string

const (
	CasePending   CaseStatus = "pending"
	CaseReviewed  CaseStatus = "reviewed"
	CaseCompleted CaseStatus = "completed"
)

type SlotStatus string

const (
	SlotPending  SlotStatus = "pending"
	SlotUploaded SlotStatus = "uploaded"
	SlotApproved SlotStatus = "approved"
)

type Case struct {
	ID           string          `json:"id"`
	CategoryID   string          `json:"category_id"`
	Status       CaseStatus      `json:"status"`
	Deadline     *time.Time      `json:"deadline,omitempty"`
	ContactEmail string          `json:"contact_email,omitempty"`
	ManagerEmail string          `json:"manager_email,omitempty"`
	Slots        []ChecklistSlot `json:"slots"`
}

type ChecklistSlot struct {
	ID                string             `json:"id"`
	Name              string             `json:"name"`
	Required          bool               `json:"required"`
	Status            SlotStatus         `json:"status"`
	ValidationRules   []string           `json:"validation_rules,omitempty"`
	ValidationResults []ValidationResult `json:"validation_results,omitempty"`
	DocumentTypeID    string             `json:"document_type_id,omitempty"`
	DocumentID        string             `json:"document_id,omitempty"`
}

type ValidationResult struct {
	Field   string `json:"field"`
	Valid   bool   `json:"valid"`
	Message string `json:"message,omitempty"`
}

func (s ChecklistSlot) IsPending() bool {
	return s.Status == SlotPending
}

func (s ChecklistSlot) IsSatisfied() bool {
	return s.Status == SlotUploaded || s.Status == SlotApproved
}

// PendingSlots returns pending slots in checklist order.
func (c *Case) PendingSlots() []ChecklistSlot {
	if c == nil {
		return nil
	}
	out := make([]ChecklistSlot, 0, len(c.Slots))
	for _, slot := range c.Slots {
		if slot.IsPending() {
			out = append(out, slot)
		}
	}
	return out
}

// AllSlotsSatisfied reports whether every slot is uploaded or approved.
// A case without slots is never complete.
func (c *Case) AllSlotsSatisfied() bool {
	if c == nil || len(c.Slots) == 0 {
		return false
	}
	for _, slot := range c.Slots {
		if !slot.IsSatisfied() {
			return false
		}
	}
	return true
}

func (c *Case) SlotByID(id string) (ChecklistSlot, bool) {
	if c == nil {
		return ChecklistSlot{}, false
	}
	for _, slot := range c.Slots {
		if slot.ID == id {
			return slot, true
		}
	}
	return ChecklistSlot{}, false
}
