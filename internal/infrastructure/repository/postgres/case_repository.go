package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/kirillkom/case-intake/internal/core/domain"
)

type CaseRepository struct {
	db *sql.DB
}

func NewCaseRepository(db *sql.DB) *CaseRepository {
	return &CaseRepository{db: db}
}

// Get loads a case with its checklist in position order. A slot's document id
// comes from the document bound to it, if any.
func (r *CaseRepository) Get(ctx context.Context, caseID string) (*domain.Case, error) {
	var (
		c        domain.Case
		status   string
		deadline sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, `
SELECT id, category_id, status, deadline, contact_email, manager_email
FROM cases
WHERE id = $1
`, caseID).Scan(&c.ID, &c.CategoryID, &status, &deadline, &c.ContactEmail, &c.ManagerEmail)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrCaseNotFound, "get case", fmt.Errorf("id=%s", caseID))
		}
		return nil, fmt.Errorf("scan case: %w", err)
	}
	c.Status = domain.CaseStatus(status)
	if deadline.Valid {
		t := deadline.Time
		c.Deadline = &t
	}

	slots, err := r.listSlots(ctx, caseID)
	if err != nil {
		return nil, err
	}
	c.Slots = slots
	return &c, nil
}

func (r *CaseRepository) listSlots(ctx context.Context, caseID string) ([]domain.ChecklistSlot, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT s.id, s.name, s.required, s.status, s.validation_rules, s.validation_results, s.document_type_id, d.id
FROM checklist_slots s
LEFT JOIN documents d ON d.slot_id = s.id
WHERE s.case_id = $1
ORDER BY s.position ASC
`, caseID)
	if err != nil {
		return nil, fmt.Errorf("list checklist slots: %w", err)
	}
	defer rows.Close()

	slots := make([]domain.ChecklistSlot, 0)
	for rows.Next() {
		slot, err := scanSlot(rows)
		if err != nil {
			return nil, err
		}
		slots = append(slots, slot)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate checklist slots: %w", err)
	}
	return slots, nil
}

func scanSlot(row rowScanner) (domain.ChecklistSlot, error) {
	var (
		slot       domain.ChecklistSlot
		status     string
		rulesRaw   []byte
		resultsRaw []byte
		documentID sql.NullString
	)
	if err := row.Scan(&slot.ID, &slot.Name, &slot.Required, &status, &rulesRaw, &resultsRaw, &slot.DocumentTypeID, &documentID); err != nil {
		return domain.ChecklistSlot{}, fmt.Errorf("scan checklist slot: %w", err)
	}
	if len(rulesRaw) > 0 {
		if err := json.Unmarshal(rulesRaw, &slot.ValidationRules); err != nil {
			return domain.ChecklistSlot{}, fmt.Errorf("unmarshal validation rules: %w", err)
		}
	}
	if len(resultsRaw) > 0 {
		if err := json.Unmarshal(resultsRaw, &slot.ValidationResults); err != nil {
			return domain.ChecklistSlot{}, fmt.Errorf("unmarshal slot validation results: %w", err)
		}
	}
	slot.Status = domain.SlotStatus(status)
	slot.DocumentID = documentID.String
	return slot, nil
}

func (r *CaseRepository) PatchSlotStatus(ctx context.Context, caseID, slotID string, status domain.SlotStatus) error {
	result, err := r.db.ExecContext(ctx, `
UPDATE checklist_slots
SET status = $3, updated_at = $4
WHERE case_id = $1 AND id = $2
`, caseID, slotID, string(status), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update slot status: %w", err)
	}
	return requireAffected(result, domain.ErrCaseNotFound, "update slot status", caseID+"/"+slotID)
}

func (r *CaseRepository) ActiveQuestionnaireTemplates(ctx context.Context, categoryID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id
FROM questionnaire_templates
WHERE category_id = $1 AND active
ORDER BY id ASC
`, categoryID)
	if err != nil {
		return nil, fmt.Errorf("list questionnaire templates: %w", err)
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan questionnaire template: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate questionnaire templates: %w", err)
	}
	return ids, nil
}

func (r *CaseRepository) SavePrefill(ctx context.Context, prefill domain.QuestionnairePrefill) error {
	data, err := json.Marshal(prefill.Data)
	if err != nil {
		return fmt.Errorf("marshal prefill: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
INSERT INTO questionnaire_prefills (case_id, template_id, data, updated_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (case_id, template_id)
DO UPDATE SET data = EXCLUDED.data, updated_at = EXCLUDED.updated_at
`, prefill.CaseID, prefill.TemplateID, data, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("upsert prefill: %w", err)
	}
	return nil
}
