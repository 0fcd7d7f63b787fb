package usecase

import (
	"fmt"
	"strings"

	"github.com/kirillkom/case-intake/internal/core/domain"
)

type SlotValidator struct{}

// Validate accepts any document for a non-required slot. For a required slot
// every validation result must be valid.
func (SlotValidator) Validate(doc *domain.UploadedDocument, slot domain.ChecklistSlot) error {
	if !slot.Required {
		return nil
	}

	var invalid []string
	for _, result := range EvaluateValidation(doc, slot) {
		if !result.Valid {
			invalid = append(invalid, result.Field)
		}
	}
	if len(invalid) > 0 {
		return domain.WrapError(
			domain.ErrMissingRequiredFields,
			"validate slot "+slot.Name,
			fmt.Errorf("invalid fields: %s", strings.Join(invalid, ", ")),
		)
	}
	return nil
}

// EvaluateValidation returns the results recorded by the extraction service
// or, when none were recorded, derives one result per slot rule from the
// extracted data.
func EvaluateValidation(doc *domain.UploadedDocument, slot domain.ChecklistSlot) []domain.ValidationResult {
	if doc == nil {
		return nil
	}
	if len(doc.ValidationResults) > 0 {
		out := make([]domain.ValidationResult, len(doc.ValidationResults))
		copy(out, doc.ValidationResults)
		for i := range out {
			if strings.TrimSpace(out[i].Field) == "" {
				out[i].Field = "unnamed"
			}
		}
		return out
	}

	out := make([]domain.ValidationResult, 0, len(slot.ValidationRules))
	for _, rule := range slot.ValidationRules {
		field := strings.TrimSpace(rule)
		if field == "" {
			continue
		}
		result := domain.ValidationResult{Field: field, Valid: hasValue(doc.ExtractedData[field])}
		if !result.Valid {
			result.Message = "field is missing from extracted data"
		}
		out = append(out, result)
	}
	return out
}

func hasValue(v any) bool {
	switch value := v.(type) {
	case nil:
		return false
	case string:
		return strings.TrimSpace(value) != ""
	case []any:
		return len(value) > 0
	case map[string]any:
		return len(value) > 0
	default:
		return true
	}
}
