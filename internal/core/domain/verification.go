package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
)

type VerificationReport struct {
	MismatchErrors      []Finding `json:"mismatchErrors"`
	MissingErrors       []Finding `json:"missingErrors"`
	SummarizationErrors []Finding `json:"summarizationErrors"`
}

func (r *VerificationReport) Total() int {
	if r == nil {
		return 0
	}
	return len(r.MismatchErrors) + len(r.MissingErrors) + len(r.SummarizationErrors)
}

type Finding struct {
	Type    string         `json:"type"`
	Details FindingDetails `json:"details"`
}

// FindingDetails is either free text or a mapping from source document name
// to the value that document reports.
type FindingDetails struct {
	Text   string
	Values map[string]string
}

func (d FindingDetails) IsText() bool {
	return d.Values == nil
}

func (d FindingDetails) MarshalJSON() ([]byte, error) {
	if d.Values != nil {
		return json.Marshal(d.Values)
	}
	return json.Marshal(d.Text)
}

func (d *FindingDetails) UnmarshalJSON(raw []byte) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		*d = FindingDetails{}
		return nil
	}
	switch raw[0] {
	case '"':
		var text string
		if err := json.Unmarshal(raw, &text); err != nil {
			return err
		}
		*d = FindingDetails{Text: text}
		return nil
	case '{':
		var values map[string]any
		if err := json.Unmarshal(raw, &values); err != nil {
			return err
		}
		out := make(map[string]string, len(values))
		for source, value := range values {
			out[source] = stringifyValue(value)
		}
		*d = FindingDetails{Values: out}
		return nil
	default:
		var value any
		if err := json.Unmarshal(raw, &value); err != nil {
			return err
		}
		*d = FindingDetails{Text: stringifyValue(value)}
		return nil
	}
}

func stringifyValue(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(encoded)
	}
}

// AcceptedDocument is the payload sent to cross verification for one document.
type AcceptedDocument struct {
	DocumentID    string         `json:"document_id"`
	Name          string         `json:"name"`
	SlotName      string         `json:"slot_name"`
	DocumentType  string         `json:"document_type"`
	ExtractedData map[string]any `json:"extracted_data"`
}

type CrossVerifyRequest struct {
	CaseID    string             `json:"case_id"`
	Documents []AcceptedDocument `json:"documents"`
}

// OrganizedDocuments is the questionnaire pre-fill produced for one template.
type OrganizedDocuments struct {
	RawDocuments         map[string]any            `json:"rawDocuments"`
	ProcessedInformation map[string]map[string]any `json:"processedInformation"`
}

type QuestionnairePrefill struct {
	CaseID     string             `json:"case_id"`
	TemplateID string             `json:"template_id"`
	Data       OrganizedDocuments `json:"data"`
}

type MailDraftRequest struct {
	ErrorType    string `json:"errorType"`
	ErrorDetails string `json:"errorDetails"`
	Recipient    string `json:"recipient"`
}

type MailDraft struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

type MailMessage struct {
	Subject   string   `json:"subject"`
	Body      string   `json:"body"`
	Recipient string   `json:"recipient"`
	CC        []string `json:"cc,omitempty"`
}
