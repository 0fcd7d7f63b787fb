package domain

import (
	"strings"
	"time"
)

type DocumentStatus string

const (
	DocumentPending    DocumentStatus = "pending"
	DocumentProcessing DocumentStatus = "processing"
	DocumentDetecting  DocumentStatus = "detecting"
	DocumentValidating DocumentStatus = "validating"
	DocumentUploaded   DocumentStatus = "uploaded"
	DocumentFailed     DocumentStatus = "failed"
)

// DocumentTypeKey is the extracted-data field populated once the extraction
// service has classified a document.
const DocumentTypeKey = "document_type"

var AllowedMimeTypes = map[string]bool{
	"image/jpeg":      true,
	"image/png":       true,
	"image/jpg":       true,
	"application/pdf": true,
}

type UploadedDocument struct {
	ID                string             `json:"id"`
	CaseID            string             `json:"case_id"`
	Filename          string             `json:"filename"`
	MimeType          string             `json:"mime_type"`
	Size              int64              `json:"size"`
	PageCount         int                `json:"page_count,omitempty"`
	StoragePath       string             `json:"storage_path"`
	Status            DocumentStatus     `json:"status"`
	ExtractedData     map[string]any     `json:"extracted_data,omitempty"`
	ValidationResults []ValidationResult `json:"validation_results,omitempty"`
	ProvisionalSlotID string             `json:"provisional_slot_id"`
	SlotID            string             `json:"slot_id,omitempty"`
	DocumentTypeID    string             `json:"document_type_id,omitempty"`
	ProcessingError   string             `json:"processing_error,omitempty"`
	CreatedAt         time.Time          `json:"created_at"`
	UpdatedAt         time.Time          `json:"updated_at"`
}

// DocumentType returns the trimmed extracted document type, if any.
func (d *UploadedDocument) DocumentType() string {
	if d == nil {
		return ""
	}
	return ExtractedType(d.ExtractedData)
}

func ExtractedType(data map[string]any) string {
	raw, ok := data[DocumentTypeKey].(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(raw)
}

// ExtractionStatus is what the extraction service reports for a document.
type ExtractionStatus struct {
	Status            DocumentStatus     `json:"status"`
	ProcessingError   string             `json:"processing_error,omitempty"`
	ExtractedData     map[string]any     `json:"extracted_data,omitempty"`
	ValidationResults []ValidationResult `json:"validation_results,omitempty"`
}

// ExtractionResult is a classified document as returned by the poller.
type ExtractionResult struct {
	DocumentID        string
	DocumentType      string
	ExtractedData     map[string]any
	ValidationResults []ValidationResult
	Attempts          int
}

type UploadFile struct {
	Filename string
	MimeType string
	Size     int64
	Body     []byte
}
