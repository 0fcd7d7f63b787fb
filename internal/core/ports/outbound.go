package ports

import (
	"context"
	"io"

	"github.com/kirillkom/case-intake/internal/core/domain"
)

// DocumentStore persists uploaded documents.
type DocumentStore interface {
	Create(ctx context.Context, doc *domain.UploadedDocument) error
	GetByID(ctx context.Context, id string) (*domain.UploadedDocument, error)
	ListByCase(ctx context.Context, caseID string) ([]domain.UploadedDocument, error)
	UpdateStatus(ctx context.Context, id string, status domain.DocumentStatus, errMessage string) error
	SaveExtraction(ctx context.Context, id string, result domain.ExtractionResult) error
	Patch(ctx context.Context, id, slotID, documentTypeID string) error
	Delete(ctx context.Context, id string) error
}

// CaseStore reads cases and applies slot transitions.
type CaseStore interface {
	Get(ctx context.Context, caseID string) (*domain.Case, error)
	PatchSlotStatus(ctx context.Context, caseID, slotID string, status domain.SlotStatus) error
	ActiveQuestionnaireTemplates(ctx context.Context, categoryID string) ([]string, error)
	SavePrefill(ctx context.Context, prefill domain.QuestionnairePrefill) error
}

// BatchStore records upload batches and their settled summaries.
type BatchStore interface {
	CreateBatch(ctx context.Context, batch *domain.Batch) error
	SettleBatch(ctx context.Context, result *domain.BatchResult) error
	GetBatch(ctx context.Context, id string) (*domain.BatchRecord, error)
}

// ObjectStorage stores raw uploaded files.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

// ExtractionService is the external document extraction service.
type ExtractionService interface {
	Submit(ctx context.Context, doc *domain.UploadedDocument) error
	Status(ctx context.Context, documentID string) (domain.ExtractionStatus, error)
}

// AnalysisService runs cross-document analysis and questionnaire organization.
type AnalysisService interface {
	CrossVerify(ctx context.Context, req domain.CrossVerifyRequest) (domain.VerificationReport, error)
	Organize(ctx context.Context, caseID, templateID string) (domain.OrganizedDocuments, error)
}

// MailService drafts and sends report emails.
type MailService interface {
	Draft(ctx context.Context, req domain.MailDraftRequest) (domain.MailDraft, error)
	Send(ctx context.Context, msg domain.MailMessage) error
}

// BatchQueue hands accepted batches from the API to workers.
type BatchQueue interface {
	PublishBatch(ctx context.Context, batch domain.Batch) error
	SubscribeBatches(ctx context.Context, handler func(context.Context, domain.Batch) error) error
}

// CaseLocker serializes slot claiming per case.
type CaseLocker interface {
	Lock(ctx context.Context, caseID string) (unlock func(), err error)
}

// DocumentInspector reads cheap metadata from an upload before it is stored.
type DocumentInspector interface {
	PageCount(mimeType string, body []byte) (int, error)
}
