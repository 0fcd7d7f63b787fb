package ports

import (
	"context"

	"github.com/kirillkom/case-intake/internal/core/domain"
)

// DocumentIntake is the inbound contract for upload validation and batch
// orchestration.
type DocumentIntake interface {
	Upload(ctx context.Context, caseID string, files []domain.UploadFile) (*domain.Batch, error)
	ProcessBatch(ctx context.Context, batch domain.Batch) (*domain.BatchResult, error)
}

// IntakeReader is the inbound read model for cases, documents and batches.
type IntakeReader interface {
	GetCase(ctx context.Context, caseID string) (*domain.Case, error)
	GetDocument(ctx context.Context, documentID string) (*domain.UploadedDocument, error)
	GetBatch(ctx context.Context, batchID string) (*domain.BatchRecord, error)
}
