package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/kirillkom/case-intake/internal/core/domain"
)

const uniqueViolation = "23505"

type DocumentRepository struct {
	db *sql.DB
}

func NewDocumentRepository(db *sql.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

const documentColumns = `id, case_id, filename, mime_type, size_bytes, page_count, storage_path, status,
	extracted_data, validation_results, provisional_slot_id, slot_id, document_type_id, error_message, created_at, updated_at`

func (r *DocumentRepository) Create(ctx context.Context, doc *domain.UploadedDocument) error {
	resultsJSON, err := marshalResults(doc.ValidationResults)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
INSERT INTO documents (
	id, case_id, filename, mime_type, size_bytes, page_count, storage_path, status,
	validation_results, provisional_slot_id, error_message, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
`,
		doc.ID, doc.CaseID, doc.Filename, doc.MimeType, doc.Size, doc.PageCount, doc.StoragePath, string(doc.Status),
		resultsJSON, nullIfEmpty(doc.ProvisionalSlotID), doc.ProcessingError, doc.CreatedAt, doc.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

func (r *DocumentRepository) GetByID(ctx context.Context, id string) (*domain.UploadedDocument, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+documentColumns+`
FROM documents
WHERE id = $1
`, id)

	doc, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrDocumentNotFound, "get document", fmt.Errorf("id=%s", id))
		}
		return nil, fmt.Errorf("scan document: %w", err)
	}
	return &doc, nil
}

func (r *DocumentRepository) ListByCase(ctx context.Context, caseID string) ([]domain.UploadedDocument, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+documentColumns+`
FROM documents
WHERE case_id = $1
ORDER BY created_at ASC
`, caseID)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	out := make([]domain.UploadedDocument, 0)
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		out = append(out, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return out, nil
}

func (r *DocumentRepository) UpdateStatus(ctx context.Context, id string, status domain.DocumentStatus, errMessage string) error {
	result, err := r.db.ExecContext(ctx, `
UPDATE documents
SET status = $2, error_message = $3, updated_at = $4
WHERE id = $1
`, id, string(status), errMessage, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update document status: %w", err)
	}
	return requireAffected(result, domain.ErrDocumentNotFound, "update document status", id)
}

func (r *DocumentRepository) SaveExtraction(ctx context.Context, id string, extraction domain.ExtractionResult) error {
	dataJSON, err := json.Marshal(extraction.ExtractedData)
	if err != nil {
		return fmt.Errorf("marshal extracted data: %w", err)
	}
	resultsJSON, err := marshalResults(extraction.ValidationResults)
	if err != nil {
		return err
	}

	result, err := r.db.ExecContext(ctx, `
UPDATE documents
SET extracted_data = $2, validation_results = $3, status = $4, updated_at = $5
WHERE id = $1
`, id, dataJSON, resultsJSON, string(domain.DocumentDetecting), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("save extraction: %w", err)
	}
	return requireAffected(result, domain.ErrDocumentNotFound, "save extraction", id)
}

// Patch binds the document to a slot. A second document for the same slot
// violates uq_documents_slot and is reported as ErrSlotAlreadyClaimed.
func (r *DocumentRepository) Patch(ctx context.Context, id, slotID, documentTypeID string) error {
	result, err := r.db.ExecContext(ctx, `
UPDATE documents
SET slot_id = $2, document_type_id = $3, status = $4, error_message = '', updated_at = $5
WHERE id = $1
`, id, slotID, nullIfEmpty(documentTypeID), string(domain.DocumentUploaded), time.Now().UTC())
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return domain.WrapError(domain.ErrSlotAlreadyClaimed, "patch document", err)
		}
		return fmt.Errorf("patch document: %w", err)
	}
	return requireAffected(result, domain.ErrDocumentNotFound, "patch document", id)
}

func (r *DocumentRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	return requireAffected(result, domain.ErrDocumentNotFound, "delete document", id)
}

func scanDocument(row rowScanner) (domain.UploadedDocument, error) {
	var (
		doc         domain.UploadedDocument
		status      string
		dataRaw     []byte
		resultsRaw  []byte
		provisional sql.NullString
		slotID      sql.NullString
		typeID      sql.NullString
	)
	err := row.Scan(
		&doc.ID, &doc.CaseID, &doc.Filename, &doc.MimeType, &doc.Size, &doc.PageCount, &doc.StoragePath, &status,
		&dataRaw, &resultsRaw, &provisional, &slotID, &typeID, &doc.ProcessingError, &doc.CreatedAt, &doc.UpdatedAt,
	)
	if err != nil {
		return domain.UploadedDocument{}, err
	}

	if len(dataRaw) > 0 {
		if err := json.Unmarshal(dataRaw, &doc.ExtractedData); err != nil {
			return domain.UploadedDocument{}, fmt.Errorf("unmarshal extracted data: %w", err)
		}
	}
	if len(resultsRaw) > 0 {
		if err := json.Unmarshal(resultsRaw, &doc.ValidationResults); err != nil {
			return domain.UploadedDocument{}, fmt.Errorf("unmarshal validation results: %w", err)
		}
	}
	doc.Status = domain.DocumentStatus(status)
	doc.ProvisionalSlotID = provisional.String
	doc.SlotID = slotID.String
	doc.DocumentTypeID = typeID.String
	return doc, nil
}

func marshalResults(results []domain.ValidationResult) ([]byte, error) {
	if results == nil {
		results = []domain.ValidationResult{}
	}
	raw, err := json.Marshal(results)
	if err != nil {
		return nil, fmt.Errorf("marshal validation results: %w", err)
	}
	return raw, nil
}

func requireAffected(result sql.Result, kind error, operation, id string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", operation, err)
	}
	if rows == 0 {
		return domain.WrapError(kind, operation, fmt.Errorf("id=%s", id))
	}
	return nil
}
