package usecase

import (
	"bytes"
	"context"
	"fmt"
	"mime"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/case-intake/internal/core/domain"
	"github.com/kirillkom/case-intake/internal/core/ports"
)

type UploadValidator struct {
	docs      ports.DocumentStore
	storage   ports.ObjectStorage
	inspector ports.DocumentInspector
}

func NewUploadValidator(docs ports.DocumentStore, storage ports.ObjectStorage) *UploadValidator {
	return &UploadValidator{
		docs:    docs,
		storage: storage,
	}
}

// WithInspector records page counts on accepted documents. Inspection
// failures never reject an upload.
func (v *UploadValidator) WithInspector(inspector ports.DocumentInspector) *UploadValidator {
	v.inspector = inspector
	return v
}

// Accept stores the file and creates a pending document provisionally bound
// to the first pending slot. Rejections leave no side effects.
func (v *UploadValidator) Accept(ctx context.Context, file domain.UploadFile, c *domain.Case) (*domain.UploadedDocument, error) {
	mimeType := normalizeMimeType(file.MimeType)
	if !domain.AllowedMimeTypes[mimeType] {
		return nil, domain.WrapError(domain.ErrInvalidFileType, "accept upload", fmt.Errorf("mime type %q is not allowed", file.MimeType))
	}

	pending := c.PendingSlots()
	if len(pending) == 0 {
		return nil, domain.WrapError(domain.ErrNoPendingSlots, "accept upload", fmt.Errorf("case %s has no pending slots", c.ID))
	}

	id := uuid.NewString()
	storageKey := fmt.Sprintf("%s/%s_%s", c.ID, id, sanitizeFilename(file.Filename))
	if err := v.storage.Save(ctx, storageKey, bytes.NewReader(file.Body)); err != nil {
		return nil, fmt.Errorf("save to object storage: %w", err)
	}

	size := file.Size
	if size <= 0 {
		size = int64(len(file.Body))
	}
	now := time.Now().UTC()
	doc := &domain.UploadedDocument{
		ID:                id,
		CaseID:            c.ID,
		Filename:          file.Filename,
		MimeType:          mimeType,
		Size:              size,
		PageCount:         v.pageCount(mimeType, file.Body),
		StoragePath:       storageKey,
		Status:            domain.DocumentPending,
		ProvisionalSlotID: pending[0].ID,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	if err := v.docs.Create(ctx, doc); err != nil {
		_ = v.storage.Delete(context.WithoutCancel(ctx), storageKey)
		return nil, fmt.Errorf("create document metadata: %w", err)
	}
	return doc, nil
}

func (v *UploadValidator) pageCount(mimeType string, body []byte) int {
	if v.inspector == nil {
		return 0
	}
	pages, err := v.inspector.PageCount(mimeType, body)
	if err != nil {
		return 0
	}
	return pages
}

func normalizeMimeType(raw string) string {
	mediaType, _, err := mime.ParseMediaType(raw)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(raw))
	}
	return strings.ToLower(mediaType)
}

func sanitizeFilename(name string) string {
	base := filepath.Base(name)
	base = strings.ReplaceAll(base, " ", "_")
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r
		case r >= 'A' && r <= 'Z':
			return r
		case r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	if base == "" || base == "." || base == "_" {
		return "document.bin"
	}
	return base
}
