package extraction

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/kirillkom/case-intake/internal/core/domain"
	"github.com/kirillkom/case-intake/internal/infrastructure/httpjson"
	"github.com/kirillkom/case-intake/internal/infrastructure/resilience"
)

// Client talks to the OCR/classification service. Documents are submitted
// by storage reference; classification is read back by polling Status.
type Client struct {
	http *httpjson.Client
}

func New(client *httpjson.Client) *Client {
	return &Client{http: client}
}

type submitRequest struct {
	DocumentID        string `json:"documentId"`
	CaseID            string `json:"caseId"`
	Filename          string `json:"filename"`
	MimeType          string `json:"mimeType"`
	StoragePath       string `json:"storagePath"`
	ProvisionalSlotID string `json:"slotId,omitempty"`
}

type statusResponse struct {
	Status            string                    `json:"status"`
	ProcessingError   *string                   `json:"processingError"`
	ExtractedData     map[string]any            `json:"extractedData"`
	ValidationResults []domain.ValidationResult `json:"validationResults"`
}

func (c *Client) Submit(ctx context.Context, doc *domain.UploadedDocument) error {
	req := submitRequest{
		DocumentID:        doc.ID,
		CaseID:            doc.CaseID,
		Filename:          doc.Filename,
		MimeType:          doc.MimeType,
		StoragePath:       doc.StoragePath,
		ProvisionalSlotID: doc.ProvisionalSlotID,
	}
	return c.http.Post(ctx, "/api/documents", req, nil, "submit")
}

func (c *Client) Status(ctx context.Context, documentID string) (domain.ExtractionStatus, error) {
	if strings.TrimSpace(documentID) == "" {
		return domain.ExtractionStatus{}, domain.WrapError(domain.ErrInvalidInput, "extraction status", errors.New("document id is required"))
	}

	var resp statusResponse
	path := "/api/documents/" + url.PathEscape(documentID) + "/status"
	if err := c.http.Get(ctx, path, &resp, "status"); err != nil {
		var statusErr *resilience.HTTPStatusError
		if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound {
			return domain.ExtractionStatus{}, domain.WrapError(domain.ErrDocumentNotFound, "extraction status", err)
		}
		return domain.ExtractionStatus{}, err
	}

	out := domain.ExtractionStatus{
		Status:            normalizeStatus(resp.Status),
		ExtractedData:     resp.ExtractedData,
		ValidationResults: resp.ValidationResults,
	}
	if resp.ProcessingError != nil {
		out.ProcessingError = strings.TrimSpace(*resp.ProcessingError)
	}
	return out, nil
}

func normalizeStatus(raw string) domain.DocumentStatus {
	status := domain.DocumentStatus(strings.ToLower(strings.TrimSpace(raw)))
	switch status {
	case domain.DocumentPending, domain.DocumentProcessing, domain.DocumentDetecting,
		domain.DocumentValidating, domain.DocumentUploaded, domain.DocumentFailed:
		return status
	case "":
		return domain.DocumentPending
	default:
		return domain.DocumentStatus(fmt.Sprintf("unknown:%s", status))
	}
}
