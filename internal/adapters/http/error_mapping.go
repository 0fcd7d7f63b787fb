package httpadapter

import (
	"net/http"

	"github.com/kirillkom/case-intake/internal/core/domain"
)

func mapErrorToHTTPStatus(err error) int {
	switch {
	case domain.IsKind(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case domain.IsKind(err, domain.ErrInvalidFileType):
		return http.StatusUnsupportedMediaType
	case domain.IsKind(err, domain.ErrCaseNotFound),
		domain.IsKind(err, domain.ErrDocumentNotFound),
		domain.IsKind(err, domain.ErrBatchNotFound):
		return http.StatusNotFound
	case domain.IsKind(err, domain.ErrNoPendingSlots),
		domain.IsKind(err, domain.ErrSlotAlreadyClaimed):
		return http.StatusConflict
	case domain.IsKind(err, domain.ErrNoMatchingSlot),
		domain.IsKind(err, domain.ErrMissingRequiredFields),
		domain.IsKind(err, domain.ErrExtractionFailed),
		domain.IsKind(err, domain.ErrExtractionTimeout):
		return http.StatusUnprocessableEntity
	case domain.IsKind(err, domain.ErrTemporary):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
