package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput          = errors.New("invalid input")
	ErrInvalidFileType       = errors.New("invalid file type")
	ErrNoPendingSlots        = errors.New("no pending slots")
	ErrCaseNotFound          = errors.New("case not found")
	ErrDocumentNotFound      = errors.New("document not found")
	ErrBatchNotFound         = errors.New("batch not found")
	ErrExtractionFailed      = errors.New("extraction failed")
	ErrExtractionTimeout     = errors.New("extraction timed out")
	ErrNoMatchingSlot        = errors.New("no matching slot")
	ErrMissingRequiredFields = errors.New("missing required fields")
	ErrSlotAlreadyClaimed    = errors.New("slot already claimed")
	ErrTemporary             = errors.New("temporary failure")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}

// RejectionKind returns the first rejection sentinel matched by err, or nil.
func RejectionKind(err error) error {
	for _, kind := range []error{
		ErrInvalidFileType,
		ErrNoPendingSlots,
		ErrExtractionTimeout,
		ErrExtractionFailed,
		ErrNoMatchingSlot,
		ErrMissingRequiredFields,
		ErrSlotAlreadyClaimed,
	} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}
