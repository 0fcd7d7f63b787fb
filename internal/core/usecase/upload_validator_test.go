package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/kirillkom/case-intake/internal/core/domain"
)

func TestUploadValidatorAccepts(t *testing.T) {
	store := newMemoryStore(passportResumeCase())
	objects := newMemoryObjects()
	validator := NewUploadValidator(store, objects)

	doc, err := validator.Accept(context.Background(), domain.UploadFile{
		Filename: "../my passport.PDF",
		MimeType: "Application/PDF; charset=binary",
		Body:     []byte("%PDF"),
	}, store.cases["case-1"])
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if doc.Status != domain.DocumentPending || doc.MimeType != "application/pdf" || doc.Size != 4 {
		t.Fatalf("unexpected document: %+v", doc)
	}
	if doc.ProvisionalSlotID != "slot-passport" || doc.SlotID != "" {
		t.Fatalf("expected provisional binding to first pending slot only, got %+v", doc)
	}
	if !strings.HasPrefix(doc.StoragePath, "case-1/"+doc.ID+"_") || !strings.HasSuffix(doc.StoragePath, "my_passport.PDF") {
		t.Fatalf("unexpected storage path %q", doc.StoragePath)
	}
	if objects.count() != 1 || store.documentCount() != 1 {
		t.Fatalf("expected stored object and document")
	}
}

func TestUploadValidatorProvisionalSlotSkipsFilled(t *testing.T) {
	c := passportResumeCase()
	c.Slots[0].Status = domain.SlotUploaded
	store := newMemoryStore(c)

	doc, err := NewUploadValidator(store, newMemoryObjects()).Accept(context.Background(), pdf("cv.pdf"), c)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if doc.ProvisionalSlotID != "slot-resume" {
		t.Fatalf("expected provisional slot-resume, got %q", doc.ProvisionalSlotID)
	}
}

func TestUploadValidatorRejections(t *testing.T) {
	full := passportResumeCase()
	for i := range full.Slots {
		full.Slots[i].Status = domain.SlotApproved
	}

	tests := []struct {
		name string
		file domain.UploadFile
		c    *domain.Case
		want error
	}{
		{name: "text file", file: domain.UploadFile{Filename: "a.txt", MimeType: "text/plain"}, c: passportResumeCase(), want: domain.ErrInvalidFileType},
		{name: "gif", file: domain.UploadFile{Filename: "a.gif", MimeType: "image/gif"}, c: passportResumeCase(), want: domain.ErrInvalidFileType},
		{name: "missing mime", file: domain.UploadFile{Filename: "a.pdf"}, c: passportResumeCase(), want: domain.ErrInvalidFileType},
		{name: "no pending slots", file: pdf("a.pdf"), c: full, want: domain.ErrNoPendingSlots},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			store := newMemoryStore(tc.c)
			objects := newMemoryObjects()

			doc, err := NewUploadValidator(store, objects).Accept(context.Background(), tc.file, tc.c)
			if doc != nil || !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got doc=%+v err=%v", tc.want, doc, err)
			}
			if objects.count() != 0 || store.documentCount() != 0 {
				t.Fatalf("expected no side effects on rejection")
			}
		})
	}
}

func TestUploadValidatorAllowedImageTypes(t *testing.T) {
	for _, mimeType := range []string{"image/jpeg", "image/png", "image/jpg"} {
		store := newMemoryStore(passportResumeCase())
		file := domain.UploadFile{Filename: "scan", MimeType: mimeType, Body: []byte{0xff}}
		if _, err := NewUploadValidator(store, newMemoryObjects()).Accept(context.Background(), file, store.cases["case-1"]); err != nil {
			t.Fatalf("%s: unexpected error: %v", mimeType, err)
		}
	}
}

func TestUploadValidatorRemovesObjectWhenMetadataFails(t *testing.T) {
	store := newMemoryStore(passportResumeCase())
	store.createErr = errors.New("insert failed")
	objects := newMemoryObjects()

	if _, err := NewUploadValidator(store, objects).Accept(context.Background(), pdf("a.pdf"), store.cases["case-1"]); err == nil {
		t.Fatalf("expected error")
	}
	if objects.count() != 0 {
		t.Fatalf("expected stored object to be removed")
	}
}

func TestUploadValidatorStorageFailure(t *testing.T) {
	store := newMemoryStore(passportResumeCase())
	objects := newMemoryObjects()
	objects.saveErr = errors.New("disk full")

	if _, err := NewUploadValidator(store, objects).Accept(context.Background(), pdf("a.pdf"), store.cases["case-1"]); err == nil {
		t.Fatalf("expected error")
	}
	if store.documentCount() != 0 {
		t.Fatalf("expected no document without a stored object")
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := map[string]string{
		"report.pdf":       "report.pdf",
		"my scan (1).png":  "my_scan__1_.png",
		"../../etc/passwd": "passwd",
		"паспорт.pdf":      "_______.pdf",
		"":                 "document.bin",
	}
	for in, want := range tests {
		if got := sanitizeFilename(in); got != want {
			t.Fatalf("sanitizeFilename(%q) = %q, want %q", in, got, want)
		}
	}
}

type pageCounter struct {
	pages int
	err   error
}

func (p pageCounter) PageCount(string, []byte) (int, error) {
	return p.pages, p.err
}

func TestUploadValidatorRecordsPageCount(t *testing.T) {
	store := newMemoryStore(passportResumeCase())
	validator := NewUploadValidator(store, newMemoryObjects()).WithInspector(pageCounter{pages: 3})

	doc, err := validator.Accept(context.Background(), pdf("a.pdf"), store.cases["case-1"])
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if doc.PageCount != 3 {
		t.Fatalf("expected page count 3, got %d", doc.PageCount)
	}

	validator = NewUploadValidator(store, newMemoryObjects()).WithInspector(pageCounter{err: errors.New("corrupt pdf")})
	doc, err = validator.Accept(context.Background(), pdf("b.pdf"), store.cases["case-1"])
	if err != nil {
		t.Fatalf("inspection failure must not reject upload: %v", err)
	}
	if doc.PageCount != 0 {
		t.Fatalf("expected unknown page count, got %d", doc.PageCount)
	}
}
