package usecase

import (
	"context"
	"errors"
	"slices"
	"strings"
	"testing"

	"github.com/kirillkom/case-intake/internal/core/domain"
)

func newVerifyFixture() (*memoryStore, *fakeAnalysis, *domain.Case) {
	c := completedCase()
	store := newMemoryStore(c)
	store.docs["doc-passport"] = &domain.UploadedDocument{
		ID: "doc-passport", CaseID: c.ID, Filename: "passport.pdf", SlotID: "slot-passport",
		ExtractedData: map[string]any{domain.DocumentTypeKey: "Passport", "full_name": "Jane Doe"},
	}
	store.docs["doc-resume"] = &domain.UploadedDocument{
		ID: "doc-resume", CaseID: c.ID, Filename: "cv.pdf", SlotID: "slot-resume",
		ExtractedData: map[string]any{domain.DocumentTypeKey: "CV", "full_name": "Jane Doe"},
	}
	store.docs["doc-pending"] = &domain.UploadedDocument{ID: "doc-pending", CaseID: c.ID, Filename: "scan.png"}
	store.templates[c.CategoryID] = []string{"tpl-a", "tpl-b", "tpl-c"}
	return store, &fakeAnalysis{organizeErrs: map[string]error{}}, c
}

func TestCrossVerifierSendsAcceptedDocuments(t *testing.T) {
	store, analysis, c := newVerifyFixture()
	analysis.report = domain.VerificationReport{
		MismatchErrors: []domain.Finding{{Type: "name", Details: domain.FindingDetails{Values: map[string]string{"Passport": "Jane Doe", "CV": "J. Doe"}}}},
	}
	verifier := NewCrossVerifier(store, store, analysis, 2, nil)

	report, err := verifier.Verify(context.Background(), c)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(analysis.lastRequest.Documents) != 2 {
		t.Fatalf("expected only slot-bound documents, got %+v", analysis.lastRequest.Documents)
	}
	for _, doc := range analysis.lastRequest.Documents {
		if doc.DocumentID == "doc-pending" {
			t.Fatalf("unbound document must not be verified")
		}
		if doc.SlotName == "" || doc.DocumentType == "" {
			t.Fatalf("expected slot name and type on accepted document, got %+v", doc)
		}
	}
	if len(report.MismatchErrors) != 1 || report.MissingErrors == nil || report.SummarizationErrors == nil {
		t.Fatalf("unexpected normalized report: %+v", report)
	}

	saved := make([]string, 0, len(store.prefills))
	for _, p := range store.prefills {
		saved = append(saved, p.TemplateID)
	}
	slices.Sort(saved)
	if !slices.Equal(saved, []string{"tpl-a", "tpl-b", "tpl-c"}) {
		t.Fatalf("expected a prefill per template, got %v", saved)
	}
}

func TestCrossVerifierAggregatesOrganizeFailures(t *testing.T) {
	store, analysis, c := newVerifyFixture()
	analysis.organizeErrs["tpl-a"] = errors.New("template a broken")
	store.prefillErrs["tpl-c"] = errors.New("prefill insert failed")
	verifier := NewCrossVerifier(store, store, analysis, 1, nil)

	report, err := verifier.Verify(context.Background(), c)
	if report == nil {
		t.Fatalf("expected report despite organize failures")
	}
	if err == nil {
		t.Fatalf("expected aggregated error")
	}
	if !strings.Contains(err.Error(), "tpl-a") || !strings.Contains(err.Error(), "tpl-c") {
		t.Fatalf("expected both failures in error, got %v", err)
	}
	if len(analysis.organized) != 3 {
		t.Fatalf("expected every template to be attempted, got %v", analysis.organized)
	}
	if len(store.prefills) != 1 || store.prefills[0].TemplateID != "tpl-b" {
		t.Fatalf("expected surviving template prefill, got %+v", store.prefills)
	}
}

func TestCrossVerifierAnalysisFailureStillOrganizes(t *testing.T) {
	store, analysis, c := newVerifyFixture()
	analysis.verifyErr = errors.New("analysis down")
	verifier := NewCrossVerifier(store, store, analysis, 0, nil)

	report, err := verifier.Verify(context.Background(), c)
	if report != nil {
		t.Fatalf("expected nil report, got %+v", report)
	}
	if err == nil || !strings.Contains(err.Error(), "analysis down") {
		t.Fatalf("expected analysis error, got %v", err)
	}
	if len(store.prefills) != 3 {
		t.Fatalf("expected organize to run independently, got %d prefills", len(store.prefills))
	}
}

func TestNormalizeReport(t *testing.T) {
	raw := domain.VerificationReport{
		MissingErrors: []domain.Finding{
			{Type: " missing_field ", Details: domain.FindingDetails{Text: "  no expiry date  "}},
			{Type: "  ", Details: domain.FindingDetails{Text: "dropped"}},
			{Type: "second", Details: domain.FindingDetails{Text: "kept"}},
		},
	}

	report := NormalizeReport(raw)
	if report.MismatchErrors == nil || report.SummarizationErrors == nil {
		t.Fatalf("expected empty lists instead of nil")
	}
	if len(report.MissingErrors) != 2 {
		t.Fatalf("expected blank finding to be dropped, got %+v", report.MissingErrors)
	}
	first := report.MissingErrors[0]
	if first.Type != "missing_field" || first.Details.Text != "no expiry date" {
		t.Fatalf("unexpected first finding: %+v", first)
	}
	if report.MissingErrors[1].Type != "second" {
		t.Fatalf("expected order to be preserved")
	}
}
