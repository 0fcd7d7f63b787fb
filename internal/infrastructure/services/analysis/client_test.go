package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kirillkom/case-intake/internal/core/domain"
	"github.com/kirillkom/case-intake/internal/infrastructure/httpjson"
)

func TestCrossVerifyDecodesMixedDetails(t *testing.T) {
	var got crossVerifyRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/cases/case-1/cross-verify" {
			http.NotFound(w, r)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{
			"mismatchErrors": [{"type": "full_name", "details": {"Passport": "Jane Doe", "Resume": "J. Doe"}}],
			"missingErrors": [{"type": "expiry_date", "details": "Passport has no expiry date"}],
			"summarizationErrors": []
		}`))
	}))
	defer server.Close()

	client := New(httpjson.New("analysis", server.URL, httpjson.Options{}))
	report, err := client.CrossVerify(context.Background(), domain.CrossVerifyRequest{
		CaseID:    "case-1",
		Documents: []domain.AcceptedDocument{{DocumentID: "doc-1", SlotName: "Passport"}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got.Documents) != 1 || got.Documents[0].DocumentID != "doc-1" {
		t.Fatalf("unexpected request %+v", got)
	}
	if len(report.MismatchErrors) != 1 || report.MismatchErrors[0].Details.Values["Resume"] != "J. Doe" {
		t.Fatalf("unexpected mismatch findings %+v", report.MismatchErrors)
	}
	if len(report.MissingErrors) != 1 || report.MissingErrors[0].Details.Text != "Passport has no expiry date" {
		t.Fatalf("unexpected missing findings %+v", report.MissingErrors)
	}
}

func TestOrganizeDefaultsEmptyMaps(t *testing.T) {
	var got organizeRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	out, err := New(httpjson.New("analysis", server.URL, httpjson.Options{})).Organize(context.Background(), "case-1", "tpl-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.QuestionnaireTemplateID != "tpl-1" {
		t.Fatalf("unexpected request %+v", got)
	}
	if out.RawDocuments == nil || out.ProcessedInformation == nil {
		t.Fatalf("expected empty maps, got %+v", out)
	}
}

func TestAnalysisValidatesInput(t *testing.T) {
	client := New(httpjson.New("analysis", "http://unused", httpjson.Options{}))

	if _, err := client.CrossVerify(context.Background(), domain.CrossVerifyRequest{}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
	if _, err := client.Organize(context.Background(), "case-1", ""); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}
